package models

import (
	"time"

	"github.com/go-playground/validator/v10"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"
)

// User mirrors an account issued by the identity provider. The ID is the
// provider's opaque identifier; the credit balance is owned by the database
// and never cached in-process.
type User struct {
	ID        string    `gorm:"type:char(36);primaryKey" json:"id"`
	Email     string    `gorm:"type:varchar(200);index" json:"email" validate:"omitempty,email,max=200"`
	Credits   int64     `gorm:"not null;default:0" json:"credits"`
	CreatedAt time.Time `gorm:"autoCreateTime" json:"created_at"`
	UpdatedAt time.Time `gorm:"autoUpdateTime" json:"updated_at"`
}

func (u *User) Validate() error {
	return validator.New().Struct(u)
}

// EnsureUser creates the row for an identity-provider user on first contact.
// Existing rows keep their balance; only the email is refreshed.
func EnsureUser(db *gorm.DB, id, email string) (*User, error) {
	user := &User{ID: id, Email: email}
	if err := user.Validate(); err != nil {
		return nil, err
	}

	conflict := clause.OnConflict{
		Columns:   []clause.Column{{Name: "id"}},
		DoNothing: true,
	}
	if email != "" {
		conflict = clause.OnConflict{
			Columns:   []clause.Column{{Name: "id"}},
			DoUpdates: clause.AssignmentColumns([]string{"email", "updated_at"}),
		}
	}
	if err := db.Clauses(conflict).Create(user).Error; err != nil {
		return nil, err
	}

	if err := db.Where("id = ?", id).First(user).Error; err != nil {
		return nil, err
	}
	return user, nil
}

// FindUserByID loads a user row by the identity-provider ID.
func FindUserByID(db *gorm.DB, id string) (*User, error) {
	var user User
	if err := db.Where("id = ?", id).First(&user).Error; err != nil {
		return nil, err
	}
	return &user, nil
}
