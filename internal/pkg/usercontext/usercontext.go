package usercontext

import "github.com/gofiber/fiber/v2"

// Locals keys shared across middlewares and controllers.
const (
	KeyUserContext = "USER_CONTEXT"
	KeyUserID      = "user_id"
)

// UserContext represents the verified identity attached to a request.
type UserContext struct {
	UserID     string `json:"user_id"`
	Email      string `json:"email"`
	IsLoggedIn bool   `json:"is_logged_in"`
}

// GetUserContext retrieves the user context from the fiber context.
// Returns an anonymous context if none is set.
func GetUserContext(c *fiber.Ctx) UserContext {
	if ctx := c.Locals(KeyUserContext); ctx != nil {
		if uc, ok := ctx.(UserContext); ok {
			return uc
		}
	}
	return UserContext{IsLoggedIn: false}
}

// SetUserContext attaches a verified identity to the request.
func SetUserContext(c *fiber.Ctx, uc UserContext) {
	c.Locals(KeyUserContext, uc)
	c.Locals(KeyUserID, uc.UserID)
}

// GetUserID returns the current user's ID, or empty if not logged in.
func GetUserID(c *fiber.Ctx) string {
	return GetUserContext(c).UserID
}
