package controllers

import (
	"github.com/gofiber/fiber/v2"

	"github.com/glyphio/glyphio/internal/pkg/config"
)

// ConfigController exposes the publishable client configuration. Only
// values safe for the browser leave this handler.
type ConfigController struct {
	cfg *config.Config
}

func NewConfigController(cfg *config.Config) *ConfigController {
	return &ConfigController{cfg: cfg}
}

func (cc *ConfigController) HandlePublicConfig(c *fiber.Ctx) error {
	return c.JSON(fiber.Map{
		"ok":            true,
		"auth_base_url": cc.cfg.AuthBaseURL,
		"auth_anon_key": cc.cfg.AuthAnonKey,
	})
}
