package router

import (
	"github.com/gofiber/fiber/v2"

	"github.com/glyphio/glyphio/internal/pkg/config"
)

type Router interface {
	InstallRouter(app *fiber.App)
}

func InstallRouter(app *fiber.App, cfg *config.Config) {
	setup(app, NewApiRouter(cfg))
}

func setup(app *fiber.App, router ...Router) {
	for _, r := range router {
		r.InstallRouter(app)
	}
}
