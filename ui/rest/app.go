package rest

import (
	"runtime"

	"github.com/gofiber/fiber/v2"
	coreconfig "github.com/storylinehq/publisher/core/config"
	"github.com/storylinehq/publisher/pkg/utils"
)

type App struct {
	cfg *coreconfig.Config
}

func InitRestApp(app fiber.Router, cfg *coreconfig.Config) App {
	rest := App{cfg: cfg}
	app.Get("/app/version", rest.GetVersion)
	app.Get("/app/settings", rest.GetSettings)
	return rest
}

func (handler *App) GetSettings(c *fiber.Ctx) error {
	return c.JSON(utils.ResponseData{
		Status:  200,
		Code:    "SUCCESS",
		Message: "Success fetch settings",
		Results: coreconfig.GetAllSettings(),
	})
}

func (handler *App) GetVersion(c *fiber.Ctx) error {
	return c.JSON(fiber.Map{
		"version": handler.cfg.App.Version,
		"os":      runtime.GOOS,
	})
}
