package handler

import (
	"github.com/gofiber/fiber/v2"

	"fateweaver/internal/world"
)

// ListCharacters godoc
// @Summary Character roster
// @Tags world
// @Produce json
// @Success 200 {object} map[string][]world.Character
// @Router /world/characters [get]
func ListCharacters(w *world.World) fiber.Handler {
	return func(c *fiber.Ctx) error {
		return c.JSON(fiber.Map{"data": w.Characters(), "speakers": w.Speakers()})
	}
}

// ListLocations godoc
// @Summary Setting and location ids
// @Tags world
// @Produce json
// @Success 200 {object} map[string]any
// @Router /world/locations [get]
func ListLocations(w *world.World) fiber.Handler {
	return func(c *fiber.Ctx) error {
		return c.JSON(fiber.Map{"setting": w.Setting(), "ids": w.LocationIDs()})
	}
}
