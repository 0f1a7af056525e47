package handler

import (
	"bytes"

	"github.com/gofiber/fiber/v2"

	"fateweaver/internal/recipe"
)

type recipeCheckResponse struct {
	OK       bool             `json:"ok"`
	Findings []recipe.Finding `json:"findings"`
	Recipe   *recipe.Recipe   `json:"recipe"`
}

// CheckRecipe godoc
// @Summary Lint a Dockerfile
// @Description The request body is the Dockerfile text. Findings never change the status code; see "ok".
// @Tags recipes
// @Accept plain
// @Produce json
// @Param name query string false "Name used in the report" default(Dockerfile)
// @Success 200 {object} recipeCheckResponse
// @Failure 422 {object} errorPayload
// @Router /recipes/check [post]
func CheckRecipe() fiber.Handler {
	return func(c *fiber.Ctx) error {
		rep, err := recipe.Check(c.Query("name", "Dockerfile"), bytes.NewReader(c.Body()))
		if err != nil {
			return writeError(c, fiber.StatusUnprocessableEntity, "UNPARSEABLE_RECIPE", "recipe could not be parsed")
		}
		findings := rep.Findings
		if findings == nil {
			findings = []recipe.Finding{}
		}
		return c.JSON(recipeCheckResponse{OK: rep.OK(), Findings: findings, Recipe: rep.Recipe})
	}
}
