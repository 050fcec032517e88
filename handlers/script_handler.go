package handlers

import (
	"github.com/gofiber/fiber/v2"

	"agent-runner-server/middleware"
	"agent-runner-server/models"
	"agent-runner-server/services"
)

// ScriptHandler reads and replaces the processing script in the script store.
// A saved version is mirrored to the worker script file, so the next worker
// loads it.
type ScriptHandler struct {
	store services.ScriptStore
	key   string
	dest  string
}

func NewScriptHandler(store services.ScriptStore, key, dest string) *ScriptHandler {
	return &ScriptHandler{store: store, key: key, dest: dest}
}

// GetScript godoc
// @Summary Get the processing script
// @Tags script
// @Produce json
// @Success 200 {object} models.ScriptResponse
// @Failure 404 {object} map[string]string
// @Router /script [get]
func (h *ScriptHandler) GetScript(c *fiber.Ctx) error {
	source, err := h.store.GetScript(middleware.GetXRayContext(c), h.key)
	if err != nil {
		return c.Status(fiber.StatusNotFound).JSON(fiber.Map{
			"error": "Script not found",
		})
	}
	return c.JSON(models.ScriptResponse{Key: h.key, Source: source})
}

// UpdateScript godoc
// @Summary Replace the processing script
// @Description Stores a new version and mirrors it for the next workers. Running workers keep the version they loaded.
// @Tags script
// @Accept json
// @Produce json
// @Param script body models.ScriptUpdate true "New script source"
// @Success 200 {object} models.ScriptResponse
// @Failure 400 {object} map[string]string
// @Failure 500 {object} map[string]string
// @Router /script [put]
func (h *ScriptHandler) UpdateScript(c *fiber.Ctx) error {
	var body models.ScriptUpdate
	if err := c.BodyParser(&body); err != nil {
		return c.Status(fiber.StatusBadRequest).JSON(fiber.Map{
			"error": "Invalid request body",
		})
	}
	if body.Source == "" {
		return c.Status(fiber.StatusBadRequest).JSON(fiber.Map{
			"error": "source is required",
		})
	}

	ctx := middleware.GetXRayContext(c)
	if err := h.store.SaveScript(ctx, h.key, body.Source); err != nil {
		return c.Status(fiber.StatusInternalServerError).JSON(fiber.Map{
			"error": "Failed to store script: " + err.Error(),
		})
	}
	if err := services.MirrorScript(ctx, h.store, h.key, h.dest); err != nil {
		return c.Status(fiber.StatusInternalServerError).JSON(fiber.Map{
			"error": "Failed to publish script: " + err.Error(),
		})
	}
	return c.JSON(models.ScriptResponse{Key: h.key, Status: "updated"})
}
