package handler

import (
	"errors"
	"strconv"
	"strings"

	"github.com/gofiber/fiber/v2"

	"fateweaver/internal/storage"
)

// GetAudio godoc
// @Summary Download a synthesized clip
// @Tags audio
// @Produce audio/mpeg
// @Param key path string true "Clip name, e.g. elda-1a2b3c4d5e6f.mp3"
// @Success 200 {file} binary
// @Failure 400,404 {object} errorPayload
// @Router /audio/{key} [get]
func GetAudio(store storage.Storage) fiber.Handler {
	return func(c *fiber.Ctx) error {
		name := c.Params("*")
		if name == "" || strings.Contains(name, "..") {
			return writeError(c, fiber.StatusBadRequest, "INVALID_KEY", "invalid audio key")
		}
		rc, info, err := store.Get(c.UserContext(), "audio/"+name)
		if err != nil {
			if errors.Is(err, storage.ErrObjectNotFound) {
				return writeError(c, fiber.StatusNotFound, "NOT_FOUND", "audio not found")
			}
			return writeError(c, fiber.StatusInternalServerError, "INTERNAL_ERROR", "internal server error")
		}

		ct := info.ContentType
		if ct == "" {
			ct = "audio/mpeg"
		}
		c.Set(fiber.HeaderContentType, ct)
		c.Set(fiber.HeaderCacheControl, "public, max-age=31536000, immutable")
		if info.ETag != "" {
			c.Set(fiber.HeaderETag, strconv.Quote(info.ETag))
		}
		size := -1
		if info.Size > 0 {
			size = int(info.Size)
		}
		// The response body owns rc and closes it once sent.
		return c.SendStream(rc, size)
	}
}
