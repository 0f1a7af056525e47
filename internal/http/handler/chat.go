package handler

import (
	"bufio"
	"context"
	"encoding/json"
	"fmt"
	"strings"
	"time"

	"github.com/gofiber/fiber/v2"

	"fateweaver/internal/llm"
	"fateweaver/internal/logx"
)

const streamTimeout = 2 * time.Minute

type chatRequest struct {
	Message string `json:"message"`
}

type chatDelta struct {
	Text string `json:"text"`
}

// ChatStream godoc
// @Summary Free-form chat relayed from Snowflake Cortex
// @Description Streams the model's reply as server-sent events: one "data" event per text delta,
// @Description then "event: done", or "event: error" if the upstream fails mid-stream.
// @Tags chat
// @Accept json
// @Produce text/event-stream
// @Param body body chatRequest true "Prompt"
// @Success 200 {string} string
// @Failure 400,503 {object} errorPayload
// @Router /chat/stream [post]
func ChatStream(streamer llm.Streamer, log *logx.Logger) fiber.Handler {
	log = log.With("chat")
	return func(c *fiber.Ctx) error {
		if streamer == nil {
			return writeError(c, fiber.StatusServiceUnavailable, "LLM_NOT_CONFIGURED", "streaming chat is not configured")
		}
		var req chatRequest
		if err := c.BodyParser(&req); err != nil {
			return writeError(c, fiber.StatusBadRequest, "INVALID_BODY", "invalid request body")
		}
		prompt := strings.TrimSpace(req.Message)
		if prompt == "" {
			return writeError(c, fiber.StatusBadRequest, "EMPTY_MESSAGE", "message is required")
		}
		rid := requestIDFromCtx(c)

		c.Set(fiber.HeaderContentType, "text/event-stream")
		c.Set(fiber.HeaderCacheControl, "no-cache")
		c.Set(fiber.HeaderConnection, "keep-alive")

		// The writer runs after the handler returns, so it cannot use the request context.
		c.Context().SetBodyStreamWriter(func(w *bufio.Writer) {
			ctx, cancel := context.WithTimeout(context.Background(), streamTimeout)
			defer cancel()

			err := streamer.Stream(ctx, prompt, func(delta string) error {
				b, err := json.Marshal(chatDelta{Text: delta})
				if err != nil {
					return err
				}
				if _, err := fmt.Fprintf(w, "data: %s\n\n", b); err != nil {
					return err
				}
				return w.Flush()
			})
			if err != nil {
				log.Error("chat_stream", err, map[string]any{"request_id": rid})
				fmt.Fprintf(w, "event: error\ndata: %q\n\n", "stream interrupted")
			} else {
				fmt.Fprint(w, "event: done\ndata: {}\n\n")
			}
			_ = w.Flush()
		})
		return nil
	}
}
