package handler

import (
	"strconv"

	"github.com/gofiber/fiber/v2"
	"github.com/google/uuid"

	"fateweaver/internal/service"
)

type createSessionRequest struct {
	Title string `json:"title"`
}

type sendMessageRequest struct {
	Message string `json:"message"`
}

// sessionID validates the :id route parameter. It writes the 400 response itself when invalid.
func sessionID(c *fiber.Ctx) (string, bool) {
	id := c.Params("id")
	if _, err := uuid.Parse(id); err != nil {
		_ = writeError(c, fiber.StatusBadRequest, "INVALID_ID", "invalid id format")
		return "", false
	}
	return id, true
}

// CreateSession godoc
// @Summary Start a session
// @Tags sessions
// @Accept json
// @Produce json
// @Param body body createSessionRequest false "Optional title"
// @Success 201 {object} model.Session
// @Failure 400 {object} errorPayload
// @Router /sessions [post]
func CreateSession(svc service.SessionService) fiber.Handler {
	return func(c *fiber.Ctx) error {
		var req createSessionRequest
		if len(c.Body()) > 0 {
			if err := c.BodyParser(&req); err != nil {
				return writeError(c, fiber.StatusBadRequest, "INVALID_BODY", "invalid request body")
			}
		}
		s, err := svc.Create(c.UserContext(), req.Title)
		if err != nil {
			return writeServiceError(c, err)
		}
		return c.Status(fiber.StatusCreated).JSON(s)
	}
}

// ListSessions godoc
// @Summary List sessions, newest first
// @Tags sessions
// @Produce json
// @Param limit query int false "Page size" default(10)
// @Param offset query int false "Offset" default(0)
// @Success 200 {object} service.SessionListResult
// @Failure 400 {object} errorPayload
// @Router /sessions [get]
func ListSessions(svc service.SessionService) fiber.Handler {
	return func(c *fiber.Ctx) error {
		limit, err := strconv.Atoi(c.Query("limit", "10"))
		if err != nil {
			return writeError(c, fiber.StatusBadRequest, "INVALID_LIMIT", "invalid limit")
		}
		offset, err := strconv.Atoi(c.Query("offset", "0"))
		if err != nil {
			return writeError(c, fiber.StatusBadRequest, "INVALID_OFFSET", "invalid offset")
		}
		res, err := svc.List(c.UserContext(), limit, offset)
		if err != nil {
			return writeServiceError(c, err)
		}
		return c.JSON(res)
	}
}

// GetSession godoc
// @Summary Get a session
// @Tags sessions
// @Produce json
// @Param id path string true "Session ID"
// @Success 200 {object} model.Session
// @Failure 400,404 {object} errorPayload
// @Router /sessions/{id} [get]
func GetSession(svc service.SessionService) fiber.Handler {
	return func(c *fiber.Ctx) error {
		id, ok := sessionID(c)
		if !ok {
			return nil
		}
		s, err := svc.Get(c.UserContext(), id)
		if err != nil {
			return writeServiceError(c, err)
		}
		return c.JSON(s)
	}
}

// DeleteSession godoc
// @Summary Delete a session and its history
// @Tags sessions
// @Param id path string true "Session ID"
// @Success 204
// @Failure 400,404 {object} errorPayload
// @Router /sessions/{id} [delete]
func DeleteSession(svc service.SessionService) fiber.Handler {
	return func(c *fiber.Ctx) error {
		id, ok := sessionID(c)
		if !ok {
			return nil
		}
		if err := svc.Delete(c.UserContext(), id); err != nil {
			return writeServiceError(c, err)
		}
		return c.SendStatus(fiber.StatusNoContent)
	}
}

// ListMessages godoc
// @Summary Chat history
// @Tags sessions
// @Produce json
// @Param id path string true "Session ID"
// @Success 200 {array} model.Message
// @Failure 400,404 {object} errorPayload
// @Router /sessions/{id}/messages [get]
func ListMessages(svc service.SessionService) fiber.Handler {
	return func(c *fiber.Ctx) error {
		id, ok := sessionID(c)
		if !ok {
			return nil
		}
		msgs, err := svc.History(c.UserContext(), id)
		if err != nil {
			return writeServiceError(c, err)
		}
		return c.JSON(fiber.Map{"data": msgs})
	}
}

// SendMessage godoc
// @Summary Play a turn
// @Description Records the player's message, asks the model for the next line and voices it.
// @Tags sessions
// @Accept json
// @Produce json
// @Param id path string true "Session ID"
// @Param body body sendMessageRequest true "Player message"
// @Success 200 {object} model.Turn
// @Failure 400,404,429,502,503 {object} errorPayload
// @Router /sessions/{id}/messages [post]
func SendMessage(svc service.SessionService) fiber.Handler {
	return func(c *fiber.Ctx) error {
		id, ok := sessionID(c)
		if !ok {
			return nil
		}
		var req sendMessageRequest
		if err := c.BodyParser(&req); err != nil {
			return writeError(c, fiber.StatusBadRequest, "INVALID_BODY", "invalid request body")
		}
		turn, err := svc.Send(c.UserContext(), id, req.Message)
		if err != nil {
			return writeServiceError(c, err)
		}
		return c.JSON(turn)
	}
}

// ClearMessages godoc
// @Summary Clear chat history
// @Tags sessions
// @Param id path string true "Session ID"
// @Success 204
// @Failure 400,404 {object} errorPayload
// @Router /sessions/{id}/messages [delete]
func ClearMessages(svc service.SessionService) fiber.Handler {
	return func(c *fiber.Ctx) error {
		id, ok := sessionID(c)
		if !ok {
			return nil
		}
		if err := svc.Clear(c.UserContext(), id); err != nil {
			return writeServiceError(c, err)
		}
		return c.SendStatus(fiber.StatusNoContent)
	}
}
