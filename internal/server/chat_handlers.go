package server

import (
	"github.com/gofiber/fiber/v2"
)

type messageRequest struct {
	Sender  flexID `json:"sender"`
	Message string `json:"message"`
}

// PostEventMessage handles POST /api/chat/:eventId
// @Summary Post to an event's chat
// @Tags chat
// @Accept json
// @Produce json
// @Param eventId path int true "Event ID"
// @Param request body messageRequest true "Message"
// @Success 201 {object} models.ChatMessage
// @Failure 400 {object} models.ErrorResponse
// @Failure 404 {object} models.ErrorResponse
// @Router /chat/{eventId} [post]
func (s *Server) PostEventMessage(c *fiber.Ctx) error {
	eventID, err := s.parseID(c, "eventId")
	if err != nil {
		return nil
	}
	var req messageRequest
	if err := parseBody(c, &req); err != nil {
		return nil
	}
	sender, err := s.actor(c, uint(req.Sender))
	if err != nil {
		return fail(c, err)
	}

	msg, err := s.eventChatService.Post(c.UserContext(), eventID, sender, req.Message)
	if err != nil {
		return fail(c, err)
	}
	return c.Status(fiber.StatusCreated).JSON(msg)
}

// GetEventMessages handles GET /api/chat/:eventId
// @Summary Event chat history, oldest first
// @Tags chat
// @Produce json
// @Param eventId path int true "Event ID"
// @Success 200 {array} models.ChatMessage
// @Failure 404 {object} models.ErrorResponse
// @Router /chat/{eventId} [get]
func (s *Server) GetEventMessages(c *fiber.Ctx) error {
	eventID, err := s.parseID(c, "eventId")
	if err != nil {
		return nil
	}
	msgs, err := s.eventChatService.List(c.UserContext(), eventID)
	if err != nil {
		return fail(c, err)
	}
	return c.JSON(msgs)
}
