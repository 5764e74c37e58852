package server

import (
	"huddle/internal/models"

	"github.com/gofiber/fiber/v2"
)

// GetOrCreatePrivateChat handles POST /api/privateChat/getOrCreate
// @Summary Get or create the chat between two mutual follows
// @Description Returns the existing chat for the pair or creates one. Requires userId1 to follow userId2 and userId2 to list userId1 as a follower.
// @Tags privateChat
// @Accept json
// @Produce json
// @Param request body object{userId1=int,userId2=int} true "Pair"
// @Success 200 {object} models.PrivateChat
// @Failure 400 {object} models.ErrorResponse
// @Failure 403 {object} models.ErrorResponse "Users are not mutually following"
// @Failure 404 {object} models.ErrorResponse
// @Router /privateChat/getOrCreate [post]
func (s *Server) GetOrCreatePrivateChat(c *fiber.Ctx) error {
	var req struct {
		UserID1 flexID `json:"userId1"`
		UserID2 flexID `json:"userId2"`
	}
	if err := parseBody(c, &req); err != nil {
		return nil
	}
	a, b := uint(req.UserID1), uint(req.UserID2)
	if a == 0 || b == 0 {
		return fail(c, models.NewValidationError("userId1 and userId2 are required"))
	}
	if s.config.AuthRequired {
		if authed, _ := authedUser(c); authed != a && authed != b {
			return fail(c, models.NewForbiddenError("Token does not match either participant"))
		}
	}

	chat, err := s.privateChatService.GetOrCreate(c.UserContext(), a, b)
	if err != nil {
		return fail(c, err)
	}
	return c.JSON(chat)
}

// GetPrivateChat handles GET /api/privateChat/:chatId
// @Summary Get a private chat with its messages
// @Tags privateChat
// @Produce json
// @Param chatId path int true "Chat ID"
// @Success 200 {object} models.PrivateChat
// @Failure 403 {object} models.ErrorResponse
// @Failure 404 {object} models.ErrorResponse
// @Router /privateChat/{chatId} [get]
func (s *Server) GetPrivateChat(c *fiber.Ctx) error {
	chatID, err := s.parseID(c, "chatId")
	if err != nil {
		return nil
	}
	chat, err := s.privateChatService.Get(c.UserContext(), chatID)
	if err != nil {
		return fail(c, err)
	}
	if s.config.AuthRequired {
		if authed, _ := authedUser(c); !chat.Includes(authed) {
			return fail(c, models.NewForbiddenError("Not a participant of this chat"))
		}
	}
	return c.JSON(chat)
}

// PostPrivateMessage handles POST /api/privateChat/:chatId/message
// @Summary Append a message to a private chat
// @Tags privateChat
// @Accept json
// @Produce json
// @Param chatId path int true "Chat ID"
// @Param request body messageRequest true "Message"
// @Success 201 {object} models.PrivateMessage
// @Failure 400 {object} models.ErrorResponse
// @Failure 403 {object} models.ErrorResponse
// @Failure 404 {object} models.ErrorResponse
// @Router /privateChat/{chatId}/message [post]
func (s *Server) PostPrivateMessage(c *fiber.Ctx) error {
	chatID, err := s.parseID(c, "chatId")
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
	if s.config.AuthRequired {
		chat, err := s.privateChatService.Get(c.UserContext(), chatID)
		if err != nil {
			return fail(c, err)
		}
		if !chat.Includes(sender) {
			return fail(c, models.NewForbiddenError("Not a participant of this chat"))
		}
	}

	msg, err := s.privateChatService.PostMessage(c.UserContext(), chatID, sender, req.Message)
	if err != nil {
		return fail(c, err)
	}
	return c.Status(fiber.StatusCreated).JSON(msg)
}

// GetPrivateChatsForUser handles GET /api/privateChat/user/:id
// @Summary List a user's chats with current mutual follows
// @Tags privateChat
// @Produce json
// @Param id path int true "User ID"
// @Success 200 {array} models.PrivateChatView
// @Failure 403 {object} models.ErrorResponse
// @Failure 404 {object} models.ErrorResponse
// @Router /privateChat/user/{id} [get]
func (s *Server) GetPrivateChatsForUser(c *fiber.Ctx) error {
	userID, err := s.ownUser(c)
	if err != nil {
		return fail(c, err)
	}
	chats, err := s.privateChatService.ListForUser(c.UserContext(), userID)
	if err != nil {
		return fail(c, err)
	}
	return c.JSON(chats)
}

// GetAvailablePartners handles GET /api/privateChat/available/:id
// @Summary Mutual follows without a chat yet
// @Tags privateChat
// @Produce json
// @Param id path int true "User ID"
// @Success 200 {array} models.UserSummary
// @Failure 403 {object} models.ErrorResponse
// @Failure 404 {object} models.ErrorResponse
// @Router /privateChat/available/{id} [get]
func (s *Server) GetAvailablePartners(c *fiber.Ctx) error {
	userID, err := s.ownUser(c)
	if err != nil {
		return fail(c, err)
	}
	partners, err := s.privateChatService.ListAvailablePartners(c.UserContext(), userID)
	if err != nil {
		return fail(c, err)
	}
	return c.JSON(partners)
}

// ownUser reads the :id path param, which must be the caller when auth is
// enforced.
func (s *Server) ownUser(c *fiber.Ctx) (uint, error) {
	id, err := s.parseID(c, "id")
	if err != nil {
		return 0, err
	}
	return s.actor(c, id)
}
