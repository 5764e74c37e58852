package server

import (
	"huddle/internal/models"
	"huddle/internal/service"

	"github.com/gofiber/fiber/v2"
)

type actorRequest struct {
	UserID flexID `json:"userId"`
}

// ListUsers handles GET /api/user
// @Summary List users
// @Tags users
// @Produce json
// @Param limit query int false "Page size" default(50)
// @Param offset query int false "Offset"
// @Success 200 {array} models.User
// @Router /user [get]
func (s *Server) ListUsers(c *fiber.Ctx) error {
	page := parsePagination(c, 50)
	users, err := s.userService.ListUsers(c.UserContext(), page.Limit, page.Offset)
	if err != nil {
		return fail(c, err)
	}
	return c.JSON(users)
}

// SearchUsers handles GET /api/user/search?username=
// @Summary Search users by username prefix
// @Tags users
// @Produce json
// @Param username query string true "Username prefix"
// @Success 200 {array} models.UserSummary
// @Failure 400 {object} models.ErrorResponse
// @Router /user/search [get]
func (s *Server) SearchUsers(c *fiber.Ctx) error {
	page := parsePagination(c, 20)
	users, err := s.userService.Search(c.UserContext(), c.Query("username"), page.Limit)
	if err != nil {
		return fail(c, err)
	}
	return c.JSON(users)
}

// GetUser handles GET /api/user/:id
// @Summary Get a user
// @Tags users
// @Produce json
// @Param id path int true "User ID"
// @Success 200 {object} models.User
// @Failure 404 {object} models.ErrorResponse
// @Router /user/{id} [get]
func (s *Server) GetUser(c *fiber.Ctx) error {
	id, err := s.parseID(c, "id")
	if err != nil {
		return nil
	}
	user, err := s.userService.GetUser(c.UserContext(), id)
	if err != nil {
		return fail(c, err)
	}
	return c.JSON(user)
}

// GetUserProfile handles GET /api/user/:id/profile
// @Summary Get a user with follower and following ids
// @Tags users
// @Produce json
// @Param id path int true "User ID"
// @Success 200 {object} models.User
// @Failure 404 {object} models.ErrorResponse
// @Router /user/{id}/profile [get]
func (s *Server) GetUserProfile(c *fiber.Ctx) error {
	id, err := s.parseID(c, "id")
	if err != nil {
		return nil
	}
	user, err := s.userService.GetProfile(c.UserContext(), id)
	if err != nil {
		return fail(c, err)
	}
	return c.JSON(user)
}

// UpdateUser handles PUT /api/user/:id
// @Summary Update own account
// @Tags users
// @Accept json
// @Produce json
// @Param id path int true "User ID"
// @Success 200 {object} models.User
// @Failure 403 {object} models.ErrorResponse
// @Router /user/{id} [put]
func (s *Server) UpdateUser(c *fiber.Ctx) error {
	id, err := s.parseID(c, "id")
	if err != nil {
		return nil
	}
	var req struct {
		UserID         flexID  `json:"userId"`
		Username       *string `json:"username"`
		Email          *string `json:"email"`
		Password       *string `json:"password"`
		ProfilePicture *string `json:"profilePicture"`
	}
	if err := parseBody(c, &req); err != nil {
		return nil
	}
	actorID, err := s.actor(c, uint(req.UserID))
	if err != nil {
		return fail(c, err)
	}

	user, err := s.userService.UpdateProfile(c.UserContext(), service.UpdateProfileInput{
		ActorID:        actorID,
		UserID:         id,
		Username:       req.Username,
		Email:          req.Email,
		Password:       req.Password,
		ProfilePicture: req.ProfilePicture,
	})
	if err != nil {
		return fail(c, err)
	}
	return c.JSON(user)
}

// DeleteUser handles DELETE /api/user/:id
// @Summary Delete own account
// @Tags users
// @Param id path int true "User ID"
// @Success 200 {object} object{message=string}
// @Failure 403 {object} models.ErrorResponse
// @Router /user/{id} [delete]
func (s *Server) DeleteUser(c *fiber.Ctx) error {
	id, err := s.parseID(c, "id")
	if err != nil {
		return nil
	}
	var req actorRequest
	if err := parseOptionalBody(c, &req); err != nil {
		return nil
	}
	actorID, err := s.actor(c, uint(req.UserID))
	if err != nil {
		return fail(c, err)
	}
	if err := s.userService.Delete(c.UserContext(), actorID, id); err != nil {
		return fail(c, err)
	}
	return c.JSON(fiber.Map{"message": "Account has been deleted"})
}

// UpdateLocation handles PUT /api/user/:id/location
// @Summary Update coordinates
// @Tags users
// @Accept json
// @Produce json
// @Param id path int true "User ID"
// @Param request body object{locationLAT=number,locationLNG=number} true "Coordinates"
// @Success 200 {object} models.User
// @Failure 400 {object} models.ErrorResponse
// @Router /user/{id}/location [put]
func (s *Server) UpdateLocation(c *fiber.Ctx) error {
	id, err := s.parseID(c, "id")
	if err != nil {
		return nil
	}
	var req struct {
		LocationLat *float64 `json:"locationLAT"`
		LocationLng *float64 `json:"locationLNG"`
	}
	if err := parseBody(c, &req); err != nil {
		return nil
	}
	if req.LocationLat == nil || req.LocationLng == nil {
		return fail(c, models.NewValidationError("locationLAT and locationLNG are required"))
	}
	// The path names the acting user here.
	actorID, err := s.actor(c, id)
	if err != nil {
		return fail(c, err)
	}

	user, err := s.userService.UpdateLocation(c.UserContext(), actorID, id, *req.LocationLat, *req.LocationLng)
	if err != nil {
		return fail(c, err)
	}
	return c.JSON(user)
}

// FollowUser handles PUT /api/user/:id/follow
// @Summary Follow a user
// @Tags users
// @Accept json
// @Produce json
// @Param id path int true "User to follow"
// @Param request body actorRequest true "Acting user"
// @Success 200 {object} object{message=string}
// @Failure 403 {object} models.ErrorResponse
// @Failure 404 {object} models.ErrorResponse
// @Router /user/{id}/follow [put]
func (s *Server) FollowUser(c *fiber.Ctx) error {
	return s.changeFollow(c, true)
}

// UnfollowUser handles PUT /api/user/:id/unfollow
// @Summary Unfollow a user
// @Tags users
// @Accept json
// @Produce json
// @Param id path int true "User to unfollow"
// @Param request body actorRequest true "Acting user"
// @Success 200 {object} object{message=string}
// @Failure 403 {object} models.ErrorResponse
// @Failure 404 {object} models.ErrorResponse
// @Router /user/{id}/unfollow [put]
func (s *Server) UnfollowUser(c *fiber.Ctx) error {
	return s.changeFollow(c, false)
}

func (s *Server) changeFollow(c *fiber.Ctx, follow bool) error {
	target, err := s.parseID(c, "id")
	if err != nil {
		return nil
	}
	var req actorRequest
	if err := parseOptionalBody(c, &req); err != nil {
		return nil
	}
	actorID, err := s.actor(c, uint(req.UserID))
	if err != nil {
		return fail(c, err)
	}

	if follow {
		if err := s.followService.Follow(c.UserContext(), actorID, target); err != nil {
			return fail(c, err)
		}
		return c.JSON(fiber.Map{"message": "User has been followed"})
	}
	if err := s.followService.Unfollow(c.UserContext(), actorID, target); err != nil {
		return fail(c, err)
	}
	return c.JSON(fiber.Map{"message": "User has been unfollowed"})
}

// GetFollowers handles GET /api/user/:id/followers
// @Summary List followers
// @Tags users
// @Produce json
// @Param id path int true "User ID"
// @Success 200 {array} models.UserSummary
// @Failure 404 {object} models.ErrorResponse
// @Router /user/{id}/followers [get]
func (s *Server) GetFollowers(c *fiber.Ctx) error {
	id, err := s.parseID(c, "id")
	if err != nil {
		return nil
	}
	users, err := s.followService.Followers(c.UserContext(), id)
	if err != nil {
		return fail(c, err)
	}
	return c.JSON(users)
}

// GetFollowings handles GET /api/user/:id/followings
// @Summary List followed users
// @Tags users
// @Produce json
// @Param id path int true "User ID"
// @Success 200 {array} models.UserSummary
// @Failure 404 {object} models.ErrorResponse
// @Router /user/{id}/followings [get]
func (s *Server) GetFollowings(c *fiber.Ctx) error {
	id, err := s.parseID(c, "id")
	if err != nil {
		return nil
	}
	users, err := s.followService.Following(c.UserContext(), id)
	if err != nil {
		return fail(c, err)
	}
	return c.JSON(users)
}
