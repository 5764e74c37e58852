// Package service provides application business logic (users, follows, events, chats).
package service

import (
	"context"
	"strings"
	"time"

	"huddle/internal/middleware"
	"huddle/internal/models"
	"huddle/internal/repository"
	"huddle/internal/validation"

	"golang.org/x/crypto/bcrypt"
)

// UserService handles registration, login and profile management.
type UserService struct {
	userRepo   repository.UserRepository
	followRepo repository.FollowRepository
	jwtSecret  string
	tokenTTL   time.Duration
}

// RegisterInput is the input for creating an account.
type RegisterInput struct {
	Username string
	Email    string
	Password string
	Lat      *float64
	Lng      *float64
}

// UpdateProfileInput carries optional profile changes; nil fields are untouched.
type UpdateProfileInput struct {
	ActorID        uint
	UserID         uint
	Username       *string
	Email          *string
	Password       *string
	ProfilePicture *string
}

// AuthResult is returned by Register and Login.
type AuthResult struct {
	Token string       `json:"token"`
	User  *models.User `json:"user"`
}

// NewUserService returns a new UserService.
func NewUserService(userRepo repository.UserRepository, followRepo repository.FollowRepository, jwtSecret string) *UserService {
	return &UserService{
		userRepo:   userRepo,
		followRepo: followRepo,
		jwtSecret:  jwtSecret,
		tokenTTL:   middleware.TokenTTL,
	}
}

// Register validates and stores a new user. Users registered without
// coordinates start at the default location.
func (s *UserService) Register(ctx context.Context, in RegisterInput) (*AuthResult, error) {
	in.Username = strings.TrimSpace(in.Username)
	in.Email = strings.ToLower(strings.TrimSpace(in.Email))

	if err := validation.ValidateUsername(in.Username); err != nil {
		return nil, models.NewValidationError(err.Error())
	}
	if err := validation.ValidateEmail(in.Email); err != nil {
		return nil, models.NewValidationError(err.Error())
	}
	if err := validation.ValidatePassword(in.Password); err != nil {
		return nil, models.NewValidationError(err.Error())
	}

	lat, lng := models.DefaultLocationLat, models.DefaultLocationLng
	if in.Lat != nil && in.Lng != nil {
		if err := validation.ValidateCoordinates(*in.Lat, *in.Lng); err != nil {
			return nil, models.NewValidationError(err.Error())
		}
		lat, lng = *in.Lat, *in.Lng
	}

	hashed, err := bcrypt.GenerateFromPassword([]byte(in.Password), bcrypt.DefaultCost)
	if err != nil {
		return nil, models.NewInternalError(err)
	}

	user := &models.User{
		Username:    in.Username,
		Email:       in.Email,
		Password:    string(hashed),
		LocationLat: &lat,
		LocationLng: &lng,
	}
	if err := s.userRepo.Create(ctx, user); err != nil {
		return nil, err
	}
	return s.issue(user)
}

// Login checks credentials and returns a fresh token.
func (s *UserService) Login(ctx context.Context, email, password string) (*AuthResult, error) {
	email = strings.ToLower(strings.TrimSpace(email))
	if email == "" || password == "" {
		return nil, models.NewValidationError("Email and password are required")
	}

	user, err := s.userRepo.GetByEmail(ctx, email)
	if err != nil {
		return nil, err
	}
	if user == nil {
		return nil, models.NewNotFoundError("User", email)
	}
	if bcrypt.CompareHashAndPassword([]byte(user.Password), []byte(password)) != nil {
		return nil, models.NewValidationError("Invalid credentials")
	}
	return s.issue(user)
}

func (s *UserService) issue(user *models.User) (*AuthResult, error) {
	token, err := middleware.IssueToken(s.jwtSecret, user.ID, s.tokenTTL)
	if err != nil {
		return nil, models.NewInternalError(err)
	}
	return &AuthResult{Token: token, User: user}, nil
}

// GetUser returns the stored user without graph edges.
func (s *UserService) GetUser(ctx context.Context, id uint) (*models.User, error) {
	return s.userRepo.GetByID(ctx, id)
}

// GetProfile returns the user with follower and following ids loaded.
func (s *UserService) GetProfile(ctx context.Context, id uint) (*models.User, error) {
	user, err := s.userRepo.GetByID(ctx, id)
	if err != nil {
		return nil, err
	}
	if user.Followers, err = s.followRepo.Followers(ctx, id); err != nil {
		return nil, err
	}
	if user.Following, err = s.followRepo.Following(ctx, id); err != nil {
		return nil, err
	}
	return user, nil
}

func (s *UserService) ListUsers(ctx context.Context, limit, offset int) ([]models.User, error) {
	return s.userRepo.List(ctx, limit, offset)
}

// Search matches usernames by case-insensitive prefix.
func (s *UserService) Search(ctx context.Context, query string, limit int) ([]models.UserSummary, error) {
	query = strings.TrimSpace(query)
	if query == "" {
		return nil, models.NewValidationError("Query parameter is required")
	}
	return s.userRepo.SearchByUsernamePrefix(ctx, query, limit)
}

// UpdateLocation sets the user's coordinates.
func (s *UserService) UpdateLocation(ctx context.Context, actorID, userID uint, lat, lng float64) (*models.User, error) {
	if actorID != userID {
		return nil, models.NewForbiddenError("You can only update your own location")
	}
	if err := validation.ValidateCoordinates(lat, lng); err != nil {
		return nil, models.NewValidationError(err.Error())
	}
	if err := s.userRepo.UpdateFields(ctx, userID, map[string]interface{}{
		"location_lat": lat,
		"location_lng": lng,
	}); err != nil {
		return nil, err
	}
	return s.userRepo.GetByID(ctx, userID)
}

// UpdateProfile applies the non-nil fields of in.
func (s *UserService) UpdateProfile(ctx context.Context, in UpdateProfileInput) (*models.User, error) {
	if in.ActorID != in.UserID {
		return nil, models.NewForbiddenError("You can update only your account")
	}

	updates := map[string]interface{}{}
	if in.Username != nil {
		name := strings.TrimSpace(*in.Username)
		if err := validation.ValidateUsername(name); err != nil {
			return nil, models.NewValidationError(err.Error())
		}
		updates["username"] = name
	}
	if in.Email != nil {
		email := strings.ToLower(strings.TrimSpace(*in.Email))
		if err := validation.ValidateEmail(email); err != nil {
			return nil, models.NewValidationError(err.Error())
		}
		updates["email"] = email
	}
	if in.Password != nil {
		if err := validation.ValidatePassword(*in.Password); err != nil {
			return nil, models.NewValidationError(err.Error())
		}
		hashed, err := bcrypt.GenerateFromPassword([]byte(*in.Password), bcrypt.DefaultCost)
		if err != nil {
			return nil, models.NewInternalError(err)
		}
		updates["password"] = string(hashed)
	}
	if in.ProfilePicture != nil {
		updates["profile_picture"] = strings.TrimSpace(*in.ProfilePicture)
	}

	if len(updates) == 0 {
		return s.userRepo.GetByID(ctx, in.UserID)
	}
	if err := s.userRepo.UpdateFields(ctx, in.UserID, updates); err != nil {
		return nil, err
	}
	return s.userRepo.GetByID(ctx, in.UserID)
}

// Delete removes the account. References held by follows, rosters and
// chats are not cascaded.
func (s *UserService) Delete(ctx context.Context, actorID, userID uint) error {
	if actorID != userID {
		return models.NewForbiddenError("You can delete only your account")
	}
	return s.userRepo.Delete(ctx, userID)
}
