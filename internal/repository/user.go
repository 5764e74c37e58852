package repository

import (
	"context"
	"errors"
	"strings"

	"huddle/internal/cache"
	"huddle/internal/models"
	"huddle/internal/observability"

	"gorm.io/gorm"
)

// UserRepository defines persistence operations for users.
type UserRepository interface {
	GetByID(ctx context.Context, id uint) (*models.User, error)
	GetByEmail(ctx context.Context, email string) (*models.User, error)
	GetByUsername(ctx context.Context, username string) (*models.User, error)
	Exists(ctx context.Context, id uint) (bool, error)
	GetSummaries(ctx context.Context, ids []uint, fields []string) (map[uint]models.UserSummary, error)
	Create(ctx context.Context, user *models.User) error
	UpdateFields(ctx context.Context, id uint, updates map[string]interface{}) error
	Delete(ctx context.Context, id uint) error
	List(ctx context.Context, limit, offset int) ([]models.User, error)
	SearchByUsernamePrefix(ctx context.Context, prefix string, limit int) ([]models.UserSummary, error)
	ListWithLocation(ctx context.Context) ([]models.UserSummary, error)
}

type userRepository struct {
	db  *gorm.DB
	log *observability.RepoLogger
}

// NewUserRepository returns a new UserRepository implementation.
func NewUserRepository(db *gorm.DB) UserRepository {
	return &userRepository{db: db, log: observability.NewRepoLogger("users")}
}

// GetByID reads through the user cache. Cached copies never carry the
// password hash, so callers needing it use GetByEmail.
func (r *userRepository) GetByID(ctx context.Context, id uint) (*models.User, error) {
	var user models.User
	key := cache.UserKey(id)

	err := cache.Aside(ctx, key, &user, cache.UserTTL, func() error {
		defer observability.TrackQuery("select", "users")()
		if err := r.db.WithContext(ctx).First(&user, id).Error; err != nil {
			if errors.Is(err, gorm.ErrRecordNotFound) {
				return models.NewNotFoundError("User", id)
			}
			return models.NewInternalError(err)
		}
		return nil
	})

	if err != nil {
		return nil, err
	}
	return &user, nil
}

func (r *userRepository) GetByEmail(ctx context.Context, email string) (*models.User, error) {
	var user models.User
	if err := r.db.WithContext(ctx).Where("email = ?", email).First(&user).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, nil
		}
		return nil, models.NewInternalError(err)
	}
	return &user, nil
}

func (r *userRepository) GetByUsername(ctx context.Context, username string) (*models.User, error) {
	var user models.User
	if err := r.db.WithContext(ctx).Where("username = ?", username).First(&user).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, nil
		}
		return nil, models.NewInternalError(err)
	}
	return &user, nil
}

// Exists bypasses the cache so a deleted user is never reported as present.
func (r *userRepository) Exists(ctx context.Context, id uint) (bool, error) {
	var count int64
	if err := r.db.WithContext(ctx).Model(&models.User{}).Where("id = ?", id).Count(&count).Error; err != nil {
		return false, models.NewInternalError(err)
	}
	return count > 0, nil
}

// GetSummaries loads the requested columns for ids. Ids without a user row
// are absent from the result.
func (r *userRepository) GetSummaries(ctx context.Context, ids []uint, fields []string) (map[uint]models.UserSummary, error) {
	out := make(map[uint]models.UserSummary, len(ids))
	if len(ids) == 0 {
		return out, nil
	}

	cols := selectColumns(fields)
	var users []models.User
	defer observability.TrackQuery("select", "users")()
	if err := r.db.WithContext(ctx).Select(cols).Where("id IN ?", ids).Find(&users).Error; err != nil {
		return nil, models.NewInternalError(err)
	}
	for i := range users {
		out[users[i].ID] = users[i].Summary(fields)
	}
	return out, nil
}

func selectColumns(fields []string) []string {
	cols := []string{"id"}
	for _, f := range fields {
		if f != "id" {
			cols = append(cols, f)
		}
	}
	return cols
}

func (r *userRepository) Create(ctx context.Context, user *models.User) error {
	if err := r.db.WithContext(ctx).Create(user).Error; err != nil {
		if isUniqueConstraintError(err) {
			return models.NewConflictError("User already exists")
		}
		r.log.LogError(ctx, err, "create")
		return models.NewInternalError(err)
	}
	r.log.LogCreate(ctx, map[string]interface{}{"user_id": user.ID})
	return nil
}

// UpdateFields writes only the named columns and drops the cached copy.
func (r *userRepository) UpdateFields(ctx context.Context, id uint, updates map[string]interface{}) error {
	if len(updates) == 0 {
		return nil
	}
	res := r.db.WithContext(ctx).Model(&models.User{}).Where("id = ?", id).Updates(updates)
	if res.Error != nil {
		if isUniqueConstraintError(res.Error) {
			return models.NewConflictError("Username or email already taken")
		}
		r.log.LogError(ctx, res.Error, "update")
		return models.NewInternalError(res.Error)
	}
	if res.RowsAffected == 0 {
		return models.NewNotFoundError("User", id)
	}
	cache.InvalidateUser(ctx, id)
	r.log.LogUpdate(ctx, map[string]interface{}{"user_id": id})
	return nil
}

// Delete removes the user row only. Follow edges, rosters and chats that
// reference the id are left for their own sanitising paths.
func (r *userRepository) Delete(ctx context.Context, id uint) error {
	res := r.db.WithContext(ctx).Delete(&models.User{}, id)
	if res.Error != nil {
		return models.NewInternalError(res.Error)
	}
	if res.RowsAffected == 0 {
		return models.NewNotFoundError("User", id)
	}
	cache.InvalidateUser(ctx, id)
	r.log.LogDelete(ctx, map[string]interface{}{"user_id": id})
	return nil
}

func (r *userRepository) List(ctx context.Context, limit, offset int) ([]models.User, error) {
	var users []models.User
	q := r.db.WithContext(ctx).Order("id ASC")
	if limit > 0 {
		q = q.Limit(limit).Offset(offset)
	}
	if err := q.Find(&users).Error; err != nil {
		return nil, models.NewInternalError(err)
	}
	return users, nil
}

// SearchByUsernamePrefix matches usernames case-insensitively.
func (r *userRepository) SearchByUsernamePrefix(ctx context.Context, prefix string, limit int) ([]models.UserSummary, error) {
	var users []models.User
	pattern := escapeLike(strings.ToLower(prefix)) + "%"
	q := r.db.WithContext(ctx).
		Select(selectColumns(models.ParticipantFields)).
		Where("LOWER(username) LIKE ? ESCAPE '\\'", pattern).
		Order("username ASC")
	if limit > 0 {
		q = q.Limit(limit)
	}
	if err := q.Find(&users).Error; err != nil {
		return nil, models.NewInternalError(err)
	}
	out := make([]models.UserSummary, 0, len(users))
	for i := range users {
		out = append(out, users[i].Summary(models.ParticipantFields))
	}
	return out, nil
}

func (r *userRepository) ListWithLocation(ctx context.Context) ([]models.UserSummary, error) {
	var users []models.User
	if err := r.db.WithContext(ctx).
		Select(selectColumns(models.MapFields)).
		Where("location_lat IS NOT NULL AND location_lng IS NOT NULL").
		Where("NOT (location_lat = 0 AND location_lng = 0)").
		Find(&users).Error; err != nil {
		return nil, models.NewInternalError(err)
	}
	out := make([]models.UserSummary, 0, len(users))
	for i := range users {
		out = append(out, users[i].Summary(models.MapFields))
	}
	return out, nil
}

func escapeLike(s string) string {
	return strings.NewReplacer(`\`, `\\`, `%`, `\%`, `_`, `\_`).Replace(s)
}
