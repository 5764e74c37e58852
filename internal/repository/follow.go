package repository

import (
	"context"

	"huddle/internal/models"
	"huddle/internal/observability"

	"gorm.io/gorm"
)

// FollowRepository persists the directed follow graph. Reads always hit the
// database so mutual-follow checks see the latest edges.
type FollowRepository interface {
	Follow(ctx context.Context, followerID, followeeID uint) error
	Unfollow(ctx context.Context, followerID, followeeID uint) error
	IsFollowing(ctx context.Context, followerID, followeeID uint) (bool, error)
	IsMutual(ctx context.Context, a, b uint) (bool, error)
	Followers(ctx context.Context, userID uint) ([]uint, error)
	Following(ctx context.Context, userID uint) ([]uint, error)
	Mutuals(ctx context.Context, userID uint) ([]uint, error)
}

type followRepository struct {
	db  *gorm.DB
	log *observability.RepoLogger
}

// NewFollowRepository creates a new follow repository
func NewFollowRepository(db *gorm.DB) FollowRepository {
	return &followRepository{db: db, log: observability.NewRepoLogger("follows")}
}

// Follow inserts the edge; an existing edge yields ErrAlreadyFollowing.
func (r *followRepository) Follow(ctx context.Context, followerID, followeeID uint) error {
	edge := models.Follow{FollowerID: followerID, FolloweeID: followeeID}
	if err := r.db.WithContext(ctx).Create(&edge).Error; err != nil {
		if isUniqueConstraintError(err) {
			return ErrAlreadyFollowing
		}
		r.log.LogError(ctx, err, "create")
		return models.NewInternalError(err)
	}
	r.log.LogCreate(ctx, map[string]interface{}{"follower_id": followerID, "followee_id": followeeID})
	return nil
}

// Unfollow deletes the edge; a missing edge yields ErrNotFollowing.
func (r *followRepository) Unfollow(ctx context.Context, followerID, followeeID uint) error {
	res := r.db.WithContext(ctx).
		Where("follower_id = ? AND followee_id = ?", followerID, followeeID).
		Delete(&models.Follow{})
	if res.Error != nil {
		r.log.LogError(ctx, res.Error, "delete")
		return models.NewInternalError(res.Error)
	}
	if res.RowsAffected == 0 {
		return ErrNotFollowing
	}
	r.log.LogDelete(ctx, map[string]interface{}{"follower_id": followerID, "followee_id": followeeID})
	return nil
}

func (r *followRepository) IsFollowing(ctx context.Context, followerID, followeeID uint) (bool, error) {
	var count int64
	if err := r.db.WithContext(ctx).Model(&models.Follow{}).
		Where("follower_id = ? AND followee_id = ?", followerID, followeeID).
		Count(&count).Error; err != nil {
		return false, models.NewInternalError(err)
	}
	return count > 0, nil
}

// IsMutual reports whether a and b follow each other.
func (r *followRepository) IsMutual(ctx context.Context, a, b uint) (bool, error) {
	var count int64
	if err := r.db.WithContext(ctx).Model(&models.Follow{}).
		Where("(follower_id = ? AND followee_id = ?) OR (follower_id = ? AND followee_id = ?)", a, b, b, a).
		Count(&count).Error; err != nil {
		return false, models.NewInternalError(err)
	}
	return count == 2, nil
}

func (r *followRepository) Followers(ctx context.Context, userID uint) ([]uint, error) {
	ids := []uint{}
	if err := r.db.WithContext(ctx).Model(&models.Follow{}).
		Where("followee_id = ?", userID).
		Order("created_at ASC").
		Pluck("follower_id", &ids).Error; err != nil {
		return nil, models.NewInternalError(err)
	}
	return ids, nil
}

func (r *followRepository) Following(ctx context.Context, userID uint) ([]uint, error) {
	ids := []uint{}
	if err := r.db.WithContext(ctx).Model(&models.Follow{}).
		Where("follower_id = ?", userID).
		Order("created_at ASC").
		Pluck("followee_id", &ids).Error; err != nil {
		return nil, models.NewInternalError(err)
	}
	return ids, nil
}

// Mutuals returns the users userID follows who also follow userID back.
func (r *followRepository) Mutuals(ctx context.Context, userID uint) ([]uint, error) {
	ids := []uint{}
	if err := r.db.WithContext(ctx).
		Table("follows AS f").
		Joins("JOIN follows AS b ON b.follower_id = f.followee_id AND b.followee_id = f.follower_id").
		Where("f.follower_id = ?", userID).
		Order("f.created_at ASC").
		Pluck("f.followee_id", &ids).Error; err != nil {
		return nil, models.NewInternalError(err)
	}
	return ids, nil
}
