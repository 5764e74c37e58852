package service

import (
	"context"
	"errors"

	"huddle/internal/models"
	"huddle/internal/repository"
)

// FollowService maintains the directed follow graph.
type FollowService struct {
	followRepo repository.FollowRepository
	userRepo   repository.UserRepository
}

// NewFollowService returns a new FollowService.
func NewFollowService(followRepo repository.FollowRepository, userRepo repository.UserRepository) *FollowService {
	return &FollowService{followRepo: followRepo, userRepo: userRepo}
}

func (s *FollowService) requireUsers(ctx context.Context, ids ...uint) error {
	for _, id := range ids {
		ok, err := s.userRepo.Exists(ctx, id)
		if err != nil {
			return err
		}
		if !ok {
			return models.NewNotFoundError("User", id)
		}
	}
	return nil
}

// Follow makes actorID follow targetID.
func (s *FollowService) Follow(ctx context.Context, actorID, targetID uint) error {
	if actorID == targetID {
		return models.NewForbiddenError("You can't follow yourself")
	}
	if err := s.requireUsers(ctx, targetID, actorID); err != nil {
		return err
	}
	if err := s.followRepo.Follow(ctx, actorID, targetID); err != nil {
		if errors.Is(err, repository.ErrAlreadyFollowing) {
			return models.NewForbiddenError("You already follow this user")
		}
		return err
	}
	return nil
}

// Unfollow removes the edge actorID -> targetID.
func (s *FollowService) Unfollow(ctx context.Context, actorID, targetID uint) error {
	if actorID == targetID {
		return models.NewForbiddenError("You can't unfollow yourself")
	}
	if err := s.requireUsers(ctx, targetID, actorID); err != nil {
		return err
	}
	if err := s.followRepo.Unfollow(ctx, actorID, targetID); err != nil {
		if errors.Is(err, repository.ErrNotFollowing) {
			return models.NewForbiddenError("You don't follow this user")
		}
		return err
	}
	return nil
}

// Followers returns summaries of the users following userID.
func (s *FollowService) Followers(ctx context.Context, userID uint) ([]models.UserSummary, error) {
	if err := s.requireUsers(ctx, userID); err != nil {
		return nil, err
	}
	ids, err := s.followRepo.Followers(ctx, userID)
	if err != nil {
		return nil, err
	}
	return orderedSummaries(ctx, s.userRepo, ids, models.SenderFields)
}

// Following returns summaries of the users userID follows.
func (s *FollowService) Following(ctx context.Context, userID uint) ([]models.UserSummary, error) {
	if err := s.requireUsers(ctx, userID); err != nil {
		return nil, err
	}
	ids, err := s.followRepo.Following(ctx, userID)
	if err != nil {
		return nil, err
	}
	return orderedSummaries(ctx, s.userRepo, ids, models.SenderFields)
}

// orderedSummaries resolves ids in order, skipping ids with no user row.
func orderedSummaries(ctx context.Context, users repository.UserRepository, ids []uint, fields []string) ([]models.UserSummary, error) {
	byID, err := users.GetSummaries(ctx, ids, fields)
	if err != nil {
		return nil, err
	}
	out := make([]models.UserSummary, 0, len(ids))
	for _, id := range ids {
		if s, ok := byID[id]; ok {
			out = append(out, s)
		}
	}
	return out, nil
}
