package repository

import (
	"context"
	"errors"
	"strings"
	"time"

	"huddle/internal/models"
	"huddle/internal/observability"

	"gorm.io/gorm"
)

// EventRepository persists events and their rosters. Roster mutations are
// conditional writes against participant_count so capacity holds under
// concurrent joins.
type EventRepository interface {
	Create(ctx context.Context, event *models.Event) error
	GetByID(ctx context.Context, id uint) (*models.Event, error)
	Update(ctx context.Context, id uint, updates map[string]interface{}) error
	List(ctx context.Context) ([]models.Event, error)
	Filter(ctx context.Context, f models.EventFilter) ([]models.Event, error)
	SearchByTitlePrefix(ctx context.Context, prefix string, limit int) ([]models.Event, error)
	ListWithLocation(ctx context.Context) ([]models.MapEvent, error)
	AddParticipant(ctx context.Context, eventID, userID uint, now time.Time) error
	RemoveParticipant(ctx context.Context, eventID, userID uint) error
	IsParticipant(ctx context.Context, eventID, userID uint) (bool, error)
	SanitizeRoster(ctx context.Context, eventID uint) (int64, error)
}

type eventRepository struct {
	db  *gorm.DB
	log *observability.RepoLogger
}

// NewEventRepository creates a new event repository
func NewEventRepository(db *gorm.DB) EventRepository {
	return &eventRepository{db: db, log: observability.NewRepoLogger("events")}
}

// Create stores the event with its organizer as the first participant.
func (r *eventRepository) Create(ctx context.Context, event *models.Event) error {
	err := r.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		event.ParticipantCount = 1
		if err := tx.Create(event).Error; err != nil {
			return err
		}
		joinedAt := event.CreatedAt
		if joinedAt.IsZero() {
			joinedAt = time.Now()
		}
		return tx.Create(&models.EventParticipant{
			EventID:  event.ID,
			UserID:   event.OrganizerID,
			JoinedAt: joinedAt,
		}).Error
	})
	if err != nil {
		r.log.LogError(ctx, err, "create")
		return models.NewInternalError(err)
	}
	event.Participants = []uint{event.OrganizerID}
	r.log.LogCreate(ctx, map[string]interface{}{"event_id": event.ID, "organizer_id": event.OrganizerID})
	return nil
}

func (r *eventRepository) GetByID(ctx context.Context, id uint) (*models.Event, error) {
	var event models.Event
	defer observability.TrackQuery("select", "events")()
	if err := r.db.WithContext(ctx).First(&event, id).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, models.NewNotFoundError("Event", id)
		}
		return nil, models.NewInternalError(err)
	}
	if err := r.loadParticipants(ctx, []*models.Event{&event}); err != nil {
		return nil, err
	}
	return &event, nil
}

// loadParticipants fills Participants for every event with one query.
func (r *eventRepository) loadParticipants(ctx context.Context, events []*models.Event) error {
	if len(events) == 0 {
		return nil
	}
	ids := make([]uint, 0, len(events))
	byID := make(map[uint]*models.Event, len(events))
	for _, e := range events {
		e.Participants = []uint{}
		ids = append(ids, e.ID)
		byID[e.ID] = e
	}

	var rows []models.EventParticipant
	if err := r.db.WithContext(ctx).
		Where("event_id IN ?", ids).
		Order("joined_at ASC, user_id ASC").
		Find(&rows).Error; err != nil {
		return models.NewInternalError(err)
	}
	for _, p := range rows {
		if e, ok := byID[p.EventID]; ok {
			e.Participants = append(e.Participants, p.UserID)
		}
	}
	return nil
}

func (r *eventRepository) findWithParticipants(ctx context.Context, q *gorm.DB) ([]models.Event, error) {
	var events []models.Event
	if err := q.Find(&events).Error; err != nil {
		return nil, models.NewInternalError(err)
	}
	ptrs := make([]*models.Event, len(events))
	for i := range events {
		ptrs[i] = &events[i]
	}
	if err := r.loadParticipants(ctx, ptrs); err != nil {
		return nil, err
	}
	return events, nil
}

func (r *eventRepository) Update(ctx context.Context, id uint, updates map[string]interface{}) error {
	if len(updates) == 0 {
		return nil
	}
	res := r.db.WithContext(ctx).Model(&models.Event{}).Where("id = ?", id).Updates(updates)
	if res.Error != nil {
		r.log.LogError(ctx, res.Error, "update")
		return models.NewInternalError(res.Error)
	}
	if res.RowsAffected == 0 {
		return models.NewNotFoundError("Event", id)
	}
	r.log.LogUpdate(ctx, map[string]interface{}{"event_id": id})
	return nil
}

func (r *eventRepository) List(ctx context.Context) ([]models.Event, error) {
	return r.findWithParticipants(ctx, r.db.WithContext(ctx).Order("start_time ASC, id ASC"))
}

// Filter applies the non-zero fields of f. The distance bound is a coarse
// bounding box of MaxDistance/111 degrees; callers refine by exact distance.
func (r *eventRepository) Filter(ctx context.Context, f models.EventFilter) ([]models.Event, error) {
	q := r.db.WithContext(ctx).Model(&models.Event{})
	if f.Type != "" {
		q = q.Where("type = ?", f.Type)
	}
	if f.Subtype != "" {
		q = q.Where("subtype = ?", f.Subtype)
	}
	if f.StartDate != nil {
		q = q.Where("start_time >= ?", *f.StartDate)
	}
	if f.EndDate != nil {
		q = q.Where("start_time <= ?", *f.EndDate)
	}
	if f.UpcomingAt != nil {
		q = q.Where("start_time >= ?", *f.UpcomingAt)
	}
	if f.Lat != nil && f.Lng != nil && f.MaxDistance > 0 {
		deg := f.MaxDistance / 111.0
		q = q.Where("location_lat BETWEEN ? AND ?", *f.Lat-deg, *f.Lat+deg).
			Where("location_lng BETWEEN ? AND ?", *f.Lng-deg, *f.Lng+deg)
	}
	return r.findWithParticipants(ctx, q.Order("start_time ASC, id ASC"))
}

func (r *eventRepository) SearchByTitlePrefix(ctx context.Context, prefix string, limit int) ([]models.Event, error) {
	pattern := escapeLike(strings.ToLower(prefix)) + "%"
	q := r.db.WithContext(ctx).
		Where("LOWER(title) LIKE ? ESCAPE '\\'", pattern).
		Order("start_time ASC, id ASC")
	if limit > 0 {
		q = q.Limit(limit)
	}
	return r.findWithParticipants(ctx, q)
}

func (r *eventRepository) ListWithLocation(ctx context.Context) ([]models.MapEvent, error) {
	out := []models.MapEvent{}
	if err := r.db.WithContext(ctx).Model(&models.Event{}).
		Select("id", "title", "type", "subtype", "location", "location_lat", "location_lng").
		Where("location_lat IS NOT NULL AND location_lng IS NOT NULL").
		Order("id ASC").
		Scan(&out).Error; err != nil {
		return nil, models.NewInternalError(err)
	}
	return out, nil
}

// AddParticipant claims a roster slot and inserts the participant row in one
// transaction. The slot claim only succeeds while the event is open and
// below capacity, so concurrent joins can never overfill the roster.
func (r *eventRepository) AddParticipant(ctx context.Context, eventID, userID uint, now time.Time) error {
	defer observability.TrackQuery("update", "event_participants")()
	err := r.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		res := tx.Model(&models.Event{}).
			Where("id = ? AND participant_count < max_participants AND end_time > ?", eventID, now).
			UpdateColumn("participant_count", gorm.Expr("participant_count + 1"))
		if res.Error != nil {
			return res.Error
		}
		if res.RowsAffected == 0 {
			return r.classifyRejectedJoin(tx, eventID, now)
		}

		if err := tx.Create(&models.EventParticipant{EventID: eventID, UserID: userID, JoinedAt: now}).Error; err != nil {
			if isUniqueConstraintError(err) {
				return ErrAlreadyParticipant
			}
			return err
		}
		return nil
	})

	switch {
	case err == nil:
		r.log.LogCreate(ctx, map[string]interface{}{"event_id": eventID, "user_id": userID, "table": "event_participants"})
		return nil
	case errors.Is(err, ErrRosterFull), errors.Is(err, ErrEventEnded), errors.Is(err, ErrAlreadyParticipant):
		return err
	default:
		var appErr *models.AppError
		if errors.As(err, &appErr) {
			return err
		}
		r.log.LogError(ctx, err, "add_participant")
		return models.NewInternalError(err)
	}
}

func (r *eventRepository) classifyRejectedJoin(tx *gorm.DB, eventID uint, now time.Time) error {
	var event models.Event
	if err := tx.Select("id", "end_time").First(&event, eventID).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return models.NewNotFoundError("Event", eventID)
		}
		return err
	}
	if event.HasEnded(now) {
		return ErrEventEnded
	}
	return ErrRosterFull
}

// RemoveParticipant deletes the roster row and releases its slot.
func (r *eventRepository) RemoveParticipant(ctx context.Context, eventID, userID uint) error {
	err := r.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		res := tx.Where("event_id = ? AND user_id = ?", eventID, userID).Delete(&models.EventParticipant{})
		if res.Error != nil {
			return res.Error
		}
		if res.RowsAffected == 0 {
			return ErrNotParticipant
		}
		return tx.Model(&models.Event{}).
			Where("id = ? AND participant_count > 0", eventID).
			UpdateColumn("participant_count", gorm.Expr("participant_count - 1")).Error
	})
	if err != nil {
		if errors.Is(err, ErrNotParticipant) {
			return err
		}
		r.log.LogError(ctx, err, "remove_participant")
		return models.NewInternalError(err)
	}
	r.log.LogDelete(ctx, map[string]interface{}{"event_id": eventID, "user_id": userID, "table": "event_participants"})
	return nil
}

func (r *eventRepository) IsParticipant(ctx context.Context, eventID, userID uint) (bool, error) {
	var count int64
	if err := r.db.WithContext(ctx).Model(&models.EventParticipant{}).
		Where("event_id = ? AND user_id = ?", eventID, userID).
		Count(&count).Error; err != nil {
		return false, models.NewInternalError(err)
	}
	return count > 0, nil
}

// SanitizeRoster drops roster rows with a zero user id or whose user no
// longer exists, then recomputes participant_count. It returns the number
// of rows removed.
func (r *eventRepository) SanitizeRoster(ctx context.Context, eventID uint) (int64, error) {
	var removed int64
	err := r.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		res := tx.Where("event_id = ?", eventID).
			Where("user_id = 0 OR user_id NOT IN (?)", tx.Model(&models.User{}).Select("id")).
			Delete(&models.EventParticipant{})
		if res.Error != nil {
			return res.Error
		}
		removed = res.RowsAffected
		if removed == 0 {
			return nil
		}
		return tx.Model(&models.Event{}).Where("id = ?", eventID).
			UpdateColumn("participant_count",
				tx.Model(&models.EventParticipant{}).Select("COUNT(*)").Where("event_id = ?", eventID)).Error
	})
	if err != nil {
		r.log.LogError(ctx, err, "sanitize_roster")
		return 0, models.NewInternalError(err)
	}
	if removed > 0 {
		r.log.LogUpdate(ctx, map[string]interface{}{"event_id": eventID, "removed_participants": removed})
	}
	return removed, nil
}
