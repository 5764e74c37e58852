package service

import (
	"context"
	"errors"
	"strings"
	"time"

	"huddle/internal/models"
	"huddle/internal/observability"
	"huddle/internal/repository"
	"huddle/internal/validation"

	"go.opentelemetry.io/otel/attribute"
)

// Roster failure messages returned to clients.
const (
	MsgEventEnded         = "This event has already ended and cannot be joined."
	MsgEventFull          = "Event is full"
	MsgAlreadyParticipant = "Already a participant"
	MsgNotParticipant     = "Not a participant"
)

// DefaultNearbyDistanceKm is used by Nearby when no distance is given.
const DefaultNearbyDistanceKm = 10.0

// EventService owns event lifecycle and the roster state machine.
type EventService struct {
	eventRepo repository.EventRepository
	userRepo  repository.UserRepository
	now       func() time.Time
}

// CreateEventInput is the input for creating an event.
type CreateEventInput struct {
	OrganizerID     uint
	Title           string
	Description     string
	Type            string
	Subtype         *string
	Location        string
	LocationLat     *float64
	LocationLng     *float64
	EntryFee        float64
	StartTime       time.Time
	EndTime         time.Time
	MaxParticipants int
}

// UpdateEventInput carries optional event changes; nil fields are untouched.
type UpdateEventInput struct {
	Title           *string
	Description     *string
	Type            *string
	Subtype         *string
	Location        *string
	LocationLat     *float64
	LocationLng     *float64
	EntryFee        *float64
	StartTime       *time.Time
	EndTime         *time.Time
	MaxParticipants *int
}

// NewEventService returns a new EventService.
func NewEventService(eventRepo repository.EventRepository, userRepo repository.UserRepository) *EventService {
	return &EventService{
		eventRepo: eventRepo,
		userRepo:  userRepo,
		now:       func() time.Time { return time.Now().UTC() },
	}
}

// Create validates and stores an event with its organizer on the roster.
func (s *EventService) Create(ctx context.Context, in CreateEventInput) (*models.Event, error) {
	in.Title = strings.TrimSpace(in.Title)
	in.Type = strings.TrimSpace(in.Type)
	in.Location = strings.TrimSpace(in.Location)

	switch {
	case in.Title == "" || in.Type == "" || strings.TrimSpace(in.Description) == "" || in.Location == "":
		return nil, models.NewValidationError("Title, description, type and location are required")
	case in.OrganizerID == 0:
		return nil, models.NewValidationError("Organizer is required")
	case in.StartTime.IsZero() || in.EndTime.IsZero():
		return nil, models.NewValidationError("Start and end time are required")
	case !in.EndTime.After(in.StartTime):
		return nil, models.NewValidationError("End date cannot be earlier than start date.")
	case in.MaxParticipants <= 0:
		return nil, models.NewValidationError("maxParticipants must be greater than zero")
	case in.EntryFee < 0:
		return nil, models.NewValidationError("entryFee cannot be negative")
	}
	if in.LocationLat != nil && in.LocationLng != nil {
		if err := validation.ValidateCoordinates(*in.LocationLat, *in.LocationLng); err != nil {
			return nil, models.NewValidationError(err.Error())
		}
	}

	ok, err := s.userRepo.Exists(ctx, in.OrganizerID)
	if err != nil {
		return nil, err
	}
	if !ok {
		return nil, models.NewNotFoundError("User", in.OrganizerID)
	}

	event := &models.Event{
		Title:           in.Title,
		Description:     in.Description,
		Type:            in.Type,
		Subtype:         nonEmpty(in.Subtype),
		Location:        in.Location,
		LocationLat:     in.LocationLat,
		LocationLng:     in.LocationLng,
		EntryFee:        in.EntryFee,
		StartTime:       in.StartTime.UTC(),
		EndTime:         in.EndTime.UTC(),
		MaxParticipants: in.MaxParticipants,
		OrganizerID:     in.OrganizerID,
	}
	if err := s.eventRepo.Create(ctx, event); err != nil {
		return nil, err
	}
	return event, nil
}

func nonEmpty(s *string) *string {
	if s == nil || strings.TrimSpace(*s) == "" {
		return nil
	}
	v := strings.TrimSpace(*s)
	return &v
}

// Get returns the event with its organizer summary.
func (s *EventService) Get(ctx context.Context, id uint) (*models.EventWithOrganizer, error) {
	event, err := s.eventRepo.GetByID(ctx, id)
	if err != nil {
		return nil, err
	}
	view := &models.EventWithOrganizer{Event: event}
	organizers, err := s.userRepo.GetSummaries(ctx, []uint{event.OrganizerID}, models.OrganizerFields)
	if err != nil {
		return nil, err
	}
	if o, ok := organizers[event.OrganizerID]; ok {
		view.Organizer = &o
	}
	return view, nil
}

// Details returns the event with organizer and participant summaries.
func (s *EventService) Details(ctx context.Context, id uint) (*models.EventView, error) {
	event, err := s.eventRepo.GetByID(ctx, id)
	if err != nil {
		return nil, err
	}
	view := &models.EventView{Event: event}

	organizers, err := s.userRepo.GetSummaries(ctx, []uint{event.OrganizerID}, models.ParticipantFields)
	if err != nil {
		return nil, err
	}
	if o, ok := organizers[event.OrganizerID]; ok {
		view.Organizer = &o
	}
	if view.Participants, err = orderedSummaries(ctx, s.userRepo, event.Participants, models.ParticipantFields); err != nil {
		return nil, err
	}
	return view, nil
}

// Participants returns roster summaries in join order.
func (s *EventService) Participants(ctx context.Context, id uint) ([]models.UserSummary, error) {
	event, err := s.eventRepo.GetByID(ctx, id)
	if err != nil {
		return nil, err
	}
	return orderedSummaries(ctx, s.userRepo, event.Participants, models.ParticipantFields)
}

// Update applies the non-nil fields of in. Capacity may not drop below the
// current roster size.
func (s *EventService) Update(ctx context.Context, id uint, in UpdateEventInput) (*models.Event, error) {
	event, err := s.eventRepo.GetByID(ctx, id)
	if err != nil {
		return nil, err
	}

	updates := map[string]interface{}{}
	setString := func(col string, v *string) error {
		if v == nil {
			return nil
		}
		trimmed := strings.TrimSpace(*v)
		if trimmed == "" {
			return models.NewValidationError(col + " cannot be empty")
		}
		updates[col] = trimmed
		return nil
	}
	for col, v := range map[string]*string{
		"title":       in.Title,
		"description": in.Description,
		"type":        in.Type,
		"location":    in.Location,
	} {
		if err := setString(col, v); err != nil {
			return nil, err
		}
	}
	if in.Subtype != nil {
		updates["subtype"] = nonEmpty(in.Subtype)
	}
	if in.LocationLat != nil && in.LocationLng != nil {
		if err := validation.ValidateCoordinates(*in.LocationLat, *in.LocationLng); err != nil {
			return nil, models.NewValidationError(err.Error())
		}
		updates["location_lat"] = *in.LocationLat
		updates["location_lng"] = *in.LocationLng
	}
	if in.EntryFee != nil {
		if *in.EntryFee < 0 {
			return nil, models.NewValidationError("entryFee cannot be negative")
		}
		updates["entry_fee"] = *in.EntryFee
	}

	start, end := event.StartTime, event.EndTime
	if in.StartTime != nil {
		start = in.StartTime.UTC()
		updates["start_time"] = start
	}
	if in.EndTime != nil {
		end = in.EndTime.UTC()
		updates["end_time"] = end
	}
	if !end.After(start) {
		return nil, models.NewValidationError("End date cannot be earlier than start date.")
	}

	if in.MaxParticipants != nil {
		if *in.MaxParticipants <= 0 {
			return nil, models.NewValidationError("maxParticipants must be greater than zero")
		}
		if *in.MaxParticipants < len(event.Participants) {
			return nil, models.NewValidationError("maxParticipants cannot be lower than the current number of participants")
		}
		updates["max_participants"] = *in.MaxParticipants
	}

	if err := s.eventRepo.Update(ctx, id, updates); err != nil {
		return nil, err
	}
	return s.eventRepo.GetByID(ctx, id)
}

// Join adds userID to the roster. The pre-checks give the precise reason
// against the state just read; the conditional write in the repository
// settles any race that slips past them.
func (s *EventService) Join(ctx context.Context, eventID, userID uint) (event *models.Event, err error) {
	ctx, span := observability.StartServiceSpan(ctx, "EventService", "Join",
		attribute.Int64("event.id", int64(eventID)), attribute.Int64("user.id", int64(userID)))
	defer func() {
		observability.EndSpan(span, err)
		observability.RosterOutcomes.WithLabelValues("join", rosterOutcome(err)).Inc()
	}()

	event, err = s.eventRepo.GetByID(ctx, eventID)
	if err != nil {
		return nil, err
	}
	ok, err := s.userRepo.Exists(ctx, userID)
	if err != nil {
		return nil, err
	}
	if !ok {
		return nil, models.NewNotFoundError("User", userID)
	}

	now := s.now()
	switch {
	case event.HasEnded(now):
		return nil, models.NewForbiddenError(MsgEventEnded)
	case event.IsFull():
		return nil, models.NewForbiddenError(MsgEventFull)
	case event.HasParticipant(userID):
		return nil, models.NewForbiddenError(MsgAlreadyParticipant)
	}

	if err = s.eventRepo.AddParticipant(ctx, eventID, userID, now); err != nil {
		switch {
		case errors.Is(err, repository.ErrEventEnded):
			return nil, models.NewForbiddenError(MsgEventEnded)
		case errors.Is(err, repository.ErrRosterFull):
			return nil, models.NewForbiddenError(MsgEventFull)
		case errors.Is(err, repository.ErrAlreadyParticipant):
			return nil, models.NewForbiddenError(MsgAlreadyParticipant)
		}
		return nil, err
	}
	return s.eventRepo.GetByID(ctx, eventID)
}

// Leave removes userID from the roster after dropping dangling entries.
// The organizer may leave like anyone else.
func (s *EventService) Leave(ctx context.Context, eventID, userID uint) (event *models.Event, err error) {
	ctx, span := observability.StartServiceSpan(ctx, "EventService", "Leave",
		attribute.Int64("event.id", int64(eventID)), attribute.Int64("user.id", int64(userID)))
	defer func() {
		observability.EndSpan(span, err)
		observability.RosterOutcomes.WithLabelValues("leave", rosterOutcome(err)).Inc()
	}()

	if _, err = s.eventRepo.GetByID(ctx, eventID); err != nil {
		return nil, err
	}
	if _, err = s.eventRepo.SanitizeRoster(ctx, eventID); err != nil {
		return nil, err
	}
	if userID == 0 {
		return nil, models.NewForbiddenError(MsgNotParticipant)
	}

	if err = s.eventRepo.RemoveParticipant(ctx, eventID, userID); err != nil {
		if errors.Is(err, repository.ErrNotParticipant) {
			return nil, models.NewForbiddenError(MsgNotParticipant)
		}
		return nil, err
	}
	return s.eventRepo.GetByID(ctx, eventID)
}

func rosterOutcome(err error) string {
	if err == nil {
		return "ok"
	}
	var appErr *models.AppError
	if errors.As(err, &appErr) {
		switch appErr.Message {
		case MsgEventEnded:
			return "ended"
		case MsgEventFull:
			return "full"
		case MsgAlreadyParticipant:
			return "duplicate"
		case MsgNotParticipant:
			return "not_participant"
		}
		return strings.ToLower(appErr.Code)
	}
	return "error"
}

// FilterInput mirrors the filter request body.
type FilterInput struct {
	Type        string
	Subtype     string
	StartDate   *time.Time
	EndDate     *time.Time
	Lat         *float64
	Lng         *float64
	MaxDistance float64
}

// Filter lists events matching the given criteria.
func (s *EventService) Filter(ctx context.Context, in FilterInput) ([]models.Event, error) {
	if in.StartDate != nil && in.EndDate != nil && in.EndDate.Before(*in.StartDate) {
		return nil, models.NewValidationError("End date cannot be earlier than start date.")
	}
	return s.eventRepo.Filter(ctx, models.EventFilter{
		Type:        in.Type,
		Subtype:     in.Subtype,
		StartDate:   in.StartDate,
		EndDate:     in.EndDate,
		Lat:         in.Lat,
		Lng:         in.Lng,
		MaxDistance: in.MaxDistance,
	})
}

// Nearby lists upcoming events within distanceKm of (lat, lng), soonest first.
func (s *EventService) Nearby(ctx context.Context, userID uint, lat, lng *float64, distanceKm float64) ([]models.Event, error) {
	ok, err := s.userRepo.Exists(ctx, userID)
	if err != nil {
		return nil, err
	}
	if !ok {
		return nil, models.NewNotFoundError("User", userID)
	}
	if lat == nil || lng == nil {
		return nil, models.NewValidationError("Latitude and longitude are required")
	}
	if distanceKm <= 0 {
		distanceKm = DefaultNearbyDistanceKm
	}
	now := s.now()
	return s.eventRepo.Filter(ctx, models.EventFilter{
		Lat:         lat,
		Lng:         lng,
		MaxDistance: distanceKm,
		UpcomingAt:  &now,
	})
}

// ForUser lists every event annotated with its distance from the user.
// Events without coordinates carry no distance.
func (s *EventService) ForUser(ctx context.Context, userID uint) ([]models.EventWithDistance, error) {
	user, err := s.userRepo.GetByID(ctx, userID)
	if err != nil {
		if models.IsNotFound(err) {
			return nil, models.NewValidationError("User location is required")
		}
		return nil, err
	}
	if !user.HasLocation() {
		return nil, models.NewValidationError("User location is required")
	}

	events, err := s.eventRepo.List(ctx)
	if err != nil {
		return nil, err
	}
	out := make([]models.EventWithDistance, 0, len(events))
	for i := range events {
		e := &events[i]
		item := models.EventWithDistance{Event: e}
		if e.LocationLat != nil && e.LocationLng != nil {
			d := HaversineKm(*user.LocationLat, *user.LocationLng, *e.LocationLat, *e.LocationLng)
			item.Distance = &d
		}
		out = append(out, item)
	}
	return out, nil
}

// Search matches event titles by case-insensitive prefix.
func (s *EventService) Search(ctx context.Context, query string, limit int) ([]models.Event, error) {
	query = strings.TrimSpace(query)
	if query == "" {
		return nil, models.NewValidationError("Query parameter is required")
	}
	return s.eventRepo.SearchByTitlePrefix(ctx, query, limit)
}

// MapData returns users and events that have coordinates.
func (s *EventService) MapData(ctx context.Context) (*models.MapData, error) {
	users, err := s.userRepo.ListWithLocation(ctx)
	if err != nil {
		return nil, err
	}
	events, err := s.eventRepo.ListWithLocation(ctx)
	if err != nil {
		return nil, err
	}
	return &models.MapData{Users: users, Events: events}, nil
}
