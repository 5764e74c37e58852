package server

import (
	"strings"
	"time"

	"huddle/internal/models"
	"huddle/internal/service"

	"github.com/gofiber/fiber/v2"
)

const dateOnly = "2006-01-02"

// parseDate accepts RFC 3339 timestamps and bare dates.
func parseDate(raw, field string) (*time.Time, error) {
	raw = strings.TrimSpace(raw)
	if raw == "" {
		return nil, nil
	}
	for _, layout := range []string{time.RFC3339Nano, dateOnly} {
		if t, err := time.Parse(layout, raw); err == nil {
			t = t.UTC()
			return &t, nil
		}
	}
	return nil, models.NewValidationError("Invalid " + field)
}

type eventRequest struct {
	Title           *string  `json:"title"`
	Description     *string  `json:"description"`
	Type            *string  `json:"type"`
	Subtype         *string  `json:"subtype"`
	Location        *string  `json:"location"`
	LocationLat     *float64 `json:"locationLAT"`
	LocationLng     *float64 `json:"locationLNG"`
	EntryFee        *float64 `json:"entryFee"`
	StartTime       *string  `json:"startTime"`
	EndTime         *string  `json:"endTime"`
	MaxParticipants *int     `json:"maxParticipants"`
	Organizer       flexID   `json:"organizer"`
}

func deref[T any](p *T) T {
	var zero T
	if p == nil {
		return zero
	}
	return *p
}

// CreateEvent handles POST /api/event
// @Summary Create an event
// @Description The organizer becomes the first participant.
// @Tags events
// @Accept json
// @Produce json
// @Param request body eventRequest true "Event"
// @Success 201 {object} models.Event
// @Failure 400 {object} models.ErrorResponse
// @Failure 404 {object} models.ErrorResponse
// @Router /event [post]
func (s *Server) CreateEvent(c *fiber.Ctx) error {
	var req eventRequest
	if err := parseBody(c, &req); err != nil {
		return nil
	}
	organizer, err := s.actor(c, uint(req.Organizer))
	if err != nil {
		return fail(c, err)
	}
	start, err := parseDate(deref(req.StartTime), "startTime")
	if err != nil {
		return fail(c, err)
	}
	end, err := parseDate(deref(req.EndTime), "endTime")
	if err != nil {
		return fail(c, err)
	}
	if start == nil || end == nil {
		return fail(c, models.NewValidationError("startTime and endTime are required"))
	}

	event, err := s.eventService.Create(c.UserContext(), service.CreateEventInput{
		OrganizerID:     organizer,
		Title:           deref(req.Title),
		Description:     deref(req.Description),
		Type:            deref(req.Type),
		Subtype:         req.Subtype,
		Location:        deref(req.Location),
		LocationLat:     req.LocationLat,
		LocationLng:     req.LocationLng,
		EntryFee:        deref(req.EntryFee),
		StartTime:       *start,
		EndTime:         *end,
		MaxParticipants: deref(req.MaxParticipants),
	})
	if err != nil {
		return fail(c, err)
	}
	return c.Status(fiber.StatusCreated).JSON(event)
}

// UpdateEvent handles PUT /api/event/:id
// @Summary Update an event
// @Tags events
// @Accept json
// @Produce json
// @Param id path int true "Event ID"
// @Param request body eventRequest true "Changes"
// @Success 200 {object} models.Event
// @Failure 400 {object} models.ErrorResponse
// @Failure 404 {object} models.ErrorResponse
// @Router /event/{id} [put]
func (s *Server) UpdateEvent(c *fiber.Ctx) error {
	id, err := s.parseID(c, "id")
	if err != nil {
		return nil
	}
	var req eventRequest
	if err := parseBody(c, &req); err != nil {
		return nil
	}
	start, err := parseDate(deref(req.StartTime), "startTime")
	if err != nil {
		return fail(c, err)
	}
	end, err := parseDate(deref(req.EndTime), "endTime")
	if err != nil {
		return fail(c, err)
	}

	event, err := s.eventService.Update(c.UserContext(), id, service.UpdateEventInput{
		Title:           req.Title,
		Description:     req.Description,
		Type:            req.Type,
		Subtype:         req.Subtype,
		Location:        req.Location,
		LocationLat:     req.LocationLat,
		LocationLng:     req.LocationLng,
		EntryFee:        req.EntryFee,
		StartTime:       start,
		EndTime:         end,
		MaxParticipants: req.MaxParticipants,
	})
	if err != nil {
		return fail(c, err)
	}
	return c.JSON(event)
}

// GetEvent handles GET /api/event/:id
// @Summary Get an event with its organizer
// @Tags events
// @Produce json
// @Param id path int true "Event ID"
// @Success 200 {object} models.EventWithOrganizer
// @Failure 404 {object} models.ErrorResponse
// @Router /event/{id} [get]
func (s *Server) GetEvent(c *fiber.Ctx) error {
	id, err := s.parseID(c, "id")
	if err != nil {
		return nil
	}
	event, err := s.eventService.Get(c.UserContext(), id)
	if err != nil {
		return fail(c, err)
	}
	return c.JSON(event)
}

// GetEventDetails handles GET /api/event/details/:id
// @Summary Get an event with organizer and participants populated
// @Tags events
// @Produce json
// @Param id path int true "Event ID"
// @Success 200 {object} models.EventView
// @Failure 404 {object} models.ErrorResponse
// @Router /event/details/{id} [get]
func (s *Server) GetEventDetails(c *fiber.Ctx) error {
	id, err := s.parseID(c, "id")
	if err != nil {
		return nil
	}
	view, err := s.eventService.Details(c.UserContext(), id)
	if err != nil {
		return fail(c, err)
	}
	return c.JSON(view)
}

// GetEventParticipants handles GET /api/event/:id/participants
// @Summary List an event's participants
// @Tags events
// @Produce json
// @Param id path int true "Event ID"
// @Success 200 {object} object{participants=[]models.UserSummary}
// @Failure 404 {object} models.ErrorResponse
// @Router /event/{id}/participants [get]
func (s *Server) GetEventParticipants(c *fiber.Ctx) error {
	id, err := s.parseID(c, "id")
	if err != nil {
		return nil
	}
	people, err := s.eventService.Participants(c.UserContext(), id)
	if err != nil {
		return fail(c, err)
	}
	return c.JSON(fiber.Map{"participants": people})
}

// JoinEvent handles PUT /api/event/:id/join
// @Summary Join an event
// @Tags events
// @Accept json
// @Produce json
// @Param id path int true "Event ID"
// @Param request body actorRequest true "Joining user"
// @Success 200 {object} object{message=string,event=models.Event}
// @Failure 403 {object} models.ErrorResponse "Ended, full or already a participant"
// @Failure 404 {object} models.ErrorResponse
// @Router /event/{id}/join [put]
func (s *Server) JoinEvent(c *fiber.Ctx) error {
	return s.changeRoster(c, true)
}

// LeaveEvent handles PUT /api/event/:id/leave
// @Summary Leave an event
// @Tags events
// @Accept json
// @Produce json
// @Param id path int true "Event ID"
// @Param request body actorRequest true "Leaving user"
// @Success 200 {object} object{message=string,event=models.Event}
// @Failure 403 {object} models.ErrorResponse "Not a participant"
// @Failure 404 {object} models.ErrorResponse
// @Router /event/{id}/leave [put]
func (s *Server) LeaveEvent(c *fiber.Ctx) error {
	return s.changeRoster(c, false)
}

func (s *Server) changeRoster(c *fiber.Ctx, join bool) error {
	id, err := s.parseID(c, "id")
	if err != nil {
		return nil
	}
	var req actorRequest
	if err := parseOptionalBody(c, &req); err != nil {
		return nil
	}
	userID, err := s.actor(c, uint(req.UserID))
	if err != nil {
		return fail(c, err)
	}

	if join {
		event, err := s.eventService.Join(c.UserContext(), id, userID)
		if err != nil {
			return fail(c, err)
		}
		return c.JSON(fiber.Map{"message": "Successfully joined the event", "event": event})
	}
	event, err := s.eventService.Leave(c.UserContext(), id, userID)
	if err != nil {
		return fail(c, err)
	}
	return c.JSON(fiber.Map{"message": "Successfully left the event", "event": event})
}

type filterRequest struct {
	Type        string  `json:"type"`
	Subtype     string  `json:"subtype"`
	StartDate   string  `json:"startDate"`
	EndDate     string  `json:"endDate"`
	MaxDistance float64 `json:"maxDistance"`
	Location    *struct {
		Lat *float64 `json:"lat"`
		Lng *float64 `json:"lng"`
	} `json:"location"`
}

// FilterEvents handles POST /api/event/filter
// @Summary Filter events
// @Description Distance filtering uses a maxDistance/111 degree bounding box.
// @Tags events
// @Accept json
// @Produce json
// @Param request body filterRequest true "Criteria"
// @Success 200 {array} models.Event
// @Failure 400 {object} models.ErrorResponse
// @Router /event/filter [post]
func (s *Server) FilterEvents(c *fiber.Ctx) error {
	var req filterRequest
	if err := parseOptionalBody(c, &req); err != nil {
		return nil
	}
	start, err := parseDate(req.StartDate, "startDate")
	if err != nil {
		return fail(c, err)
	}
	end, err := parseDate(req.EndDate, "endDate")
	if err != nil {
		return fail(c, err)
	}

	in := service.FilterInput{
		Type:        req.Type,
		Subtype:     req.Subtype,
		StartDate:   start,
		EndDate:     end,
		MaxDistance: req.MaxDistance,
	}
	if req.Location != nil {
		in.Lat, in.Lng = req.Location.Lat, req.Location.Lng
	}

	events, err := s.eventService.Filter(c.UserContext(), in)
	if err != nil {
		return fail(c, err)
	}
	return c.JSON(events)
}

// GetNearbyEvents handles GET /api/event/nearby/:userId
// @Summary Upcoming events near a point
// @Tags events
// @Produce json
// @Param userId path int true "User ID"
// @Param lat query number true "Latitude"
// @Param lng query number true "Longitude"
// @Param distance query number false "Radius in km" default(10)
// @Success 200 {array} models.Event
// @Failure 400 {object} models.ErrorResponse
// @Failure 404 {object} models.ErrorResponse
// @Router /event/nearby/{userId} [get]
func (s *Server) GetNearbyEvents(c *fiber.Ctx) error {
	userID, err := s.parseID(c, "userId")
	if err != nil {
		return nil
	}
	distance := service.DefaultNearbyDistanceKm
	if d := parseQueryFloat(c, "distance"); d != nil {
		distance = *d
	}

	events, err := s.eventService.Nearby(c.UserContext(), userID,
		parseQueryFloat(c, "lat"), parseQueryFloat(c, "lng"), distance)
	if err != nil {
		return fail(c, err)
	}
	return c.JSON(events)
}

// GetEventsForUser handles GET /api/event/user/:id
// @Summary Every event with its distance from the user
// @Tags events
// @Produce json
// @Param id path int true "User ID"
// @Success 200 {array} models.EventWithDistance
// @Failure 400 {object} models.ErrorResponse "User has no location"
// @Router /event/user/{id} [get]
func (s *Server) GetEventsForUser(c *fiber.Ctx) error {
	id, err := s.parseID(c, "id")
	if err != nil {
		return nil
	}
	events, err := s.eventService.ForUser(c.UserContext(), id)
	if err != nil {
		return fail(c, err)
	}
	return c.JSON(events)
}

// SearchEvents handles GET /api/event/search?query=
// @Summary Search events by title prefix
// @Tags events
// @Produce json
// @Param query query string true "Title prefix"
// @Success 200 {array} models.Event
// @Failure 400 {object} models.ErrorResponse
// @Router /event/search [get]
func (s *Server) SearchEvents(c *fiber.Ctx) error {
	page := parsePagination(c, 20)
	events, err := s.eventService.Search(c.UserContext(), c.Query("query"), page.Limit)
	if err != nil {
		return fail(c, err)
	}
	return c.JSON(events)
}

// GetMapData handles GET /api/event/mapData
// @Summary Users and events with coordinates
// @Tags events
// @Produce json
// @Success 200 {object} models.MapData
// @Router /event/mapData [get]
func (s *Server) GetMapData(c *fiber.Ctx) error {
	data, err := s.eventService.MapData(c.UserContext())
	if err != nil {
		return fail(c, err)
	}
	return c.JSON(data)
}
