package server

import (
	"fmt"
	"net/http"
	"net/url"
	"testing"
	"time"

	"huddle/internal/models"
	"huddle/internal/service"
	"huddle/internal/testutil"

	"github.com/gofiber/fiber/v2"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func eventPath(id uint, suffix string) string {
	return fmt.Sprintf("/api/event/%d%s", id, suffix)
}

func TestCreateEvent(t *testing.T) {
	env := newTestEnv(t)
	org := testutil.CreateUser(t, env.db, "org")
	start := time.Now().UTC().Add(24 * time.Hour).Truncate(time.Second)

	body := fiber.Map{
		"organizer":       org.ID,
		"title":           "Sunday run",
		"description":     "5k around the lake",
		"type":            "sports",
		"location":        "Serpentine",
		"locationLAT":     51.505,
		"locationLNG":     -0.166,
		"startTime":       start.Format(time.RFC3339),
		"endTime":         start.Add(2 * time.Hour).Format(time.RFC3339),
		"maxParticipants": 8,
	}
	var event models.Event
	require.Equal(t, http.StatusCreated, env.do(t, http.MethodPost, "/api/event", body, &event))
	assert.Equal(t, org.ID, event.OrganizerID)
	assert.Equal(t, []uint{org.ID}, event.Participants)
	assert.True(t, start.Equal(event.StartTime))

	bad := fiber.Map{}
	for k, v := range body {
		bad[k] = v
	}
	bad["endTime"] = start.Add(-time.Hour).Format(time.RFC3339)
	assert.Equal(t, http.StatusBadRequest, env.do(t, http.MethodPost, "/api/event", bad, nil))

	bad["endTime"] = "next tuesday"
	assert.Equal(t, http.StatusBadRequest, env.do(t, http.MethodPost, "/api/event", bad, nil))

	delete(bad, "organizer")
	bad["endTime"] = body["endTime"]
	assert.Equal(t, http.StatusBadRequest, env.do(t, http.MethodPost, "/api/event", bad, nil))
}

func TestJoinAndLeaveEvent(t *testing.T) {
	env := newTestEnv(t)
	org := testutil.CreateUser(t, env.db, "org")
	alice := testutil.CreateUser(t, env.db, "alice")
	bob := testutil.CreateUser(t, env.db, "bob")
	event := testutil.CreateEvent(t, env.db, org.ID, testutil.WithCapacity(2))

	var joined struct {
		Message string       `json:"message"`
		Event   models.Event `json:"event"`
	}
	require.Equal(t, http.StatusOK, env.do(t, http.MethodPut, eventPath(event.ID, "/join"), fiber.Map{"userId": alice.ID}, &joined))
	assert.Equal(t, "Successfully joined the event", joined.Message)
	assert.Equal(t, []uint{org.ID, alice.ID}, joined.Event.Participants)

	var errBody errorBody
	require.Equal(t, http.StatusForbidden, env.do(t, http.MethodPut, eventPath(event.ID, "/join"), fiber.Map{"userId": bob.ID}, &errBody))
	assert.Equal(t, service.MsgEventFull, errBody.Error)

	var people struct {
		Participants []models.UserSummary `json:"participants"`
	}
	require.Equal(t, http.StatusOK, env.do(t, http.MethodGet, eventPath(event.ID, "/participants"), nil, &people))
	require.Len(t, people.Participants, 2)
	assert.Equal(t, alice.ID, people.Participants[1].ID)

	require.Equal(t, http.StatusOK, env.do(t, http.MethodPut, eventPath(event.ID, "/leave"), fiber.Map{"userId": alice.ID}, &joined))
	assert.Equal(t, "Successfully left the event", joined.Message)
	assert.Equal(t, []uint{org.ID}, joined.Event.Participants)

	require.Equal(t, http.StatusForbidden, env.do(t, http.MethodPut, eventPath(event.ID, "/leave"), fiber.Map{"userId": alice.ID}, &errBody))
	assert.Equal(t, service.MsgNotParticipant, errBody.Error)

	assert.Equal(t, http.StatusNotFound, env.do(t, http.MethodPut, eventPath(event.ID+100, "/join"), fiber.Map{"userId": bob.ID}, nil))
}

func TestJoinEventRejections(t *testing.T) {
	env := newTestEnv(t)
	org := testutil.CreateUser(t, env.db, "org")
	alice := testutil.CreateUser(t, env.db, "alice")
	now := time.Now().UTC()
	ended := testutil.CreateEvent(t, env.db, org.ID, testutil.WithWindow(now.Add(-3*time.Hour), now.Add(-time.Hour)))
	running := testutil.CreateEvent(t, env.db, org.ID, testutil.WithWindow(now.Add(-time.Hour), now.Add(time.Hour)))

	tests := []struct {
		name     string
		eventID  uint
		userID   uint
		wantCode int
		wantMsg  string
	}{
		{"ended", ended.ID, alice.ID, http.StatusForbidden, service.MsgEventEnded},
		{"organizer already on roster", running.ID, org.ID, http.StatusForbidden, service.MsgAlreadyParticipant},
		{"started but not ended", running.ID, alice.ID, http.StatusOK, ""},
		{"unknown user", running.ID, alice.ID + 100, http.StatusNotFound, ""},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			var body errorBody
			require.Equal(t, tt.wantCode, env.do(t, http.MethodPut, eventPath(tt.eventID, "/join"), fiber.Map{"userId": tt.userID}, &body))
			if tt.wantMsg != "" {
				assert.Equal(t, tt.wantMsg, body.Error)
			}
		})
	}
}

func TestGetEventAndDetails(t *testing.T) {
	env := newTestEnv(t)
	org := testutil.CreateUser(t, env.db, "org")
	event := testutil.CreateEvent(t, env.db, org.ID)

	var withOrg map[string]interface{}
	require.Equal(t, http.StatusOK, env.do(t, http.MethodGet, eventPath(event.ID, ""), nil, &withOrg))
	assert.Equal(t, event.Title, withOrg["title"])

	var details map[string]interface{}
	require.Equal(t, http.StatusOK, env.do(t, http.MethodGet, fmt.Sprintf("/api/event/details/%d", event.ID), nil, &details))
	participants, ok := details["participants"].([]interface{})
	require.True(t, ok)
	assert.Len(t, participants, 1)

	assert.Equal(t, http.StatusNotFound, env.do(t, http.MethodGet, eventPath(event.ID+1, ""), nil, nil))
}

func TestUpdateEvent(t *testing.T) {
	env := newTestEnv(t)
	org := testutil.CreateUser(t, env.db, "org")
	event := testutil.CreateEvent(t, env.db, org.ID)

	var updated models.Event
	require.Equal(t, http.StatusOK, env.do(t, http.MethodPut, eventPath(event.ID, ""), fiber.Map{"title": "Renamed"}, &updated))
	assert.Equal(t, "Renamed", updated.Title)

	var errBody errorBody
	inverted := fiber.Map{"endTime": event.StartTime.Add(-time.Hour).Format(time.RFC3339)}
	require.Equal(t, http.StatusBadRequest, env.do(t, http.MethodPut, eventPath(event.ID, ""), inverted, &errBody))
	assert.Equal(t, "VALIDATION_ERROR", errBody.Code)
}

func TestFilterSearchAndNearby(t *testing.T) {
	env := newTestEnv(t)
	org := testutil.CreateUser(t, env.db, "org")
	now := time.Now().UTC()
	near := testutil.CreateEvent(t, env.db, org.ID, testutil.WithCoordinates(51.5072, -0.1276))
	far := testutil.CreateEvent(t, env.db, org.ID, testutil.WithCoordinates(40.7128, -74.0060),
		testutil.WithWindow(now.Add(48*time.Hour), now.Add(50*time.Hour)))

	var events []models.Event
	filter := fiber.Map{"maxDistance": 50, "location": fiber.Map{"lat": 51.5, "lng": -0.12}}
	require.Equal(t, http.StatusOK, env.do(t, http.MethodPost, "/api/event/filter", filter, &events))
	require.Len(t, events, 1)
	assert.Equal(t, near.ID, events[0].ID)

	filter = fiber.Map{"startDate": now.Add(24 * time.Hour).Format(time.RFC3339)}
	require.Equal(t, http.StatusOK, env.do(t, http.MethodPost, "/api/event/filter", filter, &events))
	require.Len(t, events, 1)
	assert.Equal(t, far.ID, events[0].ID)

	assert.Equal(t, http.StatusBadRequest, env.do(t, http.MethodPost, "/api/event/filter", fiber.Map{"startDate": "soon"}, nil))

	path := fmt.Sprintf("/api/event/nearby/%d?lat=51.5&lng=-0.12&distance=25", org.ID)
	require.Equal(t, http.StatusOK, env.do(t, http.MethodGet, path, nil, &events))
	require.Len(t, events, 1)
	assert.Equal(t, near.ID, events[0].ID)

	assert.Equal(t, http.StatusBadRequest, env.do(t, http.MethodGet, fmt.Sprintf("/api/event/nearby/%d", org.ID), nil, nil))
	assert.Equal(t, http.StatusNotFound, env.do(t, http.MethodGet, fmt.Sprintf("/api/event/nearby/%d?lat=1&lng=1", org.ID+50), nil, nil))

	require.Equal(t, http.StatusOK, env.do(t, http.MethodGet, "/api/event/search?query="+url.QueryEscape(near.Title), nil, &events))
	require.Len(t, events, 1)
	assert.Equal(t, near.ID, events[0].ID)

	var distances []map[string]interface{}
	require.Equal(t, http.StatusOK, env.do(t, http.MethodGet, fmt.Sprintf("/api/event/user/%d", org.ID), nil, &distances))
	assert.Len(t, distances, 2)

	var mapData map[string]interface{}
	require.Equal(t, http.StatusOK, env.do(t, http.MethodGet, "/api/event/mapData", nil, &mapData))
	assert.Contains(t, mapData, "events")
}

func TestParseDate(t *testing.T) {
	got, err := parseDate("2026-03-14", "startDate")
	require.NoError(t, err)
	assert.Equal(t, time.Date(2026, 3, 14, 0, 0, 0, 0, time.UTC), *got)

	got, err = parseDate("2026-03-14T09:30:00+01:00", "startDate")
	require.NoError(t, err)
	assert.Equal(t, time.Date(2026, 3, 14, 8, 30, 0, 0, time.UTC), *got)

	got, err = parseDate("  ", "startDate")
	require.NoError(t, err)
	assert.Nil(t, got)

	_, err = parseDate("14/03/2026", "startDate")
	require.Error(t, err)
	assert.Equal(t, "Invalid startDate", err.Error())
}
