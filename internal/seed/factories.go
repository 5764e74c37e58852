// Package seed provides helpers to create demo data for the application
// database. These helpers are intended for development and testing only.
package seed

import (
	"context"
	"fmt"
	"strings"
	"time"

	"huddle/internal/models"
	"huddle/internal/repository"

	"github.com/brianvoe/gofakeit/v6"
	"golang.org/x/crypto/bcrypt"
)

// DefaultPassword is the password of every seeded user.
const DefaultPassword = "password123"

var eventTypes = []string{"sports", "music", "food", "social", "outdoor"}

var eventKinds = map[string][]string{
	"sports":  {"football", "running", "tennis", "climbing"},
	"music":   {"gig", "open mic", "jam session"},
	"food":    {"supper club", "street food", "tasting"},
	"social":  {"board games", "pub quiz", "book club"},
	"outdoor": {"hike", "picnic", "cycling"},
}

// Factory builds domain entities and persists them through the repositories.
type Factory struct {
	faker  *gofakeit.Faker
	opts   Options
	users  repository.UserRepository
	events repository.EventRepository
	chats  repository.EventChatRepository

	hashed string
	n      int
}

// NewFactory creates a Factory. A zero opts.RandSeed seeds from the clock.
func NewFactory(users repository.UserRepository, events repository.EventRepository, chats repository.EventChatRepository, opts Options) (*Factory, error) {
	seed := opts.RandSeed
	if seed == 0 {
		seed = time.Now().UnixNano()
	}
	f := &Factory{
		faker:  gofakeit.New(seed),
		opts:   opts,
		users:  users,
		events: events,
		chats:  chats,
		hashed: DefaultPassword,
	}
	// Password handling: allow skipping bcrypt in dev fast mode
	if !opts.SkipBcrypt {
		h, err := bcrypt.GenerateFromPassword([]byte(DefaultPassword), bcrypt.DefaultCost)
		if err != nil {
			return nil, err
		}
		f.hashed = string(h)
	}
	return f, nil
}

// near returns a point within roughly spread degrees of the seed centre.
func (f *Factory) near(spread float64) (float64, float64) {
	lat := f.opts.CenterLat + f.faker.Float64Range(-spread, spread)
	lng := f.opts.CenterLng + f.faker.Float64Range(-spread, spread)
	return lat, lng
}

// CreateUser persists a user placed near the seed centre. Overrides run
// before the insert.
func (f *Factory) CreateUser(ctx context.Context, overrides ...func(*models.User)) (*models.User, error) {
	f.n++
	name := strings.ToLower(f.faker.Username())
	if len(name) > 14 {
		name = name[:14]
	}
	name = fmt.Sprintf("%s%d", name, f.n)
	lat, lng := f.near(0.15)

	user := &models.User{
		Username:       name,
		Email:          name + "@example.com",
		Password:       f.hashed,
		ProfilePicture: fmt.Sprintf("https://i.pravatar.cc/150?u=%s", name),
		LocationLat:    &lat,
		LocationLng:    &lng,
	}
	for _, override := range overrides {
		override(user)
	}
	if err := f.users.Create(ctx, user); err != nil {
		return nil, err
	}
	return user, nil
}

// CreateEvent persists an event organised by organizer, starting somewhere
// between two days ago and two weeks from now.
func (f *Factory) CreateEvent(ctx context.Context, organizer *models.User, overrides ...func(*models.Event)) (*models.Event, error) {
	kind := f.faker.RandomString(eventTypes)
	subtype := f.faker.RandomString(eventKinds[kind])

	start := time.Now().UTC().Truncate(time.Hour).
		Add(time.Duration(f.faker.Number(-48, 14*24)) * time.Hour)
	lat, lng := f.near(0.1)
	// Backdate past events so their rosters predate the start.
	created := time.Now().UTC()
	if early := start.Add(-2 * time.Hour); early.Before(created) {
		created = early
	}

	event := &models.Event{
		Title:           strings.TrimSuffix(f.faker.Sentence(3), "."),
		Description:     f.faker.Paragraph(1, 2, 8, " "),
		Type:            kind,
		Subtype:         &subtype,
		Location:        f.faker.Street(),
		LocationLat:     &lat,
		LocationLng:     &lng,
		EntryFee:        float64(f.faker.Number(0, 4) * 5),
		StartTime:       start,
		EndTime:         start.Add(time.Duration(f.faker.Number(1, 4)) * time.Hour),
		MaxParticipants: f.faker.Number(4, 20),
		OrganizerID:     organizer.ID,
		CreatedAt:       created,
	}
	for _, override := range overrides {
		override(event)
	}
	if err := f.events.Create(ctx, event); err != nil {
		return nil, err
	}
	return event, nil
}

// CreateChatMessage persists a message from sender in the event's chat.
func (f *Factory) CreateChatMessage(ctx context.Context, event *models.Event, senderID uint, at time.Time) (*models.ChatMessage, error) {
	msg := &models.ChatMessage{
		EventID:   event.ID,
		SenderID:  senderID,
		Message:   f.faker.Sentence(f.faker.Number(3, 12)),
		Timestamp: at,
	}
	if err := f.chats.Create(ctx, msg); err != nil {
		return nil, err
	}
	return msg, nil
}

// Sentence returns a short chat line.
func (f *Factory) Sentence() string {
	return f.faker.Sentence(f.faker.Number(3, 10))
}

// Intn returns a pseudo-random number in [0, n).
func (f *Factory) Intn(n int) int {
	if n <= 0 {
		return 0
	}
	return f.faker.Number(0, n-1)
}
