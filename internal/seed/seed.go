package seed

import (
	"context"
	"errors"
	"fmt"
	"log"
	"time"

	"huddle/internal/models"
	"huddle/internal/repository"

	"gorm.io/gorm"
)

// Options configure the seeder.
type Options struct {
	NumUsers  int
	NumEvents int
	// MessagesPerChat caps the messages written to each event and private chat.
	MessagesPerChat int
	SkipBcrypt      bool
	// RandSeed makes a run reproducible; zero seeds from the clock.
	RandSeed int64

	CenterLat float64
	CenterLng float64
}

// DefaultOptions returns a small London-centred data set.
func DefaultOptions() Options {
	return Options{
		NumUsers:        30,
		NumEvents:       15,
		MessagesPerChat: 5,
		CenterLat:       models.DefaultLocationLat,
		CenterLng:       models.DefaultLocationLng,
	}
}

// Result counts what a run created.
type Result struct {
	Users        []*models.User
	Events       []*models.Event
	Follows      int
	Joins        int
	ChatMessages int
	PrivateChats int
}

// Seeder writes a coherent social graph: users, follow edges (with a ring of
// mutual follows so private chats are possible), events with rosters, and
// chat history.
type Seeder struct {
	db      *gorm.DB
	opts    Options
	factory *Factory
	follows repository.FollowRepository
	events  repository.EventRepository
	private repository.PrivateChatRepository
}

// NewSeeder builds a seeder over db. Private chats go to private, which may
// be a Mongo-backed store; nil selects the SQL store.
func NewSeeder(db *gorm.DB, private repository.PrivateChatRepository, opts Options) (*Seeder, error) {
	if opts.CenterLat == 0 && opts.CenterLng == 0 {
		opts.CenterLat, opts.CenterLng = models.DefaultLocationLat, models.DefaultLocationLng
	}
	if private == nil {
		private = repository.NewPrivateChatRepository(db)
	}
	events := repository.NewEventRepository(db)
	factory, err := NewFactory(repository.NewUserRepository(db), events, repository.NewEventChatRepository(db), opts)
	if err != nil {
		return nil, err
	}
	return &Seeder{
		db:      db,
		opts:    opts,
		factory: factory,
		follows: repository.NewFollowRepository(db),
		events:  events,
		private: private,
	}, nil
}

// ClearAll removes every row from the relational tables, children first.
// Private chats held in Mongo are left alone.
func (s *Seeder) ClearAll() error {
	log.Println("🗑️  Clearing existing data...")
	tables := []interface{}{
		&models.PrivateMessage{},
		&models.PrivateChat{},
		&models.ChatMessage{},
		&models.EventParticipant{},
		&models.Event{},
		&models.Follow{},
		&models.User{},
	}
	return s.db.Transaction(func(tx *gorm.DB) error {
		for _, t := range tables {
			if err := tx.Session(&gorm.Session{AllowGlobalUpdate: true}).Delete(t).Error; err != nil {
				return fmt.Errorf("clear %T: %w", t, err)
			}
		}
		return nil
	})
}

// Run seeds users, the follow graph, events and chats.
func (s *Seeder) Run(ctx context.Context) (*Result, error) {
	log.Printf("🌱 Seeding %d users and %d events...", s.opts.NumUsers, s.opts.NumEvents)
	res := &Result{}

	for i := 0; i < s.opts.NumUsers; i++ {
		user, err := s.factory.CreateUser(ctx)
		if err != nil {
			return res, fmt.Errorf("failed to create user: %w", err)
		}
		res.Users = append(res.Users, user)
	}
	log.Printf("✓ %d users created", len(res.Users))

	mutualPairs, err := s.seedFollows(ctx, res)
	if err != nil {
		return res, err
	}
	log.Printf("✓ %d follow edges created", res.Follows)

	if err := s.seedEvents(ctx, res); err != nil {
		return res, err
	}
	log.Printf("✓ %d events created, %d joins, %d chat messages", len(res.Events), res.Joins, res.ChatMessages)

	if err := s.seedPrivateChats(ctx, res, mutualPairs); err != nil {
		return res, err
	}
	log.Printf("✓ %d private chats created", res.PrivateChats)

	log.Println("🎉 Database seeding completed successfully!")
	return res, nil
}

// seedFollows links each user to its ring neighbour in both directions and
// adds a one-way edge two steps ahead. It returns the mutual pairs.
func (s *Seeder) seedFollows(ctx context.Context, res *Result) ([][2]uint, error) {
	n := len(res.Users)
	seen := map[[2]uint]struct{}{}
	follow := func(a, b uint) error {
		if a == b {
			return nil
		}
		if _, ok := seen[[2]uint{a, b}]; ok {
			return nil
		}
		seen[[2]uint{a, b}] = struct{}{}
		if err := s.follows.Follow(ctx, a, b); err != nil && !errors.Is(err, repository.ErrAlreadyFollowing) {
			return fmt.Errorf("failed to follow %d -> %d: %w", a, b, err)
		}
		res.Follows++
		return nil
	}

	var pairs [][2]uint
	for i, u := range res.Users {
		next := res.Users[(i+1)%n]
		skip := res.Users[(i+2)%n]
		if u.ID != next.ID {
			if _, ok := seen[[2]uint{next.ID, u.ID}]; !ok {
				pairs = append(pairs, [2]uint{u.ID, next.ID})
			}
		}
		for _, edge := range [][2]uint{{u.ID, next.ID}, {next.ID, u.ID}, {u.ID, skip.ID}} {
			if err := follow(edge[0], edge[1]); err != nil {
				return nil, err
			}
		}
	}
	return pairs, nil
}

func (s *Seeder) seedEvents(ctx context.Context, res *Result) error {
	if len(res.Users) == 0 {
		return nil
	}
	for i := 0; i < s.opts.NumEvents; i++ {
		organizer := res.Users[s.factory.Intn(len(res.Users))]
		event, err := s.factory.CreateEvent(ctx, organizer)
		if err != nil {
			return fmt.Errorf("failed to create event: %w", err)
		}
		res.Events = append(res.Events, event)

		// Joins follow the organizer's, a minute apart.
		joinAt := event.CreatedAt
		want := s.factory.Intn(event.MaxParticipants)
		roster := []uint{organizer.ID}
		for _, idx := range s.pick(len(res.Users), want) {
			uid := res.Users[idx].ID
			joinAt = joinAt.Add(time.Minute)
			err := s.events.AddParticipant(ctx, event.ID, uid, joinAt)
			switch {
			case err == nil:
				res.Joins++
				roster = append(roster, uid)
			case errors.Is(err, repository.ErrAlreadyParticipant):
			case errors.Is(err, repository.ErrRosterFull):
			default:
				return fmt.Errorf("failed to join event %d: %w", event.ID, err)
			}
		}

		for m := 0; m < s.factory.Intn(s.opts.MessagesPerChat+1); m++ {
			sender := roster[s.factory.Intn(len(roster))]
			at := joinAt.Add(time.Duration(m) * time.Minute)
			if _, err := s.factory.CreateChatMessage(ctx, event, sender, at); err != nil {
				return fmt.Errorf("failed to create chat message: %w", err)
			}
			res.ChatMessages++
		}
	}
	return nil
}

// seedPrivateChats opens a chat for every other mutual pair.
func (s *Seeder) seedPrivateChats(ctx context.Context, res *Result, pairs [][2]uint) error {
	for i, pair := range pairs {
		if i%2 == 1 {
			continue
		}
		chat := models.NewPrivateChat(pair[0], pair[1])
		chat.CreatedAt = time.Now().UTC()
		if err := s.private.Create(ctx, chat); err != nil {
			if errors.Is(err, repository.ErrDuplicatePair) {
				continue
			}
			return fmt.Errorf("failed to create private chat: %w", err)
		}
		res.PrivateChats++

		for m := 0; m < s.opts.MessagesPerChat; m++ {
			msg := &models.PrivateMessage{
				SenderID:  pair[m%2],
				Message:   s.factory.Sentence(),
				Timestamp: chat.CreatedAt.Add(time.Duration(m) * time.Second),
			}
			if err := s.private.AppendMessage(ctx, chat.ID, msg); err != nil {
				return fmt.Errorf("failed to append private message: %w", err)
			}
		}
	}
	return nil
}

// pick returns up to k distinct indexes in [0, n).
func (s *Seeder) pick(n, k int) []int {
	if k > n {
		k = n
	}
	idx := make([]int, n)
	for i := range idx {
		idx[i] = i
	}
	for i := 0; i < k; i++ {
		j := i + s.factory.Intn(n-i)
		idx[i], idx[j] = idx[j], idx[i]
	}
	return idx[:k]
}
