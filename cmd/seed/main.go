// Command main runs the database seeder for Huddle.
package main

import (
	"context"
	"flag"
	"log"
	"time"

	"huddle/internal/bootstrap"
	"huddle/internal/config"
	"huddle/internal/seed"
)

func main() {
	opts := seed.DefaultOptions()

	// Parse command line flags
	flag.IntVar(&opts.NumUsers, "users", opts.NumUsers, "Number of users to create")
	flag.IntVar(&opts.NumEvents, "events", opts.NumEvents, "Number of events to create")
	flag.IntVar(&opts.MessagesPerChat, "messages", opts.MessagesPerChat, "Messages per event and private chat")
	flag.Int64Var(&opts.RandSeed, "rand-seed", 0, "Random seed for a reproducible run (0 = clock)")
	flag.BoolVar(&opts.SkipBcrypt, "fast", false, "Store the plain password instead of a bcrypt hash")
	shouldClean := flag.Bool("clean", true, "Clean database before seeding")
	flag.Parse()

	log.Println("🌱 Database Seeder")
	log.Println("==================")
	log.Printf("Target: %d users, %d events, clean=%v\n", opts.NumUsers, opts.NumEvents, *shouldClean)

	// Load configuration
	cfg, err := config.LoadConfig()
	if err != nil {
		log.Fatalf("Failed to load configuration: %v", err)
	}

	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Minute)
	defer cancel()

	// Connect to the SQL database, Redis and the optional Mongo chat store
	rt, err := bootstrap.InitRuntime(ctx, cfg, bootstrap.Options{})
	if err != nil {
		log.Fatalf("Failed to initialize runtime: %v", err)
	}
	defer rt.Close(context.Background())

	// Run seeder
	s, err := seed.NewSeeder(rt.DB, rt.PrivateChats, opts)
	if err != nil {
		log.Fatalf("❌ Seeder setup failed: %v", err)
	}

	if *shouldClean {
		if err := s.ClearAll(); err != nil {
			log.Fatalf("❌ Cleanup failed: %v", err)
		}
	}

	if _, err := s.Run(ctx); err != nil {
		log.Fatalf("❌ Seeding failed: %v", err)
	}

	log.Println("✨ All done! Your database is now populated with test data.")
	log.Printf("📧 All test users have the password: %s", seed.DefaultPassword)
}
