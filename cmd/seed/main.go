// Command seed loads the reference categories and, optionally, demo data.
package main

import (
	"context"
	"flag"
	"log"

	"forum/internal/config"
	"forum/internal/database"
	"forum/internal/seed"
)

func main() {
	members := flag.Int("members", 0, "Number of demo members to create (0 seeds categories only)")
	threads := flag.Int("threads", 20, "Number of demo threads")
	posts := flag.Int("posts", 5, "Replies per demo thread")
	likes := flag.Int("likes", 2, "Likes per demo reply")
	firstID := flag.Uint("first-id", 1000, "Identity-provider id of the first demo member")
	seedValue := flag.Int64("seed", 0, "Random seed for reproducible content (0 picks one)")
	flag.Parse()

	cfg, err := config.LoadConfig()
	if err != nil {
		log.Fatalf("Failed to load configuration: %v", err)
	}
	if cfg.IsProduction() && *members > 0 {
		log.Fatal("Refusing to create demo data in production")
	}

	db, err := database.Connect(cfg)
	if err != nil {
		log.Fatalf("Failed to connect to database: %v", err)
	}
	if err := database.Migrate(db); err != nil {
		log.Fatalf("Migration failed: %v", err)
	}

	ctx := context.Background()
	if err := seed.Categories(ctx, db); err != nil {
		log.Fatalf("Category seeding failed: %v", err)
	}
	log.Println("Reference categories seeded")

	if *members == 0 {
		return
	}

	summary, err := seed.NewFactory(db, seed.Options{
		Members:        *members,
		Threads:        *threads,
		PostsPerThread: *posts,
		LikesPerPost:   *likes,
		FirstMemberID:  uint(*firstID),
		Seed:           *seedValue,
	}).Demo(ctx)
	if err != nil {
		log.Fatalf("Demo seeding failed: %v", err)
	}
	log.Printf("Demo data: %d members, %d threads, %d posts, %d likes, %d notification events",
		summary.Members, summary.Threads, summary.Posts, summary.Likes, summary.Events)
}
