// Command seed fills the development database with fake users and posts.
package main

import (
	"flag"
	"log"

	"tidepool/internal/config"
	"tidepool/internal/database"
	"tidepool/internal/seed"
)

func main() {
	users := flag.Int("users", 8, "number of users to create")
	posts := flag.Int("posts", 6, "posts per user")
	flag.Parse()

	cfg, err := config.LoadConfig()
	if err != nil {
		log.Fatalf("Failed to load configuration: %v", err)
	}
	if cfg.IsProduction() {
		log.Fatal("Refusing to seed a production database")
	}

	db, err := database.Connect(cfg)
	if err != nil {
		log.Fatalf("Failed to connect to database: %v", err)
	}

	opts := seed.DefaultOptions()
	opts.Users = *users
	opts.PostsPerUser = *posts

	if err := seed.Run(db, opts); err != nil {
		log.Fatalf("Seeding failed: %v", err)
	}
	log.Printf("Seeded %d users with %d posts each (password %q)", opts.Users, opts.PostsPerUser, opts.Password)
}
