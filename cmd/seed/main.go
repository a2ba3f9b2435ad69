// Command main runs the database seeder for the Atrium portal.
package main

import (
	"flag"
	"log"

	"atrium/internal/config"
	"atrium/internal/database"
	"atrium/internal/seed"
)

func main() {
	numUsers := flag.Int("users", 25, "Number of users to create")
	numTiles := flag.Int("tiles", 0, "Number of catalog tiles to create (0 = all known apps)")
	numRequests := flag.Int("requests", 30, "Number of app requests to create")
	shouldClean := flag.Bool("clean", true, "Clean database before seeding")
	flag.Parse()

	log.Printf("seeding demo data: users=%d tiles=%d requests=%d clean=%v",
		*numUsers, *numTiles, *numRequests, *shouldClean)

	cfg, err := config.LoadConfig()
	if err != nil {
		log.Fatalf("Failed to load configuration: %v", err)
	}
	if cfg.IsProduction() {
		log.Fatal("refusing to seed a production database")
	}

	db, err := database.Connect(cfg)
	if err != nil {
		log.Fatalf("Failed to connect to database: %v", err)
	}

	if err := seed.Run(db, seed.Options{
		NumUsers:    *numUsers,
		NumTiles:    *numTiles,
		NumRequests: *numRequests,
		ShouldClean: *shouldClean,
	}); err != nil {
		log.Fatalf("Seeding failed: %v", err)
	}

	log.Println("done; all seeded users share the password: atrium-demo")
}
