package main

import (
	"log"
	"os"

	"github.com/jmoiron/sqlx"
	"github.com/joho/godotenv"
	"github.com/klipach/chatter/pgstore"
	_ "github.com/lib/pq"
)

// DATABASE_URL=postgres://... go run ./cmd/migrate
func main() {
	_ = godotenv.Load()

	dsn := os.Getenv("DATABASE_URL")
	if dsn == "" {
		log.Fatalf("DATABASE_URL is not set")
	}

	db, err := sqlx.Connect("postgres", dsn)
	if err != nil {
		log.Fatalf("failed to connect: %v", err)
	}
	defer db.Close()

	db.MustExec(pgstore.Schema)
	log.Printf("schema applied")
}
