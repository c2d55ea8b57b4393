// Package main applies or reverts the token layer database schema.
package main

import (
	"database/sql"
	"flag"
	"log"
	"os"

	"github.com/joho/godotenv"
	_ "github.com/lib/pq"

	"github.com/Issuance-Network/token_layer/internal/app/storage/migrations"
)

func main() {
	dsn := flag.String("dsn", "", "Postgres DSN (defaults to DATABASE_DSN)")
	down := flag.Bool("down", false, "Revert all migrations instead of applying them")
	flag.Parse()

	_ = godotenv.Load()

	if *dsn == "" {
		*dsn = os.Getenv("DATABASE_DSN")
	}
	if *dsn == "" {
		log.Fatal("no DSN: pass -dsn or set DATABASE_DSN")
	}

	db, err := sql.Open("postgres", *dsn)
	if err != nil {
		log.Fatalf("open database: %v", err)
	}
	defer db.Close()

	if err := db.Ping(); err != nil {
		log.Fatalf("ping database: %v", err)
	}

	if *down {
		if err := migrations.Down(db); err != nil {
			log.Fatalf("revert migrations: %v", err)
		}
		log.Println("migrations reverted")
		return
	}

	if err := migrations.Up(db); err != nil {
		log.Fatalf("apply migrations: %v", err)
	}
	log.Println("migrations applied")
}
