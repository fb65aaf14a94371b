package main

import (
	"context"
	"errors"
	"io/fs"
	"log"
	"os"

	"github.com/dmitrijs2005/contactsync/internal/server"
	"github.com/dmitrijs2005/contactsync/internal/server/config"
	"github.com/joho/godotenv"
)

func main() {

	// .env is optional
	if err := godotenv.Load(); err != nil && !errors.Is(err, fs.ErrNotExist) {
		log.Printf("load .env: %v", err)
	}

	ctx := context.Background()
	cfg, err := config.LoadConfig()
	if err != nil {
		log.Printf("%v", err)
		os.Exit(2)
	}

	app, err := server.NewApp(cfg)
	if err != nil {
		log.Printf("%v", err)
		os.Exit(1)
	}

	if err := app.Run(ctx); err != nil {
		log.Printf("%v", err)
		os.Exit(1)
	}
}
