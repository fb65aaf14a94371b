package main

import (
	"context"
	"errors"
	"log"
	"os"
	"os/signal"
	"syscall"

	"github.com/dmitrijs2005/contactsync/internal/wscheck"
)

func main() {

	cfg, err := wscheck.LoadConfig()
	if err != nil {
		log.Printf("%v", err)
		os.Exit(1)
	}

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	err = wscheck.Check(ctx, cfg, os.Stdout)
	switch {
	case err == nil:
	case errors.Is(err, wscheck.ErrConnectTimeout):
		os.Exit(2)
	default:
		os.Exit(1)
	}
}
