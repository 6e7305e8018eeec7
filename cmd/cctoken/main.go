// cctoken acquires and inspects OAuth2 client credentials tokens.
package main

import (
	"context"
	"log"
	"os"
	"os/signal"
	"syscall"
)

// Version is set by the build process
var Version = "dev"

func main() {
	cfg, err := loadConfig()
	if err != nil {
		log.Fatalf("Error loading configuration: %v", err)
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	if err := newRootCmd(&cfg).ExecuteContext(ctx); err != nil {
		stop()
		log.Fatalf("Error: %v", err)
	}
}
