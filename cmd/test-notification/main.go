package main

import (
	"context"
	"flag"
	"fmt"
	"log"
	"time"

	"go.uber.org/zap"

	"github.com/garyjia/approvalflow/internal/config"
	"github.com/garyjia/approvalflow/internal/infrastructure/directory"
	"github.com/garyjia/approvalflow/internal/infrastructure/external/lark"
)

// Sends one Lark IM message to a configured user, outside the engine.
// Useful to check app credentials and a user's open_id before go-live.
func main() {
	configPath := flag.String("config", "configs/config.yaml", "path to the YAML configuration file")
	userID := flag.String("user", "", "directory user id to message")
	text := flag.String("text", "Approval notifications are connected.", "message body")
	flag.Parse()

	if *userID == "" {
		log.Fatal("-user is required")
	}

	cfg, err := config.Load(*configPath)
	if err != nil {
		log.Fatalf("Failed to load config: %v", err)
	}
	if !cfg.Lark.Enabled {
		log.Fatal("lark.enabled is false in configuration")
	}

	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()

	contact, err := directory.NewStatic(cfg.Directory.Users).Contact(ctx, *userID)
	if err != nil {
		log.Fatalf("Failed to look up user: %v", err)
	}
	if contact == nil || contact.LarkOpenID == "" {
		log.Fatalf("User %q is unknown or has no lark_open_id", *userID)
	}

	logger, err := zap.NewDevelopment()
	if err != nil {
		log.Fatalf("Failed to create logger: %v", err)
	}
	defer logger.Sync()

	sdk := lark.NewSDKClient(lark.Config{
		AppID:      cfg.Lark.AppID,
		AppSecret:  cfg.Lark.AppSecret,
		BaseURL:    cfg.Lark.BaseURL,
		APITimeout: cfg.Lark.APITimeout,
	}, logger)

	fmt.Printf("Sending test message to %s (%s)\n", contact.Name, contact.LarkOpenID)
	if err := lark.NewMessenger(sdk, logger).SendMessage(ctx, contact.LarkOpenID, *text); err != nil {
		log.Fatalf("Send failed: %v", err)
	}
	fmt.Println("✓ Message sent")
}
