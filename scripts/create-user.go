package main

import (
	"context"
	"fmt"
	"os"

	"github.com/openclaw/chat-relay-go/internal/config"
	"github.com/openclaw/chat-relay-go/internal/database"
	"github.com/openclaw/chat-relay-go/internal/repository"
	"github.com/openclaw/chat-relay-go/internal/service"
)

func main() {
	if len(os.Args) < 3 {
		fmt.Fprintf(os.Stderr, "Usage: go run scripts/create-user.go <username> <password>\n")
		os.Exit(1)
	}

	cfg, err := config.Load()
	if err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(1)
	}

	db, err := database.Connect(cfg.DatabaseDriver, cfg.DatabaseURL)
	if err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(1)
	}
	defer db.Close()

	ctx, cancel := context.WithTimeout(context.Background(), config.StoreCallTimeout)
	defer cancel()

	if err := db.Migrate(ctx); err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(1)
	}

	store := service.NewChatStore(
		db,
		repository.NewUserRepository(db.DB),
		repository.NewConversationRepository(db.DB),
		repository.NewMessageRepository(db.DB),
	)

	user, err := store.CreateUser(ctx, os.Args[1], os.Args[2])
	if err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(1)
	}

	fmt.Println(user.ID)
}
