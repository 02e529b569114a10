package main

import (
	"context"
	"log/slog"
	"os"

	"github.com/aws/aws-sdk-go-v2/config"
	awsdynamodb "github.com/aws/aws-sdk-go-v2/service/dynamodb"
	"github.com/joho/godotenv"

	"kitsune-backend/internal/repository"
)

// One-shot provisioning of the chat message table. Safe to run against an
// account where the table already exists.
func main() {
	ctx := context.Background()

	_ = godotenv.Load()

	chatTable := os.Getenv("CHAT_TABLE")
	if chatTable == "" {
		slog.Error("required environment variable is not set", "key", "CHAT_TABLE")
		os.Exit(1)
	}

	cfg, err := config.LoadDefaultConfig(ctx)
	if err != nil {
		slog.Error("failed to load AWS config", "err", err)
		os.Exit(1)
	}

	store, err := repository.New(awsdynamodb.NewFromConfig(cfg), chatTable)
	if err != nil {
		slog.Error("failed to create message store", "err", err)
		os.Exit(1)
	}

	if err := store.CreateChatTable(ctx); err != nil {
		slog.Error("failed to create chat table", "err", err)
		os.Exit(1)
	}

	slog.Info("chat table ready", "table", chatTable)
}
