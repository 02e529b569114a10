package main

import (
	"context"
	"errors"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"strings"
	"syscall"
	"time"

	"github.com/aws/aws-sdk-go-v2/config"
	awsdynamodb "github.com/aws/aws-sdk-go-v2/service/dynamodb"
	awss3 "github.com/aws/aws-sdk-go-v2/service/s3"
	awsssm "github.com/aws/aws-sdk-go-v2/service/ssm"
	"github.com/joho/godotenv"

	"kitsune-backend/handler"
	"kitsune-backend/internal/integrations/elevenlabs"
	"kitsune-backend/internal/integrations/llm"
	"kitsune-backend/internal/integrations/paramstore"
	"kitsune-backend/internal/integrations/s3store"
	"kitsune-backend/internal/repository"
	"kitsune-backend/internal/usecase"
)

func main() {
	ctx := context.Background()

	_ = godotenv.Load()

	// ---- Configuration (read only here) ----
	port := envOr("PORT", "8000")
	chatTable := mustEnv("CHAT_TABLE")
	audioBucket := mustEnv("AUDIO_BUCKET")
	paramPrefix := mustEnv("PARAM_PREFIX")
	allowedOrigins := splitCSV(envOr("ALLOWED_ORIGINS", "http://localhost:3000"))

	// ---- AWS SDK config ----
	cfg, err := config.LoadDefaultConfig(ctx)
	if err != nil {
		slog.Error("failed to load AWS config", "err", err)
		os.Exit(1)
	}

	// ---- Clients ----
	ssmClient, err := paramstore.New(awsssm.NewFromConfig(cfg))
	if err != nil {
		slog.Error("failed to create SSM client", "err", err)
		os.Exit(1)
	}

	messageStore, err := repository.New(awsdynamodb.NewFromConfig(cfg), chatTable)
	if err != nil {
		slog.Error("failed to create message store", "err", err)
		os.Exit(1)
	}

	llmClient, err := llm.NewClient(ssmClient, paramPrefix)
	if err != nil {
		slog.Error("failed to create LLM client", "err", err)
		os.Exit(1)
	}

	ttsClient, err := elevenlabs.NewClient(ssmClient, paramPrefix)
	if err != nil {
		slog.Error("failed to create ElevenLabs client", "err", err)
		os.Exit(1)
	}

	s3Client := awss3.NewFromConfig(cfg)
	audioStore, err := s3store.New(s3Client, awss3.NewPresignClient(s3Client), audioBucket)
	if err != nil {
		slog.Error("failed to create audio store", "err", err)
		os.Exit(1)
	}

	// ---- Service and handler ----
	chatService, err := usecase.NewChatService(messageStore, llmClient, ttsClient, audioStore, slog.Default())
	if err != nil {
		slog.Error("failed to create chat service", "err", err)
		os.Exit(1)
	}

	h, err := handler.NewHandler(chatService, slog.Default())
	if err != nil {
		slog.Error("failed to create handler", "err", err)
		os.Exit(1)
	}

	server := &http.Server{
		Addr:    ":" + port,
		Handler: handler.NewRouter(h, allowedOrigins),
	}

	go func() {
		slog.Info("server listening", "port", port)
		if err := server.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			slog.Error("server failed", "err", err)
			os.Exit(1)
		}
	}()

	stop := make(chan os.Signal, 1)
	signal.Notify(stop, os.Interrupt, syscall.SIGTERM)
	<-stop

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	slog.Info("shutting down server")
	if err := server.Shutdown(shutdownCtx); err != nil {
		slog.Error("failed to shut down server", "err", err)
		os.Exit(1)
	}
}

func mustEnv(key string) string {
	v := os.Getenv(key)
	if v == "" {
		slog.Error("required environment variable is not set", "key", key)
		os.Exit(1)
	}
	return v
}

func envOr(key, def string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return def
}

func splitCSV(v string) []string {
	var out []string
	for _, part := range strings.Split(v, ",") {
		if p := strings.TrimSpace(part); p != "" {
			out = append(out, p)
		}
	}
	return out
}
