package main

import (
	"context"
	"log/slog"
	"os"
	"time"

	"github.com/aws/aws-lambda-go/lambda"
	"github.com/aws/aws-sdk-go-v2/config"
	awsdynamodb "github.com/aws/aws-sdk-go-v2/service/dynamodb"
	awsssm "github.com/aws/aws-sdk-go-v2/service/ssm"

	"whats-bot/handler"
	"whats-bot/internal/credentials"
	"whats-bot/internal/integrations/gemini"
	"whats-bot/internal/integrations/whatsapp"
	"whats-bot/internal/paramstore"
	"whats-bot/internal/relay"
	"whats-bot/internal/repository"
)

func main() {
	ctx := context.Background()

	// ---- Configuration (read only here) ----
	historyTable := mustEnv("HISTORY_TABLE")
	paramPrefix := mustEnv("PARAM_PREFIX")
	verifyToken := mustEnv("VERIFY_TOKEN")
	appSecret := os.Getenv("APP_SECRET")
	geminiModel := os.Getenv("GEMINI_MODEL")
	credentialTTL := envDuration("CREDENTIAL_TTL", 0)

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
	store, err := repository.New(awsdynamodb.NewFromConfig(cfg), historyTable)
	if err != nil {
		slog.Error("failed to create history store", "err", err)
		os.Exit(1)
	}
	source, err := credentials.NewParamStoreSource(ssmClient, paramPrefix)
	if err != nil {
		slog.Error("failed to create credential source", "err", err)
		os.Exit(1)
	}
	creds, err := credentials.NewCache(source, credentialTTL)
	if err != nil {
		slog.Error("failed to create credential cache", "err", err)
		os.Exit(1)
	}
	generator, err := gemini.NewClient(ssmClient, paramPrefix, gemini.WithModel(geminiModel))
	if err != nil {
		slog.Error("failed to create gemini client", "err", err)
		os.Exit(1)
	}
	messenger := whatsapp.NewClient()

	// ---- Handler ----
	svc, err := relay.NewService(store, generator, messenger, creds, slog.Default())
	if err != nil {
		slog.Error("failed to create relay service", "err", err)
		os.Exit(1)
	}
	h, err := handler.NewHandler(svc, verifyToken, appSecret)
	if err != nil {
		slog.Error("failed to create handler", "err", err)
		os.Exit(1)
	}

	lambda.Start(h.Handle)
}

func mustEnv(key string) string {
	v := os.Getenv(key)
	if v == "" {
		slog.Error("required environment variable is not set", "key", key)
		os.Exit(1)
	}
	return v
}

func envDuration(key string, def time.Duration) time.Duration {
	v := os.Getenv(key)
	if v == "" {
		return def
	}
	d, err := time.ParseDuration(v)
	if err != nil {
		return def
	}
	return d
}
