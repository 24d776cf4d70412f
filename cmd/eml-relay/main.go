// Package main is the entry point for the eml-relay handler. It runs as an
// AWS Lambda by default; with -event it performs one local invocation from
// a notification JSON file instead.
package main

import (
	"context"
	"encoding/json"
	"flag"
	"fmt"
	"log/slog"
	"os"

	"github.com/aws/aws-lambda-go/lambda"

	"github.com/novacomp/eml-relay/internal/config"
	"github.com/novacomp/eml-relay/internal/event"
	"github.com/novacomp/eml-relay/internal/notify"
	"github.com/novacomp/eml-relay/internal/relay"
	"github.com/novacomp/eml-relay/internal/storage"
)

func main() {
	configPath := flag.String("config", "", "path to YAML configuration file (optional)")
	eventPath := flag.String("event", "", "path to a notification JSON file for a local one-shot run")
	flag.Parse()

	cfg, err := loadConfig(*configPath)
	if err != nil {
		slog.Error("failed to load configuration", "error", err)
		os.Exit(1)
	}

	// Setup structured logging
	setupLogger(cfg.Logging.Level)

	if err := cfg.Validate(); err != nil {
		slog.Error("invalid configuration", "error", err)
		os.Exit(1)
	}

	ctx := context.Background()

	store, err := selectStore(ctx, cfg)
	if err != nil {
		slog.Error("failed to create storage backend", "error", err)
		os.Exit(1)
	}

	dispatcher := relay.New(relay.Config{
		Fetcher:      store,
		Writer:       store,
		TargetBucket: cfg.Storage.TargetBucket,
		BodyBucket:   cfg.Storage.BodyBucket,
		Logger:       slog.Default(),
	})

	var notifier *notify.Notifier
	if cfg.NotifyConfigured() {
		notifier, err = notify.New(ctx, notify.Config{
			Region:          cfg.Notify.Region,
			AccessKeyID:     cfg.Notify.AccessKeyID,
			SecretAccessKey: cfg.Notify.SecretAccessKey,
			Sender:          cfg.Notify.Sender,
			Recipient:       cfg.Notify.Recipient,
		})
		if err != nil {
			slog.Error("failed to create notifier", "error", err)
			os.Exit(1)
		}
		slog.Info("run notices enabled", "recipient", cfg.Notify.Recipient)
	}

	h := handler{dispatcher: dispatcher, notifier: notifier}

	slog.Info("starting eml-relay",
		"storage", cfg.Storage.Backend,
		"target_bucket", cfg.Storage.TargetBucket,
		"body_archive", cfg.Storage.BodyBucket != "",
	)

	if *eventPath != "" {
		raw, err := os.ReadFile(*eventPath)
		if err != nil {
			slog.Error("failed to read event file", "path", *eventPath, "error", err)
			os.Exit(1)
		}
		resp, err := h.Handle(ctx, raw)
		if err != nil {
			slog.Error("run failed", "error", err)
			os.Exit(1)
		}
		slog.Info("run complete", "status", resp.StatusCode, "body", resp.Body)
		return
	}

	lambda.Start(h.Handle)
}

// Response is the invocation result: a status indicator plus a
// human-readable processing count.
type Response struct {
	StatusCode int    `json:"statusCode"`
	Body       string `json:"body"`
}

type handler struct {
	dispatcher *relay.Dispatcher
	notifier   *notify.Notifier
}

// Handle processes one notification event. Every record is handled as an
// independent run of the pipeline; a record whose source object cannot be
// fetched or parsed fails the invocation.
func (h handler) Handle(ctx context.Context, raw json.RawMessage) (Response, error) {
	refs, err := event.Decode(raw)
	if err != nil {
		return Response{}, err
	}

	written := 0
	for _, ref := range refs {
		sum, err := h.dispatcher.Process(ctx, ref)
		if err != nil {
			return Response{}, err
		}
		written += sum.Written

		if h.notifier != nil {
			if err := h.notifier.NotifyRun(ctx, sum); err != nil {
				slog.Warn("failed to send run notice", "error", err)
			}
		}
	}

	return Response{
		StatusCode: 200,
		Body:       fmt.Sprintf("Processing completed. %d files processed.", written),
	}, nil
}

// loadConfig loads configuration from the specified path (YAML + env override)
// or from environment variables only if no path is given.
func loadConfig(path string) (*config.Config, error) {
	if path != "" {
		return config.LoadFromFile(path)
	}
	return config.Load()
}

// setupLogger configures the global slog logger with JSON output and the
// specified log level.
func setupLogger(level string) {
	var logLevel slog.Level

	switch level {
	case "debug":
		logLevel = slog.LevelDebug
	case "info":
		logLevel = slog.LevelInfo
	case "warn":
		logLevel = slog.LevelWarn
	case "error":
		logLevel = slog.LevelError
	default:
		logLevel = slog.LevelInfo
	}

	handler := slog.NewJSONHandler(os.Stdout, &slog.HandlerOptions{
		Level: logLevel,
	})
	slog.SetDefault(slog.New(handler))
}

// selectStore chooses the object storage backend based on configuration.
func selectStore(ctx context.Context, cfg *config.Config) (storage.Store, error) {
	switch cfg.Storage.Backend {
	case "fs":
		return storage.NewFS(cfg.Storage.FSRoot), nil
	case "s3":
		store, err := storage.NewS3(ctx, storage.S3Config{
			Region:          cfg.Storage.Region,
			AccessKeyID:     cfg.Storage.AccessKeyID,
			SecretAccessKey: cfg.Storage.SecretAccessKey,
		})
		if err != nil {
			return nil, err
		}
		return store, nil
	default:
		return nil, fmt.Errorf("unknown storage backend %q", cfg.Storage.Backend)
	}
}
