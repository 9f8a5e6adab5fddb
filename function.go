package chatter

import (
	"context"
	"fmt"
	"log/slog"
	"net/http"
	"sync"

	"cloud.google.com/go/firestore"
	firebase "firebase.google.com/go/v4"
	"github.com/GoogleCloudPlatform/functions-framework-go/functions"
	"github.com/klipach/chatter/auth"
	"github.com/klipach/chatter/chat"
	"github.com/klipach/chatter/config"
	"github.com/klipach/chatter/docstore"
	"github.com/klipach/chatter/log"
	"github.com/klipach/chatter/memstore"
	"github.com/klipach/chatter/pgstore"
)

var (
	defaultOnce    sync.Once
	defaultHandler http.Handler
	defaultErr     error
)

func init() {
	functions.HTTP("Chat", Chat)
}

// Chat is the function entry point. The server is built from the
// environment on the first request and reused afterwards.
func Chat(w http.ResponseWriter, r *http.Request) {
	defaultOnce.Do(func() {
		defaultHandler, defaultErr = NewFromEnv(context.Background())
	})
	if defaultErr != nil {
		log.LoggerFromContext(r.Context()).Error("error while starting", slog.String(ErrorMsgLogField, defaultErr.Error()))
		http.Error(w, "Internal Server Error", http.StatusInternalServerError)
		return
	}
	defaultHandler.ServeHTTP(w, r)
}

// NewFromEnv wires the configured store, Firebase auth and logging.
func NewFromEnv(ctx context.Context) (*Server, error) {
	cfg, err := config.Load()
	if err != nil {
		return nil, err
	}

	projectID, projectErr := cfg.ProjectID(ctx)
	logger := newLogger(ctx, cfg, projectID)
	if projectErr != nil {
		if cfg.Store == config.StoreFirestore {
			return nil, projectErr
		}
		logger.Warn("project id unknown", slog.String(ErrorMsgLogField, projectErr.Error()))
	}

	var fbConfig *firebase.Config
	if projectID != "" {
		fbConfig = &firebase.Config{ProjectID: projectID}
	}
	app, err := firebase.NewApp(ctx, fbConfig)
	if err != nil {
		return nil, fmt.Errorf("create firebase app: %w", err)
	}
	verifier, err := auth.NewVerifier(ctx, app)
	if err != nil {
		return nil, fmt.Errorf("create auth client: %w", err)
	}

	store, err := newStore(ctx, cfg, projectID)
	if err != nil {
		return nil, err
	}
	logger.Info("chat server configured", slog.String("store", cfg.Store))

	return NewServer(chat.NewService(store), verifier, logger, cfg.Location(), WithProjectID(projectID)), nil
}

func newStore(ctx context.Context, cfg config.Config, projectID string) (chat.Store, error) {
	switch cfg.Store {
	case config.StorePostgres:
		store, err := pgstore.Open(ctx, cfg.DatabaseURL, cfg.ListenMinReconnect, cfg.ListenMaxReconnect)
		if err != nil {
			return nil, err
		}
		return store, nil
	case config.StoreMemory:
		return memstore.New(), nil
	default:
		client, err := firestore.NewClient(ctx, projectID)
		if err != nil {
			return nil, fmt.Errorf("create firestore client: %w", err)
		}
		return docstore.New(client), nil
	}
}

func newLogger(ctx context.Context, cfg config.Config, projectID string) *slog.Logger {
	if cfg.LogFormat != log.FormatCloud {
		return log.New(cfg.LogFormat, cfg.LogLevel)
	}
	fallback := log.New(log.FormatJSON, cfg.LogLevel)
	if projectID == "" {
		fallback.Warn("cloud logging needs a project id, writing to stdout")
		return fallback
	}
	client, err := log.NewCloudClient(ctx, projectID)
	if err != nil {
		fallback.Error("error while creating logging client", slog.String(ErrorMsgLogField, err.Error()))
		return fallback
	}
	return slog.New(log.NewCloudHandler(client, cfg.LogLevel))
}
