package main

import (
	"log/slog"
	"os"

	"github.com/GoogleCloudPlatform/functions-framework-go/funcframework"
	"github.com/joho/godotenv"
	_ "github.com/klipach/chatter"
	"github.com/klipach/chatter/log"
)

const defaultPort = "8080"

func main() {
	logger := log.New(log.FormatText, slog.LevelInfo)

	if err := godotenv.Load(); err != nil {
		logger.Warn("no .env file loaded", slog.String("errorMsg", err.Error()))
	}

	port := os.Getenv("PORT")
	if port == "" {
		port = defaultPort
	}

	logger.Info("started", slog.String("port", port))
	if err := funcframework.Start(port); err != nil {
		logger.Error("funcframework.Start", slog.String("errorMsg", err.Error()))
		os.Exit(1)
	}
}
