package main

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/spf13/pflag"

	"github.com/conorfennell/studypal/internal/agent"
	"github.com/conorfennell/studypal/internal/config"
	"github.com/conorfennell/studypal/internal/quiz"
	"github.com/conorfennell/studypal/internal/quizgen"
	"github.com/conorfennell/studypal/internal/storage"
	"github.com/conorfennell/studypal/internal/sync"
	"github.com/conorfennell/studypal/internal/telegram"
	"github.com/conorfennell/studypal/internal/web"
)

func main() {
	if err := run(); err != nil {
		slog.Error("studypal exited with error", "error", err)
		os.Exit(1)
	}
}

func run() error {
	flags := pflag.NewFlagSet("studypal", pflag.ExitOnError)
	configFile := flags.String("config", "", "Path to a YAML config file")
	flags.String("addr", ":8080", "HTTP listen address")
	flags.String("db", "studypal.db", "Path to the SQLite database file")
	flags.String("repos", "repos", "Directory for cloned git notes sources")
	syncNotes := flags.Bool("sync-notes", false, "Sync notes sources into the question bank and exit")
	addSource := flags.String("add-source", "", "Register a notes source (local path or git URL) and exit")
	if err := flags.Parse(os.Args[1:]); err != nil {
		return err
	}

	slog.SetDefault(slog.New(slog.NewTextHandler(os.Stderr, nil)))

	cfg, err := config.Load(*configFile, flags)
	if err != nil {
		return err
	}

	db, err := storage.Open(cfg.DB)
	if err != nil {
		return err
	}
	defer db.Close()
	slog.Info("database opened", "path", cfg.DB)

	if *addSource != "" {
		return registerSource(db, *addSource)
	}
	if *syncNotes {
		return sync.Run(context.Background(), db, cfg.Repos)
	}

	generator := quizgen.New(quizgen.Config{
		APIKey:  cfg.OpenAI.APIKey,
		Model:   cfg.OpenAI.Model,
		BaseURL: cfg.OpenAI.BaseURL,
	}, db)
	engine := quiz.NewEngine(db, generator, cfg.Quiz.PassScore)
	bot := agent.New(db, db, db, db, engine, generator, cfg.Quiz.Questions)
	tg := telegram.NewClient(cfg.Telegram.Token, cfg.Telegram.APIBase)
	server := web.NewServer(bot, db, tg, cfg.Telegram.AllowedUserID)

	errCh := make(chan error, 1)
	go func() {
		if err := server.Start(cfg.Addr); err != nil && !errors.Is(err, http.ErrServerClosed) {
			errCh <- err
		}
	}()

	stop := make(chan os.Signal, 1)
	signal.Notify(stop, syscall.SIGINT, syscall.SIGTERM)

	select {
	case err := <-errCh:
		return err
	case sig := <-stop:
		slog.Info("shutting down", "signal", sig.String())
	}

	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	return server.Shutdown(ctx)
}

// registerSource records a notes source so the next sync picks it up.
func registerSource(db *storage.DB, path string) error {
	existing, err := db.FindSourceByPath(path)
	if err != nil {
		return err
	}
	if existing != nil {
		slog.Info("source already registered", "id", existing.ID, "path", path)
		return nil
	}

	sourceType := sync.DetectSourceType(path)
	id, err := db.InsertSource(path, sourceType)
	if err != nil {
		return fmt.Errorf("failed to register source %s: %w", path, err)
	}
	slog.Info("source registered", "id", id, "type", sourceType, "path", path)
	return nil
}
