package app

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"github.com/joho/godotenv"
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"

	"campustasks/internal/config"
	"campustasks/internal/db"
	"campustasks/internal/engine"
	"campustasks/internal/engine/auth"
	"campustasks/internal/events"
	"campustasks/internal/migrate"
	"campustasks/internal/repo"
)

// App is the explicit context every command and the HTTP server run against.
type App struct {
	Workspace string
	DB        *sql.DB
	Repo      repo.Repo
	Engine    engine.Engine
	Accounts  auth.Service
	Config    *config.Config
	Logger    *zap.Logger
}

type Options struct {
	Workspace string
	// Logger overrides the logger built from log.level.
	Logger *zap.Logger
	// Config overrides campustasks.yml.
	Config *config.Config
}

// Open loads the workspace .env and config, opens the database and applies migrations.
func Open(ctx context.Context, opts Options) (*App, error) {
	workspace := opts.Workspace
	if workspace == "" {
		workspace = "."
	}
	if err := LoadEnv(workspace); err != nil {
		return nil, err
	}
	cfg := opts.Config
	if cfg == nil {
		var err error
		cfg, err = config.LoadOptional(workspace)
		if err != nil {
			return nil, err
		}
	}
	logger := opts.Logger
	if logger == nil {
		var err error
		logger, err = NewLogger(cfg.Log.Level)
		if err != nil {
			return nil, err
		}
	}
	conn, err := db.Open(db.Config{Workspace: workspace})
	if err != nil {
		return nil, err
	}
	if err := migrate.MigrateContext(ctx, conn); err != nil {
		conn.Close()
		return nil, fmt.Errorf("migrate: %w", err)
	}
	r := repo.Repo{DB: conn}
	ev := events.Writer{DB: conn}
	return &App{
		Workspace: workspace,
		DB:        conn,
		Repo:      r,
		Engine:    engine.New(r, ev, cfg, logger.Named("engine")),
		Accounts:  auth.New(r, ev, cfg, logger.Named("auth")),
		Config:    cfg,
		Logger:    logger,
	}, nil
}

func (a *App) Close() error {
	_ = a.Logger.Sync()
	return a.DB.Close()
}

// LoadEnv reads <workspace>/.env without overriding variables already set.
func LoadEnv(workspace string) error {
	path := filepath.Join(workspace, ".env")
	if err := godotenv.Load(path); err != nil && !errors.Is(err, os.ErrNotExist) {
		return fmt.Errorf("load %s: %w", path, err)
	}
	return nil
}

// NewLogger builds a console logger at level; an empty level means info.
func NewLogger(level string) (*zap.Logger, error) {
	lvl := zapcore.InfoLevel
	if strings.TrimSpace(level) != "" {
		if err := lvl.UnmarshalText([]byte(strings.ToLower(level))); err != nil {
			return nil, fmt.Errorf("log level %q: %w", level, err)
		}
	}
	cfg := zap.NewDevelopmentConfig()
	cfg.Level = zap.NewAtomicLevelAt(lvl)
	cfg.OutputPaths = []string{"stderr"}
	cfg.DisableStacktrace = true
	return cfg.Build()
}
