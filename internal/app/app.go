package app

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"strings"
	"time"

	slogmulti "github.com/samber/slog-multi"
	"github.com/spf13/viper"

	"loopchat/backend/internal/api"
	"loopchat/backend/internal/config"
	"loopchat/backend/internal/database"
	"loopchat/backend/internal/frontendtool"
	"loopchat/backend/internal/llm"
	"loopchat/backend/internal/repository"
	"loopchat/backend/internal/service"
)

// App bundles the wired application: the database handle and the HTTP
// server, ready to run.
type App struct {
	Config *config.Config
	DB     *sql.DB
	Server *http.Server

	closeLog func()
}

// NewApp wires logging, storage, the model provider, services, and the HTTP
// router into a runnable application.
func NewApp(cfg *config.Config) (*App, error) {
	closeLog, err := setupLogger(cfg.LogLevel, cfg.LogFile)
	if err != nil {
		return nil, fmt.Errorf("could not configure logging: %w", err)
	}

	logConfigSource()

	waitForOllama(cfg.OllamaURL)

	db, err := database.InitDB(cfg.DatabasePath)
	if err != nil {
		closeLog()
		return nil, fmt.Errorf("could not initialize database: %w", err)
	}
	slog.Info("Successfully connected to SQLite database.")

	repo := repository.NewSQLiteRepository(db)
	ollamaProvider := llm.NewOllamaProvider(cfg.OllamaURL)
	settingsService := service.NewSettingsService(db, ollamaProvider)

	appSettings, err := settingsService.InitAndGet(context.Background(), cfg.InitialSystemPrompt)
	if err != nil {
		_ = db.Close()
		closeLog()
		return nil, fmt.Errorf("could not initialize application settings: %w", err)
	}
	slog.Info("Loaded application settings", "main_model", appSettings.MainModel)

	chatService := service.NewChatService(repo, ollamaProvider, settingsService, frontendtool.DeclaredNames())

	chatHandler := api.NewChatHandler(chatService, settingsService)
	router := api.NewRouter(chatHandler)

	server := &http.Server{
		Addr:              fmt.Sprintf(":%d", cfg.AppPort),
		Handler:           router,
		ReadHeaderTimeout: 20 * time.Second,
		WriteTimeout:      0, // Disabled for streaming endpoints
		IdleTimeout:       120 * time.Second,
	}

	return &App{Config: cfg, DB: db, Server: server, closeLog: closeLog}, nil
}

// Close releases the application's resources.
func (a *App) Close() {
	if err := a.DB.Close(); err != nil {
		slog.Error("Failed to close database connection", "error", err)
	}
	if a.closeLog != nil {
		a.closeLog()
	}
}

// Run loads configuration, wires the application, and serves until the
// listener fails. The return value is the process exit code.
func Run() int {
	cfg, err := config.LoadConfig()
	if err != nil {
		// slog is not yet configured, so use the default logger for this critical error.
		slog.Error("Failed to load configuration", "error", err)
		return 1
	}

	application, err := NewApp(cfg)
	if err != nil {
		slog.Error("Failed to initialize application", "error", err)
		return 1
	}
	defer application.Close()

	slog.Info("Starting server", "port", cfg.AppPort)
	if err := application.Server.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
		slog.Error("Server failed", "error", err)
		return 1
	}

	return 0
}

func logConfigSource() {
	configFileUsed := viper.ConfigFileUsed()
	if configFileUsed != "" {
		slog.Info("Successfully loaded configuration from file.", "file", configFileUsed)
	} else {
		slog.Info("Configuration file not found. Using environment variables and defaults.")
	}
}

// setupLogger installs the default slog logger: JSON to stdout, and when a
// log file is configured, fanned out to the file as well. The returned
// cleanup closes the file handle.
func setupLogger(logLevel, logFile string) (func(), error) {
	var level slog.Level
	switch strings.ToUpper(logLevel) {
	case "DEBUG":
		level = slog.LevelDebug
	case "WARN":
		level = slog.LevelWarn
	case "ERROR":
		level = slog.LevelError
	default:
		level = slog.LevelInfo
	}
	opts := &slog.HandlerOptions{Level: level}

	stdout := slog.NewJSONHandler(os.Stdout, opts)
	if logFile == "" {
		slog.SetDefault(slog.New(stdout))
		return func() {}, nil
	}

	f, err := os.OpenFile(logFile, os.O_CREATE|os.O_WRONLY|os.O_APPEND, 0o644)
	if err != nil {
		return nil, fmt.Errorf("could not open log file %s: %w", logFile, err)
	}
	fileHandler := slog.NewJSONHandler(f, opts)
	slog.SetDefault(slog.New(slogmulti.Fanout(stdout, fileHandler)))
	return func() { _ = f.Close() }, nil
}

func waitForOllama(ollamaURL string) {
	slog.Info("Waiting for Ollama to be ready...")
	client := &http.Client{Timeout: 2 * time.Second}
	for {
		resp, err := client.Get(ollamaURL)
		if err == nil && resp.StatusCode == http.StatusOK {
			if bErr := resp.Body.Close(); bErr != nil {
				slog.Warn("Failed to close response body in ollama health check", "error", bErr)
			}
			slog.Info("Ollama is ready.")
			return
		}
		if resp != nil {
			if bErr := resp.Body.Close(); bErr != nil {
				slog.Warn("Failed to close response body in ollama health check (retry path)", "error", bErr)
			}
		}
		slog.Debug("Ollama not ready yet, retrying in 3 seconds...", "url", ollamaURL, "error", err)
		time.Sleep(3 * time.Second)
	}
}
