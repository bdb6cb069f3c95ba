package service

import (
	"context"
	"database/sql"
	"fmt"
	"log/slog"

	"loopchat/backend/internal/llm"
)

// Settings keys in the settings table.
const (
	settingSystemPrompt = "system_prompt"
	settingMainModel    = "main_model"
	settingSupportModel = "support_model"
)

// Settings holds the dynamic application settings stored in the database.
type Settings struct {
	SystemPrompt string `json:"system_prompt"`
	MainModel    string `json:"main_model"`
	SupportModel string `json:"support_model"`
}

type SettingsService struct {
	db  *sql.DB
	llm llm.LLMProvider
}

func NewSettingsService(db *sql.DB, llmProvider llm.LLMProvider) *SettingsService {
	return &SettingsService{db: db, llm: llmProvider}
}

// InitAndGet returns the stored settings, initializing them on first run:
// the system prompt comes from the bootstrap config and the default model
// is picked from the provider's inventory when one is available.
func (s *SettingsService) InitAndGet(ctx context.Context, defaultSystemPrompt string) (*Settings, error) {
	settings, err := s.load(ctx)
	if err != nil {
		return nil, fmt.Errorf("failed to load settings: %w", err)
	}
	if settings != nil {
		return settings, nil
	}

	slog.Info("No stored settings found, performing first-run initialization.")

	defaultModel := ""
	models, err := s.llm.ListModels(ctx)
	switch {
	case err != nil:
		slog.Warn("Could not list models during settings init, leaving model unset.", "error", err)
	case len(models.Models) == 0:
		slog.Warn("Model provider has no models, leaving model unset.")
	default:
		defaultModel = models.Models[0].Name
		slog.Info("Automatically selected default model.", "model", defaultModel)
	}

	initial := &Settings{
		SystemPrompt: defaultSystemPrompt,
		MainModel:    defaultModel,
		SupportModel: defaultModel,
	}
	if err := s.Save(ctx, initial); err != nil {
		return nil, fmt.Errorf("failed to save initial settings: %w", err)
	}
	return initial, nil
}

// Get retrieves the current settings.
func (s *SettingsService) Get(ctx context.Context) (*Settings, error) {
	settings, err := s.load(ctx)
	if err != nil {
		return nil, err
	}
	if settings == nil {
		return nil, fmt.Errorf("settings not initialized")
	}
	return settings, nil
}

// Save upserts all settings rows.
func (s *SettingsService) Save(ctx context.Context, settings *Settings) error {
	pairs := []struct{ key, value string }{
		{settingSystemPrompt, settings.SystemPrompt},
		{settingMainModel, settings.MainModel},
		{settingSupportModel, settings.SupportModel},
	}
	for _, p := range pairs {
		query := "INSERT INTO settings (key, value) VALUES (?, ?) ON CONFLICT(key) DO UPDATE SET value = excluded.value"
		if _, err := s.db.ExecContext(ctx, query, p.key, p.value); err != nil {
			return fmt.Errorf("failed to save setting %s: %w", p.key, err)
		}
	}
	return nil
}

// load reads all settings rows; nil (without error) means uninitialized.
func (s *SettingsService) load(ctx context.Context) (*Settings, error) {
	rows, err := s.db.QueryContext(ctx, "SELECT key, value FROM settings")
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	values := make(map[string]string)
	for rows.Next() {
		var key, value string
		if err := rows.Scan(&key, &value); err != nil {
			return nil, err
		}
		values[key] = value
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}
	if len(values) == 0 {
		return nil, nil
	}
	return &Settings{
		SystemPrompt: values[settingSystemPrompt],
		MainModel:    values[settingMainModel],
		SupportModel: values[settingSupportModel],
	}, nil
}
