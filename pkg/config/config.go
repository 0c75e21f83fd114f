package config

import (
	"fmt"
	"os"
	"strings"
	"time"

	"github.com/joho/godotenv"
	"github.com/whalespump/live-support/pkg/orchestrator"
	"github.com/whalespump/live-support/pkg/tools"
)

const (
	ModeRedirect = "redirect"
	ModeRelay    = "relay"
)

// Config holds all application configuration
type Config struct {
	// App
	Port        string
	Env         string
	MetricsAddr string

	// Gemini
	APIKey                string
	LiveModel             string
	ChatModel             string
	VoiceName             string
	LiveEndpoint          string
	SystemInstructionFile string

	// Audio
	CaptureBackend   string
	PlaybackBackend  string
	FrameSize        int
	HandshakeTimeout time.Duration
	ToolTimeout      time.Duration

	// Business rules
	MinShareCapital float64
	FeeRatio        float64
	AdminContact    string

	// Telegram
	TelegramBotToken string
	TelegramAPIURL   string
	TelegramMode     string
	WebAppURL        string
}

// Load reads configuration from environment variables
func Load() (*Config, error) {
	// Try to load .env file, but don't fail if it doesn't exist
	_ = godotenv.Load()

	core := orchestrator.DefaultConfig()
	rules := tools.DefaultConfig()

	cfg := &Config{
		Port:                  getEnv("PORT", "8080"),
		Env:                   getEnv("ENV", "development"),
		MetricsAddr:           getEnv("METRICS_ADDR", ""),
		APIKey:                getEnv("GEMINI_API_KEY", getEnv("API_KEY", "")),
		LiveModel:             getEnv("LIVE_MODEL", core.LiveModel),
		ChatModel:             getEnv("CHAT_MODEL", core.ChatModel),
		VoiceName:             getEnv("VOICE_NAME", core.Voice),
		LiveEndpoint:          getEnv("LIVE_ENDPOINT", ""),
		SystemInstructionFile: getEnv("SYSTEM_INSTRUCTION_FILE", ""),
		CaptureBackend:        getEnv("CAPTURE_BACKEND", "malgo"),
		PlaybackBackend:       getEnv("PLAYBACK_BACKEND", "malgo"),
		FrameSize:             getEnvInt("FRAME_SIZE", core.FrameSize),
		HandshakeTimeout:      getEnvDuration("HANDSHAKE_TIMEOUT", core.HandshakeTimeout),
		ToolTimeout:           getEnvDuration("TOOL_TIMEOUT", core.ToolTimeout),
		MinShareCapital:       getEnvFloat("MIN_SHARE_CAPITAL", rules.MinShareCapital),
		FeeRatio:              getEnvFloat("FEE_RATIO", rules.FeeRatio),
		AdminContact:          getEnv("ADMIN_CONTACT", rules.AdminContact),
		TelegramBotToken:      getEnv("TELEGRAM_BOT_TOKEN", ""),
		TelegramAPIURL:        getEnv("TELEGRAM_API_URL", "https://api.telegram.org"),
		TelegramMode:          strings.ToLower(getEnv("TELEGRAM_MODE", ModeRedirect)),
		WebAppURL:             getEnv("WEBAPP_URL", ""),
	}

	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("config validation failed: %w", err)
	}

	return cfg, nil
}

// Validate checks value ranges. Credentials are checked by the binary that
// needs them, so a chat-only run works without a bot token.
func (c *Config) Validate() error {
	if c.FrameSize <= 0 {
		return fmt.Errorf("FRAME_SIZE must be positive")
	}
	if c.HandshakeTimeout <= 0 {
		return fmt.Errorf("HANDSHAKE_TIMEOUT must be positive")
	}
	if c.ToolTimeout <= 0 {
		return fmt.Errorf("TOOL_TIMEOUT must be positive")
	}
	if c.FeeRatio < 0 || c.FeeRatio > 1 {
		return fmt.Errorf("FEE_RATIO must be between 0 and 1")
	}
	if c.MinShareCapital < 0 {
		return fmt.Errorf("MIN_SHARE_CAPITAL must not be negative")
	}
	if c.TelegramMode != ModeRedirect && c.TelegramMode != ModeRelay {
		return fmt.Errorf("TELEGRAM_MODE must be %q or %q", ModeRedirect, ModeRelay)
	}
	return nil
}

// ValidateWebhook checks the values the Telegram relay needs.
func (c *Config) ValidateWebhook() error {
	if c.TelegramBotToken == "" {
		return fmt.Errorf("TELEGRAM_BOT_TOKEN is required")
	}
	if c.WebAppURL == "" {
		return fmt.Errorf("WEBAPP_URL is required")
	}
	if c.TelegramMode == ModeRelay && c.APIKey == "" {
		return fmt.Errorf("GEMINI_API_KEY is required in relay mode")
	}
	return nil
}

// IsDevelopment returns true if running in development mode
func (c *Config) IsDevelopment() bool {
	return c.Env == "development"
}

// IsProduction returns true if running in production mode
func (c *Config) IsProduction() bool {
	return c.Env == "production"
}

// Orchestrator builds the core configuration. The system instruction file,
// when set, replaces the built-in persona.
func (c *Config) Orchestrator() (orchestrator.Config, error) {
	core := orchestrator.DefaultConfig()
	core.APIKey = c.APIKey
	core.LiveModel = c.LiveModel
	core.ChatModel = c.ChatModel
	core.Voice = c.VoiceName
	core.FrameSize = c.FrameSize
	core.HandshakeTimeout = c.HandshakeTimeout
	core.ToolTimeout = c.ToolTimeout

	if c.SystemInstructionFile == "" {
		core.SystemInstruction = tools.Instruction(c.Tools())
		return core, nil
	}

	data, err := os.ReadFile(c.SystemInstructionFile)
	if err != nil {
		return core, fmt.Errorf("failed to read system instruction: %w", err)
	}
	core.SystemInstruction = strings.TrimSpace(string(data))
	return core, nil
}

// Tools returns the business rules for the tool handlers.
func (c *Config) Tools() tools.Config {
	rules := tools.DefaultConfig()
	rules.MinShareCapital = c.MinShareCapital
	rules.FeeRatio = c.FeeRatio
	rules.AdminContact = c.AdminContact
	return rules
}

func getEnv(key, defaultValue string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return defaultValue
}

func getEnvFloat(key string, defaultValue float64) float64 {
	if value := os.Getenv(key); value != "" {
		var result float64
		if _, err := fmt.Sscanf(value, "%f", &result); err == nil {
			return result
		}
	}
	return defaultValue
}

func getEnvInt(key string, defaultValue int) int {
	if value := os.Getenv(key); value != "" {
		var result int
		if _, err := fmt.Sscanf(value, "%d", &result); err == nil {
			return result
		}
	}
	return defaultValue
}

func getEnvDuration(key string, defaultValue time.Duration) time.Duration {
	if value := os.Getenv(key); value != "" {
		if d, err := time.ParseDuration(value); err == nil {
			return d
		}
	}
	return defaultValue
}
