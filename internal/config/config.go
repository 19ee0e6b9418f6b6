package config

import (
	"fmt"
	"os"
	"path/filepath"
	"time"

	"gopkg.in/yaml.v3"

	"rentview/internal/calendar"
)

const DefaultPath = "configs/config.yaml"

type Config struct {
	Server struct {
		Address         string `yaml:"address"`
		ShutdownSeconds int    `yaml:"shutdown_seconds"`
		Timezone        string `yaml:"timezone"`
		APIKey          string `yaml:"api_key"`
	} `yaml:"server"`

	Database struct {
		Path string `yaml:"path"`
	} `yaml:"database"`

	Backup BackupConfig `yaml:"backup"`

	Redis struct {
		Address  string `yaml:"address"`
		Password string `yaml:"password"`
		DB       int    `yaml:"db"`
	} `yaml:"redis"`

	Wizard struct {
		SessionTTLMinutes int    `yaml:"session_ttl_minutes"`
		WeekStart         string `yaml:"week_start"`
	} `yaml:"wizard"`

	Appointments struct {
		BaseURL        string `yaml:"base_url"`
		APIKey         string `yaml:"api_key"`
		TimeoutSeconds int    `yaml:"timeout_seconds"`
	} `yaml:"appointments"`

	Notify struct {
		Telegram struct {
			Enabled       bool             `yaml:"enabled"`
			BotToken      string           `yaml:"bot_token"`
			RatePerSecond float64          `yaml:"rate_per_second"`
			Chats         map[string]int64 `yaml:"chats"`
		} `yaml:"telegram"`
	} `yaml:"notify"`

	Reminders struct {
		Enabled     bool `yaml:"enabled"`
		DailyHour   int  `yaml:"daily_hour"`
		DailyMinute int  `yaml:"daily_minute"`
	} `yaml:"reminders"`

	Sheets struct {
		Enabled         bool   `yaml:"enabled"`
		CredentialsFile string `yaml:"credentials_file"`
		SpreadsheetID   string `yaml:"spreadsheet_id"`
		SheetName       string `yaml:"sheet_name"`
	} `yaml:"sheets"`

	Monitoring struct {
		HealthCheckPort   int  `yaml:"health_check_port"`
		PrometheusEnabled bool `yaml:"prometheus_enabled"`
		PrometheusPort    int  `yaml:"prometheus_port"`
		GRPCHealthPort    int  `yaml:"grpc_health_port"`
	} `yaml:"monitoring"`
}

type BackupConfig struct {
	Enabled       bool   `yaml:"enabled"`
	IntervalHours int    `yaml:"interval_hours"`
	StoragePath   string `yaml:"path"`
	RetentionDays int    `yaml:"retention_days"`
}

func Load(path string) (*Config, error) {
	if path == "" {
		path = DefaultPath
	}

	data, err := os.ReadFile(path)
	if err != nil {
		return nil, err
	}

	// Support ${ENV_VAR} placeholders in YAML config.
	data = []byte(os.ExpandEnv(string(data)))

	var cfg Config
	if err = yaml.Unmarshal(data, &cfg); err != nil {
		return nil, fmt.Errorf("parse %s: %w", path, err)
	}

	cfg.applyDefaults()
	if err = cfg.Validate(); err != nil {
		return nil, err
	}

	if err = os.MkdirAll(filepath.Dir(cfg.Database.Path), 0o755); err != nil {
		return nil, err
	}

	return &cfg, nil
}

func (c *Config) applyDefaults() {
	if c.Server.Address == "" {
		c.Server.Address = ":8080"
	}
	if c.Server.Timezone == "" {
		c.Server.Timezone = "Local"
	}
	if c.Database.Path == "" {
		c.Database.Path = "data/rentview.db"
	}
	if c.Backup.StoragePath == "" {
		c.Backup.StoragePath = "data/backups"
	}
	if c.Notify.Telegram.RatePerSecond <= 0 {
		c.Notify.Telegram.RatePerSecond = 20
	}
	if c.Sheets.SheetName == "" {
		c.Sheets.SheetName = "Appointments"
	}
	if c.Monitoring.HealthCheckPort == 0 {
		c.Monitoring.HealthCheckPort = 8081
	}
	if c.Monitoring.PrometheusPort == 0 {
		c.Monitoring.PrometheusPort = 9090
	}
}

// Validate checks values that would otherwise fail late at startup.
func (c *Config) Validate() error {
	if _, err := calendar.ParseWeekStart(c.Wizard.WeekStart); err != nil {
		return fmt.Errorf("wizard.week_start: %w", err)
	}
	if _, err := time.LoadLocation(c.Server.Timezone); err != nil {
		return fmt.Errorf("server.timezone: %w", err)
	}
	if c.Notify.Telegram.Enabled && c.Notify.Telegram.BotToken == "" {
		return fmt.Errorf("notify.telegram.bot_token is required when telegram is enabled")
	}
	if c.Reminders.Enabled && !c.Notify.Telegram.Enabled {
		return fmt.Errorf("reminders need notify.telegram to be enabled")
	}
	if c.Reminders.DailyHour < 0 || c.Reminders.DailyHour > 23 || c.Reminders.DailyMinute < 0 || c.Reminders.DailyMinute > 59 {
		return fmt.Errorf("reminders.daily_hour/daily_minute out of range")
	}
	if c.Sheets.Enabled && (c.Sheets.CredentialsFile == "" || c.Sheets.SpreadsheetID == "") {
		return fmt.Errorf("sheets.credentials_file and sheets.spreadsheet_id are required when sheets is enabled")
	}
	return nil
}

func (c *Config) Location() *time.Location {
	loc, err := time.LoadLocation(c.Server.Timezone)
	if err != nil {
		return time.Local
	}
	return loc
}

func (c *Config) WeekStart() time.Weekday {
	ws, _ := calendar.ParseWeekStart(c.Wizard.WeekStart)
	return ws
}

func (c *Config) SessionTTL() time.Duration {
	if c.Wizard.SessionTTLMinutes <= 0 {
		return 30 * time.Minute
	}
	return time.Duration(c.Wizard.SessionTTLMinutes) * time.Minute
}

func (c *Config) AppointmentsTimeout() time.Duration {
	if c.Appointments.TimeoutSeconds <= 0 {
		return 10 * time.Second
	}
	return time.Duration(c.Appointments.TimeoutSeconds) * time.Second
}

func (c *Config) ShutdownTimeout() time.Duration {
	if c.Server.ShutdownSeconds <= 0 {
		return 10 * time.Second
	}
	return time.Duration(c.Server.ShutdownSeconds) * time.Second
}

func (b BackupConfig) Interval() time.Duration {
	if b.IntervalHours <= 0 {
		return 24 * time.Hour
	}
	return time.Duration(b.IntervalHours) * time.Hour
}
