package config

import (
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/joho/godotenv"
	"github.com/spf13/viper"
)

// Triage modes. Auto applies the specialty-matching relevance rules; manual
// routes every alert to pharmacist review.
const (
	TriageModeAuto   = "auto"
	TriageModeManual = "manual_only"
)

// Config holds all application configuration
type Config struct {
	App       App       `mapstructure:"app"`
	Database  Database  `mapstructure:"database"`
	GovUK     GovUK     `mapstructure:"govuk"`
	Feeds     Feeds     `mapstructure:"feeds"`
	Triage    Triage    `mapstructure:"triage"`
	Approvals Approvals `mapstructure:"approvals"`
	SLA       SLA       `mapstructure:"sla"`
	Notify    Notify    `mapstructure:"notify"`
	Scheduler Scheduler `mapstructure:"scheduler"`
	Logging   Logging   `mapstructure:"logging"`
}

// App holds general application configuration
type App struct {
	Debug      bool   `mapstructure:"debug"`
	LogLevel   string `mapstructure:"log_level"`
	DataDir    string `mapstructure:"data_dir"`
	ConfigFile string `mapstructure:"config_file"`
}

// Database holds SQLite configuration
type Database struct {
	Path    string `mapstructure:"path"`
	Timeout string `mapstructure:"timeout"`
}

// GovUK holds GOV.UK Search and Content API configuration
type GovUK struct {
	SearchURL    string `mapstructure:"search_url"`
	ContentURL   string `mapstructure:"content_url"`
	Organisation string `mapstructure:"organisation"`
	PageSize     int    `mapstructure:"page_size"`
	Timeout      string `mapstructure:"timeout"`
	MaxRetries   int    `mapstructure:"max_retries"`
}

// Feeds holds RSS/Atom feed configuration
type Feeds struct {
	URLs      []string `mapstructure:"urls"`
	UserAgent string   `mapstructure:"user_agent"`
	Timeout   string   `mapstructure:"timeout"`
}

// Triage holds alert classification configuration. AllowList and DenyList
// carry content IDs that override specialty matching in auto mode.
type Triage struct {
	Mode                string   `mapstructure:"mode"`
	RelevantSpecialties []string `mapstructure:"relevant_specialties"`
	AllowList           []string `mapstructure:"allow_list"`
	DenyList            []string `mapstructure:"deny_list"`
}

// Approvals holds clinical sign-off configuration. Alerts approved on or
// after SwitchDate are attributed to the successor approver.
type Approvals struct {
	InitialApprover   string `mapstructure:"initial_approver"`
	SuccessorApprover string `mapstructure:"successor_approver"`
	SwitchDate        string `mapstructure:"switch_date"`
}

// SLA holds response-deadline configuration in hours per priority band.
// Zero disables the deadline for that band.
type SLA struct {
	P1Hours float64 `mapstructure:"p1_hours"`
	P2Hours float64 `mapstructure:"p2_hours"`
	P3Hours float64 `mapstructure:"p3_hours"`
	P4Hours float64 `mapstructure:"p4_hours"`
}

// Notify holds Teams webhook configuration
type Notify struct {
	TeamsWebhookURL string `mapstructure:"teams_webhook_url"`
	Timeout         string `mapstructure:"timeout"`
}

// Scheduler holds background polling configuration
type Scheduler struct {
	PollInterval    string `mapstructure:"poll_interval"`
	FeedsInterval   string `mapstructure:"feeds_interval"`
	OverdueInterval string `mapstructure:"overdue_interval"`
	SummaryInterval string `mapstructure:"summary_interval"`
}

// Logging holds logging configuration
type Logging struct {
	Level  string `mapstructure:"level"`
	Format string `mapstructure:"format"`
	Output string `mapstructure:"output"`
}

var globalConfig *Config

// Load loads the configuration from various sources
func Load(configFile string) (*Config, error) {
	if globalConfig != nil {
		return globalConfig, nil
	}

	// Load .env file if it exists
	if _, err := os.Stat(".env"); err == nil {
		if err := godotenv.Load(".env"); err != nil {
			fmt.Printf("Warning: Error loading .env file: %v\n", err)
		}
	}

	// Configure viper
	if configFile != "" {
		viper.SetConfigFile(configFile)
	} else {
		viper.AddConfigPath(".")
		viper.AddConfigPath("$HOME")
		viper.SetConfigName(".medicinealerts")
		viper.SetConfigType("yaml")
	}

	// Set defaults
	setDefaults()

	// Bind environment variables
	bindEnvironmentVariables()

	// Enable automatic environment variable reading
	viper.AutomaticEnv()
	viper.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))

	// Read config file if it exists
	if err := viper.ReadInConfig(); err != nil {
		if _, ok := err.(viper.ConfigFileNotFoundError); !ok {
			return nil, fmt.Errorf("error reading config file: %w", err)
		}
	}

	// Unmarshal into struct
	config := &Config{}
	if err := viper.Unmarshal(config); err != nil {
		return nil, fmt.Errorf("error unmarshaling config: %w", err)
	}

	// Apply post-processing
	if err := postProcessConfig(config); err != nil {
		return nil, fmt.Errorf("error post-processing config: %w", err)
	}

	// Validate configuration
	if err := validateConfig(config); err != nil {
		return nil, err
	}

	globalConfig = config
	return config, nil
}

// Get returns the global configuration, loading it if necessary
func Get() *Config {
	if globalConfig == nil {
		config, err := Load("")
		if err != nil {
			panic(fmt.Sprintf("Failed to load configuration: %v", err))
		}
		return config
	}
	return globalConfig
}

// setDefaults sets default configuration values
func setDefaults() {
	// App defaults
	viper.SetDefault("app.debug", false)
	viper.SetDefault("app.log_level", "info")
	viper.SetDefault("app.data_dir", "data")

	// Database defaults
	viper.SetDefault("database.path", "")
	viper.SetDefault("database.timeout", "5s")

	// GOV.UK API defaults
	viper.SetDefault("govuk.search_url", "https://www.gov.uk/api/search.json")
	viper.SetDefault("govuk.content_url", "https://www.gov.uk/api/content")
	viper.SetDefault("govuk.organisation", "medicines-and-healthcare-products-regulatory-agency")
	viper.SetDefault("govuk.page_size", 100)
	viper.SetDefault("govuk.timeout", "30s")
	viper.SetDefault("govuk.max_retries", 3)

	// Feeds defaults
	viper.SetDefault("feeds.urls", []string{
		"https://www.gov.uk/drug-device-alerts.atom",
		"https://www.gov.uk/drug-safety-update.atom",
	})
	viper.SetDefault("feeds.user_agent", "MedicineAlerts/1.0")
	viper.SetDefault("feeds.timeout", "30s")

	// Triage defaults
	viper.SetDefault("triage.mode", TriageModeManual)
	viper.SetDefault("triage.relevant_specialties", []string{
		"General practice",
		"Dispensing GP practices",
	})

	// Approvals defaults
	viper.SetDefault("approvals.initial_approver", "Dr Anjan Chakraborty")
	viper.SetDefault("approvals.successor_approver", "Chandni Shah")
	viper.SetDefault("approvals.switch_date", "2025-09-17")

	// SLA defaults (hours; 0 means no deadline)
	viper.SetDefault("sla.p1_hours", 4.0)
	viper.SetDefault("sla.p2_hours", 48.0)
	viper.SetDefault("sla.p3_hours", 168.0)
	viper.SetDefault("sla.p4_hours", 0.0)

	// Notify defaults
	viper.SetDefault("notify.timeout", "10s")

	// Scheduler defaults
	viper.SetDefault("scheduler.poll_interval", "4h")
	viper.SetDefault("scheduler.feeds_interval", "1h")
	viper.SetDefault("scheduler.overdue_interval", "1h")
	viper.SetDefault("scheduler.summary_interval", "24h")

	// Logging defaults
	viper.SetDefault("logging.level", "info")
	viper.SetDefault("logging.format", "json")
	viper.SetDefault("logging.output", "stdout")
}

// bindEnvironmentVariables sets up flexible environment variable binding
func bindEnvironmentVariables() {
	bindEnvKeys("notify.teams_webhook_url", []string{
		"TEAMS_WEBHOOK_URL",
		"MEDALERTS_TEAMS_WEBHOOK_URL",
	})

	bindEnvKeys("database.path", []string{
		"MEDALERTS_DB_PATH",
		"DATABASE_PATH",
	})

	bindEnvKeys("triage.mode", []string{
		"MEDALERTS_TRIAGE_MODE",
		"TRIAGE_MODE",
	})

	bindEnvKeys("app.data_dir", []string{
		"MEDALERTS_DATA_DIR",
	})

	bindEnvKeys("app.debug", []string{
		"DEBUG",
		"MEDALERTS_DEBUG",
	})
}

// bindEnvKeys binds the first found environment variable to a viper key
func bindEnvKeys(viperKey string, envKeys []string) {
	for _, envKey := range envKeys {
		if value := os.Getenv(envKey); value != "" {
			viper.Set(viperKey, value)
			return
		}
	}
}

// postProcessConfig applies post-processing to configuration values
func postProcessConfig(config *Config) error {
	// Expand paths
	if config.App.DataDir != "" {
		config.App.DataDir = expandPath(config.App.DataDir)
	}
	if config.Database.Path != "" {
		config.Database.Path = expandPath(config.Database.Path)
	} else {
		config.Database.Path = filepath.Join(config.App.DataDir, "alerts.db")
	}

	// Validate durations
	durations := map[string]string{
		"database.timeout":           config.Database.Timeout,
		"govuk.timeout":              config.GovUK.Timeout,
		"feeds.timeout":              config.Feeds.Timeout,
		"notify.timeout":             config.Notify.Timeout,
		"scheduler.poll_interval":    config.Scheduler.PollInterval,
		"scheduler.feeds_interval":   config.Scheduler.FeedsInterval,
		"scheduler.overdue_interval": config.Scheduler.OverdueInterval,
		"scheduler.summary_interval": config.Scheduler.SummaryInterval,
	}

	for key, duration := range durations {
		if duration != "" {
			if _, err := time.ParseDuration(duration); err != nil {
				return fmt.Errorf("invalid duration for %s: %s", key, duration)
			}
		}
	}

	return nil
}

// expandPath expands ~ and environment variables in paths
func expandPath(path string) string {
	if strings.HasPrefix(path, "~/") {
		home, err := os.UserHomeDir()
		if err != nil {
			return path
		}
		return filepath.Join(home, path[2:])
	}
	return os.ExpandEnv(path)
}

// validateConfig ensures required configuration is present
func validateConfig(config *Config) error {
	var errors []string

	switch config.Triage.Mode {
	case TriageModeAuto, TriageModeManual:
	default:
		errors = append(errors, fmt.Sprintf("Unknown triage mode: %s. Supported: %s, %s",
			config.Triage.Mode, TriageModeAuto, TriageModeManual))
	}

	if config.Triage.Mode == TriageModeAuto && len(config.Triage.RelevantSpecialties) == 0 {
		errors = append(errors, "triage.relevant_specialties must not be empty in auto mode")
	}

	if config.Approvals.SwitchDate != "" {
		if _, err := time.Parse("2006-01-02", config.Approvals.SwitchDate); err != nil {
			errors = append(errors, fmt.Sprintf("Invalid approvals.switch_date: %s (expected YYYY-MM-DD)", config.Approvals.SwitchDate))
		}
	}

	if config.GovUK.PageSize < 1 || config.GovUK.PageSize > 1000 {
		errors = append(errors, fmt.Sprintf("govuk.page_size must be between 1 and 1000, got %d", config.GovUK.PageSize))
	}

	if config.SLA.P1Hours < 0 || config.SLA.P2Hours < 0 || config.SLA.P3Hours < 0 || config.SLA.P4Hours < 0 {
		errors = append(errors, "SLA hours must not be negative")
	}

	if len(errors) > 0 {
		return fmt.Errorf("configuration errors:\n- %s", strings.Join(errors, "\n- "))
	}

	return nil
}

// ApprovalSwitchDate returns the parsed approver switch date.
func (c *Config) ApprovalSwitchDate() time.Time {
	t, err := time.Parse("2006-01-02", c.Approvals.SwitchDate)
	if err != nil {
		return time.Time{}
	}
	return t
}

// SLAHours returns the SLA window for a priority rank (1-4) in hours.
// Zero means the band has no deadline.
func (c *Config) SLAHours(rank int) float64 {
	switch rank {
	case 1:
		return c.SLA.P1Hours
	case 2:
		return c.SLA.P2Hours
	case 3:
		return c.SLA.P3Hours
	case 4:
		return c.SLA.P4Hours
	default:
		return 0
	}
}

// Convenience getters for commonly used configuration values
func GetApp() App             { return Get().App }
func GetDatabase() Database   { return Get().Database }
func GetGovUK() GovUK         { return Get().GovUK }
func GetFeeds() Feeds         { return Get().Feeds }
func GetTriage() Triage       { return Get().Triage }
func GetApprovals() Approvals { return Get().Approvals }
func GetSLA() SLA             { return Get().SLA }
func GetNotify() Notify       { return Get().Notify }
func GetScheduler() Scheduler { return Get().Scheduler }
func GetLogging() Logging     { return Get().Logging }

// Specific convenience getters for frequently accessed values
func GetDatabasePath() string  { return Get().Database.Path }
func GetTriageMode() string    { return Get().Triage.Mode }
func GetDataDir() string       { return Get().App.DataDir }
func IsDebugMode() bool        { return Get().App.Debug }
func GetTeamsWebhook() string  { return Get().Notify.TeamsWebhookURL }

// Reset clears the global configuration (useful for testing)
func Reset() {
	globalConfig = nil
	viper.Reset()
}
