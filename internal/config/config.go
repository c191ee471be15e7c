// Package config provides configuration loading, validation, and management
// for QueueBot. Values come from built-in defaults, an optional YAML file and
// QUEUEBOT_* environment variables, in increasing order of precedence.
package config

import (
	"errors"
	"fmt"
	"log/slog"
	"os"
	"reflect"
	"sort"
	"strings"
	"time"

	"github.com/go-playground/validator/v10"
	"github.com/go-telegram/bot/models"
	"github.com/spf13/viper"
)

// EnvPrefix is the prefix of environment variables overriding config keys,
// e.g. QUEUEBOT_TELEGRAM_TOKEN for telegram.token.
const EnvPrefix = "QUEUEBOT"

// Config defines the application configuration.
type Config struct {
	Logger    LoggerConfig        `mapstructure:"logger"`
	Database  DatabaseConfig      `mapstructure:"database"`
	Telegram  TelegramConfig      `mapstructure:"telegram"`
	Engine    EngineConfig        `mapstructure:"engine"`
	Render    RenderConfig        `mapstructure:"render"`
	Scheduler SchedulerConfig     `mapstructure:"scheduler"`
	Messages  Messages            `mapstructure:"messages"`
	Locales   map[string]Messages `mapstructure:"locales"`
}

type LoggerConfig struct {
	Level string `mapstructure:"level" validate:"oneof=debug info warn error"`
	JSON  bool   `mapstructure:"json"`
}

type DatabaseConfig struct {
	Path         string        `mapstructure:"path"           validate:"required"`
	MaxOpenConns int           `mapstructure:"max_open_conns" validate:"min=1,max=64"`
	BusyTimeout  time.Duration `mapstructure:"busy_timeout"   validate:"min=0,max=1m"`
}

type TelegramConfig struct {
	Token string `mapstructure:"token" validate:"required"`
	// AdminUserID receives incident reports; zero disables them.
	AdminUserID int64 `mapstructure:"admin_user_id" validate:"gte=0"`
	// BotInfo is filled at startup from getMe.
	BotInfo *models.User `mapstructure:"-"`
}

// EngineConfig bounds the retries of transactions that lost a lock race.
type EngineConfig struct {
	ConflictRetries int           `mapstructure:"conflict_retries" validate:"min=1,max=20"`
	RetryInterval   time.Duration `mapstructure:"retry_interval"   validate:"min=1ms,max=10s"`
}

type RenderConfig struct {
	QueueSize            int           `mapstructure:"queue_size"             validate:"min=1,max=100000"`
	Timeout              time.Duration `mapstructure:"timeout"                validate:"min=1s,max=5m"`
	BreakerMaxFailures   int           `mapstructure:"breaker_max_failures"   validate:"min=1"`
	BreakerResetInterval time.Duration `mapstructure:"breaker_reset_interval" validate:"min=1s"`
}

type SchedulerConfig struct {
	Tasks map[string]TaskConfig `mapstructure:"tasks" validate:"dive"`
}

type TaskConfig struct {
	Enabled  bool   `mapstructure:"enabled"`
	Schedule string `mapstructure:"schedule" validate:"required_if=Enabled true"`
}

// Messages holds every user-facing text. *Fmt fields are fmt format strings.
type Messages struct {
	Welcome      string `mapstructure:"welcome"`
	Help         string `mapstructure:"help"`
	GroupOnlyMsg string `mapstructure:"group_only_msg"`

	QueueCreatedFmt   string `mapstructure:"queue_created_fmt"`
	QueueDeletedFmt   string `mapstructure:"queue_deleted_fmt"`
	QueuesHeader      string `mapstructure:"queues_header"`
	NoQueuesMsg       string `mapstructure:"no_queues_msg"`
	ChooseQueueMsg    string `mapstructure:"choose_queue_msg"`
	JoinedFmt         string `mapstructure:"joined_fmt"`
	LeftFmt           string `mapstructure:"left_fmt"`
	SkippedFmt        string `mapstructure:"skipped_fmt"`
	MovedToEndFmt     string `mapstructure:"moved_to_end_fmt"`
	CalledFmt         string `mapstructure:"called_fmt"`
	QueueExhaustedFmt string `mapstructure:"queue_exhausted_fmt"`

	AlreadyMemberFmt   string `mapstructure:"already_member_fmt"`
	NotAMemberFmt      string `mapstructure:"not_a_member_fmt"`
	CannotSkipFmt      string `mapstructure:"cannot_skip_fmt"`
	QueueNotFoundFmt   string `mapstructure:"queue_not_found_fmt"`
	NameConflictFmt    string `mapstructure:"name_conflict_fmt"`
	WrongReferenceMsg  string `mapstructure:"wrong_reference_msg"`
	NoQueueNameMsg     string `mapstructure:"no_queue_name_msg"`
	StorageConflictMsg string `mapstructure:"storage_conflict_msg"`
	ErrorInternalFmt   string `mapstructure:"error_internal_fmt"`
	IncidentReportFmt  string `mapstructure:"incident_report_fmt"`

	NotifyOnMsg      string `mapstructure:"notify_on_msg"`
	NotifyOffMsg     string `mapstructure:"notify_off_msg"`
	SilentOnMsg      string `mapstructure:"silent_on_msg"`
	SilentOffMsg     string `mapstructure:"silent_off_msg"`
	LanguageSetFmt   string `mapstructure:"language_set_fmt"`
	LanguageUsageFmt string `mapstructure:"language_usage_fmt"`

	EmptyQueueMsg string `mapstructure:"empty_queue_msg"`
	ButtonJoin    string `mapstructure:"button_join"`
	ButtonLeave   string `mapstructure:"button_leave"`
	ButtonSkip    string `mapstructure:"button_skip"`
	ButtonEnd     string `mapstructure:"button_end"`
	ButtonNext    string `mapstructure:"button_next"`
}

// LoadConfig reads the configuration file at path (missing is allowed), applies
// defaults and environment overrides, and validates the result.
func LoadConfig(path string) (*Config, error) {
	v := viper.New()
	setDefaults(v)

	v.SetEnvPrefix(EnvPrefix)
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	if path != "" {
		v.SetConfigFile(path)
		if err := v.ReadInConfig(); err != nil {
			var notFound viper.ConfigFileNotFoundError
			if !errors.As(err, &notFound) && !errors.Is(err, os.ErrNotExist) {
				return nil, fmt.Errorf("failed to read config file %s: %w", path, err)
			}
			slog.Info("Configuration file not found, using defaults and environment", "path", path)
		} else {
			slog.Debug("Configuration file loaded", "path", v.ConfigFileUsed())
		}
	}

	cfg := &Config{}
	if err := v.Unmarshal(cfg); err != nil {
		return nil, fmt.Errorf("failed to parse configuration: %w", err)
	}

	if err := validator.New().Struct(cfg); err != nil {
		return nil, fmt.Errorf("invalid configuration: %w", err)
	}

	return cfg, nil
}

// MessagesFor returns the messages for a language tag. Fields a locale leaves
// empty fall back to the default messages.
func (c *Config) MessagesFor(language string) Messages {
	merged := c.Messages
	locale, ok := c.Locales[strings.ToLower(language)]
	if !ok {
		return merged
	}

	dst := reflect.ValueOf(&merged).Elem()
	src := reflect.ValueOf(locale)
	for i := 0; i < src.NumField(); i++ {
		if s := src.Field(i).String(); s != "" {
			dst.Field(i).SetString(s)
		}
	}
	return merged
}

// HasLanguage reports whether messages can be served in the given language.
func (c *Config) HasLanguage(language string) bool {
	language = strings.ToLower(language)
	if language == DefaultLanguage {
		return true
	}
	_, ok := c.Locales[language]
	return ok
}

// Languages lists the configured language tags, default first.
func (c *Config) Languages() []string {
	var others []string
	for tag := range c.Locales {
		if tag != DefaultLanguage {
			others = append(others, tag)
		}
	}
	sort.Strings(others)
	return append([]string{DefaultLanguage}, others...)
}
