package config

import (
	"errors"
	"fmt"
	"net/url"
	"os"
	"strings"

	"github.com/spf13/viper"
)

type Config struct {
	Slack     SlackConfig     `mapstructure:"slack"`
	OpenAI    OpenAIConfig    `mapstructure:"openai"`
	Broker    BrokerConfig    `mapstructure:"broker"`
	Memory    MemoryConfig    `mapstructure:"memory"`
	Database  DatabaseConfig  `mapstructure:"database"`
	Redis     RedisConfig     `mapstructure:"redis"`
	Storage   StorageConfig   `mapstructure:"storage"`
	Assistant AssistantConfig `mapstructure:"assistant"`
}

type SlackConfig struct {
	BotToken      string `mapstructure:"bot_token"`
	SigningSecret string `mapstructure:"signing_secret"`
	WorkspaceURL  string `mapstructure:"workspace_url"`
	// Source is where channels and history come from: "broker" or "api".
	Source     string `mapstructure:"source"`
	ListenAddr string `mapstructure:"listen_addr"`
}

type OpenAIConfig struct {
	APIKey      string  `mapstructure:"api_key"`
	BaseURL     string  `mapstructure:"base_url"`
	Model       string  `mapstructure:"model"`
	MaxTokens   int     `mapstructure:"max_tokens"`
	Temperature float64 `mapstructure:"temperature"`
}

type BrokerConfig struct {
	APIKey             string `mapstructure:"api_key"`
	BaseURL            string `mapstructure:"base_url"`
	ConnectedAccountID string `mapstructure:"connected_account_id"`
}

type MemoryConfig struct {
	Backend      string `mapstructure:"backend"`
	ZepAPIKey    string `mapstructure:"zep_api_key"`
	ZepBaseURL   string `mapstructure:"zep_base_url"`
	SQLitePath   string `mapstructure:"sqlite_path"`
	HistoryLimit int    `mapstructure:"history_limit"`
}

type DatabaseConfig struct {
	Host     string `mapstructure:"host"`
	Port     int    `mapstructure:"port"`
	User     string `mapstructure:"user"`
	Password string `mapstructure:"password"`
	DBName   string `mapstructure:"dbname"`
	SSLMode  string `mapstructure:"sslmode"`
}

type RedisConfig struct {
	URL string `mapstructure:"url"`
}

type StorageConfig struct {
	Backend string `mapstructure:"backend"`
}

type AssistantConfig struct {
	IncludeThreadHistory bool   `mapstructure:"include_thread_history"`
	Timezone             string `mapstructure:"timezone"`
	DefaultUserID        string `mapstructure:"default_user_id"`
}

func parseDatabaseURL(dbURL string) (DatabaseConfig, error) {
	u, err := url.Parse(dbURL)
	if err != nil {
		return DatabaseConfig{}, err
	}
	if u.Host == "" {
		return DatabaseConfig{}, fmt.Errorf("missing host in %q", u.Redacted())
	}

	password, _ := u.User.Password()
	port := 5432 // default PostgreSQL port
	if u.Port() != "" {
		fmt.Sscanf(u.Port(), "%d", &port)
	}

	sslMode := u.Query().Get("sslmode")
	if sslMode == "" {
		sslMode = "disable"
	}

	return DatabaseConfig{
		Host:     u.Hostname(),
		Port:     port,
		User:     u.User.Username(),
		Password: password,
		DBName:   strings.TrimPrefix(u.Path, "/"),
		SSLMode:  sslMode,
	}, nil
}

func setDefaults(v *viper.Viper) {
	v.SetDefault("slack.bot_token", "")
	v.SetDefault("slack.signing_secret", "")
	v.SetDefault("slack.workspace_url", "")
	v.SetDefault("slack.source", "broker")
	v.SetDefault("slack.listen_addr", ":3000")

	v.SetDefault("openai.api_key", "")
	v.SetDefault("openai.base_url", "")
	v.SetDefault("openai.model", "gpt-4o-mini")
	v.SetDefault("openai.max_tokens", 1024)
	v.SetDefault("openai.temperature", 0.2)

	v.SetDefault("broker.api_key", "")
	v.SetDefault("broker.base_url", "https://backend.composio.dev/api/v2")
	v.SetDefault("broker.connected_account_id", "")

	v.SetDefault("memory.backend", "zep")
	v.SetDefault("memory.zep_api_key", "")
	v.SetDefault("memory.zep_base_url", "https://api.getzep.com/api/v2")
	v.SetDefault("memory.sqlite_path", "slack-recall.db")
	v.SetDefault("memory.history_limit", 10)

	v.SetDefault("database.host", "localhost")
	v.SetDefault("database.port", 5432)
	v.SetDefault("database.user", "postgres")
	v.SetDefault("database.password", "")
	v.SetDefault("database.dbname", "slack_recall")
	v.SetDefault("database.sslmode", "disable")

	v.SetDefault("redis.url", "redis://localhost:6379/0")
	v.SetDefault("storage.backend", "memory")

	v.SetDefault("assistant.include_thread_history", true)
	v.SetDefault("assistant.timezone", "UTC")
	v.SetDefault("assistant.default_user_id", "cli")
}

// LoadConfig reads defaults, then the optional YAML file at path, then the
// environment (SLACK_BOT_TOKEN, OPENAI_API_KEY, DATABASE_URL, ...).
func LoadConfig(path string) (*Config, error) {
	v := viper.New()
	setDefaults(v)

	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	if path != "" {
		if _, err := os.Stat(path); err == nil {
			v.SetConfigFile(path)
			if err := v.ReadInConfig(); err != nil {
				return nil, fmt.Errorf("failed to read config %s: %w", path, err)
			}
		} else if !errors.Is(err, os.ErrNotExist) {
			return nil, fmt.Errorf("failed to stat config %s: %w", path, err)
		}
	}

	var config Config
	if err := v.Unmarshal(&config); err != nil {
		return nil, fmt.Errorf("failed to decode config: %w", err)
	}

	// Check for DATABASE_URL environment variable
	if dbURL := v.GetString("DATABASE_URL"); dbURL != "" {
		dbConfig, err := parseDatabaseURL(dbURL)
		if err != nil {
			return nil, fmt.Errorf("failed to parse DATABASE_URL: %w", err)
		}
		config.Database = dbConfig
	}

	// Hosted-service keys under their conventional names
	if key := v.GetString("ZEP_API_KEY"); key != "" {
		config.Memory.ZepAPIKey = key
	}
	if key := v.GetString("COMPOSIO_API_KEY"); key != "" {
		config.Broker.APIKey = key
	}
	if redisURL := v.GetString("REDIS_URL"); redisURL != "" {
		config.Redis.URL = redisURL
	}

	if err := config.Validate(); err != nil {
		return nil, err
	}
	return &config, nil
}

// Validate checks the enumerated settings.
func (c *Config) Validate() error {
	switch c.Slack.Source {
	case "broker", "api":
	default:
		return fmt.Errorf("unknown slack.source %q (want broker or api)", c.Slack.Source)
	}
	switch c.Memory.Backend {
	case "zep", "sqlite":
	default:
		return fmt.Errorf("unknown memory.backend %q (want zep or sqlite)", c.Memory.Backend)
	}
	switch c.Storage.Backend {
	case "memory", "postgres", "redis":
	default:
		return fmt.Errorf("unknown storage.backend %q (want memory, postgres or redis)", c.Storage.Backend)
	}
	return nil
}
