// Package config loads gymlog settings. Values come from an optional YAML
// file, then the environment (a .env file is loaded first) overrides them.
package config

import (
	"errors"
	"fmt"
	"net/url"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/joho/godotenv"
	"gopkg.in/yaml.v3"

	"github.com/thomasfsr/gymlog/src/llm"
)

type Config struct {
	DB       DBConfig       `yaml:"db"`
	Session  SessionConfig  `yaml:"session"`
	WhatsApp WhatsAppConfig `yaml:"whatsapp"`
	HTTP     HTTPConfig     `yaml:"http"`
	LLM      LLMConfig      `yaml:"llm"`
	Log      LogConfig      `yaml:"log"`
}

type DBConfig struct {
	Driver     string        `yaml:"driver"`
	Host       string        `yaml:"host"`
	Port       int           `yaml:"port"`
	Name       string        `yaml:"name"`
	User       string        `yaml:"user"`
	Password   string        `yaml:"password"`
	SSLMode    string        `yaml:"sslmode"`
	MaxConns   int           `yaml:"max_conns"`
	MinConns   int           `yaml:"min_conns"`
	OpTimeout  time.Duration `yaml:"op_timeout"`
	SQLitePath string        `yaml:"sqlite_path"`
}

type SessionConfig struct {
	Backend       string        `yaml:"backend"`
	RedisAddr     string        `yaml:"redis_addr"`
	RedisPassword string        `yaml:"redis_password"`
	RedisDB       int           `yaml:"redis_db"`
	TTL           time.Duration `yaml:"ttl"`
}

type WhatsAppConfig struct {
	// DBPath is the whatsmeow device store.
	DBPath string `yaml:"db_path"`
}

type HTTPConfig struct {
	Addr  string `yaml:"addr"`
	Token string `yaml:"token"`
}

type LLMConfig struct {
	APIKey  string `yaml:"api_key"`
	BaseURL string `yaml:"base_url"`
	Model   string `yaml:"model"`
}

type LogConfig struct {
	Level  string `yaml:"level"`
	Format string `yaml:"format"`
}

func Default() Config {
	return Config{
		DB: DBConfig{
			Driver:     "sqlite",
			Host:       "localhost",
			Port:       5432,
			Name:       "gymlog",
			SSLMode:    "disable",
			MaxConns:   10,
			MinConns:   1,
			OpTimeout:  60 * time.Second,
			SQLitePath: "gymlog.db",
		},
		Session: SessionConfig{
			Backend:   "memory",
			RedisAddr: "localhost:6379",
			TTL:       24 * time.Hour,
		},
		WhatsApp: WhatsAppConfig{DBPath: "whatsmeow.db"},
		HTTP:     HTTPConfig{Addr: ":8080"},
		LLM: LLMConfig{
			BaseURL: llm.DefaultBaseURL,
			Model:   llm.DefaultModel,
		},
		Log: LogConfig{Level: "info", Format: "console"},
	}
}

// Load reads .env, then path (when not empty), then the environment.
func Load(path string) (*Config, error) {
	if err := godotenv.Load(); err != nil && !errors.Is(err, os.ErrNotExist) {
		return nil, fmt.Errorf("load .env: %w", err)
	}

	cfg := Default()
	if path != "" {
		raw, err := os.ReadFile(path)
		if err != nil {
			return nil, fmt.Errorf("read config: %w", err)
		}
		if err := yaml.Unmarshal(raw, &cfg); err != nil {
			return nil, fmt.Errorf("parse config %s: %w", path, err)
		}
	}
	cfg.applyEnv()

	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("invalid configuration: %w", err)
	}
	return &cfg, nil
}

func (c *Config) applyEnv() {
	c.DB.Driver = strings.ToLower(getEnv("DB_DRIVER", c.DB.Driver))
	c.DB.Host = getEnv("DB_HOST", c.DB.Host)
	c.DB.Port = getEnvInt("DB_PORT", c.DB.Port)
	c.DB.Name = getEnv("DB_NAME", c.DB.Name)
	c.DB.User = getEnv("DB_USER", c.DB.User)
	c.DB.Password = getEnv("DB_PASSWORD", c.DB.Password)
	c.DB.SSLMode = getEnv("DB_SSLMODE", c.DB.SSLMode)
	c.DB.MaxConns = getEnvInt("DB_MAX_CONNS", c.DB.MaxConns)
	c.DB.MinConns = getEnvInt("DB_MIN_CONNS", c.DB.MinConns)
	c.DB.OpTimeout = getEnvDuration("DB_OP_TIMEOUT", c.DB.OpTimeout)
	c.DB.SQLitePath = getEnv("SQLITE_PATH", c.DB.SQLitePath)

	c.Session.Backend = strings.ToLower(getEnv("SESSION_BACKEND", c.Session.Backend))
	c.Session.RedisAddr = getEnv("REDIS_ADDR", c.Session.RedisAddr)
	c.Session.RedisPassword = getEnv("REDIS_PASSWORD", c.Session.RedisPassword)
	c.Session.RedisDB = getEnvInt("REDIS_DB", c.Session.RedisDB)
	c.Session.TTL = getEnvDuration("SESSION_TTL", c.Session.TTL)

	c.WhatsApp.DBPath = getEnv("WA_DB_PATH", c.WhatsApp.DBPath)
	c.HTTP.Addr = getEnv("HTTP_ADDR", c.HTTP.Addr)
	c.HTTP.Token = getEnv("HTTP_API_TOKEN", c.HTTP.Token)

	c.LLM.APIKey = getEnv("GROQ_API_KEY", c.LLM.APIKey)
	c.LLM.BaseURL = getEnv("LLM_BASE_URL", c.LLM.BaseURL)
	c.LLM.Model = getEnv("LLM_MODEL", c.LLM.Model)

	c.Log.Level = strings.ToLower(getEnv("LOG_LEVEL", c.Log.Level))
	c.Log.Format = strings.ToLower(getEnv("LOG_FORMAT", c.Log.Format))
}

func (c *Config) Validate() error {
	switch c.DB.Driver {
	case "postgres":
		if c.DB.Host == "" || c.DB.Name == "" || c.DB.User == "" {
			return fmt.Errorf("DB_HOST, DB_NAME and DB_USER are required for postgres")
		}
		if c.DB.MaxConns < 1 || c.DB.MinConns < 0 || c.DB.MinConns > c.DB.MaxConns {
			return fmt.Errorf("DB_MIN_CONNS must be between 0 and DB_MAX_CONNS (%d)", c.DB.MaxConns)
		}
	case "sqlite":
		if c.DB.SQLitePath == "" {
			return fmt.Errorf("SQLITE_PATH cannot be empty")
		}
	default:
		return fmt.Errorf("unknown DB_DRIVER %q", c.DB.Driver)
	}
	if c.DB.OpTimeout <= 0 {
		return fmt.Errorf("DB_OP_TIMEOUT must be > 0")
	}

	switch c.Session.Backend {
	case "memory":
	case "redis":
		if c.Session.RedisAddr == "" {
			return fmt.Errorf("REDIS_ADDR cannot be empty")
		}
	default:
		return fmt.Errorf("unknown SESSION_BACKEND %q", c.Session.Backend)
	}
	if c.Session.TTL < 0 {
		return fmt.Errorf("SESSION_TTL cannot be negative")
	}

	if c.HTTP.Addr == "" {
		return fmt.Errorf("HTTP_ADDR cannot be empty")
	}
	switch c.Log.Format {
	case "console", "json":
	default:
		return fmt.Errorf("unknown LOG_FORMAT %q", c.Log.Format)
	}
	return nil
}

// PostgresDSN builds a postgres:// URL from the DB settings.
func (c *Config) PostgresDSN() string {
	u := url.URL{
		Scheme: "postgres",
		User:   url.UserPassword(c.DB.User, c.DB.Password),
		Host:   c.DB.Host + ":" + strconv.Itoa(c.DB.Port),
		Path:   "/" + c.DB.Name,
	}
	q := url.Values{}
	if c.DB.SSLMode != "" {
		q.Set("sslmode", c.DB.SSLMode)
	}
	u.RawQuery = q.Encode()
	return u.String()
}

// LLMEnabled reports whether free-text set extraction is configured.
func (c *Config) LLMEnabled() bool {
	return c.LLM.APIKey != ""
}

func getEnv(key, fallback string) string {
	if value, ok := os.LookupEnv(key); ok {
		return value
	}
	return fallback
}

func getEnvInt(key string, fallback int) int {
	value, ok := os.LookupEnv(key)
	if !ok {
		return fallback
	}
	n, err := strconv.Atoi(strings.TrimSpace(value))
	if err != nil {
		return fallback
	}
	return n
}

func getEnvDuration(key string, fallback time.Duration) time.Duration {
	value, ok := os.LookupEnv(key)
	if !ok {
		return fallback
	}
	d, err := time.ParseDuration(strings.TrimSpace(value))
	if err != nil {
		return fallback
	}
	return d
}
