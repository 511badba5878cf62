package config

import (
	"fmt"
	"os"
	"strings"
	"time"

	"github.com/joho/godotenv"
	"github.com/knadh/koanf/parsers/toml"
	"github.com/knadh/koanf/providers/confmap"
	"github.com/knadh/koanf/providers/env"
	"github.com/knadh/koanf/providers/file"
	"github.com/knadh/koanf/v2"
	"github.com/rs/zerolog/log"
)

// EnvPrefix - префикс переменных окружения: COMMENTREE_THREAD_DEPTH_LIMIT -> thread.depth_limit
const EnvPrefix = "COMMENTREE_"

type Database struct {
	Host       string `koanf:"host"`
	Port       int    `koanf:"port"`
	User       string `koanf:"user"`
	Password   string `koanf:"password"`
	Name       string `koanf:"name"`
	SSLMode    string `koanf:"sslmode"`
	LogQueries bool   `koanf:"log_queries"`
}

type Config struct {
	Server struct {
		Port int `koanf:"port"`
	} `koanf:"server"`

	Storage struct {
		Type string `koanf:"type"` // memory или postgres
	} `koanf:"storage"`

	Database Database `koanf:"database"`

	Auth struct {
		JWTSecret  string        `koanf:"jwt_secret"`
		TokenTTL   time.Duration `koanf:"token_ttl"`
		Moderators []string      `koanf:"moderators"` // имена глобальных модераторов
	} `koanf:"auth"`

	Thread struct {
		DepthLimit       int `koanf:"depth_limit"`
		FetchConcurrency int `koanf:"fetch_concurrency"`
	} `koanf:"thread"`

	Comment struct {
		MaxLength int `koanf:"max_length"`
	} `koanf:"comment"`

	Report struct {
		DetailsMax int `koanf:"details_max"`
	} `koanf:"report"`

	Interaction struct {
		CountEdits bool `koanf:"count_edits"`
	} `koanf:"interaction"`

	Log struct {
		Level  string `koanf:"level"`
		Pretty bool   `koanf:"pretty"`
	} `koanf:"log"`
}

func defaults() map[string]interface{} {
	return map[string]interface{}{
		"server.port":              8080,
		"storage.type":             "memory",
		"database.host":            "localhost",
		"database.port":            5432,
		"database.sslmode":         "disable",
		"auth.token_ttl":           "72h",
		"thread.depth_limit":       2,
		"thread.fetch_concurrency": 8,
		"comment.max_length":       2000,
		"report.details_max":       500,
		"interaction.count_edits":  false,
		"log.level":                "info",
		"log.pretty":               false,
	}
}

// LoadEnv загружает .env, если он есть
func LoadEnv() {
	err := godotenv.Load()
	if err != nil {
		log.Debug().Msg(".env file not found")
	}
}

// Load собирает конфигурацию: значения по умолчанию -> TOML-файл -> переменные окружения
func Load(configPath string) (*Config, error) {
	LoadEnv()

	k := koanf.New(".")

	if err := k.Load(confmap.Provider(defaults(), "."), nil); err != nil {
		return nil, fmt.Errorf("error loading defaults: %w", err)
	}

	if configPath != "" {
		if err := k.Load(file.Provider(configPath), toml.Parser()); err != nil {
			return nil, fmt.Errorf("error loading config: %w", err)
		}
	} else {
		for _, path := range []string{"./commentree.toml", "$HOME/.commentree.toml"} {
			path = os.ExpandEnv(path)
			if _, err := os.Stat(path); err == nil {
				if err := k.Load(file.Provider(path), toml.Parser()); err == nil {
					break
				}
			}
		}
	}

	err := k.Load(env.ProviderWithValue(EnvPrefix, ".", envValue), nil)
	if err != nil {
		return nil, fmt.Errorf("error loading environment: %w", err)
	}

	var cfg Config
	if err := k.Unmarshal("", &cfg); err != nil {
		return nil, fmt.Errorf("error unmarshalling config: %w", err)
	}

	return &cfg, nil
}

// envKey переводит COMMENTREE_THREAD_DEPTH_LIMIT в thread.depth_limit:
// первый сегмент - секция, остальное - ключ.
func envKey(s string) string {
	key := strings.ToLower(strings.TrimPrefix(s, EnvPrefix))
	section, rest, found := strings.Cut(key, "_")
	if !found {
		return key
	}
	return section + "." + rest
}

// listKeys - ключи-списки, в окружении задаются через запятую
var listKeys = map[string]bool{
	"auth.moderators": true,
}

func envValue(name, value string) (string, interface{}) {
	key := envKey(name)
	if !listKeys[key] {
		return key, value
	}
	items := []string{}
	for _, item := range strings.Split(value, ",") {
		if item = strings.TrimSpace(item); item != "" {
			items = append(items, item)
		}
	}
	return key, items
}

// Validate проверяет согласованность конфигурации
func Validate(cfg *Config) error {
	switch cfg.Storage.Type {
	case "memory":
	case "postgres":
		if cfg.Database.Name == "" || cfg.Database.User == "" {
			return fmt.Errorf("database name and user are required for postgres storage")
		}
	default:
		return fmt.Errorf("unknown storage type: %s", cfg.Storage.Type)
	}

	if cfg.Auth.JWTSecret == "" {
		return fmt.Errorf("auth.jwt_secret is required")
	}
	if cfg.Thread.DepthLimit < 0 {
		return fmt.Errorf("thread.depth_limit must not be negative")
	}
	if cfg.Thread.FetchConcurrency < 1 {
		return fmt.Errorf("thread.fetch_concurrency must be at least 1")
	}
	if cfg.Comment.MaxLength < 1 {
		return fmt.Errorf("comment.max_length must be at least 1")
	}
	if cfg.Report.DetailsMax < 0 {
		return fmt.Errorf("report.details_max must not be negative")
	}
	return nil
}
