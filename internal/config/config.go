package config

import (
	"errors"
	"fmt"
	"os"
	"strings"
	"time"

	"github.com/go-playground/validator/v10"
	"github.com/joho/godotenv"
	"github.com/spf13/viper"
)

const (
	BackendPGVector = "pgvector"
	BackendLocal    = "local"
)

type Config struct {
	Gemini      GeminiConfig    `mapstructure:"gemini"`
	Warehouse   WarehouseConfig `mapstructure:"warehouse"`
	RAG         RAGConfig       `mapstructure:"rag"`
	PersonaFile string          `mapstructure:"persona_file"`
	Log         LogConfig       `mapstructure:"log"`
	Server      ServerConfig    `mapstructure:"server"`
}

type GeminiConfig struct {
	APIKey          string        `mapstructure:"api_key" validate:"required"`
	BaseURL         string        `mapstructure:"base_url" validate:"omitempty,url"`
	ChatModel       string        `mapstructure:"chat_model" validate:"required"`
	EmbeddingModel  string        `mapstructure:"embedding_model" validate:"required"`
	Dimension       int           `mapstructure:"dimension" validate:"gt=0"`
	Temperature     float32       `mapstructure:"temperature" validate:"gte=0,lte=2"`
	MaxOutputTokens int32         `mapstructure:"max_output_tokens" validate:"gte=0"`
	Timeout         time.Duration `mapstructure:"timeout" validate:"gt=0"`
}

type WarehouseConfig struct {
	Backend        string        `mapstructure:"backend" validate:"oneof=pgvector local"`
	DSN            string        `mapstructure:"dsn"`
	Account        string        `mapstructure:"account"`
	Port           int           `mapstructure:"port" validate:"gte=0,lte=65535"`
	User           string        `mapstructure:"user"`
	Password       string        `mapstructure:"password"`
	PrivateKeyPath string        `mapstructure:"private_key_path"`
	CertPath       string        `mapstructure:"cert_path"`
	Role           string        `mapstructure:"role"`
	Warehouse      string        `mapstructure:"warehouse"`
	Database       string        `mapstructure:"database"`
	Schema         string        `mapstructure:"schema"`
	Table          string        `mapstructure:"table" validate:"required"`
	Timeout        time.Duration `mapstructure:"timeout" validate:"gt=0"`
}

type RAGConfig struct {
	TopK           int           `mapstructure:"top_k" validate:"gte=1"`
	IncludeAnswers bool          `mapstructure:"include_answers"`
	CacheSize      int           `mapstructure:"cache_size" validate:"gte=0"`
	CacheTTL       time.Duration `mapstructure:"cache_ttl" validate:"gte=0"`
	Timeout        time.Duration `mapstructure:"timeout" validate:"gte=0"`
	VectorsDir     string        `mapstructure:"vectors_dir"`
}

type LogConfig struct {
	File       string `mapstructure:"file"`
	Level      string `mapstructure:"level" validate:"omitempty,oneof=debug info warn error"`
	MaxSizeMB  int    `mapstructure:"max_size_mb" validate:"gte=0"`
	MaxBackups int    `mapstructure:"max_backups" validate:"gte=0"`
	MaxAgeDays int    `mapstructure:"max_age_days" validate:"gte=0"`
}

type ServerConfig struct {
	Addr string `mapstructure:"addr" validate:"required"`
}

// Error 启动阶段的配置错误，出现即退出
type Error struct {
	Field  string
	Reason string
	Err    error
}

func (e *Error) Error() string {
	msg := "config"
	if e.Field != "" {
		msg += " " + e.Field
	}
	if e.Reason != "" {
		msg += ": " + e.Reason
	}
	if e.Err != nil {
		msg += ": " + e.Err.Error()
	}
	return msg
}

func (e *Error) Unwrap() error { return e.Err }

func setDefaults(v *viper.Viper) {
	v.SetDefault("gemini.chat_model", "gemini-2.5-flash")
	v.SetDefault("gemini.embedding_model", "text-embedding-004")
	v.SetDefault("gemini.dimension", 768)
	v.SetDefault("gemini.temperature", 0.2)
	v.SetDefault("gemini.max_output_tokens", 1024)
	v.SetDefault("gemini.timeout", 60*time.Second)

	v.SetDefault("warehouse.backend", BackendPGVector)
	v.SetDefault("warehouse.port", 5432)
	v.SetDefault("warehouse.table", "claims")
	v.SetDefault("warehouse.timeout", 15*time.Second)

	v.SetDefault("rag.top_k", 5)
	v.SetDefault("rag.cache_size", 256)
	v.SetDefault("rag.cache_ttl", 10*time.Minute)
	v.SetDefault("rag.timeout", 30*time.Second)
	v.SetDefault("rag.vectors_dir", "data/vectors")

	v.SetDefault("log.file", "logs/assistant.log")
	v.SetDefault("log.level", "info")
	v.SetDefault("log.max_size_mb", 20)
	v.SetDefault("log.max_backups", 3)
	v.SetDefault("log.max_age_days", 14)

	v.SetDefault("server.addr", ":8080")
}

var envKeys = []string{
	"gemini.api_key",
	"gemini.base_url",
	"warehouse.dsn",
	"warehouse.account",
	"warehouse.user",
	"warehouse.password",
	"warehouse.private_key_path",
	"warehouse.cert_path",
	"warehouse.role",
	"warehouse.warehouse",
	"warehouse.database",
	"warehouse.schema",
	"persona_file",
}

// Load 读取配置文件。path 为空时只用默认值和环境变量。
func Load(path string) (*Config, error) {
	// .env 不存在不算错误
	if err := godotenv.Load(); err != nil && !errors.Is(err, os.ErrNotExist) {
		return nil, &Error{Field: ".env", Reason: "load", Err: err}
	}

	v := viper.New()
	setDefaults(v)
	v.AutomaticEnv()
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))

	if path != "" {
		v.SetConfigFile(path)
		if err := v.ReadInConfig(); err != nil {
			return nil, &Error{Field: path, Reason: "read config", Err: err}
		}
	}

	// 没有默认值的 key 需要显式绑定，Unmarshal 才会读到对应的环境变量，
	// 例如 warehouse.account 对应 WAREHOUSE_ACCOUNT
	for _, key := range envKeys {
		if err := v.BindEnv(key); err != nil {
			return nil, &Error{Field: key, Reason: "bind env", Err: err}
		}
	}

	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return nil, &Error{Reason: "unmarshal config", Err: err}
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return &cfg, nil
}

var validate = validator.New(validator.WithRequiredStructEnabled())

// Validate 校验字段约束和跨字段规则，返回 *Error
func (c *Config) Validate() error {
	if err := validate.Struct(c); err != nil {
		var verrs validator.ValidationErrors
		if errors.As(err, &verrs) && len(verrs) > 0 {
			fe := verrs[0]
			return &Error{Field: fieldKey(fe.Namespace()), Reason: fmt.Sprintf("failed %q", fe.Tag()), Err: err}
		}
		return &Error{Reason: "validate", Err: err}
	}

	if c.Warehouse.Backend == BackendPGVector && c.Warehouse.DSN == "" {
		if c.Warehouse.Account == "" || c.Warehouse.User == "" || c.Warehouse.Database == "" {
			return &Error{Field: "warehouse", Reason: "dsn or account, user and database are required"}
		}
		if c.Warehouse.Password == "" && c.Warehouse.PrivateKeyPath == "" {
			return &Error{Field: "warehouse.password", Reason: "password or private_key_path is required"}
		}
	}
	if c.Warehouse.PrivateKeyPath != "" && c.Warehouse.CertPath == "" {
		return &Error{Field: "warehouse.cert_path", Reason: "required with private_key_path"}
	}
	if c.Warehouse.Backend == BackendLocal && c.RAG.VectorsDir == "" {
		return &Error{Field: "rag.vectors_dir", Reason: "required for the local backend"}
	}
	return nil
}

// fieldKey 把 "Config.Gemini.APIKey" 转成配置文件里的 key
func fieldKey(namespace string) string {
	parts := strings.Split(namespace, ".")
	if len(parts) > 1 {
		parts = parts[1:]
	}
	for i, p := range parts {
		parts[i] = snake(p)
	}
	return strings.Join(parts, ".")
}

func snake(s string) string {
	var b strings.Builder
	runes := []rune(s)
	for i, r := range runes {
		upper := r >= 'A' && r <= 'Z'
		if upper && i > 0 {
			prevLower := runes[i-1] >= 'a' && runes[i-1] <= 'z'
			nextLower := i+1 < len(runes) && runes[i+1] >= 'a' && runes[i+1] <= 'z'
			if prevLower || nextLower {
				b.WriteByte('_')
			}
		}
		if upper {
			r += 'a' - 'A'
		}
		b.WriteRune(r)
	}
	return b.String()
}
