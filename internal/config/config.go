package config

import (
	"os"
	"strconv"
	"time"
)

// DatabaseConfig holds session database settings.
// Driver selects the backend: "sqlite" (embedded file at Path) or "postgres".
type DatabaseConfig struct {
	Driver             string
	Path               string
	Host               string
	Port               string
	User               string
	Password           string
	Name               string
	SSLMode            string
	MaxOpenConns       int
	MaxIdleConns       int
	ConnMaxLifetimeSec int
}

// MinIOConfig holds object storage settings for MinIO.
type MinIOConfig struct {
	Endpoint  string
	AccessKey string
	SecretKey string
	Bucket    string
	UseSSL    bool
}

// StorageConfig selects where synthesized audio is cached.
// Driver "local" writes under AudioDir, "minio" uses the MinIO settings.
type StorageConfig struct {
	Driver   string
	AudioDir string
}

// GeminiConfig holds settings for the text generation provider.
type GeminiConfig struct {
	APIKey  string
	Model   string
	BaseURL string
}

// ElevenConfig holds ElevenLabs text-to-speech settings.
type ElevenConfig struct {
	APIKey         string
	Model          string
	DefaultVoiceID string
	BaseURL        string
}

// SnowflakeConfig holds Cortex inference settings. Streaming chat is disabled when Host is empty.
type SnowflakeConfig struct {
	Host  string
	Token string
	Model string
}

// WorldConfig points at the character roster and the setting description.
type WorldConfig struct {
	CharactersPath string
	SettingPath    string
}

// EngineConfig tunes turn generation.
type EngineConfig struct {
	HistoryWindow  int
	RatePerMinute  int
	RequestTimeout time.Duration
}

// AppConfig is the centralized configuration struct for the application.
// It is populated from environment variables. Sensitive values are not hardcoded.
type AppConfig struct {
	AppHost   string
	Host      string
	Port      string
	Timezone  string
	Database  DatabaseConfig
	Storage   StorageConfig
	MinIO     MinIOConfig
	Gemini    GeminiConfig
	Eleven    ElevenConfig
	Snowflake SnowflakeConfig
	World     WorldConfig
	Engine    EngineConfig
}

// Load reads configuration from environment variables.
// A .env file can be auto-loaded by importing: _ "github.com/joho/godotenv/autoload"
// This function does not require a .env file; real environment variables take precedence.
func Load() *AppConfig {
	return &AppConfig{
		AppHost:  getEnv("APP_HOST", "localhost:8050"),
		Host:     getEnv("HOST", "0.0.0.0"),
		Port:     getEnv("PORT", "8050"),
		Timezone: getEnv("APP_TIMEZONE", "UTC"),
		Database: DatabaseConfig{
			Driver:             getEnv("DB_DRIVER", "sqlite"),
			Path:               getEnv("DB_PATH", "data/fateweaver.db"),
			Host:               getEnv("DB_HOST", ""),
			Port:               getEnv("DB_PORT", "5432"),
			User:               getEnv("DB_USER", ""),
			Password:           getEnv("DB_PASSWORD", ""),
			Name:               getEnv("DB_NAME", ""),
			SSLMode:            getEnv("DB_SSLMODE", "disable"),
			MaxOpenConns:       getEnvInt("DB_MAX_OPEN_CONNS", 10),
			MaxIdleConns:       getEnvInt("DB_MAX_IDLE_CONNS", 5),
			ConnMaxLifetimeSec: getEnvInt("DB_CONN_MAX_LIFETIME_SEC", 300),
		},
		Storage: StorageConfig{
			Driver:   getEnv("STORAGE_DRIVER", "local"),
			AudioDir: getEnv("AUDIO_DIR", "assets"),
		},
		MinIO: MinIOConfig{
			Endpoint:  getEnv("MINIO_ENDPOINT", ""),
			AccessKey: getEnv("MINIO_ACCESS_KEY", ""),
			SecretKey: getEnv("MINIO_SECRET_KEY", ""),
			Bucket:    getEnv("MINIO_BUCKET", ""),
			UseSSL:    getEnvBool("MINIO_USE_SSL", false),
		},
		Gemini: GeminiConfig{
			APIKey:  getEnv("GEMINI_API_KEY", ""),
			Model:   getEnv("GEMINI_MODEL", "gemini-2.5-flash"),
			BaseURL: getEnv("GEMINI_BASE_URL", "https://generativelanguage.googleapis.com"),
		},
		Eleven: ElevenConfig{
			APIKey:         getEnv("ELEVEN_API_KEY", ""),
			Model:          getEnv("ELEVEN_MODEL", "eleven_v3"),
			DefaultVoiceID: getEnv("ELEVEN_DEFAULT_VOICE_ID", ""),
			BaseURL:        getEnv("ELEVEN_BASE_URL", "https://api.elevenlabs.io/v1"),
		},
		Snowflake: SnowflakeConfig{
			Host:  getEnv("SNOWFLAKE_HOST", ""),
			Token: getEnv("SNOWFLAKE_TOKEN", ""),
			Model: getEnv("SNOWFLAKE_MODEL", "claude-3-5-sonnet"),
		},
		World: WorldConfig{
			CharactersPath: getEnv("CHARACTERS_PATH", "characters.json"),
			SettingPath:    getEnv("SETTING_PATH", "setting.json"),
		},
		Engine: EngineConfig{
			HistoryWindow:  getEnvInt("HISTORY_WINDOW", 20),
			RatePerMinute:  getEnvInt("LLM_RATE_PER_MIN", 30),
			RequestTimeout: getEnvDuration("LLM_REQUEST_TIMEOUT", 120*time.Second),
		},
	}
}

// Location resolves Timezone, falling back to UTC when it is unknown.
func (c *AppConfig) Location() *time.Location {
	loc, err := time.LoadLocation(c.Timezone)
	if err != nil {
		return time.UTC
	}
	return loc
}

func getEnv(key, def string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return def
}

func getEnvBool(key string, def bool) bool {
	if v := os.Getenv(key); v != "" {
		b, err := strconv.ParseBool(v)
		if err == nil {
			return b
		}
	}
	return def
}

func getEnvInt(key string, def int) int {
	if v := os.Getenv(key); v != "" {
		i, err := strconv.Atoi(v)
		if err == nil {
			return i
		}
	}
	return def
}

func getEnvDuration(key string, def time.Duration) time.Duration {
	if v := os.Getenv(key); v != "" {
		d, err := time.ParseDuration(v)
		if err == nil {
			return d
		}
	}
	return def
}
