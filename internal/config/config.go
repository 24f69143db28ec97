package config

import (
	"fmt"
	"log"
	"time"

	"github.com/caarlos0/env/v10"
	"github.com/joho/godotenv"
)

type Config struct {
	GeminiAPIKey    string  `env:"GEMINI_API_KEY,required,notEmpty"`
	ChatModel       string  `env:"CHAT_MODEL" envDefault:"gemini-2.5-flash"`
	TitleModel      string  `env:"TITLE_MODEL" envDefault:"gemini-2.5-flash"`
	Temperature     float32 `env:"CHAT_TEMPERATURE" envDefault:"0.85"`
	TopP            float32 `env:"CHAT_TOP_P" envDefault:"0.92"`
	MaxOutputTokens int32   `env:"CHAT_MAX_OUTPUT_TOKENS" envDefault:"8192"`

	HTTPPort string `env:"HTTP_PORT" envDefault:"8080"`
	LogLevel string `env:"LOG_LEVEL" envDefault:"INFO"`

	StorageBackend string `env:"STORAGE_BACKEND" envDefault:"sqlite"` // sqlite, redis or memory
	DatabaseURL    string `env:"DATABASE_URL" envDefault:"rafeeq.db"`
	RedisAddr      string `env:"REDIS_ADDR" envDefault:"localhost:6379"`
	RedisPassword  string `env:"REDIS_PASSWORD"`
	RedisDB        int    `env:"REDIS_DB" envDefault:"0"`
	RedisPrefix    string `env:"REDIS_PREFIX" envDefault:"rafeeq:"`

	FAQFile string `env:"FAQ_FILE"`

	TTSCommand       string        `env:"TTS_COMMAND" envDefault:"espeak-ng"`
	SpeechLang       string        `env:"SPEECH_LANG" envDefault:"ar-EG"`
	SpeechRate       float64       `env:"SPEECH_RATE" envDefault:"1.0"`
	SpeechPitch      float64       `env:"SPEECH_PITCH" envDefault:"1.0"`
	SpeechRetryDelay time.Duration `env:"SPEECH_RETRY_DELAY" envDefault:"100ms"`
	DictationEnabled bool          `env:"DICTATION_ENABLED" envDefault:"true"`
}

var AppConfig Config

// Load parses the environment into a Config without touching AppConfig.
func Load() (Config, error) {
	var cfg Config
	if err := env.Parse(&cfg); err != nil {
		return Config{}, err
	}
	switch cfg.StorageBackend {
	case "sqlite", "redis", "memory":
	default:
		return Config{}, fmt.Errorf("unknown STORAGE_BACKEND %q", cfg.StorageBackend)
	}
	return cfg, nil
}

func LoadConfig() {
	err := godotenv.Load() // Load .env file if it exists
	if err != nil {
		log.Println("No .env file found, relying on environment variables")
	}

	cfg, err := Load()
	if err != nil {
		log.Fatalf("Invalid configuration: %v", err)
	}
	AppConfig = cfg
}
