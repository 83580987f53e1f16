package config

import (
	"errors"
	"os"
	"strconv"

	"github.com/joho/godotenv"
)

type Config struct {
	Port            string
	MongoURI        string
	MongoDatabase   string
	Env             string
	MessageLimit    int
	SpamBanSeconds  int
	SessionTTLHours int
}

func getenv(key, def string) string {
	v := os.Getenv(key)
	if v == "" {
		return def
	}
	return v
}

func getenvInt(key string, def int) int {
	v, err := strconv.Atoi(os.Getenv(key))
	if err != nil || v <= 0 {
		return def
	}
	return v
}

// Load reads configuration from the environment, preceded by an optional
// .env file. Values are fixed for the process lifetime.
func Load() Config {
	_ = godotenv.Load()
	return Config{
		Port:            getenv("APP_PORT", "1024"),
		MongoURI:        getenv("MONGODB_URI", "mongodb://127.0.0.1:27017/taka"),
		MongoDatabase:   getenv("MONGODB_DATABASE", "taka"),
		Env:             getenv("APP_ENV", "dev"),
		MessageLimit:    getenvInt("MESSAGE_LIMIT", 10),
		SpamBanSeconds:  getenvInt("SPAM_BAN_SECONDS", 300),
		SessionTTLHours: getenvInt("SESSION_TTL_HOURS", 48),
	}
}

func Validate(cfg Config) error {
	if cfg.Port == "" {
		return errors.New("config: empty port")
	}
	if cfg.MongoURI == "" {
		return errors.New("config: empty mongo uri")
	}
	if cfg.MessageLimit <= 0 || cfg.MessageLimit > 200 {
		return errors.New("config: message limit out of range")
	}
	return nil
}
