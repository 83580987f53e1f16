package config

import (
	"os"
	"testing"
)

func TestLoad_Defaults(t *testing.T) {
	os.Unsetenv("APP_PORT")
	os.Unsetenv("MONGODB_URI")
	os.Unsetenv("MONGODB_DATABASE")
	os.Unsetenv("APP_ENV")
	os.Unsetenv("MESSAGE_LIMIT")
	os.Unsetenv("SPAM_BAN_SECONDS")
	os.Unsetenv("SESSION_TTL_HOURS")

	cfg := Load()

	if cfg.Port != "1024" {
		t.Errorf("Load() Port = %v, want 1024", cfg.Port)
	}
	if cfg.Env != "dev" {
		t.Errorf("Load() Env = %v, want dev", cfg.Env)
	}
	if cfg.MessageLimit != 10 {
		t.Errorf("Load() MessageLimit = %v, want 10", cfg.MessageLimit)
	}
	if cfg.SpamBanSeconds != 300 {
		t.Errorf("Load() SpamBanSeconds = %v, want 300", cfg.SpamBanSeconds)
	}
	if cfg.SessionTTLHours != 48 {
		t.Errorf("Load() SessionTTLHours = %v, want 48", cfg.SessionTTLHours)
	}
}

func TestLoad_FromEnv(t *testing.T) {
	os.Setenv("APP_PORT", "9090")
	os.Setenv("MONGODB_URI", "mongodb://mongo:27017/chat")
	os.Setenv("MONGODB_DATABASE", "chat")
	os.Setenv("APP_ENV", "prod")
	os.Setenv("MESSAGE_LIMIT", "25")
	defer func() {
		os.Unsetenv("APP_PORT")
		os.Unsetenv("MONGODB_URI")
		os.Unsetenv("MONGODB_DATABASE")
		os.Unsetenv("APP_ENV")
		os.Unsetenv("MESSAGE_LIMIT")
	}()

	cfg := Load()

	if cfg.Port != "9090" {
		t.Errorf("Load() Port = %v, want 9090", cfg.Port)
	}
	if cfg.MongoURI != "mongodb://mongo:27017/chat" {
		t.Errorf("Load() MongoURI = %v, want mongodb://mongo:27017/chat", cfg.MongoURI)
	}
	if cfg.MongoDatabase != "chat" {
		t.Errorf("Load() MongoDatabase = %v, want chat", cfg.MongoDatabase)
	}
	if cfg.Env != "prod" {
		t.Errorf("Load() Env = %v, want prod", cfg.Env)
	}
	if cfg.MessageLimit != 25 {
		t.Errorf("Load() MessageLimit = %v, want 25", cfg.MessageLimit)
	}
}

func TestLoad_InvalidInts(t *testing.T) {
	os.Setenv("MESSAGE_LIMIT", "invalid")
	os.Setenv("SPAM_BAN_SECONDS", "-5")
	defer func() {
		os.Unsetenv("MESSAGE_LIMIT")
		os.Unsetenv("SPAM_BAN_SECONDS")
	}()

	cfg := Load()

	if cfg.MessageLimit != 10 {
		t.Errorf("Load() MessageLimit = %v, want 10 (default)", cfg.MessageLimit)
	}
	if cfg.SpamBanSeconds != 300 {
		t.Errorf("Load() SpamBanSeconds = %v, want 300 (default)", cfg.SpamBanSeconds)
	}
}

func TestValidate(t *testing.T) {
	tests := []struct {
		name    string
		cfg     Config
		wantErr bool
	}{
		{
			name: "valid config",
			cfg: Config{
				Port:         "1024",
				MongoURI:     "mongodb://127.0.0.1:27017/taka",
				MessageLimit: 10,
			},
			wantErr: false,
		},
		{
			name: "empty port",
			cfg: Config{
				Port:         "",
				MongoURI:     "mongodb://127.0.0.1:27017/taka",
				MessageLimit: 10,
			},
			wantErr: true,
		},
		{
			name: "empty mongo uri",
			cfg: Config{
				Port:         "1024",
				MongoURI:     "",
				MessageLimit: 10,
			},
			wantErr: true,
		},
		{
			name: "message limit out of range",
			cfg: Config{
				Port:         "1024",
				MongoURI:     "mongodb://127.0.0.1:27017/taka",
				MessageLimit: 500,
			},
			wantErr: true,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			err := Validate(tt.cfg)
			if (err != nil) != tt.wantErr {
				t.Errorf("Validate() error = %v, wantErr %v", err, tt.wantErr)
			}
		})
	}
}
