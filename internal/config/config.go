package config

import (
	"log"
	"os"
	"time"

	"github.com/ilyakaznacheev/cleanenv"
)

type Config struct {
	Env         string `yaml:"env" env-default:"local"`
	StoragePath string `yaml:"storage_path" env-required:"true"`
	RedisAddr   string `yaml:"redis_addr" env-default:"localhost:6379"`
	HTTPServer  `yaml:"http_server"`
	Attendance  Attendance  `yaml:"attendance"`
	Idempotency Idempotency `yaml:"idempotency"`
	Recognition Recognition `yaml:"recognition"`
	Lock        Lock        `yaml:"lock"`
}

type HTTPServer struct {
	Address         string        `yaml:"address" env-default:"localhost:8080"`
	Timeout         time.Duration `yaml:"timeout" env-default:"4s"`
	IdleTimeout     time.Duration `yaml:"idle_timeout" env-default:"60s"`
	ShutdownTimeout time.Duration `yaml:"shutdown_timeout" env-default:"15s"`
}

type Attendance struct {
	// StrictCampers aborts an attendance batch when a camper id does not
	// resolve, instead of skipping the unknown camper.
	StrictCampers bool `yaml:"strict_campers" env-default:"false"`
}

type Idempotency struct {
	TTL           time.Duration `yaml:"ttl" env-default:"1h"`
	ProcessingTTL time.Duration `yaml:"processing_ttl" env-default:"30s"`
}

type Lock struct {
	// TTL bounds how long a schedule lock may outlive a crashed holder.
	TTL time.Duration `yaml:"ttl" env-default:"10s"`
}

type Recognition struct {
	MatcherURL    string        `yaml:"matcher_url" env-required:"true"`
	Timeout       time.Duration `yaml:"timeout" env-default:"10s"`
	MinConfidence float64       `yaml:"min_confidence" env-default:"0.75"`
}

func MustLoad() *Config {
	var cfg Config

	configPath := os.Getenv("CONFIG_PATH")
	if configPath == "" {
		configPath = "config/config.yaml"
	}

	if _, err := os.Stat(configPath); os.IsNotExist(err) {
		log.Fatalf("Config file does not exist: %s", configPath)
	}

	if err := cleanenv.ReadConfig(configPath, &cfg); err != nil {
		log.Fatalf("Failed to read config file: %v", err)
	}

	return &cfg
}
