package config

import (
	"os"
	"strconv"
	"time"
)

type Config struct {
	Port               string
	DatabaseURL        string
	ResetTimezone      string
	SettingsPoll       time.Duration
	HealthInterval     time.Duration
	HealthGrace        time.Duration
	CallLogLimit       int
	RateLimitPerMinute int
	RateLimitBurst     int
}

func Load() Config {
	port := os.Getenv("PORT")
	if port == "" {
		port = "8080"
	}

	tz := os.Getenv("RESET_TIMEZONE")
	if tz == "" {
		tz = "Asia/Shanghai"
	}

	return Config{
		Port:               port,
		DatabaseURL:        os.Getenv("DB_DSN"),
		ResetTimezone:      tz,
		SettingsPoll:       readDurationSeconds("SETTINGS_POLL_SECONDS", 300),
		HealthInterval:     readDurationSeconds("SCHEDULER_HEALTH_SECONDS", 1800),
		HealthGrace:        readDurationSeconds("SCHEDULER_GRACE_SECONDS", 120),
		CallLogLimit:       readInt("CALL_LOG_LIMIT", 100),
		RateLimitPerMinute: readInt("RATE_LIMIT_PER_MIN", 120),
		RateLimitBurst:     readInt("RATE_LIMIT_BURST", 30),
	}
}

func readDurationSeconds(key string, fallback int) time.Duration {
	value := readInt(key, fallback)
	if value <= 0 {
		return 0
	}
	return time.Duration(value) * time.Second
}

func readInt(key string, fallback int) int {
	raw := os.Getenv(key)
	if raw == "" {
		return fallback
	}
	value, err := strconv.Atoi(raw)
	if err != nil {
		return fallback
	}
	return value
}
