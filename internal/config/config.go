package config

import (
	"os"
	"strconv"
	"time"
)

type Config struct {
	DatabaseURL      string
	Location         *time.Location
	HTTPAddr         string
	LogLevel         string
	Env              string // dev|prod
	SentryDSN        string
	RolloverInterval time.Duration
}

func Load() (*Config, error) {
	tz := getenv("TZ", "Asia/Ho_Chi_Minh")
	loc, err := time.LoadLocation(tz)
	if err != nil {
		loc = time.Local
	}

	interval, err := parseMinutes(getenv("ROLLOVER_INTERVAL_MIN", "10"))
	if err != nil {
		return nil, err
	}

	cfg := &Config{
		DatabaseURL:      mustEnv("DATABASE_URL"),
		Location:         loc,
		HTTPAddr:         getenv("HTTP_ADDR", ":8080"),
		LogLevel:         getenv("LOG_LEVEL", "info"),
		Env:              getenv("ENV", "dev"),
		SentryDSN:        os.Getenv("SENTRY_DSN"),
		RolloverInterval: interval,
	}
	return cfg, nil
}

func mustEnv(k string) string {
	v := os.Getenv(k)
	if v == "" {
		panic("required env " + k + " is empty")
	}
	return v
}

func getenv(k, def string) string {
	if v := os.Getenv(k); v != "" {
		return v
	}
	return def
}

func parseMinutes(s string) (time.Duration, error) {
	n, err := strconv.Atoi(s)
	if err != nil {
		return 0, err
	}
	if n < 1 {
		n = 1
	}
	return time.Duration(n) * time.Minute, nil
}
