package config

import (
	"os"
	"strconv"
	"strings"

	"github.com/joho/godotenv"
)

type Config struct {
	ServerURL  string
	DBPath     string
	PageSize   int
	Timeout    int     // seconds
	ScrollRate float64 // older-page fetches per second
	LogLevel   string
	LogFile    string
}

// Load reads configuration from the environment. A .env file in the working
// directory is applied first; variables already set in the environment win.
func Load() *Config {
	_ = godotenv.Load()

	cfg := &Config{
		ServerURL:  "http://localhost:8080",
		DBPath:     defaultDBPath(),
		PageSize:   10,
		Timeout:    15,
		ScrollRate: 2,
		LogLevel:   "info",
	}

	if server := os.Getenv("MCHAT_SERVER"); server != "" {
		cfg.ServerURL = strings.TrimRight(server, "/")
	}

	if dbPath := os.Getenv("MCHAT_DB_PATH"); dbPath != "" {
		cfg.DBPath = dbPath
	}

	if sizeStr := os.Getenv("MCHAT_PAGE_SIZE"); sizeStr != "" {
		if size, err := strconv.Atoi(sizeStr); err == nil && size > 0 {
			cfg.PageSize = size
		}
	}

	if timeoutStr := os.Getenv("MCHAT_TIMEOUT"); timeoutStr != "" {
		if timeout, err := strconv.Atoi(timeoutStr); err == nil && timeout > 0 {
			cfg.Timeout = timeout
		}
	}

	if rateStr := os.Getenv("MCHAT_SCROLL_RATE"); rateStr != "" {
		if rate, err := strconv.ParseFloat(rateStr, 64); err == nil && rate > 0 {
			cfg.ScrollRate = rate
		}
	}

	if level := os.Getenv("MCHAT_LOG_LEVEL"); level != "" {
		cfg.LogLevel = level
	}

	if logFile := os.Getenv("MCHAT_LOG_FILE"); logFile != "" {
		cfg.LogFile = logFile
	}

	return cfg
}

// WebSocketURL derives the /ws endpoint from the REST base URL.
func (c *Config) WebSocketURL() string {
	u := c.ServerURL
	switch {
	case strings.HasPrefix(u, "https://"):
		u = "wss://" + strings.TrimPrefix(u, "https://")
	case strings.HasPrefix(u, "http://"):
		u = "ws://" + strings.TrimPrefix(u, "http://")
	}
	return u + "/ws"
}

func defaultDBPath() string {
	dir, err := os.UserConfigDir()
	if err != nil {
		return "mchat.db"
	}
	return dir + string(os.PathSeparator) + "mchat" + string(os.PathSeparator) + "mchat.db"
}
