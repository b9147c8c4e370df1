package config

import (
	"os"
	"strconv"
	"strings"
	"time"
)

type Config struct {
	App struct {
		Environment string
		LogLevel    string
		EnableDebug bool
	}

	Farm struct {
		UseProxy          bool
		MaxThreads        int
		MaxThreadsNoProxy int
		NodePerAccount    int
		CycleSleep        time.Duration
		RequestDelay      time.Duration
		BatchPause        time.Duration
		StartDelayMinSecs int
		StartDelayMaxSecs int
	}

	HTTP struct {
		RequestTimeout time.Duration
		RateLimitPause time.Duration
		WorkerTimeout  time.Duration
	}

	Endpoints struct {
		Candidates    []string
		WalletDetails string
		ExtAPI        string
		Ping          string
	}

	Files struct {
		Accounts   string
		Wallets    string
		Proxies    string
		Tokens     string
		LocalState string
		UserAgents string
	}

	Metrics struct {
		Enabled bool
		Addr    string
	}
}

func Load() (*Config, error) {
	cfg := &Config{}

	// App settings
	cfg.App.Environment = getEnvOrDefault("APP_ENV", "production")
	cfg.App.LogLevel = getEnvOrDefault("LOG_LEVEL", "info")
	cfg.App.EnableDebug = getEnvAsBoolOrDefault("ENABLE_DEBUG", false)

	// Farm settings
	cfg.Farm.UseProxy = getEnvAsBoolOrDefault("USE_PROXY", true)
	cfg.Farm.MaxThreads = getEnvAsIntOrDefault("MAX_THREADS", 10)
	cfg.Farm.MaxThreadsNoProxy = getEnvAsIntOrDefault("MAX_THREADS_NO_PROXY", 10)
	cfg.Farm.NodePerAccount = getEnvAsIntOrDefault("NODE_PER_ACCOUNT", 1)
	cfg.Farm.CycleSleep = time.Duration(getEnvAsIntOrDefault("TIME_SLEEP_MINS", 10)) * time.Minute
	cfg.Farm.RequestDelay = time.Duration(getEnvAsIntOrDefault("DELAY_BETWEEN_REQUESTS_SECS", 3)) * time.Second
	cfg.Farm.BatchPause = time.Duration(getEnvAsIntOrDefault("BATCH_PAUSE_SECS", 5)) * time.Second
	cfg.Farm.StartDelayMinSecs = getEnvAsIntOrDefault("DELAY_START_BOT_MIN_SECS", 1)
	cfg.Farm.StartDelayMaxSecs = getEnvAsIntOrDefault("DELAY_START_BOT_MAX_SECS", 15)

	// HTTP settings
	cfg.HTTP.RequestTimeout = time.Duration(getEnvAsIntOrDefault("REQUEST_TIMEOUT_SECS", 30)) * time.Second
	cfg.HTTP.RateLimitPause = time.Duration(getEnvAsIntOrDefault("RATE_LIMIT_PAUSE_SECS", 60)) * time.Second
	cfg.HTTP.WorkerTimeout = time.Duration(getEnvAsIntOrDefault("WORKER_TIMEOUT_HOURS", 24)) * time.Hour

	// Remote endpoints
	cfg.Endpoints.Candidates = getEnvAsListOrDefault("BASE_URL_CANDIDATES",
		[]string{"https://naorisprotocol.network/sec-api/api"})
	cfg.Endpoints.WalletDetails = getEnvOrDefault("WALLET_DETAILS_URL",
		"https://naorisprotocol.network/testnet-api/api/testnet/walletDetails")
	cfg.Endpoints.ExtAPI = getEnvOrDefault("EXT_API_URL",
		"https://naorisprotocol.network/ext-api/api")
	cfg.Endpoints.Ping = getEnvOrDefault("PING_URL",
		"https://beat.naorisprotocol.network/api/ping")

	// Local files
	cfg.Files.Accounts = getEnvOrDefault("ACCOUNTS_FILE", "accounts.json")
	cfg.Files.Wallets = getEnvOrDefault("WALLETS_FILE", "wallets.txt")
	cfg.Files.Proxies = getEnvOrDefault("PROXY_FILE", "proxy.txt")
	cfg.Files.Tokens = getEnvOrDefault("TOKENS_FILE", "tokens.json")
	cfg.Files.LocalState = getEnvOrDefault("LOCAL_STATE_FILE", "localStorage.json")
	cfg.Files.UserAgents = getEnvOrDefault("USER_AGENTS_FILE", "session_user_agents.json")

	// Metrics listener (off by default, the process is an outbound client)
	cfg.Metrics.Enabled = getEnvAsBoolOrDefault("METRICS_ENABLED", false)
	cfg.Metrics.Addr = getEnvOrDefault("METRICS_ADDR", ":8080")

	return cfg, nil
}

// MaxConcurrency is the per-batch worker cap for the active proxy mode.
func (c *Config) MaxConcurrency() int {
	if c.Farm.UseProxy {
		return c.Farm.MaxThreads
	}
	return c.Farm.MaxThreadsNoProxy
}

func getEnvOrDefault(key, defaultValue string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return defaultValue
}

func getEnvAsIntOrDefault(key string, defaultValue int) int {
	if value := os.Getenv(key); value != "" {
		if intVal, err := strconv.Atoi(value); err == nil {
			return intVal
		}
	}
	return defaultValue
}

func getEnvAsBoolOrDefault(key string, defaultValue bool) bool {
	if value := os.Getenv(key); value != "" {
		if boolVal, err := strconv.ParseBool(value); err == nil {
			return boolVal
		}
	}
	return defaultValue
}

func getEnvAsListOrDefault(key string, defaultValue []string) []string {
	if value := os.Getenv(key); value != "" {
		var out []string
		for _, part := range strings.Split(value, ",") {
			if part = strings.TrimSpace(part); part != "" {
				out = append(out, part)
			}
		}
		if len(out) > 0 {
			return out
		}
	}
	return defaultValue
}
