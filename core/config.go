package core

import (
	"log"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/joho/godotenv"
	"github.com/spf13/viper"
)

// Config carries every tunable of the client, resolved once at start up.
// Defaults match the production API contract; any key can be overridden
// via `<ENV>_`-prefixed environment variables or a config/.env.<env> file.
type Config struct {
	Debug    bool
	TestMode bool
	Env      string
	AppName  string
	Build    string

	// SecretKey keys the at-rest obfuscation of tokens and the cached user.
	SecretKey string

	// APIBaseURL is the REST API root; WSBaseURL the session push endpoint root.
	APIBaseURL string
	WSBaseURL  string

	// StorePath is the sqlite file backing the local store. Empty selects
	// an in-memory store (tests).
	StorePath string

	// APITimeout is the per-request abort deadline.
	APITimeout time.Duration
	// MaxRetryAttempts bounds transport-level retries of retryable statuses.
	MaxRetryAttempts int

	// TokenRefreshThreshold is the lead time before access token expiry at
	// which a proactive refresh fires.
	TokenRefreshThreshold time.Duration
	// SessionCheckInterval is the poll cadence when no push channel is
	// available.
	SessionCheckInterval time.Duration
	// PushReconnectDelay is the wait before the single reconnect attempt
	// after an unclean push channel closure.
	PushReconnectDelay time.Duration

	// ProgressSyncInterval is the auto-flush cadence of the progress queue.
	ProgressSyncInterval time.Duration
	// VideoAutoCompleteThreshold is the watched fraction (0..1) that marks
	// a lesson complete.
	VideoAutoCompleteThreshold float64

	// Client-side rate ceilings, all over a sliding 60s window.
	MaxAPICallsPerMinute    int
	MaxNavigationsPerMinute int

	// Login attempt limiter.
	MaxLoginAttempts     int
	LoginLockoutDuration time.Duration

	// GET response cache.
	CacheDuration time.Duration
	CacheMaxItems int

	// AnalyticsEnabled gates the analytics dispatcher entirely.
	AnalyticsEnabled       bool
	AnalyticsFlushInterval time.Duration

	RollbarToken string
}

// NewConfig resolves the configuration from defaults, an optional
// config/.env.<env> file and the environment.
func NewConfig() *Config {
	conf := viper.New()
	conf.SetTypeByDefaultValue(true)

	// defaults
	conf.SetDefault("debug", true)
	conf.SetDefault("appName", "Darasa")
	conf.SetDefault("build", "dev")
	conf.SetDefault("secretKey", "q2d8-yul)wnb$+04=kz&vpxh9(h!x)#*c7(#yg5h^$cegm3emy")
	conf.SetDefault("apiBaseURL", "http://localhost:3000/api")
	conf.SetDefault("wsBaseURL", "ws://localhost:3000")
	conf.SetDefault("storePath", defaultStorePath())
	conf.SetDefault("apiTimeout", 30*time.Second)
	conf.SetDefault("maxRetryAttempts", 3)
	conf.SetDefault("tokenRefreshThreshold", 5*time.Minute)
	conf.SetDefault("sessionCheckInterval", time.Minute)
	conf.SetDefault("pushReconnectDelay", 5*time.Second)
	conf.SetDefault("progressSyncInterval", 5*time.Second)
	conf.SetDefault("videoAutoCompleteThreshold", 0.9)
	conf.SetDefault("maxAPICallsPerMinute", 60)
	conf.SetDefault("maxNavigationsPerMinute", 30)
	conf.SetDefault("maxLoginAttempts", 5)
	conf.SetDefault("loginLockoutDuration", 15*time.Minute)
	conf.SetDefault("cacheDuration", 5*time.Minute)
	conf.SetDefault("cacheMaxItems", 100)
	conf.SetDefault("analyticsEnabled", true)
	conf.SetDefault("analyticsFlushInterval", 30*time.Second)
	conf.SetDefault("rollbarToken", "")

	env := os.Getenv("ENV") // DEV (local; default), TEST, QA, PROD
	switch env {
	case "":
		env = "DEV"
	case "TEST":
		conf.SetDefault("testMode", true)
	}
	conf.SetEnvPrefix(env)

	// load .env if it exists (ignore if it does not)
	dotEnvPath := filepath.Join(Getwd(), "config", ".env."+strings.ToLower(env))
	if _, err := os.Stat(dotEnvPath); err == nil {
		if err := godotenv.Load(dotEnvPath); err != nil {
			log.Fatalf("config.godotenv(%s): %v", dotEnvPath, err)
		}
	} else if !os.IsNotExist(err) {
		log.Fatalf("config.os.Stat(%s): %v", dotEnvPath, err)
	}
	conf.AutomaticEnv()

	return &Config{
		Debug:                      conf.GetBool("debug"),
		TestMode:                   conf.GetBool("testMode"),
		Env:                        env,
		AppName:                    conf.GetString("appName"),
		Build:                      conf.GetString("build"),
		SecretKey:                  conf.GetString("secretKey"),
		APIBaseURL:                 strings.TrimRight(conf.GetString("apiBaseURL"), "/"),
		WSBaseURL:                  strings.TrimRight(conf.GetString("wsBaseURL"), "/"),
		StorePath:                  conf.GetString("storePath"),
		APITimeout:                 conf.GetDuration("apiTimeout"),
		MaxRetryAttempts:           conf.GetInt("maxRetryAttempts"),
		TokenRefreshThreshold:      conf.GetDuration("tokenRefreshThreshold"),
		SessionCheckInterval:       conf.GetDuration("sessionCheckInterval"),
		PushReconnectDelay:         conf.GetDuration("pushReconnectDelay"),
		ProgressSyncInterval:       conf.GetDuration("progressSyncInterval"),
		VideoAutoCompleteThreshold: conf.GetFloat64("videoAutoCompleteThreshold"),
		MaxAPICallsPerMinute:       conf.GetInt("maxAPICallsPerMinute"),
		MaxNavigationsPerMinute:    conf.GetInt("maxNavigationsPerMinute"),
		MaxLoginAttempts:           conf.GetInt("maxLoginAttempts"),
		LoginLockoutDuration:       conf.GetDuration("loginLockoutDuration"),
		CacheDuration:              conf.GetDuration("cacheDuration"),
		CacheMaxItems:              conf.GetInt("cacheMaxItems"),
		AnalyticsEnabled:           conf.GetBool("analyticsEnabled"),
		AnalyticsFlushInterval:     conf.GetDuration("analyticsFlushInterval"),
		RollbarToken:               conf.GetString("rollbarToken"),
	}
}

func defaultStorePath() string {
	dir, err := os.UserConfigDir()
	if err != nil {
		dir = Getwd()
	}
	return filepath.Join(dir, "darasa", "store.db")
}

// Getwd returns the current working directory; it dies on failure since
// nothing downstream can run without it.
func Getwd() string {
	cwd, err := os.Getwd()
	if err != nil {
		log.Fatalf("config.os.Getwd: %v", err)
	}
	return cwd
}
