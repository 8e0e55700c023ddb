package cfg

import (
	"cmp"
	"errors"
	"fmt"
	"io/fs"
	"time"

	"github.com/jessevdk/go-flags"
	"github.com/joho/godotenv"
)

// Version is set at build time via -ldflags
var Version = "dev"

func GetVersion() string {
	return cmp.Or(Version, "unknown")
}

type rawCfg struct {
	// Storage configuration
	DBPath        string `long:"db-path" env:"DB_PATH" default:"./data/match-watch.db" description:"SQLite database file"`
	ProvidersDir  string `long:"providers-dir" env:"PROVIDERS_DIR" default:"./providers" description:"Directory containing provider configuration files"`
	VAPIDKeysFile string `long:"vapid-keys-file" env:"VAPID_KEYS_FILE" default:"./data/vapid.yml" description:"File holding the VAPID key pair, generated when missing"`

	// HTTP configuration
	Port         string        `long:"port" env:"PORT" default:"8080" description:"HTTP server port"`
	APIAccessKey string        `long:"api-key" env:"API_ACCESS_KEY" description:"API access key for provider management (optional)"`
	UserAgent    string        `long:"user-agent" env:"USER_AGENT" default:"Match Watch/1.0" description:"User agent string for provider requests"`
	FetchTimeout time.Duration `long:"fetch-timeout" env:"FETCH_TIMEOUT" default:"30s" description:"Timeout for a single provider download"`

	// Poll policy
	PollCeiling    time.Duration `long:"poll-ceiling" env:"POLL_CEILING" default:"8h" description:"Longest delay between two polls of a provider"`
	AfterResult    time.Duration `long:"after-result" env:"AFTER_RESULT" default:"20m" description:"Poll delay while a result waits for its report"`
	KickoffBuffer  time.Duration `long:"kickoff-buffer" env:"KICKOFF_BUFFER" default:"90m" description:"Delay after kickoff before a result is expected"`
	OverdueDelay   time.Duration `long:"overdue-delay" env:"OVERDUE_DELAY" default:"10m" description:"Poll delay when a result is overdue"`
	RetryDelay     time.Duration `long:"retry-delay" env:"RETRY_DELAY" default:"3h" description:"Backoff after a failed poll"`
	AbandonDelay   time.Duration `long:"abandon-delay" env:"ABANDON_DELAY" default:"24h" description:"Backoff once the retry threshold is reached"`
	RetryThreshold int           `long:"retry-threshold" env:"RETRY_THRESHOLD" default:"3" description:"Consecutive failures before the long backoff applies"`
	StartupJitter  time.Duration `long:"startup-jitter" env:"STARTUP_JITTER" default:"10s" description:"Upper bound of the random delay for first polls"`

	// Notification configuration
	VAPIDSubject      string        `long:"vapid-subject" env:"VAPID_SUBJECT" default:"mailto:admin@localhost" description:"Contact sent to push services"`
	PushTTL           time.Duration `long:"push-ttl" env:"PUSH_TTL" default:"12h" description:"How long push services keep undelivered messages"`
	DispatchTimeout   time.Duration `long:"dispatch-timeout" env:"DISPATCH_TIMEOUT" default:"10s" description:"Timeout for a single push delivery"`
	FanoutConcurrency int           `long:"fanout-concurrency" env:"FANOUT_CONCURRENCY" default:"8" description:"Parallel push deliveries per notification"`
	SweepInterval     time.Duration `long:"sweep-interval" env:"SWEEP_INTERVAL" default:"24h" description:"Interval of the subscriber health sweep"`
	SweepThreshold    int           `long:"sweep-threshold" env:"SWEEP_THRESHOLD" default:"64" description:"Net delivery failures after which a subscriber is removed"`

	// Application metadata
	Timezone string `long:"timezone" env:"TZ" default:"Europe/Berlin" description:"Timezone of provider schedules (e.g., UTC, Europe/Berlin)"`
	Debug    bool   `long:"debug" env:"DEBUG" description:"Enable debug logging"`
}

var globalCfg *Cfg

// Load reads flags and environment. Variables from a .env file in the
// working directory fill in whatever the environment does not set.
func Load() (*Cfg, error) {
	if err := godotenv.Load(); err != nil && !errors.Is(err, fs.ErrNotExist) {
		return nil, fmt.Errorf("failed to read .env file: %w", err)
	}
	return load(nil)
}

func load(args []string) (*Cfg, error) {
	var raw rawCfg

	parser := flags.NewParser(&raw, flags.Default)

	var err error
	if args == nil {
		_, err = parser.Parse()
	} else {
		_, err = parser.ParseArgs(args)
	}
	if err != nil {
		if flagsErr, ok := err.(*flags.Error); ok {
			if flagsErr.Type == flags.ErrHelp {
				return nil, nil
			}
		}
		return nil, fmt.Errorf("failed to parse configuration: %w", err)
	}

	cfg := &Cfg{
		DBPath:            raw.DBPath,
		ProvidersDir:      raw.ProvidersDir,
		VAPIDKeysFile:     raw.VAPIDKeysFile,
		Port:              raw.Port,
		APIAccessKey:      raw.APIAccessKey,
		UserAgent:         raw.UserAgent,
		FetchTimeout:      raw.FetchTimeout,
		PollCeiling:       raw.PollCeiling,
		AfterResult:       raw.AfterResult,
		KickoffBuffer:     raw.KickoffBuffer,
		OverdueDelay:      raw.OverdueDelay,
		RetryDelay:        raw.RetryDelay,
		AbandonDelay:      raw.AbandonDelay,
		RetryThreshold:    raw.RetryThreshold,
		StartupJitter:     raw.StartupJitter,
		VAPIDSubject:      raw.VAPIDSubject,
		PushTTL:           raw.PushTTL,
		DispatchTimeout:   raw.DispatchTimeout,
		FanoutConcurrency: raw.FanoutConcurrency,
		SweepInterval:     raw.SweepInterval,
		SweepThreshold:    raw.SweepThreshold,
		Timezone:          raw.Timezone,
		Debug:             raw.Debug,
		Version:           GetVersion(),
	}

	if err := cfg.validate(); err != nil {
		return nil, err
	}

	if err := applyTimezone(cfg.Timezone); err != nil {
		fmt.Printf("Warning: Invalid timezone '%s', using system default: %v\n", cfg.Timezone, err)
	}

	globalCfg = cfg

	return cfg, nil
}

func Get() *Cfg {
	if globalCfg == nil {
		panic("configuration not loaded - call cfg.Load() first")
	}
	return globalCfg
}

func (c *Cfg) validate() error {
	positive := map[string]time.Duration{
		"poll-ceiling":   c.PollCeiling,
		"after-result":   c.AfterResult,
		"overdue-delay":  c.OverdueDelay,
		"retry-delay":    c.RetryDelay,
		"abandon-delay":  c.AbandonDelay,
		"sweep-interval": c.SweepInterval,
	}
	for name, value := range positive {
		if value <= 0 {
			return fmt.Errorf("%s must be positive", name)
		}
	}

	if c.RetryThreshold < 1 {
		return fmt.Errorf("retry-threshold must be at least 1")
	}
	if c.FanoutConcurrency < 1 {
		return fmt.Errorf("fanout-concurrency must be at least 1")
	}
	if c.SweepThreshold < 0 {
		return fmt.Errorf("sweep-threshold must be non-negative")
	}
	return nil
}

func applyTimezone(timezone string) error {
	if timezone != "" {
		if loc, err := time.LoadLocation(timezone); err != nil {
			return err
		} else {
			time.Local = loc
			fmt.Printf("Timezone configured: %s\n", timezone)
		}
	}
	return nil
}
