package cfg

import "time"

type Cfg struct {
	// Storage
	DBPath        string
	ProvidersDir  string
	VAPIDKeysFile string

	// HTTP
	Port         string
	APIAccessKey string
	UserAgent    string
	FetchTimeout time.Duration

	// Poll policy
	PollCeiling    time.Duration
	AfterResult    time.Duration
	KickoffBuffer  time.Duration
	OverdueDelay   time.Duration
	RetryDelay     time.Duration
	AbandonDelay   time.Duration
	RetryThreshold int
	StartupJitter  time.Duration

	// Notifications
	VAPIDSubject      string
	PushTTL           time.Duration
	DispatchTimeout   time.Duration
	FanoutConcurrency int
	SweepInterval     time.Duration
	SweepThreshold    int

	// Application metadata
	Timezone string
	Debug    bool
	Version  string
}
