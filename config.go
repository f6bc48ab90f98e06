package agentbus

import (
	"os"
	"time"
)

const (
	// defaultURL is used when neither Config.URL nor $REDIS_URL is set.
	defaultURL = "redis://localhost:6379"
	// envURL is the process-wide fallback for the broker address.
	envURL = "REDIS_URL"
)

// Config controls a Bus session.
type Config struct {
	// URL is the broker address (redis:// scheme). Empty falls back to
	// $REDIS_URL, then to redis://localhost:6379.
	URL string

	// Backoff is the fixed delay before retrying after an unexpected
	// transport error in a delivery loop (default: 1s). Deliberately not
	// exponential: the loop runs for the consumer's lifetime and the
	// broker is assumed to recover quickly.
	Backoff time.Duration

	// PingTimeout bounds the liveness probe at construction (default: 2s).
	PingTimeout time.Duration

	// DeadLetter, when set, receives a copy of every poison entry's raw
	// record before it is acknowledged. Empty disables the copy; poison
	// entries are acknowledged and dropped either way.
	DeadLetter string
}

func (c Config) withDefaults() Config {
	if c.URL == "" {
		c.URL = os.Getenv(envURL)
	}
	if c.URL == "" {
		c.URL = defaultURL
	}
	if c.Backoff <= 0 {
		c.Backoff = time.Second
	}
	if c.PingTimeout <= 0 {
		c.PingTimeout = 2 * time.Second
	}
	return c
}
