package bolide

import (
	"fmt"
	"os"
	"time"

	"github.com/joho/godotenv"
)

// Environment variables recognized by FromEnv.
const (
	envEndpoint        = "BOLIDE_ENDPOINT"
	envOrigin          = "BOLIDE_ORIGIN"
	envDevFallback     = "BOLIDE_DEV_FALLBACK"
	envAPIKey          = "BOLIDE_API_KEY"
	envFetchTimeout    = "BOLIDE_FETCH_TIMEOUT"
	envRefreshInterval = "BOLIDE_REFRESH_INTERVAL"
	envSnapshotDir     = "BOLIDE_SNAPSHOT_DIR"
)

// FromEnv builds options from BOLIDE_* environment variables. A .env file
// in the working directory is loaded first when present. Returned options
// are meant to be combined with explicit ones, which take precedence when
// applied later:
//
//	envOpts, err := bolide.FromEnv()
//	if err != nil {
//		return err
//	}
//	client, err := bolide.New(append(envOpts, bolide.WithHazardousOnly(true))...)
func FromEnv() ([]Option, error) {
	_ = godotenv.Load()

	var opts []Option

	if v := os.Getenv(envEndpoint); v != "" {
		opts = append(opts, WithEndpoint(v))
	}

	if v := os.Getenv(envOrigin); v != "" {
		opts = append(opts, WithOrigin(v))
	}

	if v := os.Getenv(envDevFallback); v != "" {
		opts = append(opts, WithDevFallback(v))
	}

	if v := os.Getenv(envAPIKey); v != "" {
		opts = append(opts, WithAPIKey(v))
	}

	if v := os.Getenv(envFetchTimeout); v != "" {
		d, err := time.ParseDuration(v)
		if err != nil {
			return nil, &ConfigError{
				Field:   "feed.fetch_timeout",
				Message: fmt.Sprintf("invalid %s %q: %v", envFetchTimeout, v, err),
			}
		}
		opts = append(opts, WithFetchTimeout(d))
	}

	if v := os.Getenv(envRefreshInterval); v != "" {
		d, err := time.ParseDuration(v)
		if err != nil {
			return nil, &ConfigError{
				Field:   "cache.refresh_interval",
				Message: fmt.Sprintf("invalid %s %q: %v", envRefreshInterval, v, err),
			}
		}
		opts = append(opts, WithRefreshInterval(d))
	}

	if v := os.Getenv(envSnapshotDir); v != "" {
		opts = append(opts, WithSnapshotDir(v))
	}

	return opts, nil
}
