// Package params defines the relay's runtime configuration and its defaults.
package params

import (
	"math"
	"os"
	"sync"
	"time"

	"github.com/pkg/errors"
	"gopkg.in/yaml.v2"
)

const microsPerUSDC = 1_000_000

// RelayConfig contains every tunable of the order relay.
type RelayConfig struct {
	// Batching.
	MaxBatchSize int
	MinBatchSize int
	BatchTimeout time.Duration

	// Deposits.
	DepositExpiry         time.Duration
	DepositPollInterval   time.Duration
	AmountToleranceMicros uint64
	UnmatchedRetention    time.Duration

	// Execution.
	SchedulerTick           time.Duration
	MaxConcurrentExecutions int
	DefaultSlippageBps      uint32
	VenueTimeout            time.Duration

	// Persistence.
	SnapshotInterval time.Duration
	SnapshotPath     string

	// HTTP.
	HTTPAddr       string
	AllowedOrigins []string

	// Venue metadata cache.
	MarketCacheTTL time.Duration

	// CustodyAddress is the account depositors fund. Left empty, dev mode
	// generates a throwaway address at boot.
	CustodyAddress string
}

// fileConfig is the yaml schema of the config file. Second- and
// day-granularity timeouts are plain integers; finer-grained intervals are
// time.ParseDuration strings. Every field is optional and overlays the
// defaults.
type fileConfig struct {
	MaxBatchSize            *int     `yaml:"maxBatchSize"`
	MinBatchSize            *int     `yaml:"minBatchSize"`
	BatchTimeoutSeconds     *int64   `yaml:"batchTimeoutSeconds"`
	DepositExpirySeconds    *int64   `yaml:"depositExpirySeconds"`
	DepositPollInterval     *string  `yaml:"depositPollInterval"`
	AmountMatchTolerance    *float64 `yaml:"amountMatchTolerance"`
	UnmatchedRetentionDays  *int64   `yaml:"unmatchedRetentionDays"`
	SchedulerTick           *string  `yaml:"schedulerTick"`
	MaxConcurrentExecutions *int     `yaml:"maxConcurrentExecutions"`
	DefaultSlippageBps      *uint32  `yaml:"defaultSlippageBps"`
	VenueTimeout            *string  `yaml:"venueTimeout"`
	SnapshotInterval        *string  `yaml:"snapshotInterval"`
	SnapshotPath            *string  `yaml:"snapshotPath"`
	HTTPAddr                *string  `yaml:"httpAddr"`
	AllowedOrigins          []string `yaml:"allowedOrigins"`
	MarketCacheTTL          *string  `yaml:"marketCacheTTL"`
	CustodyAddress          *string  `yaml:"custodyAddress"`
}

// DefaultRelayConfig returns the documented defaults.
func DefaultRelayConfig() *RelayConfig {
	return &RelayConfig{
		MaxBatchSize:            25,
		MinBatchSize:            1,
		BatchTimeout:            60 * time.Second,
		DepositExpiry:           time.Hour,
		DepositPollInterval:     15 * time.Second,
		AmountToleranceMicros:   10_000, // 0.01 USDC
		UnmatchedRetention:      7 * 24 * time.Hour,
		SchedulerTick:           time.Second,
		MaxConcurrentExecutions: 4,
		DefaultSlippageBps:      100,
		VenueTimeout:            2 * time.Minute,
		SnapshotInterval:        30 * time.Second,
		SnapshotPath:            "relay-state.json",
		HTTPAddr:                "127.0.0.1:8547",
		AllowedOrigins:          []string{"*"},
		MarketCacheTTL:          30 * time.Second,
	}
}

var (
	cfgLock   sync.RWMutex
	activeCfg = DefaultRelayConfig()
)

// Relay returns the active configuration.
func Relay() *RelayConfig {
	cfgLock.RLock()
	defer cfgLock.RUnlock()
	return activeCfg
}

// OverrideRelayConfig replaces the active configuration. Intended for startup
// and tests.
func OverrideRelayConfig(c *RelayConfig) {
	cfgLock.Lock()
	defer cfgLock.Unlock()
	activeCfg = c
}

// LoadFile overlays a yaml config file onto the defaults and activates it.
func LoadFile(path string) (*RelayConfig, error) {
	raw, err := os.ReadFile(path)
	if err != nil {
		return nil, errors.Wrapf(err, "could not read config file %s", path)
	}
	f := &fileConfig{}
	if err := yaml.UnmarshalStrict(raw, f); err != nil {
		return nil, errors.Wrapf(err, "could not parse config file %s", path)
	}
	c := DefaultRelayConfig()
	if err := f.apply(c); err != nil {
		return nil, errors.Wrapf(err, "config file %s", path)
	}
	OverrideRelayConfig(c)
	return c, nil
}

func (f *fileConfig) apply(c *RelayConfig) error {
	if f.MaxBatchSize != nil {
		c.MaxBatchSize = *f.MaxBatchSize
	}
	if f.MinBatchSize != nil {
		c.MinBatchSize = *f.MinBatchSize
	}
	var err error
	if c.BatchTimeout, err = overlaySeconds(c.BatchTimeout, "batchTimeoutSeconds", f.BatchTimeoutSeconds); err != nil {
		return err
	}
	if c.DepositExpiry, err = overlaySeconds(c.DepositExpiry, "depositExpirySeconds", f.DepositExpirySeconds); err != nil {
		return err
	}
	if f.UnmatchedRetentionDays != nil {
		if *f.UnmatchedRetentionDays < 0 {
			return errors.Errorf("unmatchedRetentionDays must not be negative, got %d", *f.UnmatchedRetentionDays)
		}
		c.UnmatchedRetention = time.Duration(*f.UnmatchedRetentionDays) * 24 * time.Hour
	}
	if f.AmountMatchTolerance != nil {
		if *f.AmountMatchTolerance < 0 {
			return errors.Errorf("amountMatchTolerance must not be negative, got %g", *f.AmountMatchTolerance)
		}
		c.AmountToleranceMicros = uint64(math.Round(*f.AmountMatchTolerance * microsPerUSDC))
	}
	if c.DepositPollInterval, err = overlayDuration(c.DepositPollInterval, "depositPollInterval", f.DepositPollInterval); err != nil {
		return err
	}
	if c.SchedulerTick, err = overlayDuration(c.SchedulerTick, "schedulerTick", f.SchedulerTick); err != nil {
		return err
	}
	if f.MaxConcurrentExecutions != nil {
		c.MaxConcurrentExecutions = *f.MaxConcurrentExecutions
	}
	if f.DefaultSlippageBps != nil {
		c.DefaultSlippageBps = *f.DefaultSlippageBps
	}
	if c.VenueTimeout, err = overlayDuration(c.VenueTimeout, "venueTimeout", f.VenueTimeout); err != nil {
		return err
	}
	if c.SnapshotInterval, err = overlayDuration(c.SnapshotInterval, "snapshotInterval", f.SnapshotInterval); err != nil {
		return err
	}
	if f.SnapshotPath != nil {
		c.SnapshotPath = *f.SnapshotPath
	}
	if f.HTTPAddr != nil {
		c.HTTPAddr = *f.HTTPAddr
	}
	if f.AllowedOrigins != nil {
		c.AllowedOrigins = f.AllowedOrigins
	}
	if c.MarketCacheTTL, err = overlayDuration(c.MarketCacheTTL, "marketCacheTTL", f.MarketCacheTTL); err != nil {
		return err
	}
	if f.CustodyAddress != nil {
		c.CustodyAddress = *f.CustodyAddress
	}
	return nil
}

func overlaySeconds(def time.Duration, key string, v *int64) (time.Duration, error) {
	if v == nil {
		return def, nil
	}
	if *v < 0 {
		return 0, errors.Errorf("%s must not be negative, got %d", key, *v)
	}
	return time.Duration(*v) * time.Second, nil
}

func overlayDuration(def time.Duration, key string, v *string) (time.Duration, error) {
	if v == nil {
		return def, nil
	}
	d, err := time.ParseDuration(*v)
	if err != nil {
		return 0, errors.Wrapf(err, "%s is not a duration", key)
	}
	if d < 0 {
		return 0, errors.Errorf("%s must not be negative, got %s", key, d)
	}
	return d, nil
}
