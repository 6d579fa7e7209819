package paxos

import "time"

// Config holds the tunables of the consensus engine. Normalize fills
// zero durations and counts with defaults; Retries is taken as given.
type Config struct {
	// MinQuorum is the smallest reachable-peer count permitted to
	// attempt a round.
	MinQuorum int `env:"PAXOS_MIN_QUORUM" env-default:"3" validate:"gte=1"`

	// RoundTimeout bounds each phase's multicast.
	RoundTimeout time.Duration `env:"PAXOS_ROUND_TIMEOUT" env-default:"7s"`

	// RetryBudget is the total elapsed time Start keeps retrying
	// declined rounds.
	RetryBudget time.Duration `env:"PAXOS_RETRY_BUDGET" env-default:"10s"`

	// Retries toggles the retry loop in Start. When false Start
	// behaves like StartOnce.
	Retries bool `env:"PAXOS_RETRIES" env-default:"true"`

	// LeaderChooseDelay is the settle interval before a (re)election.
	LeaderChooseDelay time.Duration `env:"PAXOS_LEADER_CHOOSE_DELAY" env-default:"2s"`

	// LeaderBootDelay schedules the first election after boot when no
	// client request has forced one earlier.
	LeaderBootDelay time.Duration `env:"PAXOS_LEADER_BOOT_DELAY" env-default:"4s"`
}

// DefaultConfig mirrors the env-default tags.
func DefaultConfig() Config {
	return Config{
		MinQuorum:         3,
		RoundTimeout:      7 * time.Second,
		RetryBudget:       10 * time.Second,
		Retries:           true,
		LeaderChooseDelay: 2 * time.Second,
		LeaderBootDelay:   4 * time.Second,
	}
}

// Normalize fills zero fields with defaults and returns the result.
func (c Config) Normalize() Config {
	def := DefaultConfig()
	if c.MinQuorum == 0 {
		c.MinQuorum = def.MinQuorum
	}
	if c.RoundTimeout == 0 {
		c.RoundTimeout = def.RoundTimeout
	}
	if c.RetryBudget == 0 {
		c.RetryBudget = def.RetryBudget
	}
	if c.LeaderChooseDelay == 0 {
		c.LeaderChooseDelay = def.LeaderChooseDelay
	}
	if c.LeaderBootDelay == 0 {
		c.LeaderBootDelay = def.LeaderBootDelay
	}
	return c
}
