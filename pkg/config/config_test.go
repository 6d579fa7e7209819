package config_test

import (
	"os"
	"testing"
	"time"

	"github.com/brpandey/basic-paxos/pkg/config"
	"github.com/brpandey/basic-paxos/pkg/paxos"
	"github.com/brpandey/basic-paxos/pkg/test"
)

type ConfigSuite struct {
	*test.Suite
}

type TestConfig struct {
	Param string `env:"TEST_PARAM" env-default:"default"`
	Num   int    `env:"TEST_NUM" env-default:"42" validate:"gte=0"`
}

func TestConfigSuite(t *testing.T) {
	test.Run(t, &ConfigSuite{Suite: test.NewSuite()})
}

func (s *ConfigSuite) TestLoad_Defaults() {
	os.Unsetenv("TEST_PARAM")

	var cfg TestConfig
	err := config.Load(&cfg)

	s.NoError(err)
	s.Equal("default", cfg.Param)
	s.Equal(42, cfg.Num)
}

func (s *ConfigSuite) TestLoad_EnvVar() {
	os.Setenv("TEST_PARAM", "custom")
	defer os.Unsetenv("TEST_PARAM")

	var cfg TestConfig
	err := config.Load(&cfg)

	s.NoError(err)
	s.Equal("custom", cfg.Param)
}

func (s *ConfigSuite) TestLoad_PaxosDefaults() {
	for _, key := range []string{"PAXOS_MIN_QUORUM", "PAXOS_ROUND_TIMEOUT", "PAXOS_RETRY_BUDGET"} {
		os.Unsetenv(key)
	}

	var cfg paxos.Config
	err := config.Load(&cfg)

	s.NoError(err)
	s.Equal(3, cfg.MinQuorum)
	s.Equal(7*time.Second, cfg.RoundTimeout)
	s.Equal(10*time.Second, cfg.RetryBudget)
	s.Equal(2*time.Second, cfg.LeaderChooseDelay)
	s.True(cfg.Retries)
}

func (s *ConfigSuite) TestLoad_PaxosOverrides() {
	os.Setenv("PAXOS_MIN_QUORUM", "5")
	os.Setenv("PAXOS_ROUND_TIMEOUT", "1s")
	defer os.Unsetenv("PAXOS_MIN_QUORUM")
	defer os.Unsetenv("PAXOS_ROUND_TIMEOUT")

	var cfg paxos.Config
	err := config.Load(&cfg)

	s.NoError(err)
	s.Equal(5, cfg.MinQuorum)
	s.Equal(time.Second, cfg.RoundTimeout)
}

func (s *ConfigSuite) TestLoad_ValidationFailure() {
	os.Setenv("PAXOS_MIN_QUORUM", "0")
	defer os.Unsetenv("PAXOS_MIN_QUORUM")

	var cfg paxos.Config
	err := config.Load(&cfg)

	s.Error(err)
}
