package main

import (
	"os"
	"sync"

	"z407ctl/internal/ble"
	"z407ctl/internal/config"
)

// commandContext carries the flags and lazily-loaded config shared by all
// subcommands. newAdapter is swappable so command tests can run against a
// mock transport.
type commandContext struct {
	configFlag  *string
	addressFlag *string
	verboseFlag *bool

	configOnce sync.Once
	config     *config.Config
	configErr  error

	newAdapter func() ble.Adapter
}

func newCommandContext(configFlag, addressFlag *string, verboseFlag *bool) *commandContext {
	return &commandContext{
		configFlag:  configFlag,
		addressFlag: addressFlag,
		verboseFlag: verboseFlag,
		newAdapter:  func() ble.Adapter { return ble.NewSystemAdapter() },
	}
}

// ensureConfig loads the config file once: the --config path if given, the
// default path if it exists, built-in defaults otherwise.
func (c *commandContext) ensureConfig() (*config.Config, error) {
	c.configOnce.Do(func() {
		var cfg *config.Config
		var err error

		switch {
		case c.configFlag != nil && *c.configFlag != "":
			cfg, err = config.Load(*c.configFlag)
		default:
			path := config.DefaultConfigPath()
			if _, statErr := os.Stat(path); statErr == nil {
				cfg, err = config.Load(path)
			} else {
				cfg = config.Default()
			}
		}
		if err != nil {
			c.configErr = err
			return
		}
		if c.verboseFlag != nil && *c.verboseFlag {
			cfg.LogLevel = "debug"
		}
		if err := cfg.Validate(); err != nil {
			c.configErr = err
			return
		}
		c.config = cfg
	})
	return c.config, c.configErr
}

// address resolves the puck address: the --address flag wins, then the
// config file. Empty means the caller should scan.
func (c *commandContext) address(cfg *config.Config) string {
	if c.addressFlag != nil && *c.addressFlag != "" {
		return *c.addressFlag
	}
	return cfg.DeviceAddress
}
