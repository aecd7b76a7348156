// Package config loads the service configuration with viper.
package config

import (
	"errors"
	"os"
	"strings"

	"github.com/spf13/viper"

	"ve-ledger/ledger"
	"ve-ledger/repository"
)

// DefaultFile is read when no --config flag is given.
const DefaultFile = "config/config.yaml"

// EnvPrefix prefixes environment overrides, e.g. VELEDGER_SERVER_PORT.
const EnvPrefix = "VELEDGER"

type Config struct {
	Port       int
	AppLogFile string
	LogLevel   string
	LevelDB    string
	Ledger     ledger.Params
	Storage    repository.Params
}

func setDefaults(v *viper.Viper) {
	lp, rp := ledger.DefaultParams(), repository.DefaultParams()

	v.SetDefault("server.port", 8080)
	v.SetDefault("log.app_log_file", "")
	v.SetDefault("log.level", "info")
	v.SetDefault("leveldb.path", "data/ledger")

	v.SetDefault("ledger.min_lock_amount", lp.MinLockAmount)
	v.SetDefault("ledger.min_lock_amount_increment", lp.MinLockAmountIncrement)
	v.SetDefault("ledger.min_lock_duration", lp.MinLockDuration)
	v.SetDefault("ledger.min_extension", lp.MinExtension)
	v.SetDefault("ledger.max_boundaries_per_operation", lp.MaxBoundariesPerOperation)
	v.SetDefault("ledger.max_boundaries_per_maintain", lp.MaxBoundariesPerMaintain)
	v.SetDefault("ledger.page_capacity", rp.PageCapacity)
	v.SetDefault("ledger.bond_base", rp.BondBase)
	v.SetDefault("ledger.bond_per_byte", rp.BondPerByte)
}

// Load reads file, applies VELEDGER_* environment overrides and fills in defaults.
// A missing file is only an error when it was asked for explicitly.
func Load(file string) (*Config, error) {
	v := viper.New()
	setDefaults(v)
	v.SetEnvPrefix(EnvPrefix)
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	explicit := file != ""
	if !explicit {
		file = DefaultFile
	}
	v.SetConfigFile(file)
	if err := v.ReadInConfig(); err != nil {
		if explicit || !errors.Is(err, os.ErrNotExist) {
			return nil, err
		}
	}

	c := &Config{
		Port:       v.GetInt("server.port"),
		AppLogFile: v.GetString("log.app_log_file"),
		LogLevel:   v.GetString("log.level"),
		LevelDB:    v.GetString("leveldb.path"),
		Ledger: ledger.Params{
			MinLockAmount:             v.GetUint64("ledger.min_lock_amount"),
			MinLockAmountIncrement:    v.GetUint64("ledger.min_lock_amount_increment"),
			MinLockDuration:           v.GetUint64("ledger.min_lock_duration"),
			MinExtension:              v.GetUint64("ledger.min_extension"),
			MaxBoundariesPerOperation: v.GetInt("ledger.max_boundaries_per_operation"),
			MaxBoundariesPerMaintain:  v.GetInt("ledger.max_boundaries_per_maintain"),
		},
		Storage: repository.Params{
			PageCapacity: v.GetUint64("ledger.page_capacity"),
			BondBase:     v.GetUint64("ledger.bond_base"),
			BondPerByte:  v.GetUint64("ledger.bond_per_byte"),
		},
	}
	if err := c.validate(); err != nil {
		return nil, err
	}
	return c, nil
}

func (c *Config) validate() error {
	switch {
	case c.Storage.PageCapacity == 0:
		return errors.New("ledger.page_capacity must be positive")
	case c.Ledger.MaxBoundariesPerOperation <= 0 || c.Ledger.MaxBoundariesPerMaintain <= 0:
		return errors.New("ledger boundary limits must be positive")
	}
	return nil
}
