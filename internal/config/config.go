// Package config implements the environment-driven construction contract:
// two variables, <PRODUCT>_API_KEY and <PRODUCT>_ENDPOINT, read via viper's
// automatic-env binding.
package config

import (
	"strings"

	"github.com/spf13/viper"
)

// EnvPrefix is the variable prefix this build binds to.
const EnvPrefix = "BEACON"

// FromEnv holds the two auto-wiring variables, both required non-empty
// for the surrounding glue to construct a client.
type FromEnv struct {
	APIKey   string `mapstructure:"api_key"`
	Endpoint string `mapstructure:"endpoint"`
}

// Ready reports whether both variables were non-empty, the condition the
// surrounding auto-wiring requires before it may construct a client.
func (f FromEnv) Ready() bool {
	return f.APIKey != "" && f.Endpoint != ""
}

// LoadFromEnv reads BEACON_API_KEY and BEACON_ENDPOINT from the process
// environment. It never errors: an absent variable simply leaves the
// corresponding field empty, and Ready reports false.
func LoadFromEnv() FromEnv {
	v := viper.New()
	v.SetEnvPrefix(EnvPrefix)
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()
	_ = v.BindEnv("api_key")
	_ = v.BindEnv("endpoint")

	return FromEnv{
		APIKey:   v.GetString("api_key"),
		Endpoint: v.GetString("endpoint"),
	}
}
