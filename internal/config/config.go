package config

import (
	"fmt"
	"os"
	"strings"

	"github.com/mitchellh/mapstructure"
	"github.com/spf13/viper"
)

// PathEnv names the environment variable holding the config file path.
const PathEnv = "CONFIG_PATH"

type options struct {
	envPrefix string
}

type Option func(o *options)

// WithEnvPrefix only lets variables starting with prefix override file values, e.g. QUIZ_STORE_DRIVER.
func WithEnvPrefix(prefix string) Option {
	return func(o *options) {
		o.envPrefix = prefix
	}
}

// Load config from file into the config struct, config must be a pointer to the config struct.
// Values already set in config act as defaults, environment variables override the file.
func Load(file string, config any, opts ...Option) error {
	var o options
	for _, opt := range opts {
		opt(&o)
	}

	v := viper.New()
	m := make(map[string]any)

	if err := mapstructure.Decode(config, &m); err != nil {
		return fmt.Errorf("mapstructure: %v", err)
	}

	// Defaults make every key known to viper, so AutomaticEnv can override keys the file omits.
	setDefaults(v, "", m)

	v.SetConfigFile(file)
	if o.envPrefix != "" {
		v.SetEnvPrefix(o.envPrefix)
	}
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()
	if err := v.ReadInConfig(); err != nil {
		return fmt.Errorf("read config from file %s: %v", file, err)
	}
	if err := v.Unmarshal(config); err != nil {
		return fmt.Errorf("unmarshal config: %v", err)
	}

	return nil
}

func setDefaults(v *viper.Viper, prefix string, m map[string]any) {
	for k, val := range m {
		key := k
		if prefix != "" {
			key = prefix + "." + k
		}

		if sub, ok := val.(map[string]any); ok {
			setDefaults(v, key, sub)
			continue
		}

		v.SetDefault(key, val)
	}
}

// LoadFromEnv loads the file named by CONFIG_PATH.
func LoadFromEnv(config any, opts ...Option) error {
	p := os.Getenv(PathEnv)
	if p == "" {
		return fmt.Errorf("%s not set", PathEnv)
	}

	return Load(p, config, opts...)
}
