package config

import (
	"fmt"
	"reflect"
	"strings"

	"github.com/artelie/backend/internal/flagx"
	"github.com/spf13/viper"
)

// EnvPrefix namespaces environment overrides, e.g. ARTELIE_SECRET_KEY.
const EnvPrefix = "ARTELIE"

// parseFileAndEnv overlays the config file named by -c/-config (JSON or YAML,
// picked by extension) and ARTELIE_* environment variables onto config.
// Values already in config act as defaults, so a key missing from both
// sources keeps its current value.
func parseFileAndEnv(config *Config, args []string) error {
	v := viper.New()
	v.SetEnvPrefix(EnvPrefix)
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	setDefaults(v, config)

	if path := flagx.ConfigFileFlag(args); path != "" {
		v.SetConfigFile(path)
		if err := v.ReadInConfig(); err != nil {
			return fmt.Errorf("read config: %w", err)
		}
	}

	if err := v.Unmarshal(config); err != nil {
		return fmt.Errorf("unmarshal config: %w", err)
	}
	return nil
}

// setDefaults registers every mapstructure key of config with its current
// value. AutomaticEnv only resolves keys viper already knows about.
func setDefaults(v *viper.Viper, config *Config) {
	rv := reflect.ValueOf(config).Elem()
	rt := rv.Type()
	for i := 0; i < rt.NumField(); i++ {
		key := rt.Field(i).Tag.Get("mapstructure")
		if key == "" || key == "-" {
			continue
		}
		v.SetDefault(key, rv.Field(i).Interface())
	}
}
