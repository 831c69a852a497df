package config

import (
	"os"
	"strings"

	"github.com/spf13/viper"
)

// loadEnvFiles copies KEY=VALUE pairs from the given files into the process
// environment without overriding variables that are already set.
// It is a best-effort helper for local development; errors are ignored.
func loadEnvFiles(paths ...string) {
	for _, path := range paths {
		if _, err := os.Stat(path); err != nil {
			continue
		}
		v := viper.New()
		v.SetConfigFile(path)
		v.SetConfigType("env")
		if err := v.ReadInConfig(); err != nil {
			continue
		}
		for _, key := range v.AllKeys() {
			envKey := strings.ToUpper(key)
			if _, exists := os.LookupEnv(envKey); exists {
				continue
			}
			_ = os.Setenv(envKey, v.GetString(key))
		}
	}
}
