package config

import (
	"fmt"
	"os"
	"strconv"
)

// EnvString returns GRAZE_<key> or fallback when unset. Flag defaults go
// through this so container deployments can configure the agent without
// argv.
func EnvString(key, fallback string) string {
	if v, ok := os.LookupEnv("GRAZE_" + key); ok {
		return v
	}
	return fallback
}

// EnvBool returns GRAZE_<key> parsed as a bool, or fallback when unset.
func EnvBool(key string, fallback bool) (bool, error) {
	v, ok := os.LookupEnv("GRAZE_" + key)
	if !ok {
		return fallback, nil
	}
	b, err := strconv.ParseBool(v)
	if err != nil {
		return false, fmt.Errorf("GRAZE_%s: must be true or false, got %q", key, v)
	}
	return b, nil
}
