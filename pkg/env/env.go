// Package env reads environment variables for code that runs before the
// envconfig-backed configuration is loaded, like the logger's defaults.
package env

import "os"

// Get returns the variable's value, or fallback when it is unset or empty.
func Get(key, fallback string) string {
	if val := os.Getenv(key); val != "" {
		return val
	}
	return fallback
}
