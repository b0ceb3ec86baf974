// Package misc holds small helpers shared by the collector packages:
// environment lookups, retries and buffer pools.
package misc

import (
	"os"
	"strconv"
	"strings"
	"time"
)

// Getenv returns the trimmed value of key or def when it is unset or blank.
func Getenv(key, def string) string {
	return GetFirstenv(def, key)
}

// GetFirstenv returns the value of the first non-empty variable among keys.
// Legacy names go last so the current name wins.
func GetFirstenv(def string, keys ...string) string {
	for _, k := range keys {
		if v := strings.TrimSpace(os.Getenv(k)); v != "" {
			return v
		}
	}
	return def
}

// GetDuration reads key as whole seconds or a Go duration.
// Non-positive values disable the setting and yield 0.
func GetDuration(key string, def time.Duration) time.Duration {
	v := Getenv(key, "")
	if v == "" {
		return def
	}
	d, ok := parseSecondsOrDuration(v)
	switch {
	case !ok:
		return def
	case d <= 0:
		return 0
	}
	return d
}

func parseSecondsOrDuration(v string) (time.Duration, bool) {
	if n, err := strconv.ParseInt(v, 10, 64); err == nil {
		return time.Duration(n) * time.Second, true
	}
	if d, err := time.ParseDuration(v); err == nil {
		return d, true
	}
	return 0, false
}

// GetBool understands the usual yes/no spellings; anything else yields def.
func GetBool(key string, def bool) bool {
	if b, ok := ParseBool(Getenv(key, "")); ok {
		return b
	}
	return def
}

// ParseBool accepts 1/0, true/false, yes/no, on/off and their one-letter forms.
func ParseBool(v string) (bool, bool) {
	switch strings.ToLower(strings.TrimSpace(v)) {
	case "1", "true", "t", "yes", "y", "on":
		return true, true
	case "0", "false", "f", "no", "n", "off":
		return false, true
	}
	return false, false
}

// SplitList splits a comma separated list, trimming blanks away.
func SplitList(s string) []string {
	var out []string
	for _, part := range strings.Split(s, ",") {
		if p := strings.TrimSpace(part); p != "" {
			out = append(out, p)
		}
	}
	return out
}
