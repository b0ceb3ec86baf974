package config

import (
	"testing"
	"time"
)

func TestFromEnvOrFlag(t *testing.T) {
	tests := []struct {
		name, env, flag, def, want string
	}{
		{"env wins", " /var/lock ", "/tmp", "", "/var/lock"},
		{"flag when env empty", "", " /tmp ", "", "/tmp"},
		{"default", "  ", "", "gate_counter", "gate_counter"},
	}
	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			t.Setenv("LOCK_DIR", tc.env)
			if got := FromEnvOrFlag("LOCK_DIR", tc.flag, tc.def); got != tc.want {
				t.Fatalf("got %q want %q", got, tc.want)
			}
		})
	}
}

func TestFromEnvOrFlagBool(t *testing.T) {
	tests := []struct {
		name           string
		env            string
		flag, def, want bool
	}{
		{"env true beats flag false", "TrUe", false, false, true},
		{"env false beats flag true", "0", true, true, false},
		{"unparsable env falls to default", "maybe", false, true, true},
		{"flag true", "", true, false, true},
		{"default", "", false, true, true},
	}
	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			t.Setenv("OTEL_ENABLED", tc.env)
			if got := FromEnvOrFlagBool("OTEL_ENABLED", tc.flag, tc.def); got != tc.want {
				t.Fatalf("got %v want %v", got, tc.want)
			}
		})
	}
}

func TestFromEnvOrFlagInt(t *testing.T) {
	tests := []struct {
		name                 string
		env                  string
		flag, def, min, want int
	}{
		{"env wins", " 8 ", 2, 1, 1, 8},
		{"env below min ignored", "0", 4, 1, 1, 4},
		{"garbage env and unset flag", "many", 0, 3, 1, 3},
		{"flag below min ignored", "", -2, 1, 1, 1},
	}
	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			t.Setenv("FETCH_CONCURRENCY", tc.env)
			if got := FromEnvOrFlagInt("FETCH_CONCURRENCY", tc.flag, tc.def, tc.min); got != tc.want {
				t.Fatalf("got %d want %d", got, tc.want)
			}
		})
	}
}

func TestFromEnvOrFlagDuration(t *testing.T) {
	tests := []struct {
		name       string
		env        string
		flag       int
		want       time.Duration
		wantCustom bool
	}{
		{"env seconds", "15", 42, 15 * time.Second, true},
		{"env duration", "1m30s", 5, 90 * time.Second, true},
		{"unparsable env keeps default but counts as set", "later", 10, time.Hour, true},
		{"flag", "", 10, 10 * time.Second, true},
		{"default", "", 0, time.Hour, false},
	}
	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			t.Setenv("POLL_INTERVAL", tc.env)
			got, custom := FromEnvOrFlagDuration("POLL_INTERVAL", tc.flag, 0, 3600)
			if got != tc.want || custom != tc.wantCustom {
				t.Fatalf("got (%v,%v) want (%v,%v)", got, custom, tc.want, tc.wantCustom)
			}
		})
	}
}
