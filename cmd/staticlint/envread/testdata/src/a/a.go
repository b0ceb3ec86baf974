package a

import (
	"os"
	env "os"
)

type cfg struct{}

func (cfg) Getenv(string) string { return "" }

func read() {
	_ = os.Getenv("GATE_URLS")      // want "environment read outside internal/config"
	_, _ = env.LookupEnv("ADDRESS") // want "environment read outside internal/config"
	_ = os.Environ()                // want "environment read outside internal/config"
	_ = os.Getpid()
	_ = cfg{}.Getenv("TZ")
}
