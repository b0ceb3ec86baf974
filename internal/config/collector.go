package config

import (
	"bytes"
	"errors"
	"flag"
	"fmt"
	"io"
	"os"
	"strconv"
	"strings"
	"time"
	_ "time/tzdata" // TZ names must resolve in minimal containers

	"go.uber.org/zap/zapcore"
	"gopkg.in/yaml.v3"

	"github.com/vshulcz/Gatecounter/internal/misc"
)

const (
	PolicyHourly   = "hourly"
	PolicyInterval = "interval"

	defaultPollInterval     = 3600
	defaultFetchTimeout     = 30
	defaultFetchConcurrency = 1
	defaultLockName         = "gate_counter"
	defaultLogLevel         = "info"
	defaultTraceRatio       = 1.0
)

// CollectorConfig is built once at startup and passed down by value.
type CollectorConfig struct {
	Location         *time.Location
	ConfigFile       string
	WaitPolicy       string
	LockName         string
	LockDir          string
	DSN              string
	DBPassword       string
	FilePath         string
	AuditFile        string
	AuditURL         string
	Address          string
	AdminKey         string
	LogLevel         string
	TraceMode        string
	GateURLs         []string
	PollInterval     time.Duration
	FetchTimeout     time.Duration
	TraceSampleRatio float64
	FetchConcurrency int
	OTelEnabled      bool
	Once             bool
}

// fileConfig mirrors the optional YAML file. Zero values mean "not set".
type fileConfig struct {
	OTel struct {
		Enabled     *bool    `yaml:"enabled"`
		SampleRatio *float64 `yaml:"sample_ratio"`
		TraceMode   string   `yaml:"trace_mode"`
	} `yaml:"otel"`
	WaitPolicy           string   `yaml:"wait_policy"`
	PollInterval         string   `yaml:"poll_interval"`
	Timezone             string   `yaml:"timezone"`
	FetchTimeout         string   `yaml:"fetch_timeout"`
	LockName             string   `yaml:"lock_name"`
	LockDir              string   `yaml:"lock_dir"`
	DatabaseDSN          string   `yaml:"database_dsn"`
	DatabasePasswordFile string   `yaml:"database_password_file"`
	FileStoragePath      string   `yaml:"file_storage_path"`
	AuditFile            string   `yaml:"audit_file"`
	AuditURL             string   `yaml:"audit_url"`
	Address              string   `yaml:"address"`
	AdminKey             string   `yaml:"admin_key"`
	LogLevel             string   `yaml:"log_level"`
	GateURLs             []string `yaml:"gate_urls"`
	FetchConcurrency     int      `yaml:"fetch_concurrency"`
}

// ENV > CLI > YAML file > defaults
func LoadCollectorConfig(args []string, out io.Writer) (CollectorConfig, error) {
	if out == nil {
		out = io.Discard
	}

	fs := flag.NewFlagSet("collector", flag.ContinueOnError)
	fs.SetOutput(out)

	var configOpt, gatesOpt, policyOpt, tzOpt string
	var lockNameOpt, lockDirOpt, dsnOpt, pwFileOpt string
	var fileOpt, auditFileOpt, auditURLOpt, addrOpt string
	var keyOpt, levelOpt, traceModeOpt string
	var pollOpt, timeoutOpt, concOpt int
	var ratioOpt float64
	var otelOpt, onceOpt bool

	fs.StringVar(&configOpt, "config", "", "path to a YAML config file")
	fs.StringVar(&gatesOpt, "g", "", "comma separated gate sensor URLs")
	fs.StringVar(&policyOpt, "w", "", fmt.Sprintf("wait policy (%s|%s), default: %s", PolicyHourly, PolicyInterval, PolicyHourly))
	fs.IntVar(&pollOpt, "p", 0, fmt.Sprintf("poll interval in seconds for the interval policy, default: %d", defaultPollInterval))
	fs.StringVar(&tzOpt, "tz", "", "IANA time zone for hourly alignment, default: local")
	fs.IntVar(&timeoutOpt, "t", 0, fmt.Sprintf("fetch timeout in seconds, default: %d", defaultFetchTimeout))
	fs.IntVar(&concOpt, "c", 0, fmt.Sprintf("max concurrent gate fetches, default: %d", defaultFetchConcurrency))
	fs.StringVar(&lockNameOpt, "l", "", fmt.Sprintf("single instance lock name, default: %s", defaultLockName))
	fs.StringVar(&lockDirOpt, "lock-dir", "", "directory for lock files, default: OS temp dir")
	fs.StringVar(&dsnOpt, "d", "", "DATABASE_DSN (postgres URL or mysql://...)")
	fs.StringVar(&pwFileOpt, "password-file", "", "file holding the database password")
	fs.StringVar(&fileOpt, "f", "", "FILE_STORAGE_PATH for the JSONL journal store")
	fs.StringVar(&auditFileOpt, "audit-file", "", "append pass events to this file")
	fs.StringVar(&auditURLOpt, "audit-url", "", "POST pass events to this URL")
	fs.StringVar(&addrOpt, "a", "", "admin HTTP listen address, empty disables it")
	fs.StringVar(&keyOpt, "k", "", "bearer key required by POST /run")
	fs.StringVar(&levelOpt, "log-level", "", fmt.Sprintf("log level, default: %s", defaultLogLevel))
	fs.BoolVar(&otelOpt, "otel", false, "enable tracing")
	fs.StringVar(&traceModeOpt, "otel-mode", "", "trace mode (off|errors|sampled|detailed)")
	fs.Float64Var(&ratioOpt, "otel-ratio", -1, "trace sample ratio in [0,1]")
	fs.BoolVar(&onceOpt, "once", false, "run a single pass and exit")

	if err := fs.Parse(args); err != nil {
		return CollectorConfig{}, err
	}
	if err := checkEnv(); err != nil {
		return CollectorConfig{}, err
	}

	cfg := CollectorConfig{Once: onceOpt}
	cfg.ConfigFile = FromEnvOrFlag("CONFIG", configOpt, "")

	var fc fileConfig
	if cfg.ConfigFile != "" {
		var err error
		if fc, err = readFileConfig(cfg.ConfigFile); err != nil {
			return CollectorConfig{}, err
		}
	}

	cfg.GateURLs = misc.SplitList(misc.GetFirstenv("", "GATE_URLS", "OLE_GATE_URLS"))
	if len(cfg.GateURLs) == 0 {
		cfg.GateURLs = misc.SplitList(gatesOpt)
	}
	if len(cfg.GateURLs) == 0 {
		cfg.GateURLs = misc.SplitList(strings.Join(fc.GateURLs, ","))
	}

	cfg.WaitPolicy = strings.ToLower(FromEnvOrFlag("WAIT_POLICY", policyOpt, orDefault(fc.WaitPolicy, PolicyHourly)))
	if cfg.WaitPolicy != PolicyHourly && cfg.WaitPolicy != PolicyInterval {
		return CollectorConfig{}, fmt.Errorf("invalid wait policy %q", cfg.WaitPolicy)
	}

	var err error
	if cfg.PollInterval, err = resolveDuration("POLL_INTERVAL", pollOpt, fc.PollInterval, defaultPollInterval); err != nil {
		return CollectorConfig{}, err
	}
	if cfg.WaitPolicy == PolicyInterval && cfg.PollInterval <= 0 {
		return CollectorConfig{}, fmt.Errorf("poll interval must be > 0, got %v", cfg.PollInterval)
	}

	tz := FromEnvOrFlag("TZ", tzOpt, fc.Timezone)
	cfg.Location = time.Local
	if tz != "" {
		if cfg.Location, err = time.LoadLocation(tz); err != nil {
			return CollectorConfig{}, fmt.Errorf("invalid time zone %q: %w", tz, err)
		}
	}

	if cfg.FetchTimeout, err = resolveDuration("FETCH_TIMEOUT", timeoutOpt, fc.FetchTimeout, defaultFetchTimeout); err != nil {
		return CollectorConfig{}, err
	}
	if cfg.FetchTimeout <= 0 {
		return CollectorConfig{}, fmt.Errorf("fetch timeout must be > 0, got %v", cfg.FetchTimeout)
	}

	concDef := defaultFetchConcurrency
	if fc.FetchConcurrency > 0 {
		concDef = fc.FetchConcurrency
	}
	cfg.FetchConcurrency = FromEnvOrFlagInt("FETCH_CONCURRENCY", concOpt, concDef, 1)

	cfg.LockName = FromEnvOrFlag("LOCK_NAME", lockNameOpt, orDefault(fc.LockName, defaultLockName))
	if strings.ContainsAny(cfg.LockName, `/\`) {
		return CollectorConfig{}, fmt.Errorf("invalid lock name %q", cfg.LockName)
	}
	cfg.LockDir = FromEnvOrFlag("LOCK_DIR", lockDirOpt, fc.LockDir)

	cfg.DSN = FromEnvOrFlag("DATABASE_DSN", dsnOpt, fc.DatabaseDSN)
	if pwFile := FromEnvOrFlag("DATABASE_PASSWORD_FILE", pwFileOpt, fc.DatabasePasswordFile); pwFile != "" {
		if cfg.DBPassword, err = readPasswordFile(pwFile); err != nil {
			return CollectorConfig{}, err
		}
	}
	cfg.FilePath = FromEnvOrFlag("FILE_STORAGE_PATH", fileOpt, fc.FileStoragePath)

	cfg.AuditFile = FromEnvOrFlag("AUDIT_FILE", auditFileOpt, fc.AuditFile)
	cfg.AuditURL = FromEnvOrFlag("AUDIT_URL", auditURLOpt, fc.AuditURL)
	cfg.Address = FromEnvOrFlag("ADDRESS", addrOpt, fc.Address)
	cfg.AdminKey = FromEnvOrFlag("ADMIN_KEY", keyOpt, fc.AdminKey)

	cfg.LogLevel = strings.ToLower(FromEnvOrFlag("LOG_LEVEL", levelOpt, orDefault(fc.LogLevel, defaultLogLevel)))
	if _, err := zapcore.ParseLevel(cfg.LogLevel); err != nil {
		return CollectorConfig{}, fmt.Errorf("invalid log level %q: %w", cfg.LogLevel, err)
	}

	otelDef := false
	if fc.OTel.Enabled != nil {
		otelDef = *fc.OTel.Enabled
	}
	cfg.OTelEnabled = FromEnvOrFlagBool("OTEL_ENABLED", otelOpt, otelDef)
	cfg.TraceMode = FromEnvOrFlag("OTEL_TRACE_MODE", traceModeOpt, fc.OTel.TraceMode)

	ratioDef := defaultTraceRatio
	if fc.OTel.SampleRatio != nil {
		ratioDef = *fc.OTel.SampleRatio
	}
	if cfg.TraceSampleRatio, err = resolveRatio("OTEL_SAMPLE_RATIO", ratioOpt, ratioDef); err != nil {
		return CollectorConfig{}, err
	}

	return cfg, nil
}

func readFileConfig(path string) (fileConfig, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return fileConfig{}, fmt.Errorf("read config file: %w", err)
	}
	var fc fileConfig
	dec := yaml.NewDecoder(bytes.NewReader(data))
	dec.KnownFields(true)
	if err := dec.Decode(&fc); err != nil && !errors.Is(err, io.EOF) {
		return fileConfig{}, fmt.Errorf("parse config file %s: %w", path, err)
	}
	return fc, nil
}

func readPasswordFile(path string) (string, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return "", fmt.Errorf("read database password file: %w", err)
	}
	return strings.TrimSpace(string(data)), nil
}

// envChecks reject malformed numeric and boolean variables up front; the
// lenient helpers below would otherwise fall back to defaults.
var envChecks = []struct {
	parse func(string) error
	key   string
}{
	{key: "POLL_INTERVAL", parse: parseDurationValue},
	{key: "FETCH_TIMEOUT", parse: parseDurationValue},
	{key: "FETCH_CONCURRENCY", parse: parsePositiveInt},
	{key: "OTEL_ENABLED", parse: parseBoolValue},
}

func checkEnv() error {
	for _, c := range envChecks {
		if v := misc.Getenv(c.key, ""); v != "" {
			if err := c.parse(v); err != nil {
				return fmt.Errorf("invalid %s: %w", c.key, err)
			}
		}
	}
	return nil
}

func parseDurationValue(v string) error {
	_, err := ParseDuration(v)
	return err
}

func parsePositiveInt(v string) error {
	n, err := strconv.Atoi(v)
	if err != nil || n < 1 {
		return fmt.Errorf("%q is not an integer >= 1", v)
	}
	return nil
}

func parseBoolValue(v string) error {
	if _, ok := misc.ParseBool(v); !ok {
		return fmt.Errorf("%q is not a boolean", v)
	}
	return nil
}

// resolveDuration applies ENV > flag seconds > file value > default seconds.
func resolveDuration(envKey string, flagSeconds int, fileVal string, defSeconds int) (time.Duration, error) {
	if d, custom := FromEnvOrFlagDuration(envKey, flagSeconds, 0, defSeconds); custom {
		return d, nil
	}
	if strings.TrimSpace(fileVal) == "" {
		return time.Duration(defSeconds) * time.Second, nil
	}
	d, err := ParseDuration(fileVal)
	if err != nil {
		return 0, fmt.Errorf("config file %s: %w", strings.ToLower(envKey), err)
	}
	return d, nil
}

func resolveRatio(envKey string, flagVal, def float64) (float64, error) {
	if ev := strings.TrimSpace(misc.Getenv(envKey, "")); ev != "" {
		r, err := strconv.ParseFloat(ev, 64)
		if err != nil {
			return 0, fmt.Errorf("invalid %s %q: %w", envKey, ev, err)
		}
		return r, nil
	}
	if flagVal >= 0 {
		return flagVal, nil
	}
	return def, nil
}

func orDefault(v, def string) string {
	if strings.TrimSpace(v) != "" {
		return strings.TrimSpace(v)
	}
	return def
}
