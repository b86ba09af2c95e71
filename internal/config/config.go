// v0
// internal/config/config.go
package config

import (
	"bufio"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"time"

	"github.com/joho/godotenv"
)

// Config captures all runtime settings of the analysis service. Values come
// from defaults, an optional properties file, an optional .env file and
// finally environment variables, in that order of precedence.
type Config struct {
	// ListenAddress defines the TCP address used by the HTTP server.
	ListenAddress string
	// LogFilePath is the absolute or relative path to the log file.
	LogFilePath string
	// HTTPReadTimeout bounds the time to read incoming requests.
	HTTPReadTimeout time.Duration
	// HTTPWriteTimeout bounds the time to write responses.
	HTTPWriteTimeout time.Duration
	// ShutdownTimeout limits graceful shutdown attempts.
	ShutdownTimeout time.Duration
	// PropertiesPath records the path used to load property values.
	PropertiesPath string
	// EnvFile records the dotenv file consulted before reading the environment.
	EnvFile string

	// StatsPath points at the precomputed dataset stats artifact.
	StatsPath string
	// JournalPath is the sqlite database holding symptom and food entries.
	JournalPath string
	// PolicyPath optionally points at a YAML scoring policy.
	PolicyPath string
	// DefaultProfile overrides the policy's default risk profile when set.
	DefaultProfile string
	// StrictQuery rejects unparseable comparison parameters with 400.
	StrictQuery bool
	// CORSOrigins lists the browser origins allowed to call the API.
	CORSOrigins []string

	// KafkaBrokers lists bootstrap brokers; empty disables journal ingestion.
	KafkaBrokers []string
	// JournalTopic carries journal events produced by other clients.
	JournalTopic string
	// JournalGroupID is the consumer group used for checkpointing.
	JournalGroupID string
	// JournalPollTimeout bounds the time spent waiting for one message.
	JournalPollTimeout time.Duration
	// BreakerEnabled guards broker fetches with a circuit breaker.
	BreakerEnabled bool
	// BreakerMaxFailures is the consecutive failure count that opens the breaker.
	BreakerMaxFailures int
	// BreakerOpenTimeout is how long the breaker stays open before probing.
	BreakerOpenTimeout time.Duration
	// JournalEnsureTopic creates the journal topic on startup when missing.
	JournalEnsureTopic bool
	// JournalPartitions and JournalReplication shape a created topic.
	JournalPartitions  int
	JournalReplication int
}

const (
	envPrefix            = "ANALYSIS_"
	defaultListenAddress = ":5001"
	defaultLogFile       = "logs/analysis.log"
	defaultReadTimeout   = 5 * time.Second
	defaultWriteTimeout  = 10 * time.Second
	defaultShutdown      = 5 * time.Second
	defaultPropsPath     = "analysis.properties"
	defaultEnvFile       = ".env"
	defaultStatsPath     = "data/dataset_stats.json"
	defaultJournalPath   = "data/journal.db"
	defaultJournalTopic  = "cyclesense.journal"
	defaultJournalGroup  = "analysis-journal"
	defaultPollTimeout   = 5 * time.Second
	defaultBreakerFails  = 5
	defaultBreakerOpen   = 30 * time.Second
)

// Load resolves configuration. The properties file location can be
// overridden with ANALYSIS_PROPERTIES_PATH and the dotenv file with
// ANALYSIS_ENV_FILE. Variables already present in the environment win over
// the dotenv file.
func Load() (Config, error) {
	cfg := Config{
		ListenAddress:      defaultListenAddress,
		LogFilePath:        filepath.Clean(defaultLogFile),
		HTTPReadTimeout:    defaultReadTimeout,
		HTTPWriteTimeout:   defaultWriteTimeout,
		ShutdownTimeout:    defaultShutdown,
		StatsPath:          filepath.Clean(defaultStatsPath),
		JournalPath:        filepath.Clean(defaultJournalPath),
		CORSOrigins:        []string{"*"},
		JournalTopic:       defaultJournalTopic,
		JournalGroupID:     defaultJournalGroup,
		JournalPollTimeout: defaultPollTimeout,
		BreakerEnabled:     true,
		BreakerMaxFailures: defaultBreakerFails,
		BreakerOpenTimeout: defaultBreakerOpen,
		JournalPartitions:  1,
		JournalReplication: 1,
	}

	envFile := defaultEnvFile
	if v, ok := lookupEnvTrimmed(envPrefix + "ENV_FILE"); ok && v != "" {
		envFile = v
	}
	cfg.EnvFile = envFile
	if err := godotenv.Load(envFile); err != nil && !errors.Is(err, os.ErrNotExist) {
		return Config{}, fmt.Errorf("load %s: %w", envFile, err)
	}

	propsPath := defaultPropsPath
	if v, ok := lookupEnvTrimmed(envPrefix + "PROPERTIES_PATH"); ok && v != "" {
		propsPath = v
	}
	cfg.PropertiesPath = propsPath

	if err := applyProperties(&cfg, propsPath); err != nil {
		if !errors.Is(err, os.ErrNotExist) {
			return Config{}, err
		}
	}

	if err := applyEnv(&cfg); err != nil {
		return Config{}, err
	}

	return cfg, nil
}

// IngestEnabled reports whether journal ingestion should start.
func (c Config) IngestEnabled() bool {
	return len(c.KafkaBrokers) > 0
}

func applyProperties(cfg *Config, path string) error {
	if strings.TrimSpace(path) == "" {
		return nil
	}

	f, err := os.Open(path)
	if err != nil {
		return err
	}
	defer func() {
		_ = f.Close()
	}()

	scanner := bufio.NewScanner(f)
	line := 0
	for scanner.Scan() {
		line++
		raw := strings.TrimSpace(scanner.Text())
		if raw == "" || strings.HasPrefix(raw, "#") || strings.HasPrefix(raw, ";") {
			continue
		}
		parts := strings.SplitN(raw, "=", 2)
		if len(parts) != 2 {
			return fmt.Errorf("invalid properties entry on line %d", line)
		}
		key := strings.TrimSpace(parts[0])
		value := strings.TrimSpace(parts[1])
		if err := setProperty(cfg, key, value); err != nil {
			return fmt.Errorf("property %s: %w", key, err)
		}
	}
	if err := scanner.Err(); err != nil {
		return fmt.Errorf("read properties: %w", err)
	}
	return nil
}

// keys lists every property understood by setProperty. The environment
// variable for a key is ANALYSIS_ followed by the upper-cased key.
var keys = []string{
	"listen_address",
	"log_path",
	"http_read_timeout_ms",
	"http_write_timeout_ms",
	"shutdown_timeout_ms",
	"stats_path",
	"journal_path",
	"policy_path",
	"default_profile",
	"strict_query",
	"cors_origins",
	"kafka_brokers",
	"journal_topic",
	"journal_group_id",
	"journal_poll_timeout_ms",
	"breaker_enabled",
	"breaker_max_failures",
	"breaker_open_timeout_ms",
	"journal_ensure_topic",
	"journal_partitions",
	"journal_replication",
}

func setProperty(cfg *Config, key, value string) error {
	var err error
	switch key {
	case "listen_address":
		cfg.ListenAddress, err = nonEmpty(key, value)
	case "log_path":
		var p string
		if p, err = nonEmpty(key, value); err == nil {
			cfg.LogFilePath = filepath.Clean(p)
		}
	case "http_read_timeout_ms":
		cfg.HTTPReadTimeout, err = parsePositiveMillis(value)
	case "http_write_timeout_ms":
		cfg.HTTPWriteTimeout, err = parsePositiveMillis(value)
	case "shutdown_timeout_ms":
		cfg.ShutdownTimeout, err = parsePositiveMillis(value)
	case "stats_path":
		var p string
		if p, err = nonEmpty(key, value); err == nil {
			cfg.StatsPath = filepath.Clean(p)
		}
	case "journal_path":
		var p string
		if p, err = nonEmpty(key, value); err == nil {
			cfg.JournalPath = p
			if p != ":memory:" {
				cfg.JournalPath = filepath.Clean(p)
			}
		}
	case "policy_path":
		cfg.PolicyPath = value
	case "default_profile":
		cfg.DefaultProfile = strings.ToLower(value)
	case "strict_query":
		cfg.StrictQuery, err = strconv.ParseBool(value)
	case "cors_origins":
		origins := splitAndTrim(value)
		if len(origins) == 0 {
			return errors.New("cors_origins cannot be empty")
		}
		cfg.CORSOrigins = origins
	case "kafka_brokers":
		// An empty list is allowed and disables ingestion.
		cfg.KafkaBrokers = splitAndTrim(value)
	case "journal_topic":
		cfg.JournalTopic, err = nonEmpty(key, value)
	case "journal_group_id":
		cfg.JournalGroupID, err = nonEmpty(key, value)
	case "journal_poll_timeout_ms":
		cfg.JournalPollTimeout, err = parsePositiveMillis(value)
	case "breaker_enabled":
		cfg.BreakerEnabled, err = strconv.ParseBool(value)
	case "breaker_max_failures":
		cfg.BreakerMaxFailures, err = parsePositiveInt(key, value)
	case "breaker_open_timeout_ms":
		cfg.BreakerOpenTimeout, err = parsePositiveMillis(value)
	case "journal_ensure_topic":
		cfg.JournalEnsureTopic, err = strconv.ParseBool(value)
	case "journal_partitions":
		cfg.JournalPartitions, err = parsePositiveInt(key, value)
	case "journal_replication":
		cfg.JournalReplication, err = parsePositiveInt(key, value)
	default:
		// Unknown keys are ignored to keep the loader forward-compatible.
	}
	return err
}

func applyEnv(cfg *Config) error {
	for _, key := range keys {
		name := envPrefix + strings.ToUpper(key)
		v, ok := lookupEnvTrimmed(name)
		if !ok {
			continue
		}
		if err := setProperty(cfg, key, v); err != nil {
			return fmt.Errorf("%s: %w", name, err)
		}
	}
	if _, ok := os.LookupEnv(envPrefix + "LISTEN_ADDRESS"); !ok {
		if port, ok := lookupEnvTrimmed("PORT"); ok && port != "" {
			if _, err := strconv.Atoi(port); err != nil {
				return fmt.Errorf("PORT: invalid integer: %w", err)
			}
			cfg.ListenAddress = ":" + port
		}
	}
	if _, ok := os.LookupEnv(envPrefix + "KAFKA_BROKERS"); !ok {
		if v, ok := lookupEnvTrimmed("KAFKA_BROKERS"); ok {
			cfg.KafkaBrokers = splitAndTrim(v)
		}
	}
	return nil
}

func nonEmpty(key, value string) (string, error) {
	if value == "" {
		return "", fmt.Errorf("%s cannot be empty", key)
	}
	return value, nil
}

func lookupEnvTrimmed(key string) (string, bool) {
	v, ok := os.LookupEnv(key)
	if !ok {
		return "", false
	}
	return strings.TrimSpace(v), true
}

func splitAndTrim(raw string) []string {
	fields := strings.Split(raw, ",")
	out := make([]string, 0, len(fields))
	for _, field := range fields {
		trimmed := strings.TrimSpace(field)
		if trimmed != "" {
			out = append(out, trimmed)
		}
	}
	return out
}

func parsePositiveInt(key, value string) (int, error) {
	n, err := strconv.Atoi(value)
	if err != nil {
		return 0, fmt.Errorf("invalid %s: %w", key, err)
	}
	if n <= 0 {
		return 0, fmt.Errorf("%s must be positive", key)
	}
	return n, nil
}

func parsePositiveMillis(v string) (time.Duration, error) {
	if strings.TrimSpace(v) == "" {
		return 0, errors.New("value cannot be empty")
	}
	ms, err := strconv.Atoi(v)
	if err != nil {
		return 0, fmt.Errorf("invalid integer: %w", err)
	}
	if ms <= 0 {
		return 0, errors.New("value must be greater than zero")
	}
	return time.Duration(ms) * time.Millisecond, nil
}
