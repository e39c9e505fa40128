// Package config provides configuration management for lynxsync.
// It handles loading and validating the operator configuration. The file
// is YAML; the JSON configuration of earlier deployments (nordconf.json)
// is accepted unchanged since JSON is valid YAML.
package config

import (
	"bytes"
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/joho/godotenv"
	"gopkg.in/yaml.v3"

	"github.com/yllada/lynxsync/common"
)

// Environment variables read after the config file.
const (
	EnvPrivateKey = "LYNXSYNC_PRIVATE_KEY"
	EnvProfileDir = "LYNXSYNC_PROFILE_DIR"
	EnvDebug      = "LYNXSYNC_DEBUG"
)

// Notifier types.
const (
	NotifierNone = "none"
	NotifierDBus = "dbus"
	NotifierExec = "exec"

	// NotifierDesktop pops a desktop notification via notify-send.
	NotifierDesktop = "desktop"
)

// Store types.
const (
	StoreFile   = "file"
	StoreConsul = "consul"
)

// Config represents the operator configuration.
// It is immutable once loaded and is passed by pointer into the run
// orchestrator; nothing mutates it after Load returns.
type Config struct {
	// PrivateKey is the operator-wide WireGuard private key. When empty it
	// is looked up in the system keyring.
	PrivateKey string `yaml:"privateKey"`
	// DNS is the resolver list written into every peer config.
	DNS []string `yaml:"dns"`
	// Countries lists the desired country profiles, in reconciliation order.
	Countries []string `yaml:"countries"`
	// Recommended enables the quick-connect profile. Off unless set.
	Recommended bool `yaml:"recommended"`
	// Limit is the maximum number of candidates requested per lookup (0 = service default).
	Limit int `yaml:"limit"`
	// MaxLoad is the optional load ceiling the current server must exceed
	// before a country profile switches.
	MaxLoad *int `yaml:"maxLoad"`
	// StrictVPN and RouteDNS override the creation-time policy defaults
	// only when set to an explicit boolean.
	StrictVPN OptionalBool `yaml:"strictVPN"`
	RouteDNS  OptionalBool `yaml:"routeDNS"`
	// Debug enables verbose logging.
	Debug bool `yaml:"debug"`

	ProfileDir     string   `yaml:"profileDir"`
	APIBaseURL     string   `yaml:"apiBaseURL"`
	RequestTimeout Duration `yaml:"requestTimeout"`
	Address        string   `yaml:"address"`
	Keepalive      int      `yaml:"keepalive"`

	Notifier NotifierConfig `yaml:"notifier"`
	Store    StoreConfig    `yaml:"store"`

	// HistoryDB is the sqlite ledger path; "-" disables the ledger.
	HistoryDB string `yaml:"historyDB"`
	// HistoryRetention prunes ledger rows older than this after every
	// run; zero keeps everything.
	HistoryRetention Duration `yaml:"historyRetention"`
	// MetricsFile is a Prometheus textfile-collector path; empty disables export.
	MetricsFile string `yaml:"metricsFile"`
	// Interval repeats reconciliation; zero runs once.
	Interval Duration `yaml:"interval"`
	// LogFile enables file logging when set.
	LogFile string `yaml:"logFile"`
}

// NotifierConfig selects how change events leave the process.
type NotifierConfig struct {
	Type string `yaml:"type"`
	// Bus is "system" or "session" for the dbus notifier.
	Bus string `yaml:"bus"`
	// Path and Interface name the emitted dbus signal.
	Path      string `yaml:"path"`
	Interface string `yaml:"interface"`
	// Command is run with the event JSON appended as the last argument,
	// e.g. ["redis-cli", "publish", "TO.FireMain"].
	Command []string `yaml:"command"`
}

// StoreConfig selects the profile store backend.
type StoreConfig struct {
	Type         string `yaml:"type"`
	ConsulAddr   string `yaml:"consulAddr"`
	ConsulPrefix string `yaml:"consulPrefix"`
}

// DefaultConfig returns the default configuration.
func DefaultConfig() *Config {
	return &Config{
		DNS:            []string{common.DefaultDNS},
		ProfileDir:     common.DefaultProfileDir,
		APIBaseURL:     common.DefaultAPIBaseURL,
		RequestTimeout: Duration(common.DefaultRequestTimeout),
		Address:        common.DefaultTunnelAddress,
		Keepalive:      common.DefaultKeepalive,
		Notifier:       NotifierConfig{Type: NotifierNone, Bus: "system"},
		Store:          StoreConfig{Type: StoreFile, ConsulPrefix: "lynxsync/profiles/"},

		HistoryRetention: Duration(common.DefaultHistoryRetention),
	}
}

// DefaultPath returns the configuration file used when none is given.
func DefaultPath() (string, error) {
	dir, err := common.GetConfigDir()
	if err != nil {
		return "", err
	}
	return filepath.Join(dir, common.ConfigFileName), nil
}

// Load reads the configuration file at path, applies the .env file next
// to it (if any) and the process environment, and validates the result.
// Unknown keys are rejected.
func Load(path string) (*Config, error) {
	file, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", common.ErrConfigLoad, err)
	}
	defer file.Close()

	cfg, err := Parse(file)
	if err != nil {
		return nil, err
	}

	if err := loadDotEnv(filepath.Join(filepath.Dir(path), common.EnvFileName)); err != nil {
		return nil, fmt.Errorf("%w: %v", common.ErrConfigLoad, err)
	}
	cfg.applyEnv()

	if err := cfg.validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

// Parse decodes a configuration document on top of DefaultConfig.
// It does not consult the environment.
func Parse(r io.Reader) (*Config, error) {
	cfg := DefaultConfig()

	data, err := io.ReadAll(r)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", common.ErrConfigLoad, err)
	}
	if len(bytes.TrimSpace(data)) == 0 {
		return cfg, nil
	}

	decoder := yaml.NewDecoder(bytes.NewReader(data))
	decoder.KnownFields(true)
	if err := decoder.Decode(cfg); err != nil && !errors.Is(err, io.EOF) {
		return nil, fmt.Errorf("%w: parsing configuration: %v", common.ErrConfigLoad, err)
	}
	return cfg, nil
}

func loadDotEnv(path string) error {
	if !common.FileExists(path) {
		return nil
	}
	return godotenv.Load(path)
}

func (c *Config) applyEnv() {
	if v := strings.TrimSpace(os.Getenv(EnvPrivateKey)); v != "" {
		c.PrivateKey = v
	}
	if v := strings.TrimSpace(os.Getenv(EnvProfileDir)); v != "" {
		c.ProfileDir = v
	}
	switch strings.ToLower(strings.TrimSpace(os.Getenv(EnvDebug))) {
	case "1", "true", "yes":
		c.Debug = true
	}
}

// validate normalises soft errors to defaults and rejects hard ones.
func (c *Config) validate() error {
	if len(c.DNS) == 0 {
		c.DNS = []string{common.DefaultDNS}
	}
	if c.Keepalive <= 0 {
		c.Keepalive = common.DefaultKeepalive
	}
	if c.Address == "" {
		c.Address = common.DefaultTunnelAddress
	}
	if c.APIBaseURL == "" {
		c.APIBaseURL = common.DefaultAPIBaseURL
	}
	c.APIBaseURL = strings.TrimRight(c.APIBaseURL, "/")
	if c.RequestTimeout <= 0 {
		c.RequestTimeout = Duration(common.DefaultRequestTimeout)
	}
	if c.Notifier.Type == "" {
		c.Notifier.Type = NotifierNone
	}
	if c.Store.Type == "" {
		c.Store.Type = StoreFile
	}

	if c.Limit < 0 {
		return fmt.Errorf("%w: limit must not be negative", common.ErrInvalidConfig)
	}
	if c.HistoryRetention < 0 {
		return fmt.Errorf("%w: historyRetention must not be negative", common.ErrInvalidConfig)
	}
	if c.MaxLoad != nil && (*c.MaxLoad < 0 || *c.MaxLoad > 100) {
		return fmt.Errorf("%w: maxLoad must be between 0 and 100", common.ErrInvalidConfig)
	}
	if !c.Recommended && len(c.Countries) == 0 {
		return fmt.Errorf("%w: no profiles requested (set recommended or countries)", common.ErrInvalidConfig)
	}
	for i, name := range c.Countries {
		if strings.TrimSpace(name) == "" {
			return fmt.Errorf("%w: countries[%d] is empty", common.ErrInvalidConfig, i)
		}
	}

	switch c.Notifier.Type {
	case NotifierNone, NotifierDBus, NotifierDesktop:
	case NotifierExec:
		if len(c.Notifier.Command) == 0 {
			return fmt.Errorf("%w: notifier.command is required for exec notifier", common.ErrInvalidConfig)
		}
	default:
		return fmt.Errorf("%w: unknown notifier type %q", common.ErrInvalidConfig, c.Notifier.Type)
	}

	switch c.Store.Type {
	case StoreFile:
		if c.ProfileDir == "" {
			return fmt.Errorf("%w: profileDir is required for the file store", common.ErrInvalidConfig)
		}
	case StoreConsul:
	default:
		return fmt.Errorf("%w: unknown store type %q", common.ErrInvalidConfig, c.Store.Type)
	}
	return nil
}

// HistoryPath resolves the ledger location, defaulting to the data
// directory. It returns "" when the ledger is disabled.
func (c *Config) HistoryPath() (string, error) {
	switch c.HistoryDB {
	case "-":
		return "", nil
	case "":
		dir, err := common.GetDataDir()
		if err != nil {
			return "", err
		}
		return filepath.Join(dir, common.HistoryFileName), nil
	default:
		return c.HistoryDB, nil
	}
}

// OptionalBool records whether a YAML value was an explicit boolean.
// Non-boolean scalars ("yes", 1, "true" in quotes) leave it unset
// instead of failing the whole configuration.
type OptionalBool struct {
	Value bool
	Set   bool
}

// UnmarshalYAML implements yaml.Unmarshaler.
func (b *OptionalBool) UnmarshalYAML(node *yaml.Node) error {
	*b = OptionalBool{}
	if node.ShortTag() == "!!null" {
		return nil
	}
	if node.Kind != yaml.ScalarNode || node.ShortTag() != "!!bool" {
		common.LogWarn("Ignoring non-boolean policy value %q (line %d)", node.Value, node.Line)
		return nil
	}
	var v bool
	if err := node.Decode(&v); err != nil {
		return nil
	}
	*b = OptionalBool{Value: v, Set: true}
	return nil
}

// MarshalYAML implements yaml.Marshaler.
func (b OptionalBool) MarshalYAML() (interface{}, error) {
	if !b.Set {
		return nil, nil
	}
	return b.Value, nil
}

// Or returns the explicit value, or def when none was given.
func (b OptionalBool) Or(def bool) bool {
	if b.Set {
		return b.Value
	}
	return def
}

// Duration is a time.Duration read from strings like "30s" or from a
// plain number of seconds.
type Duration time.Duration

// UnmarshalYAML implements yaml.Unmarshaler.
func (d *Duration) UnmarshalYAML(node *yaml.Node) error {
	if node.ShortTag() == "!!int" || node.ShortTag() == "!!float" {
		var secs float64
		if err := node.Decode(&secs); err != nil {
			return err
		}
		*d = Duration(time.Duration(secs * float64(time.Second)))
		return nil
	}
	parsed, err := time.ParseDuration(node.Value)
	if err != nil {
		return fmt.Errorf("line %d: %w", node.Line, err)
	}
	*d = Duration(parsed)
	return nil
}

// MarshalYAML implements yaml.Marshaler.
func (d Duration) MarshalYAML() (interface{}, error) {
	return time.Duration(d).String(), nil
}

// Std returns the value as a time.Duration.
func (d Duration) Std() time.Duration {
	return time.Duration(d)
}
