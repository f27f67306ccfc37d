// Package config loads the server configuration.
//
// Values are layered, later layers winning:
//
//  1. Default()
//  2. the YAML file named by --config or IVR_CONFIG (optional)
//  3. environment variables (PORT, DB_PATH, SECRET_KEY, SMTP_*, BASE_URL, LOG_LEVEL)
//  4. the --port and --db flags
//
// The result is checked by Validate before it is returned.
package config

import (
	"bytes"
	"errors"
	"fmt"
	"os"
	"strconv"
	"time"

	"github.com/spf13/pflag"
	"gopkg.in/yaml.v3"
)

const (
	Development = "development"
	Production  = "production"
)

// devSecret is only accepted outside production.
const devSecret = "dev-secret-change-me-please"

// Config is the complete server configuration.
type Config struct {
	Environment string         `yaml:"environment"`
	Server      ServerConfig   `yaml:"server"`
	Database    DatabaseConfig `yaml:"database"`
	Security    SecurityConfig `yaml:"security"`
	Mail        MailConfig     `yaml:"mail"`
	Log         LogConfig      `yaml:"log"`
}

type ServerConfig struct {
	Port int `yaml:"port"`
	// BaseURL prefixes links sent by email, e.g. https://board.example.com
	BaseURL     string `yaml:"base_url"`
	TemplateDir string `yaml:"template_dir"`
	StaticDir   string `yaml:"static_dir"`
}

type DatabaseConfig struct {
	// Path of the SQLite file, or ":memory:".
	Path string `yaml:"path"`
}

type SecurityConfig struct {
	// SecretKey signs session cookies and confirmation tokens.
	SecretKey          string   `yaml:"secret_key"`
	BcryptCost         int      `yaml:"bcrypt_cost"`
	SessionTTL         Duration `yaml:"session_ttl"`
	ConfirmTokenMaxAge Duration `yaml:"confirm_token_max_age"`
	SecureCookies      bool     `yaml:"secure_cookies"`
}

// MailConfig configures outgoing mail. With an empty Host mail is logged
// instead of sent.
type MailConfig struct {
	Host      string   `yaml:"host"`
	Port      int      `yaml:"port"`
	Username  string   `yaml:"username"`
	Password  string   `yaml:"password"`
	From      string   `yaml:"from"`
	TLSPolicy string   `yaml:"tls_policy"`
	Timeout   Duration `yaml:"timeout"`
}

type LogConfig struct {
	Level  string `yaml:"level"`  // debug, info, warn, error
	Format string `yaml:"format"` // text or json
}

// Duration is a time.Duration written as a string ("10s", "1h") in YAML.
type Duration struct {
	time.Duration
}

// UnmarshalYAML implements yaml.Unmarshaler.
func (d *Duration) UnmarshalYAML(node *yaml.Node) error {
	var s string
	if err := node.Decode(&s); err != nil {
		return err
	}
	parsed, err := time.ParseDuration(s)
	if err != nil {
		return fmt.Errorf("line %d: invalid duration %q: %w", node.Line, s, err)
	}
	d.Duration = parsed
	return nil
}

// MarshalYAML implements yaml.Marshaler.
func (d Duration) MarshalYAML() (any, error) {
	return d.String(), nil
}

// Default returns the configuration used when nothing else is set.
func Default() *Config {
	return &Config{
		Environment: Development,
		Server: ServerConfig{
			Port:        8080,
			BaseURL:     "http://localhost:8080",
			TemplateDir: "web/templates",
			StaticDir:   "web/static",
		},
		Database: DatabaseConfig{Path: "ivr.db"},
		Security: SecurityConfig{
			SecretKey:          devSecret,
			BcryptCost:         12,
			SessionTTL:         Duration{30 * 24 * time.Hour},
			ConfirmTokenMaxAge: Duration{time.Hour},
		},
		Mail: MailConfig{
			Port:      587,
			TLSPolicy: "mandatory",
			Timeout:   Duration{10 * time.Second},
		},
		Log: LogConfig{Level: "info", Format: "text"},
	}
}

// Load builds the configuration from args (without the program name) and
// the environment as seen through getenv.
func Load(args []string, getenv func(string) string) (*Config, error) {
	fs := pflag.NewFlagSet("ivr-board", pflag.ContinueOnError)
	configPath := fs.String("config", "", "path to a YAML config file (env IVR_CONFIG)")
	port := fs.Int("port", 0, "HTTP server port (overrides config and PORT)")
	dbPath := fs.String("db", "", "SQLite database path (overrides config and DB_PATH)")
	if err := fs.Parse(args); err != nil {
		return nil, err
	}

	cfg := Default()

	path := *configPath
	if path == "" {
		path = getenv("IVR_CONFIG")
	}
	if path != "" {
		if err := cfg.loadFile(path); err != nil {
			return nil, err
		}
	}

	if err := cfg.applyEnv(getenv); err != nil {
		return nil, err
	}

	if fs.Changed("port") {
		cfg.Server.Port = *port
	}
	if fs.Changed("db") {
		cfg.Database.Path = *dbPath
	}

	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

func (c *Config) loadFile(path string) error {
	data, err := os.ReadFile(path)
	if err != nil {
		return fmt.Errorf("config: reading %s: %w", path, err)
	}
	dec := yaml.NewDecoder(bytes.NewReader(data))
	dec.KnownFields(true)
	if err := dec.Decode(c); err != nil {
		return fmt.Errorf("config: parsing %s: %w", path, err)
	}
	return nil
}

func (c *Config) applyEnv(getenv func(string) string) error {
	strVars := map[string]*string{
		"DB_PATH":       &c.Database.Path,
		"SECRET_KEY":    &c.Security.SecretKey,
		"SMTP_HOST":     &c.Mail.Host,
		"SMTP_USERNAME": &c.Mail.Username,
		"SMTP_PASSWORD": &c.Mail.Password,
		"SMTP_FROM":     &c.Mail.From,
		"BASE_URL":      &c.Server.BaseURL,
		"LOG_LEVEL":     &c.Log.Level,
	}
	for name, dst := range strVars {
		if v := getenv(name); v != "" {
			*dst = v
		}
	}

	intVars := map[string]*int{
		"PORT":      &c.Server.Port,
		"SMTP_PORT": &c.Mail.Port,
	}
	for name, dst := range intVars {
		v := getenv(name)
		if v == "" {
			continue
		}
		n, err := strconv.Atoi(v)
		if err != nil {
			return fmt.Errorf("config: %s=%q is not a number", name, v)
		}
		*dst = n
	}
	return nil
}

// Validate reports every problem with c at once.
func (c *Config) Validate() error {
	var errs []error

	if c.Environment != Development && c.Environment != Production {
		errs = append(errs, fmt.Errorf("environment must be %q or %q, got %q", Development, Production, c.Environment))
	}
	if c.Server.Port < 1 || c.Server.Port > 65535 {
		errs = append(errs, fmt.Errorf("server.port %d out of range", c.Server.Port))
	}
	if c.Database.Path == "" {
		errs = append(errs, errors.New("database.path is required"))
	}
	if len(c.Security.SecretKey) < 16 {
		errs = append(errs, errors.New("security.secret_key must be at least 16 characters"))
	}
	if c.Environment == Production && c.Security.SecretKey == devSecret {
		errs = append(errs, errors.New("security.secret_key must be set in production"))
	}
	if c.Security.SessionTTL.Duration <= 0 {
		errs = append(errs, errors.New("security.session_ttl must be positive"))
	}
	if c.Security.ConfirmTokenMaxAge.Duration <= 0 {
		errs = append(errs, errors.New("security.confirm_token_max_age must be positive"))
	}
	if c.Mail.Host != "" && c.Mail.From == "" {
		errs = append(errs, errors.New("mail.from is required when mail.host is set"))
	}
	switch c.Log.Format {
	case "text", "json":
	default:
		errs = append(errs, fmt.Errorf("log.format must be text or json, got %q", c.Log.Format))
	}

	if len(errs) > 0 {
		return fmt.Errorf("config: %w", errors.Join(errs...))
	}
	return nil
}
