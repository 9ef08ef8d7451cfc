package config

import (
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/BurntSushi/toml"
	"gopkg.in/yaml.v3"

	"github.com/rflorenc/profilemig/internal/models"
)

// Environment variables that override secrets from the config file.
const (
	EnvSitePassword  = "PROFILEMIG_SITE_PASSWORD"
	EnvWinRMPassword = "PROFILEMIG_WINRM_PASSWORD"
	EnvMailPassword  = "PROFILEMIG_MAIL_PASSWORD"
)

// SiteConfig locates the AdminService of the Configuration Manager site.
type SiteConfig struct {
	Name     string `yaml:"name" toml:"name"`
	Code     string `yaml:"code" toml:"code"`
	Scheme   string `yaml:"scheme" toml:"scheme"`
	Host     string `yaml:"host" toml:"host"`
	Port     int    `yaml:"port" toml:"port"`
	Username string `yaml:"username" toml:"username"`
	Password string `yaml:"password" toml:"password"`
	Insecure bool   `yaml:"insecure" toml:"insecure"`
	CACert   string `yaml:"ca_cert" toml:"ca_cert"` // path to a PEM bundle
}

// JobConfig names the collection and package of one task sequence deployment.
type JobConfig struct {
	CollectionID string `yaml:"collection_id" toml:"collection_id"`
	PackageID    string `yaml:"package_id" toml:"package_id"`
}

// TimingConfig holds every wait interval used by the run.
type TimingConfig struct {
	LivenessInterval time.Duration `yaml:"liveness_interval" toml:"liveness_interval"`
	LivenessTimeout  time.Duration `yaml:"liveness_timeout" toml:"liveness_timeout"`
	PollInterval     time.Duration `yaml:"poll_interval" toml:"poll_interval"`
	InitialGrace     time.Duration `yaml:"initial_grace" toml:"initial_grace"`
	StaleSettle      time.Duration `yaml:"stale_settle" toml:"stale_settle"`
	JobTimeout       time.Duration `yaml:"job_timeout" toml:"job_timeout"`
	MaxMissingPolls  int           `yaml:"max_missing_polls" toml:"max_missing_polls"`
}

// RetryConfig bounds how often a failed job is re-armed.
type RetryConfig struct {
	MaxAttempts  int           `yaml:"max_attempts" toml:"max_attempts"`
	InitialDelay time.Duration `yaml:"initial_delay" toml:"initial_delay"`
	Multiplier   float64       `yaml:"multiplier" toml:"multiplier"`
	MaxDelay     time.Duration `yaml:"max_delay" toml:"max_delay"`
}

// LivenessConfig selects the reachability probe.
type LivenessConfig struct {
	Probe      string        `yaml:"probe" toml:"probe"` // "tcp" or "icmp"
	TCPPort    int           `yaml:"tcp_port" toml:"tcp_port"`
	Timeout    time.Duration `yaml:"timeout" toml:"timeout"`
	Privileged bool          `yaml:"privileged" toml:"privileged"` // raw ICMP sockets
}

// WinRMConfig is used to reach client machines.
type WinRMConfig struct {
	Port     int           `yaml:"port" toml:"port"`
	HTTPS    bool          `yaml:"https" toml:"https"`
	Insecure bool          `yaml:"insecure" toml:"insecure"`
	Username string        `yaml:"username" toml:"username"`
	Password string        `yaml:"password" toml:"password"`
	Timeout  time.Duration `yaml:"timeout" toml:"timeout"`
	Service  string        `yaml:"service" toml:"service"`
}

// MailConfig configures failure and completion notices.
type MailConfig struct {
	Server        string   `yaml:"server" toml:"server"`
	Port          int      `yaml:"port" toml:"port"`
	From          string   `yaml:"from" toml:"from"`
	To            []string `yaml:"to" toml:"to"`
	SubjectPrefix string   `yaml:"subject_prefix" toml:"subject_prefix"`
	Username      string   `yaml:"username" toml:"username"`
	Password      string   `yaml:"password" toml:"password"`
	StartTLS      bool     `yaml:"starttls" toml:"starttls"`
}

// Config holds all configuration (config file + CLI overrides).
// It is built once at startup and passed by value afterwards.
type Config struct {
	Site      SiteConfig     `yaml:"site" toml:"site"`
	Capture   JobConfig      `yaml:"capture" toml:"capture"`
	Restore   JobConfig      `yaml:"restore" toml:"restore"`
	Behavior  string         `yaml:"behavior" toml:"behavior"`
	Timing    TimingConfig   `yaml:"timing" toml:"timing"`
	Retry     RetryConfig    `yaml:"retry" toml:"retry"`
	Liveness  LivenessConfig `yaml:"liveness" toml:"liveness"`
	WinRM     WinRMConfig    `yaml:"winrm" toml:"winrm"`
	Mail      MailConfig     `yaml:"mail" toml:"mail"`
	LogDir    string         `yaml:"log_dir" toml:"log_dir"`
	LogLevel  string         `yaml:"log_level" toml:"log_level"`
	HistoryDB string         `yaml:"history_db" toml:"history_db"`
	Listen    string         `yaml:"listen" toml:"listen"`
}

// Overrides carries values set explicitly on the command line.
// Non-zero fields win over the config file.
type Overrides struct {
	Listen    string
	LogLevel  string
	LogDir    string
	HistoryDB string
}

// Load reads the config file at path (YAML or TOML by extension), overlays
// CLI overrides and environment secrets, applies defaults and validates.
func Load(path string, o Overrides) (Config, error) {
	var c Config
	if path != "" {
		if err := c.loadFile(path); err != nil {
			return Config{}, err
		}
	}

	// Only apply CLI values that were set
	if o.Listen != "" {
		c.Listen = o.Listen
	}
	if o.LogLevel != "" {
		c.LogLevel = o.LogLevel
	}
	if o.LogDir != "" {
		c.LogDir = o.LogDir
	}
	if o.HistoryDB != "" {
		c.HistoryDB = o.HistoryDB
	}

	c.applyEnv()
	c.ApplyDefaults()
	if err := Validate(c); err != nil {
		return Config{}, err
	}
	return c, nil
}

// loadFile reads a YAML or TOML config file into c.
func (c *Config) loadFile(path string) error {
	data, err := os.ReadFile(path)
	if err != nil {
		return fmt.Errorf("reading %s: %w", path, err)
	}

	switch strings.ToLower(filepath.Ext(path)) {
	case ".toml":
		if _, err := toml.Decode(string(data), c); err != nil {
			return fmt.Errorf("parsing %s: %w", path, err)
		}
	default:
		if err := yaml.Unmarshal(data, c); err != nil {
			return fmt.Errorf("parsing %s: %w", path, err)
		}
	}
	return nil
}

func (c *Config) applyEnv() {
	if v := os.Getenv(EnvSitePassword); v != "" {
		c.Site.Password = v
	}
	if v := os.Getenv(EnvWinRMPassword); v != "" {
		c.WinRM.Password = v
	}
	if v := os.Getenv(EnvMailPassword); v != "" {
		c.Mail.Password = v
	}
}

// ApplyDefaults fills every unset field with its default.
func (c *Config) ApplyDefaults() {
	if c.Site.Scheme == "" {
		c.Site.Scheme = "https"
	}
	if c.Site.Port == 0 {
		if c.Site.Scheme == "https" {
			c.Site.Port = 443
		} else {
			c.Site.Port = 80
		}
	}
	if c.Behavior == "" {
		c.Behavior = models.CaptureAndRestoreAllUserAccounts.String()
	}

	t := &c.Timing
	if t.LivenessInterval == 0 {
		t.LivenessInterval = 300 * time.Second
	}
	if t.LivenessTimeout == 0 {
		t.LivenessTimeout = 8 * time.Hour
	}
	if t.PollInterval == 0 {
		t.PollInterval = 60 * time.Second
	}
	if t.InitialGrace == 0 {
		t.InitialGrace = 20 * time.Second
	}
	if t.StaleSettle == 0 {
		t.StaleSettle = 60 * time.Second
	}
	if t.JobTimeout == 0 {
		t.JobTimeout = 12 * time.Hour
	}
	if t.MaxMissingPolls == 0 {
		t.MaxMissingPolls = 30
	}

	r := &c.Retry
	if r.MaxAttempts == 0 {
		r.MaxAttempts = 3
	}
	if r.InitialDelay == 0 {
		r.InitialDelay = 60 * time.Second
	}
	if r.Multiplier == 0 {
		r.Multiplier = 2.0
	}
	if r.MaxDelay == 0 {
		r.MaxDelay = 30 * time.Minute
	}

	if c.Liveness.Probe == "" {
		c.Liveness.Probe = "tcp"
	}
	if c.Liveness.Timeout == 0 {
		c.Liveness.Timeout = 5 * time.Second
	}

	if c.WinRM.Port == 0 {
		if c.WinRM.HTTPS {
			c.WinRM.Port = 5986
		} else {
			c.WinRM.Port = 5985
		}
	}
	if c.Liveness.TCPPort == 0 {
		c.Liveness.TCPPort = c.WinRM.Port
	}
	if c.WinRM.Timeout == 0 {
		c.WinRM.Timeout = 60 * time.Second
	}
	if c.WinRM.Service == "" {
		c.WinRM.Service = "CcmExec"
	}

	if c.Mail.Port == 0 {
		c.Mail.Port = 25
	}
	if c.Mail.SubjectPrefix == "" {
		c.Mail.SubjectPrefix = "[profilemig]"
	}

	if c.LogDir == "" {
		c.LogDir = "logs"
	}
	if c.LogLevel == "" {
		c.LogLevel = "info"
	}
	if c.HistoryDB == "" {
		c.HistoryDB = filepath.Join(c.LogDir, "history.db")
	}
}

// Validate reports the first problem found in c.
func Validate(c Config) error {
	if strings.TrimSpace(c.Site.Host) == "" {
		return fmt.Errorf("site.host is required")
	}
	if c.Site.Scheme != "http" && c.Site.Scheme != "https" {
		return fmt.Errorf("site.scheme must be http or https, got %q", c.Site.Scheme)
	}
	if err := validateJob("capture", c.Capture); err != nil {
		return err
	}
	if err := validateJob("restore", c.Restore); err != nil {
		return err
	}
	if _, err := models.ParseBehavior(c.Behavior); err != nil {
		return fmt.Errorf("behavior: %w", err)
	}
	if c.Timing.PollInterval < 0 || c.Timing.LivenessInterval < 0 {
		return fmt.Errorf("timing intervals must not be negative")
	}
	if c.Retry.MaxAttempts < 1 {
		return fmt.Errorf("retry.max_attempts must be at least 1")
	}
	if c.Retry.Multiplier < 1.0 {
		return fmt.Errorf("retry.multiplier must be >= 1.0")
	}
	switch c.Liveness.Probe {
	case "tcp", "icmp":
	default:
		return fmt.Errorf("liveness.probe must be tcp or icmp, got %q", c.Liveness.Probe)
	}
	if c.Mail.Server != "" {
		if strings.TrimSpace(c.Mail.From) == "" {
			return fmt.Errorf("mail.from is required when mail.server is set")
		}
		if len(c.Mail.To) == 0 {
			return fmt.Errorf("mail.to is required when mail.server is set")
		}
	}
	return nil
}

func validateJob(name string, j JobConfig) error {
	if strings.TrimSpace(j.CollectionID) == "" {
		return fmt.Errorf("%s.collection_id is required", name)
	}
	if strings.TrimSpace(j.PackageID) == "" {
		return fmt.Errorf("%s.package_id is required", name)
	}
	return nil
}

// SiteModel converts the site section into the model used by the platform
// client. The CA bundle is read from disk when configured.
func (c Config) SiteModel() (*models.Site, error) {
	s := &models.Site{
		Name:     c.Site.Name,
		Code:     c.Site.Code,
		Scheme:   c.Site.Scheme,
		Host:     c.Site.Host,
		Port:     c.Site.Port,
		Username: c.Site.Username,
		Password: c.Site.Password,
		Insecure: c.Site.Insecure,
	}
	if c.Site.CACert != "" && !c.Site.Insecure {
		pem, err := os.ReadFile(c.Site.CACert)
		if err != nil {
			return nil, fmt.Errorf("reading CA bundle: %w", err)
		}
		s.CACert = string(pem)
	}
	return s, nil
}

// BehaviorFlag returns the parsed migration behavior. Validate has already
// rejected unknown values.
func (c Config) BehaviorFlag() models.Behavior {
	b, _ := models.ParseBehavior(c.Behavior)
	return b
}
