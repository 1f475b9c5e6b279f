package config

import (
	"fmt"
	"os"
	"time"

	"go.yaml.in/yaml/v4"
)

// Config is the top-level application configuration.
type Config struct {
	LogLevel string  `yaml:"log_level"`
	Mailbox  Mailbox `yaml:"mailbox"`
	Sender   SMTP    `yaml:"sender"`
	Webhook  Webhook `yaml:"webhook"`
	Storage  Storage `yaml:"storage"`
	HTTP     HTTP    `yaml:"http"`
}

// Mailbox describes the monitored remote mailbox.
type Mailbox struct {
	Protocol        string `yaml:"protocol"` // "imap" or "pop3"
	Host            string `yaml:"host"`
	Port            int    `yaml:"port"`
	Username        string `yaml:"username"`
	Password        string `yaml:"password"`
	UseTLS          bool   `yaml:"use_tls"`
	Folder          string `yaml:"folder"`
	Criteria        string `yaml:"criteria"` // "unseen" or "all"
	CheckIntervalMS int    `yaml:"check_interval_ms"`
}

// SMTP holds the outgoing mail relay configuration.
type SMTP struct {
	Host     string `yaml:"host"`
	Port     int    `yaml:"port"`
	Username string `yaml:"username"`
	Password string `yaml:"password"`
	UseTLS   bool   `yaml:"use_tls"`
	From     string `yaml:"from"`
}

// Webhook holds the downstream notification endpoint configuration.
type Webhook struct {
	URL    string `yaml:"url"`     // base URL of the main application
	APIKey string `yaml:"api_key"` // shared secret sent as X-API-Key
}

// Storage holds local persistence paths.
type Storage struct {
	DatabasePath   string `yaml:"database_path"`
	AttachmentsDir string `yaml:"attachments_dir"`
}

// HTTP holds the settings of the request-handling API.
type HTTP struct {
	ListenAddr string `yaml:"listen_addr"`
	APIKey     string `yaml:"api_key"`
}

// CheckInterval returns the polling interval as a time.Duration.
func (m *Mailbox) CheckInterval() time.Duration {
	if m.CheckIntervalMS <= 0 {
		return 60 * time.Second
	}
	return time.Duration(m.CheckIntervalMS) * time.Millisecond
}

// GetFolder returns the mailbox folder name, defaulting to "INBOX".
func (m *Mailbox) GetFolder() string {
	if m.Folder == "" {
		return "INBOX"
	}
	return m.Folder
}

// GetCriteria returns the enumeration criteria, defaulting to "unseen".
func (m *Mailbox) GetCriteria() string {
	if m.Criteria == "" {
		return "unseen"
	}
	return m.Criteria
}

// GetProtocol returns the mailbox protocol, defaulting to "imap".
func (m *Mailbox) GetProtocol() string {
	if m.Protocol == "" {
		return "imap"
	}
	return m.Protocol
}

// GetDatabasePath returns the SQLite database path, defaulting to data/emails.db.
func (s *Storage) GetDatabasePath() string {
	if s.DatabasePath == "" {
		return "data/emails.db"
	}
	return s.DatabasePath
}

// GetAttachmentsDir returns the attachment root path, defaulting to attachments.
func (s *Storage) GetAttachmentsDir() string {
	if s.AttachmentsDir == "" {
		return "attachments"
	}
	return s.AttachmentsDir
}

// GetListenAddr returns the HTTP listen address, defaulting to :3002.
func (h *HTTP) GetListenAddr() string {
	if h.ListenAddr == "" {
		return ":3002"
	}
	return h.ListenAddr
}

// Load reads and parses a YAML configuration file.
func Load(path string) (*Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read config file: %w", err)
	}

	cfg := &Config{
		LogLevel: "info",
	}
	if err := yaml.Unmarshal(data, cfg); err != nil {
		return nil, fmt.Errorf("parse config: %w", err)
	}

	if err := cfg.validate(); err != nil {
		return nil, fmt.Errorf("validate config: %w", err)
	}
	return cfg, nil
}

func (c *Config) validate() error {
	m := &c.Mailbox
	if p := m.GetProtocol(); p != "imap" && p != "pop3" {
		return fmt.Errorf("mailbox.protocol must be imap or pop3")
	}
	if m.Host == "" {
		return fmt.Errorf("mailbox.host is required")
	}
	if m.Port == 0 {
		return fmt.Errorf("mailbox.port is required")
	}
	if cr := m.GetCriteria(); cr != "unseen" && cr != "all" {
		return fmt.Errorf("mailbox.criteria must be unseen or all")
	}
	if c.Sender.Host == "" {
		return fmt.Errorf("sender.host is required")
	}
	if c.Sender.Port == 0 {
		return fmt.Errorf("sender.port is required")
	}
	if c.Webhook.URL == "" {
		return fmt.Errorf("webhook.url is required")
	}
	return nil
}
