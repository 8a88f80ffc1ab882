package config

import (
	"encoding/json"
	"fmt"
	"os"
	"regexp"
	"strconv"
	"strings"
	"time"
)

const (
	DefaultClientAddress    = ":6667"
	DefaultLinkAddress      = ":7000"
	DefaultMaxProps         = 32
	DefaultSnapshotInterval = 5 * time.Minute
)

var sidPattern = regexp.MustCompile(`^[0-9][0-9A-Z]{2}$`)

type Config struct {
	ServerName     string       `json:"server_name"`
	SID            string       `json:"sid"`
	ClientAddress  string       `json:"client_address"`
	LinkAddress    string       `json:"link_address"`
	MetricsAddress string       `json:"metrics_address,omitempty"`
	// MaxProps limits properties per entity; 0 means unlimited. A config
	// file or environment that leaves it unset gets DefaultMaxProps.
	MaxProps       int          `json:"max_props"`
	HiddenKeys     []string     `json:"hidden_keys,omitempty"`
	ProtectedKeys  []string     `json:"protected_keys,omitempty"`
	DatabasePath   string       `json:"database_path,omitempty"`
	BcryptCost     int          `json:"bcrypt_cost,omitempty"`
	Peers          []PeerConfig `json:"peers,omitempty"`

	// SnapshotInterval is how often accounts are written to the database.
	SnapshotInterval time.Duration `json:"-"`
}

type PeerConfig struct {
	Name    string `json:"name"`
	Address string `json:"address"`
}

// configRaw accepts snapshot_interval as a duration string or a number of
// seconds, and tells an explicit max_props of 0 apart from an absent one.
type configRaw struct {
	Config
	MaxProps         *int        `json:"max_props"`
	SnapshotInterval interface{} `json:"snapshot_interval,omitempty"`
}

func LoadConfig(path string) (*Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read config file: %w", err)
	}

	return Parse(data)
}

// Parse decodes a JSON config and applies defaults.
func Parse(data []byte) (*Config, error) {
	var raw configRaw
	if err := json.Unmarshal(data, &raw); err != nil {
		return nil, fmt.Errorf("failed to parse config: %w", err)
	}

	cfg := raw.Config
	interval, err := parseInterval(raw.SnapshotInterval)
	if err != nil {
		return nil, err
	}
	cfg.SnapshotInterval = interval

	cfg.MaxProps = DefaultMaxProps
	if raw.MaxProps != nil {
		cfg.MaxProps = *raw.MaxProps
	}

	cfg.ApplyDefaults()
	return &cfg, nil
}

func parseInterval(v interface{}) (time.Duration, error) {
	switch v := v.(type) {
	case nil:
		return 0, nil
	case float64:
		return time.Duration(v * float64(time.Second)), nil
	case string:
		d, err := time.ParseDuration(v)
		if err != nil {
			return 0, fmt.Errorf("invalid snapshot_interval %q: %w", v, err)
		}
		return d, nil
	default:
		return 0, fmt.Errorf("invalid snapshot_interval type %T", v)
	}
}

func LoadFromEnv() *Config {
	cfg := &Config{
		ServerName:     getEnv("IRCXPROP_SERVER_NAME", ""),
		SID:            getEnv("IRCXPROP_SID", ""),
		ClientAddress:  getEnv("IRCXPROP_CLIENT_ADDRESS", DefaultClientAddress),
		LinkAddress:    getEnv("IRCXPROP_LINK_ADDRESS", DefaultLinkAddress),
		MetricsAddress: getEnv("IRCXPROP_METRICS_ADDRESS", ""),
		DatabasePath:   getEnv("IRCXPROP_DATABASE_PATH", ""),
	}

	cfg.MaxProps = DefaultMaxProps
	if v, err := strconv.Atoi(getEnv("IRCXPROP_MAX_PROPS", "")); err == nil {
		cfg.MaxProps = v
	}
	if v, err := time.ParseDuration(getEnv("IRCXPROP_SNAPSHOT_INTERVAL", "")); err == nil {
		cfg.SnapshotInterval = v
	}
	if keys := os.Getenv("IRCXPROP_HIDDEN_KEYS"); keys != "" {
		cfg.HiddenKeys = splitList(keys)
	}

	// Peers are comma-separated name=address pairs: hub=hub.example.org:7000
	if peers := os.Getenv("IRCXPROP_PEERS"); peers != "" {
		for _, entry := range splitList(peers) {
			name, addr, ok := strings.Cut(entry, "=")
			if !ok {
				continue
			}
			cfg.Peers = append(cfg.Peers, PeerConfig{Name: name, Address: addr})
		}
	}

	cfg.ApplyDefaults()
	return cfg
}

// ApplyDefaults fills unset fields. MaxProps is left alone since 0 is a
// valid limit.
func (c *Config) ApplyDefaults() {
	if c.ClientAddress == "" {
		c.ClientAddress = DefaultClientAddress
	}
	if c.LinkAddress == "" {
		c.LinkAddress = DefaultLinkAddress
	}
	if c.HiddenKeys == nil {
		c.HiddenKeys = []string{"passphrase"}
	}
	if c.SnapshotInterval == 0 {
		c.SnapshotInterval = DefaultSnapshotInterval
	}
}

// Validate checks that the config describes a runnable server.
func (c *Config) Validate() error {
	if c.ServerName == "" {
		return fmt.Errorf("server_name is required")
	}
	if strings.ContainsAny(c.ServerName, " :") || !strings.Contains(c.ServerName, ".") {
		return fmt.Errorf("server_name %q must be a dotted name without spaces", c.ServerName)
	}
	if !sidPattern.MatchString(c.SID) {
		return fmt.Errorf("sid %q must be a digit followed by two digits or upper-case letters", c.SID)
	}
	if c.MaxProps < 0 {
		return fmt.Errorf("max_props must not be negative")
	}
	if c.SnapshotInterval < 0 {
		return fmt.Errorf("snapshot_interval must not be negative")
	}
	for i, p := range c.Peers {
		if p.Name == "" || p.Address == "" {
			return fmt.Errorf("peer %d needs a name and an address", i)
		}
	}
	return nil
}

func splitList(s string) []string {
	var out []string
	for _, part := range strings.Split(s, ",") {
		if part = strings.TrimSpace(part); part != "" {
			out = append(out, part)
		}
	}
	return out
}

func getEnv(key, defaultValue string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return defaultValue
}
