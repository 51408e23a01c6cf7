// Package config resolves the node's startup parameters from flags and
// environment variables: each node is started with its own IPv4 address
// and a list of seed IPv4 addresses. Grounded on
// internal/config's viper.Viper singleton pattern in BeadsLog, reduced to
// this node's much narrower surface: no config-file discovery and no
// config subcommands, since this node has no interactive config editing
// story, just the handful of values a process needs at boot.
package config

import (
	"fmt"
	"net"
	"os"
	"path/filepath"
	"strings"

	"github.com/spf13/pflag"
	"github.com/spf13/viper"

	"github.com/rusticdb/rusticdb/internal/internode"
)

// envPrefix namespaces every environment override as RUSTIC_<FLAG>, e.g.
// --data-dir is overridden by RUSTIC_DATA_DIR.
const envPrefix = "RUSTIC"

// Config is everything a node needs to bind its ports, find its seeds, and
// locate its data directory.
type Config struct {
	IP            net.IP
	Seeds         []net.IP
	ClientAddr    string
	InternodeAddr string
	DataDir       string
	LogLevel      string
}

// BindFlags registers the flags Load reads, so a cobra command's RunE can
// call Load(cmd.Flags()) after cobra has parsed the command line.
func BindFlags(flags *pflag.FlagSet) {
	flags.String("ip", "", "this node's own IPv4 address (required)")
	flags.StringSlice("seeds", nil, "comma-separated seed IPv4 addresses")
	flags.String("client-addr", ":9042", "address to bind the client protocol listener on")
	flags.String("internode-addr", ":"+internode.DefaultPort, "address to bind the internode listener on")
	flags.String("data-dir", "./data", "directory the storage engine writes table files under")
	flags.String("log-level", "info", "zerolog level: debug, info, warn, error")
}

// Load resolves a Config from flags, falling back to RUSTIC_-prefixed
// environment variables for anything left at its flag default.
func Load(flags *pflag.FlagSet) (*Config, error) {
	v := viper.New()
	v.SetEnvPrefix(envPrefix)
	v.SetEnvKeyReplacer(strings.NewReplacer("-", "_"))
	v.AutomaticEnv()
	if err := v.BindPFlags(flags); err != nil {
		return nil, fmt.Errorf("config: binding flags: %w", err)
	}

	ipStr := v.GetString("ip")
	if ipStr == "" {
		return nil, fmt.Errorf("config: --ip (or RUSTIC_IP) is required")
	}
	ip := net.ParseIP(ipStr).To4()
	if ip == nil {
		return nil, fmt.Errorf("config: %q is not a valid IPv4 address", ipStr)
	}

	var seeds []net.IP
	for _, s := range v.GetStringSlice("seeds") {
		s = strings.TrimSpace(s)
		if s == "" {
			continue
		}
		sip := net.ParseIP(s).To4()
		if sip == nil {
			return nil, fmt.Errorf("config: seed %q is not a valid IPv4 address", s)
		}
		seeds = append(seeds, sip)
	}

	cfg := &Config{
		IP:            ip,
		Seeds:         seeds,
		ClientAddr:    v.GetString("client-addr"),
		InternodeAddr: v.GetString("internode-addr"),
		DataDir:       v.GetString("data-dir"),
		LogLevel:      v.GetString("log-level"),
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

// Validate checks the fields Load cannot already guarantee by construction.
func (c *Config) Validate() error {
	if c.ClientAddr == "" {
		return fmt.Errorf("config: client-addr must not be empty")
	}
	if c.InternodeAddr == "" {
		return fmt.Errorf("config: internode-addr must not be empty")
	}
	if c.DataDir == "" {
		return fmt.Errorf("config: data-dir must not be empty")
	}
	switch strings.ToLower(c.LogLevel) {
	case "debug", "info", "warn", "error":
	default:
		return fmt.Errorf("config: unrecognized log-level %q", c.LogLevel)
	}
	return nil
}

// IsSeed reports whether this node's own IP appears in its seed list,
// deciding whether startup needs to dial out for a gossip SYN.
func (c *Config) IsSeed() bool {
	for _, s := range c.Seeds {
		if s.Equal(c.IP) {
			return true
		}
	}
	return false
}

// EnsureDataDir creates the data directory if needed and probes that it is
// actually writable, so callers can map a failure here onto the
// storage-directory-unwritable exit code distinctly from a bind failure or
// a configuration error.
func (c *Config) EnsureDataDir() error {
	if err := os.MkdirAll(c.DataDir, 0o755); err != nil {
		return fmt.Errorf("config: creating data dir %s: %w", c.DataDir, err)
	}
	probe := filepath.Join(c.DataDir, ".write-probe")
	f, err := os.Create(probe)
	if err != nil {
		return fmt.Errorf("config: data dir %s is not writable: %w", c.DataDir, err)
	}
	f.Close()
	return os.Remove(probe)
}
