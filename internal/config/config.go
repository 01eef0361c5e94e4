// Package config holds lansync's daemon configuration: the flat
// struct-plus-DefaultConfig()-plus-optional-file shape the donor daemon
// used, carried over deliberately — this spec doesn't call for a config
// framework any more than the donor did.
package config

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"time"
)

// DiscoveryBackend selects which of the two external discovery mechanisms
// spec.md section 9's first Open Question names.
type DiscoveryBackend string

const (
	DiscoveryUDPBroadcast    DiscoveryBackend = "udp"
	DiscoveryCentralRegistry DiscoveryBackend = "registry"
)

// Config holds everything a lansync daemon instance needs to run one
// device across one or more namespaces.
type Config struct {
	// DeviceID-identity
	KeysDirectory   string `json:"keys_directory"`
	KeystorePath    string `json:"keystore_path"`

	// Storage
	DataDirectory string `json:"data_directory"`
	DBPath        string `json:"db_path"`
	GCLedgerPath  string `json:"gc_ledger_path"`
	GCMaxAge      time.Duration `json:"gc_max_age"`
	GCInterval    time.Duration `json:"gc_interval"`

	// Chunking
	ChunkSize int    `json:"chunk_size"`
	HashAlgo  string `json:"hash_algo"` // "MD5" (default) or "BLAKE3"

	// Concurrency (spec.md section 5)
	ClientsPerPeer int `json:"clients_per_peer"`
	WorkerCount    int `json:"worker_count"`

	// Transport (spec.md section 6)
	ListenAddress string `json:"listen_address"`
	ConnectTimeout time.Duration `json:"connect_timeout"`
	ReadTimeout    time.Duration `json:"read_timeout"`

	// Discovery (spec.md section 9, Open Question 1)
	DiscoveryBackend      DiscoveryBackend `json:"discovery_backend"`
	DiscoveryPingInterval time.Duration    `json:"discovery_ping_interval"`
	RegistryURL           string           `json:"registry_url"`

	// Event log (spec.md section 6)
	EventServerURL string `json:"event_server_url"`

	// Stats sink (spec.md section 6)
	StatsLogDirectory string `json:"stats_log_directory"`

	// Namespaces this device participates in, each rooted at a local
	// directory.
	Namespaces map[string]string `json:"namespaces"` // namespace -> root path
}

// LivenessWindow is 3x the discovery ping interval, the canonical window
// spec.md's Open Question 1 settles on (over the registry backend's
// hardcoded 5 minutes).
func (c *Config) LivenessWindow() time.Duration {
	return 3 * c.DiscoveryPingInterval
}

// DefaultConfig returns the out-of-the-box configuration for a single-device
// dev setup: data under ~/.local/share/lansync, UDP discovery, MD5
// chunking, and no namespaces configured.
func DefaultConfig() *Config {
	home, _ := os.UserHomeDir()
	dataDir := filepath.Join(home, ".local", "share", "lansync")

	return &Config{
		KeysDirectory:  filepath.Join(dataDir, "keys"),
		KeystorePath:   filepath.Join(dataDir, "keys", "identity.key"),
		DataDirectory:  dataDir,
		DBPath:         filepath.Join(dataDir, "lansync.db"),
		GCLedgerPath:   filepath.Join(dataDir, "gc.bolt"),
		GCMaxAge:       7 * 24 * time.Hour,
		GCInterval:     1 * time.Hour,
		ChunkSize:      1048576,
		HashAlgo:       "MD5",
		ClientsPerPeer: 4,
		WorkerCount:    32,
		ListenAddress:  ":9443",
		ConnectTimeout: 5 * time.Second,
		ReadTimeout:    30 * time.Second,
		DiscoveryBackend:      DiscoveryUDPBroadcast,
		DiscoveryPingInterval: 10 * time.Second,
		EventServerURL:        "http://127.0.0.1:8090",
		StatsLogDirectory:     filepath.Join(dataDir, "log"),
		Namespaces:            map[string]string{},
	}
}

// LoadConfig reads a JSON config file at path, overlaying it onto
// DefaultConfig. An empty path returns the defaults unchanged.
func LoadConfig(path string) (*Config, error) {
	cfg := DefaultConfig()
	if path == "" {
		return cfg, nil
	}

	data, err := os.ReadFile(path)
	if err != nil {
		if os.IsNotExist(err) {
			return cfg, nil
		}
		return nil, fmt.Errorf("config: read %s: %w", path, err)
	}
	if err := json.Unmarshal(data, cfg); err != nil {
		return nil, fmt.Errorf("config: parse %s: %w", path, err)
	}
	return cfg, nil
}
