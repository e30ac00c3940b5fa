package config

import (
	"log/slog"
	"math"
	"os"
	"strconv"
	"sync"

	"gopkg.in/yaml.v2"
)

// =============================================================================
// DeFL Core Node - Configuration with Environment Overrides
// =============================================================================

// Config is the node's full recognized configuration, covering both the
// spec-named keys (committee_file, key_file, store_path, parameters,
// quorum, obsido_port) and the ambient keys every deployed node needs
// (mempool ingress address, admin HTTP surface, blob store backend,
// logging).
type Config struct {
	Core       CoreConfig       `yaml:"core"`
	Parameters ParametersConfig `yaml:"parameters"`
	BlobStore  BlobStoreConfig  `yaml:"blob_store"`
	Admin      AdminConfig      `yaml:"admin"`
	Logging    LoggingConfig    `yaml:"logging"`
}

// CoreConfig holds the keys spec.md §6 names directly.
type CoreConfig struct {
	CommitteeFile string `yaml:"committee_file"`
	KeyFile       string `yaml:"key_file"`
	StorePath     string `yaml:"store_path"`
	Quorum        int    `yaml:"quorum"`
	ObsidoPort    uint16 `yaml:"obsido_port"`
	MempoolAddr   string `yaml:"mempool_addr"`
}

// ParametersConfig is the "optional tuning file" spec.md §6 leaves
// unspecified beyond "defaults supplied" — batching and channel-capacity
// knobs live here.
type ParametersConfig struct {
	MaxBatchSize      int     `yaml:"max_batch_size"`
	IngressQueueDepth int     `yaml:"ingress_queue_depth"`
	QuorumPercentage  float64 `yaml:"quorum_percentage"`
}

// BlobStoreConfig selects and configures the blob store backend.
type BlobStoreConfig struct {
	Backend   string `yaml:"backend"` // "memory" or "redis"
	RedisAddr string `yaml:"redis_addr"`
	KeyPrefix string `yaml:"key_prefix"`
}

// AdminConfig configures the ambient observability surface.
type AdminConfig struct {
	ListenAddr string `yaml:"listen_addr"`
}

// LoggingConfig configures the ambient structured logger.
type LoggingConfig struct {
	Level string `yaml:"level"`
}

// =============================================================================
// Singleton Pattern with Environment Overrides
// =============================================================================

var (
	instance *Config
	once     sync.Once
)

// Get returns the singleton config instance, loaded once from CONFIG_PATH
// (default "config.yaml") and then overridden from the environment.
func Get() *Config {
	once.Do(func() {
		cfg, err := LoadConfig(getEnv("CONFIG_PATH", "config.yaml"))
		if err != nil {
			slog.Warn("config: failed to load config file (using defaults)", "error", err)
		}
		if cfg == nil {
			cfg = &Config{}
		}
		cfg.applyEnvOverrides()
		instance = cfg
	})
	return instance
}

// LoadConfig loads config from a YAML file.
func LoadConfig(path string) (*Config, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, err
	}
	defer f.Close()

	var cfg Config
	decoder := yaml.NewDecoder(f)
	if err := decoder.Decode(&cfg); err != nil {
		return nil, err
	}
	return &cfg, nil
}

// applyEnvOverrides applies environment variable overrides, then fills in
// defaults for anything still zero-valued.
func (c *Config) applyEnvOverrides() {
	c.Core.CommitteeFile = getEnv("FLNODE_COMMITTEE_FILE", c.Core.CommitteeFile)
	c.Core.KeyFile = getEnv("FLNODE_KEY_FILE", c.Core.KeyFile)
	c.Core.StorePath = getEnv("FLNODE_STORE_PATH", c.Core.StorePath)
	c.Core.MempoolAddr = getEnv("FLNODE_MEMPOOL_ADDR", c.Core.MempoolAddr)
	if v := getEnvInt("FLNODE_QUORUM", 0); v > 0 {
		c.Core.Quorum = v
	}
	if v := getEnvInt("FLNODE_OBSIDO_PORT", 0); v > 0 {
		c.Core.ObsidoPort = uint16(v)
	}

	if v := getEnvInt("FLNODE_MAX_BATCH_SIZE", 0); v > 0 {
		c.Parameters.MaxBatchSize = v
	}
	if v := getEnvInt("FLNODE_INGRESS_QUEUE_DEPTH", 0); v > 0 {
		c.Parameters.IngressQueueDepth = v
	}
	if v := os.Getenv("FLNODE_QUORUM_PERCENTAGE"); v != "" {
		if f, err := strconv.ParseFloat(v, 64); err == nil {
			c.Parameters.QuorumPercentage = f
		}
	}

	c.BlobStore.Backend = getEnv("FLNODE_BLOB_STORE_BACKEND", c.BlobStore.Backend)
	c.BlobStore.RedisAddr = getEnv("FLNODE_REDIS_ADDR", c.BlobStore.RedisAddr)
	c.BlobStore.KeyPrefix = getEnv("FLNODE_BLOB_KEY_PREFIX", c.BlobStore.KeyPrefix)

	c.Admin.ListenAddr = getEnv("FLNODE_ADMIN_ADDR", c.Admin.ListenAddr)
	c.Logging.Level = getEnv("FLNODE_LOG_LEVEL", c.Logging.Level)

	c.applyDefaults()
}

// applyDefaults sets sensible defaults for zero-valued config fields.
func (c *Config) applyDefaults() {
	if c.Core.MempoolAddr == "" {
		c.Core.MempoolAddr = ":7700"
	}
	if c.Core.StorePath == "" {
		c.Core.StorePath = "./data/blobstore"
	}
	if c.Core.Quorum == 0 {
		c.Core.Quorum = 1
	}
	if c.Core.ObsidoPort == 0 {
		c.Core.ObsidoPort = 7701
	}
	if c.Parameters.MaxBatchSize == 0 {
		c.Parameters.MaxBatchSize = 64
	}
	if c.Parameters.IngressQueueDepth == 0 {
		c.Parameters.IngressQueueDepth = 1000
	}
	if c.BlobStore.Backend == "" {
		c.BlobStore.Backend = "memory"
	}
	if c.BlobStore.KeyPrefix == "" {
		c.BlobStore.KeyPrefix = "flnode:blob:"
	}
	if c.Admin.ListenAddr == "" {
		c.Admin.ListenAddr = "127.0.0.1:8090"
	}
	if c.Logging.Level == "" {
		c.Logging.Level = "info"
	}
}

// =============================================================================
// Helper Functions
// =============================================================================

func getEnv(key, defaultVal string) string {
	if val := os.Getenv(key); val != "" {
		return val
	}
	return defaultVal
}

func getEnvInt(key string, defaultVal int) int {
	if val := os.Getenv(key); val != "" {
		if i, err := strconv.Atoi(val); err == nil {
			return i
		}
	}
	return defaultVal
}

// =============================================================================
// Convenience Methods
// =============================================================================

// ObsidoAddr returns the loopback-bound address spec.md §6 requires for the
// Obsido ingress: "bound to 127.0.0.1:<obsido_port>".
func (c *Config) ObsidoAddr() string {
	return "127.0.0.1:" + strconv.Itoa(int(c.Core.ObsidoPort))
}

// ResolveQuorum applies Parameters.QuorumPercentage, when set, against
// committeeSize (the number of members loaded from committee_file) and
// overwrites Core.Quorum with the result, rounded up and floored at 1.
// When QuorumPercentage is zero or committeeSize is unknown (<= 0),
// Core.Quorum is left as configured — the absolute integer spec.md's state
// machine always uses. Call once at boot, after both the config and the
// committee file have been loaded.
func (c *Config) ResolveQuorum(committeeSize int) {
	if c.Parameters.QuorumPercentage <= 0 || committeeSize <= 0 {
		return
	}
	q := int(math.Ceil(c.Parameters.QuorumPercentage * float64(committeeSize)))
	if q < 1 {
		q = 1
	}
	c.Core.Quorum = q
}
