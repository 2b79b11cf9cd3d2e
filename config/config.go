// Package config holds the service configuration for nim-memory.
//
// Values come from three layers applied in order: Default, an optional YAML
// file (Load), then command-line flags and environment variables bound by
// package cli.
package config

import (
	"bytes"
	"io"
	"os"
	"slices"
	"time"

	"github.com/m-mizutani/goerr/v2"
	"gopkg.in/yaml.v3"

	"github.com/becomeliminal/nim-memory/memory"
)

// HealthService is the service name used on the gRPC health endpoint.
const HealthService = "nim-memory"

// Store backends.
const (
	BackendChromem   = "chromem"
	BackendFirestore = "firestore"
	BackendBridge    = "bridge"
)

// Embedding providers.
const (
	ProviderMock   = "mock"
	ProviderOllama = "ollama"
	ProviderGemini = "gemini"
	ProviderONNX   = "onnx"
)

// Config is the full service configuration.
type Config struct {
	LogLevel string `yaml:"log_level"`

	Server   Server   `yaml:"server"`
	Store    Store    `yaml:"store"`
	Embedder Embedder `yaml:"embedder"`
	LocalLog LocalLog `yaml:"local_log"`
	Defaults Defaults `yaml:"defaults"`
	Memory   Memory   `yaml:"memory"`
}

// Server configures the listeners.
type Server struct {
	Addr       string `yaml:"addr"`
	HealthAddr string `yaml:"health_addr"` // gRPC health service; empty disables it
	BridgeAddr string `yaml:"bridge_addr"` // listen address of the bridge command
}

// Store selects and configures the vector store.
type Store struct {
	Backend    string `yaml:"backend"`
	Collection string `yaml:"collection"`

	// chromem
	Path     string `yaml:"path"` // empty keeps the database in memory
	Compress bool   `yaml:"compress"`

	// firestore
	Project  string `yaml:"project"`
	Database string `yaml:"database"`

	// bridge
	BridgeURL string `yaml:"bridge_url"`

	// HealthTarget is a gRPC health endpoint probed together with the store,
	// e.g. another nim-memory serving the store remotely.
	HealthTarget string `yaml:"health_target"`
}

// Embedder selects and configures the embedding provider.
type Embedder struct {
	Provider   string `yaml:"provider"`
	Model      string `yaml:"model"`
	Dimensions int    `yaml:"dimensions"`

	OllamaURL string `yaml:"ollama_url"`

	GeminiProject  string `yaml:"gemini_project"`
	GeminiLocation string `yaml:"gemini_location"`
	GeminiAPIKey   string `yaml:"gemini_api_key"`

	ONNXModelPath     string `yaml:"onnx_model_path"`
	ONNXTokenizerPath string `yaml:"onnx_tokenizer_path"`
	ONNXLibraryPath   string `yaml:"onnx_library_path"`

	// Embedding memo; zero CacheBytes disables it.
	CacheBytes int64         `yaml:"cache_bytes"`
	CacheTTL   time.Duration `yaml:"cache_ttl"`
}

// LocalLog configures the fallback history log.
type LocalLog struct {
	Path string `yaml:"path"` // empty keeps the log in memory
}

// Defaults fill metadata fields that clients leave blank.
type Defaults struct {
	Persona    string `yaml:"persona"`
	DeviceType string `yaml:"device_type"`
}

// Memory mirrors memory.Config with YAML names.
type Memory struct {
	MaxCacheSize   int           `yaml:"max_cache_size"`
	CacheTTL       time.Duration `yaml:"cache_ttl"`
	SweepInterval  time.Duration `yaml:"sweep_interval"`
	StartupGrace   time.Duration `yaml:"startup_grace"`
	CallTimeout    time.Duration `yaml:"call_timeout"`
	BatchDelay     time.Duration `yaml:"batch_delay"`
	DefaultLimit   int           `yaml:"default_limit"`
	RecentPageSize int           `yaml:"recent_page_size"`
}

// Default returns a configuration that runs fully in-process.
func Default() *Config {
	mc := memory.DefaultConfig()
	return &Config{
		LogLevel: "info",
		Server: Server{
			Addr:       ":8080",
			BridgeAddr: "127.0.0.1:8001",
		},
		Store: Store{
			Backend:    BackendChromem,
			Collection: "conversations",
			Database:   "(default)",
		},
		Embedder: Embedder{
			Provider:       ProviderMock,
			OllamaURL:      "http://localhost:11434",
			GeminiLocation: "us-central1",
			CacheBytes:     32 << 20,
			CacheTTL:       time.Hour,
		},
		Defaults: Defaults{
			Persona:    "assistant",
			DeviceType: "desktop",
		},
		Memory: Memory{
			MaxCacheSize:   mc.MaxCacheSize,
			CacheTTL:       mc.CacheTTL,
			SweepInterval:  mc.SweepInterval,
			StartupGrace:   mc.StartupGrace,
			CallTimeout:    mc.CallTimeout,
			BatchDelay:     mc.BatchDelay,
			DefaultLimit:   mc.DefaultLimit,
			RecentPageSize: mc.RecentPageSize,
		},
	}
}

// Load returns Default overlaid with the YAML file at path. An empty path
// returns the defaults. Unknown keys are rejected.
func Load(path string) (*Config, error) {
	cfg := Default()
	if path == "" {
		return cfg, nil
	}

	raw, err := os.ReadFile(path)
	if err != nil {
		return nil, goerr.Wrap(err, "failed to read config file", goerr.V("path", path))
	}
	if err := cfg.Decode(bytes.NewReader(raw)); err != nil {
		return nil, goerr.Wrap(err, "failed to parse config file", goerr.V("path", path))
	}
	return cfg, nil
}

// Decode overlays YAML from r onto cfg.
func (c *Config) Decode(r io.Reader) error {
	dec := yaml.NewDecoder(r)
	dec.KnownFields(true)
	if err := dec.Decode(c); err != nil && err != io.EOF {
		return goerr.Wrap(err, "invalid YAML")
	}
	return nil
}

// MemoryConfig converts the memory section for memory.WithConfig.
func (c *Config) MemoryConfig() memory.Config {
	return memory.Config{
		MaxCacheSize:   c.Memory.MaxCacheSize,
		CacheTTL:       c.Memory.CacheTTL,
		SweepInterval:  c.Memory.SweepInterval,
		StartupGrace:   c.Memory.StartupGrace,
		CallTimeout:    c.Memory.CallTimeout,
		BatchDelay:     c.Memory.BatchDelay,
		DefaultLimit:   c.Memory.DefaultLimit,
		RecentPageSize: c.Memory.RecentPageSize,
	}
}

// Validate checks backend selections, their required fields, and the memory
// section.
func (c *Config) Validate() error {
	switch c.Store.Backend {
	case BackendChromem:
	case BackendFirestore:
		if c.Store.Project == "" {
			return goerr.New("firestore backend requires a project", goerr.T(memory.ErrTagInvalidArgument))
		}
	case BackendBridge:
		if c.Store.BridgeURL == "" {
			return goerr.New("bridge backend requires a URL", goerr.T(memory.ErrTagInvalidArgument))
		}
	default:
		return goerr.New("unknown store backend",
			goerr.V("backend", c.Store.Backend),
			goerr.V("supported", []string{BackendChromem, BackendFirestore, BackendBridge}),
			goerr.T(memory.ErrTagInvalidArgument))
	}

	providers := []string{ProviderMock, ProviderOllama, ProviderGemini, ProviderONNX}
	if !slices.Contains(providers, c.Embedder.Provider) {
		return goerr.New("unknown embedding provider",
			goerr.V("provider", c.Embedder.Provider), goerr.V("supported", providers),
			goerr.T(memory.ErrTagInvalidArgument))
	}
	switch c.Embedder.Provider {
	case ProviderGemini:
		if c.Embedder.GeminiProject == "" && c.Embedder.GeminiAPIKey == "" {
			return goerr.New("gemini provider requires a project or an API key", goerr.T(memory.ErrTagInvalidArgument))
		}
	case ProviderONNX:
		if c.Embedder.ONNXModelPath == "" || c.Embedder.ONNXTokenizerPath == "" {
			return goerr.New("onnx provider requires model and tokenizer paths", goerr.T(memory.ErrTagInvalidArgument))
		}
	}
	if c.Embedder.Dimensions < 0 {
		return goerr.New("embedding dimensions must not be negative",
			goerr.V("dimensions", c.Embedder.Dimensions), goerr.T(memory.ErrTagInvalidArgument))
	}
	if c.Embedder.CacheBytes < 0 {
		return goerr.New("embedding cache size must not be negative",
			goerr.V("cache_bytes", c.Embedder.CacheBytes), goerr.T(memory.ErrTagInvalidArgument))
	}

	if c.Defaults.Persona == "" || c.Defaults.DeviceType == "" {
		return goerr.New("default persona and device type are required", goerr.T(memory.ErrTagInvalidArgument))
	}

	if err := c.MemoryConfig().Validate(); err != nil {
		return goerr.Wrap(err, "invalid memory settings", goerr.T(memory.ErrTagInvalidArgument))
	}
	return nil
}
