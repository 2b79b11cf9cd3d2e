package config_test

import (
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/m-mizutani/gt"

	"github.com/becomeliminal/nim-memory/config"
	"github.com/becomeliminal/nim-memory/memory"
)

func TestDefault(t *testing.T) {
	cfg := config.Default()
	gt.NoError(t, cfg.Validate())
	gt.Equal(t, cfg.MemoryConfig(), memory.DefaultConfig())
	gt.Equal(t, cfg.Store.Backend, config.BackendChromem)
	gt.Equal(t, cfg.Embedder.Provider, config.ProviderMock)
}

func TestLoad(t *testing.T) {
	t.Run("empty path", func(t *testing.T) {
		cfg, err := config.Load("")
		gt.NoError(t, err)
		gt.Equal(t, cfg.Server.Addr, ":8080")
	})

	t.Run("overlay keeps unset defaults", func(t *testing.T) {
		path := filepath.Join(t.TempDir(), "nim-memory.yaml")
		gt.NoError(t, os.WriteFile(path, []byte(`
log_level: debug
store:
  backend: bridge
  bridge_url: http://127.0.0.1:8001
embedder:
  provider: ollama
  model: all-minilm
memory:
  cache_ttl: 90s
  max_cache_size: 10
defaults:
  device_type: phone
`), 0o600)).Required()

		cfg, err := config.Load(path)
		gt.NoError(t, err).Required()
		gt.NoError(t, cfg.Validate())

		gt.Equal(t, cfg.LogLevel, "debug")
		gt.Equal(t, cfg.Store.Backend, config.BackendBridge)
		gt.Equal(t, cfg.Embedder.Model, "all-minilm")
		gt.Equal(t, cfg.Embedder.OllamaURL, "http://localhost:11434")
		gt.Equal(t, cfg.Memory.CacheTTL, 90*time.Second)
		gt.Equal(t, cfg.Memory.MaxCacheSize, 10)
		gt.Equal(t, cfg.Memory.SweepInterval, time.Minute)
		gt.Equal(t, cfg.Defaults.Persona, "assistant")
		gt.Equal(t, cfg.Defaults.DeviceType, "phone")
	})

	t.Run("unknown key", func(t *testing.T) {
		cfg := config.Default()
		gt.Error(t, cfg.Decode(strings.NewReader("stroe:\n  backend: chromem\n")))
	})

	t.Run("empty document", func(t *testing.T) {
		cfg := config.Default()
		gt.NoError(t, cfg.Decode(strings.NewReader("")))
		gt.Equal(t, cfg.LogLevel, "info")
	})

	t.Run("missing file", func(t *testing.T) {
		_, err := config.Load(filepath.Join(t.TempDir(), "absent.yaml"))
		gt.Error(t, err)
	})
}

func TestValidate(t *testing.T) {
	cases := map[string]func(*config.Config){
		"unknown backend":       func(c *config.Config) { c.Store.Backend = "redis" },
		"firestore w/o project": func(c *config.Config) { c.Store.Backend = config.BackendFirestore },
		"bridge w/o url":        func(c *config.Config) { c.Store.Backend = config.BackendBridge },
		"unknown provider":      func(c *config.Config) { c.Embedder.Provider = "word2vec" },
		"gemini w/o creds":      func(c *config.Config) { c.Embedder.Provider = config.ProviderGemini },
		"onnx w/o model":        func(c *config.Config) { c.Embedder.Provider = config.ProviderONNX },
		"negative dimensions":   func(c *config.Config) { c.Embedder.Dimensions = -1 },
		"blank persona":         func(c *config.Config) { c.Defaults.Persona = "" },
		"zero cache size":       func(c *config.Config) { c.Memory.MaxCacheSize = 0 },
		"zero ttl":              func(c *config.Config) { c.Memory.CacheTTL = 0 },
		"zero sweep":            func(c *config.Config) { c.Memory.SweepInterval = 0 },
	}
	for name, mutate := range cases {
		t.Run(name, func(t *testing.T) {
			cfg := config.Default()
			mutate(cfg)
			err := cfg.Validate()
			gt.Error(t, err)
			gt.True(t, memory.IsInvalidArgument(err))
		})
	}

	t.Run("gemini with api key", func(t *testing.T) {
		cfg := config.Default()
		cfg.Embedder.Provider = config.ProviderGemini
		cfg.Embedder.GeminiAPIKey = "key"
		gt.NoError(t, cfg.Validate())
	})
}
