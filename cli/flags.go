package cli

import (
	"github.com/urfave/cli/v3"

	"github.com/becomeliminal/nim-memory/config"
	"github.com/becomeliminal/nim-memory/logging"
)

// options holds flag values. Empty values leave the config file (or the
// default) in place.
type options struct {
	configPath string
	logLevel   string

	// Store
	store             string
	storePath         string
	collection        string
	bridgeURL         string
	firestoreProject  string
	firestoreDatabase string

	// Embedder
	embedder       string
	embeddingModel string
	dimensions     int64
	ollamaURL      string
	geminiProject  string
	geminiLocation string
	geminiAPIKey   string
	onnxModel      string
	onnxTokenizer  string
	onnxLibrary    string

	localLog string
}

// globalFlags returns flags shared by every command.
func globalFlags(o *options) []cli.Flag {
	return []cli.Flag{
		&cli.StringFlag{
			Name:        "config",
			Aliases:     []string{"c"},
			Usage:       "Path to a YAML config file",
			Sources:     cli.EnvVars("NIM_MEMORY_CONFIG"),
			Destination: &o.configPath,
		},
		&cli.StringFlag{
			Name:        "log-level",
			Usage:       "Log level (debug, info, warn, error)",
			Sources:     cli.EnvVars("LOG_LEVEL"),
			Destination: &o.logLevel,
		},
		&cli.StringFlag{
			Name:        "local-log",
			Usage:       "SQLite file for the fallback history log (empty keeps it in memory)",
			Sources:     cli.EnvVars("NIM_MEMORY_LOCAL_LOG"),
			Destination: &o.localLog,
		},
	}
}

// storeFlags returns flags selecting the vector store.
func storeFlags(o *options) []cli.Flag {
	return []cli.Flag{
		&cli.StringFlag{
			Name:        "store",
			Usage:       "Vector store backend (chromem, firestore, bridge)",
			Sources:     cli.EnvVars("NIM_MEMORY_STORE"),
			Destination: &o.store,
		},
		&cli.StringFlag{
			Name:        "store-path",
			Usage:       "Directory for the persistent chromem database",
			Sources:     cli.EnvVars("NIM_MEMORY_STORE_PATH"),
			Destination: &o.storePath,
		},
		&cli.StringFlag{
			Name:        "collection",
			Usage:       "Collection name in the vector store",
			Sources:     cli.EnvVars("NIM_MEMORY_COLLECTION"),
			Destination: &o.collection,
		},
		&cli.StringFlag{
			Name:        "bridge-url",
			Usage:       "Base URL of a bridge server",
			Sources:     cli.EnvVars("NIM_MEMORY_BRIDGE_URL"),
			Destination: &o.bridgeURL,
		},
		&cli.StringFlag{
			Name:        "firestore-project",
			Usage:       "Google Cloud project ID for Firestore",
			Sources:     cli.EnvVars("GOOGLE_CLOUD_PROJECT"),
			Destination: &o.firestoreProject,
		},
		&cli.StringFlag{
			Name:        "firestore-database",
			Usage:       "Firestore database ID",
			Sources:     cli.EnvVars("FIRESTORE_DATABASE_ID"),
			Destination: &o.firestoreDatabase,
		},
	}
}

// embedderFlags returns flags selecting the embedding provider.
func embedderFlags(o *options) []cli.Flag {
	return []cli.Flag{
		&cli.StringFlag{
			Name:        "embedder",
			Usage:       "Embedding provider (mock, ollama, gemini, onnx)",
			Sources:     cli.EnvVars("NIM_MEMORY_EMBEDDER"),
			Destination: &o.embedder,
		},
		&cli.StringFlag{
			Name:        "embedding-model",
			Usage:       "Embedding model name",
			Sources:     cli.EnvVars("NIM_MEMORY_EMBEDDING_MODEL"),
			Destination: &o.embeddingModel,
		},
		&cli.IntFlag{
			Name:        "dimensions",
			Usage:       "Embedding vector size",
			Sources:     cli.EnvVars("NIM_MEMORY_DIMENSIONS"),
			Destination: &o.dimensions,
		},
		&cli.StringFlag{
			Name:        "ollama-url",
			Usage:       "Ollama base URL",
			Sources:     cli.EnvVars("OLLAMA_URL"),
			Destination: &o.ollamaURL,
		},
		&cli.StringFlag{
			Name:        "gemini-project",
			Usage:       "Google Cloud project ID for Gemini (Vertex AI)",
			Sources:     cli.EnvVars("GEMINI_PROJECT_ID"),
			Destination: &o.geminiProject,
		},
		&cli.StringFlag{
			Name:        "gemini-location",
			Usage:       "Google Cloud location for Gemini",
			Sources:     cli.EnvVars("GEMINI_LOCATION"),
			Destination: &o.geminiLocation,
		},
		&cli.StringFlag{
			Name:        "gemini-api-key",
			Usage:       "Gemini API key",
			Sources:     cli.EnvVars("GEMINI_API_KEY"),
			Destination: &o.geminiAPIKey,
		},
		&cli.StringFlag{
			Name:        "onnx-model",
			Usage:       "Path to the ONNX model file",
			Sources:     cli.EnvVars("NIM_MEMORY_ONNX_MODEL"),
			Destination: &o.onnxModel,
		},
		&cli.StringFlag{
			Name:        "onnx-tokenizer",
			Usage:       "Path to the tokenizer.json file",
			Sources:     cli.EnvVars("NIM_MEMORY_ONNX_TOKENIZER"),
			Destination: &o.onnxTokenizer,
		},
		&cli.StringFlag{
			Name:        "onnx-library",
			Usage:       "Path to the ONNX Runtime shared library",
			Sources:     cli.EnvVars("ONNXRUNTIME_LIB"),
			Destination: &o.onnxLibrary,
		},
	}
}

// memoryFlags returns every flag needed to build an orchestrator.
func memoryFlags(o *options) []cli.Flag {
	flags := globalFlags(o)
	flags = append(flags, storeFlags(o)...)
	flags = append(flags, embedderFlags(o)...)
	return flags
}

// load reads the config file, applies flag overrides, validates, and
// installs the default logger.
func (o *options) load() (*config.Config, error) {
	cfg, err := config.Load(o.configPath)
	if err != nil {
		return nil, err
	}
	o.apply(cfg)
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	logging.SetDefault(logging.New(cfg.LogLevel, nil))
	return cfg, nil
}

func (o *options) apply(cfg *config.Config) {
	set(&cfg.LogLevel, o.logLevel)
	set(&cfg.LocalLog.Path, o.localLog)

	set(&cfg.Store.Backend, o.store)
	set(&cfg.Store.Path, o.storePath)
	set(&cfg.Store.Collection, o.collection)
	set(&cfg.Store.BridgeURL, o.bridgeURL)
	set(&cfg.Store.Project, o.firestoreProject)
	set(&cfg.Store.Database, o.firestoreDatabase)

	set(&cfg.Embedder.Provider, o.embedder)
	set(&cfg.Embedder.Model, o.embeddingModel)
	if o.dimensions > 0 {
		cfg.Embedder.Dimensions = int(o.dimensions)
	}
	set(&cfg.Embedder.OllamaURL, o.ollamaURL)
	set(&cfg.Embedder.GeminiProject, o.geminiProject)
	set(&cfg.Embedder.GeminiLocation, o.geminiLocation)
	set(&cfg.Embedder.GeminiAPIKey, o.geminiAPIKey)
	set(&cfg.Embedder.ONNXModelPath, o.onnxModel)
	set(&cfg.Embedder.ONNXTokenizerPath, o.onnxTokenizer)
	set(&cfg.Embedder.ONNXLibraryPath, o.onnxLibrary)
}

func set(dst *string, v string) {
	if v != "" {
		*dst = v
	}
}
