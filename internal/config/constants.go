package config

// Constants defining default values for application configuration
const (
	DefaultSourcesCSVPath = "./sources.csv"
	DefaultDBPath         = "./newsbrief.db"
	DefaultEnvFile        = ".env"

	DefaultServerPort = 8080
	DefaultServerHost = "" // Empty string means all interfaces

	DefaultWorkerCount       = 0  // 0 means use runtime.NumCPU()
	DefaultFetchInterval     = 30 // Minutes between ingestion passes
	DefaultFallbackInterval  = 10 // Minutes between fallback sweeps
	DefaultFallbackBatchSize = 5
	DefaultQueueConcurrency  = 1
	DefaultQueueMaxAttempts  = 3
	DefaultQueueBackoffMS    = 2000
	DefaultUserAgent         = "newsbrief-aggregator/1.0"

	ProviderVertex = "vertex"
	ProviderOllama = "ollama"
	ProviderNone   = "none"

	DefaultAIProvider     = ProviderNone
	DefaultVertexLocation = "us-central1"
	DefaultVertexModel    = "gemini-2.5-flash-lite"
	DefaultOllamaHost     = "http://127.0.0.1:11434"
	DefaultOllamaModel    = "llama3.2"
	DefaultLanguage       = "Turkish"

	DefaultLogLevel = "info"
)
