package config

import (
	"fmt"
	"os"
	"strconv"
)

func applyEnv(cfg *Config) {
	cfg.Chunking.ChunkSize = getEnvInt("CHUNK_SIZE", cfg.Chunking.ChunkSize)
	cfg.Chunking.ChunkOverlap = getEnvInt("CHUNK_OVERLAP", cfg.Chunking.ChunkOverlap)

	cfg.Crawler.MaxDepth = getEnvInt("MAX_CRAWL_DEPTH", cfg.Crawler.MaxDepth)
	cfg.Crawler.MaxPages = getEnvInt("MAX_PAGES_PER_DOMAIN", cfg.Crawler.MaxPages)
	cfg.Crawler.TimeoutSecs = getEnvInt("CRAWL_TIMEOUT", cfg.Crawler.TimeoutSecs)
	cfg.Crawler.RequestsPerSecond = getEnvFloat("CRAWL_RPS", cfg.Crawler.RequestsPerSecond)
	cfg.Crawler.UserAgent = getEnv("CRAWL_USER_AGENT", cfg.Crawler.UserAgent)

	cfg.VectorStore.Backend = getEnv("VECTOR_DB_TYPE", cfg.VectorStore.Backend)
	cfg.VectorStore.Dimension = getEnvInt("EMBEDDING_DIMENSION", cfg.VectorStore.Dimension)
	cfg.VectorStore.Qdrant.Host = getEnv("QDRANT_HOST", cfg.VectorStore.Qdrant.Host)
	cfg.VectorStore.Qdrant.Port = getEnvInt("QDRANT_PORT", cfg.VectorStore.Qdrant.Port)
	cfg.VectorStore.Qdrant.APIKey = getEnv("QDRANT_API_KEY", cfg.VectorStore.Qdrant.APIKey)
	cfg.VectorStore.Qdrant.UseTLS = getEnvBool("QDRANT_USE_TLS", cfg.VectorStore.Qdrant.UseTLS)
	cfg.VectorStore.Qdrant.Collection = getEnv("VECTOR_INDEX_NAME", cfg.VectorStore.Qdrant.Collection)

	cfg.Embedding.Provider = getEnv("EMBEDDING_PROVIDER", cfg.Embedding.Provider)
	cfg.Embedding.Model = getEnv("EMBEDDING_MODEL", cfg.Embedding.Model)

	cfg.LLM.Provider = getEnv("LLM_PROVIDER", cfg.LLM.Provider)
	cfg.LLM.Model = getEnv("LLM_MODEL", cfg.LLM.Model)

	cfg.OpenAI.APIKey = getEnv("OPENAI_API_KEY", cfg.OpenAI.APIKey)
	cfg.OpenAI.BaseURL = getEnv("OPENAI_BASE_URL", cfg.OpenAI.BaseURL)

	cfg.GCP.ProjectID = getEnv("GCP_PROJECT_ID", cfg.GCP.ProjectID)
	cfg.GCP.Location = getEnv("GCP_LOCATION", cfg.GCP.Location)
	cfg.GCP.ServiceAccountFile = getEnv("GCP_SERVICE_ACCOUNT_FILE", cfg.GCP.ServiceAccountFile)

	cfg.History.Backend = getEnv("HISTORY_BACKEND", cfg.History.Backend)
	cfg.History.SQLitePath = getEnv("DOCQA_DB_PATH", cfg.History.SQLitePath)

	cfg.Session.DeleteVectorsOnClear = getEnvBool("DELETE_VECTORS_ON_CLEAR", cfg.Session.DeleteVectorsOnClear)

	cfg.Retry.MaxAttempts = getEnvInt("RETRY_MAX_ATTEMPTS", cfg.Retry.MaxAttempts)

	cfg.Server.Port = getEnv("PORT", cfg.Server.Port)
	cfg.Server.ServerMode = getEnvBool("SERVER_MODE", cfg.Server.ServerMode)
	cfg.Server.UploadDir = getEnv("UPLOAD_DIR", cfg.Server.UploadDir)
	cfg.Server.UploadRoot = getEnv("UPLOAD_ROOT", cfg.Server.UploadRoot)
	cfg.Server.LogLevel = getEnv("LOG_LEVEL", cfg.Server.LogLevel)
	cfg.Server.LogFormat = getEnv("LOG_FORMAT", cfg.Server.LogFormat)
}

func getEnv(key, defaultValue string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return defaultValue
}

func getEnvInt(key string, defaultValue int) int {
	if v := os.Getenv(key); v != "" {
		var i int
		if _, err := fmt.Sscanf(v, "%d", &i); err == nil {
			return i
		}
	}
	return defaultValue
}

func getEnvFloat(key string, defaultValue float64) float64 {
	if v := os.Getenv(key); v != "" {
		if f, err := strconv.ParseFloat(v, 64); err == nil {
			return f
		}
	}
	return defaultValue
}

func getEnvBool(key string, defaultValue bool) bool {
	if v := os.Getenv(key); v != "" {
		if b, err := strconv.ParseBool(v); err == nil {
			return b
		}
	}
	return defaultValue
}
