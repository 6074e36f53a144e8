package config

import (
	"log"
	"os"
	"strconv"

	"github.com/joho/godotenv"
)

type Config struct {
	App      AppConfig
	Database DatabaseConfig
	Search   SearchConfig
	Ai       AIConfig
	Rag      RagConfig
}

type AppConfig struct {
	Port               string
	Environment        string
	LogFilePath        string
	CorsAllowedOrigins string
	NatsURL            string
	RedisURL           string
	SessionLockBackend string // "memory" or "redis"
}

type DatabaseConfig struct {
	Connection string
}

type SearchConfig struct {
	Provider     string // "remote" or "local"
	BaseURL      string
	APIKey       string
	Top          int
	SelectFields string // comma-separated projection passed to the backend
	PlanFilter   string // optional plan name narrowing every retrieval
}

type AIConfig struct {
	EmbeddingProvider string // "ollama"
	OllamaBaseURL     string
	OllamaEmbedModel  string
	LLMProvider       string // "ollama" or "huggingface"
	LLMModel          string
	HuggingFaceKey    string
}

type RagConfig struct {
	MaxHistory        int
	CitationThreshold float64
	Temperature       float64
	TopP              float64
	SystemPrompt      string
	ProgressFilePath  string
}

func Load() *Config {
	if err := godotenv.Load(); err != nil {
		log.Println("Note: .env file not found, usage system environment")
	}

	return &Config{
		App: AppConfig{
			Port:               getEnv("APP_PORT", "3000"),
			Environment:        getEnv("GO_ENV", "development"),
			LogFilePath:        getEnv("LOG_FILE_PATH", "logs/app.log"),
			CorsAllowedOrigins: getEnv("CORS_ALLOWED_ORIGINS", "http://localhost:5173"),
			NatsURL:            getEnv("NATS_URL", "nats://localhost:4222"),
			RedisURL:           getEnv("REDIS_URL", "redis://localhost:6379"),
			SessionLockBackend: getEnv("SESSION_LOCK_BACKEND", "memory"),
		},
		Database: DatabaseConfig{
			Connection: getEnv("DB_CONNECTION_STRING", ""),
		},
		Search: SearchConfig{
			Provider:     getEnv("SEARCH_PROVIDER", "local"),
			BaseURL:      getEnv("SEARCH_BASE_URL", "http://localhost:8080"),
			APIKey:       getEnv("SEARCH_API_KEY", ""),
			Top:          getEnvAsInt("NUMBER_OF_DOCUMENTS_TO_RETRIEVE", 5),
			SelectFields: getEnv("SELECT_FIELDS", ""),
			PlanFilter:   getEnv("PLAN_NAME_FILTER", ""),
		},
		Ai: AIConfig{
			EmbeddingProvider: getEnv("EMBEDDING_PROVIDER", "ollama"),
			OllamaBaseURL:     getEnv("OLLAMA_BASE_URL", "http://localhost:11434"),
			OllamaEmbedModel:  getEnv("OLLAMA_EMBEDDING_MODEL", "nomic-embed-text"),
			LLMProvider:       getEnv("LLM_PROVIDER", "ollama"),
			LLMModel:          getEnv("LLM_MODEL", "llama3"),
			HuggingFaceKey:    getEnv("HUGGINGFACE_API_KEY", ""),
		},
		Rag: RagConfig{
			MaxHistory:        getEnvAsInt("MAX_HISTORY", 10),
			CitationThreshold: getEnvAsFloat("CITATION_SCORE_THRESHOLD", 0.7),
			Temperature:       getEnvAsFloat("LLM_TEMPERATURE", 1.0),
			TopP:              getEnvAsFloat("LLM_TOP_P", 0.95),
			SystemPrompt:      getEnv("SYSTEM_PROMPT", ""),
			ProgressFilePath:  getEnv("RAG_PROGRESS_FILE", "logs/rag_progress.ndjson"),
		},
	}
}

func getEnv(key, fallback string) string {
	if value, exists := os.LookupEnv(key); exists {
		return value
	}
	return fallback
}

func getEnvAsInt(key string, fallback int) int {
	strValue := getEnv(key, "")
	if value, err := strconv.Atoi(strValue); err == nil {
		return value
	}
	return fallback
}

func getEnvAsFloat(key string, fallback float64) float64 {
	strValue := getEnv(key, "")
	if value, err := strconv.ParseFloat(strValue, 64); err == nil {
		return value
	}
	return fallback
}
