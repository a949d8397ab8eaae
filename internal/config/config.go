package config

import (
	"os"
	"strconv"
	"time"

	"github.com/joho/godotenv"
)

// SupportedExtensions lists the upload extensions the provider's file_search
// tooling accepts for vector stores.
var SupportedExtensions = map[string]bool{
	"pdf": true, "txt": true, "md": true, "docx": true, "pptx": true,
	"csv": true, "json": true, "html": true, "py": true, "java": true,
	"rb": true, "tex": true, "c": true, "cpp": true,
}

const (
	// MaxFileSizeBytes caps uploads before any provider call is made.
	MaxFileSizeBytes = 200 << 20 // 200 MB

	// DefaultQuizQuestions is the question count used when the UI does not
	// supply one.
	DefaultQuizQuestions = 3

	// MaxQuizQuestions bounds user-supplied quiz sizes.
	MaxQuizQuestions = 10
)

// AssistantInstructions is the system prompt bound to the session assistant.
const AssistantInstructions = `You are a helpful study assistant. When the user asks to 'teach', 'summarize', or similar,
respond immediately with a concise, well-structured summary of the uploaded document:
- 5-8 bullet key points
- Main definitions/terms
- Any notable figures/examples.
Use the file_search tool to ground answers in the uploaded document. Provide citations inline when available.
Only ask clarifying questions if the request is ambiguous or requires user preference. Be direct and avoid back-and-forth.`

// QuizPromptTemplate is formatted with the requested question count. The
// strict-JSON demand keeps provider output parseable most of the time; the
// quiz parser copes with the rest.
const QuizPromptTemplate = `Using the uploaded document(s) attached to this assistant via file_search,
generate a multiple-choice quiz with %d questions. For each question, provide 4 options
and indicate the correct answer. Respond with STRICT JSON only in the format:
[
  {
    "question": "<question text>",
    "options": ["option1", "option2", "option3", "option4"],
    "correct": "<correct option>"
  }
]
Do not include any prose or code fences.`

// Config stores runtime configuration loaded from environment variables.
type Config struct {
	OpenAIKey      string
	OpenAIEndpoint string
	OpenAIModel    string
	Database       string
	RunTimeout     time.Duration
	ListenAddr     string
}

// Load reads configuration from the environment, providing sensible defaults.
func Load() Config {
	// Load .env file if it exists (useful for development)
	_ = godotenv.Load()
	return Config{
		OpenAIKey:      os.Getenv("OPENAI_API_KEY"),
		OpenAIEndpoint: getEnv("OPENAI_API_ENDPOINT", ""),
		OpenAIModel:    getEnv("OPENAI_MODEL", "gpt-4-1106-preview"),
		Database:       getEnv("DATABASE_PATH", "./data/studybuddy.db"),
		RunTimeout:     getEnvDuration("RUN_TIMEOUT_SECONDS", 120*time.Second),
		ListenAddr:     ":" + getEnv("PORT", "8080"),
	}
}

func getEnv(key, fallback string) string {
	if val, ok := os.LookupEnv(key); ok && val != "" {
		return val
	}
	return fallback
}

func getEnvDuration(key string, fallback time.Duration) time.Duration {
	if val, ok := os.LookupEnv(key); ok && val != "" {
		if secs, err := strconv.Atoi(val); err == nil && secs > 0 {
			return time.Duration(secs) * time.Second
		}
	}
	return fallback
}
