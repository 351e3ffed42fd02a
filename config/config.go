package config

import (
	"log"
	"os"
	"strconv"
	"strings"

	"github.com/joho/godotenv"
)

// Traversal orders for the snapshot sequence stored in a new checkpoint.
const (
	OrderAscending  = "ascending"
	OrderDescending = "descending"
)

// Policies applied when a snapshot or the missing dataset cannot be read.
const (
	ReadFaultHalt = "halt"
	ReadFaultSkip = "skip"
)

// Config holds all application configuration loaded from environment variables.
type Config struct {
	PostgresEnabled  bool
	PostgresHost     string
	PostgresPort     string
	PostgresUser     string
	PostgresPassword string
	PostgresDB       string
	PostgresSSLMode  string

	DataDir       string
	OutputDir     string
	CheckpointDir string
	FieldsFile    string

	TraversalOrder  string
	ResetRowIndex   bool
	ReadFaultPolicy string

	MaxConcurrency int
	MaxRetries     int
	LogLevel       string
}

// Load reads the .env file and returns a populated Config struct.
func Load() *Config {
	if err := godotenv.Load(); err != nil {
		log.Println("[config] No .env file found, falling back to system env vars")
	}

	return &Config{
		PostgresEnabled:  getEnvBool("POSTGRES_ENABLED", false),
		PostgresHost:     getEnv("POSTGRES_HOST", "localhost"),
		PostgresPort:     getEnv("POSTGRES_PORT", "5432"),
		PostgresUser:     getEnv("POSTGRES_USER", "pricing"),
		PostgresPassword: getEnv("POSTGRES_PASSWORD", "pricing123"),
		PostgresDB:       getEnv("POSTGRES_DB", "pricing_db"),
		PostgresSSLMode:  getEnv("POSTGRES_SSLMODE", "disable"),

		DataDir:       getEnv("DATA_DIR", "./data/snapshots"),
		OutputDir:     getEnv("OUTPUT_DIR", "./data/recovery/missing"),
		CheckpointDir: getEnv("CHECKPOINT_DIR", "./data/recovery/logs"),
		FieldsFile:    getEnv("FIELDS_FILE", ""),

		TraversalOrder:  normaliseChoice(getEnv("TRAVERSAL_ORDER", OrderDescending), OrderDescending, OrderAscending),
		ResetRowIndex:   getEnvBool("RESET_ROW_INDEX", false),
		ReadFaultPolicy: normaliseChoice(getEnv("READ_FAULT_POLICY", ReadFaultHalt), ReadFaultHalt, ReadFaultSkip),

		MaxConcurrency: getEnvInt("MAX_CONCURRENCY", 2),
		MaxRetries:     getEnvInt("MAX_RETRIES", 3),
		LogLevel:       strings.ToLower(getEnv("LOG_LEVEL", "info")),
	}
}

// DSN returns the PostgreSQL connection string.
func (c *Config) DSN() string {
	return "host=" + c.PostgresHost +
		" port=" + c.PostgresPort +
		" user=" + c.PostgresUser +
		" password=" + c.PostgresPassword +
		" dbname=" + c.PostgresDB +
		" sslmode=" + c.PostgresSSLMode
}

// Descending reports whether new checkpoints store snapshots newest first.
func (c *Config) Descending() bool {
	return c.TraversalOrder == OrderDescending
}

func getEnv(key, fallback string) string {
	if val := os.Getenv(key); val != "" {
		return val
	}
	return fallback
}

func getEnvInt(key string, fallback int) int {
	if val := os.Getenv(key); val != "" {
		n, err := strconv.Atoi(val)
		if err == nil {
			return n
		}
	}
	return fallback
}

func getEnvBool(key string, fallback bool) bool {
	if val := os.Getenv(key); val != "" {
		b, err := strconv.ParseBool(val)
		if err == nil {
			return b
		}
	}
	return fallback
}

// normaliseChoice lower-cases val and returns it if allowed, otherwise the
// first allowed value.
func normaliseChoice(val string, allowed ...string) string {
	val = strings.ToLower(strings.TrimSpace(val))
	for _, a := range allowed {
		if val == a {
			return val
		}
	}
	log.Printf("[config] Unknown value %q, using %q", val, allowed[0])
	return allowed[0]
}
