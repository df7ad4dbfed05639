package config

import (
	"fmt"
	"log"
	"os"
	"strconv"
	"strings"
	"time"

	"outreachly/models"

	"github.com/joho/godotenv"
	"gorm.io/driver/postgres"
	"gorm.io/gorm"
)

var (
	DB        *gorm.DB
	AppConfig Config
	envLoaded bool
)

type RedisConfig struct {
	Enabled  bool   `json:"enabled"`
	Address  string `json:"address"`
	Password string `json:"password"`
	DB       int    `json:"db"`
}

type SMTPConfig struct {
	Host      string `json:"host"`
	Port      int    `json:"port"`
	Username  string `json:"username"`
	Password  string `json:"-"`
	FromEmail string `json:"from_email"`
	FromName  string `json:"from_name"`
}

// PollConfig tunes the per-tenant inbox polling engine.
type PollConfig struct {
	DefaultInterval     time.Duration `json:"default_interval"`
	MaxResults          int           `json:"max_results"`
	Concurrency         int           `json:"concurrency"`
	FreeTierMaxRun      time.Duration `json:"free_tier_max_run"`
	ExpiryCheckInterval time.Duration `json:"expiry_check_interval"`
	SeenIDRetention     int           `json:"seen_id_retention"`
	LockTTL             time.Duration `json:"lock_ttl"`
}

type AIConfig struct {
	GeminiAPIKey    string        `json:"-"`
	GeminiModel     string        `json:"gemini_model"`
	ClassifyTimeout time.Duration `json:"classify_timeout"`
	GenerateTimeout time.Duration `json:"generate_timeout"`
}

type Config struct {
	Environment       string      `json:"environment"`
	EncryptionKey     string      `json:"-"`
	JWTSecret         string      `json:"-"`
	ServerPort        string      `json:"server_port"`
	DBHost            string      `json:"db_host"`
	DBPort            string      `json:"db_port"`
	DBUser            string      `json:"db_user"`
	DBPassword        string      `json:"-"`
	DBName            string      `json:"db_name"`
	DBSSLMode         string      `json:"db_ssl_mode"`
	DBMaxIdleConns    int         `json:"db_max_idle_conns"`
	DBMaxOpenConns    int         `json:"db_max_open_conns"`
	SentryDSN         string      `json:"-"`
	RateLimitJobStart int         `json:"rate_limit_job_start"`
	CORSOrigins       []string    `json:"cors_origins"`
	Redis             RedisConfig `json:"redis"`
	SMTP              SMTPConfig  `json:"smtp"`
	Poll              PollConfig  `json:"poll"`
	AI                AIConfig    `json:"ai"`
}

func init() {
	// Try to load .env file, but don't fail if it doesn't exist
	_ = godotenv.Load()
	envLoaded = true
}

func LoadConfig() error {
	AppConfig = Config{
		Environment:    getEnv("ENVIRONMENT", "development"),
		EncryptionKey:  getEnv("ENCRYPTION_KEY", ""),
		JWTSecret:      getEnv("JWT_SECRET", ""),
		ServerPort:     getEnv("SERVER_PORT", "5000"),
		DBHost:         getEnv("DB_HOST", "localhost"),
		DBPort:         getEnv("DB_PORT", "5432"),
		DBUser:         getEnv("DB_USER", "postgres"),
		DBPassword:     getEnv("DB_PASSWORD", ""),
		DBName:         getEnv("DB_NAME", "outreachly"),
		DBSSLMode:      getEnv("DB_SSL_MODE", "disable"),
		DBMaxIdleConns: getEnvAsInt("DB_MAX_IDLE_CONNS", 10),
		DBMaxOpenConns: getEnvAsInt("DB_MAX_OPEN_CONNS", 100),

		SentryDSN:         getEnv("SENTRY_DSN", ""),
		RateLimitJobStart: getEnvAsInt("RATE_LIMIT_JOB_START", 10),
		CORSOrigins:       getEnvAsList("CORS_ALLOWED_ORIGINS", []string{"http://localhost:3000"}),
		Redis: RedisConfig{
			Enabled:  getEnvAsBool("REDIS_ENABLED", false),
			Address:  getEnv("REDIS_ADDRESS", "localhost:6379"),
			Password: getEnv("REDIS_PASSWORD", ""),
			DB:       getEnvAsInt("REDIS_DB", 0),
		},
		SMTP: SMTPConfig{
			Host:      getEnv("SMTP_HOST", "smtp.gmail.com"),
			Port:      getEnvAsInt("SMTP_PORT", 587),
			Username:  getEnv("SMTP_USERNAME", ""),
			Password:  getEnv("SMTP_PASSWORD", ""),
			FromEmail: getEnv("SMTP_FROM_EMAIL", ""),
			FromName:  getEnv("SMTP_FROM_NAME", "Outreachly"),
		},
		Poll: PollConfig{
			DefaultInterval:     getEnvAsDuration("POLL_DEFAULT_INTERVAL", time.Minute),
			MaxResults:          getEnvAsInt("POLL_MAX_RESULTS", 20),
			Concurrency:         getEnvAsInt("POLL_CONCURRENCY", 4),
			FreeTierMaxRun:      getEnvAsDuration("FREE_TIER_MAX_RUN", 3*time.Hour),
			ExpiryCheckInterval: getEnvAsDuration("EXPIRY_CHECK_INTERVAL", 60*time.Second),
			SeenIDRetention:     getEnvAsInt("SEEN_ID_RETENTION", 500),
			LockTTL:             getEnvAsDuration("POLL_LOCK_TTL", 10*time.Minute),
		},
		AI: AIConfig{
			GeminiAPIKey:    getEnv("GEMINI_API_KEY", ""),
			GeminiModel:     getEnv("GEMINI_MODEL", "gemini-2.0-flash"),
			ClassifyTimeout: getEnvAsDuration("CLASSIFY_TIMEOUT", 20*time.Second),
			GenerateTimeout: getEnvAsDuration("GENERATE_TIMEOUT", 45*time.Second),
		},
	}

	if err := AppConfig.Validate(); err != nil {
		return err
	}

	logConfig()
	return nil
}

// Validate checks the settings the engine cannot run without.
func (c Config) Validate() error {
	if c.DBPassword == "" {
		return fmt.Errorf("DB_PASSWORD is required")
	}
	// AES-256 needs exactly 32 bytes; 16 and 24 are accepted by crypto/aes too.
	switch len(c.EncryptionKey) {
	case 16, 24, 32:
	case 0:
		return fmt.Errorf("ENCRYPTION_KEY is required")
	default:
		return fmt.Errorf("ENCRYPTION_KEY must be 16, 24 or 32 bytes")
	}
	if c.JWTSecret == "" {
		return fmt.Errorf("JWT_SECRET is required")
	}
	if c.Poll.MaxResults <= 0 {
		return fmt.Errorf("POLL_MAX_RESULTS must be positive")
	}
	if c.Poll.Concurrency <= 0 {
		return fmt.Errorf("POLL_CONCURRENCY must be positive")
	}
	if c.Environment == "production" && c.AI.GeminiAPIKey == "" {
		return fmt.Errorf("GEMINI_API_KEY is required in production")
	}
	return nil
}

func ConnectDB() error {
	log.Println("Attempting to connect to database...")

	dsn := fmt.Sprintf(
		"host=%s port=%s user=%s password=%s dbname=%s sslmode=%s",
		AppConfig.DBHost,
		AppConfig.DBPort,
		AppConfig.DBUser,
		AppConfig.DBPassword,
		AppConfig.DBName,
		AppConfig.DBSSLMode,
	)
	log.Println("Using connection string:", maskPassword(dsn))

	var err error
	DB, err = gorm.Open(postgres.Open(dsn), &gorm.Config{})
	if err != nil {
		return fmt.Errorf("failed to connect to database: %w", err)
	}

	sqlDB, err := DB.DB()
	if err != nil {
		return fmt.Errorf("failed to get DB instance: %w", err)
	}

	sqlDB.SetMaxIdleConns(AppConfig.DBMaxIdleConns)
	sqlDB.SetMaxOpenConns(AppConfig.DBMaxOpenConns)
	sqlDB.SetConnMaxLifetime(time.Hour)
	sqlDB.SetConnMaxIdleTime(30 * time.Minute)

	if err := sqlDB.Ping(); err != nil {
		return fmt.Errorf("database ping failed: %w", err)
	}

	log.Println("✅ Successfully connected to the database")
	log.Println("🔄 Starting database migration...")
	if err := MigrateDB(DB); err != nil {
		return fmt.Errorf("database migration failed: %w", err)
	}
	if err := models.CreateDefaultPlans(DB); err != nil {
		return fmt.Errorf("failed to seed plans: %w", err)
	}
	log.Println("✅ Database migration completed")
	return nil
}

// MigrateDB creates or updates every table the engine owns.
func MigrateDB(db *gorm.DB) error {
	return db.AutoMigrate(models.All()...)
}

// Helper functions
func getEnv(key, fallback string) string {
	if value, exists := os.LookupEnv(key); exists {
		return value
	}
	if !envLoaded && fallback == "" {
		log.Printf("⚠️ Environment variable %s not found and no fallback provided", key)
	}
	return fallback
}

func getEnvAsInt(key string, fallback int) int {
	valueStr := getEnv(key, "")
	if valueStr == "" {
		return fallback
	}
	value, err := strconv.Atoi(valueStr)
	if err != nil {
		return fallback
	}
	return value
}

func getEnvAsBool(key string, fallback bool) bool {
	valueStr := getEnv(key, "")
	if valueStr == "" {
		return fallback
	}
	value, err := strconv.ParseBool(valueStr)
	if err != nil {
		return fallback
	}
	return value
}

// getEnvAsDuration accepts Go durations ("90s", "3h"); a bare number is read as seconds.
func getEnvAsDuration(key string, fallback time.Duration) time.Duration {
	valueStr := getEnv(key, "")
	if valueStr == "" {
		return fallback
	}
	if secs, err := strconv.Atoi(valueStr); err == nil {
		return time.Duration(secs) * time.Second
	}
	value, err := time.ParseDuration(valueStr)
	if err != nil || value <= 0 {
		return fallback
	}
	return value
}

// getEnvAsList splits a comma-separated value, dropping empty items.
func getEnvAsList(key string, fallback []string) []string {
	valueStr := getEnv(key, "")
	if valueStr == "" {
		return fallback
	}
	var items []string
	for _, item := range strings.Split(valueStr, ",") {
		if item = strings.TrimSpace(item); item != "" {
			items = append(items, item)
		}
	}
	if len(items) == 0 {
		return fallback
	}
	return items
}

func maskPassword(dsn string) string {
	const passwordMarker = "password="
	startIdx := strings.Index(dsn, passwordMarker)
	if startIdx == -1 {
		return dsn
	}

	startIdx += len(passwordMarker)
	endIdx := strings.IndexAny(dsn[startIdx:], " ")
	if endIdx == -1 {
		return dsn[:startIdx] + "*****"
	}
	return dsn[:startIdx] + "*****" + dsn[startIdx+endIdx:]
}

func logConfig() {
	log.Println("🔧 Loaded configuration:")
	log.Printf("Environment: %s", AppConfig.Environment)
	log.Printf("Server Port: %s", AppConfig.ServerPort)
	log.Printf("Database: %s@%s:%s/%s",
		AppConfig.DBUser,
		AppConfig.DBHost,
		AppConfig.DBPort,
		AppConfig.DBName)
	log.Printf("Redis: enabled=%t addr=%s", AppConfig.Redis.Enabled, AppConfig.Redis.Address)
	log.Printf("Polling: default=%s max=%d concurrency=%d free-tier ceiling=%s",
		AppConfig.Poll.DefaultInterval,
		AppConfig.Poll.MaxResults,
		AppConfig.Poll.Concurrency,
		AppConfig.Poll.FreeTierMaxRun)
	log.Printf("AI: gemini(%t) model=%s classify timeout=%s",
		AppConfig.AI.GeminiAPIKey != "",
		AppConfig.AI.GeminiModel,
		AppConfig.AI.ClassifyTimeout)
}
