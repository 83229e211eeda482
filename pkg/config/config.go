package config

import (
	"errors"
	"os"
	"strconv"
	"time"

	"github.com/joho/godotenv"
)

type Config struct {
	App      AppConfig
	Server   ServerConfig
	Database DatabaseConfig
	JWT      JWTConfig
	Worker   WorkerConfig
	Redis    RedisConfig
	Segment  SegmentConfig
	Log      LogConfig
}

type AppConfig struct {
	Name        string
	Version     string
	Environment string
	Timezone    string
}

type ServerConfig struct {
	Port string
}

type DatabaseConfig struct {
	Host     string
	Port     string
	User     string
	Password string
	Name        string
	SSLMode     string
	AutoMigrate bool
}

type JWTConfig struct {
	SecretKey string
}

// WorkerConfig describes how jobs reach the external execution worker
// and how its callbacks authenticate.
type WorkerConfig struct {
	CallbackSecret   string
	URL              string
	Username         string
	Password         string
	JobSink          string
	SchedulerEnabled bool
	DispatchTimeout  time.Duration
}

type RedisConfig struct {
	RedisHost     string
	RedisPort     string
	RedisPassword string
	RedisDB       int
	JobQueueKey   string
}

type SegmentConfig struct {
	ChurnDays        int
	AtRiskDays       int
	NewCustomerDays  int
	RecentWindowDays int
	FrequentVisits   int
	RegularVisits    int
}

type LogConfig struct {
	Level string
	File  string
}

const (
	JobSinkHTTP  = "http"
	JobSinkRedis = "redis"
	JobSinkNone  = "none"
)

func Load() (*Config, error) {
	_ = godotenv.Load()

	redisDB, err := strconv.Atoi(getEnv("REDIS_DB", "0"))
	if err != nil {
		return nil, errors.New("invalid redis database")
	}

	dispatchTimeout, err := time.ParseDuration(getEnv("DISPATCH_TIMEOUT", "6h"))
	if err != nil {
		return nil, errors.New("invalid dispatch timeout")
	}

	cfg := &Config{
		App: AppConfig{
			Name:        getEnv("APP_NAME", "Study Cafe CRM"),
			Version:     getEnv("APP_VERSION", "1.0.0"),
			Environment: getEnv("APP_ENV", "development"),
			Timezone:    getEnv("APP_TIMEZONE", "Asia/Seoul"),
		},
		Server: ServerConfig{
			Port: getEnv("PORT", "8080"),
		},
		Database: DatabaseConfig{
			Host:        getEnv("DB_HOST", "localhost"),
			Port:        getEnv("DB_PORT", "5432"),
			User:        getEnv("DB_USER", "postgres"),
			Password:    getEnv("DB_PASSWORD", ""),
			Name:        getEnv("DB_NAME", "study_cafe_crm"),
			SSLMode:     getEnv("DB_SSL_MODE", "disable"),
			AutoMigrate: getEnvBool("DB_AUTO_MIGRATE", false),
		},
		JWT: JWTConfig{
			SecretKey: getEnv("JWT_SECRET", ""),
		},
		Worker: WorkerConfig{
			CallbackSecret:   getEnv("WORKER_CALLBACK_SECRET", ""),
			URL:              getEnv("WORKER_URL", ""),
			Username:         getEnv("WORKER_USERNAME", ""),
			Password:         getEnv("WORKER_PASSWORD", ""),
			JobSink:          getEnv("JOB_SINK", JobSinkNone),
			SchedulerEnabled: getEnvBool("SCHEDULER_ENABLED", false),
			DispatchTimeout:  dispatchTimeout,
		},
		Redis: RedisConfig{
			RedisHost:     getEnv("REDIS_HOST", "localhost"),
			RedisPort:     getEnv("REDIS_PORT", "6379"),
			RedisPassword: getEnv("REDIS_PASSWORD", ""),
			RedisDB:       redisDB,
			JobQueueKey:   getEnv("REDIS_JOB_QUEUE_KEY", "automation:jobs"),
		},
		Segment: SegmentConfig{
			ChurnDays:        getEnvInt("SEGMENT_CHURN_DAYS", 30),
			AtRiskDays:       getEnvInt("SEGMENT_AT_RISK_DAYS", 7),
			NewCustomerDays:  getEnvInt("SEGMENT_NEW_CUSTOMER_DAYS", 7),
			RecentWindowDays: getEnvInt("SEGMENT_RECENT_WINDOW_DAYS", 30),
			FrequentVisits:   getEnvInt("SEGMENT_FREQUENT_VISITS", 20),
			RegularVisits:    getEnvInt("SEGMENT_REGULAR_VISITS", 10),
		},
		Log: LogConfig{
			Level: getEnv("LOG_LEVEL", ""),
			File:  getEnv("LOG_FILE", ""),
		},
	}

	if cfg.JWT.SecretKey == "" {
		return nil, errors.New("missing jwt secret")
	}

	if cfg.Worker.CallbackSecret == "" {
		return nil, errors.New("missing worker callback secret")
	}

	if cfg.Database.Password == "" {
		return nil, errors.New("missing database password")
	}

	switch cfg.Worker.JobSink {
	case JobSinkHTTP:
		if cfg.Worker.URL == "" {
			return nil, errors.New("missing worker url for http job sink")
		}
	case JobSinkRedis, JobSinkNone:
	default:
		return nil, errors.New("invalid job sink")
	}

	return cfg, nil
}

func getEnv(key, defaultVal string) string {
	if val := os.Getenv(key); val != "" {
		return val
	}

	return defaultVal
}

func getEnvInt(key string, defaultVal int) int {
	if val := os.Getenv(key); val != "" {
		if n, err := strconv.Atoi(val); err == nil {
			return n
		}
	}

	return defaultVal
}

func getEnvBool(key string, defaultVal bool) bool {
	if val := os.Getenv(key); val != "" {
		if b, err := strconv.ParseBool(val); err == nil {
			return b
		}
	}

	return defaultVal
}
