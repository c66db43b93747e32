// Пакет config — загрузка и валидация конфигурации Register Module
// из переменных окружения.
package config

import (
	"fmt"
	"log/slog"
	"os"
	"strconv"
	"strings"
	"time"
)

// Версия приложения, задаётся при сборке через -ldflags.
var Version = "dev"

// Режимы диспетчеризации фоновой обработки документов.
const (
	// DispatchInline — синхронный вызов конвейера в вызывающей горутине.
	DispatchInline = "inline"
	// DispatchPool — очередь в памяти процесса + пул воркеров.
	DispatchPool = "pool"
	// DispatchRedis — очередь в Redis (несколько реплик).
	DispatchRedis = "redis"
)

// Config содержит все параметры конфигурации Register Module.
type Config struct {
	// --- Сервер ---

	// Порт HTTP-сервера (диапазон 8000-8009)
	Port int
	// Уровень логирования (debug, info, warn, error)
	LogLevel slog.Level
	// Формат логов (json, text)
	LogFormat string

	// --- PostgreSQL ---

	DBHost     string
	DBPort     int
	DBName     string
	DBUser     string
	DBPassword string
	// Режим SSL: disable, require, verify-ca, verify-full
	DBSSLMode string

	// --- Объектное хранилище (MinIO / S3) ---

	// Адрес хранилища host:port без схемы
	StorageEndpoint  string
	StorageAccessKey string
	StorageSecretKey string
	// Бакет с загруженными документами
	StorageBucket string
	// Использовать TLS при подключении к хранилищу
	StorageUseSSL bool
	// Таймаут скачивания одного объекта
	StorageTimeout time.Duration
	// Максимальный размер скачиваемого объекта в байтах
	StorageMaxObjectSize int64

	// --- LLM (OpenAI-совместимый endpoint) ---

	// Полный URL chat completions endpoint
	LLMURL    string
	LLMAPIKey string
	LLMModel  string
	// Таймаут одного запроса к LLM
	LLMTimeout time.Duration
	// Максимальная длина текста, передаваемого в LLM (в символах)
	LLMMaxInputChars int

	// --- Диспетчеризация ---

	// Режим: inline, pool, redis
	DispatchMode string
	// Количество воркеров (pool, redis)
	Workers int
	// Ёмкость очереди в памяти (pool)
	QueueSize     int
	RedisAddr     string
	RedisPassword string
	RedisDB       int
	// Имя списка Redis, используемого как очередь
	RedisQueue string
	// TTL блокировки документа на время обработки
	RedisLockTTL time.Duration

	// --- Кэш арендаторов ---

	TenantCacheSize int
	TenantCacheTTL  time.Duration

	// --- JWT ---

	// URL JWKS endpoint IdP
	JWTJWKSURL string
	// Ожидаемый issuer (пусто — не проверяется)
	JWTIssuer string
	// Допустимое отклонение часов при проверке exp/nbf
	JWTLeeway time.Duration
	// Таймаут HTTP-клиента JWKS
	JWKSClientTimeout time.Duration
	// Интервал фонового обновления JWKS
	JWKSRefreshInterval time.Duration
	// Claim с идентификатором арендатора
	JWTTenantClaim string
	// Путь к CA-сертификату IdP (пусто — системный пул)
	JWKSCACert string

	// --- topologymetrics ---

	DephealthGroup         string
	DephealthCheckInterval time.Duration

	// --- Graceful shutdown ---

	ShutdownTimeout time.Duration
}

// Load загружает конфигурацию из переменных окружения, валидирует
// обязательные поля и возвращает Config или ошибку.
func Load() (*Config, error) {
	cfg := &Config{}
	var err error

	if err = loadServer(cfg); err != nil {
		return nil, err
	}
	if err = loadDatabase(cfg); err != nil {
		return nil, err
	}
	if err = loadStorage(cfg); err != nil {
		return nil, err
	}
	if err = loadLLM(cfg); err != nil {
		return nil, err
	}
	if err = loadDispatch(cfg); err != nil {
		return nil, err
	}
	if err = loadAuth(cfg); err != nil {
		return nil, err
	}

	// RM_TENANT_CACHE_SIZE — размер кэша арендаторов (по умолчанию 1000)
	cfg.TenantCacheSize, err = getEnvInt("RM_TENANT_CACHE_SIZE", 1000)
	if err != nil {
		return nil, fmt.Errorf("RM_TENANT_CACHE_SIZE: %w", err)
	}
	if cfg.TenantCacheSize < 1 {
		return nil, fmt.Errorf("RM_TENANT_CACHE_SIZE: значение %d должно быть положительным", cfg.TenantCacheSize)
	}

	// RM_TENANT_CACHE_TTL — время жизни записи кэша (по умолчанию 5m)
	cfg.TenantCacheTTL, err = getEnvDuration("RM_TENANT_CACHE_TTL", 5*time.Minute)
	if err != nil {
		return nil, fmt.Errorf("RM_TENANT_CACHE_TTL: %w", err)
	}

	// RM_DEPHEALTH_GROUP — группа в метриках topologymetrics
	cfg.DephealthGroup = getEnvDefault("RM_DEPHEALTH_GROUP", "complyreg")

	// RM_DEPHEALTH_CHECK_INTERVAL — интервал проверки зависимостей (по умолчанию 15s)
	cfg.DephealthCheckInterval, err = getEnvDuration("RM_DEPHEALTH_CHECK_INTERVAL", 15*time.Second)
	if err != nil {
		return nil, fmt.Errorf("RM_DEPHEALTH_CHECK_INTERVAL: %w", err)
	}

	// RM_SHUTDOWN_TIMEOUT — таймаут graceful shutdown (по умолчанию 5s)
	cfg.ShutdownTimeout, err = getEnvDuration("RM_SHUTDOWN_TIMEOUT", 5*time.Second)
	if err != nil {
		return nil, fmt.Errorf("RM_SHUTDOWN_TIMEOUT: %w", err)
	}

	return cfg, nil
}

func loadServer(cfg *Config) error {
	var err error

	// RM_PORT — порт HTTP-сервера (по умолчанию 8000)
	cfg.Port, err = getEnvInt("RM_PORT", 8000)
	if err != nil {
		return fmt.Errorf("RM_PORT: %w", err)
	}
	if cfg.Port < 8000 || cfg.Port > 8009 {
		return fmt.Errorf("RM_PORT: значение %d вне допустимого диапазона 8000-8009", cfg.Port)
	}

	cfg.LogLevel, err = parseLogLevel(getEnvDefault("RM_LOG_LEVEL", "info"))
	if err != nil {
		return fmt.Errorf("RM_LOG_LEVEL: %w", err)
	}

	cfg.LogFormat = getEnvDefault("RM_LOG_FORMAT", "json")
	if cfg.LogFormat != "json" && cfg.LogFormat != "text" {
		return fmt.Errorf("RM_LOG_FORMAT: недопустимое значение %q, допустимые: json, text", cfg.LogFormat)
	}
	return nil
}

func loadDatabase(cfg *Config) error {
	var err error

	if cfg.DBHost, err = getEnvRequired("RM_DB_HOST"); err != nil {
		return err
	}

	cfg.DBPort, err = getEnvInt("RM_DB_PORT", 5432)
	if err != nil {
		return fmt.Errorf("RM_DB_PORT: %w", err)
	}

	if cfg.DBName, err = getEnvRequired("RM_DB_NAME"); err != nil {
		return err
	}
	if cfg.DBUser, err = getEnvRequired("RM_DB_USER"); err != nil {
		return err
	}
	if cfg.DBPassword, err = getEnvRequired("RM_DB_PASSWORD"); err != nil {
		return err
	}

	cfg.DBSSLMode = getEnvDefault("RM_DB_SSL_MODE", "disable")
	validSSLModes := map[string]bool{
		"disable": true, "require": true, "verify-ca": true, "verify-full": true,
	}
	if !validSSLModes[cfg.DBSSLMode] {
		return fmt.Errorf("RM_DB_SSL_MODE: недопустимое значение %q, допустимые: disable, require, verify-ca, verify-full", cfg.DBSSLMode)
	}
	return nil
}

func loadStorage(cfg *Config) error {
	var err error

	if cfg.StorageEndpoint, err = getEnvRequired("RM_STORAGE_ENDPOINT"); err != nil {
		return err
	}
	// minio-go принимает endpoint без схемы
	cfg.StorageEndpoint = strings.TrimPrefix(strings.TrimPrefix(cfg.StorageEndpoint, "http://"), "https://")
	cfg.StorageEndpoint = strings.TrimRight(cfg.StorageEndpoint, "/")

	if cfg.StorageAccessKey, err = getEnvRequired("RM_STORAGE_ACCESS_KEY"); err != nil {
		return err
	}
	if cfg.StorageSecretKey, err = getEnvRequired("RM_STORAGE_SECRET_KEY"); err != nil {
		return err
	}

	cfg.StorageBucket = getEnvDefault("RM_STORAGE_BUCKET", "documents")

	cfg.StorageUseSSL, err = getEnvBool("RM_STORAGE_USE_SSL", false)
	if err != nil {
		return fmt.Errorf("RM_STORAGE_USE_SSL: %w", err)
	}

	// RM_STORAGE_TIMEOUT — таймаут скачивания (по умолчанию 30s)
	cfg.StorageTimeout, err = getEnvDuration("RM_STORAGE_TIMEOUT", 30*time.Second)
	if err != nil {
		return fmt.Errorf("RM_STORAGE_TIMEOUT: %w", err)
	}

	// RM_STORAGE_MAX_OBJECT_SIZE — лимит размера объекта (по умолчанию 20 MiB)
	maxSize, err := getEnvInt("RM_STORAGE_MAX_OBJECT_SIZE", 20*1024*1024)
	if err != nil {
		return fmt.Errorf("RM_STORAGE_MAX_OBJECT_SIZE: %w", err)
	}
	if maxSize < 1 {
		return fmt.Errorf("RM_STORAGE_MAX_OBJECT_SIZE: значение %d должно быть положительным", maxSize)
	}
	cfg.StorageMaxObjectSize = int64(maxSize)
	return nil
}

func loadLLM(cfg *Config) error {
	var err error

	if cfg.LLMURL, err = getEnvRequired("RM_LLM_URL"); err != nil {
		return err
	}
	cfg.LLMAPIKey = getEnvDefault("RM_LLM_API_KEY", "")
	cfg.LLMModel = getEnvDefault("RM_LLM_MODEL", "gpt-4o-mini")

	// RM_LLM_TIMEOUT — таймаут запроса к LLM (по умолчанию 120s)
	cfg.LLMTimeout, err = getEnvDuration("RM_LLM_TIMEOUT", 120*time.Second)
	if err != nil {
		return fmt.Errorf("RM_LLM_TIMEOUT: %w", err)
	}
	if cfg.LLMTimeout <= 0 {
		return fmt.Errorf("RM_LLM_TIMEOUT: таймаут должен быть положительным")
	}

	cfg.LLMMaxInputChars, err = getEnvInt("RM_LLM_MAX_INPUT_CHARS", 200000)
	if err != nil {
		return fmt.Errorf("RM_LLM_MAX_INPUT_CHARS: %w", err)
	}
	if cfg.LLMMaxInputChars < 1000 {
		return fmt.Errorf("RM_LLM_MAX_INPUT_CHARS: значение %d меньше минимума 1000", cfg.LLMMaxInputChars)
	}
	return nil
}

func loadDispatch(cfg *Config) error {
	var err error

	cfg.DispatchMode = getEnvDefault("RM_DISPATCH_MODE", DispatchPool)
	switch cfg.DispatchMode {
	case DispatchInline, DispatchPool, DispatchRedis:
	default:
		return fmt.Errorf("RM_DISPATCH_MODE: недопустимое значение %q, допустимые: inline, pool, redis", cfg.DispatchMode)
	}

	// RM_WORKERS — количество воркеров (по умолчанию 4)
	cfg.Workers, err = getEnvInt("RM_WORKERS", 4)
	if err != nil {
		return fmt.Errorf("RM_WORKERS: %w", err)
	}
	if cfg.Workers < 1 || cfg.Workers > 64 {
		return fmt.Errorf("RM_WORKERS: значение %d вне допустимого диапазона 1-64", cfg.Workers)
	}

	cfg.QueueSize, err = getEnvInt("RM_QUEUE_SIZE", 100)
	if err != nil {
		return fmt.Errorf("RM_QUEUE_SIZE: %w", err)
	}
	if cfg.QueueSize < 1 {
		return fmt.Errorf("RM_QUEUE_SIZE: значение %d должно быть положительным", cfg.QueueSize)
	}

	cfg.RedisAddr = getEnvDefault("RM_REDIS_ADDR", "")
	if cfg.DispatchMode == DispatchRedis && cfg.RedisAddr == "" {
		return fmt.Errorf("RM_REDIS_ADDR: обязателен при RM_DISPATCH_MODE=redis")
	}
	cfg.RedisPassword = getEnvDefault("RM_REDIS_PASSWORD", "")

	cfg.RedisDB, err = getEnvInt("RM_REDIS_DB", 0)
	if err != nil {
		return fmt.Errorf("RM_REDIS_DB: %w", err)
	}

	cfg.RedisQueue = getEnvDefault("RM_REDIS_QUEUE", "register:ingest")

	cfg.RedisLockTTL, err = getEnvDuration("RM_REDIS_LOCK_TTL", 15*time.Minute)
	if err != nil {
		return fmt.Errorf("RM_REDIS_LOCK_TTL: %w", err)
	}
	return nil
}

func loadAuth(cfg *Config) error {
	var err error

	if cfg.JWTJWKSURL, err = getEnvRequired("RM_JWT_JWKS_URL"); err != nil {
		return err
	}
	cfg.JWTIssuer = getEnvDefault("RM_JWT_ISSUER", "")

	cfg.JWTLeeway, err = getEnvDuration("RM_JWT_LEEWAY", 5*time.Second)
	if err != nil {
		return fmt.Errorf("RM_JWT_LEEWAY: %w", err)
	}

	cfg.JWKSClientTimeout, err = getEnvDuration("RM_JWKS_CLIENT_TIMEOUT", 5*time.Second)
	if err != nil {
		return fmt.Errorf("RM_JWKS_CLIENT_TIMEOUT: %w", err)
	}

	cfg.JWKSRefreshInterval, err = getEnvDuration("RM_JWKS_REFRESH_INTERVAL", 15*time.Minute)
	if err != nil {
		return fmt.Errorf("RM_JWKS_REFRESH_INTERVAL: %w", err)
	}

	cfg.JWTTenantClaim = getEnvDefault("RM_JWT_TENANT_CLAIM", "tenant_id")
	cfg.JWKSCACert = getEnvDefault("RM_JWKS_CA_CERT", "")
	return nil
}

// DatabaseDSN возвращает строку подключения к PostgreSQL.
func (c *Config) DatabaseDSN() string {
	return fmt.Sprintf(
		"host=%s port=%d dbname=%s user=%s password=%s sslmode=%s",
		c.DBHost, c.DBPort, c.DBName, c.DBUser, c.DBPassword, c.DBSSLMode,
	)
}

// DatabaseURL возвращает URL подключения к PostgreSQL (для метрик и миграций).
func (c *Config) DatabaseURL(scheme string) string {
	return fmt.Sprintf(
		"%s://%s:%s@%s:%d/%s?sslmode=%s",
		scheme, c.DBUser, c.DBPassword, c.DBHost, c.DBPort, c.DBName, c.DBSSLMode,
	)
}

// StorageURL возвращает URL объектного хранилища со схемой.
func (c *Config) StorageURL() string {
	scheme := "http"
	if c.StorageUseSSL {
		scheme = "https"
	}
	return scheme + "://" + c.StorageEndpoint
}

// SetupLogger настраивает глобальный slog-логгер на основе конфигурации.
func SetupLogger(cfg *Config) *slog.Logger {
	opts := &slog.HandlerOptions{
		Level: cfg.LogLevel,
	}

	var handler slog.Handler
	if cfg.LogFormat == "json" {
		handler = slog.NewJSONHandler(os.Stdout, opts)
	} else {
		handler = slog.NewTextHandler(os.Stdout, opts)
	}

	logger := slog.New(handler)
	slog.SetDefault(logger)
	return logger
}

// --- Вспомогательные функции ---

// getEnvRequired возвращает значение переменной окружения или ошибку, если она не задана.
func getEnvRequired(key string) (string, error) {
	val := os.Getenv(key)
	if val == "" {
		return "", fmt.Errorf("%s: обязательная переменная окружения не задана", key)
	}
	return val, nil
}

// getEnvDefault возвращает значение переменной окружения или значение по умолчанию.
func getEnvDefault(key, defaultVal string) string {
	val := os.Getenv(key)
	if val == "" {
		return defaultVal
	}
	return val
}

// getEnvInt возвращает целочисленное значение переменной окружения или значение по умолчанию.
func getEnvInt(key string, defaultVal int) (int, error) {
	val := os.Getenv(key)
	if val == "" {
		return defaultVal, nil
	}
	n, err := strconv.Atoi(val)
	if err != nil {
		return 0, fmt.Errorf("некорректное целое число: %q", val)
	}
	return n, nil
}

// getEnvBool возвращает булево значение переменной окружения или значение по умолчанию.
func getEnvBool(key string, defaultVal bool) (bool, error) {
	val := os.Getenv(key)
	if val == "" {
		return defaultVal, nil
	}
	b, err := strconv.ParseBool(val)
	if err != nil {
		return false, fmt.Errorf("некорректное булево значение: %q", val)
	}
	return b, nil
}

// getEnvDuration возвращает time.Duration из переменной окружения или значение по умолчанию.
func getEnvDuration(key string, defaultVal time.Duration) (time.Duration, error) {
	val := os.Getenv(key)
	if val == "" {
		return defaultVal, nil
	}
	d, err := time.ParseDuration(val)
	if err != nil {
		return 0, fmt.Errorf("некорректная длительность: %q (используйте формат Go: 30s, 1h, 15m)", val)
	}
	return d, nil
}

// parseLogLevel преобразует строку уровня логирования в slog.Level.
func parseLogLevel(level string) (slog.Level, error) {
	switch strings.ToLower(level) {
	case "debug":
		return slog.LevelDebug, nil
	case "info":
		return slog.LevelInfo, nil
	case "warn", "warning":
		return slog.LevelWarn, nil
	case "error":
		return slog.LevelError, nil
	default:
		return slog.LevelInfo, fmt.Errorf("недопустимый уровень %q, допустимые: debug, info, warn, error", level)
	}
}
