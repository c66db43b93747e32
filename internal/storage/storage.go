// Пакет storage — загрузка исходных документов из объектного хранилища (MinIO/S3).
package storage

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"time"

	"github.com/minio/minio-go/v7"
	"github.com/minio/minio-go/v7/pkg/credentials"

	"github.com/bigkaa/complyreg/register-module/internal/config"
)

// ErrStorage — объект отсутствует, слишком велик или хранилище недоступно.
var ErrStorage = errors.New("ошибка объектного хранилища")

// Client — клиент объектного хранилища документов.
type Client struct {
	client  *minio.Client
	bucket  string
	timeout time.Duration
	maxSize int64
	logger  *slog.Logger
}

// Options — параметры подключения к хранилищу.
type Options struct {
	Endpoint  string
	AccessKey string
	SecretKey string
	Bucket    string
	UseSSL    bool
	// Region задаётся, чтобы не запрашивать расположение бакета
	Region  string
	Timeout time.Duration
	MaxSize int64
	// Transport — необязательный HTTP-транспорт (тесты)
	Transport http.RoundTripper
}

// NewFromConfig создаёт клиент хранилища из конфигурации сервиса.
func NewFromConfig(cfg *config.Config, logger *slog.Logger) (*Client, error) {
	return New(Options{
		Endpoint:  cfg.StorageEndpoint,
		AccessKey: cfg.StorageAccessKey,
		SecretKey: cfg.StorageSecretKey,
		Bucket:    cfg.StorageBucket,
		UseSSL:    cfg.StorageUseSSL,
		Timeout:   cfg.StorageTimeout,
		MaxSize:   cfg.StorageMaxObjectSize,
	}, logger)
}

// New создаёт клиент хранилища. Подключение не проверяется.
func New(opts Options, logger *slog.Logger) (*Client, error) {
	client, err := minio.New(opts.Endpoint, &minio.Options{
		Creds:     credentials.NewStaticV4(opts.AccessKey, opts.SecretKey, ""),
		Secure:    opts.UseSSL,
		Region:    opts.Region,
		Transport: opts.Transport,
	})
	if err != nil {
		return nil, fmt.Errorf("создание клиента хранилища: %w", err)
	}

	return &Client{
		client:  client,
		bucket:  opts.Bucket,
		timeout: opts.Timeout,
		maxSize: opts.MaxSize,
		logger:  logger.With(slog.String("component", "storage")),
	}, nil
}

// EnsureBucket создаёт бакет, если он ещё не существует.
func (c *Client) EnsureBucket(ctx context.Context) error {
	exists, err := c.client.BucketExists(ctx, c.bucket)
	if err != nil {
		return fmt.Errorf("%w: проверка бакета %s: %v", ErrStorage, c.bucket, err)
	}
	if exists {
		return nil
	}
	if err := c.client.MakeBucket(ctx, c.bucket, minio.MakeBucketOptions{}); err != nil {
		return fmt.Errorf("%w: создание бакета %s: %v", ErrStorage, c.bucket, err)
	}
	c.logger.Info("Бакет создан", slog.String("bucket", c.bucket))
	return nil
}

// Download возвращает содержимое объекта по пути хранения.
// Ограничен таймаутом и максимальным размером объекта.
func (c *Client) Download(ctx context.Context, path string) ([]byte, error) {
	if c.timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, c.timeout)
		defer cancel()
	}

	obj, err := c.client.GetObject(ctx, c.bucket, path, minio.GetObjectOptions{})
	if err != nil {
		return nil, c.wrap(path, err)
	}
	defer obj.Close()

	var reader io.Reader = obj
	if c.maxSize > 0 {
		reader = io.LimitReader(obj, c.maxSize+1)
	}

	var buf bytes.Buffer
	if _, err := buf.ReadFrom(reader); err != nil {
		return nil, c.wrap(path, err)
	}
	if c.maxSize > 0 && int64(buf.Len()) > c.maxSize {
		return nil, fmt.Errorf("%w: объект %s больше %d байт", ErrStorage, path, c.maxSize)
	}
	return buf.Bytes(), nil
}

// CheckReady проверяет доступность бакета.
// Реализует handlers.ReadinessChecker.
func (c *Client) CheckReady() (string, string) {
	ctx, cancel := context.WithTimeout(context.Background(), 3*time.Second)
	defer cancel()

	exists, err := c.client.BucketExists(ctx, c.bucket)
	if err != nil {
		return "fail", fmt.Sprintf("хранилище недоступно: %v", err)
	}
	if !exists {
		return "fail", fmt.Sprintf("бакет %s не существует", c.bucket)
	}
	return "ok", ""
}

// wrap приводит ошибку клиента к ErrStorage.
func (c *Client) wrap(path string, err error) error {
	if minio.ToErrorResponse(err).Code == "NoSuchKey" {
		return fmt.Errorf("%w: объект %s не найден", ErrStorage, path)
	}
	if errors.Is(err, context.DeadlineExceeded) {
		return fmt.Errorf("%w: таймаут при загрузке %s", ErrStorage, path)
	}
	return fmt.Errorf("%w: %s: %v", ErrStorage, path, err)
}
