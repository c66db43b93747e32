// Пакет dispatch — запуск конвейера обработки документов.
//
// Три режима, выбираемые RM_DISPATCH_MODE:
//   - inline — синхронный вызов в горутине запроса
//   - pool — очередь в памяти процесса и N воркеров
//   - redis — очередь LPUSH/BRPOP в Redis, общая для нескольких реплик
//
// В режимах pool и redis документ, который уже стоит в очереди или
// обрабатывается, повторно не ставится: Dispatch возвращает ErrAlreadyQueued.
package dispatch

import (
	"context"
	"errors"
	"fmt"
	"log/slog"

	"github.com/redis/go-redis/v9"

	"github.com/bigkaa/complyreg/register-module/internal/config"
)

var (
	// ErrAlreadyQueued — документ уже стоит в очереди или обрабатывается.
	ErrAlreadyQueued = errors.New("документ уже в обработке")
	// ErrQueueFull — очередь в памяти заполнена.
	ErrQueueFull = errors.New("очередь обработки заполнена")
	// ErrStopped — диспетчер остановлен и задачи не принимает.
	ErrStopped = errors.New("диспетчер остановлен")
)

// Processor — обработчик документа. Реализуется *service.Pipeline.
type Processor interface {
	Process(ctx context.Context, documentID string)
}

// Dispatcher — постановка документа на обработку.
type Dispatcher interface {
	// Dispatch ставит документ на обработку.
	Dispatch(ctx context.Context, documentID string) error
	// Start запускает воркеры. Вызывается один раз.
	Start(ctx context.Context)
	// Stop прекращает приём задач и дожидается текущих прогонов.
	Stop()
}

// NewFromConfig создаёт диспетчер по режиму из конфигурации.
func NewFromConfig(cfg *config.Config, processor Processor, logger *slog.Logger) (Dispatcher, error) {
	switch cfg.DispatchMode {
	case config.DispatchInline:
		return NewInline(processor, logger), nil
	case config.DispatchPool:
		return NewPool(processor, cfg.Workers, cfg.QueueSize, logger), nil
	case config.DispatchRedis:
		client := redis.NewClient(&redis.Options{
			Addr:     cfg.RedisAddr,
			Password: cfg.RedisPassword,
			DB:       cfg.RedisDB,
		})
		return NewRedis(client, processor, RedisOptions{
			Queue:   cfg.RedisQueue,
			Workers: cfg.Workers,
			LockTTL: cfg.RedisLockTTL,
		}, logger), nil
	default:
		return nil, fmt.Errorf("неизвестный режим диспетчеризации: %q", cfg.DispatchMode)
	}
}

// Inline — синхронный диспетчер: конвейер выполняется в вызывающей горутине.
type Inline struct {
	processor Processor
	logger    *slog.Logger
}

// NewInline создаёт синхронный диспетчер.
func NewInline(processor Processor, logger *slog.Logger) *Inline {
	return &Inline{
		processor: processor,
		logger:    logger.With(slog.String("component", "dispatch_inline")),
	}
}

// Dispatch выполняет конвейер и возвращается после его завершения.
// Отмена контекста запроса не прерывает обработку.
func (d *Inline) Dispatch(ctx context.Context, documentID string) error {
	dispatchedTotal.WithLabelValues(config.DispatchInline).Inc()
	d.processor.Process(context.WithoutCancel(ctx), documentID)
	return nil
}

// Start ничего не делает: воркеров нет.
func (d *Inline) Start(context.Context) {}

// Stop ничего не делает: воркеров нет.
func (d *Inline) Stop() {}
