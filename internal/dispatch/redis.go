package dispatch

import (
	"context"
	"crypto/rand"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/oklog/ulid/v2"
	"github.com/redis/go-redis/v9"

	"github.com/bigkaa/complyreg/register-module/internal/config"
)

const (
	defaultPollTimeout  = 5 * time.Second
	defaultRequeueDelay = 2 * time.Second
)

// releaseScript удаляет ключ, только если он принадлежит задаче.
var releaseScript = redis.NewScript(`
if redis.call("GET", KEYS[1]) == ARGV[1] then
	return redis.call("DEL", KEYS[1])
end
return 0
`)

// RedisOptions — параметры очереди в Redis.
type RedisOptions struct {
	// Имя списка-очереди; ключи блокировок строятся от него
	Queue   string
	Workers int
	// TTL отметки «в очереди» и блокировки прогона
	LockTTL time.Duration
	// Таймаут BRPOP; по умолчанию 5s
	PollTimeout time.Duration
	// Пауза перед возвратом задачи, документ которой занят; по умолчанию 2s
	RequeueDelay time.Duration
}

// job — задача в очереди Redis.
type job struct {
	ID         string    `json:"job_id"`
	DocumentID string    `json:"document_id"`
	EnqueuedAt time.Time `json:"enqueued_at"`
}

// Redis — очередь LPUSH/BRPOP в Redis.
//
// Ключи:
//   - {queue} — список задач
//   - {queue}:queued:{document_id} — документ в очереди или в работе (SET NX)
//   - {queue}:lock:{document_id} — блокировка прогона, один воркер на документ
type Redis struct {
	client    *redis.Client
	processor Processor
	opts      RedisOptions
	logger    *slog.Logger

	entropyMu sync.Mutex
	entropy   *ulid.MonotonicEntropy

	cancel context.CancelFunc
	wg     sync.WaitGroup
}

// NewRedis создаёт диспетчер поверх клиента Redis.
func NewRedis(client *redis.Client, processor Processor, opts RedisOptions, logger *slog.Logger) *Redis {
	if opts.PollTimeout <= 0 {
		opts.PollTimeout = defaultPollTimeout
	}
	if opts.RequeueDelay <= 0 {
		opts.RequeueDelay = defaultRequeueDelay
	}
	if opts.Workers < 1 {
		opts.Workers = 1
	}
	return &Redis{
		client:    client,
		processor: processor,
		opts:      opts,
		logger:    logger.With(slog.String("component", "dispatch_redis")),
		entropy:   ulid.Monotonic(rand.Reader, 0),
	}
}

func (d *Redis) queuedKey(documentID string) string {
	return d.opts.Queue + ":queued:" + documentID
}

func (d *Redis) lockKey(documentID string) string {
	return d.opts.Queue + ":lock:" + documentID
}

func (d *Redis) newJobID() string {
	d.entropyMu.Lock()
	defer d.entropyMu.Unlock()
	return ulid.MustNew(ulid.Now(), d.entropy).String()
}

// Dispatch ставит задачу в очередь. Повторная постановка документа,
// который ещё в очереди или в работе, возвращает ErrAlreadyQueued.
func (d *Redis) Dispatch(ctx context.Context, documentID string) error {
	j := job{ID: d.newJobID(), DocumentID: documentID, EnqueuedAt: time.Now().UTC()}
	payload, err := json.Marshal(j)
	if err != nil {
		return fmt.Errorf("сериализация задачи: %w", err)
	}

	ok, err := d.client.SetNX(ctx, d.queuedKey(documentID), j.ID, d.opts.LockTTL).Result()
	if err != nil {
		rejectedTotal.WithLabelValues(config.DispatchRedis, "error").Inc()
		return fmt.Errorf("отметка документа %s в Redis: %w", documentID, err)
	}
	if !ok {
		rejectedTotal.WithLabelValues(config.DispatchRedis, "already_queued").Inc()
		return ErrAlreadyQueued
	}

	if err := d.client.LPush(ctx, d.opts.Queue, payload).Err(); err != nil {
		_ = releaseScript.Run(context.WithoutCancel(ctx), d.client, []string{d.queuedKey(documentID)}, j.ID).Err()
		rejectedTotal.WithLabelValues(config.DispatchRedis, "error").Inc()
		return fmt.Errorf("постановка задачи в Redis: %w", err)
	}

	dispatchedTotal.WithLabelValues(config.DispatchRedis).Inc()
	d.logger.Debug("Задача поставлена в очередь",
		slog.String("job_id", j.ID),
		slog.String("document_id", documentID),
	)
	return nil
}

// Start запускает воркеры, читающие очередь через BRPOP.
func (d *Redis) Start(ctx context.Context) {
	pollCtx, cancel := context.WithCancel(ctx)
	d.cancel = cancel
	runCtx := context.WithoutCancel(ctx)

	for i := 0; i < d.opts.Workers; i++ {
		d.wg.Add(1)
		go d.worker(pollCtx, runCtx, i)
	}
	d.logger.Info("Воркеры очереди Redis запущены",
		slog.String("queue", d.opts.Queue),
		slog.Int("workers", d.opts.Workers),
	)
}

// Stop прекращает чтение очереди и дожидается текущих прогонов.
// Задачи остаются в Redis и будут взяты после перезапуска.
func (d *Redis) Stop() {
	if d.cancel != nil {
		d.cancel()
	}
	d.wg.Wait()
	d.logger.Info("Воркеры очереди Redis остановлены")
}

// CheckReady проверяет доступность Redis.
// Реализует handlers.ReadinessChecker.
func (d *Redis) CheckReady() (string, string) {
	ctx, cancel := context.WithTimeout(context.Background(), 3*time.Second)
	defer cancel()

	if err := d.client.Ping(ctx).Err(); err != nil {
		return "fail", fmt.Sprintf("Redis недоступен: %v", err)
	}
	return "ok", ""
}

// Close закрывает клиент Redis.
func (d *Redis) Close() error {
	return d.client.Close()
}

func (d *Redis) worker(pollCtx, runCtx context.Context, id int) {
	defer d.wg.Done()
	logger := d.logger.With(slog.Int("worker", id))

	for {
		if pollCtx.Err() != nil {
			return
		}

		res, err := d.client.BRPop(pollCtx, d.opts.PollTimeout, d.opts.Queue).Result()
		if errors.Is(err, redis.Nil) {
			continue
		}
		if err != nil {
			if pollCtx.Err() != nil {
				return
			}
			logger.Error("Ошибка чтения очереди Redis", slog.String("error", err.Error()))
			if !sleepCtx(pollCtx, d.opts.RequeueDelay) {
				return
			}
			continue
		}

		// BRPOP возвращает [ключ, значение]
		d.handle(pollCtx, runCtx, logger, res[1])
	}
}

// handle захватывает блокировку документа и запускает конвейер.
// Если документ занят другим воркером, задача возвращается в очередь после паузы.
func (d *Redis) handle(pollCtx, runCtx context.Context, logger *slog.Logger, payload string) {
	var j job
	if err := json.Unmarshal([]byte(payload), &j); err != nil || j.DocumentID == "" {
		logger.Error("Некорректная задача в очереди, пропущена", slog.String("payload", payload))
		return
	}
	logger = logger.With(slog.String("job_id", j.ID), slog.String("document_id", j.DocumentID))

	locked, err := d.client.SetNX(runCtx, d.lockKey(j.DocumentID), j.ID, d.opts.LockTTL).Result()
	if err != nil || !locked {
		if err != nil {
			logger.Error("Ошибка захвата блокировки", slog.String("error", err.Error()))
		} else {
			logger.Info("Документ обрабатывается другим воркером, задача возвращена в очередь")
		}
		sleepCtx(pollCtx, d.opts.RequeueDelay)
		if err := d.client.LPush(runCtx, d.opts.Queue, payload).Err(); err != nil {
			logger.Error("Не удалось вернуть задачу в очередь", slog.String("error", err.Error()))
		}
		return
	}

	defer func() {
		keys := []string{d.lockKey(j.DocumentID), d.queuedKey(j.DocumentID)}
		for _, key := range keys {
			if err := releaseScript.Run(runCtx, d.client, []string{key}, j.ID).Err(); err != nil {
				logger.Warn("Не удалось снять блокировку", slog.String("key", key), slog.String("error", err.Error()))
			}
		}
	}()

	logger.Debug("Задача взята в работу", slog.Duration("waited", time.Since(j.EnqueuedAt)))
	d.processor.Process(runCtx, j.DocumentID)
}

// sleepCtx ждёт d или отмены ctx. false — контекст отменён.
func sleepCtx(ctx context.Context, d time.Duration) bool {
	t := time.NewTimer(d)
	defer t.Stop()
	select {
	case <-ctx.Done():
		return false
	case <-t.C:
		return true
	}
}
