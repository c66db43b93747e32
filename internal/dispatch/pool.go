package dispatch

import (
	"context"
	"log/slog"
	"sync"

	"github.com/bigkaa/complyreg/register-module/internal/config"
)

// Pool — очередь в памяти процесса с фиксированным числом воркеров.
// Документ одновременно находится в очереди или в работе не более одного раза.
type Pool struct {
	processor Processor
	workers   int
	queue     chan string
	logger    *slog.Logger

	mu       sync.Mutex
	inFlight map[string]struct{}
	stopped  bool

	quit chan struct{}
	wg   sync.WaitGroup
}

// NewPool создаёт пул воркеров с очередью ёмкостью queueSize.
func NewPool(processor Processor, workers, queueSize int, logger *slog.Logger) *Pool {
	return &Pool{
		processor: processor,
		workers:   workers,
		queue:     make(chan string, queueSize),
		logger:    logger.With(slog.String("component", "dispatch_pool")),
		inFlight:  make(map[string]struct{}),
		quit:      make(chan struct{}),
	}
}

// Dispatch ставит документ в очередь без ожидания.
func (p *Pool) Dispatch(_ context.Context, documentID string) error {
	p.mu.Lock()
	defer p.mu.Unlock()

	if p.stopped {
		rejectedTotal.WithLabelValues(config.DispatchPool, "stopped").Inc()
		return ErrStopped
	}
	if _, ok := p.inFlight[documentID]; ok {
		rejectedTotal.WithLabelValues(config.DispatchPool, "already_queued").Inc()
		return ErrAlreadyQueued
	}

	select {
	case p.queue <- documentID:
	default:
		rejectedTotal.WithLabelValues(config.DispatchPool, "queue_full").Inc()
		return ErrQueueFull
	}
	p.inFlight[documentID] = struct{}{}
	dispatchedTotal.WithLabelValues(config.DispatchPool).Inc()
	queueDepth.Inc()
	return nil
}

// Start запускает воркеры. Прогоны не прерываются отменой ctx:
// остановка идёт через Stop.
func (p *Pool) Start(ctx context.Context) {
	runCtx := context.WithoutCancel(ctx)
	for i := 0; i < p.workers; i++ {
		p.wg.Add(1)
		go p.worker(runCtx, i)
	}
	p.logger.Info("Пул воркеров запущен",
		slog.Int("workers", p.workers),
		slog.Int("queue_size", cap(p.queue)),
	)
}

// Stop прекращает приём задач и дожидается текущих прогонов.
// Документы, не взятые в работу, остаются в статусе pending.
func (p *Pool) Stop() {
	p.mu.Lock()
	if p.stopped {
		p.mu.Unlock()
		return
	}
	p.stopped = true
	p.mu.Unlock()

	close(p.quit)
	p.wg.Wait()

	if n := len(p.queue); n > 0 {
		p.logger.Warn("Документы в очереди не обработаны", slog.Int("count", n))
	}
	p.logger.Info("Пул воркеров остановлен")
}

func (p *Pool) worker(ctx context.Context, id int) {
	defer p.wg.Done()
	for {
		// Остановка имеет приоритет над очередью
		select {
		case <-p.quit:
			return
		default:
		}

		select {
		case <-p.quit:
			return
		case documentID := <-p.queue:
			queueDepth.Dec()
			p.run(ctx, id, documentID)
		}
	}
}

func (p *Pool) run(ctx context.Context, workerID int, documentID string) {
	defer func() {
		p.mu.Lock()
		delete(p.inFlight, documentID)
		p.mu.Unlock()
	}()

	p.logger.Debug("Документ взят в работу",
		slog.Int("worker", workerID),
		slog.String("document_id", documentID),
	)
	p.processor.Process(ctx, documentID)
}
