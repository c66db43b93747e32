// ingestion.go — конвейер обработки загруженного документа.
//
// Process проходит шаги:
//  1. Загрузка документа (отсутствует — выход без изменений)
//  2. Определение арендатора загрузившего пользователя (нет — работаем с NULL)
//  3. Статус processing (отдельная фиксация)
//  4. Скачивание файла из объектного хранилища
//  5. Извлечение текста
//  6. Анализ текста LLM
//  7-8. Сверка иерархии, сохранение предложений и статус completed — одна транзакция
//
// Любая ошибка шагов 4–8 переводит документ в failed. Если не удаётся
// записать и failed, ошибка только логируется: Process никогда не
// возвращает ошибку и не паникует.
package service

import (
	"context"
	"crypto/rand"
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/oklog/ulid/v2"

	"github.com/bigkaa/complyreg/register-module/internal/domain/model"
	"github.com/bigkaa/complyreg/register-module/internal/repository"
	"github.com/bigkaa/complyreg/register-module/internal/textextract"
)

// failedStatusTimeout — таймаут записи статуса failed.
const failedStatusTimeout = 10 * time.Second

// Downloader — источник содержимого документов.
type Downloader interface {
	Download(ctx context.Context, path string) ([]byte, error)
}

// Analyzer — анализ текста документа LLM.
type Analyzer interface {
	Analyze(ctx context.Context, text string) (*model.AnalysisResult, error)
}

// ExtractFunc — извлечение текста из содержимого файла.
type ExtractFunc func(data []byte, filename string) (string, error)

// Pipeline — конвейер обработки документов.
type Pipeline struct {
	uow        UnitOfWork
	storage    Downloader
	analyzer   Analyzer
	extract    ExtractFunc
	reconciler *HierarchyReconciler
	tenants    *TenantCache
	logger     *slog.Logger

	entropyMu sync.Mutex
	entropy   *ulid.MonotonicEntropy
}

// NewPipeline создаёт конвейер обработки документов.
func NewPipeline(
	uow UnitOfWork,
	storage Downloader,
	analyzer Analyzer,
	reconciler *HierarchyReconciler,
	tenants *TenantCache,
	logger *slog.Logger,
) *Pipeline {
	return &Pipeline{
		uow:        uow,
		storage:    storage,
		analyzer:   analyzer,
		extract:    textextract.Extract,
		reconciler: reconciler,
		tenants:    tenants,
		logger:     logger.With(slog.String("component", "pipeline")),
		entropy:    ulid.Monotonic(rand.Reader, 0),
	}
}

// Process обрабатывает документ. Итоговый статус документа — completed
// или failed; ошибки наружу не передаются.
func (p *Pipeline) Process(ctx context.Context, documentID string) {
	start := time.Now()
	logger := p.logger.With(
		slog.String("run_id", p.newRunID()),
		slog.String("document_id", documentID),
	)

	outcome := "failed"
	defer func() {
		if r := recover(); r != nil {
			logger.Error("Паника в конвейере обработки", slog.Any("panic", r))
			p.markFailed(ctx, logger, documentID)
		}
		pipelineRunsTotal.WithLabelValues(outcome).Inc()
		pipelineDuration.Observe(time.Since(start).Seconds())
		logger.Info("Обработка документа завершена",
			slog.String("outcome", outcome),
			slog.Duration("duration", time.Since(start)),
		)
	}()

	outcome = p.run(ctx, logger, documentID)
}

// run выполняет шаги конвейера и возвращает исход: completed, failed или skipped.
func (p *Pipeline) run(ctx context.Context, logger *slog.Logger, documentID string) string {
	repos := p.uow.Repos()

	doc, err := repos.Documents.GetByID(ctx, documentID)
	if errors.Is(err, repository.ErrNotFound) {
		logger.Warn("Документ не найден, обработка пропущена")
		return "skipped"
	}
	if err != nil {
		return p.fail(ctx, logger, documentID, "загрузка документа", err)
	}
	logger.Info("Обработка документа начата", slog.String("filename", doc.Filename))

	if doc.Status == model.DocumentProcessing {
		logger.Warn("Документ уже в статусе processing, запуск продолжается")
	}

	tenantID, err := p.resolveTenant(ctx, logger, doc.UploadedBy)
	if err != nil {
		return p.fail(ctx, logger, documentID, "определение арендатора", err)
	}

	if err := repos.Documents.UpdateStatus(ctx, documentID, model.DocumentProcessing); err != nil {
		return p.fail(ctx, logger, documentID, "статус processing", err)
	}

	data, err := p.storage.Download(ctx, doc.StoragePath)
	if err != nil {
		return p.fail(ctx, logger, documentID, "скачивание файла", err)
	}
	logger.Info("Файл скачан", slog.Int("bytes", len(data)))

	text, err := p.extract(data, doc.Filename)
	if err != nil {
		return p.fail(ctx, logger, documentID, "извлечение текста", err)
	}
	logger.Info("Текст извлечён", slog.Int("chars", len(text)))

	result, err := p.analyzer.Analyze(ctx, text)
	if err != nil {
		return p.fail(ctx, logger, documentID, "анализ LLM", err)
	}
	logger.Info("Анализ LLM завершён",
		slog.Int("suggestions", len(result.Suggestions)),
		slog.Bool("classified", result.Classification != nil),
	)

	suggestions := buildSuggestions(result.Suggestions, tenantID, documentID)

	err = p.uow.RunInTx(ctx, func(tx repository.Repositories) error {
		if result.Classification != nil {
			if err := p.reconciler.Reconcile(ctx, tx, tenantID, *result.Classification, documentID); err != nil {
				return fmt.Errorf("сверка иерархии: %w", err)
			}
		}
		if len(suggestions) > 0 {
			if err := tx.Suggestions.CreateBatch(ctx, suggestions); err != nil {
				return fmt.Errorf("сохранение предложений: %w", err)
			}
		}
		return tx.Documents.UpdateStatus(ctx, documentID, model.DocumentCompleted)
	})
	if err != nil {
		return p.fail(ctx, logger, documentID, "сохранение результатов", err)
	}

	for _, s := range suggestions {
		suggestionsCreatedTotal.WithLabelValues(string(s.Type)).Inc()
	}
	return "completed"
}

// resolveTenant возвращает арендатора загрузившего пользователя.
// Пользователь без арендатора или отсутствующий пользователь — NULL с предупреждением.
func (p *Pipeline) resolveTenant(ctx context.Context, logger *slog.Logger, userID string) (*string, error) {
	tenantID, err := p.tenants.Resolve(ctx, userID)
	if err != nil && !errors.Is(err, ErrNotFound) {
		return nil, err
	}
	if tenantID == nil {
		logger.Warn("У загрузившего пользователя нет арендатора, данные сохраняются без арендатора",
			slog.String("uploaded_by", userID),
		)
	}
	return tenantID, nil
}

// fail логирует ошибку шага и переводит документ в failed.
func (p *Pipeline) fail(ctx context.Context, logger *slog.Logger, documentID, step string, err error) string {
	logger.Error("Ошибка обработки документа",
		slog.String("step", step),
		slog.String("error", err.Error()),
	)
	p.markFailed(ctx, logger, documentID)
	return "failed"
}

// markFailed перечитывает документ и записывает статус failed.
// Отмена исходного контекста не мешает записи.
func (p *Pipeline) markFailed(ctx context.Context, logger *slog.Logger, documentID string) {
	ctx, cancel := context.WithTimeout(context.WithoutCancel(ctx), failedStatusTimeout)
	defer cancel()

	repos := p.uow.Repos()
	if _, err := repos.Documents.GetByID(ctx, documentID); err != nil {
		logger.Error("Не удалось перечитать документ для статуса failed",
			slog.String("error", err.Error()),
		)
		return
	}
	if err := repos.Documents.UpdateStatus(ctx, documentID, model.DocumentFailed); err != nil {
		logger.Error("Не удалось записать статус failed",
			slog.String("error", err.Error()),
		)
		return
	}
	logger.Warn("Документ переведён в статус failed")
}

// newRunID возвращает ULID прогона.
func (p *Pipeline) newRunID() string {
	p.entropyMu.Lock()
	defer p.entropyMu.Unlock()
	return ulid.MustNew(ulid.Now(), p.entropy).String()
}

// buildSuggestions превращает предложения LLM в записи со статусом pending.
func buildSuggestions(proposals []model.Proposal, tenantID *string, documentID string) []*model.Suggestion {
	out := make([]*model.Suggestion, 0, len(proposals))
	for _, prop := range proposals {
		content := prop.Content
		if content == nil {
			content = map[string]any{}
		}
		out = append(out, &model.Suggestion{
			ID:              uuid.New().String(),
			TenantID:        tenantID,
			DocumentID:      documentID,
			Type:            prop.Type,
			Content:         content,
			Rationale:       prop.Rationale,
			SourceReference: prop.SourceReference,
			Status:          model.StatusPending,
		})
	}
	return out
}
