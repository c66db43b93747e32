// documents.go — чтение документов и синхронная переобработка.
package service

import (
	"context"
	"fmt"
	"log/slog"

	"github.com/bigkaa/complyreg/register-module/internal/domain/model"
)

// DocumentProcessor — запуск конвейера обработки (реализуется *Pipeline).
type DocumentProcessor interface {
	Process(ctx context.Context, documentID string)
}

// DocumentService — операции над документами в пределах арендатора.
type DocumentService struct {
	uow       UnitOfWork
	processor DocumentProcessor
	logger    *slog.Logger
}

// NewDocumentService создаёт сервис документов.
func NewDocumentService(uow UnitOfWork, processor DocumentProcessor, logger *slog.Logger) *DocumentService {
	return &DocumentService{
		uow:       uow,
		processor: processor,
		logger:    logger.With(slog.String("component", "documents")),
	}
}

// Get возвращает документ. Документ другого арендатора считается
// отсутствующим.
func (s *DocumentService) Get(ctx context.Context, id string, tenantID *string) (*model.Document, error) {
	doc, err := s.uow.Repos().Documents.GetByID(ctx, id)
	if err != nil {
		return nil, mapRepoError(err, "документ "+id)
	}
	if !sameTenant(doc.TenantID, tenantID) {
		return nil, fmt.Errorf("документ %s: %w", id, ErrNotFound)
	}
	return doc, nil
}

// Reprocess синхронно прогоняет конвейер и возвращает документ
// с итоговым статусом.
func (s *DocumentService) Reprocess(ctx context.Context, id string, tenantID *string, actorID string) (*model.Document, error) {
	if _, err := s.Get(ctx, id, tenantID); err != nil {
		return nil, err
	}

	s.logger.Info("Ручной запуск обработки документа",
		slog.String("document_id", id),
		slog.String("actor_id", actorID),
	)
	s.processor.Process(ctx, id)

	return s.Get(context.WithoutCancel(ctx), id, tenantID)
}

// sameTenant сравнивает арендаторов; nil равен только nil.
func sameTenant(a, b *string) bool {
	if a == nil || b == nil {
		return a == nil && b == nil
	}
	return *a == *b
}
