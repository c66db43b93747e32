package repository

import (
	"context"
	"errors"
	"fmt"

	"github.com/jackc/pgx/v5"

	"github.com/bigkaa/complyreg/register-module/internal/domain/model"
)

// DocumentRepository — интерфейс для таблицы documents.
// Создание и переименование документов выполняет модуль загрузки;
// Register Module меняет только статус обработки.
type DocumentRepository interface {
	// Create добавляет документ (используется загрузчиком и тестами).
	Create(ctx context.Context, doc *model.Document) error
	// GetByID возвращает документ по ID.
	GetByID(ctx context.Context, id string) (*model.Document, error)
	// UpdateStatus устанавливает статус обработки.
	UpdateStatus(ctx context.Context, id string, status model.DocumentStatus) error
}

type documentRepo struct {
	db DBTX
}

// NewDocumentRepository создаёт репозиторий документов.
func NewDocumentRepository(db DBTX) DocumentRepository {
	return &documentRepo{db: db}
}

func (r *documentRepo) Create(ctx context.Context, doc *model.Document) error {
	query := `
		INSERT INTO documents (id, tenant_id, filename, storage_path, status, uploaded_by)
		VALUES ($1, $2, $3, $4, $5, $6)
		RETURNING created_at, updated_at`

	err := r.db.QueryRow(ctx, query,
		doc.ID, doc.TenantID, doc.Filename, doc.StoragePath, doc.Status, doc.UploadedBy,
	).Scan(&doc.CreatedAt, &doc.UpdatedAt)
	if err != nil {
		if isUniqueViolation(err) {
			return fmt.Errorf("документ %s: %w", doc.ID, ErrConflict)
		}
		return fmt.Errorf("ошибка создания документа: %w", err)
	}
	return nil
}

func (r *documentRepo) GetByID(ctx context.Context, id string) (*model.Document, error) {
	query := `
		SELECT id, tenant_id, filename, storage_path, status, uploaded_by,
		       created_at, updated_at, archived_at
		FROM documents
		WHERE id = $1`

	d := &model.Document{}
	err := r.db.QueryRow(ctx, query, id).Scan(
		&d.ID, &d.TenantID, &d.Filename, &d.StoragePath, &d.Status, &d.UploadedBy,
		&d.CreatedAt, &d.UpdatedAt, &d.ArchivedAt,
	)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, ErrNotFound
		}
		return nil, fmt.Errorf("ошибка получения документа: %w", err)
	}
	return d, nil
}

func (r *documentRepo) UpdateStatus(ctx context.Context, id string, status model.DocumentStatus) error {
	query := `UPDATE documents SET status = $2, updated_at = now() WHERE id = $1`

	tag, err := r.db.Exec(ctx, query, id, status)
	if err != nil {
		return fmt.Errorf("ошибка обновления статуса документа: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return ErrNotFound
	}
	return nil
}
