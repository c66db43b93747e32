package repository

import (
	"context"
	"errors"
	"fmt"

	"github.com/jackc/pgx/v5"

	"github.com/bigkaa/complyreg/register-module/internal/domain/model"
)

// FrameworkRepository — интерфейс для таблицы regulatory_frameworks.
type FrameworkRepository interface {
	// FindByName ищет закон по точному имени в пределах арендатора.
	FindByName(ctx context.Context, tenantID *string, name string) (*model.RegulatoryFramework, error)
	// InsertIfAbsent вставляет закон. false — закон с таким именем
	// у арендатора уже есть (вставка пропущена без ошибки).
	InsertIfAbsent(ctx context.Context, f *model.RegulatoryFramework) (bool, error)
	// Update перезаписывает описание, версию и связь с документом.
	Update(ctx context.Context, f *model.RegulatoryFramework) error
	// UnlinkDocument снимает связь документа со всеми законами, кроме keepID.
	UnlinkDocument(ctx context.Context, documentID string, keepID *string) error
	// List возвращает законы арендатора по имени.
	List(ctx context.Context, tenantID *string) ([]*model.RegulatoryFramework, error)
}

// RequirementRepository — интерфейс для таблицы regulatory_requirements.
type RequirementRepository interface {
	// FindByName ищет требование по точному имени в пределах арендатора и закона.
	FindByName(ctx context.Context, tenantID *string, frameworkID, name string) (*model.RegulatoryRequirement, error)
	// InsertIfAbsent — аналог FrameworkRepository.InsertIfAbsent.
	InsertIfAbsent(ctx context.Context, req *model.RegulatoryRequirement) (bool, error)
	// Update перезаписывает описание и связь с документом.
	Update(ctx context.Context, req *model.RegulatoryRequirement) error
	// UnlinkDocument снимает связь документа со всеми требованиями, кроме keepID.
	UnlinkDocument(ctx context.Context, documentID string, keepID *string) error
	// ListByFramework возвращает требования закона.
	ListByFramework(ctx context.Context, frameworkID string) ([]*model.RegulatoryRequirement, error)
}

// --- regulatory_frameworks ---

type frameworkRepo struct {
	db DBTX
}

// NewFrameworkRepository создаёт репозиторий законов.
func NewFrameworkRepository(db DBTX) FrameworkRepository {
	return &frameworkRepo{db: db}
}

const frameworkColumns = `id, tenant_id, name, description, version, document_id, created_at, updated_at`

func (r *frameworkRepo) FindByName(ctx context.Context, tenantID *string, name string) (*model.RegulatoryFramework, error) {
	query := `SELECT ` + frameworkColumns + `
		FROM regulatory_frameworks
		WHERE tenant_id IS NOT DISTINCT FROM $1 AND name = $2`

	f, err := scanFramework(r.db.QueryRow(ctx, query, tenantID, name))
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, ErrNotFound
		}
		return nil, fmt.Errorf("ошибка поиска закона: %w", err)
	}
	return f, nil
}

func (r *frameworkRepo) InsertIfAbsent(ctx context.Context, f *model.RegulatoryFramework) (bool, error) {
	query := `
		INSERT INTO regulatory_frameworks (id, tenant_id, name, description, version, document_id)
		VALUES ($1, $2, $3, $4, $5, $6)
		ON CONFLICT ON CONSTRAINT uq_frameworks_tenant_name DO NOTHING
		RETURNING created_at, updated_at`

	err := r.db.QueryRow(ctx, query,
		f.ID, f.TenantID, f.Name, f.Description, f.Version, f.DocumentID,
	).Scan(&f.CreatedAt, &f.UpdatedAt)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return false, nil
		}
		if isUniqueViolation(err) {
			return false, fmt.Errorf("закон %q: %w", f.Name, ErrConflict)
		}
		return false, fmt.Errorf("ошибка создания закона: %w", err)
	}
	return true, nil
}

func (r *frameworkRepo) Update(ctx context.Context, f *model.RegulatoryFramework) error {
	query := `
		UPDATE regulatory_frameworks
		SET description = $2, version = $3, document_id = $4, updated_at = now()
		WHERE id = $1
		RETURNING updated_at`

	err := r.db.QueryRow(ctx, query, f.ID, f.Description, f.Version, f.DocumentID).Scan(&f.UpdatedAt)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return ErrNotFound
		}
		if isUniqueViolation(err) {
			return fmt.Errorf("закон %q: %w", f.Name, ErrConflict)
		}
		return fmt.Errorf("ошибка обновления закона: %w", err)
	}
	return nil
}

func (r *frameworkRepo) UnlinkDocument(ctx context.Context, documentID string, keepID *string) error {
	query := `
		UPDATE regulatory_frameworks SET document_id = NULL, updated_at = now()
		WHERE document_id = $1 AND ($2::uuid IS NULL OR id <> $2::uuid)`

	if _, err := r.db.Exec(ctx, query, documentID, keepID); err != nil {
		return fmt.Errorf("ошибка снятия связи документа с законом: %w", err)
	}
	return nil
}

func (r *frameworkRepo) List(ctx context.Context, tenantID *string) ([]*model.RegulatoryFramework, error) {
	query := `SELECT ` + frameworkColumns + `
		FROM regulatory_frameworks
		WHERE tenant_id IS NOT DISTINCT FROM $1
		ORDER BY name`

	rows, err := r.db.Query(ctx, query, tenantID)
	if err != nil {
		return nil, fmt.Errorf("ошибка получения списка законов: %w", err)
	}
	defer rows.Close()

	var result []*model.RegulatoryFramework
	for rows.Next() {
		f, err := scanFramework(rows)
		if err != nil {
			return nil, fmt.Errorf("ошибка чтения закона: %w", err)
		}
		result = append(result, f)
	}
	return result, rows.Err()
}

func scanFramework(row pgx.Row) (*model.RegulatoryFramework, error) {
	f := &model.RegulatoryFramework{}
	err := row.Scan(&f.ID, &f.TenantID, &f.Name, &f.Description, &f.Version, &f.DocumentID,
		&f.CreatedAt, &f.UpdatedAt)
	if err != nil {
		return nil, err
	}
	return f, nil
}

// --- regulatory_requirements ---

type requirementRepo struct {
	db DBTX
}

// NewRequirementRepository создаёт репозиторий требований.
func NewRequirementRepository(db DBTX) RequirementRepository {
	return &requirementRepo{db: db}
}

const requirementColumns = `id, tenant_id, framework_id, name, description, document_id, created_at, updated_at`

func (r *requirementRepo) FindByName(ctx context.Context, tenantID *string, frameworkID, name string) (*model.RegulatoryRequirement, error) {
	query := `SELECT ` + requirementColumns + `
		FROM regulatory_requirements
		WHERE tenant_id IS NOT DISTINCT FROM $1 AND framework_id = $2 AND name = $3`

	req, err := scanRequirement(r.db.QueryRow(ctx, query, tenantID, frameworkID, name))
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, ErrNotFound
		}
		return nil, fmt.Errorf("ошибка поиска требования: %w", err)
	}
	return req, nil
}

func (r *requirementRepo) InsertIfAbsent(ctx context.Context, req *model.RegulatoryRequirement) (bool, error) {
	query := `
		INSERT INTO regulatory_requirements (id, tenant_id, framework_id, name, description, document_id)
		VALUES ($1, $2, $3, $4, $5, $6)
		ON CONFLICT ON CONSTRAINT uq_requirements_tenant_framework_name DO NOTHING
		RETURNING created_at, updated_at`

	err := r.db.QueryRow(ctx, query,
		req.ID, req.TenantID, req.FrameworkID, req.Name, req.Description, req.DocumentID,
	).Scan(&req.CreatedAt, &req.UpdatedAt)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return false, nil
		}
		if isUniqueViolation(err) {
			return false, fmt.Errorf("требование %q: %w", req.Name, ErrConflict)
		}
		return false, fmt.Errorf("ошибка создания требования: %w", err)
	}
	return true, nil
}

func (r *requirementRepo) Update(ctx context.Context, req *model.RegulatoryRequirement) error {
	query := `
		UPDATE regulatory_requirements
		SET description = $2, document_id = $3, updated_at = now()
		WHERE id = $1
		RETURNING updated_at`

	err := r.db.QueryRow(ctx, query, req.ID, req.Description, req.DocumentID).Scan(&req.UpdatedAt)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return ErrNotFound
		}
		if isUniqueViolation(err) {
			return fmt.Errorf("требование %q: %w", req.Name, ErrConflict)
		}
		return fmt.Errorf("ошибка обновления требования: %w", err)
	}
	return nil
}

func (r *requirementRepo) UnlinkDocument(ctx context.Context, documentID string, keepID *string) error {
	query := `
		UPDATE regulatory_requirements SET document_id = NULL, updated_at = now()
		WHERE document_id = $1 AND ($2::uuid IS NULL OR id <> $2::uuid)`

	if _, err := r.db.Exec(ctx, query, documentID, keepID); err != nil {
		return fmt.Errorf("ошибка снятия связи документа с требованием: %w", err)
	}
	return nil
}

func (r *requirementRepo) ListByFramework(ctx context.Context, frameworkID string) ([]*model.RegulatoryRequirement, error) {
	query := `SELECT ` + requirementColumns + `
		FROM regulatory_requirements
		WHERE framework_id = $1
		ORDER BY name`

	rows, err := r.db.Query(ctx, query, frameworkID)
	if err != nil {
		return nil, fmt.Errorf("ошибка получения списка требований: %w", err)
	}
	defer rows.Close()

	var result []*model.RegulatoryRequirement
	for rows.Next() {
		req, err := scanRequirement(rows)
		if err != nil {
			return nil, fmt.Errorf("ошибка чтения требования: %w", err)
		}
		result = append(result, req)
	}
	return result, rows.Err()
}

func scanRequirement(row pgx.Row) (*model.RegulatoryRequirement, error) {
	req := &model.RegulatoryRequirement{}
	err := row.Scan(&req.ID, &req.TenantID, &req.FrameworkID, &req.Name, &req.Description,
		&req.DocumentID, &req.CreatedAt, &req.UpdatedAt)
	if err != nil {
		return nil, err
	}
	return req, nil
}
