package repository

import (
	"context"
	"fmt"

	"github.com/bigkaa/complyreg/register-module/internal/domain/model"
)

// RegisterRepository — создание активных сущностей реестра
// (business_processes, risks, controls). CRUD этих таблиц обслуживает
// отдельный модуль; здесь только вставка при утверждении предложения.
type RegisterRepository interface {
	CreateBusinessProcess(ctx context.Context, bp *model.BusinessProcess) error
	CreateRisk(ctx context.Context, risk *model.Risk) error
	CreateControl(ctx context.Context, ctrl *model.Control) error
}

type registerRepo struct {
	db DBTX
}

// NewRegisterRepository создаёт репозиторий сущностей реестра.
func NewRegisterRepository(db DBTX) RegisterRepository {
	return &registerRepo{db: db}
}

func (r *registerRepo) CreateBusinessProcess(ctx context.Context, bp *model.BusinessProcess) error {
	query := `
		INSERT INTO business_processes (id, tenant_id, name, description, owner_id)
		VALUES ($1, $2, $3, $4, $5)
		RETURNING created_at`

	err := r.db.QueryRow(ctx, query, bp.ID, bp.TenantID, bp.Name, bp.Description, bp.OwnerID).
		Scan(&bp.CreatedAt)
	if err != nil {
		return fmt.Errorf("ошибка создания бизнес-процесса: %w", err)
	}
	return nil
}

func (r *registerRepo) CreateRisk(ctx context.Context, risk *model.Risk) error {
	query := `
		INSERT INTO risks (id, tenant_id, name, description, category, owner_id, process_id)
		VALUES ($1, $2, $3, $4, $5, $6, $7)
		RETURNING created_at`

	err := r.db.QueryRow(ctx, query,
		risk.ID, risk.TenantID, risk.Name, risk.Description, risk.Category, risk.OwnerID, risk.ProcessID,
	).Scan(&risk.CreatedAt)
	if err != nil {
		return fmt.Errorf("ошибка создания риска: %w", err)
	}
	return nil
}

func (r *registerRepo) CreateControl(ctx context.Context, ctrl *model.Control) error {
	query := `
		INSERT INTO controls (id, tenant_id, name, description, control_type, owner_id, process_id)
		VALUES ($1, $2, $3, $4, $5, $6, $7)
		RETURNING created_at`

	err := r.db.QueryRow(ctx, query,
		ctrl.ID, ctrl.TenantID, ctrl.Name, ctrl.Description, ctrl.ControlType, ctrl.OwnerID, ctrl.ProcessID,
	).Scan(&ctrl.CreatedAt)
	if err != nil {
		return fmt.Errorf("ошибка создания меры контроля: %w", err)
	}
	return nil
}
