// hierarchy.go — сверка иерархии «закон → требование» по классификации документа.
//
// Закон (Law) ищется по точному имени в пределах арендатора, требование
// (Regulation) — дополнительно в пределах родительского закона. Найденный
// узел обновляется только непустыми значениями, документ всегда
// перепривязывается к нему. Уникальность имён обеспечивает БД: проигравший
// гонку вставки перечитывает победителя и обновляет его.
package service

import (
	"context"
	"errors"
	"fmt"
	"log/slog"

	"github.com/google/uuid"

	"github.com/bigkaa/complyreg/register-module/internal/domain/model"
	"github.com/bigkaa/complyreg/register-module/internal/repository"
)

// HierarchyReconciler — сверка узлов иерархии с классификацией документа.
type HierarchyReconciler struct {
	logger *slog.Logger
}

// NewHierarchyReconciler создаёт сервис сверки иерархии.
func NewHierarchyReconciler(logger *slog.Logger) *HierarchyReconciler {
	return &HierarchyReconciler{
		logger: logger.With(slog.String("component", "hierarchy")),
	}
}

// Reconcile находит или создаёт узел иерархии для классификации и
// привязывает к нему документ. Выполняется в транзакции вызывающего.
func (h *HierarchyReconciler) Reconcile(
	ctx context.Context,
	repos repository.Repositories,
	tenantID *string,
	cls model.Classification,
	documentID string,
) error {
	switch cls.Kind {
	case model.KindLaw:
		return h.reconcileLaw(ctx, repos, tenantID, cls, documentID)
	case model.KindRegulation:
		return h.reconcileRegulation(ctx, repos, tenantID, cls, documentID)
	default:
		return fmt.Errorf("%w: неизвестный вид классификации %q", ErrValidation, cls.Kind)
	}
}

func (h *HierarchyReconciler) reconcileLaw(
	ctx context.Context,
	repos repository.Repositories,
	tenantID *string,
	cls model.Classification,
	documentID string,
) error {
	existing, err := findFramework(ctx, repos, tenantID, cls.Name)
	if err != nil {
		return err
	}

	// Документ привязан не более чем к одному узлу
	if err := repos.Requirements.UnlinkDocument(ctx, documentID, nil); err != nil {
		return fmt.Errorf("отвязка документа от требований: %w", err)
	}
	if err := repos.Frameworks.UnlinkDocument(ctx, documentID, frameworkID(existing)); err != nil {
		return fmt.Errorf("отвязка документа от законов: %w", err)
	}

	if existing == nil {
		created := &model.RegulatoryFramework{
			ID:          uuid.New().String(),
			TenantID:    tenantID,
			Name:        cls.Name,
			Description: cls.Description,
			Version:     cls.Version,
			DocumentID:  &documentID,
		}
		inserted, err := repos.Frameworks.InsertIfAbsent(ctx, created)
		if err != nil {
			return fmt.Errorf("создание закона %q: %w", cls.Name, err)
		}
		if inserted {
			h.logger.Info("Создан закон",
				slog.String("framework_id", created.ID),
				slog.String("name", cls.Name),
				slog.String("document_id", documentID),
			)
			return nil
		}

		// Параллельная вставка успела раньше: обновляем победителя
		existing, err = findFramework(ctx, repos, tenantID, cls.Name)
		if err != nil {
			return err
		}
		if existing == nil {
			return fmt.Errorf("закон %q не найден после конфликта вставки", cls.Name)
		}
	}

	overwrite(&existing.Description, cls.Description)
	overwrite(&existing.Version, cls.Version)
	existing.DocumentID = &documentID
	if err := repos.Frameworks.Update(ctx, existing); err != nil {
		return fmt.Errorf("обновление закона %q: %w", cls.Name, err)
	}
	h.logger.Info("Обновлён закон",
		slog.String("framework_id", existing.ID),
		slog.String("name", cls.Name),
		slog.String("document_id", documentID),
	)
	return nil
}

func (h *HierarchyReconciler) reconcileRegulation(
	ctx context.Context,
	repos repository.Repositories,
	tenantID *string,
	cls model.Classification,
	documentID string,
) error {
	parent, err := h.ensureParent(ctx, repos, tenantID, cls)
	if err != nil {
		return err
	}

	existing, err := findRequirement(ctx, repos, tenantID, parent.ID, cls.Name)
	if err != nil {
		return err
	}

	if err := repos.Frameworks.UnlinkDocument(ctx, documentID, nil); err != nil {
		return fmt.Errorf("отвязка документа от законов: %w", err)
	}
	if err := repos.Requirements.UnlinkDocument(ctx, documentID, requirementID(existing)); err != nil {
		return fmt.Errorf("отвязка документа от требований: %w", err)
	}

	if existing == nil {
		created := &model.RegulatoryRequirement{
			ID:          uuid.New().String(),
			TenantID:    tenantID,
			FrameworkID: parent.ID,
			Name:        cls.Name,
			Description: cls.Description,
			DocumentID:  &documentID,
		}
		inserted, err := repos.Requirements.InsertIfAbsent(ctx, created)
		if err != nil {
			return fmt.Errorf("создание требования %q: %w", cls.Name, err)
		}
		if inserted {
			h.logger.Info("Создано требование",
				slog.String("requirement_id", created.ID),
				slog.String("framework_id", parent.ID),
				slog.String("name", cls.Name),
				slog.String("document_id", documentID),
			)
			return nil
		}

		existing, err = findRequirement(ctx, repos, tenantID, parent.ID, cls.Name)
		if err != nil {
			return err
		}
		if existing == nil {
			return fmt.Errorf("требование %q не найдено после конфликта вставки", cls.Name)
		}
	}

	overwrite(&existing.Description, cls.Description)
	existing.DocumentID = &documentID
	if err := repos.Requirements.Update(ctx, existing); err != nil {
		return fmt.Errorf("обновление требования %q: %w", cls.Name, err)
	}
	h.logger.Info("Обновлено требование",
		slog.String("requirement_id", existing.ID),
		slog.String("framework_id", parent.ID),
		slog.String("name", cls.Name),
		slog.String("document_id", documentID),
	)
	return nil
}

// ensureParent находит или создаёт родительский закон требования.
// Существующий родитель не изменяется, документ к нему не привязывается.
func (h *HierarchyReconciler) ensureParent(
	ctx context.Context,
	repos repository.Repositories,
	tenantID *string,
	cls model.Classification,
) (*model.RegulatoryFramework, error) {
	name := cls.ParentName
	if name == "" {
		name = model.DefaultParentName
	}

	parent, err := findFramework(ctx, repos, tenantID, name)
	if err != nil || parent != nil {
		return parent, err
	}

	parent = &model.RegulatoryFramework{
		ID:          uuid.New().String(),
		TenantID:    tenantID,
		Name:        name,
		Description: "Auto-created parent for " + cls.Name,
		Version:     cls.Version,
	}
	inserted, err := repos.Frameworks.InsertIfAbsent(ctx, parent)
	if err != nil {
		return nil, fmt.Errorf("создание родительского закона %q: %w", name, err)
	}
	if inserted {
		h.logger.Info("Автоматически создан родительский закон",
			slog.String("framework_id", parent.ID),
			slog.String("name", name),
		)
		return parent, nil
	}

	parent, err = findFramework(ctx, repos, tenantID, name)
	if err != nil {
		return nil, err
	}
	if parent == nil {
		return nil, fmt.Errorf("родительский закон %q не найден после конфликта вставки", name)
	}
	return parent, nil
}

// findFramework возвращает закон или nil, если его нет.
func findFramework(ctx context.Context, repos repository.Repositories, tenantID *string, name string) (*model.RegulatoryFramework, error) {
	fw, err := repos.Frameworks.FindByName(ctx, tenantID, name)
	if errors.Is(err, repository.ErrNotFound) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("поиск закона %q: %w", name, err)
	}
	return fw, nil
}

// findRequirement возвращает требование или nil, если его нет.
func findRequirement(ctx context.Context, repos repository.Repositories, tenantID *string, frameworkID, name string) (*model.RegulatoryRequirement, error) {
	req, err := repos.Requirements.FindByName(ctx, tenantID, frameworkID, name)
	if errors.Is(err, repository.ErrNotFound) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("поиск требования %q: %w", name, err)
	}
	return req, nil
}

func frameworkID(fw *model.RegulatoryFramework) *string {
	if fw == nil {
		return nil
	}
	return &fw.ID
}

func requirementID(req *model.RegulatoryRequirement) *string {
	if req == nil {
		return nil
	}
	return &req.ID
}

// overwrite заменяет значение только непустым новым.
func overwrite(dst *string, value string) {
	if value != "" {
		*dst = value
	}
}
