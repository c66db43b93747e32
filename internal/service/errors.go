// errors.go — ошибки бизнес-логики сервисного слоя.
package service

import (
	"context"
	"errors"
	"fmt"

	"github.com/bigkaa/complyreg/register-module/internal/analyzer"
	"github.com/bigkaa/complyreg/register-module/internal/domain/lifecycle"
	"github.com/bigkaa/complyreg/register-module/internal/domain/model"
	"github.com/bigkaa/complyreg/register-module/internal/repository"
	"github.com/bigkaa/complyreg/register-module/internal/storage"
	"github.com/bigkaa/complyreg/register-module/internal/textextract"
)

var (
	// ErrExtraction — документ не содержит извлекаемого текста или повреждён.
	ErrExtraction = textextract.ErrExtraction
	// ErrClassification — LLM недоступна или вернула ответ не по контракту.
	ErrClassification = analyzer.ErrClassification
	// ErrStorage — объект в хранилище отсутствует или хранилище недоступно.
	ErrStorage = storage.ErrStorage
	// ErrNotFound — ресурс не найден.
	ErrNotFound = errors.New("ресурс не найден")
	// ErrConflict — нарушение охранного условия конечного автомата.
	ErrConflict = errors.New("конфликт состояния")
	// ErrValidation — ошибка валидации входных данных.
	ErrValidation = errors.New("ошибка валидации")
	// ErrForbidden — действие разрешено только назначенному ответственному.
	ErrForbidden = errors.New("действие запрещено")
)

// ConflictError — попытка перехода из неподходящего статуса.
// Содержит фактический статус предложения на момент проверки.
type ConflictError struct {
	SuggestionID string
	Current      model.SuggestionStatus
	Event        lifecycle.Event
}

func (e *ConflictError) Error() string {
	return fmt.Sprintf("переход %s невозможен: предложение %s в статусе %s",
		e.Event, e.SuggestionID, e.Current)
}

// Is позволяет проверять ConflictError через errors.Is(err, ErrConflict).
func (e *ConflictError) Is(target error) bool {
	return target == ErrConflict
}

// UnitOfWork — доступ сервисов к хранилищу: репозитории в режиме
// auto-commit и выполнение функции в одной транзакции.
// Реализуется *repository.Store.
type UnitOfWork interface {
	Repos() repository.Repositories
	RunInTx(ctx context.Context, fn func(repos repository.Repositories) error) error
}

// mapRepoError переводит ошибки репозиториев в ошибки сервисного слоя.
func mapRepoError(err error, what string) error {
	if errors.Is(err, repository.ErrNotFound) {
		return fmt.Errorf("%s: %w", what, ErrNotFound)
	}
	return fmt.Errorf("%s: %w", what, err)
}
