// Пакет repository — слой доступа к данным PostgreSQL.
// Все запросы — чистый SQL через pgx, без ORM.
package repository

import (
	"context"
	"errors"
	"fmt"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgxpool"
)

// Ошибки слоя репозиториев.
var (
	// ErrNotFound — запись не найдена.
	ErrNotFound = errors.New("запись не найдена")
	// ErrConflict — конфликт уникальности (дублирующийся ресурс).
	ErrConflict = errors.New("конфликт — запись уже существует")
)

// DBTX — интерфейс для выполнения SQL-запросов.
// Реализуется как *pgxpool.Pool, так и pgx.Tx, что позволяет
// использовать репозитории как внутри, так и вне транзакций.
type DBTX interface {
	Exec(ctx context.Context, sql string, arguments ...any) (pgconn.CommandTag, error)
	Query(ctx context.Context, sql string, args ...any) (pgx.Rows, error)
	QueryRow(ctx context.Context, sql string, args ...any) pgx.Row
}

// Repositories — набор репозиториев поверх одного DBTX.
// Внутри транзакции все репозитории работают с одним pgx.Tx.
type Repositories struct {
	Documents    DocumentRepository
	Users        UserRepository
	Suggestions  SuggestionRepository
	Frameworks   FrameworkRepository
	Requirements RequirementRepository
	Register     RegisterRepository
	Audit        AuditRepository
}

// NewRepositories создаёт набор репозиториев поверх db.
func NewRepositories(db DBTX) Repositories {
	return Repositories{
		Documents:    NewDocumentRepository(db),
		Users:        NewUserRepository(db),
		Suggestions:  NewSuggestionRepository(db),
		Frameworks:   NewFrameworkRepository(db),
		Requirements: NewRequirementRepository(db),
		Register:     NewRegisterRepository(db),
		Audit:        NewAuditRepository(db),
	}
}

// TxRunner позволяет выполнять операции в транзакции.
type TxRunner struct {
	pool *pgxpool.Pool
}

// NewTxRunner создаёт TxRunner для управления транзакциями.
func NewTxRunner(pool *pgxpool.Pool) *TxRunner {
	return &TxRunner{pool: pool}
}

// RunInTx выполняет fn внутри транзакции.
// При ошибке fn — транзакция откатывается.
// При успехе — коммитится.
func (r *TxRunner) RunInTx(ctx context.Context, fn func(tx pgx.Tx) error) error {
	tx, err := r.pool.Begin(ctx)
	if err != nil {
		return fmt.Errorf("ошибка начала транзакции: %w", err)
	}
	defer tx.Rollback(ctx) //nolint:errcheck // откат после коммита — no-op

	if err := fn(tx); err != nil {
		return err
	}

	if err := tx.Commit(ctx); err != nil {
		return fmt.Errorf("ошибка фиксации транзакции: %w", err)
	}
	return nil
}

// Store — точка входа сервисного слоя в хранилище: репозитории
// вне транзакции (auto-commit) и единица работы в транзакции.
type Store struct {
	pool   *pgxpool.Pool
	runner *TxRunner
}

// NewStore создаёт Store поверх пула подключений.
func NewStore(pool *pgxpool.Pool) *Store {
	return &Store{pool: pool, runner: NewTxRunner(pool)}
}

// Repos возвращает репозитории, работающие вне транзакции.
func (s *Store) Repos() Repositories {
	return NewRepositories(s.pool)
}

// RunInTx выполняет fn с репозиториями, привязанными к одной транзакции.
func (s *Store) RunInTx(ctx context.Context, fn func(repos Repositories) error) error {
	return s.runner.RunInTx(ctx, func(tx pgx.Tx) error {
		return fn(NewRepositories(tx))
	})
}

// isUniqueViolation проверяет, является ли ошибка нарушением уникальности PostgreSQL.
func isUniqueViolation(err error) bool {
	var pgErr *pgconn.PgError
	if errors.As(err, &pgErr) {
		return pgErr.Code == "23505" // unique_violation
	}
	return false
}
