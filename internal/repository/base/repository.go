package base

import (
	"context"
	"errors"
	"fmt"
	"net"
	"time"

	"github.com/Freeeeeet/engagement_service/internal/errdefs"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
)

// Querier общий интерфейс пула и транзакции
type Querier interface {
	Exec(ctx context.Context, sql string, args ...any) (pgconn.CommandTag, error)
	Query(ctx context.Context, sql string, args ...any) (pgx.Rows, error)
	QueryRow(ctx context.Context, sql string, args ...any) pgx.Row
}

// DB пул соединений: *pgxpool.Pool в работе, pgxmock в тестах
type DB interface {
	Querier
	Begin(ctx context.Context) (pgx.Tx, error)
}

// Repository базовый репозиторий с общими методами
type Repository struct {
	db      DB
	timeout time.Duration
}

// NewRepository создаёт новый базовый репозиторий; timeout ограничивает каждую операцию
func NewRepository(db DB, timeout time.Duration) *Repository {
	return &Repository{db: db, timeout: timeout}
}

// Pool возвращает пул соединений
func (r *Repository) Pool() DB {
	return r.db
}

// WithTimeout ограничивает операцию по времени
func (r *Repository) WithTimeout(ctx context.Context) (context.Context, context.CancelFunc) {
	if r.timeout <= 0 {
		return context.WithCancel(ctx)
	}
	return context.WithTimeout(ctx, r.timeout)
}

// InTx выполняет fn в транзакции; при ошибке транзакция откатывается
func (r *Repository) InTx(ctx context.Context, fn func(tx pgx.Tx) error) error {
	tx, err := r.db.Begin(ctx)
	if err != nil {
		return fmt.Errorf("begin tx: %w", err)
	}

	if err := fn(tx); err != nil {
		_ = tx.Rollback(ctx)
		return err
	}

	return tx.Commit(ctx)
}

// IsNotFound проверяет является ли ошибка "строка не найдена"
func IsNotFound(err error) bool {
	return errors.Is(err, pgx.ErrNoRows)
}

// IsUniqueViolation проверяет нарушение уникального индекса
func IsUniqueViolation(err error) bool {
	var pgErr *pgconn.PgError
	return errors.As(err, &pgErr) && pgErr.Code == "23505"
}

// IsTransient проверяет, что ошибка временная и операцию можно повторить
func IsTransient(err error) bool {
	if errors.Is(err, context.DeadlineExceeded) || pgconn.Timeout(err) || pgconn.SafeToRetry(err) {
		return true
	}

	var connErr *pgconn.ConnectError
	if errors.As(err, &connErr) {
		return true
	}

	var netErr net.Error
	if errors.As(err, &netErr) {
		return true
	}

	var pgErr *pgconn.PgError
	if errors.As(err, &pgErr) {
		switch {
		case pgErr.Code == "40001", pgErr.Code == "40P01": // serialization_failure, deadlock_detected
			return true
		case len(pgErr.Code) == 5 && (pgErr.Code[:2] == "08" || pgErr.Code[:2] == "57"):
			return true
		}
	}

	return false
}

// Wrap добавляет к ошибке имя операции и помечает временные сбои как errdefs.ErrUnavailable
func Wrap(op string, err error) error {
	if err == nil {
		return nil
	}
	if IsTransient(err) {
		err = errdefs.Unavailable(err)
	}
	return fmt.Errorf("%s: %w", op, err)
}
