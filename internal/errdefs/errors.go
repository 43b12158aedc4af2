package errdefs

import (
	"errors"
	"fmt"
	"strings"
)

var (
	ErrInvalidArgument    = errors.New("invalid argument")
	ErrPreconditionFailed = errors.New("precondition failed")
	ErrAlreadyProcessed   = errors.New("request already processed by another administrator")
	ErrNotFound           = errors.New("not found")
	ErrUnavailable        = errors.New("temporarily unavailable")
	ErrPermissionDenied   = errors.New("permission denied")

	// ErrAlreadyExists сообщает о нарушении уникальности в хранилище; наружу не выходит
	ErrAlreadyExists = errors.New("already exists")
)

// FieldError ошибка конкретного поля ввода
type FieldError struct {
	Field string `json:"field"`
	Error string `json:"error"`
}

// ValidationError собирает ошибки полей; errors.Is(err, ErrInvalidArgument) == true
type ValidationError struct {
	Fields []FieldError
}

func (e *ValidationError) Error() string {
	parts := make([]string, 0, len(e.Fields))
	for _, f := range e.Fields {
		parts = append(parts, f.Field+": "+f.Error)
	}
	return fmt.Sprintf("%s: %s", ErrInvalidArgument, strings.Join(parts, "; "))
}

func (e *ValidationError) Unwrap() error {
	return ErrInvalidArgument
}

// Invalid оборачивает ErrInvalidArgument с описанием
func Invalid(format string, args ...any) error {
	return fmt.Errorf("%w: %s", ErrInvalidArgument, fmt.Sprintf(format, args...))
}

// Precondition оборачивает ErrPreconditionFailed с описанием
func Precondition(format string, args ...any) error {
	return fmt.Errorf("%w: %s", ErrPreconditionFailed, fmt.Sprintf(format, args...))
}

// NotFound оборачивает ErrNotFound именем сущности
func NotFound(entity string) error {
	return fmt.Errorf("%s %w", entity, ErrNotFound)
}

// Denied оборачивает ErrPermissionDenied с описанием
func Denied(format string, args ...any) error {
	return fmt.Errorf("%w: %s", ErrPermissionDenied, fmt.Sprintf(format, args...))
}

// Unavailable помечает ошибку хранилища или сети как временную
func Unavailable(err error) error {
	if err == nil || errors.Is(err, ErrUnavailable) {
		return err
	}
	return fmt.Errorf("%w: %w", ErrUnavailable, err)
}

// IsRetriable временный ли сбой, можно ли повторить вызов
func IsRetriable(err error) bool {
	return errors.Is(err, ErrUnavailable)
}
