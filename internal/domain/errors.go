package domain

import (
	"errors"
	"fmt"
)

// Application errors
var (
	// ErrNotFound запись не найдена или принадлежит другому пользователю
	// (наружу эти случаи не различаются)
	ErrNotFound = errors.New("record not found")

	// ErrUnauthenticated пользователь не аутентифицирован
	ErrUnauthenticated = errors.New("unauthenticated")

	// ErrInvalidInput неверные входные данные
	ErrInvalidInput = errors.New("invalid input data")

	// ErrGateway ошибка внешнего платежного шлюза
	ErrGateway = errors.New("payment gateway error")

	// ErrPersistence ошибка записи в локальное хранилище
	ErrPersistence = errors.New("persistence error")

	// ErrInternal внутренняя ошибка
	ErrInternal = errors.New("internal error")
)

// GatewayError представляет ошибку внешнего платежного шлюза
type GatewayError struct {
	Operation   string
	Message     string
	StatusCode  int
	OriginalErr error
}

// Error реализует интерфейс error
func (e *GatewayError) Error() string {
	if e.OriginalErr != nil {
		return fmt.Sprintf("gateway error during %s: %s: %v", e.Operation, e.Message, e.OriginalErr)
	}
	return fmt.Sprintf("gateway error during %s: %s", e.Operation, e.Message)
}

// Unwrap возвращает оригинальную ошибку
func (e *GatewayError) Unwrap() error {
	return e.OriginalErr
}

// Is позволяет сопоставлять через errors.Is(err, ErrGateway)
func (e *GatewayError) Is(target error) bool {
	return target == ErrGateway
}

// NewGatewayError создает новую ошибку шлюза
func NewGatewayError(operation, message string, statusCode int, err error) *GatewayError {
	return &GatewayError{
		Operation:   operation,
		Message:     message,
		StatusCode:  statusCode,
		OriginalErr: err,
	}
}

// NotFoundError представляет ошибку "не найдено"
type NotFoundError struct {
	Entity string
	ID     string
}

// Error реализует интерфейс error
func (e *NotFoundError) Error() string {
	return fmt.Sprintf("%s with ID %s not found", e.Entity, e.ID)
}

// Is проверяет, является ли ошибка ошибкой типа "не найдено"
func (e *NotFoundError) Is(target error) bool {
	return target == ErrNotFound
}

// NewNotFoundError создает новую ошибку "не найдено"
func NewNotFoundError(entity, id string) *NotFoundError {
	return &NotFoundError{
		Entity: entity,
		ID:     id,
	}
}

// ValidationError представляет ошибку валидации
type ValidationError struct {
	Field   string
	Message string
}

// ValidationErrors представляет набор ошибок валидации
type ValidationErrors []ValidationError

// Error реализует интерфейс error
func (e ValidationErrors) Error() string {
	if len(e) == 0 {
		return "validation failed"
	}

	if len(e) == 1 {
		return fmt.Sprintf("validation failed: %s - %s", e[0].Field, e[0].Message)
	}

	return fmt.Sprintf("validation failed: %d errors", len(e))
}

// Add добавляет ошибку валидации
func (e *ValidationErrors) Add(field, message string) {
	*e = append(*e, ValidationError{Field: field, Message: message})
}

// HasErrors проверяет наличие ошибок
func (e ValidationErrors) HasErrors() bool {
	return len(e) > 0
}
