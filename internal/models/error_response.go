package models

import (
	"errors"
	"net/http"
)

// Виды ошибок жизненного цикла; сравниваются через errors.Is.
var (
	ErrValidation = errors.New("validation error")
	ErrNotFound   = errors.New("not found")
	ErrForbidden  = errors.New("forbidden")
	ErrConflict   = errors.New("conflict")
	ErrExpired    = errors.New("expired")
)

// ErrorResponse описывает ошибку с кодом и сообщением.
type ErrorResponse struct {
	StatusCode int    `json:"-"`
	Message    string `json:"reason"`
	Kind       error  `json:"-"`
}

// NewErrorResponse создает новую ошибку с кодом и сообщением.
func NewErrorResponse(statusCode int, message string) *ErrorResponse {
	return &ErrorResponse{
		StatusCode: statusCode,
		Message:    message}
}

// Реализация метода Error() для удовлетворения интерфейса error.
func (e *ErrorResponse) Error() string {
	return e.Message
}

// Unwrap позволяет проверять вид ошибки через errors.Is.
func (e *ErrorResponse) Unwrap() error {
	return e.Kind
}

func newKindError(statusCode int, kind error, message string) *ErrorResponse {
	return &ErrorResponse{StatusCode: statusCode, Message: message, Kind: kind}
}

// NewValidationError - отсутствующие или некорректные поля.
func NewValidationError(message string) *ErrorResponse {
	return newKindError(http.StatusBadRequest, ErrValidation, message)
}

// NewNotFoundError - неизвестный идентификатор или предложение не относится к запросу.
func NewNotFoundError(message string) *ErrorResponse {
	return newKindError(http.StatusNotFound, ErrNotFound, message)
}

// NewForbiddenError - действующее лицо не владеет объектом.
func NewForbiddenError(message string) *ErrorResponse {
	return newKindError(http.StatusForbidden, ErrForbidden, message)
}

// NewConflictError - условие перехода статуса не выполнено.
func NewConflictError(message string) *ErrorResponse {
	return newKindError(http.StatusConflict, ErrConflict, message)
}

// NewExpiredError - операция над истекшим запросом.
func NewExpiredError(message string) *ErrorResponse {
	return newKindError(http.StatusGone, ErrExpired, message)
}

// Ошибки хранилищ для неизвестных идентификаторов.
var (
	ErrRfqNotFound          = NewNotFoundError("rfq not found")
	ErrQuoteNotFound        = NewNotFoundError("quote not found")
	ErrNotificationNotFound = NewNotFoundError("notification not found")
	ErrCatalogNotFound      = NewNotFoundError("catalog item not found")
)
