package models

// Коды ошибок API. Клиенты различают ошибки по коду, не по тексту.
const (
	ErrCodeValidation         = "VALIDATION_ERROR"
	ErrCodeBadRequest         = "BAD_REQUEST"
	ErrCodeTokenInvalid       = "TOKEN_INVALID"
	ErrCodeTokenExpired       = "TOKEN_EXPIRED"
	ErrCodeForbidden          = "FORBIDDEN"
	ErrCodeNotFound           = "NOT_FOUND"
	ErrCodeInsufficientTokens = "INSUFFICIENT_TOKENS"
	ErrCodeInternal           = "INTERNAL_ERROR"
)

// ErrorResponse - унифицированное тело ошибки API.
type ErrorResponse struct {
	Code    string `json:"code"`
	Message string `json:"message"`
}
