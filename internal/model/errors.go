// Package model はドメインモデルを定義する。
package model

import "fmt"

// APIError は統一エラーフォーマットを表す。
// Messageはレスポンスのreasonとしてそのままクライアントに返る。
type APIError struct {
	Code    string // エラーコード
	Message string // エラーメッセージ
}

// Error はerrorインターフェースを実装する。
func (e *APIError) Error() string {
	return fmt.Sprintf("[%s] %s", e.Code, e.Message)
}

// 定義済みエラーコード
const (
	ErrCodeBadRequest   = "BAD_REQUEST"
	ErrCodeNotFound     = "NOT_FOUND"
	ErrCodeNameConflict = "NAME_CONFLICT"
	ErrCodeNotDeletable = "NOT_DELETABLE"
	ErrCodeInternal     = "INTERNAL_ERROR"
)

// 定義済みエラーメッセージ
const (
	MessageNameConflict  = "Name already exists"
	MessageNotDeletable  = "Domain having hosts cannot be removed"
	MessageInternalError = "Internal server error"
	MessageInvalidURI    = "Invalid request uri"
	MessageInvalid       = "Invalid request"
)

// NewBadRequestError はリクエスト不正エラーを生成する。
func NewBadRequestError(message string) *APIError {
	return &APIError{
		Code:    ErrCodeBadRequest,
		Message: message,
	}
}

// NewUnsupportedMethodError は未対応のHTTPメソッドに対するエラーを生成する。
func NewUnsupportedMethodError(method string) *APIError {
	return NewBadRequestError(fmt.Sprintf("Unsupported method: %s", method))
}

// NewNotFoundError はリソース未検出エラーを生成する。
func NewNotFoundError() *APIError {
	return &APIError{
		Code:    ErrCodeNotFound,
		Message: "Not found",
	}
}

// NewNameConflictError は名前重複エラーを生成する。
func NewNameConflictError() *APIError {
	return &APIError{
		Code:    ErrCodeNameConflict,
		Message: MessageNameConflict,
	}
}

// NewNotDeletableError はホストを持つドメインの削除エラーを生成する。
func NewNotDeletableError() *APIError {
	return &APIError{
		Code:    ErrCodeNotDeletable,
		Message: MessageNotDeletable,
	}
}

// NewInternalError は内部エラーを生成する。
func NewInternalError() *APIError {
	return &APIError{
		Code:    ErrCodeInternal,
		Message: MessageInternalError,
	}
}
