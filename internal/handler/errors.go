package handler

import (
	"errors"
	"log/slog"
	"net/http"
	"runtime/debug"

	"github.com/hitoshi/inventory/internal/middleware"
	"github.com/hitoshi/inventory/internal/model"
)

// errorWriter はエラーを共通フォーマットのレスポンスに変換する。
type errorWriter struct {
	logger   *slog.Logger
	detailed bool
}

// handleServiceError はエラーを適切なHTTPステータスコードに変換して書き込む。
// APIError以外のエラーは内部サーバーエラーとして扱う。
func (e errorWriter) handleServiceError(w http.ResponseWriter, r *http.Request, err error) {
	var apiErr *model.APIError
	if errors.As(err, &apiErr) {
		statusCode := mapAPIErrorToHTTPStatus(apiErr)
		if statusCode == http.StatusBadRequest {
			e.logger.Debug("sent bad request to the client",
				slog.String("path", r.URL.Path),
				slog.String("reason", apiErr.Message),
			)
		}
		middleware.WriteErrorResponse(w, statusCode, apiErr)
		return
	}

	e.logger.Error("internal server error",
		slog.String("method", r.Method),
		slog.String("path", r.URL.Path),
		slog.String("error", err.Error()),
	)
	var stack []byte
	if e.detailed {
		stack = debug.Stack()
	}
	middleware.WriteInternalServerError(w, err, stack, e.detailed)
}

// mapAPIErrorToHTTPStatus はAPIErrorコードからHTTPステータスコードにマッピングする。
func mapAPIErrorToHTTPStatus(apiErr *model.APIError) int {
	switch apiErr.Code {
	case model.ErrCodeBadRequest:
		return http.StatusBadRequest
	case model.ErrCodeNotFound:
		return http.StatusNotFound
	case model.ErrCodeNameConflict, model.ErrCodeNotDeletable:
		return http.StatusConflict
	default:
		return http.StatusInternalServerError
	}
}
