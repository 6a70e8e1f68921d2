package middleware

import (
	"encoding/json"
	"net/http"
	"strconv"
	"time"

	"github.com/hitoshi/inventory/internal/model"
)

// ChangedHeader はレスポンスが状態を変更したかを示すヘッダー名。
const ChangedHeader = "X-Changed"

// Envelope は全APIレスポンスの共通フォーマット。
type Envelope struct {
	Timestamp string `json:"timestamp"`
	Payload   any    `json:"payload"`
	Changed   bool   `json:"changed"`
}

// ErrorPayload はエラーレスポンスのpayload。
// Error/Stackは本番モード以外の500レスポンスでのみ設定される。
type ErrorPayload struct {
	Reason string `json:"reason"`
	Error  string `json:"error,omitempty"`
	Stack  string `json:"stack,omitempty"`
}

// WriteEnvelope は共通フォーマットでレスポンスを書き込む。
// payloadがnilの場合はnullとして書き込む。
func WriteEnvelope(w http.ResponseWriter, statusCode int, payload any, changed bool) {
	w.Header().Set("Content-Type", "application/json")
	w.Header().Set(ChangedHeader, strconv.FormatBool(changed))
	w.WriteHeader(statusCode)
	json.NewEncoder(w).Encode(Envelope{
		Timestamp: time.Now().UTC().Format(time.RFC3339Nano),
		Payload:   payload,
		Changed:   changed,
	})
}

// WriteErrorResponse はAPIErrorをreasonとして共通フォーマットで書き込む。
func WriteErrorResponse(w http.ResponseWriter, statusCode int, apiErr *model.APIError) {
	WriteEnvelope(w, statusCode, ErrorPayload{Reason: apiErr.Message}, false)
}

// WriteInternalServerError は内部サーバーエラーの統一レスポンスを書き込む。
// detailedがfalseの場合は一般的なメッセージのみ返し、詳細はログにのみ記録する。
func WriteInternalServerError(w http.ResponseWriter, err error, stack []byte, detailed bool) {
	payload := ErrorPayload{Reason: model.MessageInternalError}
	if detailed {
		if err != nil {
			payload.Error = err.Error()
		}
		payload.Stack = string(stack)
	}
	WriteEnvelope(w, http.StatusInternalServerError, payload, false)
}
