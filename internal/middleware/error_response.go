package middleware

import (
	"bytes"
	"encoding/json"
	"errors"
	"log/slog"
	"net/http"

	"github.com/hitoshi/launchpad/internal/model"
)

// ErrorBody はAPIエラーレスポンスの統一フォーマット。
type ErrorBody struct {
	Error string `json:"error"`
}

// fallbackBody はJSONエンコードに失敗した場合に書き込む固定ボディ。
var fallbackBody = []byte(`{"error":"Internal server error"}` + "\n")

// WriteJSON はvをJSONとしてバッファにエンコードしてから書き込む。
// エンコードに失敗した場合は部分的なボディを書かず、500のエラーボディを返す。
func WriteJSON(w http.ResponseWriter, status int, v any) {
	var buf bytes.Buffer
	if err := json.NewEncoder(&buf).Encode(v); err != nil {
		slog.Error("failed to encode response", slog.String("error", err.Error()))
		w.Header().Set("Content-Type", "application/json")
		w.WriteHeader(http.StatusInternalServerError)
		w.Write(fallbackBody)
		return
	}
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	w.Write(buf.Bytes())
}

// WriteError は{"error": message}形式のエラーレスポンスを書き込む。
func WriteError(w http.ResponseWriter, status int, message string) {
	WriteJSON(w, status, ErrorBody{Error: message})
}

// StatusForKind はエラー分類に対応するHTTPステータスを返す。
func StatusForKind(kind model.ErrorKind) int {
	switch kind {
	case model.KindUnauthenticated:
		return http.StatusUnauthorized
	case model.KindForbidden:
		return http.StatusForbidden
	case model.KindNotFound:
		return http.StatusNotFound
	case model.KindBadInput:
		return http.StatusBadRequest
	case model.KindUpstream:
		return http.StatusBadGateway
	default:
		return http.StatusInternalServerError
	}
}

// ReportError はエラーを一度だけログに記録し、分類に応じたステータスとボディで応答する。
// actionは "create project" のような動詞句で、上流失敗と未分類エラーの
// メッセージ "Failed to <action>" に使用する。内部の原因はレスポンスに含めない。
func ReportError(w http.ResponseWriter, r *http.Request, err error, action string) {
	kind := model.KindOf(err)
	message := "Failed to " + action

	var appErr *model.AppError
	if kind != model.KindUpstream && kind != model.KindUnknown && errors.As(err, &appErr) {
		message = appErr.Message
	}
	status := StatusForKind(kind)

	level := slog.LevelWarn
	if status >= http.StatusInternalServerError {
		level = slog.LevelError
	}
	slog.Log(r.Context(), level, "request failed",
		slog.String("message", message),
		slog.String("error_kind", kind.String()),
		slog.Int("status", status),
		slog.String("action", action),
		slog.String("request_id", RequestIDFromContext(r.Context())),
		slog.String("user_id", userIDForLog(r.Context())),
		slog.String("method", r.Method),
		slog.String("path", r.URL.Path),
		slog.String("error", err.Error()),
	)

	WriteError(w, status, message)
}
