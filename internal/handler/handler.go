// Package handler はHTTPハンドラーとルーティングを提供する。
//
// 各ハンドラーはコンテキストのアクターとURLパラメータを取り出してサービスを1回呼び出し、
// 結果をshapeパッケージのビューに変換して返す。失敗はmiddleware.ReportErrorで一度だけ変換する。
package handler

import (
	"encoding/json"
	"io"
	"net/http"

	"github.com/hitoshi/launchpad/internal/middleware"
	"github.com/hitoshi/launchpad/internal/model"
)

// maxBodyBytes はJSONリクエストボディの上限サイズ。
const maxBodyBytes = 1 << 20

// successResponse は本文を持たない成功レスポンス。
type successResponse struct {
	Success bool `json:"success"`
}

var successBody = successResponse{Success: true}

// decodeJSON はリクエストボディをvにデコードする。
// 空ボディや不正なJSONはBadInputエラーを返す。
func decodeJSON(r *http.Request, v any) error {
	dec := json.NewDecoder(io.LimitReader(r.Body, maxBodyBytes))
	if err := dec.Decode(v); err != nil {
		return model.NewInvalidBodyError(err)
	}
	return nil
}

// actor はコンテキストから認証済みユーザーを取り出す。
// RequireCapabilityの後段でのみ呼び出すため、nilの場合は未認証エラーを返す。
func actor(r *http.Request) (*model.User, error) {
	u := middleware.UserFromContext(r.Context())
	if u == nil {
		return nil, model.NewUnauthorizedError()
	}
	return u, nil
}
