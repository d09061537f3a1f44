package middleware

import (
	"crypto/subtle"
	"log/slog"
	"net/http"

	"github.com/hitoshi/milkrun/internal/model"
)

// APIKeyHeader は管理APIキーを渡すリクエストヘッダー名。
const APIKeyHeader = "X-Api-Key"

// NewAPIKeyMiddleware は管理APIキーによる認証ミドルウェアを返す。
// ヘッダーのキーと設定値を定数時間比較で照合する。
func NewAPIKeyMiddleware(apiKey string) func(next http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			provided := r.Header.Get(APIKeyHeader)
			if provided == "" || subtle.ConstantTimeCompare([]byte(provided), []byte(apiKey)) != 1 {
				slog.Warn("APIキー認証に失敗しました",
					slog.String("path", r.URL.Path),
					slog.String("remote_addr", r.RemoteAddr),
				)
				WriteErrorResponse(w, http.StatusUnauthorized, &model.APIError{
					Code:     "UNAUTHORIZED",
					Message:  "認証が必要です。",
					Category: "auth",
					Action:   "X-Api-Keyヘッダーに有効なAPIキーを指定してください。",
				})
				return
			}
			next.ServeHTTP(w, r)
		})
	}
}
