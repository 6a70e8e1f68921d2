package middleware

import (
	"net/http"
	"strings"
)

// NewStripSlashesMiddleware はパス末尾のスラッシュを取り除くミドルウェアを返す。
// URL.PathとURL.RawPathの両方を揃えて書き換え、ルーティングはchiにどちらを使うか判断させる。
// %2Fのようにエスケープされたスラッシュがセグメントの区切りとして扱われることはない。
func NewStripSlashesMiddleware() func(next http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			if len(r.URL.Path) <= 1 || !strings.HasSuffix(r.URL.Path, "/") {
				next.ServeHTTP(w, r)
				return
			}

			r2 := r.Clone(r.Context())
			r2.URL.Path = strings.TrimSuffix(r2.URL.Path, "/")
			if r2.URL.RawPath != "" {
				r2.URL.RawPath = strings.TrimSuffix(r2.URL.RawPath, "/")
			}
			next.ServeHTTP(w, r2)
		})
	}
}
