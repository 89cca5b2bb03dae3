package middleware

import (
	"net/http"
	"strings"

	"hedger/pkg/crypto"
	"hedger/pkg/utils"
)

// Auth проверяет bearer токен control API.
//
// token - настроенное значение из конфигурации: открытая строка или
// bcrypt хеш (префикс "$2"), сравнение делает pkg/crypto. Пустой token
// отключает проверку - режим локального развертывания без auth;
// включение в production обязательно.
func Auth(token string, log *utils.Logger) func(http.Handler) http.Handler {
	log = log.WithComponent("auth")
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			if token == "" {
				next.ServeHTTP(w, r)
				return
			}

			presented := bearerToken(r)
			if presented == "" {
				w.Header().Set("WWW-Authenticate", `Bearer realm="hedger"`)
				http.Error(w, "Unauthorized", http.StatusUnauthorized)
				return
			}

			if !crypto.TokenMatches(presented, token) {
				log.Warn("rejected request with invalid token",
					utils.String("path", r.URL.Path),
					utils.String("remote", r.RemoteAddr),
				)
				w.Header().Set("WWW-Authenticate", `Bearer realm="hedger"`)
				http.Error(w, "Unauthorized", http.StatusUnauthorized)
				return
			}

			next.ServeHTTP(w, r)
		})
	}
}

// bearerToken извлекает токен из заголовка Authorization: Bearer <token>
func bearerToken(r *http.Request) string {
	header := r.Header.Get("Authorization")
	if header == "" {
		return ""
	}
	parts := strings.SplitN(header, " ", 2)
	if len(parts) != 2 || !strings.EqualFold(parts[0], "Bearer") {
		return ""
	}
	return strings.TrimSpace(parts[1])
}
