package middleware

import (
	"net/http"
	"strings"
)

// defaultOrigins - локальные адреса дашборда, разрешённые без настройки
var defaultOrigins = []string{
	"http://localhost:3000",
	"http://127.0.0.1:3000",
	"http://localhost:8080",
	"http://127.0.0.1:8080",
	"http://localhost:5173", // Vite dev server
	"http://127.0.0.1:5173",
}

// CORS настраивает Cross-Origin заголовки для дашборда.
//
// origins - список разрешённых доменов; пустой список означает
// только локальные dev-адреса. Запросы без Origin (curl, скрипты)
// пропускаются всегда.
func CORS(origins []string) func(http.Handler) http.Handler {
	allowed := make(map[string]bool, len(origins)+len(defaultOrigins))
	for _, origin := range defaultOrigins {
		allowed[origin] = true
	}
	for _, origin := range origins {
		origin = strings.TrimSpace(origin)
		if origin != "" {
			allowed[origin] = true
		}
	}

	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			origin := r.Header.Get("Origin")

			if allowed[origin] {
				// Конкретный origin, не "*": ответ может содержать credentials
				w.Header().Set("Access-Control-Allow-Origin", origin)
				w.Header().Set("Access-Control-Allow-Credentials", "true")
			} else if origin == "" {
				w.Header().Set("Access-Control-Allow-Origin", "*")
			}
			// Неразрешённые origins не получают заголовков - браузер заблокирует

			w.Header().Set("Access-Control-Allow-Methods", "GET, POST, DELETE, OPTIONS")
			w.Header().Set("Access-Control-Allow-Headers", "Content-Type, Authorization")
			w.Header().Set("Access-Control-Max-Age", "86400")

			if r.Method == http.MethodOptions {
				w.WriteHeader(http.StatusOK)
				return
			}

			next.ServeHTTP(w, r)
		})
	}
}
