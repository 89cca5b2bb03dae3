package api

import (
	"net/http"

	"github.com/gorilla/mux"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"hedger/internal/api/handlers"
	"hedger/internal/api/middleware"
	"hedger/internal/service"
	"hedger/internal/websocket"
	"hedger/pkg/utils"
)

// Dependencies - сервисы, доступные HTTP слою
type Dependencies struct {
	Status  service.StatusServiceInterface
	Control service.ControlServiceInterface
	Hub     *websocket.Hub

	// APIToken защищает /api/v1; пустое значение отключает auth
	APIToken string
	// AllowedOrigins - дополнительные CORS origins дашборда
	AllowedOrigins []string

	Log *utils.Logger
}

// SetupRoutes создает роутер со всеми маршрутами приложения
//
// Маршруты:
//
//	GET  /health                          - liveness check
//	GET  /metrics                         - Prometheus метрики
//	GET  /ws/stream                       - WebSocket поток событий
//	GET  /api/v1/status                   - сводка движка
//	GET  /api/v1/positions                - хеджи (?open=true)
//	GET  /api/v1/positions/history        - журнал хеджей (?pair_id=, ?limit=)
//	GET  /api/v1/positions/{id}           - один хедж
//	POST /api/v1/positions/{id}/close     - ручное закрытие
//	POST /api/v1/positions/close-all      - закрытие всех открытых
//	GET  /api/v1/accounts                 - реестр аккаунтов
//	GET  /api/v1/pairs                    - настроенные пары
//	GET  /api/v1/cooldowns                - активные окна охлаждения
//	GET  /api/v1/risk/events              - риск-события движка (?limit=)
//	GET  /api/v1/risk/events/history      - журнал риск-событий (?limit=)
//	GET  /api/v1/notifications            - журнал уведомлений (?limit=)
//	GET  /api/v1/stats                    - дневная статистика (?days=)
//	POST /api/v1/engine/start             - запуск движка
//	POST /api/v1/engine/stop              - остановка движка
//	POST /api/v1/engine/emergency-stop    - аварийная остановка
func SetupRoutes(deps *Dependencies) *mux.Router {
	router := mux.NewRouter()

	log := deps.Log
	if log == nil {
		log = utils.GetGlobalLogger()
	}

	router.Use(middleware.Recovery(log))
	router.Use(middleware.Logging(log))
	router.Use(middleware.CORS(deps.AllowedOrigins))

	statusHandler := handlers.NewStatusHandler(deps.Status)
	positionHandler := handlers.NewPositionHandler(deps.Status, deps.Control)
	engineHandler := handlers.NewEngineHandler(deps.Control)

	// API v1: и чтение, и управление за одним bearer токеном
	api := router.PathPrefix("/api/v1").Subrouter()
	api.Use(middleware.Auth(deps.APIToken, log))

	// Status routes
	api.HandleFunc("/status", statusHandler.GetStatus).Methods("GET")
	api.HandleFunc("/accounts", statusHandler.GetAccounts).Methods("GET")
	api.HandleFunc("/pairs", statusHandler.GetPairs).Methods("GET")
	api.HandleFunc("/cooldowns", statusHandler.GetCooldowns).Methods("GET")
	api.HandleFunc("/risk/events", statusHandler.GetRiskEvents).Methods("GET")
	api.HandleFunc("/risk/events/history", statusHandler.GetRiskEventHistory).Methods("GET")
	api.HandleFunc("/notifications", statusHandler.GetNotifications).Methods("GET")
	api.HandleFunc("/stats", statusHandler.GetStats).Methods("GET")

	// Position routes: фиксированные пути до шаблона {id}
	api.HandleFunc("/positions", positionHandler.GetPositions).Methods("GET")
	api.HandleFunc("/positions/history", positionHandler.GetPositionHistory).Methods("GET")
	api.HandleFunc("/positions/close-all", positionHandler.CloseAll).Methods("POST")
	api.HandleFunc("/positions/{id}", positionHandler.GetPosition).Methods("GET")
	api.HandleFunc("/positions/{id}/close", positionHandler.ClosePosition).Methods("POST")

	// Engine control routes
	api.HandleFunc("/engine/start", engineHandler.Start).Methods("POST")
	api.HandleFunc("/engine/stop", engineHandler.Stop).Methods("POST")
	api.HandleFunc("/engine/emergency-stop", engineHandler.EmergencyStop).Methods("POST")

	// WebSocket route
	if deps.Hub != nil {
		router.HandleFunc("/ws/stream", func(w http.ResponseWriter, r *http.Request) {
			websocket.ServeWS(deps.Hub, w, r)
		}).Methods("GET")
	}

	// Prometheus метрики
	router.Handle("/metrics", promhttp.Handler()).Methods("GET")

	// Health check endpoint
	router.HandleFunc("/health", func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusOK)
		w.Write([]byte("OK"))
	}).Methods("GET")

	return router
}
