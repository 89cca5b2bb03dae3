package handlers

import (
	"net/http"

	"hedger/internal/service"
)

// EngineHandler отвечает за управление жизненным циклом движка
//
// Endpoints:
// - POST /api/v1/engine/start - запуск движка
// - POST /api/v1/engine/stop - остановка (открытые позиции не трогаются)
// - POST /api/v1/engine/emergency-stop - аварийная остановка с закрытием всего
type EngineHandler struct {
	control service.ControlServiceInterface
}

// NewEngineHandler создает новый EngineHandler с внедрением зависимости
func NewEngineHandler(control service.ControlServiceInterface) *EngineHandler {
	return &EngineHandler{control: control}
}

// Start запускает движок
//
// POST /api/v1/engine/start
//
// HTTP коды:
// - 200 OK: движок запущен
// - 409 Conflict: движок уже работает или не может стартовать
func (h *EngineHandler) Start(w http.ResponseWriter, r *http.Request) {
	if err := h.control.Start(r.Context()); err != nil {
		respondWithError(w, http.StatusConflict, err.Error())
		return
	}
	respondWithJSON(w, http.StatusOK, SuccessResponse{Message: "engine started"})
}

// Stop останавливает движок. Открытые хеджи остаются открытыми.
//
// POST /api/v1/engine/stop
//
// HTTP коды:
// - 200 OK: движок остановлен
// - 409 Conflict: движок не запущен
func (h *EngineHandler) Stop(w http.ResponseWriter, r *http.Request) {
	if err := h.control.Stop(); err != nil {
		respondWithError(w, http.StatusConflict, err.Error())
		return
	}
	respondWithJSON(w, http.StatusOK, SuccessResponse{Message: "engine stopped"})
}

// EmergencyStopRequest представляет тело запроса аварийной остановки
type EmergencyStopRequest struct {
	Reason string `json:"reason"`
}

// EmergencyStop останавливает приём новых хеджей и закрывает все открытые
//
// POST /api/v1/engine/emergency-stop
//
// Тело запроса (опционально):
//
//	{"reason": "почему остановили"}
//
// HTTP коды:
// - 202 Accepted: аварийная остановка запущена
// - 500 Internal Server Error: ошибка движка
func (h *EngineHandler) EmergencyStop(w http.ResponseWriter, r *http.Request) {
	var req EmergencyStopRequest
	if r.Body != nil {
		// Невалидное тело не блокирует остановку - reason опционален
		json.NewDecoder(r.Body).Decode(&req)
	}

	if err := h.control.EmergencyStop(r.Context(), req.Reason); err != nil {
		respondWithError(w, http.StatusInternalServerError, err.Error())
		return
	}
	respondWithJSON(w, http.StatusAccepted, SuccessResponse{Message: "emergency stop initiated"})
}
