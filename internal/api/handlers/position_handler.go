package handlers

import (
	"net/http"

	"github.com/gorilla/mux"

	"hedger/internal/models"
	"hedger/internal/service"
)

// PositionHandler отвечает за просмотр и закрытие хеджей
//
// Endpoints:
// - GET /api/v1/positions - список хеджей (?open=true - только открытые)
// - GET /api/v1/positions/history - журнал хеджей из БД (?pair_id=, ?limit=)
// - GET /api/v1/positions/{id} - один хедж
// - POST /api/v1/positions/{id}/close - ручное закрытие хеджа
// - POST /api/v1/positions/close-all - закрытие всех открытых хеджей
type PositionHandler struct {
	status  service.StatusServiceInterface
	control service.ControlServiceInterface
}

// NewPositionHandler создает новый PositionHandler с внедрением зависимостей
func NewPositionHandler(status service.StatusServiceInterface, control service.ControlServiceInterface) *PositionHandler {
	return &PositionHandler{
		status:  status,
		control: control,
	}
}

// PositionsResponse представляет ответ списка хеджей
type PositionsResponse struct {
	Positions []models.Hedge `json:"positions"`
	Total     int            `json:"total"`
}

// GetPositions возвращает хеджи, отслеживаемые движком
//
// GET /api/v1/positions
//
// Query параметры:
// - open (bool): только открытые (OPENING/OPEN/CLOSING)
func (h *PositionHandler) GetPositions(w http.ResponseWriter, r *http.Request) {
	openOnly := r.URL.Query().Get("open") == "true"
	positions := h.status.Positions(openOnly)
	respondWithJSON(w, http.StatusOK, PositionsResponse{
		Positions: positions,
		Total:     len(positions),
	})
}

// PositionHistoryResponse представляет ответ журнала хеджей
type PositionHistoryResponse struct {
	Positions []*models.Hedge `json:"positions"`
	Total     int             `json:"total"`
}

// GetPositionHistory возвращает журнал хеджей из БД
//
// GET /api/v1/positions/history
//
// Query параметры:
// - pair_id (string): фильтр по паре
// - limit (int): количество записей (по умолчанию 100, максимум 500)
func (h *PositionHandler) GetPositionHistory(w http.ResponseWriter, r *http.Request) {
	pairID := r.URL.Query().Get("pair_id")
	positions, err := h.status.HedgeHistory(pairID, queryInt(r, "limit", 0))
	if err != nil {
		respondWithError(w, http.StatusInternalServerError, "failed to get position history: "+err.Error())
		return
	}
	respondWithJSON(w, http.StatusOK, PositionHistoryResponse{
		Positions: positions,
		Total:     len(positions),
	})
}

// GetPosition возвращает один хедж по ID
//
// GET /api/v1/positions/{id}
//
// HTTP коды:
// - 200 OK: хедж найден
// - 404 Not Found: движок не отслеживает хедж с таким ID
func (h *PositionHandler) GetPosition(w http.ResponseWriter, r *http.Request) {
	hedgeID := mux.Vars(r)["id"]

	hedge, err := h.status.Position(hedgeID)
	if err != nil {
		respondWithError(w, http.StatusNotFound, err.Error())
		return
	}
	respondWithJSON(w, http.StatusOK, hedge)
}

// ClosePosition запускает ручное закрытие хеджа
//
// POST /api/v1/positions/{id}/close
//
// HTTP коды:
// - 202 Accepted: закрытие запущено (завершается асинхронно по fill'ам)
// - 409 Conflict: хедж не в закрываемом состоянии или не найден
func (h *PositionHandler) ClosePosition(w http.ResponseWriter, r *http.Request) {
	hedgeID := mux.Vars(r)["id"]

	if err := h.control.ClosePosition(r.Context(), hedgeID); err != nil {
		respondWithError(w, http.StatusConflict, err.Error())
		return
	}
	respondWithJSON(w, http.StatusAccepted, SuccessResponse{Message: "close initiated"})
}

// CloseAll запускает закрытие всех открытых хеджей
//
// POST /api/v1/positions/close-all
//
// HTTP коды:
// - 202 Accepted: закрытие запущено
// - 500 Internal Server Error: ошибка движка
func (h *PositionHandler) CloseAll(w http.ResponseWriter, r *http.Request) {
	if err := h.control.CloseAll(r.Context()); err != nil {
		respondWithError(w, http.StatusInternalServerError, err.Error())
		return
	}
	respondWithJSON(w, http.StatusAccepted, SuccessResponse{Message: "close-all initiated"})
}
