package api

import (
	"encoding/json"
	"errors"
	"net/http"
	"strconv"
	"time"

	"github.com/gorilla/mux"

	"github.com/dinedesk/dinedesk/internal/service"
	apperrors "github.com/dinedesk/dinedesk/pkg/errors"
)

type ApiResponse struct {
	Success bool        `json:"success"`
	Data    interface{} `json:"data,omitempty"`
	Error   string      `json:"error,omitempty"`
}

// PlaceOrderResponse acknowledges a placed order
type PlaceOrderResponse struct {
	Success bool  `json:"success"`
	OrderID int64 `json:"orderId"`
}

// Health represents the health check response
type Health struct {
	Status    string `json:"status"`
	Version   string `json:"version"`
	Timestamp string `json:"timestamp"`
}

// healthCheckHandler handles the health check endpoint
func (s *Server) healthCheckHandler(w http.ResponseWriter, r *http.Request) {
	status := "ok"

	if err := s.db.Ping(r.Context()); err != nil {
		s.logger.Error("Health check database ping failed", "error", err)
		status = "degraded"
	}

	health := Health{
		Status:    status,
		Version:   "0.1.0",
		Timestamp: time.Now().UTC().Format(time.RFC3339),
	}

	s.respondWithJSON(w, http.StatusOK, ApiResponse{
		Success: true,
		Data:    health,
	})
}

// getMenuHandler returns the menu items orderable right now
func (s *Server) getMenuHandler(w http.ResponseWriter, r *http.Request) {
	items, err := s.orderService.ListMenu(r.Context())

	if err != nil {
		s.respondWithServiceError(w, err)
		return
	}

	s.respondWithJSON(w, http.StatusOK, ApiResponse{Success: true, Data: items})
}

// placeOrderHandler accepts a new order submission
func (s *Server) placeOrderHandler(w http.ResponseWriter, r *http.Request) {
	var req service.PlaceOrderRequest
	decoder := json.NewDecoder(r.Body)

	if err := decoder.Decode(&req); err != nil {
		s.respondWithError(w, http.StatusBadRequest, "Invalid request payload")
		return
	}
	defer r.Body.Close()

	order, err := s.orderService.PlaceOrder(r.Context(), &req)

	if err != nil {
		s.respondWithServiceError(w, err)
		return
	}

	s.respondWithJSON(w, http.StatusCreated, PlaceOrderResponse{
		Success: true,
		OrderID: order.ID,
	})
}

// updateStatusRequest is accepted both on /orders/{id}/status, where the
// path wins, and on /orders/status with the id in the body.
type updateStatusRequest struct {
	OrderID int64  `json:"orderId"`
	Status  string `json:"status"`
}

// updateOrderStatusHandler moves an order through the kitchen pipeline
func (s *Server) updateOrderStatusHandler(w http.ResponseWriter, r *http.Request) {
	var req updateStatusRequest
	decoder := json.NewDecoder(r.Body)

	if err := decoder.Decode(&req); err != nil {
		s.respondWithError(w, http.StatusBadRequest, "Invalid request payload")
		return
	}
	defer r.Body.Close()

	id := req.OrderID

	if idStr, ok := mux.Vars(r)["id"]; ok {
		parsed, err := strconv.ParseInt(idStr, 10, 64)
		if err != nil {
			s.respondWithError(w, http.StatusBadRequest, "Invalid order ID")
			return
		}
		id = parsed
	}

	if id <= 0 {
		s.respondWithError(w, http.StatusBadRequest, "Order ID is required")
		return
	}

	if _, err := s.orderService.UpdateOrderStatus(r.Context(), id, req.Status); err != nil {
		s.respondWithServiceError(w, err)
		return
	}

	s.respondWithJSON(w, http.StatusOK, ApiResponse{Success: true})
}

// getOrdersHandler returns orders newest first, paginated
func (s *Server) getOrdersHandler(w http.ResponseWriter, r *http.Request) {
	limit, _ := strconv.Atoi(r.URL.Query().Get("limit"))
	offset, _ := strconv.Atoi(r.URL.Query().Get("offset"))

	orders, err := s.orderService.ListOrders(r.Context(), limit, offset)

	if err != nil {
		s.respondWithServiceError(w, err)
		return
	}

	s.respondWithJSON(w, http.StatusOK, ApiResponse{Success: true, Data: orders})
}

// getActiveOrdersHandler returns non-terminal orders, oldest first
func (s *Server) getActiveOrdersHandler(w http.ResponseWriter, r *http.Request) {
	orders, err := s.orderService.ListActiveOrders(r.Context())

	if err != nil {
		s.respondWithServiceError(w, err)
		return
	}

	s.respondWithJSON(w, http.StatusOK, ApiResponse{Success: true, Data: orders})
}

// getOrderByIDHandler returns an order by ID
func (s *Server) getOrderByIDHandler(w http.ResponseWriter, r *http.Request) {
	idStr := mux.Vars(r)["id"]
	id, err := strconv.ParseInt(idStr, 10, 64)

	if err != nil {
		s.respondWithError(w, http.StatusBadRequest, "Invalid order ID")
		return
	}

	order, err := s.orderService.GetOrder(r.Context(), id)

	if err != nil {
		s.respondWithServiceError(w, err)
		return
	}

	s.respondWithJSON(w, http.StatusOK, ApiResponse{Success: true, Data: order})
}

// getDailyReportHandler returns today's order and revenue summary
func (s *Server) getDailyReportHandler(w http.ResponseWriter, r *http.Request) {
	report, err := s.orderService.GetDailyReport(r.Context())

	if err != nil {
		s.respondWithServiceError(w, err)
		return
	}

	s.respondWithJSON(w, http.StatusOK, ApiResponse{Success: true, Data: report})
}

// respondWithServiceError maps a service error to its HTTP status. Internal
// failures are reported generically; the details stay in the logs.
func (s *Server) respondWithServiceError(w http.ResponseWriter, err error) {
	code := apperrors.StatusCode(err)
	message := "Internal server error"

	var appErr *apperrors.AppError

	if code != http.StatusInternalServerError && errors.As(err, &appErr) {
		message = appErr.Message
	} else if code == http.StatusInternalServerError {
		s.logger.Error("Request failed", "error", err)
	}

	s.respondWithError(w, code, message)
}

// respondWithError sends a JSON response with an error message
func (s *Server) respondWithError(w http.ResponseWriter, code int, message string) {
	s.respondWithJSON(w, code, ApiResponse{
		Success: false,
		Error:   message,
	})
}

// respondWithJSON sends a JSON response
func (s *Server) respondWithJSON(w http.ResponseWriter, code int, payload interface{}) {
	response, err := json.Marshal(payload)

	if err != nil {
		s.logger.Error("Failed to marshal response", "error", err)
		w.WriteHeader(http.StatusInternalServerError)
		return
	}

	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(code)
	w.Write(response)
}
