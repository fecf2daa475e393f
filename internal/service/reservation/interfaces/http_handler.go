package interfaces

import (
	"context"
	"encoding/json"
	"net/http"

	"github.com/pkg/errors"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/propagation"

	"poscore/internal/pkg/constants"
	"poscore/internal/pkg/logger"
	"poscore/internal/service/reservation/application"
	"poscore/internal/service/reservation/domain"
)

// ReservationHandler 封装了 reservation 服务的 HTTP 处理器
type ReservationHandler struct {
	service *application.ReservationService
}

// NewReservationHandler 创建一个新的 HTTP 处理器实例
func NewReservationHandler(service *application.ReservationService) *ReservationHandler {
	return &ReservationHandler{service: service}
}

// RegisterRoutes 在 ServeMux 上注册所有路由
func (h *ReservationHandler) RegisterRoutes(mux *http.ServeMux) {
	mux.HandleFunc(constants.ReservationReservePath, h.handleReserve)
	mux.HandleFunc(constants.ReservationReleasePath, h.handleRelease)
	mux.HandleFunc(constants.ReservationCommitPath, h.handleCommit)
	mux.HandleFunc(constants.ReservationAvailablePath, h.handleAvailable)
	mux.HandleFunc(constants.ReservationListActivePath, h.handleListActive)
	mux.HandleFunc("/admin/upsert_article", h.handleUpsertArticle)
	mux.HandleFunc("/healthz", func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusOK)
	})
	mux.Handle("/metrics", promhttp.Handler())
}

type reserveRequest struct {
	ArticleID string `json:"article_id"`
	CartID    string `json:"cart_id"`
	Qty       int    `json:"qty"`
}

func (h *ReservationHandler) handleReserve(w http.ResponseWriter, r *http.Request) {
	ctx := extractTraceContext(r)

	var req reserveRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		http.Error(w, "Invalid request body", http.StatusBadRequest)
		return
	}

	reservation, err := h.service.Reserve(ctx, req.ArticleID, req.CartID, req.Qty)
	if err != nil {
		writeDomainError(w, r, err)
		return
	}

	writeJSON(w, map[string]interface{}{
		"reservation_id": reservation.ID,
		"article_id":     reservation.ArticleID,
		"cart_id":        reservation.CartID,
		"qty":            reservation.Qty,
		"expires_at":     reservation.ExpiresAt,
	})
}

type releaseRequest struct {
	ReservationID string `json:"reservation_id"`
}

func (h *ReservationHandler) handleRelease(w http.ResponseWriter, r *http.Request) {
	ctx := extractTraceContext(r)

	var req releaseRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		http.Error(w, "Invalid request body", http.StatusBadRequest)
		return
	}

	err := h.service.Release(ctx, req.ReservationID)
	if err != nil && !errors.Is(err, domain.ErrAlreadyTerminal) {
		// 已经终态的预留按成功处理：释放和过期竞争时两边拿到同一个结果
		writeDomainError(w, r, err)
		return
	}

	writeJSON(w, map[string]interface{}{"success": true})
}

type commitRequest struct {
	CartID string `json:"cart_id"`
}

func (h *ReservationHandler) handleCommit(w http.ResponseWriter, r *http.Request) {
	ctx := extractTraceContext(r)

	var req commitRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		http.Error(w, "Invalid request body", http.StatusBadRequest)
		return
	}

	result, err := h.service.Commit(ctx, req.CartID)
	if err != nil {
		writeDomainError(w, r, err)
		return
	}

	writeJSON(w, result)
}

func (h *ReservationHandler) handleAvailable(w http.ResponseWriter, r *http.Request) {
	ctx := extractTraceContext(r)

	articleID := r.URL.Query().Get("article_id")
	if articleID == "" {
		http.Error(w, "article_id is required", http.StatusBadRequest)
		return
	}

	available, err := h.service.Available(ctx, articleID)
	if err != nil {
		writeDomainError(w, r, err)
		return
	}

	writeJSON(w, map[string]interface{}{
		"article_id": articleID,
		"available":  available,
	})
}

func (h *ReservationHandler) handleListActive(w http.ResponseWriter, r *http.Request) {
	ctx := extractTraceContext(r)

	cartID := r.URL.Query().Get("cart_id")
	if cartID == "" {
		http.Error(w, "cart_id is required", http.StatusBadRequest)
		return
	}

	lines, err := h.service.ListActive(ctx, cartID)
	if err != nil {
		writeDomainError(w, r, err)
		return
	}

	writeJSON(w, map[string]interface{}{
		"cart_id": cartID,
		"lines":   lines,
	})
}

type upsertArticleRequest struct {
	ArticleID string `json:"article_id"`
	OnHand    int    `json:"on_hand"`
}

func (h *ReservationHandler) handleUpsertArticle(w http.ResponseWriter, r *http.Request) {
	ctx := extractTraceContext(r)

	var req upsertArticleRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		http.Error(w, "Invalid request body", http.StatusBadRequest)
		return
	}

	if err := h.service.UpsertArticle(ctx, req.ArticleID, req.OnHand); err != nil {
		writeDomainError(w, r, err)
		return
	}

	writeJSON(w, map[string]interface{}{"success": true})
}

func extractTraceContext(r *http.Request) context.Context {
	propagator := otel.GetTextMapPropagator()
	return propagator.Extract(r.Context(), propagation.HeaderCarrier(r.Header))
}

func writeJSON(w http.ResponseWriter, v interface{}) {
	w.Header().Set("Content-Type", "application/json")
	json.NewEncoder(w).Encode(v)
}

// writeDomainError 根据错误类型返回不同的 HTTP 状态码
func writeDomainError(w http.ResponseWriter, r *http.Request, err error) {
	var statusCode int
	switch {
	case errors.Is(err, domain.ErrArticleNotFound),
		errors.Is(err, domain.ErrReservationNotFound):
		statusCode = http.StatusNotFound
	case errors.Is(err, domain.ErrInvalidQuantity),
		errors.Is(err, domain.ErrEmptyCart):
		statusCode = http.StatusBadRequest
	case errors.Is(err, domain.ErrInsufficientStock):
		// 库存不足带上剩余可用量，前端可以提示用户改数量
		var insufficient *domain.InsufficientStockError
		if errors.As(err, &insufficient) {
			w.Header().Set("Content-Type", "application/json")
			w.WriteHeader(http.StatusConflict)
			json.NewEncoder(w).Encode(map[string]interface{}{
				"error":      "insufficient stock",
				"article_id": insufficient.ArticleID,
				"requested":  insufficient.Requested,
				"available":  insufficient.Available,
			})
			return
		}
		statusCode = http.StatusConflict
	case errors.Is(err, domain.ErrAlreadyTerminal):
		statusCode = http.StatusConflict
	case errors.Is(err, domain.ErrBusy):
		// 锁竞争失败，告诉客户端稍后重试
		statusCode = http.StatusServiceUnavailable
	default:
		statusCode = http.StatusInternalServerError
	}
	logger.Ctx(r.Context()).Warn().Err(err).Int("status", statusCode).Str("path", r.URL.Path).Msg("request failed")
	http.Error(w, err.Error(), statusCode)
}
