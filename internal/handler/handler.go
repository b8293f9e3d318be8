// Package handler содержит HTTP-обработчики API сервиса VNDR Music.
package handler

import (
	"context"
	"crypto/hmac"
	"encoding/json"
	"errors"
	"net/http"
	"time"

	"go.uber.org/zap"

	"github.com/vndr/vndr-music/internal/access"
	"github.com/vndr/vndr-music/internal/ai"
	"github.com/vndr/vndr-music/internal/middleware"
	"github.com/vndr/vndr-music/internal/model"
	"github.com/vndr/vndr-music/internal/repository"
	"github.com/vndr/vndr-music/internal/service"
	"github.com/vndr/vndr-music/internal/validation"
)

// Service определяет контракт бизнес-логики, используемой HTTP-обработчиками.
type Service interface {
	FetchCollection(ctx context.Context, collection string, identity model.Identity, filters map[string]string) ([]map[string]any, error)
	GetBalance(ctx context.Context, userID string) (int64, error)
	ApplyTransaction(ctx context.Context, userID string, amount int64, txType model.TransactionType, details string) (*model.LedgerTransaction, error)
	ClaimDailyTokens(ctx context.Context, userID string) (*model.LedgerTransaction, error)
	GetTransactionsByUser(ctx context.Context, userID string) ([]model.LedgerTransaction, error)
	CreateTrack(ctx context.Context, identity model.Identity, t *model.Track) (string, error)
	CreateLicenseRequest(ctx context.Context, identity model.Identity, lr *model.LicenseRequest) (string, error)
	SettleBridge(ctx context.Context, trackID string, amount int64) (*model.LedgerTransaction, error)
	GenerateCoverArt(ctx context.Context, title, genre, description string) (*ai.CoverArtResult, error)
	RecommendPrice(ctx context.Context, title, genre string, plays int64) (*ai.PriceResult, error)
	LegalAnswer(ctx context.Context, question string) (string, error)
	PartnerReply(ctx context.Context, message string) (string, error)
}

// Handler реализует HTTP-обработчики API сервиса VNDR Music.
type Handler struct {
	service        Service
	logger         *zap.Logger
	authMiddleware *middleware.AuthMiddleware
	bridgeAPIKey   string
}

// NewHandler создаёт новый экземпляр обработчика HTTP-запросов.
func NewHandler(s Service, logger *zap.Logger, auth *middleware.AuthMiddleware, bridgeAPIKey string) *Handler {
	return &Handler{
		service:        s,
		logger:         logger,
		authMiddleware: auth,
		bridgeAPIKey:   bridgeAPIKey,
	}
}

func writeJSON(w http.ResponseWriter, status int, payload any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(payload)
}

type errorResponse struct {
	Error string `json:"error"`
}

// writeError отображает типизированные ошибки ядра в HTTP-статусы.
func (h *Handler) writeError(w http.ResponseWriter, err error) {
	switch {
	case errors.Is(err, access.ErrUnauthenticated), errors.Is(err, middleware.ErrUnauthenticated):
		writeJSON(w, http.StatusUnauthorized, errorResponse{Error: "please log in"})
	case errors.Is(err, access.ErrPermissionDenied):
		writeJSON(w, http.StatusForbidden, errorResponse{Error: "access denied"})
	case errors.Is(err, repository.ErrInsufficientBalance):
		writeJSON(w, http.StatusPaymentRequired, errorResponse{Error: "insufficient VSD balance"})
	case errors.Is(err, repository.ErrAlreadyClaimedToday):
		writeJSON(w, http.StatusConflict, errorResponse{Error: "daily reward already claimed"})
	case errors.Is(err, repository.ErrUserNotFound), errors.Is(err, repository.ErrTrackNotFound):
		writeJSON(w, http.StatusNotFound, errorResponse{Error: "not found"})
	case errors.Is(err, repository.ErrUnknownCollection), errors.Is(err, repository.ErrInvalidFilter),
		errors.Is(err, service.ErrInvalidTransaction):
		writeJSON(w, http.StatusBadRequest, errorResponse{Error: err.Error()})
	case errors.Is(err, service.ErrBackendUnavailable):
		writeJSON(w, http.StatusServiceUnavailable, errorResponse{Error: "backend unavailable"})
	case errors.Is(err, ai.ErrGenerationFailed):
		writeJSON(w, http.StatusBadGateway, errorResponse{Error: "generation failed, try again"})
	default:
		h.logger.Error("internal error", zap.Error(err))
		writeJSON(w, http.StatusInternalServerError, errorResponse{Error: "internal error"})
	}
}

type fetchCollectionRequest struct {
	CollectionPath string            `json:"collectionPath"`
	Filters        map[string]string `json:"filters"`
}

// FetchCollection возвращает документы коллекции с учётом правил владения.
func (h *Handler) FetchCollection(w http.ResponseWriter, r *http.Request) {
	var req fetchCollectionRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeJSON(w, http.StatusBadRequest, errorResponse{Error: "invalid request body"})
		return
	}

	if !validation.IsValidCollectionPath(req.CollectionPath) {
		writeJSON(w, http.StatusBadRequest, errorResponse{Error: "invalid collection path"})
		return
	}

	identity, _ := middleware.GetIdentityFromContext(r.Context())

	docs, err := h.service.FetchCollection(r.Context(), req.CollectionPath, identity, req.Filters)
	if err != nil {
		h.writeError(w, err)
		return
	}

	writeJSON(w, http.StatusOK, docs)
}

type balanceResponse struct {
	Balance int64 `json:"balance"`
}

// GetBalance возвращает баланс VSD текущего пользователя.
func (h *Handler) GetBalance(w http.ResponseWriter, r *http.Request) {
	identity, ok := middleware.GetIdentityFromContext(r.Context())
	if !ok {
		writeJSON(w, http.StatusUnauthorized, errorResponse{Error: "please log in"})
		return
	}

	balance, err := h.service.GetBalance(r.Context(), identity.UID)
	if err != nil {
		h.writeError(w, err)
		return
	}

	writeJSON(w, http.StatusOK, balanceResponse{Balance: balance})
}

type transactionResponse struct {
	ID              string `json:"id"`
	Amount          int64  `json:"amount"`
	Type            string `json:"type"`
	Details         string `json:"details"`
	BalanceBefore   int64  `json:"balanceBefore"`
	BalanceAfter    int64  `json:"balanceAfter"`
	TransactionDate string `json:"transactionDate"`
}

func toTransactionResponse(t *model.LedgerTransaction) transactionResponse {
	return transactionResponse{
		ID:              t.ID,
		Amount:          t.Amount,
		Type:            string(t.Type),
		Details:         t.Details,
		BalanceBefore:   t.BalanceBefore,
		BalanceAfter:    t.BalanceAfter,
		TransactionDate: t.TransactionDate.Format(time.RFC3339),
	}
}

// ClaimDaily начисляет ежедневную награду текущему пользователю.
func (h *Handler) ClaimDaily(w http.ResponseWriter, r *http.Request) {
	identity, ok := middleware.GetIdentityFromContext(r.Context())
	if !ok {
		writeJSON(w, http.StatusUnauthorized, errorResponse{Error: "please log in"})
		return
	}

	rec, err := h.service.ClaimDailyTokens(r.Context(), identity.UID)
	if err != nil {
		h.writeError(w, err)
		return
	}

	writeJSON(w, http.StatusOK, toTransactionResponse(rec))
}

type withdrawRequest struct {
	Amount  int64  `json:"amount"`
	Details string `json:"details"`
}

// Withdraw списывает VSD с баланса текущего пользователя.
func (h *Handler) Withdraw(w http.ResponseWriter, r *http.Request) {
	identity, ok := middleware.GetIdentityFromContext(r.Context())
	if !ok {
		writeJSON(w, http.StatusUnauthorized, errorResponse{Error: "please log in"})
		return
	}

	var req withdrawRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeJSON(w, http.StatusBadRequest, errorResponse{Error: "invalid request body"})
		return
	}

	if req.Amount <= 0 {
		writeJSON(w, http.StatusBadRequest, errorResponse{Error: "amount must be positive"})
		return
	}

	rec, err := h.service.ApplyTransaction(r.Context(), identity.UID, -req.Amount, model.TransactionWithdrawal, req.Details)
	if err != nil {
		h.writeError(w, err)
		return
	}

	writeJSON(w, http.StatusOK, toTransactionResponse(rec))
}

// GetTransactions возвращает историю леджер-транзакций текущего пользователя.
func (h *Handler) GetTransactions(w http.ResponseWriter, r *http.Request) {
	identity, ok := middleware.GetIdentityFromContext(r.Context())
	if !ok {
		writeJSON(w, http.StatusUnauthorized, errorResponse{Error: "please log in"})
		return
	}

	transactions, err := h.service.GetTransactionsByUser(r.Context(), identity.UID)
	if err != nil {
		h.writeError(w, err)
		return
	}

	if len(transactions) == 0 {
		w.WriteHeader(http.StatusNoContent)
		return
	}

	resp := make([]transactionResponse, 0, len(transactions))
	for i := range transactions {
		resp = append(resp, toTransactionResponse(&transactions[i]))
	}

	writeJSON(w, http.StatusOK, resp)
}

type createTrackRequest struct {
	Title       string `json:"title"`
	ArtistName  string `json:"artistName"`
	Genre       string `json:"genre"`
	CoverArtURL string `json:"coverArtUrl"`
	TrackURL    string `json:"trackUrl"`
	Price       int64  `json:"price"`
}

type createdResponse struct {
	ID string `json:"id"`
}

// CreateTrack создаёт трек, принадлежащий текущему пользователю.
func (h *Handler) CreateTrack(w http.ResponseWriter, r *http.Request) {
	identity, ok := middleware.GetIdentityFromContext(r.Context())
	if !ok {
		writeJSON(w, http.StatusUnauthorized, errorResponse{Error: "please log in"})
		return
	}

	var req createTrackRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeJSON(w, http.StatusBadRequest, errorResponse{Error: "invalid request body"})
		return
	}

	if req.Title == "" {
		writeJSON(w, http.StatusBadRequest, errorResponse{Error: "title is required"})
		return
	}
	if req.Price < 0 {
		writeJSON(w, http.StatusBadRequest, errorResponse{Error: "price must not be negative"})
		return
	}

	id, err := h.service.CreateTrack(r.Context(), identity, &model.Track{
		Title:       req.Title,
		ArtistName:  req.ArtistName,
		Genre:       req.Genre,
		CoverArtURL: req.CoverArtURL,
		TrackURL:    req.TrackURL,
		Price:       req.Price,
	})
	if err != nil {
		h.writeError(w, err)
		return
	}

	writeJSON(w, http.StatusCreated, createdResponse{ID: id})
}

type createLicenseRequestRequest struct {
	TrackTitle         string `json:"trackTitle"`
	ArtistID           string `json:"artistId"`
	ArtistName         string `json:"artistName"`
	RequestorName      string `json:"requestorName"`
	RequestorEmail     string `json:"requestorEmail"`
	UsageType          string `json:"usageType"`
	ProjectDescription string `json:"projectDescription"`
}

// CreateLicenseRequest создаёт запрос на лицензирование от имени текущего пользователя.
func (h *Handler) CreateLicenseRequest(w http.ResponseWriter, r *http.Request) {
	identity, ok := middleware.GetIdentityFromContext(r.Context())
	if !ok {
		writeJSON(w, http.StatusUnauthorized, errorResponse{Error: "please log in"})
		return
	}

	var req createLicenseRequestRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeJSON(w, http.StatusBadRequest, errorResponse{Error: "invalid request body"})
		return
	}

	if req.TrackTitle == "" || req.ArtistID == "" || req.UsageType == "" {
		writeJSON(w, http.StatusBadRequest, errorResponse{Error: "trackTitle, artistId and usageType are required"})
		return
	}
	if !validation.IsValidEmail(req.RequestorEmail) {
		writeJSON(w, http.StatusBadRequest, errorResponse{Error: "invalid requestor email"})
		return
	}

	id, err := h.service.CreateLicenseRequest(r.Context(), identity, &model.LicenseRequest{
		TrackTitle:         req.TrackTitle,
		ArtistID:           req.ArtistID,
		ArtistName:         req.ArtistName,
		RequestorName:      req.RequestorName,
		RequestorEmail:     req.RequestorEmail,
		UsageType:          req.UsageType,
		ProjectDescription: req.ProjectDescription,
	})
	if err != nil {
		h.writeError(w, err)
		return
	}

	writeJSON(w, http.StatusCreated, createdResponse{ID: id})
}

type bridgeSettleRequest struct {
	TrackID  string `json:"trackId"`
	Amount   int64  `json:"amount"`
	Currency string `json:"currency"`
}

type bridgeSettleResponse struct {
	TransactionID string `json:"transactionId"`
	TrackID       string `json:"trackId"`
	Message       string `json:"message"`
}

// BridgeSettle обрабатывает внутренний мост внешнего леджера:
// зачисляет артисту выручку за трек. Требует внутренний API-ключ.
func (h *Handler) BridgeSettle(w http.ResponseWriter, r *http.Request) {
	if h.bridgeAPIKey == "" {
		h.logger.Error("bridge settlement requested but bridge API key is not configured")
		writeJSON(w, http.StatusServiceUnavailable, errorResponse{Error: "bridge is not configured"})
		return
	}

	if !hmac.Equal([]byte(r.Header.Get("Authorization")), []byte("Bearer "+h.bridgeAPIKey)) {
		writeJSON(w, http.StatusUnauthorized, errorResponse{Error: "invalid bridge credentials"})
		return
	}

	var req bridgeSettleRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeJSON(w, http.StatusBadRequest, errorResponse{Error: "invalid request body"})
		return
	}

	if req.TrackID == "" || req.Amount <= 0 || req.Currency != "VSD" {
		writeJSON(w, http.StatusBadRequest, errorResponse{Error: "trackId, positive amount and currency VSD are required"})
		return
	}

	rec, err := h.service.SettleBridge(r.Context(), req.TrackID, req.Amount)
	if err != nil {
		h.writeError(w, err)
		return
	}

	writeJSON(w, http.StatusOK, bridgeSettleResponse{
		TransactionID: rec.ID,
		TrackID:       req.TrackID,
		Message:       "settlement recorded",
	})
}

type coverArtRequest struct {
	Title       string `json:"title"`
	Genre       string `json:"genre"`
	Description string `json:"description"`
}

// GenerateCoverArt генерирует обложку трека.
func (h *Handler) GenerateCoverArt(w http.ResponseWriter, r *http.Request) {
	var req coverArtRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeJSON(w, http.StatusBadRequest, errorResponse{Error: "invalid request body"})
		return
	}

	res, err := h.service.GenerateCoverArt(r.Context(), req.Title, req.Genre, req.Description)
	if err != nil {
		h.writeError(w, err)
		return
	}

	writeJSON(w, http.StatusOK, res)
}

type priceRequest struct {
	Title string `json:"title"`
	Genre string `json:"genre"`
	Plays int64  `json:"plays"`
}

// RecommendPrice возвращает рекомендацию цены трека.
func (h *Handler) RecommendPrice(w http.ResponseWriter, r *http.Request) {
	var req priceRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeJSON(w, http.StatusBadRequest, errorResponse{Error: "invalid request body"})
		return
	}

	res, err := h.service.RecommendPrice(r.Context(), req.Title, req.Genre, req.Plays)
	if err != nil {
		h.writeError(w, err)
		return
	}

	writeJSON(w, http.StatusOK, res)
}

type legalRequest struct {
	Question string `json:"question"`
}

type legalResponse struct {
	Answer string `json:"answer"`
}

// LegalAnswer отвечает на юридический вопрос о лицензировании.
func (h *Handler) LegalAnswer(w http.ResponseWriter, r *http.Request) {
	var req legalRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil || req.Question == "" {
		writeJSON(w, http.StatusBadRequest, errorResponse{Error: "question is required"})
		return
	}

	answer, err := h.service.LegalAnswer(r.Context(), req.Question)
	if err != nil {
		h.writeError(w, err)
		return
	}

	writeJSON(w, http.StatusOK, legalResponse{Answer: answer})
}

type partnerRequest struct {
	Message string `json:"message"`
}

type partnerResponse struct {
	Reply string `json:"reply"`
}

// PartnerReply отвечает на сообщение партнёрского чата.
func (h *Handler) PartnerReply(w http.ResponseWriter, r *http.Request) {
	var req partnerRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil || req.Message == "" {
		writeJSON(w, http.StatusBadRequest, errorResponse{Error: "message is required"})
		return
	}

	reply, err := h.service.PartnerReply(r.Context(), req.Message)
	if err != nil {
		h.writeError(w, err)
		return
	}

	writeJSON(w, http.StatusOK, partnerResponse{Reply: reply})
}
