package handler

import (
	"errors"
	"io"
	"net/http"
	"time"

	"github.com/damon-houk/waybill-pricing/internal/application/service"
	"github.com/damon-houk/waybill-pricing/internal/domain/entity"
	domain "github.com/damon-houk/waybill-pricing/internal/domain/service"
	"github.com/damon-houk/waybill-pricing/internal/infrastructure/logger"
	"github.com/damon-houk/waybill-pricing/internal/infrastructure/middleware"
	"github.com/gorilla/mux"
)

// QuoteHandler manages one cost pipeline per quote session
type QuoteHandler struct {
	pricing  domain.PricingAPI
	display  service.DisplayCurrency
	opts     service.CostPipelineOptions
	sessions *sessionStore[*service.CostPipeline]
	logger   logger.Logger
}

// NewQuoteHandler creates a new quote handler. Sessions idle for longer than
// sessionTTL are closed; zero keeps them until deleted.
func NewQuoteHandler(pricing domain.PricingAPI, display service.DisplayCurrency, opts service.CostPipelineOptions, sessionTTL time.Duration, log logger.Logger) *QuoteHandler {
	if log == nil {
		log = logger.GetDefaultLogger()
	}

	return &QuoteHandler{
		pricing:  pricing,
		display:  display,
		opts:     opts,
		sessions: newSessionStore[*service.CostPipeline](sessionTTL, log),
		logger:   log,
	}
}

// CreateQuote opens a quote session, optionally with initial inputs
func (h *QuoteHandler) CreateQuote(w http.ResponseWriter, r *http.Request) {
	requestID := middleware.GetRequestID(r.Context())

	var req QuoteInputRequest
	if err := decodeBody(r, &req); err != nil && !errors.Is(err, io.EOF) {
		sendErrorResponse(w, h.logger, "Invalid request body",
			"The request body could not be parsed as valid JSON", http.StatusBadRequest, requestID)
		return
	}

	if err := validateEndpoints(entity.QuoteInput{}, req); err != nil {
		sendErrorResponse(w, h.logger, "Invalid route",
			"Origin and destination must be different cities", http.StatusBadRequest, requestID)
		return
	}

	pipeline := service.NewCostPipeline(h.pricing, h.display, h.opts, h.logger)
	id := h.sessions.add(pipeline)
	applyQuoteInput(pipeline, req)

	h.logger.Info("Quote session created", map[string]interface{}{
		"request_id": requestID,
		"id":         id,
	})

	sendJSON(w, http.StatusCreated, CreateSessionResponse{ID: id})
}

// UpdateQuote changes some of a session's inputs
func (h *QuoteHandler) UpdateQuote(w http.ResponseWriter, r *http.Request) {
	requestID := middleware.GetRequestID(r.Context())
	id := mux.Vars(r)["id"]

	pipeline, err := h.sessions.get(id)
	if err != nil {
		h.sendNotFound(w, requestID, id)
		return
	}

	var req QuoteInputRequest
	if err := decodeBody(r, &req); err != nil {
		sendErrorResponse(w, h.logger, "Invalid request body",
			"The request body could not be parsed as valid JSON", http.StatusBadRequest, requestID)
		return
	}

	if err := validateEndpoints(pipeline.Input(), req); err != nil {
		h.logger.Warn("Rejected quote route", map[string]interface{}{
			"request_id": requestID,
			"id":         id,
			"error":      err.Error(),
		})
		sendErrorResponse(w, h.logger, "Invalid route",
			"Origin and destination must be different cities", http.StatusBadRequest, requestID)
		return
	}

	applyQuoteInput(pipeline, req)

	sendJSON(w, http.StatusAccepted, h.quoteResponse(id, pipeline))
}

// GetQuote returns a session's inputs and current quote
func (h *QuoteHandler) GetQuote(w http.ResponseWriter, r *http.Request) {
	requestID := middleware.GetRequestID(r.Context())
	id := mux.Vars(r)["id"]

	pipeline, err := h.sessions.get(id)
	if err != nil {
		h.sendNotFound(w, requestID, id)
		return
	}

	sendJSON(w, http.StatusOK, h.quoteResponse(id, pipeline))
}

// DeleteQuote closes a session
func (h *QuoteHandler) DeleteQuote(w http.ResponseWriter, r *http.Request) {
	requestID := middleware.GetRequestID(r.Context())
	id := mux.Vars(r)["id"]

	if err := h.sessions.remove(id); err != nil {
		h.sendNotFound(w, requestID, id)
		return
	}

	w.WriteHeader(http.StatusNoContent)
}

// Close ends every open session
func (h *QuoteHandler) Close() {
	h.sessions.closeAll()
}

// RegisterRoutes registers the quote handler routes
func (h *QuoteHandler) RegisterRoutes(router *mux.Router) {
	router.HandleFunc("/quotes", h.CreateQuote).Methods(http.MethodPost)
	router.HandleFunc("/quotes/{id}", h.UpdateQuote).Methods(http.MethodPatch)
	router.HandleFunc("/quotes/{id}", h.GetQuote).Methods(http.MethodGet)
	router.HandleFunc("/quotes/{id}", h.DeleteQuote).Methods(http.MethodDelete)

	h.logger.Info("Quote routes registered", map[string]interface{}{
		"routes": []string{
			"POST /quotes",
			"PATCH /quotes/{id}",
			"GET /quotes/{id}",
			"DELETE /quotes/{id}",
		},
	})
}

func (h *QuoteHandler) quoteResponse(id string, pipeline *service.CostPipeline) QuoteResponse {
	resp := QuoteResponse{ID: id, Input: pipeline.Input()}
	if q, ok := pipeline.Quote(); ok {
		resp.Quote = &q
	}
	return resp
}

func (h *QuoteHandler) sendNotFound(w http.ResponseWriter, requestID, id string) {
	h.logger.Warn("Quote session not found", map[string]interface{}{
		"request_id": requestID,
		"id":         id,
	})
	sendErrorResponse(w, h.logger, "Quote not found",
		"The requested quote session could not be found", http.StatusNotFound, requestID)
}

// validateEndpoints rejects a change that would leave origin equal to destination
func validateEndpoints(current entity.QuoteInput, req QuoteInputRequest) error {
	origin, destination := current.OriginID, current.DestinationID
	if req.OriginID != nil {
		origin = *req.OriginID
	}
	if req.DestinationID != nil {
		destination = *req.DestinationID
	}
	if origin != 0 && origin == destination {
		return ErrSameEndpoints
	}
	return nil
}

func applyQuoteInput(p *service.CostPipeline, req QuoteInputRequest) {
	in := p.Input()
	if req.OriginID != nil {
		in.OriginID = *req.OriginID
	}
	if req.DestinationID != nil {
		in.DestinationID = *req.DestinationID
	}
	if req.WeightKg != nil {
		in.WeightKg = *req.WeightKg
	}
	p.SetRoute(in.OriginID, in.DestinationID, in.WeightKg)
}
