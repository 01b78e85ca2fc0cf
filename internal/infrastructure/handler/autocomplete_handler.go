package handler

import (
	"net/http"
	"time"

	"github.com/damon-houk/waybill-pricing/internal/application/service"
	"github.com/damon-houk/waybill-pricing/internal/domain/entity"
	domain "github.com/damon-houk/waybill-pricing/internal/domain/service"
	"github.com/damon-houk/waybill-pricing/internal/infrastructure/logger"
	"github.com/damon-houk/waybill-pricing/internal/infrastructure/middleware"
	"github.com/gorilla/mux"
)

// AutocompleteHandler manages one search debouncer per autocomplete box
type AutocompleteHandler struct {
	api      domain.SearchAPI
	debounce time.Duration
	sessions *sessionStore[*service.SearchDebouncer]
	logger   logger.Logger
}

// NewAutocompleteHandler creates a new autocomplete handler
func NewAutocompleteHandler(api domain.SearchAPI, debounce, sessionTTL time.Duration, log logger.Logger) *AutocompleteHandler {
	if log == nil {
		log = logger.GetDefaultLogger()
	}

	return &AutocompleteHandler{
		api:      api,
		debounce: debounce,
		sessions: newSessionStore[*service.SearchDebouncer](sessionTTL, log),
		logger:   log,
	}
}

// CreateSession opens an autocomplete session for clients or cities
func (h *AutocompleteHandler) CreateSession(w http.ResponseWriter, r *http.Request) {
	requestID := middleware.GetRequestID(r.Context())

	kind, err := entity.ParseSearchKind(mux.Vars(r)["kind"])
	if err != nil {
		sendErrorResponse(w, h.logger, "Unsupported search kind",
			err.Error(), http.StatusBadRequest, requestID)
		return
	}

	id := h.sessions.add(service.NewSearchDebouncer(kind, h.api, h.debounce, h.logger))

	h.logger.Info("Autocomplete session created", map[string]interface{}{
		"request_id": requestID,
		"id":         id,
		"kind":       string(kind),
	})

	sendJSON(w, http.StatusCreated, CreateSessionResponse{ID: id, Kind: string(kind)})
}

// Input feeds the current text of the search box
func (h *AutocompleteHandler) Input(w http.ResponseWriter, r *http.Request) {
	requestID := middleware.GetRequestID(r.Context())
	id := mux.Vars(r)["id"]

	search, err := h.sessions.get(id)
	if err != nil {
		h.sendNotFound(w, requestID, id)
		return
	}

	var req SearchInputRequest
	if err := decodeBody(r, &req); err != nil {
		sendErrorResponse(w, h.logger, "Invalid request body",
			"The request body could not be parsed as valid JSON", http.StatusBadRequest, requestID)
		return
	}

	search.Input(req.Text)

	sendJSON(w, http.StatusAccepted, autocompleteResponse(id, search, search.State()))
}

// Navigate applies a keyboard key to the result list
func (h *AutocompleteHandler) Navigate(w http.ResponseWriter, r *http.Request) {
	requestID := middleware.GetRequestID(r.Context())
	id := mux.Vars(r)["id"]

	search, err := h.sessions.get(id)
	if err != nil {
		h.sendNotFound(w, requestID, id)
		return
	}

	var req NavKeyRequest
	if err := decodeBody(r, &req); err != nil {
		sendErrorResponse(w, h.logger, "Invalid request body",
			"The request body could not be parsed as valid JSON", http.StatusBadRequest, requestID)
		return
	}

	switch req.Key {
	case entity.KeyUp, entity.KeyDown, entity.KeyEnter, entity.KeyEscape:
	default:
		sendErrorResponse(w, h.logger, "Unsupported key",
			"Key must be one of up, down, enter, escape", http.StatusBadRequest, requestID)
		return
	}

	sendJSON(w, http.StatusOK, autocompleteResponse(id, search, search.Navigate(req.Key)))
}

// GetSession returns the visible list state
func (h *AutocompleteHandler) GetSession(w http.ResponseWriter, r *http.Request) {
	requestID := middleware.GetRequestID(r.Context())
	id := mux.Vars(r)["id"]

	search, err := h.sessions.get(id)
	if err != nil {
		h.sendNotFound(w, requestID, id)
		return
	}

	sendJSON(w, http.StatusOK, autocompleteResponse(id, search, search.State()))
}

// DeleteSession closes an autocomplete session
func (h *AutocompleteHandler) DeleteSession(w http.ResponseWriter, r *http.Request) {
	requestID := middleware.GetRequestID(r.Context())
	id := mux.Vars(r)["id"]

	if err := h.sessions.remove(id); err != nil {
		h.sendNotFound(w, requestID, id)
		return
	}

	w.WriteHeader(http.StatusNoContent)
}

// Close ends every open session
func (h *AutocompleteHandler) Close() {
	h.sessions.closeAll()
}

// RegisterRoutes registers the autocomplete handler routes
func (h *AutocompleteHandler) RegisterRoutes(router *mux.Router) {
	router.HandleFunc("/autocomplete/{kind}", h.CreateSession).Methods(http.MethodPost)
	router.HandleFunc("/autocomplete/{id}/input", h.Input).Methods(http.MethodPut)
	router.HandleFunc("/autocomplete/{id}/keys", h.Navigate).Methods(http.MethodPost)
	router.HandleFunc("/autocomplete/{id}", h.GetSession).Methods(http.MethodGet)
	router.HandleFunc("/autocomplete/{id}", h.DeleteSession).Methods(http.MethodDelete)

	h.logger.Info("Autocomplete routes registered", map[string]interface{}{
		"routes": []string{
			"POST /autocomplete/{kind}",
			"PUT /autocomplete/{id}/input",
			"POST /autocomplete/{id}/keys",
			"GET /autocomplete/{id}",
			"DELETE /autocomplete/{id}",
		},
	})
}

func (h *AutocompleteHandler) sendNotFound(w http.ResponseWriter, requestID, id string) {
	h.logger.Warn("Autocomplete session not found", map[string]interface{}{
		"request_id": requestID,
		"id":         id,
	})
	sendErrorResponse(w, h.logger, "Autocomplete session not found",
		"The requested autocomplete session could not be found", http.StatusNotFound, requestID)
}

func autocompleteResponse(id string, search *service.SearchDebouncer, state entity.NavState) AutocompleteResponse {
	return AutocompleteResponse{ID: id, Kind: search.Kind(), NavState: state}
}
