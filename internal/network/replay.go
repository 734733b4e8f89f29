package network

import (
	"errors"
	"net/http"
	"strconv"
	"time"

	"github.com/MRamiBalles/CaidaLibre/internal/infra/storage"
	"github.com/MRamiBalles/CaidaLibre/internal/platform/logger"
)

// ReplayHandler serves the flight book and the persisted event history.
type ReplayHandler struct {
	flights       storage.FlightRepository
	events        storage.EventRepository
	reconstructor *storage.Reconstructor
	logger        *logger.Logger
}

// NewReplayHandler creates a new replay handler.
func NewReplayHandler(flights storage.FlightRepository, evts storage.EventRepository, log *logger.Logger) *ReplayHandler {
	if log == nil {
		log = logger.Discard()
	}
	return &ReplayHandler{
		flights:       flights,
		events:        evts,
		reconstructor: storage.NewReconstructor(evts),
		logger:        log,
	}
}

// ReplayResponse is the API response for an event history.
type ReplayResponse struct {
	SessionID   string                `json:"session_id"`
	TotalEvents int                   `json:"total_events"`
	FilteredBy  string                `json:"filtered_by,omitempty"`
	GeneratedAt string                `json:"generated_at"`
	Events      []storage.EventRecord `json:"events"`
}

// HandleFlights lists recent flights.
// GET /api/flights?limit=N
func (rh *ReplayHandler) HandleFlights(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		jsonError(w, "Method not allowed", http.StatusMethodNotAllowed)
		return
	}

	limit := 0
	if s := r.URL.Query().Get("limit"); s != "" {
		n, err := strconv.Atoi(s)
		if err != nil || n <= 0 {
			jsonError(w, "limit must be a positive integer", http.StatusBadRequest)
			return
		}
		limit = n
	}

	flights, err := rh.flights.List(r.Context(), limit)
	if err != nil {
		rh.logger.Errorf("list flights: %v", err)
		jsonError(w, "Failed to list flights", http.StatusInternalServerError)
		return
	}
	if flights == nil {
		flights = []storage.Flight{}
	}
	jsonSuccess(w, map[string]interface{}{
		"total":   len(flights),
		"flights": flights,
	})
}

// HandleFlight returns one flight.
// GET /api/flights/{id}
func (rh *ReplayHandler) HandleFlight(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		jsonError(w, "Method not allowed", http.StatusMethodNotAllowed)
		return
	}
	f, err := rh.flights.Get(r.Context(), r.PathValue("id"))
	if err != nil {
		rh.storageError(w, err)
		return
	}
	jsonSuccess(w, f)
}

// HandleEvents returns the stored events of a flight in publish order.
// GET /api/flights/{id}/events?type=LANDING
func (rh *ReplayHandler) HandleEvents(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		jsonError(w, "Method not allowed", http.StatusMethodNotAllowed)
		return
	}

	sessionID := r.PathValue("id")
	eventType := r.URL.Query().Get("type")

	var (
		evts []storage.EventRecord
		err  error
	)
	if eventType != "" {
		evts, err = rh.events.GetByEventType(r.Context(), sessionID, eventType)
	} else {
		evts, err = rh.events.GetBySession(r.Context(), sessionID)
	}
	if err != nil {
		rh.storageError(w, err)
		return
	}
	if evts == nil {
		evts = []storage.EventRecord{}
	}

	filterDesc := ""
	if eventType != "" {
		filterDesc = "type " + eventType
	}
	rh.logger.Event("REPLAY", sessionID, "events:"+strconv.Itoa(len(evts)))
	jsonSuccess(w, ReplayResponse{
		SessionID:   sessionID,
		TotalEvents: len(evts),
		FilteredBy:  filterDesc,
		GeneratedAt: time.Now().Format(time.RFC3339),
		Events:      evts,
	})
}

// HandleRecap returns the readable story of a flight and its rebuilt state.
// GET /api/flights/{id}/recap
func (rh *ReplayHandler) HandleRecap(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		jsonError(w, "Method not allowed", http.StatusMethodNotAllowed)
		return
	}

	sessionID := r.PathValue("id")
	rebuilt, err := rh.reconstructor.RebuildFlight(r.Context(), sessionID)
	if err != nil {
		rh.storageError(w, err)
		return
	}
	recap, err := rh.reconstructor.GenerateRecap(r.Context(), sessionID)
	if err != nil {
		rh.storageError(w, err)
		return
	}
	jsonSuccess(w, map[string]interface{}{
		"flight": rebuilt,
		"recap":  recap,
	})
}

// RegisterRoutes sets up the replay API routes.
func (rh *ReplayHandler) RegisterRoutes(mux *http.ServeMux) {
	mux.HandleFunc("/api/flights", rh.HandleFlights)
	mux.HandleFunc("/api/flights/{id}", rh.HandleFlight)
	mux.HandleFunc("/api/flights/{id}/events", rh.HandleEvents)
	mux.HandleFunc("/api/flights/{id}/recap", rh.HandleRecap)
}

func (rh *ReplayHandler) storageError(w http.ResponseWriter, err error) {
	if errors.Is(err, storage.ErrFlightNotFound) {
		jsonError(w, "Flight not found", http.StatusNotFound)
		return
	}
	rh.logger.Errorf("replay: %v", err)
	jsonError(w, "Storage error", http.StatusInternalServerError)
}
