package network

import (
	"encoding/json"
	"net/http"
	"time"

	"github.com/MRamiBalles/CaidaLibre/internal/engine"
	"github.com/MRamiBalles/CaidaLibre/internal/infra/records"
	"github.com/MRamiBalles/CaidaLibre/internal/platform/logger"
)

// FlightAPI is the REST surface of the live flight.
type FlightAPI struct {
	engine *engine.Engine
	hub    *Hub
	book   *records.Book
	logger *logger.Logger
}

// NewFlightAPI creates the handler set. hub and book may be nil.
func NewFlightAPI(eng *engine.Engine, hub *Hub, book *records.Book, log *logger.Logger) *FlightAPI {
	if log == nil {
		log = logger.Discard()
	}
	return &FlightAPI{engine: eng, hub: hub, book: book, logger: log}
}

// HandleState returns the latest simulation snapshot.
// GET /api/state
func (a *FlightAPI) HandleState(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		jsonError(w, "Method not allowed", http.StatusMethodNotAllowed)
		return
	}
	jsonSuccess(w, a.engine.State())
}

// HandleForces returns the force balance of the last tick.
// GET /api/forces
func (a *FlightAPI) HandleForces(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		jsonError(w, "Method not allowed", http.StatusMethodNotAllowed)
		return
	}
	jsonSuccess(w, a.engine.Forces())
}

// HandleCommand queues a command for the next tick.
// POST /api/command {"type":"POP","value":0.5}
func (a *FlightAPI) HandleCommand(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		jsonError(w, "Method not allowed", http.StatusMethodNotAllowed)
		return
	}

	var cmd engine.Command
	if err := json.NewDecoder(r.Body).Decode(&cmd); err != nil {
		jsonError(w, "Invalid request body", http.StatusBadRequest)
		return
	}
	if err := cmd.Validate(); err != nil {
		jsonError(w, err.Error(), http.StatusBadRequest)
		return
	}
	if !a.engine.Submit(cmd) {
		jsonError(w, "Command queue full", http.StatusServiceUnavailable)
		return
	}

	a.logger.Event("API_COMMAND", "REST", string(cmd.Type))
	jsonStatus(w, http.StatusAccepted, map[string]interface{}{
		"accepted": true,
		"command":  cmd,
	})
}

// HandleOutcome returns the classified landing of the current flight.
// GET /api/outcome
func (a *FlightAPI) HandleOutcome(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		jsonError(w, "Method not allowed", http.StatusMethodNotAllowed)
		return
	}
	outcome, ok := a.engine.Outcome()
	if !ok {
		jsonError(w, "No landing yet", http.StatusNotFound)
		return
	}
	jsonSuccess(w, outcome)
}

// HandleStatus summarises the server for dashboards.
// GET /api/status
func (a *FlightAPI) HandleStatus(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		jsonError(w, "Method not allowed", http.StatusMethodNotAllowed)
		return
	}

	st := a.engine.State()
	clients := 0
	if a.hub != nil {
		clients = a.hub.ClientCount()
	}
	jsonSuccess(w, map[string]interface{}{
		"session_id":   st.SessionID,
		"pilot":        a.engine.Pilot().Name(),
		"simulating":   st.IsSimulating,
		"landed":       st.HasLanded,
		"online_count": clients,
		"timestamp":    time.Now().Unix(),
	})
}

// HandleRecords returns the record book, or one pilot with ?pilot=name.
// GET /api/records
func (a *FlightAPI) HandleRecords(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		jsonError(w, "Method not allowed", http.StatusMethodNotAllowed)
		return
	}
	if a.book == nil {
		jsonError(w, "Record book disabled", http.StatusNotFound)
		return
	}

	if pilot := r.URL.Query().Get("pilot"); pilot != "" {
		rec, ok := a.book.Get(pilot)
		if !ok {
			jsonError(w, "No record for "+pilot, http.StatusNotFound)
			return
		}
		jsonSuccess(w, rec)
		return
	}
	jsonSuccess(w, map[string]interface{}{
		"persistent": a.book.Persistent(),
		"pilots":     a.book.All(),
	})
}

// RegisterRoutes sets up the flight API routes.
func (a *FlightAPI) RegisterRoutes(mux *http.ServeMux) {
	mux.HandleFunc("/api/state", a.HandleState)
	mux.HandleFunc("/api/forces", a.HandleForces)
	mux.HandleFunc("/api/command", a.HandleCommand)
	mux.HandleFunc("/api/outcome", a.HandleOutcome)
	mux.HandleFunc("/api/status", a.HandleStatus)
	mux.HandleFunc("/api/records", a.HandleRecords)
}

// jsonError sends an error response.
func jsonError(w http.ResponseWriter, message string, status int) {
	jsonStatus(w, status, map[string]string{"error": message})
}

// jsonSuccess sends a success response.
func jsonSuccess(w http.ResponseWriter, data interface{}) {
	jsonStatus(w, http.StatusOK, data)
}

func jsonStatus(w http.ResponseWriter, status int, data interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(data)
}
