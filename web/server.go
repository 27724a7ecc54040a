// ABOUTME: Read-only JSON server over the pipeline view model
// ABOUTME: Serves board, metrics, and filtered record sets at localhost
package web

import (
	"encoding/json"
	"fmt"
	"net/http"
	"strconv"

	"github.com/sirupsen/logrus"

	"github.com/breakhq/outreach/pipeline"
)

type Server struct {
	engine *pipeline.Engine
	log    *logrus.Logger
}

func NewServer(engine *pipeline.Engine, log *logrus.Logger) *Server {
	if log == nil {
		log = logrus.New()
	}
	return &Server{engine: engine, log: log}
}

// Handler returns the route table. Split out from Start for tests.
func (s *Server) Handler() http.Handler {
	mux := http.NewServeMux()
	mux.HandleFunc("/api/board", s.handleBoard)
	mux.HandleFunc("/api/metrics", s.handleMetrics)
	mux.HandleFunc("/api/records", s.handleRecords)
	mux.HandleFunc("/api/opportunities", s.handleOpportunities)
	mux.HandleFunc("/api/deals", s.handleDeals)
	mux.HandleFunc("/api/campaigns", s.handleCampaigns)
	mux.HandleFunc("/api/notes", s.handleNotes)
	mux.HandleFunc("/api/tasks", s.handleTasks)
	return mux
}

func (s *Server) Start(port int) error {
	addr := fmt.Sprintf(":%d", port)
	s.log.WithField("addr", addr).Info("starting pipeline server")
	return http.ListenAndServe(addr, s.Handler())
}

func (s *Server) handleBoard(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, map[string]interface{}{"board": s.engine.Board(filtersFrom(r))})
}

func (s *Server) handleMetrics(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, map[string]interface{}{"metrics": s.engine.MetricsFor(filtersFrom(r))})
}

func (s *Server) handleRecords(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, map[string]interface{}{"records": s.engine.VisibleRecords(filtersFrom(r))})
}

func (s *Server) handleOpportunities(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, map[string]interface{}{"opportunities": s.engine.VisibleOpportunities(filtersFrom(r))})
}

func (s *Server) handleDeals(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, map[string]interface{}{"deals": s.engine.VisibleDeals(filtersFrom(r))})
}

func (s *Server) handleCampaigns(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, map[string]interface{}{"campaigns": s.engine.Campaigns().Campaigns()})
}

func (s *Server) handleNotes(w http.ResponseWriter, r *http.Request) {
	entityType := r.URL.Query().Get("entityType")
	entityID := r.URL.Query().Get("entityId")
	led := s.engine.Ledger()
	if entityType != "" && entityID != "" {
		writeJSON(w, map[string]interface{}{"notes": led.NotesFor(entityType, entityID)})
		return
	}
	writeJSON(w, map[string]interface{}{"notes": led.Notes()})
}

func (s *Server) handleTasks(w http.ResponseWriter, r *http.Request) {
	entityType := r.URL.Query().Get("entityType")
	entityID := r.URL.Query().Get("entityId")
	led := s.engine.Ledger()
	if entityType != "" && entityID != "" {
		writeJSON(w, map[string]interface{}{"tasks": led.TasksFor(entityType, entityID)})
		return
	}
	writeJSON(w, map[string]interface{}{"tasks": led.Tasks()})
}

func filtersFrom(r *http.Request) pipeline.Filters {
	q := r.URL.Query()
	f := pipeline.Filters{
		Owner:        q.Get("owner"),
		ShowArchived: q.Get("archived") == "true",
	}
	if raw := q.Get("range"); raw != "" && raw != "all" {
		if days, err := strconv.Atoi(raw); err == nil {
			f.RangeDays = days
		}
	}
	return f
}

func writeJSON(w http.ResponseWriter, payload interface{}) {
	w.Header().Set("Content-Type", "application/json")
	if err := json.NewEncoder(w).Encode(payload); err != nil {
		http.Error(w, err.Error(), http.StatusInternalServerError)
	}
}
