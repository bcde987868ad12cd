package api

import (
	"encoding/json"
	"errors"
	"io"
	"net/http"
	"strconv"
	"strings"

	"github.com/hochfrequenz/vacancy-verifier/internal/domain"
	"github.com/hochfrequenz/vacancy-verifier/internal/engine"
	"github.com/hochfrequenz/vacancy-verifier/internal/extract"
	"github.com/hochfrequenz/vacancy-verifier/internal/resultstore"
	"github.com/hochfrequenz/vacancy-verifier/internal/telemetry"
)

// StatusResponse is the API response for overall status
type StatusResponse struct {
	Running   bool               `json:"running"`
	State     engine.State       `json:"state"`
	Snapshot  telemetry.Snapshot `json:"snapshot"`
	LastRun   *domain.RunSummary `json:"lastRun,omitempty"`
	Observers int                `json:"observers"`
	Dropped   int64              `json:"droppedMessages"`
}

// SiteResponse is a site without its credential
type SiteResponse struct {
	Name          string `json:"name"`
	URL           string `json:"url"`
	Authenticated bool   `json:"authenticated"`
	Username      string `json:"username,omitempty"`
}

// ExtractResponse is the API response for a document extraction
type ExtractResponse struct {
	Properties []*domain.PropertyTask `json:"properties"`
}

// RunAcceptedResponse lists the tasks of a started run as they were accepted
type RunAcceptedResponse struct {
	Properties []domain.PropertyTask `json:"properties"`
}

func (s *Server) statusHandler() http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		if r.Method != http.MethodGet {
			writeError(w, http.StatusMethodNotAllowed, "method not allowed")
			return
		}

		snapshot := s.channel.Snapshot()
		// screenshots are streamed, not polled
		snapshot.Screenshot = ""
		resp := StatusResponse{
			Running:   s.engine.Running(),
			State:     s.engine.State(),
			Snapshot:  snapshot,
			Observers: s.observers.Count(),
			Dropped:   s.channel.Dropped(),
		}
		if last, ok := s.engine.LastSummary(); ok {
			resp.LastRun = &last
		}
		writeJSON(w, resp)
	}
}

func (s *Server) listVerdictsHandler() http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		if r.Method != http.MethodGet {
			writeError(w, http.StatusMethodNotAllowed, "method not allowed")
			return
		}

		q := r.URL.Query()
		opts := resultstore.ListOptions{
			Status:   domain.FinalStatus(q.Get("status")),
			Property: q.Get("property"),
		}
		if limit := q.Get("limit"); limit != "" {
			n, err := strconv.Atoi(limit)
			if err != nil || n < 0 {
				writeError(w, http.StatusBadRequest, "invalid limit")
				return
			}
			opts.Limit = n
		}

		verdicts, err := s.results.ListVerdicts(r.Context(), opts)
		if err != nil {
			writeError(w, http.StatusInternalServerError, err.Error())
			return
		}
		if verdicts == nil {
			verdicts = []resultstore.StoredVerdict{}
		}
		writeJSON(w, verdicts)
	}
}

func (s *Server) getVerdictHandler() http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		if r.Method != http.MethodGet {
			writeError(w, http.StatusMethodNotAllowed, "method not allowed")
			return
		}

		id := strings.TrimPrefix(r.URL.Path, "/api/verdicts/")
		if id == "" || strings.Contains(id, "/") {
			writeError(w, http.StatusNotFound, "verdict not found")
			return
		}

		verdict, err := s.results.GetVerdict(r.Context(), id)
		if errors.Is(err, resultstore.ErrNotFound) {
			writeError(w, http.StatusNotFound, "verdict not found")
			return
		}
		if err != nil {
			writeError(w, http.StatusInternalServerError, err.Error())
			return
		}
		writeJSON(w, verdict)
	}
}

// runsHandler lists past runs (GET) or starts a run from a task list (POST)
func (s *Server) runsHandler() http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		switch r.Method {
		case http.MethodGet:
			limit, _ := strconv.Atoi(r.URL.Query().Get("limit"))
			runs, err := s.results.ListRuns(r.Context(), limit)
			if err != nil {
				writeError(w, http.StatusInternalServerError, err.Error())
				return
			}
			if runs == nil {
				runs = []domain.RunSummary{}
			}
			writeJSON(w, runs)

		case http.MethodPost:
			body, err := io.ReadAll(io.LimitReader(r.Body, maxDocumentSize))
			if err != nil {
				writeError(w, http.StatusBadRequest, err.Error())
				return
			}
			tasks, err := extract.ParseTasks(body, ".json")
			if err != nil {
				writeError(w, http.StatusBadRequest, err.Error())
				return
			}
			// the engine owns the tasks once started
			accepted := make([]domain.PropertyTask, len(tasks))
			for i, t := range tasks {
				accepted[i] = *t
			}
			if err := s.StartVerification(tasks); err != nil {
				if errors.Is(err, engine.ErrRunActive) {
					writeError(w, http.StatusConflict, err.Error())
					return
				}
				writeError(w, http.StatusInternalServerError, err.Error())
				return
			}
			w.Header().Set("Content-Type", "application/json")
			w.WriteHeader(http.StatusAccepted)
			json.NewEncoder(w).Encode(RunAcceptedResponse{Properties: accepted})

		default:
			writeError(w, http.StatusMethodNotAllowed, "method not allowed")
		}
	}
}

func (s *Server) stopRunHandler() http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		if r.Method != http.MethodPost {
			writeError(w, http.StatusMethodNotAllowed, "method not allowed")
			return
		}
		writeJSON(w, map[string]bool{"stopping": s.StopVerification()})
	}
}

func (s *Server) sitesHandler() http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		if r.Method != http.MethodGet {
			writeError(w, http.StatusMethodNotAllowed, "method not allowed")
			return
		}

		sites := s.sites.Sites()
		resp := make([]SiteResponse, 0, len(sites))
		for _, site := range sites {
			sr := SiteResponse{Name: site.Name, URL: site.URL, Authenticated: site.Authenticated()}
			if site.Credential != nil {
				sr.Username = site.Credential.Username
			}
			resp = append(resp, sr)
		}
		writeJSON(w, resp)
	}
}

// extractHandler turns an uploaded document into pending tasks. The body
// is the raw document.
func (s *Server) extractHandler() http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		if r.Method != http.MethodPost {
			writeError(w, http.StatusMethodNotAllowed, "method not allowed")
			return
		}
		if s.extractor == nil {
			writeError(w, http.StatusServiceUnavailable, "extraction not configured")
			return
		}

		doc, err := io.ReadAll(io.LimitReader(r.Body, maxDocumentSize+1))
		if err != nil {
			writeError(w, http.StatusBadRequest, err.Error())
			return
		}
		if len(doc) > maxDocumentSize {
			writeError(w, http.StatusRequestEntityTooLarge, "document too large")
			return
		}
		if len(doc) == 0 {
			writeError(w, http.StatusBadRequest, "empty document")
			return
		}

		records, err := s.extractor.Extract(r.Context(), doc)
		if err != nil {
			writeError(w, http.StatusBadGateway, err.Error())
			return
		}
		writeJSON(w, ExtractResponse{Properties: extract.ToTasks(records)})
	}
}
