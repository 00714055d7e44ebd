package web

import (
	"errors"
	"net/http"

	"github.com/fitroom/fitroom/internal/domain"
	"github.com/fitroom/fitroom/internal/run"
)

func (s *Server) handleRunCatalog(w http.ResponseWriter, r *http.Request) {
	var anchor *domain.ImageAsset
	if garment, ok := s.anchor.Get(); ok {
		anchor = &garment.Asset
	}

	st, err := s.runner.StartCatalog(s.settings.Current(), anchor)
	s.writeRunResponse(w, st, err)
}

func (s *Server) handleRunWardrobe(w http.ResponseWriter, r *http.Request) {
	st, err := s.runner.StartWardrobe(s.settings.Current(), s.collection.Snapshot())
	s.writeRunResponse(w, st, err)
}

func (s *Server) handleCancelRun(w http.ResponseWriter, r *http.Request) {
	wf, ok := parseWorkflow(r.PathValue("workflow"))
	if !ok {
		s.writeError(w, "unknown workflow", http.StatusBadRequest)
		return
	}
	cancelled := s.runner.Cancel(wf)
	s.writeJSON(w, map[string]bool{"cancelled": cancelled})
}

func parseWorkflow(raw string) (run.Workflow, bool) {
	switch run.Workflow(raw) {
	case run.WorkflowCatalog:
		return run.WorkflowCatalog, true
	case run.WorkflowWardrobe:
		return run.WorkflowWardrobe, true
	}
	return "", false
}

// writeRunResponse maps start outcomes onto HTTP: a dispatched run is 202, a
// precondition failure settles synchronously and comes back 200 with the
// failed state, and a start while one is in flight is 409.
func (s *Server) writeRunResponse(w http.ResponseWriter, st run.State, err error) {
	if errors.Is(err, run.ErrRunInProgress) {
		s.writeError(w, err.Error(), http.StatusConflict)
		return
	}
	if err != nil {
		s.writeError(w, "failed to start run", http.StatusInternalServerError)
		return
	}
	status := http.StatusOK
	if st.Phase == run.PhaseRunning {
		status = http.StatusAccepted
	}
	s.writeJSONStatus(w, status, st)
}
