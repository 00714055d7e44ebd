package run

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/fitroom/fitroom/internal/domain"
	"github.com/fitroom/fitroom/internal/notify"
	"github.com/fitroom/fitroom/internal/settings"
	"github.com/fitroom/fitroom/internal/stylist"
)

const (
	DefaultCatalogTimeout  = 60 * time.Second
	DefaultWardrobeTimeout = 90 * time.Second

	// MaxWardrobeTopK bounds the combination count the backend is asked
	// for, independent of the configured topk.
	MaxWardrobeTopK = 15
)

// ErrRunInProgress rejects a start while the same workflow is running. The
// two workflows are independent and may run concurrently with each other.
var ErrRunInProgress = errors.New("a run is already in progress for this workflow")

// Backend is the slice of the stylist client the runner dispatches to.
type Backend interface {
	Recommend(ctx context.Context, base string, r stylist.CatalogRequest) (*stylist.CatalogResult, error)
	ComposeOutfits(ctx context.Context, base string, r stylist.WardrobeRequest) (*stylist.WardrobeResult, error)
}

// flow tracks one workflow's live run. gen and settled make stale
// completions inert: every terminal path compares its captured generation
// and gives up if another run, a timeout, or a cancel got there first.
type flow struct {
	state   State
	gen     uint64
	settled bool
	cancel  context.CancelFunc
	timer   *time.Timer
}

// Runner drives the two recommendation workflows. Each invocation issues
// exactly one backend call, bounded by a deadline, and every terminal
// transition emits exactly one notification.
type Runner struct {
	backend         Backend
	notices         *notify.Queue
	logger          *slog.Logger
	catalogTimeout  time.Duration
	wardrobeTimeout time.Duration

	mu    sync.Mutex
	flows map[Workflow]*flow
}

func NewRunner(backend Backend, notices *notify.Queue, catalogTimeout, wardrobeTimeout time.Duration, logger *slog.Logger) *Runner {
	if catalogTimeout <= 0 {
		catalogTimeout = DefaultCatalogTimeout
	}
	if wardrobeTimeout <= 0 {
		wardrobeTimeout = DefaultWardrobeTimeout
	}
	return &Runner{
		backend:         backend,
		notices:         notices,
		logger:          logger,
		catalogTimeout:  catalogTimeout,
		wardrobeTimeout: wardrobeTimeout,
		flows: map[Workflow]*flow{
			WorkflowCatalog:  {state: State{Workflow: WorkflowCatalog, Phase: PhaseIdle}},
			WorkflowWardrobe: {state: State{Workflow: WorkflowWardrobe, Phase: PhaseIdle}},
		},
	}
}

// StartCatalog dispatches a catalog recommendation run for the anchor image.
// Precondition failures settle to Failed(validation) without touching the
// network.
func (r *Runner) StartCatalog(cfg settings.Settings, anchor *domain.ImageAsset) (State, error) {
	switch {
	case anchor == nil:
		return r.failFast(WorkflowCatalog, "add an anchor photo before running")
	case len(cfg.AllowTypes) == 0:
		return r.failFast(WorkflowCatalog, "enable at least one category")
	}

	req := stylist.CatalogRequest{
		Anchor:          *anchor,
		AllowTypes:      cfg.AllowTypes,
		PerBucket:       cfg.PerBucket,
		TopK:            cfg.TopK,
		ColorWeight:     cfg.ColorWeight,
		StyleWeight:     cfg.StyleWeight,
		DiversityWeight: cfg.DiversityWeight,
		ColorMode:       string(cfg.ColorMode),
	}

	ctx, gen, st, err := r.begin(WorkflowCatalog, r.catalogTimeout)
	if err != nil {
		return State{}, err
	}

	go func() {
		res, err := r.backend.Recommend(ctx, cfg.APIBase, req)
		if err != nil {
			r.settleFailure(WorkflowCatalog, gen, err)
			return
		}
		ok := r.settle(WorkflowCatalog, gen, func(s *State) {
			s.Phase = PhaseSucceeded
			s.Catalog = res
		})
		if !ok {
			r.logger.Debug("discarding stale catalog result")
			return
		}
		r.notices.Push(notify.SeverityOK, "catalog run finished",
			fmt.Sprintf("%d matching items", len(res.Items)))
	}()

	return st, nil
}

// StartWardrobe dispatches an outfit composition run over the collection
// snapshot. The requested result count is silently clamped to
// MaxWardrobeTopK.
func (r *Runner) StartWardrobe(cfg settings.Settings, items map[domain.Category][]domain.ImageAsset) (State, error) {
	total, categories := 0, 0
	for _, seq := range items {
		total += len(seq)
		if len(seq) > 0 {
			categories++
		}
	}
	switch {
	case total < 2:
		return r.failFast(WorkflowWardrobe, "add at least two wardrobe items")
	case categories < 2:
		return r.failFast(WorkflowWardrobe, "add items from at least two categories")
	}

	topk := cfg.TopK
	if topk > MaxWardrobeTopK {
		topk = MaxWardrobeTopK
	}
	if topk < 1 {
		topk = 1
	}
	req := stylist.WardrobeRequest{Items: items, TopK: topk}

	ctx, gen, st, err := r.begin(WorkflowWardrobe, r.wardrobeTimeout)
	if err != nil {
		return State{}, err
	}

	go func() {
		res, err := r.backend.ComposeOutfits(ctx, cfg.APIBase, req)
		if err != nil {
			r.settleFailure(WorkflowWardrobe, gen, err)
			return
		}
		ok := r.settle(WorkflowWardrobe, gen, func(s *State) {
			s.Phase = PhaseSucceeded
			s.Wardrobe = res
		})
		if !ok {
			r.logger.Debug("discarding stale wardrobe result")
			return
		}
		r.notices.Push(notify.SeverityOK, "wardrobe run finished",
			fmt.Sprintf("%d outfit suggestions", len(res.Items)))
	}()

	return st, nil
}

// State returns the current state of one workflow.
func (r *Runner) State(wf Workflow) State {
	r.mu.Lock()
	defer r.mu.Unlock()
	f, ok := r.flows[wf]
	if !ok {
		return State{}
	}
	return f.state
}

// States returns both workflow states keyed by workflow.
func (r *Runner) States() map[Workflow]State {
	r.mu.Lock()
	defer r.mu.Unlock()
	out := make(map[Workflow]State, len(r.flows))
	for wf, f := range r.flows {
		out[wf] = f.state
	}
	return out
}

// Cancel aborts the workflow's in-flight run and returns it to idle. A
// user-initiated abort emits no notification; the eventual completion of the
// aborted call is discarded.
func (r *Runner) Cancel(wf Workflow) bool {
	r.mu.Lock()
	defer r.mu.Unlock()
	f, ok := r.flows[wf]
	if !ok || f.state.Phase != PhaseRunning || f.settled {
		return false
	}
	f.settled = true
	r.stopLocked(f)
	f.state = State{Workflow: wf, Phase: PhaseIdle}
	return true
}

// Close aborts any in-flight runs. Safe to call more than once.
func (r *Runner) Close() {
	r.Cancel(WorkflowCatalog)
	r.Cancel(WorkflowWardrobe)
}

// begin transitions the workflow to Running, arms the deadline timer, and
// hands back the dispatch context plus the run's generation. Prior results
// and errors are discarded here so a stale display never coexists with a
// fresh run.
func (r *Runner) begin(wf Workflow, timeout time.Duration) (context.Context, uint64, State, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	f := r.flows[wf]
	if f.state.Phase == PhaseRunning {
		return nil, 0, State{}, ErrRunInProgress
	}

	f.gen++
	f.settled = false
	gen := f.gen

	ctx, cancel := context.WithCancel(context.Background())
	f.cancel = cancel

	now := time.Now()
	f.state = State{
		Workflow:  wf,
		Phase:     PhaseRunning,
		StartedAt: now,
		Deadline:  now.Add(timeout),
	}
	f.timer = time.AfterFunc(timeout, func() { r.timeoutRun(wf, gen) })

	r.logger.Info("run dispatched", "workflow", wf, "deadline", timeout)
	return ctx, gen, f.state, nil
}

// failFast settles a precondition failure synchronously: no generation is
// consumed and no network call happens.
func (r *Runner) failFast(wf Workflow, message string) (State, error) {
	r.mu.Lock()
	f := r.flows[wf]
	if f.state.Phase == PhaseRunning {
		r.mu.Unlock()
		return State{}, ErrRunInProgress
	}
	f.state = State{
		Workflow: wf,
		Phase:    PhaseFailed,
		Err:      &RunError{Kind: FailValidation, Message: message},
	}
	st := f.state
	r.mu.Unlock()

	r.logger.Info("run rejected", "workflow", wf, "reason", message)
	r.notices.Push(notify.SeverityError, string(wf)+" run not started", message)
	return st, nil
}

// settle applies a terminal transition if the run identified by gen is still
// the live one. Exactly one settle wins per run.
func (r *Runner) settle(wf Workflow, gen uint64, mutate func(*State)) bool {
	r.mu.Lock()
	defer r.mu.Unlock()

	f := r.flows[wf]
	if f.gen != gen || f.settled {
		return false
	}
	f.settled = true
	r.stopLocked(f)

	f.state.Catalog = nil
	f.state.Wardrobe = nil
	f.state.Err = nil
	mutate(&f.state)
	return true
}

func (r *Runner) stopLocked(f *flow) {
	if f.timer != nil {
		f.timer.Stop()
		f.timer = nil
	}
	if f.cancel != nil {
		f.cancel()
		f.cancel = nil
	}
}

func (r *Runner) timeoutRun(wf Workflow, gen uint64) {
	ok := r.settle(wf, gen, func(s *State) {
		s.Phase = PhaseFailed
		s.Err = &RunError{Kind: FailTimeout, Message: "request timed out"}
	})
	if !ok {
		return
	}
	r.logger.Warn("run deadline exceeded", "workflow", wf)
	r.notices.Push(notify.SeverityError, string(wf)+" run failed", "request timed out, try again")
}

func (r *Runner) settleFailure(wf Workflow, gen uint64, err error) {
	runErr := classify(err)
	ok := r.settle(wf, gen, func(s *State) {
		s.Phase = PhaseFailed
		s.Err = runErr
	})
	if !ok {
		r.logger.Debug("discarding stale run failure", "workflow", wf, "error", err)
		return
	}
	r.logger.Error("run failed", "workflow", wf, "kind", runErr.Kind, "error", err)
	r.notices.Push(notify.SeverityError, string(wf)+" run failed", runErr.Message)
}

// classify maps a dispatch error onto the failure taxonomy. Timeouts never
// reach here; the deadline timer settles first and the late error is
// discarded.
func classify(err error) *RunError {
	var statusErr *stylist.StatusError
	if errors.As(err, &statusErr) {
		return &RunError{
			Kind:    FailServer,
			Status:  statusErr.Code,
			Message: fmt.Sprintf("backend error (status %d): %s", statusErr.Code, statusErr.Body),
		}
	}
	var decodeErr *stylist.DecodeError
	if errors.As(err, &decodeErr) {
		return &RunError{
			Kind:    FailServer,
			Message: "backend sent an unreadable response",
		}
	}
	return &RunError{
		Kind:    FailUnreachable,
		Message: "backend unreachable, check that the recommendation service is running",
	}
}
