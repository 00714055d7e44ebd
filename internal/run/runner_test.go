package run

import (
	"context"
	"errors"
	"io"
	"log/slog"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/fitroom/fitroom/internal/domain"
	"github.com/fitroom/fitroom/internal/notify"
	"github.com/fitroom/fitroom/internal/settings"
	"github.com/fitroom/fitroom/internal/stylist"
)

// stubBackend records every dispatch and can be made to block, so tests can
// hold a run open or deliver a response after the deadline.
type stubBackend struct {
	mu             sync.Mutex
	catalogReqs    []stylist.CatalogRequest
	wardrobeReqs   []stylist.WardrobeRequest
	catalogResult  *stylist.CatalogResult
	wardrobeResult *stylist.WardrobeResult
	err            error
	block          chan struct{}
	ignoreCtx      bool

	// returned receives one value each time a call finishes.
	returned chan struct{}
}

func (b *stubBackend) Recommend(ctx context.Context, base string, r stylist.CatalogRequest) (*stylist.CatalogResult, error) {
	b.mu.Lock()
	b.catalogReqs = append(b.catalogReqs, r)
	b.mu.Unlock()
	defer b.signalReturn()

	if err := b.wait(ctx); err != nil {
		return nil, err
	}
	b.mu.Lock()
	defer b.mu.Unlock()
	if b.err != nil {
		return nil, b.err
	}
	if b.catalogResult != nil {
		return b.catalogResult, nil
	}
	return &stylist.CatalogResult{}, nil
}

func (b *stubBackend) ComposeOutfits(ctx context.Context, base string, r stylist.WardrobeRequest) (*stylist.WardrobeResult, error) {
	b.mu.Lock()
	b.wardrobeReqs = append(b.wardrobeReqs, r)
	b.mu.Unlock()
	defer b.signalReturn()

	if err := b.wait(ctx); err != nil {
		return nil, err
	}
	b.mu.Lock()
	defer b.mu.Unlock()
	if b.err != nil {
		return nil, b.err
	}
	if b.wardrobeResult != nil {
		return b.wardrobeResult, nil
	}
	return &stylist.WardrobeResult{}, nil
}

func (b *stubBackend) wait(ctx context.Context) error {
	b.mu.Lock()
	block, ignoreCtx := b.block, b.ignoreCtx
	b.mu.Unlock()
	if block == nil {
		return nil
	}
	if ignoreCtx {
		<-block
		return nil
	}
	select {
	case <-block:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

func (b *stubBackend) signalReturn() {
	if b.returned != nil {
		b.returned <- struct{}{}
	}
}

func (b *stubBackend) setBlock(ch chan struct{}) {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.block = ch
}

func (b *stubBackend) catalogCalls() int {
	b.mu.Lock()
	defer b.mu.Unlock()
	return len(b.catalogReqs)
}

func (b *stubBackend) wardrobeCalls() int {
	b.mu.Lock()
	defer b.mu.Unlock()
	return len(b.wardrobeReqs)
}

func (b *stubBackend) lastCatalogReq() stylist.CatalogRequest {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.catalogReqs[len(b.catalogReqs)-1]
}

func (b *stubBackend) lastWardrobeReq() stylist.WardrobeRequest {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.wardrobeReqs[len(b.wardrobeReqs)-1]
}

func testRunner(t *testing.T, backend Backend, catalogTimeout, wardrobeTimeout time.Duration) (*Runner, *notify.Queue) {
	t.Helper()
	logger := slog.New(slog.NewTextHandler(io.Discard, nil))
	// Long TTL so tests can count notifications without racing expiry.
	queue := notify.NewQueue(time.Minute)
	r := NewRunner(backend, queue, catalogTimeout, wardrobeTimeout, logger)
	t.Cleanup(r.Close)
	return r, queue
}

func testSettings() settings.Settings {
	return settings.Defaults("http://backend.test")
}

func testAnchor() *domain.ImageAsset {
	return &domain.ImageAsset{Name: "anchor.jpg", MIME: "image/jpeg", Data: []byte{0xFF, 0xD8}}
}

func testItems() map[domain.Category][]domain.ImageAsset {
	return map[domain.Category][]domain.ImageAsset{
		domain.CategoryTops:    {{Name: "t0.png", MIME: "image/png", Data: []byte{1}}},
		domain.CategoryBottoms: {{Name: "b0.png", MIME: "image/png", Data: []byte{2}}},
	}
}

func phaseIs(r *Runner, wf Workflow, phase Phase) func() bool {
	return func() bool { return r.State(wf).Phase == phase }
}

func TestCatalogRunWithoutAnchorFailsWithoutNetwork(t *testing.T) {
	backend := &stubBackend{}
	r, queue := testRunner(t, backend, 0, 0)

	st, err := r.StartCatalog(testSettings(), nil)
	require.NoError(t, err)

	assert.Equal(t, PhaseFailed, st.Phase)
	require.NotNil(t, st.Err)
	assert.Equal(t, FailValidation, st.Err.Kind)
	assert.Equal(t, 0, backend.catalogCalls())

	notices := queue.Active()
	require.Len(t, notices, 1)
	assert.Equal(t, notify.SeverityError, notices[0].Severity)
}

func TestCatalogRunWithEmptyAllowSetFails(t *testing.T) {
	backend := &stubBackend{}
	r, _ := testRunner(t, backend, 0, 0)

	cfg := testSettings()
	cfg.AllowTypes = nil

	st, err := r.StartCatalog(cfg, testAnchor())
	require.NoError(t, err)

	assert.Equal(t, PhaseFailed, st.Phase)
	assert.Equal(t, FailValidation, st.Err.Kind)
	assert.Equal(t, 0, backend.catalogCalls())
}

func TestWardrobeRunRequiresTwoCategories(t *testing.T) {
	backend := &stubBackend{}
	r, _ := testRunner(t, backend, 0, 0)

	// Two items but a single category present.
	items := map[domain.Category][]domain.ImageAsset{
		domain.CategoryTops: {
			{Name: "t0.png", MIME: "image/png", Data: []byte{1}},
			{Name: "t1.png", MIME: "image/png", Data: []byte{2}},
		},
	}

	st, err := r.StartWardrobe(testSettings(), items)
	require.NoError(t, err)

	assert.Equal(t, PhaseFailed, st.Phase)
	assert.Equal(t, FailValidation, st.Err.Kind)
	assert.Contains(t, st.Err.Message, "categories")
	assert.Equal(t, 0, backend.wardrobeCalls())
}

func TestWardrobeRunRequiresTwoItems(t *testing.T) {
	backend := &stubBackend{}
	r, _ := testRunner(t, backend, 0, 0)

	items := map[domain.Category][]domain.ImageAsset{
		domain.CategoryTops: {{Name: "t0.png", MIME: "image/png", Data: []byte{1}}},
	}

	st, err := r.StartWardrobe(testSettings(), items)
	require.NoError(t, err)

	assert.Equal(t, PhaseFailed, st.Phase)
	assert.Equal(t, FailValidation, st.Err.Kind)
	assert.Equal(t, 0, backend.wardrobeCalls())
}

func TestCatalogRunSucceeds(t *testing.T) {
	backend := &stubBackend{
		catalogResult: &stylist.CatalogResult{
			AnchorColor: "#334455",
			Items: []stylist.CatalogItem{
				{ItemID: "c1", Category: "tops", Score: 0.9, PreviewURL: "/static/c1.jpg"},
			},
		},
	}
	r, queue := testRunner(t, backend, 0, 0)

	st, err := r.StartCatalog(testSettings(), testAnchor())
	require.NoError(t, err)
	assert.Equal(t, PhaseRunning, st.Phase)
	assert.False(t, st.StartedAt.IsZero())
	assert.True(t, st.Deadline.After(st.StartedAt))

	require.Eventually(t, phaseIs(r, WorkflowCatalog, PhaseSucceeded), time.Second, 10*time.Millisecond)

	final := r.State(WorkflowCatalog)
	require.NotNil(t, final.Catalog)
	require.Len(t, final.Catalog.Items, 1)
	assert.Equal(t, "c1", final.Catalog.Items[0].ItemID)
	assert.Nil(t, final.Err)
	assert.Equal(t, 1, backend.catalogCalls())

	assert.Eventually(t, func() bool { return len(queue.Active()) == 1 }, time.Second, 10*time.Millisecond)
	assert.Equal(t, notify.SeverityOK, queue.Active()[0].Severity)
}

func TestZeroItemSuccessIsNotFailure(t *testing.T) {
	backend := &stubBackend{catalogResult: &stylist.CatalogResult{Items: []stylist.CatalogItem{}}}
	r, queue := testRunner(t, backend, 0, 0)

	_, err := r.StartCatalog(testSettings(), testAnchor())
	require.NoError(t, err)

	require.Eventually(t, phaseIs(r, WorkflowCatalog, PhaseSucceeded), time.Second, 10*time.Millisecond)

	final := r.State(WorkflowCatalog)
	require.NotNil(t, final.Catalog)
	assert.Empty(t, final.Catalog.Items)
	assert.Nil(t, final.Err)

	assert.Eventually(t, func() bool { return len(queue.Active()) == 1 }, time.Second, 10*time.Millisecond)
	assert.Equal(t, notify.SeverityOK, queue.Active()[0].Severity)
}

func TestWardrobeTopKClampedCatalogUnclamped(t *testing.T) {
	backend := &stubBackend{}
	r, _ := testRunner(t, backend, 0, 0)

	cfg := testSettings()
	cfg.TopK = 30

	_, err := r.StartCatalog(cfg, testAnchor())
	require.NoError(t, err)
	require.Eventually(t, phaseIs(r, WorkflowCatalog, PhaseSucceeded), time.Second, 10*time.Millisecond)
	assert.Equal(t, 30, backend.lastCatalogReq().TopK)

	_, err = r.StartWardrobe(cfg, testItems())
	require.NoError(t, err)
	require.Eventually(t, phaseIs(r, WorkflowWardrobe, PhaseSucceeded), time.Second, 10*time.Millisecond)
	assert.Equal(t, 15, backend.lastWardrobeReq().TopK)
}

func TestServerErrorClassification(t *testing.T) {
	backend := &stubBackend{err: &stylist.StatusError{Code: 500, Body: "engine exploded"}}
	r, queue := testRunner(t, backend, 0, 0)

	_, err := r.StartCatalog(testSettings(), testAnchor())
	require.NoError(t, err)

	require.Eventually(t, phaseIs(r, WorkflowCatalog, PhaseFailed), time.Second, 10*time.Millisecond)

	final := r.State(WorkflowCatalog)
	require.NotNil(t, final.Err)
	assert.Equal(t, FailServer, final.Err.Kind)
	assert.Equal(t, 500, final.Err.Status)
	assert.Contains(t, final.Err.Message, "500")
	assert.Contains(t, final.Err.Message, "engine exploded")

	assert.Eventually(t, func() bool { return len(queue.Active()) == 1 }, time.Second, 10*time.Millisecond)
}

func TestDecodeErrorClassifiedAsServer(t *testing.T) {
	backend := &stubBackend{err: &stylist.DecodeError{Err: errors.New("unexpected html")}}
	r, _ := testRunner(t, backend, 0, 0)

	_, err := r.StartCatalog(testSettings(), testAnchor())
	require.NoError(t, err)

	require.Eventually(t, phaseIs(r, WorkflowCatalog, PhaseFailed), time.Second, 10*time.Millisecond)
	final := r.State(WorkflowCatalog)
	assert.Equal(t, FailServer, final.Err.Kind)
	assert.Zero(t, final.Err.Status)
}

func TestTransportErrorClassifiedAsUnreachable(t *testing.T) {
	backend := &stubBackend{err: errors.New("dial tcp 127.0.0.1:8000: connection refused")}
	r, _ := testRunner(t, backend, 0, 0)

	_, err := r.StartWardrobe(testSettings(), testItems())
	require.NoError(t, err)

	require.Eventually(t, phaseIs(r, WorkflowWardrobe, PhaseFailed), time.Second, 10*time.Millisecond)
	final := r.State(WorkflowWardrobe)
	assert.Equal(t, FailUnreachable, final.Err.Kind)
}

func TestTimeoutBeatsLateResponse(t *testing.T) {
	backend := &stubBackend{
		block:     make(chan struct{}),
		ignoreCtx: true,
		returned:  make(chan struct{}, 1),
		catalogResult: &stylist.CatalogResult{
			Items: []stylist.CatalogItem{{ItemID: "late"}},
		},
	}
	r, queue := testRunner(t, backend, 40*time.Millisecond, 0)

	_, err := r.StartCatalog(testSettings(), testAnchor())
	require.NoError(t, err)

	require.Eventually(t, func() bool {
		st := r.State(WorkflowCatalog)
		return st.Phase == PhaseFailed && st.Err != nil && st.Err.Kind == FailTimeout
	}, time.Second, 5*time.Millisecond)
	assert.Equal(t, "request timed out", r.State(WorkflowCatalog).Err.Message)

	// Deliver the response after the deadline already settled the run.
	close(backend.block)
	<-backend.returned

	assert.Never(t, func() bool {
		return r.State(WorkflowCatalog).Phase != PhaseFailed
	}, 150*time.Millisecond, 10*time.Millisecond)

	final := r.State(WorkflowCatalog)
	assert.Equal(t, FailTimeout, final.Err.Kind)
	assert.Nil(t, final.Catalog)
	assert.Len(t, queue.Active(), 1)
}

func TestSecondStartWhileRunningIsRejected(t *testing.T) {
	backend := &stubBackend{block: make(chan struct{})}
	r, _ := testRunner(t, backend, 0, 0)

	_, err := r.StartCatalog(testSettings(), testAnchor())
	require.NoError(t, err)

	_, err = r.StartCatalog(testSettings(), testAnchor())
	assert.ErrorIs(t, err, ErrRunInProgress)

	// The validation path is also rejected while running.
	_, err = r.StartCatalog(testSettings(), nil)
	assert.ErrorIs(t, err, ErrRunInProgress)

	close(backend.block)
	require.Eventually(t, phaseIs(r, WorkflowCatalog, PhaseSucceeded), time.Second, 10*time.Millisecond)
	assert.Equal(t, 1, backend.catalogCalls())
}

func TestWorkflowsRunConcurrently(t *testing.T) {
	backend := &stubBackend{block: make(chan struct{})}
	r, _ := testRunner(t, backend, 0, 0)

	_, err := r.StartCatalog(testSettings(), testAnchor())
	require.NoError(t, err)

	st, err := r.StartWardrobe(testSettings(), testItems())
	require.NoError(t, err)
	assert.Equal(t, PhaseRunning, st.Phase)
	assert.Equal(t, PhaseRunning, r.State(WorkflowCatalog).Phase)

	close(backend.block)
	require.Eventually(t, phaseIs(r, WorkflowCatalog, PhaseSucceeded), time.Second, 10*time.Millisecond)
	require.Eventually(t, phaseIs(r, WorkflowWardrobe, PhaseSucceeded), time.Second, 10*time.Millisecond)
}

func TestCancelReturnsToIdleSilently(t *testing.T) {
	backend := &stubBackend{block: make(chan struct{}), returned: make(chan struct{}, 1)}
	r, queue := testRunner(t, backend, 0, 0)

	_, err := r.StartCatalog(testSettings(), testAnchor())
	require.NoError(t, err)

	require.True(t, r.Cancel(WorkflowCatalog))
	assert.Equal(t, PhaseIdle, r.State(WorkflowCatalog).Phase)

	// The aborted call unblocks via context cancellation and is discarded.
	<-backend.returned
	assert.Never(t, func() bool {
		return r.State(WorkflowCatalog).Phase != PhaseIdle
	}, 100*time.Millisecond, 10*time.Millisecond)

	assert.Empty(t, queue.Active())
	assert.False(t, r.Cancel(WorkflowCatalog))
}

func TestRunAfterCancelDiscardsOldCompletion(t *testing.T) {
	firstCall := make(chan struct{})
	backend := &stubBackend{
		block:     firstCall,
		ignoreCtx: true,
		returned:  make(chan struct{}, 2),
	}
	r, queue := testRunner(t, backend, 0, 0)

	_, err := r.StartCatalog(testSettings(), testAnchor())
	require.NoError(t, err)
	require.True(t, r.Cancel(WorkflowCatalog))

	// A fresh run settles first.
	backend.setBlock(nil)
	_, err = r.StartCatalog(testSettings(), testAnchor())
	require.NoError(t, err)
	require.Eventually(t, phaseIs(r, WorkflowCatalog, PhaseSucceeded), time.Second, 10*time.Millisecond)
	<-backend.returned
	require.Eventually(t, func() bool { return len(queue.Active()) == 1 }, time.Second, 10*time.Millisecond)

	// Now let the canceled run's call finish; it must not settle or notify.
	close(firstCall)
	<-backend.returned

	assert.Never(t, func() bool {
		return len(queue.Active()) != 1 || r.State(WorkflowCatalog).Phase != PhaseSucceeded
	}, 150*time.Millisecond, 10*time.Millisecond)
}

func TestNewRunClearsPriorResultImmediately(t *testing.T) {
	backend := &stubBackend{
		catalogResult: &stylist.CatalogResult{Items: []stylist.CatalogItem{{ItemID: "c1"}}},
	}
	r, _ := testRunner(t, backend, 0, 0)

	_, err := r.StartCatalog(testSettings(), testAnchor())
	require.NoError(t, err)
	require.Eventually(t, phaseIs(r, WorkflowCatalog, PhaseSucceeded), time.Second, 10*time.Millisecond)
	require.NotNil(t, r.State(WorkflowCatalog).Catalog)

	backend.setBlock(make(chan struct{}))
	st, err := r.StartCatalog(testSettings(), testAnchor())
	require.NoError(t, err)

	assert.Equal(t, PhaseRunning, st.Phase)
	assert.Nil(t, st.Catalog)
	assert.Nil(t, st.Err)
	assert.Nil(t, r.State(WorkflowCatalog).Catalog)
}

func TestRetryAfterValidationFailure(t *testing.T) {
	backend := &stubBackend{}
	r, _ := testRunner(t, backend, 0, 0)

	st, err := r.StartCatalog(testSettings(), nil)
	require.NoError(t, err)
	require.Equal(t, PhaseFailed, st.Phase)

	st, err = r.StartCatalog(testSettings(), testAnchor())
	require.NoError(t, err)
	assert.Equal(t, PhaseRunning, st.Phase)
	assert.Nil(t, st.Err)

	require.Eventually(t, phaseIs(r, WorkflowCatalog, PhaseSucceeded), time.Second, 10*time.Millisecond)
}

func TestStatesReturnsBothWorkflows(t *testing.T) {
	backend := &stubBackend{}
	r, _ := testRunner(t, backend, 0, 0)

	states := r.States()
	require.Len(t, states, 2)
	assert.Equal(t, PhaseIdle, states[WorkflowCatalog].Phase)
	assert.Equal(t, PhaseIdle, states[WorkflowWardrobe].Phase)
	assert.Equal(t, WorkflowCatalog, states[WorkflowCatalog].Workflow)
}
