package stylist

import (
	"context"
	"errors"
	"log/slog"
	"sync"
	"time"
)

const probeTimeout = 5 * time.Second

type BackendState string

const (
	BackendOK          BackendState = "ok"
	BackendDegraded    BackendState = "degraded"
	BackendUnreachable BackendState = "unreachable"
)

type BackendStatus struct {
	State       BackendState `json:"state"`
	Message     string       `json:"message,omitempty"`
	Device      string       `json:"device,omitempty"`
	CatalogSize int          `json:"catalog_size,omitempty"`
	CheckedAt   time.Time    `json:"checked_at"`
}

// BaseSource yields the backend base URL at probe time; it is re-read on
// every probe because the URL is a mutable setting.
type BaseSource func() string

// Monitor polls the backend's health endpoint and caches the latest verdict
// for the connectivity indicator. A backend that answers without
// engine_loaded=true is degraded, not failed.
type Monitor struct {
	client   *Client
	base     BaseSource
	interval time.Duration
	logger   *slog.Logger

	mu     sync.Mutex
	status BackendStatus
}

func NewMonitor(client *Client, base BaseSource, interval time.Duration, logger *slog.Logger) *Monitor {
	if interval <= 0 {
		interval = 30 * time.Second
	}
	return &Monitor{
		client:   client,
		base:     base,
		interval: interval,
		logger:   logger,
		status:   BackendStatus{State: BackendUnreachable, Message: "not checked yet"},
	}
}

func (m *Monitor) Status() BackendStatus {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.status
}

// Probe checks the backend once and records the verdict.
func (m *Monitor) Probe(ctx context.Context) BackendStatus {
	ctx, cancel := context.WithTimeout(ctx, probeTimeout)
	defer cancel()

	status := BackendStatus{CheckedAt: time.Now()}
	h, err := m.client.Health(ctx, m.base())

	var statusErr *StatusError
	switch {
	case errors.As(err, &statusErr):
		// The backend answered, just not happily.
		status.State = BackendDegraded
		status.Message = statusErr.Error()
	case err != nil:
		status.State = BackendUnreachable
		status.Message = err.Error()
	case !h.EngineLoaded:
		status.State = BackendDegraded
		status.Message = h.Error
		if status.Message == "" {
			status.Message = "recommendation engine not loaded"
		}
		status.Device = h.Device
		status.CatalogSize = h.CatalogSize
	default:
		status.State = BackendOK
		status.Device = h.Device
		status.CatalogSize = h.CatalogSize
	}

	m.mu.Lock()
	m.status = status
	m.mu.Unlock()

	if status.State != BackendOK {
		m.logger.Warn("backend health probe", "state", status.State, "message", status.Message)
	}
	return status
}

// Run probes immediately and then on a fixed interval until ctx is done.
func (m *Monitor) Run(ctx context.Context) error {
	m.Probe(ctx)
	ticker := time.NewTicker(m.interval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return nil
		case <-ticker.C:
			m.Probe(ctx)
		}
	}
}
