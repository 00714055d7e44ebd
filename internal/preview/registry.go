package preview

import (
	"log/slog"
	"strings"
	"sync"

	"github.com/google/uuid"

	"github.com/fitroom/fitroom/internal/domain"
	"github.com/fitroom/fitroom/internal/imaging"
)

// Handle is a displayable reference to an image. For session assets it points
// at a revocable /previews/{token} URL backed by the registry; for images the
// backend already hosts (catalog item previews) it is a pass-through to the
// remote URL and needs no release.
type Handle struct {
	token  string
	url    string
	remote bool
}

// URL returns the address a UI can use as an image source.
func (h Handle) URL() string { return h.url }

// Remote wraps an already-persisted URL in a Handle. Releasing it is a no-op.
func Remote(url string) Handle {
	return Handle{url: url, remote: true}
}

// Resolve turns a backend-relative preview path into a remote Handle rooted at
// base. Absolute URLs pass through untouched; the backend serves its catalog
// previews itself, so nothing here needs release.
func Resolve(base, raw string) Handle {
	if raw == "" || strings.Contains(raw, "://") {
		return Remote(raw)
	}
	return Remote(strings.TrimRight(base, "/") + "/" + strings.TrimLeft(raw, "/"))
}

type entry struct {
	asset      domain.ImageAsset
	thumb      []byte
	thumbTried bool
}

// serveable picks the cached thumbnail when one exists, the original bytes
// otherwise.
func (e *entry) serveable() ([]byte, string) {
	if e.thumb != nil {
		return e.thumb, "image/jpeg"
	}
	return e.asset.Data, e.asset.MIME
}

// Registry hands out preview URLs for in-memory assets and revokes them when
// the owning slot lets go. Every Acquire must be paired with exactly one
// Release on every exit path of the owner (removal, replacement, session
// teardown); an unreleased handle keeps the image bytes alive and is the leak
// this type exists to prevent.
type Registry struct {
	mu      sync.Mutex
	entries map[string]*entry
	maxDim  int
	logger  *slog.Logger
}

func NewRegistry(maxDim int, logger *slog.Logger) *Registry {
	return &Registry{
		entries: make(map[string]*entry),
		maxDim:  maxDim,
		logger:  logger,
	}
}

// Acquire registers the asset and mints a token URL for it. Each display
// owner acquires its own handle; handles are never shared.
func (r *Registry) Acquire(asset domain.ImageAsset) Handle {
	token := uuid.NewString()
	r.mu.Lock()
	r.entries[token] = &entry{asset: asset}
	r.mu.Unlock()
	return Handle{token: token, url: "/previews/" + token}
}

// Release revokes the handle. Remote and zero handles are no-ops; revoking
// the same handle twice is tolerated but logged, since it means an ownership
// bug elsewhere.
func (r *Registry) Release(h Handle) {
	if h.remote || h.token == "" {
		return
	}
	r.mu.Lock()
	defer r.mu.Unlock()
	if _, ok := r.entries[h.token]; !ok {
		r.logger.Warn("preview handle released twice", "token", h.token)
		return
	}
	delete(r.entries, h.token)
}

// Get returns the bytes and media type to serve for a token, or ok=false if
// the token was never issued or has been revoked. The first Get computes and
// caches a downscaled thumbnail; undecodable assets are served verbatim.
func (r *Registry) Get(token string) ([]byte, string, bool) {
	r.mu.Lock()
	e, ok := r.entries[token]
	if !ok {
		r.mu.Unlock()
		return nil, "", false
	}
	if e.thumbTried {
		data, mime := e.serveable()
		r.mu.Unlock()
		return data, mime, true
	}
	asset := e.asset
	r.mu.Unlock()

	// Thumbnail outside the lock; decoding a 10 MiB image must not stall
	// unrelated acquires and releases.
	thumb, scaled := imaging.Thumbnail(asset.Data, r.maxDim)

	r.mu.Lock()
	defer r.mu.Unlock()
	e, ok = r.entries[token]
	if !ok {
		// Revoked while we were scaling.
		return nil, "", false
	}
	e.thumbTried = true
	if scaled {
		e.thumb = thumb
	}
	data, mime := e.serveable()
	return data, mime, true
}

// Len reports the number of live (unreleased) handles.
func (r *Registry) Len() int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return len(r.entries)
}

// ReleaseAll revokes every live handle. Used on session clear and gateway
// shutdown.
func (r *Registry) ReleaseAll() {
	r.mu.Lock()
	defer r.mu.Unlock()
	if n := len(r.entries); n > 0 {
		r.logger.Debug("releasing all previews", "count", n)
	}
	clear(r.entries)
}
