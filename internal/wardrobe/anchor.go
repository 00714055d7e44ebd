package wardrobe

import (
	"sync"

	"github.com/fitroom/fitroom/internal/domain"
	"github.com/fitroom/fitroom/internal/preview"
)

// AnchorSlot holds the single reference photo for catalog runs.
type AnchorSlot struct {
	mu       sync.Mutex
	garment  *Garment
	previews *preview.Registry
}

func NewAnchorSlot(previews *preview.Registry) *AnchorSlot {
	return &AnchorSlot{previews: previews}
}

// Set replaces the anchor, releasing the previous preview if one was held.
func (s *AnchorSlot) Set(asset domain.ImageAsset) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.garment != nil {
		s.previews.Release(s.garment.Preview)
	}
	s.garment = &Garment{Asset: asset, Preview: s.previews.Acquire(asset)}
}

// Clear empties the slot. Returns false if it was already empty.
func (s *AnchorSlot) Clear() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.garment == nil {
		return false
	}
	s.previews.Release(s.garment.Preview)
	s.garment = nil
	return true
}

func (s *AnchorSlot) Get() (Garment, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.garment == nil {
		return Garment{}, false
	}
	return *s.garment, true
}
