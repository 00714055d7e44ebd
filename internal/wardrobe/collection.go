package wardrobe

import (
	"log/slog"
	"sync"

	"github.com/fitroom/fitroom/internal/domain"
	"github.com/fitroom/fitroom/internal/preview"
)

// CapacityPerCategory bounds each category's sequence. Adds beyond the cap
// are dropped silently, not errored.
const CapacityPerCategory = 8

// Garment pairs an accepted image with its live preview handle. The garment
// owns the handle; whoever removes the garment releases it.
type Garment struct {
	Asset   domain.ImageAsset
	Preview preview.Handle
}

type Collection struct {
	mu       sync.Mutex
	items    map[domain.Category][]Garment
	previews *preview.Registry
	logger   *slog.Logger
}

func NewCollection(previews *preview.Registry, logger *slog.Logger) *Collection {
	return &Collection{
		items:    make(map[domain.Category][]Garment),
		previews: previews,
		logger:   logger,
	}
}

// Add appends assets in input order until the category cap is reached and
// returns how many were kept.
func (c *Collection) Add(cat domain.Category, assets []domain.ImageAsset) int {
	c.mu.Lock()
	defer c.mu.Unlock()

	room := CapacityPerCategory - len(c.items[cat])
	if room < 0 {
		room = 0
	}
	kept := assets
	if len(kept) > room {
		c.logger.Debug("category at capacity, dropping overflow",
			"category", cat, "dropped", len(kept)-room)
		kept = kept[:room]
	}
	for _, asset := range kept {
		c.items[cat] = append(c.items[cat], Garment{
			Asset:   asset,
			Preview: c.previews.Acquire(asset),
		})
	}
	return len(kept)
}

// Remove deletes the item at idx and shifts later items down by one. An out
// of range index is a no-op.
func (c *Collection) Remove(cat domain.Category, idx int) bool {
	c.mu.Lock()
	defer c.mu.Unlock()

	seq := c.items[cat]
	if idx < 0 || idx >= len(seq) {
		return false
	}
	c.previews.Release(seq[idx].Preview)
	c.items[cat] = append(seq[:idx], seq[idx+1:]...)
	if len(c.items[cat]) == 0 {
		delete(c.items, cat)
	}
	return true
}

// Items returns a copy of the category's sequence in insertion order.
func (c *Collection) Items(cat domain.Category) []Garment {
	c.mu.Lock()
	defer c.mu.Unlock()
	seq := c.items[cat]
	out := make([]Garment, len(seq))
	copy(out, seq)
	return out
}

func (c *Collection) TotalCount() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	total := 0
	for _, seq := range c.items {
		total += len(seq)
	}
	return total
}

// CategoriesPresent returns the categories holding at least one item, in
// canonical order.
func (c *Collection) CategoriesPresent() []domain.Category {
	c.mu.Lock()
	defer c.mu.Unlock()
	var present []domain.Category
	for _, cat := range domain.Categories() {
		if len(c.items[cat]) > 0 {
			present = append(present, cat)
		}
	}
	return present
}

// Snapshot copies the per-category assets for request building. Later
// collection edits do not affect the snapshot.
func (c *Collection) Snapshot() map[domain.Category][]domain.ImageAsset {
	c.mu.Lock()
	defer c.mu.Unlock()
	snap := make(map[domain.Category][]domain.ImageAsset, len(c.items))
	for cat, seq := range c.items {
		assets := make([]domain.ImageAsset, len(seq))
		for i, g := range seq {
			assets[i] = g.Asset
		}
		snap[cat] = assets
	}
	return snap
}

// Clear removes every item and releases all their previews.
func (c *Collection) Clear() {
	c.mu.Lock()
	defer c.mu.Unlock()
	for cat, seq := range c.items {
		for _, g := range seq {
			c.previews.Release(g.Preview)
		}
		delete(c.items, cat)
	}
}
