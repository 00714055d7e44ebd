package stylist

import (
	"github.com/fitroom/fitroom/internal/domain"
)

// Health is the backend's health report.
type Health struct {
	EngineLoaded bool   `json:"engine_loaded"`
	Error        string `json:"error,omitempty"`
	Device       string `json:"device,omitempty"`
	CatalogSize  int    `json:"catalog_size,omitempty"`
}

// CatalogRequest carries the anchor image plus the tuning snapshot for one
// catalog recommendation call.
type CatalogRequest struct {
	Anchor          domain.ImageAsset
	AllowTypes      []domain.Category
	PerBucket       int
	TopK            int
	ColorWeight     float64
	StyleWeight     float64
	DiversityWeight float64
	ColorMode       string
}

type CatalogItem struct {
	ItemID     string  `json:"item_id"`
	Category   string  `json:"category"`
	Bucket     string  `json:"bucket,omitempty"`
	Title      string  `json:"title,omitempty"`
	Score      float64 `json:"score"`
	PreviewURL string  `json:"preview_url"`
}

type CatalogResult struct {
	AnchorColor string        `json:"anchor_color,omitempty"`
	Items       []CatalogItem `json:"items"`
}

// WardrobeRequest carries the per-category wardrobe items for one outfit
// composition call. Slices keep collection order so the backend's part
// indices refer back to collection slots.
type WardrobeRequest struct {
	Items map[domain.Category][]domain.ImageAsset
	TopK  int
}

// OutfitPart points at one wardrobe slot: the category field name and the
// index of the item within it.
type OutfitPart struct {
	Slot  string `json:"slot"`
	Index int    `json:"idx"`
}

type Outfit struct {
	Parts []OutfitPart `json:"parts"`
	Score float64      `json:"score"`
}

type WardrobeResult struct {
	Items []Outfit `json:"items"`
}
