package settings

import (
	"strconv"
	"strings"

	"github.com/fitroom/fitroom/internal/domain"
)

// Mode selects which workflow tab the client shows first.
type Mode string

const (
	ModeCatalog  Mode = "catalog"
	ModeWardrobe Mode = "wardrobe"
)

// ColorMode selects how the backend derives the anchor's dominant color.
type ColorMode string

const (
	ColorAuto   ColorMode = "auto"
	ColorHSV    ColorMode = "hsv"
	ColorKMeans ColorMode = "kmeans"
)

type Density string

const (
	DensityComfortable Density = "comfortable"
	DensityCompact     Density = "compact"
)

// Settings is the durable, user-tunable configuration. Runs capture a copy
// at start; later edits never affect an in-flight request.
type Settings struct {
	ActiveMode      Mode              `json:"active_mode"`
	APIBase         string            `json:"api_base"`
	AllowTypes      []domain.Category `json:"allow_types"`
	ColorMode       ColorMode         `json:"color_mode"`
	PerBucket       int               `json:"per_bucket"`
	TopK            int               `json:"topk"`
	ColorWeight     float64           `json:"color_weight"`
	StyleWeight     float64           `json:"style_weight"`
	DiversityWeight float64           `json:"diversity_weight"`
	Density         Density           `json:"density"`
}

// Defaults returns the settings used before any user edits. apiBase seeds
// where the gateway looks for the backend on first run.
func Defaults(apiBase string) Settings {
	if apiBase == "" {
		apiBase = "http://localhost:8000"
	}
	return Settings{
		ActiveMode:      ModeCatalog,
		APIBase:         apiBase,
		AllowTypes:      domain.Categories(),
		ColorMode:       ColorAuto,
		PerBucket:       3,
		TopK:            12,
		ColorWeight:     0.5,
		StyleWeight:     0.3,
		DiversityWeight: 0.2,
		Density:         DensityComfortable,
	}
}

// Clone returns a copy detached from the receiver's slices.
func (s Settings) Clone() Settings {
	out := s
	out.AllowTypes = append([]domain.Category(nil), s.AllowTypes...)
	return out
}

// normalize coerces out-of-range values back to something usable instead of
// rejecting the whole update. An empty allow-set is kept as-is; the catalog
// run checks it at dispatch time.
func (s *Settings) normalize(defaults Settings) {
	if s.ActiveMode != ModeCatalog && s.ActiveMode != ModeWardrobe {
		s.ActiveMode = defaults.ActiveMode
	}
	if strings.TrimSpace(s.APIBase) == "" {
		s.APIBase = defaults.APIBase
	}
	if s.ColorMode != ColorAuto && s.ColorMode != ColorHSV && s.ColorMode != ColorKMeans {
		s.ColorMode = defaults.ColorMode
	}
	if s.PerBucket < 1 {
		s.PerBucket = 1
	}
	if s.TopK < 1 {
		s.TopK = 1
	}
	s.ColorWeight = clampWeight(s.ColorWeight)
	s.StyleWeight = clampWeight(s.StyleWeight)
	s.DiversityWeight = clampWeight(s.DiversityWeight)
	if s.Density != DensityComfortable && s.Density != DensityCompact {
		s.Density = defaults.Density
	}
	s.AllowTypes = dedupeCategories(s.AllowTypes)
}

func clampWeight(w float64) float64 {
	if w < 0 {
		return 0
	}
	if w > 1 {
		return 1
	}
	return w
}

// dedupeCategories keeps valid categories in first-seen order.
func dedupeCategories(cats []domain.Category) []domain.Category {
	seen := make(map[domain.Category]bool, len(cats))
	out := make([]domain.Category, 0, len(cats))
	for _, cat := range cats {
		if _, err := domain.ParseCategory(string(cat)); err != nil {
			continue
		}
		if seen[cat] {
			continue
		}
		seen[cat] = true
		out = append(out, cat)
	}
	return out
}

// encode flattens the settings into the persisted key/value pairs.
func (s Settings) encode() map[string]string {
	allow := make([]string, len(s.AllowTypes))
	for i, cat := range s.AllowTypes {
		allow[i] = string(cat)
	}
	return map[string]string{
		"active_mode":      string(s.ActiveMode),
		"api_base":         s.APIBase,
		"allow_types":      strings.Join(allow, ","),
		"color_mode":       string(s.ColorMode),
		"per_bucket":       strconv.Itoa(s.PerBucket),
		"topk":             strconv.Itoa(s.TopK),
		"color_weight":     formatWeight(s.ColorWeight),
		"style_weight":     formatWeight(s.StyleWeight),
		"diversity_weight": formatWeight(s.DiversityWeight),
		"density":          string(s.Density),
	}
}

// apply overlays one persisted key onto the settings. Unknown keys and
// unparsable numbers are ignored so stale rows never block startup.
func (s *Settings) apply(key, value string) {
	switch key {
	case "active_mode":
		s.ActiveMode = Mode(value)
	case "api_base":
		s.APIBase = value
	case "allow_types":
		s.AllowTypes = parseCategories(value)
	case "color_mode":
		s.ColorMode = ColorMode(value)
	case "per_bucket":
		if n, err := strconv.Atoi(value); err == nil {
			s.PerBucket = n
		}
	case "topk":
		if n, err := strconv.Atoi(value); err == nil {
			s.TopK = n
		}
	case "color_weight":
		if f, err := strconv.ParseFloat(value, 64); err == nil {
			s.ColorWeight = f
		}
	case "style_weight":
		if f, err := strconv.ParseFloat(value, 64); err == nil {
			s.StyleWeight = f
		}
	case "diversity_weight":
		if f, err := strconv.ParseFloat(value, 64); err == nil {
			s.DiversityWeight = f
		}
	case "density":
		s.Density = Density(value)
	}
}

func parseCategories(csv string) []domain.Category {
	out := []domain.Category{}
	for _, raw := range strings.Split(csv, ",") {
		cat, err := domain.ParseCategory(strings.TrimSpace(raw))
		if err != nil {
			continue
		}
		out = append(out, cat)
	}
	return out
}

func formatWeight(w float64) string {
	return strconv.FormatFloat(w, 'f', -1, 64)
}
