package web

import (
	"net/http"

	"github.com/fitroom/fitroom/internal/domain"
	"github.com/fitroom/fitroom/internal/notify"
	"github.com/fitroom/fitroom/internal/preview"
	"github.com/fitroom/fitroom/internal/run"
	"github.com/fitroom/fitroom/internal/settings"
	"github.com/fitroom/fitroom/internal/stylist"
)

// statePayload is the single poll target for a UI: everything needed to
// render the session in one round trip.
type statePayload struct {
	Backend       stylist.BackendStatus                 `json:"backend"`
	Settings      settings.Settings                     `json:"settings"`
	Anchor        *imageDescriptor                      `json:"anchor,omitempty"`
	Wardrobe      map[domain.Category][]imageDescriptor `json:"wardrobe"`
	Runs          map[run.Workflow]run.State            `json:"runs"`
	Notifications []notify.Notification                 `json:"notifications"`
}

func (s *Server) handleState(w http.ResponseWriter, r *http.Request) {
	cfg := s.settings.Current()

	payload := statePayload{
		Backend:       s.monitor.Status(),
		Settings:      cfg,
		Wardrobe:      make(map[domain.Category][]imageDescriptor),
		Runs:          make(map[run.Workflow]run.State),
		Notifications: s.notices.Active(),
	}

	if garment, ok := s.anchor.Get(); ok {
		payload.Anchor = &imageDescriptor{
			Name:       garment.Asset.Name,
			PreviewURL: garment.Preview.URL(),
			Size:       garment.Asset.Size(),
		}
	}

	for _, category := range s.collection.CategoriesPresent() {
		items := s.collection.Items(category)
		descriptors := make([]imageDescriptor, len(items))
		for i, garment := range items {
			descriptors[i] = imageDescriptor{
				Name:       garment.Asset.Name,
				PreviewURL: garment.Preview.URL(),
				Size:       garment.Asset.Size(),
			}
		}
		payload.Wardrobe[category] = descriptors
	}

	for wf, st := range s.runner.States() {
		payload.Runs[wf] = resolveCatalogPreviews(st, cfg.APIBase)
	}

	s.writeJSON(w, payload)
}

// resolveCatalogPreviews rewrites backend-relative item preview paths into
// absolute URLs a caller can load directly. The stored state is left alone.
func resolveCatalogPreviews(st run.State, base string) run.State {
	if st.Catalog == nil || len(st.Catalog.Items) == 0 {
		return st
	}
	resolved := *st.Catalog
	resolved.Items = make([]stylist.CatalogItem, len(st.Catalog.Items))
	copy(resolved.Items, st.Catalog.Items)
	for i := range resolved.Items {
		resolved.Items[i].PreviewURL = preview.Resolve(base, resolved.Items[i].PreviewURL).URL()
	}
	st.Catalog = &resolved
	return st
}

func (s *Server) handleHealth(w http.ResponseWriter, r *http.Request) {
	s.writeJSON(w, s.monitor.Status())
}

func (s *Server) handleDismissNotification(w http.ResponseWriter, r *http.Request) {
	dismissed := s.notices.Dismiss(r.PathValue("id"))
	s.writeJSON(w, map[string]bool{"dismissed": dismissed})
}
