package web

import (
	"fmt"
	"io"
	"log/slog"
	"mime/multipart"
	"net/http"
	"strconv"

	"github.com/fitroom/fitroom/internal/domain"
	"github.com/fitroom/fitroom/internal/imaging"
)

// maxUploadBytes caps a whole multipart form: a full category of files at the
// per-image limit plus form overhead.
const maxUploadBytes = 96 << 20

// imageDescriptor is what the API reports about a stored image. Raw bytes
// never leave the process except through the preview endpoint.
type imageDescriptor struct {
	Name       string `json:"name"`
	PreviewURL string `json:"preview_url"`
	Size       int64  `json:"size"`
}

func closeWithLog(c io.Closer, name string, logger *slog.Logger) {
	if err := c.Close(); err != nil {
		logger.Error("failed to close "+name, "error", err)
	}
}

// assetFromPart reads one uploaded file and validates it. The declared part
// media type wins; when the browser sends none or a generic binary type, the
// payload is sniffed instead.
func (s *Server) assetFromPart(fh *multipart.FileHeader) (domain.ImageAsset, error) {
	file, err := fh.Open()
	if err != nil {
		return domain.ImageAsset{}, fmt.Errorf("failed to open upload: %w", err)
	}
	defer closeWithLog(file, "upload file", s.logger)

	data, err := io.ReadAll(io.LimitReader(file, imaging.MaxBytes+1))
	if err != nil {
		return domain.ImageAsset{}, fmt.Errorf("failed to read upload: %w", err)
	}

	mime := fh.Header.Get("Content-Type")
	if mime == "" || mime == "application/octet-stream" {
		if detected, ok := imaging.DetectMIME(data); ok {
			mime = detected
		}
	}

	asset := domain.ImageAsset{Name: fh.Filename, MIME: mime, Data: data}
	if err := imaging.Validate(asset); err != nil {
		return domain.ImageAsset{}, err
	}
	return asset, nil
}

// readImageBatch validates every file under the field independently. Invalid
// files are dropped and counted, never surfaced as a request error.
func (s *Server) readImageBatch(r *http.Request, field string) (accepted []domain.ImageAsset, dropped int) {
	if r.MultipartForm == nil {
		return nil, 0
	}
	for _, fh := range r.MultipartForm.File[field] {
		asset, err := s.assetFromPart(fh)
		if err != nil {
			s.logger.Debug("dropping invalid upload", "file", fh.Filename, "error", err)
			dropped++
			continue
		}
		accepted = append(accepted, asset)
	}
	return accepted, dropped
}

func (s *Server) handleSetAnchor(w http.ResponseWriter, r *http.Request) {
	if err := r.ParseMultipartForm(maxUploadBytes); err != nil {
		s.writeError(w, "failed to parse form", http.StatusBadRequest)
		return
	}
	files := r.MultipartForm.File["image"]
	if len(files) == 0 {
		s.writeError(w, "image file required", http.StatusBadRequest)
		return
	}

	asset, err := s.assetFromPart(files[0])
	if err != nil {
		s.writeError(w, err.Error(), http.StatusBadRequest)
		return
	}

	s.anchor.Set(asset)
	garment, _ := s.anchor.Get()
	s.writeJSON(w, imageDescriptor{
		Name:       garment.Asset.Name,
		PreviewURL: garment.Preview.URL(),
		Size:       garment.Asset.Size(),
	})
}

func (s *Server) handleClearAnchor(w http.ResponseWriter, r *http.Request) {
	cleared := s.anchor.Clear()
	s.writeJSON(w, map[string]bool{"cleared": cleared})
}

func (s *Server) handleAddWardrobe(w http.ResponseWriter, r *http.Request) {
	category, err := domain.ParseCategory(r.PathValue("category"))
	if err != nil {
		s.writeError(w, err.Error(), http.StatusBadRequest)
		return
	}
	if err := r.ParseMultipartForm(maxUploadBytes); err != nil {
		s.writeError(w, "failed to parse form", http.StatusBadRequest)
		return
	}

	assets, invalid := s.readImageBatch(r, "images")
	stored := s.collection.Add(category, assets)

	// Dropped covers both invalid files and capacity overflow.
	s.writeJSON(w, map[string]int{
		"accepted": stored,
		"dropped":  invalid + len(assets) - stored,
	})
}

func (s *Server) handleRemoveWardrobe(w http.ResponseWriter, r *http.Request) {
	category, err := domain.ParseCategory(r.PathValue("category"))
	if err != nil {
		s.writeError(w, err.Error(), http.StatusBadRequest)
		return
	}
	index, err := strconv.Atoi(r.PathValue("index"))
	if err != nil {
		s.writeError(w, "invalid index", http.StatusBadRequest)
		return
	}

	removed := s.collection.Remove(category, index)
	s.writeJSON(w, map[string]bool{"removed": removed})
}

func (s *Server) handleClearSession(w http.ResponseWriter, r *http.Request) {
	s.collection.Clear()
	s.anchor.Clear()
	s.writeJSON(w, map[string]bool{"cleared": true})
}

func (s *Server) handlePreview(w http.ResponseWriter, r *http.Request) {
	data, mime, ok := s.previews.Get(r.PathValue("token"))
	if !ok {
		http.NotFound(w, r)
		return
	}
	w.Header().Set("Content-Type", mime)
	w.Header().Set("Cache-Control", "no-store")
	if _, err := w.Write(data); err != nil {
		s.logger.Debug("failed to write preview", "error", err)
	}
}
