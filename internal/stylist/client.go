package stylist

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"mime/multipart"
	"net/http"
	"net/textproto"
	"net/url"
	"strconv"
	"strings"

	"github.com/fitroom/fitroom/internal/domain"
)

const maxErrorBody = 64 << 10

// Client speaks the recommendation backend's HTTP surface. It carries no
// global timeout; each call's context governs its deadline. The base URL is
// passed per call because it is a mutable setting.
type Client struct {
	client *http.Client
	logger *slog.Logger
}

func NewClient(logger *slog.Logger) *Client {
	return &Client{client: &http.Client{}, logger: logger}
}

func (c *Client) Health(ctx context.Context, base string) (*Health, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, endpoint(base, "/health"), nil)
	if err != nil {
		return nil, fmt.Errorf("failed to create request: %w", err)
	}

	resp, err := c.client.Do(req)
	if err != nil {
		return nil, fmt.Errorf("failed to call backend: %w", err)
	}
	defer c.closeBody(resp)

	if resp.StatusCode != http.StatusOK {
		return nil, newStatusError(resp)
	}

	var h Health
	if err := json.NewDecoder(resp.Body).Decode(&h); err != nil {
		return nil, &DecodeError{Err: err}
	}
	return &h, nil
}

// Recommend sends the anchor image and tuning parameters and returns the
// matching catalog items.
func (c *Client) Recommend(ctx context.Context, base string, r CatalogRequest) (*CatalogResult, error) {
	body := &bytes.Buffer{}
	mw := multipart.NewWriter(body)
	if err := writeImagePart(mw, "image", r.Anchor); err != nil {
		return nil, fmt.Errorf("failed to encode anchor: %w", err)
	}
	if err := mw.Close(); err != nil {
		return nil, fmt.Errorf("failed to finish multipart body: %w", err)
	}

	allow := make([]string, len(r.AllowTypes))
	for i, cat := range r.AllowTypes {
		allow[i] = string(cat)
	}
	q := url.Values{}
	q.Set("allow_types", strings.Join(allow, ","))
	q.Set("per_bucket", strconv.Itoa(r.PerBucket))
	q.Set("topk", strconv.Itoa(r.TopK))
	q.Set("color_weight", formatWeight(r.ColorWeight))
	q.Set("style_weight", formatWeight(r.StyleWeight))
	q.Set("diversity_weight", formatWeight(r.DiversityWeight))
	q.Set("anchor_color_mode", r.ColorMode)
	q.Set("filter_same_bucket", "true")

	req, err := http.NewRequestWithContext(ctx, http.MethodPost,
		endpoint(base, "/recommend")+"?"+q.Encode(), body)
	if err != nil {
		return nil, fmt.Errorf("failed to create request: %w", err)
	}
	req.Header.Set("Content-Type", mw.FormDataContentType())

	resp, err := c.client.Do(req)
	if err != nil {
		return nil, fmt.Errorf("failed to call backend: %w", err)
	}
	defer c.closeBody(resp)

	if resp.StatusCode != http.StatusOK {
		return nil, newStatusError(resp)
	}

	var result CatalogResult
	if err := json.NewDecoder(resp.Body).Decode(&result); err != nil {
		return nil, &DecodeError{Err: err}
	}
	return &result, nil
}

// ComposeOutfits sends the wardrobe items, one multipart part per item under
// its category's field name, and returns the suggested combinations.
func (c *Client) ComposeOutfits(ctx context.Context, base string, r WardrobeRequest) (*WardrobeResult, error) {
	body := &bytes.Buffer{}
	mw := multipart.NewWriter(body)
	for _, cat := range domain.Categories() {
		for _, asset := range r.Items[cat] {
			if err := writeImagePart(mw, string(cat), asset); err != nil {
				return nil, fmt.Errorf("failed to encode %s item: %w", cat, err)
			}
		}
	}
	if err := mw.WriteField("topk", strconv.Itoa(r.TopK)); err != nil {
		return nil, fmt.Errorf("failed to encode topk: %w", err)
	}
	if err := mw.Close(); err != nil {
		return nil, fmt.Errorf("failed to finish multipart body: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost,
		endpoint(base, "/wardrobe/recommend"), body)
	if err != nil {
		return nil, fmt.Errorf("failed to create request: %w", err)
	}
	req.Header.Set("Content-Type", mw.FormDataContentType())

	resp, err := c.client.Do(req)
	if err != nil {
		return nil, fmt.Errorf("failed to call backend: %w", err)
	}
	defer c.closeBody(resp)

	if resp.StatusCode != http.StatusOK {
		return nil, newStatusError(resp)
	}

	var result WardrobeResult
	if err := json.NewDecoder(resp.Body).Decode(&result); err != nil {
		return nil, &DecodeError{Err: err}
	}
	return &result, nil
}

func (c *Client) closeBody(resp *http.Response) {
	if err := resp.Body.Close(); err != nil {
		c.logger.Error("failed to close backend response body", "error", err)
	}
}

func endpoint(base, path string) string {
	return strings.TrimRight(base, "/") + path
}

func formatWeight(w float64) string {
	return strconv.FormatFloat(w, 'f', -1, 64)
}

func newStatusError(resp *http.Response) error {
	body, _ := io.ReadAll(io.LimitReader(resp.Body, maxErrorBody))
	return &StatusError{Code: resp.StatusCode, Body: strings.TrimSpace(string(body))}
}

// writeImagePart adds a file part carrying the asset's declared media type.
// multipart.Writer's CreateFormFile hardcodes application/octet-stream, so
// the part header is built by hand.
func writeImagePart(mw *multipart.Writer, field string, asset domain.ImageAsset) error {
	h := make(textproto.MIMEHeader)
	h.Set("Content-Disposition", fmt.Sprintf(`form-data; name=%q; filename=%q`, field, asset.Name))
	h.Set("Content-Type", asset.MIME)
	part, err := mw.CreatePart(h)
	if err != nil {
		return err
	}
	_, err = part.Write(asset.Data)
	return err
}
