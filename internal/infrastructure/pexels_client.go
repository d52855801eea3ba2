package infrastructure

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strconv"
	"strings"
	"time"

	"github.com/yourusername/shortforge-go/internal/domain"
	"github.com/yourusername/shortforge-go/pkg/logger"
	"go.uber.org/zap"
)

// SearchRequest is one page of a stock footage query
type SearchRequest struct {
	Query       string
	Orientation domain.Orientation
	PerPage     int
	Page        int
}

// PexelsClient queries the Pexels video search API
type PexelsClient struct {
	baseURL string
	apiKey  string
	client  *http.Client
	logger  *zap.Logger
}

// NewPexelsClient creates a new search client
func NewPexelsClient(config *domain.SearchConfig, log *zap.Logger) *PexelsClient {
	timeout := config.RequestTimeout
	if timeout <= 0 {
		timeout = 15 * time.Second
	}
	return &PexelsClient{
		baseURL: strings.TrimRight(config.BaseURL, "/"),
		apiKey:  config.APIKey,
		client:  &http.Client{Timeout: timeout},
		logger:  logger.OrNop(log),
	}
}

type pexelsResponse struct {
	Page         int           `json:"page"`
	PerPage      int           `json:"per_page"`
	TotalResults int           `json:"total_results"`
	Videos       []pexelsVideo `json:"videos"`
}

type pexelsVideo struct {
	ID       int64   `json:"id"`
	Width    int     `json:"width"`
	Height   int     `json:"height"`
	Duration float64 `json:"duration"`
	URL      string  `json:"url"`
	Image    string  `json:"image"`
	User     struct {
		Name string `json:"name"`
		URL  string `json:"url"`
	} `json:"user"`
	VideoFiles []struct {
		ID       int64  `json:"id"`
		Quality  string `json:"quality"`
		FileType string `json:"file_type"`
		Width    int    `json:"width"`
		Height   int    `json:"height"`
		Link     string `json:"link"`
	} `json:"video_files"`
}

// SearchVideos fetches one page of results. Non-2xx responses become a
// SearchError and are not retried.
func (c *PexelsClient) SearchVideos(ctx context.Context, req SearchRequest) ([]domain.Candidate, error) {
	params := url.Values{}
	params.Set("query", req.Query)
	if req.Orientation != "" {
		params.Set("orientation", string(req.Orientation))
	}
	if req.PerPage > 0 {
		params.Set("per_page", strconv.Itoa(req.PerPage))
	}
	if req.Page > 0 {
		params.Set("page", strconv.Itoa(req.Page))
	}
	endpoint := c.baseURL + "/videos/search?" + params.Encode()

	httpReq, err := http.NewRequestWithContext(ctx, http.MethodGet, endpoint, nil)
	if err != nil {
		return nil, &domain.SearchError{Query: req.Query, Err: fmt.Errorf("failed to create request: %w", err)}
	}
	httpReq.Header.Set("Authorization", c.apiKey)
	httpReq.Header.Set("Accept", "application/json")

	c.logger.Debug("Searching stock footage",
		zap.String("query", req.Query),
		zap.String("orientation", string(req.Orientation)),
		zap.Int("per_page", req.PerPage),
		zap.Int("page", req.Page))

	resp, err := c.client.Do(httpReq)
	if err != nil {
		return nil, &domain.SearchError{Query: req.Query, Err: err}
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		body, _ := io.ReadAll(io.LimitReader(resp.Body, 512))
		return nil, &domain.SearchError{
			Query:  req.Query,
			Status: resp.StatusCode,
			Err:    fmt.Errorf("unexpected status %s: %s", resp.Status, strings.TrimSpace(string(body))),
		}
	}

	var payload pexelsResponse
	if err := json.NewDecoder(resp.Body).Decode(&payload); err != nil {
		return nil, &domain.SearchError{Query: req.Query, Status: resp.StatusCode, Err: fmt.Errorf("failed to decode response: %w", err)}
	}

	candidates := make([]domain.Candidate, 0, len(payload.Videos))
	for _, v := range payload.Videos {
		candidates = append(candidates, toCandidate(v))
	}

	c.logger.Debug("Search completed",
		zap.String("query", req.Query),
		zap.Int("results", len(candidates)),
		zap.Int("total", payload.TotalResults))

	return candidates, nil
}

func toCandidate(v pexelsVideo) domain.Candidate {
	files := make([]domain.VideoFile, 0, len(v.VideoFiles))
	for _, f := range v.VideoFiles {
		files = append(files, domain.VideoFile{
			ID:       f.ID,
			Quality:  domain.QualityTier(f.Quality),
			FileType: f.FileType,
			Width:    f.Width,
			Height:   f.Height,
			Link:     f.Link,
		})
	}

	attribution := ""
	if v.User.Name != "" {
		attribution = fmt.Sprintf("Video by %s on Pexels", v.User.Name)
	}

	return domain.Candidate{
		ID:          v.ID,
		Width:       v.Width,
		Height:      v.Height,
		Duration:    v.Duration,
		Files:       files,
		Thumbnail:   v.Image,
		Attribution: attribution,
		URL:         v.URL,
	}
}
