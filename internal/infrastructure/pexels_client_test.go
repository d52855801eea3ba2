package infrastructure

import (
	"context"
	"errors"
	"net/http"
	"net/http/httptest"
	"sync/atomic"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/yourusername/shortforge-go/internal/domain"
)

const pexelsFixture = `{
  "page": 1,
  "per_page": 2,
  "total_results": 2,
  "videos": [
    {
      "id": 101,
      "width": 3840,
      "height": 2160,
      "duration": 12,
      "url": "https://www.pexels.com/video/101/",
      "image": "https://images.pexels.com/101.jpg",
      "user": {"name": "Jane Doe", "url": "https://www.pexels.com/@jane"},
      "video_files": [
        {"id": 1, "quality": "hd", "file_type": "video/mp4", "width": 1920, "height": 1080, "link": "https://cdn/101-hd.mp4"},
        {"id": 2, "quality": "hls", "file_type": "application/x-mpegURL", "width": 0, "height": 0, "link": "https://cdn/101.m3u8"}
      ]
    },
    {
      "id": 102,
      "width": 1280,
      "height": 720,
      "duration": 40,
      "url": "https://www.pexels.com/video/102/",
      "image": "https://images.pexels.com/102.jpg",
      "user": {"name": ""},
      "video_files": []
    }
  ]
}`

func TestPexelsClient_SearchVideos(t *testing.T) {
	var gotAuth, gotPath string
	var gotQuery map[string]string
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		gotAuth = r.Header.Get("Authorization")
		gotPath = r.URL.Path
		gotQuery = map[string]string{
			"query":       r.URL.Query().Get("query"),
			"orientation": r.URL.Query().Get("orientation"),
			"per_page":    r.URL.Query().Get("per_page"),
			"page":        r.URL.Query().Get("page"),
		}
		w.Header().Set("Content-Type", "application/json")
		w.Write([]byte(pexelsFixture))
	}))
	defer server.Close()

	client := NewPexelsClient(&domain.SearchConfig{APIKey: "secret", BaseURL: server.URL + "/"}, nil)
	candidates, err := client.SearchVideos(context.Background(), SearchRequest{
		Query:       "snowy mountains",
		Orientation: domain.OrientationLandscape,
		PerPage:     2,
		Page:        1,
	})
	require.NoError(t, err)

	assert.Equal(t, "secret", gotAuth)
	assert.Equal(t, "/videos/search", gotPath)
	assert.Equal(t, map[string]string{
		"query":       "snowy mountains",
		"orientation": "landscape",
		"per_page":    "2",
		"page":        "1",
	}, gotQuery)

	require.Len(t, candidates, 2)
	first := candidates[0]
	assert.Equal(t, int64(101), first.ID)
	assert.Equal(t, 3840, first.Width)
	assert.Equal(t, 12.0, first.Duration)
	assert.Equal(t, "Video by Jane Doe on Pexels", first.Attribution)
	assert.Equal(t, "https://images.pexels.com/101.jpg", first.Thumbnail)
	require.Len(t, first.Files, 2)
	assert.Equal(t, domain.TierHD, first.Files[0].Quality)

	best, ok := first.BestFile()
	require.True(t, ok)
	assert.Equal(t, "https://cdn/101-hd.mp4", best.Link)

	assert.Empty(t, candidates[1].Attribution)
}

func TestPexelsClient_NonSuccessIsSearchError(t *testing.T) {
	var calls int32
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		atomic.AddInt32(&calls, 1)
		http.Error(w, "rate limited", http.StatusTooManyRequests)
	}))
	defer server.Close()

	client := NewPexelsClient(&domain.SearchConfig{APIKey: "k", BaseURL: server.URL}, nil)
	_, err := client.SearchVideos(context.Background(), SearchRequest{Query: "ocean"})

	var searchErr *domain.SearchError
	require.True(t, errors.As(err, &searchErr))
	assert.Equal(t, http.StatusTooManyRequests, searchErr.Status)
	assert.Equal(t, "ocean", searchErr.Query)
	assert.Equal(t, int32(1), atomic.LoadInt32(&calls))
	assert.False(t, domain.IsRetryable(err))
}

func TestPexelsClient_MalformedBody(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Write([]byte("{not json"))
	}))
	defer server.Close()

	client := NewPexelsClient(&domain.SearchConfig{BaseURL: server.URL}, nil)
	_, err := client.SearchVideos(context.Background(), SearchRequest{Query: "forest"})

	var searchErr *domain.SearchError
	assert.ErrorAs(t, err, &searchErr)
}
