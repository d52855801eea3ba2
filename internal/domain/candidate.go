package domain

import "strings"

// DefaultDurationWeight is the canonical weight of the duration term in
// QualityScore. One second of footage is worth 100 pixels of frame area.
const DefaultDurationWeight = 100.0

// Orientation is the frame orientation requested from the search API
type Orientation string

const (
	OrientationLandscape Orientation = "landscape"
	OrientationPortrait  Orientation = "portrait"
	OrientationSquare    Orientation = "square"
)

// ValidateOrientation checks if an orientation is valid
func ValidateOrientation(o Orientation) bool {
	return o == OrientationLandscape || o == OrientationPortrait || o == OrientationSquare
}

// QualityTier ranks the source files of a candidate
type QualityTier string

const (
	TierUHD QualityTier = "uhd"
	TierHD  QualityTier = "hd"
	TierSD  QualityTier = "sd"
	TierHLS QualityTier = "hls"
)

// Rank returns the ordinal of the tier, higher is better. Unknown tiers rank
// below sd and HLS ranks lowest.
func (t QualityTier) Rank() int {
	switch QualityTier(strings.ToLower(string(t))) {
	case TierUHD:
		return 3
	case TierHD:
		return 2
	case TierSD:
		return 1
	case TierHLS:
		return -1
	default:
		return 0
	}
}

// VideoFile is one downloadable rendition of a candidate
type VideoFile struct {
	ID       int64       `json:"id"`
	Quality  QualityTier `json:"quality"`
	FileType string      `json:"file_type"`
	Width    int         `json:"width"`
	Height   int         `json:"height"`
	Link     string      `json:"link"`
}

// Area returns the pixel area of the rendition
func (f VideoFile) Area() int {
	return f.Width * f.Height
}

// IsProgressive reports whether the rendition is a plain container file that
// can be fetched with a single GET. Streaming playlists are excluded.
func (f VideoFile) IsProgressive() bool {
	if f.Link == "" {
		return false
	}
	if QualityTier(strings.ToLower(string(f.Quality))) == TierHLS {
		return false
	}
	fileType := strings.ToLower(f.FileType)
	if strings.Contains(fileType, "mpegurl") {
		return false
	}
	switch fileType {
	case "video/mp4", "video/webm", "video/quicktime":
		return true
	}
	return false
}

// Candidate is a stock footage search result before download
type Candidate struct {
	ID          int64       `json:"id"`
	Width       int         `json:"width"`
	Height      int         `json:"height"`
	Duration    float64     `json:"duration"` // seconds
	Files       []VideoFile `json:"files"`
	Thumbnail   string      `json:"thumbnail"`
	Attribution string      `json:"attribution"`
	URL         string      `json:"url"`
}

// QualityScore ranks a candidate by resolution and duration
func QualityScore(c Candidate, durationWeight float64) float64 {
	return float64(c.Width*c.Height) + c.Duration*durationWeight
}

// InDurationRange reports whether the candidate duration lies in [min, max]
func (c Candidate) InDurationRange(min, max float64) bool {
	return c.Duration >= min && c.Duration <= max
}

// BestFile returns the highest quality progressive rendition. Ties on tier are
// broken by the larger pixel area.
func (c Candidate) BestFile() (VideoFile, bool) {
	var best VideoFile
	found := false
	for _, f := range c.Files {
		if !f.IsProgressive() {
			continue
		}
		if !found {
			best, found = f, true
			continue
		}
		if f.Quality.Rank() > best.Quality.Rank() ||
			(f.Quality.Rank() == best.Quality.Rank() && f.Area() > best.Area()) {
			best = f
		}
	}
	return best, found
}
