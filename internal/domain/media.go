package domain

import (
	"fmt"
	"os"
	"time"
)

// AssetKind classifies a local asset
type AssetKind string

const (
	AssetVideo AssetKind = "video"
	AssetAudio AssetKind = "audio"
	AssetImage AssetKind = "image"
)

// LocalAsset is a downloaded or generated file owned by one pipeline run
type LocalAsset struct {
	Path string    `json:"path"`
	Kind AssetKind `json:"kind"`
}

// NewLocalAsset creates an asset after checking the file exists and is not
// empty.
func NewLocalAsset(path string, kind AssetKind) (LocalAsset, error) {
	info, err := os.Stat(path)
	if err != nil {
		return LocalAsset{}, fmt.Errorf("asset %s: %w", path, err)
	}
	if info.IsDir() {
		return LocalAsset{}, fmt.Errorf("asset %s is a directory", path)
	}
	if info.Size() == 0 {
		return LocalAsset{}, fmt.Errorf("asset %s is empty", path)
	}
	return LocalAsset{Path: path, Kind: kind}, nil
}

// DownloadProgress is a snapshot handed to progress observers
type DownloadProgress struct {
	Downloaded     int64
	Total          int64
	Percent        float64
	BytesPerSecond float64
}

// Clip is a video or audio file with a known or probed duration
type Clip struct {
	Path     string
	Duration time.Duration // zero means probe the file
}

// TransitionKind names a transition effect
type TransitionKind string

const (
	TransitionFadeIn    TransitionKind = "fade-in"
	TransitionFadeOut   TransitionKind = "fade-out"
	TransitionSwipeUp   TransitionKind = "swipe-up"
	TransitionSwipeDown TransitionKind = "swipe-down"
	TransitionZoomIn    TransitionKind = "zoom-in"
	TransitionZoomOut   TransitionKind = "zoom-out"
)

// AllTransitionKinds lists every supported transition
var AllTransitionKinds = []TransitionKind{
	TransitionFadeIn,
	TransitionFadeOut,
	TransitionSwipeUp,
	TransitionSwipeDown,
	TransitionZoomIn,
	TransitionZoomOut,
}

// ValidateTransition checks if a transition kind is supported
func ValidateTransition(kind TransitionKind) bool {
	for _, k := range AllTransitionKinds {
		if k == kind {
			return true
		}
	}
	return false
}

// TransitionSpec is a transition kind applied over a duration
type TransitionSpec struct {
	Kind     TransitionKind
	Duration time.Duration
}

// Resolution is a target frame size in pixels
type Resolution struct {
	Width  int
	Height int
}

func (r Resolution) String() string {
	return fmt.Sprintf("%dx%d", r.Width, r.Height)
}

// AspectRatio is the target aspect ratio of the final video
type AspectRatio string

const (
	AspectPortrait  AspectRatio = "9:16"
	AspectLandscape AspectRatio = "16:9"
	AspectSquare    AspectRatio = "1:1"
)

// Resolution returns the output frame size for the aspect ratio
func (a AspectRatio) Resolution() (Resolution, bool) {
	switch a {
	case AspectPortrait:
		return Resolution{Width: 1080, Height: 1920}, true
	case AspectLandscape:
		return Resolution{Width: 1920, Height: 1080}, true
	case AspectSquare:
		return Resolution{Width: 1080, Height: 1080}, true
	}
	return Resolution{}, false
}

// Orientation returns the search orientation matching the aspect ratio
func (a AspectRatio) Orientation() Orientation {
	switch a {
	case AspectLandscape:
		return OrientationLandscape
	case AspectSquare:
		return OrientationSquare
	default:
		return OrientationPortrait
	}
}

// CompilationJob is the input of one compilation
type CompilationJob struct {
	Clips      []Clip
	Audio      Clip
	Resolution Resolution
	Bitrate    string
	Transition TransitionSpec
}
