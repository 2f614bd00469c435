package service

import "regexp"

// Remote media_type values.
const (
	MediaTypeText     = "TEXT"
	MediaTypeImage    = "IMAGE"
	MediaTypeVideo    = "VIDEO"
	MediaTypeCarousel = "CAROUSEL"
)

// Thread shapes derived from the media count.
const (
	ShapeText     = "text"
	ShapeSingle   = "single"
	ShapeCarousel = "carousel"
)

// Extensions the platform treats as video. Anything else is posted as an
// image; the remote rejects URLs it cannot fetch, so no validation here.
var videoExtPattern = regexp.MustCompile(`(?i)\.(mp4|mov|avi|webm)($|\?)`)

type MediaItem struct {
	URL  string
	Kind string
}

func DetectMediaKind(url string) string {
	if videoExtPattern.MatchString(url) {
		return MediaTypeVideo
	}
	return MediaTypeImage
}

// ResolveMedia classifies an ordered list of media URLs and determines the
// thread shape. Input order is preserved; for carousels it becomes the child
// order the platform renders.
func ResolveMedia(urls []string) (string, []MediaItem) {
	items := make([]MediaItem, 0, len(urls))
	for _, url := range urls {
		items = append(items, MediaItem{URL: url, Kind: DetectMediaKind(url)})
	}

	switch len(items) {
	case 0:
		return ShapeText, items
	case 1:
		return ShapeSingle, items
	default:
		return ShapeCarousel, items
	}
}
