package model

import (
	"net/url"
	"path"
	"strings"
)

// MediaKind is how a media reference should be rendered.
type MediaKind int

const (
	// MediaImage is the default for any reference that is not a known video type.
	MediaImage MediaKind = iota
	MediaVideo
)

func (k MediaKind) String() string {
	if k == MediaVideo {
		return "video"
	}
	return "image"
}

var videoExtensions = map[string]struct{}{
	"mp4":  {},
	"webm": {},
	"ogg":  {},
	"mov":  {},
}

// Classify decides the media kind of a reference from its file extension.
// Query strings and fragments are ignored and matching is case-insensitive.
// Anything without a known video extension, including an empty reference, is an image.
func Classify(ref string) MediaKind {
	if _, ok := videoExtensions[Extension(ref)]; ok {
		return MediaVideo
	}
	return MediaImage
}

// Extension returns the lower-cased extension of a URL or file name without the dot.
func Extension(ref string) string {
	p := ref
	if u, err := url.Parse(ref); err == nil && u.Path != "" {
		p = u.Path
	} else if i := strings.IndexAny(p, "?#"); i >= 0 {
		p = p[:i]
	}
	return strings.ToLower(strings.TrimPrefix(path.Ext(p), "."))
}
