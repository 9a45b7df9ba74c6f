package model

import (
	"fmt"
	"strings"
)

// Collection names a remote content collection.
type Collection string

const (
	// CollectionCards holds the long-form memory cards (title, date label, description).
	CollectionCards Collection = "memories"
	// CollectionPhotos holds the gallery photos (single optional caption).
	CollectionPhotos Collection = "gallery"
)

// Collections lists every collection the service knows about.
var Collections = []Collection{CollectionCards, CollectionPhotos}

// ParseCollection accepts either the remote name or its alias ("cards", "photos").
func ParseCollection(name string) (Collection, error) {
	switch strings.ToLower(strings.TrimSpace(name)) {
	case "memories", "cards":
		return CollectionCards, nil
	case "gallery", "photos":
		return CollectionPhotos, nil
	}
	return "", fmt.Errorf("unknown collection %q", name)
}

// Valid reports whether c is a known collection.
func (c Collection) Valid() bool {
	return c == CollectionCards || c == CollectionPhotos
}

// Folder is the storage prefix uploaded media for c lives under.
func (c Collection) Folder() string {
	return string(c)
}

func (c Collection) String() string {
	return string(c)
}
