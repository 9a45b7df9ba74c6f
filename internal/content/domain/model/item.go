package model

import "sort"

// ContentItem is one record of either collection. Cards use Title, Date and Description;
// photos use Caption. ID is assigned by the remote service.
type ContentItem struct {
	ID          int64  `json:"id" bson:"_id"`
	MediaRef    string `json:"img" bson:"img"`
	Title       string `json:"title,omitempty" bson:"title,omitempty"`
	Date        string `json:"date,omitempty" bson:"date,omitempty"`
	Description string `json:"description,omitempty" bson:"description,omitempty"`
	Caption     string `json:"caption,omitempty" bson:"caption,omitempty"`
}

// Kind classifies the item's media reference.
func (i ContentItem) Kind() MediaKind {
	return Classify(i.MediaRef)
}

// SortAscending orders items by id, lowest first. The sort is stable.
func SortAscending(items []ContentItem) {
	sort.SliceStable(items, func(a, b int) bool { return items[a].ID < items[b].ID })
}

// Descending returns a copy of items ordered by id, highest first.
func Descending(items []ContentItem) []ContentItem {
	out := append([]ContentItem(nil), items...)
	sort.SliceStable(out, func(a, b int) bool { return out[a].ID > out[b].ID })
	return out
}

// IDs is a convenience for tests and logs.
func IDs(items []ContentItem) []int64 {
	ids := make([]int64, len(items))
	for i, it := range items {
		ids[i] = it.ID
	}
	return ids
}
