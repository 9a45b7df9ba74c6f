package model

// Metadata is the text payload shared by every record of one submit action.
// Only the fields that belong to the target collection are used.
type Metadata struct {
	Title       string `json:"title,omitempty"`
	Date        string `json:"date,omitempty"`
	Description string `json:"description,omitempty"`
	Caption     string `json:"caption,omitempty"`
}

// Record builds a new, not yet persisted item for c with the given media reference.
func (m Metadata) Record(c Collection, mediaRef string) ContentItem {
	item := ContentItem{MediaRef: mediaRef}
	switch c {
	case CollectionCards:
		item.Title = m.Title
		item.Date = m.Date
		item.Description = m.Description
	case CollectionPhotos:
		item.Caption = m.Caption
	}
	return item
}

// Patch returns an update that overwrites every metadata field of c and leaves MediaRef alone.
func (m Metadata) Patch(c Collection) Patch {
	var p Patch
	switch c {
	case CollectionCards:
		p.Title = strPtr(m.Title)
		p.Date = strPtr(m.Date)
		p.Description = strPtr(m.Description)
	case CollectionPhotos:
		p.Caption = strPtr(m.Caption)
	}
	return p
}

// Patch is a partial record. Nil fields are left unchanged.
type Patch struct {
	MediaRef    *string `json:"img,omitempty"`
	Title       *string `json:"title,omitempty"`
	Date        *string `json:"date,omitempty"`
	Description *string `json:"description,omitempty"`
	Caption     *string `json:"caption,omitempty"`
}

// WithMediaRef returns a copy of p that also replaces the media reference.
func (p Patch) WithMediaRef(ref string) Patch {
	p.MediaRef = strPtr(ref)
	return p
}

// Empty reports whether the patch changes nothing.
func (p Patch) Empty() bool {
	return p.MediaRef == nil && p.Title == nil && p.Date == nil && p.Description == nil && p.Caption == nil
}

// ApplyTo overwrites the non-nil fields of p onto item.
func (p Patch) ApplyTo(item *ContentItem) {
	if p.MediaRef != nil {
		item.MediaRef = *p.MediaRef
	}
	if p.Title != nil {
		item.Title = *p.Title
	}
	if p.Date != nil {
		item.Date = *p.Date
	}
	if p.Description != nil {
		item.Description = *p.Description
	}
	if p.Caption != nil {
		item.Caption = *p.Caption
	}
}

// Fields flattens the patch into a column map, as stored.
func (p Patch) Fields() map[string]interface{} {
	fields := make(map[string]interface{})
	if p.MediaRef != nil {
		fields["img"] = *p.MediaRef
	}
	if p.Title != nil {
		fields["title"] = *p.Title
	}
	if p.Date != nil {
		fields["date"] = *p.Date
	}
	if p.Description != nil {
		fields["description"] = *p.Description
	}
	if p.Caption != nil {
		fields["caption"] = *p.Caption
	}
	return fields
}

func strPtr(s string) *string { return &s }
