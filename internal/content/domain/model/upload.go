package model

// UploadFile is one local file queued for upload.
type UploadFile struct {
	Name string
	Data []byte
}

// Progress is the upload cursor: Completed files out of Total.
type Progress struct {
	Completed int `json:"completed"`
	Total     int `json:"total"`
}

// Done reports whether every file of the batch has been processed.
func (p Progress) Done() bool {
	return p.Total > 0 && p.Completed >= p.Total
}
