package usecase

import "io"

// Blob is an opened stored file. The caller closes Body.
type Blob struct {
	Path        string
	ContentType string
	Body        io.ReadCloser
}
