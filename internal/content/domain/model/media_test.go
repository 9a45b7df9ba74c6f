package model

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestClassify(t *testing.T) {
	cases := []struct {
		ref  string
		want MediaKind
	}{
		{"https://cdn.example.com/memories/1700000000000.mp4", MediaVideo},
		{"clip.WEBM", MediaVideo},
		{"/v1/storage/gallery/1.ogg?download=1", MediaVideo},
		{"https://x.test/a.mov#t=3", MediaVideo},
		{"https://x.test/a.jpg", MediaImage},
		{"https://x.test/a.mp4.png", MediaImage},
		{"no-extension", MediaImage},
		{"", MediaImage},
	}
	for _, tc := range cases {
		t.Run(tc.ref, func(t *testing.T) {
			assert.Equal(t, tc.want, Classify(tc.ref))
		})
	}
}

func TestMediaKind_String(t *testing.T) {
	assert.Equal(t, "video", MediaVideo.String())
	assert.Equal(t, "image", MediaImage.String())
}

func TestExtension(t *testing.T) {
	assert.Equal(t, "jpeg", Extension("IMG_01.JPEG"))
	assert.Equal(t, "", Extension("README"))
}
