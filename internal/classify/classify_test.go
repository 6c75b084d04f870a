package classify

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestHasVideoExtension(t *testing.T) {
	tests := []struct {
		ref  string
		want bool
	}{
		{"https://cdn.example.com/clips/intro.mp4", true},
		{"https://cdn.example.com/clips/intro.MP4?token=abc", true},
		{"/uploads/loop.webm#t=3", true},
		{"videos/trailer.mov", true},
		{"audio-or-video.ogg", true},
		{"https://cdn.example.com/x.webp", false},
		{"images/hero.jpg", false},
		{"https://example.com/mp4", false},
		{"https://example.com/dir.mp4/file", false},
		{"", false},
		{"   ", false},
		{"%zz/broken.mp4", true},
		{"%zz/broken.png?x=.mp4", false},
		{"data:video/mp4;base64,AAAA", false},
		{"blob:null/2b1c-clip.mp4", false},
	}

	for _, tt := range tests {
		assert.Equal(t, tt.want, HasVideoExtension(tt.ref), tt.ref)
	}
}

func TestExtension(t *testing.T) {
	assert.Equal(t, "jpeg", Extension("https://a.example/photo.final.JPEG"))
	assert.Equal(t, "", Extension("https://a.example/"))
	assert.Equal(t, "", Extension("noext"))
	assert.Equal(t, "", Extension("/.hidden/noext"))
}

func TestReferenceForms(t *testing.T) {
	assert.True(t, IsHandle("blob:http://localhost:8080/abc"))
	assert.True(t, IsHandle("  blob:null/abc"))
	assert.False(t, IsHandle("https://blob.example.com/a"))

	assert.True(t, IsAbsolute("http://a"))
	assert.True(t, IsAbsolute("https://a"))
	assert.True(t, IsAbsolute("//cdn.example.com/a.png"))
	assert.False(t, IsAbsolute("/images/a.png"))

	assert.True(t, IsDataURI("data:image/png;base64,AAAA"))
	assert.False(t, IsDataURI("images/data.png"))
}
