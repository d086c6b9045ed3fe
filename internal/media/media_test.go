package media

import "testing"

func TestDetectContentType(t *testing.T) {
	cases := []struct {
		path string
		want string
	}{
		{"frame.png", "image/png"},
		{"clip.MP4", "video/mp4"},
		{"photo.JPEG", "image/jpeg"},
		{"result.json", "application/json"},
		{"blob.bin", "binary/octet-stream"},
		{"noextension", "binary/octet-stream"},
	}
	for _, tc := range cases {
		if got := DetectContentType(tc.path); got != tc.want {
			t.Errorf("DetectContentType(%q) = %q, want %q", tc.path, got, tc.want)
		}
	}
}

func TestIsImage(t *testing.T) {
	if !IsImage("a.png") {
		t.Error("png must be an image")
	}
	if IsImage("a.mp4") {
		t.Error("mp4 must not be an image")
	}
}
