// Package media inspects local input files before they are uploaded as
// assets: content-type detection by extension and EXIF probing for
// image inputs.
package media

import (
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/evanoberholster/imagemeta"
	"github.com/rs/zerolog/log"
)

// contentTypes maps file extensions to the MIME type declared when
// creating the remote asset. Anything unrecognized uploads as an
// opaque byte stream.
var contentTypes = map[string]string{
	".png":  "image/png",
	".jpg":  "image/jpeg",
	".jpeg": "image/jpeg",
	".heic": "image/heic",
	".webp": "image/webp",
	".mp4":  "video/mp4",
	".webm": "video/webm",
	".mov":  "video/quicktime",
	".json": "application/json",
}

// DetectContentType returns the MIME type for a local file based on its
// extension, falling back to binary/octet-stream.
func DetectContentType(path string) string {
	if ct, ok := contentTypes[strings.ToLower(filepath.Ext(path))]; ok {
		return ct
	}
	return "binary/octet-stream"
}

// IsImage reports whether the path has a recognized image extension.
func IsImage(path string) bool {
	return strings.HasPrefix(DetectContentType(path), "image/")
}

// ImageInfo is the EXIF metadata extracted from an image input.
type ImageInfo struct {
	CameraMake  string
	CameraModel string
	DateTaken   time.Time
	HasDate     bool
	Latitude    float64
	Longitude   float64
	HasGPS      bool
}

// ProbeImage extracts EXIF metadata from an image file. The reader
// pattern means only the metadata bytes are read, not the whole file.
// PNG frames from a renderer typically carry no EXIF; that is not an
// error, the returned info is simply empty.
func ProbeImage(path string) (*ImageInfo, error) {
	file, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("failed to open file: %w", err)
	}
	defer file.Close()

	exifData, err := imagemeta.Decode(file)
	if err != nil {
		return nil, fmt.Errorf("failed to decode EXIF metadata: %w", err)
	}

	info := &ImageInfo{
		CameraMake:  strings.TrimSpace(exifData.Make),
		CameraModel: strings.TrimSpace(exifData.Model),
	}

	gps := exifData.GPS
	if gps.Latitude() != 0 || gps.Longitude() != 0 {
		info.Latitude = gps.Latitude()
		info.Longitude = gps.Longitude()
		info.HasGPS = true
	}

	if !exifData.DateTimeOriginal().IsZero() {
		info.DateTaken = exifData.DateTimeOriginal()
		info.HasDate = true
	} else if !exifData.CreateDate().IsZero() {
		info.DateTaken = exifData.CreateDate()
		info.HasDate = true
	}

	return info, nil
}

// LogInputFile emits a structured summary of an input file before
// upload: size, content type, and camera metadata when available.
func LogInputFile(path string) {
	fi, err := os.Stat(path)
	if err != nil {
		log.Warn().Err(err).Str("path", path).Msg("Cannot stat input file")
		return
	}

	event := log.Info().
		Str("path", path).
		Int64("bytes", fi.Size()).
		Str("contentType", DetectContentType(path))

	if IsImage(path) {
		if info, err := ProbeImage(path); err == nil {
			if info.CameraModel != "" {
				event = event.Str("camera", strings.TrimSpace(info.CameraMake+" "+info.CameraModel))
			}
			if info.HasDate {
				event = event.Time("taken", info.DateTaken)
			}
			if info.HasGPS {
				event = event.Float64("lat", info.Latitude).Float64("lon", info.Longitude)
			}
		}
	}

	event.Msg("Input file")
}
