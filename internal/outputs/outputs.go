// Package outputs persists decoded invocation payloads: individual
// files on disk, or a single zstd-compressed zip bundle.
package outputs

import (
	"archive/zip"
	"encoding/json"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"sort"

	"github.com/klauspost/compress/zstd"
	"github.com/rs/zerolog/log"

	"github.com/fpang/nvcf-media-cli/internal/nvcf"
)

// zipMethodZstd is the ZIP compression method ID for Zstandard (APPNOTE 6.3.7).
const zipMethodZstd uint16 = 93

func init() {
	// Level 12 maps to SpeedBestCompression in klauspost/compress.
	zip.RegisterCompressor(zipMethodZstd, func(w io.Writer) (io.WriteCloser, error) {
		return zstd.NewWriter(w, zstd.WithEncoderLevel(zstd.EncoderLevelFromZstd(12)))
	})
}

// fileEntries flattens a payload into deterministic name/bytes pairs.
// A document payload becomes response.json; bundle outputs keep their
// artifact names with the matching extension.
func fileEntries(payload *nvcf.Payload) (map[string][]byte, error) {
	entries := make(map[string][]byte)

	if payload.Outputs == nil {
		data, err := json.MarshalIndent(payload.Document, "", "  ")
		if err != nil {
			return nil, fmt.Errorf("marshal response document: %w", err)
		}
		entries["response.json"] = data
		return entries, nil
	}

	for name, out := range payload.Outputs {
		switch name {
		case "image":
			entries["image.png"] = out.Data
		case "video":
			entries["video.mp4"] = out.Data
		default:
			data, err := json.MarshalIndent(out.Document, "", "  ")
			if err != nil {
				return nil, fmt.Errorf("marshal output %s: %w", name, err)
			}
			entries[name+".json"] = data
		}
	}
	return entries, nil
}

// WriteFiles writes every decoded output into dir, creating it if
// needed, and returns the written paths sorted by name.
func WriteFiles(dir string, payload *nvcf.Payload) ([]string, error) {
	entries, err := fileEntries(payload)
	if err != nil {
		return nil, err
	}
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return nil, fmt.Errorf("create output directory: %w", err)
	}

	paths := make([]string, 0, len(entries))
	for name, data := range entries {
		path := filepath.Join(dir, name)
		if err := os.WriteFile(path, data, 0o644); err != nil {
			return nil, fmt.Errorf("write %s: %w", path, err)
		}
		paths = append(paths, path)
		log.Debug().Str("path", path).Int("bytes", len(data)).Msg("Output written")
	}
	sort.Strings(paths)

	log.Info().Str("dir", dir).Int("files", len(paths)).Msg("Outputs written")
	return paths, nil
}

// WriteZip writes the payload as a single zstd-compressed zip bundle.
func WriteZip(path string, payload *nvcf.Payload) error {
	entries, err := fileEntries(payload)
	if err != nil {
		return err
	}

	names := make([]string, 0, len(entries))
	for name := range entries {
		names = append(names, name)
	}
	sort.Strings(names)

	f, err := os.Create(path)
	if err != nil {
		return fmt.Errorf("create bundle: %w", err)
	}
	defer f.Close()

	w := zip.NewWriter(f)
	for _, name := range names {
		header := &zip.FileHeader{Name: name, Method: zipMethodZstd}
		entry, err := w.CreateHeader(header)
		if err != nil {
			return fmt.Errorf("create bundle entry %s: %w", name, err)
		}
		if _, err := entry.Write(entries[name]); err != nil {
			return fmt.Errorf("write bundle entry %s: %w", name, err)
		}
	}
	if err := w.Close(); err != nil {
		return fmt.Errorf("close bundle: %w", err)
	}

	log.Info().Str("path", path).Int("entries", len(names)).Msg("Output bundle written")
	return nil
}
