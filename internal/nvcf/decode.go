package nvcf

import (
	"archive/zip"
	"bytes"
	"encoding/json"
	"fmt"
	"io"
	"path"
	"sort"
	"strings"

	"github.com/klauspost/compress/zstd"
)

// zipMethodZstd is the ZIP compression method ID for Zstandard
// (APPNOTE 6.3.7). Result bundles from the service may use it for
// large video entries.
const zipMethodZstd uint16 = 93

func init() {
	zip.RegisterDecompressor(zipMethodZstd, func(r io.Reader) io.ReadCloser {
		zr, err := zstd.NewReader(r)
		if err != nil {
			return io.NopCloser(&failedReader{err: err})
		}
		return zr.IOReadCloser()
	})
}

// failedReader surfaces a decompressor construction error on first read.
type failedReader struct{ err error }

func (r *failedReader) Read([]byte) (int, error) { return 0, r.err }

// Payload is a decoded terminal response. Exactly one field is set:
// Document for application/json responses, Outputs for application/zip
// bundles. The two success shapes are not unified server-side, so
// callers must handle both.
type Payload struct {
	Document any
	Outputs  map[string]Output
}

// Output is one artifact unpacked from a zip bundle. JSON entries carry
// their parsed document; the image and video entries carry raw bytes.
type Output struct {
	Document any
	Data     []byte
}

// String renders the payload for logging and the Result text field:
// compact JSON for a document payload, a key listing for a bundle.
func (p *Payload) String() string {
	if p.Outputs == nil {
		b, err := json.Marshal(p.Document)
		if err != nil {
			return fmt.Sprintf("%v", p.Document)
		}
		return string(b)
	}
	keys := make([]string, 0, len(p.Outputs))
	for k := range p.Outputs {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	return "zip bundle: " + strings.Join(keys, ", ")
}

// decodePayload dispatches on the declared content type of a terminal
// response. Unknown content types are a closed-world error rather than
// a silent passthrough, keeping format additions localized here.
func decodePayload(contentType string, body []byte) (*Payload, error) {
	switch contentType {
	case "application/json":
		var doc any
		if err := json.Unmarshal(body, &doc); err != nil {
			return nil, &DecodeError{ContentType: contentType, Err: err}
		}
		return &Payload{Document: doc}, nil
	case "application/zip":
		return unpackZip(body)
	default:
		return nil, &UnsupportedFormatError{ContentType: contentType}
	}
}

// unpackZip reads a zip bundle into a named output map. JSON entries
// are parsed and stored under their base name with the extension
// stripped; png and mp4 entries store raw bytes under the fixed keys
// "image" and "video". The bundle is assumed to hold at most one of
// each; later entries overwrite earlier ones.
func unpackZip(body []byte) (*Payload, error) {
	archive, err := zip.NewReader(bytes.NewReader(body), int64(len(body)))
	if err != nil {
		return nil, &DecodeError{ContentType: "application/zip", Err: err}
	}

	outputs := make(map[string]Output)
	for _, f := range archive.File {
		name := f.Name
		if strings.HasSuffix(name, "/") {
			continue
		}

		var key string
		switch {
		case strings.HasSuffix(name, ".json"):
			key = strings.TrimSuffix(path.Base(name), ".json")
		case strings.HasSuffix(name, ".png"):
			key = "image"
		case strings.HasSuffix(name, ".mp4"):
			key = "video"
		default:
			continue
		}

		rc, err := f.Open()
		if err != nil {
			return nil, &DecodeError{ContentType: "application/zip", Err: fmt.Errorf("open entry %s: %w", name, err)}
		}
		data, err := io.ReadAll(rc)
		rc.Close()
		if err != nil {
			return nil, &DecodeError{ContentType: "application/zip", Err: fmt.Errorf("read entry %s: %w", name, err)}
		}

		if key == "image" || key == "video" {
			outputs[key] = Output{Data: data}
			continue
		}
		var doc any
		if err := json.Unmarshal(data, &doc); err != nil {
			return nil, &DecodeError{ContentType: "application/zip", Err: fmt.Errorf("parse entry %s: %w", name, err)}
		}
		outputs[key] = Output{Document: doc}
	}
	return &Payload{Outputs: outputs}, nil
}
