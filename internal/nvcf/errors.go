package nvcf

import (
	"errors"
	"fmt"
)

// ErrPollTimeout is returned by Call when the polling attempt budget is
// exhausted while the request is still pending. The server may still
// complete the job afterwards; the client simply stops watching.
var ErrPollTimeout = errors.New("maximum polling attempts reached")

// UploadError reports a non-success HTTP status from the asset data
// upload step. The orchestrator treats the asset as absent rather than
// aborting the invocation; callers using PrepareLocalAsset directly can
// branch on it with errors.As.
type UploadError struct {
	AssetName string
	Status    int
	Body      string
}

func (e *UploadError) Error() string {
	return fmt.Sprintf("asset %q upload failed with status code %d: %s", e.AssetName, e.Status, e.Body)
}

// DecodeError reports a malformed body in a nominally-successful
// terminal response: invalid JSON, or a zip archive that cannot be read.
type DecodeError struct {
	ContentType string
	Err         error
}

func (e *DecodeError) Error() string {
	return fmt.Sprintf("decode %s response: %v", e.ContentType, e.Err)
}

func (e *DecodeError) Unwrap() error { return e.Err }

// UnsupportedFormatError reports a terminal response whose declared
// content type is neither application/json nor application/zip.
type UnsupportedFormatError struct {
	ContentType string
}

func (e *UnsupportedFormatError) Error() string {
	return fmt.Sprintf("unsupported content type: %s", e.ContentType)
}
