package nvcf

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"os"

	"github.com/rs/zerolog/log"
)

// assetCreateResponse is the response from POST {base}/assets.
type assetCreateResponse struct {
	AssetID   string `json:"assetId"`
	UploadURL string `json:"uploadUrl"`
}

// UploadOutcome is the tagged result of preparing one local asset.
// Exactly one of AssetID or Err is meaningful: a successful upload
// carries the server-assigned identifier, a failed one carries the
// reason the asset is unavailable.
type UploadOutcome struct {
	Name    string
	AssetID string
	Err     error
}

// Uploaded reports whether the asset is available for referencing.
func (o UploadOutcome) Uploaded() bool { return o.Err == nil }

// CreateAsset registers a new NVCF asset of the given content type and
// returns its identifier and the presigned URL to upload bytes to.
// Created assets carry a one-hour server-side TTL; the client never
// deletes them.
func (c *Client) CreateAsset(ctx context.Context, name, contentType string) (assetID, uploadURL string, err error) {
	payload, err := json.Marshal(map[string]string{
		"contentType": contentType,
		"description": name,
	})
	if err != nil {
		return "", "", fmt.Errorf("marshal asset request: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.baseURL+"/assets", bytes.NewReader(payload))
	if err != nil {
		return "", "", fmt.Errorf("build asset request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("Authorization", "Bearer "+c.token)

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return "", "", fmt.Errorf("create asset: %w", err)
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return "", "", fmt.Errorf("read asset response: %w", err)
	}

	var created assetCreateResponse
	if err := json.Unmarshal(body, &created); err != nil {
		return "", "", fmt.Errorf("parse asset response: %w", err)
	}
	if created.AssetID == "" || created.UploadURL == "" {
		return "", "", fmt.Errorf("unexpected asset response (status %d): missing assetId or uploadUrl", resp.StatusCode)
	}

	log.Debug().Str("asset", name).Str("assetId", created.AssetID).Msg("Asset created")
	return created.AssetID, created.UploadURL, nil
}

// uploadAssetData PUTs raw bytes to the presigned upload URL returned
// by CreateAsset. A non-200 status yields an *UploadError; the caller
// decides whether the invocation proceeds without the asset.
func (c *Client) uploadAssetData(ctx context.Context, uploadURL, name string, data []byte) error {
	req, err := http.NewRequestWithContext(ctx, http.MethodPut, uploadURL, bytes.NewReader(data))
	if err != nil {
		return fmt.Errorf("build upload request: %w", err)
	}
	req.Header.Set("Content-Type", assetContentType)
	req.Header.Set("x-amz-meta-nvcf-asset-description", name)

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return fmt.Errorf("upload asset data: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		body, _ := io.ReadAll(resp.Body)
		return &UploadError{AssetName: name, Status: resp.StatusCode, Body: string(body)}
	}
	return nil
}

// PrepareLocalAsset creates an NVCF asset for a local file and uploads
// its bytes, returning the asset identifier. It fails before any
// network call when the file does not exist. A rejected upload (non-200
// PUT) returns an *UploadError wrapping the status and response body.
func (c *Client) PrepareLocalAsset(ctx context.Context, name, path string) (string, error) {
	if _, err := os.Stat(path); err != nil {
		return "", fmt.Errorf("asset file: %w", err)
	}

	data, err := os.ReadFile(path)
	if err != nil {
		return "", fmt.Errorf("read asset file: %w", err)
	}

	assetID, uploadURL, err := c.CreateAsset(ctx, name, assetContentType)
	if err != nil {
		return "", err
	}

	if err := c.uploadAssetData(ctx, uploadURL, name, data); err != nil {
		return "", err
	}

	log.Info().
		Str("asset", name).
		Str("assetId", assetID).
		Int("bytes", len(data)).
		Msg("Asset uploaded")
	return assetID, nil
}
