package nvcf

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"mime"
	"net"
	"net/http"
	"os"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"
)

// Result is the uniform envelope produced by every invocation, win or
// lose. ResponseText holds the raw body text on a job failure, the
// literal "Connection Timeout" when reading a successful body times
// out, and the payload rendering on success. Output is nil unless
// decoding succeeded. StatusCode always reflects the last HTTP response
// actually observed, never a synthesized value.
type Result struct {
	ResponseText string
	Output       *Payload
	StatusCode   int
}

// submitResponse is the JSON body of a pending (202) response.
type submitResponse struct {
	ReqID string `json:"reqId"`
}

// submit posts the invocation request to the function endpoint and
// returns the first observed response with its body unread.
func (c *Client) submit(ctx context.Context, body *requestBody, header http.Header) (*http.Response, error) {
	payload, err := json.Marshal(body)
	if err != nil {
		return nil, fmt.Errorf("marshal request body: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.functionURL, bytes.NewReader(payload))
	if err != nil {
		return nil, fmt.Errorf("build submit request: %w", err)
	}
	for k, vs := range header {
		for _, v := range vs {
			req.Header.Set(k, v)
		}
	}

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return nil, fmt.Errorf("submit request: %w", err)
	}
	return resp, nil
}

// pollUntilTerminal re-checks a pending submission against the status
// endpoint until a non-202 response arrives or the attempt budget runs
// out. The delay doubles after each pending re-check, capped at the
// configured maximum. Transport failures propagate immediately; the
// backoff only spaces out "still pending" responses.
//
// For one submission this performs at most maxAttempts status requests,
// strictly serialized, never overlapping.
func (c *Client) pollUntilTerminal(ctx context.Context, logger zerolog.Logger, resp *http.Response) (*http.Response, error) {
	attempt := 0
	delay := c.initialDelay

	for resp.StatusCode == http.StatusAccepted && attempt < c.maxAttempts {
		body, err := io.ReadAll(resp.Body)
		resp.Body.Close()
		if err != nil {
			return nil, fmt.Errorf("read pending response: %w", err)
		}
		var pending submitResponse
		if err := json.Unmarshal(body, &pending); err != nil {
			return nil, fmt.Errorf("parse pending response: %w", err)
		}

		req, err := http.NewRequestWithContext(ctx, http.MethodGet, c.baseURL+"/exec/status/"+pending.ReqID, nil)
		if err != nil {
			return nil, fmt.Errorf("build status request: %w", err)
		}
		req.Header.Set("Authorization", "Bearer "+c.token)

		next, err := c.httpClient.Do(req)
		if err != nil {
			logger.Error().Err(err).Str("reqId", pending.ReqID).Msg("Network error during polling")
			return nil, fmt.Errorf("status poll: %w", err)
		}
		resp = next
		if resp.StatusCode != http.StatusAccepted {
			break
		}

		attempt++
		if attempt < c.maxAttempts {
			delay = delay * 2
			if delay > c.maxBackoff {
				delay = c.maxBackoff
			}
			logger.Debug().
				Str("reqId", pending.ReqID).
				Dur("delay", delay).
				Int("attempt", attempt).
				Int("maxAttempts", c.maxAttempts).
				Msg("Request pending, retrying")
			select {
			case <-ctx.Done():
				resp.Body.Close()
				return nil, ctx.Err()
			case <-time.After(delay):
			}
		}
	}

	if attempt >= c.maxAttempts {
		resp.Body.Close()
		logger.Error().Int("attempts", attempt).Msg("Polling timed out after maximum attempts")
		return nil, ErrPollTimeout
	}
	return resp, nil
}

// prepareAssets uploads every local file as an asset and returns one
// tagged outcome per path, in order. A rejected upload (*UploadError)
// is recorded in the outcome so the invocation can proceed without the
// asset; missing files and transport failures abort immediately.
func (c *Client) prepareAssets(ctx context.Context, logger zerolog.Logger, filepaths []string) ([]UploadOutcome, error) {
	outcomes := make([]UploadOutcome, 0, len(filepaths))
	for _, fp := range filepaths {
		assetID, err := c.PrepareLocalAsset(ctx, fp, fp)
		if err != nil {
			var upErr *UploadError
			if !errors.As(err, &upErr) {
				return nil, err
			}
			logger.Error().
				Str("asset", fp).
				Int("status", upErr.Status).
				Str("body", upErr.Body).
				Msg("Asset upload failed, continuing without asset")
			outcomes = append(outcomes, UploadOutcome{Name: fp, Err: err})
			continue
		}
		outcomes = append(outcomes, UploadOutcome{Name: fp, AssetID: assetID})
	}
	return outcomes, nil
}

// Call runs one invocation end to end: upload every file as an asset,
// build the command and request, submit, poll to a terminal status, and
// decode. Per-asset upload rejections are logged and tolerated as
// absences; the request is built only after every upload has resolved.
//
// A non-200 terminal status is returned as data in the Result. Only
// missing local files, polling exhaustion (ErrPollTimeout), decode
// failures, and transport errors are returned as errors.
func (c *Client) Call(ctx context.Context, operation string, params []Param, filepaths []string) (*Result, error) {
	logger := log.With().Str("invocation", uuid.NewString()).Logger()

	outcomes, err := c.prepareAssets(ctx, logger, filepaths)
	if err != nil {
		return nil, err
	}
	var assetIDs []string
	for _, o := range outcomes {
		if o.Uploaded() {
			assetIDs = append(assetIDs, o.AssetID)
		}
	}

	command := GenerateCommand(operation, params)
	body, header := c.formatRequest(command, assetIDs)
	logger.Info().
		Str("operation", operation).
		Int("assets", len(assetIDs)).
		Msg("Submitting function invocation")

	resp, err := c.submit(ctx, body, header)
	if err != nil {
		return nil, err
	}

	final, err := c.pollUntilTerminal(ctx, logger, resp)
	if err != nil {
		return nil, err
	}
	defer final.Body.Close()

	raw, err := io.ReadAll(final.Body)
	if err != nil {
		if final.StatusCode == http.StatusOK && isTimeout(err) {
			logger.Warn().Err(err).Msg("Timed out reading successful response body")
			return &Result{ResponseText: "Connection Timeout", StatusCode: final.StatusCode}, nil
		}
		return nil, fmt.Errorf("read response body: %w", err)
	}

	if final.StatusCode != http.StatusOK {
		logger.Warn().
			Int("status", final.StatusCode).
			Msg("Invocation finished with non-success status")
		return &Result{ResponseText: string(raw), StatusCode: final.StatusCode}, nil
	}

	payload, err := decodePayload(responseContentType(final), raw)
	if err != nil {
		return nil, err
	}

	logger.Info().Int("status", final.StatusCode).Msg("Invocation complete")
	return &Result{
		ResponseText: payload.String(),
		Output:       payload,
		StatusCode:   final.StatusCode,
	}, nil
}

// responseContentType returns the media type of a response with any
// parameters (charset, boundary) stripped.
func responseContentType(resp *http.Response) string {
	ct := resp.Header.Get("Content-Type")
	mediaType, _, err := mime.ParseMediaType(ct)
	if err != nil {
		return ct
	}
	return mediaType
}

// isTimeout reports whether err is a network or deadline timeout.
func isTimeout(err error) bool {
	var netErr net.Error
	if errors.As(err, &netErr) && netErr.Timeout() {
		return true
	}
	return errors.Is(err, os.ErrDeadlineExceeded) || errors.Is(err, context.DeadlineExceeded)
}
