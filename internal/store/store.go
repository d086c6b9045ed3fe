// Package store persists invocation job records so callers of the
// async Lambda entry point can poll for completion. Records live in a
// single DynamoDB table keyed by session, with a TTL attribute that
// auto-deletes them after 24 hours.
package store

import (
	"context"
	"time"

	"github.com/rs/zerolog/log"
)

// JobTTL is the time-to-live for invocation records, matching the
// lifecycle policy of the S3 prefix holding decoded outputs.
const JobTTL = 24 * time.Hour

// Job statuses.
const (
	StatusProcessing = "processing"
	StatusComplete   = "complete"
	StatusError      = "error"
)

// InvocationJob is one NVCF invocation run by the Lambda entry point.
type InvocationJob struct {
	ID        string `dynamodbav:"-"`
	SessionID string `dynamodbav:"-"`

	Status     string `dynamodbav:"status"`
	Error      string `dynamodbav:"error,omitempty"`
	Operation  string `dynamodbav:"operation"`
	StatusCode int    `dynamodbav:"statusCode,omitempty"`

	// OutputKeys maps output names (video, image, json fragment names)
	// to the S3 keys the decoded artifacts were written to.
	OutputKeys map[string]string `dynamodbav:"outputKeys,omitempty"`

	// ResultURLs maps output names to presigned download URLs.
	ResultURLs map[string]string `dynamodbav:"resultUrls,omitempty"`

	CreatedAt time.Time `dynamodbav:"createdAt"`
}

// JobStore is the persistence interface for invocation records.
// Get returns (nil, nil) when the record does not exist; Put performs
// full-item replacement.
type JobStore interface {
	PutInvocationJob(ctx context.Context, sessionID string, job *InvocationJob) error
	GetInvocationJob(ctx context.Context, sessionID, jobID string) (*InvocationJob, error)
	SetInvocationError(ctx context.Context, sessionID, jobID, msg string) error
}

// MarkProcessing writes the initial processing record for a job. The
// write is best-effort: a rejected write is logged and swallowed so the
// job still runs, and the terminal write re-creates the record.
func MarkProcessing(ctx context.Context, s JobStore, sessionID string, job *InvocationJob) {
	job.Status = StatusProcessing
	if err := s.PutInvocationJob(ctx, sessionID, job); err != nil {
		log.Warn().
			Err(err).
			Str("sessionId", sessionID).
			Str("jobId", job.ID).
			Msg("Failed to record processing status, continuing")
	}
}
