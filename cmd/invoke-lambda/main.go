// Package main provides the async invocation Lambda entry point.
//
// The Lambda is invoked asynchronously (InvocationType=Event) with one
// NVCF job per event: it stages the session's input media from S3,
// runs the full invocation pipeline (asset upload, submit, poll,
// decode), uploads the decoded outputs back to S3, and records the job
// outcome in DynamoDB. Callers poll DynamoDB for completion.
//
// Event format:
//
//	{
//	  "sessionId": "uuid",
//	  "jobId": "invoke-xxx",
//	  "operation": "vis_control",
//	  "params": [{"key": "prompt", "value": "rainy night"}, ...],
//	  "inputKeys": ["uuid/control.mp4", ...]
//	}
package main

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"runtime"
	"time"

	"github.com/aws/aws-lambda-go/lambda"
	"github.com/aws/aws-sdk-go-v2/aws"
	awsconfig "github.com/aws/aws-sdk-go-v2/config"
	"github.com/aws/aws-sdk-go-v2/service/dynamodb"
	"github.com/aws/aws-sdk-go-v2/service/s3"
	"github.com/aws/aws-sdk-go-v2/service/ssm"
	"github.com/rs/zerolog/log"

	"github.com/fpang/nvcf-media-cli/internal/logging"
	"github.com/fpang/nvcf-media-cli/internal/metrics"
	"github.com/fpang/nvcf-media-cli/internal/nvcf"
	"github.com/fpang/nvcf-media-cli/internal/outputs"
	"github.com/fpang/nvcf-media-cli/internal/s3util"
	"github.com/fpang/nvcf-media-cli/internal/store"
)

var coldStart = true

// AWS clients initialized at cold start.
var (
	s3Client    *s3.Client
	presigner   *s3.PresignClient
	mediaBucket string
	jobStore    *store.DynamoStore
	nvcfClient  *nvcf.Client
)

// resultURLExpiry is how long presigned output download links stay valid.
const resultURLExpiry = 1 * time.Hour

// InvokeEvent is the event received from the API Lambda.
type InvokeEvent struct {
	SessionID string       `json:"sessionId"`
	JobID     string       `json:"jobId"`
	Operation string       `json:"operation"`
	Params    []EventParam `json:"params,omitempty"`
	InputKeys []string     `json:"inputKeys,omitempty"`
}

// EventParam is one ordered key/value function parameter.
type EventParam struct {
	Key   string `json:"key"`
	Value string `json:"value"`
}

func init() {
	initStart := time.Now()
	logging.Init()

	cfg, err := awsconfig.LoadDefaultConfig(context.Background())
	if err != nil {
		log.Fatal().Err(err).Msg("Failed to load AWS config")
	}
	log.Debug().Str("region", cfg.Region).Msg("AWS config loaded")

	s3Client = s3.NewFromConfig(cfg)
	presigner = s3.NewPresignClient(s3Client)
	mediaBucket = os.Getenv("MEDIA_BUCKET_NAME")
	if mediaBucket == "" {
		log.Fatal().Msg("MEDIA_BUCKET_NAME environment variable is required")
	}

	dynamoTableName := os.Getenv("DYNAMO_TABLE_NAME")
	if dynamoTableName == "" {
		log.Fatal().Msg("DYNAMO_TABLE_NAME environment variable is required")
	}
	ddbClient := dynamodb.NewFromConfig(cfg)
	jobStore = store.NewDynamoStore(ddbClient, dynamoTableName)

	// Load the NGC API token from SSM Parameter Store.
	token := os.Getenv("NGC_API_KEY")
	if token == "" {
		ssmClient := ssm.NewFromConfig(cfg)
		paramName := os.Getenv("SSM_NGC_API_KEY_PARAM")
		if paramName == "" {
			paramName = "/nvcf-media/prod/ngc-api-key"
		}
		ssmStart := time.Now()
		result, err := ssmClient.GetParameter(context.Background(), &ssm.GetParameterInput{
			Name:           &paramName,
			WithDecryption: aws.Bool(true),
		})
		if err != nil {
			log.Fatal().Err(err).Str("param", paramName).Msg("Failed to read NGC token from SSM")
		}
		token = *result.Parameter.Value
		log.Debug().Str("param", paramName).Dur("elapsed", time.Since(ssmStart)).Msg("NGC token loaded from SSM")
	}

	var opts []nvcf.Option
	if baseURL := os.Getenv("NVCF_BASE_URL"); baseURL != "" {
		opts = append(opts, nvcf.WithBaseURL(baseURL))
	}
	if funcURL := os.Getenv("NVCF_FUNCTION_URL"); funcURL != "" {
		opts = append(opts, nvcf.WithFunctionURL(funcURL))
	}
	nvcfClient = nvcf.NewClient(token, opts...)

	log.Info().
		Str("function", "invoke-lambda").
		Str("goVersion", runtime.Version()).
		Str("region", cfg.Region).
		Str("table", dynamoTableName).
		Dur("initDuration", time.Since(initStart)).
		Msg("Invoke Lambda init complete")
}

func main() {
	lambda.Start(handler)
}

func handler(ctx context.Context, event InvokeEvent) error {
	if coldStart {
		coldStart = false
		log.Info().Str("function", "invoke-lambda").Msg("Cold start — first invocation")
	}
	log.Info().
		Str("sessionId", event.SessionID).
		Str("jobId", event.JobID).
		Str("operation", event.Operation).
		Int("inputCount", len(event.InputKeys)).
		Msg("Invoke Lambda invoked")

	if event.SessionID == "" || event.JobID == "" {
		return fmt.Errorf("sessionId and jobId are required")
	}

	jobStart := time.Now()
	store.MarkProcessing(ctx, jobStore, event.SessionID, &store.InvocationJob{
		ID: event.JobID, Operation: event.Operation, CreatedAt: jobStart,
	})

	// Stage input media from S3 into local files for asset upload.
	var inputPaths []string
	for _, key := range event.InputKeys {
		path, cleanup, err := s3util.DownloadToTempFile(ctx, s3Client, mediaBucket, key)
		if err != nil {
			return setJobError(ctx, event, fmt.Sprintf("failed to stage input %s: %v", key, err))
		}
		defer cleanup()
		inputPaths = append(inputPaths, path)
	}

	params := make([]nvcf.Param, 0, len(event.Params))
	for _, p := range event.Params {
		params = append(params, nvcf.Param{Key: p.Key, Value: p.Value})
	}

	result, err := nvcfClient.Call(ctx, event.Operation, params, inputPaths)
	if err != nil {
		return setJobError(ctx, event, fmt.Sprintf("invocation failed: %v", err))
	}

	if result.Output == nil {
		// The function reported a failure; record it as job data.
		job := &store.InvocationJob{
			ID: event.JobID, Status: store.StatusError,
			Operation: event.Operation, StatusCode: result.StatusCode,
			Error: result.ResponseText, CreatedAt: jobStart,
		}
		log.Error().
			Str("jobId", event.JobID).
			Str("sessionId", event.SessionID).
			Int("status", result.StatusCode).
			Msg("Function reported a failure")
		return jobStore.PutInvocationJob(ctx, event.SessionID, job)
	}

	// Write decoded outputs locally, then persist them to S3.
	outDir := filepath.Join(os.TempDir(), "nvcf-out", event.JobID)
	defer os.RemoveAll(outDir)
	paths, err := outputs.WriteFiles(outDir, result.Output)
	if err != nil {
		return setJobError(ctx, event, fmt.Sprintf("failed to write outputs: %v", err))
	}

	outputKeys := make(map[string]string, len(paths))
	resultURLs := make(map[string]string, len(paths))
	for _, path := range paths {
		name := filepath.Base(path)
		key := fmt.Sprintf("%s/results/%s/%s", event.SessionID, event.JobID, name)
		if err := s3util.UploadFile(ctx, s3Client, mediaBucket, key, path); err != nil {
			return setJobError(ctx, event, fmt.Sprintf("failed to upload %s: %v", name, err))
		}
		url, err := s3util.PresignGet(ctx, presigner, mediaBucket, key, resultURLExpiry)
		if err != nil {
			return setJobError(ctx, event, fmt.Sprintf("failed to presign %s: %v", name, err))
		}
		outputKeys[name] = key
		resultURLs[name] = url
	}

	err = jobStore.PutInvocationJob(ctx, event.SessionID, &store.InvocationJob{
		ID: event.JobID, Status: store.StatusComplete,
		Operation: event.Operation, StatusCode: result.StatusCode,
		OutputKeys: outputKeys, ResultURLs: resultURLs,
		CreatedAt: jobStart,
	})
	if err != nil {
		return err
	}

	log.Info().
		Str("jobId", event.JobID).
		Str("sessionId", event.SessionID).
		Int("outputs", len(outputKeys)).
		Dur("duration", time.Since(jobStart)).
		Msg("Invocation job complete")

	metrics.New("NvcfMedia").
		Dimension("Operation", event.Operation).
		Metric("JobDurationMs", float64(time.Since(jobStart).Milliseconds()), metrics.UnitMilliseconds).
		Metric("JobOutputs", float64(len(outputKeys)), metrics.UnitCount).
		Count("JobSuccess").
		Property("jobId", event.JobID).
		Property("sessionId", event.SessionID).
		Flush()

	return nil
}

// setJobError records the failure in DynamoDB. It returns nil so the
// Lambda runtime does not retry; the error lives in the job record.
func setJobError(ctx context.Context, event InvokeEvent, msg string) error {
	if err := jobStore.SetInvocationError(ctx, event.SessionID, event.JobID, msg); err != nil {
		log.Error().Err(err).Str("jobId", event.JobID).Msg("Failed to record job error")
	}
	metrics.New("NvcfMedia").
		Dimension("Operation", event.Operation).
		Count("JobError").
		Property("jobId", event.JobID).
		Property("sessionId", event.SessionID).
		Flush()
	return nil
}
