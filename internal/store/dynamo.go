package store

import (
	"context"
	"fmt"
	"strconv"
	"time"

	"github.com/aws/aws-sdk-go-v2/feature/dynamodb/attributevalue"
	"github.com/aws/aws-sdk-go-v2/service/dynamodb"
	"github.com/aws/aws-sdk-go-v2/service/dynamodb/types"
	"github.com/rs/zerolog/log"
)

// Key constants for the single-table design.
const (
	pkPrefix = "SESSION#"
	skInvoke = "INVOKE#"
)

// DynamoStore implements JobStore using AWS DynamoDB.
type DynamoStore struct {
	client    *dynamodb.Client
	tableName string
}

var _ JobStore = (*DynamoStore)(nil)

// NewDynamoStore creates a DynamoStore for the given table.
// The client should be initialized from the shared AWS config.
func NewDynamoStore(client *dynamodb.Client, tableName string) *DynamoStore {
	return &DynamoStore{
		client:    client,
		tableName: tableName,
	}
}

func sessionPK(sessionID string) string {
	return pkPrefix + sessionID
}

// expiresAt returns the Unix epoch timestamp for record expiration.
func expiresAt() int64 {
	return time.Now().Add(JobTTL).Unix()
}

// putItem marshals a record and writes it with PK, SK, and TTL.
func (s *DynamoStore) putItem(ctx context.Context, pk, sk string, data interface{}) error {
	item, err := attributevalue.MarshalMap(data)
	if err != nil {
		return fmt.Errorf("marshal: %w", err)
	}

	item["PK"] = &types.AttributeValueMemberS{Value: pk}
	item["SK"] = &types.AttributeValueMemberS{Value: sk}
	item["expiresAt"] = &types.AttributeValueMemberN{Value: strconv.FormatInt(expiresAt(), 10)}

	_, err = s.client.PutItem(ctx, &dynamodb.PutItemInput{
		TableName: &s.tableName,
		Item:      item,
	})
	if err != nil {
		return fmt.Errorf("PutItem PK=%s SK=%s: %w", pk, sk, err)
	}
	return nil
}

// getItem reads a single item and unmarshals it into out. Returns
// false when the item does not exist.
func (s *DynamoStore) getItem(ctx context.Context, pk, sk string, out interface{}) (bool, error) {
	result, err := s.client.GetItem(ctx, &dynamodb.GetItemInput{
		TableName: &s.tableName,
		Key: map[string]types.AttributeValue{
			"PK": &types.AttributeValueMemberS{Value: pk},
			"SK": &types.AttributeValueMemberS{Value: sk},
		},
	})
	if err != nil {
		return false, fmt.Errorf("GetItem PK=%s SK=%s: %w", pk, sk, err)
	}
	if result.Item == nil {
		return false, nil
	}
	if err := attributevalue.UnmarshalMap(result.Item, out); err != nil {
		return false, fmt.Errorf("unmarshal PK=%s SK=%s: %w", pk, sk, err)
	}
	return true, nil
}

func (s *DynamoStore) PutInvocationJob(ctx context.Context, sessionID string, job *InvocationJob) error {
	if err := s.putItem(ctx, sessionPK(sessionID), skInvoke+job.ID, job); err != nil {
		return fmt.Errorf("put invocation job %s/%s: %w", sessionID, job.ID, err)
	}

	log.Debug().
		Str("sessionId", sessionID).
		Str("jobId", job.ID).
		Str("status", job.Status).
		Int("outputs", len(job.OutputKeys)).
		Msg("Invocation job persisted")
	return nil
}

func (s *DynamoStore) GetInvocationJob(ctx context.Context, sessionID, jobID string) (*InvocationJob, error) {
	var job InvocationJob
	found, err := s.getItem(ctx, sessionPK(sessionID), skInvoke+jobID, &job)
	if err != nil {
		return nil, fmt.Errorf("get invocation job %s/%s: %w", sessionID, jobID, err)
	}
	if !found {
		return nil, nil
	}

	job.ID = jobID
	job.SessionID = sessionID
	return &job, nil
}

// SetInvocationError marks a job failed with the given message,
// preserving upsert semantics for jobs that never got a first write.
func (s *DynamoStore) SetInvocationError(ctx context.Context, sessionID, jobID, msg string) error {
	job, err := s.GetInvocationJob(ctx, sessionID, jobID)
	if err != nil {
		return err
	}
	if job == nil {
		job = &InvocationJob{ID: jobID, SessionID: sessionID, CreatedAt: time.Now()}
	}
	job.Status = StatusError
	job.Error = msg

	log.Error().
		Str("sessionId", sessionID).
		Str("jobId", jobID).
		Str("error", msg).
		Msg("Invocation job failed")
	return s.PutInvocationJob(ctx, sessionID, job)
}
