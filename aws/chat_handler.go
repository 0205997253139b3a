package aws

import (
	"context"
	"fmt"
	"time"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/feature/dynamodb/attributevalue"
	"github.com/aws/aws-sdk-go-v2/service/dynamodb"
	"github.com/aws/aws-sdk-go-v2/service/dynamodb/types"

	"github.com/LaithMimi/blendarchatbot2/models"
)

// GetSession retrieves a chat session by ID
func (s *Store) GetSession(ctx context.Context, sessionID string) (*models.ChatSession, error) {
	result, err := s.client.GetItem(ctx, &dynamodb.GetItemInput{
		TableName:      aws.String(s.tables.ChatLogs),
		Key:            stringKey("id", sessionID),
		ConsistentRead: aws.Bool(true),
	})
	if err != nil {
		return nil, fmt.Errorf("failed to get chat session: %w", err)
	}

	if result.Item == nil {
		return nil, nil
	}

	var session models.ChatSession
	if err := attributevalue.UnmarshalMap(result.Item, &session); err != nil {
		return nil, fmt.Errorf("failed to unmarshal chat session: %w", err)
	}

	return &session, nil
}

// CreateSession writes the session only if its ID is unused
func (s *Store) CreateSession(ctx context.Context, session models.ChatSession) (bool, error) {
	if session.Messages == nil {
		session.Messages = []models.Message{}
	}

	av, err := attributevalue.MarshalMap(session)
	if err != nil {
		return false, fmt.Errorf("failed to marshal chat session: %w", err)
	}

	_, err = s.client.PutItem(ctx, &dynamodb.PutItemInput{
		TableName:           aws.String(s.tables.ChatLogs),
		Item:                av,
		ConditionExpression: aws.String("attribute_not_exists(id)"),
	})
	if err != nil {
		if isConditionFailed(err) {
			return false, nil
		}
		return false, fmt.Errorf("failed to create chat session: %w", err)
	}

	return true, nil
}

// AppendMessages appends to the stored message list with list_append so
// concurrent appends never overwrite each other
func (s *Store) AppendMessages(ctx context.Context, sessionID string, msgs []models.Message, updatedAt time.Time) (*models.ChatSession, error) {
	list, err := attributevalue.Marshal(msgs)
	if err != nil {
		return nil, fmt.Errorf("failed to marshal messages: %w", err)
	}

	result, err := s.client.UpdateItem(ctx, &dynamodb.UpdateItemInput{
		TableName:           aws.String(s.tables.ChatLogs),
		Key:                 stringKey("id", sessionID),
		UpdateExpression:    aws.String("SET #msgs = list_append(if_not_exists(#msgs, :empty), :new), updated_at = :ts"),
		ConditionExpression: aws.String("attribute_exists(id)"),
		ExpressionAttributeNames: map[string]string{
			"#msgs": "messages",
		},
		ExpressionAttributeValues: map[string]types.AttributeValue{
			":empty": &types.AttributeValueMemberL{Value: []types.AttributeValue{}},
			":new":   list,
			":ts":    timeValue(updatedAt),
		},
		ReturnValues: types.ReturnValueAllNew,
	})
	if err != nil {
		if isConditionFailed(err) {
			return nil, fmt.Errorf("chat session %s not found", sessionID)
		}
		return nil, fmt.Errorf("failed to append messages: %w", err)
	}

	var session models.ChatSession
	if err := attributevalue.UnmarshalMap(result.Attributes, &session); err != nil {
		return nil, fmt.Errorf("failed to unmarshal chat session: %w", err)
	}

	return &session, nil
}

// ListSessions scans every chat session
func (s *Store) ListSessions(ctx context.Context) ([]models.ChatSession, error) {
	var sessions []models.ChatSession
	var startKey map[string]types.AttributeValue

	for {
		result, err := s.client.Scan(ctx, &dynamodb.ScanInput{
			TableName:         aws.String(s.tables.ChatLogs),
			ExclusiveStartKey: startKey,
		})
		if err != nil {
			return nil, fmt.Errorf("failed to scan chat sessions: %w", err)
		}

		for _, item := range result.Items {
			var session models.ChatSession
			if err := attributevalue.UnmarshalMap(item, &session); err != nil {
				return nil, fmt.Errorf("failed to unmarshal chat session: %w", err)
			}
			sessions = append(sessions, session)
		}

		if len(result.LastEvaluatedKey) == 0 {
			break
		}
		startKey = result.LastEvaluatedKey
	}

	return sessions, nil
}

// ListSessionsByUser queries the user_id index for one owner's sessions
func (s *Store) ListSessionsByUser(ctx context.Context, userID string) ([]models.ChatSession, error) {
	var sessions []models.ChatSession
	var startKey map[string]types.AttributeValue

	for {
		result, err := s.client.Query(ctx, &dynamodb.QueryInput{
			TableName:              aws.String(s.tables.ChatLogs),
			IndexName:              aws.String(ChatLogsUserIDGSI),
			KeyConditionExpression: aws.String("user_id = :uid"),
			ExpressionAttributeValues: map[string]types.AttributeValue{
				":uid": &types.AttributeValueMemberS{Value: userID},
			},
			ExclusiveStartKey: startKey,
		})
		if err != nil {
			return nil, fmt.Errorf("failed to query chat sessions by user: %w", err)
		}

		var page []models.ChatSession
		if err := attributevalue.UnmarshalListOfMaps(result.Items, &page); err != nil {
			return nil, fmt.Errorf("failed to unmarshal chat sessions: %w", err)
		}
		sessions = append(sessions, page...)

		if len(result.LastEvaluatedKey) == 0 {
			break
		}
		startKey = result.LastEvaluatedKey
	}

	return sessions, nil
}

// DeleteSession deletes a session and reports whether it existed
func (s *Store) DeleteSession(ctx context.Context, sessionID string) (bool, error) {
	result, err := s.client.DeleteItem(ctx, &dynamodb.DeleteItemInput{
		TableName:    aws.String(s.tables.ChatLogs),
		Key:          stringKey("id", sessionID),
		ReturnValues: types.ReturnValueAllOld,
	})
	if err != nil {
		return false, fmt.Errorf("failed to delete chat session: %w", err)
	}

	return len(result.Attributes) > 0, nil
}

// DeleteAllSessions removes every session in batches and returns how many
// were deleted
func (s *Store) DeleteAllSessions(ctx context.Context) (int, error) {
	op := s.log.StartOperation("delete all chat sessions", slowBulkDeleteMs)
	deleted, err := s.deleteAllSessions(ctx)
	if err != nil {
		op.CompleteWithError(ctx, err)
		return deleted, err
	}
	op.Complete(ctx)
	return deleted, nil
}

func (s *Store) deleteAllSessions(ctx context.Context) (int, error) {
	var keys []map[string]types.AttributeValue
	var startKey map[string]types.AttributeValue

	for {
		result, err := s.client.Scan(ctx, &dynamodb.ScanInput{
			TableName:            aws.String(s.tables.ChatLogs),
			ProjectionExpression: aws.String("id"),
			ExclusiveStartKey:    startKey,
		})
		if err != nil {
			return 0, fmt.Errorf("failed to scan chat sessions: %w", err)
		}
		for _, item := range result.Items {
			keys = append(keys, map[string]types.AttributeValue{"id": item["id"]})
		}
		if len(result.LastEvaluatedKey) == 0 {
			break
		}
		startKey = result.LastEvaluatedKey
	}

	deleted := 0
	for start := 0; start < len(keys); start += batchWriteLimit {
		end := start + batchWriteLimit
		if end > len(keys) {
			end = len(keys)
		}

		requests := make([]types.WriteRequest, 0, end-start)
		for _, key := range keys[start:end] {
			requests = append(requests, types.WriteRequest{
				DeleteRequest: &types.DeleteRequest{Key: key},
			})
		}

		if err := s.batchDelete(ctx, requests); err != nil {
			return deleted, err
		}
		deleted += len(requests)
	}

	s.log.InfoWithFieldsCtx(ctx, "Deleted all chat sessions", map[string]interface{}{
		"count": deleted,
	})
	return deleted, nil
}

func (s *Store) batchDelete(ctx context.Context, requests []types.WriteRequest) error {
	pending := map[string][]types.WriteRequest{s.tables.ChatLogs: requests}

	for attempt := 0; attempt < 5 && len(pending) > 0; attempt++ {
		if attempt > 0 {
			select {
			case <-ctx.Done():
				return ctx.Err()
			case <-time.After(time.Duration(attempt*100) * time.Millisecond):
			}
		}

		result, err := s.client.BatchWriteItem(ctx, &dynamodb.BatchWriteItemInput{
			RequestItems: pending,
		})
		if err != nil {
			return fmt.Errorf("failed to batch delete chat sessions: %w", err)
		}
		pending = result.UnprocessedItems
	}

	if len(pending) > 0 {
		return fmt.Errorf("failed to delete %d chat sessions after retries", len(pending[s.tables.ChatLogs]))
	}
	return nil
}
