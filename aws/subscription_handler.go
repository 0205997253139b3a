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

// GetSubscription retrieves the subscription for a user
func (s *Store) GetSubscription(ctx context.Context, userID string) (*models.Subscription, error) {
	result, err := s.client.GetItem(ctx, &dynamodb.GetItemInput{
		TableName:      aws.String(s.tables.Subscriptions),
		Key:            stringKey("user_id", userID),
		ConsistentRead: aws.Bool(true),
	})
	if err != nil {
		return nil, fmt.Errorf("failed to get subscription: %w", err)
	}

	if result.Item == nil {
		return nil, nil
	}

	var subscription models.Subscription
	if err := attributevalue.UnmarshalMap(result.Item, &subscription); err != nil {
		return nil, fmt.Errorf("failed to unmarshal subscription: %w", err)
	}

	return &subscription, nil
}

// PutSubscription writes the whole subscription record
func (s *Store) PutSubscription(ctx context.Context, sub models.Subscription) error {
	av, err := attributevalue.MarshalMap(sub)
	if err != nil {
		return fmt.Errorf("failed to marshal subscription: %w", err)
	}

	_, err = s.client.PutItem(ctx, &dynamodb.PutItemInput{
		TableName: aws.String(s.tables.Subscriptions),
		Item:      av,
	})
	if err != nil {
		return fmt.Errorf("failed to save subscription: %w", err)
	}

	return nil
}

// ExpireSubscription marks the subscription expired if its status and end
// date are still the ones that were read. A renewal moves end_date, so a
// concurrent renewal wins.
func (s *Store) ExpireSubscription(ctx context.Context, userID, fromStatus string, readEnd, at time.Time) (bool, error) {
	end, err := attributevalue.Marshal(readEnd)
	if err != nil {
		return false, fmt.Errorf("failed to marshal end date: %w", err)
	}

	_, err = s.client.UpdateItem(ctx, &dynamodb.UpdateItemInput{
		TableName:           aws.String(s.tables.Subscriptions),
		Key:                 stringKey("user_id", userID),
		UpdateExpression:    aws.String("SET #s = :expired, updated_at = :now"),
		ConditionExpression: aws.String("#s = :from AND end_date = :end"),
		ExpressionAttributeNames: map[string]string{
			"#s": "status",
		},
		ExpressionAttributeValues: map[string]types.AttributeValue{
			":expired": &types.AttributeValueMemberS{Value: models.StatusExpired},
			":from":    &types.AttributeValueMemberS{Value: fromStatus},
			":end":     end,
			":now":     timeValue(at),
		},
	})
	if err != nil {
		if isConditionFailed(err) {
			return false, nil
		}
		return false, fmt.Errorf("failed to expire subscription: %w", err)
	}
	return true, nil
}

// CancelSubscription sets status=cancelled and turns auto-renew off
func (s *Store) CancelSubscription(ctx context.Context, userID string, at time.Time) error {
	_, err := s.client.UpdateItem(ctx, &dynamodb.UpdateItemInput{
		TableName:           aws.String(s.tables.Subscriptions),
		Key:                 stringKey("user_id", userID),
		UpdateExpression:    aws.String("SET #s = :cancelled, auto_renew = :false, updated_at = :now"),
		ConditionExpression: aws.String("attribute_exists(user_id)"),
		ExpressionAttributeNames: map[string]string{
			"#s": "status",
		},
		ExpressionAttributeValues: map[string]types.AttributeValue{
			":cancelled": &types.AttributeValueMemberS{Value: models.StatusCancelled},
			":false":     &types.AttributeValueMemberBOOL{Value: false},
			":now":       timeValue(at),
		},
	})
	if err != nil {
		if isConditionFailed(err) {
			return fmt.Errorf("subscription for %s not found", userID)
		}
		return fmt.Errorf("failed to cancel subscription: %w", err)
	}
	return nil
}
