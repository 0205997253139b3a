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

// GetUser retrieves a user by UID
func (s *Store) GetUser(ctx context.Context, userID string) (*models.User, error) {
	result, err := s.client.GetItem(ctx, &dynamodb.GetItemInput{
		TableName:      aws.String(s.tables.Users),
		Key:            stringKey("user_id", userID),
		ConsistentRead: aws.Bool(true),
	})
	if err != nil {
		return nil, fmt.Errorf("failed to get user: %w", err)
	}

	if result.Item == nil {
		return nil, nil
	}

	var user models.User
	if err := attributevalue.UnmarshalMap(result.Item, &user); err != nil {
		return nil, fmt.Errorf("failed to unmarshal user: %w", err)
	}

	return &user, nil
}

// EnsureUser creates the user if absent and returns the stored record
func (s *Store) EnsureUser(ctx context.Context, user models.User) (*models.User, error) {
	now := s.now()
	if user.CreatedAt.IsZero() {
		user.CreatedAt = now
	}
	user.UpdatedAt = user.CreatedAt
	if user.TotalMessages == nil {
		user.TotalMessages = map[string]int{}
	}

	av, err := attributevalue.MarshalMap(user)
	if err != nil {
		return nil, fmt.Errorf("failed to marshal user: %w", err)
	}

	_, err = s.client.PutItem(ctx, &dynamodb.PutItemInput{
		TableName:           aws.String(s.tables.Users),
		Item:                av,
		ConditionExpression: aws.String("attribute_not_exists(user_id)"),
	})
	if err == nil {
		s.log.InfoWithFieldsCtx(ctx, "Created user record", map[string]interface{}{
			"user_id": user.UserID,
		})
		return &user, nil
	}
	if !isConditionFailed(err) {
		return nil, fmt.Errorf("failed to create user: %w", err)
	}

	existing, err := s.GetUser(ctx, user.UserID)
	if err != nil {
		return nil, err
	}
	if existing == nil {
		return nil, fmt.Errorf("user %s vanished after create conflict", user.UserID)
	}
	return existing, nil
}

// SetPremium upserts the premium flag, creating a minimal record if needed
func (s *Store) SetPremium(ctx context.Context, userID, email string, premium bool, at time.Time) error {
	values := map[string]types.AttributeValue{
		":premium": &types.AttributeValueMemberBOOL{Value: premium},
		":now":     timeValue(at),
		":empty":   &types.AttributeValueMemberM{Value: map[string]types.AttributeValue{}},
	}
	update := "SET is_premium = :premium, updated_at = :now, " +
		"created_at = if_not_exists(created_at, :now), " +
		"total_messages = if_not_exists(total_messages, :empty)"
	if email != "" {
		update += ", email = if_not_exists(email, :email)"
		values[":email"] = &types.AttributeValueMemberS{Value: email}
	}

	_, err := s.client.UpdateItem(ctx, &dynamodb.UpdateItemInput{
		TableName:                 aws.String(s.tables.Users),
		Key:                       stringKey("user_id", userID),
		UpdateExpression:          aws.String(update),
		ExpressionAttributeValues: values,
	})
	if err != nil {
		return fmt.Errorf("failed to update premium flag: %w", err)
	}
	return nil
}
