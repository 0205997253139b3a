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

// GetTransaction retrieves a transaction by gateway transaction ID
func (s *Store) GetTransaction(ctx context.Context, transactionID string) (*models.Transaction, error) {
	result, err := s.client.GetItem(ctx, &dynamodb.GetItemInput{
		TableName:      aws.String(s.tables.Transactions),
		Key:            stringKey("transaction_id", transactionID),
		ConsistentRead: aws.Bool(true),
	})
	if err != nil {
		return nil, fmt.Errorf("failed to get transaction: %w", err)
	}

	if result.Item == nil {
		return nil, nil
	}

	var tx models.Transaction
	if err := attributevalue.UnmarshalMap(result.Item, &tx); err != nil {
		return nil, fmt.Errorf("failed to unmarshal transaction: %w", err)
	}

	return &tx, nil
}

// PutTransaction writes a transaction record
func (s *Store) PutTransaction(ctx context.Context, tx models.Transaction) error {
	av, err := attributevalue.MarshalMap(tx)
	if err != nil {
		return fmt.Errorf("failed to marshal transaction: %w", err)
	}

	_, err = s.client.PutItem(ctx, &dynamodb.PutItemInput{
		TableName: aws.String(s.tables.Transactions),
		Item:      av,
	})
	if err != nil {
		return fmt.Errorf("failed to save transaction: %w", err)
	}

	return nil
}

// UpdateTransactionStatus sets the status of an existing transaction
func (s *Store) UpdateTransactionStatus(ctx context.Context, transactionID, status string, at time.Time) error {
	_, err := s.client.UpdateItem(ctx, &dynamodb.UpdateItemInput{
		TableName:           aws.String(s.tables.Transactions),
		Key:                 stringKey("transaction_id", transactionID),
		UpdateExpression:    aws.String("SET #s = :status, updated_at = :now"),
		ConditionExpression: aws.String("attribute_exists(transaction_id)"),
		ExpressionAttributeNames: map[string]string{
			"#s": "status",
		},
		ExpressionAttributeValues: map[string]types.AttributeValue{
			":status": &types.AttributeValueMemberS{Value: status},
			":now":    timeValue(at),
		},
	})
	if err != nil {
		if isConditionFailed(err) {
			return fmt.Errorf("transaction %s not found", transactionID)
		}
		return fmt.Errorf("failed to update transaction: %w", err)
	}
	return nil
}
