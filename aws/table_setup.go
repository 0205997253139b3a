package aws

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/service/dynamodb"
	"github.com/aws/aws-sdk-go-v2/service/dynamodb/types"
)

type tableSpec struct {
	name      string
	hashKey   string
	userIndex string
}

func (s *Store) tableSpecs() []tableSpec {
	return []tableSpec{
		{name: s.tables.Users, hashKey: "user_id"},
		{name: s.tables.Subscriptions, hashKey: "user_id"},
		{name: s.tables.ChatLogs, hashKey: "id", userIndex: ChatLogsUserIDGSI},
		{name: s.tables.Transactions, hashKey: "transaction_id"},
	}
}

func createTableInput(spec tableSpec) *dynamodb.CreateTableInput {
	input := &dynamodb.CreateTableInput{
		TableName: aws.String(spec.name),
		KeySchema: []types.KeySchemaElement{
			{
				AttributeName: aws.String(spec.hashKey),
				KeyType:       types.KeyTypeHash,
			},
		},
		AttributeDefinitions: []types.AttributeDefinition{
			{
				AttributeName: aws.String(spec.hashKey),
				AttributeType: types.ScalarAttributeTypeS,
			},
		},
		BillingMode: types.BillingModePayPerRequest,
	}

	if spec.userIndex != "" {
		input.AttributeDefinitions = append(input.AttributeDefinitions, types.AttributeDefinition{
			AttributeName: aws.String("user_id"),
			AttributeType: types.ScalarAttributeTypeS,
		})
		input.GlobalSecondaryIndexes = []types.GlobalSecondaryIndex{
			{
				IndexName: aws.String(spec.userIndex),
				KeySchema: []types.KeySchemaElement{
					{
						AttributeName: aws.String("user_id"),
						KeyType:       types.KeyTypeHash,
					},
				},
				Projection: &types.Projection{
					ProjectionType: types.ProjectionTypeAll,
				},
			},
		}
	}

	return input
}

// TableExists checks if a table exists
func (s *Store) TableExists(ctx context.Context, tableName string) (bool, error) {
	_, err := s.client.DescribeTable(ctx, &dynamodb.DescribeTableInput{
		TableName: aws.String(tableName),
	})
	if err != nil {
		var notFoundErr *types.ResourceNotFoundException
		if errors.As(err, &notFoundErr) {
			return false, nil
		}
		return false, fmt.Errorf("failed to describe table %s: %w", tableName, err)
	}

	return true, nil
}

// EnsureTables creates any missing table. Used against DynamoDB Local.
func (s *Store) EnsureTables(ctx context.Context) error {
	for _, spec := range s.tableSpecs() {
		exists, err := s.TableExists(ctx, spec.name)
		if err != nil {
			return err
		}
		if exists {
			continue
		}

		if _, err := s.client.CreateTable(ctx, createTableInput(spec)); err != nil {
			var inUse *types.ResourceInUseException
			if errors.As(err, &inUse) {
				continue
			}
			return fmt.Errorf("failed to create table %s: %w", spec.name, err)
		}

		s.log.InfoWithFieldsCtx(ctx, "Created table", map[string]interface{}{
			"table": spec.name,
		})
	}

	return nil
}

// CheckIfAllTablesExist returns an error naming the first missing table
func (s *Store) CheckIfAllTablesExist(ctx context.Context) error {
	for _, tableName := range s.tables.all() {
		exists, err := s.TableExists(ctx, tableName)
		if err != nil {
			return fmt.Errorf("failed to check if table %s exists: %w", tableName, err)
		}
		if !exists {
			return fmt.Errorf("table %s does not exist", tableName)
		}
	}

	return nil
}

// Ping verifies the store can reach DynamoDB within timeout
func (s *Store) Ping(ctx context.Context, timeout time.Duration) error {
	pingCtx, cancel := context.WithTimeout(ctx, timeout)
	defer cancel()
	_, err := s.TableExists(pingCtx, s.tables.Users)
	return err
}
