package aws

import (
	"context"
	"fmt"
	"strconv"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/service/dynamodb"
	"github.com/aws/aws-sdk-go-v2/service/dynamodb/types"
)

// MonthlyCount reads total_messages[month] from the user item
func (s *Store) MonthlyCount(ctx context.Context, userID, month string) (int, error) {
	user, err := s.GetUser(ctx, userID)
	if err != nil {
		return 0, err
	}
	if user == nil {
		return 0, nil
	}
	return user.TotalMessages[month], nil
}

// IncrementWithCeiling increments total_messages[month] in a single
// conditional update that refuses to pass ceiling
func (s *Store) IncrementWithCeiling(ctx context.Context, userID, month string, ceiling int) (int, bool, error) {
	count, err := s.incrementMonth(ctx, userID, month, ceiling)
	if err == nil {
		return count, true, nil
	}
	if !isConditionFailed(err) {
		return 0, false, fmt.Errorf("failed to increment usage: %w", err)
	}

	// either the ceiling was hit or the user has no counter map yet
	user, err := s.GetUser(ctx, userID)
	if err != nil {
		return 0, false, err
	}
	if user != nil && user.TotalMessages != nil {
		return user.TotalMessages[month], false, nil
	}

	if err := s.initCounters(ctx, userID); err != nil {
		return 0, false, err
	}
	count, err = s.incrementMonth(ctx, userID, month, ceiling)
	if err != nil {
		if isConditionFailed(err) {
			current, cerr := s.MonthlyCount(ctx, userID, month)
			return current, false, cerr
		}
		return 0, false, fmt.Errorf("failed to increment usage: %w", err)
	}
	return count, true, nil
}

func (s *Store) incrementMonth(ctx context.Context, userID, month string, ceiling int) (int, error) {
	result, err := s.client.UpdateItem(ctx, &dynamodb.UpdateItemInput{
		TableName: aws.String(s.tables.Users),
		Key:       stringKey("user_id", userID),
		UpdateExpression: aws.String(
			"SET total_messages.#m = if_not_exists(total_messages.#m, :zero) + :one, updated_at = :now"),
		ConditionExpression: aws.String(
			"attribute_exists(total_messages) AND (attribute_not_exists(total_messages.#m) OR total_messages.#m < :ceiling)"),
		ExpressionAttributeNames: map[string]string{"#m": month},
		ExpressionAttributeValues: map[string]types.AttributeValue{
			":zero":    &types.AttributeValueMemberN{Value: "0"},
			":one":     &types.AttributeValueMemberN{Value: "1"},
			":ceiling": &types.AttributeValueMemberN{Value: strconv.Itoa(ceiling)},
			":now":     timeValue(s.now()),
		},
		ReturnValues: types.ReturnValueUpdatedNew,
	})
	if err != nil {
		return 0, err
	}

	counters, ok := result.Attributes["total_messages"].(*types.AttributeValueMemberM)
	if !ok {
		return 0, fmt.Errorf("usage update returned no counters")
	}
	n, ok := counters.Value[month].(*types.AttributeValueMemberN)
	if !ok {
		return 0, fmt.Errorf("usage update returned no count for %s", month)
	}
	return strconv.Atoi(n.Value)
}

// initCounters creates the user item or adds an empty counter map
func (s *Store) initCounters(ctx context.Context, userID string) error {
	now := timeValue(s.now())
	_, err := s.client.UpdateItem(ctx, &dynamodb.UpdateItemInput{
		TableName: aws.String(s.tables.Users),
		Key:       stringKey("user_id", userID),
		UpdateExpression: aws.String(
			"SET total_messages = if_not_exists(total_messages, :empty), " +
				"created_at = if_not_exists(created_at, :now), " +
				"is_premium = if_not_exists(is_premium, :false)"),
		ExpressionAttributeValues: map[string]types.AttributeValue{
			":empty": &types.AttributeValueMemberM{Value: map[string]types.AttributeValue{}},
			":now":   now,
			":false": &types.AttributeValueMemberBOOL{Value: false},
		},
	})
	if err != nil {
		return fmt.Errorf("failed to initialize usage counters: %w", err)
	}
	return nil
}
