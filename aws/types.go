package aws

import (
	"context"
	"errors"
	"time"

	"github.com/aws/aws-sdk-go-v2/service/dynamodb"
	"github.com/aws/aws-sdk-go-v2/service/dynamodb/types"

	"github.com/LaithMimi/blendarchatbot2/pkg/logger"
)

// Table base names; the configured prefix is prepended
const (
	UsersTableName         = "users"
	SubscriptionsTableName = "subscriptions"
	ChatLogsTableName      = "chat_logs"
	TransactionsTableName  = "transactions"
)

// ChatLogsUserIDGSI indexes chat sessions by owner UID
const ChatLogsUserIDGSI = "user_id-gsi"

// slowBulkDeleteMs is the duration above which a bulk delete is logged
const slowBulkDeleteMs = 2000

// batchWriteLimit is DynamoDB's maximum number of requests per BatchWriteItem
const batchWriteLimit = 25

// DynamoAPI is the subset of the DynamoDB client the store uses
type DynamoAPI interface {
	GetItem(ctx context.Context, params *dynamodb.GetItemInput, optFns ...func(*dynamodb.Options)) (*dynamodb.GetItemOutput, error)
	PutItem(ctx context.Context, params *dynamodb.PutItemInput, optFns ...func(*dynamodb.Options)) (*dynamodb.PutItemOutput, error)
	UpdateItem(ctx context.Context, params *dynamodb.UpdateItemInput, optFns ...func(*dynamodb.Options)) (*dynamodb.UpdateItemOutput, error)
	DeleteItem(ctx context.Context, params *dynamodb.DeleteItemInput, optFns ...func(*dynamodb.Options)) (*dynamodb.DeleteItemOutput, error)
	Scan(ctx context.Context, params *dynamodb.ScanInput, optFns ...func(*dynamodb.Options)) (*dynamodb.ScanOutput, error)
	Query(ctx context.Context, params *dynamodb.QueryInput, optFns ...func(*dynamodb.Options)) (*dynamodb.QueryOutput, error)
	BatchWriteItem(ctx context.Context, params *dynamodb.BatchWriteItemInput, optFns ...func(*dynamodb.Options)) (*dynamodb.BatchWriteItemOutput, error)
	CreateTable(ctx context.Context, params *dynamodb.CreateTableInput, optFns ...func(*dynamodb.Options)) (*dynamodb.CreateTableOutput, error)
	DescribeTable(ctx context.Context, params *dynamodb.DescribeTableInput, optFns ...func(*dynamodb.Options)) (*dynamodb.DescribeTableOutput, error)
}

// Tables holds the resolved table names
type Tables struct {
	Users         string
	Subscriptions string
	ChatLogs      string
	Transactions  string
}

// TablesWithPrefix resolves table names for a prefix such as "dev_"
func TablesWithPrefix(prefix string) Tables {
	return Tables{
		Users:         prefix + UsersTableName,
		Subscriptions: prefix + SubscriptionsTableName,
		ChatLogs:      prefix + ChatLogsTableName,
		Transactions:  prefix + TransactionsTableName,
	}
}

func (t Tables) all() []string {
	return []string{t.Users, t.Subscriptions, t.ChatLogs, t.Transactions}
}

// Store implements the user, usage, subscription, chat log and transaction
// stores on DynamoDB
type Store struct {
	client DynamoAPI
	tables Tables
	now    func() time.Time
	log    *logger.Logger
}

// NewStore creates a store over client using prefixed table names
func NewStore(client DynamoAPI, tablePrefix string) *Store {
	return &Store{
		client: client,
		tables: TablesWithPrefix(tablePrefix),
		now:    time.Now,
		log:    logger.GetLogger("dynamodb"),
	}
}

func isConditionFailed(err error) bool {
	var ccf *types.ConditionalCheckFailedException
	return errors.As(err, &ccf)
}

func stringKey(name, value string) map[string]types.AttributeValue {
	return map[string]types.AttributeValue{
		name: &types.AttributeValueMemberS{Value: value},
	}
}

func timeValue(t time.Time) types.AttributeValue {
	return &types.AttributeValueMemberS{Value: t.UTC().Format(time.RFC3339Nano)}
}
