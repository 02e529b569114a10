package repository

import (
	"context"
	"errors"
	"fmt"
	"strconv"
	"strings"
	"time"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/service/dynamodb"
	"github.com/aws/aws-sdk-go-v2/service/dynamodb/types"

	"kitsune-backend/internal/domain"
)

const (
	attrChatID    = "ChatID"
	attrTimestamp = "timestamp"
	attrMessage   = "message"
	attrRole      = "type"
	attrAudioURL  = "AudioFileURL"

	// isoLayout is the only accepted string timestamp format (UTC).
	isoLayout = "2006-01-02T15:04:05Z"
)

// ErrInvalidTimestamp reports a timestamp that is neither an integer epoch
// nor an ISO-8601 UTC string.
var ErrInvalidTimestamp = errors.New("repository: timestamp must be epoch seconds or ISO-8601 UTC")

// dynamodbAPI is the minimal DynamoDB interface required by Client.
// Defined here for testability.
type dynamodbAPI interface {
	PutItem(ctx context.Context, in *dynamodb.PutItemInput, optFns ...func(*dynamodb.Options)) (*dynamodb.PutItemOutput, error)
	Query(ctx context.Context, in *dynamodb.QueryInput, optFns ...func(*dynamodb.Options)) (*dynamodb.QueryOutput, error)
	CreateTable(ctx context.Context, in *dynamodb.CreateTableInput, optFns ...func(*dynamodb.Options)) (*dynamodb.CreateTableOutput, error)
	DescribeTable(ctx context.Context, in *dynamodb.DescribeTableInput, optFns ...func(*dynamodb.Options)) (*dynamodb.DescribeTableOutput, error)
}

// Client wraps a DynamoDB table holding chat messages keyed by ChatID
// (partition) and timestamp (sort).
type Client struct {
	api       dynamodbAPI
	tableName string
}

// New creates a new repository Client.
func New(api dynamodbAPI, tableName string) (*Client, error) {
	if api == nil {
		return nil, errors.New("repository: api must not be nil")
	}
	if strings.TrimSpace(tableName) == "" {
		return nil, errors.New("repository: table name must not be empty")
	}
	return &Client{api: api, tableName: tableName}, nil
}

// EpochSeconds normalizes a timestamp given either as integer epoch seconds
// (any JSON-decoded numeric type) or an ISO-8601 UTC string to epoch seconds.
func EpochSeconds(v any) (int64, error) {
	switch ts := v.(type) {
	case int64:
		return ts, nil
	case int:
		return int64(ts), nil
	case float64:
		return int64(ts), nil
	case string:
		parsed, err := time.Parse(isoLayout, ts)
		if err != nil {
			return 0, fmt.Errorf("%w: %q", ErrInvalidTimestamp, ts)
		}
		return parsed.Unix(), nil
	default:
		return 0, fmt.Errorf("%w: unsupported type %T", ErrInvalidTimestamp, v)
	}
}

// Append writes one immutable message. The timestamp may be given as epoch
// seconds or an ISO-8601 UTC string; it is normalized before writing. A
// conditional put rejects duplicate (ChatID, timestamp) pairs so a message is
// never silently overwritten.
func (c *Client) Append(ctx context.Context, chatID string, timestamp any, text, role, audioURL string) error {
	if strings.TrimSpace(chatID) == "" {
		return errors.New("repository: Append: chat id is required")
	}
	if role != domain.RoleUser && role != domain.RoleAI {
		return fmt.Errorf("repository: Append: unknown role %q", role)
	}

	epoch, err := EpochSeconds(timestamp)
	if err != nil {
		return fmt.Errorf("repository: Append: %w", err)
	}

	item := map[string]types.AttributeValue{
		attrChatID:    &types.AttributeValueMemberS{Value: chatID},
		attrTimestamp: &types.AttributeValueMemberN{Value: strconv.FormatInt(epoch, 10)},
		attrMessage:   &types.AttributeValueMemberS{Value: text},
		attrRole:      &types.AttributeValueMemberS{Value: role},
	}
	if audioURL != "" {
		item[attrAudioURL] = &types.AttributeValueMemberS{Value: audioURL}
	}

	_, err = c.api.PutItem(ctx, &dynamodb.PutItemInput{
		TableName:                aws.String(c.tableName),
		Item:                     item,
		ConditionExpression:      aws.String("attribute_not_exists(ChatID) AND attribute_not_exists(#ts)"),
		ExpressionAttributeNames: map[string]string{"#ts": attrTimestamp},
	})
	if err != nil {
		return fmt.Errorf("repository: Append: %w", err)
	}
	return nil
}

// List queries all messages for a chat in ascending timestamp order. An
// unknown chat id yields an empty slice, not an error.
func (c *Client) List(ctx context.Context, chatID string) ([]domain.Message, error) {
	out, err := c.api.Query(ctx, &dynamodb.QueryInput{
		TableName:              aws.String(c.tableName),
		KeyConditionExpression: aws.String("ChatID = :chat_id"),
		ExpressionAttributeValues: map[string]types.AttributeValue{
			":chat_id": &types.AttributeValueMemberS{Value: chatID},
		},
	})
	if err != nil {
		return nil, fmt.Errorf("repository: List query: %w", err)
	}

	msgs := make([]domain.Message, 0, len(out.Items))
	for _, item := range out.Items {
		msg, err := itemToMessage(item)
		if err != nil {
			return nil, fmt.Errorf("repository: List unmarshal: %w", err)
		}
		msgs = append(msgs, msg)
	}
	return msgs, nil
}

// CreateChatTable provisions the messages table (ChatID hash key, timestamp
// range key) and waits until it is active. Intended for one-shot setup.
func (c *Client) CreateChatTable(ctx context.Context) error {
	_, err := c.api.CreateTable(ctx, &dynamodb.CreateTableInput{
		TableName: aws.String(c.tableName),
		KeySchema: []types.KeySchemaElement{
			{AttributeName: aws.String(attrChatID), KeyType: types.KeyTypeHash},
			{AttributeName: aws.String(attrTimestamp), KeyType: types.KeyTypeRange},
		},
		AttributeDefinitions: []types.AttributeDefinition{
			{AttributeName: aws.String(attrChatID), AttributeType: types.ScalarAttributeTypeS},
			{AttributeName: aws.String(attrTimestamp), AttributeType: types.ScalarAttributeTypeN},
		},
		ProvisionedThroughput: &types.ProvisionedThroughput{
			ReadCapacityUnits:  aws.Int64(5),
			WriteCapacityUnits: aws.Int64(5),
		},
	})
	if err != nil {
		var inUse *types.ResourceInUseException
		if !errors.As(err, &inUse) {
			return fmt.Errorf("repository: CreateChatTable: %w", err)
		}
	}

	waiter := dynamodb.NewTableExistsWaiter(c.api)
	if err := waiter.Wait(ctx, &dynamodb.DescribeTableInput{TableName: aws.String(c.tableName)}, 2*time.Minute); err != nil {
		return fmt.Errorf("repository: CreateChatTable wait: %w", err)
	}
	return nil
}

// itemToMessage converts a DynamoDB attribute map to a Message.
func itemToMessage(item map[string]types.AttributeValue) (domain.Message, error) {
	chatID, err := strAttr(item, attrChatID)
	if err != nil {
		return domain.Message{}, err
	}
	epoch, err := numAttr(item, attrTimestamp)
	if err != nil {
		return domain.Message{}, err
	}
	text, err := strAttr(item, attrMessage)
	if err != nil {
		return domain.Message{}, err
	}
	role, err := strAttr(item, attrRole)
	if err != nil {
		return domain.Message{}, err
	}
	audioURL, _ := strAttr(item, attrAudioURL) // optional

	return domain.Message{
		ChatID:       chatID,
		Timestamp:    epoch,
		Text:         text,
		Role:         role,
		AudioFileURL: audioURL,
	}, nil
}

func strAttr(item map[string]types.AttributeValue, key string) (string, error) {
	v, ok := item[key]
	if !ok {
		return "", fmt.Errorf("repository: missing attribute %q", key)
	}
	s, ok := v.(*types.AttributeValueMemberS)
	if !ok {
		return "", fmt.Errorf("repository: attribute %q is not a string", key)
	}
	return s.Value, nil
}

func numAttr(item map[string]types.AttributeValue, key string) (int64, error) {
	v, ok := item[key]
	if !ok {
		return 0, fmt.Errorf("repository: missing attribute %q", key)
	}
	n, ok := v.(*types.AttributeValueMemberN)
	if !ok {
		return 0, fmt.Errorf("repository: attribute %q is not a number", key)
	}
	parsed, err := strconv.ParseInt(n.Value, 10, 64)
	if err != nil {
		return 0, fmt.Errorf("repository: parse attribute %q: %w", key, err)
	}
	return parsed, nil
}
