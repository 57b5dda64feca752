package repository

import (
	"context"
	"errors"
	"strconv"
	"strings"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/service/dynamodb"
	"github.com/aws/aws-sdk-go-v2/service/dynamodb/types"

	"whats-bot/internal/domain"
)

const (
	attrHistory = "history"
	attrVersion = "version"
)

// dynamodbAPI is the minimal DynamoDB interface required by Store.
// Defined here for testability.
type dynamodbAPI interface {
	GetItem(ctx context.Context, in *dynamodb.GetItemInput, optFns ...func(*dynamodb.Options)) (*dynamodb.GetItemOutput, error)
	UpdateItem(ctx context.Context, in *dynamodb.UpdateItemInput, optFns ...func(*dynamodb.Options)) (*dynamodb.UpdateItemOutput, error)
}

// Store persists conversation histories, one item per conversation keyed by
// account and counterpart. The history attribute holds the full turn list in
// the tagged-value encoding; a version counter guards the read-modify-write
// in Append against concurrent writers from other processes.
type Store struct {
	api       dynamodbAPI
	tableName string
}

// New creates a Store over the given table.
func New(api dynamodbAPI, tableName string) (*Store, error) {
	if api == nil {
		return nil, errors.New("repository: api must not be nil")
	}
	if strings.TrimSpace(tableName) == "" {
		return nil, errors.New("repository: table name must not be empty")
	}
	return &Store{api: api, tableName: tableName}, nil
}

func itemKey(k domain.ConversationKey) map[string]types.AttributeValue {
	return map[string]types.AttributeValue{
		"account_id":     &types.AttributeValueMemberS{Value: k.AccountID},
		"counterpart_id": &types.AttributeValueMemberS{Value: k.CounterpartID},
	}
}

// Fetch returns the stored history for a conversation. A missing item is an
// empty history, not an error; first contact always starts from nothing.
func (s *Store) Fetch(ctx context.Context, key domain.ConversationKey) (domain.History, error) {
	raw, _, err := s.read(ctx, key)
	if err != nil {
		return nil, err
	}
	history, err := decodeTurns(raw)
	if err != nil {
		return nil, domain.NewFault(domain.StoreCorrupt, "decode history", err)
	}
	return history, nil
}

// Append extends the stored history by exactly one user turn and one model
// turn, preserving prior content and order. The write is conditional on the
// version read at the start of the call; a concurrent writer surfaces as a
// StoreUnavailable fault instead of silently losing its turns.
func (s *Store) Append(ctx context.Context, key domain.ConversationKey, userTurn, modelTurn domain.Turn) error {
	raw, version, err := s.read(ctx, key)
	if err != nil {
		return err
	}
	if _, err := decodeTurns(raw); err != nil {
		return domain.NewFault(domain.StoreCorrupt, "decode history", err)
	}

	updated := make([]types.AttributeValue, 0, len(raw)+2)
	updated = append(updated, raw...)
	updated = append(updated, encodeTurn(userTurn), encodeTurn(modelTurn))

	in := &dynamodb.UpdateItemInput{
		TableName:        aws.String(s.tableName),
		Key:              itemKey(key),
		UpdateExpression: aws.String("SET #h = :history, #v = :next"),
		ExpressionAttributeNames: map[string]string{
			"#h": attrHistory,
			"#v": attrVersion,
		},
		ExpressionAttributeValues: map[string]types.AttributeValue{
			":history": &types.AttributeValueMemberL{Value: updated},
			":next":    &types.AttributeValueMemberN{Value: strconv.FormatInt(version+1, 10)},
		},
	}
	if version == 0 {
		in.ConditionExpression = aws.String("attribute_not_exists(#v)")
	} else {
		in.ConditionExpression = aws.String("#v = :current")
		in.ExpressionAttributeValues[":current"] = &types.AttributeValueMemberN{Value: strconv.FormatInt(version, 10)}
	}

	if _, err := s.api.UpdateItem(ctx, in); err != nil {
		var conditionFailed *types.ConditionalCheckFailedException
		if errors.As(err, &conditionFailed) {
			return domain.NewFault(domain.StoreUnavailable, "concurrent modification", err)
		}
		return domain.NewFault(domain.StoreUnavailable, "update item", err)
	}
	return nil
}

// read returns the raw stored turn list and the current version counter.
func (s *Store) read(ctx context.Context, key domain.ConversationKey) ([]types.AttributeValue, int64, error) {
	out, err := s.api.GetItem(ctx, &dynamodb.GetItemInput{
		TableName:      aws.String(s.tableName),
		Key:            itemKey(key),
		ConsistentRead: aws.Bool(true),
	})
	if err != nil {
		return nil, 0, domain.NewFault(domain.StoreUnavailable, "get item", err)
	}
	if out == nil || len(out.Item) == 0 {
		return nil, 0, nil
	}

	var version int64
	if attr, ok := out.Item[attrVersion]; ok {
		n, ok := attr.(*types.AttributeValueMemberN)
		if !ok {
			return nil, 0, domain.NewFault(domain.StoreCorrupt, "version attribute is not a number", nil)
		}
		parsed, err := strconv.ParseInt(n.Value, 10, 64)
		if err != nil {
			return nil, 0, domain.NewFault(domain.StoreCorrupt, "parse version attribute", err)
		}
		version = parsed
	}

	attr, ok := out.Item[attrHistory]
	if !ok {
		return nil, version, nil
	}
	list, ok := attr.(*types.AttributeValueMemberL)
	if !ok {
		return nil, 0, domain.NewFault(domain.StoreCorrupt, "history attribute is not a list", nil)
	}
	return list.Value, version, nil
}
