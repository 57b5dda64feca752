package repository

import (
	"errors"
	"fmt"
	"strconv"
	"strings"

	"github.com/aws/aws-sdk-go-v2/service/dynamodb/types"

	"whats-bot/internal/domain"
)

// The store keeps each turn in the tagged-value shape
//
//	{"M": {"role": {"S": "user"}, "parts": {"L": [{"M": {"text": {"S": "..."}}}]}}}
//
// encodeTurn and decodeTurns translate between that shape and domain.Turn.

func encodeTurn(t domain.Turn) types.AttributeValue {
	return &types.AttributeValueMemberM{Value: map[string]types.AttributeValue{
		"role": &types.AttributeValueMemberS{Value: string(t.Role)},
		"parts": &types.AttributeValueMemberL{Value: []types.AttributeValue{
			&types.AttributeValueMemberM{Value: map[string]types.AttributeValue{
				"text": &types.AttributeValueMemberS{Value: t.Text},
			}},
		}},
	}}
}

func decodeTurns(list []types.AttributeValue) (domain.History, error) {
	history := make(domain.History, 0, len(list))
	for i, av := range list {
		turn, err := decodeTurn(av)
		if err != nil {
			return nil, fmt.Errorf("turn %d: %w", i, err)
		}
		history = append(history, turn)
	}
	return history, nil
}

func decodeTurn(av types.AttributeValue) (domain.Turn, error) {
	plain, err := decodeValue(av)
	if err != nil {
		return domain.Turn{}, err
	}
	m, ok := plain.(map[string]any)
	if !ok {
		return domain.Turn{}, errors.New("turn is not a map")
	}
	role, ok := m["role"].(string)
	if !ok {
		return domain.Turn{}, errors.New("turn role is missing or not a string")
	}
	if role != string(domain.RoleUser) && role != string(domain.RoleModel) {
		return domain.Turn{}, fmt.Errorf("unknown turn role %q", role)
	}
	parts, ok := m["parts"].([]any)
	if !ok || len(parts) == 0 {
		return domain.Turn{}, errors.New("turn parts are missing or empty")
	}
	first, ok := parts[0].(map[string]any)
	if !ok {
		return domain.Turn{}, errors.New("turn part is not a map")
	}
	text, ok := first["text"].(string)
	if !ok {
		return domain.Turn{}, errors.New("turn part text is missing or not a string")
	}
	return domain.Turn{Role: domain.Role(role), Text: text}, nil
}

// decodeValue converts a tagged value into its plain Go form. The supported
// tag set is S, M, L, N and NULL; anything else is a corrupt record, never a
// silent drop.
func decodeValue(av types.AttributeValue) (any, error) {
	switch v := av.(type) {
	case *types.AttributeValueMemberS:
		return v.Value, nil
	case *types.AttributeValueMemberM:
		out := make(map[string]any, len(v.Value))
		for key, inner := range v.Value {
			plain, err := decodeValue(inner)
			if err != nil {
				return nil, fmt.Errorf("key %q: %w", key, err)
			}
			out[key] = plain
		}
		return out, nil
	case *types.AttributeValueMemberL:
		out := make([]any, 0, len(v.Value))
		for i, inner := range v.Value {
			plain, err := decodeValue(inner)
			if err != nil {
				return nil, fmt.Errorf("index %d: %w", i, err)
			}
			out = append(out, plain)
		}
		return out, nil
	case *types.AttributeValueMemberN:
		if strings.Contains(v.Value, ".") {
			f, err := strconv.ParseFloat(v.Value, 64)
			if err != nil {
				return nil, fmt.Errorf("parse number %q: %w", v.Value, err)
			}
			return f, nil
		}
		n, err := strconv.ParseInt(v.Value, 10, 64)
		if err != nil {
			return nil, fmt.Errorf("parse number %q: %w", v.Value, err)
		}
		return n, nil
	case *types.AttributeValueMemberNULL:
		return nil, nil
	default:
		return nil, fmt.Errorf("unsupported value tag %T", av)
	}
}
