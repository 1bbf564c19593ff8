package dynamo

import (
	"context"
	"fmt"
	"time"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/feature/dynamodb/attributevalue"
	"github.com/aws/aws-sdk-go-v2/service/dynamodb"
	"github.com/aws/aws-sdk-go-v2/service/dynamodb/types"

	"github.com/platemate/platemate-server/internal/domain/model"
	"github.com/platemate/platemate-server/internal/port/outbound/repository"
)

type itemRecord struct {
	ItemType string `dynamodbav:"itemType"`
	ItemID   string `dynamodbav:"itemId"`
	Name     string `dynamodbav:"name"`
}

// itemRepository implements repository.ItemRepository.
type itemRepository struct {
	client *dynamodb.Client
	table  string
}

// NewItemRepository creates a new ItemRepository.
func NewItemRepository(client *dynamodb.Client, table string) repository.ItemRepository {
	return &itemRepository{client: client, table: table}
}

func (r *itemRepository) FindName(ctx context.Context, itemType model.ItemType, itemID string) (string, error) {
	out, err := r.client.GetItem(ctx, &dynamodb.GetItemInput{
		TableName: aws.String(r.table),
		Key: map[string]types.AttributeValue{
			"itemType": &types.AttributeValueMemberS{Value: string(itemType)},
			"itemId":   &types.AttributeValueMemberS{Value: itemID},
		},
	})
	if err != nil {
		return "", fmt.Errorf("failed to get item: %w", err)
	}
	if out.Item == nil {
		return "", repository.ErrNotFound
	}

	var rec itemRecord
	if err := attributevalue.UnmarshalMap(out.Item, &rec); err != nil {
		return "", fmt.Errorf("failed to unmarshal item: %w", err)
	}
	return rec.Name, nil
}

// Shared attribute helpers

func nowUTC() time.Time {
	return time.Now().UTC()
}

func nowAttr() types.AttributeValue {
	return &types.AttributeValueMemberS{Value: nowUTC().Format(time.RFC3339Nano)}
}
