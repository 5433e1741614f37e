package dynamo

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/feature/dynamodb/attributevalue"
	"github.com/aws/aws-sdk-go-v2/service/dynamodb"
	"github.com/aws/aws-sdk-go-v2/service/dynamodb/types"
	"github.com/go-membership-api/internal/domain"
)

// SessionRepo provides typed DynamoDB operations for the sessions table.
type SessionRepo struct {
	client    *dynamodb.Client
	tableName string
}

func NewSessionRepo(client *dynamodb.Client, tableName string) *SessionRepo {
	return &SessionRepo{client: client, tableName: tableName}
}

func (r *SessionRepo) Put(ctx context.Context, s *domain.Session) error {
	item, err := attributevalue.MarshalMap(s)
	if err != nil {
		return fmt.Errorf("marshal session: %w", err)
	}
	_, err = r.client.PutItem(ctx, &dynamodb.PutItemInput{
		TableName: aws.String(r.tableName),
		Item:      item,
	})
	return err
}

func (r *SessionRepo) Get(ctx context.Context, sessionID string) (*domain.Session, error) {
	out, err := r.client.GetItem(ctx, &dynamodb.GetItemInput{
		TableName: aws.String(r.tableName),
		Key:       strKey("session_id", sessionID),
	})
	if err != nil {
		return nil, err
	}
	if out.Item == nil {
		return nil, fmt.Errorf("session not found: %w", domain.ErrNotFound)
	}
	var s domain.Session
	if err := attributevalue.UnmarshalMap(out.Item, &s); err != nil {
		return nil, err
	}
	return &s, nil
}

// RevokeByOwner disables every session of ownerID. It keeps going past
// individual failures and returns the first one.
func (r *SessionRepo) RevokeByOwner(ctx context.Context, ownerID string) (int, error) {
	ids, err := r.idsByOwner(ctx, ownerID)
	if err != nil {
		return 0, err
	}
	var firstErr error
	revoked := 0
	for _, sid := range ids {
		ue, err := buildUpdateExpr(map[string]interface{}{
			fieldEnable:    false,
			fieldUpdatedAt: time.Now().UTC(),
		})
		if err != nil {
			return revoked, err
		}
		_, err = r.client.UpdateItem(ctx, &dynamodb.UpdateItemInput{
			TableName:                 aws.String(r.tableName),
			Key:                       strKey("session_id", sid),
			UpdateExpression:          aws.String(ue.Expr),
			ExpressionAttributeNames:  ue.Names,
			ExpressionAttributeValues: ue.Values,
		})
		if err != nil {
			slog.WarnContext(ctx, "failed to revoke session", "session_id", sid, "owner_id", ownerID, "err", err)
			if firstErr == nil {
				firstErr = err
			}
			continue
		}
		revoked++
	}
	return revoked, firstErr
}

// DeleteByOwner hard-deletes every session of ownerID.
func (r *SessionRepo) DeleteByOwner(ctx context.Context, ownerID string) error {
	ids, err := r.idsByOwner(ctx, ownerID)
	if err != nil {
		return err
	}
	for _, sid := range ids {
		if _, err := r.client.DeleteItem(ctx, &dynamodb.DeleteItemInput{
			TableName: aws.String(r.tableName),
			Key:       strKey("session_id", sid),
		}); err != nil {
			return err
		}
	}
	return nil
}

func (r *SessionRepo) idsByOwner(ctx context.Context, ownerID string) ([]string, error) {
	var ids []string
	p := dynamodb.NewQueryPaginator(r.client, &dynamodb.QueryInput{
		TableName:                 aws.String(r.tableName),
		IndexName:                 aws.String(indexOwnerID),
		KeyConditionExpression:    aws.String("owner_id = :o"),
		ExpressionAttributeValues: map[string]types.AttributeValue{":o": &types.AttributeValueMemberS{Value: ownerID}},
	})
	for p.HasMorePages() {
		out, err := p.NextPage(ctx)
		if err != nil {
			return nil, err
		}
		for _, item := range out.Items {
			if sid, ok := item["session_id"].(*types.AttributeValueMemberS); ok {
				ids = append(ids, sid.Value)
			}
		}
	}
	return ids, nil
}
