package dynamo

import (
	"context"
	"fmt"
	"time"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/feature/dynamodb/attributevalue"
	"github.com/aws/aws-sdk-go-v2/service/dynamodb"
	"github.com/aws/aws-sdk-go-v2/service/dynamodb/types"
	"github.com/go-membership-api/internal/domain"
)

// SignupRepo provides typed DynamoDB operations for the signups table.
// PK: signup_id. GSIs on email, institutional_id, status+created_at and status+updated_at.
type SignupRepo struct {
	client    *dynamodb.Client
	tableName string
}

func NewSignupRepo(client *dynamodb.Client, tableName string) *SignupRepo {
	return &SignupRepo{client: client, tableName: tableName}
}

// Create inserts a new row. Fails with ErrConflict if the id is taken.
func (r *SignupRepo) Create(ctx context.Context, rec *domain.SignupRecord) error {
	item, err := attributevalue.MarshalMap(rec)
	if err != nil {
		return fmt.Errorf("marshal signup: %w", err)
	}
	_, err = r.client.PutItem(ctx, &dynamodb.PutItemInput{
		TableName:           aws.String(r.tableName),
		Item:                item,
		ConditionExpression: aws.String("attribute_not_exists(signup_id)"),
	})
	if isConditionFailed(err) {
		return fmt.Errorf("signup %s exists: %w", rec.SignupID, domain.ErrConflict)
	}
	return err
}

// Replace overwrites an EXPIRED row in place. A row that was revived or
// purged concurrently fails with ErrConflict.
func (r *SignupRepo) Replace(ctx context.Context, rec *domain.SignupRecord) error {
	item, err := attributevalue.MarshalMap(rec)
	if err != nil {
		return fmt.Errorf("marshal signup: %w", err)
	}
	_, err = r.client.PutItem(ctx, &dynamodb.PutItemInput{
		TableName:                aws.String(r.tableName),
		Item:                     item,
		ConditionExpression:      aws.String("#s = :expired"),
		ExpressionAttributeNames: map[string]string{"#s": fieldStatus},
		ExpressionAttributeValues: map[string]types.AttributeValue{
			":expired": &types.AttributeValueMemberS{Value: string(domain.StatusExpired)},
		},
	})
	if isConditionFailed(err) {
		return fmt.Errorf("signup %s no longer expired: %w", rec.SignupID, domain.ErrConflict)
	}
	return err
}

func (r *SignupRepo) Get(ctx context.Context, signupID string) (*domain.SignupRecord, error) {
	out, err := r.client.GetItem(ctx, &dynamodb.GetItemInput{
		TableName:      aws.String(r.tableName),
		Key:            strKey("signup_id", signupID),
		ConsistentRead: aws.Bool(true),
	})
	if err != nil {
		return nil, err
	}
	if out.Item == nil {
		return nil, fmt.Errorf("signup not found: %w", domain.ErrNotFound)
	}
	var rec domain.SignupRecord
	if err := attributevalue.UnmarshalMap(out.Item, &rec); err != nil {
		return nil, err
	}
	return &rec, nil
}

func (r *SignupRepo) FindByEmail(ctx context.Context, email string) ([]domain.SignupRecord, error) {
	return r.queryAll(ctx, &dynamodb.QueryInput{
		TableName:                 aws.String(r.tableName),
		IndexName:                 aws.String(indexEmail),
		KeyConditionExpression:    aws.String("email = :v"),
		ExpressionAttributeValues: map[string]types.AttributeValue{":v": &types.AttributeValueMemberS{Value: email}},
	})
}

func (r *SignupRepo) FindByInstitutionalID(ctx context.Context, institutionalID string) ([]domain.SignupRecord, error) {
	return r.queryAll(ctx, &dynamodb.QueryInput{
		TableName:                 aws.String(r.tableName),
		IndexName:                 aws.String(indexInstitutionalID),
		KeyConditionExpression:    aws.String("institutional_id = :v"),
		ExpressionAttributeValues: map[string]types.AttributeValue{":v": &types.AttributeValueMemberS{Value: institutionalID}},
	})
}

// SaveOTP writes the challenge onto a pending row.
func (r *SignupRepo) SaveOTP(ctx context.Context, signupID string, st domain.OTPState) error {
	updates := map[string]interface{}{
		fieldOTPHash:     st.OTPHash,
		fieldOTPExpires:  st.ExpiresAt.Unix(),
		fieldOTPAttempts: st.Attempts,
		fieldOTPResends:  st.ResendCount,
		fieldOTPLastSent: st.LastSentAt.Unix(),
		fieldUpdatedAt:   time.Now().UTC().Unix(),
	}
	var remove []string
	if st.LockedAt != nil {
		updates[fieldOTPLockedAt] = st.LockedAt.Unix()
	} else {
		remove = append(remove, fieldOTPLockedAt)
	}
	return r.updateIf(ctx, signupID, updates, remove, domain.StatusPending)
}

// ClearOTP drops the challenge from the row.
func (r *SignupRepo) ClearOTP(ctx context.Context, signupID string) error {
	ue, err := buildUpdateExpr(map[string]interface{}{fieldUpdatedAt: time.Now().UTC().Unix()}, otpFields...)
	if err != nil {
		return err
	}
	_, err = r.client.UpdateItem(ctx, &dynamodb.UpdateItemInput{
		TableName:                 aws.String(r.tableName),
		Key:                       strKey("signup_id", signupID),
		UpdateExpression:          aws.String(ue.Expr),
		ConditionExpression:       aws.String("attribute_exists(signup_id)"),
		ExpressionAttributeNames:  ue.Names,
		ExpressionAttributeValues: ue.Values,
	})
	if isConditionFailed(err) {
		return fmt.Errorf("signup not found: %w", domain.ErrNotFound)
	}
	return err
}

// Activate moves a pending row to ACTIVE.
func (r *SignupRepo) Activate(ctx context.Context, signupID string) error {
	return r.updateIf(ctx, signupID, map[string]interface{}{
		fieldStatus:    string(domain.StatusActive),
		fieldUpdatedAt: time.Now().UTC().Unix(),
	}, otpFields, domain.StatusPending)
}

func (r *SignupRepo) LinkProfile(ctx context.Context, signupID, profileID string) error {
	return r.updateIf(ctx, signupID, map[string]interface{}{
		fieldLinkedProfileID: profileID,
		fieldUpdatedAt:       time.Now().UTC().Unix(),
	}, nil, domain.StatusActive)
}

func (r *SignupRepo) UpdatePassword(ctx context.Context, signupID, passwordHash string) error {
	return r.updateIf(ctx, signupID, map[string]interface{}{
		fieldPasswordHash: passwordHash,
		fieldUpdatedAt:    time.Now().UTC().Unix(),
	}, nil, domain.StatusActive)
}

// ListPendingCreatedBefore returns PENDING_VERIFICATION rows created before cutoff.
func (r *SignupRepo) ListPendingCreatedBefore(ctx context.Context, cutoff time.Time) ([]domain.SignupRecord, error) {
	return r.listByStatusBefore(ctx, indexStatusCreatedAt, fieldCreatedAt, domain.StatusPending, cutoff)
}

// ListExpiredUpdatedBefore returns EXPIRED rows last touched before cutoff.
func (r *SignupRepo) ListExpiredUpdatedBefore(ctx context.Context, cutoff time.Time) ([]domain.SignupRecord, error) {
	return r.listByStatusBefore(ctx, indexStatusUpdatedAt, fieldUpdatedAt, domain.StatusExpired, cutoff)
}

// Expire flips a stale pending row to EXPIRED and drops its challenge. The
// predicate is re-checked server side; false means the row no longer matched.
func (r *SignupRepo) Expire(ctx context.Context, signupID string, cutoff, at time.Time) (bool, error) {
	ue, err := buildUpdateExpr(map[string]interface{}{
		fieldStatus:    string(domain.StatusExpired),
		fieldUpdatedAt: at.UTC().Unix(),
	}, otpFields...)
	if err != nil {
		return false, err
	}
	ue.with(map[string]string{"#s": fieldStatus, "#c": fieldCreatedAt}, map[string]types.AttributeValue{
		":want":   &types.AttributeValueMemberS{Value: string(domain.StatusPending)},
		":cutoff": &types.AttributeValueMemberN{Value: fmt.Sprint(cutoff.UTC().Unix())},
	})
	_, err = r.client.UpdateItem(ctx, &dynamodb.UpdateItemInput{
		TableName:                 aws.String(r.tableName),
		Key:                       strKey("signup_id", signupID),
		UpdateExpression:          aws.String(ue.Expr),
		ConditionExpression:       aws.String("#s = :want AND #c < :cutoff"),
		ExpressionAttributeNames:  ue.Names,
		ExpressionAttributeValues: ue.Values,
	})
	if isConditionFailed(err) {
		return false, nil
	}
	return err == nil, err
}

// DeleteExpired removes an EXPIRED row last touched before cutoff.
func (r *SignupRepo) DeleteExpired(ctx context.Context, signupID string, cutoff time.Time) (bool, error) {
	_, err := r.client.DeleteItem(ctx, &dynamodb.DeleteItemInput{
		TableName:                aws.String(r.tableName),
		Key:                      strKey("signup_id", signupID),
		ConditionExpression:      aws.String("#s = :want AND #u < :cutoff"),
		ExpressionAttributeNames: map[string]string{"#s": fieldStatus, "#u": fieldUpdatedAt},
		ExpressionAttributeValues: map[string]types.AttributeValue{
			":want":   &types.AttributeValueMemberS{Value: string(domain.StatusExpired)},
			":cutoff": &types.AttributeValueMemberN{Value: fmt.Sprint(cutoff.UTC().Unix())},
		},
	})
	if isConditionFailed(err) {
		return false, nil
	}
	return err == nil, err
}

// updateIf applies a SET/REMOVE update guarded by the row's current status.
func (r *SignupRepo) updateIf(ctx context.Context, signupID string, updates map[string]interface{}, remove []string, status domain.SignupStatus) error {
	ue, err := buildUpdateExpr(updates, remove...)
	if err != nil {
		return err
	}
	ue.with(map[string]string{"#s": fieldStatus}, map[string]types.AttributeValue{
		":want": &types.AttributeValueMemberS{Value: string(status)},
	})
	_, err = r.client.UpdateItem(ctx, &dynamodb.UpdateItemInput{
		TableName:                 aws.String(r.tableName),
		Key:                       strKey("signup_id", signupID),
		UpdateExpression:          aws.String(ue.Expr),
		ConditionExpression:       aws.String("#s = :want"),
		ExpressionAttributeNames:  ue.Names,
		ExpressionAttributeValues: ue.Values,
	})
	if isConditionFailed(err) {
		return fmt.Errorf("signup %s is not %s: %w", signupID, status, domain.ErrConflict)
	}
	return err
}

func (r *SignupRepo) listByStatusBefore(ctx context.Context, index, attr string, status domain.SignupStatus, cutoff time.Time) ([]domain.SignupRecord, error) {
	return r.queryAll(ctx, &dynamodb.QueryInput{
		TableName:                aws.String(r.tableName),
		IndexName:                aws.String(index),
		KeyConditionExpression:   aws.String("#s = :status AND #t < :cutoff"),
		ExpressionAttributeNames: map[string]string{"#s": fieldStatus, "#t": attr},
		ExpressionAttributeValues: map[string]types.AttributeValue{
			":status": &types.AttributeValueMemberS{Value: string(status)},
			":cutoff": &types.AttributeValueMemberN{Value: fmt.Sprint(cutoff.UTC().Unix())},
		},
	})
}

func (r *SignupRepo) queryAll(ctx context.Context, input *dynamodb.QueryInput) ([]domain.SignupRecord, error) {
	var recs []domain.SignupRecord
	p := dynamodb.NewQueryPaginator(r.client, input)
	for p.HasMorePages() {
		out, err := p.NextPage(ctx)
		if err != nil {
			return nil, err
		}
		var page []domain.SignupRecord
		if err := attributevalue.UnmarshalListOfMaps(out.Items, &page); err != nil {
			return nil, err
		}
		recs = append(recs, page...)
	}
	return recs, nil
}

// Ping checks the table is reachable. Used by the readiness probe.
func (r *SignupRepo) Ping(ctx context.Context) error {
	_, err := r.client.DescribeTable(ctx, &dynamodb.DescribeTableInput{TableName: aws.String(r.tableName)})
	return err
}
