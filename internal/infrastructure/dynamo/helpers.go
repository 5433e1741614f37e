package dynamo

import (
	"errors"
	"fmt"
	"sort"

	"github.com/aws/aws-sdk-go-v2/feature/dynamodb/attributevalue"
	"github.com/aws/aws-sdk-go-v2/service/dynamodb/types"
)

// strKey builds a DynamoDB primary key map with a single string attribute.
func strKey(name, value string) map[string]types.AttributeValue {
	return map[string]types.AttributeValue{
		name: &types.AttributeValueMemberS{Value: value},
	}
}

// compositeKey builds a DynamoDB primary key with two string attributes (PK + SK).
func compositeKey(pkName, pkValue, skName, skValue string) map[string]types.AttributeValue {
	return map[string]types.AttributeValue{
		pkName: &types.AttributeValueMemberS{Value: pkValue},
		skName: &types.AttributeValueMemberS{Value: skValue},
	}
}

// updateExpr is a rendered UpdateExpression with its placeholder maps.
type updateExpr struct {
	Expr   string
	Names  map[string]string
	Values map[string]types.AttributeValue
}

// with merges extra placeholders (from a ConditionExpression) into the expression maps.
func (u *updateExpr) with(names map[string]string, values map[string]types.AttributeValue) *updateExpr {
	for k, v := range names {
		u.Names[k] = v
	}
	if u.Values == nil && len(values) > 0 {
		u.Values = map[string]types.AttributeValue{}
	}
	for k, v := range values {
		u.Values[k] = v
	}
	return u
}

// buildUpdateExpr converts field->value pairs into a SET clause and the remove
// list into a REMOVE clause. Keys are sorted so the output is deterministic.
func buildUpdateExpr(updates map[string]interface{}, remove ...string) (*updateExpr, error) {
	if len(updates) == 0 && len(remove) == 0 {
		return nil, errors.New("no fields to update")
	}
	ue := &updateExpr{Names: map[string]string{}, Values: map[string]types.AttributeValue{}}

	keys := make([]string, 0, len(updates))
	for k := range updates {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	for i, k := range keys {
		nameKey := fmt.Sprintf("#f%d", i)
		valueKey := fmt.Sprintf(":v%d", i)
		av, err := attributevalue.Marshal(updates[k])
		if err != nil {
			return nil, fmt.Errorf("marshal field %s: %w", k, err)
		}
		ue.Names[nameKey] = k
		ue.Values[valueKey] = av
		if i == 0 {
			ue.Expr = "SET "
		} else {
			ue.Expr += ", "
		}
		ue.Expr += nameKey + " = " + valueKey
	}

	for i, k := range remove {
		nameKey := fmt.Sprintf("#r%d", i)
		ue.Names[nameKey] = k
		switch {
		case i > 0:
			ue.Expr += ", "
		case ue.Expr != "":
			ue.Expr += " REMOVE "
		default:
			ue.Expr = "REMOVE "
		}
		ue.Expr += nameKey
	}
	if len(ue.Values) == 0 {
		ue.Values = nil
	}
	return ue, nil
}

// isConditionFailed reports whether err is a failed ConditionExpression.
func isConditionFailed(err error) bool {
	var ccf *types.ConditionalCheckFailedException
	return errors.As(err, &ccf)
}
