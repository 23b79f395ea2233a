// Package memkv is an in-memory fake satisfying dynamostore.Client, letting
// pkg/dynamostore's key derivation, condition-expression, and
// transaction-assembly logic run against tests without a live DynamoDB
// table. It understands exactly the condition-expression shapes
// pkg/dynamostore issues; it is a test double, not a general DynamoDB
// emulator.
package memkv

import (
	"context"
	"strconv"
	"strings"
	"sync"

	"github.com/aws/aws-sdk-go-v2/service/dynamodb"
	"github.com/aws/aws-sdk-go-v2/service/dynamodb/types"
)

type row = map[string]types.AttributeValue

// Client is the in-memory fake. The zero value is ready to use.
type Client struct {
	mu     sync.Mutex
	tables map[string]map[string]row
}

// New returns a ready-to-use fake.
func New() *Client {
	return &Client{tables: make(map[string]map[string]row)}
}

func rowKey(item row) string {
	pkey, _ := item["pkey"].(*types.AttributeValueMemberS)
	skey, _ := item["skey"].(*types.AttributeValueMemberS)
	p, s := "", ""
	if pkey != nil {
		p = pkey.Value
	}
	if skey != nil {
		s = skey.Value
	}
	return p + "\x00" + s
}

func (c *Client) table(name string) map[string]row {
	if c.tables == nil {
		c.tables = make(map[string]map[string]row)
	}
	t, ok := c.tables[name]
	if !ok {
		t = make(map[string]row)
		c.tables[name] = t
	}
	return t
}

// conditionHolds evaluates the small set of ConditionExpression shapes this
// module's store package issues: "attribute_not_exists(x)",
// "attribute_not_exists(x) AND attribute_not_exists(y)", and
// "attribute_not_exists(x) OR x = :v".
func conditionHolds(expr string, names map[string]string, values map[string]types.AttributeValue, existing row, exists bool) bool {
	if expr == "" {
		return true
	}

	resolve := func(token string) string {
		if n, ok := names[token]; ok {
			return n
		}
		return token
	}

	evalClause := func(clause string) bool {
		clause = strings.TrimSpace(clause)
		if strings.HasPrefix(clause, "attribute_not_exists(") {
			attr := resolve(strings.TrimSuffix(strings.TrimPrefix(clause, "attribute_not_exists("), ")"))
			if !exists {
				return true
			}
			_, has := existing[attr]
			return !has
		}
		if idx := strings.Index(clause, "="); idx >= 0 {
			attr := resolve(strings.TrimSpace(clause[:idx]))
			valueToken := strings.TrimSpace(clause[idx+1:])
			want, ok := values[valueToken]
			if !ok || !exists {
				return false
			}
			got, has := existing[attr]
			if !has {
				return false
			}
			return attrEqual(got, want)
		}
		return false
	}

	if parts := strings.SplitN(expr, " OR ", 2); len(parts) == 2 {
		return evalClause(parts[0]) || evalClause(parts[1])
	}
	if parts := strings.SplitN(expr, " AND ", 2); len(parts) == 2 {
		return evalClause(parts[0]) && evalClause(parts[1])
	}
	return evalClause(expr)
}

func attrEqual(a, b types.AttributeValue) bool {
	an, aok := a.(*types.AttributeValueMemberN)
	bn, bok := b.(*types.AttributeValueMemberN)
	if aok && bok {
		return an.Value == bn.Value
	}
	as, aok := a.(*types.AttributeValueMemberS)
	bs, bok := b.(*types.AttributeValueMemberS)
	if aok && bok {
		return as.Value == bs.Value
	}
	return false
}

func conditionalCheckFailed() error {
	return &types.ConditionalCheckFailedException{Message: strPtr("the conditional request failed")}
}

func strPtr(s string) *string { return &s }

// PutItem implements dynamostore.Client.
func (c *Client) PutItem(_ context.Context, params *dynamodb.PutItemInput, _ ...func(*dynamodb.Options)) (*dynamodb.PutItemOutput, error) {
	c.mu.Lock()
	defer c.mu.Unlock()

	table := c.table(*params.TableName)
	key := rowKey(params.Item)
	existing, exists := table[key]

	expr := ""
	if params.ConditionExpression != nil {
		expr = *params.ConditionExpression
	}
	if !conditionHolds(expr, params.ExpressionAttributeNames, params.ExpressionAttributeValues, existing, exists) {
		return nil, conditionalCheckFailed()
	}

	table[key] = params.Item
	return &dynamodb.PutItemOutput{}, nil
}

// DeleteItem implements dynamostore.Client.
func (c *Client) DeleteItem(_ context.Context, params *dynamodb.DeleteItemInput, _ ...func(*dynamodb.Options)) (*dynamodb.DeleteItemOutput, error) {
	c.mu.Lock()
	defer c.mu.Unlock()

	table := c.table(*params.TableName)
	delete(table, rowKey(params.Key))
	return &dynamodb.DeleteItemOutput{}, nil
}

// TransactWriteItems implements dynamostore.Client. All Put conditions are
// checked before any write is applied, so a failure leaves every table
// untouched, matching DynamoDB's all-or-nothing transaction semantics.
func (c *Client) TransactWriteItems(_ context.Context, params *dynamodb.TransactWriteItemsInput, _ ...func(*dynamodb.Options)) (*dynamodb.TransactWriteItemsOutput, error) {
	c.mu.Lock()
	defer c.mu.Unlock()

	reasons := make([]types.CancellationReason, len(params.TransactItems))
	failed := false

	for i, item := range params.TransactItems {
		if item.Put == nil {
			continue
		}
		table := c.table(*item.Put.TableName)
		key := rowKey(item.Put.Item)
		existing, exists := table[key]

		expr := ""
		if item.Put.ConditionExpression != nil {
			expr = *item.Put.ConditionExpression
		}
		if !conditionHolds(expr, item.Put.ExpressionAttributeNames, item.Put.ExpressionAttributeValues, existing, exists) {
			reasons[i] = types.CancellationReason{Code: strPtr("ConditionalCheckFailed")}
			failed = true
		} else {
			reasons[i] = types.CancellationReason{Code: strPtr("None")}
		}
	}

	if failed {
		return nil, &types.TransactionCanceledException{
			Message:             strPtr("Transaction cancelled"),
			CancellationReasons: reasons,
		}
	}

	for _, item := range params.TransactItems {
		if item.Put == nil {
			continue
		}
		table := c.table(*item.Put.TableName)
		table[rowKey(item.Put.Item)] = item.Put.Item
	}
	return &dynamodb.TransactWriteItemsOutput{}, nil
}

// Query implements dynamostore.Client. IndexName is accepted but ignored:
// since this fake stores one flat item per table regardless of which GSI a
// production query would have used, filtering directly against the item's
// own attributes produces the same result set a real GSI query would.
func (c *Client) Query(_ context.Context, params *dynamodb.QueryInput, _ ...func(*dynamodb.Options)) (*dynamodb.QueryOutput, error) {
	c.mu.Lock()
	defer c.mu.Unlock()

	table := c.table(*params.TableName)

	pkeyAttr := params.ExpressionAttributeNames["#pkey"]
	pkeyWant, _ := params.ExpressionAttributeValues[":pkey"].(*types.AttributeValueMemberS)

	skeyAttr, hasSkey := params.ExpressionAttributeNames["#skey"]
	var skeyFrom int64
	if hasSkey {
		if v, ok := params.ExpressionAttributeValues[":skey"].(*types.AttributeValueMemberN); ok {
			skeyFrom, _ = strconv.ParseInt(v.Value, 10, 64)
		}
	}

	var matched []row
	for _, item := range table {
		got, ok := item[pkeyAttr].(*types.AttributeValueMemberS)
		if !ok || pkeyWant == nil || got.Value != pkeyWant.Value {
			continue
		}
		if hasSkey {
			n, ok := item[skeyAttr].(*types.AttributeValueMemberN)
			if !ok {
				continue
			}
			v, err := strconv.ParseInt(n.Value, 10, 64)
			if err != nil || v < skeyFrom {
				continue
			}
		}
		matched = append(matched, item)
	}

	sortRows(matched, skeyAttr, hasSkey)

	items := make([]row, len(matched))
	copy(items, matched)
	return &dynamodb.QueryOutput{Items: items, Count: int32(len(items))}, nil
}

func sortRows(rows []row, numericSortKey string, hasKey bool) {
	if !hasKey {
		return
	}
	for i := 1; i < len(rows); i++ {
		for j := i; j > 0; j-- {
			a, _ := rows[j-1][numericSortKey].(*types.AttributeValueMemberN)
			b, _ := rows[j][numericSortKey].(*types.AttributeValueMemberN)
			if a == nil || b == nil {
				break
			}
			av, _ := strconv.ParseInt(a.Value, 10, 64)
			bv, _ := strconv.ParseInt(b.Value, 10, 64)
			if av <= bv {
				break
			}
			rows[j-1], rows[j] = rows[j], rows[j-1]
		}
	}
}
