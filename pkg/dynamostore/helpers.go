package dynamostore

import (
	"encoding/json"
	"errors"
	"fmt"
	"strconv"

	"github.com/aws/aws-sdk-go-v2/service/dynamodb"
	"github.com/aws/aws-sdk-go-v2/service/dynamodb/types"

	"github.com/plaenen/eventstore/pkg/eventstore"
)

// eventstoreOptimisticLockError adapts a TransactWriteItems conditional
// failure into eventstore.ErrOptimisticLock while preserving the original
// error via Unwrap.
type eventstoreOptimisticLockError struct {
	cause error
}

func (e *eventstoreOptimisticLockError) Error() string {
	return fmt.Sprintf("eventstore: optimistic_lock: %v", e.cause)
}
func (e *eventstoreOptimisticLockError) Unwrap() error { return e.cause }
func (e *eventstoreOptimisticLockError) Is(target error) bool {
	return target == error(eventstore.ErrOptimisticLock)
}

// isConditionalCheckFailed reports whether err came from a failed
// ConditionExpression, the AWS SDK v2 shape used by both PutItem and
// TransactWriteItems.
func isConditionalCheckFailed(err error) bool {
	var ccf *types.ConditionalCheckFailedException
	if errors.As(err, &ccf) {
		return true
	}
	var tce *types.TransactionCanceledException
	if errors.As(err, &tce) {
		for _, reason := range tce.CancellationReasons {
			if reason.Code != nil && *reason.Code == "ConditionalCheckFailed" {
				return true
			}
		}
	}
	return false
}

func dynamoTransactInput(items []types.TransactWriteItem) dynamodb.TransactWriteItemsInput {
	return dynamodb.TransactWriteItemsInput{TransactItems: items}
}

func putItemInput(table string, item map[string]types.AttributeValue) dynamodb.PutItemInput {
	return dynamodb.PutItemInput{
		TableName:           &table,
		Item:                item,
		ConditionExpression: strPtr("attribute_not_exists(pkey) AND attribute_not_exists(skey)"),
	}
}

func deleteItemInput(table, pkey, skey string) dynamodb.DeleteItemInput {
	return dynamodb.DeleteItemInput{
		TableName: &table,
		Key: map[string]types.AttributeValue{
			"pkey": &types.AttributeValueMemberS{Value: pkey},
			"skey": &types.AttributeValueMemberS{Value: skey},
		},
	}
}

// queryInput builds a Query for "pkeyName = pkeyValue AND skeyName >=
// skeyFrom" against tableOrIndex; a caller that targets a GSI sets IndexName
// on the returned input. skeyName == ""
// omits the sort-key condition entirely (partition-key-only query, used by
// the inverted index).
func queryInput(tableOrIndex, pkeyName, pkeyValue, skeyName string, skeyFrom int64, consistentRead bool) *dynamodb.QueryInput {
	names := map[string]string{"#pkey": pkeyName}
	values := map[string]types.AttributeValue{":pkey": &types.AttributeValueMemberS{Value: pkeyValue}}
	expr := "#pkey = :pkey"

	if skeyName != "" {
		names["#skey"] = skeyName
		values[":skey"] = &types.AttributeValueMemberN{Value: strconv.FormatInt(skeyFrom, 10)}
		expr += " AND #skey >= :skey"
	}

	input := &dynamodb.QueryInput{
		TableName:                 &tableOrIndex,
		KeyConditionExpression:    &expr,
		ExpressionAttributeNames:  names,
		ExpressionAttributeValues: values,
		ConsistentRead:            &consistentRead,
	}
	return input
}

func decodeJournalItem(item map[string]types.AttributeValue) (eventstore.SerializedDomainEvent, error) {
	var e eventstore.SerializedDomainEvent
	var err error

	if e.EventID, err = requireString(item, "event_id"); err != nil {
		return e, err
	}
	if e.AggregateID, err = requireString(item, "aid"); err != nil {
		return e, err
	}
	if e.AggregateType, err = requireString(item, "aggregate_type"); err != nil {
		return e, err
	}
	if e.EventType, err = requireString(item, "event_type"); err != nil {
		return e, err
	}
	seqNr, err := requireNumber(item, "seq_nr")
	if err != nil {
		return e, err
	}
	e.SeqNr = seqNr
	if e.Payload, err = requireBinary(item, "payload"); err != nil {
		return e, err
	}
	if metadata, ok := item["metadata"]; ok {
		b, ok := metadata.(*types.AttributeValueMemberB)
		if !ok {
			return e, fmt.Errorf("dynamostore: attribute %q is not binary", "metadata")
		}
		if len(b.Value) > 0 {
			if err := json.Unmarshal(b.Value, &e.Metadata); err != nil {
				return e, fmt.Errorf("dynamostore: decode metadata: %w", err)
			}
		}
	}
	return e, nil
}

func decodeSnapshotItem(item map[string]types.AttributeValue) (eventstore.PersistedSnapshot, error) {
	var s eventstore.PersistedSnapshot
	var err error

	if s.AggregateID, err = requireString(item, "aid"); err != nil {
		return s, err
	}
	if s.AggregateType, err = requireString(item, "aggregate_type"); err != nil {
		return s, err
	}
	if s.Aggregate, err = requireBinary(item, "aggregate"); err != nil {
		return s, err
	}
	if s.SeqNr, err = requireNumber(item, "seq_nr"); err != nil {
		return s, err
	}
	if s.Version, err = requireNumber(item, "version"); err != nil {
		return s, err
	}
	return s, nil
}

func requireString(item map[string]types.AttributeValue, key string) (string, error) {
	v, ok := item[key]
	if !ok {
		return "", fmt.Errorf("dynamostore: missing attribute %q", key)
	}
	s, ok := v.(*types.AttributeValueMemberS)
	if !ok {
		return "", fmt.Errorf("dynamostore: attribute %q is not a string", key)
	}
	return s.Value, nil
}

func requireNumber(item map[string]types.AttributeValue, key string) (int64, error) {
	v, ok := item[key]
	if !ok {
		return 0, fmt.Errorf("dynamostore: missing attribute %q", key)
	}
	n, ok := v.(*types.AttributeValueMemberN)
	if !ok {
		return 0, fmt.Errorf("dynamostore: attribute %q is not a number", key)
	}
	return strconv.ParseInt(n.Value, 10, 64)
}

func requireBinary(item map[string]types.AttributeValue, key string) ([]byte, error) {
	v, ok := item[key]
	if !ok {
		return nil, fmt.Errorf("dynamostore: missing attribute %q", key)
	}
	b, ok := v.(*types.AttributeValueMemberB)
	if !ok {
		return nil, fmt.Errorf("dynamostore: attribute %q is not binary", key)
	}
	return b.Value, nil
}
