package streamrouter

import (
	"context"
	"encoding/base64"
	"encoding/json"
	"fmt"
	"unicode/utf8"
)

// Record is one change-data-capture record in the DynamoDB Streams Lambda
// event shape: {"dynamodb":{"NewImage": {...}}}. Only the two attributes the
// router needs are modeled; everything else in NewImage is ignored.
type Record struct {
	DynamoDB struct {
		NewImage struct {
			EventType struct {
				S string `json:"S"`
			} `json:"event_type"`
			Payload struct {
				B string `json:"B"`
			} `json:"payload"`
		} `json:"NewImage"`
	} `json:"dynamodb"`
}

// ParseRecord decodes one CDC record and extracts its event type and
// payload bytes. Binary extraction is tolerant of three wire shapes, tried
// in order: a base64-encoded string decodes to its raw bytes; a valid UTF-8
// string that isn't valid base64 (e.g. embedded JSON) passes through as-is;
// anything else is treated as already-raw bytes.
func ParseRecord(data []byte) (eventType string, payload []byte, err error) {
	var rec Record
	if err := json.Unmarshal(data, &rec); err != nil {
		return "", nil, fmt.Errorf("streamrouter: decode record: %w", err)
	}

	eventType = rec.DynamoDB.NewImage.EventType.S
	raw := rec.DynamoDB.NewImage.Payload.B

	if decoded, err := base64.StdEncoding.DecodeString(raw); err == nil {
		return eventType, decoded, nil
	}
	if utf8.ValidString(raw) {
		return eventType, []byte(raw), nil
	}
	return eventType, []byte(raw), nil
}

// DispatchRecord parses data as one CDC record and dispatches it through r.
func (r *Router) DispatchRecord(ctx context.Context, data []byte) (matched bool, err error) {
	eventType, payload, err := ParseRecord(data)
	if err != nil {
		return false, err
	}
	return r.Dispatch(ctx, eventType, payload)
}
