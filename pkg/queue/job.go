package queue

import (
	"context"
	"encoding/json"
	"fmt"
)

// Job is a registered queue worker. Type routes messages to the job;
// Name appears in logs.
type Job interface {
	Name() string
	Type() string
	Handle(ctx context.Context, payload interface{}) error
}

// ParsePayload recovers a typed payload inside a Job handler. Payloads
// arrive as json.RawMessage after a Redis round trip and as *T or T
// when handed over in process; anything else is pushed through a JSON
// round trip to recover the shape.
func ParsePayload[T any](payload interface{}) (*T, error) {
	switch p := payload.(type) {
	case *T:
		return p, nil
	case T:
		return &p, nil
	case json.RawMessage:
		return decodePayload[T](p)
	case []byte:
		return decodePayload[T](p)
	default:
		b, err := json.Marshal(payload)
		if err != nil {
			return nil, fmt.Errorf("encode %T payload: %w", payload, err)
		}
		return decodePayload[T](b)
	}
}

func decodePayload[T any](data []byte) (*T, error) {
	var v T
	if err := json.Unmarshal(data, &v); err != nil {
		return nil, fmt.Errorf("decode payload: %w", err)
	}
	return &v, nil
}
