// Package event decodes incoming storage notifications into the object
// references the relay processes.
package event

import (
	"encoding/json"
	"fmt"
	"net/url"

	"github.com/aws/aws-lambda-go/events"
)

// ObjectRef identifies one stored email object to process. Key is already
// URL-unescaped.
type ObjectRef struct {
	Bucket string
	Key    string
}

// Decode extracts object references from a raw notification payload. Two
// shapes are accepted: a bare S3 event, and an SQS event whose record
// bodies are JSON-encoded S3 events. Every record in the event is
// returned, in order.
func Decode(raw []byte) ([]ObjectRef, error) {
	var env struct {
		Records []json.RawMessage `json:"Records"`
	}
	if err := json.Unmarshal(raw, &env); err != nil {
		return nil, fmt.Errorf("failed to decode notification: %w", err)
	}
	if len(env.Records) == 0 {
		return nil, fmt.Errorf("notification contains no records")
	}

	var refs []ObjectRef
	for i, rec := range env.Records {
		var probe struct {
			S3   events.S3Entity `json:"s3"`
			Body string          `json:"body"`
		}
		if err := json.Unmarshal(rec, &probe); err != nil {
			return nil, fmt.Errorf("failed to decode record %d: %w", i, err)
		}

		switch {
		case probe.S3.Bucket.Name != "":
			ref, err := fromS3(probe.S3)
			if err != nil {
				return nil, fmt.Errorf("record %d: %w", i, err)
			}
			refs = append(refs, ref)
		case probe.Body != "":
			// SQS delivery wraps the S3 event in the record body.
			inner, err := Decode([]byte(probe.Body))
			if err != nil {
				return nil, fmt.Errorf("record %d: %w", i, err)
			}
			refs = append(refs, inner...)
		default:
			return nil, fmt.Errorf("record %d carries neither an s3 entity nor a body", i)
		}
	}
	return refs, nil
}

// fromS3 converts an S3 event entity, unescaping the object key the same
// way the notification producer escaped it (%XX sequences and '+' for
// space).
func fromS3(e events.S3Entity) (ObjectRef, error) {
	key, err := url.QueryUnescape(e.Object.Key)
	if err != nil {
		return ObjectRef{}, fmt.Errorf("failed to unescape object key %q: %w", e.Object.Key, err)
	}
	return ObjectRef{Bucket: e.Bucket.Name, Key: key}, nil
}
