// Package task decodes and validates incoming worker task envelopes. Records
// that fail validation are logged and dropped; the batch keeps going.
package task

import (
	"encoding/json"

	"github.com/rotisserie/eris"
	"github.com/santhosh-tekuri/jsonschema/v6"
	"go.uber.org/zap"
)

// Decoder validates raw task payloads against a JSON schema before
// unmarshalling them into their typed form.
type Decoder[T any] struct {
	schema *jsonschema.Schema
}

// NewDecoder compiles the schema at path.
func NewDecoder[T any](path string) (*Decoder[T], error) {
	compiler := jsonschema.NewCompiler()
	schema, err := compiler.Compile(path)
	if err != nil {
		return nil, eris.Wrapf(err, "compiling schema %s", path)
	}
	return &Decoder[T]{schema: schema}, nil
}

// Decode validates one payload. The second return is false when the payload
// is not JSON or does not satisfy the schema.
func (d *Decoder[T]) Decode(payload []byte) (T, bool) {
	var zero T

	var raw any
	if err := json.Unmarshal(payload, &raw); err != nil {
		zap.L().Error("decoding error",
			zap.String("data", string(payload)),
			zap.Error(err),
		)
		return zero, false
	}

	if err := d.schema.Validate(raw); err != nil {
		zap.L().Warn("invalid task",
			zap.String("data", string(payload)),
			zap.Error(err),
		)
		return zero, false
	}

	var task T
	if err := json.Unmarshal(payload, &task); err != nil {
		zap.L().Error("decoding error",
			zap.String("data", string(payload)),
			zap.Error(err),
		)
		return zero, false
	}
	return task, true
}

// DecodeAll validates a batch, keeping the payloads that pass.
func (d *Decoder[T]) DecodeAll(payloads [][]byte) []T {
	var tasks []T
	for _, payload := range payloads {
		if task, ok := d.Decode(payload); ok {
			tasks = append(tasks, task)
		}
	}
	return tasks
}
