package logging

import (
	"encoding/json"
	"time"

	"go.uber.org/zap/buffer"
	"go.uber.org/zap/zapcore"
)

// ScalyrEncoder writes one flat JSON object per line, the shape Scalyr's JSON parser expects.
// Context fields added through With() are kept in the embedded map encoder.
type ScalyrEncoder struct {
	*zapcore.MapObjectEncoder
	config zapcore.EncoderConfig
	pool   buffer.Pool
}

// NewScalyrEncoder creates a new Scalyr-compatible encoder
func NewScalyrEncoder(config zapcore.EncoderConfig) zapcore.Encoder {
	return &ScalyrEncoder{
		MapObjectEncoder: zapcore.NewMapObjectEncoder(),
		config:           config,
		pool:             buffer.NewPool(),
	}
}

// Clone creates a copy of the encoder including its context fields
func (e *ScalyrEncoder) Clone() zapcore.Encoder {
	clone := zapcore.NewMapObjectEncoder()
	for k, v := range e.Fields {
		clone.Fields[k] = v
	}
	return &ScalyrEncoder{
		MapObjectEncoder: clone,
		config:           e.config,
		pool:             e.pool,
	}
}

// EncodeEntry encodes a log entry in Scalyr-compatible format
func (e *ScalyrEncoder) EncodeEntry(entry zapcore.Entry, fields []zapcore.Field) (*buffer.Buffer, error) {
	enc := zapcore.NewMapObjectEncoder()
	for k, v := range e.Fields {
		enc.Fields[k] = v
	}
	for _, field := range fields {
		field.AddTo(enc)
	}

	event := enc.Fields
	event["timestamp"] = entry.Time.UTC().Format(time.RFC3339Nano)
	event["level"] = entry.Level.String()
	event["message"] = entry.Message
	if entry.LoggerName != "" {
		event["logger"] = entry.LoggerName
	}
	if entry.Caller.Defined {
		event["file"] = entry.Caller.TrimmedPath()
		event["line"] = entry.Caller.Line
		event["function"] = entry.Caller.Function
	}
	if entry.Stack != "" {
		event["stack"] = entry.Stack
	}

	buf := e.pool.Get()
	encoder := json.NewEncoder(buf)
	encoder.SetEscapeHTML(false)
	// Encode terminates the object with the newline zap expects between entries
	if err := encoder.Encode(event); err != nil {
		buf.Free()
		return nil, err
	}
	return buf, nil
}
