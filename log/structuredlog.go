package log

import (
	"bytes"
	"encoding/json"
	"fmt"
	"strconv"
	"time"
)

// StructuredLog is a machine-readable event record, such as the outcome of a
// certificate verification.
type StructuredLog struct {
	Time     time.Time       `json:"time"`
	Module   string          `json:"module"`
	MsgType  string          `json:"msg_type"`
	MsgJSON  json.RawMessage `json:"json_encoded"`
	Metadata *string         `json:"metadata,omitempty"`
	Elapsed  uint32          `json:"elapsed,omitempty"`
	MsgCodec string          `json:"cbor_encoded,omitempty"`
}

var fieldOrder = []string{"time", "module", "msg_type", "json_encoded", "metadata", "elapsed", "cbor_encoded"}

// Custom JSON marshaling to preserve field order and omit zero/empty values.
func (l StructuredLog) MarshalJSON() ([]byte, error) {
	buf := &bytes.Buffer{}
	buf.WriteByte('{')
	writeField := func(key string, val []byte) {
		if buf.Len() > 1 {
			buf.WriteByte(',')
		}
		fmt.Fprintf(buf, `"%s":`, key)
		buf.Write(val)
	}
	for _, f := range fieldOrder {
		switch f {
		case "time":
			b, _ := json.Marshal(l.Time)
			writeField(f, b)
		case "module":
			b, _ := json.Marshal(l.Module)
			writeField(f, b)
		case "msg_type":
			b, _ := json.Marshal(l.MsgType)
			writeField(f, b)
		case "json_encoded":
			writeField(f, l.MsgJSON)
		case "metadata":
			if l.Metadata != nil {
				b, _ := json.Marshal(*l.Metadata)
				writeField(f, b)
			}
		case "elapsed":
			if l.Elapsed != 0 {
				b, _ := json.Marshal(l.Elapsed)
				writeField(f, b)
			}
		case "cbor_encoded":
			if l.MsgCodec != "" {
				b, _ := json.Marshal(l.MsgCodec)
				writeField(f, b)
			}
		}
	}
	buf.WriteByte('}')
	return buf.Bytes(), nil
}

// Event builds a StructuredLog for msg and writes it at info level. Recognized
// kv keys are metadata, elapsed (milliseconds), cbor_encoded and time.
func Event(module string, msgType string, msg interface{}, kv ...interface{}) (StructuredLog, error) {
	msgJSON, err := json.Marshal(msg)
	if err != nil {
		return StructuredLog{}, fmt.Errorf("event %s: %w", msgType, err)
	}

	ev := StructuredLog{
		Module:  module,
		Time:    time.Now().UTC(),
		MsgType: msgType,
		MsgJSON: msgJSON,
	}

	kvMap := toMap(kv...)
	if userMeta, ok := kvMap["metadata"]; ok && userMeta != nil {
		meta := fmt.Sprint(userMeta)
		ev.Metadata = &meta
	}
	if v, ok := kvMap["elapsed"]; ok {
		ev.Elapsed = parseUint32(v)
	}
	if v, ok := kvMap["cbor_encoded"]; ok {
		ev.MsgCodec = fmt.Sprint(v)
	}
	if v, ok := kvMap["time"]; ok {
		if t, ok := v.(time.Time); ok {
			ev.Time = t
		}
	}

	msgBytes, err := json.Marshal(ev)
	if err != nil {
		return StructuredLog{}, fmt.Errorf("event %s: %w", msgType, err)
	}
	Root().Write(LevelInfo, module, msgType, "event", string(msgBytes))
	return ev, nil
}

func toMap(kv ...interface{}) map[string]interface{} {
	m := make(map[string]interface{}, len(kv)/2)
	for i := 0; i+1 < len(kv); i += 2 {
		if k, ok := kv[i].(string); ok {
			m[k] = kv[i+1]
		}
	}
	return m
}

func parseUint32(v interface{}) uint32 {
	switch t := v.(type) {
	case int:
		return uint32(t)
	case int64:
		return uint32(t)
	case float64:
		return uint32(t)
	case uint32:
		return t
	case uint64:
		return uint32(t)
	case string:
		if n, err := strconv.ParseUint(t, 10, 32); err == nil {
			return uint32(n)
		}
	}
	return 0
}
