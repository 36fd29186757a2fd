// Package dispatcher decodes requests for IDL functions, invokes their handlers and
// classifies the outcome into a uniform response envelope.
package dispatcher

import (
	"bytes"
	"fmt"
	"log/slog"

	jsoniter "github.com/json-iterator/go"
)

var json = jsoniter.ConfigCompatibleWithStandardLibrary

// Envelope response values.
const (
	ResponseOK    = "ok"
	ResponseError = "error"
)

// Envelope is the JSON body returned for every bridged call.
type Envelope struct {
	Response      string `json:"response"`
	Return        any    `json:"return,omitempty"`
	Error         string `json:"error,omitempty"`
	Exception     any    `json:"exception,omitempty"`
	ExceptionType string `json:"exceptionType,omitempty"`
}

// OK reports whether the call succeeded.
func (e *Envelope) OK() bool {
	return e.Response == ResponseOK
}

// MarshalJSON writes the envelope with a fixed key order. Success always carries
// "return", even when it is null.
func (e Envelope) MarshalJSON() ([]byte, error) {
	var buf bytes.Buffer
	if e.Response == ResponseOK {
		ret, err := json.Marshal(e.Return)
		if err != nil {
			return nil, err
		}
		buf.WriteString(`{"return":`)
		buf.Write(ret)
		buf.WriteString(`,"response":"ok"}`)
		return buf.Bytes(), nil
	}

	buf.WriteString(`{"response":`)
	resp, _ := json.Marshal(e.Response)
	buf.Write(resp)
	if e.ExceptionType != "" {
		exc, err := json.Marshal(e.Exception)
		if err != nil {
			return nil, err
		}
		typ, _ := json.Marshal(e.ExceptionType)
		buf.WriteString(`,"exception":`)
		buf.Write(exc)
		buf.WriteString(`,"exceptionType":`)
		buf.Write(typ)
	} else {
		msg, _ := json.Marshal(e.Error)
		buf.WriteString(`,"error":`)
		buf.Write(msg)
	}
	buf.WriteByte('}')
	return buf.Bytes(), nil
}

// Success builds an ok envelope.
func Success(ret any) *Envelope {
	return &Envelope{Response: ResponseOK, Return: ret}
}

// Failure builds an error envelope carrying a message.
func Failure(message string) *Envelope {
	return &Envelope{Response: ResponseError, Error: message}
}

// ExceptionFailure builds an error envelope carrying a serialized exception.
func ExceptionFailure(exception any, typeName string) *Envelope {
	return &Envelope{Response: ResponseError, Exception: exception, ExceptionType: typeName}
}

// Encode marshals an envelope. A return value that cannot be encoded is reported as an
// internal error instead.
func Encode(env *Envelope) []byte {
	data, err := json.Marshal(env)
	if err == nil {
		return data
	}
	slog.Error(fmt.Sprintf("%s - failed to encode envelope: %v", logPrefix, err))
	data, _ = json.Marshal(Failure(MsgInternal))
	return data
}

// DecodeEnvelope parses an envelope produced by Encode.
func DecodeEnvelope(data []byte) (*Envelope, error) {
	var env Envelope
	if err := json.Unmarshal(data, &env); err != nil {
		return nil, fmt.Errorf("%s - failed to decode envelope: %w", logPrefix, err)
	}
	return &env, nil
}
