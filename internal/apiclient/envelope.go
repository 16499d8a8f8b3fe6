package apiclient

import (
	"bytes"
	"encoding/json"
	"fmt"
)

// DecodeOption adjusts how DecodeList unwraps a response.
type DecodeOption func(*decodeOptions)

type decodeOptions struct {
	arrayFieldFallback bool
}

// WithArrayFieldFallback accepts any object whose first array-valued property
// holds the records, in document order. The delivery-day endpoint has
// returned envelopes like {"dias": [...]}.
func WithArrayFieldFallback() DecodeOption {
	return func(o *decodeOptions) {
		o.arrayFieldFallback = true
	}
}

// DecodeList unwraps a list response. Accepted shapes:
//
//	[ ... ]
//	{"data": [ ... ]}
//	{"data": {"data": [ ... ]}}
//
// Anything else returns *UnknownEnvelopeError.
func DecodeList[T any](raw json.RawMessage, opts ...DecodeOption) ([]T, error) {
	var o decodeOptions
	for _, opt := range opts {
		opt(&o)
	}

	arr, ok := findArray(raw, o)
	if !ok {
		return nil, &UnknownEnvelopeError{Snippet: snippet(raw)}
	}

	var items []T
	if err := json.Unmarshal(arr, &items); err != nil {
		return nil, &UnknownEnvelopeError{Snippet: snippet(raw), Err: err}
	}
	if items == nil {
		items = []T{}
	}
	return items, nil
}

func findArray(raw json.RawMessage, o decodeOptions) (json.RawMessage, bool) {
	raw = bytes.TrimSpace(raw)
	if len(raw) == 0 {
		return nil, false
	}

	switch raw[0] {
	case '[':
		return raw, true
	case '{':
	default:
		return nil, false
	}

	var outer struct {
		Data json.RawMessage `json:"data"`
	}
	if err := json.Unmarshal(raw, &outer); err != nil {
		return nil, false
	}

	data := bytes.TrimSpace(outer.Data)
	if len(data) > 0 {
		switch data[0] {
		case '[':
			return data, true
		case '{':
			var inner struct {
				Data json.RawMessage `json:"data"`
			}
			if err := json.Unmarshal(data, &inner); err == nil {
				innerData := bytes.TrimSpace(inner.Data)
				if len(innerData) > 0 && innerData[0] == '[' {
					return innerData, true
				}
			}
		}
	}

	if o.arrayFieldFallback {
		return firstArrayField(raw)
	}
	return nil, false
}

// firstArrayField walks the top-level object in document order and returns
// the first property whose value is an array.
func firstArrayField(raw json.RawMessage) (json.RawMessage, bool) {
	dec := json.NewDecoder(bytes.NewReader(raw))
	if tok, err := dec.Token(); err != nil || tok != json.Delim('{') {
		return nil, false
	}
	for dec.More() {
		if _, err := dec.Token(); err != nil { // key
			return nil, false
		}
		var value json.RawMessage
		if err := dec.Decode(&value); err != nil {
			return nil, false
		}
		value = bytes.TrimSpace(value)
		if len(value) > 0 && value[0] == '[' {
			return value, true
		}
	}
	return nil, false
}

func snippet(raw json.RawMessage) string {
	s := string(bytes.TrimSpace(raw))
	if len(s) > 80 {
		return fmt.Sprintf("%s...", s[:80])
	}
	return s
}
