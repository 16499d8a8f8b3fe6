package domain

import (
	"strconv"
	"strings"
)

// Draft is unsaved form state for creating or updating a record.
// A nil EditID means create mode.
type Draft struct {
	EditID *int64
	Fields map[string]string
}

// NewDraft returns an empty create-mode draft.
func NewDraft() Draft {
	return Draft{Fields: map[string]string{}}
}

// EditDraft returns an update-mode draft for the record with the given id.
func EditDraft(id int64, fields map[string]string) Draft {
	if fields == nil {
		fields = map[string]string{}
	}
	return Draft{EditID: &id, Fields: fields}
}

// IsEdit reports whether the draft updates an existing record.
func (d Draft) IsEdit() bool {
	return d.EditID != nil
}

// Get returns the raw field value.
func (d Draft) Get(field string) string {
	return d.Fields[field]
}

// Trimmed returns the field value without surrounding whitespace.
func (d Draft) Trimmed(field string) string {
	return strings.TrimSpace(d.Fields[field])
}

// Checked reports whether a checkbox field was submitted as on.
func (d Draft) Checked(field string) bool {
	switch strings.ToLower(d.Trimmed(field)) {
	case "on", "true", "1", "si", "sí":
		return true
	}
	return false
}

// Set writes a field value, allocating the map if needed.
func (d *Draft) Set(field, value string) {
	if d.Fields == nil {
		d.Fields = map[string]string{}
	}
	d.Fields[field] = value
}

// EditIDString returns the edit id as a string, or "" in create mode.
func (d Draft) EditIDString() string {
	if d.EditID == nil {
		return ""
	}
	return strconv.FormatInt(*d.EditID, 10)
}

// Clone returns a deep copy so callers cannot mutate shared state.
func (d Draft) Clone() Draft {
	out := Draft{Fields: make(map[string]string, len(d.Fields))}
	if d.EditID != nil {
		id := *d.EditID
		out.EditID = &id
	}
	for k, v := range d.Fields {
		out.Fields[k] = v
	}
	return out
}
