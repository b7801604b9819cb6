package domain

import "time"

// RecordKind classifies a record across all external services.
type RecordKind string

const (
	// KindTask is a task record.
	KindTask RecordKind = "task"
	// KindMeeting is a meeting record.
	KindMeeting RecordKind = "meeting"
	// KindDocument is a free-form document record.
	KindDocument RecordKind = "document"
)

// IsValid reports whether the kind is one of the known values.
func (k RecordKind) IsValid() bool {
	switch k {
	case KindTask, KindMeeting, KindDocument:
		return true
	}
	return false
}

// Field is one normalized property of an external record.
// Fields are carried as an ordered slice, not a map: adapters decide the
// order and the core never assumes a fixed schema.
type Field struct {
	// Name is the normalized property name (e.g. "title", "owner").
	Name string `json:"name"`

	// Value is the typed property value.
	Value any `json:"value"`
}

// Fields is an ordered list of normalized properties.
type Fields []Field

// Get returns the value for name and whether it was present.
func (f Fields) Get(name string) (any, bool) {
	for _, fld := range f {
		if fld.Name == name {
			return fld.Value, true
		}
	}
	return nil, false
}

// GetString returns the string value for name, or "" if absent or not
// a string.
func (f Fields) GetString(name string) string {
	v, ok := f.Get(name)
	if !ok {
		return ""
	}
	s, _ := v.(string)
	return s
}

// Set replaces the value for name, appending the field if absent.
// Order of existing fields is preserved.
func (f Fields) Set(name string, value any) Fields {
	for i := range f {
		if f[i].Name == name {
			f[i].Value = value
			return f
		}
	}
	return append(f, Field{Name: name, Value: value})
}

// Well-known normalized field names produced by the adapters.
const (
	FieldTitle = "title"
	FieldOwner = "owner"
	FieldURL   = "url"
)

// ExternalRecord is the normalized representation of one record from any
// service adapter. Instances are never mutated after creation: a newer
// version of the same record is a new instance.
type ExternalRecord struct {
	// RecordID is globally unique within the record's service.
	RecordID string

	// Kind classifies the record.
	Kind RecordKind

	// Fields holds the normalized properties in adapter order.
	Fields Fields

	// CreatedAt is when the record was created at the source.
	CreatedAt time.Time

	// LastModified is the source-side modification timestamp. It drives
	// the idempotent upsert: older snapshots are discarded.
	LastModified time.Time

	// Deleted marks a record the source reports as removed or archived.
	Deleted bool
}

// Title returns the normalized title field, or "" if the adapter did not
// provide one.
func (r *ExternalRecord) Title() string {
	return r.Fields.GetString(FieldTitle)
}

// Owner returns the normalized owner field, or "".
func (r *ExternalRecord) Owner() string {
	return r.Fields.GetString(FieldOwner)
}

// PushAction is the change type carried by a push notification.
type PushAction string

const (
	// PushCreated signals a newly created record.
	PushCreated PushAction = "created"
	// PushUpdated signals a modified record.
	PushUpdated PushAction = "updated"
	// PushDeleted signals a removed record.
	PushDeleted PushAction = "deleted"
)

// PushNotification is an inbound webhook-style change notification.
// Delivery is at-least-once; processing must be replay-safe.
type PushNotification struct {
	RecordID string     `json:"record_id"`
	Kind     RecordKind `json:"kind"`
	Action   PushAction `json:"action"`
}
