package song

import (
	"bytes"
	"encoding/json"

	"github.com/Shivansh-Atwal/trackstack/model"
)

// Optional is a JSON field that distinguishes omitted, null and set.
type Optional[T any] struct {
	Present bool
	Null    bool
	Value   T
}

// Set returns a present, non-null Optional.
func Set[T any](v T) Optional[T] {
	return Optional[T]{Present: true, Value: v}
}

// Null returns a present Optional holding JSON null.
func Null[T any]() Optional[T] {
	return Optional[T]{Present: true, Null: true}
}

// UnmarshalJSON is only called for keys present in the document.
func (o *Optional[T]) UnmarshalJSON(data []byte) error {
	o.Present = true
	if bytes.Equal(bytes.TrimSpace(data), []byte("null")) {
		o.Null = true
		var zero T
		o.Value = zero
		return nil
	}
	o.Null = false
	return json.Unmarshal(data, &o.Value)
}

// empty reports whether a present string field clears its target.
func empty(o Optional[string]) bool {
	return o.Present && (o.Null || o.Value == "")
}

// Patch is a partial update. Omitted fields are left untouched.
type Patch struct {
	Title             Optional[string]           `json:"title"`
	Lyrics            Optional[string]           `json:"lyrics"`
	Status            Optional[model.Visibility] `json:"status"`
	BeatURL           Optional[string]           `json:"beatUrl"`
	BeatPublicID      Optional[string]           `json:"beatPublicId"`
	RecordingURL      Optional[string]           `json:"recordingUrl"`
	RecordingPublicID Optional[string]           `json:"recordingPublicId"`
}

// Draft holds the fields accepted on create. Nil and empty values take the
// defaults.
type Draft struct {
	Title             *string           `json:"title"`
	Lyrics            *string           `json:"lyrics"`
	Status            *model.Visibility `json:"status"`
	BeatURL           *string           `json:"beatUrl"`
	BeatPublicID      *string           `json:"beatPublicId"`
	RecordingURL      *string           `json:"recordingUrl"`
	RecordingPublicID *string           `json:"recordingPublicId"`
}

func nonEmpty(s *string) *string {
	if s == nil || *s == "" {
		return nil
	}
	v := *s
	return &v
}
