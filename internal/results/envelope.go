package results

import "errors"

// Pagination is one page of a result collection.
//
// DocumentCount is the number of documents on this page and is what a
// caller advances its skip offset by; it is not the size of the whole
// result set. An absent NextPage means this is the last page.
type Pagination[T any] struct {
	HitCount      int64  `json:"hitCount,omitempty"`
	Skip          int    `json:"skip"`
	Take          int    `json:"take"`
	NextPage      string `json:"nextPage,omitempty"`
	PreviousPage  string `json:"previousPage,omitempty"`
	DocumentCount int    `json:"documentCount"`
	Documents     []T    `json:"documents"`
}

// HasNext reports whether another page follows this one.
func (p *Pagination[T]) HasNext() bool {
	return p != nil && p.NextPage != ""
}

// ErrDocumentWithoutExists is returned when a single-document envelope says
// the document does not exist yet carries one.
var ErrDocumentWithoutExists = errors.New("document present although exists is false")

// SingleDocument wraps a lookup of one entity. Exists=false is a normal
// outcome, not an error.
type SingleDocument[T any] struct {
	Exists   bool   `json:"exists"`
	Type     string `json:"type,omitempty"`
	Document *T     `json:"document,omitempty"`
}

// Found builds an envelope for an existing document.
func Found[T any](doc T) *SingleDocument[T] {
	return &SingleDocument[T]{Exists: true, Document: &doc}
}

// NotFound builds an envelope for an absent document.
func NotFound[T any]() *SingleDocument[T] {
	return &SingleDocument[T]{Exists: false}
}

// Validate enforces that a document is only present when Exists is true.
func (d *SingleDocument[T]) Validate() error {
	if !d.Exists && d.Document != nil {
		return ErrDocumentWithoutExists
	}
	return nil
}

// Get returns the document and whether it exists.
func (d *SingleDocument[T]) Get() (T, bool) {
	var zero T
	if d == nil || !d.Exists || d.Document == nil {
		return zero, false
	}
	return *d.Document, true
}
