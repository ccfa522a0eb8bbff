package ents

import (
	"context"
	"sync"

	"github.com/syssam/ents/store"
)

// Retrieval is a document whose id is known before the document is loaded.
// The loader runs at most once; every Load call returns its result.
type Retrieval struct {
	id   store.ID
	once sync.Once
	load func(context.Context) (store.Document, error)
	doc  store.Document
	err  error
}

// NewRetrieval returns a retrieval of id. load returns a nil document when
// the document does not exist.
func NewRetrieval(id store.ID, load func(context.Context) (store.Document, error)) *Retrieval {
	return &Retrieval{id: id, load: load}
}

// Loaded returns a retrieval of an already loaded document.
func Loaded(doc store.Document) *Retrieval {
	r := &Retrieval{id: doc.ID(), doc: doc}
	r.once.Do(func() {})
	return r
}

// ID returns the id of the retrieved document without loading it.
func (r *Retrieval) ID() store.ID { return r.id }

// Load loads the document once. It returns nil when the document does not
// exist.
func (r *Retrieval) Load(ctx context.Context) (store.Document, error) {
	r.once.Do(func() {
		r.doc, r.err = r.load(ctx)
	})
	return r.doc, r.err
}

// Single is a lazy chain resolving to zero or one document. Nothing is
// read from the store until Resolve, Doc or ID is called. A Single created
// with OrFail resolves to a NotFoundError instead of nil.
type Single struct {
	table *Table
	// label names the chain in errors: the table, or the traversed edge.
	label string
	// resolve returns the retrieval of the document, or nil when the chain
	// is known to be empty without loading anything.
	resolve func(context.Context) (*Retrieval, error)
	fail    bool
	err     error
}

// OrFail returns a copy of the chain that fails with a NotFoundError when
// there is no document.
func (s *Single) OrFail() *Single {
	c := *s
	c.fail = true
	return &c
}

// Table returns the table of the resolved document.
func (s *Single) Table() string { return s.table.name }

// retrieval resolves the chain. Or-fail chains load the document to check
// that it exists; or-null chains return the retrieval as is, and nil for an
// empty chain.
func (s *Single) retrieval(ctx context.Context) (*Retrieval, error) {
	if s.err != nil {
		return nil, s.err
	}
	r, err := s.resolve(ctx)
	if err != nil {
		return nil, err
	}
	if !s.fail {
		return r, nil
	}
	if r == nil {
		return nil, NewNotFoundError(s.label, "")
	}
	doc, err := r.Load(ctx)
	if err != nil {
		return nil, err
	}
	if doc == nil {
		return nil, NewNotFoundError(s.label, r.ID())
	}
	return r, nil
}

// Doc resolves the chain to the stored document, without defaults.
func (s *Single) Doc(ctx context.Context) (store.Document, error) {
	r, err := s.retrieval(ctx)
	if err != nil || r == nil {
		return nil, err
	}
	return r.Load(ctx)
}

// Resolve resolves the chain to an entity. It returns nil without error
// when there is no document, unless the chain was created with OrFail.
func (s *Single) Resolve(ctx context.Context) (*Entity, error) {
	doc, err := s.Doc(ctx)
	if err != nil || doc == nil {
		return nil, err
	}
	return s.table.entity(doc), nil
}

// ID resolves the id of the document. For chains that know the id up front,
// like Table.Get, the document is not loaded unless the chain was created
// with OrFail. An empty chain returns the empty id.
func (s *Single) ID(ctx context.Context) (store.ID, error) {
	r, err := s.retrieval(ctx)
	if err != nil || r == nil {
		return "", err
	}
	return r.ID(), nil
}
