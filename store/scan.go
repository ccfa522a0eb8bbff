package store

import (
	"cmp"
	"context"
	"fmt"
	"slices"
	"strconv"
	"strings"
	"unicode"
)

// Order is the direction of a scan.
type Order uint8

// Scan directions.
const (
	Asc Order = iota
	Desc
)

// String returns the order name.
func (o Order) String() string {
	if o == Desc {
		return "desc"
	}
	return "asc"
}

type fieldValue struct {
	field string
	value any
}

type bound struct {
	field     string
	value     any
	inclusive bool
}

// IndexRange narrows an index scan. Equality conditions must name a prefix
// of the index fields in order; bounds may follow on the next field.
//
//	users.WithIndex("by_channel_score", func(r *store.IndexRange) {
//	    r.Eq("channel", "general").Gte("score", 10)
//	})
type IndexRange struct {
	eqs          []fieldValue
	lower, upper *bound
	err          error
}

// Eq adds an equality condition on the given index field.
func (r *IndexRange) Eq(field string, v any) *IndexRange {
	if r.lower != nil || r.upper != nil {
		r.setErr(fmt.Errorf("Eq(%q) after a range bound", field))
	}
	r.eqs = append(r.eqs, fieldValue{field: field, value: Normalize(v)})
	return r
}

// Gt adds an exclusive lower bound.
func (r *IndexRange) Gt(field string, v any) *IndexRange { return r.setLower(field, v, false) }

// Gte adds an inclusive lower bound.
func (r *IndexRange) Gte(field string, v any) *IndexRange { return r.setLower(field, v, true) }

// Lt adds an exclusive upper bound.
func (r *IndexRange) Lt(field string, v any) *IndexRange { return r.setUpper(field, v, false) }

// Lte adds an inclusive upper bound.
func (r *IndexRange) Lte(field string, v any) *IndexRange { return r.setUpper(field, v, true) }

func (r *IndexRange) setLower(field string, v any, inclusive bool) *IndexRange {
	if r.lower != nil {
		r.setErr(fmt.Errorf("more than one lower bound on %q", field))
	}
	r.lower = &bound{field: field, value: Normalize(v), inclusive: inclusive}
	return r
}

func (r *IndexRange) setUpper(field string, v any, inclusive bool) *IndexRange {
	if r.upper != nil {
		r.setErr(fmt.Errorf("more than one upper bound on %q", field))
	}
	r.upper = &bound{field: field, value: Normalize(v), inclusive: inclusive}
	return r
}

func (r *IndexRange) setErr(err error) {
	if r.err == nil {
		r.err = err
	}
}

// Equalities returns the equality conditions of the range in order.
func (r *IndexRange) Equalities() (fields []string, values []any) {
	for _, eq := range r.eqs {
		fields = append(fields, eq.field)
		values = append(values, eq.value)
	}
	return fields, values
}

// check validates the range against the fields of the index.
func (r *IndexRange) check(fields []string) error {
	if r.err != nil {
		return r.err
	}
	for i, eq := range r.eqs {
		if i >= len(fields) || fields[i] != eq.field {
			return fmt.Errorf("Eq(%q) does not follow the index fields %v", eq.field, fields)
		}
	}
	next := len(r.eqs)
	for _, b := range []*bound{r.lower, r.upper} {
		if b != nil && (next >= len(fields) || fields[next] != b.field) {
			return fmt.Errorf("bound on %q does not follow the index fields %v", b.field, fields)
		}
	}
	return nil
}

func (r *IndexRange) match(d Document) bool {
	for _, eq := range r.eqs {
		if !Equal(d[eq.field], eq.value) {
			return false
		}
	}
	if b := r.lower; b != nil {
		if c := Compare(d[b.field], b.value); c < 0 || (c == 0 && !b.inclusive) {
			return false
		}
	}
	if b := r.upper; b != nil {
		if c := Compare(d[b.field], b.value); c > 0 || (c == 0 && !b.inclusive) {
			return false
		}
	}
	return true
}

// SearchFilter is a full text search over a search index.
//
//	messages.WithSearchIndex("search_text", func(f *store.SearchFilter) {
//	    f.Search("text", "hello world").Eq("channel", "general")
//	})
type SearchFilter struct {
	field string
	query string
	eqs   []fieldValue
}

// Search sets the searched field and the query text.
func (f *SearchFilter) Search(field, query string) *SearchFilter {
	f.field, f.query = field, query
	return f
}

// Eq adds an equality filter on a filter field of the search index.
func (f *SearchFilter) Eq(field string, v any) *SearchFilter {
	f.eqs = append(f.eqs, fieldValue{field: field, value: Normalize(v)})
	return f
}

// terms splits text into lower-cased search terms.
func terms(text string) []string {
	return strings.FieldsFunc(strings.ToLower(text), func(r rune) bool {
		return !unicode.IsLetter(r) && !unicode.IsDigit(r)
	})
}

// score returns the number of distinct query terms found in the document.
func (f *SearchFilter) score(d Document, queryTerms []string) int {
	for _, eq := range f.eqs {
		if !Equal(d[eq.field], eq.value) {
			return 0
		}
	}
	text, _ := d[f.field].(string)
	words := make(map[string]bool)
	for _, w := range terms(text) {
		words[w] = true
	}
	n := 0
	for _, t := range queryTerms {
		if words[t] {
			n++
		}
	}
	return n
}

// PaginationOptions configures a page read.
type PaginationOptions struct {
	// NumItems is the maximum number of documents in the page.
	NumItems int
	// Cursor is the ContinueCursor of the previous page, empty for the first page.
	Cursor string
}

// PageResult is a page of documents.
type PageResult struct {
	Page           []Document
	IsDone         bool
	ContinueCursor string
}

// ScanSpec describes a scan. Stores receive it to load candidate documents.
type ScanSpec struct {
	Table       string
	Index       string // empty for the creation time order
	Range       *IndexRange
	SearchIndex string
	Search      *SearchFilter
	Filters     []Predicate
	Order       Order
}

// Source provides the documents scanned by a Scan.
type Source interface {
	Indexes
	// Documents returns the candidate documents of spec.Table. It may use
	// the ScanSpec to narrow the candidates; the scan applies all of it to
	// the result.
	Documents(ctx context.Context, spec *ScanSpec) ([]Document, error)
}

// Presorted is implemented by sources that return the candidates of scans
// without an index in their own order, already directed by ScanSpec.Order.
// Such scans keep the source order instead of sorting by creation time.
type Presorted interface {
	Presorted() bool
}

// NewScan returns a scan over the documents of table provided by src.
func NewScan(src Source, table string) Scan {
	return &scan{src: src, spec: ScanSpec{Table: table}}
}

type scan struct {
	src  Source
	spec ScanSpec
}

func (s *scan) clone() *scan {
	c := *s
	c.spec.Filters = slices.Clone(s.spec.Filters)
	return &c
}

// WithIndex scans the named index, optionally narrowed by a range.
func (s *scan) WithIndex(name string, rng ...func(*IndexRange)) Scan {
	c := s.clone()
	c.spec.Index = name
	if len(rng) > 0 {
		r := &IndexRange{}
		for _, fn := range rng {
			fn(r)
		}
		c.spec.Range = r
	}
	return c
}

// WithSearchIndex scans the named search index. Results are ordered by relevance.
func (s *scan) WithSearchIndex(name string, filter func(*SearchFilter)) Scan {
	c := s.clone()
	f := &SearchFilter{}
	filter(f)
	c.spec.SearchIndex, c.spec.Search = name, f
	return c
}

// Filter adds a predicate to the scan.
func (s *scan) Filter(p Predicate) Scan {
	c := s.clone()
	c.spec.Filters = append(c.spec.Filters, p)
	return c
}

// Order sets the scan direction.
func (s *scan) Order(o Order) Scan {
	c := s.clone()
	c.spec.Order = o
	return c
}

// Collect returns all matching documents.
func (s *scan) Collect(ctx context.Context) ([]Document, error) {
	return s.run(ctx, 0, 0)
}

// Take returns at most n matching documents.
func (s *scan) Take(ctx context.Context, n int) ([]Document, error) {
	if n <= 0 {
		return []Document{}, nil
	}
	return s.run(ctx, 0, n)
}

// First returns the first matching document, or nil.
func (s *scan) First(ctx context.Context) (Document, error) {
	docs, err := s.run(ctx, 0, 1)
	if err != nil || len(docs) == 0 {
		return nil, err
	}
	return docs[0], nil
}

// Unique returns the only matching document, or nil. It fails with
// ErrNotUnique when more than one document matches.
func (s *scan) Unique(ctx context.Context) (Document, error) {
	docs, err := s.run(ctx, 0, 2)
	switch {
	case err != nil:
		return nil, err
	case len(docs) > 1:
		return nil, fmt.Errorf("%w: table %q", ErrNotUnique, s.spec.Table)
	case len(docs) == 0:
		return nil, nil
	}
	return docs[0], nil
}

// Paginate returns a page of matching documents.
func (s *scan) Paginate(ctx context.Context, opts PaginationOptions) (*PageResult, error) {
	offset := 0
	if opts.Cursor != "" {
		n, err := strconv.Atoi(opts.Cursor)
		if err != nil || n < 0 {
			return nil, fmt.Errorf("%w: %q", ErrInvalidCursor, opts.Cursor)
		}
		offset = n
	}
	if opts.NumItems <= 0 {
		return nil, fmt.Errorf("store: paginate: NumItems must be positive, got %d", opts.NumItems)
	}
	docs, err := s.run(ctx, offset, opts.NumItems+1)
	if err != nil {
		return nil, err
	}
	res := &PageResult{Page: docs, IsDone: len(docs) <= opts.NumItems}
	if !res.IsDone {
		res.Page = docs[:opts.NumItems]
	}
	res.ContinueCursor = strconv.Itoa(offset + len(res.Page))
	return res, nil
}

func (s *scan) run(ctx context.Context, offset, limit int) ([]Document, error) {
	docs, err := s.src.Documents(ctx, &s.spec)
	if err != nil {
		return nil, err
	}
	docs, err = s.spec.Apply(s.src, docs)
	if err != nil {
		return nil, err
	}
	if offset >= len(docs) {
		return []Document{}, nil
	}
	docs = docs[offset:]
	if limit > 0 && len(docs) > limit {
		docs = docs[:limit]
	}
	return docs, nil
}

// IndexFields returns the fields the scan is ordered by.
func (spec *ScanSpec) IndexFields(ix Indexes) ([]string, error) {
	if spec.Index == "" {
		return []string{CreationTimeField}, nil
	}
	fields, ok := ix.IndexFields(spec.Table, spec.Index)
	if !ok {
		return nil, &IndexError{Table: spec.Table, Index: spec.Index, Err: ErrUnknownIndex}
	}
	return fields, nil
}

// Apply filters and orders candidate documents by the spec.
func (spec *ScanSpec) Apply(ix Indexes, docs []Document) ([]Document, error) {
	if spec.Search != nil {
		return spec.search(ix, docs)
	}
	fields, err := spec.IndexFields(ix)
	if err != nil {
		return nil, err
	}
	if spec.Range != nil {
		if err := spec.Range.check(fields); err != nil {
			return nil, &IndexError{Table: spec.Table, Index: spec.Index, Err: ErrInvalidRange, msg: err.Error()}
		}
	}
	out := make([]Document, 0, len(docs))
	for _, d := range docs {
		if (spec.Range == nil || spec.Range.match(d)) && spec.match(d) {
			out = append(out, d)
		}
	}
	if p, ok := ix.(Presorted); ok && p.Presorted() && spec.Index == "" {
		return out, nil
	}
	slices.SortStableFunc(out, func(a, b Document) int {
		c := compareDocs(a, b, fields)
		if spec.Order == Desc {
			return -c
		}
		return c
	})
	return out, nil
}

func (spec *ScanSpec) match(d Document) bool {
	for _, p := range spec.Filters {
		if !p(d) {
			return false
		}
	}
	return true
}

func (spec *ScanSpec) search(ix Indexes, docs []Document) ([]Document, error) {
	field, ok := ix.SearchField(spec.Table, spec.SearchIndex)
	if !ok {
		return nil, &IndexError{Table: spec.Table, Index: spec.SearchIndex, Err: ErrUnknownIndex}
	}
	if spec.Search.field != field {
		return nil, &IndexError{Table: spec.Table, Index: spec.SearchIndex, Err: ErrInvalidRange, msg: fmt.Sprintf("search index covers %q, not %q", field, spec.Search.field)}
	}
	queryTerms := terms(spec.Search.query)
	type scored struct {
		doc   Document
		score int
	}
	var hits []scored
	for _, d := range docs {
		if n := spec.Search.score(d, queryTerms); n > 0 && spec.match(d) {
			hits = append(hits, scored{doc: d, score: n})
		}
	}
	slices.SortStableFunc(hits, func(a, b scored) int {
		if c := cmp.Compare(b.score, a.score); c != 0 {
			return c
		}
		return compareDocs(a.doc, b.doc, nil)
	})
	out := make([]Document, len(hits))
	for i, h := range hits {
		out[i] = h.doc
	}
	return out, nil
}

// compareDocs orders documents by the given fields, then by creation time
// and id.
func compareDocs(a, b Document, fields []string) int {
	for _, f := range fields {
		if c := Compare(a[f], b[f]); c != 0 {
			return c
		}
	}
	if c := Compare(a[CreationTimeField], b[CreationTimeField]); c != 0 {
		return c
	}
	return Compare(a[IDField], b[IDField])
}
