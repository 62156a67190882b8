package storage

import (
	"chat-sync/errors"
	"fmt"

	"google.golang.org/protobuf/proto"
	"google.golang.org/protobuf/types/known/structpb"
)

type Op string

const (
	Eq    Op = "=="
	NotEq Op = "!="
	Lt    Op = "<"
	Lte   Op = "<="
	Gt    Op = ">"
	Gte   Op = ">="
)

// Filter is a predicate over a document. Build it with Where, And and Or.
type Filter interface {
	match(doc *structpb.Struct) bool
}

// Query selects documents of one collection.
// A nil Filter selects the whole collection.
type Query struct {
	Collection string
	Filter     Filter
}

type whereFilter struct {
	path  string
	op    Op
	value *structpb.Value
	err   error
}

type andFilter struct {
	filters []Filter
}

type orFilter struct {
	filters []Filter
}

// Where compares the field at a dotted path with value.
// A document missing the field never matches, whatever the operator.
func Where(path string, op Op, value any) Filter {
	v, err := structpb.NewValue(value)
	return whereFilter{path: path, op: op, value: v, err: err}
}

// And combines equality and range predicates. Only Where filters are accepted.
func And(filters ...Filter) Filter {
	return andFilter{filters: filters}
}

// Or is a disjunction of predicate groups: each member is a Where or an And of Wheres.
func Or(filters ...Filter) Filter {
	return orFilter{filters: filters}
}

func (w whereFilter) match(doc *structpb.Struct) bool {
	field, ok := getPath(doc, w.path)
	if !ok {
		return false
	}
	switch w.op {
	case Eq:
		return proto.Equal(field, w.value)
	case NotEq:
		return !proto.Equal(field, w.value)
	}
	c, ok := compare(field, w.value)
	if !ok {
		return false
	}
	switch w.op {
	case Lt:
		return c < 0
	case Lte:
		return c <= 0
	case Gt:
		return c > 0
	case Gte:
		return c >= 0
	}
	return false
}

func (a andFilter) match(doc *structpb.Struct) bool {
	for _, f := range a.filters {
		if !f.match(doc) {
			return false
		}
	}
	return true
}

func (o orFilter) match(doc *structpb.Struct) bool {
	for _, f := range o.filters {
		if f.match(doc) {
			return true
		}
	}
	return false
}

// compare orders two values of the same scalar kind.
// Strings compare by UTF-8 bytes, which is also code point order.
func compare(a, b *structpb.Value) (int, bool) {
	switch av := a.GetKind().(type) {
	case *structpb.Value_StringValue:
		bv, ok := b.GetKind().(*structpb.Value_StringValue)
		if !ok {
			return 0, false
		}
		switch {
		case av.StringValue < bv.StringValue:
			return -1, true
		case av.StringValue > bv.StringValue:
			return 1, true
		}
		return 0, true
	case *structpb.Value_NumberValue:
		bv, ok := b.GetKind().(*structpb.Value_NumberValue)
		if !ok {
			return 0, false
		}
		switch {
		case av.NumberValue < bv.NumberValue:
			return -1, true
		case av.NumberValue > bv.NumberValue:
			return 1, true
		}
		return 0, true
	}
	return 0, false
}

func (q Query) validate() error {
	if q.Collection == "" {
		return fmt.Errorf("%w: missing collection", errors.ErrUnsupportedQuery)
	}
	switch f := q.Filter.(type) {
	case nil:
		return nil
	case whereFilter:
		return f.validate()
	case andFilter:
		return f.validate()
	case orFilter:
		if len(f.filters) == 0 {
			return fmt.Errorf("%w: empty or", errors.ErrUnsupportedQuery)
		}
		for _, member := range f.filters {
			switch m := member.(type) {
			case whereFilter:
				if err := m.validate(); err != nil {
					return err
				}
			case andFilter:
				if err := m.validate(); err != nil {
					return err
				}
			default:
				return fmt.Errorf("%w: or members must be where or and(where...)", errors.ErrUnsupportedQuery)
			}
		}
		return nil
	}
	return fmt.Errorf("%w: unknown filter %T", errors.ErrUnsupportedQuery, q.Filter)
}

func (w whereFilter) validate() error {
	if w.err != nil {
		return fmt.Errorf("%w: %s: %v", errors.ErrUnsupportedQuery, w.path, w.err)
	}
	if w.path == "" {
		return fmt.Errorf("%w: empty field path", errors.ErrUnsupportedQuery)
	}
	switch w.op {
	case Eq, NotEq, Lt, Lte, Gt, Gte:
		return nil
	}
	return fmt.Errorf("%w: operator %q", errors.ErrUnsupportedQuery, w.op)
}

func (a andFilter) validate() error {
	if len(a.filters) == 0 {
		return fmt.Errorf("%w: empty and", errors.ErrUnsupportedQuery)
	}
	for _, member := range a.filters {
		w, ok := member.(whereFilter)
		if !ok {
			return fmt.Errorf("%w: and members must be where filters", errors.ErrUnsupportedQuery)
		}
		if err := w.validate(); err != nil {
			return err
		}
	}
	return nil
}
