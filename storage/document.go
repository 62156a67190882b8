package storage

import (
	"chat-sync/errors"
	"fmt"
	"strings"

	"github.com/google/uuid"
	"google.golang.org/protobuf/proto"
	"google.golang.org/protobuf/types/known/structpb"
)

// Ref points to a document, persisted or not.
type Ref struct {
	Collection string
	ID         string
}

func Doc(collection, id string) Ref {
	return Ref{Collection: collection, ID: id}
}

// NewDoc allocates a fresh document ID. Nothing is persisted.
func NewDoc(collection string) Ref {
	return Ref{Collection: collection, ID: uuid.NewString()}
}

func (r Ref) String() string {
	return r.Collection + "/" + r.ID
}

// key is formatted as "doc:{collection}:{id}" so a prefix scan on
// "doc:{collection}:" returns a whole collection ordered by document ID.
func (r Ref) key() []byte {
	return []byte(fmt.Sprintf("doc:%s:%s", r.Collection, r.ID))
}

func collectionPrefix(collection string) []byte {
	return []byte(fmt.Sprintf("doc:%s:", collection))
}

func uniqueKey(collection, key string) []byte {
	return []byte(fmt.Sprintf("uniq:%s:%s", collection, key))
}

// Document is a stored value: field-named, dynamically typed, nested maps and arrays.
type Document struct {
	Ref  Ref
	Data *structpb.Struct
}

// Fields returns the document content as plain Go values.
func (d Document) Fields() Fields {
	if d.Data == nil {
		return Fields{}
	}
	return d.Data.AsMap()
}

// Fields is the decoded form of a document or of a nested map.
// Numbers come back as float64, arrays as []any.
type Fields map[string]any

func (f Fields) String(key string) string {
	s, _ := f[key].(string)
	return s
}

func (f Fields) Int64(key string) int64 {
	n, _ := f[key].(float64)
	return int64(n)
}

func (f Fields) Map(key string) Fields {
	m, _ := f[key].(map[string]any)
	return m
}

// List returns the nested maps of an array field, skipping scalar elements.
func (f Fields) List(key string) []Fields {
	raw, _ := f[key].([]any)
	res := make([]Fields, 0, len(raw))
	for _, item := range raw {
		if m, ok := item.(map[string]any); ok {
			res = append(res, m)
		}
	}
	return res
}

// FieldUpdate sets Path to Value. Value may be a plain Go value or a
// transform built with ArrayUnion or Maximum.
type FieldUpdate struct {
	Path  string
	Value any
}

type arrayUnion struct {
	values []any
}

// ArrayUnion adds each value to the array unless an equal element is already there.
func ArrayUnion(values ...any) any {
	return arrayUnion{values: values}
}

type maximum struct {
	value float64
}

// Maximum keeps the larger of the stored number and value.
func Maximum(value float64) any {
	return maximum{value: value}
}

func applyUpdate(doc *structpb.Struct, update FieldUpdate) error {
	switch v := update.Value.(type) {
	case arrayUnion:
		var list []*structpb.Value
		if current, ok := getPath(doc, update.Path); ok {
			list = current.GetListValue().GetValues()
		}
		for _, raw := range v.values {
			value, err := structpb.NewValue(raw)
			if err != nil {
				return fmt.Errorf("%s: %w", update.Path, err)
			}
			if !containsEqual(list, value) {
				list = append(list, value)
			}
		}
		return setPath(doc, update.Path, structpb.NewListValue(&structpb.ListValue{Values: list}))
	case maximum:
		if current, ok := getPath(doc, update.Path); ok {
			if _, isNumber := current.GetKind().(*structpb.Value_NumberValue); isNumber && current.GetNumberValue() >= v.value {
				return nil
			}
		}
		return setPath(doc, update.Path, structpb.NewNumberValue(v.value))
	default:
		value, err := structpb.NewValue(update.Value)
		if err != nil {
			return fmt.Errorf("%s: %w", update.Path, err)
		}
		return setPath(doc, update.Path, value)
	}
}

func containsEqual(list []*structpb.Value, value *structpb.Value) bool {
	for _, item := range list {
		if proto.Equal(item, value) {
			return true
		}
	}
	return false
}

// getPath resolves a dotted path such as "u1.id".
func getPath(doc *structpb.Struct, path string) (*structpb.Value, bool) {
	parts := strings.Split(path, ".")
	current := doc
	for i, part := range parts {
		value, ok := current.GetFields()[part]
		if !ok {
			return nil, false
		}
		if i == len(parts)-1 {
			return value, true
		}
		current = value.GetStructValue()
		if current == nil {
			return nil, false
		}
	}
	return nil, false
}

// setPath writes value at a dotted path, creating intermediate maps.
func setPath(doc *structpb.Struct, path string, value *structpb.Value) error {
	if path == "" {
		return fmt.Errorf("%w: empty field path", errors.ErrInvalidDocument)
	}
	parts := strings.Split(path, ".")
	current := doc
	for _, part := range parts[:len(parts)-1] {
		if current.Fields == nil {
			current.Fields = make(map[string]*structpb.Value)
		}
		next := current.Fields[part].GetStructValue()
		if next == nil {
			next = &structpb.Struct{Fields: make(map[string]*structpb.Value)}
			current.Fields[part] = structpb.NewStructValue(next)
		}
		current = next
	}
	if current.Fields == nil {
		current.Fields = make(map[string]*structpb.Value)
	}
	current.Fields[parts[len(parts)-1]] = value
	return nil
}

// mergeStruct copies src into dst. Nested maps present on both sides are
// merged recursively, every other field of src replaces the one in dst.
func mergeStruct(dst, src *structpb.Struct) {
	if dst.Fields == nil {
		dst.Fields = make(map[string]*structpb.Value)
	}
	for key, value := range src.GetFields() {
		existing := dst.Fields[key].GetStructValue()
		incoming := value.GetStructValue()
		if existing != nil && incoming != nil {
			mergeStruct(existing, incoming)
			continue
		}
		dst.Fields[key] = proto.Clone(value).(*structpb.Value)
	}
}
