package storage

import (
	"testing"

	"github.com/stretchr/testify/require"
	"google.golang.org/protobuf/types/known/structpb"
)

func TestApplyUpdate_Creates_Missing_Paths(t *testing.T) {
	req := require.New(t)
	doc := &structpb.Struct{}

	req.NoError(applyUpdate(doc, FieldUpdate{Path: "messages", Value: ArrayUnion("a", "b", "a")}))
	req.NoError(applyUpdate(doc, FieldUpdate{Path: "meta.updatedAt", Value: Maximum(10)}))
	req.NoError(applyUpdate(doc, FieldUpdate{Path: "meta.title", Value: "hello"}))

	req.Equal(map[string]any{
		"messages": []any{"a", "b"},
		"meta":     map[string]any{"updatedAt": float64(10), "title": "hello"},
	}, doc.AsMap())
}

func TestApplyUpdate_Rejects_Unsupported_Values(t *testing.T) {
	req := require.New(t)
	doc := &structpb.Struct{}

	req.Error(applyUpdate(doc, FieldUpdate{Path: "bad", Value: struct{}{}}))
	req.Error(applyUpdate(doc, FieldUpdate{Path: "", Value: 1}))
}

func TestMergeStruct_Deep(t *testing.T) {
	req := require.New(t)
	dst, err := structpb.NewStruct(map[string]any{"a": map[string]any{"x": 1, "y": 2}, "b": "keep"})
	req.NoError(err)
	src, err := structpb.NewStruct(map[string]any{"a": map[string]any{"y": 3}, "c": []any{"new"}})
	req.NoError(err)

	mergeStruct(dst, src)

	req.Equal(map[string]any{
		"a": map[string]any{"x": float64(1), "y": float64(3)},
		"b": "keep",
		"c": []any{"new"},
	}, dst.AsMap())
}

func TestWhere_Missing_Field_Never_Matches(t *testing.T) {
	req := require.New(t)
	doc, err := structpb.NewStruct(map[string]any{"u1": map[string]any{"id": "a"}})
	req.NoError(err)

	for _, op := range []Op{Eq, NotEq, Lt, Lte, Gt, Gte} {
		req.False(Where("u2.id", op, "a").match(doc), op)
	}
	req.True(Where("u1.id", Eq, "a").match(doc))
	req.False(Where("u1.id", Gt, 3).match(doc), "mixed kinds do not compare")
}
