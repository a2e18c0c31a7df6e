package domain

import (
	"encoding/json"
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestParamsSatisfied(t *testing.T) {
	params := map[string]any{"arg1": map[string]any{}, "arg2": map[string]any{}}

	assert.True(t, ParamsSatisfied(params, Constraint{"arg1": 1, "arg2": map[string]any{}}))
	assert.False(t, ParamsSatisfied(params, Constraint{"arg1": 1}), "missing arg2")
	assert.False(t, ParamsSatisfied(params, Constraint{"arg1": 1, "arg2": 2, "arg3": 3}), "extra arg3")
	assert.False(t, ParamsSatisfied(params, nil))
	assert.True(t, ParamsSatisfied(map[string]any{}, Constraint{}))
}

func TestFulfills(t *testing.T) {
	tests := []struct {
		name      string
		required  Constraint
		fulfilled Constraint
		terminal  bool
		want      bool
	}{
		{
			name:      "empty required slot is a wildcard",
			required:  Constraint{"arg1": 1, "arg2": map[string]any{}},
			fulfilled: Constraint{"arg1": 1, "arg2": 3},
			want:      true,
		},
		{
			name:      "fixed value must match",
			required:  Constraint{"arg1": 1, "arg2": map[string]any{}},
			fulfilled: Constraint{"arg1": 2, "arg2": 3},
		},
		{
			name:      "key sets must match",
			required:  Constraint{"arg1": 1, "arg2": map[string]any{}},
			fulfilled: Constraint{"arg1": 1},
		},
		{
			name:      "null allowed below terminal",
			required:  Constraint{"arg1": 1, "arg2": map[string]any{}},
			fulfilled: Constraint{"arg1": 1, "arg2": nil},
			want:      true,
		},
		{
			name:      "null rejected at terminal",
			required:  Constraint{"arg1": 1, "arg2": map[string]any{}},
			fulfilled: Constraint{"arg1": 1, "arg2": nil},
			terminal:  true,
		},
		{
			name:      "number spelling does not matter",
			required:  Constraint{"arg1": json.Number("1")},
			fulfilled: Constraint{"arg1": 1.0},
			want:      true,
		},
		{
			name:      "zero is a concrete requirement",
			required:  Constraint{"arg1": 0},
			fulfilled: Constraint{"arg1": 5},
		},
		{
			name:      "false is a concrete requirement",
			required:  Constraint{"arg1": false},
			fulfilled: Constraint{"arg1": true},
		},
		{
			name:      "nested zero is a concrete requirement",
			required:  Constraint{"a": map[string]any{"x": json.Number("0")}},
			fulfilled: Constraint{"a": map[string]any{"x": 7}},
		},
		{
			name:      "integers beyond float precision are compared exactly",
			required:  Constraint{"seed": json.Number("9007199254740993")},
			fulfilled: Constraint{"seed": json.Number("9007199254740992")},
		},
		{
			name:      "mapping against scalar requirement",
			required:  Constraint{"arg1": 1},
			fulfilled: Constraint{"arg1": map[string]any{"x": 1}},
		},
		{
			name:      "nested wildcard",
			required:  Constraint{"a": map[string]any{"x": 1, "y": map[string]any{}}},
			fulfilled: Constraint{"a": map[string]any{"x": 1, "y": 5}},
			want:      true,
		},
		{
			name:      "nested fixed value differs",
			required:  Constraint{"a": map[string]any{"x": 1, "y": map[string]any{}}},
			fulfilled: Constraint{"a": map[string]any{"x": 2, "y": 5}},
		},
		{
			name:      "nested key sets differ",
			required:  Constraint{"a": map[string]any{"x": 1, "y": map[string]any{}}},
			fulfilled: Constraint{"a": map[string]any{"x": 1}},
		},
		{
			name:      "empty nested requirement accepts any shape",
			required:  Constraint{"a": map[string]any{}},
			fulfilled: Constraint{"a": map[string]any{"anything": "goes"}},
			want:      true,
		},
		{
			name:      "nested null rejected at terminal",
			required:  Constraint{"a": map[string]any{}},
			fulfilled: Constraint{"a": map[string]any{"x": nil}},
			terminal:  true,
		},
		{
			name:      "flattened child workflow",
			required:  Constraint{"dt:ownership:01": map[string]any{"arg1": 1, "arg2": 3}},
			fulfilled: Constraint{"dt:ownership:01": map[string]any{"arg1": 1, "arg2": 3}},
			terminal:  true,
			want:      true,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, Fulfills(tt.required, tt.fulfilled, tt.terminal))
		})
	}
}
