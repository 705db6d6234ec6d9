package validation

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"shardgate/internal/config"
	"shardgate/internal/types"
)

func TestValidateMetadata(t *testing.T) {
	tests := []struct {
		name         string
		mutate       func(md map[string]interface{})
		wantKinds    []types.ErrorKind
		wantFields   []string
		wantWarnings int
	}{
		{
			name:   "valid",
			mutate: func(map[string]interface{}) {},
		},
		{
			name:       "all required missing",
			mutate:     func(md map[string]interface{}) { clear(md) },
			wantKinds:  []types.ErrorKind{types.SchemaError, types.SchemaError, types.SchemaError, types.SchemaError, types.SchemaError, types.SchemaError, types.SchemaError},
			wantFields: types.RequiredFields,
		},
		{
			name:       "blank counts as missing",
			mutate:     func(md map[string]interface{}) { md["group_id"] = "  " },
			wantKinds:  []types.ErrorKind{types.SchemaError},
			wantFields: []string{types.FieldGroupID},
		},
		{
			name:       "unknown type",
			mutate:     func(md map[string]interface{}) { md["type"] = "random_note" },
			wantKinds:  []types.ErrorKind{types.SchemaError},
			wantFields: []string{types.FieldType},
		},
		{
			name:       "unknown importance",
			mutate:     func(md map[string]interface{}) { md["importance"] = "urgent" },
			wantKinds:  []types.ErrorKind{types.SchemaError},
			wantFields: []string{types.FieldImportance},
		},
		{
			name:       "unknown agent",
			mutate:     func(md map[string]interface{}) { md["agent"] = "intern" },
			wantKinds:  []types.ErrorKind{types.SchemaError},
			wantFields: []string{types.FieldAgent},
		},
		{
			name:       "short group id",
			mutate:     func(md map[string]interface{}) { md["group_id"] = "ab" },
			wantKinds:  []types.ErrorKind{types.RangeError},
			wantFields: []string{types.FieldGroupID},
		},
		{
			name:         "short unique id also misses prefix",
			mutate:       func(md map[string]interface{}) { md["unique_id"] = "e-1" },
			wantKinds:    []types.ErrorKind{types.RangeError},
			wantFields:   []string{types.FieldUniqueID},
			wantWarnings: 1,
		},
		{
			name:         "prefix mismatch is advisory",
			mutate:       func(md map[string]interface{}) { md["unique_id"] = "jwt-clock-skew" },
			wantWarnings: 1,
		},
		{
			name:       "created_at not ISO",
			mutate:     func(md map[string]interface{}) { md["created_at"] = "15/01/2026" },
			wantKinds:  []types.ErrorKind{types.FormatError},
			wantFields: []string{types.FieldCreatedAt},
		},
		{
			name:       "short component",
			mutate:     func(md map[string]interface{}) { md["component"] = "x" },
			wantKinds:  []types.ErrorKind{types.RangeError},
			wantFields: []string{types.FieldComponent},
		},
		{
			name: "errors accumulate",
			mutate: func(md map[string]interface{}) {
				md["type"] = "note"
				md["component"] = "x"
				delete(md, "agent")
			},
			wantKinds:  []types.ErrorKind{types.SchemaError, types.SchemaError, types.RangeError},
			wantFields: []string{types.FieldAgent, types.FieldType, types.FieldComponent},
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			md := validMetadata()
			tt.mutate(md)
			errs, warnings := ValidateMetadata(md)
			assert.Equal(t, tt.wantKinds, kindsOf(errs))
			assert.Equal(t, tt.wantFields, fieldsOf(errs))
			assert.Len(t, warnings, tt.wantWarnings)
			for _, w := range warnings {
				assert.Equal(t, types.Advisory, w.Kind)
			}
		})
	}
}

func TestCheckPayloadSafety(t *testing.T) {
	cfg := config.DefaultValidationConfig()

	require.NoError(t, CheckPayloadSafety(nil, cfg))
	require.NoError(t, CheckPayloadSafety(validMetadata(), cfg))

	md := validMetadata()
	md["tags"] = []interface{}{"auth", []interface{}{"nested"}}
	require.NoError(t, CheckPayloadSafety(md, cfg))

	cfg.MaxMetadataDepth = 2
	md["deeper"] = map[string]interface{}{"a": map[string]interface{}{"b": "c"}}
	require.ErrorIs(t, CheckPayloadSafety(md, cfg), ErrUnsafePayload)

	// A self-referencing map stops at the depth limit instead of recursing.
	cyclic := map[string]interface{}{}
	cyclic["self"] = cyclic
	require.ErrorIs(t, CheckPayloadSafety(cyclic, config.DefaultValidationConfig()), ErrUnsafePayload)
}
