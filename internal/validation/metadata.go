package validation

import (
	"encoding/json"
	"errors"
	"fmt"
	"regexp"
	"strings"

	"shardgate/internal/config"
	"shardgate/internal/types"
)

// ErrUnsafePayload is returned when metadata is too large, too deeply nested
// or cannot be serialized. It aborts validation before any other check.
var ErrUnsafePayload = errors.New("unsafe metadata payload")

var isoDatePrefix = regexp.MustCompile(`^\d{4}-\d{2}-\d{2}`)

const (
	minUniqueIDLength  = 5
	minGroupIDLength   = 3
	minComponentLength = 2
)

// CheckPayloadSafety bounds the cost of validating caller-supplied metadata.
// Depth is checked before serialization so cyclic or adversarial structures
// never reach the encoder.
func CheckPayloadSafety(metadata map[string]interface{}, cfg config.ValidationConfig) error {
	if metadata == nil {
		return nil
	}
	if depth := payloadDepth(metadata, 0, cfg.MaxMetadataDepth); depth > cfg.MaxMetadataDepth {
		return fmt.Errorf("%w: nested deeper than %d levels", ErrUnsafePayload, cfg.MaxMetadataDepth)
	}
	data, err := json.Marshal(metadata)
	if err != nil {
		return fmt.Errorf("%w: not serializable: %v", ErrUnsafePayload, err)
	}
	if len(data) > cfg.MaxMetadataBytes {
		return fmt.Errorf("%w: %d bytes exceeds maximum of %d", ErrUnsafePayload, len(data), cfg.MaxMetadataBytes)
	}
	return nil
}

// payloadDepth returns the nesting depth of v, stopping once limit is passed.
func payloadDepth(v interface{}, depth, limit int) int {
	if depth > limit {
		return depth
	}
	deepest := depth
	switch val := v.(type) {
	case map[string]interface{}:
		for _, child := range val {
			if d := payloadDepth(child, depth+1, limit); d > deepest {
				deepest = d
			}
			if deepest > limit {
				break
			}
		}
	case []interface{}:
		for _, child := range val {
			if d := payloadDepth(child, depth+1, limit); d > deepest {
				deepest = d
			}
			if deepest > limit {
				break
			}
		}
	case []string:
		if len(val) > 0 {
			deepest = depth + 1
		}
	}
	return deepest
}

// ValidateMetadata checks required fields, enums and formats. It never
// short-circuits: every problem is reported.
func ValidateMetadata(metadata map[string]interface{}) (errs, warnings []types.Finding) {
	present := func(key string) bool {
		return strings.TrimSpace(types.StringField(metadata, key)) != ""
	}

	for _, field := range types.RequiredFields {
		if !present(field) {
			errs = append(errs, types.NewFinding(types.SchemaError, CheckMetadata, field,
				"missing required field %q", field))
		}
	}

	memType, typeOK := types.ParseMemoryType(types.StringField(metadata, types.FieldType))
	if present(types.FieldType) && !typeOK {
		errs = append(errs, types.NewFinding(types.SchemaError, CheckMetadata, types.FieldType,
			"invalid type %q; must be one of %s", types.StringField(metadata, types.FieldType), joinEnum(types.AllMemoryTypes)))
	}

	if present(types.FieldImportance) {
		if _, ok := types.ParseImportance(types.StringField(metadata, types.FieldImportance)); !ok {
			errs = append(errs, types.NewFinding(types.SchemaError, CheckMetadata, types.FieldImportance,
				"invalid importance %q; must be one of %s", types.StringField(metadata, types.FieldImportance), joinEnum(types.AllImportance)))
		}
	}

	if present(types.FieldAgent) {
		if _, ok := types.ParseAgent(types.StringField(metadata, types.FieldAgent)); !ok {
			errs = append(errs, types.NewFinding(types.SchemaError, CheckMetadata, types.FieldAgent,
				"invalid agent %q; must be one of %s", types.StringField(metadata, types.FieldAgent), joinEnum(types.AllAgents)))
		}
	}

	if groupID := strings.TrimSpace(types.StringField(metadata, types.FieldGroupID)); groupID != "" && len(groupID) < minGroupIDLength {
		errs = append(errs, types.NewFinding(types.RangeError, CheckMetadata, types.FieldGroupID,
			"group_id %q too short (min %d characters)", groupID, minGroupIDLength))
	}

	if uniqueID := strings.TrimSpace(types.StringField(metadata, types.FieldUniqueID)); uniqueID != "" {
		if len(uniqueID) < minUniqueIDLength {
			errs = append(errs, types.NewFinding(types.RangeError, CheckMetadata, types.FieldUniqueID,
				"unique_id %q too short (min %d characters)", uniqueID, minUniqueIDLength))
		}
		if typeOK {
			if prefixes := memType.ExpectedPrefixes(); len(prefixes) > 0 && !hasAnyPrefix(uniqueID, prefixes) {
				warnings = append(warnings, types.NewFinding(types.Advisory, CheckMetadata, types.FieldUniqueID,
					"unique_id %q does not follow the naming convention for %s; expected prefix %s",
					uniqueID, memType, strings.Join(prefixes, " or ")))
			}
		}
	}

	if createdAt := strings.TrimSpace(types.StringField(metadata, types.FieldCreatedAt)); createdAt != "" && !isoDatePrefix.MatchString(createdAt) {
		errs = append(errs, types.NewFinding(types.FormatError, CheckMetadata, types.FieldCreatedAt,
			"created_at %q must be ISO 8601 (YYYY-MM-DD)", createdAt))
	}

	if component := strings.TrimSpace(types.StringField(metadata, types.FieldComponent)); component != "" && len(component) < minComponentLength {
		errs = append(errs, types.NewFinding(types.RangeError, CheckMetadata, types.FieldComponent,
			"component %q too short (min %d characters)", component, minComponentLength))
	}

	return errs, warnings
}

func hasAnyPrefix(s string, prefixes []string) bool {
	for _, p := range prefixes {
		if strings.HasPrefix(s, p) {
			return true
		}
	}
	return false
}

func joinEnum[T ~string](values []T) string {
	parts := make([]string, len(values))
	for i, v := range values {
		parts[i] = string(v)
	}
	return strings.Join(parts, ", ")
}
