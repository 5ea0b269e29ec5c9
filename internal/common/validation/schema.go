package validation

import (
	"fmt"
	"strings"

	"github.com/xeipuuv/gojsonschema"

	apperrors "manhwa-recommender/internal/common/errors"
)

// RecommendationResponseSchema describes the payload served by the
// recommendation and trending endpoints and returned by workers.
const RecommendationResponseSchema = `{
  "type": "object",
  "required": ["items", "metadata"],
  "properties": {
    "items": {
      "type": "array",
      "items": {
        "type": "object",
        "required": ["manhwa", "score", "reason"],
        "properties": {
          "manhwa": {
            "type": "object",
            "required": ["id", "title"],
            "properties": {
              "id": {"type": "string", "minLength": 1},
              "title": {"type": "string"}
            }
          },
          "score": {"type": "number", "minimum": 0, "maximum": 1},
          "reason": {
            "type": "string",
            "enum": ["genre_match", "similar_to_read", "popular_in_preferences", "trending", "art_style_match", "tag_match", "user_behavior"]
          }
        }
      }
    },
    "metadata": {
      "type": "object",
      "required": ["tier", "processingTime", "count", "total", "confidenceScore"],
      "properties": {
        "tier": {"type": "string", "enum": ["lightweight", "standard", "enhanced"]},
        "processingTime": {"type": "integer", "minimum": 0},
        "count": {"type": "integer", "minimum": 0},
        "total": {"type": "integer", "minimum": 0},
        "confidenceScore": {"type": "number", "minimum": 0, "maximum": 1}
      }
    }
  }
}`

// SchemaValidator checks documents against a compiled JSON schema.
type SchemaValidator struct {
	name   string
	schema *gojsonschema.Schema
}

func NewSchemaValidator(name, schema string) (*SchemaValidator, error) {
	compiled, err := gojsonschema.NewSchema(gojsonschema.NewStringLoader(schema))
	if err != nil {
		return nil, fmt.Errorf("compile %s schema: %w", name, err)
	}
	return &SchemaValidator{name: name, schema: compiled}, nil
}

// MustSchemaValidator panics on a malformed schema; for package-level
// schemas known at compile time.
func MustSchemaValidator(name, schema string) *SchemaValidator {
	v, err := NewSchemaValidator(name, schema)
	if err != nil {
		panic(err)
	}
	return v
}

// Validate accepts any Go value that marshals to JSON.
func (v *SchemaValidator) Validate(document interface{}) error {
	result, err := v.schema.Validate(gojsonschema.NewGoLoader(document))
	if err != nil {
		return apperrors.NewPayloadInvalidError(fmt.Sprintf("%s: %v", v.name, err))
	}
	if result.Valid() {
		return nil
	}

	msgs := make([]string, 0, len(result.Errors()))
	for _, desc := range result.Errors() {
		msgs = append(msgs, fmt.Sprintf("%s: %s", desc.Field(), desc.Description()))
	}
	return apperrors.NewPayloadInvalidError(fmt.Sprintf("%s: %s", v.name, strings.Join(msgs, "; ")))
}
