// Package stats derives per-field statistics from a fetched document batch.
// Analysis is a pure transformation over the page that was actually fetched,
// never the full collection, so cost is bounded by the request's limit.
package stats

import (
	"fmt"
	"strconv"

	"go.mongodb.org/mongo-driver/bson"
	"go.mongodb.org/mongo-driver/bson/primitive"

	"github.com/rjnmav/mongoscope/internal/types"
)

// maxSamples bounds the number of sample values retained per field.
const maxSamples = 5

// Analyze builds field statistics for one batch. Nested objects are reported
// under dotted paths; arrays are a single field of kind "array" and their
// elements are not walked. A document missing a field contributes to that
// field's absence, so frequency counts exactly the documents containing the
// path and the per-field type counts partition those documents.
func Analyze(documents []map[string]interface{}) map[string]types.FieldStatistic {
	result := make(map[string]types.FieldStatistic)
	for _, doc := range documents {
		walk("", doc, result)
	}
	return result
}

func walk(prefix string, doc map[string]interface{}, result map[string]types.FieldStatistic) {
	for key, value := range doc {
		path := key
		if prefix != "" {
			path = prefix + "." + key
		}

		stat, ok := result[path]
		if !ok {
			stat = types.FieldStatistic{Path: path, Types: make(map[string]int)}
		}

		kind := kindOf(value)
		stat.Frequency++
		stat.Types[kind]++
		stat.Samples = appendSample(stat.Samples, kind, value)
		result[path] = stat

		if nested := asDocument(value); nested != nil {
			walk(path, nested, result)
		}
	}
}

// kindOf classifies a decoded BSON value. Unrecognized values degrade to
// "object" rather than failing the batch.
func kindOf(value interface{}) string {
	if value == nil {
		return "null"
	}
	switch value.(type) {
	case bool:
		return "bool"
	case int, int32, int64:
		return "int"
	case float32, float64:
		return "float"
	case string:
		return "string"
	case primitive.DateTime, primitive.Timestamp:
		return "date"
	case primitive.ObjectID:
		return "objectId"
	case primitive.Binary:
		return "binary"
	case bson.A, []interface{}:
		return "array"
	default:
		return "object"
	}
}

// asDocument returns the value as a document for nested traversal, or nil.
// The driver decodes nested documents as bson.M when the root target is
// bson.M, but bson.D shows up for values that went through interface{}.
func asDocument(value interface{}) map[string]interface{} {
	switch v := value.(type) {
	case bson.M:
		return v
	case map[string]interface{}:
		return v
	case bson.D:
		m := make(map[string]interface{}, len(v))
		for _, e := range v {
			m[e.Key] = e.Value
		}
		return m
	default:
		return nil
	}
}

// appendSample retains the first few distinct-looking scalar values. No
// ordering or ranking is implied.
func appendSample(samples []string, kind string, value interface{}) []string {
	if len(samples) >= maxSamples {
		return samples
	}

	var display string
	switch kind {
	case "bool", "int", "string":
		display = fmt.Sprintf("%v", value)
	case "float":
		display = strconv.FormatFloat(toFloat(value), 'g', -1, 64)
	case "objectId":
		if oid, ok := value.(primitive.ObjectID); ok {
			display = oid.Hex()
		}
	default:
		return samples
	}

	for _, s := range samples {
		if s == display {
			return samples
		}
	}
	return append(samples, display)
}

func toFloat(value interface{}) float64 {
	switch v := value.(type) {
	case float64:
		return v
	case float32:
		return float64(v)
	default:
		return 0
	}
}
