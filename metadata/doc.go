// Package metadata provides the typed values that flow through percolation:
// field values of candidate documents and literal operands of stored queries.
//
// # Value Types
//
// A Value is one of:
//
//   - Null: metadata.Null()
//   - Int: metadata.Int(2024)
//   - Float: metadata.Float(3.14)
//   - String: metadata.String("tech")
//   - Bool: metadata.Bool(true)
//   - Array: metadata.Array([]metadata.Value{...})
//
// Values decoded from JSON keep the distinction between integral and fractional
// numbers, so a long field never silently sees a rounded float.
//
// Example:
//
//	doc := metadata.Document{
//	    "category": {metadata.String("tech")},
//	    "year":     {metadata.Int(2024)},
//	    "tags":     {metadata.String("go"), metadata.String("search")},
//	}
//
// # Adapters
//
// FromAny converts decoded JSON (map[string]any, []any, json.Number) into Values,
// and Value.Any converts back for serialization.
package metadata
