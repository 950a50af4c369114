package mapping

// Type is a field type.
type Type string

const (
	Keyword Type = "keyword"
	Text    Type = "text"
	Long    Type = "long"
	Integer Type = "integer"
	Short   Type = "short"
	Byte    Type = "byte"
	Double  Type = "double"
	Float   Type = "float"
	Date    Type = "date"
	IP      Type = "ip"
	Boolean Type = "boolean"
	Nested  Type = "nested"
	Object  Type = "object"
)

// Valid reports whether t is a known type.
func (t Type) Valid() bool {
	switch t {
	case Keyword, Text, Long, Integer, Short, Byte, Double, Float, Date, IP, Boolean, Nested, Object:
		return true
	default:
		return false
	}
}

// IsPoint reports whether values of t are indexed as fixed-width points and can
// therefore be represented as encoded ranges.
func (t Type) IsPoint() bool {
	switch t {
	case Long, Integer, Short, Byte, Double, Float, Date, IP:
		return true
	default:
		return false
	}
}

// IsNumeric reports whether t holds numbers.
func (t Type) IsNumeric() bool {
	switch t {
	case Long, Integer, Short, Byte, Double, Float:
		return true
	default:
		return false
	}
}

// IsTerm reports whether values of t are indexed as terms.
func (t Type) IsTerm() bool {
	return t == Keyword || t == Text || t == Boolean
}

func (t Type) isInteger() bool {
	switch t {
	case Long, Integer, Short, Byte, Date:
		return true
	default:
		return false
	}
}

// FieldNamesField is the keyword field under which documents index the names of the
// fields they populate. Exists queries are answered from it.
const FieldNamesField = "_field_names"
