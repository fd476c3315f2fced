// Package pgvector encodes and decodes the textual literals used by the
// pgvector column type.
//
// Embeddings travel to Postgres as bracketed, comma-separated decimal
// literals ("[0.1,0.2,...]"). The codec is the single place that knows this
// format; the store and search packages only deal in float slices.
package pgvector

import (
	"fmt"
	"strconv"
	"strings"
)

// encodePrecision is the number of fractional digits written per component.
// Eight digits keeps literals compact while preserving distance ordering.
const encodePrecision = 8

// DecodeError reports a vector literal that could not be parsed.
// Callers must not coerce a failed decode into a zero vector.
type DecodeError struct {
	Literal string
	Err     error
}

func (e *DecodeError) Error() string {
	lit := e.Literal
	if len(lit) > 64 {
		lit = lit[:64] + "..."
	}
	if e.Err != nil {
		return fmt.Sprintf("pgvector: malformed literal %q: %v", lit, e.Err)
	}
	return fmt.Sprintf("pgvector: malformed literal %q", lit)
}

func (e *DecodeError) Unwrap() error {
	return e.Err
}

// Encode renders a vector as a pgvector input literal.
func Encode(vec []float32) string {
	var sb strings.Builder
	sb.Grow(len(vec) * (encodePrecision + 4))
	sb.WriteByte('[')
	for i, v := range vec {
		if i > 0 {
			sb.WriteByte(',')
		}
		sb.WriteString(strconv.FormatFloat(float64(v), 'f', encodePrecision, 32))
	}
	sb.WriteByte(']')
	return sb.String()
}

// Decode parses a pgvector literal into a float slice.
func Decode(literal string) ([]float32, error) {
	trimmed := strings.TrimSpace(literal)
	if len(trimmed) < 2 || trimmed[0] != '[' || trimmed[len(trimmed)-1] != ']' {
		return nil, &DecodeError{Literal: literal, Err: fmt.Errorf("missing brackets")}
	}

	body := trimmed[1 : len(trimmed)-1]
	if strings.TrimSpace(body) == "" {
		return []float32{}, nil
	}

	parts := strings.Split(body, ",")
	vec := make([]float32, len(parts))
	for i, part := range parts {
		f, err := strconv.ParseFloat(strings.TrimSpace(part), 32)
		if err != nil {
			return nil, &DecodeError{Literal: literal, Err: fmt.Errorf("component %d: %w", i, err)}
		}
		vec[i] = float32(f)
	}
	return vec, nil
}

// DecodeValue accepts the shapes a vector column can take when scanned from
// a row: an already-materialized float slice passes through, text and raw
// bytes are parsed as literals.
func DecodeValue(v any) ([]float32, error) {
	switch val := v.(type) {
	case nil:
		return nil, nil
	case []float32:
		return val, nil
	case []float64:
		vec := make([]float32, len(val))
		for i, f := range val {
			vec[i] = float32(f)
		}
		return vec, nil
	case string:
		return Decode(val)
	case []byte:
		return Decode(string(val))
	default:
		return nil, &DecodeError{Literal: fmt.Sprintf("%T", v), Err: fmt.Errorf("unsupported source type")}
	}
}
