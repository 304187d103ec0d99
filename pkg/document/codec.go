package document

import (
	"bytes"
	"encoding/json"
	"errors"
	"fmt"
	"math"
	"regexp"
	"strconv"
	"strings"
	"time"
)

// Wire spellings of the non-finite floats.
const (
	NaNLiteral         = "NaN"
	PosInfLiteral      = "INF"
	NegInfLiteral      = "-INF"
	geoJSONPointType   = "Point"
	offsetlessDateTime = "2006-01-02T15:04:05"
)

var dateTimePattern = regexp.MustCompile(
	`^\d{4}-\d{2}-\d{2}T\d{2}:\d{2}:\d{2}(\.\d+)?(Z|[+-]\d{2}:\d{2})?$`)

type geoJSONPoint struct {
	Type        string          `json:"type"`
	Coordinates []float64       `json:"coordinates"`
	CRS         json.RawMessage `json:"crs,omitempty"`
}

// MarshalJSON encodes the fields in insertion order.
func (d *Document) MarshalJSON() ([]byte, error) {
	var buf bytes.Buffer
	if err := d.encode(&buf); err != nil {
		return nil, err
	}
	return buf.Bytes(), nil
}

func (d *Document) encode(buf *bytes.Buffer) error {
	buf.WriteByte('{')
	first := true
	for name, v := range d.All() {
		if !first {
			buf.WriteByte(',')
		}
		first = false
		if err := EncodeField(buf, name, v); err != nil {
			return err
		}
	}
	buf.WriteByte('}')
	return nil
}

// EncodeField writes `"name":value` to buf.
func EncodeField(buf *bytes.Buffer, name string, v Value) error {
	key, err := json.Marshal(name)
	if err != nil {
		return fmt.Errorf("encoding field name %q: %w", name, err)
	}
	buf.Write(key)
	buf.WriteByte(':')
	if err := v.encode(buf); err != nil {
		return fmt.Errorf("encoding field %q: %w", name, err)
	}
	return nil
}

// UnmarshalJSON replaces the contents of d with the decoded object, keeping
// the order of the encoded fields.
func (d *Document) UnmarshalJSON(data []byte) error {
	out := New()
	err := DecodeObject(data, func(name string, raw json.RawMessage) error {
		v, err := ParseValue(raw)
		if err != nil {
			return fmt.Errorf("field %q: %w", name, err)
		}
		out.Set(name, v)
		return nil
	})
	if err != nil {
		return err
	}
	*d = *out
	return nil
}

// DecodeObject walks the members of a JSON object in order, handing each raw
// member value to fn.
func DecodeObject(data []byte, fn func(name string, raw json.RawMessage) error) error {
	dec := json.NewDecoder(bytes.NewReader(data))
	tok, err := dec.Token()
	if err != nil {
		return fmt.Errorf("reading document: %w", err)
	}
	if delim, ok := tok.(json.Delim); !ok || delim != '{' {
		return errors.New("document must be a JSON object")
	}
	for dec.More() {
		tok, err := dec.Token()
		if err != nil {
			return fmt.Errorf("reading field name: %w", err)
		}
		name, ok := tok.(string)
		if !ok {
			return fmt.Errorf("unexpected token %v", tok)
		}
		var raw json.RawMessage
		if err := dec.Decode(&raw); err != nil {
			return fmt.Errorf("reading field %q: %w", name, err)
		}
		if err := fn(name, raw); err != nil {
			return err
		}
	}
	if _, err := dec.Token(); err != nil {
		return fmt.Errorf("reading document end: %w", err)
	}
	return nil
}

func (v Value) MarshalJSON() ([]byte, error) {
	var buf bytes.Buffer
	if err := v.encode(&buf); err != nil {
		return nil, err
	}
	return buf.Bytes(), nil
}

func (v *Value) UnmarshalJSON(data []byte) error {
	parsed, err := ParseValue(data)
	if err != nil {
		return err
	}
	*v = parsed
	return nil
}

func (v Value) encode(buf *bytes.Buffer) error {
	switch v.kind {
	case KindNull:
		buf.WriteString("null")
	case KindBool:
		buf.WriteString(strconv.FormatBool(v.b))
	case KindInt:
		buf.WriteString(strconv.FormatInt(v.i, 10))
	case KindFloat:
		s := formatFloat(v.f)
		if math.IsNaN(v.f) || math.IsInf(v.f, 0) {
			buf.WriteString(strconv.Quote(s))
		} else {
			buf.WriteString(s)
		}
	case KindString:
		data, err := json.Marshal(v.s)
		if err != nil {
			return err
		}
		buf.Write(data)
	case KindTimestamp:
		if v.textual() {
			data, err := json.Marshal(v.s)
			if err != nil {
				return err
			}
			buf.Write(data)
			return nil
		}
		buf.WriteString(strconv.Quote(v.t.Format(time.RFC3339Nano)))
	case KindGeoPoint:
		data, err := json.Marshal(geoJSONPoint{
			Type:        geoJSONPointType,
			Coordinates: []float64{v.geo.Longitude, v.geo.Latitude},
		})
		if err != nil {
			return err
		}
		buf.Write(data)
	case KindArray:
		buf.WriteByte('[')
		for i, e := range v.arr {
			if i > 0 {
				buf.WriteByte(',')
			}
			if err := e.encode(buf); err != nil {
				return fmt.Errorf("element %d: %w", i, err)
			}
		}
		buf.WriteByte(']')
	default:
		return fmt.Errorf("unknown value kind %d", v.kind)
	}
	return nil
}

// ParseValue decodes one JSON value. Numbers without a fraction or exponent
// become Int, other numbers Float. ISO 8601 date-time strings become
// Timestamp that still read back as their original text through AsString.
// GeoJSON points become GeoPoint.
func ParseValue(raw []byte) (Value, error) {
	raw = bytes.TrimSpace(raw)
	if len(raw) == 0 {
		return Value{}, errors.New("empty value")
	}
	switch raw[0] {
	case 'n':
		if string(raw) != "null" {
			return Value{}, fmt.Errorf("invalid literal %s", raw)
		}
		return Null(), nil
	case 't', 'f':
		var b bool
		if err := json.Unmarshal(raw, &b); err != nil {
			return Value{}, err
		}
		return Bool(b), nil
	case '"':
		var s string
		if err := json.Unmarshal(raw, &s); err != nil {
			return Value{}, err
		}
		if t, ok := ParseTimestamp(s); ok {
			return textTimestamp(t, s), nil
		}
		return String(s), nil
	case '[':
		var elems []json.RawMessage
		if err := json.Unmarshal(raw, &elems); err != nil {
			return Value{}, err
		}
		arr := make([]Value, len(elems))
		for i, e := range elems {
			ev, err := ParseValue(e)
			if err != nil {
				return Value{}, fmt.Errorf("element %d: %w", i, err)
			}
			arr[i] = ev
		}
		return Value{kind: KindArray, arr: arr}, nil
	case '{':
		var p geoJSONPoint
		if err := json.Unmarshal(raw, &p); err != nil {
			return Value{}, err
		}
		if p.Type != geoJSONPointType || len(p.Coordinates) != 2 {
			return Value{}, errors.New("only GeoJSON points are supported as object values")
		}
		return Geo(p.Coordinates[1], p.Coordinates[0]), nil
	default:
		return parseNumber(string(raw))
	}
}

func parseNumber(s string) (Value, error) {
	if !strings.ContainsAny(s, ".eE") {
		i, err := strconv.ParseInt(s, 10, 64)
		if err == nil {
			return Int(i), nil
		}
		if !errors.Is(err, strconv.ErrRange) {
			return Value{}, fmt.Errorf("invalid number %s", s)
		}
	}
	f, err := strconv.ParseFloat(s, 64)
	if err != nil {
		return Value{}, fmt.Errorf("invalid number %s", s)
	}
	return Float(f), nil
}

// ParseTimestamp recognises ISO 8601 date-times. A date-time without an
// explicit offset is taken to be UTC.
func ParseTimestamp(s string) (time.Time, bool) {
	if !dateTimePattern.MatchString(s) {
		return time.Time{}, false
	}
	var (
		t   time.Time
		err error
	)
	if hasOffset(s) {
		t, err = time.Parse(time.RFC3339Nano, s)
	} else {
		t, err = time.ParseInLocation(offsetlessDateTime, s, time.UTC)
	}
	if err != nil {
		return time.Time{}, false
	}
	return t, true
}

// ParseFloatLiteral accepts the wire spellings of non-finite floats.
func ParseFloatLiteral(s string) (float64, bool) {
	switch s {
	case NaNLiteral:
		return math.NaN(), true
	case PosInfLiteral:
		return math.Inf(1), true
	case NegInfLiteral:
		return math.Inf(-1), true
	}
	return 0, false
}

func hasOffset(s string) bool {
	if strings.HasSuffix(s, "Z") {
		return true
	}
	// The date part contains '-' too, so only the time part is searched.
	timePart := s[strings.IndexByte(s, 'T'):]
	return strings.ContainsAny(timePart, "+-")
}

func formatFloat(f float64) string {
	switch {
	case math.IsNaN(f):
		return NaNLiteral
	case math.IsInf(f, 1):
		return PosInfLiteral
	case math.IsInf(f, -1):
		return NegInfLiteral
	}
	s := strconv.FormatFloat(f, 'g', -1, 64)
	if !strings.ContainsAny(s, ".eE") {
		s += ".0"
	}
	return s
}
