package wordpress

import (
	"fmt"
	"strconv"
	"strings"
)

// phpArray is a decoded PHP array with its insertion order preserved
type phpArray struct {
	values map[string]interface{}
	keys   []string
}

// unserialize decodes a PHP serialize() payload as stored in WordPress options and meta.
// Arrays decode to *phpArray; scalars to nil, bool, int64, float64 or string.
func unserialize(raw string) (interface{}, error) {
	d := &phpDecoder{in: raw}
	v, err := d.value()
	if err != nil {
		return nil, err
	}
	return v, nil
}

type phpDecoder struct {
	in  string
	pos int
}

func (d *phpDecoder) fail(format string, args ...interface{}) error {
	return fmt.Errorf("php unserialize at offset %d: %s", d.pos, fmt.Sprintf(format, args...))
}

func (d *phpDecoder) expect(b byte) error {
	if d.pos >= len(d.in) || d.in[d.pos] != b {
		return d.fail("expected %q", b)
	}
	d.pos++
	return nil
}

// until returns the text up to the next delimiter and consumes the delimiter
func (d *phpDecoder) until(delim byte) (string, error) {
	end := strings.IndexByte(d.in[d.pos:], delim)
	if end < 0 {
		return "", d.fail("missing %q", delim)
	}
	s := d.in[d.pos : d.pos+end]
	d.pos += end + 1
	return s, nil
}

func (d *phpDecoder) value() (interface{}, error) {
	if d.pos >= len(d.in) {
		return nil, d.fail("unexpected end of input")
	}
	kind := d.in[d.pos]
	d.pos++

	if kind == 'N' {
		return nil, d.expect(';')
	}
	if err := d.expect(':'); err != nil {
		return nil, err
	}

	switch kind {
	case 'b':
		s, err := d.until(';')
		if err != nil {
			return nil, err
		}
		return s == "1", nil
	case 'i':
		s, err := d.until(';')
		if err != nil {
			return nil, err
		}
		n, err := strconv.ParseInt(s, 10, 64)
		if err != nil {
			return nil, d.fail("bad integer %q", s)
		}
		return n, nil
	case 'd':
		s, err := d.until(';')
		if err != nil {
			return nil, err
		}
		f, err := strconv.ParseFloat(s, 64)
		if err != nil {
			return nil, d.fail("bad float %q", s)
		}
		return f, nil
	case 's':
		s, err := d.str()
		if err != nil {
			return nil, err
		}
		return s, d.expect(';')
	case 'a':
		return d.array()
	case 'O':
		// objects are decoded as arrays of their properties
		if _, err := d.until(':'); err != nil {
			return nil, err
		}
		if _, err := d.until(':'); err != nil {
			return nil, err
		}
		return d.array()
	default:
		return nil, d.fail("unsupported type %q", kind)
	}
}

// str reads `<len>:"<bytes>"`
func (d *phpDecoder) str() (string, error) {
	lenText, err := d.until(':')
	if err != nil {
		return "", err
	}
	n, err := strconv.Atoi(lenText)
	if err != nil || n < 0 {
		return "", d.fail("bad string length %q", lenText)
	}
	if err := d.expect('"'); err != nil {
		return "", err
	}
	if d.pos+n > len(d.in) {
		return "", d.fail("string overruns input")
	}
	s := d.in[d.pos : d.pos+n]
	d.pos += n
	return s, d.expect('"')
}

func (d *phpDecoder) array() (*phpArray, error) {
	countText, err := d.until(':')
	if err != nil {
		return nil, err
	}
	count, err := strconv.Atoi(countText)
	if err != nil || count < 0 {
		return nil, d.fail("bad array length %q", countText)
	}
	if err := d.expect('{'); err != nil {
		return nil, err
	}

	arr := &phpArray{values: make(map[string]interface{}, count), keys: make([]string, 0, count)}
	for i := 0; i < count; i++ {
		k, err := d.value()
		if err != nil {
			return nil, err
		}
		key := scalarString(k)
		v, err := d.value()
		if err != nil {
			return nil, err
		}
		if _, seen := arr.values[key]; !seen {
			arr.keys = append(arr.keys, key)
		}
		arr.values[key] = v
	}
	return arr, d.expect('}')
}

// scalarString renders a decoded scalar the way PHP would cast it to string
func scalarString(v interface{}) string {
	switch t := v.(type) {
	case nil:
		return ""
	case bool:
		if t {
			return "1"
		}
		return ""
	case int64:
		return strconv.FormatInt(t, 10)
	case float64:
		return strconv.FormatFloat(t, 'f', -1, 64)
	case string:
		return t
	default:
		return ""
	}
}

// decodeSchemes turns a serialized list of attachable schemes into flat key/value maps.
// Malformed payloads yield no schemes.
func decodeSchemes(raw string) []map[string]string {
	if raw == "" {
		return nil
	}
	v, err := unserialize(raw)
	if err != nil {
		return nil
	}
	list, ok := v.(*phpArray)
	if !ok {
		return nil
	}

	schemes := make([]map[string]string, 0, len(list.keys))
	for _, key := range list.keys {
		entry, ok := list.values[key].(*phpArray)
		if !ok {
			continue
		}
		scheme := make(map[string]string, len(entry.keys))
		for _, field := range entry.keys {
			if _, nested := entry.values[field].(*phpArray); nested {
				continue
			}
			scheme[field] = scalarString(entry.values[field])
		}
		if len(scheme) > 0 {
			schemes = append(schemes, scheme)
		}
	}
	return schemes
}

// decodeStringList returns the string values of a serialized array such as active_plugins
func decodeStringList(raw string) []string {
	v, err := unserialize(raw)
	if err != nil {
		return nil
	}
	list, ok := v.(*phpArray)
	if !ok {
		return nil
	}
	out := make([]string, 0, len(list.keys))
	for _, key := range list.keys {
		if s, ok := list.values[key].(string); ok {
			out = append(out, s)
		}
	}
	return out
}
