// Package payload encodes and decodes raw record values in JSON, YAML and
// CBOR. Decoded documents are normalized so every format yields the same
// shapes: map[string]interface{}, []interface{}, int64, float64, string,
// bool and nil.
package payload

import (
	"bytes"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"path/filepath"
	"reflect"
	"strings"

	"github.com/fxamacker/cbor/v2"
	"gopkg.in/yaml.v3"
)

// Format names a wire encoding
type Format string

const (
	JSON Format = "json"
	YAML Format = "yaml"
	CBOR Format = "cbor"
)

// ErrUnknownFormat is returned for unsupported format names
var ErrUnknownFormat = errors.New("unknown payload format")

// ErrTrailingData is returned when a JSON payload continues after its document
var ErrTrailingData = errors.New("unexpected data after payload")

var (
	encMode cbor.EncMode
	decMode cbor.DecMode
)

func init() {
	var err error

	// Core deterministic encoding sorts map keys, so equal documents
	// encode to equal bytes
	encMode, err = cbor.CoreDetEncOptions().EncMode()
	if err != nil {
		panic("payload: CBOR encoder initialization failed: " + err.Error())
	}

	decMode, err = cbor.DecOptions{
		DefaultMapType: reflect.TypeOf(map[string]interface{}(nil)),
		IntDec:         cbor.IntDecConvertSigned,
	}.DecMode()
	if err != nil {
		panic("payload: CBOR decoder initialization failed: " + err.Error())
	}
}

// Formats lists the supported formats
func Formats() []Format {
	return []Format{JSON, YAML, CBOR}
}

// ParseFormat resolves a format name; "yml" is accepted for YAML
func ParseFormat(name string) (Format, error) {
	switch strings.ToLower(strings.TrimSpace(name)) {
	case "json", "":
		return JSON, nil
	case "yaml", "yml":
		return YAML, nil
	case "cbor":
		return CBOR, nil
	}
	return "", fmt.Errorf("%w: %q", ErrUnknownFormat, name)
}

// FormatFromPath picks a format from a file extension
func FormatFromPath(path string) (Format, error) {
	ext := strings.TrimPrefix(filepath.Ext(path), ".")
	if ext == "" {
		return "", fmt.Errorf("%w: %s has no extension", ErrUnknownFormat, path)
	}
	return ParseFormat(ext)
}

// Marshal encodes v. JSON output is compact.
func Marshal(f Format, v interface{}) ([]byte, error) {
	switch f {
	case JSON:
		return json.Marshal(v)
	case YAML:
		return yaml.Marshal(v)
	case CBOR:
		return encMode.Marshal(v)
	}
	return nil, fmt.Errorf("%w: %q", ErrUnknownFormat, f)
}

// MarshalIndent is like Marshal but indents JSON for reading
func MarshalIndent(f Format, v interface{}) ([]byte, error) {
	if f == JSON {
		return json.MarshalIndent(v, "", "  ")
	}
	return Marshal(f, v)
}

// Unmarshal decodes a document into normalized raw values
func Unmarshal(f Format, data []byte) (interface{}, error) {
	var raw interface{}
	switch f {
	case JSON:
		return DecodeJSON(data)
	case YAML:
		if err := yaml.Unmarshal(data, &raw); err != nil {
			return nil, fmt.Errorf("failed to decode yaml payload: %w", err)
		}
	case CBOR:
		if err := decMode.Unmarshal(data, &raw); err != nil {
			return nil, fmt.Errorf("failed to decode cbor payload: %w", err)
		}
	default:
		return nil, fmt.Errorf("%w: %q", ErrUnknownFormat, f)
	}
	return Normalize(raw), nil
}

// DecodeJSON decodes a single JSON document, keeping integers as int64.
// Anything after the document other than whitespace is an error.
func DecodeJSON(data []byte) (interface{}, error) {
	dec := json.NewDecoder(bytes.NewReader(data))
	dec.UseNumber()

	var raw interface{}
	if err := dec.Decode(&raw); err != nil {
		return nil, fmt.Errorf("failed to decode payload: %w", err)
	}
	if _, err := dec.Token(); err != io.EOF {
		return nil, ErrTrailingData
	}
	return Normalize(raw), nil
}

// Normalize rewrites decoded values in place into the common shapes
func Normalize(v interface{}) interface{} {
	switch val := v.(type) {
	case json.Number:
		if i, err := val.Int64(); err == nil {
			return i
		}
		if f, err := val.Float64(); err == nil {
			return f
		}
		return val.String()
	case int:
		return int64(val)
	case int32:
		return int64(val)
	case float32:
		return float64(val)
	case map[string]interface{}:
		for k, item := range val {
			val[k] = Normalize(item)
		}
		return val
	case map[interface{}]interface{}:
		out := make(map[string]interface{}, len(val))
		for k, item := range val {
			out[fmt.Sprint(k)] = Normalize(item)
		}
		return out
	case []interface{}:
		for i, item := range val {
			val[i] = Normalize(item)
		}
		return val
	default:
		return v
	}
}
