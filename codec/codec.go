// Package codec encodes and decodes configuration documents. The format is
// inferred from the file extension.
package codec

import (
	"errors"
	"fmt"
	"path/filepath"
	"strings"

	"github.com/goccy/go-json"
	"gopkg.in/yaml.v3"
)

// ErrUnsupportedFormat is returned by Infer for unknown file extensions.
var ErrUnsupportedFormat = errors.New("unsupported format")

type Decoder interface {
	Decode(data []byte, v any) error
}

type Encoder interface {
	Encode(v any) ([]byte, error)
}

type Codec interface {
	Decoder
	Encoder
}

// JSON encodes indented JSON documents.
var JSON Codec = jsonCodec{}

// YAML encodes YAML documents.
var YAML Codec = yamlCodec{}

type jsonCodec struct{}

func (jsonCodec) Decode(data []byte, v any) error {
	return json.Unmarshal(data, v)
}

func (jsonCodec) Encode(v any) ([]byte, error) {
	return json.MarshalIndent(v, "", "  ")
}

type yamlCodec struct{}

func (yamlCodec) Decode(data []byte, v any) error {
	return yaml.Unmarshal(data, v)
}

func (yamlCodec) Encode(v any) ([]byte, error) {
	return yaml.Marshal(v)
}

// Infer returns the codec matching the extension of path.
func Infer(path string) (Codec, error) {
	switch ext := strings.ToLower(filepath.Ext(path)); ext {
	case ".json":
		return JSON, nil
	case ".yaml", ".yml":
		return YAML, nil
	default:
		return nil, fmt.Errorf("%w: %q", ErrUnsupportedFormat, ext)
	}
}
