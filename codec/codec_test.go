package codec_test

import (
	"testing"

	"github.com/deep-rent/ormconf/codec"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type doc struct {
	Name  string   `json:"name" yaml:"name"`
	Items []string `json:"items" yaml:"items"`
}

func TestInfer(t *testing.T) {
	tests := []struct {
		path string
		want codec.Codec
	}{
		{"ormconf.json", codec.JSON},
		{"dir/ormconf.JSON", codec.JSON},
		{"ormconf.yaml", codec.YAML},
		{"ormconf.yml", codec.YAML},
	}
	for _, tt := range tests {
		t.Run(tt.path, func(t *testing.T) {
			c, err := codec.Infer(tt.path)
			require.NoError(t, err)
			assert.Equal(t, tt.want, c)
		})
	}

	t.Run("unsupported", func(t *testing.T) {
		for _, path := range []string{"ormconf.toml", "ormconf"} {
			_, err := codec.Infer(path)
			assert.ErrorIs(t, err, codec.ErrUnsupportedFormat, path)
		}
	})
}

func TestRoundTrip(t *testing.T) {
	for name, c := range map[string]codec.Codec{"json": codec.JSON, "yaml": codec.YAML} {
		t.Run(name, func(t *testing.T) {
			in := doc{Name: "a", Items: []string{"x", "y"}}
			raw, err := c.Encode(in)
			require.NoError(t, err)

			var out doc
			require.NoError(t, c.Decode(raw, &out))
			assert.Equal(t, in, out)
		})
	}
}

func TestDecodeError(t *testing.T) {
	var out doc
	assert.Error(t, codec.JSON.Decode([]byte("{"), &out))
	assert.Error(t, codec.YAML.Decode([]byte("name: [unclosed"), &out))
}
