package pluralization_test

import (
	"testing"

	"github.com/stretchr/testify/assert"

	"github.com/deep-rent/ormconf/pluralization"
)

func TestEnglish(t *testing.T) {
	p := pluralization.NewEnglish([2]string{"octopus", "octopodes"})

	type test struct {
		singular string
		plural   string
	}

	tests := []test{
		{"Blog", "Blogs"},
		{"category", "categories"},
		{"person", "people"},
		{"octopus", "octopodes"},
	}

	for _, tc := range tests {
		t.Run(tc.singular, func(t *testing.T) {
			assert.Equal(t, tc.plural, p.Pluralize(tc.singular))
			assert.Equal(t, tc.singular, p.Singularize(tc.plural))
		})
	}

	t.Run("uncountable", func(t *testing.T) {
		p.AddWord("metadata", "")
		assert.Equal(t, "metadata", p.Pluralize("metadata"))
	})

	t.Run("blank", func(t *testing.T) {
		assert.Equal(t, "", p.Pluralize(""))
	})
}
