package utils

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type heapParams struct {
	Format string `json:"format" validate:"omitempty,oneof=pprof full"`
	Label  string `json:"label,omitempty" validate:"max=8"`
}

func TestDecodeParameters(t *testing.T) {
	var p heapParams
	require.NoError(t, DecodeParameters(map[string]interface{}{"format": "full"}, &p))
	assert.Equal(t, "full", p.Format)

	var empty heapParams
	require.NoError(t, DecodeParameters(nil, &empty))
	assert.Equal(t, "", empty.Format)
}

func TestDecodeParametersRejectsInvalid(t *testing.T) {
	var p heapParams
	err := DecodeParameters(map[string]interface{}{"format": "hprof"}, &p)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "format: failed oneof")

	err = DecodeParameters(map[string]interface{}{"format": 12}, &p)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "failed to unmarshal parameters")
}

func TestValidateStructUsesYAMLNames(t *testing.T) {
	type cfg struct {
		URL string `yaml:"coordinator_url" validate:"required,url"`
	}
	err := ValidateStruct(cfg{URL: "not a url"})
	require.Error(t, err)
	assert.Contains(t, err.Error(), "coordinator_url: failed url")
}

func TestShortID(t *testing.T) {
	a := ShortID(8)
	b := ShortID(8)
	assert.Len(t, a, 8)
	assert.NotEqual(t, a, b)
	assert.Len(t, ShortID(0), 32)
}
