package canonical

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestCanonicalizeElidesAbsentValues(t *testing.T) {
	got := Canonicalize(map[string]any{
		"id":             "site-1",
		"filter":         "",
		"excludeSpider":  false,
		"pageviewOnly":   true,
		"locationFilter": nil,
		"statusCode":     404,
	})

	assert.Equal(t, map[string]string{
		"id":           "site-1",
		"pageviewOnly": "true",
		"statusCode":   "404",
	}, got)
}

func TestCanonicalizeCoercion(t *testing.T) {
	got := Canonicalize(map[string]any{
		"int":      42,
		"int64":    int64(7),
		"intFloat": float64(30),
		"float":    2.5,
		"bool":     true,
	})

	assert.Equal(t, "42", got["int"])
	assert.Equal(t, "7", got["int64"])
	assert.Equal(t, "30", got["intFloat"])
	assert.Equal(t, "2.5", got["float"])
	assert.Equal(t, "true", got["bool"])
}

func TestCanonicalizeIdempotent(t *testing.T) {
	first := Canonicalize(map[string]any{
		"id":         "site-1",
		"timeRange":  "7d",
		"statusCode": 500,
		"distinctIp": true,
	})

	rewrapped := make(map[string]any, len(first))
	for k, v := range first {
		rewrapped[k] = v
	}
	second := Canonicalize(rewrapped)

	assert.Equal(t, first, second)
}

func TestKeyIsOrderIndependent(t *testing.T) {
	a := Canonicalize(map[string]any{"id": "w", "format": "csv", "timeRange": "24h"})
	b := Canonicalize(map[string]any{"timeRange": "24h", "id": "w", "format": "csv"})

	assert.Equal(t, Key(a), Key(b))
	assert.Equal(t, "format=csv&id=w&timeRange=24h", Key(a))
}

func TestKeysSorted(t *testing.T) {
	keys := Keys(map[string]string{"b": "2", "a": "1", "c": "3"})
	assert.Equal(t, []string{"a", "b", "c"}, keys)
}
