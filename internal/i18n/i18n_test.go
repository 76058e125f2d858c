package i18n

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestNormalize(t *testing.T) {
	assert.Equal(t, LangEN, Normalize("en"))
	assert.Equal(t, LangEN, Normalize("EN-us"))
	assert.Equal(t, LangZH, Normalize("zh-CN"))
	assert.Equal(t, "", Normalize("fr"))
	assert.Equal(t, "", Normalize(""))
}

func TestLabel(t *testing.T) {
	assert.Equal(t, "Location", Label("en", "location"))
	assert.Equal(t, "位置", Label("zh", "location"))

	// unknown language falls back to the default
	assert.Equal(t, Label(DefaultLang, "device"), Label("fr", "device"))

	// case-insensitive second pass
	assert.Equal(t, "Bot", Label("en", "Bot"))

	// untranslated keys come back unchanged
	assert.Equal(t, "Chrome", Label("en", "Chrome"))
	assert.Equal(t, "Beijing", Label("zh", "Beijing"))
}

func TestTableIsACopy(t *testing.T) {
	table := Table("en")
	assert.Equal(t, "Time", table["time"])

	table["time"] = "mutated"
	assert.Equal(t, "Time", Label("en", "time"))
}
