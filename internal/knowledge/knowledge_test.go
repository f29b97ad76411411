package knowledge

import (
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const blob = `Acme Corp
Founded in 2015.
Services
Web development
Mobile apps
Pricing
Projects start at 5000 USD.
Contact
hello@acme.test`

func TestLookupWindows(t *testing.T) {
	b := New(blob, 1, 0)
	got := b.Lookup("What is your pricing?")
	assert.Equal(t, "Mobile apps\nPricing\nProjects start at 5000 USD.", got)
}

func TestLookupMergesOverlaps(t *testing.T) {
	b := New(blob, 1, 0)
	got := b.Lookup("mobile pricing")
	assert.Equal(t, "Web development\nMobile apps\nPricing\nProjects start at 5000 USD.", got)
}

func TestLookupNoHitReturnsBlob(t *testing.T) {
	b := New(blob, 2, 0)
	assert.Equal(t, blob, b.Lookup("weather today"))
	assert.Equal(t, blob, b.Lookup("is it"), "stopwords and short words are ignored")
}

func TestLookupCapped(t *testing.T) {
	b := New(strings.Repeat("line of text\n", 100), 2, 50)
	assert.LessOrEqual(t, len([]rune(b.Lookup("nothing"))), 50)
}

func TestLoad(t *testing.T) {
	empty, err := Load(filepath.Join(t.TempDir(), "missing.txt"), 2, 0)
	require.NoError(t, err)
	assert.True(t, empty.Empty())
	assert.Equal(t, "", empty.Lookup("pricing"))

	path := filepath.Join(t.TempDir(), "k.txt")
	require.NoError(t, os.WriteFile(path, []byte("Alpha\r\nBeta\r\n"), 0o644))
	b, err := Load(path, 0, 0)
	require.NoError(t, err)
	assert.Equal(t, "Beta", b.Lookup("beta"))
}
