package country

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func testEntries() []Entry {
	return []Entry{
		{Name: "Germany", Alpha2: "DE", Alpha3: "DEU", DestinationID: 104},
		{Name: "United States", Alpha2: "US", Alpha3: "USA", DestinationID: 216},
		{Name: "Côte d'Ivoire", Alpha2: "CI", Alpha3: "CIV", DestinationID: 66},
	}
}

func TestValid(t *testing.T) {
	m := NewMapper(testEntries())
	assert.True(t, m.Valid("DE"))
	assert.False(t, m.Valid("XX"))
}

func TestMapNameExact(t *testing.T) {
	m := NewMapper(testEntries())
	code, ok := m.MapName("Germany")
	require.True(t, ok)
	assert.Equal(t, "DE", code)
}

func TestMapNameFuzzyAndAccents(t *testing.T) {
	m := NewMapper(testEntries())

	code, ok := m.MapName("germany")
	require.True(t, ok)
	assert.Equal(t, "DE", code)

	code, ok = m.MapName("Cote d'Ivoire")
	require.True(t, ok)
	assert.Equal(t, "CI", code)
}

func TestMapNameMiss(t *testing.T) {
	m := NewMapper(testEntries())
	_, ok := m.MapName("Zzzzz")
	assert.False(t, ok)
}

func TestMapNameCached(t *testing.T) {
	m := NewMapper(testEntries())

	_, ok := m.MapName("United States")
	require.True(t, ok)

	// second lookup hits the cache
	code, ok := m.MapName("United States")
	require.True(t, ok)
	assert.Equal(t, "US", code)
	assert.Len(t, m.cache, 1)
}

func TestMapAlpha3(t *testing.T) {
	m := NewMapper(testEntries())
	code, ok := m.MapAlpha3("DEU")
	require.True(t, ok)
	assert.Equal(t, "DE", code)

	_, ok = m.MapAlpha3("XYZ")
	assert.False(t, ok)
}

func TestMapDestinationID(t *testing.T) {
	m := NewMapper(testEntries())
	code, ok := m.MapDestinationID(216)
	require.True(t, ok)
	assert.Equal(t, "US", code)

	_, ok = m.MapDestinationID(9999)
	assert.False(t, ok)
}
