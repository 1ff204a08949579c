// Package country maps free-form country names and alternative codes to
// ISO 3166-1 alpha-2.
package country

import (
	"encoding/json"
	"os"
	"sync"

	"github.com/rotisserie/eris"
	"go.uber.org/zap"

	"github.com/tripforge/geopipeline/internal/textmatch"
)

// searchThreshold is the minimum trigram similarity for a country name match.
const searchThreshold = 0.3

// Entry is one country record of the reference dataset.
type Entry struct {
	Name          string `json:"name"`
	Alpha2        string `json:"iso_3166_2"`
	Alpha3        string `json:"iso_3166_3"`
	DestinationID uint64 `json:"destination_id,omitempty"`
}

// Mapper resolves country names, alpha-3 codes and destination ids to alpha-2
// codes. Name lookups are fuzzy and memoised.
type Mapper struct {
	valid    map[string]bool
	byName   map[string]string
	byAlpha3 map[string]string
	byID     map[uint64]string

	index *textmatch.NGramIndex

	mu    sync.Mutex
	cache map[string]string
}

// NewMapper builds a mapper over the reference entries.
func NewMapper(entries []Entry) *Mapper {
	m := &Mapper{
		valid:    make(map[string]bool, len(entries)),
		byName:   make(map[string]string, len(entries)),
		byAlpha3: make(map[string]string, len(entries)),
		byID:     make(map[uint64]string, len(entries)),
		index:    textmatch.NewNGramIndex(),
		cache:    make(map[string]string),
	}
	for _, e := range entries {
		m.valid[e.Alpha2] = true
		folded := textmatch.Fold(e.Name)
		m.byName[folded] = e.Alpha2
		m.index.Add(folded, e.Name)
		if e.Alpha3 != "" {
			m.byAlpha3[e.Alpha3] = e.Alpha2
		}
		if e.DestinationID != 0 {
			m.byID[e.DestinationID] = e.Alpha2
		}
	}
	return m
}

// Load reads country_codes.json under dir and builds the mapper.
func Load(dir string) (*Mapper, error) {
	path := dir + "/country_codes.json"
	raw, err := os.ReadFile(path)
	if err != nil {
		return nil, eris.Wrapf(err, "reading country codes %s", path)
	}
	var entries []Entry
	if err := json.Unmarshal(raw, &entries); err != nil {
		return nil, eris.Wrapf(err, "decoding country codes %s", path)
	}
	return NewMapper(entries), nil
}

// Valid reports whether code is a known alpha-2 country code.
func (m *Mapper) Valid(code string) bool {
	return m.valid[code]
}

// MapName resolves a free-form country name to its alpha-2 code via trigram
// similarity. The second return is false when nothing resembles the name.
func (m *Mapper) MapName(name string) (string, bool) {
	m.mu.Lock()
	defer m.mu.Unlock()

	key, cached := m.cache[name]
	if !cached {
		match, ok := m.index.Best(name, searchThreshold)
		if !ok {
			return "", false
		}
		key = match.Key
		m.cache[name] = key
		zap.L().Info("country name resolved",
			zap.String("name", name),
			zap.String("matched", key),
		)
	}

	code, ok := m.byName[key]
	return code, ok
}

// MapAlpha3 resolves an alpha-3 code to its alpha-2 form.
func (m *Mapper) MapAlpha3(alpha3 string) (string, bool) {
	code, ok := m.byAlpha3[alpha3]
	return code, ok
}

// MapDestinationID resolves a country destination id to its alpha-2 code.
func (m *Mapper) MapDestinationID(id uint64) (string, bool) {
	code, ok := m.byID[id]
	return code, ok
}
