package keyengine

import (
	"encoding/json"
	"os"

	"github.com/rs/zerolog"
)

// unavailableStore persists potentialUnavailable (403 strike counts)
// and the permanently banned key set to unavailable.json, through the
// same atomic tmp-file+rename path as usageStore (spec §4.6).
type unavailableStore struct {
	path string
}

func newUnavailableStore(path string) *unavailableStore {
	return &unavailableStore{path: path}
}

type unavailableDocument struct {
	PotentialUnavailable map[string]int `json:"potential_unavailable"`
	Unavailable          []string       `json:"unavailable"`
}

type unavailableState struct {
	potentialUnavailable map[Key]int
	unavailable          map[Key]struct{}
}

func (s *unavailableStore) load(logger *zerolog.Logger) unavailableState {
	out := unavailableState{
		potentialUnavailable: make(map[Key]int),
		unavailable:          make(map[Key]struct{}),
	}

	raw, err := os.ReadFile(s.path)
	if err != nil {
		return out
	}

	var doc unavailableDocument
	if err := json.Unmarshal(raw, &doc); err != nil {
		if logger != nil {
			logger.Warn().Err(err).Str("path", s.path).Msg("unavailable file corrupt, starting empty")
		}
		return out
	}
	for k, v := range doc.PotentialUnavailable {
		out.potentialUnavailable[Key(k)] = v
	}
	for _, k := range doc.Unavailable {
		out.unavailable[Key(k)] = struct{}{}
	}
	return out
}

func (s *unavailableStore) save(st unavailableState) error {
	doc := unavailableDocument{
		PotentialUnavailable: make(map[string]int, len(st.potentialUnavailable)),
	}
	for k, v := range st.potentialUnavailable {
		doc.PotentialUnavailable[string(k)] = v
	}
	for k := range st.unavailable {
		doc.Unavailable = append(doc.Unavailable, string(k))
	}
	return atomicWriteJSON(s.path, doc)
}
