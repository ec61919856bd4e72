package config

import (
	"encoding/json"
	"fmt"
	"os"

	toml "github.com/pelletier/go-toml/v2"
	"gopkg.in/yaml.v3"
)

// Rewriter performs the atomic, whole-document config rewrite required
// by spec §9 when a key is permanently banned: the file is reparsed as
// a raw document, the key is removed from whichever of
// priority_keys/secondary_keys holds it, and the full document is
// re-serialized to a temp file and renamed over the original. It
// satisfies keyengine.ConfigRewriter.
//
// RemoveKey operates on the raw document (map[string]any), not the
// typed Config struct: a field the Config struct doesn't know about,
// or one Config would drop via omitempty on a zero value, survives the
// rewrite untouched, matching spec §9's "preserve unrelated config
// fields verbatim" literally rather than just for fields Config models.
type Rewriter struct {
	path   string
	format Format
}

// NewRewriter builds a Rewriter for the file Load last read from.
func NewRewriter(path string) (*Rewriter, error) {
	format, err := detectFormat(path)
	if err != nil {
		return nil, err
	}
	return &Rewriter{path: path, format: format}, nil
}

// RemoveKey implements keyengine.ConfigRewriter. It is a no-op if the
// key is not present in either pool, so a banned key can be removed
// twice without error.
func (rw *Rewriter) RemoveKey(key string) error {
	raw, err := os.ReadFile(rw.path)
	if err != nil {
		return fmt.Errorf("rewrite config: read %s: %w", rw.path, err)
	}

	doc, err := rw.unmarshalRaw(raw)
	if err != nil {
		return fmt.Errorf("rewrite config: parse %s: %w", rw.path, err)
	}

	removed := removeKeyFromField(doc, "priority_keys", key)
	removed = removeKeyFromField(doc, "secondary_keys", key) || removed
	if !removed {
		return nil
	}

	return rw.writeAtomic(doc)
}

// removeKeyFromField drops key from the string list stored at field in
// doc, if present. Returns whether the document was modified.
func removeKeyFromField(doc map[string]any, field, key string) bool {
	raw, ok := doc[field]
	if !ok {
		return false
	}
	list, ok := raw.([]any)
	if !ok {
		return false
	}

	kept := make([]any, 0, len(list))
	found := false
	for _, v := range list {
		s, ok := v.(string)
		if ok && s == key {
			found = true
			continue
		}
		kept = append(kept, v)
	}
	if !found {
		return false
	}
	doc[field] = kept
	return true
}

func (rw *Rewriter) unmarshalRaw(raw []byte) (map[string]any, error) {
	doc := make(map[string]any)
	var err error
	switch rw.format {
	case FormatJSON:
		err = json.Unmarshal(raw, &doc)
	case FormatYAML:
		err = yaml.Unmarshal(raw, &doc)
	case FormatTOML:
		err = toml.Unmarshal(raw, &doc)
	default:
		return nil, fmt.Errorf("unknown format %s", rw.format)
	}
	return doc, err
}

func (rw *Rewriter) writeAtomic(doc map[string]any) error {
	var encoded []byte
	var err error

	switch rw.format {
	case FormatJSON:
		encoded, err = json.MarshalIndent(doc, "", "  ")
	case FormatYAML:
		encoded, err = yaml.Marshal(doc)
	case FormatTOML:
		encoded, err = toml.Marshal(doc)
	default:
		return fmt.Errorf("rewrite config: unknown format %s", rw.format)
	}
	if err != nil {
		return fmt.Errorf("rewrite config: marshal: %w", err)
	}

	tmp := rw.path + ".tmp"
	if err := os.WriteFile(tmp, encoded, 0o600); err != nil {
		return fmt.Errorf("rewrite config: write temp file: %w", err)
	}
	if err := os.Rename(tmp, rw.path); err != nil {
		return fmt.Errorf("rewrite config: rename temp file: %w", err)
	}
	return nil
}
