package store

import (
	"encoding/json"
	"fmt"
	"os"

	"github.com/tidwall/gjson"
	"github.com/tidwall/sjson"
)

// The snapshot is written as human-readable JSON (spec.md §9
// open question, resolved in favor of human-readable JSON — see DESIGN.md).
// A version field is carried so future format migrations have somewhere to
// branch from (§6 "versioned envelopes are recommended").
const snapshotVersion = 1

func (s *Store) encodeSnapshot() ([]byte, error) {
	doc := []byte(`{}`)
	var err error

	set := func(path string, v any) {
		if err != nil {
			return
		}
		doc, err = sjson.SetBytes(doc, path, v)
	}

	set("version", snapshotVersion)
	set("documents", s.documents)
	set("pages", s.pages)
	set("page_nodes", s.pageNodes)
	set("entities", s.entities)
	set("relationships", s.relationships)
	set("claims", s.claims)
	set("messages", s.messages)
	set("learnings", s.learnings)

	toc := make(map[string]TocEntry, s.tocEntries.Len())
	for pair := s.tocEntries.Oldest(); pair != nil; pair = pair.Next() {
		toc[pair.Key] = pair.Value
	}
	set("toc_entries", toc)
	set("toc_order", s.tocOrder())

	if err != nil {
		return nil, fmt.Errorf("store: build snapshot: %w", err)
	}
	return doc, nil
}

func (s *Store) tocOrder() []string {
	order := make([]string, 0, s.tocEntries.Len())
	for pair := s.tocEntries.Oldest(); pair != nil; pair = pair.Next() {
		order = append(order, pair.Key)
	}
	return order
}

func (s *Store) load() error {
	data, err := os.ReadFile(s.snapshotPath())
	if err != nil {
		if os.IsNotExist(err) {
			return nil
		}
		return err
	}
	if !gjson.ValidBytes(data) {
		return fmt.Errorf("store: snapshot at %s is not valid JSON", s.snapshotPath())
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	if err := unmarshalField(data, "documents", &s.documents); err != nil {
		return err
	}
	if err := unmarshalField(data, "pages", &s.pages); err != nil {
		return err
	}
	if err := unmarshalField(data, "page_nodes", &s.pageNodes); err != nil {
		return err
	}
	if err := unmarshalField(data, "entities", &s.entities); err != nil {
		return err
	}
	if err := unmarshalField(data, "relationships", &s.relationships); err != nil {
		return err
	}
	if err := unmarshalField(data, "claims", &s.claims); err != nil {
		return err
	}
	if err := unmarshalField(data, "messages", &s.messages); err != nil {
		return err
	}
	if err := unmarshalField(data, "learnings", &s.learnings); err != nil {
		return err
	}

	var tocMap map[string]TocEntry
	if err := unmarshalField(data, "toc_entries", &tocMap); err != nil {
		return err
	}
	var order []string
	if err := unmarshalField(data, "toc_order", &order); err != nil {
		return err
	}
	for _, id := range order {
		if e, ok := tocMap[id]; ok {
			s.tocEntries.Set(id, e)
		}
	}

	return nil
}

func unmarshalField(data []byte, path string, out any) error {
	res := gjson.GetBytes(data, path)
	if !res.Exists() {
		return nil
	}
	return json.Unmarshal([]byte(res.Raw), out)
}
