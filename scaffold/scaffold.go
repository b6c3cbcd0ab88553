// Package scaffold provides the sample content seeded into a fresh store.
package scaffold

import (
	"embed"
	"encoding/json"
	"fmt"

	"github.com/eringen/spacetraveling"
)

//go:embed content/*.json
var content embed.FS

// SampleDocuments returns the bundled sample posts, drafts included.
func SampleDocuments() ([]spacetraveling.RawDocument, error) {
	b, err := content.ReadFile("content/posts.json")
	if err != nil {
		return nil, err
	}
	return ParseDocuments(b)
}

// ParseDocuments decodes a JSON array of documents. Missing uids are derived
// from the title.
func ParseDocuments(b []byte) ([]spacetraveling.RawDocument, error) {
	var docs []spacetraveling.RawDocument
	if err := json.Unmarshal(b, &docs); err != nil {
		return nil, fmt.Errorf("decode documents: %w", err)
	}
	for i := range docs {
		if docs[i].Type == "" {
			docs[i].Type = spacetraveling.PostType
		}
		if docs[i].UID == "" {
			docs[i].UID = spacetraveling.Slugify(docs[i].Data.Title)
		}
		if docs[i].ID == "" {
			return nil, fmt.Errorf("document %d: id is required", i)
		}
	}
	return docs, nil
}
