package scaffold

import (
	"testing"

	"github.com/eringen/spacetraveling"
)

func TestSampleDocuments(t *testing.T) {
	docs, err := SampleDocuments()
	if err != nil {
		t.Fatalf("SampleDocuments failed: %v", err)
	}
	if len(docs) < 3 {
		t.Fatalf("got %d documents, want at least 3", len(docs))
	}
	drafts := 0
	seen := map[string]bool{}
	for _, d := range docs {
		if d.ID == "" || d.UID == "" || d.Type != spacetraveling.PostType {
			t.Errorf("incomplete document %+v", d)
		}
		if seen[d.UID] {
			t.Errorf("duplicate uid %q", d.UID)
		}
		seen[d.UID] = true
		if d.FirstPublicationDate == nil {
			drafts++
			continue
		}
		if _, err := spacetraveling.ParseTimestamp(*d.FirstPublicationDate); err != nil {
			t.Errorf("%s: %v", d.UID, err)
		}
	}
	if drafts == 0 {
		t.Error("samples should include a draft")
	}
}

func TestParseDocuments(t *testing.T) {
	docs, err := ParseDocuments([]byte(`[{"id":"x1","data":{"title":"Viagem ao espaço"}}]`))
	if err != nil {
		t.Fatalf("ParseDocuments failed: %v", err)
	}
	if docs[0].UID != "viagem-ao-espaco" || docs[0].Type != spacetraveling.PostType {
		t.Errorf("document = %+v", docs[0])
	}

	if _, err := ParseDocuments([]byte(`[{"data":{"title":"sem id"}}]`)); err == nil {
		t.Error("document without id should fail")
	}
	if _, err := ParseDocuments([]byte(`{`)); err == nil {
		t.Error("malformed json should fail")
	}
}
