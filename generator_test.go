package spacetraveling

import (
	"context"
	"testing"
	"time"
)

func TestEnumeratePaths(t *testing.T) {
	s, _ := setupTestStore(t)
	seedStore(t, s, threePosts()...)

	uids, err := NewGenerator(s, 0, 0).EnumeratePaths(context.Background())
	if err != nil {
		t.Fatalf("EnumeratePaths failed: %v", err)
	}
	if !equalStrings(uids, []string{"terceiro", "segundo"}) {
		t.Errorf("uids = %v, want the two newest posts", uids)
	}

	uids, err = NewGenerator(s, 0, 10).EnumeratePaths(context.Background())
	if err != nil {
		t.Fatalf("EnumeratePaths failed: %v", err)
	}
	if len(uids) != 3 {
		t.Errorf("uids = %v, drafts must not be enumerated", uids)
	}
}

func TestBuildPageData(t *testing.T) {
	s, _ := setupTestStore(t)
	seedStore(t, s, threePosts()...)
	g := NewGenerator(s, 0, 0)
	ctx := context.Background()

	if g.Revalidate() != 12*time.Hour {
		t.Errorf("Revalidate = %v, want 12h", g.Revalidate())
	}

	res, err := g.BuildPageData(ctx, "segundo", "")
	if err != nil {
		t.Fatalf("BuildPageData failed: %v", err)
	}
	if !res.Found() || res.Redirect != "" {
		t.Fatalf("result = %+v, want a page", res)
	}
	if res.Revalidate != 12*time.Hour {
		t.Errorf("result Revalidate = %v", res.Revalidate)
	}
	page := res.Page
	if page.Post.Title != "Segundo" || page.Preview {
		t.Errorf("page = %+v", page)
	}
	if page.ReadingTime != 1 {
		t.Errorf("ReadingTime = %d, want 1", page.ReadingTime)
	}
	if linkUID(page.Adjacency.Previous) != "primeiro" || linkUID(page.Adjacency.Next) != "terceiro" {
		t.Errorf("adjacency = %+v", page.Adjacency)
	}
}

func TestBuildPageDataRedirects(t *testing.T) {
	s, _ := setupTestStore(t)
	seedStore(t, s, threePosts()...)
	if err := s.DeleteDocument(context.Background(), "p2"); err != nil {
		t.Fatalf("DeleteDocument failed: %v", err)
	}
	g := NewGenerator(s, time.Hour, 0)

	for _, uid := range []string{"nao-existe", "segundo", "rascunho"} {
		res, err := g.BuildPageData(context.Background(), uid, "")
		if err != nil {
			t.Fatalf("BuildPageData(%q) failed: %v", uid, err)
		}
		if res.Found() || res.Redirect != "/" {
			t.Errorf("BuildPageData(%q) = %+v, want redirect to /", uid, res)
		}
		if res.Revalidate != time.Hour {
			t.Errorf("redirect Revalidate = %v, want 1h", res.Revalidate)
		}
	}
}

func TestBuildPageDataPreviewDraft(t *testing.T) {
	s, tokens := setupTestStore(t)
	seedStore(t, s, threePosts()...)
	ref, err := tokens.Issue("d1")
	if err != nil {
		t.Fatalf("Issue failed: %v", err)
	}

	res, err := NewGenerator(s, 0, 0).BuildPageData(context.Background(), "rascunho", ref)
	if err != nil {
		t.Fatalf("BuildPageData failed: %v", err)
	}
	if !res.Found() {
		t.Fatalf("result = %+v, want the draft page", res)
	}
	if !res.Page.Preview {
		t.Error("draft page should be marked as preview")
	}
	if res.Page.Adjacency.Previous != nil || res.Page.Adjacency.Next != nil {
		t.Errorf("draft should have no neighbours: %+v", res.Page.Adjacency)
	}
}

func TestBuildPageDataExpiredRef(t *testing.T) {
	s, tokens := setupTestStore(t)
	seedStore(t, s, threePosts()...)
	ref, err := tokens.Issue("d1")
	if err != nil {
		t.Fatalf("Issue failed: %v", err)
	}
	issued := tokens.now()
	tokens.now = func() time.Time { return issued.Add(2 * time.Hour) }

	g := NewGenerator(s, 0, 0)
	res, err := g.BuildPageData(context.Background(), "segundo", ref)
	if err != nil {
		t.Fatalf("BuildPageData failed: %v", err)
	}
	if !res.Found() || res.Page.Preview {
		t.Errorf("published page with an expired ref = %+v, want found and not a preview", res.Page)
	}

	res, err = g.BuildPageData(context.Background(), "rascunho", ref)
	if err != nil {
		t.Fatalf("BuildPageData failed: %v", err)
	}
	if res.Redirect != "/" {
		t.Errorf("draft with an expired ref = %+v, want a redirect home", res)
	}
}
