package memory

import "testing"

func newMemIndex(t *testing.T) *Index {
	t.Helper()
	idx, err := NewIndex("")
	if err != nil {
		t.Fatalf("NewIndex: %v", err)
	}
	t.Cleanup(func() { idx.Close() })
	return idx
}

func TestSimilarPostsFindsNearDuplicate(t *testing.T) {
	idx := newMemIndex(t)

	if err := idx.Remember("post", "My thoughts on robot chickens", "long rant about robot chickens"); err != nil {
		t.Fatalf("Remember: %v", err)
	}

	similar, err := idx.SimilarPosts("my thoughts on robot chickens")
	if err != nil {
		t.Fatalf("SimilarPosts: %v", err)
	}
	if len(similar) != 1 || similar[0] != "My thoughts on robot chickens" {
		t.Errorf("similar = %v, want the earlier title", similar)
	}
}

func TestSimilarPostsIgnoresDifferentTopics(t *testing.T) {
	idx := newMemIndex(t)
	idx.Remember("post", "My thoughts on robot chickens", "content")

	similar, err := idx.SimilarPosts("why lasagna is the best dinner")
	if err != nil {
		t.Fatalf("SimilarPosts: %v", err)
	}
	if len(similar) != 0 {
		t.Errorf("similar = %v, want none for an unrelated title", similar)
	}

	// Partial overlap is not a duplicate either: every term must match.
	similar, err = idx.SimilarPosts("my thoughts on lasagna recipes")
	if err != nil {
		t.Fatalf("SimilarPosts: %v", err)
	}
	if len(similar) != 0 {
		t.Errorf("similar = %v, want none for partial term overlap", similar)
	}
}

func TestSimilarPostsSkipsComments(t *testing.T) {
	idx := newMemIndex(t)
	idx.Remember("comment", "", "robot chickens are great")

	similar, err := idx.SimilarPosts("robot chickens are great")
	if err != nil {
		t.Fatalf("SimilarPosts: %v", err)
	}
	if len(similar) != 0 {
		t.Errorf("similar = %v, comments should not trip the post guard", similar)
	}
}

func TestRecentPostTitles(t *testing.T) {
	idx := newMemIndex(t)
	idx.Remember("post", "first topic entirely", "a")
	idx.Remember("post", "second topic entirely", "b")
	idx.Remember("comment", "", "a comment")

	recent := idx.RecentPostTitles(5)
	if len(recent) != 2 {
		t.Fatalf("recent = %v, want 2 post titles", recent)
	}
	if recent[1] != "second topic entirely" {
		t.Errorf("newest = %q", recent[1])
	}

	one := idx.RecentPostTitles(1)
	if len(one) != 1 || one[0] != "second topic entirely" {
		t.Errorf("limit 1 = %v", one)
	}
}
