package syncengine

import "testing"

func TestSuppressedPaths_AddThenTakeSucceedsOnce(t *testing.T) {
	s := newSuppressedPaths()
	s.add("/a.txt")

	if !s.take("/a.txt") {
		t.Fatal("expected first take to succeed")
	}
	if s.take("/a.txt") {
		t.Fatal("expected second take to fail, credit already consumed")
	}
}

func TestSuppressedPaths_TakeWithoutAddFails(t *testing.T) {
	s := newSuppressedPaths()
	if s.take("/never-added.txt") {
		t.Fatal("expected take on untouched path to fail")
	}
}

func TestSuppressedPaths_MultipleCreditsAreIndependent(t *testing.T) {
	s := newSuppressedPaths()
	s.add("/a.txt")
	s.add("/a.txt")

	if !s.take("/a.txt") {
		t.Fatal("expected first take to succeed")
	}
	if !s.take("/a.txt") {
		t.Fatal("expected second take to succeed, two credits were added")
	}
	if s.take("/a.txt") {
		t.Fatal("expected third take to fail")
	}
}

func TestSuppressedPaths_DistinctPathsDoNotInterfere(t *testing.T) {
	s := newSuppressedPaths()
	s.add("/a.txt")

	if s.take("/b.txt") {
		t.Fatal("expected take on a different path to fail")
	}
	if !s.take("/a.txt") {
		t.Fatal("expected take on the credited path to succeed")
	}
}
