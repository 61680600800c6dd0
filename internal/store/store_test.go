package store

import (
	"os/exec"
	"path/filepath"
	"testing"
)

func hasGit(t *testing.T) {
	t.Helper()
	if _, err := exec.LookPath("git"); err != nil {
		t.Skip("git not available")
	}
}

func TestGitStoreAddHeadHistory(t *testing.T) {
	hasGit(t)
	dir := t.TempDir()
	s, err := NewGitStore(dir, "tester")
	if err != nil {
		t.Fatalf("NewGitStore() error: %v", err)
	}

	if head, err := s.Head(); err != nil || head != "" {
		t.Fatalf("Head() on empty store = %q, %v; want empty, nil", head, err)
	}

	if err := s.Add("fid1.md", []byte("hello"), "add fid1"); err != nil {
		t.Fatalf("Add() error: %v", err)
	}

	head, err := s.Head()
	if err != nil {
		t.Fatalf("Head() error: %v", err)
	}
	if head == "" {
		t.Fatal("Head() = empty after commit")
	}

	hist, err := s.History("fid1.md")
	if err != nil {
		t.Fatalf("History() error: %v", err)
	}
	if len(hist) != 1 {
		t.Fatalf("History() len = %d, want 1", len(hist))
	}

	if err := s.Update("fid1.md", []byte("hello again"), "update fid1"); err != nil {
		t.Fatalf("Update() error: %v", err)
	}

	hist, err = s.History("fid1.md")
	if err != nil {
		t.Fatalf("History() error: %v", err)
	}
	if len(hist) != 2 {
		t.Fatalf("History() len = %d, want 2", len(hist))
	}
	if hist[0].Message != "add fid1" || hist[1].Message != "update fid1" {
		t.Fatalf("History() not oldest-first: %+v", hist)
	}

	data, err := s.Read("fid1.md")
	if err != nil {
		t.Fatalf("Read() error: %v", err)
	}
	if string(data) != "hello again" {
		t.Fatalf("Read() = %q, want %q", data, "hello again")
	}

	paths, err := s.List()
	if err != nil {
		t.Fatalf("List() error: %v", err)
	}
	if len(paths) != 1 || paths[0] != "fid1.md" {
		t.Fatalf("List() = %v, want [fid1.md]", paths)
	}
}

func TestGitStoreUpdateMissingFails(t *testing.T) {
	hasGit(t)
	dir := t.TempDir()
	s, err := NewGitStore(dir, "tester")
	if err != nil {
		t.Fatalf("NewGitStore() error: %v", err)
	}
	if err := s.Update("missing.md", []byte("x"), "update"); err != ErrNotFound {
		t.Fatalf("Update() error = %v, want ErrNotFound", err)
	}
}

func TestGitStorePurge(t *testing.T) {
	hasGit(t)
	dir := t.TempDir()
	s, err := NewGitStore(dir, "tester")
	if err != nil {
		t.Fatalf("NewGitStore() error: %v", err)
	}
	if err := s.Add("fid1.md", []byte("hello"), "add"); err != nil {
		t.Fatalf("Add() error: %v", err)
	}
	if err := s.Purge("fid1.md"); err != nil {
		t.Fatalf("Purge() error: %v", err)
	}
	if _, err := s.Read("fid1.md"); err != ErrNotFound {
		t.Fatalf("Read() after purge error = %v, want ErrNotFound", err)
	}
}

func TestNoAuditStore(t *testing.T) {
	dir := t.TempDir()
	s, err := NewNoAuditStore(dir)
	if err != nil {
		t.Fatalf("NewNoAuditStore() error: %v", err)
	}

	if head, err := s.Head(); err != nil || head != NoGitRevision {
		t.Fatalf("Head() = %q, %v; want %q, nil", head, err, NoGitRevision)
	}

	if err := s.Add("fid1.md", []byte("hello"), "add"); err != nil {
		t.Fatalf("Add() error: %v", err)
	}
	data, err := s.Read("fid1.md")
	if err != nil {
		t.Fatalf("Read() error: %v", err)
	}
	if string(data) != "hello" {
		t.Fatalf("Read() = %q, want hello", data)
	}

	hist, err := s.History("fid1.md")
	if err != nil || hist != nil {
		t.Fatalf("History() = %v, %v; want nil, nil", hist, err)
	}

	if err := s.Update("missing.md", []byte("x"), "update"); err != ErrNotFound {
		t.Fatalf("Update() error = %v, want ErrNotFound", err)
	}

	if err := s.Purge("fid1.md"); err != nil {
		t.Fatalf("Purge() error: %v", err)
	}
	if _, err := s.Read("fid1.md"); err != ErrNotFound {
		t.Fatalf("Read() after purge error = %v, want ErrNotFound", err)
	}
}

func TestNoAuditStoreList(t *testing.T) {
	dir := t.TempDir()
	s, err := NewNoAuditStore(dir)
	if err != nil {
		t.Fatalf("NewNoAuditStore() error: %v", err)
	}
	if err := s.Add("a.md", []byte("1"), "add"); err != nil {
		t.Fatalf("Add() error: %v", err)
	}
	if err := s.Add(filepath.Join("nested", "b.md"), []byte("2"), "add"); err != nil {
		t.Fatalf("Add() error: %v", err)
	}
	paths, err := s.List()
	if err != nil {
		t.Fatalf("List() error: %v", err)
	}
	if len(paths) != 2 {
		t.Fatalf("List() = %v, want 2 entries", paths)
	}
}
