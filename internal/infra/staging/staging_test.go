package staging

import (
	"bytes"
	"testing"
)

func TestStageReadRelease(t *testing.T) {
	s := NewFileStage(t.TempDir())

	path, err := s.Stage([]byte("jpeg-bytes"))
	if err != nil {
		t.Fatal(err)
	}

	got, err := s.Read(path)
	if err != nil {
		t.Fatal(err)
	}
	if !bytes.Equal(got, []byte("jpeg-bytes")) {
		t.Errorf("read back %q", got)
	}

	if err := s.Release(path); err != nil {
		t.Fatalf("first release: %v", err)
	}
	if _, err := s.Read(path); err == nil {
		t.Error("released file should not be readable")
	}
}

func TestReleaseIsIdempotent(t *testing.T) {
	s := NewFileStage(t.TempDir())

	path, err := s.Stage([]byte("x"))
	if err != nil {
		t.Fatal(err)
	}
	if err := s.Release(path); err != nil {
		t.Fatal(err)
	}
	if err := s.Release(path); err != nil {
		t.Errorf("second release must be a no-op, got %v", err)
	}
	if err := s.Release(""); err != nil {
		t.Errorf("empty path release must be a no-op, got %v", err)
	}
}

func TestReleaseRejectsForeignPath(t *testing.T) {
	s := NewFileStage(t.TempDir())
	if err := s.Release("/etc/hosts"); err == nil {
		t.Error("paths outside the staging dir must be refused")
	}
}
