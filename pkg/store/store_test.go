package store

import (
	"errors"
	"path/filepath"
	"strings"
	"testing"

	"github.com/antibyte/retrofunge/pkg/befunge"
)

func openTestStore(t *testing.T) *Store {
	t.Helper()
	s, err := Open(filepath.Join(t.TempDir(), "test.db"))
	if err != nil {
		t.Fatalf("Open failed: %v", err)
	}
	t.Cleanup(func() { s.Close() })
	return s
}

func TestUsers(t *testing.T) {
	s := openTestStore(t)

	if err := s.CreateUser("alice", "secret123"); err != nil {
		t.Fatalf("CreateUser failed: %v", err)
	}
	if err := s.CreateUser("alice", "another1"); !errors.Is(err, ErrUserExists) {
		t.Errorf("Expected ErrUserExists, got %v", err)
	}
	if err := s.Authenticate("alice", "secret123"); err != nil {
		t.Errorf("Expected valid credentials, got %v", err)
	}
	if err := s.Authenticate("alice", "wrong-pass"); !errors.Is(err, ErrInvalidCredentials) {
		t.Errorf("Expected ErrInvalidCredentials, got %v", err)
	}
	if err := s.Authenticate("bob", "secret123"); !errors.Is(err, ErrInvalidCredentials) {
		t.Errorf("Expected ErrInvalidCredentials for unknown user, got %v", err)
	}
}

func TestCreateUserValidation(t *testing.T) {
	s := openTestStore(t)
	tests := []struct {
		username, password string
		want               error
	}{
		{"ab", "secret123", ErrInvalidUsername},
		{"bad name", "secret123", ErrInvalidUsername},
		{"guest", "secret123", ErrInvalidUsername},
		{"carol", "123", ErrInvalidPassword},
	}
	for _, tt := range tests {
		if err := s.CreateUser(tt.username, tt.password); !errors.Is(err, tt.want) {
			t.Errorf("CreateUser(%q): expected %v, got %v", tt.username, tt.want, err)
		}
	}
}

func TestSaveAndGetProgram(t *testing.T) {
	s := openTestStore(t)

	p, err := s.SaveProgram("alice", "sum", "54+.@")
	if err != nil {
		t.Fatalf("SaveProgram failed: %v", err)
	}
	if p.ID == "" || p.Owner != "alice" || p.Source != "54+.@" {
		t.Errorf("Unexpected program: %+v", p)
	}

	updated, err := s.SaveProgram("alice", "sum", "12+.@")
	if err != nil {
		t.Fatalf("SaveProgram update failed: %v", err)
	}
	if updated.ID != p.ID {
		t.Errorf("Expected overwrite to keep ID %s, got %s", p.ID, updated.ID)
	}

	got, err := s.GetProgram(p.ID)
	if err != nil {
		t.Fatalf("GetProgram failed: %v", err)
	}
	if got.Source != "12+.@" {
		t.Errorf("Expected updated source, got %q", got.Source)
	}

	if _, err := s.GetProgram("missing"); !errors.Is(err, ErrProgramNotFound) {
		t.Errorf("Expected ErrProgramNotFound, got %v", err)
	}
}

func TestSaveProgramValidatesSource(t *testing.T) {
	s := openTestStore(t)
	_, err := s.SaveProgram("alice", "wide", strings.Repeat("1", befunge.Width+1))
	if !errors.Is(err, befunge.ErrSourceTooLarge) {
		t.Errorf("Expected ErrSourceTooLarge, got %v", err)
	}
	if _, err := s.SaveProgram("alice", "  ", "@"); !errors.Is(err, ErrInvalidName) {
		t.Errorf("Expected ErrInvalidName, got %v", err)
	}
}

func TestListAndDeletePrograms(t *testing.T) {
	s := openTestStore(t)
	for _, name := range []string{"zeta", "alpha"} {
		if _, err := s.SaveProgram("alice", name, "@"); err != nil {
			t.Fatalf("SaveProgram failed: %v", err)
		}
	}
	other, _ := s.SaveProgram("bob", "mine", "@")

	list, err := s.ListPrograms("alice")
	if err != nil {
		t.Fatalf("ListPrograms failed: %v", err)
	}
	if len(list) != 2 || list[0].Name != "alpha" || list[1].Name != "zeta" {
		t.Fatalf("Unexpected listing: %+v", list)
	}
	if list[0].Source != "" {
		t.Errorf("Expected listing without source")
	}

	if err := s.DeleteProgram("alice", other.ID); !errors.Is(err, ErrProgramNotFound) {
		t.Errorf("Expected foreign delete to fail, got %v", err)
	}
	if err := s.DeleteProgram("alice", list[0].ID); err != nil {
		t.Errorf("DeleteProgram failed: %v", err)
	}
	list, _ = s.ListPrograms("alice")
	if len(list) != 1 {
		t.Errorf("Expected one program left, got %d", len(list))
	}

	empty, err := s.ListPrograms("nobody")
	if err != nil || empty == nil || len(empty) != 0 {
		t.Errorf("Expected empty non-nil listing, got %v/%v", empty, err)
	}
}
