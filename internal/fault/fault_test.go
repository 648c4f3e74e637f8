package fault

import (
	"errors"
	"fmt"
	"net/http"
	"testing"
)

func TestStatusKind(t *testing.T) {
	cases := map[int]Kind{
		http.StatusUnauthorized:        Auth,
		http.StatusForbidden:           Auth,
		http.StatusNotFound:            NotFound,
		http.StatusConflict:            Conflict,
		http.StatusInternalServerError: Remote,
		http.StatusTooManyRequests:     Remote,
	}
	for status, want := range cases {
		if got := StatusKind(status); got != want {
			t.Errorf("StatusKind(%d) = %s, want %s", status, got, want)
		}
	}
}

func TestKindSurvivesWrapping(t *testing.T) {
	base := FromStatus("get project", http.StatusNotFound, "no such project")
	wrapped := fmt.Errorf("stage: %w", base)

	if KindOf(wrapped) != NotFound {
		t.Fatalf("want not-found, got %s", KindOf(wrapped))
	}
	if !errors.Is(wrapped, ErrNotFound) {
		t.Fatal("errors.Is should match the not-found sentinel")
	}
	if errors.Is(wrapped, ErrConflict) {
		t.Fatal("errors.Is must not match a different kind")
	}
	if !IsTerminal(wrapped) {
		t.Fatal("not-found is terminal")
	}
}

func TestKindOfPlainError(t *testing.T) {
	err := errors.New("boom")
	if KindOf(err) != Remote {
		t.Fatalf("plain errors classify as remote, got %s", KindOf(err))
	}
	if IsTerminal(err) {
		t.Fatal("remote errors are retryable")
	}
}

func TestErrorMessageKeepsUnderlyingText(t *testing.T) {
	err := New(Parse, "read manifest", errors.New("bare \" in non-quoted field"))
	if got, want := err.Error(), "read manifest: bare \" in non-quoted field"; got != want {
		t.Fatalf("got %q want %q", got, want)
	}
}
