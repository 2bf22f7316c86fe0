package domain

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"testing"
)

func TestClassify(t *testing.T) {
	cause := errors.New("exit status 1")

	tests := []struct {
		name     string
		err      error
		wantKind Kind
		wantMsg  string
	}{
		{"nil", nil, "", ""},
		{"tagged", Fail(KindProbe, "could not read media info: boom", cause), KindProbe, "could not read media info: boom"},
		{"wrapped tagged", fmt.Errorf("job: %w", Fail(KindDownload, "download failed", cause)), KindDownload, "download failed"},
		{"deadline", fmt.Errorf("run: %w", context.DeadlineExceeded), KindTimeout, "operation timed out, please retry later"},
		{"untagged", errors.New("disk on fire"), KindInternal, "unexpected error: disk on fire"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			kind, msg := Classify(tt.err)
			if kind != tt.wantKind {
				t.Errorf("kind = %q, want %q", kind, tt.wantKind)
			}
			if msg != tt.wantMsg {
				t.Errorf("message = %q, want %q", msg, tt.wantMsg)
			}
		})
	}
}

func TestClassifyTaggedTimeoutKeepsMessage(t *testing.T) {
	err := Fail(KindTimeout, "download timed out", context.DeadlineExceeded)
	kind, msg := Classify(err)
	if kind != KindTimeout || msg != "download timed out" {
		t.Errorf("got (%q, %q)", kind, msg)
	}
}

func TestClassifyInternalIsBounded(t *testing.T) {
	_, msg := Classify(errors.New(strings.Repeat("x", 1000)))
	if n := len([]rune(msg)); n > MaxExcerpt {
		t.Errorf("internal message has %d characters, want at most %d", n, MaxExcerpt)
	}
}

func TestErrorUnwrap(t *testing.T) {
	cause := errors.New("root cause")
	err := Fail(KindInternal, "outer", cause)

	if !errors.Is(err, cause) {
		t.Error("expected errors.Is to find the cause")
	}
	if err.Error() != "outer: root cause" {
		t.Errorf("Error() = %q", err.Error())
	}
	if Fail(KindNotFound, "file not found", nil).Error() != "file not found" {
		t.Error("Error() without cause should be the message")
	}
}

func TestExcerpt(t *testing.T) {
	if got := Excerpt("  ERROR: boom \n"); got != "ERROR: boom" {
		t.Errorf("Excerpt trimmed = %q", got)
	}

	long := strings.Repeat("é", MaxExcerpt+50)
	got := Excerpt(long)
	if n := len([]rune(got)); n != MaxExcerpt {
		t.Errorf("Excerpt length = %d runes, want %d", n, MaxExcerpt)
	}
}
