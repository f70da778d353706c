package services_test

import (
	"errors"
	"strings"
	"testing"

	"segue/internal/services"
)

func TestWrapIncludesContext(t *testing.T) {
	base := errors.New("boom")
	err := services.Wrap(services.ErrDownload, "downloader", "stage", "stream interrupted", base)
	if err == nil {
		t.Fatal("expected error")
	}
	if !errors.Is(err, services.ErrDownload) {
		t.Fatalf("expected marker to be retained, got %v", err)
	}
	if !errors.Is(err, base) {
		t.Fatalf("expected wrapped error to contain base error, got %v", err)
	}
	msg := err.Error()
	for _, fragment := range []string{"downloader", "stage", "stream interrupted"} {
		if !strings.Contains(msg, fragment) {
			t.Fatalf("expected %q in error string %q", fragment, msg)
		}
	}
}

func TestFailureKindMapping(t *testing.T) {
	integrityErr := services.Wrap(services.ErrIntegrity, "downloader", "verify", "checksum mismatch", nil)
	if kind := services.FailureKind(integrityErr); kind != services.KindIntegrity {
		t.Fatalf("expected integrity kind, got %s", kind)
	}

	feedErr := services.Wrap(services.ErrFeedParse, "feed", "fetch", "unsupported format", errors.New("format 2"))
	if kind := services.FailureKind(feedErr); kind != services.KindFeedParse {
		t.Fatalf("expected feed_parse kind, got %s", kind)
	}

	if kind := services.FailureKind(nil); kind != services.KindUnknown {
		t.Fatalf("expected unknown kind for nil error, got %s", kind)
	}
}

func TestFailureKindFatalDominates(t *testing.T) {
	applyErr := services.Wrap(services.ErrInstall, "installer", "apply", "rename failed", errors.New("io"))
	fatalErr := services.Wrap(services.ErrFatal, "installer", "rollback", "backup missing", applyErr)
	if !errors.Is(fatalErr, services.ErrInstall) {
		t.Fatalf("expected chain to retain install marker, got %v", fatalErr)
	}
	if kind := services.FailureKind(fatalErr); kind != services.KindFatal {
		t.Fatalf("expected fatal kind to dominate, got %s", kind)
	}
}
