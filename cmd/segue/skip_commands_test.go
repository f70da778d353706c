package main

import (
	"strings"
	"testing"

	"segue/internal/feed"
	"segue/internal/version"
)

func TestCLISkipRoundtrip(t *testing.T) {
	env := setupCLITestEnv(t)
	env.source.set(feed.Candidate{
		Version: version.MustParse("2.0.0"),
		URL:     "https://releases.example.com/demo-2.0.0.tar.gz",
		Size:    1024,
		SHA256:  strings.Repeat("aa", 32),
	})

	stdout, _, err := runCLI(t, []string{"skip", "2.0.0+build.5"}, env.socketPath, env.configPath)
	if err != nil {
		t.Fatalf("skip failed: %v", err)
	}
	requireContains(t, stdout, "Version 2.0.0 will be skipped")

	stdout, _, err = runCLI(t, []string{"skipped"}, env.socketPath, env.configPath)
	if err != nil {
		t.Fatalf("skipped failed: %v", err)
	}
	requireContains(t, stdout, "2.0.0")

	stdout, _, err = runCLI(t, []string{"check"}, env.socketPath, env.configPath)
	if err != nil {
		t.Fatalf("check failed: %v", err)
	}
	requireContains(t, stdout, "Already up to date (version 1.0.0)")
	waitForNoSession(t, env)

	stdout, _, err = runCLI(t, []string{"unskip", "2.0.0"}, env.socketPath, env.configPath)
	if err != nil {
		t.Fatalf("unskip failed: %v", err)
	}
	requireContains(t, stdout, "Version 2.0.0 removed from the skip list")

	stdout, _, err = runCLI(t, []string{"unskip", "2.0.0"}, env.socketPath, env.configPath)
	if err != nil {
		t.Fatalf("second unskip failed: %v", err)
	}
	requireContains(t, stdout, "Version 2.0.0 was not on the skip list")

	stdout, _, err = runCLI(t, []string{"skipped"}, env.socketPath, env.configPath)
	if err != nil {
		t.Fatalf("skipped failed: %v", err)
	}
	requireContains(t, stdout, "No versions are skipped")
}

func TestCLISkipRejectsMalformedVersion(t *testing.T) {
	env := setupCLITestEnv(t)

	_, _, err := runCLI(t, []string{"skip", "not-a-version"}, env.socketPath, env.configPath)
	if err == nil {
		t.Fatal("expected skip to reject a malformed version")
	}
	if !strings.Contains(err.Error(), "expected three numeric components") {
		t.Fatalf("unexpected error: %v", err)
	}
}
