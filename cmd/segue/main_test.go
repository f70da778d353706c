package main

import "testing"

func TestCLIVersion(t *testing.T) {
	stdout, _, err := runCLI(t, []string{"version"}, "", "")
	if err != nil {
		t.Fatalf("version failed: %v", err)
	}
	requireContains(t, stdout, "segue dev")
}

func TestCLITestNotifyWithoutTopic(t *testing.T) {
	env := setupCLITestEnv(t)

	stdout, _, err := runCLI(t, []string{"test-notify"}, env.socketPath, env.configPath)
	if err != nil {
		t.Fatalf("test-notify failed: %v", err)
	}
	requireContains(t, stdout, "ntfy topic not configured")
}
