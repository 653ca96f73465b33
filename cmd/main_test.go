package main

import (
	"bytes"
	"strings"
	"testing"
)

func runWithArgs(args []string) (int, string, string) {
	var stdout, stderr bytes.Buffer
	code := run(args, &stdout, &stderr)
	return code, stdout.String(), stderr.String()
}

func TestRunUsage(t *testing.T) {
	code, out, _ := runWithArgs([]string{"dexhub"})
	if code != 0 {
		t.Fatalf("expected exit code 0, got %d", code)
	}
	if !strings.Contains(out, "Usage:") {
		t.Fatalf("expected usage output, got %q", out)
	}
}

func TestRunUnknownCommand(t *testing.T) {
	code, out, _ := runWithArgs([]string{"dexhub", "nope"})
	if code != 1 {
		t.Fatalf("expected exit code 1, got %d", code)
	}
	if !strings.Contains(out, "Unknown command") {
		t.Fatalf("expected unknown command output, got %q", out)
	}
}

func TestRunDevicesMissingSubcommand(t *testing.T) {
	code, out, _ := runWithArgs([]string{"dexhub", "devices"})
	if code != 1 {
		t.Fatalf("expected exit code 1, got %d", code)
	}
	if !strings.Contains(out, "Usage: dexhub devices") {
		t.Fatalf("expected devices usage, got %q", out)
	}
}

func TestRunVersion(t *testing.T) {
	code, out, _ := runWithArgs([]string{"dexhub", "version"})
	if code != 0 {
		t.Fatalf("expected exit code 0, got %d", code)
	}
	if !strings.Contains(out, "dexhub") {
		t.Fatalf("expected version output, got %q", out)
	}
}

func TestRunHelp(t *testing.T) {
	code, out, _ := runWithArgs([]string{"dexhub", "--help"})
	if code != 0 {
		t.Fatalf("expected exit code 0, got %d", code)
	}
	if !strings.Contains(out, "serve") || !strings.Contains(out, "pair") {
		t.Fatalf("expected command list in usage, got %q", out)
	}
}

func TestServeHelp(t *testing.T) {
	var stdout, stderr bytes.Buffer
	code := runServe([]string{"--help"}, &stdout, &stderr)
	if code != 0 {
		t.Fatalf("expected exit code 0, got %d", code)
	}
	if !strings.Contains(stderr.String(), "Usage: dexhub serve") {
		t.Fatalf("expected serve usage, got %q", stderr.String())
	}
}

func TestServeMissingConfigFile(t *testing.T) {
	var stdout, stderr bytes.Buffer
	code := runServe([]string{"--config", "/nonexistent/config.toml"}, &stdout, &stderr)
	if code != 1 {
		t.Fatalf("expected exit code 1, got %d", code)
	}
	if !strings.Contains(stderr.String(), "Error") {
		t.Fatalf("expected error output, got %q", stderr.String())
	}
}
