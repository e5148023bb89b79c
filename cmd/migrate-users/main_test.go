package main

import "testing"

func TestRootCmdFlags(t *testing.T) {
	cmd := newRootCmd()
	flags := cmd.Flags()

	tests := map[string]string{
		"limit":        "100",
		"chunk-size":   "10",
		"since":        "1970-01-01 0:00",
		"workers":      "10",
		"fail-fast":    "false",
		"refresh-meta": "false",
	}
	for name, def := range tests {
		f := flags.Lookup(name)
		if f == nil {
			t.Fatalf("expected flag %s", name)
		}
		if f.DefValue != def {
			t.Fatalf("flag %s: expected default %q, got %q", name, def, f.DefValue)
		}
	}
}

func TestRootCmdRejectsInvalidConfig(t *testing.T) {
	t.Setenv("LEGACY_DATABASE_URL", "postgres://apit")
	t.Setenv("WP_DATABASE_URL", "postgres://wp")

	cmd := newRootCmd()
	cmd.SetArgs([]string{"--chunk-size", "0"})
	if err := cmd.Execute(); err == nil {
		t.Fatalf("expected validation error for chunk size 0")
	}
}
