package main

import (
	"testing"
)

func TestBuildRootCmdIncludesSubcommands(t *testing.T) {
	cmd := buildRootCmd()
	names := map[string]bool{}
	for _, sub := range cmd.Commands() {
		names[sub.Name()] = true
	}

	required := []string{"serve", "migrate", "keys", "version"}
	for _, name := range required {
		if !names[name] {
			t.Fatalf("expected subcommand %q to be registered", name)
		}
	}
}

func TestResolveConfigPath(t *testing.T) {
	t.Setenv("CORTEXDB_CONFIG", "")

	if got := resolveConfigPath("custom.yaml"); got != "custom.yaml" {
		t.Fatalf("explicit path: got %q", got)
	}
	if got := resolveConfigPath(defaultConfigName); got != defaultConfigName {
		t.Fatalf("default without env: got %q", got)
	}

	t.Setenv("CORTEXDB_CONFIG", "/etc/cortexdb/cortexdb.yaml")
	if got := resolveConfigPath(defaultConfigName); got != "/etc/cortexdb/cortexdb.yaml" {
		t.Fatalf("default with env: got %q", got)
	}
	if got := resolveConfigPath("custom.yaml"); got != "custom.yaml" {
		t.Fatalf("explicit path beats env: got %q", got)
	}
}
