package environ

import (
	"os"
	"path/filepath"
	"slices"
	"strings"
	"testing"
)

func TestLoad(t *testing.T) {
	dir := t.TempDir()
	files := map[string]string{
		"a.env": "# comment\nPICMAN_TEST_A=one\nPICMAN_TEST_B=two=three\n\n1BAD=x\nno-equals\n",
		"b.env": "PICMAN_TEST_A=shadowed\nPICMAN_TEST_C=\n",
		"c.txt": "PICMAN_TEST_D=ignored\n",
	}
	for name, content := range files {
		if err := os.WriteFile(filepath.Join(dir, name), []byte(content), 0o644); err != nil {
			t.Fatal(err)
		}
	}

	table := New()
	if err := table.Load([]string{dir, filepath.Join(dir, "missing")}); err != nil {
		t.Fatalf("Load() error: %v", err)
	}

	tests := []struct {
		name  string
		value string
		ok    bool
	}{
		{"PICMAN_TEST_A", "one", true},
		{"PICMAN_TEST_B", "two=three", true},
		{"PICMAN_TEST_C", "", true},
		{"PICMAN_TEST_D", "", false},
		{"1BAD", "", false},
	}
	for _, tt := range tests {
		v, ok := table.Lookup(tt.name)
		if v != tt.value || ok != tt.ok {
			t.Errorf("Lookup(%q) = %q, %v; want %q, %v", tt.name, v, ok, tt.value, tt.ok)
		}
	}
}

func TestEnvpMerge(t *testing.T) {
	t.Setenv("PICMAN_TEST_HOST", "host")
	t.Setenv("PICMAN_TEST_OVERRIDE", "host")

	table := New()
	if err := table.Read(strings.NewReader("PICMAN_TEST_OVERRIDE=file\nPICMAN_TEST_FILE=file\n"), "inline"); err != nil {
		t.Fatal(err)
	}
	table.Set("PICMAN_TEST_FILE", "explicit")

	envp := table.Envp()
	for _, want := range []string{"PICMAN_TEST_HOST=host", "PICMAN_TEST_OVERRIDE=file", "PICMAN_TEST_FILE=explicit"} {
		if !slices.Contains(envp, want) {
			t.Errorf("Envp() missing %q", want)
		}
	}
	if !slices.IsSorted(envp) {
		t.Error("Envp() is not sorted")
	}

	table.Unset("PICMAN_TEST_FILE")
	if !slices.Contains(table.Envp(), "PICMAN_TEST_FILE=file") {
		t.Error("Envp() did not refresh after Unset")
	}

	table.Set("PICMAN_TEST_X", "1")
	table.Clear()
	if _, ok := table.Lookup("PICMAN_TEST_X"); ok {
		t.Error("Clear() kept an explicit variable")
	}
}

func TestValidName(t *testing.T) {
	for name, want := range map[string]bool{
		"PATH": true, "_x1": true, "a": true,
		"": false, "9LIVES": false, "A-B": false, "A B": false,
	} {
		if got := ValidName(name); got != want {
			t.Errorf("ValidName(%q) = %v, want %v", name, got, want)
		}
	}
}
