package interp

import (
	"os"
	"path/filepath"
	"strings"
	"testing"
)

func writeFile(t *testing.T, dir, name, content string, mode os.FileMode) string {
	t.Helper()
	path := filepath.Join(dir, name)
	if err := os.WriteFile(path, []byte(content), mode); err != nil {
		t.Fatalf("failed to write %s: %v", name, err)
	}
	return path
}

func newTestDB(t *testing.T) (*DB, string) {
	t.Helper()
	dir := t.TempDir()
	python := writeFile(t, dir, "python3", "#!/bin/sh\n", 0o755)
	mono := writeFile(t, dir, "mono", "#!/bin/sh\n", 0o755)

	interpDir := filepath.Join(dir, "interpreters")
	if err := os.Mkdir(interpDir, 0o755); err != nil {
		t.Fatal(err)
	}
	writeFile(t, interpDir, "default.interp", strings.Join([]string{
		"# interpreters",
		"python=" + python,
		"mono=" + mono,
		"missing=" + filepath.Join(dir, "does-not-exist"),
		":python:E::py::python:",
		":exe:M::MZ::mono:",
		":masked:M:2:\\x41\\x42:\\xdf\\xdf:" + mono + ":",
		":bad:X::x::prog:",
		"",
	}, "\n"), 0o644)
	writeFile(t, interpDir, "ignored.txt", "python=/nope\n", 0o644)

	db, err := Load([]string{interpDir, filepath.Join(dir, "absent")})
	if err != nil {
		t.Fatalf("Load() error: %v", err)
	}
	return db, dir
}

func TestLoad(t *testing.T) {
	db, dir := newTestDB(t)

	progs := db.Programs()
	if progs["python"] != filepath.Join(dir, "python3") {
		t.Errorf("python = %q", progs["python"])
	}
	if _, ok := progs["missing"]; ok {
		t.Error("non-executable interpreter was accepted")
	}
	if got := db.Extensions(); got != ".py" {
		t.Errorf("Extensions() = %q, want .py", got)
	}
}

func TestResolve(t *testing.T) {
	db, dir := newTestDB(t)
	python := filepath.Join(dir, "python3")
	mono := filepath.Join(dir, "mono")

	tests := []struct {
		name     string
		file     string
		content  string
		wantProg string
		wantArg  string
	}{
		{"native binary", "plain", "\x7fELF....", "", ""},
		{"shebang direct", "a", "#!/bin/sh -e\necho hi\n", "/bin/sh", "-e"},
		{"shebang mapped name", "b", "#!python\n", python, ""},
		{"shebang env lookup", "c", "#! /usr/bin/env python  \r\n", python, ""},
		{"shebang env unknown", "d", "#!/usr/bin/env ruby\n", "/usr/bin/env", "ruby"},
		{"magic", "e", "MZ\x90\x00", mono, ""},
		{"masked magic", "f", "..ab", mono, ""},
		{"extension", "script.py", "print('hi')\n", python, ""},
		{"unknown extension", "script.rb", "puts 1\n", "", ""},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			path := writeFile(t, dir, tt.file, tt.content, 0o755)
			prog, arg := db.Resolve(path)
			if prog != tt.wantProg || arg != tt.wantArg {
				t.Errorf("Resolve() = (%q, %q), want (%q, %q)", prog, arg, tt.wantProg, tt.wantArg)
			}
		})
	}
}

func TestResolveUnreadable(t *testing.T) {
	db, dir := newTestDB(t)
	prog, _ := db.Resolve(filepath.Join(dir, "nowhere.py"))
	if prog != filepath.Join(dir, "python3") {
		t.Errorf("Resolve() of a missing .py = %q, want the extension match", prog)
	}
}

func TestUnquote(t *testing.T) {
	tests := []struct {
		in   string
		want string
		ok   bool
	}{
		{`plain`, "plain", true},
		{`\x4d\x5A`, "MZ", true},
		{`a\x0`, "", false},
		{`\xzz`, "", false},
		{`back\slash`, `back\slash`, true},
	}
	for _, tt := range tests {
		got, ok := unquote(tt.in)
		if ok != tt.ok || (ok && string(got) != tt.want) {
			t.Errorf("unquote(%q) = %q, %v; want %q, %v", tt.in, got, ok, tt.want, tt.ok)
		}
	}
}

func TestBinfmtRejects(t *testing.T) {
	db := New()
	for _, line := range []string{
		":short:",
		"::E::py::python:",
		":name:M:99999:MZ::prog:",
		":name:M::MZ:\\xff:prog:",
	} {
		if db.addBinfmt(line) {
			t.Errorf("addBinfmt(%q) accepted", line)
		}
	}
}
