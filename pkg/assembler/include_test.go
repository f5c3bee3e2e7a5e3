// Copyright (C) 2021  Antonio Lassandro

// This program is free software: you can redistribute it and/or modify it
// under the terms of the GNU General Public License as published by the Free
// Software Foundation, either version 3 of the License, or (at your option)
// any later version.

// This program is distributed in the hope that it will be useful, but WITHOUT
// ANY WARRANTY; without even the implied warranty of MERCHANTABILITY or
// FITNESS FOR A PARTICULAR PURPOSE.  See the GNU General Public License for
// more details.

// You should have received a copy of the GNU General Public License along
// with this program.  If not, see <http://www.gnu.org/licenses/>.

package assembler_test

import (
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/lassandro/agent86/pkg/assembler"
)

func writeFile(t *testing.T, dir, name, content string) string {
	t.Helper()
	path := filepath.Join(dir, name)
	if err := os.WriteFile(path, []byte(content), 0666); err != nil {
		t.Fatal(err)
	}
	return path
}

func TestExpandIncludes(t *testing.T) {
	dir := t.TempDir()

	writeFile(t, dir, "defs.asm", "COUNT EQU 3\n")
	root := writeFile(t, dir, "main.asm",
		"ORG 100h\n"+
			"INCLUDE 'defs.asm'\n"+
			"MOV AX, COUNT\n",
	)

	lines, sourceMap, diags, ok := assembler.ExpandIncludes(root)

	if !ok {
		t.Fatalf("Expansion failed: %v", diags)
	}

	want := []string{
		"ORG 100h",
		"; >>> INCLUDE defs.asm",
		"COUNT EQU 3",
		"; <<< END INCLUDE defs.asm",
		"MOV AX, COUNT",
	}

	if len(lines) != len(want) {
		t.Fatalf("Line count\nwant:%d\nhave:%d (%q)", len(want), len(lines), lines)
	}

	for i := range want {
		if lines[i] != want[i] {
			t.Errorf("Line %d\nwant:%q\nhave:%q", i, want[i], lines[i])
		}
	}

	if len(sourceMap) != len(lines) {
		t.Fatalf(
			"Source map length\nwant:%d\nhave:%d",
			len(lines),
			len(sourceMap),
		)
	}

	// The spliced line points back into defs.asm at its own line 1
	if loc := sourceMap[2]; filepath.Base(loc.File) != "defs.asm" || loc.Line != 1 {
		t.Errorf(
			"Source map origin mismatch\nwant:defs.asm:1\nhave:%s:%d",
			loc.File,
			loc.Line,
		)
	}
}

func TestExpandIncludesCircular(t *testing.T) {
	dir := t.TempDir()

	writeFile(t, dir, "a.asm", "INCLUDE 'b.asm'\n")
	writeFile(t, dir, "b.asm", "INCLUDE 'a.asm'\n")

	_, _, diags, ok := assembler.ExpandIncludes(filepath.Join(dir, "a.asm"))

	if ok {
		t.Fatal("Expected circular include failure")
	}

	found := false
	for _, d := range diags {
		if strings.Contains(string(d.Message), "Circular include") {
			found = true
		}
	}
	if !found {
		t.Errorf("Expected circular include diagnostic, have: %v", diags)
	}
}

func TestExpandIncludesMissingFile(t *testing.T) {
	dir := t.TempDir()
	root := writeFile(t, dir, "main.asm", "INCLUDE 'nope.asm'\n")

	_, _, diags, ok := assembler.ExpandIncludes(root)

	if ok {
		t.Fatal("Expected missing include failure")
	}

	found := false
	for _, d := range diags {
		if strings.Contains(string(d.Message), "Cannot open include file") {
			found = true
		}
	}
	if !found {
		t.Errorf("Expected missing file diagnostic, have: %v", diags)
	}
}

func TestExpandIncludesBareFilename(t *testing.T) {
	dir := t.TempDir()

	writeFile(t, dir, "defs.asm", "NOP\n")
	root := writeFile(t, dir, "main.asm", "include defs.asm ; comment\n")

	lines, _, diags, ok := assembler.ExpandIncludes(root)

	if !ok {
		t.Fatalf("Expansion failed: %v", diags)
	}

	joined := strings.Join(lines, "\n")
	if !strings.Contains(joined, "NOP") {
		t.Errorf("Included content missing from expansion: %q", lines)
	}
}
