package main

import (
	"bytes"
	"context"
	"errors"
	"log/slog"
	"os"
	"path/filepath"
	"strings"
	"testing"
)

func TestVersion(t *testing.T) {
	if version == "" {
		t.Error("version should not be empty")
	}
}

func TestFlagsExist(t *testing.T) {
	var out, errOut bytes.Buffer
	cmd := newRootCmd(&out, &errOut)

	expectedFlags := []string{"dparse", "dast", "dlir", "output", "config", "no-validate", "verbose", "log-format"}
	for _, flagName := range expectedFlags {
		if cmd.Flags().Lookup(flagName) == nil {
			t.Errorf("expected flag --%s to exist", flagName)
		}
	}
}

func writeTestFile(t *testing.T, name, content string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), name)
	if err := os.WriteFile(path, []byte(content), 0644); err != nil {
		t.Fatalf("failed to write test file: %v", err)
	}
	return path
}

func execute(args ...string) (string, string, error) {
	var out, errOut bytes.Buffer
	cmd := newRootCmd(&out, &errOut)
	cmd.SetArgs(normalizeFlags(args))
	err := cmd.Execute()
	return out.String(), errOut.String(), err
}

func TestNoArgsShowsHelp(t *testing.T) {
	out, _, err := execute()
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if !strings.Contains(out, "cflat") {
		t.Errorf("expected help text, got %q", out)
	}
}

func TestRunPrintsResult(t *testing.T) {
	testFile := writeTestFile(t, "prog.cf", `fn main() -> int { return 6 * 7; }`)
	out, _, err := execute(testFile)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if out != "main returned 42\n" {
		t.Errorf("output = %q", out)
	}
}

func TestCbExtension(t *testing.T) {
	testFile := writeTestFile(t, "prog.cb", `fn main() -> int { return 1; }`)
	out, _, err := execute(testFile)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if out != "main returned 1\n" {
		t.Errorf("output = %q", out)
	}
}

func TestDParseFlag(t *testing.T) {
	testFile := writeTestFile(t, "test.cf", "fn main() -> int { let x: int = 1; return x+2; }")

	out, _, err := execute("-dparse", testFile)
	if err != nil {
		t.Fatalf("expected no error for -dparse, got %v", err)
	}
	if !strings.Contains(out, "fn main() -> int {") || !strings.Contains(out, "let x: int = 1;") {
		t.Errorf("unexpected -dparse output %q", out)
	}

	written, err := os.ReadFile(parsedOutputFilename(testFile))
	if err != nil {
		t.Fatalf("expected .parsed.cf file: %v", err)
	}
	if string(written) != out {
		t.Errorf("file and stdout differ:\n%s\n---\n%s", written, out)
	}
}

func TestDLIRFlag(t *testing.T) {
	testFile := writeTestFile(t, "test.cf", `fn main() -> int { return 3; }`)

	out, _, err := execute("-dlir", testFile)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	want := "fn main() -> int {\nentry:\n  $ret 3\n}\n"
	if out != want {
		t.Errorf("stdout = %q, want %q", out, want)
	}
	written, err := os.ReadFile(lirOutputFilename(testFile))
	if err != nil {
		t.Fatalf("expected .lir file: %v", err)
	}
	if string(written) != want {
		t.Errorf(".lir file = %q", written)
	}
}

func TestDASTFlag(t *testing.T) {
	testFile := writeTestFile(t, "test.cf", `fn main() -> int { return 3; }`)

	out, _, err := execute("-dast", testFile)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if !strings.Contains(out, `"Return": {`) || !strings.Contains(out, `"Num": 3`) {
		t.Errorf("unexpected -dast output %q", out)
	}
	written, err := os.ReadFile(astOutputFilename(testFile))
	if err != nil {
		t.Fatalf("expected .ast.json file: %v", err)
	}
	if string(written) != out {
		t.Errorf("file and stdout differ:\n%s\n---\n%s", written, out)
	}

	lirFile := writeTestFile(t, "prog.lir", "fn main() -> int {\nentry:\n  $ret 0\n}\n")
	if _, _, err := execute("-dast", lirFile); !errors.Is(err, ErrUnsupportedInput) {
		t.Errorf("-dast on LIR: err = %v, want ErrUnsupportedInput", err)
	}
}

func TestJSONOutputThenRun(t *testing.T) {
	src := writeTestFile(t, "prog.cf", `
extern print: (int) -> _;
fn twice(x: int) -> int { return x * 2; }
fn main() -> int { print(twice(4)); return twice(21); }`)
	jsonFile := filepath.Join(filepath.Dir(src), "prog.json")

	if _, _, err := execute("-o", jsonFile, src); err != nil {
		t.Fatalf("write AST: %v", err)
	}
	out, _, err := execute(jsonFile)
	if err != nil {
		t.Fatalf("run .json: %v", err)
	}
	if out != "8\nmain returned 42\n" {
		t.Errorf("output = %q", out)
	}

	lirOut, _, err := execute("-dlir", jsonFile)
	if err != nil {
		t.Fatalf("-dlir on .json: %v", err)
	}
	srcLIR, _, err := execute("-dlir", src)
	if err != nil {
		t.Fatalf("-dlir on source: %v", err)
	}
	if lirOut != srcLIR {
		t.Errorf("LIR from JSON differs from LIR from source:\n%s\n---\n%s", lirOut, srcLIR)
	}
}

func TestJSONInputErrors(t *testing.T) {
	bad := writeTestFile(t, "bad.json", `{"functions": [{"name": "main", "body": {"stmts": ["Loop"]}}]}`)
	_, errOut, err := execute(bad)
	if err == nil {
		t.Fatal("expected error for malformed AST")
	}
	if !strings.Contains(errOut, "bad.json: invalid AST JSON:") {
		t.Errorf("stderr = %q", errOut)
	}

	// A decoded AST still goes through the checker.
	unchecked := writeTestFile(t, "unchecked.json", `{"globals": [], "typedefs": [], "externs": [], "functions": [
  {"name": "main", "params": [], "rettyp": "Int",
   "body": {"decls": [], "stmts": [{"Return": {"Id": "y"}}]}}]}`)
	_, errOut, err = execute(unchecked)
	if err == nil {
		t.Fatal("expected check error")
	}
	if !strings.Contains(errOut, "undeclared variable y") {
		t.Errorf("stderr = %q", errOut)
	}
}

func TestOutputFlagThenRunLIR(t *testing.T) {
	src := writeTestFile(t, "prog.cf", `
extern print: (int) -> _;
fn main() -> int { print(5); return 2; }`)
	lirFile := filepath.Join(filepath.Dir(src), "out.lir")

	if _, _, err := execute("-o", lirFile, src); err != nil {
		t.Fatalf("compile: %v", err)
	}
	out, _, err := execute(lirFile)
	if err != nil {
		t.Fatalf("run .lir: %v", err)
	}
	if out != "5\nmain returned 2\n" {
		t.Errorf("output = %q", out)
	}
}

func TestParseErrorsAreReported(t *testing.T) {
	testFile := writeTestFile(t, "bad.cf", "fn main() -> int {\n  return 1\n}")
	_, errOut, err := execute(testFile)
	if err == nil {
		t.Fatal("expected error")
	}
	if !strings.Contains(errOut, "bad.cf: line 3, col 1:") {
		t.Errorf("stderr = %q", errOut)
	}
}

func TestCheckErrorsAreReported(t *testing.T) {
	testFile := writeTestFile(t, "bad.cf", "fn main() -> int { return y; }")
	_, errOut, err := execute(testFile)
	if err == nil {
		t.Fatal("expected error")
	}
	if !strings.Contains(errOut, "undeclared variable y") {
		t.Errorf("stderr = %q", errOut)
	}
}

func TestInvalidLIRIsRejected(t *testing.T) {
	testFile := writeTestFile(t, "bad.lir", "fn f() -> int {\nentry:\n  $ret 0\n}\n")
	_, errOut, err := execute(testFile)
	if err == nil {
		t.Fatal("expected validation error")
	}
	if !strings.Contains(errOut, "bad.lir:") {
		t.Errorf("stderr = %q", errOut)
	}
}

func TestUnsupportedInput(t *testing.T) {
	testFile := writeTestFile(t, "prog.c", "int main() { return 0; }")
	_, errOut, err := execute(testFile)
	if !errors.Is(err, ErrUnsupportedInput) {
		t.Fatalf("err = %v, want ErrUnsupportedInput", err)
	}
	if !strings.Contains(errOut, "expected a .cf, .cb, .json or .lir file") {
		t.Errorf("stderr = %q", errOut)
	}
}

func TestVerboseLogsPipeline(t *testing.T) {
	testFile := writeTestFile(t, "prog.cf", `fn main() -> int { return 0; }`)
	_, errOut, err := execute("--verbose", "--log-format", "json", testFile)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	for _, msg := range []string{`"msg":"parsed program"`, `"msg":"lowered function"`, `"msg":"validated program"`, `"msg":"interpretation finished"`} {
		if !strings.Contains(errOut, msg) {
			t.Errorf("stderr missing %s:\n%s", msg, errOut)
		}
	}
}

func TestConfigFile(t *testing.T) {
	dir := t.TempDir()
	cfgFile := filepath.Join(dir, "cflat.yaml")
	if err := os.WriteFile(cfgFile, []byte("validate: false\nlog:\n  level: debug\n"), 0644); err != nil {
		t.Fatal(err)
	}
	testFile := writeTestFile(t, "prog.cf", `fn main() -> int { return 0; }`)

	_, errOut, err := execute("--config", cfgFile, testFile)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if strings.Contains(errOut, "validated program") {
		t.Errorf("validation ran although disabled:\n%s", errOut)
	}
	if !strings.Contains(errOut, "lowered function") {
		t.Errorf("debug level from config not applied:\n%s", errOut)
	}

	bad := filepath.Join(dir, "bad.yaml")
	if err := os.WriteFile(bad, []byte("colour: red\n"), 0644); err != nil {
		t.Fatal(err)
	}
	if _, _, err := execute("--config", bad, testFile); err == nil {
		t.Error("expected error for unknown config key")
	}
}

func TestLogLevelOff(t *testing.T) {
	prev := slog.Default()
	defer slog.SetDefault(prev)

	cfgFile := writeTestFile(t, "cflat.yaml", "log:\n  level: off\n")
	testFile := writeTestFile(t, "prog.cf", `fn main() -> int { return 0; }`)

	out, errOut, err := execute("--config", cfgFile, testFile)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if out != "main returned 0\n" || errOut != "" {
		t.Errorf("stdout = %q, stderr = %q", out, errOut)
	}
	if slog.Default().Enabled(context.Background(), slog.LevelError) {
		t.Error("logging still enabled with level off")
	}
}

func TestNormalizeFlags(t *testing.T) {
	tests := []struct {
		name     string
		input    []string
		expected []string
	}{
		{
			name:     "single-dash dparse",
			input:    []string{"-dparse", "test.cf"},
			expected: []string{"--dparse", "test.cf"},
		},
		{
			name:     "single-dash dlir",
			input:    []string{"-dlir", "test.cf"},
			expected: []string{"--dlir", "test.cf"},
		},
		{
			name:     "single-dash dast",
			input:    []string{"-dast", "test.cf"},
			expected: []string{"--dast", "test.cf"},
		},
		{
			name:     "double-dash unchanged",
			input:    []string{"--dlir", "test.cf"},
			expected: []string{"--dlir", "test.cf"},
		},
		{
			name:     "short output flag unchanged",
			input:    []string{"-o", "out.lir", "test.cf"},
			expected: []string{"-o", "out.lir", "test.cf"},
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			result := normalizeFlags(tt.input)
			if len(result) != len(tt.expected) {
				t.Fatalf("expected %d args, got %d", len(tt.expected), len(result))
			}
			for i := range result {
				if result[i] != tt.expected[i] {
					t.Errorf("arg %d: expected %q, got %q", i, tt.expected[i], result[i])
				}
			}
		})
	}
}

func TestOutputFilenames(t *testing.T) {
	tests := []struct {
		in, parsed, lir, ast string
	}{
		{"a/prog.cf", "a/prog.parsed.cf", "a/prog.lir", "a/prog.ast.json"},
		{"prog.cb", "prog.parsed.cb", "prog.lir", "prog.ast.json"},
		{"noext", "noext.parsed.cf", "noext.lir", "noext.ast.json"},
		{"prog.json", "prog.json.parsed.cf", "prog.lir", "prog.ast.json"},
	}
	for _, tt := range tests {
		if got := parsedOutputFilename(tt.in); got != tt.parsed {
			t.Errorf("parsedOutputFilename(%q) = %q, want %q", tt.in, got, tt.parsed)
		}
		if got := lirOutputFilename(tt.in); got != tt.lir {
			t.Errorf("lirOutputFilename(%q) = %q, want %q", tt.in, got, tt.lir)
		}
		if got := astOutputFilename(tt.in); got != tt.ast {
			t.Errorf("astOutputFilename(%q) = %q, want %q", tt.in, got, tt.ast)
		}
	}
}
