package main

import (
	"bytes"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/raymyers/cflat/pkg/check"
	"github.com/raymyers/cflat/pkg/interp"
	"github.com/raymyers/cflat/pkg/lir"
	"github.com/raymyers/cflat/pkg/lower"
	"github.com/raymyers/cflat/pkg/parser"
	"gopkg.in/yaml.v3"
)

// RunTestSpec represents a single end-to-end test case
type RunTestSpec struct {
	Name   string `yaml:"name"`
	Input  string `yaml:"input"`
	Result *int64 `yaml:"result,omitempty"`
	Error  string `yaml:"error,omitempty"`
	Output string `yaml:"output,omitempty"`
	Skip   string `yaml:"skip,omitempty"` // Reason to skip this test
}

// RunTestFile represents the run.yaml file structure
type RunTestFile struct {
	Tests []RunTestSpec `yaml:"tests"`
}

func loadRunTests(t *testing.T) []RunTestSpec {
	t.Helper()
	data, err := os.ReadFile("../../testdata/run.yaml")
	if err != nil {
		t.Fatalf("failed to read run.yaml: %v", err)
	}
	var testFile RunTestFile
	if err := yaml.Unmarshal(data, &testFile); err != nil {
		t.Fatalf("failed to parse run.yaml: %v", err)
	}
	return testFile.Tests
}

// TestE2ERuntimeYAML runs every program through the CLI.
func TestE2ERuntimeYAML(t *testing.T) {
	for _, tc := range loadRunTests(t) {
		t.Run(tc.Name, func(t *testing.T) {
			if tc.Skip != "" {
				t.Skip(tc.Skip)
			}
			tmpDir := t.TempDir()
			testFile := filepath.Join(tmpDir, "prog.cf")
			if err := os.WriteFile(testFile, []byte(tc.Input), 0644); err != nil {
				t.Fatalf("failed to write test file: %v", err)
			}

			var out, errOut bytes.Buffer
			cmd := newRootCmd(&out, &errOut)
			cmd.SetArgs([]string{testFile})
			err := cmd.Execute()

			if tc.Error != "" {
				if err == nil {
					t.Fatalf("expected error %q, got output %q", tc.Error, out.String())
				}
				if !strings.Contains(errOut.String(), tc.Error) {
					t.Errorf("stderr %q does not mention %q", errOut.String(), tc.Error)
				}
				return
			}
			if err != nil {
				t.Fatalf("unexpected error: %v\nstderr: %s", err, errOut.String())
			}
			want := tc.Output + fmt.Sprintf("main returned %d\n", *tc.Result)
			if out.String() != want {
				t.Errorf("stdout = %q, want %q", out.String(), want)
			}
		})
	}
}

// TestLoweredLIRRoundTrip checks that the printed LIR of every program reads
// back, validates, and computes the same result.
func TestLoweredLIRRoundTrip(t *testing.T) {
	for _, tc := range loadRunTests(t) {
		if tc.Error != "" || tc.Skip != "" {
			continue
		}
		t.Run(tc.Name, func(t *testing.T) {
			prog, err := parser.Parse(tc.Input)
			if err != nil {
				t.Fatalf("Parse: %v", err)
			}
			valid, err := check.Program(prog)
			if err != nil {
				t.Fatalf("check: %v", err)
			}
			text := lir.String(lower.Program(valid))

			reread, err := lir.Parse(text)
			if err != nil {
				t.Fatalf("lir.Parse: %v\n%s", err, text)
			}
			if err := lir.Validate(reread); err != nil {
				t.Fatalf("Validate: %v\n%s", err, text)
			}
			got, err := interp.Run(reread, interp.Options{Output: &bytes.Buffer{}})
			if err != nil {
				t.Fatalf("Run: %v", err)
			}
			if got != *tc.Result {
				t.Errorf("result = %d, want %d", got, *tc.Result)
			}
		})
	}
}

// TestSingleReturnLaw checks that every lowered function has one $ret.
func TestSingleReturnLaw(t *testing.T) {
	for _, tc := range loadRunTests(t) {
		t.Run(tc.Name, func(t *testing.T) {
			prog, err := parser.Parse(tc.Input)
			if err != nil {
				t.Fatalf("Parse: %v", err)
			}
			valid, err := check.Program(prog)
			if err != nil {
				t.Fatalf("check: %v", err)
			}
			for name, fn := range lower.Program(valid).Functions {
				rets := 0
				for _, bb := range fn.Body {
					if _, ok := bb.Term.(lir.Ret); ok {
						rets++
					}
				}
				if rets != 1 {
					t.Errorf("function %s has %d $ret terminals", name, rets)
				}
			}
		})
	}
}
