package main

import (
	"errors"
	"fmt"
	"io"
	"log/slog"
	"os"
	"path/filepath"
	"strings"

	"github.com/raymyers/cflat/pkg/ast"
	"github.com/raymyers/cflat/pkg/check"
	"github.com/raymyers/cflat/pkg/config"
	"github.com/raymyers/cflat/pkg/interp"
	"github.com/raymyers/cflat/pkg/lexer"
	"github.com/raymyers/cflat/pkg/lir"
	"github.com/raymyers/cflat/pkg/logger"
	"github.com/raymyers/cflat/pkg/lower"
	"github.com/raymyers/cflat/pkg/parser"
	"github.com/spf13/cobra"
	"github.com/spf13/pflag"
)

var version = "0.1.0"

// Debug flags for dumping intermediate representations
var (
	dParse bool
	dAST   bool
	dLIR   bool
)

// Pipeline options
var (
	outputPath string
	configPath string
	noValidate bool
	verbose    bool
	logFormat  string
)

// ErrUnsupportedInput indicates a file that is not CFlat source, a JSON AST
// or LIR.
var ErrUnsupportedInput = errors.New("unsupported input file")

func main() {
	os.Exit(run())
}

func run() int {
	rootCmd := newRootCmd(os.Stdout, os.Stderr)
	rootCmd.SetArgs(normalizeFlags(os.Args[1:]))
	if err := rootCmd.Execute(); err != nil {
		return 1
	}
	return 0
}

// debugFlagNames lists the flags also accepted with a single dash.
var debugFlagNames = []string{"dparse", "dast", "dlir"}

// normalizeFlags converts single-dash debug flags like -dparse to --dparse
func normalizeFlags(args []string) []string {
	result := make([]string, len(args))
	for i, arg := range args {
		for _, flagName := range debugFlagNames {
			if arg == "-"+flagName {
				result[i] = "--" + flagName
				break
			}
		}
		if result[i] == "" {
			result[i] = arg
		}
	}
	return result
}

func newRootCmd(out, errOut io.Writer) *cobra.Command {
	rootCmd := &cobra.Command{
		Use:   "cflat [file]",
		Short: "cflat compiles CFlat programs to LIR and interprets them",
		Long: `cflat lowers CFlat source (.cf, .cb) or a JSON AST (.json) to the
LIR control flow graph IR and runs it with the reference interpreter.
Textual LIR files (.lir) are validated and run directly.`,
		Version:       version,
		Args:          cobra.MaximumNArgs(1),
		SilenceUsage:  true,
		SilenceErrors: true,
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := loadConfig(cmd.Flags())
			if err != nil {
				fmt.Fprintf(errOut, "cflat: %v\n", err)
				return err
			}
			if err := initLogging(cfg, errOut); err != nil {
				fmt.Fprintf(errOut, "cflat: %v\n", err)
				return err
			}

			if len(args) == 0 {
				cmd.Help()
				return nil
			}
			filename := args[0]

			if dParse {
				return doParse(filename, out, errOut)
			}
			if dAST {
				return doAST(filename, out, errOut)
			}
			if dLIR {
				return doLIR(filename, out, errOut)
			}
			if outputPath != "" {
				return doCompile(filename, outputPath, errOut)
			}
			return doRun(filename, cfg, out, errOut)
		},
	}
	rootCmd.SetOut(out)
	rootCmd.SetErr(errOut)

	rootCmd.Flags().BoolVarP(&dParse, "dparse", "", false, "Dump after parsing")
	rootCmd.Flags().BoolVarP(&dAST, "dast", "", false, "Dump the AST as JSON")
	rootCmd.Flags().BoolVarP(&dLIR, "dlir", "", false, "Dump LIR after lowering")
	rootCmd.Flags().StringVarP(&outputPath, "output", "o", "", "Write lowered LIR (or the AST, for a .json path) to this file instead of running")
	rootCmd.Flags().StringVar(&configPath, "config", "", "Read settings from a YAML file")
	rootCmd.Flags().BoolVar(&noValidate, "no-validate", false, "Skip LIR validation before interpreting")
	rootCmd.Flags().BoolVarP(&verbose, "verbose", "v", false, "Log pipeline progress at debug level")
	rootCmd.Flags().StringVar(&logFormat, "log-format", "text", "Log format: text or json")

	return rootCmd
}

// loadConfig reads the config file, if any, and applies flag overrides.
func loadConfig(flags *pflag.FlagSet) (config.Config, error) {
	cfg := config.Default()
	if configPath != "" {
		var err error
		if cfg, err = config.Load(configPath); err != nil {
			return cfg, err
		}
	}
	if noValidate {
		cfg.Validate = false
	}
	if verbose {
		cfg.Log.Level = "debug"
	}
	if flags.Changed("log-format") {
		cfg.Log.Format = logFormat
	}
	return cfg, nil
}

func initLogging(cfg config.Config, errOut io.Writer) error {
	if strings.EqualFold(cfg.Log.Level, "off") {
		slog.SetDefault(logger.Discard())
		return nil
	}
	level, err := logger.ParseLevel(cfg.Log.Level)
	if err != nil {
		return err
	}
	_, err = logger.Init(logger.Config{Level: level, Format: cfg.Log.Format, Output: errOut})
	return err
}

func isSource(filename string) bool {
	ext := filepath.Ext(filename)
	return ext == ".cf" || ext == ".cb"
}

func isAST(filename string) bool {
	return filepath.Ext(filename) == ".json"
}

func readFile(filename string, errOut io.Writer) (string, error) {
	content, err := os.ReadFile(filename)
	if err != nil {
		fmt.Fprintf(errOut, "cflat: error reading %s: %v\n", filename, err)
		return "", err
	}
	return string(content), nil
}

// parseFile reads and parses a CFlat source file
func parseFile(filename string, errOut io.Writer) (*ast.Program, error) {
	content, err := readFile(filename, errOut)
	if err != nil {
		return nil, err
	}

	p := parser.New(lexer.New(content))
	program := p.ParseProgram()
	if len(p.Errors()) > 0 {
		for _, e := range p.Errors() {
			fmt.Fprintf(errOut, "%s: %s\n", filename, e)
		}
		return nil, fmt.Errorf("parsing failed with %d errors", len(p.Errors()))
	}
	slog.Debug("parsed program", "file", filename, "functions", len(program.Functions))
	return program, nil
}

// readASTFile decodes a JSON AST file
func readASTFile(filename string, errOut io.Writer) (*ast.Program, error) {
	content, err := readFile(filename, errOut)
	if err != nil {
		return nil, err
	}
	program, err := ast.ReadJSON([]byte(content))
	if err != nil {
		fmt.Fprintf(errOut, "%s: invalid AST JSON: %v\n", filename, err)
		return nil, err
	}
	slog.Debug("read AST", "file", filename, "functions", len(program.Functions))
	return program, nil
}

// loadProgram returns the AST of a source or JSON AST file.
func loadProgram(filename string, errOut io.Writer) (*ast.Program, error) {
	switch {
	case isSource(filename):
		return parseFile(filename, errOut)
	case isAST(filename):
		return readASTFile(filename, errOut)
	}
	fmt.Fprintf(errOut, "cflat: %s: expected a .cf, .cb or .json file\n", filename)
	return nil, fmt.Errorf("%w: %s", ErrUnsupportedInput, filename)
}

// compileFile produces LIR from a source or AST file, or reads a .lir file.
func compileFile(filename string, errOut io.Writer) (*lir.Program, error) {
	switch {
	case isSource(filename), isAST(filename):
		program, err := loadProgram(filename, errOut)
		if err != nil {
			return nil, err
		}
		valid, err := check.Program(program)
		if err != nil {
			var cerr *check.Error
			if errors.As(err, &cerr) {
				for _, e := range cerr.Errors {
					fmt.Fprintf(errOut, "%s: %s\n", filename, e)
				}
			}
			return nil, err
		}
		return lower.Program(valid), nil

	case filepath.Ext(filename) == ".lir":
		content, err := readFile(filename, errOut)
		if err != nil {
			return nil, err
		}
		prog, err := lir.Parse(content)
		if err != nil {
			fmt.Fprintf(errOut, "%s: %v\n", filename, err)
			return nil, err
		}
		return prog, nil
	}
	fmt.Fprintf(errOut, "cflat: %s: expected a .cf, .cb, .json or .lir file\n", filename)
	return nil, fmt.Errorf("%w: %s", ErrUnsupportedInput, filename)
}

// doParse parses the file and writes the AST to a .parsed.cf file
func doParse(filename string, out, errOut io.Writer) error {
	if !isSource(filename) {
		fmt.Fprintf(errOut, "cflat: -dparse needs a .cf or .cb file, got %s\n", filename)
		return fmt.Errorf("%w: %s", ErrUnsupportedInput, filename)
	}
	program, err := parseFile(filename, errOut)
	if err != nil {
		return err
	}

	outputFilename := parsedOutputFilename(filename)
	outFile, err := os.Create(outputFilename)
	if err != nil {
		fmt.Fprintf(errOut, "cflat: error creating %s: %v\n", outputFilename, err)
		return err
	}
	defer outFile.Close()

	ast.NewPrinter(outFile).PrintProgram(program)
	ast.NewPrinter(out).PrintProgram(program)
	return nil
}

// parsedOutputFilename returns the output filename for -dparse
// input.cf -> input.parsed.cf
func parsedOutputFilename(filename string) string {
	ext := filepath.Ext(filename)
	if ext == ".cf" || ext == ".cb" {
		return strings.TrimSuffix(filename, ext) + ".parsed" + ext
	}
	return filename + ".parsed.cf"
}

// doAST writes the AST as JSON to a .ast.json file
func doAST(filename string, out, errOut io.Writer) error {
	program, err := loadProgram(filename, errOut)
	if err != nil {
		return err
	}
	if err := writeAST(program, astOutputFilename(filename), errOut); err != nil {
		return err
	}
	return ast.FprintJSON(out, program)
}

// astOutputFilename returns the output filename for -dast
// input.cf -> input.ast.json
func astOutputFilename(filename string) string {
	return strings.TrimSuffix(filename, filepath.Ext(filename)) + ".ast.json"
}

func writeAST(program *ast.Program, path string, errOut io.Writer) error {
	outFile, err := os.Create(path)
	if err != nil {
		fmt.Fprintf(errOut, "cflat: error creating %s: %v\n", path, err)
		return err
	}
	defer outFile.Close()

	return ast.FprintJSON(outFile, program)
}

// doLIR lowers the file and writes the LIR to a .lir file
func doLIR(filename string, out, errOut io.Writer) error {
	prog, err := compileFile(filename, errOut)
	if err != nil {
		return err
	}
	if err := writeLIR(prog, lirOutputFilename(filename), errOut); err != nil {
		return err
	}
	lir.NewPrinter(out).PrintProgram(prog)
	return nil
}

// lirOutputFilename returns the output filename for -dlir
func lirOutputFilename(filename string) string {
	if ext := filepath.Ext(filename); ext == ".cf" || ext == ".cb" || ext == ".json" {
		return strings.TrimSuffix(filename, ext) + ".lir"
	}
	return filename + ".lir"
}

// doCompile lowers the file and writes the LIR to path (-o). A .json path
// receives the AST instead.
func doCompile(filename, path string, errOut io.Writer) error {
	if isAST(path) {
		program, err := loadProgram(filename, errOut)
		if err != nil {
			return err
		}
		return writeAST(program, path, errOut)
	}
	prog, err := compileFile(filename, errOut)
	if err != nil {
		return err
	}
	return writeLIR(prog, path, errOut)
}

func writeLIR(prog *lir.Program, path string, errOut io.Writer) error {
	outFile, err := os.Create(path)
	if err != nil {
		fmt.Fprintf(errOut, "cflat: error creating %s: %v\n", path, err)
		return err
	}
	defer outFile.Close()

	lir.NewPrinter(outFile).PrintProgram(prog)
	return nil
}

// doRun compiles, validates and interprets the file, printing main's result
func doRun(filename string, cfg config.Config, out, errOut io.Writer) error {
	prog, err := compileFile(filename, errOut)
	if err != nil {
		return err
	}

	if cfg.Validate {
		if err := lir.Validate(prog); err != nil {
			var verr *lir.ValidationError
			if errors.As(err, &verr) {
				for _, e := range verr.Errors {
					fmt.Fprintf(errOut, "%s: %s\n", filename, e)
				}
			}
			return err
		}
		slog.Debug("validated program", "file", filename, "functions", len(prog.Functions))
	}

	result, err := interp.Run(prog, interp.Options{Output: out})
	if err != nil {
		fmt.Fprintf(errOut, "cflat: %v\n", err)
		return err
	}
	fmt.Fprintf(out, "main returned %d\n", result)
	return nil
}
