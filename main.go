package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"io"
	"os"
	"os/signal"
	"strings"
	"syscall"

	"github.com/fatih/color"
	"github.com/mattn/go-isatty"

	"github.com/sambeau/roll/config"
)

// Version is set at build time via -ldflags
var Version = "0.1.0-dev"

// Exit statuses
const (
	exitOK    = 0
	exitRoll  = 1 // the message could not be interpreted
	exitUsage = 2 // bad flags, missing files, unreadable config
)

func main() {
	ctx := context.Background()
	err := run(ctx, os.Args[1:], os.Stdin, os.Stdout, os.Stderr, os.Getenv)
	os.Exit(exitCode(err, os.Stderr))
}

// exitError carries an exit status. A nil err means the failure has
// already been reported.
type exitError struct {
	code int
	err  error
}

func (e *exitError) Error() string {
	if e.err == nil {
		return fmt.Sprintf("exit status %d", e.code)
	}
	return e.err.Error()
}

func (e *exitError) Unwrap() error {
	return e.err
}

func usageError(err error) error {
	return &exitError{code: exitUsage, err: err}
}

// rollFailed reports that an interpretation error was already printed
var rollFailed = &exitError{code: exitRoll}

// exitCode reports err on stderr and returns the process exit status
func exitCode(err error, stderr io.Writer) int {
	if err == nil {
		return exitOK
	}
	code := exitUsage
	var ee *exitError
	if errors.As(err, &ee) {
		code = ee.code
		if ee.err == nil {
			return code
		}
	}
	fmt.Fprintf(stderr, "%s %v\n", color.New(color.FgRed, color.Bold).Sprint("error:"), err)
	return code
}

// stringList is a repeatable string flag
type stringList []string

func (s *stringList) String() string {
	return strings.Join(*s, ",")
}

func (s *stringList) Set(value string) error {
	*s = append(*s, value)
	return nil
}

// queryList is a repeatable PROMPT=ANSWER flag
type queryList map[string]string

func (q queryList) String() string {
	pairs := make([]string, 0, len(q))
	for k, v := range q {
		pairs = append(pairs, k+"="+v)
	}
	return strings.Join(pairs, ",")
}

func (q queryList) Set(value string) error {
	prompt, answer, ok := strings.Cut(value, "=")
	if !ok || strings.TrimSpace(prompt) == "" {
		return fmt.Errorf("want PROMPT=ANSWER, got %q", value)
	}
	q[strings.TrimSpace(prompt)] = answer
	return nil
}

// options are the parsed command line of an interpret run
type options struct {
	configPath string
	inline     string
	hasInline  bool
	check      bool
	macroFiles stringList
	database   string
	queries    queryList
	seed       uint64
	maxDepth   int
	maxDice    int
	json       bool
	html       bool
	trace      bool
	noColor    bool
	files      []string
	set        map[string]bool // flags given explicitly
}

// run is the main entry point, designed for testability (Mat Ryer pattern)
func run(ctx context.Context, args []string, stdin io.Reader, stdout, stderr io.Writer, getenv func(string) string) error {
	if len(args) > 0 {
		switch args[0] {
		case "describe":
			return describeCommand(args[1:], stdout, stderr)
		case "macro":
			return macroCommand(args[1:], stdin, stdout, stderr, getenv)
		}
	}

	flags := flag.NewFlagSet("roll", flag.ContinueOnError)
	flags.SetOutput(stderr)
	flags.Usage = func() { printUsage(stderr) }

	opts := options{queries: queryList{}}
	flags.StringVar(&opts.configPath, "config", "", "Path to config file")
	flags.StringVar(&opts.inline, "e", "", "Interpret inline source")
	flags.BoolVar(&opts.check, "check", false, "Parse only and report errors")
	flags.Var(&opts.macroFiles, "macros", "YAML macro file (repeatable)")
	flags.StringVar(&opts.database, "db", "", "SQLite macro store")
	flags.Var(opts.queries, "query", "Answer a roll query, PROMPT=ANSWER (repeatable)")
	flags.Uint64Var(&opts.seed, "seed", 0, "Seed for repeatable rolls")
	flags.IntVar(&opts.maxDepth, "max-depth", 0, "Maximum macro and inline roll nesting")
	flags.IntVar(&opts.maxDice, "max-dice", 0, "Maximum dice in one term")
	flags.BoolVar(&opts.json, "json", false, "Print the result as JSON")
	flags.BoolVar(&opts.html, "html", false, "Print the message as HTML")
	flags.BoolVar(&opts.trace, "trace", false, "Trace macros, queries and dice on stderr")
	flags.BoolVar(&opts.noColor, "no-color", false, "Disable colored output")
	showVersion := flags.Bool("version", false, "Show version")
	showHelp := flags.Bool("help", false, "Show help")

	if err := flags.Parse(args); err != nil {
		if errors.Is(err, flag.ErrHelp) {
			printUsage(stdout)
			return nil
		}
		return &exitError{code: exitUsage}
	}
	opts.files = flags.Args()
	opts.set = make(map[string]bool)
	flags.Visit(func(f *flag.Flag) { opts.set[f.Name] = true })
	opts.hasInline = opts.set["e"]

	if *showHelp {
		printUsage(stdout)
		return nil
	}

	if *showVersion {
		fmt.Fprintf(stdout, "roll version %s\n", Version)
		return nil
	}

	if opts.json && opts.html {
		return usageError(errors.New("--json and --html cannot be used together"))
	}

	cfg, _, err := config.LoadWithPath(opts.configPath, getenv)
	if err != nil {
		return usageError(fmt.Errorf("loading config: %w", err))
	}
	applyFlags(cfg, &opts)
	if err := config.Validate(cfg); err != nil {
		return usageError(fmt.Errorf("config validation: %w", err))
	}

	if !cfg.Output.Color {
		color.NoColor = true
	}

	if opts.check {
		return checkFiles(opts.files, cfg, opts.json, stdout, stderr)
	}

	// Set up signal handling so the macro watcher stops cleanly
	ctx, cancel := signal.NotifyContext(ctx, syscall.SIGINT, syscall.SIGTERM)
	defer cancel()

	switch {
	case opts.hasInline:
		if len(opts.files) > 0 {
			return usageError(errors.New("-e cannot be combined with a file"))
		}
		return interpretSource(opts.inline, "", cfg, &opts, stdin, stdout, stderr)
	case len(opts.files) > 1:
		return usageError(fmt.Errorf("expected one file, got %d (use --check for several)", len(opts.files)))
	case len(opts.files) == 1:
		data, err := os.ReadFile(opts.files[0])
		if err != nil {
			return usageError(fmt.Errorf("reading %s: %w", opts.files[0], err))
		}
		return interpretSource(string(data), opts.files[0], cfg, &opts, stdin, stdout, stderr)
	case isTerminal(stdin) && isTerminal(stdout):
		return startREPL(ctx, cfg, &opts, stdin, stdout, stderr)
	}

	data, err := io.ReadAll(stdin)
	if err != nil {
		return usageError(fmt.Errorf("reading stdin: %w", err))
	}
	return interpretSource(string(data), "-", cfg, &opts, nil, stdout, stderr)
}

// applyFlags lets command-line flags override the loaded configuration
func applyFlags(cfg *config.Config, opts *options) {
	if len(opts.macroFiles) > 0 {
		cfg.Macros.Files = opts.macroFiles
	}
	if opts.set["db"] {
		cfg.Macros.Database = opts.database
	}
	if opts.set["seed"] {
		cfg.Seed = opts.seed
	}
	if opts.set["max-depth"] {
		cfg.Limits.MaxDepth = opts.maxDepth
	}
	if opts.set["max-dice"] {
		cfg.Limits.MaxDice = opts.maxDice
	}
	if opts.trace {
		cfg.Output.Trace = true
	}
	if opts.noColor {
		cfg.Output.Color = false
	}
}

func isTerminal(v any) bool {
	f, ok := v.(*os.File)
	if !ok {
		return false
	}
	return isatty.IsTerminal(f.Fd()) || isatty.IsCygwinTerminal(f.Fd())
}

func printUsage(w io.Writer) {
	fmt.Fprintf(w, `roll - Dice rolls, macros and roll queries in chat messages

Usage:
  roll [options] [file]            Interpret a file, stdin, or start the REPL
  roll -e "source"                 Interpret inline source
  roll --check [--json] file...    Parse only and report errors
  roll describe [--json] <topic>   Show help for a topic
  roll macro <command>             Manage the macro store (ls, get, set, rm, import)

Options:
  --config PATH          Path to config file (default: auto-detect)
  --macros FILE          YAML macro file (repeatable, later files win)
  --db PATH              SQLite macro store
  --query PROMPT=ANSWER  Answer a roll query up front (repeatable)
  --seed N               Repeatable rolls from seed N
  --max-depth N          Maximum macro and inline roll nesting (default 32)
  --max-dice N           Maximum dice in one term (default 1000)
  --json                 Print the result as JSON
  --html                 Print the message as HTML
  --trace                Trace macros, queries and dice on stderr
  --no-color             Disable colored output
  --version              Show version
  --help                 Show this help

Config Resolution:
  1. --config flag
  2. ROLL_CONFIG environment variable
  3. ./roll.yaml
  4. ~/.config/roll/roll.yaml

Exit Status:
  0  success
  1  the message could not be interpreted
  2  usage, config or I/O error

Examples:
  roll -e "I hit for [[2d6+3]]"
  roll -e "/r 1d20+#bonus to hit" --macros macros.yaml
  echo "[[?{Bonus|2}+1d20]]" | roll --query Bonus=5
  roll describe dice

`)
}
