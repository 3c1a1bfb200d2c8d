package main

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"os"
	"strings"

	"github.com/fatih/color"
	"github.com/yuin/goldmark"
	"github.com/yuin/goldmark/renderer/html"
	"golang.org/x/text/width"

	"github.com/sambeau/roll/config"
	"github.com/sambeau/roll/macros"
	rerrors "github.com/sambeau/roll/pkg/roll/errors"
	"github.com/sambeau/roll/pkg/roll/repl"
	"github.com/sambeau/roll/pkg/roll/roll"
)

var (
	errorColor = color.New(color.FgRed, color.Bold)
	hintColor  = color.New(color.FgYellow)
	caretColor = color.New(color.FgGreen, color.Bold)
)

// loadMacros reads the macro store, then the macro files. Files override
// stored macros of the same name.
func loadMacros(cfg *config.Config) (roll.Macros, error) {
	var stored roll.Macros
	if path := cfg.Macros.Database; path != "" {
		if _, err := os.Stat(path); err == nil {
			store, err := macros.Open(path)
			if err != nil {
				return nil, err
			}
			defer store.Close()

			stored, err = store.All()
			if err != nil {
				return nil, fmt.Errorf("reading macro store: %w", err)
			}
		}
	}

	files, err := macros.LoadFiles(cfg.Macros.Files...)
	if err != nil {
		return nil, err
	}

	return macros.Merge(stored, files), nil
}

// rollConfig holds the settings shared by every interpretation of a run
func rollConfig(cfg *config.Config, opts *options) roll.Config {
	rc := roll.Config{
		RollQueries: opts.queries,
		MaxDepth:    cfg.Limits.MaxDepth,
		MaxDice:     cfg.Limits.MaxDice,
	}
	if cfg.Seed != 0 {
		rc.Random = roll.SeededRandom(cfg.Seed)
	}
	return rc
}

// acceptDefaults answers every query with its default. It is used when the
// message itself was read from stdin.
func acceptDefaults(prompt, def string) (string, bool) {
	return def, true
}

// interpretSource interprets one message and writes the result. Queries
// are asked on stderr and answered from stdin; a nil stdin takes defaults.
func interpretSource(source, name string, cfg *config.Config, opts *options, stdin io.Reader, stdout, stderr io.Writer) error {
	m, err := loadMacros(cfg)
	if err != nil {
		return usageError(err)
	}

	rc := rollConfig(cfg, opts)
	rc.Source = source
	rc.Macros = m
	rc.Prompter = acceptDefaults
	if stdin != nil {
		rc.Prompter = roll.ReaderPrompter(stdin, stderr)
	}
	if cfg.Output.Trace {
		rc.Logger = roll.WriterLogger(stderr)
	}

	out := roll.Interpret(rc)

	if opts.json {
		data, err := json.MarshalIndent(out, "", "  ")
		if err != nil {
			return usageError(fmt.Errorf("encoding result: %w", err))
		}
		fmt.Fprintf(stdout, "%s\n", data)
		if out.Err != nil {
			return rollFailed
		}
		return nil
	}

	if out.Err != nil {
		printRollError(stderr, name, source, out.Err)
		return rollFailed
	}

	if opts.html {
		page, err := renderHTML(out.String())
		if err != nil {
			return usageError(fmt.Errorf("rendering HTML: %w", err))
		}
		io.WriteString(stdout, page)
		return nil
	}

	text := out.String()
	if !strings.HasSuffix(text, "\n") {
		text += "\n"
	}
	io.WriteString(stdout, text)
	return nil
}

// renderHTML treats the rendered message as Markdown chat text. Raw HTML
// in the message is not passed through.
func renderHTML(text string) (string, error) {
	md := goldmark.New(
		goldmark.WithRendererOptions(html.WithHardWraps()),
	)
	var buf bytes.Buffer
	if err := md.Convert([]byte(text), &buf); err != nil {
		return "", err
	}
	return buf.String(), nil
}

// checkFiles parses each file without evaluating it. Unknown macros are
// reported against the configured macros. With jsonOutput each error is
// written to stdout as one JSON object per line, its origin set to the file.
func checkFiles(files []string, cfg *config.Config, jsonOutput bool, stdout, stderr io.Writer) error {
	if len(files) == 0 {
		return usageError(errors.New("--check requires at least one file"))
	}

	m, err := loadMacros(cfg)
	if err != nil {
		return usageError(err)
	}

	hasErrors := false
	for _, filename := range files {
		content, err := os.ReadFile(filename)
		if err != nil {
			return usageError(fmt.Errorf("reading %s: %w", filename, err))
		}

		if _, err := roll.Parse(string(content), m); err != nil {
			hasErrors = true
			if !jsonOutput {
				printRollError(stderr, filename, string(content), err)
				continue
			}
			data, err := checkErrorJSON(filename, err)
			if err != nil {
				return usageError(fmt.Errorf("encoding error: %w", err))
			}
			fmt.Fprintf(stdout, "%s\n", data)
			continue
		}
		if !jsonOutput {
			fmt.Fprintf(stdout, "%s: ok\n", filename)
		}
	}

	if hasErrors {
		return rollFailed
	}
	return nil
}

func checkErrorJSON(filename string, err error) ([]byte, error) {
	var re *rerrors.RollError
	if !errors.As(err, &re) {
		re = &rerrors.RollError{Message: err.Error()}
	}
	if re.Origin == "" || re.Origin == rerrors.DefaultOrigin {
		re = re.WithOrigin(filename)
	}
	return re.ToJSON()
}

// printRollError prints a structured error with the offending source line
// when the error points into the message itself.
func printRollError(w io.Writer, filename, source string, err error) {
	var re *rerrors.RollError
	if !errors.As(err, &re) {
		fmt.Fprintf(w, "%s %v\n", errorColor.Sprint("error:"), err)
		return
	}

	pretty := re.PrettyString()
	header, body, _ := strings.Cut(pretty, "\n")
	if filename != "" && filename != "-" {
		header = filename + ": " + header
	}
	fmt.Fprintln(w, errorColor.Sprint(header))

	for _, line := range strings.Split(body, "\n") {
		if line == "" {
			continue
		}
		if strings.HasPrefix(line, "  hint: ") {
			line = "  " + hintColor.Sprint(strings.TrimPrefix(line, "  "))
		}
		fmt.Fprintln(w, line)
	}

	if re.Origin == "" || re.Origin == rerrors.DefaultOrigin {
		printSourceContext(w, source, re.Line, re.Column)
	}
}

// printSourceContext shows the source line with a caret under the column.
// Columns count runes; the caret is placed by display width.
func printSourceContext(w io.Writer, source string, lineNum, colNum int) {
	lines := strings.Split(source, "\n")
	if lineNum <= 0 || lineNum > len(lines) {
		return
	}

	sourceLine := strings.TrimRight(lines[lineNum-1], "\r")
	trimmedLine := strings.TrimLeft(sourceLine, " \t")
	trimCount := displayWidth(sourceLine[:len(sourceLine)-len(trimmedLine)])

	fmt.Fprintf(w, "    %s\n", trimmedLine)

	if colNum > 0 {
		visualCol := 0
		for i, r := range []rune(sourceLine) {
			if i >= colNum-1 {
				break
			}
			visualCol += runeWidth(r)
		}
		adjustedCol := max(visualCol-trimCount, 0)
		fmt.Fprintf(w, "    %s%s\n", strings.Repeat(" ", adjustedCol), caretColor.Sprint("^"))
	}
}

func displayWidth(s string) int {
	n := 0
	for _, r := range s {
		n += runeWidth(r)
	}
	return n
}

// runeWidth is the number of terminal cells r takes; tabs count as 8
func runeWidth(r rune) int {
	if r == '\t' {
		return 8
	}
	p := width.LookupRune(r)
	switch p.Kind() {
	case width.EastAsianWide, width.EastAsianFullwidth:
		return 2
	}
	return 1
}

// startREPL runs the interactive loop, reloading macro files as they
// change when macros.watch is set.
func startREPL(ctx context.Context, cfg *config.Config, opts *options, stdin io.Reader, stdout, stderr io.Writer) error {
	m, err := loadMacros(cfg)
	if err != nil {
		return usageError(err)
	}
	set := macros.NewSet(m)

	load := func() (roll.Macros, error) {
		return loadMacros(cfg)
	}

	var reload func() error
	if len(cfg.Macros.Files) > 0 || cfg.Macros.Database != "" {
		reload = func() error {
			m, err := load()
			if err != nil {
				return err
			}
			set.Replace(m)
			return nil
		}
	}

	if cfg.Macros.Watch && len(cfg.Macros.Files) > 0 {
		w, err := macros.NewWatcher(set, cfg.Macros.Files, load, stdout, stderr)
		if err != nil {
			return usageError(fmt.Errorf("creating macro watcher: %w", err))
		}
		defer w.Close()

		if err := w.Start(ctx); err != nil {
			return usageError(err)
		}
		reload = w.Reload
	}

	repl.Start(stdin, stdout, repl.Options{
		Version:     Version,
		Macros:      set,
		Reload:      reload,
		Base:        roll.Config{RollQueries: opts.queries, MaxDepth: cfg.Limits.MaxDepth, MaxDice: cfg.Limits.MaxDice},
		Seed:        cfg.Seed,
		Trace:       cfg.Output.Trace,
		HistoryFile: cfg.HistoryPath(),
		Prompt:      cfg.REPL.Prompt,
	})
	return nil
}
