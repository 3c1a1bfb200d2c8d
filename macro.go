package main

import (
	"encoding/json"
	"errors"
	"flag"
	"fmt"
	"io"
	"strings"

	"github.com/sambeau/roll/config"
	"github.com/sambeau/roll/macros"
	"github.com/sambeau/roll/pkg/roll/ast"
)

const macroUsage = `Usage: roll macro <command> [--db PATH] [--config PATH] [args]

Commands:
  ls [--json]          List stored macros
  get NAME             Print a macro body
  set NAME BODY...     Store a macro; BODY "-" reads it from stdin
  rm NAME              Delete a macro
  import FILE...       Store every macro from YAML files

The store is --db, or macros.database from the config file.

Examples:
  roll macro set --db macros.db melee "[[1d8+3]]"
  roll macro set "melee attack" "[[1d20+5]]"
  roll macro import party.yaml
  roll macro ls`

// macroCommand implements the 'roll macro' subcommands over the SQLite store
func macroCommand(args []string, stdin io.Reader, stdout, stderr io.Writer, getenv func(string) string) error {
	if len(args) == 0 || args[0] == "--help" || args[0] == "-h" {
		fmt.Fprintln(stderr, macroUsage)
		if len(args) == 0 {
			return usageError(errors.New("no macro command specified"))
		}
		return nil
	}
	sub := args[0]

	flags := flag.NewFlagSet("roll macro "+sub, flag.ContinueOnError)
	flags.SetOutput(stderr)
	flags.Usage = func() { fmt.Fprintln(stderr, macroUsage) }
	configPath := flags.String("config", "", "Path to config file")
	dbPath := flags.String("db", "", "SQLite macro store")
	jsonOutput := flags.Bool("json", false, "Print as JSON")
	if err := flags.Parse(args[1:]); err != nil {
		return &exitError{code: exitUsage}
	}
	rest := flags.Args()

	path := *dbPath
	if path == "" {
		cfg, err := config.Load(*configPath, getenv)
		if err != nil {
			return usageError(fmt.Errorf("loading config: %w", err))
		}
		path = cfg.Macros.Database
	}
	if path == "" {
		return usageError(errors.New("no macro store configured (use --db or macros.database)"))
	}

	var action func(*macros.Store) error
	switch sub {
	case "ls", "list":
		action = func(s *macros.Store) error { return listMacros(s, *jsonOutput, stdout) }

	case "get":
		if len(rest) != 1 {
			return usageError(errors.New("usage: roll macro get NAME"))
		}
		action = func(s *macros.Store) error {
			body, ok, err := s.Get(rest[0])
			if err != nil {
				return usageError(err)
			}
			if !ok {
				return &exitError{code: exitRoll, err: fmt.Errorf("macro not found: %s", rest[0])}
			}
			fmt.Fprintln(stdout, body)
			return nil
		}

	case "set":
		if len(rest) < 2 {
			return usageError(errors.New("usage: roll macro set NAME BODY..."))
		}
		name, body := rest[0], strings.Join(rest[1:], " ")
		if body == "-" {
			data, err := io.ReadAll(stdin)
			if err != nil {
				return usageError(fmt.Errorf("reading stdin: %w", err))
			}
			body = strings.TrimRight(string(data), "\r\n")
		}
		if err := macros.ValidateName(name); err != nil {
			return usageError(err)
		}
		action = func(s *macros.Store) error {
			if err := s.Set(name, body); err != nil {
				return usageError(err)
			}
			fmt.Fprintf(stdout, "Saved %s\n", macroRef(name))
			return nil
		}

	case "rm", "delete":
		if len(rest) != 1 {
			return usageError(errors.New("usage: roll macro rm NAME"))
		}
		action = func(s *macros.Store) error {
			if err := s.Delete(rest[0]); err != nil {
				return &exitError{code: exitRoll, err: err}
			}
			fmt.Fprintf(stdout, "Deleted %s\n", macroRef(rest[0]))
			return nil
		}

	case "import":
		if len(rest) == 0 {
			return usageError(errors.New("usage: roll macro import FILE..."))
		}
		m, err := macros.LoadFiles(rest...)
		if err != nil {
			return usageError(err)
		}
		action = func(s *macros.Store) error {
			n, err := s.Import(m)
			if err != nil {
				return usageError(err)
			}
			fmt.Fprintf(stdout, "Imported %d macros into %s\n", n, s.Path())
			return nil
		}

	default:
		fmt.Fprintln(stderr, macroUsage)
		return usageError(fmt.Errorf("unknown macro command: %s", sub))
	}

	store, err := macros.Open(path)
	if err != nil {
		return usageError(err)
	}
	defer store.Close()

	return action(store)
}

func listMacros(s *macros.Store, jsonOutput bool, stdout io.Writer) error {
	entries, err := s.List()
	if err != nil {
		return usageError(err)
	}

	if jsonOutput {
		if entries == nil {
			entries = []macros.Entry{}
		}
		data, err := json.MarshalIndent(entries, "", "  ")
		if err != nil {
			return usageError(fmt.Errorf("encoding macros: %w", err))
		}
		fmt.Fprintln(stdout, string(data))
		return nil
	}

	if len(entries) == 0 {
		fmt.Fprintln(stdout, "(no macros)")
		return nil
	}
	for _, e := range entries {
		fmt.Fprintf(stdout, "%s = %s\n", macroRef(e.Name), e.Body)
	}
	return nil
}

// macroRef writes a macro name the way it must be typed
func macroRef(name string) string {
	return (&ast.MacroReference{Name: name}).String()
}
