package repl

import (
	"fmt"
	"io"
	"os"
	"strconv"
	"strings"

	"github.com/peterh/liner"

	"github.com/sambeau/roll/macros"
	"github.com/sambeau/roll/pkg/roll/ast"
	"github.com/sambeau/roll/pkg/roll/help"
	"github.com/sambeau/roll/pkg/roll/lexer"
	"github.com/sambeau/roll/pkg/roll/roll"
)

const PROMPT = "🎲 "
const CONTINUATION_PROMPT = ".. "

const ROLL_LOGO = `
█▀█ █▀█ █░░ █░░
█▀▄ █▄█ █▄▄ █▄▄ `

var commands = []string{":help", ":macros", ":reload", ":trace", ":seed", ":describe", "exit", "quit"}

// Options configures a REPL session
type Options struct {
	Version     string
	Macros      *macros.Set  // shared with the macro file watcher
	Reload      func() error // :reload; nil when there is nothing to reload
	Base        roll.Config  // limits and pre-answered queries for every message
	Seed        uint64       // non-zero starts with repeatable rolls
	Trace       bool
	HistoryFile string
	Prompt      string
}

// session is the state shared by the commands of one REPL run
type session struct {
	opts   Options
	out    io.Writer
	trace  bool
	random func() float64
	ask    roll.QueryPrompter
}

func newSession(opts Options, out io.Writer) *session {
	if opts.Macros == nil {
		opts.Macros = macros.NewSet(nil)
	}
	s := &session{opts: opts, out: out, trace: opts.Trace}
	if opts.Seed != 0 {
		s.random = roll.SeededRandom(opts.Seed)
	}
	return s
}

// Start starts the REPL with line editing, history, and tab completion
func Start(in io.Reader, out io.Writer, opts Options) {
	line := liner.NewLiner()
	defer line.Close()

	// Enable Ctrl+C to abort current line
	line.SetCtrlCAborts(true)

	s := newSession(opts, out)
	s.ask = func(prompt, def string) (string, bool) {
		answer, err := line.PromptWithSuggestion(prompt+": ", def, -1)
		if err != nil {
			return "", false
		}
		return answer, true
	}

	line.SetCompleter(func(input string) []string {
		return filterCompletions(input, s.completionWords())
	})

	historyFile := opts.HistoryFile
	if f, err := os.Open(historyFile); err == nil {
		line.ReadHistory(f)
		f.Close()
	}

	// Save history on exit
	defer func() {
		if f, err := os.Create(historyFile); err == nil {
			line.WriteHistory(f)
			f.Close()
		}
	}()

	basePrompt := opts.Prompt
	if basePrompt == "" {
		basePrompt = PROMPT
	}

	fmt.Fprintf(out, "%s", ROLL_LOGO)
	fmt.Fprintln(out, "v", opts.Version)
	fmt.Fprintln(out, "")
	fmt.Fprintln(out, "Type a message with [[rolls]], /r rolls and #macros")
	fmt.Fprintln(out, "Type 'exit' or Ctrl+D to quit, ':help' for commands")
	fmt.Fprintln(out, "")

	var inputBuffer strings.Builder

	for {
		currentPrompt := basePrompt
		if inputBuffer.Len() > 0 {
			currentPrompt = CONTINUATION_PROMPT
		}
		input, err := line.Prompt(currentPrompt)
		if err != nil {
			if err == liner.ErrPromptAborted {
				if inputBuffer.Len() > 0 {
					fmt.Fprintln(out, "^C (cleared)")
				} else {
					fmt.Fprintln(out, "^C")
				}
				inputBuffer.Reset()
				continue
			}
			if err == io.EOF {
				fmt.Fprintln(out, "\nGoodbye!")
				return
			}
			fmt.Fprintf(out, "Error reading input: %v\n", err)
			continue
		}

		if inputBuffer.Len() > 0 {
			inputBuffer.WriteString("\n")
		}
		inputBuffer.WriteString(input)

		full := inputBuffer.String()
		if needsMoreInput(full) {
			continue
		}
		inputBuffer.Reset()

		if strings.TrimSpace(full) != "" {
			line.AppendHistory(full)
		}
		if s.handleLine(full) {
			fmt.Fprintln(out, "Goodbye!")
			return
		}
	}
}

// handleLine runs one complete input and reports whether the REPL should
// exit.
func (s *session) handleLine(input string) bool {
	trimmed := strings.TrimSpace(input)
	switch {
	case trimmed == "":
		return false
	case trimmed == "exit" || trimmed == "quit":
		return true
	case strings.HasPrefix(trimmed, ":"):
		s.handleCommand(trimmed)
		return false
	}

	cfg := s.opts.Base
	cfg.Source = input
	cfg.Macros = s.opts.Macros.Snapshot()
	cfg.Random = s.random
	cfg.Prompter = s.ask
	if s.trace {
		cfg.Logger = roll.WriterLogger(s.out)
	}

	out := roll.Interpret(cfg)
	if out.Err != nil {
		printError(s.out, out)
		return false
	}
	fmt.Fprintln(s.out, out.String())
	return false
}

// handleCommand handles REPL meta-commands that start with ':'
func (s *session) handleCommand(cmd string) {
	name, arg, _ := strings.Cut(cmd, " ")
	arg = strings.TrimSpace(arg)

	switch name {
	case ":help", ":h", ":?":
		fmt.Fprintln(s.out, "REPL Commands:")
		fmt.Fprintln(s.out, "  :help, :h, :?      Show this help")
		fmt.Fprintln(s.out, "  :macros            List macros")
		fmt.Fprintln(s.out, "  :reload            Reload macro files and the macro store")
		fmt.Fprintln(s.out, "  :trace             Toggle tracing of macros, queries and dice")
		fmt.Fprintln(s.out, "  :seed [N]          Repeatable rolls from seed N; no N for random rolls")
		fmt.Fprintln(s.out, "  :describe <topic>  Show help for a topic (try: syntax, dice, macros)")
		fmt.Fprintln(s.out, "  exit, quit         Exit the REPL")

	case ":macros":
		s.printMacros()

	case ":reload":
		if s.opts.Reload == nil {
			fmt.Fprintln(s.out, "No macro sources to reload")
			return
		}
		if err := s.opts.Reload(); err != nil {
			fmt.Fprintf(s.out, "Reload failed: %v\n", err)
			return
		}
		fmt.Fprintf(s.out, "Loaded %d macros\n", s.opts.Macros.Len())

	case ":trace":
		s.trace = !s.trace
		if s.trace {
			fmt.Fprintln(s.out, "Trace ON")
		} else {
			fmt.Fprintln(s.out, "Trace OFF")
		}

	case ":seed":
		if arg == "" {
			s.random = nil
			fmt.Fprintln(s.out, "Rolls are random")
			return
		}
		seed, err := strconv.ParseUint(arg, 10, 64)
		if err != nil {
			fmt.Fprintf(s.out, "Invalid seed: %s (must be a non-negative integer)\n", arg)
			return
		}
		s.random = roll.SeededRandom(seed)
		fmt.Fprintf(s.out, "Rolls are repeatable from seed %d\n", seed)

	case ":describe":
		result, err := help.DescribeTopic(arg)
		if err != nil {
			fmt.Fprintln(s.out, err)
			return
		}
		io.WriteString(s.out, help.FormatText(result, 80))

	default:
		fmt.Fprintf(s.out, "Unknown command: %s (type :help for commands)\n", name)
	}
}

// printMacros lists macros with their bodies, long bodies truncated
func (s *session) printMacros() {
	snapshot := s.opts.Macros.Snapshot()
	if len(snapshot) == 0 {
		fmt.Fprintln(s.out, "(no macros)")
		return
	}

	for _, name := range snapshot.Names() {
		body := strings.ReplaceAll(snapshot[name], "\n", "⏎")
		if r := []rune(body); len(r) > 60 {
			body = string(r[:57]) + "..."
		}
		fmt.Fprintf(s.out, "  %s = %s\n", macroRef(name), body)
	}
}

func (s *session) completionWords() []string {
	words := append([]string{}, commands...)
	words = append(words, lexer.FunctionNames()...)
	for _, name := range s.opts.Macros.Names() {
		words = append(words, macroRef(name))
	}
	return words
}

// macroRef writes a macro name the way it must be typed
func macroRef(name string) string {
	return (&ast.MacroReference{Name: name}).String()
}

// filterCompletions returns completion suggestions for the last word
func filterCompletions(line string, words []string) []string {
	trimmed := strings.TrimSpace(line)
	if trimmed == "" {
		return nil
	}

	// Don't complete if line ends with whitespace
	if line[len(line)-1] == ' ' || line[len(line)-1] == '\t' {
		return nil
	}

	fields := strings.Fields(line)
	lastWord := fields[len(fields)-1]
	// complete inside [[ and (
	if i := strings.LastIndexAny(lastWord, "[(+-*/^"); i >= 0 && !strings.HasPrefix(lastWord, "#{") {
		lastWord = lastWord[i+1:]
	}
	if lastWord == "" {
		return nil
	}
	prefix := line[:len(line)-len(lastWord)]

	var matches []string
	for _, word := range words {
		if strings.HasPrefix(word, lastWord) {
			matches = append(matches, prefix+word)
		}
	}
	return matches
}

// needsMoreInput reports whether an inline roll or query is still open
func needsMoreInput(input string) bool {
	opens := strings.Count(input, "[[")
	closes := strings.Count(input, "]]")
	queries := strings.Count(input, "?{")
	braces := strings.Count(input, "}")
	return opens > closes || queries > braces
}

func printError(out io.Writer, o *roll.Output) {
	if re := o.RollError(); re != nil {
		io.WriteString(out, re.PrettyString())
		io.WriteString(out, "\n")
		return
	}
	fmt.Fprintf(out, "Error: %v\n", o.Err)
}
