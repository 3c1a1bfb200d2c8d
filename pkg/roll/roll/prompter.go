package roll

import (
	"bufio"
	"fmt"
	"io"
	"os"
	"strings"
	"sync"
)

// stdinPrompter is shared so bytes buffered by one Interpret call are not
// lost to the next.
var stdinPrompter = sync.OnceValue(newStdinPrompter)

func newStdinPrompter() QueryPrompter {
	return ReaderPrompter(os.Stdin, os.Stdout)
}

// StdinPrompter asks roll queries on stdout and reads answers from stdin.
// Every call returns the same prompter.
func StdinPrompter() QueryPrompter {
	return stdinPrompter()
}

// ReaderPrompter writes "{prompt} default({default}): " to w and reads one
// line from r. An empty line answers with the default; a read error counts
// as a cancelled prompt.
func ReaderPrompter(r io.Reader, w io.Writer) QueryPrompter {
	reader := bufio.NewReader(r)
	return func(prompt, def string) (string, bool) {
		fmt.Fprintf(w, "%s default(%s): ", prompt, def)

		line, err := reader.ReadString('\n')
		if err != nil && line == "" {
			return "", false
		}

		line = strings.TrimRight(line, "\r\n")
		if strings.TrimSpace(line) == "" {
			return def, true
		}
		return line, true
	}
}
