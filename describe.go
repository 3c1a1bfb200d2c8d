package main

import (
	"errors"
	"fmt"
	"io"
	"strings"

	"github.com/sambeau/roll/pkg/roll/help"
)

// describeCommand implements the 'roll describe <topic>' subcommand
func describeCommand(args []string, stdout, stderr io.Writer) error {
	jsonOutput := false
	var topic string

	for _, arg := range args {
		if arg == "--json" {
			jsonOutput = true
		} else if !strings.HasPrefix(arg, "-") {
			topic = arg
		}
	}

	if topic == "" {
		fmt.Fprintln(stderr, `Usage: roll describe [--json] <topic>

Topics:
  syntax             Inline rolls, command rolls, macros and queries
  dice               NdX terms and how they are shown
  operators          All operators, loosest binding first
  functions          All functions
  macros             #name and #{long name}
  queries            ?{prompt|default}
  errors             All error codes
  <function>         Help for a function (floor, round, ...)
  <code>             Help for an error code (PARSE-0004, ...)

Examples:
  roll describe dice
  roll describe round
  roll describe PARSE-0004
  roll describe --json operators`)
		return usageError(errors.New("no topic specified"))
	}

	result, err := help.DescribeTopic(topic)
	if err != nil {
		return usageError(err)
	}

	if jsonOutput {
		data, err := help.FormatJSON(result)
		if err != nil {
			return usageError(fmt.Errorf("formatting JSON: %w", err))
		}
		fmt.Fprintln(stdout, string(data))
		return nil
	}

	io.WriteString(stdout, help.FormatText(result, 80))
	return nil
}
