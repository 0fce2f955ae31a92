package server

import (
	"strings"

	"github.com/crustylabs/crustydb/internal/wire"
)

// commandSpec names one backslash command, how many leading arguments it
// takes before the remainder is folded into the last one, and its help
// text.
type commandSpec struct {
	name     string
	argCount int
	desc     string
}

// commandTable is the full backslash command surface. Grounded on
// original common-fairy/src/commands.rs's COMMANDS table: prefix
// matching must respect word boundaries (so "\r" does not swallow
// "\reset"), and any args beyond argCount are joined back onto the last
// argument rather than dropped.
var commandTable = []commandSpec{
	{"h", 0, "Show this help message"},
	{"r", 1, "Create a new database"},
	{"c", 1, "Connect to a database"},
	{"reset", 0, "Reset the session state"},
	{"shutdown", 0, "Shuts down the server"},
	{"close", 0, "Disconnect from the current database"},
	{"quiet", 0, "Sets the session to quiet mode (for benchmarking)"},
	{"l", 0, "Show the current databases"},
	{"t", 0, "A no-op command for testing"},
	{"dt", 0, "Show all tables in the current database"},
	{"dq", 0, "Show all registered queries"},
	{"register", 2, "Register a query for future use (name, query)"},
	{"runFull", 1, "Run a registered query, returning every row"},
	{"runPartial", 1, "Run a registered query, returning a bounded prefix of rows"},
	{"convert", 2, "Convert a SQL query to a serialized plan file (path, query)"},
	{"generate", 2, "Export a table's rows to a CSV file (source table, target path)"},
	{"i", 2, "Import a CSV file into a table (path, table name)"},
	{"commit", 0, "Commits the current transaction"},
}

// ParseLine turns one client-typed line into a wire.Command. A line not
// starting with '\' is treated as bare SQL. Returns ok=false if the line
// starts with '\' but names no known command.
func ParseLine(line string) (wire.Command, bool) {
	line = strings.TrimRight(line, "\r\n")
	if !strings.HasPrefix(line, "\\") {
		return wire.Command{Command: "sql", Args: []string{line}}, true
	}
	body := line[1:]
	for _, spec := range commandTable {
		if !strings.HasPrefix(body, spec.name) {
			continue
		}
		if len(body) > len(spec.name) && body[len(spec.name)] != ' ' {
			continue // shares a prefix with a longer command, e.g. "r" vs "reset"
		}
		if spec.argCount == 0 {
			return wire.Command{Command: spec.name}, true
		}
		rest := strings.TrimSpace(strings.TrimPrefix(body, spec.name))
		if rest == "" {
			return wire.Command{Command: spec.name, Args: nil}, true
		}
		parts := strings.SplitN(rest, " ", spec.argCount)
		return wire.Command{Command: spec.name, Args: parts}, true
	}
	return wire.Command{}, false
}

// GenHelp renders the command table as help text, mirroring original
// common-fairy/src/commands.rs's gen_help_string.
func GenHelp() string {
	var sb strings.Builder
	sb.WriteString("Commands:\n")
	for _, spec := range commandTable {
		argHint := ""
		switch spec.argCount {
		case 1:
			argHint = " <arg>"
		case 2:
			argHint = " <arg1> <arg2>"
		}
		sb.WriteString("\\")
		sb.WriteString(spec.name)
		sb.WriteString(argHint)
		sb.WriteString(": ")
		sb.WriteString(spec.desc)
		sb.WriteString("\n")
	}
	sb.WriteString("Anything not starting with '\\' is executed as SQL.\n")
	return sb.String()
}
