// Command helm-actions resolves LLM-authored plans against an action
// catalog and compiles query parameters to SQL.
package main

import (
	"fmt"
	"io"
	"os"
)

// Dispatcher
func main() {
	os.Exit(Run(os.Args, os.Stdout, os.Stderr))
}

// Run is the entrypoint for testing. Exit codes: 0 success, 1 the input was
// rejected (plan errors or an invalid query), 2 usage or runtime error.
func Run(args []string, stdout, stderr io.Writer) int {
	if len(args) < 2 {
		printUsage(stderr)
		return 2
	}

	switch args[1] {
	case "resolve":
		return runResolveCmd(args[2:], stdout, stderr)
	case "compile":
		return runCompileCmd(args[2:], stdout, stderr)
	case "catalog":
		return runCatalogCmd(args[2:], stdout, stderr)
	case "schema":
		return runSchemaCmd(args[2:], stdout, stderr)
	case "server", "serve":
		return runServeCmd(args[2:], stdout, stderr)
	case "help", "--help", "-h":
		printUsage(stdout)
		return 0
	default:
		_, _ = fmt.Fprintf(stderr, "Unknown command: %s\n", args[1])
		printUsage(stderr)
		return 2
	}
}

func printUsage(w io.Writer) {
	_, _ = fmt.Fprintln(w, "Usage: helm-actions <command> [flags]")
	_, _ = fmt.Fprintln(w, "")
	_, _ = fmt.Fprintln(w, "Commands:")
	printCommand(w, "resolve", "Resolve a JSON plan against the action catalog")
	printCommand(w, "compile", "Compile a query expression to SQL")
	printCommand(w, "catalog", "Print or sync the action catalog")
	printCommand(w, "schema", "Introspect a database into a schema file")
	printCommand(w, "serve", "Run the HTTP API")
	printCommand(w, "help", "Show this help")
}

func printCommand(w io.Writer, name, desc string) {
	_, _ = fmt.Fprintf(w, "  %-10s %s\n", name, desc)
}
