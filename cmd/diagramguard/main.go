// Command diagramguard extracts, repairs, and previews Mermaid diagrams
// produced by language models.
package main

import (
	"errors"
	"flag"
	"fmt"
	"io"
	"os"
)

const usage = `usage: diagramguard <command> [flags] [file]

commands:
  serve      run the MCP stdio server and the stored-document rescanner
  sanitize   extract and repair diagrams from a markdown file (or stdin)
  validate   report per-diagram diagnostics for a file
  render     render the sanitized diagrams of a file
  install    write settings and download mermaid-ascii
  version    print the version
`

// errFindings makes the process exit 1 without printing anything more.
var errFindings = errors.New("diagnostics reported problems")

func main() {
	os.Exit(run(os.Args[1:], os.Stdin, os.Stdout, os.Stderr))
}

func run(args []string, stdin io.Reader, stdout, stderr io.Writer) int {
	if len(args) == 0 {
		fmt.Fprint(stderr, usage)
		return 2
	}

	cmd, rest := args[0], args[1:]
	var err error
	switch cmd {
	case "serve":
		err = runServe(rest, stderr)
	case "sanitize":
		err = runSanitize(rest, stdin, stdout, stderr)
	case "validate":
		err = runValidate(rest, stdin, stdout, stderr)
	case "render":
		err = runRender(rest, stdin, stdout, stderr)
	case "install":
		err = runInstall(rest, stdout, stderr)
	case "version", "-version", "--version":
		printVersion(stdout)
	case "help", "-h", "-help", "--help":
		fmt.Fprint(stdout, usage)
	default:
		fmt.Fprintf(stderr, "unknown command %q\n\n%s", cmd, usage)
		return 2
	}

	switch {
	case err == nil:
		return 0
	case errors.Is(err, flag.ErrHelp):
		return 0
	case errors.Is(err, errFindings):
		return 1
	default:
		fmt.Fprintf(stderr, "Error: %v\n", err)
		return 1
	}
}
