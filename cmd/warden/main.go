package main

import (
	"fmt"
	"io"
	"os"
)

const version = "0.1.0"

// Dispatcher
func main() {
	os.Exit(Run(os.Args, os.Stdout, os.Stderr))
}

// Run is the entrypoint, split out for testing.
func Run(args []string, stdout, stderr io.Writer) int {
	if len(args) < 2 {
		return runDemo(nil, stdout, stderr)
	}

	switch args[1] {
	case "demo":
		return runDemo(args[2:], stdout, stderr)
	case "verify":
		return runVerifyCmd(args[2:], stdout, stderr)
	case "policy":
		return runPolicyCmd(args[2:], stdout, stderr)
	case "version", "--version":
		_, _ = fmt.Fprintf(stdout, "warden %s\n", version)
		return 0
	case "help", "--help", "-h":
		printUsage(stdout)
		return 0
	default:
		_, _ = fmt.Fprintf(stderr, "unknown command: %s\n", args[1])
		printUsage(stderr)
		return 2
	}
}

func printUsage(w io.Writer) {
	_, _ = fmt.Fprintln(w, `Usage: warden <command> [flags]

Commands:
  demo      mint a token, compile a plan, and run it end to end
  verify    verify a session's receipt chain in a warden database
  policy    print the effective trust policy
  version   print the version`)
}
