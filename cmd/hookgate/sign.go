package main

import (
	"flag"
	"fmt"
	"io"
	"os"

	"github.com/mattjoyce/hookgate/internal/signature"
)

func printSignHelp() {
	fmt.Print(`Usage: hookgate sign (--secret S | --secret-env VAR) [FILE]

Prints the X-Hub-Signature-256 header value for the body in FILE, or stdin
when FILE is omitted or "-". The body is signed byte for byte.

Example:
  hookgate sign --secret-env GITHUB_WEBHOOK_SECRET payload.json
`)
}

func runSign(args []string) int {
	fs := flag.NewFlagSet("sign", flag.ContinueOnError)
	secretFlag := fs.String("secret", "", "Shared webhook secret")
	secretEnv := fs.String("secret-env", "", "Environment variable holding the shared secret")
	if err := fs.Parse(args); err != nil {
		fmt.Fprintf(os.Stderr, "Flag error: %v\n", err)
		return 1
	}
	if fs.NArg() > 1 {
		fmt.Fprintln(os.Stderr, "Usage: hookgate sign (--secret S | --secret-env VAR) [FILE]")
		return 1
	}

	secret := *secretFlag
	if *secretEnv != "" {
		secret = os.Getenv(*secretEnv)
		if secret == "" {
			fmt.Fprintf(os.Stderr, "Environment variable %s is empty or unset\n", *secretEnv)
			return 1
		}
	}
	if secret == "" {
		fmt.Fprintln(os.Stderr, "A secret is required (--secret or --secret-env)")
		return 1
	}

	body, err := readBody(fs.Arg(0))
	if err != nil {
		fmt.Fprintf(os.Stderr, "Failed to read body: %v\n", err)
		return 1
	}

	fmt.Println(signature.Sign([]byte(secret), body))
	return 0
}

func readBody(path string) ([]byte, error) {
	if path == "" || path == "-" {
		return io.ReadAll(os.Stdin)
	}
	return os.ReadFile(path)
}
