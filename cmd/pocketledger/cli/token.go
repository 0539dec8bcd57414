package cli

import (
	"flag"
	"fmt"
	"io"
	"time"
)

// TokenIssuer signs bearer tokens for a subject.
type TokenIssuer interface {
	Issue(subject string, ttl time.Duration) (string, error)
}

// TokenCommand prints a bearer token for local development.
func TokenCommand(issuer TokenIssuer, args []string, out, errOut io.Writer) int {
	fs := flag.NewFlagSet("token", flag.ContinueOnError)
	fs.SetOutput(errOut)
	ttl := fs.Duration("ttl", 24*time.Hour, "token lifetime")
	if err := fs.Parse(args); err != nil {
		return 2
	}
	if fs.NArg() != 1 || fs.Arg(0) == "" {
		fmt.Fprintln(errOut, "usage: token [-ttl 24h] <owner>")
		return 2
	}
	token, err := issuer.Issue(fs.Arg(0), *ttl)
	if err != nil {
		fmt.Fprintln(errOut, err)
		return 1
	}
	fmt.Fprintln(out, token)
	return 0
}
