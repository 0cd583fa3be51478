package main

import (
	"bufio"
	"errors"
	"fmt"
	"io"
	"os"
	"strings"

	"github.com/google/uuid"
	"github.com/spf13/cobra"

	"pnlcal/internal/auth"
)

type options struct {
	id            string
	email         string
	name          string
	passwordStdin bool
	usersFile     string
}

func newRootCmd(stdin io.Reader, stdout io.Writer) *cobra.Command {
	opts := &options{}
	cmd := &cobra.Command{
		Use:   "pnlcal-useradd",
		Short: "Create a users-file entry with a bcrypt password hash",
		Long: "Prints a YAML stanza for the users file. The password is read from\n" +
			"PNLCAL_PASSWORD or, with --password-stdin, from the first line of stdin.",
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			return run(opts, stdin, stdout)
		},
		SilenceUsage: true,
	}

	f := cmd.Flags()
	f.StringVar(&opts.id, "id", "", "owner id (default: random UUID)")
	f.StringVar(&opts.email, "email", "", "sign-in email (required)")
	f.StringVar(&opts.name, "name", "", "display name")
	f.BoolVar(&opts.passwordStdin, "password-stdin", false, "read the password from stdin")
	f.StringVar(&opts.usersFile, "users-file", "", "append to this users file and check that it still loads")
	_ = cmd.MarkFlagRequired("email")

	return cmd
}

func run(opts *options, stdin io.Reader, stdout io.Writer) error {
	password := os.Getenv("PNLCAL_PASSWORD")
	if opts.passwordStdin {
		line, err := bufio.NewReader(stdin).ReadString('\n')
		if err != nil && !errors.Is(err, io.EOF) {
			return fmt.Errorf("read password: %w", err)
		}
		password = strings.TrimRight(line, "\r\n")
	}
	hash, err := auth.HashPassword(password)
	if err != nil {
		return err
	}

	id := opts.id
	if id == "" {
		id = uuid.NewString()
	}
	stanza, err := auth.Stanza(auth.User{ID: id, Email: strings.TrimSpace(opts.email), Name: opts.name}, hash)
	if err != nil {
		return fmt.Errorf("render stanza: %w", err)
	}

	if opts.usersFile == "" {
		_, err = stdout.Write(stanza)
		return err
	}
	return appendUser(opts.usersFile, stanza, stdout)
}

// appendUser adds the stanza under the users key and verifies the result
// before replacing the file.
func appendUser(path string, stanza []byte, stdout io.Writer) error {
	existing, err := os.ReadFile(path)
	if err != nil && !errors.Is(err, os.ErrNotExist) {
		return fmt.Errorf("read users file: %w", err)
	}
	doc := string(existing)
	if strings.TrimSpace(doc) == "" {
		doc = "users:\n"
	} else if !strings.HasSuffix(doc, "\n") {
		doc += "\n"
	}
	for _, line := range strings.SplitAfter(strings.TrimRight(string(stanza), "\n"), "\n") {
		doc += "  " + strings.TrimRight(line, "\n") + "\n"
	}

	dir, err := auth.ParseDirectory([]byte(doc))
	if err != nil {
		return err
	}
	if err := os.WriteFile(path, []byte(doc), 0o600); err != nil {
		return fmt.Errorf("write users file: %w", err)
	}
	_, err = fmt.Fprintf(stdout, "%s now has %d users\n", path, dir.Len())
	return err
}

func main() {
	if err := newRootCmd(os.Stdin, os.Stdout).Execute(); err != nil {
		os.Exit(1)
	}
}
