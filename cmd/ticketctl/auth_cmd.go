package main

import (
	"bufio"
	"errors"
	"fmt"
	"io"
	"os"
	"strings"

	"github.com/spf13/cobra"
	"golang.org/x/term"
)

func newLoginCommand(app *cliApp) *cobra.Command {
	var email, passwordFile string
	cmd := &cobra.Command{
		Use:   "login",
		Short: "Sign in and store the session",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			password, err := readPassword(cmd.InOrStdin(), cmd.ErrOrStderr(), passwordFile)
			if err != nil {
				return err
			}
			user, err := app.client.Login(cmd.Context(), email, password)
			if err != nil {
				return err
			}
			fmt.Fprintf(cmd.ErrOrStderr(), "Logged in as %s\n", user.Email)
			return render(cmd.OutOrStdout(), app.format, user)
		},
	}
	cmd.Flags().StringVar(&email, "email", "", "account email")
	cmd.Flags().StringVar(&passwordFile, "password-file", "", "read the password from a file instead of prompting")
	_ = cmd.MarkFlagRequired("email")
	return cmd
}

func newLogoutCommand(app *cliApp) *cobra.Command {
	return &cobra.Command{
		Use:   "logout",
		Short: "Revoke the session and forget it locally",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			if err := app.client.Logout(cmd.Context()); err != nil {
				fmt.Fprintf(cmd.ErrOrStderr(), "warning: server logout failed: %v\n", err)
			}
			fmt.Fprintln(cmd.ErrOrStderr(), "Logged out")
			return nil
		},
	}
}

func newWhoAmICommand(app *cliApp) *cobra.Command {
	return &cobra.Command{
		Use:   "whoami",
		Short: "Show the signed in account",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			user, err := app.client.Me(cmd.Context())
			if err != nil {
				return err
			}
			return render(cmd.OutOrStdout(), app.format, user)
		},
	}
}

// readPassword reads from passwordFile when set, prompts without echo on a
// terminal, and otherwise takes the first line of in.
func readPassword(in io.Reader, prompt io.Writer, passwordFile string) (string, error) {
	if passwordFile != "" {
		raw, err := os.ReadFile(passwordFile)
		if err != nil {
			return "", fmt.Errorf("read password file: %w", err)
		}
		return strings.TrimRight(string(raw), "\r\n"), nil
	}

	if f, ok := in.(*os.File); ok && term.IsTerminal(int(f.Fd())) {
		fmt.Fprint(prompt, "Password: ")
		raw, err := term.ReadPassword(int(f.Fd()))
		fmt.Fprintln(prompt)
		if err != nil {
			return "", fmt.Errorf("read password: %w", err)
		}
		return string(raw), nil
	}

	line, err := bufio.NewReader(in).ReadString('\n')
	if err != nil && !errors.Is(err, io.EOF) {
		return "", fmt.Errorf("read password: %w", err)
	}
	line = strings.TrimRight(line, "\r\n")
	if line == "" {
		return "", errors.New("no password given (use --password-file or pipe it on stdin)")
	}
	return line, nil
}
