package main

import (
	"bufio"
	"fmt"
	"os"
	"strings"

	"github.com/spf13/cobra"
	"golang.org/x/term"

	"mchat/api"
)

var (
	flagPassword string
	stdin        = bufio.NewReader(os.Stdin)
)

var loginCmd = &cobra.Command{
	Use:   "login <username>",
	Short: "Log in and remember the session",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		password, err := readPassword("Password: ")
		if err != nil {
			return err
		}
		ctx, stop := signalContext()
		defer stop()

		session := env.session()
		defer session.Close()
		if err := session.Login(ctx, args[0], password); err != nil {
			return err
		}
		fmt.Printf("Logged in as %s\n", session.Me())
		return nil
	},
}

var signupCmd = &cobra.Command{
	Use:   "signup <username>",
	Short: "Create an account and log into it",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		password, err := readPassword("Password: ")
		if err != nil {
			return err
		}
		if err := api.ValidateSignup(args[0], password); err != nil {
			return err
		}
		repeat := password
		if flagPassword == "" {
			if repeat, err = readPassword("Repeat: "); err != nil {
				return err
			}
		}
		ctx, stop := signalContext()
		defer stop()

		session := env.session()
		defer session.Close()
		if err := session.Signup(ctx, args[0], password, repeat); err != nil {
			return err
		}
		fmt.Printf("Signed up as %s\n", session.Me())
		return nil
	},
}

var logoutCmd = &cobra.Command{
	Use:   "logout",
	Short: "End the session and forget it locally",
	Args:  cobra.NoArgs,
	RunE: func(cmd *cobra.Command, args []string) error {
		if err := env.restore(); err != nil {
			return err
		}
		ctx, stop := signalContext()
		defer stop()
		return env.session().Logout(ctx)
	},
}

var whoamiCmd = &cobra.Command{
	Use:   "whoami",
	Short: "Print the logged-in username",
	Args:  cobra.NoArgs,
	RunE: func(cmd *cobra.Command, args []string) error {
		if err := env.restore(); err != nil {
			return err
		}
		ctx, stop := signalContext()
		defer stop()
		name, err := env.client.User(ctx)
		if err != nil {
			return err
		}
		fmt.Println(name)
		return nil
	},
}

func init() {
	for _, cmd := range []*cobra.Command{loginCmd, signupCmd} {
		cmd.Flags().StringVar(&flagPassword, "password", "", "password (prompted for when empty)")
	}
	rootCmd.AddCommand(loginCmd, signupCmd, logoutCmd, whoamiCmd)
}

// readPassword returns --password if given, otherwise prompts without echo on
// a terminal or reads one line from piped input.
func readPassword(prompt string) (string, error) {
	if flagPassword != "" {
		return flagPassword, nil
	}
	fd := int(os.Stdin.Fd())
	if term.IsTerminal(fd) {
		fmt.Fprint(os.Stderr, prompt)
		b, err := term.ReadPassword(fd)
		fmt.Fprintln(os.Stderr)
		if err != nil {
			return "", err
		}
		return string(b), nil
	}
	line, err := stdin.ReadString('\n')
	if err != nil && line == "" {
		return "", fmt.Errorf("read password: %w", err)
	}
	return strings.TrimRight(line, "\r\n"), nil
}
