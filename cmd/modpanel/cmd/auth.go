package cmd

import (
	"bufio"
	"errors"
	"fmt"
	"io"
	"os"
	"strings"

	log "github.com/sirupsen/logrus"
	"github.com/spf13/cobra"
	"golang.org/x/term"

	"go-modpanel/internal/session"
)

// readPassword is a test seam for term.ReadPassword.
var readPassword = term.ReadPassword

// isTerminal is a test seam for term.IsTerminal.
var isTerminal = term.IsTerminal

var (
	loginUsername string
	loginPassword string
)

var loginCmd = &cobra.Command{
	Use:   "login [username]",
	Short: "Log in to the backend and store the credential",
	Long: `Exchanges a username and password for a token and stores it in the
state directory. The password is prompted for without echo when it is not
passed with --password.`,
	Args: cobra.MaximumNArgs(1),
	RunE: runLogin,
}

var logoutCmd = &cobra.Command{
	Use:   "logout",
	Short: "Discard the stored credential",
	RunE: func(cmd *cobra.Command, args []string) error {
		st, err := openState()
		if err != nil {
			return err
		}
		if err := session.NewGate(st.client, st.creds).Logout(); err != nil {
			return err
		}
		fmt.Fprintln(cmd.OutOrStdout(), "Logged out.")
		return nil
	},
}

var authCmd = &cobra.Command{
	Use:   "auth",
	Short: "Check whether the stored credential is still accepted",
	Long: `Asks the backend to validate the stored credential. A credential the
backend does not accept is discarded.`,
	RunE: func(cmd *cobra.Command, args []string) error {
		st, err := openState()
		if err != nil {
			return err
		}
		gate := session.NewGate(st.client, st.creds)
		if !gate.LoggedIn() {
			return errors.New("not logged in")
		}
		if !gate.Check(cmd.Context()) {
			return errors.New("stored credential was rejected; log in again")
		}
		fmt.Fprintln(cmd.OutOrStdout(), "Authenticated.")
		return nil
	},
}

func init() {
	rootCmd.AddCommand(loginCmd)
	rootCmd.AddCommand(logoutCmd)
	rootCmd.AddCommand(authCmd)

	loginCmd.Flags().StringVarP(&loginUsername, "username", "u", "", "Username (or pass it as the first argument)")
	loginCmd.Flags().StringVarP(&loginPassword, "password", "p", "", "Password (prompted for when omitted)")
}

func runLogin(cmd *cobra.Command, args []string) error {
	username := loginUsername
	if len(args) == 1 {
		username = args[0]
	}
	in := bufio.NewReader(cmd.InOrStdin())
	out := cmd.ErrOrStderr()

	var err error
	if username == "" {
		if username, err = promptLine(in, "Username: ", out); err != nil {
			return fmt.Errorf("failed to read username: %w", err)
		}
	}
	password := loginPassword
	if password == "" {
		if password, err = promptPassword(in, out); err != nil {
			return fmt.Errorf("failed to read password: %w", err)
		}
	}

	st, err := openState()
	if err != nil {
		return err
	}
	if err := session.NewGate(st.client, st.creds).Login(cmd.Context(), username, password); err != nil {
		return err
	}
	fmt.Fprintf(cmd.OutOrStdout(), "Logged in as %s.\n", username)
	return nil
}

// promptLine prints prompt to w and reads one line from r.
func promptLine(r *bufio.Reader, prompt string, w io.Writer) (string, error) {
	fmt.Fprint(w, prompt)
	line, err := r.ReadString('\n')
	if err != nil && !(errors.Is(err, io.EOF) && len(line) > 0) {
		return "", err
	}
	return strings.TrimSpace(line), nil
}

// promptPassword reads the password without echo from a terminal, or as a
// plain line when stdin is piped.
func promptPassword(r *bufio.Reader, w io.Writer) (string, error) {
	fd := int(os.Stdin.Fd())
	if !isTerminal(fd) {
		log.Debug("stdin is not a terminal, reading password as a line")
		return promptLine(r, "Password: ", w)
	}
	fmt.Fprint(w, "Password: ")
	pw, err := readPassword(fd)
	fmt.Fprintln(w)
	if err != nil {
		return "", err
	}
	return string(pw), nil
}
