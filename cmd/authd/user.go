package main

import (
	"bufio"
	"errors"
	"fmt"
	"io"
	"strings"

	"github.com/MrEthical07/gatekeeper/credential"
	"github.com/MrEthical07/gatekeeper/permission"
	"github.com/google/uuid"
	"github.com/spf13/cobra"
)

func newUserCommand() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "user",
		Short: "User directory management",
	}
	cmd.AddCommand(newUserAddCommand(), newUserRoleCommand())
	return cmd
}

func newUserAddCommand() *cobra.Command {
	var (
		identifier string
		roleName   string
	)

	cmd := &cobra.Command{
		Use:   "add",
		Short: "Create a user; the password is read from stdin",
		RunE: func(cmd *cobra.Command, args []string) error {
			role, err := permission.ParseRole(roleName)
			if err != nil {
				return err
			}
			password, err := readSecret(cmd.InOrStdin())
			if err != nil {
				return err
			}

			rt, err := openRuntime(cmd.Context(), modeDirectory)
			if err != nil {
				return err
			}
			defer rt.Close()

			hash, err := rt.engine.Hasher().Hash(password)
			if err != nil {
				return err
			}

			rec := credential.UserRecord{
				ID:           uuid.NewString(),
				Identifier:   identifier,
				Role:         role,
				PasswordHash: hash,
			}
			if err := rt.directory.CreateUser(cmd.Context(), rec); err != nil {
				return err
			}
			fmt.Fprintf(cmd.OutOrStdout(), "created %s (%s) as %s\n", rec.Identifier, rec.ID, role)
			return nil
		},
	}

	cmd.Flags().StringVarP(&identifier, "identifier", "i", "", "login identifier (email)")
	cmd.Flags().StringVarP(&roleName, "role", "r", "instructor", "admin, trainer or instructor")
	_ = cmd.MarkFlagRequired("identifier")
	return cmd
}

func newUserRoleCommand() *cobra.Command {
	var operator string

	cmd := &cobra.Command{
		Use:   "set-role <user-id> <role>",
		Short: "Change a user's role and revoke their sessions",
		Args:  cobra.ExactArgs(2),
		RunE: func(cmd *cobra.Command, args []string) error {
			role, err := permission.ParseRole(args[1])
			if err != nil {
				return err
			}

			rt, err := openRuntime(cmd.Context(), modeSessions)
			if err != nil {
				return err
			}
			defer rt.Close()

			n, err := rt.engine.AssignRole(cmd.Context(), operator, args[0], role)
			if err != nil {
				return err
			}
			fmt.Fprintf(cmd.OutOrStdout(), "role set to %s, %d sessions revoked\n", role, n)
			return nil
		},
	}

	cmd.Flags().StringVar(&operator, "operator", "authd-cli", "actor recorded in the audit trail")
	return cmd
}

func readSecret(r io.Reader) (string, error) {
	line, err := bufio.NewReader(r).ReadString('\n')
	if err != nil && !errors.Is(err, io.EOF) {
		return "", err
	}
	secret := strings.TrimRight(line, "\r\n")
	if secret == "" {
		return "", errors.New("empty password on stdin")
	}
	return secret, nil
}
