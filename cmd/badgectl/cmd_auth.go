package main

import (
	"bufio"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/spf13/cobra"

	"github.com/Posologia-Edu/pbl-virtual-sub001/internal/infrastructure/auth"
)

// =============================================================================
// AUTH COMMANDS
// =============================================================================

func newTokenCmd() *cobra.Command {
	var (
		userID string
		ttl    time.Duration
	)

	cmd := &cobra.Command{
		Use:   "token",
		Short: "Mint a bearer token signed with JWT_SECRET",
		Long: `token prints a bearer token for the given user, signed with the
configured JWT_SECRET and JWT_ISSUER. Use it to call the API locally.`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			e, err := loadEnv(cmd)
			if err != nil {
				return err
			}
			defer e.log.Sync()

			tokens, err := auth.NewTokens(e.cfg.Auth.JWTSecret, e.cfg.Auth.JWTIssuer)
			if err != nil {
				return err
			}
			token, err := tokens.Issue(userID, ttl)
			if err != nil {
				return err
			}
			fmt.Fprintln(cmd.OutOrStdout(), token)
			return nil
		},
	}

	cmd.Flags().StringVar(&userID, "user", "", "user UUID placed in the subject claim (required)")
	cmd.Flags().DurationVar(&ttl, "ttl", auth.DefaultTTL, "token lifetime")
	_ = cmd.MarkFlagRequired("user")
	return cmd
}

func newHashKeyCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "hash-key [key]",
		Short: "Print the bcrypt hash of an administrator key for ADMIN_API_KEY_HASH",
		Long: `hash-key hashes the administrator key given as argument, or read from
the first line of stdin when no argument is given.`,
		Args: cobra.MaximumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			var key string
			if len(args) == 1 {
				key = args[0]
			} else {
				line, err := bufio.NewReader(cmd.InOrStdin()).ReadString('\n')
				if err != nil && line == "" {
					return errors.New("no key given")
				}
				key = strings.TrimRight(line, "\r\n")
			}
			if key == "" {
				return errors.New("key must not be empty")
			}

			hash, err := auth.HashAdminKey(key)
			if err != nil {
				return err
			}
			fmt.Fprintln(cmd.OutOrStdout(), hash)
			return nil
		},
	}
}
