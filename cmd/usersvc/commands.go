package main

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"strconv"

	"github.com/rs/zerolog"
	"github.com/spf13/cobra"

	"github.com/gandaldf/sqlt/internal/config"
	"github.com/gandaldf/sqlt/internal/database"
	"github.com/gandaldf/sqlt/internal/logger"
	"github.com/gandaldf/sqlt/internal/user"
)

// app is what every subcommand runs against.
type app struct {
	log     zerolog.Logger
	db      *database.Database
	service *user.Service
}

func newRootCmd() *cobra.Command {
	return newRootCmdFor(&app{})
}

// newRootCmdFor builds the command tree around a. An app that already has a
// service skips opening the database.
func newRootCmdFor(a *app) *cobra.Command {
	var configPath string

	root := &cobra.Command{
		Use:           "usersvc",
		Short:         "Manage user accounts",
		SilenceUsage:  true,
		SilenceErrors: true,
		PersistentPreRunE: func(cmd *cobra.Command, _ []string) error {
			if a.service != nil {
				return nil
			}
			return a.open(cmd.Context(), configPath, cmd.ErrOrStderr())
		},
		PersistentPostRunE: func(*cobra.Command, []string) error {
			return a.close()
		},
	}
	root.PersistentFlags().StringVarP(&configPath, "config", "c", "", "path to a YAML config file")

	root.AddCommand(newGetCmd(a), newListCmd(a), newAddCmd(a), newChangePasswordCmd(a), newHistoryCmd(a))
	return root
}

func (a *app) open(ctx context.Context, path string, logOut io.Writer) error {
	cfg, err := config.Load(path)
	if err != nil {
		return err
	}
	a.log, err = logger.New(cfg.Log, logOut)
	if err != nil {
		return err
	}
	a.db, err = database.New(ctx, cfg, &a.log)
	if err != nil {
		return err
	}
	a.service = user.NewService(a.db.Template)
	return nil
}

func (a *app) close() error {
	if a.db == nil {
		return nil
	}
	return a.db.Close()
}

func parseID(s string) (int64, error) {
	id, err := strconv.ParseInt(s, 10, 64)
	if err != nil {
		return 0, fmt.Errorf("invalid id %q", s)
	}
	return id, nil
}

func printJSON(w io.Writer, v any) error {
	enc := json.NewEncoder(w)
	enc.SetIndent("", "  ")
	return enc.Encode(v)
}

func newGetCmd(a *app) *cobra.Command {
	return &cobra.Command{
		Use:   "get <id>",
		Short: "Print one user",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			id, err := parseID(args[0])
			if err != nil {
				return err
			}
			u, err := a.service.FindByID(cmd.Context(), id)
			if err != nil {
				return err
			}
			return printJSON(cmd.OutOrStdout(), u)
		},
	}
}

func newListCmd(a *app) *cobra.Command {
	return &cobra.Command{
		Use:   "list",
		Short: "Print every user",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			users, err := a.service.FindAll(cmd.Context())
			if err != nil {
				return err
			}
			return printJSON(cmd.OutOrStdout(), users)
		},
	}
}

func newAddCmd(a *app) *cobra.Command {
	var u user.User
	cmd := &cobra.Command{
		Use:   "add",
		Short: "Create a user",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			if err := a.service.Insert(cmd.Context(), &u); err != nil {
				return err
			}
			a.log.Info().Int64("id", u.ID).Str("account", u.Account).Msg("user created")
			return printJSON(cmd.OutOrStdout(), u)
		},
	}
	cmd.Flags().StringVar(&u.Account, "account", "", "account name")
	cmd.Flags().StringVar(&u.Password, "password", "", "password")
	cmd.Flags().StringVar(&u.Email, "email", "", "email address")
	_ = cmd.MarkFlagRequired("account")
	_ = cmd.MarkFlagRequired("password")
	return cmd
}

func newChangePasswordCmd(a *app) *cobra.Command {
	var password, by string
	cmd := &cobra.Command{
		Use:   "change-password <id>",
		Short: "Change a password and record the change",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			id, err := parseID(args[0])
			if err != nil {
				return err
			}
			if err := a.service.ChangePassword(cmd.Context(), id, password, by); err != nil {
				return err
			}
			a.log.Info().Int64("id", id).Str("by", by).Msg("password changed")
			return nil
		},
	}
	cmd.Flags().StringVar(&password, "password", "", "new password")
	cmd.Flags().StringVar(&by, "by", "usersvc", "who made the change")
	_ = cmd.MarkFlagRequired("password")
	return cmd
}

func newHistoryCmd(a *app) *cobra.Command {
	return &cobra.Command{
		Use:   "history <id>",
		Short: "Print the change history of a user",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			id, err := parseID(args[0])
			if err != nil {
				return err
			}
			hs, err := a.service.History(cmd.Context(), id)
			if err != nil {
				return err
			}
			return printJSON(cmd.OutOrStdout(), hs)
		},
	}
}
