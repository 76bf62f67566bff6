package main

import (
	"fmt"

	"github.com/spf13/cobra"
	"github.com/spf13/pflag"
	"go.uber.org/zap"
	"hostpanel/internal/auth"
	"hostpanel/internal/config"
	"hostpanel/internal/service"
	"hostpanel/internal/store"
)

func newMigrateCmd(flags *pflag.FlagSet) *cobra.Command {
	return &cobra.Command{
		Use:   "migrate",
		Short: "Create or update the database schema",
		RunE: func(cmd *cobra.Command, _ []string) error {
			cfg, err := config.Load(flags)
			if err != nil {
				return err
			}
			st, err := store.NewWithOptions(store.Options{Path: cfg.DatabasePath})
			if err != nil {
				return err
			}
			defer func() { _ = st.Close() }()
			fmt.Fprintf(cmd.OutOrStdout(), "database %s is up to date\n", cfg.DatabasePath)
			return nil
		},
	}
}

func newUserCmd(flags *pflag.FlagSet) *cobra.Command {
	userCmd := &cobra.Command{
		Use:   "user",
		Short: "Manage panel accounts",
	}

	var in service.CreateUserInput
	create := &cobra.Command{
		Use:   "create",
		Short: "Create an account without going through the API",
		RunE: func(cmd *cobra.Command, _ []string) error {
			cfg, err := config.Load(flags)
			if err != nil {
				return err
			}
			st, err := store.NewWithOptions(store.Options{Path: cfg.DatabasePath})
			if err != nil {
				return err
			}
			defer func() { _ = st.Close() }()

			svc := service.New(service.Deps{
				Store:  st,
				Tokens: auth.TokenConfig{Secret: cfg.JWTSecret, Expiry: cfg.TokenExpiry, Issuer: "hostpanel"},
				Logger: zap.NewNop().Sugar(),
			})
			u, err := svc.Bootstrap(cmd.Context(), in)
			if err != nil {
				return err
			}
			fmt.Fprintf(cmd.OutOrStdout(), "created user %d (%s)\n", u.ID, u.Email)
			return nil
		},
	}
	create.Flags().StringVar(&in.Name, "name", "", "display name")
	create.Flags().StringVar(&in.Email, "email", "", "login email")
	create.Flags().StringVar(&in.Password, "password", "", "initial password")
	create.Flags().BoolVar(&in.Admin, "admin", false, "grant administrator rights")
	create.Flags().BoolVar(&in.Superuser, "superuser", false, "grant superuser rights")
	_ = create.MarkFlagRequired("name")
	_ = create.MarkFlagRequired("email")
	_ = create.MarkFlagRequired("password")

	userCmd.AddCommand(create)
	return userCmd
}
