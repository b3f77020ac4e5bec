package main

import (
	"errors"
	"fmt"
	"time"

	"github.com/spf13/cobra"

	"cart-dialer/internal/auth"
	"cart-dialer/internal/config"
)

func newTokenCmd() *cobra.Command {
	var operator string
	cmd := &cobra.Command{
		Use:   "token",
		Short: "Issue an operator token for the HTTP trigger API",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			cfg, _, err := loadConfig(func(c *config.Config) error {
				if c.Auth.JWTSecret == "" {
					return &config.ConfigurationError{Problems: []error{errors.New("JWT_SECRET is required")}}
				}
				return nil
			})
			if err != nil {
				return err
			}
			m, err := auth.NewManager(cfg.Auth)
			if err != nil {
				return err
			}
			tok, err := m.Issue(time.Now(), operator)
			if err != nil {
				return err
			}
			fmt.Fprintln(cmd.OutOrStdout(), tok)
			return nil
		},
	}
	cmd.Flags().StringVar(&operator, "operator", "", "operator name recorded with every triggered call")
	_ = cmd.MarkFlagRequired("operator")
	return cmd
}
