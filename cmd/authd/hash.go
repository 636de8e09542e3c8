package main

import (
	"fmt"

	"github.com/MrEthical07/gatekeeper"
	"github.com/MrEthical07/gatekeeper/credential"
	"github.com/spf13/cobra"
	"github.com/spf13/viper"
)

func newHashCommand() *cobra.Command {
	return &cobra.Command{
		Use:   "hash",
		Short: "Print the argon2id hash of a password read from stdin",
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := gatekeeper.LoadConfig(viper.New())
			if err != nil {
				return err
			}
			hasher, err := credential.NewHasher(cfg.Password)
			if err != nil {
				return err
			}
			password, err := readSecret(cmd.InOrStdin())
			if err != nil {
				return err
			}
			hash, err := hasher.Hash(password)
			if err != nil {
				return err
			}
			fmt.Fprintln(cmd.OutOrStdout(), hash)
			return nil
		},
	}
}
