package main

import (
	"fmt"
	"sort"
	"strings"

	"github.com/spf13/cobra"

	"codecoach/pkg/config"
)

func newSecretsCmd(flags *globalFlags) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "secrets",
		Short: "Manage the encrypted provider credentials",
	}
	cmd.AddCommand(newSecretsSetCmd(flags))
	cmd.AddCommand(newSecretsListCmd(flags))
	return cmd
}

func newSecretsSetCmd(flags *globalFlags) *cobra.Command {
	return &cobra.Command{
		Use:   "set NAME",
		Short: "Store a secret, reading its value without echo",
		Long:  "Store a secret. Provider keys are " + strings.Join(config.ProviderKeyNames(), ", ") + ".",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := config.Load(flags.configPath)
			if err != nil {
				return err
			}
			password, err := readPassword("Secrets password: ")
			if err != nil {
				return err
			}
			if config.SecretsFileExists(cfg.DataDir) {
				existing, err := config.DecryptSecretsFile(cfg.DataDir, password)
				if err != nil {
					return fmt.Errorf("unlock secrets: %w", err)
				}
				config.SetDecryptedSecrets(existing)
			}
			value, err := readPassword(args[0] + ": ")
			if err != nil {
				return err
			}
			if err := config.SetSecret(args[0], value); err != nil {
				return err
			}
			if err := config.SaveSecretsToFile(cfg.DataDir, password); err != nil {
				return err
			}
			fmt.Fprintf(cmd.OutOrStdout(), "✅ Saved %s to %s\n", args[0], config.SecretsPath(cfg.DataDir))
			return nil
		},
	}
}

func newSecretsListCmd(flags *globalFlags) *cobra.Command {
	return &cobra.Command{
		Use:   "list",
		Short: "List stored secret names",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			cfg, err := config.Load(flags.configPath)
			if err != nil {
				return err
			}
			if !config.SecretsFileExists(cfg.DataDir) {
				fmt.Fprintln(cmd.OutOrStdout(), "no secrets stored")
				return nil
			}
			if err := unlockSecrets(cfg.DataDir); err != nil {
				return err
			}
			names := config.GetDecryptedSecretNames()
			sort.Strings(names)
			for _, name := range names {
				fmt.Fprintln(cmd.OutOrStdout(), name)
			}
			return nil
		},
	}
}
