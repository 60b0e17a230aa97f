package main

import (
	"fmt"
	"sort"

	"github.com/spf13/cobra"

	"github.com/melih/lighthouse/internal/core/domain"
)

func runSecretsList(cmd *cobra.Command, _ []string) error {
	settings, err := lh.Store.Load(commandContext(cmd))
	if err != nil {
		return err
	}
	secrets := settings.Secrets
	if secretService != "" {
		secrets = settings.ServiceSecrets(secretService)
	}

	names := make([]string, 0, len(secrets))
	for name := range secrets {
		names = append(names, name)
	}
	sort.Strings(names)
	for _, name := range names {
		if showSecrets {
			fmt.Fprintf(cmd.OutOrStdout(), "%s=%s\n", name, secrets[name])
			continue
		}
		fmt.Fprintln(cmd.OutOrStdout(), name)
	}
	return nil
}

func runSecretsSet(cmd *cobra.Command, args []string) error {
	name, value := args[0], args[1]
	_, err := lh.Store.Update(commandContext(cmd), func(s *domain.Settings) error {
		if secretService != "" {
			s.SetServiceSecret(secretService, name, value)
			return nil
		}
		s.Secrets[name] = value
		return nil
	})
	return err
}

func runSecretsRemove(cmd *cobra.Command, args []string) error {
	_, err := lh.Store.Update(commandContext(cmd), func(s *domain.Settings) error {
		for _, name := range args {
			if secretService != "" {
				s.DeleteServiceSecret(secretService, name)
				continue
			}
			delete(s.Secrets, name)
		}
		return nil
	})
	return err
}
