package main

import (
	"context"
	"os"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"

	"github.com/melih/lighthouse/internal/app"
	"github.com/melih/lighthouse/internal/config"
)

var (
	// set by the root command before any subcommand runs
	lh *app.App

	dryRun        bool
	secretService string
	showSecrets   bool
	followLogs    bool
	tailLogs      string

	rootCmd = &cobra.Command{
		Use:   "lighthouse",
		Short: "Deploy containerized services to a single Docker host",
		Long: `Lighthouse builds services from source, starts them behind a health gate
and swaps them in place of the running version with zero downtime. HTTP and raw
TCP/UDP traffic reaches them through a shared Traefik proxy.

Configuration is read from LIGHTHOUSE_* environment variables.`,
		SilenceUsage:       true,
		SilenceErrors:      true,
		PersistentPreRunE:  setup,
		PersistentPostRunE: teardown,
	}
	deployCmd = &cobra.Command{
		Use:   "deploy [manifest] [service...]",
		Short: "Deploy the services of a manifest",
		Long:  `Deploys every service declared in the manifest, or only the named ones. A failed service does not stop the others.`,
		Args:  cobra.MinimumNArgs(1),
		RunE:  runDeploy,
	}
	portsCmd = &cobra.Command{
		Use:   "ports",
		Short: "Manage the raw TCP/UDP ports published by the proxy",
	}
	portsListCmd = &cobra.Command{
		Use:   "list",
		Short: "List published ports",
		Args:  cobra.NoArgs,
		RunE:  runPortsList,
	}
	portsInsertCmd = &cobra.Command{
		Use:   "insert [port...]",
		Short: "Publish ports and reload the proxy",
		Args:  cobra.MinimumNArgs(1),
		RunE:  runPortsInsert,
	}
	portsRemoveCmd = &cobra.Command{
		Use:   "remove [port...]",
		Short: "Unpublish ports and reload the proxy",
		Args:  cobra.MinimumNArgs(1),
		RunE:  runPortsRemove,
	}
	proxyCmd = &cobra.Command{
		Use:   "proxy",
		Short: "Manage the shared reverse proxy",
	}
	proxyReloadCmd = &cobra.Command{
		Use:   "reload",
		Short: "Recreate the proxy container from the stored settings",
		Args:  cobra.NoArgs,
		RunE:  runProxyReload,
	}
	secretsCmd = &cobra.Command{
		Use:   "secrets",
		Short: "Manage secrets referenced by @name placeholders",
	}
	secretsListCmd = &cobra.Command{
		Use:   "list",
		Short: "List secret names",
		Args:  cobra.NoArgs,
		RunE:  runSecretsList,
	}
	secretsSetCmd = &cobra.Command{
		Use:   "set [name] [value]",
		Short: "Store a secret",
		Args:  cobra.ExactArgs(2),
		RunE:  runSecretsSet,
	}
	secretsRemoveCmd = &cobra.Command{
		Use:   "remove [name...]",
		Short: "Delete secrets",
		Args:  cobra.MinimumNArgs(1),
		RunE:  runSecretsRemove,
	}
	psCmd = &cobra.Command{
		Use:   "ps [service...]",
		Short: "List service containers grouped by service",
		RunE:  runPs,
	}
	servicesCmd = &cobra.Command{
		Use:   "services",
		Short: "Manage the containers of deployed services",
	}
	servicesStartCmd = &cobra.Command{
		Use:   "start [service...]",
		Short: "Start the active container of services",
		Args:  cobra.MinimumNArgs(1),
		RunE:  runServicesStart,
	}
	servicesStopCmd = &cobra.Command{
		Use:   "stop [service...]",
		Short: "Stop the active container of services",
		Args:  cobra.MinimumNArgs(1),
		RunE:  runServicesStop,
	}
	servicesRemoveCmd = &cobra.Command{
		Use:   "remove [service...]",
		Short: "Remove every container of services",
		Args:  cobra.MinimumNArgs(1),
		RunE:  runServicesRemove,
	}
	servicesPruneCmd = &cobra.Command{
		Use:   "prune [service...]",
		Short: "Remove containers left behind by earlier deployments",
		Long:  `Removes every container of the named services, or of all services, that is not the active one.`,
		RunE:  runServicesPrune,
	}
	logsCmd = &cobra.Command{
		Use:   "logs [service]",
		Short: "Print the logs of a service's active container",
		Args:  cobra.ExactArgs(1),
		RunE:  runLogs,
	}
	versionCmd = &cobra.Command{
		Use:                "version",
		Short:              "Print version information",
		Args:               cobra.NoArgs,
		PersistentPreRunE:  func(*cobra.Command, []string) error { return nil },
		PersistentPostRunE: func(*cobra.Command, []string) error { return nil },
		Run:                runVersion,
	}
)

func init() {
	rootCmd.PersistentFlags().BoolVar(&dryRun, "dry-run", false, "Run against an in-memory engine; nothing is deployed or persisted")

	rootCmd.AddCommand(deployCmd)

	rootCmd.AddCommand(portsCmd)
	portsCmd.AddCommand(portsListCmd)
	portsCmd.AddCommand(portsInsertCmd)
	portsCmd.AddCommand(portsRemoveCmd)

	rootCmd.AddCommand(proxyCmd)
	proxyCmd.AddCommand(proxyReloadCmd)

	rootCmd.AddCommand(secretsCmd)
	secretsCmd.PersistentFlags().StringVar(&secretService, "service", "", "Scope the secret to one service instead of all")
	secretsCmd.AddCommand(secretsListCmd)
	secretsListCmd.Flags().BoolVar(&showSecrets, "show", false, "Print values, not only names")
	secretsCmd.AddCommand(secretsSetCmd)
	secretsCmd.AddCommand(secretsRemoveCmd)

	rootCmd.AddCommand(servicesCmd)
	servicesCmd.AddCommand(servicesStartCmd)
	servicesCmd.AddCommand(servicesStopCmd)
	servicesCmd.AddCommand(servicesRemoveCmd)
	servicesCmd.AddCommand(servicesPruneCmd)

	rootCmd.AddCommand(psCmd)
	rootCmd.AddCommand(logsCmd)
	logsCmd.Flags().BoolVarP(&followLogs, "follow", "f", false, "Follow log output")
	logsCmd.Flags().StringVar(&tailLogs, "tail", "all", "Number of lines to show from the end of the logs")

	rootCmd.AddCommand(versionCmd)
}

func setup(cmd *cobra.Command, _ []string) error {
	cfg, err := config.Load()
	if err != nil {
		return err
	}
	if dryRun {
		cfg.Engine = "memory"
	}
	a, err := app.New(cfg, os.Stderr)
	if err != nil {
		return err
	}
	lh = a

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	cobra.OnFinalize(stop)
	cmd.SetContext(ctx)
	return nil
}

func teardown(*cobra.Command, []string) error {
	if lh == nil {
		return nil
	}
	err := lh.Close()
	lh = nil
	return err
}

func commandContext(cmd *cobra.Command) context.Context {
	if ctx := cmd.Context(); ctx != nil {
		return ctx
	}
	return context.Background()
}
