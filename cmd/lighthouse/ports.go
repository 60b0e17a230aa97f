package main

import (
	"fmt"
	"strconv"

	"github.com/spf13/cobra"

	"github.com/melih/lighthouse/internal/proxy"
)

func runPortsList(cmd *cobra.Command, _ []string) error {
	ports, err := lh.Reconciler.Ports(commandContext(cmd))
	if err != nil {
		return err
	}
	for _, p := range ports {
		fmt.Fprintln(cmd.OutOrStdout(), p)
	}
	return nil
}

func runPortsInsert(cmd *cobra.Command, args []string) error {
	return reconcilePorts(cmd, proxy.Insert, args)
}

func runPortsRemove(cmd *cobra.Command, args []string) error {
	return reconcilePorts(cmd, proxy.Remove, args)
}

func reconcilePorts(cmd *cobra.Command, op proxy.Op, args []string) error {
	diff, err := parsePorts(args)
	if err != nil {
		return err
	}
	ports, err := lh.Reconciler.Reconcile(commandContext(cmd), op, diff)
	if err != nil {
		return err
	}
	fmt.Fprintf(cmd.OutOrStdout(), "published ports: %v\n", ports)
	return nil
}

func parsePorts(args []string) ([]int, error) {
	ports := make([]int, 0, len(args))
	for _, a := range args {
		p, err := strconv.Atoi(a)
		if err != nil || p < 1 || p > 65535 {
			return nil, fmt.Errorf("invalid port %q", a)
		}
		ports = append(ports, p)
	}
	return ports, nil
}

func runProxyReload(cmd *cobra.Command, _ []string) error {
	if err := lh.Proxy.Reload(commandContext(cmd)); err != nil {
		return err
	}
	fmt.Fprintln(cmd.OutOrStdout(), "proxy reloaded")
	return nil
}
