package main

import (
	"context"
	"errors"
	"fmt"
	"sort"

	"github.com/spf13/cobra"

	"github.com/melih/lighthouse/internal/core/domain"
	"github.com/melih/lighthouse/internal/core/ports"
)

func serviceContainers(ctx context.Context, service string) ([]domain.Container, error) {
	return lh.Runner.ListContainers(ctx, map[string]string{domain.LabelName: service})
}

// activeContainer returns the container serving service: the one labelled
// with the service and named after it.
func activeContainer(ctx context.Context, service string) (*domain.Container, error) {
	containers, err := serviceContainers(ctx, service)
	if err != nil {
		return nil, err
	}
	for _, c := range containers {
		if c.Name == service {
			return &c, nil
		}
	}
	return nil, fmt.Errorf("service %s has no active container: %w", service, ports.ErrNotFound)
}

// eachService runs fn for every service, continuing past failures.
func eachService(services []string, fn func(service string) error) error {
	var errs []error
	for _, s := range services {
		if err := fn(s); err != nil {
			errs = append(errs, err)
		}
	}
	return errors.Join(errs...)
}

func runServicesStart(cmd *cobra.Command, args []string) error {
	ctx := commandContext(cmd)
	return eachService(args, func(service string) error {
		c, err := activeContainer(ctx, service)
		if err != nil {
			return err
		}
		if err := lh.Runner.StartContainer(ctx, c.ID); err != nil {
			return err
		}
		fmt.Fprintf(cmd.OutOrStdout(), "started %s\n", service)
		return nil
	})
}

func runServicesStop(cmd *cobra.Command, args []string) error {
	ctx := commandContext(cmd)
	return eachService(args, func(service string) error {
		c, err := activeContainer(ctx, service)
		if err != nil {
			return err
		}
		if err := lh.Runner.StopContainer(ctx, c.ID); err != nil {
			return err
		}
		fmt.Fprintf(cmd.OutOrStdout(), "stopped %s\n", service)
		return nil
	})
}

func runServicesRemove(cmd *cobra.Command, args []string) error {
	ctx := commandContext(cmd)
	return eachService(args, func(service string) error {
		containers, err := serviceContainers(ctx, service)
		if err != nil {
			return err
		}
		if len(containers) == 0 {
			return fmt.Errorf("service %s has no containers: %w", service, ports.ErrNotFound)
		}
		for _, c := range containers {
			if err := lh.Runner.RemoveContainer(ctx, c.ID); err != nil && !errors.Is(err, ports.ErrNotFound) {
				return err
			}
		}
		fmt.Fprintf(cmd.OutOrStdout(), "removed %s (%d containers)\n", service, len(containers))
		return nil
	})
}

func runServicesPrune(cmd *cobra.Command, args []string) error {
	ctx := commandContext(cmd)
	services := args
	if len(services) == 0 {
		all, err := lh.Runner.ListContainers(ctx, nil)
		if err != nil {
			return err
		}
		seen := map[string]bool{}
		for _, c := range all {
			if s, ok := c.Labels[domain.LabelName]; ok && !seen[s] {
				seen[s] = true
				services = append(services, s)
			}
		}
		sort.Strings(services)
	}
	return eachService(services, func(service string) error {
		if err := lh.Gate.PruneInconsistent(ctx, service, ""); err != nil {
			return fmt.Errorf("prune service %s failure: %w", service, err)
		}
		fmt.Fprintf(cmd.OutOrStdout(), "pruned %s\n", service)
		return nil
	})
}
