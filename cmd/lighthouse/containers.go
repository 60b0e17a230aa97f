package main

import (
	"fmt"
	"io"
	"sort"
	"text/tabwriter"
	"time"

	"github.com/docker/go-units"
	"github.com/spf13/cobra"

	"github.com/melih/lighthouse/internal/core/domain"
)

func runPs(cmd *cobra.Command, args []string) error {
	ctx := commandContext(cmd)
	all, err := lh.Runner.ListContainers(ctx, nil)
	if err != nil {
		return err
	}

	wanted := map[string]bool{}
	for _, a := range args {
		wanted[a] = true
	}
	groups := map[string][]domain.Container{}
	for _, c := range all {
		service, ok := c.Labels[domain.LabelName]
		if !ok || (len(wanted) > 0 && !wanted[service]) {
			continue
		}
		groups[service] = append(groups[service], c)
	}
	services := make([]string, 0, len(groups))
	for s := range groups {
		services = append(services, s)
	}
	sort.Strings(services)

	w := tabwriter.NewWriter(cmd.OutOrStdout(), 0, 4, 2, ' ', 0)
	fmt.Fprintln(w, "SERVICE\tCONTAINER\tDEPLOYMENT\tIMAGE\tSTATUS\tCREATED")
	for _, s := range services {
		for _, c := range groups[s] {
			status := c.Status
			if c.Health != "" {
				status += " (" + c.Health + ")"
			}
			fmt.Fprintf(w, "%s\t%s\t%s\t%s\t%s\t%s ago\n",
				s, c.Name, c.Labels[domain.LabelID], c.Image, status,
				units.HumanDuration(time.Since(c.Created)))
		}
	}
	return w.Flush()
}

func runLogs(cmd *cobra.Command, args []string) error {
	ctx := commandContext(cmd)
	c, err := activeContainer(ctx, args[0])
	if err != nil {
		return err
	}
	rc, err := lh.Runner.ContainerLogs(ctx, c.ID, followLogs, tailLogs)
	if err != nil {
		return err
	}
	defer rc.Close()
	_, err = io.Copy(cmd.OutOrStdout(), rc)
	return err
}
