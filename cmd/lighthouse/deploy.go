package main

import (
	"fmt"
	"time"

	"github.com/spf13/cobra"

	"github.com/melih/lighthouse/internal/events"
	"github.com/melih/lighthouse/internal/manifest"
)

func runDeploy(cmd *cobra.Command, args []string) error {
	specs, err := manifest.Load(args[0])
	if err != nil {
		return err
	}
	if err := lh.Orchestrator.Services().Register(specs...); err != nil {
		return err
	}

	progress := newTransferProgress(cmd.ErrOrStderr(), lh.Log)
	lh.Bus.Subscribe(progress.Handle, events.ImageTransferProgress, events.DeployAfterBuild)
	lh.Bus.Subscribe(func(e events.Event) {
		switch e.Kind {
		case events.DeploySuccessfully:
			fmt.Fprintf(cmd.OutOrStdout(), "✔ %s deployed in %s\n", e.Service, e.Elapsed.Round(100*time.Millisecond))
		case events.DeployFailure:
			fmt.Fprintf(cmd.OutOrStdout(), "✘ %s failed after %s: %v\n", e.Service, e.Elapsed.Round(100*time.Millisecond), e.Err)
		}
	}, events.DeploySuccessfully, events.DeployFailure)

	return lh.Orchestrator.ExecuteAll(commandContext(cmd), args[1:]...)
}
