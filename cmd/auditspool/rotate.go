package main

import (
	"context"
	"fmt"

	"github.com/spf13/cobra"

	"github.com/guillermoBallester/auditspool/internal/core/service"
)

func newRotateCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "rotate",
		Short: "Ask every writer to rotate the audit log",
		Long: "Set the shared rotation signal. Each writer closes its current file and reopens on its " +
			"next event. Requests made while one is still pending collapse into it.",
		Args: cobra.NoArgs,
		RunE: runRotate,
	}
}

func runRotate(cmd *cobra.Command, _ []string) error {
	ctx := cmd.Context()
	a, err := setup(ctx, cmd)
	if err != nil {
		return err
	}
	defer a.shutdown(context.WithoutCancel(ctx))

	if err := a.requireSignalFile("rotate"); err != nil {
		return err
	}
	sig, closeSignal, err := a.openSignal()
	if err != nil {
		return err
	}
	defer func() { _ = closeSignal() }()

	admin := service.NewAdminService(a.cfg, sig, a.logger)
	if err := admin.RequestRotation(ctx); err != nil {
		return err
	}
	_, err = fmt.Fprintln(cmd.OutOrStdout(), "rotation requested")
	return err
}
