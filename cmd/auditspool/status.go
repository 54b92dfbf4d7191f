package main

import (
	"context"
	"encoding/json"
	"errors"

	"github.com/spf13/cobra"

	"github.com/guillermoBallester/auditspool/internal/core/port"
	"github.com/guillermoBallester/auditspool/internal/core/service"
)

func newStatusCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "status",
		Short: "Show the current audit log file and next rotation",
		Args:  cobra.NoArgs,
		RunE:  runStatus,
	}
}

func runStatus(cmd *cobra.Command, _ []string) error {
	ctx := cmd.Context()
	a, err := setup(ctx, cmd)
	if err != nil {
		return err
	}
	defer a.shutdown(context.WithoutCancel(ctx))

	// Without a signal file there is nobody else to share a pending request
	// with, so only the file signal is worth inspecting.
	var sig port.RotationSignal = noSignal{}
	if a.cfg.SignalFile != "" {
		s, closeSignal, err := a.openSignal()
		if err != nil {
			return err
		}
		defer func() { _ = closeSignal() }()
		sig = s
	}

	st, err := service.NewAdminService(a.cfg, sig, a.logger).Status(ctx)
	if err != nil {
		return err
	}

	enc := json.NewEncoder(cmd.OutOrStdout())
	enc.SetIndent("", "  ")
	return enc.Encode(st)
}

// noSignal cannot be inspected, so status omits the pending flag.
type noSignal struct{}

func (noSignal) RequestForceRotation() error { return nil }

func (noSignal) Observe() (port.RotationObserver, error) {
	return nil, errors.New("no rotation signal configured")
}
