package main

import (
	"context"
	"fmt"

	"github.com/spf13/cobra"
)

func newProbeCmd(a *app) *cobra.Command {
	return &cobra.Command{
		Use:   "probe",
		Short: "Connect to the device and report its screen size",
		RunE: func(cmd *cobra.Command, args []string) error {
			controller, err := newController(a.cfg)
			if err != nil {
				return err
			}

			ctx := cmd.Context()
			res, err := controller.Connect(ctx)
			if err != nil {
				return err
			}
			defer controller.Disconnect(context.Background())

			width, height, err := controller.GetWindowSize(ctx)
			if err != nil {
				return fmt.Errorf("read screen size: %w", err)
			}

			out := cmd.OutOrStdout()
			fmt.Fprintf(out, "device: %s (%s)\n", controller.Address(), res.Status)
			fmt.Fprintf(out, "screen: %dx%d\n", width, height)
			return nil
		},
	}
}
