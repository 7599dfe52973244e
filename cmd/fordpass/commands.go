package main

import (
	"context"
	"fmt"

	"github.com/spf13/cobra"

	"github.com/langchou/fordpass/internal/api/fordpass"
	"github.com/langchou/fordpass/internal/service"
)

func (c *cli) newStatusCommand() *cobra.Command {
	return &cobra.Command{
		Use:   "status",
		Short: "Print the latest vehicle status",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			status, err := c.vehicle.Status(cmd.Context())
			if err != nil {
				return err
			}
			return printJSON(cmd.OutOrStdout(), status)
		},
	}
}

func (c *cli) newRefreshCommand() *cobra.Command {
	var vin string

	cmd := &cobra.Command{
		Use:   "refresh",
		Short: "Ask the vehicle to report fresh status",
		Long: `Ask the vehicle to push a fresh status report to the FordPass servers.

Examples:
  # Refresh the configured vehicle
  fordpass refresh

  # Refresh another vehicle on the same account
  fordpass refresh --vin WF0XXXGCDX1234567`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			code, err := c.vehicle.RequestUpdate(cmd.Context(), vin)
			if err != nil {
				return err
			}
			fmt.Fprintf(cmd.OutOrStdout(), "status: %d\n", code)
			return nil
		},
	}

	cmd.Flags().StringVar(&vin, "vin", "", "VIN to refresh (defaults to FORDPASS_VIN)")

	return cmd
}

func (c *cli) newCommandCommand(use, short string, run func(*service.VehicleService, context.Context) (*service.CommandResult, error)) *cobra.Command {
	return &cobra.Command{
		Use:   use,
		Short: short,
		Long:  short + ".\n\nWaits until the vehicle reports the final outcome. Exits non-zero if the command did not succeed.",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			result, err := run(c.vehicle, cmd.Context())
			if err != nil {
				return err
			}
			if err := printJSON(cmd.OutOrStdout(), result); err != nil {
				return err
			}
			if !result.Success {
				return fmt.Errorf("%s did not succeed", result.Command)
			}
			return nil
		},
	}
}

func (c *cli) newGuardCommand() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "guard",
		Short: "Guard mode commands (experimental)",
	}

	cmd.AddCommand(&cobra.Command{
		Use:   "status",
		Short: "Print guard mode status",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			status, err := c.vehicle.GuardStatus(cmd.Context())
			if err != nil {
				return err
			}
			return printJSON(cmd.OutOrStdout(), status)
		},
	})
	cmd.AddCommand(c.newGuardToggleCommand("enable", "Enable guard mode", (*service.VehicleService).EnableGuard))
	cmd.AddCommand(c.newGuardToggleCommand("disable", "Disable guard mode", (*service.VehicleService).DisableGuard))

	return cmd
}

func (c *cli) newGuardToggleCommand(use, short string, run func(*service.VehicleService, context.Context) (*fordpass.RawResponse, error)) *cobra.Command {
	return &cobra.Command{
		Use:   use,
		Short: short,
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			resp, err := run(c.vehicle, cmd.Context())
			if err != nil {
				return err
			}
			fmt.Fprintf(cmd.OutOrStdout(), "status: %d\n%s\n", resp.StatusCode, resp.Body)
			return nil
		},
	}
}

func (c *cli) newTokenCommand() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "token",
		Short: "Token management commands",
	}

	cmd.AddCommand(&cobra.Command{
		Use:   "login",
		Short: "Log in again and store a fresh token",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			if err := c.vehicle.Authenticate(cmd.Context()); err != nil {
				return err
			}
			fmt.Fprintln(cmd.OutOrStdout(), "authenticated")
			return nil
		},
	})
	cmd.AddCommand(&cobra.Command{
		Use:   "clear",
		Short: "Delete the stored token",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			if err := c.vehicle.ClearToken(cmd.Context()); err != nil {
				return err
			}
			fmt.Fprintln(cmd.OutOrStdout(), "token cleared")
			return nil
		},
	})

	return cmd
}
