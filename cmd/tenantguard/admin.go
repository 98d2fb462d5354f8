package main

import (
	"encoding/json"
	"fmt"
	"os"
	"strconv"

	"github.com/spf13/cobra"

	"github.com/platinummonkey/tenantguard/pkg/rbac"
	"github.com/platinummonkey/tenantguard/pkg/tenants"
)

func newMigrateCommand() *cobra.Command {
	return &cobra.Command{
		Use:   "migrate",
		Short: "Apply pending schema migrations",
		RunE: func(cmd *cobra.Command, args []string) error {
			a, err := newApp(cmd.Context())
			if err != nil {
				return err
			}
			defer a.Close()

			return rbac.RunMigrations(cmd.Context(), a.conns.Primary(), a.dialect(), a.log)
		},
	}
}

func newBootstrapCommand() *cobra.Command {
	var adminEmail, centralName string

	cmd := &cobra.Command{
		Use:   "bootstrap",
		Short: "Provision the central tenant, built-in permissions and superadmin role",
		RunE: func(cmd *cobra.Command, args []string) error {
			a, err := newApp(cmd.Context())
			if err != nil {
				return err
			}
			defer a.Close()

			m, err := a.manager()
			if err != nil {
				return err
			}
			if err := rbac.RunMigrations(cmd.Context(), a.conns.Primary(), a.dialect(), a.log); err != nil {
				return err
			}

			if centralName == "" {
				centralName = a.cfg.RBAC.CentralTenantName
			}
			res, err := m.Provisioner().Bootstrap(cmd.Context(), rbac.BootstrapOptions{
				CentralName: centralName,
				AdminEmail:  adminEmail,
			})
			if err != nil {
				return err
			}
			return printJSON(cmd, res)
		},
	}

	cmd.Flags().StringVar(&adminEmail, "admin-email", "", "email of the central superadmin")
	cmd.Flags().StringVar(&centralName, "name", "", "display name of the central tenant")
	return cmd
}

func newTenantCommand() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "tenant",
		Short: "Manage customer tenants",
	}
	cmd.AddCommand(
		newTenantCreateCommand(),
		newTenantStatusCommand("suspend", "Suspend a tenant; its members lose every permission in it", tenants.StatusSuspended),
		newTenantStatusCommand("activate", "Reactivate a suspended tenant", tenants.StatusActive),
	)
	return cmd
}

func newTenantCreateCommand() *cobra.Command {
	var opts rbac.TenantOptions

	cmd := &cobra.Command{
		Use:   "create",
		Short: "Create a tenant with its tenant_superadmin role",
		RunE: func(cmd *cobra.Command, args []string) error {
			a, err := newApp(cmd.Context())
			if err != nil {
				return err
			}
			defer a.Close()

			m, err := a.manager()
			if err != nil {
				return err
			}
			res, err := m.Provisioner().ProvisionTenant(cmd.Context(), opts)
			if err != nil {
				return err
			}
			return printJSON(cmd, res)
		},
	}

	cmd.Flags().StringVar(&opts.Name, "name", "", "display name (required)")
	cmd.Flags().StringVar(&opts.Slug, "slug", "", "slug; derived from the name when empty")
	cmd.Flags().StringVar(&opts.Host, "host", "", "host the tenant is served on")
	cmd.Flags().StringVar(&opts.AdminEmail, "admin-email", "", "email of the tenant superadmin")
	cmd.MarkFlagRequired("name")
	return cmd
}

func newTenantStatusCommand(use, short string, status tenants.Status) *cobra.Command {
	return &cobra.Command{
		Use:   use + " <tenant-id>",
		Short: short,
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			id, err := strconv.ParseInt(args[0], 10, 64)
			if err != nil {
				return fmt.Errorf("invalid tenant id %q", args[0])
			}

			a, err := newApp(cmd.Context())
			if err != nil {
				return err
			}
			defer a.Close()

			m, err := a.manager()
			if err != nil {
				return err
			}
			if err := m.Provisioner().SetTenantStatus(cmd.Context(), id, status); err != nil {
				return err
			}
			fmt.Fprintf(cmd.OutOrStdout(), "tenant %d is now %s\n", id, status)
			return nil
		},
	}
}

func printJSON(cmd *cobra.Command, v interface{}) error {
	out := cmd.OutOrStdout()
	if out == nil {
		out = os.Stdout
	}
	enc := json.NewEncoder(out)
	enc.SetIndent("", "  ")
	return enc.Encode(v)
}
