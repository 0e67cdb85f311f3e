package main

import (
	"bufio"
	"errors"
	"io"
	"strings"

	"github.com/samber/oops"
	"github.com/spf13/cobra"

	"surveyhub.org/internal/auth"
	"surveyhub.org/internal/obs"
)

func newBootstrapCmd(a *app) *cobra.Command {
	var in auth.BootstrapInput
	cmd := &cobra.Command{
		Use:   "bootstrap-org",
		Short: "Provision an organization with its system roles and first administrator",
		Long: `Creates the organization, its system roles with their
permission grants, and an active administrator holding the Admin role, in a
single transaction. Values not given as flags are prompted for.`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			if err := promptMissing(cmd, &in); err != nil {
				return err
			}
			cfg, err := a.config()
			if err != nil {
				return err
			}
			store, closer, err := a.openStore(cmd.Context(), cfg)
			if err != nil {
				return err
			}
			defer func() { _ = closer.Close() }()

			res, err := auth.NewBootstrapper(store, auth.WithBootstrapLogger(obs.Logger())).Bootstrap(cmd.Context(), in)
			if err != nil {
				return oops.Code("BOOTSTRAP_FAILED").With("subdomain", in.Subdomain).Wrap(err)
			}
			printBootstrap(cmd, res)
			return nil
		},
	}
	f := cmd.Flags()
	f.StringVar(&in.OrganizationName, "name", "", "organization display name")
	f.StringVar(&in.Subdomain, "subdomain", "", "unique organization subdomain")
	f.StringVar(&in.AdminName, "admin-name", "", "administrator full name")
	f.StringVar(&in.AdminEmail, "admin-email", "", "administrator email")
	f.StringVar(&in.AdminPassword, "admin-password", "", "administrator password (prompted when omitted)")
	return cmd
}

// promptMissing reads any empty field from the command's input, one line each.
func promptMissing(cmd *cobra.Command, in *auth.BootstrapInput) error {
	r := bufio.NewReader(cmd.InOrStdin())
	fields := []struct {
		label string
		dst   *string
	}{
		{"Organization name", &in.OrganizationName},
		{"Subdomain", &in.Subdomain},
		{"Admin full name", &in.AdminName},
		{"Admin email", &in.AdminEmail},
		{"Admin password", &in.AdminPassword},
	}
	for _, field := range fields {
		if strings.TrimSpace(*field.dst) != "" {
			continue
		}
		cmd.Printf("%s: ", field.label)
		line, err := r.ReadString('\n')
		if err != nil && !(errors.Is(err, io.EOF) && line != "") {
			return oops.Code("INPUT_MISSING").With("field", field.label).Errorf("no value for %s", strings.ToLower(field.label))
		}
		*field.dst = strings.TrimSpace(line)
	}
	return nil
}

func printBootstrap(cmd *cobra.Command, res *auth.BootstrapResult) {
	cmd.Println("Organization created")
	cmd.Printf("  id:        %s\n", res.Organization.ID)
	cmd.Printf("  name:      %s\n", res.Organization.Name)
	cmd.Printf("  subdomain: %s\n", res.Organization.Subdomain)
	cmd.Println("Administrator")
	cmd.Printf("  id:        %s\n", res.Admin.ID)
	cmd.Printf("  email:     %s\n", res.Admin.Email)
	names := make([]string, 0, len(res.Roles))
	for _, role := range res.Roles {
		names = append(names, role.Name)
	}
	cmd.Printf("Roles: %s\n", strings.Join(names, ", "))
}
