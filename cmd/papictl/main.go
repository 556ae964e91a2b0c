// Command papictl is PAPI's operator CLI: actions that don't belong
// behind the HTTP admin route because they run before or outside the
// server process (validating a config file before deploying it,
// forcing a catalog refresh against a running instance, printing the
// license notice the teacher's knitd exposes behind a "-license" flag).
// Built with github.com/spf13/cobra, the CLI library the pack's
// eminwux-kukeon and Neelabh94-cluster-toolkit repos use for their own
// operator tools.
package main

import (
	"fmt"
	"net/http"
	"os"

	"github.com/spf13/cobra"

	"github.com/ai4os/papi/pkg/config"
)

func main() {
	root := &cobra.Command{
		Use:   "papictl",
		Short: "Operate a PAPI deployment",
	}
	root.AddCommand(newConfigCmd(), newCatalogCmd(), newLicenseCmd())

	if err := root.Execute(); err != nil {
		os.Exit(1)
	}
}

func newConfigCmd() *cobra.Command {
	cmd := &cobra.Command{Use: "config", Short: "Inspect PAPI configuration"}
	cmd.AddCommand(&cobra.Command{
		Use:   "validate <path>",
		Short: "Load and validate a main.yaml config file",
		Args:  cobra.ExactArgs(1),
		RunE: func(_ *cobra.Command, args []string) error {
			cfg, err := config.Load(args[0])
			if err != nil {
				return err
			}
			fmt.Printf("ok: %d VO(s) configured, %d OIDC issuer(s), %d catalog source(s)\n",
				len(cfg.Auth.VO), len(cfg.Auth.OP), len(cfg.CatalogSources))
			return nil
		},
	})
	return cmd
}

func newCatalogCmd() *cobra.Command {
	cmd := &cobra.Command{Use: "catalog", Short: "Operate PAPI's catalog resolver"}
	var adminToken, baseURL string
	refresh := &cobra.Command{
		Use:   "refresh",
		Short: "Force an immediate catalog refresh against a running PAPI instance",
		RunE: func(_ *cobra.Command, _ []string) error {
			req, err := http.NewRequest(http.MethodPost, baseURL+"/v1/catalog/refresh", nil)
			if err != nil {
				return err
			}
			req.Header.Set("Authorization", "Bearer "+adminToken)
			resp, err := http.DefaultClient.Do(req)
			if err != nil {
				return err
			}
			defer resp.Body.Close()
			if resp.StatusCode >= 300 {
				return fmt.Errorf("papictl: refresh failed: status %d", resp.StatusCode)
			}
			fmt.Println("catalog refresh requested")
			return nil
		},
	}
	refresh.Flags().StringVar(&adminToken, "admin-token", "", "bearer token with the configured admin entitlement")
	refresh.Flags().StringVar(&baseURL, "base-url", "http://localhost:8080", "PAPI base URL")
	cmd.AddCommand(refresh)
	return cmd
}

func newLicenseCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "license",
		Short: "Show PAPI's license and third-party notices",
		RunE: func(_ *cobra.Command, _ []string) error {
			fmt.Println("papi is distributed under the terms of its repository LICENSE file.")
			fmt.Println("Third-party dependency licenses are listed in go.mod / go.sum.")
			return nil
		},
	}
}
