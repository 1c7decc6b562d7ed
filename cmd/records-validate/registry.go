package main

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/medvertical/records/registry"
)

func newRegistryCmd() *cobra.Command {
	var registryURL string
	var version string

	cmd := &cobra.Command{
		Use:   "registry <package>",
		Short: "Show FHIR package metadata from the package registry",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			client := registry.NewClient(registry.WithRegistryURL(registryURL))

			info, err := client.GetPackageInfo(cmd.Context(), args[0], version)
			if err != nil {
				return err
			}

			out := cmd.OutOrStdout()
			fmt.Fprintf(out, "%s %s\n", titleStyle.Render(info.Name), info.Version)
			if info.Description != "" {
				fmt.Fprintln(out, dimStyle.Render(info.Description))
			}
			if info.FHIRVersion != "" {
				fmt.Fprintf(out, "fhir version: %s\n", info.FHIRVersion)
			}
			if info.Canonical != "" {
				fmt.Fprintf(out, "canonical:    %s\n", info.Canonical)
			}
			if info.URL != "" {
				fmt.Fprintf(out, "url:          %s\n", info.URL)
			}
			return nil
		},
	}

	cmd.Flags().StringVar(&registryURL, "registry", registry.DefaultRegistryURL, "Package registry URL")
	cmd.Flags().StringVar(&version, "version", registry.VersionLatest, "Package version")

	return cmd
}
