package main

import (
	"github.com/spf13/cobra"

	"github.com/medvertical/records/settings"
)

var appVersion = "dev"

type globalFlags struct {
	settingsPath string
	fhirServer   string
	output       string
}

// loadSettings builds the effective settings from the optional file
// and flag overrides.
func (g *globalFlags) loadSettings() (settings.Settings, error) {
	s := settings.Default()
	if g.settingsPath != "" {
		loaded, err := settings.Load(g.settingsPath)
		if err != nil {
			return settings.Settings{}, err
		}
		s = loaded
	}
	if g.fhirServer != "" {
		s.FHIRServerURL = g.fhirServer
	}
	return s, nil
}

func newRootCmd() *cobra.Command {
	flags := &globalFlags{}

	cmd := &cobra.Command{
		Use:           "records-validate",
		Short:         "Validate FHIR resources and their reference integrity",
		Long:          "records-validate checks FHIR resources across structural, profile, terminology, reference, business-rule and metadata aspects, and reports a per-aspect quality score.",
		SilenceUsage:  true,
		SilenceErrors: true,
	}

	cmd.PersistentFlags().StringVarP(&flags.settingsPath, "settings", "s", "", "Path to a YAML settings file")
	cmd.PersistentFlags().StringVar(&flags.fhirServer, "fhir-server", "", "FHIR base URL for reference existence checks")
	cmd.PersistentFlags().StringVarP(&flags.output, "output", "o", "text", "Output format: text, json")

	cmd.AddCommand(newValidateCmd(flags))
	cmd.AddCommand(newRefsCmd(flags))
	cmd.AddCommand(newHealthCmd(flags))
	cmd.AddCommand(newRegistryCmd())
	cmd.AddCommand(newVersionCmd())

	return cmd
}

func newVersionCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "version",
		Short: "Print the version",
		Run: func(cmd *cobra.Command, args []string) {
			cmd.Printf("records-validate %s\n", appVersion)
		},
	}
}

// Execute runs the CLI.
func Execute() error {
	return newRootCmd().Execute()
}
