package main

import (
	"context"
	"fmt"
	"net/http"
	"time"

	"github.com/spf13/cobra"

	"github.com/medvertical/records/health"
	"github.com/medvertical/records/registry"
)

func newHealthCmd(flags *globalFlags) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "health",
		Short: "Probe the configured servers once and report the operating mode",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			s, err := flags.loadSettings()
			if err != nil {
				return err
			}

			detector := health.NewDetector(
				health.WithFailureThreshold(s.FailureThreshold),
				health.WithProbeTimeout(time.Duration(s.ProbeTimeout)),
			)

			registered := 0
			if s.FHIRServerURL != "" {
				detector.Register("fhir-server", httpProbe(s.FHIRServerURL))
				registered++
			}
			for i, url := range s.TerminologyServers {
				detector.RegisterInGroup("terminology", fmt.Sprintf("terminology[%d]", i), httpProbe(url))
				registered++
			}
			for i, url := range s.PackageRegistries {
				client := registry.NewClient(registry.WithRegistryURL(url))
				detector.RegisterInGroup("registry", fmt.Sprintf("registry[%d]", i), client.Ping)
				registered++
			}

			out := cmd.OutOrStdout()
			if registered == 0 {
				fmt.Fprintln(out, dimStyle.Render("no servers configured"))
				return nil
			}

			detector.CheckNow(cmd.Context())

			for _, state := range detector.States() {
				tag := passStyle.Render(string(state.Status))
				if state.Status != health.StatusHealthy {
					tag = failStyle.Render(string(state.Status))
				}
				line := fmt.Sprintf("  %-18s %s", state.Name, tag)
				if state.LastError != "" {
					line += " " + dimStyle.Render(state.LastError)
				}
				fmt.Fprintln(out, line)
			}
			fmt.Fprintf(out, "mode: %s\n", titleStyle.Render(string(detector.Mode())))
			return nil
		},
	}
	return cmd
}

// httpProbe reports a server reachable unless the request fails or
// returns a 5xx.
func httpProbe(url string) health.Probe {
	client := &http.Client{}
	return func(ctx context.Context) error {
		req, err := http.NewRequestWithContext(ctx, http.MethodGet, url, http.NoBody)
		if err != nil {
			return err
		}
		resp, err := client.Do(req)
		if err != nil {
			return err
		}
		defer resp.Body.Close()

		if resp.StatusCode >= 500 {
			return fmt.Errorf("status %d", resp.StatusCode)
		}
		return nil
	}
}
