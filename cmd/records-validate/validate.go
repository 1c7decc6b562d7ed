package main

import (
	"encoding/json"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/spf13/cobra"

	records "github.com/medvertical/records"
	"github.com/medvertical/records/engine"
	"github.com/medvertical/records/loader"
	"github.com/medvertical/records/service"
	"github.com/medvertical/records/settings"
)

type fileReport struct {
	Resource string          `json:"resource"`
	Valid    bool            `json:"valid"`
	Score    int             `json:"score"`
	Errors   int             `json:"errors"`
	Warnings int             `json:"warnings"`
	Issues   []records.Issue `json:"issues,omitempty"`
	Duration string          `json:"duration"`
}

func newValidateCmd(flags *globalFlags) *cobra.Command {
	var profiles []string

	cmd := &cobra.Command{
		Use:   "validate <file>...",
		Short: "Validate FHIR resources from files or stdin (-)",
		Args:  cobra.MinimumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			s, err := flags.loadSettings()
			if err != nil {
				return err
			}

			eng, err := buildEngine(s)
			if err != nil {
				return err
			}

			reports := make([]fileReport, 0, len(args))
			failed := false
			for _, arg := range args {
				for _, name := range expandArg(arg) {
					report, err := validateOne(cmd, eng, name, profiles, flags.output)
					if err != nil {
						cmd.PrintErrf("%s: %v\n", name, err)
						failed = true
						continue
					}
					reports = append(reports, report)
					if !report.Valid {
						failed = true
					}
				}
			}

			if flags.output == "json" {
				enc := json.NewEncoder(cmd.OutOrStdout())
				enc.SetIndent("", "  ")
				if err := enc.Encode(reports); err != nil {
					return err
				}
			}

			if failed {
				return fmt.Errorf("validation found errors")
			}
			return nil
		},
	}

	cmd.Flags().StringSliceVarP(&profiles, "profile", "p", nil, "Profile URL(s) to validate against")

	return cmd
}

// buildEngine assembles an engine from the settings.
func buildEngine(s settings.Settings) (*engine.Engine, error) {
	deps := engine.Deps{
		Evaluator: service.NewFHIRPathAdapter(),
	}
	if len(s.ProfileServers) > 0 {
		resolver := loader.NewRemoteProfileService(s.ProfileServers[0])
		deps.Profiles = resolver
		deps.CanonicalFetcher = &service.CanonicalBridge{Resolver: resolver}
	}
	return engine.New(records.R4, deps, s.Options()...)
}

// expandArg resolves glob patterns; "-" and non-patterns pass through.
func expandArg(arg string) []string {
	if arg == "-" {
		return []string{arg}
	}
	matches, err := filepath.Glob(arg)
	if err != nil || len(matches) == 0 {
		return []string{arg}
	}
	return matches
}

func validateOne(cmd *cobra.Command, eng *engine.Engine, name string, profiles []string, output string) (fileReport, error) {
	var data []byte
	var err error
	if name == "-" {
		name = "stdin"
		data, err = io.ReadAll(cmd.InOrStdin())
	} else {
		data, err = os.ReadFile(name)
	}
	if err != nil {
		return fileReport{}, err
	}

	start := time.Now()
	var result *records.Result
	if len(profiles) > 0 {
		result, err = eng.ValidateWithProfiles(cmd.Context(), data, profiles...)
	} else {
		result, err = eng.Validate(cmd.Context(), data)
	}
	if err != nil {
		return fileReport{}, err
	}
	duration := time.Since(start)

	report := fileReport{
		Resource: name,
		Valid:    result.Valid,
		Score:    result.Summary.ValidationScore,
		Errors:   result.ErrorCount(),
		Warnings: result.WarningCount(),
		Issues:   result.Issues,
		Duration: duration.Round(time.Microsecond).String(),
	}

	if output != "json" {
		printResult(cmd, name, result, duration)
	}
	return report, nil
}

func printResult(cmd *cobra.Command, name string, result *records.Result, duration time.Duration) {
	out := cmd.OutOrStdout()

	fmt.Fprintf(out, "%s  %s  %s\n",
		titleStyle.Render(name), verdict(result.Valid), scoreBadge(result.Summary.ValidationScore))
	fmt.Fprintf(out, "%s\n", dimStyle.Render(fmt.Sprintf(
		"errors %d, warnings %d, issues %d, %s",
		result.ErrorCount(), result.WarningCount(), len(result.Issues),
		duration.Round(time.Microsecond))))

	for _, a := range records.Aspects {
		summary, ok := result.Summary.AspectBreakdown[a]
		if !ok {
			continue
		}
		if !summary.Enabled {
			fmt.Fprintf(out, "  %-14s %s\n", a, dimStyle.Render("disabled"))
			continue
		}
		fmt.Fprintf(out, "  %-14s %s\n", a, scoreBadge(summary.Score))
	}

	for _, issue := range result.Issues {
		location := ""
		if len(issue.Expression) > 0 {
			location = dimStyle.Render(" @ " + strings.Join(issue.Expression, ", "))
		}
		fmt.Fprintf(out, "  %s [%s] %s%s\n",
			severityTag(issue.Severity), issue.Code, issue.Diagnostics, location)
	}
	fmt.Fprintln(out)
}
