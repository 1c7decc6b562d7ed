package main

import (
	"encoding/json"
	"fmt"
	"os"
	"time"

	"github.com/spf13/cobra"

	"github.com/medvertical/records/graph"
	"github.com/medvertical/records/refcheck"
	"github.com/medvertical/records/reference"
	"github.com/medvertical/records/walker"
)

func newRefsCmd(flags *globalFlags) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "refs <file>",
		Short: "List, classify and optionally probe the references in a resource",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			s, err := flags.loadSettings()
			if err != nil {
				return err
			}

			data, err := os.ReadFile(args[0])
			if err != nil {
				return err
			}
			var resource map[string]any
			if err := json.Unmarshal(data, &resource); err != nil {
				return fmt.Errorf("invalid JSON: %w", err)
			}

			out := cmd.OutOrStdout()
			found := walker.ExtractReferences(resource)
			parser := reference.NewParser(reference.ParserOptions{StrictTypes: s.StrictResourceTypes})

			fmt.Fprintf(out, "%s\n", titleStyle.Render(fmt.Sprintf("%d reference(s)", len(found))))
			for _, f := range found {
				parsed := parser.Parse(f.Reference)
				kind := string(parsed.Kind)
				if !parsed.IsValid {
					kind = failStyle.Render("invalid: " + parsed.Reason)
				}
				fmt.Fprintf(out, "  %-40s %-10s %s\n", f.Reference, kind, dimStyle.Render(f.Path))
			}

			detection := graph.NewDetector(graph.WithMaxDepth(s.MaxReferenceDepth)).Detect(resource)
			if detection.HasCycle {
				fmt.Fprintf(out, "%s %d cycle(s) detected\n", failStyle.Render("CYCLE"), len(detection.AllCycles))
				for _, chain := range detection.AllCycles {
					fmt.Fprintf(out, "  %v\n", chain)
				}
			} else {
				fmt.Fprintf(out, "%s no circular references\n", passStyle.Render("OK"))
			}

			if s.FHIRServerURL == "" {
				fmt.Fprintln(out, dimStyle.Render("no FHIR server configured; existence not checked"))
				return nil
			}

			checker := refcheck.NewChecker(
				refcheck.WithBaseURL(s.FHIRServerURL),
				refcheck.WithTimeout(time.Duration(s.ProbeTimeout)),
				refcheck.WithConcurrency(s.ProbeConcurrency),
				refcheck.WithCacheTTL(time.Duration(s.ReferenceCacheTTL)),
			)

			refs := make([]string, 0, len(found))
			for _, f := range found {
				refs = append(refs, f.Reference)
			}

			batch := checker.CheckBatch(cmd.Context(), refs)
			for _, result := range batch.Results {
				switch result.Status {
				case refcheck.StatusExists:
					fmt.Fprintf(out, "  %s %s\n", passStyle.Render("✓"), result.Reference)
				case refcheck.StatusNotExists:
					fmt.Fprintf(out, "  %s %s\n", failStyle.Render("✗"), result.Reference)
				default:
					fmt.Fprintf(out, "  %s %s (%s)\n", warnTagStyle.Render("?"), result.Reference, result.Error)
				}
			}
			fmt.Fprintln(out, dimStyle.Render(fmt.Sprintf(
				"%d exist, %d missing, %d unverifiable, %d cached, %s",
				batch.ExistCount, batch.NotExistCount, batch.FailedCount,
				batch.CacheHits, batch.TotalTime.Round(time.Millisecond))))
			if batch.NotExistCount > 0 {
				return fmt.Errorf("%d reference(s) do not exist", batch.NotExistCount)
			}
			return nil
		},
	}
	return cmd
}
