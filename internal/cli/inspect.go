package cli

import (
	"fmt"
	"io"
	"path/filepath"
	"strconv"
	"text/tabwriter"

	"github.com/spf13/cobra"

	"github.com/forPelevin/comcrop/internal/domain/cutpoints"
	"github.com/forPelevin/comcrop/internal/domain/segments"
	"github.com/forPelevin/comcrop/internal/types"
	"github.com/forPelevin/comcrop/internal/workspace"
)

func newPlanCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "plan <file>",
		Short: "Print the segments the existing cut-point file would produce",
		Long:  "Reads <base>.edl next to the recording and prints the planned part files. No tool is run.",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			s, _, err := loadSettings(cmd, commandLogger(cmd))
			if err != nil {
				return err
			}
			includeDiscarded := s.CommercialParts()
			if cmd.Flags().Changed("commercials") {
				includeDiscarded, _ = cmd.Flags().GetBool("commercials")
			}
			job, err := workspace.NewJob(args[0], s.ExtensionDestination)
			if err != nil {
				return err
			}
			cps, err := cutpoints.ParseFile(job.CutPointFile())
			if err != nil {
				return err
			}
			plan := job.Attach(segments.Plan(cps, includeDiscarded))
			return printPlan(cmd.OutOrStdout(), job, plan)
		},
	}
	cmd.Flags().Bool("commercials", false, "Include commercial blocks (default from CreateChaptersForCommercials)")
	return cmd
}

func printPlan(w io.Writer, job workspace.Job, plan []types.Segment) error {
	tw := tabwriter.NewWriter(w, 0, 4, 2, ' ', 0)
	fmt.Fprintln(tw, "#\tKIND\tSTART\tDURATION\tFILE")
	for _, seg := range plan {
		dur := "to end"
		if !seg.Terminal() {
			dur = strconv.FormatFloat(seg.Duration, 'f', 2, 64)
		}
		fmt.Fprintf(tw, "%d\t%s\t%.2f\t%s\t%s\n", seg.Index, seg.Kind, seg.Start, dur, filepath.Base(seg.Path))
	}
	fmt.Fprintf(tw, "\noutput\t%s\n", job.OutputFile())
	return tw.Flush()
}

func newStatusCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "status <file>...",
		Short: "Show how far each recording got, as read from the files next to it",
		Args:  cobra.MinimumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			s, _, err := loadSettings(cmd, commandLogger(cmd))
			if err != nil {
				return err
			}
			files, missing := expandInputs(args)
			out := cmd.OutOrStdout()
			for _, m := range missing {
				fmt.Fprintf(out, "%s %s: no such file\n", badStyle.Render("✗"), m)
			}
			for _, f := range files {
				job, err := workspace.NewJob(f, s.ExtensionDestination)
				if err != nil {
					return err
				}
				printStatus(out, job, workspace.Inspect(job, s.CommercialParts()))
			}
			return nil
		},
	}
}

func printStatus(w io.Writer, job workspace.Job, st workspace.State) {
	fmt.Fprintln(w, keyStyle.Render(job.Input))
	fmt.Fprintf(w, "  stage:       %s\n", stage(st))
	if st.CutPointsReady {
		fmt.Fprintf(w, "  cut points:  %d record(s)\n", st.Records)
		fmt.Fprintf(w, "  segments:    %d/%d marked\n", st.MarkedCount(), st.Expected)
	} else {
		fmt.Fprintln(w, "  cut points:  none")
	}
	if st.HoldPending {
		fmt.Fprintf(w, "  hold file:   %s\n", job.HoldFile())
	}
}

func stage(st workspace.State) string {
	switch {
	case st.OutputExists && !st.InProgress:
		return okStyle.Render("done")
	case st.InProgress:
		return "assembling (interrupted or running)"
	case st.HoldPending:
		return "waiting for confirmation"
	case st.AllMarked():
		return "segments extracted"
	case st.CutPointsReady:
		return "extracting segments"
	default:
		return "not started"
	}
}
