package main

import (
	"context"
	"fmt"
	"io"
	"strconv"
	"strings"

	"github.com/fatih/color"
	"github.com/spf13/cobra"

	"github.com/p-blackswan/liftlog/internal/e1rm"
	"github.com/p-blackswan/liftlog/internal/rpe"
	"github.com/p-blackswan/liftlog/internal/runtime"
	"github.com/p-blackswan/liftlog/internal/session"
	"github.com/p-blackswan/liftlog/internal/workout"
)

func weight(v float64) string {
	return strconv.FormatFloat(v, 'f', -1, 64)
}

func newEstimateCmd(stdout io.Writer) *cobra.Command {
	var rpeFlag float64

	cmd := &cobra.Command{
		Use:   "estimate WEIGHT REPS",
		Short: "Estimate a one-rep max with the Epley formula",
		Long:  "Estimate a one-rep max. With --rpe the reps left in reserve are added before estimating.",
		Args:  cobra.ExactArgs(2),
		RunE: func(cmd *cobra.Command, args []string) error {
			w, err := strconv.ParseFloat(args[0], 64)
			if err != nil || w < 0 {
				return fmt.Errorf("invalid weight %q", args[0])
			}
			reps, err := strconv.Atoi(args[1])
			if err != nil || reps < 0 {
				return fmt.Errorf("invalid reps %q", args[1])
			}

			boldGreen := color.New(color.FgGreen, color.Bold).SprintFunc()
			if cmd.Flags().Changed("rpe") {
				if rpeFlag < 1 || rpeFlag > 10 {
					return fmt.Errorf("rpe %s outside 1-10", weight(rpeFlag))
				}
				est := e1rm.EstimateWithRPE(w, reps, rpeFlag)
				fmt.Fprintf(stdout, "e1RM %s (%s x %d @ %s)\n", boldGreen(weight(est)), weight(w), reps, weight(rpeFlag))
				return nil
			}
			fmt.Fprintf(stdout, "e1RM %s (%s x %d)\n", boldGreen(weight(e1rm.Estimate(w, reps))), weight(w), reps)
			return nil
		},
	}
	cmd.Flags().Float64Var(&rpeFlag, "rpe", 0, "rate of perceived exertion of the set (1-10)")
	return cmd
}

func newInspectCmd(opts *globalOptions, stdout, stderr io.Writer) *cobra.Command {
	return &cobra.Command{
		Use:   "inspect",
		Short: "List session branches left behind by interrupted finalizes",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			rt, err := openRuntime(opts, stderr)
			if err != nil {
				return err
			}
			anomalies, err := rt.Inspect(cmd.Context())
			if err != nil {
				return err
			}
			if len(anomalies) == 0 {
				fmt.Fprintln(stdout, color.GreenString("no session branches need repair"))
				return nil
			}
			yellow := color.New(color.FgYellow).SprintFunc()
			for _, a := range anomalies {
				line := fmt.Sprintf("%s  %s", a.Branch, yellow(string(a.Kind)))
				if a.FinalPath != "" {
					line += "  " + a.FinalPath
				}
				if len(a.Changed) > 0 {
					line += "  (" + strings.Join(a.Changed, ", ") + ")"
				}
				fmt.Fprintln(stdout, line)
			}
			return nil
		},
	}
}

func newRepairCmd(opts *globalOptions, stdout, stderr io.Writer) *cobra.Command {
	return &cobra.Command{
		Use:   "repair BRANCH",
		Short: "Complete an interrupted finalize and record the session",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			rt, err := openRuntime(opts, stderr)
			if err != nil {
				return err
			}
			h, err := session.HandleFor(args[0])
			if err != nil {
				return err
			}
			ctx := cmd.Context()
			res, err := rt.Sessions.Repair(ctx, h.Branch)
			if err != nil {
				return err
			}
			if res.MergeSHA == "" {
				fmt.Fprintf(stdout, "removed stale branch %s\n", res.Branch)
				return nil
			}
			fmt.Fprintf(stdout, "merged %s as %s\n", res.Branch, res.Path)
			return recordAndPrint(ctx, rt, res, stdout)
		},
	}
}

func recordAndPrint(ctx context.Context, rt *runtime.Runtime, res *session.Result, stdout io.Writer) error {
	rep, err := rt.Tracker.Record(ctx, res.Session, res.Path)
	if err != nil {
		return fmt.Errorf("session merged but ledgers were not updated: %w", err)
	}
	magenta := color.New(color.FgMagenta, color.Bold).SprintFunc()
	for _, c := range rep.Celebrations {
		fmt.Fprintln(stdout, magenta(c.Message))
	}
	for _, line := range rep.Lines {
		fmt.Fprintln(stdout, line)
	}
	return nil
}

func newSyncCmd(opts *globalOptions, stdout, stderr io.Writer) *cobra.Command {
	return &cobra.Command{
		Use:   "sync",
		Short: "Clone or fast-forward the local mirror",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			rt, err := openRuntime(opts, stderr)
			if err != nil {
				return err
			}
			var logs int
			err = rt.WithMirror(cmd.Context(), "", func(_ context.Context, m runtime.Mirror) error {
				paths, err := m.Glob(workout.WeeksDir + "/*/*.md")
				logs = len(paths)
				return err
			})
			if err != nil {
				return err
			}
			fmt.Fprintf(stdout, "mirror %s up to date (%d week documents)\n", rt.Mirror.Path(), logs)
			return nil
		},
	}
}

func newTrendCmd(opts *globalOptions, stdout, stderr io.Writer) *cobra.Command {
	var days int

	cmd := &cobra.Command{
		Use:   "trend EXERCISE",
		Short: "Show the e1RM trend of a lift",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			rt, err := openRuntime(opts, stderr)
			if err != nil {
				return err
			}
			r, err := rt.Tracker.Trend(cmd.Context(), args[0], days)
			if err != nil {
				return err
			}

			paint := color.New(color.FgYellow).SprintFunc()
			switch r.Direction {
			case e1rm.DirectionUp:
				paint = color.New(color.FgGreen).SprintFunc()
			case e1rm.DirectionDown:
				paint = color.New(color.FgRed).SprintFunc()
			}
			fmt.Fprintf(stdout, "%s: %s to %s (%s)\n", workout.DisplayName(r.Exercise),
				weight(r.Start), weight(r.End), paint(fmt.Sprintf("%+.1f%%, %s", r.PercentChange, r.Direction)))
			fmt.Fprintf(stdout, "%d sessions from %s to %s, %s per week, best %s\n",
				r.Sessions, r.StartDate, r.EndDate, weight(r.PerWeek), weight(r.CurrentBest))
			return nil
		},
	}
	cmd.Flags().IntVar(&days, "days", 0, "only sessions in the last N days (0 for all)")
	return cmd
}

func newRPECmd(opts *globalOptions, stdout, stderr io.Writer) *cobra.Command {
	var days int

	cmd := &cobra.Command{
		Use:   "rpe EXERCISE",
		Short: "Analyze RPE trends of a lift from the logged sessions",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			rt, err := openRuntime(opts, stderr)
			if err != nil {
				return err
			}
			if !cmd.Flags().Changed("days") && rt.Config.RPEWindowDays > 0 {
				days = rt.Config.RPEWindowDays
			}
			var insights []rpe.Insight
			err = rt.WithMirror(cmd.Context(), "", func(context.Context, runtime.Mirror) error {
				var err error
				insights, err = rt.Tracker.RPE(args[0], days)
				return err
			})
			if err != nil {
				return err
			}
			if len(insights) == 0 {
				fmt.Fprintf(stdout, "no RPE insights for %s in the last %d days\n", workout.DisplayName(workout.CanonicalExercise(args[0])), days)
				return nil
			}
			severity := map[rpe.Severity]func(a ...interface{}) string{
				rpe.SeverityPositive: color.New(color.FgGreen).SprintFunc(),
				rpe.SeverityWarning:  color.New(color.FgRed).SprintFunc(),
				rpe.SeverityInfo:     color.New(color.FgCyan).SprintFunc(),
			}
			for _, in := range insights {
				fmt.Fprintf(stdout, "%s %s\n", severity[in.Severity]("["+string(in.Severity)+"]"), in.Message)
			}
			return nil
		},
	}
	cmd.Flags().IntVar(&days, "days", 90, "window of logged sessions to analyze")
	return cmd
}
