// Command liftctl is the operator CLI for the liftlog data repository:
// inspecting and repairing session branches, syncing the mirror and querying
// analytics from the shell.
package main

import (
	"io"
	"os"

	"github.com/fatih/color"
	"github.com/spf13/cobra"
)

type globalOptions struct {
	configPath string
	dryRun     bool
	noColor    bool
	verbose    bool
}

func main() {
	os.Exit(run(os.Args, os.Stdin, os.Stdout, os.Stderr))
}

func run(args []string, stdin io.Reader, stdout, stderr io.Writer) int {
	var opts globalOptions

	rootCmd := &cobra.Command{
		Use:           "liftctl",
		Short:         "Operate the liftlog workout repository",
		Long:          "Inspect and repair session branches, sync the local mirror and query e1RM and RPE analytics.",
		SilenceUsage:  true,
		SilenceErrors: true,
		PersistentPreRun: func(cmd *cobra.Command, args []string) {
			if opts.noColor {
				color.NoColor = true
			}
		},
		Run: func(cmd *cobra.Command, args []string) {
			cmd.Help()
		},
	}

	flags := rootCmd.PersistentFlags()
	flags.StringVar(&opts.configPath, "config", os.Getenv("LIFTLOG_CONFIG"), "optional TOML config file; environment variables override it")
	flags.BoolVar(&opts.dryRun, "dry-run", false, "work on a snapshot of the local mirror; never contact GitHub or push")
	flags.BoolVar(&opts.noColor, "no-color", false, "disable colored output")
	flags.BoolVarP(&opts.verbose, "verbose", "v", false, "log to stderr")

	rootCmd.AddCommand(
		newEstimateCmd(stdout),
		newInspectCmd(&opts, stdout, stderr),
		newRepairCmd(&opts, stdout, stderr),
		newSyncCmd(&opts, stdout, stderr),
		newTrendCmd(&opts, stdout, stderr),
		newRPECmd(&opts, stdout, stderr),
	)
	rootCmd.SetArgs(args[1:])
	rootCmd.SetIn(stdin)
	rootCmd.SetOut(stdout)
	rootCmd.SetErr(stderr)

	if err := rootCmd.Execute(); err != nil {
		red := color.New(color.FgRed).SprintFunc()
		io.WriteString(stderr, red("error: ")+err.Error()+"\n")
		return 1
	}
	return 0
}
