package cli

import (
	"fmt"
	"io"
	"os"
	"time"

	"github.com/joho/godotenv"
	"github.com/rs/zerolog"
	"github.com/spf13/cobra"
)

func Main() {
	_ = godotenv.Load() // best-effort: load .env if present

	if err := newRoot().Execute(); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}

func newRoot() *cobra.Command {
	root := &cobra.Command{
		Use:   "comcrop [flags] <file|*.ext>...",
		Short: "Remove commercials from recordings with comskip and ffmpeg",
		Long: "Detects commercials with comskip, extracts the remaining blocks with ffmpeg and joins them.\n" +
			"Every step leaves a marker next to the recording, so an interrupted run resumes where it stopped.\n" +
			"Output type (and thus name) is configured in the settings file.",
		Args:         cobra.MinimumNArgs(1),
		SilenceUsage: true,
		RunE: func(cmd *cobra.Command, args []string) error {
			return run(cmd, args)
		},
	}

	root.SetOut(os.Stdout)
	root.SetErr(os.Stderr)
	root.SilenceErrors = true

	root.PersistentFlags().String("settings", "", "Settings file (default $COMCROP_SETTINGS or the user config dir)")
	root.PersistentFlags().BoolP("verbose", "v", false, "Debug logging and tool output")

	root.Flags().Bool("no-notify", false, "Only create part files; do not wait for the operator to check them")
	root.Flags().BoolP("quiet", "q", false, "No output if another instance holds the lock or no file matched")
	root.Flags().Bool("pause", false, "Wait for enter before exiting")

	// Hidden tuning flag (internal)
	root.Flags().Duration("grace", 10*time.Second, "Time an interrupted tool gets to exit before it is killed")
	_ = root.Flags().MarkHidden("grace")

	root.AddCommand(newSettingsCmd(), newDoctorCmd(), newPlanCmd(), newStatusCmd())
	return root
}

func newLogger(w io.Writer, verbose bool) zerolog.Logger {
	level := zerolog.InfoLevel
	if verbose {
		level = zerolog.DebugLevel
	}
	cw := zerolog.ConsoleWriter{
		Out:        w,
		TimeFormat: time.TimeOnly,
		NoColor:    os.Getenv("NO_COLOR") != "",
	}
	return zerolog.New(cw).Level(level).With().Timestamp().Logger()
}

func commandLogger(cmd *cobra.Command) zerolog.Logger {
	verbose, _ := cmd.Flags().GetBool("verbose")
	return newLogger(cmd.ErrOrStderr(), verbose)
}
