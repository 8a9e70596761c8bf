package cli

import (
	"fmt"
	"os"
	"os/exec"

	"github.com/spf13/cobra"
)

const (
	ffmpegInstallURL  = "https://ffmpeg.org/download.html"
	comskipInstallURL = "https://github.com/erikkaashoek/Comskip"
)

type check struct {
	name   string
	target string
	hint   string
	err    error
}

func newDoctorCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "doctor",
		Short: "Check that ffmpeg, comskip and the comskip ini are usable",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			s, path, err := loadSettings(cmd, commandLogger(cmd))
			if err != nil {
				return err
			}
			checks := []check{
				lookPath("ffmpeg", s.PathFfmpegExe, ffmpegInstallURL),
				lookPath("comskip", s.PathComskipExe, comskipInstallURL),
			}
			if s.PathComskipIni != "" {
				_, err := os.Stat(s.PathComskipIni)
				checks = append(checks, check{name: "comskip ini", target: s.PathComskipIni, hint: "set PathComskipIni in " + path, err: err})
			}

			out := cmd.OutOrStdout()
			failed := 0
			for _, c := range checks {
				if c.err != nil {
					failed++
					fmt.Fprintf(out, "%s %s (%s): %v\n", badStyle.Render("✗"), c.name, c.target, c.err)
					fmt.Fprintf(out, "  %s\n", c.hint)
					continue
				}
				fmt.Fprintf(out, "%s %s (%s)\n", okStyle.Render("✓"), c.name, c.target)
			}
			if failed > 0 {
				return fmt.Errorf("%d check(s) failed", failed)
			}
			fmt.Fprintln(out, "All dependencies found.")
			return nil
		},
	}
}

func lookPath(name, target, installURL string) check {
	c := check{name: name, target: target, hint: "Install from: " + installURL}
	if target == "" {
		c.err = fmt.Errorf("path is empty")
		return c
	}
	resolved, err := exec.LookPath(target)
	if err != nil {
		c.err = err
		return c
	}
	c.target = resolved
	return c
}
