package cli

import (
	"errors"
	"fmt"
	"os"

	"github.com/charmbracelet/huh"
	"github.com/charmbracelet/lipgloss"
	"github.com/spf13/cobra"

	"github.com/forPelevin/comcrop/internal/settings"
)

var (
	keyStyle     = lipgloss.NewStyle().Foreground(lipgloss.Color("#3097C6")).Bold(true)
	commentStyle = lipgloss.NewStyle().Foreground(lipgloss.Color("#AEA47A")).Italic(true)
	okStyle      = lipgloss.NewStyle().Foreground(lipgloss.Color("#A6A75D")).Bold(true)
	badStyle     = lipgloss.NewStyle().Foreground(lipgloss.Color("#AC3835")).Bold(true)
)

func newSettingsCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "settings",
		Short: "Create or show the settings file",
	}

	initCmd := &cobra.Command{
		Use:   "init",
		Short: "Write the settings file with default values",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			force, _ := cmd.Flags().GetBool("force")
			path := settingsPath(cmd)
			if _, err := os.Stat(path); err == nil && !force {
				ok, err := confirmOverwrite(path)
				if err != nil {
					return fmt.Errorf("%s exists, rerun with --force to replace it: %w", path, err)
				}
				if !ok {
					fmt.Fprintln(cmd.OutOrStdout(), "Kept", path)
					return nil
				}
			}
			if err := settings.WriteDefault(path, true); err != nil {
				return err
			}
			fmt.Fprintln(cmd.OutOrStdout(), "Wrote", path)
			return nil
		},
	}
	initCmd.Flags().Bool("force", false, "Replace an existing file without asking")

	showCmd := &cobra.Command{
		Use:   "show",
		Short: "Print the effective settings",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			s, path, err := loadSettings(cmd, commandLogger(cmd))
			if err != nil {
				return err
			}
			out := cmd.OutOrStdout()
			fmt.Fprintln(out, commentStyle.Render("# "+path))
			entries := s.Entries()
			width := 0
			for _, e := range entries {
				width = max(width, len(e.Name))
			}
			for _, e := range entries {
				fmt.Fprintf(out, "%s = %s  %s\n",
					keyStyle.Width(width).Render(e.Name), e.Value, commentStyle.Render("# "+e.Comment))
			}
			return nil
		},
	}

	cmd.AddCommand(initCmd, showCmd)
	return cmd
}

func settingsPath(cmd *cobra.Command) string {
	if p, _ := cmd.Flags().GetString("settings"); p != "" {
		return p
	}
	return settings.DefaultPath()
}

func confirmOverwrite(path string) (bool, error) {
	overwrite := false
	form := huh.NewForm(
		huh.NewGroup(
			huh.NewConfirm().
				Title("Replace settings file?").
				Description(path + " exists. Replace it with default values?").
				Affirmative("Yes, replace").
				Negative("No, keep it").
				Value(&overwrite),
		),
	)
	if err := form.Run(); err != nil {
		if errors.Is(err, huh.ErrUserAborted) {
			return false, nil
		}
		return false, err
	}
	return overwrite, nil
}
