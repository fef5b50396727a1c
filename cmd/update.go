package cmd

import (
	"bufio"
	"context"
	"fmt"
	"io"
	"os"
	"strings"

	"github.com/creativeprojects/go-selfupdate"
	"github.com/spf13/cobra"

	"github.com/shaharia-lab/notifyd/internal/build"
)

const releaseSlug = "shaharia-lab/notifyd"

type updateOptions struct {
	yes       bool
	checkOnly bool
}

// NewUpdateCmd returns the "update" subcommand that self-updates the binary
// from GitHub releases.
func NewUpdateCmd() *cobra.Command {
	var opts updateOptions

	cmd := &cobra.Command{
		Use:   "update",
		Short: "Update notifyd to the latest release",
		Long: `Check GitHub releases for a newer notifyd and replace the running binary.
Stop "notifyd serve" before updating; queued jobs only live in memory.`,
		RunE: func(cmd *cobra.Command, _ []string) error {
			ctx := cmd.Context()
			if ctx == nil {
				ctx = context.Background()
			}
			return runUpdate(ctx, cmd.InOrStdin(), cmd.OutOrStdout(), opts)
		},
	}

	cmd.Flags().BoolVarP(&opts.yes, "yes", "y", false, "Skip confirmation prompt")
	cmd.Flags().BoolVar(&opts.checkOnly, "check", false, "Only report whether a newer release exists")
	return cmd
}

func runUpdate(ctx context.Context, in io.Reader, out io.Writer, opts updateOptions) error {
	current, err := build.Semver()
	if err != nil {
		return fmt.Errorf("cannot update this build (%w); install a tagged release first", err)
	}

	updater, err := selfupdate.NewUpdater(selfupdate.Config{})
	if err != nil {
		return fmt.Errorf("creating updater: %w", err)
	}

	fmt.Fprintf(out, "notifyd %s, checking %s... ", current, releaseSlug)
	release, found, err := updater.DetectLatest(ctx, selfupdate.ParseSlug(releaseSlug))
	if err != nil {
		return fmt.Errorf("checking for updates: %w", err)
	}
	if !found || !release.GreaterThan(current.String()) {
		fmt.Fprintln(out, okStyle.Render("up to date."))
		return nil
	}
	fmt.Fprintf(out, "%s available.\n", release.Version())
	if opts.checkOnly {
		return nil
	}

	if !opts.yes && !confirm(in, out, fmt.Sprintf("Replace the binary with %s?", release.Version())) {
		fmt.Fprintln(out, mutedStyle.Render("Update canceled."))
		return nil
	}

	exe, err := os.Executable()
	if err != nil {
		return fmt.Errorf("locating current executable: %w", err)
	}
	if err := updater.UpdateTo(ctx, release, exe); err != nil {
		return fmt.Errorf("installing %s: %w", release.Version(), err)
	}

	fmt.Fprintln(out, okStyle.Render(fmt.Sprintf("Installed %s. Restart notifyd to pick it up.", release.Version())))
	return nil
}

// confirm asks a yes/no question; anything but y or yes is a no.
func confirm(in io.Reader, out io.Writer, question string) bool {
	fmt.Fprintf(out, "%s [y/N] ", question)
	line, _ := bufio.NewReader(in).ReadString('\n')
	switch strings.ToLower(strings.TrimSpace(line)) {
	case "y", "yes":
		return true
	default:
		return false
	}
}
