package main

import (
	"context"
	"fmt"
	"io"
	"time"

	"github.com/fatih/color"
	"github.com/spf13/cobra"

	"feedbot/internal/app"
)

var statusCmd = &cobra.Command{
	Use:   "status",
	Short: "Show feed size, committed progress and the next slots",
	RunE:  runStatus,
}

var nextCmd = &cobra.Command{
	Use:   "next",
	Short: "Preview upcoming slot times (without jitter)",
	RunE:  runNext,
}

var snapshotCmd = &cobra.Command{
	Use:   "snapshot",
	Short: "Write a tagged copy of the progress record",
	RunE:  runSnapshot,
}

func init() {
	rootCmd.AddCommand(statusCmd, nextCmd, snapshotCmd)
	statusCmd.Flags().IntP("top", "t", 5, "number of best scoring titles to list")
	nextCmd.Flags().IntP("count", "n", 5, "number of slots to list")
	snapshotCmd.Flags().String("suffix", "", "snapshot tag (default: UTC timestamp)")
}

func runStatus(cmd *cobra.Command, args []string) error {
	top, _ := cmd.Flags().GetInt("top")
	a, err := openApp(app.InspectOnly())
	if err != nil {
		return err
	}
	defer a.Close()

	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	st, err := a.Status(ctx, top)
	if err != nil {
		return err
	}
	printStatus(cmd.OutOrStdout(), st)
	return nil
}

func printStatus(w io.Writer, st app.Status) {
	bold := color.New(color.Bold)
	green := color.New(color.FgGreen)
	yellow := color.New(color.FgYellow)
	red := color.New(color.FgRed)

	bold.Fprintln(w, "Feed")
	fmt.Fprintf(w, "  path:     %s\n", st.FeedPath)
	if st.FeedErr != nil {
		red.Fprintf(w, "  error:    %v\n", st.FeedErr)
	} else {
		fmt.Fprintf(w, "  items:    %d\n", st.FeedItems)
	}

	bold.Fprintln(w, "Progress")
	idx := green
	if st.FeedErr == nil && st.Progress.FeedIndex >= st.FeedItems {
		idx = yellow
	}
	idx.Fprintf(w, "  index:    %d\n", st.Progress.FeedIndex)
	fmt.Fprintf(w, "  reruns:   %d (last at %d)\n", st.Progress.TimesRerun, st.Progress.LastRerunIndex)
	fmt.Fprintf(w, "  online:   %s\n", onOff(st.Online))
	fmt.Fprintf(w, "  persist:  %s\n", onOff(st.Persist))

	if len(st.Top) > 0 {
		bold.Fprintln(w, "Top")
		for i, r := range st.Top {
			fmt.Fprintf(w, "  %2d. %-40s %d\n", i+1, r.Title, r.Score)
		}
	}

	bold.Fprintln(w, "Next slots")
	if len(st.NextSlots) == 0 {
		yellow.Fprintln(w, "  none configured")
	}
	for _, t := range st.NextSlots {
		fmt.Fprintf(w, "  %s\n", t.Format(time.RFC1123))
	}
}

func onOff(v bool) string {
	if v {
		return color.GreenString("on")
	}
	return color.YellowString("off")
}

func runNext(cmd *cobra.Command, args []string) error {
	n, _ := cmd.Flags().GetInt("count")
	if n <= 0 {
		return fmt.Errorf("--count must be positive")
	}
	a, err := openApp(app.InspectOnly())
	if err != nil {
		return err
	}
	defer a.Close()

	slots, err := a.Preview(time.Now(), n)
	if err != nil {
		return err
	}
	if len(slots) == 0 {
		color.New(color.FgYellow).Fprintln(cmd.OutOrStdout(), "no tweet_times configured")
		return nil
	}
	for _, t := range slots {
		fmt.Fprintln(cmd.OutOrStdout(), t.Format(time.RFC1123))
	}
	return nil
}

func runSnapshot(cmd *cobra.Command, args []string) error {
	suffix, _ := cmd.Flags().GetString("suffix")
	a, err := openApp(app.InspectOnly())
	if err != nil {
		return err
	}
	defer a.Close()

	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	if suffix == "" {
		suffix = app.SnapshotSuffix(time.Now())
	}
	if err := a.SaveSnapshot(ctx, suffix); err != nil {
		return err
	}
	color.New(color.FgGreen).Fprintf(cmd.OutOrStdout(), "snapshot %q written\n", suffix)
	return nil
}
