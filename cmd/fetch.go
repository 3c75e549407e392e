package cmd

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/spf13/cobra"

	"github.com/bindery/novelbind/internal/app"
	"github.com/bindery/novelbind/internal/novel"
)

func newFetchCmd() *cobra.Command {
	var (
		formats []string
		policy  string
		first   int
		last    int
	)
	cmd := &cobra.Command{
		Use:   "fetch <novel-url>",
		Short: "Crawl a single novel and write the artifacts, then exit.",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			a, err := app.New(cfgFile)
			if err != nil {
				return err
			}
			defer func() {
				closeCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
				defer cancel()
				_ = a.Close(closeCtx)
			}()

			req := novel.JobRequest{
				WorkURL: args[0],
				Range:   novel.ChapterRange{First: first, Last: last},
				Policy:  novel.Policy(policy),
			}
			for _, f := range formats {
				format, ok := novel.ParseFormat(f)
				if !ok {
					return fmt.Errorf("unknown format %q", f)
				}
				req.Formats = append(req.Formats, format)
			}

			j, err := a.Coordinator.Submit(cmd.Context(), req)
			if err != nil {
				return err
			}
			cmd.Printf("job %s submitted (%s)\n", j.ID, j.Site)

			j, err = waitForJob(cmd.Context(), a, j.ID)
			if err != nil {
				return err
			}
			switch j.Status {
			case novel.JobStatusCompleted:
				cmd.Printf("completed: %d/%d chapters", j.Counters.ChaptersSucceeded, j.TotalChapters)
				if len(j.Gaps) > 0 {
					cmd.Printf(", gaps at %v", j.Gaps)
				}
				cmd.Println()
				for _, art := range j.Artifacts {
					cmd.Printf("  %-8s %s\n", art.Format, art.Path)
				}
				return nil
			default:
				return fmt.Errorf("job %s: %s", j.Status, j.ErrorText)
			}
		},
	}
	cmd.Flags().StringSliceVar(&formats, "format", nil, "output formats (epub, markdown, html); default from config")
	cmd.Flags().StringVar(&policy, "policy", string(novel.PolicyBestEffort), "execution policy: fail-fast or best-effort")
	cmd.Flags().IntVar(&first, "first", 0, "first chapter index (1-based, inclusive)")
	cmd.Flags().IntVar(&last, "last", 0, "last chapter index (inclusive)")
	return cmd
}

// waitForJob polls until the job reaches a terminal status. A cancelled
// command context cancels the job before returning.
func waitForJob(ctx context.Context, a *app.App, jobID string) (novel.Job, error) {
	ticker := time.NewTicker(500 * time.Millisecond)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			_ = a.Coordinator.Cancel(context.Background(), jobID)
			return novel.Job{}, ctx.Err()
		case <-ticker.C:
			j, err := a.Coordinator.Status(ctx, jobID)
			if err != nil {
				if errors.Is(err, context.Canceled) {
					continue
				}
				return novel.Job{}, err
			}
			if j.Status.IsTerminal() {
				return j, nil
			}
		}
	}
}
