package main

import (
	"context"
	"fmt"
	"io"
	"net/url"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"time"

	"github.com/spf13/cobra"

	"github.com/kalambet/sumq/internal/api"
)

var runsCmd = &cobra.Command{
	Use:   "runs",
	Short: "Submit and inspect runs on a running server",
}

var runsListCmd = &cobra.Command{
	Use:   "list",
	Short: "List recent runs",
	RunE: func(cmd *cobra.Command, args []string) error {
		limit, _ := cmd.Flags().GetInt("limit")

		client, err := newAPIClient()
		if err != nil {
			return err
		}
		runs, err := listRuns(cmd.Context(), client, limit)
		if err != nil {
			return err
		}
		if len(runs) == 0 {
			fmt.Println("No runs found.")
			return nil
		}
		fmt.Println(runsTable(runs))
		return nil
	},
}

var runsShowCmd = &cobra.Command{
	Use:   "show <id>",
	Short: "Show a single run",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		client, err := newAPIClient()
		if err != nil {
			return err
		}
		run, err := getRun(cmd.Context(), client, args[0])
		if err != nil {
			return err
		}
		printRun(run)
		return nil
	},
}

var runsSubmitCmd = &cobra.Command{
	Use:   "submit <url>",
	Short: "Queue a run on the server",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		wait, _ := cmd.Flags().GetBool("wait")
		if err := api.ValidateURL(args[0]); err != nil {
			return err
		}

		client, err := newAPIClient()
		if err != nil {
			return err
		}
		ctx := cmd.Context()
		run, err := submitRun(ctx, client, args[0])
		if err != nil {
			return err
		}
		printSuccess("Queued run %s", run.ID)
		if !wait {
			return nil
		}

		run, err = waitRun(ctx, client, run.ID, time.Second, func(r api.RunView) {
			printStep("[%3d%%] %s %s", r.Percent, r.Stage, r.Message)
		})
		if err != nil {
			return err
		}
		printRun(run)
		if run.Status != "completed" {
			return fmt.Errorf("run %s %s", run.ID, run.Status)
		}
		return nil
	},
}

var runsCancelCmd = &cobra.Command{
	Use:   "cancel <id>",
	Short: "Cancel a queued or running run",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		client, err := newAPIClient()
		if err != nil {
			return err
		}
		if err := cancelRun(cmd.Context(), client, args[0]); err != nil {
			return err
		}
		printSuccess("Cancellation requested for %s", args[0])
		return nil
	},
}

var runsReportCmd = &cobra.Command{
	Use:   "report <id>",
	Short: "Download output.html and output.json of a completed run",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		dir, _ := cmd.Flags().GetString("output")

		client, err := newAPIClient()
		if err != nil {
			return err
		}
		if err := os.MkdirAll(dir, 0o755); err != nil {
			return fmt.Errorf("creating output dir: %w", err)
		}
		for name, path := range map[string]string{
			"output.html": "/runs/" + url.PathEscape(args[0]) + "/report",
			"output.json": "/runs/" + url.PathEscape(args[0]) + "/document",
		} {
			if err := download(cmd.Context(), client, path, filepath.Join(dir, name)); err != nil {
				return err
			}
		}
		printSuccess("Wrote output.html and output.json to %s", dir)
		return nil
	},
}

func init() {
	runsListCmd.Flags().Int("limit", 20, "maximum number of runs to list")
	runsSubmitCmd.Flags().Bool("wait", false, "wait for the run to finish, printing progress")
	runsReportCmd.Flags().String("output", ".", "directory to write the report into")

	runsCmd.AddCommand(runsListCmd)
	runsCmd.AddCommand(runsShowCmd)
	runsCmd.AddCommand(runsSubmitCmd)
	runsCmd.AddCommand(runsCancelCmd)
	runsCmd.AddCommand(runsReportCmd)
}

func listRuns(ctx context.Context, c *apiClient, limit int) ([]api.RunView, error) {
	resp, err := c.get(ctx, "/runs?limit="+strconv.Itoa(limit))
	if err != nil {
		return nil, err
	}
	var runs []api.RunView
	if err := decodeJSON(resp, &runs); err != nil {
		return nil, err
	}
	return runs, nil
}

func getRun(ctx context.Context, c *apiClient, id string) (api.RunView, error) {
	resp, err := c.get(ctx, "/runs/"+url.PathEscape(id))
	if err != nil {
		return api.RunView{}, err
	}
	var run api.RunView
	if err := decodeJSON(resp, &run); err != nil {
		return api.RunView{}, err
	}
	return run, nil
}

func submitRun(ctx context.Context, c *apiClient, videoURL string) (api.RunView, error) {
	resp, err := c.post(ctx, "/runs", api.SubmitRequest{URL: videoURL})
	if err != nil {
		return api.RunView{}, err
	}
	var run api.RunView
	if err := decodeJSON(resp, &run); err != nil {
		return api.RunView{}, err
	}
	return run, nil
}

func cancelRun(ctx context.Context, c *apiClient, id string) error {
	resp, err := c.post(ctx, "/runs/"+url.PathEscape(id)+"/cancel", nil)
	if err != nil {
		return err
	}
	return decodeJSON(resp, nil)
}

// waitRun polls until the run finishes. onChange sees every snapshot whose
// progress differs from the previous one.
func waitRun(ctx context.Context, c *apiClient, id string, interval time.Duration, onChange func(api.RunView)) (api.RunView, error) {
	var last string
	for {
		run, err := getRun(ctx, c, id)
		if err != nil {
			return api.RunView{}, err
		}
		if key := fmt.Sprintf("%s/%d/%s", run.Stage, run.Percent, run.Message); key != last {
			last = key
			if onChange != nil {
				onChange(run)
			}
		}
		if run.Finished() {
			return run, nil
		}
		select {
		case <-ctx.Done():
			return api.RunView{}, ctx.Err()
		case <-time.After(interval):
		}
	}
}

func download(ctx context.Context, c *apiClient, path, dest string) error {
	resp, err := c.get(ctx, path)
	if err != nil {
		return err
	}
	if resp.StatusCode >= 400 {
		return decodeJSON(resp, nil)
	}
	defer resp.Body.Close()

	f, err := os.Create(dest)
	if err != nil {
		return err
	}
	if _, err := io.Copy(f, resp.Body); err != nil {
		f.Close()
		return fmt.Errorf("writing %s: %w", dest, err)
	}
	return f.Close()
}

func shortID(id string) string {
	if len(id) > 8 {
		return id[:8]
	}
	return id
}

func truncate(s string, n int) string {
	r := []rune(s)
	if len(r) <= n {
		return s
	}
	return string(r[:n-1]) + "…"
}

func runsTable(runs []api.RunView) string {
	rows := make([][]string, 0, len(runs))
	for _, r := range runs {
		title := r.Title
		if title == "" {
			title = r.URL
		}
		rows = append(rows, []string{
			shortID(r.ID),
			colorize(statusColor(r.Status), r.Status),
			strconv.Itoa(r.Percent) + "%",
			r.Stage,
			truncate(title, 48),
			r.CreatedAt.Local().Format("2006-01-02 15:04"),
		})
	}
	return renderTable([]string{"ID", "Status", "Progress", "Stage", "Title", "Created"}, rows, 2)
}

func printRun(r api.RunView) {
	fmt.Fprintf(os.Stderr, "%s\n", colorize(colorBold, "Run "+r.ID))
	printStatus("URL", "%s", r.URL)
	if r.Title != "" {
		printStatus("Title", "%s", r.Title)
	}
	printStatus("Status", "%s", colorize(statusColor(r.Status), r.Status))
	printStatus("Progress", "%d%% %s", r.Percent, strings.TrimSpace(r.Stage+" "+r.Message))
	if r.Error != "" {
		printStatus("Error", "%s", r.Error)
	}
	if r.Save != nil {
		if r.Save.Success {
			printStatus("Saved", "%s", r.Save.PageURL)
		} else {
			printStatus("Save failed", "%s", r.Save.Error)
		}
	}
	printStatus("Created", "%s", r.CreatedAt.Local().Format(time.RFC3339))
	printStatus("Updated", "%s", r.UpdatedAt.Local().Format(time.RFC3339))
}
