package main

import (
	"context"
	"errors"
	"os"
	"os/signal"
	"strings"
	"syscall"
	"time"

	"github.com/spf13/cobra"

	"github.com/kalambet/sumq/internal/api"
	"github.com/kalambet/sumq/internal/config"
	"github.com/kalambet/sumq/internal/content"
	"github.com/kalambet/sumq/internal/flow"
	"github.com/kalambet/sumq/internal/pipeline"
)

var runCmd = &cobra.Command{
	Use:   "run <url>",
	Short: "Summarize one video locally",
	Long: `Summarize one video locally and write output.html and output.json.

The first Ctrl-C stops the run after the step in progress; a second one
aborts immediately.

Examples:
  sumq run https://www.youtube.com/watch?v=dQw4w9WgXcQ
  sumq run file:///tmp/lecture.txt --output ./out`,
	Args: cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		output, _ := cmd.Flags().GetString("output")
		return runLocal(cmd.Context(), args[0], output)
	},
}

func init() {
	runCmd.Flags().String("output", "", "directory for output.html and output.json (default: storage.output_dir)")
}

func runLocal(ctx context.Context, url, output string) error {
	if err := api.ValidateURL(url); err != nil {
		return err
	}

	cfg, err := config.Load()
	if err != nil {
		return err
	}
	setupLogging(cfg.Log.Level)
	if output == "" {
		output = cfg.Storage.OutputDir
	}

	ctx, abort := context.WithCancel(ctx)
	defer abort()

	token := flow.NewToken()
	sigCh := make(chan os.Signal, 2)
	signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)
	defer signal.Stop(sigCh)
	go interruptLoop(ctx, sigCh, token, abort)

	eng, model, err := prepareEngine(ctx, cfg)
	if err != nil {
		return err
	}
	runner, err := newRunner(cfg, eng, model, output)
	if err != nil {
		return err
	}

	printStep("Summarizing %s with %s (%s)", url, eng.Name(), model)
	printStatus("Steps", "%s", strings.Join(runner.Stages(), " → "))
	res, err := runner.Run(ctx, pipeline.Request{
		URL:      url,
		Observer: flow.ObserverFunc(printProgress),
		Token:    token,
	})
	if err != nil {
		return runFailure(err)
	}

	printSuccess("%s: %d topics, %d questions in %s",
		res.Video.Title, len(res.FinalTopics), content.PairCount(res.FinalTopics), res.Duration.Round(time.Millisecond))
	printStatus("Review", "%s", res.Review.Summary())
	if res.Save != nil {
		if res.Save.Success {
			printStatus("Saved", "%s", res.Save.PageURL)
		} else {
			printWarning("Saving failed: %s", res.Save.Error)
		}
	}
	if res.OutputPath != "" {
		printStatus("Output", "%s", res.OutputPath)
	}
	return nil
}

// errInterrupted ends the process with exitInterrupted and no error banner.
var errInterrupted = errors.New("interrupted")

const exitInterrupted = 130

// runFailure reports a user stop as a warning and every other failure as an
// error for main to print.
func runFailure(err error) error {
	if flow.IsCancelled(err) {
		printWarning("%s", pipeline.Describe(err))
		return errInterrupted
	}
	return errors.New(pipeline.Describe(err))
}

// exitCode maps a command error to the process exit status.
func exitCode(err error) int {
	switch {
	case err == nil:
		return 0
	case errors.Is(err, errInterrupted):
		return exitInterrupted
	default:
		return 1
	}
}

// interruptLoop turns the first signal into a cooperative cancel and the
// second into an abort.
func interruptLoop(ctx context.Context, sigCh <-chan os.Signal, token *flow.Token, abort context.CancelFunc) {
	select {
	case <-sigCh:
		token.Cancel("interrupted")
		printWarning("Stopping after the current step. Press Ctrl-C again to abort.")
	case <-ctx.Done():
		return
	}
	select {
	case <-sigCh:
		printWarning("Aborting.")
		abort()
	case <-ctx.Done():
	}
}

func printProgress(e flow.Event) {
	if e.Message == "" {
		printStep("[%3d%%] %s", e.Percent, e.Stage)
		return
	}
	printStep("[%3d%%] %s: %s", e.Percent, e.Stage, e.Message)
}
