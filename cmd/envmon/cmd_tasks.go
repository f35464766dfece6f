package main

import (
	"encoding/json"
	"fmt"
	"text/tabwriter"
	"time"

	"github.com/spf13/cobra"

	"envmonitor/internal/scheduler"
)

var taskDescriptions = map[scheduler.TaskType]string{
	scheduler.TaskFetchWeather:            "Fetch outdoor weather for every active device location",
	scheduler.TaskGenerateRecommendations: "Evaluate recent readings and store new recommendations",
}

// taskFlags are shared by every command that runs a task.
type taskFlags struct {
	referenceTime string
	dryRun        bool
}

func (f *taskFlags) register(cmd *cobra.Command) {
	cmd.Flags().StringVar(&f.referenceTime, "reference-time", "", "RFC 3339 time to run the task as of (default now)")
	cmd.Flags().BoolVar(&f.dryRun, "dry-run", false, "print the scheduler payload without running it")
}

func (f *taskFlags) payload(task scheduler.TaskType) (scheduler.Payload, error) {
	p := scheduler.Payload{Task: task}
	if f.referenceTime == "" {
		return p, nil
	}
	t, err := time.Parse(time.RFC3339, f.referenceTime)
	if err != nil {
		return p, fmt.Errorf("invalid --reference-time %q: must be RFC 3339", f.referenceTime)
	}
	t = t.UTC()
	p.ReferenceTime = &t
	return p, nil
}

func runTask(cmd *cobra.Command, a *app, task scheduler.TaskType, f *taskFlags) error {
	payload, err := f.payload(task)
	if err != nil {
		return err
	}

	if f.dryRun {
		out, err := json.MarshalIndent(payload, "", "  ")
		if err != nil {
			return err
		}
		fmt.Fprintln(a.out, string(out))
		return nil
	}

	runner, err := a.runner(cmd.Context())
	if err != nil {
		return err
	}
	res, err := runner.Run(cmd.Context(), payload)
	if err != nil {
		return err
	}
	fmt.Fprintln(a.out, res.String())
	if res.Summary != "" {
		fmt.Fprintln(a.out, res.Summary)
	}
	return nil
}

func newWeatherCmd(a *app) *cobra.Command {
	weatherCmd := &cobra.Command{
		Use:   "weather",
		Short: "Outdoor weather tasks",
	}

	var flags taskFlags
	fetchCmd := &cobra.Command{
		Use:   "fetch",
		Short: "Fetch current weather for all active device locations",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			return runTask(cmd, a, scheduler.TaskFetchWeather, &flags)
		},
	}
	flags.register(fetchCmd)

	weatherCmd.AddCommand(fetchCmd)
	return weatherCmd
}

func newRecommendationsCmd(a *app) *cobra.Command {
	recCmd := &cobra.Command{
		Use:     "recommendations",
		Aliases: []string{"recs"},
		Short:   "Recommendation tasks",
	}

	var flags taskFlags
	generateCmd := &cobra.Command{
		Use:   "generate",
		Short: "Generate recommendations for all active devices",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			return runTask(cmd, a, scheduler.TaskGenerateRecommendations, &flags)
		},
	}
	flags.register(generateCmd)

	recCmd.AddCommand(generateCmd)
	return recCmd
}

func newTasksCmd(a *app) *cobra.Command {
	tasksCmd := &cobra.Command{
		Use:   "tasks",
		Short: "List, run and inspect scheduled tasks",
	}

	listCmd := &cobra.Command{
		Use:   "list",
		Short: "List the scheduled tasks and their intervals",
		Args:  cobra.NoArgs,
		RunE: func(_ *cobra.Command, _ []string) error {
			tw := tabwriter.NewWriter(a.out, 0, 4, 2, ' ', 0)
			fmt.Fprintln(tw, "TASK\tINTERVAL\tDESCRIPTION")
			for _, task := range scheduler.Tasks() {
				fmt.Fprintf(tw, "%s\t%s\t%s\n", task, task.Interval(), taskDescriptions[task])
			}
			return tw.Flush()
		},
	}

	var flags taskFlags
	var task string
	runCmd := &cobra.Command{
		Use:   "run",
		Short: "Run one task by name",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			t := scheduler.TaskType(task)
			if t.Interval() == 0 {
				return fmt.Errorf("unknown task %q (see 'envmon tasks list')", task)
			}
			return runTask(cmd, a, t, &flags)
		},
	}
	runCmd.Flags().StringVar(&task, "task", "", "task name")
	_ = runCmd.MarkFlagRequired("task")
	flags.register(runCmd)

	var limit int
	historyCmd := &cobra.Command{
		Use:   "history",
		Short: "Show recent job runs",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			if limit < 1 {
				return fmt.Errorf("--limit must be positive")
			}
			hist, err := a.history(cmd.Context())
			if err != nil {
				return err
			}
			runs, err := hist.Recent(cmd.Context(), limit)
			if err != nil {
				return err
			}

			tw := tabwriter.NewWriter(a.out, 0, 4, 2, ' ', 0)
			fmt.Fprintln(tw, "ID\tTASK\tSTARTED\tDURATION\tSTATUS\tITEMS\tERROR")
			for _, run := range runs {
				duration := "-"
				if run.FinishedAt != nil {
					duration = run.FinishedAt.Sub(run.StartedAt).Round(time.Millisecond).String()
				}
				errMsg := ""
				if run.Error != nil {
					errMsg = *run.Error
				}
				fmt.Fprintf(tw, "%d\t%s\t%s\t%s\t%s\t%d\t%s\n",
					run.ID, run.JobType, run.StartedAt.UTC().Format(time.RFC3339), duration, run.Status, run.Items, errMsg)
			}
			return tw.Flush()
		},
	}
	historyCmd.Flags().IntVar(&limit, "limit", 20, "number of runs to show")

	tasksCmd.AddCommand(listCmd, runCmd, historyCmd)
	return tasksCmd
}
