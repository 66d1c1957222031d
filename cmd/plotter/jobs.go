package main

import (
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"maps"
	"slices"
	"strconv"
	"strings"
	"text/tabwriter"

	"github.com/spf13/cobra"
	"gopkg.in/yaml.v3"

	"github.com/CZERTAINLY/Plotter/internal/model"
)

func (a *app) listJobsCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:     "ListJobs",
		Aliases: []string{"listjobs", "list"},
		Short:   "ListJobs prints the configured jobs and their status",
		Args:    cobra.NoArgs,
		RunE:    a.doListJobs,
	}
	cmd.Flags().StringP("output", "o", "table", "output format: table, json or yaml")
	return cmd
}

func (a *app) addJobCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:     "AddJob",
		Aliases: []string{"addjob", "add"},
		Short:   "AddJob appends a new job to the job config file",
		Args:    cobra.NoArgs,
		RunE:    a.doAddJob,
	}
	f := cmd.Flags()
	f.String("chiaExe", "", "path of the chia executable (required)")
	f.Int64("keyFingerprint", 0, "fingerprint of the key to plot with")
	f.String("farmerPK", "", "farmer public key, used together with --poolPK")
	f.String("poolPK", "", "pool public key, used together with --farmerPK")
	f.String("temp1Dir", "", "temporary directory (required)")
	f.String("temp2Dir", "", "second temporary directory")
	f.String("plotDir", "", "final directory of plots (required)")
	f.Int("threadCount", model.DefaultThreadCount, "plotter threads")
	f.Int("maxRamMB", model.DefaultMaxRAMMB, "plotter memory buffer in MiB")
	f.Int("bucketCount", model.DefaultBucketCount, "plotter buckets")
	f.Int("plotCount", model.DefaultPlotCount, "number of plots to create")
	f.String("queueName", model.DefaultQueueName, "queue the job belongs to")
	f.Int("plotParallelism", 0, "informational number of parallel plots of the queue")
	return cmd
}

func (a *app) removeJobCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:     "RemoveJob",
		Aliases: []string{"removejob", "remove"},
		Short:   "RemoveJob removes a job from the job config file, a running plot is left to finish",
		Args:    cobra.NoArgs,
		RunE:    a.doRemoveJob,
	}
	cmd.Flags().Int("jobId", 0, "identifier of the job to remove (required)")
	return cmd
}

// jobView is one line of ListJobs.
type jobView struct {
	ID     int              `json:"id" yaml:"id"`
	Job    model.Job        `json:"job" yaml:"job"`
	Status *model.JobStatus `json:"status,omitempty" yaml:"status,omitempty"`
}

func (a *app) doListJobs(cmd *cobra.Command, _ []string) error {
	output, _ := cmd.Flags().GetString("output")
	switch output {
	case "table", "json", "yaml":
	default:
		return usageError(fmt.Errorf("unsupported output %q", output))
	}
	cfg, err := a.settings()
	if err != nil {
		return err
	}

	jobs, err := model.LoadConfig(cfg.ConfigFile)
	if err != nil {
		return err
	}
	status, err := model.ReadStatus(cfg.StatusFile)
	if err != nil {
		return err
	}

	views := make([]jobView, 0, len(jobs.Jobs))
	for _, id := range slices.Sorted(maps.Keys(jobs.Jobs)) {
		v := jobView{ID: id, Job: jobs.Jobs[id]}
		if st, ok := status.Jobs[id]; ok {
			v.Status = &st
		}
		views = append(views, v)
	}

	out := cmd.OutOrStdout()
	switch output {
	case "json":
		enc := json.NewEncoder(out)
		enc.SetIndent("", "  ")
		return enc.Encode(views)
	case "yaml":
		enc := yaml.NewEncoder(out)
		defer func() { _ = enc.Close() }()
		return enc.Encode(views)
	default:
		return writeTable(out, views)
	}
}

func writeTable(out io.Writer, views []jobView) error {
	w := tabwriter.NewWriter(out, 0, 0, 2, ' ', 0)
	_, _ = fmt.Fprintln(w, "ID\tSTATUS\tPROGRESS\tRUNS\tPID\tENABLED\tTEMP1\tTEMP2\tPLOT DIR\tTHREADS\tRAM MB\tBUCKETS\tQUEUE")
	for _, v := range views {
		state, progress, runs, pid, enabled := "-", "-", "-", "-", "-"
		if st := v.Status; st != nil {
			state = string(st.Status)
			if st.ProgressPercentage >= 0 {
				progress = strconv.FormatFloat(st.ProgressPercentage, 'f', 0, 64) + "%"
			}
			runs = fmt.Sprintf("%d/%d", st.RunCount, v.Job.PlotCount)
			if st.ProcessID > 0 {
				pid = strconv.Itoa(st.ProcessID)
			}
			enabled = strconv.FormatBool(st.Enabled)
		}
		_, _ = fmt.Fprintf(w, "%d\t%s\t%s\t%s\t%s\t%s\t%s\t%s\t%s\t%d\t%d\t%d\t%s\n",
			v.ID,
			state,
			progress,
			runs,
			pid,
			enabled,
			v.Job.Temp1Dir,
			dash(v.Job.Temp2Dir),
			v.Job.PlotDir,
			v.Job.ThreadCount,
			v.Job.MaxRAMMB,
			v.Job.BucketCount,
			dash(v.Job.QueueName),
		)
	}
	return w.Flush()
}

func dash(s string) string {
	if s == "" {
		return "-"
	}
	return s
}

func (a *app) doAddJob(cmd *cobra.Command, _ []string) error {
	f := cmd.Flags()
	str := func(name string) string {
		v, _ := f.GetString(name)
		return strings.TrimSpace(v)
	}
	num := func(name string) int {
		v, _ := f.GetInt(name)
		return v
	}
	fingerprint, _ := f.GetInt64("keyFingerprint")

	job := model.Job{
		ChiaExe:         str("chiaExe"),
		KeyFingerprint:  fingerprint,
		FarmerPublicKey: str("farmerPK"),
		PoolPublicKey:   str("poolPK"),
		Temp1Dir:        str("temp1Dir"),
		Temp2Dir:        str("temp2Dir"),
		PlotDir:         str("plotDir"),
		ThreadCount:     num("threadCount"),
		MaxRAMMB:        num("maxRamMB"),
		BucketCount:     num("bucketCount"),
		PlotCount:       num("plotCount"),
		QueueName:       str("queueName"),
		PlotParallelism: num("plotParallelism"),
	}
	if job.ChiaExe == "" {
		return usageError(errors.New("--chiaExe is required"))
	}
	if err := job.Validate(); err != nil {
		return usageError(err)
	}

	cfg, err := a.settings()
	if err != nil {
		return err
	}
	jobs, err := model.ReadConfig(cfg.ConfigFile)
	if err != nil {
		return err
	}
	id := jobs.Add(job)
	if err := model.WriteConfig(cfg.ConfigFile, jobs); err != nil {
		return err
	}
	slog.InfoContext(cmd.Context(), "job added", "job_id", id, "config", cfg.ConfigFile)
	_, _ = fmt.Fprintf(cmd.OutOrStdout(), "Added job %d\n", id)
	return nil
}

func (a *app) doRemoveJob(cmd *cobra.Command, _ []string) error {
	id, _ := cmd.Flags().GetInt("jobId")
	if id <= 0 {
		return usageError(errors.New("--jobId is required"))
	}
	cfg, err := a.settings()
	if err != nil {
		return err
	}

	jobs, err := model.LoadConfig(cfg.ConfigFile)
	if err != nil {
		return err
	}
	if err := jobs.Remove(id); err != nil {
		return err
	}
	if err := model.WriteConfig(cfg.ConfigFile, jobs); err != nil {
		return err
	}
	slog.InfoContext(cmd.Context(), "job removed", "job_id", id, "config", cfg.ConfigFile)
	_, _ = fmt.Fprintf(cmd.OutOrStdout(), "Removed job %d\n", id)
	return nil
}
