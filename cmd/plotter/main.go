package main

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"os"
	"runtime/debug"

	"github.com/spf13/cobra"
	"github.com/spf13/pflag"
	"github.com/spf13/viper"

	"github.com/CZERTAINLY/Plotter/internal/log"
	"github.com/CZERTAINLY/Plotter/internal/model"
	"github.com/CZERTAINLY/Plotter/internal/service"
)

func main() {
	code := run(context.Background(), os.Args[1:], os.Stdout, os.Stderr)
	os.Exit(int(code))
}

// app holds the state of one command line invocation.
type app struct {
	stdout io.Writer
	stderr io.Writer
	viper  *viper.Viper
	logw   io.WriteCloser

	flagSettings string // value of --settings flag
	flagVerbose  bool   // value of --verbose flag
	flagLog      string // value of --log flag
}

func newApp(stdout, stderr io.Writer) *app {
	v := viper.New()
	service.SetDefaults(v)
	return &app{
		stdout: stdout,
		stderr: stderr,
		viper:  v,
	}
}

// run executes the command line and returns the exit code of the process.
func run(ctx context.Context, args []string, stdout, stderr io.Writer) model.ExitCode {
	a := newApp(stdout, stderr)
	root := a.rootCmd()
	if args == nil {
		// cobra falls back to os.Args on nil
		args = []string{}
	}
	root.SetArgs(args)

	cmd, err := root.ExecuteContextC(ctx)
	a.close()
	if err == nil {
		return model.ExitSuccess
	}

	code := exitCode(err)
	var ee *ExitError
	if errors.As(err, &ee) && ee.Err == nil {
		return code
	}
	_, _ = fmt.Fprintf(stderr, "Error: %v\n", err)
	if code == model.ExitHelp && cmd != nil {
		_ = cmd.Help()
	}
	return code
}

func (a *app) rootCmd() *cobra.Command {
	root := &cobra.Command{
		Use:   "plotter",
		Short: "Supervisor of chia plotting jobs",
		Long: `plotter keeps chia plotting jobs running.

Jobs are defined in the job config file (AddJob, RemoveJob). The Start
command supervises them: it launches "chia plots create" for every job until
the job plot count is reached and records the progress in the job status file.`,
		SilenceErrors: true,
		SilenceUsage:  true,
		RunE: func(cmd *cobra.Command, _ []string) error {
			_ = cmd.Help()
			return &ExitError{Code: model.ExitHelp}
		},
	}
	root.SetOut(a.stdout)
	root.SetErr(a.stderr)
	root.SetFlagErrorFunc(func(_ *cobra.Command, err error) error {
		return &ExitError{Code: model.ExitHelp, Err: err}
	})

	d := service.DefaultConfig()
	pf := root.PersistentFlags()
	pf.String("jobConfigFile", d.ConfigFile, "job config file")
	pf.String("jobStatusFile", d.StatusFile, "job status file")
	pf.StringVar(&a.flagSettings, "settings", "", "optional YAML file with daemon settings")
	pf.BoolVar(&a.flagVerbose, "verbose", false, "verbose logging")
	pf.StringVar(&a.flagLog, "log", log.Stderr, "log destination: stderr, stdout, discard or a file path")
	a.bind("jobConfigFile", pf.Lookup("jobConfigFile"))
	a.bind("jobStatusFile", pf.Lookup("jobStatusFile"))

	root.PersistentPreRunE = a.init

	root.AddCommand(a.startCmd())
	root.AddCommand(a.listJobsCmd())
	root.AddCommand(a.addJobCmd())
	root.AddCommand(a.removeJobCmd())
	root.AddCommand(a.versionCmd())
	return root
}

func (a *app) versionCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "version",
		Short: "version provide version of a plotter",
		Run: func(cmd *cobra.Command, _ []string) {
			out := cmd.OutOrStdout()
			info, ok := debug.ReadBuildInfo()
			if !ok {
				_, _ = fmt.Fprintln(out, "plotter: version info not available")
				return
			}

			if a.flagSettings != "" {
				_, _ = fmt.Fprintf(out, "settings: %s\n", a.flagSettings)
			}
			_, _ = fmt.Fprintf(out, "plotter: %s\n", info.Main.Version)
			_, _ = fmt.Fprintf(out, "go:      %s\n", info.GoVersion)
			for _, s := range info.Settings {
				switch s.Key {
				case "vcs.revision":
					_, _ = fmt.Fprintf(out, "commit:  %s\n", s.Value)
				case "vcs.time":
					_, _ = fmt.Fprintf(out, "date:    %s\n", s.Value)
				case "vcs.modified":
					_, _ = fmt.Fprintf(out, "dirty:   %s\n", s.Value)
				}
			}
			_, _ = fmt.Fprintln(out)
		},
	}
}

// init reads the optional settings file and sets up logging.
func (a *app) init(cmd *cobra.Command, _ []string) error {
	if a.flagSettings != "" {
		a.viper.SetConfigFile(a.flagSettings)
		if err := a.viper.ReadInConfig(); err != nil {
			return fmt.Errorf("reading settings %s: %w", a.flagSettings, err)
		}
	}

	a.logw = log.Writer(a.flagLog)
	slog.SetDefault(log.New(a.flagVerbose, a.logw))

	slog.DebugContext(cmd.Context(), "plotter run", "cmd", cmd.Name(), "settings", a.viper.ConfigFileUsed())
	return nil
}

func (a *app) close() {
	if a.logw != nil {
		_ = a.logw.Close()
	}
}

// settings returns the validated daemon settings, flags win over the
// settings file.
func (a *app) settings() (service.Config, error) {
	cfg, err := service.ParseConfig(a.viper)
	if err != nil {
		return service.Config{}, &ExitError{Code: model.ExitHelp, Err: err}
	}
	return cfg, nil
}

// bind makes a flag override the settings key. It panics when the flag is
// not registered.
func (a *app) bind(key string, flag *pflag.Flag) {
	if err := a.viper.BindPFlag(key, flag); err != nil {
		panic(fmt.Sprintf("binding flag %s: %v", key, err))
	}
}
