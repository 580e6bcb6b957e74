// Command brownfield drives a resumable, gated remediation workflow over a
// git working tree.
package main

import (
	"fmt"
	"os"

	"github.com/fatih/color"
	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/jacopone/brownkit-sub001/internal/config"
	"github.com/jacopone/brownkit-sub001/internal/logging"
	"github.com/jacopone/brownkit-sub001/internal/orchestrator"
	"github.com/jacopone/brownkit-sub001/internal/storage"
)

var (
	flagDir      string
	flagConfig   string
	flagLogLevel string
	flagYes      bool

	logger = zap.NewNop()
)

var rootCmd = &cobra.Command{
	Use:   "brownfield",
	Short: "Resumable, gated remediation of existing codebases",
	Long: `brownfield moves a project through assessment, plan, remediation,
validation and graduation. Every phase is checkpointed, every transition is
gated, and every change is a revertible git commit.

State lives in .brownfield/ under the project root.`,
	SilenceUsage: true,
	PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
		settings, err := loadSettings()
		if err != nil {
			return err
		}
		l, err := logging.New(settings.Log)
		if err != nil {
			return err
		}
		logger = l
		return nil
	},
	PersistentPostRun: func(cmd *cobra.Command, args []string) {
		_ = logging.Sync(logger)
	},
}

func init() {
	rootCmd.PersistentFlags().StringVar(&flagDir, "dir", "", "Project root (default: current directory, or BROWNFIELD_DIR)")
	rootCmd.PersistentFlags().StringVar(&flagConfig, "config", "", "Config file (default: <state_dir>/config.yaml)")
	rootCmd.PersistentFlags().StringVar(&flagLogLevel, "log-level", "", "Log level: debug, info, warn, error")
	rootCmd.PersistentFlags().BoolVarP(&flagYes, "yes", "y", false, "Skip confirmation prompts")
}

func main() {
	if err := rootCmd.Execute(); err != nil {
		os.Exit(1)
	}
}

// projectRoot resolves --dir, then BROWNFIELD_DIR, then the working directory.
func projectRoot() (string, error) {
	if flagDir != "" {
		return flagDir, nil
	}
	return storage.DiscoverProjectRoot()
}

// loadSettings reads the config file. Without --config the file is looked up
// in the state directory, which may itself be overridden from the environment.
func loadSettings() (*config.Config, error) {
	path := flagConfig
	if path == "" {
		root, err := projectRoot()
		if err != nil {
			return nil, err
		}
		base, err := config.Load("")
		if err != nil {
			return nil, err
		}
		layout, err := storage.NewLayout(root, base.StateDir)
		if err != nil {
			return nil, err
		}
		path = layout.ConfigPath()
	}

	settings, err := config.Load(path)
	if err != nil {
		return nil, err
	}
	if flagLogLevel != "" {
		settings.Log.Level = flagLogLevel
		if err := settings.Validate(); err != nil {
			return nil, fmt.Errorf("invalid configuration: %w", err)
		}
	}
	return settings, nil
}

// openWorkflow builds the workflow for the current invocation or exits.
func openWorkflow(holder string) *orchestrator.Workflow {
	root, err := projectRoot()
	if err != nil {
		exitError(err)
	}
	settings, err := loadSettings()
	if err != nil {
		exitError(err)
	}
	w, err := orchestrator.New(&orchestrator.Config{
		Root:     root,
		Settings: settings,
		Logger:   logger,
		Holder:   holder,
	})
	if err != nil {
		exitError(err)
	}
	return w
}

func exitError(err error) {
	_ = logging.Sync(logger)
	fmt.Fprintf(os.Stderr, "Error: %v\n", err)
	os.Exit(1)
}

var (
	green  = color.New(color.FgGreen).SprintFunc()
	red    = color.New(color.FgRed).SprintFunc()
	yellow = color.New(color.FgYellow).SprintFunc()
	cyan   = color.New(color.FgCyan).SprintFunc()
	gray   = color.New(color.FgHiBlack).SprintFunc()
	bold   = color.New(color.Bold).SprintFunc()
)
