package main

import (
	"context"
	"encoding/json"
	"fmt"
	"os"
	"os/signal"
	"path/filepath"
	"syscall"

	"github.com/spf13/cobra"

	"github.com/usermigrate/migrator/cmd"
	"github.com/usermigrate/migrator/pkg/config"
	"github.com/usermigrate/migrator/pkg/journal"
	"github.com/usermigrate/migrator/pkg/logging"
	"github.com/usermigrate/migrator/pkg/supervisor"
)

func openStore(configPath string) (*journal.Store, *config.Config, error) {
	configuration, err := config.Load(configPath)
	if err != nil {
		return nil, nil, fmt.Errorf("unable to load configuration: %w", err)
	}
	paths, err := journal.PathsUnder(filepath.Dir(configuration.StateFilePath))
	if err != nil {
		return nil, nil, fmt.Errorf("unable to prepare journal paths: %w", err)
	}
	return journal.NewStore(paths, logging.RootLogger.Sublogger("journal")), configuration, nil
}

func statePathFor(configuration *config.Config) string {
	return filepath.Join(filepath.Dir(configuration.StateFilePath), "supervisor-state.json")
}

func pidPathFor(configuration *config.Config) string {
	return filepath.Join(filepath.Dir(configuration.StateFilePath), "supervisor.pid")
}

func watchMain(command *cobra.Command, arguments []string) error {
	store, configuration, err := openStore(rootConfiguration.configPath)
	if err != nil {
		return err
	}

	pidPath := pidPathFor(configuration)
	if err := supervisor.WritePIDFile(pidPath); err != nil {
		return fmt.Errorf("unable to write PID file: %w", err)
	}
	defer os.Remove(pidPath)

	orchestratorPath, err := os.Executable()
	if err != nil {
		return fmt.Errorf("unable to determine supervisor executable path: %w", err)
	}
	orchestratorPath = filepath.Join(filepath.Dir(orchestratorPath), "migrate")

	sup := &supervisor.Supervisor{
		Spawner: &supervisor.CommandSpawner{
			Path:   orchestratorPath,
			Args:   []string{"--config", rootConfiguration.configPath},
			Logger: logging.RootLogger,
		},
		Journal:   store,
		Config:    supervisor.DefaultConfig(),
		Logger:    logging.RootLogger,
		StatePath: statePathFor(configuration),
	}

	ctx, stop := signal.NotifyContext(context.Background(), cmd.TerminationSignals...)
	defer stop()

	return sup.Run(ctx)
}

func statusMain(command *cobra.Command, arguments []string) error {
	store, configuration, err := openStore(rootConfiguration.configPath)
	if err != nil {
		return err
	}

	status := supervisor.LoadStatus(store, statePathFor(configuration))
	encoded, err := json.MarshalIndent(status, "", "  ")
	if err != nil {
		return fmt.Errorf("unable to encode status: %w", err)
	}
	fmt.Println(string(encoded))
	return nil
}

func stopMain(command *cobra.Command, arguments []string) error {
	_, configuration, err := openStore(rootConfiguration.configPath)
	if err != nil {
		return err
	}
	if err := supervisor.SignalRunningSupervisor(pidPathFor(configuration), syscall.SIGTERM); err != nil {
		return fmt.Errorf("unable to signal supervisor: %w", err)
	}
	return nil
}

func checkMigrationMain(command *cobra.Command, arguments []string) error {
	store, _, err := openStore(rootConfiguration.configPath)
	if err != nil {
		return err
	}
	if !supervisor.CheckMigration(store) {
		os.Exit(1)
	}
	return nil
}

var rootCommand = &cobra.Command{
	Use:          "migrate-supervisor",
	Short:        "Watches the migration orchestrator process and restarts it under a bounded-backoff policy",
	Args:         cmd.DisallowArguments,
	SilenceUsage: true,
	RunE:         watchMain,
}

var statusCommand = &cobra.Command{
	Use:          "status",
	Short:        "Prints the current migration and supervisor status as JSON",
	Args:         cmd.DisallowArguments,
	SilenceUsage: true,
	RunE:         statusMain,
}

var stopCommand = &cobra.Command{
	Use:          "stop",
	Short:        "Signals the running supervisor to terminate",
	Args:         cmd.DisallowArguments,
	SilenceUsage: true,
	RunE:         stopMain,
}

var checkMigrationCommand = &cobra.Command{
	Use:          "check-migration",
	Short:        "Exits 0 if the journal reports terminal success, 1 otherwise",
	Args:         cmd.DisallowArguments,
	SilenceUsage: true,
	RunE:         checkMigrationMain,
}

var rootConfiguration struct {
	configPath string
}

func init() {
	rootCommand.PersistentFlags().StringVar(&rootConfiguration.configPath, "config", "", "Path to the YAML configuration file")

	cobra.EnableCommandSorting = false
	cobra.MousetrapHelpText = ""

	rootCommand.AddCommand(
		statusCommand,
		stopCommand,
		checkMigrationCommand,
	)
}

func main() {
	if err := rootCommand.Execute(); err != nil {
		cmd.Fatal(err)
	}
}
