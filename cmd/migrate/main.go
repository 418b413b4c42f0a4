package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"path/filepath"

	"github.com/spf13/cobra"

	"github.com/usermigrate/migrator/cmd"
	"github.com/usermigrate/migrator/pkg/config"
	"github.com/usermigrate/migrator/pkg/journal"
	"github.com/usermigrate/migrator/pkg/logging"
	"github.com/usermigrate/migrator/pkg/migration"
	"github.com/usermigrate/migrator/pkg/orchestrator"
)

// Process exit codes: 0 on full success, 2 when the run completed with
// per-user or per-file errors recorded in the journal, 1 on any fatal
// initialization failure.
const (
	exitSuccess             = 0
	exitFatalInitialization = 1
	exitCompletedWithErrors = 2
)

func rootMain(command *cobra.Command, arguments []string) error {
	if rootConfiguration.encryptAll && rootConfiguration.encryptPass {
		return fmt.Errorf("--encrypt-all and --encrypt-pass are mutually exclusive")
	}
	if rootConfiguration.configPath == "" {
		return fmt.Errorf("--config is required")
	}

	if rootConfiguration.encryptAll || rootConfiguration.encryptPass {
		passphrase := os.Getenv("MIGRATE_ENCRYPTION_KEY")
		if passphrase == "" {
			return fmt.Errorf("MIGRATE_ENCRYPTION_KEY must be set to perform an encryption operation")
		}
		if rootConfiguration.encryptAll {
			return config.EncryptFile(rootConfiguration.configPath, passphrase)
		}
		return config.EncryptCredentialField(rootConfiguration.configPath, passphrase)
	}

	status, err := run(rootConfiguration.configPath)
	if err != nil {
		cmd.Error(err)
		os.Exit(exitFatalInitialization)
	}

	switch status {
	case journal.StatusSuccess:
		os.Exit(exitSuccess)
	case journal.StatusCompletedWithErrors:
		os.Exit(exitCompletedWithErrors)
	default:
		os.Exit(exitFatalInitialization)
	}
	return nil
}

// run loads the configuration, wires an Orchestrator, and executes one
// migration pass to completion.
func run(configPath string) (journal.GlobalStatus, error) {
	logger := logging.RootLogger

	configuration, err := config.Load(configPath)
	if err != nil {
		return journal.StatusFailed, fmt.Errorf("unable to load configuration: %w", err)
	}

	paths, err := journal.PathsUnder(filepath.Dir(configuration.StateFilePath))
	if err != nil {
		return journal.StatusFailed, fmt.Errorf("unable to prepare journal paths: %w", err)
	}
	store := journal.NewStore(paths, logger.Sublogger("journal"))

	engine := &migration.Engine{
		ExcludeDirs:        configuration.ExcludeDirs,
		ExcludeFileGlobs:   configuration.ExcludeFileGlobs,
		Integrity:          configuration.Integrity,
		HashAlgorithm:      configuration.HashAlgorithm,
		HashIndexPath:      configuration.HashIndexPath,
		VerifyRetries:      configuration.VerifyRetry.Count,
		MaxFileSizeWarning: configuration.MaxFileSizeWarning,
		Mapping:            configuration.Mapping,
		Logger:             logger.Sublogger("engine"),
	}

	orch := &orchestrator.Orchestrator{
		Config:  configuration,
		Engine:  engine,
		Journal: store,
		Mounter: &preMountedSource{root: configuration.MountPoint},
		Logger:  logger,
	}

	ctx, stop := signal.NotifyContext(context.Background(), cmd.TerminationSignals...)
	defer stop()

	return orch.Run(ctx)
}

var rootCommand = &cobra.Command{
	Use:          "migrate",
	Short:        "Migrates user home directories from a Windows profile source to Linux home directories",
	Args:         cmd.DisallowArguments,
	SilenceUsage: true,
	RunE:         rootMain,
}

var rootConfiguration struct {
	configPath  string
	encryptAll  bool
	encryptPass bool
}

func init() {
	flags := rootCommand.Flags()
	flags.StringVar(&rootConfiguration.configPath, "config", "", "Path to the YAML configuration file")
	flags.BoolVar(&rootConfiguration.encryptAll, "encrypt-all", false, "Re-encrypt the configuration file in place")
	flags.BoolVar(&rootConfiguration.encryptPass, "encrypt-pass", false, "Encrypt only the configuration's credential field")

	cobra.EnableCommandSorting = false
	cobra.MousetrapHelpText = ""
}

func main() {
	if err := rootCommand.Execute(); err != nil {
		cmd.Fatal(err)
	}
}
