package filesystem

const (
	// TemporaryNamePrefix is the file name prefix used for all temporary files
	// and directories created during a migration run, so that an interrupted
	// run's scratch files are easy to distinguish from migrated content. It
	// may be suffixed with additional elements if desired.
	TemporaryNamePrefix = ".migrator-temporary-"
)
