package settings

import "sync"

type Arguments struct {
	// Path to the YAML schema declaring components, relationships and
	// query sets.
	SchemaFile string

	// Directory for log files; empty logs to stdout only.
	LogDir string

	// Address for the shell server; empty runs the stdin shell.
	Listen string

	// Strongly verbose logging
	Verbose bool

	Debug bool

	PrintToScreen bool

	// Number of writes the store journal keeps.
	JournalSize int

	Version string
}

var (
	instance *Arguments
	once     sync.Once
)

// GetSettings returns the process-wide arguments.
func GetSettings() *Arguments {
	once.Do(func() {
		instance = &Arguments{}
	})
	return instance
}
