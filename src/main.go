package main

import (
	"flag"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"relgraph/src/directors"
	"relgraph/src/engine"
	"relgraph/src/helpers"
	"relgraph/src/server"
	"relgraph/src/settings"
)

// printUsage prints helpful usage information
func printUsage() {
	fmt.Fprintln(os.Stderr, "relgraph - relationship graph shell")
	fmt.Fprintln(os.Stderr, "\nUsage:")
	fmt.Fprintln(os.Stderr, "  relgraph [options]")
	fmt.Fprintln(os.Stderr, "\nOptions:")
	flag.PrintDefaults()

	fmt.Fprintln(os.Stderr, "\nExamples:")
	fmt.Fprintln(os.Stderr, "  relgraph --schema=schema.yaml")
	fmt.Fprintln(os.Stderr, "  relgraph --schema=schema.yaml --listen=127.0.0.1:1776 --logdir=./log_files")
	fmt.Fprintln(os.Stderr, "\n"+directors.Usage)
}

func main() {
	args := settings.GetSettings()

	flag.StringVar(&args.SchemaFile, "schema", "", "Path to the YAML schema file")
	flag.StringVar(&args.LogDir, "logdir", "", "Directory to store log files (default: stderr)")
	flag.StringVar(&args.Listen, "listen", "", "Serve the shell over TCP on this address instead of stdin")
	flag.IntVar(&args.JournalSize, "journal", engine.DefaultJournalSize, "Number of writes kept in the store journal")
	flag.BoolVar(&args.Verbose, "verbose", false, "Enable verbose logging")
	flag.BoolVar(&args.Debug, "debug", false, "Enable debug mode")
	flag.BoolVar(&args.PrintToScreen, "print", true, "Print log messages to screen")
	flag.StringVar(&args.Version, "version", "0.1.0", "Shows version")
	flag.Usage = printUsage
	flag.Parse()

	if err := validateArguments(args); err != nil {
		fmt.Fprintf(os.Stderr, "Error: %s\n\n", err)
		printUsage()
		os.Exit(1)
	}

	logger, err := server.NewLogger(args)
	if err != nil {
		fmt.Fprintf(os.Stderr, "Error: %s\n", err)
		os.Exit(1)
	}
	defer logger.Sync()

	if args.Verbose {
		logger.Infow("relgraph starting",
			"version", args.Version,
			"schema", args.SchemaFile,
			"logDir", args.LogDir,
			"listen", args.Listen,
			"journal", args.JournalSize)
	}

	schema := &settings.Schema{}
	if args.SchemaFile != "" {
		schema, err = settings.LoadSchemaFile(args.SchemaFile)
		if err != nil {
			logger.Fatalw("Failed to load schema", "error", err)
		}
	}
	service, err := directors.NewGraphServiceFromSchema(schema, args.JournalSize, logger)
	if err != nil {
		logger.Fatalw("Failed to build graph service", "error", err)
	}

	if args.Listen == "" {
		if err := server.ServeSession(service, helpers.GenerateUUID(), os.Stdin, os.Stdout, logger); err != nil {
			logger.Fatalw("Shell failed", "error", err)
		}
		return
	}

	srv := server.InitServer(args, service, logger)
	if err := srv.Start(); err != nil {
		logger.Fatalw("Failed to start server", "error", err)
	}

	shutdownSignal := make(chan os.Signal, 1)
	signal.Notify(shutdownSignal, syscall.SIGINT, syscall.SIGTERM)
	<-shutdownSignal
	logger.Info("Shutting down server...")

	if err := srv.Stop(); err != nil {
		logger.Warnw("Error stopping server", "error", err)
	}
}

// validateArguments validates the arguments and returns an error if invalid
func validateArguments(args *settings.Arguments) error {
	if args.SchemaFile != "" && !helpers.FileExists(args.SchemaFile, nil) {
		return fmt.Errorf("schema file %s does not exist", args.SchemaFile)
	}
	if args.JournalSize < 0 {
		return fmt.Errorf("invalid journal size: %d (must not be negative)", args.JournalSize)
	}
	if args.LogDir != "" {
		if info, err := os.Stat(args.LogDir); err == nil && !info.IsDir() {
			return fmt.Errorf("log directory path exists but is not a directory: %s", args.LogDir)
		}
	}
	return nil
}
