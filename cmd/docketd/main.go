// Command docketd runs the docket document-processing daemon. The CLI
// normally launches it through `docket start`; running it directly in
// the foreground works the same way.
package main

import (
	"context"
	"flag"
	"log"

	"docket/internal/config"
	"docket/internal/daemonrun"
)

func main() {
	configPath := flag.String("config", "", "path to config file (defaults to ~/.config/docket/config.toml)")
	logLevel := flag.String("log-level", "", "override log level (debug, info, warn, error)")
	development := flag.Bool("development", false, "use console-friendly log output")
	diagnostic := flag.Bool("diagnostic", false, "enable diagnostic mode with separate DEBUG logs")
	flag.Parse()

	cfg, _, _, err := config.Load(*configPath)
	if err != nil {
		log.Fatalf("load config: %v", err)
	}

	opts := daemonrun.Options{
		LogLevel:    *logLevel,
		Development: *development,
		Diagnostic:  *diagnostic,
	}
	if opts.LogLevel == "" {
		opts.LogLevel = cfg.Logging.Level
	}

	if err := daemonrun.Run(context.Background(), cfg, opts); err != nil {
		log.Fatalf("docketd: %v", err)
	}
}
