// Command sigma compiles and renders block-based templates. It renders a
// single template to stdout by default, or hosts a live preview server with
// -serve.
package main

import (
	"flag"
	"fmt"
	"log/slog"
	"os"
	"strings"

	"github.com/mrLexx/HTML-Template-Sigma/pkg/sigma"
	"github.com/mrLexx/HTML-Template-Sigma/pkg/sourcecache"
)

var (
	Version   = "dev"
	Commit    = "none"
	BuildDate = "unknown"
)

func main() {
	configPath := flag.String("config", "./config.json", "path to the JSON configuration file")
	varsPath := flag.String("vars", "", "path to a YAML bindings file applied before rendering")
	serveMode := flag.Bool("serve", false, "host a live preview server instead of rendering once")
	showVersion := flag.Bool("version", false, "print version information and exit")
	flag.Parse()

	if *showVersion {
		fmt.Printf("sigma %s (%s, built %s)\n", Version, Commit, BuildDate)
		return
	}

	config, err := LoadConfig(*configPath)
	if err != nil {
		fmt.Fprintf(os.Stderr, "failed to load configuration: %v\n", err)
		os.Exit(1)
	}

	logger := slog.New(slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{Level: parseLogLevel(config.LogLevel)}))

	source, closeSource, err := newSource(config, logger)
	if err != nil {
		logger.Error("failed to initialize template source", "error", err)
		os.Exit(1)
	}
	defer closeSource()

	if *serveMode {
		if err := serve(config, source, logger); err != nil {
			logger.Error("preview server failed", "error", err)
			os.Exit(1)
		}
		return
	}

	if flag.NArg() != 1 {
		fmt.Fprintln(os.Stderr, "usage: sigma [flags] <template>")
		flag.PrintDefaults()
		os.Exit(2)
	}
	if err := renderOnce(config, source, logger, flag.Arg(0), *varsPath); err != nil {
		logger.Error("render failed", "template", flag.Arg(0), "error", err)
		os.Exit(1)
	}
}

func parseLogLevel(level string) slog.Level {
	switch strings.ToLower(level) {
	case "debug":
		return slog.LevelDebug
	case "info":
		return slog.LevelInfo
	case "warn":
		return slog.LevelWarn
	case "error":
		return slog.LevelError
	default:
		return slog.LevelInfo
	}
}

// newSource builds the template source for the configured template directory,
// wrapped in the SQLite source cache when one is configured. The returned
// func releases whatever the source holds open.
func newSource(config *Config, logger *slog.Logger) (sigma.Source, func(), error) {
	dir := sigma.DirSource{Root: config.TemplateDir}
	if config.SourceCachePath == "" {
		return dir, func() {}, nil
	}

	db, err := openSourceDB(config.SourceCachePath)
	if err != nil {
		return nil, nil, fmt.Errorf("failed to open source cache database: %w", err)
	}
	if err := sourcecache.SetupSchema(db); err != nil {
		_ = db.Close()
		return nil, nil, err
	}
	store, err := sourcecache.NewStore(db)
	if err != nil {
		_ = db.Close()
		return nil, nil, err
	}
	store.SetLogger(logger)

	cached := sourcecache.NewCachedSource(dir, store)
	cached.SetLogger(logger)
	logger.Info("source cache enabled", "path", config.SourceCachePath)

	return cached, func() {
		store.Close()
		_ = db.Close()
	}, nil
}

// newEngine assembles a Template with the artifact store and the built-in
// callbacks wired in.
func newEngine(config *Config, source sigma.Source, logger *slog.Logger) (*sigma.Template, error) {
	store := sigma.FileStore{Dir: config.CacheDir, Prefix: "sigma_"}
	tpl, err := sigma.New(source, store, config.Engine)
	if err != nil {
		return nil, err
	}
	tpl.SetLogger(logger)

	for name, fn := range map[string]sigma.CallbackFunc{
		"h":        sigma.HTMLEscape,
		"u":        sigma.URLEncode,
		"markdown": sigma.Markdown,
	} {
		if err := tpl.RegisterCallback(name, fn, false); err != nil {
			return nil, err
		}
	}
	return tpl, nil
}

func renderOnce(config *Config, source sigma.Source, logger *slog.Logger, name, varsPath string) error {
	tpl, err := newEngine(config, source, logger)
	if err != nil {
		return err
	}
	if err := tpl.LoadTemplate(name); err != nil {
		return err
	}
	if varsPath != "" {
		bindings, err := LoadBindings(varsPath)
		if err != nil {
			return err
		}
		if err := bindings.Apply(tpl); err != nil {
			return err
		}
	}
	return tpl.Show(os.Stdout)
}
