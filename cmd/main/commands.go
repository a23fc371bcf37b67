package main

import (
	"context"
	"fmt"
	"io"
	"log/slog"
	"slices"

	"github.com/CTAG07/tplsource/pkg/manifest"
	"github.com/CTAG07/tplsource/pkg/provider"
)

// Exit codes follow grep: 1 is a negative answer (absent, stale), 2 an error.
const (
	exitOK       = 0
	exitNegative = 1
	exitError    = 2
)

// cli carries the state shared by every command.
type cli struct {
	config *Config
	logger *slog.Logger
	stdout io.Writer
	out    string
}

type command struct {
	args    string
	minArgs int
	// standalone commands run without a Provider.
	standalone bool
	run        func(c *cli, ctx context.Context, p *provider.Provider, args []string) (int, error)
}

var commands = map[string]command{
	"list":      {args: "[ext...]", run: (*cli).list},
	"cat":       {args: "<name>", minArgs: 1, run: (*cli).cat},
	"mtime":     {args: "<name>...", minArgs: 1, run: (*cli).mtime},
	"exists":    {args: "<name>", minArgs: 1, run: (*cli).exists},
	"verify":    {args: "<manifest.json>", minArgs: 1, run: (*cli).verify},
	"snapshot":  {args: "<key> <name>...", minArgs: 2, run: (*cli).snapshot},
	"fresh":     {args: "<key>", minArgs: 1, run: (*cli).fresh},
	"manifests": {run: (*cli).manifests},
	"forget":    {args: "<key>", minArgs: 1, run: (*cli).forget},
	"serve":     {run: (*cli).serve},
	"clean":     {args: "[path]", standalone: true, run: (*cli).clean},
	"rm":        {args: "<path>", minArgs: 1, standalone: true, run: (*cli).rm},
	"version":   {standalone: true, run: (*cli).version},
}

func printUsage(w io.Writer) {
	fmt.Fprintln(w, "Usage: tplsource [flags] <command> [args]")
	fmt.Fprintln(w, "\nCommands:")
	names := make([]string, 0, len(commands))
	for name := range commands {
		names = append(names, name)
	}
	slices.Sort(names)
	for _, name := range names {
		fmt.Fprintf(w, "  %-10s %s\n", name, commands[name].args)
	}
}

func (c *cli) execute(ctx context.Context, name string, args []string) (int, error) {
	cmd, ok := commands[name]
	if !ok {
		return exitError, fmt.Errorf("unknown command %q", name)
	}
	if len(args) < cmd.minArgs {
		return exitError, fmt.Errorf("usage: tplsource %s %s", name, cmd.args)
	}

	var p *provider.Provider
	if !cmd.standalone {
		var err error
		p, err = provider.New(c.config.TemplateDir, provider.WithLogger(c.logger))
		if err != nil {
			return exitError, err
		}
	}
	return cmd.run(c, ctx, p, args)
}

func (c *cli) list(_ context.Context, p *provider.Provider, args []string) (int, error) {
	extensions := c.config.Extensions
	if len(args) > 0 {
		extensions = args
	}
	names, err := p.GetList(extensions...)
	if err != nil {
		return exitError, err
	}
	for _, name := range names {
		fmt.Fprintln(c.stdout, name)
	}
	return exitOK, nil
}

func (c *cli) cat(_ context.Context, p *provider.Provider, args []string) (int, error) {
	content, mtime, err := p.GetSource(args[0])
	if err != nil {
		return exitError, err
	}
	c.logger.Debug("Read template", "template", args[0], "modified", mtime, "bytes", len(content))
	if _, err = c.stdout.Write(content); err != nil {
		return exitError, err
	}
	return exitOK, nil
}

func (c *cli) mtime(_ context.Context, p *provider.Provider, args []string) (int, error) {
	times, err := p.GetLastModifiedBatch(args)
	if err != nil {
		return exitError, err
	}
	writeManifest(c.stdout, times)
	return exitOK, nil
}

func (c *cli) exists(_ context.Context, p *provider.Provider, args []string) (int, error) {
	if !p.TemplateExists(args[0]) {
		return exitNegative, nil
	}
	return exitOK, nil
}

func (c *cli) verify(_ context.Context, p *provider.Provider, args []string) (int, error) {
	deps, err := manifest.ReadFile(args[0])
	if err != nil {
		return exitError, err
	}
	return c.report(p.Verify(deps)), nil
}

func (c *cli) snapshot(ctx context.Context, p *provider.Provider, args []string) (int, error) {
	store, closeStore, err := openStore(c.config.DatabasePath, c.logger)
	if err != nil {
		return exitError, err
	}
	defer closeStore()

	key := args[0]
	deps, err := store.Record(ctx, p, key, args[1:])
	if err != nil {
		return exitError, err
	}
	if c.out != "" {
		if err = manifest.WriteFile(c.out, deps); err != nil {
			return exitError, err
		}
	}
	c.logger.Info("Recorded manifest", "key", key, "templates", len(deps))
	writeManifest(c.stdout, deps)
	return exitOK, nil
}

func (c *cli) fresh(ctx context.Context, p *provider.Provider, args []string) (int, error) {
	store, closeStore, err := openStore(c.config.DatabasePath, c.logger)
	if err != nil {
		return exitError, err
	}
	defer closeStore()

	fresh, err := store.Fresh(ctx, p, args[0])
	if err != nil {
		return exitError, err
	}
	return c.report(fresh), nil
}

func (c *cli) manifests(ctx context.Context, _ *provider.Provider, _ []string) (int, error) {
	store, closeStore, err := openStore(c.config.DatabasePath, c.logger)
	if err != nil {
		return exitError, err
	}
	defer closeStore()

	keys, err := store.Keys(ctx)
	if err != nil {
		return exitError, err
	}
	for _, key := range keys {
		fmt.Fprintln(c.stdout, key)
	}
	return exitOK, nil
}

func (c *cli) forget(ctx context.Context, _ *provider.Provider, args []string) (int, error) {
	store, closeStore, err := openStore(c.config.DatabasePath, c.logger)
	if err != nil {
		return exitError, err
	}
	defer closeStore()

	if err = store.Delete(ctx, args[0]); err != nil {
		return exitError, err
	}
	return exitOK, nil
}

func (c *cli) serve(ctx context.Context, p *provider.Provider, _ []string) (int, error) {
	if err := NewServer(c.config, c.logger, p).Run(ctx); err != nil {
		return exitError, err
	}
	return exitOK, nil
}

func (c *cli) clean(_ context.Context, _ *provider.Provider, args []string) (int, error) {
	path := c.config.CacheDir
	if len(args) > 0 {
		path = args[0]
	}
	if path == "" {
		return exitError, fmt.Errorf("no path given and no cache_dir configured")
	}
	if err := provider.Clean(path); err != nil {
		return exitError, err
	}
	c.logger.Info("Cleaned directory", "path", path)
	return exitOK, nil
}

func (c *cli) rm(_ context.Context, _ *provider.Provider, args []string) (int, error) {
	if err := provider.Rm(args[0]); err != nil {
		return exitError, err
	}
	c.logger.Info("Removed path", "path", args[0])
	return exitOK, nil
}

func (c *cli) version(context.Context, *provider.Provider, []string) (int, error) {
	v := currentVersion()
	fmt.Fprintf(c.stdout, "tplsource %s (commit %s, built %s)\n", v.Version, v.Commit, v.BuildDate)
	return exitOK, nil
}

func (c *cli) report(fresh bool) int {
	if fresh {
		fmt.Fprintln(c.stdout, "fresh")
		return exitOK
	}
	fmt.Fprintln(c.stdout, "stale")
	return exitNegative
}

// writeManifest prints name<TAB>mtime lines sorted by name.
func writeManifest(w io.Writer, deps map[string]int64) {
	names := make([]string, 0, len(deps))
	for name := range deps {
		names = append(names, name)
	}
	slices.Sort(names)
	for _, name := range names {
		fmt.Fprintf(w, "%s\t%d\n", name, deps[name])
	}
}
