// Package cmd implements the pyramidctl commands.
package cmd

import (
	"fmt"
	"io"
	"log/slog"
	"path/filepath"
	"strings"

	"github.com/spf13/cobra"

	"github.com/mrjoshuak/go-pyramid/config"
	"github.com/mrjoshuak/go-pyramid/internal/logging"
	"github.com/mrjoshuak/go-pyramid/pyramid"
	"github.com/mrjoshuak/go-pyramid/slide"
)

const version = "1.0.0"

// env is the state the root command prepares for its subcommands.
type env struct {
	cfg     *config.Config
	logger  *slog.Logger
	logFile io.Closer
	slide   bool
}

// NewRoot returns the pyramidctl command tree.
func NewRoot(gitsha string) *cobra.Command {
	e := &env{cfg: config.DefaultConfig(), logger: slog.Default()}

	cmd := &cobra.Command{
		Use:          "pyramidctl",
		Short:        "create, inspect and convert tiled image pyramids",
		Long:         "pyramidctl builds tiled multi-resolution pyramids, reads regions from them and converts between tiled TIFF, slide and tile table files.",
		SilenceUsage: true,
		CompletionOptions: cobra.CompletionOptions{
			DisableDefaultCmd: true,
		},
		PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
			return e.setup(cmd)
		},
		Run: func(cmd *cobra.Command, args []string) {
			printCommandTree(cmd.OutOrStdout(), cmd, 0)
		},
	}

	pf := cmd.PersistentFlags()
	pf.String("config", "", "YAML configuration file")
	pf.String("log-level", "", "log level (DEBUG, INFO, WARN, ERROR), overrides the configuration")
	pf.Bool("log-json", false, "log as JSON")
	pf.String("log-file", "", "also write logs to a rotated file")
	pf.BoolVar(&e.slide, "slide", false, "open TIFF files through the slide reader (always on for .svs)")

	cmd.AddCommand(
		newVersionCmd(gitsha),
		newCreateCmd(e),
		newInfoCmd(e),
		newReadCmd(e),
		newExportCmd(e),
		newImportCmd(e),
		newConvertCmd(e),
	)
	return cmd
}

// setup loads the configuration, applies the global flags and builds the
// logger.
func (e *env) setup(cmd *cobra.Command) error {
	path, _ := cmd.Flags().GetString("config")
	if path != "" {
		cfg, err := config.LoadConfig(path)
		if err != nil {
			return err
		}
		e.cfg = cfg
	}

	flags := cmd.Flags()
	if flags.Changed("log-level") {
		e.cfg.Log.Level, _ = flags.GetString("log-level")
	}
	if flags.Changed("log-json") {
		e.cfg.Log.JSON, _ = flags.GetBool("log-json")
	}
	if flags.Changed("log-file") {
		e.cfg.Log.File.Path, _ = flags.GetString("log-file")
	}

	level, err := logging.ParseLevel(e.cfg.Log.Level)
	if err != nil {
		return fmt.Errorf("invalid log level %q", e.cfg.Log.Level)
	}
	var w io.Writer = cmd.ErrOrStderr()
	if e.cfg.Log.File.Path != "" {
		f := logging.FileWriter(e.cfg.Log.File)
		e.logFile = f
		w = io.MultiWriter(w, f)
	}
	e.logger = logging.Logger(w, e.cfg.Log.JSON, level)
	return nil
}

// run wraps a command body so the log file is closed when it returns.
func (e *env) run(fn func(cmd *cobra.Command, args []string) error) func(*cobra.Command, []string) error {
	return func(cmd *cobra.Command, args []string) error {
		defer e.close()
		return fn(cmd, args)
	}
}

func (e *env) close() {
	if e.logFile != nil {
		e.logFile.Close()
		e.logFile = nil
	}
}

// open opens a pyramid file read-only. SVS files, and any TIFF when
// --slide is set, go through the slide reader.
func (e *env) open(path string) (*pyramid.Pyramid, error) {
	opts, err := e.cfg.Options(e.logger)
	if err != nil {
		return nil, err
	}
	ext := strings.ToLower(filepath.Ext(path))
	if ext == ".svs" || (e.slide && (ext == ".tif" || ext == ".tiff")) {
		s, err := slide.OpenTIFF(path, slide.WithCacheTiles(e.cfg.Cache.SlideTiles))
		if err != nil {
			return nil, err
		}
		p, err := pyramid.OpenSlide(s, opts...)
		if err != nil {
			s.Close()
			return nil, err
		}
		return p, nil
	}
	return pyramid.OpenFile(path, opts...)
}

// addCreateFlags registers the flags that override the pyramid section
// of the configuration for new pyramids.
func addCreateFlags(cmd *cobra.Command) {
	f := cmd.Flags()
	f.StringP("compression", "c", "", "tile compression (none, lzw, jpeg, deflate, zstd, packbits, jpeg2000)")
	f.Int("quality", 0, "JPEG quality")
	f.Int("tile-size", 0, "tile width and height")
	f.Int("threshold", 0, "stop adding levels once both dimensions are below this")
}

// createOptions returns the options for a new container-backed pyramid.
// With anyTileSize the tile size is left to the constructor.
func (e *env) createOptions(cmd *cobra.Command, anyTileSize bool) ([]pyramid.Option, error) {
	cfg := *e.cfg
	cfg.Pyramid.RawMemory = false

	f := cmd.Flags()
	if f.Changed("compression") {
		cfg.Pyramid.Compression, _ = f.GetString("compression")
	}
	if f.Changed("quality") {
		cfg.Pyramid.Quality, _ = f.GetInt("quality")
	}
	if f.Changed("tile-size") {
		cfg.Pyramid.TileSize, _ = f.GetInt("tile-size")
	}
	if f.Changed("threshold") {
		cfg.Pyramid.Threshold, _ = f.GetInt("threshold")
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	if anyTileSize {
		cfg.Pyramid.TileSize = 0
	}
	return cfg.Options(e.logger)
}

func printCommandTree(w io.Writer, cmd *cobra.Command, indent int) {
	fmt.Fprintf(w, "%s%s: %s\n", strings.Repeat("  ", indent), cmd.Name(), cmd.Short)
	for _, sub := range cmd.Commands() {
		if sub.IsAvailableCommand() {
			printCommandTree(w, sub, indent+1)
		}
	}
}

func newVersionCmd(gitsha string) *cobra.Command {
	return &cobra.Command{
		Use:   "version",
		Short: "show version information",
		Args:  cobra.NoArgs,
		Run: func(cmd *cobra.Command, args []string) {
			fmt.Fprintf(cmd.OutOrStdout(), "pyramidctl version %s (%s)\n", version, gitsha)
		},
	}
}
