package cmd

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/mrjoshuak/go-pyramid/pyramidutil"
)

func newExportCmd(e *env) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "export <file> <directory>",
		Short: "write the tiles of a level as PNG patches",
		Long:  "Writes every tile of a level as patch_<W>_<H>_<level>_<x>_<y>_<spacingX>_<spacingY>.png, where W and H are the level-0 size and x, y the tile origin in level pixels.",
		Args:  cobra.ExactArgs(2),
	}
	f := cmd.Flags()
	f.IntP("level", "l", 0, "level to export, -1 for the coarsest")
	f.IntP("workers", "j", 0, "patches encoded at once, 0 for one per CPU")
	f.Bool("initialized", false, "skip tiles that were never written")

	cmd.RunE = e.run(func(cmd *cobra.Command, args []string) error {
		in, dir := args[0], args[1]
		var opts pyramidutil.ExportOptions
		opts.Level, _ = cmd.Flags().GetInt("level")
		opts.Workers, _ = cmd.Flags().GetInt("workers")
		opts.Initialized, _ = cmd.Flags().GetBool("initialized")

		p, err := e.open(in)
		if err != nil {
			return err
		}
		defer p.Free()

		n, err := pyramidutil.Export(cmd.Context(), p, dir, opts)
		if err != nil {
			return err
		}
		e.logger.InfoContext(cmd.Context(), "patches exported", "input", in, "dir", dir, "patches", n)
		fmt.Fprintf(cmd.OutOrStdout(), "%s: %d patches\n", dir, n)
		return nil
	})
	return cmd
}

func newImportCmd(e *env) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "import <directory> <output.tiff>",
		Short: "build a tiled TIFF pyramid from a patch directory",
		Long:  "Reads a directory written by export, places every patch at its level and origin, fills the coarser levels and saves the result as a tiled TIFF. The tile size defaults to the largest patch.",
		Args:  cobra.ExactArgs(2),
	}
	addCreateFlags(cmd)

	cmd.RunE = e.run(func(cmd *cobra.Command, args []string) error {
		dir, out := args[0], args[1]
		opts, err := e.createOptions(cmd, !cmd.Flags().Changed("tile-size"))
		if err != nil {
			return err
		}

		p, err := pyramidutil.Import(cmd.Context(), dir, opts...)
		if err != nil {
			return err
		}
		defer p.Free()
		if err := p.Save(out); err != nil {
			return err
		}

		e.logger.InfoContext(cmd.Context(), "patches imported", "dir", dir, "output", out, "levels", p.LevelCount())
		fmt.Fprintf(cmd.OutOrStdout(), "%s: %dx%d, %d channels, %d levels, %s\n",
			out, p.FullWidth(), p.FullHeight(), p.Channels(), p.LevelCount(), p.Compression())
		return nil
	})
	return cmd
}
