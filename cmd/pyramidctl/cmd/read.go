package cmd

import (
	"fmt"

	"github.com/disintegration/imaging"
	"github.com/spf13/cobra"

	"github.com/mrjoshuak/go-pyramid/pyramid"
)

func newReadCmd(e *env) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "read <file> <output>",
		Short: "write a region, a level or a thumbnail as an image file",
		Long: `Reads pixels from a pyramid and saves them as PNG, JPEG, TIFF, BMP or GIF
by the output extension.

Without --width and --height the whole level is read. With --magnification
the region is chosen by objective magnification instead of level, and --x-mm
and --y-mm give its level-0 origin in millimetres.`,
		Args: cobra.ExactArgs(2),
	}
	f := cmd.Flags()
	f.IntP("level", "l", -1, "level to read, -1 for the coarsest")
	f.Int("x", 0, "left edge in level pixels")
	f.Int("y", 0, "top edge in level pixels")
	f.Int("width", 0, "region width, 0 for the rest of the level")
	f.Int("height", 0, "region height, 0 for the rest of the level")
	f.Float64("magnification", 0, "read at this objective magnification")
	f.Float64("slack", 0.25, "accepted relative spacing mismatch for --magnification")
	f.Float64("x-mm", 0, "left edge in millimetres for --magnification")
	f.Float64("y-mm", 0, "top edge in millimetres for --magnification")
	f.Int("thumbnail", 0, "fit the result into a square of this size")

	cmd.RunE = e.run(func(cmd *cobra.Command, args []string) error {
		in, out := args[0], args[1]
		flags := cmd.Flags()
		level, _ := flags.GetInt("level")
		x, _ := flags.GetInt("x")
		y, _ := flags.GetInt("y")
		w, _ := flags.GetInt("width")
		h, _ := flags.GetInt("height")
		mag, _ := flags.GetFloat64("magnification")
		slack, _ := flags.GetFloat64("slack")
		xmm, _ := flags.GetFloat64("x-mm")
		ymm, _ := flags.GetFloat64("y-mm")
		thumb, _ := flags.GetInt("thumbnail")

		p, err := e.open(in)
		if err != nil {
			return err
		}
		defer p.Free()

		var img *pyramid.Image
		err = p.View(func(a *pyramid.Access) error {
			var err error
			if mag > 0 {
				if w <= 0 || h <= 0 {
					return fmt.Errorf("--magnification needs --width and --height")
				}
				img, err = a.PatchAsImageForMagnification(mag, slack, xmm, ymm, w, h, true)
				return err
			}

			lv, err := p.LevelInfo(level)
			if err != nil {
				return err
			}
			if level < 0 {
				level = p.LevelCount() - 1
			}
			if w <= 0 {
				w = lv.Width - x
			}
			if h <= 0 {
				h = lv.Height - y
			}
			img, err = a.PatchAsImage(level, x, y, w, h, true)
			return err
		})
		if err != nil {
			return err
		}

		m, err := img.ToImage()
		if err != nil {
			return err
		}
		if thumb > 0 {
			m = imaging.Fit(m, thumb, thumb, imaging.Lanczos)
		}
		if err := imaging.Save(m, out); err != nil {
			return err
		}

		b := m.Bounds()
		e.logger.InfoContext(cmd.Context(), "region read", "input", in, "output", out, "width", b.Dx(), "height", b.Dy())
		fmt.Fprintf(cmd.OutOrStdout(), "%s: %dx%d\n", out, b.Dx(), b.Dy())
		return nil
	})
	return cmd
}
