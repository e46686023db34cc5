package cmd

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/mrjoshuak/go-pyramid/pyramid"
	"github.com/mrjoshuak/go-pyramid/pyramidutil"
)

func newCreateCmd(e *env) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "create <image> <output.tiff>",
		Short: "build a tiled TIFF pyramid from an image",
		Long:  "Reads a PNG, JPEG, TIFF, BMP or GIF image, writes it as level 0 of a new pyramid, fills the coarser levels by downsampling and saves the result as a tiled TIFF.",
		Args:  cobra.ExactArgs(2),
	}
	addCreateFlags(cmd)
	f := cmd.Flags()
	f.Float64("spacing", 0, "pixel spacing of the image in millimetres")
	f.Float64("magnification", 0, "objective magnification of the image")

	cmd.RunE = e.run(func(cmd *cobra.Command, args []string) error {
		ctx := cmd.Context()
		in, out := args[0], args[1]
		spacing, _ := cmd.Flags().GetFloat64("spacing")
		mag, _ := cmd.Flags().GetFloat64("magnification")

		opts, err := e.createOptions(cmd, false)
		if err != nil {
			return err
		}
		img, err := pyramidutil.ReadPNG(in)
		if err != nil {
			return fmt.Errorf("reading %s: %w", in, err)
		}

		p, err := pyramid.Create(img.Width, img.Height, img.Channels, opts...)
		if err != nil {
			return err
		}
		defer p.Free()

		err = fill(ctx, p, func(x, y, w, h int) (*pyramid.Image, error) {
			return crop(img, x, y, w, h), nil
		})
		if err != nil {
			return err
		}
		if spacing > 0 {
			if err := p.SetSpacing(spacing, spacing); err != nil {
				return err
			}
		}
		if mag > 0 {
			if err := p.SetMagnification(mag); err != nil {
				return err
			}
		}
		if err := p.Save(out); err != nil {
			return err
		}

		e.logger.InfoContext(ctx, "pyramid created", "input", in, "output", out, "levels", p.LevelCount())
		fmt.Fprintf(cmd.OutOrStdout(), "%s: %dx%d, %d channels, %d levels, %s\n",
			out, p.FullWidth(), p.FullHeight(), p.Channels(), p.LevelCount(), p.Compression())
		return nil
	})
	return cmd
}
