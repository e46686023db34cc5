package cmd

import (
	"errors"
	"fmt"
	"path/filepath"
	"strings"

	"github.com/spf13/cobra"

	"github.com/mrjoshuak/go-pyramid/pyramid"
	"github.com/mrjoshuak/go-pyramid/pyramidutil"
	"github.com/mrjoshuak/go-pyramid/tiletable"
)

var errVerify = errors.New("verification failed")

func newConvertCmd(e *env) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "convert <file> <output.tiff|output.ttbl>",
		Short: "copy a pyramid into a new tiled TIFF or tile table",
		Long: `Copies level 0 of any readable pyramid into a new pyramid, rebuilds the
coarser levels by downsampling and saves it as a tiled TIFF, or as a tile
table when the output ends in .ttbl. Slides are copied as RGB.

With --verify the output is reopened and its level 0 compared with the
converted pyramid.`,
		Args: cobra.ExactArgs(2),
	}
	addCreateFlags(cmd)
	f := cmd.Flags()
	f.String("ttbl-format", "bgr", "tile table payload (bgr|jpeg)")
	f.Bool("verify", false, "reopen the output and compare it with the conversion")
	f.Int("tolerance", 0, "largest accepted per-sample difference for --verify")

	cmd.RunE = e.run(func(cmd *cobra.Command, args []string) error {
		ctx := cmd.Context()
		in, out := args[0], args[1]
		flags := cmd.Flags()
		verify, _ := flags.GetBool("verify")
		tolerance, _ := flags.GetInt("tolerance")
		ttblFormat, _ := flags.GetString("ttbl-format")
		quality := e.cfg.Pyramid.Quality
		if flags.Changed("quality") {
			quality, _ = flags.GetInt("quality")
		}

		toTable := strings.EqualFold(filepath.Ext(out), ".ttbl")
		var format tiletable.Format
		switch ttblFormat {
		case "bgr":
			format = tiletable.FormatBGR
		case "jpeg":
			format = tiletable.FormatJPEG
		default:
			return fmt.Errorf("invalid tile table format %q: must be bgr or jpeg", ttblFormat)
		}

		opts, err := e.createOptions(cmd, false)
		if err != nil {
			return err
		}
		src, err := e.open(in)
		if err != nil {
			return err
		}
		defer src.Free()

		channels := src.Channels()
		if src.Kind() == pyramid.ReadOnlySlide {
			channels = 3
		}
		dst, err := pyramid.Create(src.FullWidth(), src.FullHeight(), channels, opts...)
		if err != nil {
			return err
		}
		defer dst.Free()

		err = src.View(func(a *pyramid.Access) error {
			return fill(ctx, dst, func(x, y, w, h int) (*pyramid.Image, error) {
				return a.PatchAsImage(0, x, y, w, h, true)
			})
		})
		if err != nil {
			return err
		}
		if sx, sy := src.Spacing(); sx != 1 || sy != 1 {
			if err := dst.SetSpacing(sx, sy); err != nil {
				return err
			}
		}

		if toTable {
			err = writeTileTable(ctx, dst, out, format, quality)
		} else {
			err = dst.Save(out)
		}
		if err != nil {
			return err
		}
		e.logger.InfoContext(ctx, "pyramid converted", "input", in, "output", out, "levels", dst.LevelCount())
		fmt.Fprintf(cmd.OutOrStdout(), "%s: %dx%d, %d channels, %d levels\n",
			out, dst.FullWidth(), dst.FullHeight(), dst.Channels(), dst.LevelCount())

		if !verify {
			return nil
		}
		return verifyOutput(cmd, e, dst, out, tolerance)
	})
	return cmd
}

// verifyOutput reopens out and compares its level 0 with p.
func verifyOutput(cmd *cobra.Command, e *env, p *pyramid.Pyramid, out string, tolerance int) error {
	opts, err := e.cfg.Options(e.logger)
	if err != nil {
		return err
	}
	check, err := pyramid.OpenFile(out, opts...)
	if err != nil {
		return err
	}
	defer check.Free()

	if p.Channels() != check.Channels() {
		e.logger.WarnContext(cmd.Context(), "skipping verification", "reason", "channel count changed",
			"converted", p.Channels(), "output", check.Channels())
		return nil
	}
	same, diffs, err := pyramidutil.Compare(p, check, pyramidutil.CompareOptions{Level: 0, Tolerance: tolerance})
	if err != nil {
		return err
	}
	w := cmd.OutOrStdout()
	if same {
		fmt.Fprintln(w, "verified: level 0 matches")
		return nil
	}
	for _, d := range diffs {
		fmt.Fprintf(w, "  %s\n", d)
	}
	return fmt.Errorf("%w: %d differences", errVerify, len(diffs))
}
