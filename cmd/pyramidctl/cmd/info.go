package cmd

import (
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"

	"github.com/spf13/cobra"

	"github.com/mrjoshuak/go-pyramid/pyramid"
	"github.com/mrjoshuak/go-pyramid/pyramidutil"
)

var errInvalid = errors.New("validation failed")

// infoReport is the JSON form of the info command.
type infoReport struct {
	File          string                        `json:"file"`
	FileSize      int64                         `json:"file_size"`
	Kind          string                        `json:"kind"`
	Width         int                           `json:"width"`
	Height        int                           `json:"height"`
	Channels      int                           `json:"channels"`
	Compression   string                        `json:"compression"`
	SpacingX      float64                       `json:"spacing_x_mm,omitempty"`
	SpacingY      float64                       `json:"spacing_y_mm,omitempty"`
	Magnification float64                       `json:"magnification,omitempty"`
	Levels        []pyramid.Level               `json:"levels"`
	Properties    map[string]string             `json:"properties,omitempty"`
	Stats         []pyramidutil.ChannelStats    `json:"stats,omitempty"`
	Validation    *pyramidutil.ValidationResult `json:"validation,omitempty"`
}

func newInfoCmd(e *env) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "info <file>",
		Short: "describe a pyramid file",
		Long:  "Prints the geometry, compression, spacing and metadata of a tiled TIFF, slide or tile table. Statistics and validation read pixel data.",
		Args:  cobra.ExactArgs(1),
	}
	f := cmd.Flags()
	f.Bool("stats", false, "compute per-channel statistics")
	f.Int("level", 0, "level used for statistics, -1 for the coarsest")
	f.Bool("validate", false, "check level geometry and decode the first tile of every level")
	f.String("format", "text", "output format (text|json)")

	cmd.RunE = e.run(func(cmd *cobra.Command, args []string) error {
		path := args[0]
		withStats, _ := cmd.Flags().GetBool("stats")
		level, _ := cmd.Flags().GetInt("level")
		validate, _ := cmd.Flags().GetBool("validate")
		format, _ := cmd.Flags().GetString("format")
		if format != "text" && format != "json" {
			return fmt.Errorf("invalid format %q: must be text or json", format)
		}

		stat, err := os.Stat(path)
		if err != nil {
			return err
		}
		p, err := e.open(path)
		if err != nil {
			return err
		}
		defer p.Free()

		info := pyramidutil.GetInfo(p)
		info.Path = path
		info.FileSize = stat.Size()

		var stats []pyramidutil.ChannelStats
		if withStats {
			if stats, err = pyramidutil.LevelStats(p, level); err != nil {
				return err
			}
			if level < 0 {
				level = p.LevelCount() - 1
			}
		}
		var result *pyramidutil.ValidationResult
		if validate {
			if result, err = pyramidutil.Validate(p); err != nil {
				return err
			}
		}

		w := cmd.OutOrStdout()
		if format == "json" {
			err = writeInfoJSON(w, info, stats, result)
		} else {
			printInfo(w, info, level, stats, result)
		}
		if err != nil {
			return err
		}
		if result != nil && !result.Valid {
			return errInvalid
		}
		return nil
	})
	return cmd
}

func writeInfoJSON(w io.Writer, info *pyramidutil.Info, stats []pyramidutil.ChannelStats, result *pyramidutil.ValidationResult) error {
	r := infoReport{
		File:          info.Path,
		FileSize:      info.FileSize,
		Kind:          info.Kind.String(),
		Width:         info.Width,
		Height:        info.Height,
		Channels:      info.Channels,
		Compression:   info.Compression,
		Magnification: info.Magnification,
		Levels:        info.Levels,
		Properties:    info.Properties,
		Stats:         stats,
		Validation:    result,
	}
	if info.SpacingX != 1 || info.SpacingY != 1 {
		r.SpacingX, r.SpacingY = info.SpacingX, info.SpacingY
	}
	enc := json.NewEncoder(w)
	enc.SetIndent("", "  ")
	return enc.Encode(r)
}

func printInfo(w io.Writer, info *pyramidutil.Info, level int, stats []pyramidutil.ChannelStats, result *pyramidutil.ValidationResult) {
	compression := info.Compression
	if compression == "" {
		compression = "none"
	}
	fmt.Fprintf(w, "File:          %s\n", filepath.Base(info.Path))
	fmt.Fprintf(w, "Kind:          %s\n", info.Kind)
	fmt.Fprintf(w, "Dimensions:    %d x %d\n", info.Width, info.Height)
	fmt.Fprintf(w, "Channels:      %d\n", info.Channels)
	fmt.Fprintf(w, "Compression:   %s\n", compression)
	if info.SpacingX == 1 && info.SpacingY == 1 {
		fmt.Fprintf(w, "Spacing:       unknown\n")
	} else {
		fmt.Fprintf(w, "Spacing:       %g x %g mm\n", info.SpacingX, info.SpacingY)
	}
	if info.Magnification > 0 {
		fmt.Fprintf(w, "Magnification: %gx\n", info.Magnification)
	} else {
		fmt.Fprintf(w, "Magnification: unknown\n")
	}

	fmt.Fprintf(w, "Levels:        %d\n", len(info.Levels))
	for i, lv := range info.Levels {
		fmt.Fprintf(w, "  %d: %s\n", i, lv)
	}

	if names := info.PropertyNames(); len(names) > 0 {
		fmt.Fprintln(w, "Properties:")
		for _, name := range names {
			fmt.Fprintf(w, "  %s = %s\n", name, info.Properties[name])
		}
	}

	if stats != nil {
		fmt.Fprintf(w, "Statistics (level %d):\n", level)
		for c, s := range stats {
			fmt.Fprintf(w, "  channel %d: mean %.2f, stddev %.2f, min %g, max %g\n", c, s.Mean, s.StdDev, s.Min, s.Max)
		}
	}

	if result != nil {
		status := "OK"
		if !result.Valid {
			status = "INVALID"
		}
		fmt.Fprintf(w, "Validation:    %s\n", status)
		for _, msg := range result.Errors {
			fmt.Fprintf(w, "  [ERROR] %s\n", msg)
		}
		for _, msg := range result.Warnings {
			fmt.Fprintf(w, "  [WARNING] %s\n", msg)
		}
	}
}
