// pyramidctl creates, inspects and converts tiled image pyramids.
//
// Usage:
//
//	pyramidctl [global options] <command> [options] <args>
//
// Commands:
//
//	create   build a tiled TIFF pyramid from an image
//	info     describe a pyramid file, optionally with statistics and validation
//	read     write a region, a level or a thumbnail as an image file
//	export   write the tiles of a level as PNG patches
//	import   build a tiled TIFF pyramid from a patch directory
//	convert  copy a pyramid into a new tiled TIFF or tile table
//	version  show version information
//
// Global options:
//
//	--config     YAML configuration file
//	--log-level  debug, info, warn or error
//	--log-json   log as JSON
//	--log-file   also write logs to a rotated file
//	--slide      open TIFF files through the slide reader
//
// Exit codes:
//
//	0: Success
//	1: Error (invalid arguments, unreadable file, failed validation, etc.)
package main

import (
	"context"
	"log/slog"
	"os"
	"os/signal"
	"syscall"

	"github.com/google/uuid"

	"github.com/mrjoshuak/go-pyramid/cmd/pyramidctl/cmd"
	"github.com/mrjoshuak/go-pyramid/internal/logging"
)

// GitSHA is set at build time with -ldflags "-X main.GitSHA=...".
var GitSHA = "NA"

func main() {
	ctx, cnc := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer cnc()
	go func() {
		// a second interrupt kills the process
		defer cnc()
		<-ctx.Done()
	}()

	slog.SetDefault(logging.Logger(os.Stderr, false, slog.LevelInfo))
	ctx = logging.AppendCtx(ctx,
		slog.Group("pyramidctl",
			slog.String("run", uuid.NewString()),
			slog.String("git", GitSHA),
		))
	if err := cmd.NewRoot(GitSHA).ExecuteContext(ctx); err != nil {
		os.Exit(1)
	}
}
