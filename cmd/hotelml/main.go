// Command hotelml runs the hotel reservation pipeline stages and the
// prediction server.
package main

import (
	"context"
	"io"
	"os"
	"os/signal"
	"syscall"

	"github.com/spf13/afero"
	"github.com/spf13/cobra"

	"github.com/gumutzkn/MLOPS-PROJECT-1/config"
	"github.com/gumutzkn/MLOPS-PROJECT-1/pkg/errors"
	"github.com/gumutzkn/MLOPS-PROJECT-1/pkg/log"
	"github.com/gumutzkn/MLOPS-PROJECT-1/storage"
	"github.com/gumutzkn/MLOPS-PROJECT-1/tracking"
)

var (
	configPath string
	logLevel   string
)

var rootCmd = &cobra.Command{
	Use:           "hotelml",
	Short:         "hotel reservation cancellation pipeline",
	SilenceUsage:  true,
	SilenceErrors: true,
}

func init() {
	rootCmd.PersistentFlags().StringVarP(&configPath, "config", "c", "",
		"config file (defaults to $HOTEL_CONFIG_PATH, then "+config.DefaultPath+")")
	rootCmd.PersistentFlags().StringVar(&logLevel, "log-level", "", "log level, overrides log.level")

	rootCmd.AddCommand(ingestCmd, processCmd, trainCmd, pipelineCmd, serveCmd, runsCmd)
}

func main() {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	err := rootCmd.ExecuteContext(ctx)
	stop()
	if err != nil {
		log.GetLoggerWithName("hotelml").Error("Command failed", err)
		os.Exit(1)
	}
}

// env is what every subcommand needs.
type env struct {
	cfg    *config.Config
	fs     afero.Fs
	logger log.Logger
}

func setup() (*env, error) {
	cfg, err := config.Load(configPath)
	if err != nil {
		// ログ設定前でも読めるように既定の出力へ
		_ = log.SetupLogger("info", os.Stderr)
		return nil, err
	}
	level := cfg.Log.Level
	if logLevel != "" {
		level = logLevel
	}
	if err := log.SetupLogger(level, os.Stderr); err != nil {
		return nil, errors.NewConfigurationError("log.level", err.Error(), level)
	}
	return &env{cfg: cfg, fs: afero.NewOsFs(), logger: log.GetLoggerWithName("hotelml")}, nil
}

func (e *env) blobStore(ctx context.Context) (storage.BlobStore, error) {
	opts := e.cfg.StorageOptions()
	opts.Fs = e.fs
	return storage.New(ctx, opts)
}

func (e *env) recorder() (tracking.Recorder, func(), error) {
	rec, err := tracking.New(e.cfg.TrackingOptions())
	if err != nil {
		return nil, nil, err
	}
	closeFn := func() {
		if c, ok := rec.(io.Closer); ok {
			if err := c.Close(); err != nil {
				e.logger.Warn("Closing experiment recorder failed", err)
			}
		}
	}
	return rec, closeFn, nil
}
