package main

import (
	"context"
	"errors"
	"fmt"
	"os"
	"sync"
	"time"

	"github.com/fixkme/bgtimer/errs"
	"github.com/fixkme/bgtimer/framework/app"
	"github.com/fixkme/bgtimer/framework/config"
	"github.com/fixkme/bgtimer/framework/core"
	"github.com/fixkme/bgtimer/mlog"
	"github.com/fixkme/bgtimer/util"
	"github.com/spf13/pflag"
	"go.uber.org/zap"
)

type flags struct {
	config    string
	kind      string
	interval  int64
	loopDelay int64
	logLevel  string
}

func parseFlags(args []string) (*flags, *pflag.FlagSet, error) {
	f := &flags{}
	fs := pflag.NewFlagSet("bgtimer", pflag.ContinueOnError)
	fs.StringVarP(&f.config, "config", "c", "", "json config file")
	fs.StringVar(&f.kind, "kind", "", "wakeup channel: wheel, runtime, single, redis")
	fs.Int64Var(&f.interval, "interval", 0, "drift corrected interval in ms, 0 disables")
	fs.Int64Var(&f.loopDelay, "loop-delay", 0, "fixed delay loop in ms, 0 disables")
	fs.StringVar(&f.logLevel, "log-level", "", "trace, debug, info, notice, warn, error")
	if err := fs.Parse(args); err != nil {
		return nil, fs, err
	}
	return f, fs, nil
}

// applyFlags 只覆盖命令行里显式给出的参数
func applyFlags(conf *config.AppConfig, f *flags, fs *pflag.FlagSet) {
	if fs.Changed("kind") {
		conf.WakeupKind = f.kind
	}
	if fs.Changed("interval") {
		conf.IntervalMs = f.interval
	}
	if fs.Changed("loop-delay") {
		conf.LoopDelayMs = f.loopDelay
	}
	if fs.Changed("log-level") {
		conf.LogLevel = f.logLevel
	}
}

func setupLog(ctx context.Context, wg *sync.WaitGroup, conf *config.LogConfig) error {
	level := mlog.ParseLevel(conf.LogLevel)
	if conf.LogZap {
		zc := zap.NewProductionConfig()
		zc.Level = zap.NewAtomicLevelAt(zap.DebugLevel)
		z, err := zc.Build()
		if err != nil {
			return err
		}
		return mlog.UseZapLogger(z, level)
	}
	if conf.LogPath == "" {
		return mlog.UseStdLogger(level)
	}
	name := conf.LogName
	if name == "" {
		name = "bgtimer"
	}
	return mlog.UseDefaultLogger(ctx, wg, conf.LogPath, name, level, conf.LogStdOut)
}

func run(args []string) error {
	f, fs, err := parseFlags(args)
	if err != nil {
		return err
	}
	if err = config.LoadConfig(f.config, config.DefaultEnvLoader); err != nil {
		return fmt.Errorf("load config: %w", err)
	}
	conf := config.Config
	applyFlags(conf, f, fs)
	if err = conf.Validate(); err != nil {
		return err
	}
	util.SetTimeOffset(time.Duration(conf.TimeOffset) * time.Millisecond)

	ctx, cancel := context.WithCancel(context.Background())
	wg := &sync.WaitGroup{}
	defer func() {
		cancel()
		wg.Wait()
	}()
	if err = setupLog(ctx, wg, &conf.LogConfig); err != nil {
		return fmt.Errorf("setup log: %w", err)
	}
	mlog.Debugf("config: %s", conf.JsonFormat())

	if err = core.InitTimerModule("timer", conf, nil, nil); err != nil {
		return err
	}
	return app.DefaultApp().Run(core.Timer)
}

// exitCode 错误码作为进程退出码, 非CodeError按Unknown
func exitCode(err error) int {
	code := int(errs.CodeOf(err))
	if code <= 0 || code > 255 {
		code = errs.ErrCode_Unknown
	}
	return code
}

func main() {
	if err := run(os.Args[1:]); err != nil {
		if errors.Is(err, pflag.ErrHelp) {
			return
		}
		ce := errs.WrapError(err)
		fmt.Fprintf(os.Stderr, "bgtimer: %v (code %d)\n", ce, ce.Code())
		os.Exit(exitCode(err))
	}
}
