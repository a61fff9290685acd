// rollpipe 从标准输入逐行读取，并写入滚动日志文件。
//
//	some-daemon 2>&1 | rollpipe --file logs/app.log --pattern 'logs/app-%d{yyyy-MM-dd}.%i.log.gz' --max-file-size 10MB
package main

import (
	"bufio"
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/lmittmann/tint"
	"github.com/mattn/go-isatty"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	slogmulti "github.com/samber/slog-multi"
	"github.com/urfave/cli/v2"

	"gitee.com/MM-Q/logrollx"
	"gitee.com/MM-Q/logrollx/status"
)

const (
	FlagCatRolling = "Rolling options:"
	FlagCatGlobal  = "Global options:"

	// shutdownGrace 是退出时等待压缩任务的时间
	shutdownGrace = 30 * time.Second
)

func main() {
	if err := Run(context.Background(), os.Args, os.Stdin); err != nil {
		slog.Error(err.Error())
		code := 1
		var ec cli.ExitCoder
		if errors.As(err, &ec) {
			code = ec.ExitCode()
		}
		os.Exit(code)
	}
}

// Run 解析参数并把 in 的内容写入滚动文件，直到 EOF 或收到信号
func Run(ctx context.Context, args []string, in io.Reader) error {
	var (
		verbose     bool
		tee         bool
		configPath  string
		metricsAddr string
		cfg         logrollx.Config
		maxFileSize string
		sizeCap     string
	)

	app := &cli.App{
		Name:  "rollpipe",
		Usage: "copy stdin into a rolling log file",
		// 退出码由 main 处理，Run 本身不退出进程
		ExitErrHandler: func(*cli.Context, error) {},
		Flags: []cli.Flag{
			&cli.BoolFlag{
				Name:        "verbose",
				Aliases:     []string{"v"},
				Usage:       "report info level status events",
				EnvVars:     []string{"ROLLPIPE_VERBOSE"},
				Destination: &verbose,
				Category:    FlagCatGlobal,
			},
			&cli.StringFlag{
				Name:        "config",
				Aliases:     []string{"c"},
				Usage:       "load appender settings from YAML `FILE`; other rolling flags override it",
				EnvVars:     []string{"ROLLPIPE_CONFIG"},
				Destination: &configPath,
				Category:    FlagCatGlobal,
			},
			&cli.StringFlag{
				Name:        "metrics-addr",
				Usage:       "serve Prometheus metrics on `ADDR`, e.g. :9105",
				Destination: &metricsAddr,
				Category:    FlagCatGlobal,
			},
			&cli.BoolFlag{
				Name:        "tee",
				Usage:       "also copy input to stdout",
				Destination: &tee,
				Category:    FlagCatGlobal,
			},
			&cli.StringFlag{
				Name:        "file",
				Aliases:     []string{"f"},
				Usage:       "active log `PATH`; leave empty to write straight to the rendered pattern",
				Destination: &cfg.File,
				Category:    FlagCatRolling,
			},
			&cli.StringFlag{
				Name:        "pattern",
				Aliases:     []string{"p"},
				Usage:       "archive file name `PATTERN`, e.g. logs/app-%d{yyyy-MM-dd}.%i.log.gz",
				Destination: &cfg.FileNamePattern,
				Category:    FlagCatRolling,
			},
			&cli.IntFlag{
				Name:        "max-history",
				Usage:       "number of periods to keep",
				Destination: &cfg.MaxHistory,
				Category:    FlagCatRolling,
			},
			&cli.StringFlag{
				Name:        "max-file-size",
				Usage:       "roll within a period once the active file reaches `SIZE`, e.g. 10MB",
				Destination: &maxFileSize,
				Category:    FlagCatRolling,
			},
			&cli.StringFlag{
				Name:        "total-size-cap",
				Usage:       "delete oldest archives once they exceed `SIZE` in total",
				Destination: &sizeCap,
				Category:    FlagCatRolling,
			},
			&cli.BoolFlag{
				Name:        "prudent",
				Usage:       "lock the file on every write so several processes can share it",
				Destination: &cfg.Prudent,
				Category:    FlagCatRolling,
			},
		},
		Action: func(c *cli.Context) error {
			logger := newLogger(verbose)
			slog.SetDefault(logger)

			final, err := mergeConfig(c, configPath, &cfg, maxFileSize, sizeCap)
			if err != nil {
				return cli.Exit(err.Error(), 2)
			}

			minLevel := status.Warn
			if verbose {
				minLevel = status.Info
			}
			lctx := logrollx.NewContext(
				logrollx.WithName("rollpipe"),
				logrollx.WithStatusListener(status.NewConsoleListener(os.Stderr, minLevel)),
			)

			if metricsAddr != "" {
				stop, err := serveMetrics(metricsAddr, lctx.Metrics())
				if err != nil {
					return err
				}
				defer stop()
			}

			appender, err := final.Build(lctx)
			if err != nil {
				lctx.Stop(0)
				return err
			}
			slog.Info("Writing", "active", appender.ActiveName(), "pattern", final.FileNamePattern)

			var out io.Writer = appender
			if tee {
				out = io.MultiWriter(appender, os.Stdout)
			}
			copyErr := pump(c.Context, in, out)

			if err := appender.Stop(); err != nil {
				slog.Warn("Closing appender", "err", err)
			}
			if n := lctx.Stop(shutdownGrace); n > 0 {
				slog.Warn("Abandoned pending compression tasks", "count", n)
			}
			return copyErr
		},
	}

	sigCtx, cancel := signal.NotifyContext(ctx, os.Interrupt, syscall.SIGTERM)
	defer cancel()
	return app.RunContext(sigCtx, args)
}

func newLogger(verbose bool) *slog.Logger {
	level := slog.LevelInfo
	if verbose {
		level = slog.LevelDebug
	}
	w := os.Stderr
	handler := slogmulti.Fanout(
		tint.NewHandler(w, &tint.Options{
			Level:      level,
			TimeFormat: time.StampMilli,
			NoColor:    !isatty.IsTerminal(w.Fd()),
		}),
	)
	return slog.New(handler)
}

// mergeConfig 以配置文件为底，命令行中显式设置的选项覆盖它
func mergeConfig(c *cli.Context, path string, flags *logrollx.Config, maxFileSize, sizeCap string) (*logrollx.Config, error) {
	final := &logrollx.Config{}
	if path != "" {
		loaded, err := logrollx.LoadConfig(path)
		if err != nil {
			return nil, err
		}
		final = loaded
	}
	if final.Name == "" {
		final.Name = "rollpipe"
	}
	if c.IsSet("file") {
		final.File = flags.File
	}
	if c.IsSet("pattern") {
		final.FileNamePattern = flags.FileNamePattern
	}
	if c.IsSet("max-history") {
		final.MaxHistory = flags.MaxHistory
	}
	if c.IsSet("prudent") {
		final.Prudent = flags.Prudent
	}
	if c.IsSet("max-file-size") {
		v, err := logrollx.ParseFileSize(maxFileSize)
		if err != nil {
			return nil, err
		}
		final.MaxFileSize = v
	}
	if c.IsSet("total-size-cap") {
		v, err := logrollx.ParseFileSize(sizeCap)
		if err != nil {
			return nil, err
		}
		final.TotalSizeCap = v
	}
	if final.File == "" && final.FileNamePattern == "" {
		return nil, errors.New("either --file or --pattern is required")
	}
	return final, nil
}

// pump 逐行复制，保证每次写入都是完整的一行，滚动只发生在行边界上
func pump(ctx context.Context, in io.Reader, out io.Writer) error {
	lines := make(chan []byte)
	errc := make(chan error, 1)
	// pump 返回后读取协程不再阻塞在发送上
	done := make(chan struct{})
	defer close(done)
	go func() {
		r := bufio.NewReader(in)
		for {
			line, err := r.ReadBytes('\n')
			if len(line) > 0 {
				select {
				case lines <- line:
				case <-done:
					return
				}
			}
			if err != nil {
				close(lines)
				if errors.Is(err, io.EOF) {
					err = nil
				}
				errc <- err
				return
			}
		}
	}()

	for {
		select {
		case <-ctx.Done():
			return nil
		case line, ok := <-lines:
			if !ok {
				return <-errc
			}
			if _, err := out.Write(line); err != nil && !errors.Is(err, logrollx.ErrRecovering) {
				return fmt.Errorf("writing: %w", err)
			}
		}
	}
}

func serveMetrics(addr string, m *logrollx.Metrics) (func(), error) {
	reg := prometheus.NewRegistry()
	if err := m.Register(reg); err != nil {
		return nil, fmt.Errorf("registering metrics: %w", err)
	}
	srv := &http.Server{
		Addr:              addr,
		Handler:           promhttp.HandlerFor(reg, promhttp.HandlerOpts{}),
		ReadHeaderTimeout: 5 * time.Second,
	}
	go func() {
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			slog.Error("Metrics server", "err", err)
		}
	}()
	return func() {
		ctx, cancel := context.WithTimeout(context.Background(), time.Second)
		defer cancel()
		_ = srv.Shutdown(ctx)
	}, nil
}
