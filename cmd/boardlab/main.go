// Command boardlab drives embedded boards through reproducible console
// sessions: power on, intercept the boot loader, run commands, optionally
// hand the console to the operator, and power off again.
//
// Usage:
//
//	boardlab -config lab.yaml -board wandboard version 'printenv bootcmd'
//	boardlab -config lab.yaml -board wandboard -interactive
//	boardlab -config lab.yaml -runs
package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"golang.org/x/term"

	"boardlab/pkg/board"
	"boardlab/pkg/cmdline"
	"boardlab/pkg/config"
	"boardlab/pkg/console"
	"boardlab/pkg/eventlog"
	"boardlab/pkg/linuxsh"
	"boardlab/pkg/logx"
	"boardlab/pkg/metrics"
	"boardlab/pkg/persistence"
	"boardlab/pkg/power"
	"boardlab/pkg/transport"
	"boardlab/pkg/uboot"
)

type options struct {
	configPath  string
	boardName   string
	interactive bool
	linux       bool
	metricsAddr string
	listRuns    bool
	commands    []string
}

func main() {
	var opts options
	flag.StringVar(&opts.configPath, "config", "lab.yaml", "lab configuration file")
	flag.StringVar(&opts.boardName, "board", "", "board to drive")
	flag.BoolVar(&opts.interactive, "interactive", false, "hand the console to the operator after boot")
	flag.BoolVar(&opts.linux, "linux", false, "boot into Linux and run commands there")
	flag.StringVar(&opts.metricsAddr, "metrics-addr", "", "serve Prometheus metrics on this address")
	flag.BoolVar(&opts.listRuns, "runs", false, "list recent sessions from the run history and exit")
	flag.Parse()
	opts.commands = flag.Args()

	if err := run(&opts); err != nil {
		fmt.Fprintf(os.Stderr, "boardlab: %v\n", err)
		os.Exit(1)
	}
}

func run(opts *options) error {
	cfg, err := config.Load(opts.configPath)
	if err != nil {
		return err
	}

	if opts.listRuns {
		return listRuns(cfg)
	}
	if opts.boardName == "" {
		return fmt.Errorf("-board is required")
	}

	bc, err := cfg.Board(opts.boardName)
	if err != nil {
		return err
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	if opts.metricsAddr != "" {
		go serveMetrics(opts.metricsAddr)
	}

	connect, err := transport.FromConfig(bc.Console)
	if err != nil {
		return err
	}
	b := &board.Board{
		Name:    bc.Name,
		Power:   powerFor(bc),
		Connect: connect,
		Logger:  logx.NewLogger(bc.Name),
	}

	var ev *eventlog.Writer
	if cfg.LogDir != "" {
		ev, err = eventlog.NewWriter(cfg.LogDir, bc.Name)
		if err != nil {
			return err
		}
		defer ev.Close()
	}

	var store *persistence.Store
	if cfg.DBPath != "" {
		store, err = persistence.Open(cfg.DBPath)
		if err != nil {
			return err
		}
		defer store.Close()
	}

	rec := newRecorder(ev, store)
	rec.sessionStarted(bc.Name)

	runErr := b.Run(ctx, func(s *board.Session) error {
		return driveSession(s, bc, opts, rec)
	})
	rec.sessionEnded(runErr)
	return runErr
}

// driveSession runs after the board is powered and connected; teardown is
// guaranteed by Board.Run regardless of what happens here.
func driveSession(s *board.Session, bc *config.BoardConfig, opts *options, rec *recorder) error {
	sink := logx.NewPrefixWriter(os.Stdout, "   <> ")
	defer sink.Flush()

	ubCfg := ubootConfig(bc)
	ub, err := uboot.New(s, ubCfg, sink)
	if err != nil {
		return err
	}
	rec.boot(ub.Name, ub.Bootlog())

	sh := &ub.Shell
	if opts.linux {
		if bc.Linux == nil {
			return fmt.Errorf("board %q has no linux section configured", bc.Name)
		}
		lm, err := bootLinux(ub, bc.Linux, sink)
		if err != nil {
			return err
		}
		sh = &lm.Shell
	}

	for _, cmd := range opts.commands {
		// Commands from the command line are already shell text.
		code, out, err := sh.Exec(cmdline.Raw(cmd))
		rec.command(sh.Name, cmd, code, out, err)
		if err != nil {
			return err
		}
		if code != 0 {
			return &console.CommandFailedError{Machine: sh.Name, Command: cmd, Code: code, Output: out}
		}
		fmt.Print(out)
	}

	if opts.interactive {
		if opts.linux {
			return fmt.Errorf("interactive mode is only supported at the boot loader")
		}
		return interactiveSession(ub, rec)
	}
	return nil
}

func bootLinux(ub *uboot.Machine, lc *config.LinuxConfig, sink *logx.PrefixWriter) (*linuxsh.Machine, error) {
	lCfg := linuxsh.Config{
		Username:       lc.Username,
		Password:       lc.Password,
		LoginPrompt:    lc.LoginPrompt,
		PasswordPrompt: lc.PasswordPrompt,
		Prompt:         lc.Prompt,
		LoginTimeout:   lc.LoginTimeout.Std(),
	}
	bootCmd := lc.BootCommand
	if bootCmd == "" {
		bootCmd = "boot"
	}
	return linuxsh.Boot(ub, lCfg, sink, cmdline.Raw(bootCmd))
}

func interactiveSession(ub *uboot.Machine, rec *recorder) error {
	fd := int(os.Stdin.Fd())
	if term.IsTerminal(fd) {
		oldState, err := term.MakeRaw(fd)
		if err != nil {
			return fmt.Errorf("raw terminal: %w", err)
		}
		defer func() { _ = term.Restore(fd, oldState) }()
	}

	rec.interactive(ub.Name, "attach")
	err := ub.Interactive(os.Stdin, os.Stdout)
	switch {
	case errors.Is(err, uboot.ErrResyncFailed):
		rec.interactive(ub.Name, "resync-failed")
	case err == nil:
		rec.interactive(ub.Name, "detach")
	}
	return err
}

func ubootConfig(bc *config.BoardConfig) uboot.Config {
	ubCfg := uboot.DefaultConfig()
	ubCfg.Prompt = bc.UBoot.Prompt
	ubCfg.AutobootPrompt = bc.UBoot.AutobootPrompt
	if bc.UBoot.AutobootKeys != "" {
		ubCfg.AutobootKeys = bc.UBoot.AutobootKeys
	}
	if bc.UBoot.BootTimeout > 0 {
		ubCfg.BootTimeout = bc.UBoot.BootTimeout.Std()
	}
	if bc.UBoot.CommandTimeout > 0 {
		ubCfg.CommandTimeout = bc.UBoot.CommandTimeout.Std()
	}
	if bc.UBoot.PathRoot != "" {
		ubCfg.PathRoot = bc.UBoot.PathRoot
	}
	return ubCfg
}

func powerFor(bc *config.BoardConfig) power.Controller {
	if len(bc.Power.OnCmd) == 0 && len(bc.Power.OffCmd) == 0 {
		return power.NullController{}
	}
	return &power.CommandController{OnCmd: bc.Power.OnCmd, OffCmd: bc.Power.OffCmd}
}

func serveMetrics(addr string) {
	mux := http.NewServeMux()
	mux.Handle("/metrics", metrics.Handler())
	srv := &http.Server{Addr: addr, Handler: mux, ReadHeaderTimeout: 5 * time.Second}
	if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
		logx.NewLogger("metrics").Errorf("metrics server: %v", err)
	}
}

func listRuns(cfg *config.Config) error {
	if cfg.DBPath == "" {
		return fmt.Errorf("config has no db_path; run history is disabled")
	}
	store, err := persistence.Open(cfg.DBPath)
	if err != nil {
		return err
	}
	defer store.Close()

	sessions, err := store.RecentSessions(20)
	if err != nil {
		return err
	}
	for _, s := range sessions {
		result := s.Result
		if result == "" {
			result = "running"
		}
		fmt.Printf("%s  %-16s %-24s %s\n", s.ID, s.Board, s.StartedAt, result)
	}
	return nil
}
