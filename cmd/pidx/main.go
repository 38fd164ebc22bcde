// pidx issues π-derived identifiers and inspects the digit provider.
package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/xtxerr/pidx/internal/config"
	"github.com/xtxerr/pidx/internal/digits"
	"github.com/xtxerr/pidx/internal/logging"
	"github.com/xtxerr/pidx/internal/service"
)

// Version is set at build time via ldflags
var Version = "dev"

func main() {
	cfgPath := flag.String("config", "pidx.yaml", "config file path")
	logLevel := flag.String("log-level", "", "log level (overrides config)")
	ledgerDir := flag.String("ledger", "", "enable the ledger in this directory (overrides config)")
	count := flag.Int("n", 10, "number of identifiers to issue")
	length := flag.Int("length", 0, "π component length (default: pooled length)")
	noSpiral := flag.Bool("no-spiral", false, "omit the spiral component")
	digitsN := flag.Int("digits", 0, "print this many digits of π instead of issuing identifiers")
	algorithm := flag.String("algorithm", "", "algorithm for -digits: chudnovsky, machin or bbp")
	stats := flag.Bool("stats", false, "print component statistics on exit")
	flag.Parse()

	cfg, err := config.Load(*cfgPath)
	if err != nil {
		if errors.Is(err, os.ErrNotExist) {
			cfg = config.DefaultConfig()
		} else {
			fmt.Fprintf(os.Stderr, "load config: %v\n", err)
			os.Exit(1)
		}
	}

	if *logLevel != "" {
		cfg.Logging.Level = *logLevel
	}
	if *ledgerDir != "" {
		cfg.Ledger.Enabled = true
		cfg.Ledger.DataDir = *ledgerDir
	}
	logging.Init(logging.ParseLevel(cfg.Logging.Level), cfg.Logging.JSON)
	logging.Info("pidx starting", "version", Version, "config", *cfgPath)

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	if err := run(ctx, cfg, options{
		count:     *count,
		length:    *length,
		spiral:    !*noSpiral,
		digits:    *digitsN,
		algorithm: *algorithm,
		stats:     *stats,
	}); err != nil {
		logging.Error("pidx failed", "error", err)
		os.Exit(1)
	}
}

type options struct {
	count     int
	length    int
	spiral    bool
	digits    int
	algorithm string
	stats     bool
}

func run(ctx context.Context, cfg *config.Config, opts options) (err error) {
	svc, err := service.New(cfg)
	if err != nil {
		return err
	}
	defer func() {
		if opts.stats {
			fmt.Fprintf(os.Stderr, "%+v\n", svc.Statistics())
		}
		err = errors.Join(err, svc.Close())
	}()

	if opts.digits > 0 {
		name := opts.algorithm
		if name == "" {
			name = cfg.Digits.Algorithm
		}
		alg, err := digits.ParseAlgorithm(name)
		if err != nil {
			return err
		}
		block, err := svc.Digits().ComputeDigits(ctx, opts.digits, alg)
		if err != nil {
			return err
		}
		prefix := "3."
		if block.Radix == 16 {
			prefix = "0x3."
		}
		fmt.Println(prefix + block.Digits)
		return nil
	}

	if err := svc.Start(ctx); err != nil {
		return err
	}

	length := opts.length
	if length == 0 {
		length = cfg.Identifiers.Length
	}
	ids, err := svc.Generator().GenerateBatch(ctx, opts.count, length, opts.spiral)
	if err != nil {
		return err
	}
	for _, id := range ids {
		fmt.Println(id.String())
	}
	return nil
}
