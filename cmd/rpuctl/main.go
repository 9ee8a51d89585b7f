// Command rpuctl exercises an nRF7002 companion chip through the rpubus
// transport: bring-up self test, raw memory reads and writes, power state
// and OTP contents. With -sim it runs against the in-process simulator.
package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"net/http"
	"os"
	"time"

	"github.com/go-logr/logr"
	"github.com/go-logr/zapr"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"

	"github.com/jangala-dev/tinygo-nrf70bus/config"
	"github.com/jangala-dev/tinygo-nrf70bus/rpubus"
)

const usage = `usage: rpuctl [flags] <command> [args]

commands:
  selftest             power up, exercise every latency class, sleep and wake
  read <addr> <len>    hex dump len bytes from addr
  write <addr> <hex>   write hex-encoded bytes to addr
  status               report the chip's power state
  otp                  print MAC addresses, UUID and protection state

flags:
`

func newLogger(verbosity int) logr.Logger {
	encoder := zapcore.NewConsoleEncoder(zap.NewDevelopmentEncoderConfig())
	core := zapcore.NewCore(encoder, zapcore.Lock(os.Stderr), zap.NewAtomicLevelAt(zapcore.Level(-verbosity)))
	return zapr.NewLogger(zap.New(core))
}

func main() {
	var (
		cfgPath     = flag.String("config", "", "board configuration (YAML)")
		sim         = flag.Bool("sim", false, "run against the simulated chip")
		verbosity   = flag.Int("v", 0, "log verbosity (1: bus traffic, 2: register trace)")
		metricsAddr = flag.String("metrics-addr", "", "serve Prometheus metrics on this address")
		linger      = flag.Duration("linger", 0, "keep serving metrics this long after the command")
		timeout     = flag.Duration("timeout", 5*time.Second, "overall command timeout")
	)
	flag.Usage = func() {
		fmt.Fprint(flag.CommandLine.Output(), usage)
		flag.PrintDefaults()
	}
	flag.Parse()
	if flag.NArg() == 0 {
		flag.Usage()
		os.Exit(2)
	}

	log := newLogger(*verbosity)
	setupLog := log.WithName("setup")

	board, err := loadBoard(*cfgPath, *sim)
	if err != nil {
		setupLog.Error(err, "unable to load board configuration")
		os.Exit(1)
	}

	reg := prometheus.NewRegistry()
	metrics, err := rpubus.NewMetrics(reg)
	if err != nil {
		setupLog.Error(err, "unable to register metrics")
		os.Exit(1)
	}
	var srv *http.Server
	if *metricsAddr != "" {
		srv = &http.Server{Addr: *metricsAddr, Handler: promhttp.HandlerFor(reg, promhttp.HandlerOpts{})}
		go func() {
			if err := srv.ListenAndServe(); !errors.Is(err, http.ErrServerClosed) {
				setupLog.Error(err, "metrics server stopped")
			}
		}()
		setupLog.Info("serving metrics", "addr", *metricsAddr)
	}

	var hw *hardware
	if *sim {
		hw, err = openSim(board, log)
	} else {
		hw, err = openHardware(board, log)
	}
	if err != nil {
		setupLog.Error(err, "unable to open hardware", "sim", *sim)
		os.Exit(1)
	}
	defer hw.close()

	opts := append(board.DeviceOptions(),
		rpubus.WithLogger(log),
		rpubus.WithMetrics(metrics),
		rpubus.WithClock(hw.clock),
	)
	dev, err := rpubus.New(hw.transport, hw.pins, opts...)
	if err != nil {
		setupLog.Error(err, "unable to create device")
		os.Exit(1)
	}

	ctx, cancel := context.WithTimeout(context.Background(), *timeout)
	err = run(ctx, dev, hw, flag.Args())
	cancel()

	if srv != nil {
		if *linger > 0 {
			time.Sleep(*linger)
		}
		_ = srv.Shutdown(context.Background())
	}
	if err != nil {
		log.Error(err, "command failed", "command", flag.Arg(0))
		hw.close()
		os.Exit(1)
	}
}

func loadBoard(path string, sim bool) (config.Board, error) {
	if path != "" {
		return config.Load(path)
	}
	if !sim {
		return config.Board{}, errors.New("-config is required without -sim")
	}
	b := config.Default()
	b.Pins.BuckEn, b.Pins.IOVDD = 0, 1
	return b, b.Validate()
}
