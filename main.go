package main

import (
	"context"
	"encoding/json"
	"fmt"
	"os"
	"os/signal"
	"syscall"
	"time"

	"net/http"
	_ "net/http/pprof"

	"github.com/joho/godotenv"
	log "github.com/sirupsen/logrus"
	"github.com/spf13/pflag"

	"github.com/simkit/rollout-engine/pkg/config"
	"github.com/simkit/rollout-engine/pkg/engine"
)

var configFile string
var debug bool
var trace bool
var stop bool

var versionFlag bool
var version = "dev"
var commit = ""

func main() {
	pflag.StringVarP(&configFile, "config", "c", "", "config file path")
	pflag.BoolVarP(&debug, "debug", "d", false, "set log level to DEBUG")
	pflag.BoolVarP(&trace, "trace", "t", false, "set log level to TRACE")
	pflag.BoolVarP(&versionFlag, "version", "v", false, "print version")
	pflag.Parse()

	if versionFlag {
		fmt.Println(version + "-" + commit)
		return
	}

	for _, envFile := range []string{".env", "../.env"} {
		if err := godotenv.Load(envFile); err == nil {
			break
		}
	}

	if debug {
		log.SetLevel(log.DebugLevel)
	}
	if trace {
		log.SetLevel(log.TraceLevel)
	}

	go func() {
		log.Infof("pprof server started on localhost:6060")
		err := http.ListenAndServe("localhost:6060", nil)
		if err != nil {
			log.Errorf("pprof server failed: %v", err)
		}
	}()

	log.Infof("rollout-engine bootstrap, version %s-%s", version, commit)

	cfg, err := config.New(configFile)
	if err != nil {
		log.Errorf("failed to read config: %v", err)
		os.Exit(1)
	}
	b, err := json.MarshalIndent(cfg, "", "  ")
	if err != nil {
		log.Errorf("failed to marshal config: %v", err)
		os.Exit(1)
	}
	log.Infof("read config:\n%s", string(b))

	ctx, cancel := context.WithCancel(context.Background())
	setupCloseHandler(cancel)

	e, err := engine.New(ctx, cfg)
	if err != nil {
		log.Errorf("failed to create engine: %v", err)
		os.Exit(1)
	}
	if cfg.Prometheus != nil {
		go e.ServeHTTP()
	}

	err = e.Run(ctx)
	e.Stop()
	if err != nil {
		if stop {
			return
		}
		log.Errorf("run %s failed: %v", e.RunID(), err)
		os.Exit(1)
	}
	log.Infof("run %s complete", e.RunID())
}

func setupCloseHandler(cancelFn context.CancelFunc) {
	c := make(chan os.Signal, 1)
	signal.Notify(c, os.Interrupt, syscall.SIGTERM, syscall.SIGINT)
	go func() {
		sig := <-c
		fmt.Fprintf(os.Stderr, "\nreceived signal '%s'. terminating...\n", sig.String())
		stop = true
		cancelFn()
		time.Sleep(500 * time.Millisecond)
		os.Exit(0)
	}()
}
