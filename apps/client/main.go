package main

import (
	"context"
	"log"
	"net/http"
	"os"
	"os/signal"
	"syscall"

	"github.com/trezcool/darasa/core"
	loggersvc "github.com/trezcool/darasa/services/logger"
	"github.com/trezcool/darasa/storage/kv"
)

func main() {
	conf := core.NewConfig()

	var logger core.Logger = loggersvc.NewZeroLogger(conf)
	if conf.RollbarToken != "" {
		logger = loggersvc.NewRollbarLogger(logger, conf)
	}

	var (
		store kv.Store
		err   error
	)
	if conf.TestMode {
		store = kv.OpenInMem()
	} else {
		store, err = kv.Open(conf.StorePath, conf.SecretKey)
		errAndDie(err)
	}

	app := newApp(conf, store, &http.Client{}, logger)
	defer app.shutdown()

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	sig := make(chan os.Signal, 1)
	signal.Notify(sig, syscall.SIGINT, syscall.SIGTERM)
	go func() {
		<-sig
		cancel()
	}()

	errAndDie(app.start(ctx))

	cli := &commandLine{app: app, in: os.Stdin, out: os.Stdout}
	cli.run(ctx)
}

func errAndDie(err error) {
	if err != nil {
		log.Fatal(err)
	}
}
