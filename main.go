package main

import (
	"context"
	"errors"
	"graphmem/app/config"
	"graphmem/app/server"
	"graphmem/app/service/graph"
	"graphmem/app/service/kv"
	"graphmem/app/service/mcptool"
	"graphmem/app/util/mylog"
	"log/slog"
	"os"
	"os/signal"

	"github.com/gofiber/fiber/v2/log"
	"github.com/samber/do"
)

func main() {
	di := do.New()
	defer di.Shutdown()

	mylog.Preinit()

	appCtx, cancel := context.WithCancel(context.Background())
	defer cancel()
	do.ProvideValue(di, appCtx)

	cfg, err := config.Load()
	if err != nil {
		log.Fatalf("config load failed: %v", err)
	}
	do.ProvideValue(di, cfg)

	if err = mylog.Init(cfg); err != nil {
		log.Fatalf("logging init failed: %v", err)
	}

	do.Provide(di, graph.NewStore)
	do.Provide(di, graph.New)
	do.Provide(di, kv.New)
	do.Provide(di, mcptool.NewGraphTools)
	do.Provide(di, mcptool.NewKVTools)
	do.Provide(di, server.New)

	go func() {
		sigint := make(chan os.Signal, 1)
		signal.Notify(sigint, os.Interrupt)
		<-sigint

		log.Info("Shutting down...")

		cancel()
	}()

	slog.Info("Service started")

	if err = do.MustInvoke[*server.Service](di).Run(appCtx); err != nil && !errors.Is(err, context.Canceled) {
		log.Fatalf("server stopped: %v", err)
	}
}
