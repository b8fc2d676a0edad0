package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"sync"
	"syscall"
	"time"

	log "github.com/sirupsen/logrus"

	"github.com/troydota/api.vote.komodohype.dev/configure"
	"github.com/troydota/api.vote.komodohype.dev/mailer"
	"github.com/troydota/api.vote.komodohype.dev/mongo"
	"github.com/troydota/api.vote.komodohype.dev/polls"
	"github.com/troydota/api.vote.komodohype.dev/polls/memory"
	"github.com/troydota/api.vote.komodohype.dev/redis"
	"github.com/troydota/api.vote.komodohype.dev/server"
)

func checkErr(err error) {
	if err != nil {
		log.Fatalf("startup, err=%v", err)
	}
}

// closer is run at shutdown, after the http server stopped.
type closer func(ctx context.Context) error

func openStore(ctx context.Context, cfg configure.ServerCfg) (polls.Store, closer, error) {
	switch cfg.Store {
	case configure.StoreMemory:
		log.Warnln("Using the in-memory store, data is lost on exit.")
		return memory.NewStore(), nil, nil
	case configure.StoreMongo:
		client, db, err := mongo.Connect(ctx, cfg.MongoURI, cfg.MongoDB)
		if err != nil {
			return nil, nil, err
		}
		return mongo.NewStore(client, db), client.Disconnect, nil
	}
	return nil, nil, fmt.Errorf("unknown store %q", cfg.Store)
}

func openHub(ctx context.Context, cfg configure.ServerCfg) (polls.Hub, closer, error) {
	if cfg.RedisURI == "" {
		return memory.NewHub(cfg.NotifyBuffer), nil, nil
	}
	client, err := redis.NewClient(ctx, cfg.RedisURI)
	if err != nil {
		return nil, nil, err
	}
	hub := redis.NewHub(context.Background(), client, cfg.NotifyBuffer)
	return hub, func(context.Context) error {
		if err := hub.Close(); err != nil {
			log.Errorf("redis, err=%v", err)
		}
		return client.Close()
	}, nil
}

func main() {
	log.Infoln("Application Starting...")

	config, err := configure.Load(os.Args[1:])
	checkErr(err)
	cfg, err := configure.Unmarshal(config)
	checkErr(err)

	configCode := cfg.ExitCode
	if configCode > 125 || configCode < 0 {
		log.Warnf("Invalid exit code specified in config (%v), using 0 as new exit code.", configCode)
		configCode = 0
	}

	startCtx, cancel := context.WithTimeout(context.Background(), 15*time.Second)
	store, closeStore, err := openStore(startCtx, cfg)
	checkErr(err)
	hub, closeHub, err := openHub(startCtx, cfg)
	checkErr(err)
	cancel()

	notifier := polls.NewNotifier(hub, cfg.NotifyBuffer)
	svc := polls.NewService(store, notifier, mailer.NewLogMailer(cfg.FrontendURL), polls.Config{
		Guard: polls.GuardConfig{
			RateWindow: cfg.RateWindow,
			RateLimit:  cfg.RateLimit,
		},
	})

	sweeper := polls.NewSweeper(store, notifier, cfg.SweepInterval)
	sweeper.Start(context.Background())

	c := make(chan os.Signal, 1)
	signal.Notify(c, os.Interrupt, syscall.SIGTERM, syscall.SIGINT)

	s, err := server.NewServer(cfg, svc, hub)
	checkErr(err)

	go func() {
		sig := <-c
		log.Infof("sig=%v, gracefully shutting down...", sig)
		start := time.Now().UnixNano()

		wg := sync.WaitGroup{}
		wg.Add(2)

		go func() {
			defer wg.Done()
			if err := s.Shutdown(); err != nil {
				log.Errorf("server, shutdown=%v", err)
			}
		}()

		go func() {
			defer wg.Done()
			sweeper.Stop()
		}()

		wg.Wait()

		// drains queued events before the hub goes away
		notifier.Close()

		ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer cancel()
		if closeHub != nil {
			if err := closeHub(ctx); err != nil {
				log.Errorf("hub, shutdown=%v", err)
			}
		}
		if closeStore != nil {
			if err := closeStore(ctx); err != nil {
				log.Errorf("store, shutdown=%v", err)
			}
		}

		log.Infof("Shutdown took, %.2fms", float64(time.Now().UnixNano()-start)/10e5)
		os.Exit(configCode)
	}()

	log.Infof("Application Started, addr=%v", s.Addr())

	select {}
}
