package main

import (
	"context"
	"errors"
	"flag"
	"net/http"
	"os"
	"os/signal"
	"sync"
	"syscall"
	"time"

	"github.com/fsnotify/fsnotify"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	log "github.com/sirupsen/logrus"
	"golang.org/x/sync/errgroup"

	"github.com/Septrum101/aliddns/app/dns"
	"github.com/Septrum101/aliddns/app/record"
	"github.com/Septrum101/aliddns/common/logger"
	"github.com/Septrum101/aliddns/config"
	"github.com/Septrum101/aliddns/controller"
)

func main() {
	config.ShowVersion()

	var configDir string
	flag.StringVar(&configDir, "c", "", "directory containing config.toml")
	flag.StringVar(&configDir, "config", "", "directory containing config.toml")
	testMode := flag.Bool("t", false, "check the configuration and current records, then exit")
	flag.BoolVar(testMode, "test", false, "check the configuration and current records, then exit")
	printVersion := flag.Bool("version", false, "show version")
	flag.Parse()
	if *printVersion {
		return
	}

	// init config
	getConfig := config.GetConfig(configDir)
	c, err := config.Unmarshal(getConfig)
	if err != nil {
		log.Panic(err)
	}

	l, err := logger.Init(c.Log)
	if err != nil {
		log.Panic(err)
	}
	defer l.Close()

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	if *testMode {
		if err := runCheck(ctx, c); err != nil {
			log.Error(err)
			l.Close()
			os.Exit(1)
		}
		return
	}

	store, err := record.Open(c.RecordDir)
	if err != nil {
		log.Error(err)
		l.Close()
		os.Exit(1)
	}

	// hot reload configure
	reload := make(chan *config.Config, 1)
	var lastTime time.Time
	var mu sync.Mutex
	getConfig.OnConfigChange(func(e fsnotify.Event) {
		mu.Lock()
		defer mu.Unlock()
		if time.Now().After(lastTime.Add(time.Second * 3)) {
			log.Println("Config file changed:", e.Name)
			nc, err := config.Unmarshal(getConfig)
			if err != nil {
				log.Errorf("reload config: %v, keep running with the previous one", err)
				return
			}
			select {
			case <-reload:
			default:
			}
			reload <- nc
		}
		lastTime = time.Now()
	})
	getConfig.WatchConfig()

	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		return supervise(gctx, c, store, reload)
	})
	if c.Metrics != nil && c.Metrics.Listen != "" {
		g.Go(func() error {
			return serveMetrics(gctx, c.Metrics.Listen)
		})
	}

	if err := g.Wait(); err != nil {
		log.Error(err)
		l.Close()
		os.Exit(1)
	}
}

type service interface {
	Run(ctx context.Context) error
}

var newService = func(c *config.Config, store *record.Store) (service, error) {
	return controller.New(c, store)
}

// supervise runs one service at a time and replaces it when a new config
// arrives. The old service is always joined before the new one starts. A
// reloaded config that cannot be applied is dropped and the previous one is
// restarted.
func supervise(ctx context.Context, c *config.Config, store *record.Store, reload <-chan *config.Config) error {
	var (
		prev      *config.Config
		prevStore *record.Store
	)
	for {
		s, err := newService(c, store)
		if err != nil {
			if prev == nil {
				return err
			}
			log.Errorf("apply reloaded config: %v, keep running with the previous one", err)
			c, store = prev, prevStore
			prev, prevStore = nil, nil
			continue
		}
		prev, prevStore = nil, nil

		sctx, cancel := context.WithCancel(ctx)
		done := make(chan error, 1)
		go func() {
			done <- s.Run(sctx)
		}()

		select {
		case err := <-done:
			cancel()
			return err
		case <-ctx.Done():
			cancel()
			return <-done
		case nc := <-reload:
			cancel()
			if err := <-done; err != nil {
				return err
			}
			nstore := store
			if nc.RecordDir != c.RecordDir {
				if nstore, err = record.Open(nc.RecordDir); err != nil {
					log.Errorf("apply reloaded config: %v, keep running with the previous one", err)
					continue
				}
			}
			prev, prevStore = c, store
			c, store = nc, nstore
		}
	}
}

func serveMetrics(ctx context.Context, addr string) error {
	mux := http.NewServeMux()
	mux.Handle("/metrics", promhttp.Handler())
	srv := &http.Server{Addr: addr, Handler: mux, ReadHeaderTimeout: 10 * time.Second}

	serveErr := make(chan error, 1)
	go func() {
		serveErr <- srv.ListenAndServe()
	}()
	log.Infof("Metrics listening on %s", addr)

	select {
	case err := <-serveErr:
		return err
	case <-ctx.Done():
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		err := srv.Shutdown(shutdownCtx)
		if e := <-serveErr; !errors.Is(e, http.ErrServerClosed) && err == nil {
			err = e
		}
		return err
	}
}

// runCheck prints the drift report. It never touches the record file.
func runCheck(ctx context.Context, c *config.Config) error {
	s, err := controller.New(c, nil)
	if err != nil {
		return err
	}
	defer s.Close()

	resolver := dns.New(c.Nameserver, time.Second*time.Duration(c.Timeout))
	return s.Check(ctx, resolver, os.Stdout)
}
