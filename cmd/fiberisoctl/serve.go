package main

import (
	"context"
	"errors"
	"net/http"
	"os"
	"sync/atomic"
	"time"

	"github.com/hashicorp/go-hclog"
	"github.com/spf13/cobra"

	"github.com/recera/fiberiso"
	"github.com/recera/fiberiso/cmd/fiberisoctl/internal/runtimeconfig"
	"github.com/recera/fiberiso/pkg/fault"
	"github.com/recera/fiberiso/pkg/future"
	"github.com/recera/fiberiso/pkg/livegraph"
	"github.com/recera/fiberiso/pkg/resource"
	"github.com/recera/fiberiso/pkg/watchdog"
)

func newServeCommand() *cobra.Command {
	var addr string
	cmd := &cobra.Command{
		Use:   "serve",
		Short: "serve a live WebSocket feed of fiberiso demo fibers for pkg/inspector to connect to",
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := loadConfig()
			if err != nil {
				return err
			}
			if addr == "" {
				addr = cfg.Serve.Addr
			}
			log := newLogger(cfg, "fiberisoctl-serve")

			srv := livegraph.NewServer(log)
			defer srv.Close()

			// debounceNanos holds the watchdog stall-debounce every newly
			// launched demo fiber reads, kept current by the config watcher
			// below so an edited fiberiso.yaml reaches fibers launched
			// after the edit without a restart; fibers already running keep
			// the debounce they started with.
			var debounceNanos atomic.Int64
			debounceNanos.Store(int64(cfg.Watchdog.Debounce()))
			stopWatch := make(chan struct{})
			if watcher, err := startConfigWatcher(log, &debounceNanos, stopWatch); err != nil {
				log.Warn("config hot-reload disabled", "error", err)
			} else {
				defer func() {
					close(stopWatch)
					watcher.Close()
				}()
			}

			mux := http.NewServeMux()
			mux.Handle("/live", srv)
			mux.HandleFunc("/healthz", func(w http.ResponseWriter, r *http.Request) {
				w.WriteHeader(http.StatusOK)
			})

			httpSrv := &http.Server{Addr: addr, Handler: mux}
			go runDemoFibers(cmd.Context(), srv, log, func() time.Duration {
				return time.Duration(debounceNanos.Load())
			})

			log.Info("serving live graph feed", "addr", addr)
			if err := httpSrv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
				return err
			}
			return nil
		},
	}
	cmd.Flags().StringVar(&addr, "addr", "", "listen address (overrides the config file)")
	return cmd
}

// startConfigWatcher watches the resolved fiberiso.yaml for changes and
// keeps debounceNanos current, so the watchdog.Config every subsequently
// launched demo fiber builds reflects the file on disk rather than the
// value captured at serve startup.
//
// Returns a non-nil error only if the watcher itself could not be
// constructed (e.g. the config directory doesn't exist); callers treat that
// as hot-reload being unavailable, not a fatal error for the serve command.
func startConfigWatcher(log hclog.Logger, debounceNanos *atomic.Int64, stop <-chan struct{}) (*runtimeconfig.Watcher, error) {
	dir, err := os.Getwd()
	if err != nil {
		return nil, err
	}
	path := runtimeconfig.ResolvePath(dir, configPath)

	watcher, err := runtimeconfig.NewWatcher(path, log)
	if err != nil {
		return nil, err
	}

	go func() {
		err := watcher.Watch(stop, 200*time.Millisecond, func(cfg *runtimeconfig.Config) {
			debounceNanos.Store(int64(cfg.Watchdog.Debounce()))
			log.Info("config reloaded", "stallDebounce", cfg.Watchdog.Debounce())
		})
		if err != nil {
			log.Warn("config watch stopped", "error", err)
		}
	}()
	return watcher, nil
}

// runDemoFibers launches a small rotation of fiberiso fibers, broadcasting
// each one's outcome to srv, so a freshly-started serve subcommand has
// something to show pkg/inspector without needing a real host application
// wired in yet. debounce is consulted on every launch, so a config reload
// picked up by startConfigWatcher takes effect on the next tick.
func runDemoFibers(ctx context.Context, srv *livegraph.Server, log hclog.Logger, debounce func() time.Duration) {
	ticker := time.NewTicker(500 * time.Millisecond)
	defer ticker.Stop()

	var clean bool
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
		}

		clean = !clean
		fn := cleanDemoFiber
		if !clean {
			fn = stallDemoFiber
		}

		res := fiberiso.Fiber[int](context.Background(), fn, fiberiso.Option{
			Watchdog: watchdog.Config{StallDebounce: debounce()},
		})
		go func(fiberID uint64) {
			v, err := res.Return.Wait(context.Background())
			ev := livegraph.Event{Kind: livegraph.EventResolve, FiberID: fiberID, Timestamp: time.Now()}
			if err != nil {
				ev.Kind = livegraph.EventFault
				ev.Message = err.Error()
				if flt, ok := err.(*fault.Fault); ok {
					ev.FaultCode = string(flt.Code)
				}
			} else {
				ev.Message = "resolved"
				_ = v
			}
			srv.Broadcast(ev)
		}(res.Fiber.ID())
	}
}

func cleanDemoFiber(ctx context.Context) *future.Future[int] {
	fut, _, _ := resource.NewImmediate(ctx, fiberiso.Hook(), func() int { return 1 })
	return fut
}

func stallDemoFiber(ctx context.Context) *future.Future[int] {
	fut, _, _ := future.New[int](ctx, fiberiso.Hook(), nil)
	return fut
}
