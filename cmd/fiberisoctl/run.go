package main

import (
	"context"
	"fmt"
	"time"

	"github.com/spf13/cobra"

	"github.com/recera/fiberiso"
	"github.com/recera/fiberiso/pkg/fault"
	"github.com/recera/fiberiso/pkg/future"
	"github.com/recera/fiberiso/pkg/resource"
	"github.com/recera/fiberiso/pkg/watchdog"
)

// scenarioFn matches the signature fiberiso.Fiber expects: given a context
// carrying the launching fiber's node, it synchronously creates and
// returns the future whose eventual settlement is the fiber's result.
type scenarioFn func(ctx context.Context) *future.Future[int]

// scenarios are named, self-contained demonstrations usable as a smoke
// test: "clean" resolves through a Timer resource, and "stall" awaits a bare
// future and is rejected with FIBER_STALL. No scenario here raises the other
// fault codes.
var scenarios = map[string]scenarioFn{
	"clean": func(ctx context.Context) *future.Future[int] {
		fut, _, err := resource.NewTimer(ctx, fiberiso.Hook(), 5*time.Millisecond, func() int { return 1 })
		if err != nil {
			fut, _, _ = future.Resolved(ctx, fiberiso.Hook(), 0)
		}
		return fut
	},
	"stall": func(ctx context.Context) *future.Future[int] {
		// A bare future nobody ever resolves: there is no outstanding
		// non-PROMISE work to keep the fiber alive, so the watchdog rejects
		// it with FIBER_STALL once its debounce window elapses.
		fut, _, _ := future.New[int](ctx, fiberiso.Hook(), nil)
		return fut
	},
}

func newRunCommand() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "run <scenario>",
		Short: "run one of fiberiso's built-in fault-demonstration scenarios",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := loadConfig()
			if err != nil {
				return err
			}
			log := newLogger(cfg, "fiberisoctl-run")

			fn, ok := scenarios[args[0]]
			if !ok {
				return fmt.Errorf("unknown scenario %q (available: clean, stall)", args[0])
			}

			res := fiberiso.Fiber[int](context.Background(), fn, fiberiso.Option{
				Watchdog: watchdog.Config{StallDebounce: cfg.Watchdog.Debounce()},
			})
			log.Debug("scenario launched", "scenario", args[0], "fiberId", res.Fiber.ID())

			waitCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
			defer cancel()
			v, err := res.Return.Wait(waitCtx)
			if err != nil {
				if flt, ok := err.(*fault.Fault); ok {
					fmt.Printf("scenario %q rejected: %s (code=%s)\n", args[0], flt.Message, flt.Code)
					return nil
				}
				return err
			}
			fmt.Printf("scenario %q completed with value %d\n", args[0], v)
			return nil
		},
	}
	return cmd
}
