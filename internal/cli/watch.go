package cli

import (
	"context"
	"errors"
	"fmt"
	"io"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/spf13/cobra"

	"github.com/mesh-intelligence/larder/pkg/larder"
	"github.com/mesh-intelligence/larder/pkg/types"
)

func (a *app) newWatchCmd() *cobra.Command {
	var metricsAddr string
	cmd := &cobra.Command{
		Use:   "watch [restaurant-id]",
		Short: "Print new orders and status changes as they happen",
		Long: `Watch subscribes to order changes for one restaurant, or for all
restaurants when no id is given, and prints a line per new order or status
change until interrupted.`,
		Args: usageArgs(cobra.MaximumNArgs(1)),
		RunE: func(cmd *cobra.Command, args []string) error {
			var restaurantID string
			if len(args) == 1 {
				restaurantID = args[0]
			}
			ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
			defer stop()
			cmd.SetContext(ctx)

			if metricsAddr != "" {
				shutdown := serveMetrics(metricsAddr, a)
				defer shutdown()
			}

			return a.withLarder(cmd, func(ctx context.Context, l *larder.Larder) error {
				w := l.WatchOrders(a.notifier(a.out(cmd)))
				defer w.Close()
				if err := w.Watch(ctx, restaurantID); err != nil {
					return err
				}
				<-ctx.Done()
				return nil
			})
		},
	}
	cmd.Flags().StringVar(&metricsAddr, "metrics-addr", "", "serve Prometheus metrics on this address, e.g. :9100")
	return cmd
}

// notifier prints notifications to w.
func (a *app) notifier(w io.Writer) larder.Notifier {
	return larder.NotifierFunc(func(n larder.Notification) {
		if a.jsonMode {
			printJSON(w, n)
			return
		}
		switch n.Kind {
		case larder.NewOrder:
			fmt.Fprintf(w, "new order %s for %s: %s total %s\n", n.Order.ID, n.Order.RestaurantID, n.Order.Status, ftoa(n.Order.Total))
		case larder.StatusChanged:
			fmt.Fprintf(w, "order %s: %s -> %s (%d%%)\n", n.Order.ID, n.Previous, n.Order.Status, types.DeliveryProgress(n.Order.Status))
		}
	})
}

// serveMetrics exposes the default Prometheus registry on addr and returns a
// function that stops the server.
func serveMetrics(addr string, a *app) func() {
	mux := http.NewServeMux()
	mux.Handle("/metrics", promhttp.Handler())
	srv := &http.Server{Addr: addr, Handler: mux, ReadHeaderTimeout: 5 * time.Second}
	go func() {
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			a.log.Error().Err(err).Str("addr", addr).Msg("metrics server failed")
		}
	}()
	a.log.Info().Str("addr", addr).Msg("serving metrics")
	return func() {
		ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		srv.Shutdown(ctx)
	}
}
