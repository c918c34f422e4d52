package main

import (
	"context"
	"fmt"
	"net"
	"net/http"
	"os"
	"syscall"

	"github.com/spf13/cobra"
	"google.golang.org/grpc"

	"github.com/nvimrt/mqloop/event"
	"github.com/nvimrt/mqloop/internal/metrics"
	"github.com/nvimrt/mqloop/internal/mlog"
	"github.com/nvimrt/mqloop/loop"
	"github.com/nvimrt/mqloop/rpcchannel"
	"github.com/nvimrt/mqloop/watcher"
)

var serveCmd = &cobra.Command{
	Use:   "serve",
	Short: "Host the RPC channel service and drive its events through one loop",
	Long: `serve listens for rpcchannel.Stream connections and multiplexes
every channel's inbound frames onto one event loop, alongside a metrics
scrape endpoint, the way mqloop's RPC channel watcher is meant to be
exercised end to end.`,
	RunE: runServe,
}

func init() {
	serveCmd.Flags().String("metrics-addr", "127.0.0.1:9650", "Prometheus metrics listen address")
	rootCmd.AddCommand(serveCmd)
}

func runServe(cmd *cobra.Command, args []string) error {
	cfg, err := loadConfig(cmd)
	if err != nil {
		return err
	}
	metricsAddr, _ := cmd.Flags().GetString("metrics-addr")

	l := loop.New()
	root := event.NewParent(l.WakeupCallback(), nil)
	root.SetName("serve.root")
	defer root.Free()

	var interrupted bool
	sigWatcher := watcher.NewSignal(l, root, func(sig os.Signal) {
		mlog.Logger.Info().Str("signal", sig.String()).Msg("shutting down")
		interrupted = true
	}, os.Interrupt, syscall.SIGTERM)
	l.Register(sigWatcher)
	sigWatcher.Start()
	defer func() {
		sigWatcher.Stop()
		sigWatcher.Close()
	}()

	svc := rpcchannel.NewService(l, root, func(payload []byte) event.Event {
		return event.New(func(argv [event.Argc]any) {
			mlog.Logger.Debug().Int("bytes", len(payload)).Msg("channel frame")
		})
	})

	lis, err := net.Listen("tcp", cfg.RPC.ListenAddress)
	if err != nil {
		return fmt.Errorf("rpcchannel: listen: %w", err)
	}
	grpcServer := grpc.NewServer()
	grpcServer.RegisterService(&rpcchannel.ServiceDesc, svc)

	go func() {
		mlog.Logger.Info().Str("addr", cfg.RPC.ListenAddress).Msg("rpc channel listening")
		if err := grpcServer.Serve(lis); err != nil {
			mlog.Errorf("rpc channel serve", err)
		}
	}()

	metricsSrv := &http.Server{Addr: metricsAddr, Handler: metrics.Handler()}
	go func() {
		mlog.Logger.Info().Str("addr", metricsAddr).Msg("metrics listening")
		if err := metricsSrv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			mlog.Errorf("metrics serve", err)
		}
	}()

	l.ProcessEventsUntil(root, -1, func() bool { return interrupted })

	grpcServer.GracefulStop()
	_ = metricsSrv.Shutdown(context.Background())
	return nil
}
