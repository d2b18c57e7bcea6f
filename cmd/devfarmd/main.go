// Command devfarmd is the scheduler daemon: it wires together the
// device manager, the configuration factory, and the scheduler loop /
// shutdown coordinator, then serves both the admin endpoints
// (common/endpoints) and the scheduler control API
// (scheduler.RegisterHandlers) on one HTTP mux. Flag-driven wiring,
// stats receiver construction, and admin endpoint serving, with
// control exposed over a plain JSON-over-HTTP mux rather than an RPC
// framework.
package main

import (
	"net/http"
	"strings"
	"time"

	"github.com/rcrowley/go-metrics"
	"github.com/spf13/cobra"

	"github.com/twitter/devfarm/common/endpoints"
	"github.com/twitter/devfarm/common/log"
	"github.com/twitter/devfarm/common/stats"
	"github.com/twitter/devfarm/config"
	"github.com/twitter/devfarm/device"
	"github.com/twitter/devfarm/invocation"
	"github.com/twitter/devfarm/scheduler"
)

func main() {
	var (
		addr          string
		local         bool
		localSerials  string
		inventoryRoot string
		pollInterval  time.Duration
	)

	root := &cobra.Command{
		Use:   "devfarmd",
		Short: "devfarmd runs the device-farm command scheduler",
		RunE: func(cmd *cobra.Command, args []string) error {
			return run(addr, local, localSerials, inventoryRoot, pollInterval)
		},
	}
	root.Flags().StringVar(&addr, "addr", "localhost:9090", "address the scheduler control API and admin endpoints bind on")
	root.Flags().BoolVar(&local, "local", false, "use an in-memory Device Manager seeded from -local_serials instead of the HTTP inventory service")
	root.Flags().StringVar(&localSerials, "local_serials", "d1,d2", "comma-separated device serials for -local mode")
	root.Flags().StringVar(&inventoryRoot, "inventory_root", "http://localhost:8080", "device-inventory service root URL (ignored in -local mode)")
	root.Flags().DurationVar(&pollInterval, "inventory_poll_interval", 5*time.Second, "how often the HTTP Device Manager refreshes its free-pool cache")

	if err := root.Execute(); err != nil {
		log.Errorf("devfarmd: %v", err)
	}
}

func run(addr string, local bool, localSerials, inventoryRoot string, pollInterval time.Duration) error {
	stat := stats.NewCustomStatsReceiver(metrics.NewRegistry())

	var devices device.Manager
	if local {
		devices = device.NewLocalInventory(parseLocalFleet(localSerials))
		log.WithField("serials", localSerials).Info("devfarmd: running with an in-memory local device fleet")
	} else {
		devices = device.NewHTTPInventory(inventoryRoot, pollInterval)
		log.WithField("root", inventoryRoot).Info("devfarmd: running against an HTTP device inventory service")
	}
	defer devices.Close()

	factory := config.NewDefaultFactory()
	runner := &invocation.ProcessRunner{}
	sched := scheduler.New(devices, factory, runner, scheduler.DefaultConfig(), stat)
	sched.Start()

	admin := endpoints.NewServer(addr, stat)
	mux := admin.Mux()
	scheduler.RegisterHandlers(mux, sched)

	log.Infof("devfarmd: serving admin + scheduler control API on %s", addr)
	return http.ListenAndServe(addr, mux)
}

func parseLocalFleet(serials string) []device.Handle {
	var handles []device.Handle
	for _, s := range strings.Split(serials, ",") {
		s = strings.TrimSpace(s)
		if s == "" {
			continue
		}
		handles = append(handles, device.Handle{Serial: device.Serial(s), ProductType: "local", State: "ready"})
	}
	return handles
}
