// Package metrics implements the bench prometheus metrics service.
package metrics

import (
	"fmt"
	"net"
	"net/http"
	"strings"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/prometheus/client_golang/prometheus/push"
	flag "github.com/spf13/pflag"
	"github.com/spf13/viper"

	"github.com/oasisprotocol/block-orderer/common/service"
	"github.com/oasisprotocol/block-orderer/common/version"
)

const (
	// CfgMetricsMode is the metrics mode: none, pull or push.
	CfgMetricsMode = "metrics.mode"

	// CfgMetricsAddr is the metrics pull listen address or push gateway
	// address.
	CfgMetricsAddr = "metrics.address"

	// CfgMetricsInterval is the resource sampling and push interval.
	CfgMetricsInterval = "metrics.interval"

	// CfgMetricsPushJobName is the prometheus push job name.
	CfgMetricsPushJobName = "metrics.push.job_name"

	// CfgMetricsPushInstanceLabel is the prometheus push instance label.
	CfgMetricsPushInstanceLabel = "metrics.push.instance_label"

	// MetricsModeNone disables the metrics service.
	MetricsModeNone = "none"
	// MetricsModePull serves metrics over HTTP for scraping.
	MetricsModePull = "pull"
	// MetricsModePush periodically pushes metrics to a push gateway.
	MetricsModePush = "push"
)

// Flags has the metrics flags.
var Flags = flag.NewFlagSet("", flag.ContinueOnError)

// Enabled returns if metrics are enabled.
func Enabled() bool {
	return viper.GetString(CfgMetricsMode) != MetricsModeNone
}

type pullService struct {
	service.BaseBackgroundService

	ln net.Listener
	s  *http.Server

	errCh chan error

	rsvc *resourceService
}

func (s *pullService) Start() error {
	if err := s.rsvc.Start(); err != nil {
		return err
	}

	go func() {
		if err := s.s.Serve(s.ln); err != http.ErrServerClosed {
			s.errCh <- err
		}

		s.rsvc.Stop()
		<-s.rsvc.Quit()
		s.Terminate()
	}()
	return nil
}

func (s *pullService) Stop() {
	if s.s != nil {
		select {
		case err := <-s.errCh:
			if err != nil {
				s.Logger.Error("metrics terminated uncleanly",
					"err", err,
				)
			}
		default:
			_ = s.s.Close()
		}
		s.s = nil
	}
}

func (s *pullService) Cleanup() {
	if s.ln != nil {
		_ = s.ln.Close()
		s.ln = nil
	}
}

func newPullService() (service.BackgroundService, error) {
	addr := viper.GetString(CfgMetricsAddr)

	svc := *service.NewBaseBackgroundService("metrics")

	svc.Logger.Debug("metrics service params",
		"mode", MetricsModePull,
		"addr", addr,
	)

	ln, err := net.Listen("tcp", addr)
	if err != nil {
		return nil, err
	}

	return &pullService{
		BaseBackgroundService: svc,
		ln:                    ln,
		s:                     &http.Server{Handler: promhttp.Handler(), ReadTimeout: 5 * time.Second},
		errCh:                 make(chan error, 1),
		rsvc:                  newResourceService(viper.GetDuration(CfgMetricsInterval)),
	}, nil
}

type pushService struct {
	service.BaseBackgroundService

	pusher *push.Pusher

	addr     string
	jobName  string
	instance string
	interval time.Duration

	rsvc *resourceService

	stopCh chan struct{}
}

func (s *pushService) Start() error {
	if err := s.rsvc.Start(); err != nil {
		return err
	}

	s.pusher = s.pusher.Gatherer(prometheus.DefaultGatherer)

	go s.worker()
	return nil
}

func (s *pushService) Stop() {
	close(s.stopCh)
}

func (s *pushService) worker() {
	defer func() {
		// Get the last state out before quitting.
		if err := s.pusher.Push(); err != nil {
			s.Logger.Warn("final push failed",
				"err", err,
			)
		}

		s.rsvc.Stop()
		<-s.rsvc.Quit()
		s.Terminate()
	}()

	t := time.NewTicker(s.interval)
	defer t.Stop()

	for {
		select {
		case <-s.stopCh:
			return
		case <-t.C:
		}

		if err := s.pusher.Push(); err != nil {
			s.Logger.Warn("push failed",
				"err", err,
			)

			// Once a pusher fails to push, it fails forever, so re-create it.
			s.initPusher(true)
		}
	}
}

func (s *pushService) initPusher(isReinit bool) {
	if !isReinit {
		s.Logger.Debug("metrics service params",
			"mode", MetricsModePush,
			"addr", s.addr,
			"job_name", s.jobName,
			"instance", s.instance,
			"push_interval", s.interval,
		)
	}

	pusher := push.New(s.addr, s.jobName).
		Grouping("instance", s.instance).
		Grouping("software_version", version.SoftwareVersion)
	if version.GitBranch != "" {
		pusher = pusher.Grouping("git_branch", version.GitBranch)
	}

	if isReinit {
		pusher = pusher.Gatherer(prometheus.DefaultGatherer)
	}

	s.pusher = pusher
}

func newPushService() (service.BackgroundService, error) {
	svc := &pushService{
		BaseBackgroundService: *service.NewBaseBackgroundService("metrics"),
		addr:                  viper.GetString(CfgMetricsAddr),
		jobName:               viper.GetString(CfgMetricsPushJobName),
		instance:              viper.GetString(CfgMetricsPushInstanceLabel),
		interval:              viper.GetDuration(CfgMetricsInterval),
		rsvc:                  newResourceService(viper.GetDuration(CfgMetricsInterval)),
		stopCh:                make(chan struct{}),
	}

	if svc.jobName == "" {
		return nil, fmt.Errorf("metrics: %s required for push mode", CfgMetricsPushJobName)
	}
	if svc.instance == "" {
		return nil, fmt.Errorf("metrics: %s required for push mode", CfgMetricsPushInstanceLabel)
	}

	svc.initPusher(false)

	return svc, nil
}

// New constructs a new metrics service.
func New() (service.BackgroundService, error) {
	mode := strings.ToLower(viper.GetString(CfgMetricsMode))
	switch mode {
	case MetricsModeNone:
		return service.NewBaseBackgroundService("metrics"), nil
	case MetricsModePull:
		return newPullService()
	case MetricsModePush:
		return newPushService()
	default:
		return nil, fmt.Errorf("metrics: unsupported mode: '%v'", mode)
	}
}

func init() {
	Flags.String(CfgMetricsMode, MetricsModeNone, "metrics mode: none, pull, push")
	Flags.String(CfgMetricsAddr, "127.0.0.1:3000", "metrics pull listen address or push gateway address")
	Flags.Duration(CfgMetricsInterval, 5*time.Second, "metrics push and resource sampling interval")
	Flags.String(CfgMetricsPushJobName, "", "prometheus push job name")
	Flags.String(CfgMetricsPushInstanceLabel, "", "prometheus push instance label")

	_ = viper.BindPFlags(Flags)
}
