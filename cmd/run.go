package main

import (
	"context"
	"errors"
	"fmt"
	"net"
	"os/signal"
	"strconv"
	"syscall"
	"time"

	"github.com/gin-gonic/gin"

	"water_heater/internal/config"
	"water_heater/internal/handlers"
	"water_heater/internal/hardware"
	"water_heater/internal/logger"
	"water_heater/internal/repository"
	"water_heater/internal/repository/db"
	"water_heater/internal/server"
	"water_heater/internal/service"
	"water_heater/internal/version"
)

const shutdownTimeout = 10 * time.Second

// runController wires every component and blocks until a signal arrives or
// the supervisor hands over to the rebooter.
func runController(parent context.Context, configPath string) error {
	cfg, err := config.Load(configPath)
	if err != nil {
		return err
	}

	log := logger.Get(cfg.LogLevel)
	defer func() { _ = log.Sync() }()
	log.Infow("starting", "version", version.Get().String())

	ctx, stop := signal.NotifyContext(parent, syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	conn, err := db.InitDB(cfg.DB.Path)
	if err != nil {
		return fmt.Errorf("open db: %w", err)
	}
	defer func() {
		if cerr := conn.Close(); cerr != nil {
			log.Errorw("failed to close sqlite", "err", cerr)
		}
	}()

	repos := repository.NewRepository(conn)
	metrics := service.NewMetrics()
	services, monitoring := service.NewService(repos, service.AuthSettings{
		SigningKey: cfg.HTTP.JWTSecret,
		TokenTTL:   cfg.HTTP.TokenTTL,
	}, metrics)
	service.RecordBoot(ctx, repos.EventRepo, log, version.Version)

	devices, err := hardware.Build(cfg.Hardware, cfg.Network, log.Named("hardware"))
	if err != nil {
		return err
	}
	defer func() {
		if cerr := devices.Close(); cerr != nil {
			log.Warnw("hardware_close_failed", "err", cerr)
		}
	}()
	panel := hardware.NewPanel(devices.Display)

	heater, err := service.NewHeaterController(service.Thresholds{
		Upper:            cfg.Thermostat.UpperTemperature,
		Lower:            cfg.Thermostat.LowerTemperature,
		ResetInterval:    cfg.Thermostat.HeaterResetInterval,
		PrimingDelay:     cfg.Thermostat.PrimingDelay,
		StagnationMargin: cfg.Thermostat.StagnationMargin,
	}, devices.Relays, panel,
		service.WithEventLog(repos.EventRepo),
		service.WithHeaterMetrics(metrics),
		service.WithHeaterLogger(log.Named("heater")),
	)
	if err != nil {
		return err
	}

	watchdog := service.NewWatchdog(cfg.Supervisor.WatchdogStallAt, log.Named("watchdog"))

	broadcaster, closeMirror, err := newBroadcaster(cfg, devices, heater, panel, repos, metrics, watchdog, log)
	if err != nil {
		return err
	}
	defer closeMirror()

	dispatcher := service.NewPressureDispatcher(panel,
		service.WithDispatchMetrics(metrics),
		service.WithDispatchLogger(log.Named("osc")),
	)
	oscAddr := net.JoinHostPort(cfg.OSC.BindAddress, strconv.Itoa(cfg.OSC.Port))
	oscSrv, err := server.ListenOSC(oscAddr, dispatcher, server.OSCOptions{
		PollTimeout:  cfg.OSC.PollTimeout,
		TickInterval: cfg.OSC.TickInterval,
		Log:          log.Named("osc"),
	})
	if err != nil {
		return err
	}
	defer func() { _ = oscSrv.Close() }()
	log.Infow("osc_listening", "addr", oscSrv.Addr().String())

	rebooter, err := service.NewRebooter(cfg.Supervisor.RebootMode, log.Named("reboot"))
	if err != nil {
		return err
	}

	sup := service.NewSupervisor(service.SupervisorDeps{
		Network:  devices.Network,
		Panel:    panel,
		Rebooter: rebooter,
		Events:   repos.EventRepo,
		Log:      log.Named("supervisor"),
		Local:    broadcaster.RunLocal,
		OnConnected: func(context.Context) error {
			reg, err := service.ResolveClients(cfg.OSC.Clients, cfg.OSC.ClientPort)
			broadcaster.SetRegistry(reg)
			log.Infow("telemetry_subscribers", "count", reg.Len())
			return err
		},
		Tasks: []service.Task{
			{Name: "telemetry", Run: broadcaster.Run},
			{Name: "osc", Run: oscSrv.Run},
		},
		SSID:            cfg.Network.SSID,
		Password:        cfg.Network.Password,
		ConnectAttempts: cfg.Network.ConnectAttempts,
		PollInterval:    cfg.Network.ConnectPollInterval,
		SettleDelay:     cfg.Supervisor.SettleDelay,
	})
	monitoring.Attach(heater, sup, dispatcher)

	if cfg.HTTP.Enabled {
		srv := &server.Server{}
		if cfg.LogLevel != logger.DebugLevel {
			gin.SetMode(gin.ReleaseMode)
		}
		runHTTPServer(srv, cfg.HTTP.Port, handlers.NewHandler(services, log.Named("http")), log)
		defer shutdownHTTP(srv, log)
	}

	go func() {
		retention := service.NewRetention(repos.EventRepo, cfg.DB.Retention, log.Named("retention"))
		if err := retention.Run(ctx, cfg.DB.PruneSchedule); err != nil {
			log.Warnw("retention_disabled", "err", err)
		}
	}()

	go func() { _ = watchdog.Run(ctx) }()
	watchdog.Ready()
	defer watchdog.Stopping()

	err = sup.Run(ctx)
	if ctx.Err() != nil && errors.Is(err, ctx.Err()) {
		log.Infow("shutting down")
		return nil
	}
	return err
}

func newBroadcaster(
	cfg *config.Config,
	devices *hardware.Devices,
	heater *service.HeaterController,
	panel *hardware.Panel,
	repos *repository.Repository,
	metrics *service.Metrics,
	watchdog *service.Watchdog,
	log *logger.Logger,
) (*service.Broadcaster, func(), error) {
	closeMirror := func() {}
	deps := service.BroadcasterDeps{
		Sensor:   devices.Sensor,
		Heater:   heater,
		Panel:    panel,
		Sender:   service.UDPSender{Timeout: cfg.OSC.SendTimeout},
		States:   repos.StateRepo,
		Metrics:  metrics,
		Log:      log.Named("telemetry"),
		Interval: cfg.Telemetry.Interval,
		OnCycle:  watchdog.Beat,
	}
	if cfg.Telemetry.MQTT.Broker != "" {
		pub, err := service.NewMQTTPublisher(cfg.Telemetry.MQTT, log.Named("mqtt"))
		if err != nil {
			// The mirror is optional; the controller runs without it.
			log.Warnw("mqtt_unavailable", "broker", cfg.Telemetry.MQTT.Broker, "err", err)
		} else {
			deps.Mirror = pub
			closeMirror = func() { _ = pub.Close() }
		}
	}
	b, err := service.NewBroadcaster(deps)
	if err != nil {
		closeMirror()
		return nil, nil, err
	}
	return b, closeMirror, nil
}

// runHTTPServer runs the HTTP server in a separate goroutine. A failure is
// logged; the controller keeps running without its API.
func runHTTPServer(srv *server.Server, port string, handler *handlers.Handler, log *logger.Logger) {
	routes := handler.InitRoutes()
	go func() {
		if err := srv.Run(port, routes); err != nil {
			log.Errorw("http_server_failed", "port", port, "err", err)
		}
	}()
}

// shutdownHTTP lets in-flight requests complete.
func shutdownHTTP(srv *server.Server, log *logger.Logger) {
	ctx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
	defer cancel()
	if err := srv.Shutdown(ctx); err != nil {
		log.Warnw("server forced to shutdown", "err", err)
	}
}
