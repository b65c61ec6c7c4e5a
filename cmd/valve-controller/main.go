// Command valve-controller opens and closes an irrigation valve from a weekly
// schedule received over MQTT, with manual override and a safety timeout.
package main

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

	"github.com/alecthomas/kong"
	"github.com/go-co-op/gocron/v2"
	prom "github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	log "github.com/sirupsen/logrus"

	"github.com/sweeney/valve-controller/internal/config"
	"github.com/sweeney/valve-controller/internal/gpio"
	"github.com/sweeney/valve-controller/internal/logging"
	"github.com/sweeney/valve-controller/internal/logic"
	"github.com/sweeney/valve-controller/internal/metrics"
	"github.com/sweeney/valve-controller/internal/mqtt"
	"github.com/sweeney/valve-controller/internal/schedule"
	"github.com/sweeney/valve-controller/internal/status"
	"github.com/sweeney/valve-controller/internal/sysinfo"
	"github.com/sweeney/valve-controller/internal/web"
)

// inboundQueue is the capacity of the transport-to-loop channel.
const inboundQueue = 64

// probeTimeout bounds one host sample.
const probeTimeout = 3 * time.Second

// CLI is the command line.
type CLI struct {
	Config     string `short:"c" help:"Configuration file path" env:"VALVE_CONFIG" default:"/etc/valve-controller/config.yaml"`
	Verbose    bool   `short:"v" help:"Enable debug logging"`
	PrintState bool   `name:"print-state" help:"Print valve and switch state and exit"`
	Broker     string `help:"MQTT broker URL, overrides the config file"`
}

func main() {
	var cli CLI
	kong.Parse(&cli,
		kong.Name("valve-controller"),
		kong.Description("Irrigation valve controller driven by an MQTT schedule."),
	)
	if err := run(cli); err != nil {
		log.WithError(err).Fatal("fatal")
	}
}

func loadConfig(cli CLI) (*config.Config, error) {
	cfg, err := config.Load(cli.Config)
	if err != nil {
		return nil, fmt.Errorf("load config: %w", err)
	}
	if cli.Broker != "" {
		cfg.MQTT.Broker = cli.Broker
	}
	if cli.Verbose {
		cfg.Log.Level = "debug"
	}
	if err := logging.Setup(os.Stderr, cfg.Log.Level, cfg.Log.Format); err != nil {
		return nil, err
	}
	return cfg, nil
}

func run(cli CLI) error {
	cfg, err := loadConfig(cli)
	if err != nil {
		return err
	}
	loc, err := cfg.Location()
	if err != nil {
		return err
	}

	actuator, err := gpio.NewRealActuator(cfg.Pins())
	if err != nil {
		return fmt.Errorf("init gpio: %w", err)
	}
	defer actuator.Close()

	var sw gpio.Switch
	if cfg.SwitchEnabled() {
		rs, err := gpio.NewRealSwitch(cfg.GPIO.Chip, *cfg.GPIO.SwitchPin, cfg.GPIO.SwitchActiveLow)
		if err != nil {
			return fmt.Errorf("init switch: %w", err)
		}
		defer rs.Close()
		sw = rs
	}

	if cli.PrintState {
		return printState(os.Stdout, actuator, sw)
	}

	store := schedule.NewStore()
	controller := logic.NewController(actuator, logic.Options{
		MaxManualOpen: cfg.Controller.MaxManualOpen,
		CallTimeout:   cfg.Controller.ActuatorTimeout,
		Retries:       *cfg.Controller.ActuatorRetries,
	})

	statusCfg := status.Config{
		TickMs:          cfg.Controller.TickInterval.Milliseconds(),
		DebounceMs:      cfg.Controller.SwitchDebounce.Milliseconds(),
		HeartbeatMs:     cfg.HeartbeatInterval().Milliseconds(),
		MaxManualOpenMs: cfg.Controller.MaxManualOpen.Milliseconds(),
		Broker:          cfg.MQTT.Broker,
		TopicPrefix:     cfg.MQTT.TopicPrefix,
		Timezone:        loc.String(),
		HTTPAddr:        cfg.HTTPAddr,
	}
	if sw != nil {
		statusCfg.SwitchPollMs = cfg.Controller.SwitchPoll.Milliseconds()
	}
	tracker := status.NewTracker(time.Now(), statusCfg)
	if n := readNetworkInfo(); n != nil {
		tracker.SetNetwork(n)
	}

	reg := prom.NewRegistry()
	reg.MustRegister(collectors.NewGoCollector(), collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}))
	recorder := metrics.NewPrometheusRecorder(reg)

	tlsCfg, err := mqtt.TLSFiles(cfg.MQTT.CACert, cfg.MQTT.CertFile, cfg.MQTT.KeyFile)
	if err != nil {
		return fmt.Errorf("mqtt tls: %w", err)
	}
	inbound := make(chan mqtt.Inbound, inboundQueue)
	client := mqtt.NewRealClient(mqtt.Options{
		Broker:         cfg.MQTT.Broker,
		ClientID:       cfg.MQTT.ClientID,
		Username:       cfg.MQTT.Username,
		Password:       cfg.MQTT.Password,
		Topics:         mqtt.NewTopics(cfg.MQTT.TopicPrefix),
		TLS:            tlsCfg,
		KeepAlive:      cfg.MQTT.KeepAlive,
		ConnectTimeout: cfg.MQTT.ConnectTimeout,
		BufferSize:     cfg.MQTT.BufferSize,
		Metrics:        recorder,
	}, inbound)
	defer client.Close()

	var probe sysinfo.Probe
	if hp, err := sysinfo.NewProbe(sysinfo.Options{}); err != nil {
		log.WithError(err).Warn("host probe unavailable, status responses will report zeros")
	} else {
		probe = hp
	}
	host := sysinfo.NewSampler(probe, probeTimeout)

	d := &daemon{
		store:      store,
		controller: controller,
		actuator:   actuator,
		sw:         sw,
		debouncer:  logic.NewSwitchDebouncer(cfg.Controller.SwitchDebounce),
		publisher:  client,
		mqttStatus: client,
		tracker:    tracker,
		metrics:    recorder,
		host:       host,
		loc:        loc,
		now:        time.Now,
	}

	// Queued in the offline buffer until the first connect.
	d.publishSystem(mqtt.EventStartup, "", true)

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	go func() {
		if err := client.Supervise(ctx); err != nil && !errors.Is(err, context.Canceled) {
			log.WithError(err).Error("mqtt supervisor stopped")
		}
	}()

	if cfg.HTTPAddr != "" {
		srv := web.New(cfg.HTTPAddr, tracker, metrics.HTTPHandler(reg))
		go func() {
			if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
				log.WithError(err).Error("http server")
			}
		}()
		defer srv.Shutdown(context.Background())
		log.WithField("addr", cfg.HTTPAddr).Info("http status server listening")
	}

	tm, err := startTimers(cfg.Controller.TickInterval, cfg.HeartbeatInterval(), gocron.WithLocation(loc))
	if err != nil {
		return err
	}
	defer tm.Stop()
	if err := tm.sampleHost(host, hostSampleInterval); err != nil {
		return err
	}

	in := loopInputs{
		tick:      tm.tick,
		heartbeat: tm.heartbeat,
		inbound:   inbound,
	}
	if sw != nil {
		poll := time.NewTicker(cfg.Controller.SwitchPoll)
		defer poll.Stop()
		in.switchPoll = poll.C
	}

	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)
	in.sig = sigCh

	log.WithFields(log.Fields{
		"broker":          cfg.MQTT.Broker,
		"topic_prefix":    cfg.MQTT.TopicPrefix,
		"tick":            cfg.Controller.TickInterval,
		"max_manual_open": cfg.Controller.MaxManualOpen,
		"timezone":        loc.String(),
		"switch":          sw != nil,
	}).Info("started")

	return d.runLoop(in)
}

// valveReader is implemented by actuators that can read back the relay line.
type valveReader interface {
	ValveOpen() (bool, error)
}

func printState(w io.Writer, actuator gpio.Actuator, sw gpio.Switch) error {
	valve := "unknown"
	if vr, ok := actuator.(valveReader); ok {
		open, err := vr.ValveOpen()
		if err != nil {
			return fmt.Errorf("read valve: %w", err)
		}
		valve = status.ValveWord(open)
	}

	swState := "absent"
	if sw != nil {
		on, err := sw.Read()
		if err != nil {
			return fmt.Errorf("read switch: %w", err)
		}
		swState = stateString(on)
	}

	_, err := fmt.Fprintf(w, "Valve: %s, Switch: %s\n", valve, swState)
	return err
}

func stateString(on bool) string {
	if on {
		return "ON"
	}
	return "OFF"
}
