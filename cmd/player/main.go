package main

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/google/uuid"

	"github.com/AaronLay10/StagePlayer/internal/api"
	"github.com/AaronLay10/StagePlayer/internal/audio"
	"github.com/AaronLay10/StagePlayer/internal/config"
	"github.com/AaronLay10/StagePlayer/internal/engine"
	"github.com/AaronLay10/StagePlayer/internal/events"
	"github.com/AaronLay10/StagePlayer/internal/luascript"
	"github.com/AaronLay10/StagePlayer/internal/mqtt"
	"github.com/AaronLay10/StagePlayer/internal/render"
	"github.com/AaronLay10/StagePlayer/internal/storage/postgres"
	"github.com/AaronLay10/StagePlayer/internal/telemetry"
	"github.com/AaronLay10/StagePlayer/internal/vars"
	"github.com/AaronLay10/StagePlayer/internal/version"
)

const (
	audioPumpPeriod = 10 * time.Millisecond
	healthInterval  = 5 * time.Second
)

func main() {
	rt, err := config.LoadRuntime()
	if err != nil {
		log.Fatalf("failed to load runtime config: %v", err)
	}
	cfg, err := config.LoadProjectConfig(rt.ProjectPath)
	if err != nil {
		log.Fatalf("failed to load %s: %v", rt.ProjectPath, err)
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	shutdownTracing, err := telemetry.Setup(ctx, "stageplayer")
	if err != nil {
		log.Printf("tracing disabled: %v", err)
	}

	hostname, _ := os.Hostname()
	logEvent("info", "system.startup", "player starting", map[string]interface{}{
		"service":    "player",
		"version":    version.Version,
		"hostname":   hostname,
		"pid":        os.Getpid(),
		"project_id": cfg.Project.ID,
	})

	var pg *postgres.Client
	if rt.PostgresEnabled {
		pg, err = postgres.New(ctx, cfg.Project.ID)
		if err != nil {
			log.Printf("postgres unavailable, events will not be persisted: %v", err)
		} else {
			defer pg.Close()
			events.SetStore(pg, uuid.NewString())
			api.SetEventHistory(pg)
		}
		api.SetPostgresState(pg != nil, false)
	} else {
		api.SetPostgresState(false, true)
	}

	bundle, err := luascript.LoadProject(cfg)
	if err != nil {
		log.Fatalf("failed to load project scripts: %v", err)
	}
	defer bundle.Close()

	var out io.Writer
	if rt.AudioOut != "" {
		f, err := os.Create(rt.AudioOut)
		if err != nil {
			log.Fatalf("failed to open audio output: %v", err)
		}
		defer f.Close()
		out = f
	}
	device := audio.NewDevice(rt.AudioSampleRate, out)
	go device.Run(ctx, audioPumpPeriod)

	snap := render.NewSnapshotter()
	scheduler := engine.NewTickerScheduler(rt.FrameRate)
	defer scheduler.Stop()

	opts := []engine.Option{
		engine.WithID(cfg.Project.ID),
		engine.WithVars(vars.New(cfg.Variables)),
		engine.WithRenderer(snap),
		engine.WithScheduler(scheduler),
		engine.WithAudio(device),
	}

	var (
		client *mqtt.Client
		sub    *mqtt.InputSubscriber
	)
	if rt.MQTTEnabled {
		client = mqtt.NewClient(rt.MQTTURL, "stageplayer-"+cfg.Project.ID)
		sub = mqtt.NewInputSubscriber(client, cfg.Project.ID)
		client.OnConnect(sub.Resubscribe)
		opts = append(opts, engine.WithInput(sub), engine.WithActivation(sub))
		api.SetMQTTState(false, false)
	} else {
		api.SetMQTTState(false, true)
	}

	p := engine.New(bundle.Stage, bundle.Sprites, opts...)

	if client != nil {
		sub.OnBroadcast(p.Broadcast)
		client.Start()
		defer client.Disconnect()
	}

	api.InitMetrics()
	api.SetProjectName(cfg.Project.Name)
	if err := api.InitAuth(); err != nil {
		log.Fatalf("failed to initialize auth: %v", err)
	}
	if err := api.InitTLS(); err != nil {
		log.Fatalf("failed to initialize TLS: %v", err)
	}
	api.SetController(p)
	api.SetStageSource(snap)

	go func() {
		if err := api.ListenAndServe(ctx, rt.UIPort); err != nil {
			log.Printf("api server failed: %v", err)
			stop()
		}
	}()

	go monitorDependencies(ctx, client, pg)

	if rt.AutoStart {
		p.GreenFlag()
	}

	api.SetProjectReady(true)
	err = p.Run(ctx)
	api.SetProjectReady(false)
	if err != nil && !errors.Is(err, context.Canceled) {
		events.Emit("error", "system.error", err.Error(), map[string]interface{}{"source": "project"})
	}

	logEvent("info", "system.shutdown", "player stopping", nil)

	flushCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if err := shutdownTracing(flushCtx); err != nil {
		log.Printf("tracing shutdown: %v", err)
	}
}

// logEvent records a lifecycle event and prints it as a JSON line.
func logEvent(level, name, msg string, fields map[string]interface{}) {
	b, err := events.Emit(level, name, msg, fields)
	if err != nil {
		log.Printf("emit %s: %v", name, err)
		return
	}
	fmt.Println(string(b))
}

// monitorDependencies refreshes the readiness view of MQTT and Postgres.
func monitorDependencies(ctx context.Context, client *mqtt.Client, pg *postgres.Client) {
	ticker := time.NewTicker(healthInterval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
		}

		if client != nil {
			api.SetMQTTState(client.IsConnected(), false)
		}
		if pg != nil {
			pingCtx, cancel := context.WithTimeout(ctx, 2*time.Second)
			err := pg.Ping(pingCtx)
			cancel()
			api.SetPostgresState(err == nil, false)
		}
	}
}
