// ABOUTME: Entry point for the soundscape demo
// ABOUTME: Plays a configured scene through the engine, or watches a remote engine's monitor
package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"io"
	"net"
	"os"
	"os/signal"
	"syscall"
	"time"

	tea "github.com/charmbracelet/bubbletea"
	"github.com/decred/slog"
	"golang.org/x/sync/errgroup"

	"github.com/Resonate-Protocol/soundscape/internal/config"
	"github.com/Resonate-Protocol/soundscape/internal/discovery"
	"github.com/Resonate-Protocol/soundscape/internal/logging"
	"github.com/Resonate-Protocol/soundscape/internal/monitor"
	"github.com/Resonate-Protocol/soundscape/internal/scene"
	"github.com/Resonate-Protocol/soundscape/internal/ui"
	"github.com/Resonate-Protocol/soundscape/internal/version"
	"github.com/Resonate-Protocol/soundscape/pkg/audio/output"
	"github.com/Resonate-Protocol/soundscape/pkg/sound"
)

var (
	logFile     = flag.String("log-file", "soundscape.log", "Log file path")
	noTUI       = flag.Bool("no-tui", false, "Disable TUI, use streaming logs instead")
	watch       = flag.String("watch", "", "Watch a remote monitor at host:port instead of playing (\"auto\" browses mDNS)")
	showVersion = flag.Bool("version", false, "Print the version and exit")
)

// demoScene plays when the configuration names no sources
var demoScene = config.SceneConfig{
	Buses: []config.BusConfig{{Name: "room"}},
	Sources: []config.SourceConfig{
		{Tone: 440, Gain: 0.5, OrbitRadius: 2, OrbitPeriod: 8, Bus: "room"},
		{Tone: 330, Gain: 0.3, OrbitRadius: 4, OrbitPeriod: 12, Bus: "room"},
	},
}

const (
	animatePeriod = 20 * time.Millisecond
	statsPeriod   = 250 * time.Millisecond
	browseTimeout = 10 * time.Second
)

func main() {
	cfg, err := config.ParseFlags(flag.CommandLine, os.Args[1:])
	if err != nil {
		fatalf("Invalid configuration: %v", err)
	}
	if *showVersion {
		fmt.Println(version.String())
		return
	}

	useTUI := !*noTUI

	f, err := os.OpenFile(*logFile, os.O_RDWR|os.O_CREATE|os.O_APPEND, 0o666)
	if err != nil {
		fatalf("error opening log file: %v", err)
	}
	defer func() { _ = f.Close() }()

	var w io.Writer = f
	if !useTUI {
		w = io.MultiWriter(os.Stdout, f)
	}
	log := logging.Setup(w, cfg.Level())

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	if *watch != "" {
		err = runWatch(ctx, log, cfg, *watch)
	} else {
		err = runPlay(ctx, log, cfg, useTUI)
	}
	if err != nil {
		log.Errorf("%v", err)
		fatalf("%v", err)
	}
}

func fatalf(format string, args ...interface{}) {
	fmt.Fprintf(os.Stderr, format+"\n", args...)
	os.Exit(1)
}

// runPlay renders the configured scene until interrupted
func runPlay(ctx context.Context, log slog.Logger, cfg config.Config, useTUI bool) error {
	log.Infof("Starting %s", version.String())

	soundCfg, err := cfg.SoundConfig()
	if err != nil {
		return err
	}

	dev, err := output.New(cfg.Output.Backend)
	if err != nil {
		return err
	}
	if m, ok := dev.(*output.Malgo); ok {
		m.BitDepth = cfg.Output.BitDepth
	}

	engine, err := sound.NewEngine(soundCfg, dev)
	if err != nil {
		return fmt.Errorf("starting engine: %w", err)
	}
	defer func() {
		if err := engine.Close(); err != nil {
			log.Warnf("Engine close: %v", err)
		}
	}()

	sc := cfg.Scene
	if len(sc.Sources) == 0 {
		log.Infof("No sources configured, playing the demo scene")
		sc = demoScene
	}
	s, err := scene.Build(engine, sc, nil)
	if err != nil {
		return fmt.Errorf("building scene: %w", err)
	}
	for _, v := range s.Voices() {
		log.Infof("Playing %s as %s", v.Name, v.Handle)
	}

	ctx, cancel := context.WithCancel(ctx)
	defer cancel()
	g, ctx := errgroup.WithContext(ctx)

	// The manual backend has no hardware clock of its own
	if m, ok := dev.(*output.Manual); ok {
		g.Go(func() error { return ignoreCanceled(m.Run(ctx, nil)) })
	}

	var mon *monitor.Server
	if cfg.Monitor.Addr != "" {
		ln, err := net.Listen("tcp", cfg.Monitor.Addr)
		if err != nil {
			return fmt.Errorf("monitor listen: %w", err)
		}
		mon = monitor.NewServer(engine, monitor.Config{Path: cfg.Monitor.Path, Interval: cfg.Monitor.Interval})
		log.Infof("Monitor listening on %s%s", ln.Addr(), mon.Path())
		g.Go(func() error { return mon.Serve(ctx, ln) })

		if cfg.Monitor.MDNS {
			disc := discovery.NewManager(discovery.Config{
				Instance: cfg.Monitor.Name,
				Port:     ln.Addr().(*net.TCPAddr).Port,
				Path:     mon.Path(),
				EngineID: engine.ID().String(),
			})
			if err := disc.Advertise(); err != nil {
				log.Warnf("mDNS advertisement failed: %v", err)
			}
			defer disc.Stop()
		}
	}

	var prog *tea.Program
	if useTUI {
		ctrl := ui.NewControl()
		prog = ui.Run(ctrl)
		g.Go(func() error {
			_, err := prog.Run()
			cancel()
			return err
		})
		go func() {
			prog.Send(ui.HelloMsg{Name: "local", Hello: monitor.NewHello(engine)})
		}()
		g.Go(func() error { return handleControl(ctx, log, engine, ctrl) })
		g.Go(func() error { return statsLoop(ctx, engine, prog) })
	}

	g.Go(func() error { return forwardEvents(ctx, log, engine, mon, prog) })
	g.Go(func() error { return animate(ctx, s) })

	<-ctx.Done()
	log.Infof("Shutting down")
	if prog != nil {
		prog.Quit()
	}
	return ignoreCanceled(g.Wait())
}

// animate moves orbiting voices along their paths
func animate(ctx context.Context, s *scene.Scene) error {
	start := time.Now()
	ticker := time.NewTicker(animatePeriod)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return nil
		case <-ticker.C:
			if err := s.Update(time.Since(start)); err != nil && !errors.Is(err, sound.ErrCommandQueueFull) {
				return err
			}
		}
	}
}

// forwardEvents logs engine events and fans them out to viewers
func forwardEvents(ctx context.Context, log slog.Logger, engine *sound.Engine, mon *monitor.Server, prog *tea.Program) error {
	for {
		select {
		case <-ctx.Done():
			return nil
		case ev := <-engine.Events():
			if ev.Err != nil {
				log.Warnf("Engine: %s", ev)
			} else {
				log.Debugf("Engine: %s", ev)
			}
			if mon != nil {
				mon.Publish(ev)
			}
			if prog != nil {
				prog.Send(ui.EventMsg(monitor.NewEventPayload(ev)))
			}
		}
	}
}

// statsLoop periodically updates the TUI with engine statistics
func statsLoop(ctx context.Context, engine *sound.Engine, prog *tea.Program) error {
	ticker := time.NewTicker(statsPeriod)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return nil
		case <-ticker.C:
			prog.Send(ui.StatsMsg(monitor.NewStatsPayload(engine.Stats(), engine.QuantumDuration())))
		}
	}
}

// handleControl applies gain changes from the TUI
func handleControl(ctx context.Context, log slog.Logger, engine *sound.Engine, ctrl *ui.Control) error {
	for {
		select {
		case <-ctx.Done():
			return nil
		case <-ctrl.Quit:
			log.Infof("Received quit signal from TUI")
			return context.Canceled
		case msg := <-ctrl.Gain:
			log.Debugf("Master gain: %.2f", msg.Gain)
			if err := engine.SetMasterGain(msg.Gain); err != nil {
				log.Warnf("Master gain: %v", err)
			}
		}
	}
}

// runWatch shows a remote engine's telemetry
func runWatch(ctx context.Context, log slog.Logger, cfg config.Config, target string) error {
	addr, path, name := target, cfg.Monitor.Path, target
	if target == "auto" {
		info, err := browse(ctx, log)
		if err != nil {
			return err
		}
		addr, path, name = info.Addr(), info.Path, info.Name
	}

	c, err := monitor.Dial(ctx, addr, path)
	if err != nil {
		return err
	}
	defer c.Close()
	log.Infof("Watching engine %s at %s", c.Hello().EngineID, addr)

	prog := ui.Run(nil)
	go func() {
		prog.Send(ui.HelloMsg{Name: name, Hello: c.Hello()})
		for {
			select {
			case <-ctx.Done():
				prog.Quit()
				return
			case u, ok := <-c.Updates():
				if !ok {
					prog.Send(ui.DisconnectedMsg{})
					return
				}
				switch {
				case u.Stats != nil:
					prog.Send(ui.StatsMsg(*u.Stats))
				case u.Event != nil:
					prog.Send(ui.EventMsg(*u.Event))
				}
			}
		}
	}()

	_, err = prog.Run()
	return err
}

// browse waits for the first monitor announced on the local network
func browse(ctx context.Context, log slog.Logger) (*discovery.MonitorInfo, error) {
	log.Infof("Browsing for monitors...")
	disc := discovery.NewManager(discovery.Config{})
	disc.Browse()
	defer disc.Stop()

	select {
	case info := <-disc.Monitors():
		log.Infof("Discovered %s at %s", info.Name, info.Addr())
		return info, nil
	case <-time.After(browseTimeout):
		return nil, fmt.Errorf("no monitor found after %v", browseTimeout)
	case <-ctx.Done():
		return nil, ctx.Err()
	}
}

func ignoreCanceled(err error) error {
	if errors.Is(err, context.Canceled) {
		return nil
	}
	return err
}
