// eyescroll - scroll the foreground application with your eyes or a
// one-line TCP command
package main

import (
	"context"
	"flag"
	"fmt"
	"log"
	"os"
	"os/signal"
	"runtime"
	"syscall"
	"time"

	"eyescroll/internal/api"
	"eyescroll/internal/autostart"
	"eyescroll/internal/camera"
	"eyescroll/internal/config"
	"eyescroll/internal/engine"
	"eyescroll/internal/input"
	"eyescroll/internal/network"
	"eyescroll/internal/osutils"
	"eyescroll/internal/protocol"
	"eyescroll/internal/remote"
	"eyescroll/internal/scroll"
	"eyescroll/internal/tray"
)

var (
	version     = "0.1.0"
	showVer     = flag.Bool("version", false, "Show version")
	headless    = flag.Bool("headless", false, "Run without the tray icon")
	sensitivity = flag.Int("sensitivity", -1, "Override gaze sensitivity (0-100)")
	remoteAddr  = flag.String("remote-addr", "", "Override the TCP command address (e.g. :8080)")
	sendCmd     = flag.String("send", "", `Send a command ("scroll up" or "scroll down") to a running instance and exit`)
	watchAddr   = flag.String("watch", "", "Print the gaze and scroll events of the instance whose API is at host:port")
)

// capabilityPoll is how often the injection capability is re-checked
const capabilityPoll = 2 * time.Second

func main() {
	log.SetFlags(log.LstdFlags | log.Lmicroseconds)
	flag.Parse()

	if *showVer {
		fmt.Printf("eyescroll version %s\n", version)
		return
	}

	// Initialize config
	cfgMgr, err := config.NewManager()
	if err != nil {
		log.Fatalf("Failed to initialize config: %v", err)
	}
	if err := cfgMgr.Load(); err != nil {
		log.Printf("Warning: failed to load config: %v", err)
	}

	// Command line overrides are not saved
	if *sensitivity >= 0 {
		cfgMgr.OverrideSensitivity(*sensitivity)
	}

	// Handle --send flag
	if *sendCmd != "" {
		if err := handleSend(cfgMgr, *sendCmd); err != nil {
			log.Fatalf("Send failed: %v", err)
		}
		return
	}

	// Handle --watch flag
	if *watchAddr != "" {
		runWatch(*watchAddr, cfgMgr.Get().API.Token)
		return
	}

	// Default: run as background service
	runService(cfgMgr)
}

func handleSend(cfgMgr *config.Manager, line string) error {
	d, err := protocol.ParseCommand(line)
	if err != nil {
		return err
	}

	addr, err := remote.DialAddr(commandAddr(cfgMgr.Get()))
	if err != nil {
		return err
	}

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if err := remote.Send(ctx, addr, d); err != nil {
		return err
	}
	fmt.Printf("Sent scroll %s to %s\n", d, addr)
	return nil
}

func runWatch(addr, token string) {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	c := network.NewWSClient(addr, token)
	c.OnStatus = func(st engine.Status) {
		fmt.Printf("status  gaze=%v remote=%v target=%v sensitivity=%d\n",
			st.GazeRunning, st.RemoteRunning, st.TargetConnected, st.Sensitivity)
	}
	c.OnGaze = func(p protocol.GazePayload) {
		fmt.Printf("gaze    %-6s delta=%+.1f threshold=%.1f\n", p.Direction, p.Delta, p.Threshold)
	}
	c.OnDispatch = func(p protocol.DispatchPayload) {
		fmt.Printf("scroll  %-6s from %-6s delivered=%v\n", p.Direction, p.Origin, p.Delivered)
	}
	c.Start()
	defer c.Close()

	<-ctx.Done()
}

// commandAddr is the TCP command address, -remote-addr taking precedence
func commandAddr(cfg *config.Config) string {
	if *remoteAddr != "" {
		return *remoteAddr
	}
	return cfg.Remote.Addr
}

// frameSource builds the configured gaze frame source, or nil when gaze
// control cannot run
func frameSource(g config.GazeConfig) camera.Source {
	switch g.Source {
	case config.SourceGoCV:
		return &camera.CameraSource{
			Device:      g.CameraDevice,
			FaceCascade: g.FaceCascade,
			EyeCascade:  g.EyeCascade,
		}
	case config.SourceRecognizer:
		if g.RecognizerCmd == "" {
			log.Printf("Gaze: No recognizer_cmd configured, gaze control unavailable")
			return nil
		}
		return &camera.RecognizerSource{
			Command: g.RecognizerCmd,
			Args:    g.RecognizerArgs,
			Dir:     g.RecognizerDir,
		}
	default:
		log.Printf("Gaze: Unknown source %q, gaze control unavailable", g.Source)
		return nil
	}
}

// screenSize prefers the configured override over the detected display
func screenSize(cfgMgr *config.Manager, injector *input.Injector) scroll.ScreenFunc {
	return func() (int, int, error) {
		if sc := cfgMgr.Get().Screen; sc.Width > 0 && sc.Height > 0 {
			return sc.Width, sc.Height, nil
		}
		return injector.ScreenSize()
	}
}

func runService(cfgMgr *config.Manager) {
	log.Println("eyescroll starting...")

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	cfg := cfgMgr.Get()
	listenAddr := commandAddr(cfg)

	// Scroll target: attached while the OS lets us inject input
	registry := scroll.NewRegistry()
	injector := input.NewInjector()
	target := scroll.NewSwipeTarget(registry, injector, screenSize(cfgMgr, injector))
	if !injector.Available() {
		if runtime.GOOS == "darwin" {
			log.Println("Note: Grant Accessibility permission in System Settings > Privacy & Security to enable scrolling")
		} else {
			log.Printf("Note: Input injection is not available on %s, scroll commands will be ignored", runtime.GOOS)
		}
	}
	go scroll.Watch(ctx, target, injector.Available, capabilityPoll)

	opts := []engine.Option{
		engine.WithSensitivity(cfgMgr.Sensitivity),
		engine.WithGazeCooldown(cfg.Gaze.Cooldown()),
		engine.WithRemote(listenAddr, remote.Options{
			ReadTimeout:  cfg.Remote.ReadTimeout(),
			MaxLineBytes: cfg.Remote.MaxLineBytes,
		}),
	}
	if src := frameSource(cfg.Gaze); src != nil {
		opts = append(opts, engine.WithFrameSource(src))
	}
	eng := engine.New(registry, opts...)

	if cfg.General.RemoteEnabled {
		// Ensure firewall rule exists on Windows
		if runtime.GOOS == "windows" {
			if port, err := osutils.PortFromAddr(listenAddr); err == nil {
				go func() {
					if err := osutils.EnsureFirewallRule(port); err != nil {
						log.Printf("Firewall warning: %v", err)
					}
				}()
			}
		}
		if err := eng.StartRemote(); err != nil {
			log.Printf("Remote control unavailable: %v", err)
		}
	}
	if cfg.General.GazeEnabled {
		if err := eng.StartGaze(ctx); err != nil {
			log.Printf("Gaze control unavailable: %v", err)
		}
	}

	// Start API server if enabled
	var apiServer *api.Server
	if cfg.API.Enabled {
		apiServer = api.NewServer(cfgMgr, eng)
		go func() {
			if err := apiServer.Start(cfg.API.Addr()); err != nil {
				log.Printf("API server error: %v", err)
			}
		}()
	}

	syncAutostart(cfg.General.StartOnBoot)

	if *headless {
		log.Println("eyescroll running headless. Press Ctrl+C to stop.")
		<-ctx.Done()
	} else {
		t := buildTray(ctx, cfgMgr, eng)
		go func() {
			<-ctx.Done()
			t.Stop()
		}()
		log.Println("eyescroll running. Press Ctrl+C to stop.")
		t.Run()
	}

	log.Println("Shutting down...")
	stop()
	if err := eng.Stop(); err != nil {
		log.Printf("Engine stop error: %v", err)
	}
	if apiServer != nil {
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		if err := apiServer.Stop(shutdownCtx); err != nil {
			log.Printf("API server stop error: %v", err)
		}
		cancel()
	}
	target.OnDisconnect()
	target.Wait()
}

func syncAutostart(want bool) {
	if want == autostart.IsEnabled() {
		return
	}
	var err error
	if want {
		err = autostart.Enable("-headless")
	} else {
		err = autostart.Disable()
	}
	if err != nil {
		log.Printf("Autostart: %v", err)
	}
}

// saveGeneral applies fn to the stored config and saves it
func saveGeneral(cfgMgr *config.Manager, fn func(g *config.GeneralConfig)) {
	cfg := cfgMgr.Get()
	fn(&cfg.General)
	cfgMgr.Set(cfg)
	if err := cfgMgr.Save(); err != nil {
		log.Printf("Failed to save config: %v", err)
	}
}

func buildTray(ctx context.Context, cfgMgr *config.Manager, eng *engine.Engine) *tray.Tray {
	t := tray.New("EyeScroll", "eyescroll - gaze and remote scrolling")
	st := eng.Status()

	sensitivityLabel := func() string {
		return fmt.Sprintf("Sensitivity: %d", cfgMgr.Sensitivity())
	}
	labelID := t.AddLabel(sensitivityLabel())

	var gazeID, remoteID, bootID int
	gazeID = t.AddCheckbox("Gaze control", st.GazeRunning, func() {
		on := !eng.Status().GazeRunning
		if on {
			if err := eng.StartGaze(ctx); err != nil {
				log.Printf("Gaze control unavailable: %v", err)
				return
			}
		} else {
			eng.StopGaze()
		}
		t.SetItemChecked(gazeID, eng.Status().GazeRunning)
		saveGeneral(cfgMgr, func(g *config.GeneralConfig) { g.GazeEnabled = on })
	})
	remoteID = t.AddCheckbox("Remote control", st.RemoteRunning, func() {
		on := !eng.Status().RemoteRunning
		if on {
			if err := eng.StartRemote(); err != nil {
				log.Printf("Remote control unavailable: %v", err)
				return
			}
		} else {
			eng.StopRemote()
		}
		t.SetItemChecked(remoteID, on)
		saveGeneral(cfgMgr, func(g *config.GeneralConfig) { g.RemoteEnabled = on })
	})

	t.AddSeparator()

	adjust := func(step int) func() {
		return func() {
			cfgMgr.SetSensitivity(cfgMgr.Sensitivity() + step)
			if err := cfgMgr.Save(); err != nil {
				log.Printf("Failed to save config: %v", err)
			}
		}
	}
	t.AddMenuItem("More sensitive", adjust(10))
	t.AddMenuItem("Less sensitive", adjust(-10))

	// Sensitivity may also change through the API
	cfgMgr.RegisterChangeCallback(func() {
		t.SetItemTitle(labelID, sensitivityLabel())
	})

	t.AddSeparator()

	bootID = t.AddCheckbox("Start on login", autostart.IsEnabled(), func() {
		on := !autostart.IsEnabled()
		syncAutostart(on)
		t.SetItemChecked(bootID, autostart.IsEnabled())
		saveGeneral(cfgMgr, func(g *config.GeneralConfig) { g.StartOnBoot = on })
	})

	t.AddSeparator()

	t.AddMenuItem("Quit", func() {
		t.Stop()
	})

	return t
}
