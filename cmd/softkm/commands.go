package main

import (
	"context"
	"encoding/json"
	"fmt"
	"log"
	"net/http"
	"os"
	"os/signal"
	"strconv"
	"strings"
	"syscall"
	"time"

	"github.com/pkg/errors"
	"github.com/urfave/cli/v2"

	"softkm/internal/api"
	"softkm/internal/arrangement"
	"softkm/internal/autostart"
	"softkm/internal/config"
	"softkm/internal/connection"
	"softkm/internal/edge"
	"softkm/internal/hotkey"
	"softkm/internal/input"
	"softkm/internal/network"
	"softkm/internal/peer"
	"softkm/internal/protocol"
	"softkm/internal/switcher"
	"softkm/internal/tray"
)

func loadConfig(c *cli.Context) (*config.Manager, error) {
	var cfgMgr *config.Manager
	if path := c.String("config"); path != "" {
		cfgMgr = config.NewManagerAt(path)
	} else {
		var err error
		if cfgMgr, err = config.NewManager(); err != nil {
			return nil, errors.Wrap(err, "failed to initialize config")
		}
	}
	if err := cfgMgr.Load(); err != nil {
		return nil, errors.Wrap(err, "failed to load config")
	}
	return cfgMgr, nil
}

func waitForSignal() <-chan os.Signal {
	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)
	return sigCh
}

func runCommand() *cli.Command {
	return &cli.Command{
		Name:  "run",
		Usage: "capture input at the screen edge and forward it to the peer",
		Flags: []cli.Flag{
			&cli.StringFlag{
				Name:  "backend",
				Value: "replay",
				Usage: fmt.Sprintf("input backend (available: %s)", strings.Join(input.Backends(), ", ")),
			},
			&cli.BoolFlag{Name: "tray", Usage: "show a system tray indicator"},
			&cli.BoolFlag{Name: "no-status", Usage: "do not start the local status server"},
		},
		Action: runService,
	}
}

func runService(c *cli.Context) error {
	cfgMgr, err := loadConfig(c)
	if err != nil {
		return err
	}
	log.Printf("softKM %s starting, config %s", version, cfgMgr.Path())

	capture, sink, err := input.OpenBackend(c.String("backend"))
	if err != nil {
		return err
	}

	conn := connection.New(cfgMgr, network.Options{})
	defer conn.Close()

	detector := edge.NewDetector(
		func() edge.Settings { return cfgMgr.Get().EdgeSettings() },
		sink.ScreenBounds,
	)
	hotkeys := hotkey.NewManager()
	ctrl := switcher.New(conn, sink, detector, hotkeys)

	conn.OnSwitchToLocal(ctrl.SwitchToLocal)
	conn.OnConnectionLost(ctrl.ConnectionLost)
	ctrl.OnModeChange(conn.SetMode)

	// Helper to refresh hotkeys on config change
	registerHotkeys := func(cfg config.Config) {
		hotkeys.Clear()
		if err := ctrl.RegisterTeamMonitorChord(cfg.Hotkeys.TeamMonitor); err != nil {
			log.Printf("Warning: failed to register team monitor hotkey %q: %v", cfg.Hotkeys.TeamMonitor, err)
		}
	}
	registerHotkeys(*cfgMgr.Get())
	cfgMgr.RegisterChangeCallback(registerHotkeys)

	cfg := cfgMgr.Get()
	if cfg.Status.Enabled && !c.Bool("no-status") {
		srv := api.NewServer(cfgMgr, conn)
		if err := srv.Start(cfg.Status.Addr); err != nil {
			log.Printf("Warning: %v (continuing without status server)", err)
		} else {
			defer func() {
				ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
				defer cancel()
				_ = srv.Stop(ctx)
			}()
		}
	}

	if err := ctrl.Start(capture); err != nil {
		return errors.Wrap(err, "failed to start input capture")
	}
	defer capture.Stop()
	conn.Connect()

	sigCh := waitForSignal()
	if !c.Bool("tray") {
		sig := <-sigCh
		log.Printf("Received %v, shutting down", sig)
		return nil
	}

	t := tray.New(tray.Actions{
		Connect:    conn.Connect,
		Disconnect: conn.Disconnect,
		Quit:       func() { log.Println("Quit requested from tray") },
	})
	t.SetStatus(conn.Snapshot())
	conn.Subscribe(t.SetStatus)
	go func() {
		sig := <-sigCh
		log.Printf("Received %v, shutting down", sig)
		t.Stop()
	}()
	// Blocks until Quit.
	t.Run()
	return nil
}

func peerCommand() *cli.Command {
	return &cli.Command{
		Name:  "peer",
		Usage: "run a reference receiving peer that logs everything it gets",
		Flags: []cli.Flag{
			&cli.StringFlag{Name: "listen", Value: ":31337", Usage: "listen address"},
			&cli.Float64Flag{Name: "width", Value: 1920, Usage: "announced screen width"},
			&cli.Float64Flag{Name: "height", Value: 1080, Usage: "announced screen height"},
			&cli.DurationFlag{
				Name:  "return-after",
				Usage: "hand control back this long after receiving it (0 keeps it)",
			},
		},
		Action: runPeer,
	}
}

func runPeer(c *cli.Context) error {
	width, height := c.Float64("width"), c.Float64("height")
	returnAfter := c.Duration("return-after")

	var srv *peer.Server
	srv, err := peer.Listen(c.String("listen"), peer.Options{
		ScreenWidth:  float32(width),
		ScreenHeight: float32(height),
		OnEvent: func(ev protocol.Event) {
			log.Printf("Peer: Received %s %+v", ev.Type(), ev)
			cs, ok := ev.(protocol.ControlSwitch)
			if !ok || !cs.ToRemote || returnAfter <= 0 {
				return
			}
			time.AfterFunc(returnAfter, func() {
				if err := srv.SendSwitchBack(cs.YFromBottom); err != nil {
					log.Printf("Peer: Failed to return control: %v", err)
				}
			})
		},
		OnClient: func(connected bool) {
			log.Printf("Peer: Controller attached: %v", connected)
		},
	})
	if err != nil {
		return err
	}
	defer srv.Close()

	if ip, err := network.LocalIP(); err == nil {
		log.Printf("Peer: Preferred address %s", ip)
	}
	if ips, err := network.LocalIPs(); err == nil {
		for _, ip := range ips {
			log.Printf("Peer: Reachable at %s", ip)
		}
	}

	sig := <-waitForSignal()
	log.Printf("Received %v, shutting down", sig)
	return nil
}

func arrangeCommand() *cli.Command {
	return &cli.Command{
		Name:      "arrange",
		Usage:     "move the remote screen in the arrangement, snapping it to the local screen",
		ArgsUsage: "[X Y]",
		Flags: []cli.Flag{
			&cli.StringFlag{
				Name:  "screens",
				Usage: "rebuild from real sizes, LOCALWxLOCALH:REMOTEWxREMOTEH (e.g. 2560x1440:1920x1080)",
			},
		},
		Action: runArrange,
	}
}

func runArrange(c *cli.Context) error {
	cfgMgr, err := loadConfig(c)
	if err != nil {
		return err
	}

	if screens := c.String("screens"); screens != "" {
		lw, lh, rw, rh, err := parseScreens(screens)
		if err != nil {
			return err
		}
		base := arrangement.Default().Local.Height
		cfgMgr.Update(func(cfg *config.Config) {
			cfg.Arrangement = arrangement.FromScreenSizes(lw, lh, rw, rh, base)
		})
	}

	switch c.NArg() {
	case 0:
	case 2:
		x, err := strconv.ParseFloat(c.Args().Get(0), 64)
		if err != nil {
			return errors.Wrap(err, "invalid X")
		}
		y, err := strconv.ParseFloat(c.Args().Get(1), 64)
		if err != nil {
			return errors.Wrap(err, "invalid Y")
		}
		cfgMgr.RepositionRemote(x, y)
	default:
		return errors.New("arrange takes either no arguments or X and Y")
	}

	if c.NArg() > 0 || c.String("screens") != "" {
		if err := cfgMgr.Save(); err != nil {
			return err
		}
	}

	a := cfgMgr.Get().Arrangement
	fmt.Printf("Local:  %s\n", a.Local)
	fmt.Printf("Remote: %s\n", a.Remote)
	fmt.Printf("Connected edge: %s\n", a.ConnectedEdge())
	return nil
}

func parseScreens(screens string) (lw, lh, rw, rh float64, err error) {
	parts := strings.Split(screens, ":")
	if len(parts) != 2 {
		return 0, 0, 0, 0, errors.Errorf("invalid screens %q", screens)
	}
	if lw, lh, err = parseSize(parts[0]); err != nil {
		return
	}
	rw, rh, err = parseSize(parts[1])
	return
}

func parseSize(s string) (w, h float64, err error) {
	dims := strings.Split(strings.ToLower(strings.TrimSpace(s)), "x")
	if len(dims) != 2 {
		return 0, 0, errors.Errorf("invalid size %q", s)
	}
	if w, err = strconv.ParseFloat(dims[0], 64); err != nil {
		return 0, 0, errors.Wrapf(err, "invalid width in %q", s)
	}
	if h, err = strconv.ParseFloat(dims[1], 64); err != nil {
		return 0, 0, errors.Wrapf(err, "invalid height in %q", s)
	}
	return w, h, nil
}

func statusCommand() *cli.Command {
	return &cli.Command{
		Name:  "status",
		Usage: "print the running instance's connection status",
		Flags: []cli.Flag{
			&cli.StringFlag{Name: "addr", Usage: "status server address (defaults to status.addr)"},
		},
		Action: runStatus,
	}
}

func runStatus(c *cli.Context) error {
	addr := c.String("addr")
	if addr == "" {
		cfgMgr, err := loadConfig(c)
		if err != nil {
			return err
		}
		addr = cfgMgr.Get().Status.Addr
	}

	client := &http.Client{Timeout: 5 * time.Second}
	resp, err := client.Get("http://" + addr + "/api/status")
	if err != nil {
		return errors.Wrap(err, "is softkm running?")
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		return errors.Errorf("status server returned %s", resp.Status)
	}

	var st api.StatusResponse
	if err := json.NewDecoder(resp.Body).Decode(&st); err != nil {
		return errors.Wrap(err, "failed to decode status")
	}

	fmt.Printf("Peer:    %s:%d\n", st.Host, st.Port)
	fmt.Printf("State:   %s\n", st.State)
	if st.Message != "" {
		fmt.Printf("Message: %s\n", st.Message)
	}
	fmt.Printf("Mode:    %s\n", st.Mode)
	if st.SessionID != "" {
		fmt.Printf("Session: %s\n", st.SessionID)
	}
	if st.RemoteWidth > 0 {
		fmt.Printf("Remote:  %.0fx%.0f\n", st.RemoteWidth, st.RemoteHeight)
	}
	fmt.Printf("Updated: %s\n", st.Updated.Format(time.RFC3339))
	return nil
}

func autostartCommand() *cli.Command {
	return &cli.Command{
		Name:      "autostart",
		Usage:     "start the controller with a tray indicator at login",
		ArgsUsage: "enable|disable|status",
		Action:    runAutostart,
	}
}

func runAutostart(c *cli.Context) error {
	switch c.Args().First() {
	case "enable":
		args := []string{"run", "--tray"}
		if path := c.String("config"); path != "" {
			args = append([]string{"--config", path}, args...)
		}
		if err := autostart.Enable(args...); err != nil {
			return err
		}
		fmt.Println("Autostart enabled")
	case "disable":
		if err := autostart.Disable(); err != nil {
			return err
		}
		fmt.Println("Autostart disabled")
	case "status", "":
		fmt.Printf("Autostart enabled: %v\n", autostart.IsEnabled())
	default:
		return errors.Errorf("unknown autostart action %q", c.Args().First())
	}
	return nil
}
