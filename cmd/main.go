// USB Trigger - HID input capture and dispatch daemon
// Binds USB device presses to configurable actions
package main

import (
	"flag"
	"fmt"
	"os"
	"os/signal"
	"syscall"
	"time"

	"go.uber.org/zap"

	"usbtrigger/internal/action"
	"usbtrigger/internal/autostart"
	"usbtrigger/internal/config"
	"usbtrigger/internal/hid"
	"usbtrigger/internal/listener"
	"usbtrigger/internal/logging"
	"usbtrigger/internal/monitor"
	"usbtrigger/internal/notify"
	"usbtrigger/internal/tray"
)

var (
	version  = "0.1.0"
	showVer  = flag.Bool("version", false, "Show version")
	listDevs = flag.Bool("list", false, "List connected HID devices")
	identify = flag.Bool("identify", false, "Wait for input and print the originating device")
)

func main() {
	flag.Parse()

	if *showVer {
		fmt.Printf("usbtrigger version %s\n", version)
		return
	}

	store, err := config.NewStore()
	if err != nil {
		logging.Log.Fatal("Failed to initialize config", zap.Error(err))
	}
	if err := store.Load(); err != nil {
		logging.Log.Warn("Failed to load config", zap.Error(err))
	}

	settings := store.Settings()
	logging.Init(logging.ParseLevel(settings.LogLevel))

	if *listDevs {
		listDevices(store)
		return
	}

	if *identify {
		identifyDevice()
		return
	}

	runService(store)
}

func listDevices(store *config.Store) {
	devices := hid.NewManager()
	for _, id := range store.ConfiguredDeviceIDs() {
		devices.SetConfigured(id)
	}

	list, err := devices.List()
	if err != nil {
		logging.Log.Fatal("Failed to enumerate devices", zap.Error(err))
	}

	fmt.Println("Connected HID Devices:")
	fmt.Println("----------------------")
	for _, d := range list {
		fmt.Printf("ID: %s\n", d.ID)
		fmt.Printf("  Name: %s\n", d.Name)
		if d.Manufacturer != "" {
			fmt.Printf("  Manufacturer: %s\n", d.Manufacturer)
		}
		if d.SerialNumber != "" {
			fmt.Printf("  Serial: %s\n", d.SerialNumber)
		}
		fmt.Printf("  Interfaces: %d\n", d.TotalInterfaces)
		fmt.Printf("  Status: %s\n", d.Status)
		fmt.Println()
	}
}

// identifyDevice runs the capture sources directly and prints the first
// device that produces input.
func identifyDevice() {
	p := monitor.NewParallel()
	p.Attach(monitor.NewRawInput())
	p.Attach(monitor.NewHidPoll())

	events := p.StartAll()
	defer p.StopAll()

	fmt.Println("Press a button on the device to identify... (Ctrl+C to abort)")

	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)

	select {
	case ev, ok := <-events:
		if !ok {
			logging.Log.Fatal("No monitoring source available")
		}
		fmt.Printf("Detected input from %s", ev.Identity.String())
		if ev.Identity.Product != "" {
			fmt.Printf(" (%s)", ev.Identity.Product)
		}
		fmt.Printf(" via %s\n", ev.Origin)
	case <-sigCh:
		fmt.Println("Aborted")
	case <-time.After(2 * time.Minute):
		fmt.Println("Timed out waiting for input")
	}
}

func runService(store *config.Store) {
	logging.Log.Info("USB Trigger service starting", zap.String("version", version))

	settings := store.Settings()

	devices := hid.NewManager()
	for _, id := range store.ConfiguredDeviceIDs() {
		devices.SetConfigured(id)
	}

	dispatcher := action.NewDispatcher(store, store)
	l := listener.New(store, devices, dispatcher)

	server := notify.NewServer(store, devices, l)
	server.TestAction = dispatcher.Run
	l.SetNotifier(server)

	// Reconcile the login registration with the stored preference.
	if settings.StartWithSystem != autostart.IsEnabled() {
		var err error
		if settings.StartWithSystem {
			err = autostart.Enable()
		} else {
			err = autostart.Disable()
		}
		if err != nil {
			logging.Log.Warn("Failed to update auto-start registration", zap.Error(err))
		}
	}

	if settings.NotifyAddr != "" {
		if err := server.Start(settings.NotifyAddr); err != nil {
			logging.Log.Warn("Continuing without the local API", zap.Error(err))
		}
	}

	if err := l.Start(); err != nil {
		logging.Log.Fatal("Failed to start listener", zap.Error(err))
	}

	shutdown := func() {
		logging.Log.Info("Shutting down...")
		l.Stop()
		server.Stop()
	}

	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)

	if !settings.ShowInTray {
		logging.Log.Info("USB Trigger running. Press Ctrl+C to stop.")
		<-sigCh
		shutdown()
		return
	}

	t := tray.New("USB Trigger - device action dispatch")

	t.AddItem("Identify Device", func() {
		if err := l.StartIdentify(); err != nil {
			logging.Log.Warn("Identification unavailable", zap.Error(err))
		}
	})

	var loginItem *tray.Item
	loginItem = t.AddItem("Start at Login", func() {
		s := store.Settings()
		s.StartWithSystem = !s.StartWithSystem

		var err error
		if s.StartWithSystem {
			err = autostart.Enable()
		} else {
			err = autostart.Disable()
		}
		if err != nil {
			logging.Log.Warn("Failed to toggle auto-start", zap.Error(err))
			return
		}
		if err := store.SaveSettings(s); err != nil {
			logging.Log.Warn("Failed to save settings", zap.Error(err))
		}
		loginItem.SetChecked(s.StartWithSystem)
	})
	loginItem.SetChecked(settings.StartWithSystem)

	t.AddSeparator()

	t.AddItem("Quit", func() {
		t.Stop()
	})

	go func() {
		<-sigCh
		t.Stop()
	}()

	logging.Log.Info("USB Trigger running in the system tray.")
	t.Run()
	shutdown()
}
