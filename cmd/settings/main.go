package main

import (
	"flag"
	"fmt"
	"os"

	"github.com/cbodonnell/roomsync/pkg/log"
	"github.com/cbodonnell/roomsync/pkg/settings"
)

func main() {
	path := flag.String("settings", settings.DefaultPath, "Settings file")
	show := flag.Bool("show", false, "Print the effective settings and exit")

	values := map[string]*string{}
	for _, key := range []string{
		settings.KeyWindowLength,
		settings.KeyWindowHeight,
		settings.KeyFPS,
		settings.KeyIP,
		settings.KeyPort,
		settings.KeyName,
		settings.KeyPreferredLatency,
		settings.KeySkin,
	} {
		values[key] = flag.String(key, "", fmt.Sprintf("New value for %s", key))
	}
	flag.Parse()

	log.SetDefaultLogger(log.New(os.Stderr, log.LogLevelInfo))
	defer log.Sync()

	s, err := settings.Load(*path)
	if err != nil {
		log.Error("Failed to load settings: %v", err)
		os.Exit(1)
	}

	if *show {
		printSettings(s)
		return
	}

	changed := 0
	flag.Visit(func(f *flag.Flag) {
		v, ok := values[f.Name]
		if !ok {
			return
		}
		if err := s.Set(f.Name, *v); err != nil {
			log.Error("Failed to set %s: %v", f.Name, err)
			os.Exit(1)
		}
		changed++
	})
	if changed == 0 {
		printSettings(s)
		return
	}

	if _, err := s.PortNumber(); err != nil {
		log.Error("Refusing to save: %v", err)
		os.Exit(1)
	}
	if err := settings.Save(*path, s); err != nil {
		log.Error("Failed to save settings: %v", err)
		os.Exit(1)
	}
	log.Info("Saved %d setting(s) to %s", changed, *path)
}

func printSettings(s settings.Settings) {
	w, h := s.Window()
	fmt.Printf("%s=%d\n%s=%d\n", settings.KeyWindowLength, w, settings.KeyWindowHeight, h)
	fmt.Printf("%s=%s\n", settings.KeyFPS, s.FPS)
	fmt.Printf("%s=%s\n", settings.KeyIP, s.IP)
	fmt.Printf("%s=%s\n", settings.KeyPort, s.Port)
	fmt.Printf("%s=%q\n", settings.KeyName, s.Name)
	fmt.Printf("%s=%s\n", settings.KeyPreferredLatency, s.PreferredLatency)
	fmt.Printf("%s=%s\n", settings.KeySkin, s.Skin)
}
