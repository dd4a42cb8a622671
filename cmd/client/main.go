package main

import (
	"bufio"
	"context"
	"flag"
	"fmt"
	"os"
	"os/signal"
	"strconv"
	"strings"
	"syscall"
	"time"

	clientnetwork "github.com/cbodonnell/roomsync/pkg/client/network"
	"github.com/cbodonnell/roomsync/pkg/game/constants"
	"github.com/cbodonnell/roomsync/pkg/game/types"
	"github.com/cbodonnell/roomsync/pkg/log"
	"github.com/cbodonnell/roomsync/pkg/settings"
	"github.com/cbodonnell/roomsync/pkg/state"
)

// clientIDWait bounds how long the client waits for the server's welcome
// before announcing its player.
const clientIDWait = 5 * time.Second

func main() {
	settingsPath := flag.String("settings", settings.DefaultPath, "Settings file")
	preloaded, err := settings.Load(settings.PathFromArgs(os.Args[1:]))
	if err != nil {
		panic(fmt.Sprintf("Failed to load settings: %v", err))
	}

	host := flag.String("host", preloaded.IP, "Server host")
	port := flag.String("port", preloaded.Port, "Server port")
	ws := flag.Bool("ws", false, "Connect over WebSocket")
	compress := flag.Bool("compress", false, "Compress outgoing frames")
	room := flag.Int("room", 1, "Room to join")
	lockDebug := flag.Bool("lock-debug", false, "Detect lock-order problems in the local world copy")
	logLevel := flag.String("log-level", "info", "Log level")
	logFile := flag.String("log-file", "", "Write logs to a rotating file instead of stderr")
	flag.Parse()

	parsedLogLevel, err := log.ParseLogLevel(*logLevel)
	if err != nil {
		panic(fmt.Sprintf("Failed to parse log level: %v", err))
	}
	logger := log.New(os.Stderr, parsedLogLevel)
	if *logFile != "" {
		logger = log.NewFile(*logFile, parsedLogLevel)
	}
	log.SetDefaultLogger(logger)
	defer log.Sync()

	cfg := preloaded
	cfg.IP = *host
	cfg.Port = *port
	address, err := cfg.Address()
	if err != nil {
		panic(fmt.Sprintf("Failed to resolve server address from %s: %v", *settingsPath, err))
	}

	state.SetLockDebug(*lockDebug)

	ctx, cancel := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer cancel()

	store := state.NewStore(state.NewStoreOptions{
		Game: types.NewGame(constants.DefaultRoomCount),
	})
	networkManager := clientnetwork.NewNetworkManager(clientnetwork.NewNetworkManagerOptions{
		Address:   address,
		WebSocket: *ws,
		Compress:  *compress,
		Store:     store,
	})
	if err := networkManager.Connect(ctx); err != nil {
		panic(fmt.Sprintf("Failed to connect to %s: %v", address, err))
	}
	log.Info("Connected to %s as %s", address, displayName(cfg.Name))

	done := make(chan error, 1)
	go func() {
		done <- networkManager.Start(ctx)
		cancel()
	}()

	if !waitForClientID(ctx, networkManager) {
		log.Warn("No client id after %s, announcing with id 0", clientIDWait)
	}
	player := types.Player{
		X:      constants.PlayerStartingX,
		Y:      constants.PlayerStartingY,
		Width:  constants.PlayerWidth,
		Height: constants.PlayerHeight,
		Skin:   cfg.SkinIndex(),
		Room:   *room,
	}
	if err := networkManager.Announce(ctx, player); err != nil {
		log.Error("Failed to announce player: %v", err)
	}

	go readCommands(ctx, networkManager)

	if err := <-done; err != nil {
		log.Error("Client stopped: %v", err)
		os.Exit(1)
	}
	log.Info("Client stopped")
}

func waitForClientID(ctx context.Context, m *clientnetwork.NetworkManager) bool {
	ticker := time.NewTicker(20 * time.Millisecond)
	defer ticker.Stop()
	timeout := time.After(clientIDWait)
	for m.ClientID() == 0 {
		select {
		case <-ctx.Done():
			return false
		case <-timeout:
			return false
		case <-ticker.C:
		}
	}
	return true
}

// readCommands drives the local player from stdin. Each line is either
// "x y", "room" or "game".
func readCommands(ctx context.Context, m *clientnetwork.NetworkManager) {
	scanner := bufio.NewScanner(os.Stdin)
	for scanner.Scan() {
		fields := strings.Fields(scanner.Text())
		switch {
		case len(fields) == 0:
		case len(fields) == 1 && fields[0] == "room":
			printRoom(m)
		case len(fields) == 1 && fields[0] == "game":
			if err := m.RequestGame(ctx); err != nil {
				log.Error("Failed to request game: %v", err)
			}
		case len(fields) == 2:
			x, errX := strconv.ParseFloat(fields[0], 64)
			y, errY := strconv.ParseFloat(fields[1], 64)
			if errX != nil || errY != nil {
				log.Warn("Ignoring position %q", scanner.Text())
				continue
			}
			if err := m.SetPosition(ctx, x, y); err != nil {
				log.Error("Failed to send position: %v", err)
				return
			}
		default:
			log.Warn("Unknown command %q", scanner.Text())
		}
	}
}

func printRoom(m *clientnetwork.NetworkManager) {
	room, ok := m.MyRoom()
	if !ok {
		fmt.Println("not in a room")
		return
	}
	me := m.ClientID()
	for _, p := range room.Players {
		marker := " "
		if p.ID == me {
			marker = "*"
		}
		fmt.Printf("%s player %d at (%.1f, %.1f) facing %s\n", marker, p.ID, p.X, p.Y, p.SpriteState)
	}
	for _, n := range room.NPCs {
		fmt.Printf("  npc %d at (%.1f, %.1f) facing %s\n", n.ID, n.X, n.Y, n.SpriteState)
	}
}

func displayName(name string) string {
	if name == "" {
		return "anonymous"
	}
	return name
}
