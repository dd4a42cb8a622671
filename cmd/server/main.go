package main

import (
	"context"
	"flag"
	"fmt"
	"net"
	"os"
	"os/signal"
	"strconv"
	"syscall"

	"github.com/cbodonnell/roomsync/pkg/api"
	"github.com/cbodonnell/roomsync/pkg/game"
	"github.com/cbodonnell/roomsync/pkg/game/constants"
	gametypes "github.com/cbodonnell/roomsync/pkg/game/types"
	"github.com/cbodonnell/roomsync/pkg/log"
	"github.com/cbodonnell/roomsync/pkg/network"
	"github.com/cbodonnell/roomsync/pkg/settings"
	"github.com/cbodonnell/roomsync/pkg/state"
	"github.com/cbodonnell/roomsync/pkg/workers"
	"golang.org/x/sync/errgroup"
)

func main() {
	settingsPath := flag.String("settings", settings.DefaultPath, "Settings file")
	preloaded, err := settings.Load(settings.PathFromArgs(os.Args[1:]))
	if err != nil {
		panic(fmt.Sprintf("Failed to load settings: %v", err))
	}

	host := flag.String("host", preloaded.IP, "Address to listen on")
	port := flag.String("port", preloaded.Port, "TCP port to listen on")
	wsPort := flag.Int("ws-port", 0, "WebSocket port to listen on (0 disables)")
	apiPort := flag.Int("api-port", 0, "Admin API port to listen on (0 disables)")
	rooms := flag.Int("rooms", constants.DefaultRoomCount, "Number of rooms")
	npcs := flag.Int("npcs", 0, "NPCs to walk around each room")
	compress := flag.Bool("compress", false, "Compress outgoing frames")
	roomScopedUpserts := flag.Bool("room-scoped-upserts", false, "Only upsert players into their own room")
	lockDebug := flag.Bool("lock-debug", false, "Detect lock-order problems in the store and client registry")
	logLevel := flag.String("log-level", "info", "Log level")
	logFile := flag.String("log-file", "", "Write logs to a rotating file instead of stdout")
	flag.Parse()

	parsedLogLevel, err := log.ParseLogLevel(*logLevel)
	if err != nil {
		panic(fmt.Sprintf("Failed to parse log level: %v", err))
	}

	logger := log.New(os.Stdout, parsedLogLevel)
	if *logFile != "" {
		logger = log.NewFile(*logFile, parsedLogLevel)
	}
	log.SetDefaultLogger(logger)
	defer log.Sync()
	log.Info("Log level set to %s", parsedLogLevel)

	cfg := preloaded
	cfg.IP = *host
	cfg.Port = *port
	address, err := cfg.Address()
	if err != nil {
		panic(fmt.Sprintf("Failed to resolve listen address from %s: %v", *settingsPath, err))
	}

	state.SetLockDebug(*lockDebug)

	ctx, cancel := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer cancel()

	upsertPolicy := state.UpsertAllRooms
	if *roomScopedUpserts {
		upsertPolicy = state.UpsertOwnRoom
	}
	store := state.NewStore(state.NewStoreOptions{
		Game:         gametypes.NewGame(*rooms),
		UpsertPolicy: upsertPolicy,
	})

	serverMessageChan := make(chan workers.ServerMessage, workers.ServerMessageChannelSize)
	clientManager := network.NewClientManager()
	handler := game.NewServerHandler(game.NewServerHandlerOptions{
		Store:             store,
		ServerMessageChan: serverMessageChan,
	})

	networkOpts := network.NewNetworkManagerOptions{
		ClientManager:  clientManager,
		TCPAddress:     address,
		Compress:       *compress,
		MessageHandler: handler.HandleMessage,
	}
	if *wsPort != 0 {
		networkOpts.WSAddress = net.JoinHostPort(cfg.IP, strconv.Itoa(*wsPort))
	}
	networkManager := network.NewNetworkManager(networkOpts)
	if err := networkManager.Listen(); err != nil {
		panic(fmt.Sprintf("Failed to listen: %v", err))
	}

	serverMessageWorker := workers.NewServerMessageWorker(workers.NewServerMessageWorkerOptions{
		Sender:            networkManager,
		ServerMessageChan: serverMessageChan,
	})
	go serverMessageWorker.Start(ctx)

	connectionEventWorker := workers.NewConnectionEventWorker(workers.NewConnectionEventWorkerOptions{
		ConnectionEventChan: clientManager.GetConnectionEventChan(),
		Store:               store,
		ServerMessageChan:   serverMessageChan,
	})
	go connectionEventWorker.Start(ctx)

	if *npcs > 0 {
		npcWorker := workers.NewNPCWorker(workers.NewNPCWorkerOptions{
			Store:             store,
			ServerMessageChan: serverMessageChan,
			Count:             *npcs,
		})
		go npcWorker.Start(ctx)
	}

	g, ctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		return networkManager.Start(ctx)
	})
	if *apiPort != 0 {
		apiServer := api.NewAPIServer(api.NewAPIServerOptions{
			Address: net.JoinHostPort(cfg.IP, strconv.Itoa(*apiPort)),
			World:   store,
			Clients: clientManager,
		})
		g.Go(func() error {
			return apiServer.Start(ctx)
		})
	}

	log.Info("Server running with %d rooms", *rooms)
	if err := g.Wait(); err != nil {
		log.Error("Server stopped: %v", err)
		os.Exit(1)
	}
	log.Info("Server stopped")
}
