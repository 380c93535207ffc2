package main

import (
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/jonboulle/clockwork"

	"github.com/mcdev12/typeracer/go/clients"
	"github.com/mcdev12/typeracer/go/internal/gateway"
	"github.com/mcdev12/typeracer/go/internal/matchmaking"
	"github.com/mcdev12/typeracer/go/internal/passage"
	"github.com/mcdev12/typeracer/go/internal/prefs"
	"github.com/mcdev12/typeracer/go/internal/queue"
	"github.com/mcdev12/typeracer/go/internal/relay"
	"github.com/mcdev12/typeracer/go/internal/rooms"
)

type Services struct {
	Rooms       *rooms.App
	Matchmaking *matchmaking.App
	Passages    *passage.Service

	ConnectionManager *gateway.ConnectionManager
	WebSocket         *gateway.WebSocketHandler
	Bridge            *gateway.Bridge
}

func setupServices(pool *pgxpool.Pool, relayClient *relay.Client, config *Config) *Services {
	// Database layer → Repository layer → App layer → HTTP/WS layer
	clock := clockwork.NewRealClock()

	roomsRepo := rooms.NewRepository(pool)
	roomsApp := rooms.NewApp(roomsRepo, clock, rooms.DefaultGraceWindow)

	prefsRepo := prefs.NewRepository(pool)

	matchQueue := queue.New(clock, queue.DefaultTTL)
	matchmakingApp := matchmaking.NewApp(matchQueue, roomsApp, prefsRepo, relayClient)

	var fetcher passage.Fetcher
	if config.Passage.BaseURL != "" {
		fetcher = clients.NewPassageClient(config.Passage.BaseURL)
	}
	passageService := passage.NewService(fetcher)

	connectionManager := gateway.NewConnectionManager(gateway.DefaultConnectionConfig())
	bridge := gateway.NewBridge(relayClient, connectionManager)
	bridge.AddObserver(gateway.NewRecorder(roomsRepo))
	webSocketHandler := gateway.NewWebSocketHandler(connectionManager)

	return &Services{
		Rooms:             roomsApp,
		Matchmaking:       matchmakingApp,
		Passages:          passageService,
		ConnectionManager: connectionManager,
		WebSocket:         webSocketHandler,
		Bridge:            bridge,
	}
}
