package network

import (
	"fmt"
	"sort"
	"time"

	"github.com/cbodonnell/roomsync/pkg/log"
	"github.com/google/uuid"
	"github.com/sasha-s/go-deadlock"
)

const (
	// ConnectionEventChannelSize represents the size of the connection event channel
	ConnectionEventChannelSize = 1024
)

// Client represents a connected client
type Client struct {
	ID          uint32
	SessionID   uuid.UUID
	Conn        Conn
	RemoteAddr  string
	ConnectedAt time.Time
}

// ConnectionEvent represents an event that happened to a connection
type ConnectionEvent struct {
	ClientID  uint32
	SessionID uuid.UUID
	Type      ConnectionEventType
}

// ConnectionEventType represents the type of a connection event
type ConnectionEventType int

const (
	ConnectionEventTypeConnect ConnectionEventType = iota
	ConnectionEventTypeDisconnect
)

func (t ConnectionEventType) String() string {
	switch t {
	case ConnectionEventTypeConnect:
		return "connect"
	case ConnectionEventTypeDisconnect:
		return "disconnect"
	default:
		return "unknown"
	}
}

// ClientManager manages connected clients, keyed by connection identity.
type ClientManager struct {
	clients             map[uint32]*Client
	clientsLock         deadlock.RWMutex
	connectionEventChan chan ConnectionEvent
}

// NewClientManager creates a new ClientManager
func NewClientManager() *ClientManager {
	return &ClientManager{
		clients:             make(map[uint32]*Client),
		connectionEventChan: make(chan ConnectionEvent, ConnectionEventChannelSize),
	}
}

// GetConnectionEventChan returns a one-way channel for receiving connection events
func (cm *ClientManager) GetConnectionEventChan() <-chan ConnectionEvent {
	return cm.connectionEventChan
}

// ConnectClient registers conn under its identity. An entry left behind by an
// earlier connection with the same identity is replaced.
func (cm *ClientManager) ConnectClient(conn Conn) *Client {
	client := &Client{
		ID:          conn.ID(),
		SessionID:   uuid.New(),
		Conn:        conn,
		RemoteAddr:  conn.RemoteAddr(),
		ConnectedAt: time.Now(),
	}

	cm.clientsLock.Lock()
	if stale, ok := cm.clients[client.ID]; ok {
		log.Warn("Replacing stale registry entry for client %d (session %s)", stale.ID, stale.SessionID)
	}
	cm.clients[client.ID] = client
	cm.clientsLock.Unlock()

	cm.emit(ConnectionEvent{
		ClientID:  client.ID,
		SessionID: client.SessionID,
		Type:      ConnectionEventTypeConnect,
	})

	return copyClient(client)
}

// DisconnectClient removes the entry for clientID if it still belongs to conn.
// It reports whether an entry was removed.
func (cm *ClientManager) DisconnectClient(clientID uint32, conn Conn) bool {
	cm.clientsLock.Lock()
	client, ok := cm.clients[clientID]
	if !ok || client.Conn != conn {
		cm.clientsLock.Unlock()
		return false
	}
	delete(cm.clients, clientID)
	cm.clientsLock.Unlock()

	cm.emit(ConnectionEvent{
		ClientID:  client.ID,
		SessionID: client.SessionID,
		Type:      ConnectionEventTypeDisconnect,
	})

	return true
}

// GetClient returns a copy of a client by its ID
func (cm *ClientManager) GetClient(clientID uint32) (*Client, error) {
	cm.clientsLock.RLock()
	defer cm.clientsLock.RUnlock()
	client, ok := cm.clients[clientID]
	if !ok {
		return nil, fmt.Errorf("client %d not found", clientID)
	}
	return copyClient(client), nil
}

// GetClients returns a slice with a copy of all connected clients, ordered by ID.
func (cm *ClientManager) GetClients() []*Client {
	cm.clientsLock.RLock()
	clients := make([]*Client, 0, len(cm.clients))
	for _, client := range cm.clients {
		clients = append(clients, copyClient(client))
	}
	cm.clientsLock.RUnlock()

	sort.Slice(clients, func(i, j int) bool {
		return clients[i].ID < clients[j].ID
	})
	return clients
}

func (cm *ClientManager) Exists(clientID uint32) bool {
	cm.clientsLock.RLock()
	defer cm.clientsLock.RUnlock()
	_, ok := cm.clients[clientID]
	return ok
}

func (cm *ClientManager) Count() int {
	cm.clientsLock.RLock()
	defer cm.clientsLock.RUnlock()
	return len(cm.clients)
}

// emit never blocks a connection's loop; events are dropped when nobody drains the channel.
func (cm *ClientManager) emit(event ConnectionEvent) {
	select {
	case cm.connectionEventChan <- event:
	default:
		log.Warn("Connection event channel full, dropping %s event for client %d", event.Type, event.ClientID)
	}
}

func copyClient(client *Client) *Client {
	c := *client
	return &c
}
