package server

import (
	"sync"

	"github.com/coder/websocket"
	"github.com/google/uuid"
)

// LiveConnection is one open live feed socket.
type LiveConnection struct {
	Conn    *websocket.Conn
	UserID  uuid.UUID
	refresh chan struct{}
}

// ConnectionManager tracks open live feed sockets so shutdown can close them
// and a user's feeds can be told to refresh.
type ConnectionManager struct {
	connections map[string]LiveConnection // connectionID -> connection
	users       map[uuid.UUID][]string    // userID -> connectionIDs
	mu          sync.RWMutex
}

// NewConnectionManager creates an empty connection manager
func NewConnectionManager() *ConnectionManager {
	return &ConnectionManager{
		connections: make(map[string]LiveConnection),
		users:       make(map[uuid.UUID][]string),
	}
}

// AddConnection registers a feed and returns the channel on which refresh
// requests for it arrive.
func (cm *ConnectionManager) AddConnection(id string, userID uuid.UUID, conn *websocket.Conn) <-chan struct{} {
	cm.mu.Lock()
	defer cm.mu.Unlock()

	refresh := make(chan struct{}, 1)
	cm.connections[id] = LiveConnection{Conn: conn, UserID: userID, refresh: refresh}
	cm.users[userID] = append(cm.users[userID], id)
	return refresh
}

// RemoveConnection drops a feed and, with its last feed, the user entry
func (cm *ConnectionManager) RemoveConnection(id string) {
	cm.mu.Lock()
	defer cm.mu.Unlock()

	lc, ok := cm.connections[id]
	if !ok {
		return
	}
	delete(cm.connections, id)

	ids := cm.users[lc.UserID]
	for i, cid := range ids {
		if cid == id {
			ids = append(ids[:i], ids[i+1:]...)
			break
		}
	}
	if len(ids) == 0 {
		delete(cm.users, lc.UserID)
	} else {
		cm.users[lc.UserID] = ids
	}
}

// NotifyUser asks each of userID's feeds to push a fresh status and returns
// how many were signalled. A feed with a refresh already pending is skipped.
func (cm *ConnectionManager) NotifyUser(userID uuid.UUID) int {
	cm.mu.RLock()
	defer cm.mu.RUnlock()

	n := 0
	for _, id := range cm.users[userID] {
		select {
		case cm.connections[id].refresh <- struct{}{}:
			n++
		default:
		}
	}
	return n
}

// Count returns the number of open feeds
func (cm *ConnectionManager) Count() int {
	cm.mu.RLock()
	defer cm.mu.RUnlock()
	return len(cm.connections)
}

// CloseAll closes every socket with StatusGoingAway and waits for the close
// handshakes. Handlers remove their own entries as their read loops end.
func (cm *ConnectionManager) CloseAll(reason string) {
	cm.mu.RLock()
	conns := make([]*websocket.Conn, 0, len(cm.connections))
	for _, lc := range cm.connections {
		if lc.Conn != nil {
			conns = append(conns, lc.Conn)
		}
	}
	cm.mu.RUnlock()

	var wg sync.WaitGroup
	for _, c := range conns {
		wg.Go(func() {
			_ = c.Close(websocket.StatusGoingAway, reason)
		})
	}
	wg.Wait()
}
