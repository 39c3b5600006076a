package server

import (
	"context"
	"log"
	"sync"

	"github.com/npezzotti/go-notify/internal/stats"
	"github.com/npezzotti/go-notify/internal/types"
)

type stopReq struct {
	done chan struct{}
}

// NotifyServer tracks the websocket connections of each user and pushes sync
// hints to the members named in a hint.
type NotifyServer struct {
	log           *log.Logger
	stats         stats.StatsProvider
	clients       map[*Client]struct{}
	userMap       map[int]map[*Client]struct{}
	clientsLock   sync.RWMutex
	broadcastChan chan types.SyncHint
	stop          chan stopReq
}

func NewNotifyServer(logger *log.Logger, su stats.StatsProvider) *NotifyServer {
	return &NotifyServer{
		log:           logger,
		stats:         su,
		clients:       make(map[*Client]struct{}),
		userMap:       make(map[int]map[*Client]struct{}),
		broadcastChan: make(chan types.SyncHint, 256),
		stop:          make(chan stopReq),
	}
}

func (s *NotifyServer) Run() {
	for {
		select {
		case hint := <-s.broadcastChan:
			s.handleHint(hint)
		case req := <-s.stop:
			s.log.Println("closing client connections")
			s.clientsLock.RLock()
			for c := range s.clients {
				c.stopClient()
			}
			s.clientsLock.RUnlock()

			close(req.done)
			return
		}
	}
}

// Publish queues a hint for delivery. Delivery is best effort: a full queue
// drops the hint.
func (s *NotifyServer) Publish(ctx context.Context, hint types.SyncHint) error {
	if len(hint.UserIds) == 0 {
		return nil
	}

	select {
	case s.broadcastChan <- hint:
	case <-ctx.Done():
		return ctx.Err()
	default:
		s.log.Printf("broadcast queue full, dropping %s hint for channel %d", hint.Reason, hint.ChannelId)
	}
	return nil
}

func (s *NotifyServer) handleHint(hint types.SyncHint) {
	msg := newSyncHintMessage(hint)

	for _, userId := range hint.UserIds {
		for _, c := range s.getClients(userId) {
			if !c.queueMessage(msg) {
				s.log.Printf("dropped hint for connection %s of user %d", c.id, userId)
			}
		}
	}
	s.stats.Incr(stats.HintsPublished)
}

func (s *NotifyServer) RegisterClient(c *Client) {
	s.addClient(c)
	s.log.Printf("connection %s opened by %q", c.id, c.user.Username)
}

func (s *NotifyServer) DeRegisterClient(c *Client) {
	if s.removeClient(c) {
		s.log.Printf("connection %s closed by %q", c.id, c.user.Username)
	}
}

func (s *NotifyServer) addClient(c *Client) {
	s.clientsLock.Lock()
	defer s.clientsLock.Unlock()

	s.clients[c] = struct{}{}
	if _, ok := s.userMap[c.user.Id]; !ok {
		s.userMap[c.user.Id] = make(map[*Client]struct{})
	}
	s.userMap[c.user.Id][c] = struct{}{}
	s.stats.Incr(stats.ActiveConnections)
}

func (s *NotifyServer) removeClient(c *Client) bool {
	s.clientsLock.Lock()
	defer s.clientsLock.Unlock()

	if _, ok := s.clients[c]; !ok {
		return false
	}

	delete(s.clients, c)
	if conns, ok := s.userMap[c.user.Id]; ok {
		delete(conns, c)
		if len(conns) == 0 {
			delete(s.userMap, c.user.Id)
		}
	}
	s.stats.Decr(stats.ActiveConnections)
	return true
}

// getClients returns a snapshot of the open connections of a user.
func (s *NotifyServer) getClients(userId int) []*Client {
	s.clientsLock.RLock()
	defer s.clientsLock.RUnlock()

	var clients []*Client
	for c := range s.userMap[userId] {
		clients = append(clients, c)
	}
	return clients
}

func (s *NotifyServer) Shutdown(ctx context.Context) error {
	s.log.Println("received shutdown signal")

	req := stopReq{done: make(chan struct{})}
	select {
	case s.stop <- req:
	case <-ctx.Done():
		return ctx.Err()
	}

	select {
	case <-req.done:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}
