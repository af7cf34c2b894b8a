// Copyright (c) 2023-2025 RapidaAI
// Author: Prashant Srivastav <prashant@rapida.ai>
//
// Licensed under GPL-2.0 with Rapida Additional Terms.
// See LICENSE.md or contact sales@rapida.ai for commercial usage.
package internal_hub

import (
	"encoding/json"
	"sync"

	internal_type "github.com/rapidaai/capture/api/capture-api/internal/type"
	"github.com/rapidaai/capture/pkg/commons"
)

const (
	payloadEvent    = "event"
	payloadFrame    = "frame"
	payloadSnapshot = "snapshot"
)

// wirePayload is the envelope every websocket message travels in.
type wirePayload struct {
	Type     string                       `json:"type"`
	Event    *internal_type.Event         `json:"event,omitempty"`
	Frame    *internal_type.WaveformFrame `json:"frame,omitempty"`
	Snapshot *internal_type.Snapshot      `json:"snapshot,omitempty"`
}

// broadcastMessage distinguishes reliable session events from lossy
// waveform frames. A slow consumer drops frames but is disconnected when
// it cannot keep up with events.
type broadcastMessage struct {
	data  []byte
	lossy bool
}

// Hub fans session events and waveform frames out to every connected host
// surface. It implements the visual surface contract for the backend.
type Hub struct {
	logger commons.Logger

	mu      sync.RWMutex
	clients map[string]*Client

	register   chan *Client
	unregister chan *Client
	broadcast  chan broadcastMessage

	done      chan struct{}
	closeOnce sync.Once
}

func NewHub(logger commons.Logger) *Hub {
	return &Hub{
		logger:     logger,
		clients:    make(map[string]*Client),
		register:   make(chan *Client),
		unregister: make(chan *Client),
		broadcast:  make(chan broadcastMessage, 64),
		done:       make(chan struct{}),
	}
}

// Run is the hub main loop. It returns after Stop.
func (h *Hub) Run() {
	for {
		select {
		case client := <-h.register:
			h.mu.Lock()
			h.clients[client.id] = client
			h.mu.Unlock()
			h.logger.Infof("surface client %s connected", client.id)

		case client := <-h.unregister:
			h.mu.Lock()
			if _, ok := h.clients[client.id]; ok {
				delete(h.clients, client.id)
				client.closeSend()
				h.logger.Infof("surface client %s disconnected", client.id)
			}
			h.mu.Unlock()

		case message := <-h.broadcast:
			h.fanOut(message)

		case <-h.done:
			h.mu.Lock()
			for id, client := range h.clients {
				client.closeSend()
				delete(h.clients, id)
			}
			h.mu.Unlock()
			return
		}
	}
}

// Stop terminates the main loop and disconnects every client.
func (h *Hub) Stop() {
	h.closeOnce.Do(func() { close(h.done) })
}

func (h *Hub) RegisterClient(client *Client) {
	select {
	case h.register <- client:
	case <-h.done:
		client.closeSend()
	}
}

func (h *Hub) UnregisterClient(client *Client) {
	select {
	case h.unregister <- client:
	case <-h.done:
	}
}

// PublishEvent broadcasts one session event to every surface.
func (h *Hub) PublishEvent(event internal_type.Event) {
	data, err := json.Marshal(wirePayload{Type: payloadEvent, Event: &event})
	if err != nil {
		h.logger.Errorf("failed to encode event: %v", err)
		return
	}
	h.enqueue(broadcastMessage{data: data})
}

// PushFrame broadcasts one waveform frame. Frames are lossy end to end:
// under pressure they are dropped, never queued unbounded.
func (h *Hub) PushFrame(frame internal_type.WaveformFrame) {
	data, err := json.Marshal(wirePayload{Type: payloadFrame, Frame: &frame})
	if err != nil {
		h.logger.Errorf("failed to encode frame: %v", err)
		return
	}
	h.enqueue(broadcastMessage{data: data, lossy: true})
}

func (h *Hub) enqueue(message broadcastMessage) {
	select {
	case h.broadcast <- message:
	case <-h.done:
	default:
		if !message.lossy {
			h.logger.Warn("broadcast queue full, dropping event")
		}
	}
}

func (h *Hub) fanOut(message broadcastMessage) {
	h.mu.RLock()
	var stale []*Client
	for _, client := range h.clients {
		if client.trySend(message.data) {
			continue
		}
		if !message.lossy {
			stale = append(stale, client)
		}
	}
	h.mu.RUnlock()

	// A consumer that cannot keep up with session events is cut loose.
	for _, client := range stale {
		h.logger.Warnf("surface client %s too slow, disconnecting", client.id)
		go h.UnregisterClient(client)
	}
}

func (h *Hub) ClientCount() int {
	h.mu.RLock()
	defer h.mu.RUnlock()
	return len(h.clients)
}

// SnapshotPayload encodes the initial state message sent to a client right
// after it connects.
func SnapshotPayload(snapshot internal_type.Snapshot) ([]byte, error) {
	return json.Marshal(wirePayload{Type: payloadSnapshot, Snapshot: &snapshot})
}
