package main

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/gorilla/websocket"
	"go.uber.org/zap"
)

// Node owns the websocket side: it upgrades connections, binds them to users
// when a register_user message arrives, keeps the presence registry current
// and replays the offline queue on reconnect.
type Node struct {
	// clients maps connection id to *Client.
	clients *sync.Map

	registry Presence
	queue    *OfflineQueue

	upgrader websocket.Upgrader
}

func newNode(registry Presence, queue *OfflineQueue) *Node {
	n := &Node{
		clients:  &sync.Map{},
		registry: registry,
		queue:    queue,
	}

	n.upgrader = websocket.Upgrader{
		ReadBufferSize:  DefConfig.Client.ReadBufferSize,
		WriteBufferSize: DefConfig.Client.WriteBufferSize,
	}
	n.upgrader.CheckOrigin = func(r *http.Request) bool {
		return true
	}
	return n
}

// Register binds the connection to a user and delivers whatever queued up
// while the user was offline: one new_alert per queued alert, then a single
// summary event.
func (n *Node) Register(client *Client) {
	log := zap.S().With("method", "Register", "user", client.user, "conn", client.connID)
	log.Info("register")

	n.registry.Register(client.user, client.connID)

	alerts, err := n.queue.DrainAndFetch(context.Background(), client.user)
	if err != nil {
		log.Error("drain offline queue:", err)
		return
	}
	if len(alerts) == 0 {
		return
	}
	for _, a := range alerts {
		p := NewAlertPayload(a)
		client.push(ClientEvent{Type: EventNewAlert, Alert: &p})
	}
	client.push(ClientEvent{
		Type:    EventQueuedAlertsDelivered,
		Count:   len(alerts),
		Message: fmt.Sprintf("You received %d alerts while you were away", len(alerts)),
	})
}

func (n *Node) UnRegister(client *Client) {
	zap.S().Info("unregister:", client.user, " ", client.connID)
	if _, ok := n.clients.Load(client.connID); ok {
		n.clients.Delete(client.connID)
		n.registry.Unregister(client.connID)
		close(client.send)
	}
}

// Send delivers one event to one connection. It never blocks: a client whose
// outbound buffer is full simply misses the event, the durable notification
// is the source of truth.
func (n *Node) Send(connID string, ev ClientEvent) error {
	v, ok := n.clients.Load(connID)
	if !ok {
		return fmt.Errorf("unknown connection %s", connID)
	}
	data, err := json.Marshal(&ev)
	if err != nil {
		return err
	}
	c := v.(*Client)
	select {
	case c.send <- data:
		return nil
	default:
		return fmt.Errorf("connection %s send buffer full", connID)
	}
}

// ClientHandler processes one inbound websocket message. The only message a
// client sends is register_user; everything else is logged and ignored.
func (n *Node) ClientHandler(c *Client, data []byte) {
	defer func() {
		if err := recover(); err != nil {
			c.log.Errorf("handler panic:%v\n", err)
		}
	}()

	m := struct {
		Type   string `json:"type"`
		UserID string `json:"userId"`
	}{}
	if err := json.Unmarshal(data, &m); err != nil {
		c.log.Errorf("handler:json unmarshal: %+v\n", err.Error())
		return
	}

	switch m.Type {
	case "register_user":
		if m.UserID == "" {
			c.log.Error("register_user without userId")
			return
		}
		if c.user != "" {
			c.log.Info("already registered as ", c.user)
			return
		}
		c.user = m.UserID
		c.log = zap.S().With("conn", c.connID, "user", c.user)
		n.Register(c)
	default:
		c.log.Errorf("handler error: unknown type:%v\n", m.Type)
	}
}

// serveWs handles websocket requests from the peer. Connections start
// anonymous; presence only changes once register_user arrives.
func (n *Node) serveWs(w http.ResponseWriter, r *http.Request) {
	conn, err := n.upgrader.Upgrade(w, r, nil)
	if err != nil {
		zap.S().Error("upgrade:", err)
		return
	}
	client := &Client{
		connID: uuid.NewString(),
		node:   n,
		conn:   conn,
		send:   make(chan []byte, sendBufferSize()),
	}
	client.log = zap.S().With("conn", client.connID)
	n.clients.Store(client.connID, client)

	if DefConfig.Client.Compression {
		client.conn.EnableWriteCompression(true)
		client.conn.SetCompressionLevel(DefConfig.Client.CompressionLevel)
	}
	client.conn.SetCloseHandler(func(code int, text string) error {
		client.log.Info("CloseHandler:", code, " ", text)
		message := websocket.FormatCloseMessage(code, "")
		conn.WriteControl(websocket.CloseMessage, message, time.Now().Add(writeWait))
		return nil
	})
	// Allow collection of memory referenced by the caller by doing all work in
	// new goroutines.
	go client.writePump()
	go client.readPump()
}

func sendBufferSize() int {
	if DefConfig.Client.SendBufferSize > 0 {
		return DefConfig.Client.SendBufferSize
	}
	return 16
}
