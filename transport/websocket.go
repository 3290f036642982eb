package transport

import (
	"context"
	"encoding/json"
	"net/http"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/gorilla/websocket"
	"github.com/samsarahq/go/oops"

	"github.com/gqlfederate/gateway/internal/telemetry"
)

const (
	protocolGraphQLWS           = "graphql-ws"            // legacy subscriptions-transport-ws
	protocolGraphQLTransportWS  = "graphql-transport-ws"   // current graphql-ws package protocol
	connectionAckTimeout        = 10 * time.Second
	reconnectBackoff            = 2 * time.Second
	connectionLost              = "gateway_connection_lost" // internal frame type readPump sends when a read fails
)

// wsMessage is the shared envelope both negotiated sub-protocols use.
type wsMessage struct {
	Type    string          `json:"type"`
	ID      string          `json:"id,omitempty"`
	Payload json.RawMessage `json:"payload,omitempty"`
}

type wsPayload struct {
	Data   json.RawMessage `json:"data,omitempty"`
	Errors json.RawMessage `json:"errors,omitempty"`
}

// wsSubscription is one in-flight subscribe request's delivery channel.
type wsSubscription struct {
	events chan *Event
}

// wsConnection is the single-owner actor for one upstream's WebSocket
// connection, grounded on the Design Note's "WebSocket multiplexer ⇒
// single-owner actor" guidance: one goroutine (run) owns the connection,
// the subprotocol, and the subs map; a second goroutine owns the blocking
// ReadMessage loop and feeds frames back to the actor over a channel,
// matching gorilla/websocket's idiomatic read/write-pump split.
type wsConnection struct {
	service  string
	url      string
	protocol string // preferred protocol from config; falls back to the other on negotiation failure
	logger   telemetry.Logger

	subscribeCh chan *subscribeCommand
	inboundCh   chan wsMessage
	closeCh     chan string // subscription id to cancel

	mu      sync.Mutex
	subs    map[string]*wsSubscription
	ready   bool
	conn    *websocket.Conn
	negProt string
}

type subscribeCommand struct {
	ctx    context.Context
	req    *Request
	result chan subscribeResult
}

type subscribeResult struct {
	events <-chan *Event
	err    error
}

func newWSConnection(service, url, preferredProtocol string, logger telemetry.Logger) *wsConnection {
	c := &wsConnection{
		service:     service,
		url:         url,
		protocol:    preferredProtocol,
		logger:      logger,
		subscribeCh: make(chan *subscribeCommand),
		inboundCh:   make(chan wsMessage, 16),
		closeCh:     make(chan string, 16),
		subs:        map[string]*wsSubscription{},
	}
	go c.run()
	return c
}

// run is the actor loop: it owns subs, conn, and ready, and is the only
// goroutine that ever writes to the connection.
func (c *wsConnection) run() {
	for {
		conn, protocol, err := c.dial()
		if err != nil {
			c.logger.Warn("websocket connect failed", "service", c.service, "error", err.Error())
			c.setReady(false, nil, "")
			time.Sleep(reconnectBackoff)
			continue
		}
		c.setReady(true, conn, protocol)
		c.logger.Info("websocket connected", "service", c.service, "protocol", protocol)

		stopRead := make(chan struct{})
		go c.readPump(conn, stopRead)

		c.serve(conn)

		close(stopRead)
		conn.Close()
		c.setReady(false, nil, "")
		time.Sleep(reconnectBackoff)
	}
}

func (c *wsConnection) setReady(ready bool, conn *websocket.Conn, protocol string) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.ready = ready
	c.conn = conn
	c.negProt = protocol
	if !ready {
		for id, sub := range c.subs {
			sub.events <- &Event{Err: &ErrNotReady{Service: c.service}}
			close(sub.events)
			delete(c.subs, id)
		}
	}
}

// dial negotiates a sub-protocol, sends connection_init, and waits for
// connection_ack within connectionAckTimeout.
func (c *wsConnection) dial() (*websocket.Conn, string, error) {
	protocols := []string{c.protocol}
	if c.protocol == protocolGraphQLTransportWS {
		protocols = append(protocols, protocolGraphQLWS)
	} else {
		protocols = append(protocols, protocolGraphQLTransportWS)
	}

	dialer := &websocket.Dialer{Subprotocols: protocols, HandshakeTimeout: connectionAckTimeout}
	conn, resp, err := dialer.Dial(c.url, http.Header{})
	if err != nil {
		return nil, "", oops.Wrapf(err, "dialing %s", c.url)
	}
	protocol := c.protocol
	if resp != nil && resp.Header.Get("Sec-WebSocket-Protocol") != "" {
		protocol = resp.Header.Get("Sec-WebSocket-Protocol")
	}

	if err := conn.WriteJSON(wsMessage{Type: "connection_init"}); err != nil {
		conn.Close()
		return nil, "", oops.Wrapf(err, "sending connection_init")
	}

	conn.SetReadDeadline(time.Now().Add(connectionAckTimeout))
	var ack wsMessage
	if err := conn.ReadJSON(&ack); err != nil {
		conn.Close()
		return nil, "", oops.Wrapf(err, "waiting for connection_ack")
	}
	if ack.Type != "connection_ack" {
		conn.Close()
		return nil, "", oops.Errorf("expected connection_ack, got %q", ack.Type)
	}
	conn.SetReadDeadline(time.Time{})

	return conn, protocol, nil
}

// readPump is the blocking-read goroutine; it only ever forwards frames,
// never mutates subs directly, keeping all state mutation on the actor.
func (c *wsConnection) readPump(conn *websocket.Conn, stop chan struct{}) {
	for {
		var msg wsMessage
		if err := conn.ReadJSON(&msg); err != nil {
			select {
			case c.inboundCh <- wsMessage{Type: connectionLost}:
			case <-stop:
			}
			return
		}
		select {
		case c.inboundCh <- msg:
		case <-stop:
			return
		}
	}
}

// serve runs the actor's select loop for the lifetime of one connection.
func (c *wsConnection) serve(conn *websocket.Conn) {
	for {
		select {
		case cmd := <-c.subscribeCh:
			id := uuid.NewString()
			events := make(chan *Event, 4)
			c.mu.Lock()
			c.subs[id] = &wsSubscription{events: events}
			protocol := c.negProt
			c.mu.Unlock()

			startType := "subscribe"
			if protocol == protocolGraphQLWS {
				startType = "start"
			}
			payload, _ := json.Marshal(map[string]interface{}{"query": cmd.req.Query, "variables": cmd.req.Variables})
			if err := conn.WriteJSON(wsMessage{Type: startType, ID: id, Payload: payload}); err != nil {
				c.mu.Lock()
				delete(c.subs, id)
				c.mu.Unlock()
				cmd.result <- subscribeResult{err: oops.Wrapf(err, "sending subscribe to %s", c.service)}
				continue
			}
			cmd.result <- subscribeResult{events: events}

			go func() {
				<-cmd.ctx.Done()
				c.closeCh <- id
			}()

		case id := <-c.closeCh:
			c.mu.Lock()
			protocol := c.negProt
			c.mu.Unlock()
			stopType := "complete"
			if protocol == protocolGraphQLWS {
				stopType = "stop"
			}
			conn.WriteJSON(wsMessage{Type: stopType, ID: id})
			c.mu.Lock()
			if sub, ok := c.subs[id]; ok {
				close(sub.events)
				delete(c.subs, id)
			}
			c.mu.Unlock()

		case msg := <-c.inboundCh:
			if msg.Type == connectionLost {
				return
			}
			c.dispatch(conn, msg)

		case <-time.After(30 * time.Second):
			// No traffic; loop back so a dead TCP connection still gets
			// noticed by the next read/write failure rather than blocking
			// forever on an idle select.
		}
	}
}

func (c *wsConnection) dispatch(conn *websocket.Conn, msg wsMessage) {
	switch msg.Type {
	case "next", "data":
		c.mu.Lock()
		sub, ok := c.subs[msg.ID]
		c.mu.Unlock()
		if !ok {
			return
		}
		var p wsPayload
		json.Unmarshal(msg.Payload, &p)
		resp := &Response{Data: p.Data}
		if len(p.Errors) > 0 {
			json.Unmarshal(p.Errors, &resp.Errors)
		}
		sub.events <- &Event{Response: resp}

	case "error":
		c.mu.Lock()
		sub, ok := c.subs[msg.ID]
		if ok {
			delete(c.subs, msg.ID)
		}
		c.mu.Unlock()
		if ok {
			sub.events <- &Event{Err: oops.Errorf("upstream error: %s", string(msg.Payload))}
			close(sub.events)
		}

	case "complete":
		c.mu.Lock()
		sub, ok := c.subs[msg.ID]
		if ok {
			delete(c.subs, msg.ID)
		}
		c.mu.Unlock()
		if ok {
			close(sub.events)
		}

	case "ping":
		conn.WriteJSON(wsMessage{Type: "pong"})
	}
}

// subscribe sends a subscribeCommand to the actor and waits for it to
// register the subscription, returning ErrNotReady immediately if there is
// no live connection.
func (c *wsConnection) subscribe(ctx context.Context, req *Request) (<-chan *Event, error) {
	c.mu.Lock()
	ready := c.ready
	c.mu.Unlock()
	if !ready {
		return nil, &ErrNotReady{Service: c.service}
	}

	cmd := &subscribeCommand{ctx: ctx, req: req, result: make(chan subscribeResult, 1)}
	select {
	case c.subscribeCh <- cmd:
	case <-ctx.Done():
		return nil, ctx.Err()
	}

	select {
	case res := <-cmd.result:
		return res.events, res.err
	case <-ctx.Done():
		return nil, ctx.Err()
	}
}

// WSFetcher multiplexes subscriptions over one persistent connection per
// configured service. It delegates Query to an HTTPFetcher, since upstream
// query/mutation traffic is never routed over the subscription socket.
type WSFetcher struct {
	http *HTTPFetcher

	mu    sync.Mutex
	conns map[string]*wsConnection

	urls      map[string]string
	protocols map[string]string
	logger    telemetry.Logger
}

// NewWSFetcher builds a WSFetcher. urls maps service name to its
// WebSocket endpoint; protocols optionally overrides the preferred
// sub-protocol per service (defaulting to graphql-transport-ws).
func NewWSFetcher(http *HTTPFetcher, urls, protocols map[string]string, logger telemetry.Logger) *WSFetcher {
	return &WSFetcher{http: http, urls: urls, protocols: protocols, conns: map[string]*wsConnection{}, logger: logger}
}

func (f *WSFetcher) Query(ctx context.Context, service string, req *Request) (*Response, error) {
	return f.http.Query(ctx, service, req)
}

func (f *WSFetcher) Subscribe(ctx context.Context, service string, req *Request) (<-chan *Event, error) {
	url, ok := f.urls[service]
	if !ok {
		return nil, oops.Errorf("no websocket URL configured for service %q", service)
	}

	f.mu.Lock()
	conn, ok := f.conns[service]
	if !ok {
		protocol := f.protocols[service]
		if protocol == "" {
			protocol = protocolGraphQLTransportWS
		}
		conn = newWSConnection(service, url, protocol, f.logger)
		f.conns[service] = conn
	}
	f.mu.Unlock()

	return conn.subscribe(ctx, req)
}
