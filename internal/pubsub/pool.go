package pubsub

import (
	"fmt"
	"net/http"
	"sync/atomic"
	"time"

	"github.com/google/uuid"
	"github.com/gorilla/websocket"
	"github.com/puzpuzpuz/xsync/v4"
	"github.com/rs/zerolog"
)

// DefaultEdgeURL is the platform's pub/sub WebSocket endpoint.
const DefaultEdgeURL = "wss://pubsub-edge.twitch.tv/v1"

const (
	maxTopicsPerConn = 50

	defaultTickInterval     = 250 * time.Millisecond
	defaultIdlePing         = 60 * time.Second
	defaultPongDeadline     = 10 * time.Second
	defaultReconnectBackoff = time.Second
)

// Op is a subscription command kind.
type Op int

const (
	OpListen Op = iota
	OpUnlisten
)

// Request asks the pool to start or stop a topic subscription.
type Request struct {
	Op    Op
	Topic Topic
}

// Options configures a Pool. Zero values fall back to production defaults.
type Options struct {
	URL       string
	AuthToken string
	ClientID  string
	UserAgent string

	// Dial overrides the default dialer; used by tests.
	Dial func() (*websocket.Conn, error)

	TickInterval     time.Duration
	IdlePing         time.Duration
	PongDeadline     time.Duration
	ReconnectBackoff time.Duration

	Logger zerolog.Logger
}

type subscription struct {
	topic Topic
	nonce string
}

type streamState int

const (
	streamOpen streamState = iota
	streamReconnect
)

type conn struct {
	id           string
	ws           *websocket.Conn
	gen          uint64
	state        streamState
	subs         []subscription
	pendingRetry []string
	lastActivity time.Time
	pingSent     time.Time
	pingPending  bool
}

type inbound struct {
	conn  *conn
	gen   uint64
	frame serverFrame
	err   error
}

type indexEntry struct {
	connID string
	nonce  string
}

// Stats is a point-in-time view of pool size, safe to read concurrently.
type Stats struct {
	Sockets int
	Topics  int
}

// Pool multiplexes topic subscriptions over a set of WebSocket connections,
// at most 50 topics each. All connection state is owned by the Run goroutine;
// other goroutines interact through Listen/Unlisten and the output channel.
type Pool struct {
	opts     Options
	requests chan Request
	inbox    chan inbound
	out      chan Payload
	stop     chan struct{}
	done     chan struct{}

	conns   []*conn
	index   *xsync.Map[string, indexEntry]
	sockets atomic.Int32

	log zerolog.Logger
}

// NewPool creates a pool. Run must be called before Listen/Unlisten take effect.
func NewPool(opts Options) *Pool {
	if opts.URL == "" {
		opts.URL = DefaultEdgeURL
	}
	if opts.TickInterval <= 0 {
		opts.TickInterval = defaultTickInterval
	}
	if opts.IdlePing <= 0 {
		opts.IdlePing = defaultIdlePing
	}
	if opts.PongDeadline <= 0 {
		opts.PongDeadline = defaultPongDeadline
	}
	if opts.ReconnectBackoff <= 0 {
		opts.ReconnectBackoff = defaultReconnectBackoff
	}
	p := &Pool{
		opts:     opts,
		requests: make(chan Request, 64),
		inbox:    make(chan inbound, 64),
		out:      make(chan Payload, 128),
		stop:     make(chan struct{}),
		done:     make(chan struct{}),
		index:    xsync.NewMap[string, indexEntry](),
		log:      opts.Logger.With().Str("component", "pubsub").Logger(),
	}
	if p.opts.Dial == nil {
		p.opts.Dial = p.dialEdge
	}
	return p
}

// Listen requests a subscription for topic. Idempotent.
func (p *Pool) Listen(t Topic) {
	select {
	case p.requests <- Request{Op: OpListen, Topic: t}:
	case <-p.stop:
	}
}

// Unlisten requests removal of the subscription for topic.
func (p *Pool) Unlisten(t Topic) {
	select {
	case p.requests <- Request{Op: OpUnlisten, Topic: t}:
	case <-p.stop:
	}
}

// Output is the channel of decoded topic payloads.
func (p *Pool) Output() <-chan Payload {
	return p.out
}

// Stats returns current socket and topic counts.
func (p *Pool) Stats() Stats {
	return Stats{Sockets: int(p.sockets.Load()), Topics: p.index.Size()}
}

// TopicNonce reports the nonce of the live subscription for topic, if any.
func (p *Pool) TopicNonce(t Topic) (string, bool) {
	entry, ok := p.index.Load(t.String())
	if !ok {
		return "", false
	}
	return entry.nonce, true
}

// Close stops the pool and tears down all connections. Blocks until Run returns.
func (p *Pool) Close() {
	close(p.stop)
	<-p.done
}

// Run is the pool event loop. It owns every connection mutation and returns
// when Close is called.
func (p *Pool) Run() {
	defer close(p.done)
	ticker := time.NewTicker(p.opts.TickInterval)
	defer ticker.Stop()

	for {
		select {
		case <-p.stop:
			for _, c := range p.conns {
				c.ws.Close()
			}
			p.conns = nil
			p.sockets.Store(0)
			return
		case req := <-p.requests:
			switch req.Op {
			case OpListen:
				p.handleListen(req.Topic)
			case OpUnlisten:
				p.handleUnlisten(req.Topic)
			}
		case in := <-p.inbox:
			p.handleInbound(in)
		case <-ticker.C:
			p.tick()
		}
	}
}

func (p *Pool) dialEdge() (*websocket.Conn, error) {
	header := http.Header{}
	if p.opts.AuthToken != "" {
		header.Set("Authorization", "OAuth "+p.opts.AuthToken)
	}
	if p.opts.ClientID != "" {
		header.Set("Client-Id", p.opts.ClientID)
	}
	if p.opts.UserAgent != "" {
		header.Set("User-Agent", p.opts.UserAgent)
	}
	ws, resp, err := websocket.DefaultDialer.Dial(p.opts.URL, header)
	if resp != nil && resp.Body != nil {
		resp.Body.Close()
	}
	return ws, err
}

// connect dials the edge and verifies liveness with an initial PING.
func (p *Pool) connect() (*websocket.Conn, error) {
	ws, err := p.opts.Dial()
	if err != nil {
		return nil, err
	}
	if err := ws.WriteJSON(clientFrame{Type: framePing}); err != nil {
		ws.Close()
		return nil, fmt.Errorf("initial ping: %w", err)
	}
	ws.SetReadDeadline(time.Now().Add(p.opts.PongDeadline))
	var frame serverFrame
	if err := ws.ReadJSON(&frame); err != nil {
		ws.Close()
		return nil, fmt.Errorf("initial pong: %w", err)
	}
	if frame.Type != framePong {
		ws.Close()
		return nil, fmt.Errorf("initial pong: got %q", frame.Type)
	}
	ws.SetReadDeadline(time.Time{})
	return ws, nil
}

// newConn creates a connection, retrying with backoff until it succeeds or
// the pool is stopped. Returns nil only on stop.
func (p *Pool) newConn() *conn {
	for {
		ws, err := p.connect()
		if err == nil {
			c := &conn{
				id:           uuid.NewString(),
				ws:           ws,
				lastActivity: time.Now(),
			}
			p.conns = append(p.conns, c)
			p.sockets.Store(int32(len(p.conns)))
			go p.readLoop(c, c.gen, ws)
			return c
		}
		p.log.Warn().Err(err).Msg("edge connect failed, backing off")
		select {
		case <-p.stop:
			return nil
		case <-time.After(p.opts.ReconnectBackoff):
		}
	}
}

func (p *Pool) readLoop(c *conn, gen uint64, ws *websocket.Conn) {
	for {
		var frame serverFrame
		err := ws.ReadJSON(&frame)
		msg := inbound{conn: c, gen: gen, frame: frame, err: err}
		select {
		case p.inbox <- msg:
		case <-p.stop:
			return
		}
		if err != nil {
			return
		}
	}
}

func (p *Pool) pickConn() *conn {
	for _, c := range p.conns {
		if c.state == streamOpen && len(c.subs) < maxTopicsPerConn {
			return c
		}
	}
	return nil
}

func (p *Pool) connByID(id string) *conn {
	for _, c := range p.conns {
		if c.id == id {
			return c
		}
	}
	return nil
}

func (p *Pool) writeListen(c *conn, t Topic, nonce string) error {
	return c.ws.WriteJSON(clientFrame{
		Type:  frameListen,
		Nonce: nonce,
		Data:  &clientFrameData{Topics: []string{t.String()}, AuthToken: p.opts.AuthToken},
	})
}

func (p *Pool) writeUnlisten(c *conn, t Topic, nonce string) error {
	return c.ws.WriteJSON(clientFrame{
		Type:  frameUnlisten,
		Nonce: nonce,
		Data:  &clientFrameData{Topics: []string{t.String()}},
	})
}

func (p *Pool) handleListen(t Topic) {
	if _, ok := p.index.Load(t.String()); ok {
		return
	}
	for {
		select {
		case <-p.stop:
			return
		default:
		}
		c := p.pickConn()
		if c == nil {
			c = p.newConn()
			if c == nil {
				return
			}
		}
		nonce := newNonce()
		if err := p.writeListen(c, t, nonce); err != nil {
			p.log.Warn().Err(err).Str("topic", t.String()).Msg("listen write failed, reconnecting")
			p.reconnectConn(c)
			continue
		}
		c.subs = append(c.subs, subscription{topic: t, nonce: nonce})
		p.index.Store(t.String(), indexEntry{connID: c.id, nonce: nonce})
		return
	}
}

func (p *Pool) handleUnlisten(t Topic) {
	entry, ok := p.index.Load(t.String())
	if !ok {
		return
	}
	c := p.connByID(entry.connID)
	if c == nil {
		p.index.Delete(t.String())
		return
	}
	p.removeSub(c, t)
	if err := p.writeUnlisten(c, t, newNonce()); err != nil {
		// the topic is already dropped from bookkeeping so the
		// reconnect will not re-issue it
		p.reconnectConn(c)
	}
	if t.Kind == VideoPlaybackByID {
		p.emit(Payload{Topic: t, Reply: StreamDown{}})
	}
	if len(c.subs) == 0 {
		p.dropConn(c)
	}
}

func (p *Pool) removeSub(c *conn, t Topic) {
	for i, s := range c.subs {
		if s.topic == t {
			c.subs = append(c.subs[:i], c.subs[i+1:]...)
			break
		}
	}
	p.index.Delete(t.String())
}

func (p *Pool) handleInbound(in inbound) {
	c := in.conn
	if in.gen != c.gen {
		return
	}
	if in.err != nil {
		if len(c.subs) == 0 {
			p.dropConn(c)
			return
		}
		p.log.Warn().Err(in.err).Str("conn", c.id).Msg("socket error, reconnecting")
		p.reconnectConn(c)
		return
	}
	c.lastActivity = time.Now()
	switch in.frame.Type {
	case framePong:
		c.pingPending = false
	case frameReconnect:
		p.log.Info().Str("conn", c.id).Msg("server requested reconnect")
		p.reconnectConn(c)
	case frameResponse:
		if in.frame.Error != "" {
			p.log.Warn().
				Str("nonce", in.frame.Nonce).
				Str("error", in.frame.Error).
				Msg("command rejected, scheduling retry")
			c.pendingRetry = append(c.pendingRetry, in.frame.Nonce)
		}
	case frameMessage:
		if in.frame.Data == nil {
			return
		}
		topic, err := ParseTopic(in.frame.Data.Topic)
		if err != nil {
			p.log.Warn().Err(err).Msg("unparseable topic")
			return
		}
		reply, err := decodeMessage(topic, in.frame.Data.Message)
		if err != nil {
			p.log.Warn().Err(err).Msg("unparseable message")
			return
		}
		if reply != nil {
			p.emit(Payload{Topic: topic, Reply: reply})
		}
	}
}

func (p *Pool) tick() {
	now := time.Now()
	for _, c := range append([]*conn(nil), p.conns...) {
		p.drainRetries(c)
		if c.state == streamReconnect {
			p.reconnectConn(c)
			continue
		}
		if c.pingPending && now.Sub(c.pingSent) > p.opts.PongDeadline {
			p.log.Warn().Str("conn", c.id).Msg("pong deadline missed, reconnecting")
			p.reconnectConn(c)
			continue
		}
		if !c.pingPending && now.Sub(c.lastActivity) > p.opts.IdlePing {
			if err := c.ws.WriteJSON(clientFrame{Type: framePing}); err != nil {
				p.reconnectConn(c)
				continue
			}
			c.pingPending = true
			c.pingSent = now
		}
		if len(c.subs) == 0 {
			p.dropConn(c)
		}
	}
}

// drainRetries re-drives subscriptions whose commands were rejected. The
// re-issued listen goes through the normal dispatch path and may land on a
// different connection.
func (p *Pool) drainRetries(c *conn) {
	if len(c.pendingRetry) == 0 {
		return
	}
	nonces := c.pendingRetry
	c.pendingRetry = nil
	for _, nonce := range nonces {
		for _, s := range c.subs {
			if s.nonce == nonce {
				p.removeSub(c, s.topic)
				p.handleListen(s.topic)
				break
			}
		}
	}
}

// reconnectConn tears down the socket and re-establishes every subscription
// the connection held, each with a fresh nonce. Transparent downstream.
func (p *Pool) reconnectConn(c *conn) {
	c.state = streamReconnect
	c.gen++
	c.ws.Close()

	topics := make([]Topic, 0, len(c.subs))
	for _, s := range c.subs {
		topics = append(topics, s.topic)
	}

redial:
	for {
		ws, err := p.connect()
		if err != nil {
			p.log.Warn().Err(err).Str("conn", c.id).Msg("reconnect failed, backing off")
			select {
			case <-p.stop:
				return
			case <-time.After(p.opts.ReconnectBackoff):
				continue
			}
		}
		c.ws = ws
		c.subs = c.subs[:0]
		for _, t := range topics {
			nonce := newNonce()
			if err := p.writeListen(c, t, nonce); err != nil {
				c.gen++
				ws.Close()
				continue redial
			}
			c.subs = append(c.subs, subscription{topic: t, nonce: nonce})
			p.index.Store(t.String(), indexEntry{connID: c.id, nonce: nonce})
		}
		c.state = streamOpen
		c.lastActivity = time.Now()
		c.pingPending = false
		go p.readLoop(c, c.gen, ws)
		return
	}
}

func (p *Pool) dropConn(c *conn) {
	c.gen++
	c.ws.Close()
	for i, cc := range p.conns {
		if cc == c {
			p.conns = append(p.conns[:i], p.conns[i+1:]...)
			break
		}
	}
	for _, s := range c.subs {
		p.index.Delete(s.topic.String())
	}
	p.sockets.Store(int32(len(p.conns)))
}

func (p *Pool) emit(payload Payload) {
	select {
	case p.out <- payload:
	case <-p.stop:
	}
}
