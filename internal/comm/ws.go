package comm

import (
	"context"
	"fmt"
	"net"
	"net/http"
	"sync"
	"time"

	"ckptbench/pkg/logger"

	"github.com/gorilla/websocket"
)

const (
	opJoin    = "join"
	opBcast   = "bcast"
	opArrive  = "arrive"
	opRelease = "release"
)

// dialRetryInterval is how often a follower re-tries the leader while
// it is still coming up.
const dialRetryInterval = 200 * time.Millisecond

type wsMessage struct {
	Op    string `json:"op"`
	Rank  int    `json:"rank,omitempty"`
	Value int64  `json:"value,omitempty"`
}

// WSGroup is a rank group held together by websocket connections to
// rank 0. The leader listens on the rendezvous port and every other
// rank keeps one connection to it. Collectives run in lockstep, so a
// connection only ever carries one protocol exchange at a time.
//
// Broadcasts are star-shaped through the leader, so only rank 0 can be
// the broadcast root.
type WSGroup struct {
	rank int
	size int

	// leader side
	listener net.Listener
	server   *http.Server
	joinCh   chan joinedConn
	conns    []*websocket.Conn // indexed by rank; nil for self
	joined   bool

	// follower side
	conn *websocket.Conn

	mu     sync.Mutex
	closed bool
}

type joinedConn struct {
	rank int
	conn *websocket.Conn
}

// NewWSLeader starts the rendezvous listener for rank 0 of a group of
// size ranks. Followers are admitted in the background; the first
// collective call waits for all of them.
func NewWSLeader(size int, addr string) (*WSGroup, error) {
	if size < 1 {
		return nil, fmt.Errorf("group size must be at least 1, got %d", size)
	}

	listener, err := net.Listen("tcp", addr)
	if err != nil {
		return nil, fmt.Errorf("rendezvous listen on %s: %w", addr, err)
	}

	g := &WSGroup{
		rank:     0,
		size:     size,
		listener: listener,
		joinCh:   make(chan joinedConn, size),
		conns:    make([]*websocket.Conn, size),
	}

	mux := http.NewServeMux()
	mux.HandleFunc("/", g.handleJoin)
	g.server = &http.Server{Handler: mux}

	go func() {
		if err := g.server.Serve(listener); err != nil && err != http.ErrServerClosed {
			logger.Errorf("rendezvous server stopped: %v", err)
		}
	}()

	logger.Infof("rendezvous listening on %s for %d ranks", listener.Addr(), size)
	return g, nil
}

// NewWSFollower connects rank to the leader at addr, retrying until
// the leader is reachable or ctx expires.
func NewWSFollower(ctx context.Context, rank, size int, addr string) (*WSGroup, error) {
	if rank < 1 || rank >= size {
		return nil, fmt.Errorf("follower rank %d out of range for size %d", rank, size)
	}

	url := fmt.Sprintf("ws://%s/", addr)
	var conn *websocket.Conn
	for {
		var err error
		conn, _, err = websocket.DefaultDialer.DialContext(ctx, url, nil)
		if err == nil {
			break
		}
		select {
		case <-ctx.Done():
			return nil, fmt.Errorf("rendezvous dial %s: %w", addr, ctx.Err())
		case <-time.After(dialRetryInterval):
		}
	}

	if err := conn.WriteJSON(wsMessage{Op: opJoin, Rank: rank}); err != nil {
		conn.Close()
		return nil, fmt.Errorf("rendezvous join: %w", err)
	}

	logger.Infof("rank %d joined rendezvous at %s", rank, addr)
	return &WSGroup{rank: rank, size: size, conn: conn}, nil
}

// Addr returns the leader's listen address. Only meaningful on rank 0.
func (g *WSGroup) Addr() string {
	if g.listener == nil {
		return ""
	}
	return g.listener.Addr().String()
}

var joinUpgrader = websocket.Upgrader{
	ReadBufferSize:  1024,
	WriteBufferSize: 1024,
}

func (g *WSGroup) handleJoin(w http.ResponseWriter, r *http.Request) {
	conn, err := joinUpgrader.Upgrade(w, r, nil)
	if err != nil {
		logger.Warnf("rendezvous upgrade failed: %v", err)
		return
	}

	var m wsMessage
	if err := conn.ReadJSON(&m); err != nil || m.Op != opJoin {
		logger.Warnf("rendezvous join handshake failed: %v", err)
		conn.Close()
		return
	}

	g.joinCh <- joinedConn{rank: m.Rank, conn: conn}
}

// WaitJoin blocks until every follower has connected. Collective calls
// invoke it implicitly; the server calls it up front so startup logs
// show when the group is complete.
func (g *WSGroup) WaitJoin(ctx context.Context) error {
	if g.rank != 0 || g.joined {
		return nil
	}

	have := 0
	for have < g.size-1 {
		select {
		case j := <-g.joinCh:
			if j.rank < 1 || j.rank >= g.size {
				j.conn.Close()
				return fmt.Errorf("join from rank %d out of range for size %d", j.rank, g.size)
			}
			if g.conns[j.rank] != nil {
				j.conn.Close()
				return fmt.Errorf("duplicate join from rank %d", j.rank)
			}
			g.conns[j.rank] = j.conn
			have++
			logger.Infof("rank %d joined (%d/%d)", j.rank, have, g.size-1)
		case <-ctx.Done():
			return fmt.Errorf("waiting for %d more ranks: %w", g.size-1-have, ctx.Err())
		}
	}

	g.joined = true
	return nil
}

func (g *WSGroup) Rank() int { return g.rank }

func (g *WSGroup) Size() int { return g.size }

func (g *WSGroup) Broadcast(ctx context.Context, value int64, root int) (int64, error) {
	if root != 0 {
		return 0, fmt.Errorf("rendezvous group broadcasts from rank 0 only, got root %d", root)
	}
	if err := g.checkOpen(); err != nil {
		return 0, err
	}

	if g.rank == 0 {
		if err := g.WaitJoin(ctx); err != nil {
			return 0, err
		}
		for rank, conn := range g.conns {
			if conn == nil {
				continue
			}
			if err := writeMessage(ctx, conn, wsMessage{Op: opBcast, Value: value}); err != nil {
				return 0, fmt.Errorf("broadcast to rank %d: %w", rank, err)
			}
		}
		return value, nil
	}

	m, err := readMessage(ctx, g.conn)
	if err != nil {
		return 0, err
	}
	if m.Op != opBcast {
		return 0, fmt.Errorf("expected broadcast, got %q", m.Op)
	}
	return m.Value, nil
}

func (g *WSGroup) Barrier(ctx context.Context) error {
	if err := g.checkOpen(); err != nil {
		return err
	}

	if g.rank == 0 {
		if err := g.WaitJoin(ctx); err != nil {
			return err
		}
		for rank, conn := range g.conns {
			if conn == nil {
				continue
			}
			m, err := readMessage(ctx, conn)
			if err != nil {
				return fmt.Errorf("waiting for rank %d: %w", rank, err)
			}
			if m.Op != opArrive {
				return fmt.Errorf("expected arrive from rank %d, got %q", rank, m.Op)
			}
		}
		for rank, conn := range g.conns {
			if conn == nil {
				continue
			}
			if err := writeMessage(ctx, conn, wsMessage{Op: opRelease}); err != nil {
				return fmt.Errorf("releasing rank %d: %w", rank, err)
			}
		}
		return nil
	}

	if err := writeMessage(ctx, g.conn, wsMessage{Op: opArrive}); err != nil {
		return err
	}
	m, err := readMessage(ctx, g.conn)
	if err != nil {
		return err
	}
	if m.Op != opRelease {
		return fmt.Errorf("expected release, got %q", m.Op)
	}
	return nil
}

func (g *WSGroup) checkOpen() error {
	g.mu.Lock()
	defer g.mu.Unlock()
	if g.closed {
		return ErrGroupClosed
	}
	return nil
}

func (g *WSGroup) Close() error {
	g.mu.Lock()
	if g.closed {
		g.mu.Unlock()
		return nil
	}
	g.closed = true
	g.mu.Unlock()

	if g.conn != nil {
		g.conn.Close()
	}
	for _, conn := range g.conns {
		if conn != nil {
			conn.Close()
		}
	}
	if g.server != nil {
		g.server.Close()
	}
	return nil
}

// readMessage reads one protocol message, unblocking early if ctx is
// cancelled by forcing the read deadline into the past.
func readMessage(ctx context.Context, conn *websocket.Conn) (wsMessage, error) {
	stop := make(chan struct{})
	go func() {
		select {
		case <-ctx.Done():
			conn.SetReadDeadline(time.Now())
		case <-stop:
		}
	}()

	var m wsMessage
	err := conn.ReadJSON(&m)
	close(stop)
	if err != nil {
		if ctx.Err() != nil {
			return wsMessage{}, ctx.Err()
		}
		return wsMessage{}, err
	}
	conn.SetReadDeadline(time.Time{})
	return m, nil
}

func writeMessage(ctx context.Context, conn *websocket.Conn, m wsMessage) error {
	stop := make(chan struct{})
	go func() {
		select {
		case <-ctx.Done():
			conn.SetWriteDeadline(time.Now())
		case <-stop:
		}
	}()

	err := conn.WriteJSON(m)
	close(stop)
	if err != nil {
		if ctx.Err() != nil {
			return ctx.Err()
		}
		return err
	}
	conn.SetWriteDeadline(time.Time{})
	return nil
}
