package ingest

import (
	"errors"
	"fmt"
	"log"
	"net"
	"sync/atomic"
	"time"

	"github.com/evillar/loupe/internal/asset"
)

// ErrPortsExhausted indicates that no port from the configured one up to the
// wrap-around point could be bound.
var ErrPortsExhausted = errors.New("no bindable port before wrap-around")

// EventKind distinguishes connection transitions.
type EventKind int

const (
	Connected EventKind = iota
	Disconnected
)

func (k EventKind) String() string {
	if k == Connected {
		return "connected"
	}
	return "disconnected"
}

// Event is one connection transition, reported through PollEvents.
type Event struct {
	Kind   EventKind
	Remote string
}

// Config configures a Listener.
type Config struct {
	// Host to bind, empty for all interfaces.
	Host string

	// Port is the first port to try. Binding walks upward from here; a walk
	// past 65535 is exhaustion. Port 0 binds an ephemeral port directly.
	Port int

	// PortRange optionally limits how many ports are tried. Zero means
	// everything up to the wrap-around point.
	PortRange int
}

const (
	idlePollInterval = 50 * time.Millisecond
	acceptInterval   = 250 * time.Millisecond
	readTimeout      = 30 * time.Second

	eventInboxSize = 64
	assetInboxSize = 16
)

// Listener accepts one framed message per connection and surfaces the decoded
// assets and the connection transitions through polled inboxes. A malformed
// message costs only its own connection; the accept loop runs until Close.
type Listener struct {
	ln        net.Listener
	active    atomic.Bool
	receiving atomic.Bool
	events    chan Event
	assets    chan *asset.SocketAsset
	closed    chan struct{}
}

// Listen binds the first available port starting at cfg.Port and starts the
// accept loop, initially inactive. Each bind failure moves to the next port;
// running past 65535 (or through cfg.PortRange ports) returns
// ErrPortsExhausted.
func Listen(cfg Config) (*Listener, error) {
	ln, err := bind(cfg)
	if err != nil {
		return nil, err
	}

	l := &Listener{
		ln:     ln,
		events: make(chan Event, eventInboxSize),
		assets: make(chan *asset.SocketAsset, assetInboxSize),
		closed: make(chan struct{}),
	}
	go l.acceptLoop()
	return l, nil
}

func bind(cfg Config) (net.Listener, error) {
	if cfg.Port == 0 {
		return net.Listen("tcp", net.JoinHostPort(cfg.Host, "0"))
	}

	var lastErr error
	for port, tried := cfg.Port, 0; port <= 65535; port, tried = port+1, tried+1 {
		if cfg.PortRange > 0 && tried >= cfg.PortRange {
			break
		}
		ln, err := net.Listen("tcp", fmt.Sprintf("%s:%d", cfg.Host, port))
		if err == nil {
			return ln, nil
		}
		lastErr = err
	}
	return nil, fmt.Errorf("%w (starting at %d): %v", ErrPortsExhausted, cfg.Port, lastErr)
}

// Addr returns the bound address.
func (l *Listener) Addr() net.Addr {
	return l.ln.Addr()
}

// SetActive toggles accepting. While inactive the loop sleeps instead of
// accepting; pending connections stay queued in the kernel backlog.
func (l *Listener) SetActive(v bool) {
	l.active.Store(v)
}

// Active reports whether the listener is accepting.
func (l *Listener) Active() bool {
	return l.active.Load()
}

// Receiving reports whether a frame transfer is in progress right now.
func (l *Listener) Receiving() bool {
	return l.receiving.Load()
}

// PollEvents drains and returns the connection transitions recorded since the
// last call. It never blocks.
func (l *Listener) PollEvents() []Event {
	var out []Event
	for {
		select {
		case ev := <-l.events:
			out = append(out, ev)
		default:
			return out
		}
	}
}

// PollAssets drains and returns the assets decoded since the last call. It
// never blocks.
func (l *Listener) PollAssets() []*asset.SocketAsset {
	var out []*asset.SocketAsset
	for {
		select {
		case a := <-l.assets:
			out = append(out, a)
		default:
			return out
		}
	}
}

// Close stops the accept loop and releases the socket.
func (l *Listener) Close() error {
	select {
	case <-l.closed:
		return nil
	default:
	}
	close(l.closed)
	return l.ln.Close()
}

func (l *Listener) acceptLoop() {
	for {
		select {
		case <-l.closed:
			return
		default:
		}

		if !l.active.Load() {
			time.Sleep(idlePollInterval)
			continue
		}

		// Short accept deadline so SetActive and Close take effect promptly.
		if tcp, ok := l.ln.(*net.TCPListener); ok {
			tcp.SetDeadline(time.Now().Add(acceptInterval))
		}
		conn, err := l.ln.Accept()
		if err != nil {
			if ne, ok := err.(net.Error); ok && ne.Timeout() {
				continue
			}
			select {
			case <-l.closed:
				return
			default:
			}
			log.Printf("accept failed: %v", err)
			continue
		}
		l.handleConn(conn)
	}
}

// handleConn reads exactly one framed message. Any failure drops this
// connection and nothing else.
func (l *Listener) handleConn(conn net.Conn) {
	defer conn.Close()
	remote := conn.RemoteAddr().String()

	l.push(Event{Kind: Connected, Remote: remote})
	defer l.push(Event{Kind: Disconnected, Remote: remote})

	l.receiving.Store(true)
	defer l.receiving.Store(false)

	conn.SetReadDeadline(time.Now().Add(readTimeout))
	f, err := readFrame(conn)
	if err != nil {
		log.Printf("dropping connection from %s: %v", remote, err)
		return
	}
	img, err := decodeFrame(f)
	if err != nil {
		log.Printf("dropping frame %q from %s: %v", f.Name, remote, err)
		return
	}

	a := asset.NewSocketAsset(f.Name, img, remote)
	select {
	case l.assets <- a:
	default:
		// Inbox full: drop the oldest asset, keep the newest.
		select {
		case <-l.assets:
		default:
		}
		select {
		case l.assets <- a:
		default:
		}
	}
}

func (l *Listener) push(ev Event) {
	select {
	case l.events <- ev:
	default:
		select {
		case <-l.events:
		default:
		}
		select {
		case l.events <- ev:
		default:
		}
	}
}
