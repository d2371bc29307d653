package ingest

import (
	"bytes"
	"context"
	"fmt"
	"log/slog"
	"net"
	"time"

	"github.com/totalizer-lab/totalizer/internal/rules"
)

const (
	maxDatagramSize = 65536
	readDeadline    = 250 * time.Millisecond

	minGoodASCII = 32
	maxGoodASCII = 126
)

// Listener receives datagrams on one address:port binding, runs each line
// through the watch list and submits resulting increments to the committer.
// Reception never blocks on store I/O: each datagram is dispatched on its
// own goroutine, and a full queue drops the datagram before dispatch.
type Listener struct {
	address   string
	port      int
	watch     *rules.WatchList
	committer *Committer
	metrics   *Metrics
	logger    *slog.Logger

	conn *net.UDPConn
}

// NewListener creates a listener for one binding. Bind does not happen
// until Start.
func NewListener(address string, port int, watch *rules.WatchList, committer *Committer, metrics *Metrics, logger *slog.Logger) *Listener {
	if logger == nil {
		logger = slog.Default()
	}
	return &Listener{
		address:   address,
		port:      port,
		watch:     watch,
		committer: committer,
		metrics:   metrics,
		logger:    logger.With("binding", rules.Binding(address, port)),
	}
}

// Start binds the UDP socket and launches the read loop. A bind failure
// (permission, address in use) is returned to the caller and must abort
// startup.
func (l *Listener) Start(ctx context.Context) error {
	addr, err := net.ResolveUDPAddr("udp", rules.Binding(l.address, l.port))
	if err != nil {
		return fmt.Errorf("resolve %s:%d: %w", l.address, l.port, err)
	}
	conn, err := net.ListenUDP("udp", addr)
	if err != nil {
		return fmt.Errorf("listen %s:%d: %w", l.address, l.port, err)
	}
	l.conn = conn
	l.logger.Info("listening")

	go l.readLoop(ctx)
	return nil
}

// Close shuts the socket, unblocking the read loop.
func (l *Listener) Close() error {
	if l.conn == nil {
		return nil
	}
	return l.conn.Close()
}

func (l *Listener) readLoop(ctx context.Context) {
	buf := make([]byte, maxDatagramSize)
	for {
		select {
		case <-ctx.Done():
			return
		default:
		}

		_ = l.conn.SetReadDeadline(time.Now().Add(readDeadline))
		n, _, err := l.conn.ReadFromUDP(buf)
		if err != nil {
			if netErr, ok := err.(net.Error); ok && netErr.Timeout() {
				continue
			}
			select {
			case <-ctx.Done():
				return
			default:
			}
			l.logger.Error("socket read failed", "error", err)
			return
		}

		l.metrics.incDatagramsReceived()

		data := make([]byte, n)
		copy(data, buf[:n])
		go l.handleDatagram(ctx, data)
	}
}

// handleDatagram applies the overload-shedding policy and dispatches lines.
// When the queue is at max depth the whole datagram is dropped and counted;
// otherwise submissions may block here, never in the read loop.
func (l *Listener) handleDatagram(ctx context.Context, data []byte) {
	if l.committer.Full() {
		l.metrics.incDatagramsDropped()
		return
	}

	for _, raw := range bytes.Split(data, []byte{'\n'}) {
		if len(raw) == 0 {
			continue
		}
		line := asciify(raw)
		matches := l.watch.Match(l.address, l.port, line)
		if len(matches) == 0 {
			continue
		}
		l.metrics.incLinesMatched()
		for _, m := range matches {
			l.committer.Submit(ctx, m.Key, time.Duration(m.TTL)*time.Second)
		}
	}
	l.metrics.incDatagramsProcessed()
}

// asciify converts non-printable bytes to \xHH escapes so arbitrary input
// cannot smuggle delimiter or control bytes into match expressions.
func asciify(line []byte) string {
	var b bytes.Buffer
	for _, c := range line {
		if c >= minGoodASCII && c <= maxGoodASCII {
			b.WriteByte(c)
			continue
		}
		fmt.Fprintf(&b, `\x%02x`, c)
	}
	return b.String()
}
