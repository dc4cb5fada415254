package agent

import (
	"context"
	"crypto/tls"
	"crypto/x509"
	"encoding/json"
	"fmt"
	"io"
	"net"
	"os"
	"strconv"
	"time"

	"github.com/rs/zerolog"
)

// listenerPortBase and listenerPortMaxSteps bound the port scan spec.md
// §4.9 describes: try 14873, then each subsequent port, up to 1000 tries,
// so two agents on the same host (during a migration window) don't fight
// over one fixed port.
const (
	listenerPortBase     = 14873
	listenerPortMaxSteps = 1000
	acceptTimeout        = 60 * time.Second
	lengthPrefixBytes    = 10
)

// MgrListener accepts mutually-authenticated TLS connections from the
// manager and decodes the length-prefixed JSON config-push protocol.
type MgrListener struct {
	ln   net.Listener
	port int
	g    *Gatherer
	log  zerolog.Logger
}

// PushMessage is the JSON body the manager sends over one accepted
// connection: a full config rewrite for this agent, tagged with the
// manager's own monotonic counter so the agent's next report can echo back
// which push it last applied (spec.md §3's "last ack counter from
// manager").
type PushMessage struct {
	Counter uint64         `json:"counter"`
	Config  map[string]any `json:"config"`
}

// NewMgrListener binds the first free port starting at listenerPortBase,
// wrapped in a TLS listener requiring and verifying a client certificate
// against the agent's pinned CA.
func NewMgrListener(cfg *Config, g *Gatherer, log zerolog.Logger) (*MgrListener, error) {
	tlsConfig, err := buildServerTLSConfig(cfg)
	if err != nil {
		return nil, err
	}

	var ln net.Listener
	var port int
	for i := 0; i < listenerPortMaxSteps; i++ {
		port = listenerPortBase + i
		raw, err := net.Listen("tcp", net.JoinHostPort("", strconv.Itoa(port)))
		if err != nil {
			continue
		}
		ln = raw
		break
	}
	if ln == nil {
		return nil, fmt.Errorf("no free port found in range %d-%d", listenerPortBase, listenerPortBase+listenerPortMaxSteps-1)
	}

	return &MgrListener{
		ln:   tls.NewListener(ln, tlsConfig),
		port: port,
		g:    g,
		log:  log.With().Int("listen_port", port).Logger(),
	}, nil
}

func buildServerTLSConfig(cfg *Config) (*tls.Config, error) {
	cert, err := tls.LoadX509KeyPair(cfg.CertPath, cfg.KeyPath)
	if err != nil {
		return nil, fmt.Errorf("loading agent certificate: %w", err)
	}
	pool := x509.NewCertPool()
	if cfg.CAPinPath != "" {
		caPEM, err := os.ReadFile(cfg.CAPinPath)
		if err != nil {
			return nil, fmt.Errorf("reading pinned CA %s: %w", cfg.CAPinPath, err)
		}
		if !pool.AppendCertsFromPEM(caPEM) {
			return nil, fmt.Errorf("no certificates parsed from pinned CA %s", cfg.CAPinPath)
		}
	}
	return &tls.Config{
		Certificates: []tls.Certificate{cert},
		ClientAuth:   tls.RequireAndVerifyClientCert,
		ClientCAs:    pool,
		MinVersion:   tls.VersionTLS13,
	}, nil
}

// Port reports the port the listener bound to, for the agent to report
// back to the manager on its next check-in.
func (l *MgrListener) Port() int { return l.port }

// Serve accepts connections until ctx is cancelled or Close is called.
// Each accepted connection is given acceptTimeout to complete its single
// push-then-reply exchange before being dropped.
func (l *MgrListener) Serve(ctx context.Context) {
	go func() {
		<-ctx.Done()
		l.Close()
	}()

	for {
		conn, err := l.ln.Accept()
		if err != nil {
			return
		}
		go l.handle(conn)
	}
}

// Close stops accepting new connections. Safe to call more than once.
func (l *MgrListener) Close() {
	_ = l.ln.Close()
}

func (l *MgrListener) handle(conn net.Conn) {
	defer conn.Close()
	_ = conn.SetDeadline(time.Now().Add(acceptTimeout))

	msg, err := readLengthPrefixed(conn)
	if err != nil {
		l.log.Warn().Err(err).Msg("mgr push: bad request, closing connection")
		return
	}

	var push PushMessage
	if err := json.Unmarshal(msg, &push); err != nil {
		writeReply(conn, "error: "+err.Error())
		return
	}

	if err := l.g.ApplyConfigPush(push.Counter, push.Config); err != nil {
		writeReply(conn, "error: "+err.Error())
		return
	}
	writeReply(conn, "ACK")
}

// readLengthPrefixed reads a fixed 10-ASCII-digit decimal length prefix
// followed by that many bytes of JSON body. A malformed prefix closes the
// connection rather than guessing; this is the one place the wire protocol
// can desync, so it fails loud.
func readLengthPrefixed(r io.Reader) ([]byte, error) {
	prefix := make([]byte, lengthPrefixBytes)
	if _, err := io.ReadFull(r, prefix); err != nil {
		return nil, fmt.Errorf("reading length prefix: %w", err)
	}
	n, err := strconv.Atoi(trimLeadingSpace(string(prefix)))
	if err != nil || n < 0 {
		return nil, fmt.Errorf("malformed length prefix %q", prefix)
	}
	body := make([]byte, n)
	if _, err := io.ReadFull(r, body); err != nil {
		return nil, fmt.Errorf("reading %d-byte body: %w", n, err)
	}
	return body, nil
}

func trimLeadingSpace(s string) string {
	i := 0
	for i < len(s) && s[i] == ' ' {
		i++
	}
	return s[i:]
}

func writeReply(w io.Writer, reply string) {
	_, _ = w.Write([]byte(reply))
}
