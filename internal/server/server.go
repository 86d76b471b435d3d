// Package server implements the request server: it binds a TCP
// endpoint, accepts connections one at a time, deserializes a single
// framed request, dispatches into the storage engine, serializes the
// outcome, and closes the connection.
package server

import (
	"errors"
	"fmt"
	"net"

	"go.uber.org/zap"

	"github.com/wanjiru/kvs/internal/engine"
	"github.com/wanjiru/kvs/internal/protocol"
)

// DefaultAddr is the bind address used when Config.Addr is empty.
const DefaultAddr = "127.0.0.1:4000"

// Config configures a Server.
type Config struct {
	// Addr is the TCP address to bind. Empty means DefaultAddr.
	Addr string

	// Dir is the store directory the engine opens.
	Dir string

	// EngineName is the backend requested on the command line, if
	// any. Empty means "use whatever this directory already uses".
	EngineName string

	// CompactionThreshold overrides the engine's default, mainly for
	// tests. Zero means "use the engine's default".
	CompactionThreshold uint64
}

// Server owns one open engine.Store and the listener fronting it.
type Server struct {
	engine   *engine.Store
	listener net.Listener
	logger   *zap.Logger
}

// Open resolves the bind address, opens the storage engine (enforcing
// the engine-marker protocol along the way), and binds the listener.
// The server does not start accepting connections until Serve is
// called.
func Open(cfg Config) (*Server, error) {
	logger := zap.L().Named("server")

	addr := cfg.Addr
	if addr == "" {
		addr = DefaultAddr
	}

	store, err := engine.Open(cfg.Dir, engine.Options{
		EngineName:          cfg.EngineName,
		CompactionThreshold: cfg.CompactionThreshold,
	})
	if err != nil {
		return nil, fmt.Errorf("open server: %w", err)
	}

	ln, err := net.Listen("tcp", addr)
	if err != nil {
		store.Close()
		return nil, fmt.Errorf("open server: %w", err)
	}

	logger.Info("server listening", zap.String("addr", ln.Addr().String()), zap.String("dir", cfg.Dir))

	return &Server{engine: store, listener: ln, logger: logger}, nil
}

// Addr returns the address the server is actually bound to, useful
// when Config.Addr asked for an ephemeral port ("127.0.0.1:0").
func (s *Server) Addr() string {
	return s.listener.Addr().String()
}

// Serve runs the accept loop: one connection at a time, sequentially,
// until the listener is closed.
func (s *Server) Serve() error {
	for {
		conn, err := s.listener.Accept()
		if err != nil {
			if errors.Is(err, net.ErrClosed) {
				return nil
			}
			return err
		}

		s.handleConn(conn)
	}
}

// handleConn reads exactly one framed request, dispatches it, writes
// exactly one framed response, and closes the connection. A client
// that disconnects mid-request is observed as an EOF and the
// connection is simply dropped; the engine is only ever mutated by a
// completed, successfully-parsed request.
func (s *Server) handleConn(conn net.Conn) {
	defer conn.Close()

	msg, err := protocol.ReceiveMessage(conn)
	if err != nil {
		s.logger.Debug("dropping connection: failed to read request", zap.Error(err))
		return
	}

	if msg.Kind != protocol.KindRequest {
		s.reply(conn, protocol.NewError("expected a request message"))
		return
	}

	s.reply(conn, s.dispatch(msg.Command))
}

func (s *Server) reply(conn net.Conn, resp protocol.Message) {
	if err := protocol.Send(resp, conn); err != nil {
		s.logger.Warn("failed to write response", zap.Error(err))
	}
}

// dispatch runs cmd against the engine and maps the outcome to a
// response message.
func (s *Server) dispatch(cmd protocol.Command) protocol.Message {
	switch cmd.Kind {
	case protocol.CommandGet:
		value, ok, err := s.engine.Get(cmd.Key)
		if err != nil {
			return protocol.NewError(err.Error())
		}
		if !ok {
			return protocol.NewResponse("Key not found")
		}
		return protocol.NewResponse(value)

	case protocol.CommandSet:
		if err := s.engine.Set(cmd.Key, cmd.Value); err != nil {
			return protocol.NewError(err.Error())
		}
		return protocol.NewOk()

	case protocol.CommandRemove:
		if err := s.engine.Remove(cmd.Key); err != nil {
			return protocol.NewError(err.Error())
		}
		return protocol.NewOk()

	default:
		return protocol.NewError(fmt.Sprintf("unknown command %q", cmd.Kind))
	}
}

// Close stops accepting connections and closes the underlying engine.
func (s *Server) Close() error {
	lnErr := s.listener.Close()
	engErr := s.engine.Close()
	if lnErr != nil {
		return lnErr
	}
	return engErr
}
