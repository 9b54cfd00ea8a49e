// Package server wires the RESP-compatible front end (backed by
// redcon) and a small admin HTTP surface (backed by chi) to the
// command dispatcher and the ttl index engine.
package server

import (
	"crypto/tls"
	"crypto/x509"
	"fmt"
	"log/slog"
	"os"
	"strconv"
	"strings"
	"sync"
	"sync/atomic"
	"time"

	"github.com/tidwall/redcon"

	"tidekv/internal/dispatch"
	"tidekv/internal/ttlindex"
)

// Server is the RESP-protocol listener. TLS is mandatory: client
// certificates are required and verified against the configured CA,
// matching the mTLS posture the rest of the stack assumes.
type Server struct {
	addr       string
	dispatcher *dispatch.Dispatcher
	engine     *ttlindex.Engine
	logger     *slog.Logger
	maxConns   int

	tlsCertFile, tlsKeyFile, tlsCAFile string
	currentTLSConfig                  atomic.Value

	activeConns atomic.Int64
	totalConns  atomic.Uint64

	mu  sync.Mutex
	rs  *redcon.TLSServer
}

// New constructs a Server. TLS material is mandatory; the process
// exits if any of the three files is missing, matching the security
// posture the rest of the stack assumes for inter-node traffic.
func New(addr string, dispatcher *dispatch.Dispatcher, engine *ttlindex.Engine, logger *slog.Logger, maxConns int, tlsCert, tlsKey, tlsCA string) *Server {
	if tlsCert == "" || tlsKey == "" || tlsCA == "" {
		logger.Error("server requires tls cert, key and ca file for mTLS")
		os.Exit(1)
	}
	s := &Server{
		addr:        addr,
		dispatcher:  dispatcher,
		engine:      engine,
		logger:      logger,
		maxConns:    maxConns,
		tlsCertFile: tlsCert,
		tlsKeyFile:  tlsKey,
		tlsCAFile:   tlsCA,
	}
	cfg, err := s.loadTLSConfig()
	if err != nil {
		logger.Error("failed to load initial tls config", "err", err)
		os.Exit(1)
	}
	s.currentTLSConfig.Store(cfg)
	return s
}

// loadTLSConfig reads the configured cert/key/CA from disk, enabling
// hot-reload: ReloadTLS re-reads them without dropping the listener.
func (s *Server) loadTLSConfig() (*tls.Config, error) {
	cert, err := tls.LoadX509KeyPair(s.tlsCertFile, s.tlsKeyFile)
	if err != nil {
		return nil, fmt.Errorf("load key pair: %w", err)
	}
	caPEM, err := os.ReadFile(s.tlsCAFile)
	if err != nil {
		return nil, fmt.Errorf("read ca file: %w", err)
	}
	pool := x509.NewCertPool()
	if !pool.AppendCertsFromPEM(caPEM) {
		return nil, fmt.Errorf("no valid certificates found in %s", s.tlsCAFile)
	}
	return &tls.Config{
		Certificates: []tls.Certificate{cert},
		ClientCAs:    pool,
		ClientAuth:   tls.RequireAndVerifyClientCert,
		MinVersion:   tls.VersionTLS12,
	}, nil
}

// ReloadTLS re-reads certificate material from disk, e.g. in response
// to a SIGHUP, without restarting the listener.
func (s *Server) ReloadTLS() error {
	cfg, err := s.loadTLSConfig()
	if err != nil {
		return err
	}
	s.currentTLSConfig.Store(cfg)
	return nil
}

func (s *Server) tlsConfig() *tls.Config {
	base := s.currentTLSConfig.Load().(*tls.Config)
	return &tls.Config{
		GetConfigForClient: func(*tls.ClientHelloInfo) (*tls.Config, error) {
			return s.currentTLSConfig.Load().(*tls.Config), nil
		},
		MinVersion: base.MinVersion,
	}
}

// ListenAndServe blocks serving RESP connections until Close is called.
func (s *Server) ListenAndServe() error {
	rs := redcon.NewServerTLS(s.addr, s.handleCommand, s.acceptConn, s.closedConn, s.tlsConfig())
	s.mu.Lock()
	s.rs = rs
	s.mu.Unlock()
	s.logger.Info("resp server starting", "addr", s.addr)
	return rs.ListenAndServe()
}

// Close stops accepting new connections.
func (s *Server) Close() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.rs == nil {
		return nil
	}
	return s.rs.Close()
}

func (s *Server) acceptConn(conn redcon.Conn) bool {
	if s.maxConns > 0 && int(s.activeConns.Load()) >= s.maxConns {
		return false
	}
	s.activeConns.Add(1)
	s.totalConns.Add(1)
	return true
}

func (s *Server) closedConn(conn redcon.Conn, err error) {
	s.activeConns.Add(-1)
}

func (s *Server) handleCommand(conn redcon.Conn, cmd redcon.Command) {
	if len(cmd.Args) == 0 {
		conn.WriteError("ERR empty command")
		return
	}
	name := strings.ToUpper(string(cmd.Args[0]))
	switch name {
	case "PING":
		conn.WriteString("PONG")
	case "SET":
		s.handleSet(conn, cmd.Args)
	case "GET":
		s.handleGet(conn, cmd.Args)
	case "DEL":
		s.handleDel(conn, cmd.Args)
	case "EXPIRE":
		s.handleExpire(conn, cmd.Args)
	case "TTL":
		s.handleTTL(conn, cmd.Args)
	default:
		conn.WriteError("ERR unknown command '" + name + "'")
	}
}

func (s *Server) handleSet(conn redcon.Conn, args [][]byte) {
	if len(args) < 3 {
		conn.WriteError("ERR wrong number of arguments for 'set' command")
		return
	}
	var ttl time.Duration
	if len(args) >= 5 && strings.EqualFold(string(args[3]), "EX") {
		secs, err := strconv.Atoi(string(args[4]))
		if err != nil {
			conn.WriteError("ERR invalid expire time in 'set' command")
			return
		}
		ttl = time.Duration(secs) * time.Second
	}
	if err := s.dispatcher.Set(0, args[1], args[2], ttl); err != nil {
		conn.WriteError("ERR " + err.Error())
		return
	}
	conn.WriteString("OK")
}

func (s *Server) handleGet(conn redcon.Conn, args [][]byte) {
	if len(args) != 2 {
		conn.WriteError("ERR wrong number of arguments for 'get' command")
		return
	}
	v, err := s.dispatcher.Get(0, args[1])
	if err != nil {
		conn.WriteNull()
		return
	}
	conn.WriteBulk(v)
}

func (s *Server) handleDel(conn redcon.Conn, args [][]byte) {
	if len(args) != 2 {
		conn.WriteError("ERR wrong number of arguments for 'del' command")
		return
	}
	if err := s.dispatcher.Del(0, args[1]); err != nil {
		conn.WriteInt(0)
		return
	}
	conn.WriteInt(1)
}

func (s *Server) handleExpire(conn redcon.Conn, args [][]byte) {
	if len(args) != 3 {
		conn.WriteError("ERR wrong number of arguments for 'expire' command")
		return
	}
	secs, err := strconv.Atoi(string(args[2]))
	if err != nil {
		conn.WriteError("ERR value is not an integer or out of range")
		return
	}
	ok, err := s.dispatcher.Expire(0, args[1], time.Duration(secs)*time.Second)
	if err != nil {
		conn.WriteError("ERR " + err.Error())
		return
	}
	if ok {
		conn.WriteInt(1)
	} else {
		conn.WriteInt(0)
	}
}

func (s *Server) handleTTL(conn redcon.Conn, args [][]byte) {
	if len(args) != 2 {
		conn.WriteError("ERR wrong number of arguments for 'ttl' command")
		return
	}
	ttl, err := s.dispatcher.TTL(0, args[1])
	if err != nil {
		conn.WriteInt(-2)
		return
	}
	if ttl < 0 {
		conn.WriteInt(-1)
		return
	}
	conn.WriteInt(int(ttl.Seconds()))
}
