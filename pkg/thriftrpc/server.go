package thriftrpc

import (
	"crypto/tls"
	"errors"
	"fmt"
	"io/fs"
	"log/slog"
	"net"
	"os"
	"strconv"
	"time"

	"github.com/apache/thrift/lib/go/thrift"
)

const serverLogPrefix = "thriftrpc:server"

const (
	DefaultBufferSize    = 8192
	DefaultClientTimeout = 3 * time.Second
)

// ErrNoAddress is returned when neither a host and port nor a unix socket is configured.
var ErrNoAddress = errors.New("thriftrpc:server - either host and port or a unix socket must be provided")

// ServerParams configures a Server. UnixSocket takes precedence over Host and Port.
// CertFile enables TLS; KeyFile defaults to CertFile for combined PEM files.
type ServerParams struct {
	Processor     *Processor
	Host          string
	Port          int
	UnixSocket    string
	CertFile      string
	KeyFile       string
	ClientTimeout time.Duration
	BufferSize    int
}

type serverSocket interface {
	thrift.TServerTransport
	Addr() net.Addr
}

// Server accepts Thrift binary connections, one goroutine per client.
type Server struct {
	processor *Processor
	socket    serverSocket
	server    *thrift.TSimpleServer
}

// NewServer creates a Server. It does not listen until Listen or Serve is called.
func NewServer(p ServerParams) (*Server, error) {
	if p.Processor == nil {
		return nil, errors.New("thriftrpc:server - processor is required")
	}
	if p.ClientTimeout <= 0 {
		p.ClientTimeout = DefaultClientTimeout
	}
	if p.BufferSize <= 0 {
		p.BufferSize = DefaultBufferSize
	}

	socket, err := newServerSocket(p)
	if err != nil {
		return nil, err
	}
	server := thrift.NewTSimpleServer4(
		p.Processor,
		socket,
		thrift.NewTBufferedTransportFactory(p.BufferSize),
		thrift.NewTBinaryProtocolFactoryConf(&thrift.TConfiguration{}),
	)
	return &Server{processor: p.Processor, socket: socket, server: server}, nil
}

func newServerSocket(p ServerParams) (serverSocket, error) {
	if p.UnixSocket != "" {
		if p.CertFile != "" {
			slog.Error(fmt.Sprintf("%s - TLS is only supported over host and port, serving %s unencrypted", serverLogPrefix, p.UnixSocket))
		}
		if info, err := os.Stat(p.UnixSocket); err == nil && info.Mode()&fs.ModeSocket != 0 {
			_ = os.Remove(p.UnixSocket)
		}
		addr, err := net.ResolveUnixAddr("unix", p.UnixSocket)
		if err != nil {
			return nil, fmt.Errorf("%s - resolve %s: %w", serverLogPrefix, p.UnixSocket, err)
		}
		return thrift.NewTServerSocketFromAddrTimeout(addr, p.ClientTimeout), nil
	}
	if p.Host == "" {
		return nil, ErrNoAddress
	}

	hostPort := net.JoinHostPort(p.Host, strconv.Itoa(p.Port))
	if p.CertFile != "" {
		keyFile := p.KeyFile
		if keyFile == "" {
			keyFile = p.CertFile
		}
		cert, err := tls.LoadX509KeyPair(p.CertFile, keyFile)
		if err != nil {
			return nil, fmt.Errorf("%s - load certificate: %w", serverLogPrefix, err)
		}
		cfg := &tls.Config{Certificates: []tls.Certificate{cert}, MinVersion: tls.VersionTLS12}
		socket, err := thrift.NewTSSLServerSocketTimeout(hostPort, cfg, p.ClientTimeout)
		if err != nil {
			return nil, fmt.Errorf("%s - %w", serverLogPrefix, err)
		}
		return socket, nil
	}
	socket, err := thrift.NewTServerSocketTimeout(hostPort, p.ClientTimeout)
	if err != nil {
		return nil, fmt.Errorf("%s - %w", serverLogPrefix, err)
	}
	return socket, nil
}

// Listen binds the socket and prints the function mappings once.
func (s *Server) Listen() error {
	if err := s.server.Listen(); err != nil {
		return fmt.Errorf("%s - listen: %w", serverLogPrefix, err)
	}
	s.processor.Dispatcher().Registry().SummarizeOnce(os.Stdout)
	slog.Info(fmt.Sprintf("%s - listening on %s", serverLogPrefix, s.Addr()))
	return nil
}

// AcceptLoop serves connections until Stop is called.
func (s *Server) AcceptLoop() error {
	return s.server.AcceptLoop()
}

// Serve listens and serves until Stop is called.
func (s *Server) Serve() error {
	if err := s.Listen(); err != nil {
		return err
	}
	return s.AcceptLoop()
}

// Addr returns the bound address once listening, else the configured one.
func (s *Server) Addr() net.Addr {
	return s.socket.Addr()
}

// Stop closes the listener and waits for open connections to finish.
func (s *Server) Stop() error {
	return s.server.Stop()
}
