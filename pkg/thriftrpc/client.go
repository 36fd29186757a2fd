package thriftrpc

import (
	"context"
	"crypto/tls"
	"errors"
	"fmt"
	"net"
	"strconv"
	"sync"
	"time"

	"github.com/apache/thrift/lib/go/thrift"

	"github.com/morezero/idl-bridge/pkg/idl"
)

// ClientParams configures a Client. UnixSocket takes precedence over Host and Port.
// A non-nil TLS config dials with TLS.
type ClientParams struct {
	Schema     *idl.Schema
	Service    string
	Host       string
	Port       int
	UnixSocket string
	TLS        *tls.Config
	Timeout    time.Duration
	BufferSize int
}

// Client calls the functions of one service over the binary protocol. It is safe for
// concurrent use; calls are serialized on the single connection.
type Client struct {
	service   *idl.Service
	transport thrift.TTransport
	client    *thrift.TStandardClient

	mu sync.Mutex
}

// Dial opens a connection to a Server.
func Dial(ctx context.Context, p ClientParams) (*Client, error) {
	if p.Schema == nil {
		return nil, errors.New("thriftrpc:client - schema is required")
	}
	service, err := p.Schema.Service(p.Service)
	if err != nil {
		return nil, fmt.Errorf("thriftrpc:client - %w", err)
	}
	if p.Timeout <= 0 {
		p.Timeout = DefaultClientTimeout
	}
	if p.BufferSize <= 0 {
		p.BufferSize = DefaultBufferSize
	}

	conf := &thrift.TConfiguration{
		ConnectTimeout: p.Timeout,
		SocketTimeout:  p.Timeout,
		TLSConfig:      p.TLS,
	}
	var socket thrift.TTransport
	switch {
	case p.UnixSocket != "":
		addr, err := net.ResolveUnixAddr("unix", p.UnixSocket)
		if err != nil {
			return nil, fmt.Errorf("thriftrpc:client - resolve %s: %w", p.UnixSocket, err)
		}
		socket = thrift.NewTSocketFromAddrConf(addr, conf)
	case p.Host == "":
		return nil, ErrNoAddress
	case p.TLS != nil:
		socket = thrift.NewTSSLSocketConf(net.JoinHostPort(p.Host, strconv.Itoa(p.Port)), conf)
	default:
		socket = thrift.NewTSocketConf(net.JoinHostPort(p.Host, strconv.Itoa(p.Port)), conf)
	}

	transport := thrift.NewTBufferedTransport(socket, p.BufferSize)
	if err := transport.Open(); err != nil {
		return nil, fmt.Errorf("thriftrpc:client - open: %w", err)
	}
	proto := thrift.NewTBinaryProtocolConf(transport, conf)
	return &Client{
		service:   service,
		transport: transport,
		client:    thrift.NewTStandardClient(proto, proto),
	}, nil
}

// Call invokes name with positional args. Declared exceptions come back as *idl.Exception;
// other failures as thrift.TApplicationException or transport errors. Oneway calls return
// once the request is written.
func (c *Client) Call(ctx context.Context, name string, args ...any) (any, error) {
	fn, ok := c.service.Function(name)
	if !ok {
		return nil, fmt.Errorf("thriftrpc:client - %s has no function %q", c.service.Name, name)
	}
	if len(args) > len(fn.Args) {
		return nil, fmt.Errorf("thriftrpc:client - %s takes %d arguments, got %d", name, len(fn.Args), len(args))
	}

	req := &wireStruct{name: name + "_args"}
	for i, v := range args {
		if v == nil {
			continue
		}
		arg := fn.Args[i]
		nv, err := normalize(arg.Type, v, arg.Name)
		if err != nil {
			return nil, fmt.Errorf("thriftrpc:client - %w", err)
		}
		req.fields = append(req.fields, wireField{name: arg.Name, id: int16(arg.Position), typ: arg.Type, value: nv})
	}

	c.mu.Lock()
	defer c.mu.Unlock()

	if fn.Oneway {
		_, err := c.client.Call(ctx, name, argsWriter{req}, nil)
		return nil, err
	}
	res := &resultReader{fn: fn}
	if _, err := c.client.Call(ctx, name, argsWriter{req}, res); err != nil {
		return nil, err
	}
	if res.exception != nil {
		return nil, idl.Raise(res.exception)
	}
	return res.success, nil
}

// Close closes the connection.
func (c *Client) Close() error {
	return c.transport.Close()
}

type argsWriter struct {
	s *wireStruct
}

func (w argsWriter) Write(ctx context.Context, p thrift.TProtocol) error {
	return writeStruct(ctx, p, w.s)
}

func (w argsWriter) Read(context.Context, thrift.TProtocol) error {
	return errors.New("thriftrpc:client - argument structs are write-only")
}

type resultReader struct {
	fn        *idl.Function
	success   any
	exception *idl.Struct
}

func (r *resultReader) Read(ctx context.Context, p thrift.TProtocol) error {
	return readFields(ctx, p, func(id int16, wt thrift.TType) (bool, error) {
		if id == 0 {
			if r.fn.Returns.Kind == idl.KindVoid || ttype(r.fn.Returns) != wt {
				return false, nil
			}
			v, err := readValue(ctx, p, r.fn.Returns)
			r.success = v
			return true, err
		}
		for _, f := range r.fn.Throws {
			if f.ID == id && wt == thrift.STRUCT {
				exc, err := readStruct(ctx, p, f.Type.Struct)
				r.exception = exc
				return true, err
			}
		}
		return false, nil
	})
}

func (r *resultReader) Write(context.Context, thrift.TProtocol) error {
	return errors.New("thriftrpc:client - result structs are read-only")
}
