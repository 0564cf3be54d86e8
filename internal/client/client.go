// Package client is the relaycc CLI's thin wrapper around the
// producer's client-facing gRPC API (spec §4.E): dispatch, await_worker
// and next_result, with nothing else in between.
//
// Grounded in the teacher's internal/worker's dial pattern for transport
// setup (mirrored here for the CLI-to-producer leg instead of
// worker-to-producer), and in internal/cli/build/build.go for the shape
// of a client that owns one gRPC connection for its whole lifetime.
package client

import (
	"context"
	"fmt"
	"time"

	"google.golang.org/grpc"
	"google.golang.org/grpc/credentials/insecure"

	"github.com/relaycc/relaycc/internal/pb"
	"github.com/relaycc/relaycc/internal/security/tls"
	"github.com/relaycc/relaycc/internal/transport"
)

// Config describes how to reach a producer's client API.
type Config struct {
	ProducerAddr string
	Insecure     bool
	TLS          tls.Config
	Timeout      time.Duration
}

func (c Config) withDefaults() Config {
	if c.Timeout == 0 {
		c.Timeout = 30 * time.Second
	}
	return c
}

// Result is one resolved compile, as returned by NextResult.
type Result struct {
	Token   string
	Success bool
	Output  []byte
}

// Client is a connected handle to one producer's client API.
type Client struct {
	cfg  Config
	conn *grpc.ClientConn
	api  transport.ClientAPIClient
}

// Dial connects to the producer named in cfg.ProducerAddr.
func Dial(cfg Config) (*Client, error) {
	cfg = cfg.withDefaults()

	creds := grpc.WithTransportCredentials(insecure.NewCredentials())
	if !cfg.Insecure {
		tlsCreds, err := tls.ClientCredentials(cfg.TLS)
		if err != nil {
			return nil, fmt.Errorf("client: load TLS credentials: %w", err)
		}
		if tlsCreds != nil {
			creds = grpc.WithTransportCredentials(tlsCreds)
		}
	}

	conn, err := transport.Dial(cfg.ProducerAddr, creds)
	if err != nil {
		return nil, fmt.Errorf("client: dial producer: %w", err)
	}

	return &Client{
		cfg:  cfg,
		conn: conn,
		api:  transport.NewClientAPIClient(conn),
	}, nil
}

// Close tears down the underlying connection.
func (c *Client) Close() error {
	return c.conn.Close()
}

// Dispatch submits code for compilation under lang and returns its
// correlation token. It does not wait for a result.
func (c *Client) Dispatch(ctx context.Context, lang pb.Language, code string) (string, error) {
	ctx, cancel := context.WithTimeout(ctx, c.cfg.Timeout)
	defer cancel()

	resp, err := c.api.Dispatch(ctx, &pb.DispatchRequest{Lang: lang, Code: code})
	if err != nil {
		return "", err
	}
	return resp.Token, nil
}

// AwaitWorker blocks until the producer has at least one worker
// registered for lang, or ctx is done.
func (c *Client) AwaitWorker(ctx context.Context, lang pb.Language) error {
	_, err := c.api.AwaitWorker(ctx, &pb.AwaitWorkerRequest{Lang: lang})
	return err
}

// NextResult blocks until the next resolved compile is available, in
// arrival order, or ctx is done.
func (c *Client) NextResult(ctx context.Context) (Result, error) {
	resp, err := c.api.NextResult(ctx, &pb.Empty{})
	if err != nil {
		return Result{}, err
	}
	return Result{Token: resp.Token, Success: resp.Success, Output: resp.Output}, nil
}
