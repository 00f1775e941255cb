package tools

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/agentsphere/agentsphere-api/model"
	"github.com/agentsphere/agentsphere-api/utils"
	"github.com/mark3labs/mcp-go/client"
	"github.com/mark3labs/mcp-go/client/transport"
	"github.com/mark3labs/mcp-go/mcp"
	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"
)

const (
	DefaultTimeout = 30 * time.Second
	maxParallel    = 8
	clientName     = "agentsphere"
	clientVersion  = "1.0.0"
)

// Result is the outcome of resolving one adapter: either Ok with an adapter
// or Skipped with a reason.
type Result struct {
	Server  string
	Tool    string
	Adapter Adapter
	Reason  string
}

func Ok(server string, a Adapter) Result {
	return Result{Server: server, Tool: a.Name(), Adapter: a}
}

func Skipped(server, tool, reason string) Result {
	return Result{Server: server, Tool: tool, Reason: reason}
}

func (r Result) IsOk() bool { return r.Adapter != nil }

// Resolver dials MCP servers and keeps their connections open until Close
type Resolver struct {
	timeout  time.Duration
	logger   *zap.Logger
	onListed func(serverID uint, tools []string)

	mu    sync.Mutex
	conns []openConn
}

type openConn struct {
	client *client.Client
	cancel context.CancelFunc
}

type Option func(*Resolver)

func WithTimeout(d time.Duration) Option {
	return func(r *Resolver) {
		if d > 0 {
			r.timeout = d
		}
	}
}

// WithToolListingHook is called with the tool names of every server listed successfully
func WithToolListingHook(fn func(serverID uint, tools []string)) Option {
	return func(r *Resolver) { r.onListed = fn }
}

func NewResolver(logger *zap.Logger, opts ...Option) *Resolver {
	r := &Resolver{
		timeout: DefaultTimeout,
		logger:  utils.OrNop(logger),
	}
	for _, opt := range opts {
		opt(r)
	}
	return r
}

// Resolve returns the adapters that could be created. It never fails; servers
// or tools that cannot be reached are logged and left out.
func (r *Resolver) Resolve(ctx context.Context, servers []model.MCPServer) []Adapter {
	results := r.ResolveResults(ctx, servers)

	adapters := make([]Adapter, 0, len(results))
	for _, res := range results {
		if res.IsOk() {
			adapters = append(adapters, res.Adapter)
			continue
		}
		r.logger.Debug("tool skipped",
			zap.String("server", res.Server),
			zap.String("tool", res.Tool),
			zap.String("reason", res.Reason))
	}
	return adapters
}

// ResolveResults fans out over servers and returns one result per tool, or
// one skipped result per unreachable server, in server order.
func (r *Resolver) ResolveResults(ctx context.Context, servers []model.MCPServer) []Result {
	perServer := make([][]Result, len(servers))

	var g errgroup.Group
	g.SetLimit(maxParallel)
	for i, srv := range servers {
		g.Go(func() error {
			perServer[i] = r.resolveServer(ctx, srv)
			return nil
		})
	}
	_ = g.Wait()

	var out []Result
	seen := make(map[string]bool)
	for _, results := range perServer {
		for _, res := range results {
			if res.IsOk() {
				if seen[res.Tool] {
					out = append(out, Skipped(res.Server, res.Tool, "duplicate tool name"))
					continue
				}
				seen[res.Tool] = true
			}
			out = append(out, res)
		}
	}
	return out
}

func (r *Resolver) resolveServer(ctx context.Context, srv model.MCPServer) (results []Result) {
	label := srv.Name
	if label == "" {
		label = srv.URL
	}

	defer func() {
		if rec := recover(); rec != nil {
			results = []Result{Skipped(label, "", fmt.Sprintf("panic: %v", rec))}
		}
	}()

	conn, tools, err := r.connect(ctx, srv)
	if err != nil {
		r.logger.Warn("mcp server unavailable", zap.String("server", label), zap.Error(err))
		return []Result{Skipped(label, "", err.Error())}
	}

	names := make([]string, 0, len(tools))
	for _, tool := range tools {
		adapter, err := newMCPAdapter(conn, tool, r.timeout)
		if err != nil {
			results = append(results, Skipped(label, tool.Name, err.Error()))
			continue
		}
		names = append(names, tool.Name)
		results = append(results, Ok(label, adapter))
	}

	if r.onListed != nil && srv.ID != 0 {
		r.onListed(srv.ID, names)
	}
	return results
}

func (r *Resolver) connect(ctx context.Context, srv model.MCPServer) (*client.Client, []mcp.Tool, error) {
	conn, err := client.NewSSEMCPClient(srv.URL, transport.WithHeaders(map[string]string{
		"Content-Type": "application/json",
	}))
	if err != nil {
		return nil, nil, fmt.Errorf("failed to create SSE client: %w", err)
	}

	// The SSE stream lives until Close, independent of the caller's deadline
	streamCtx, cancel := context.WithCancel(context.Background())

	opCtx, opCancel := context.WithTimeout(ctx, r.timeout)
	defer opCancel()

	fail := func(err error) (*client.Client, []mcp.Tool, error) {
		cancel()
		_ = conn.Close()
		return nil, nil, err
	}

	startErr := make(chan error, 1)
	go func() { startErr <- conn.Start(streamCtx) }()
	select {
	case err := <-startErr:
		if err != nil {
			return fail(fmt.Errorf("failed to start SSE stream: %w", err))
		}
	case <-opCtx.Done():
		return fail(fmt.Errorf("timed out connecting: %w", opCtx.Err()))
	}

	_, err = conn.Initialize(opCtx, mcp.InitializeRequest{
		Params: mcp.InitializeParams{
			ProtocolVersion: mcp.LATEST_PROTOCOL_VERSION,
			ClientInfo: mcp.Implementation{
				Name:    clientName,
				Version: clientVersion,
			},
		},
	})
	if err != nil {
		return fail(fmt.Errorf("failed to initialize: %w", err))
	}

	listed, err := conn.ListTools(opCtx, mcp.ListToolsRequest{})
	if err != nil {
		return fail(fmt.Errorf("failed to list tools: %w", err))
	}

	r.mu.Lock()
	r.conns = append(r.conns, openConn{client: conn, cancel: cancel})
	r.mu.Unlock()

	return conn, listed.Tools, nil
}

// Close releases every connection opened by Resolve
func (r *Resolver) Close() error {
	r.mu.Lock()
	conns := r.conns
	r.conns = nil
	r.mu.Unlock()

	var firstErr error
	for _, c := range conns {
		if err := c.client.Close(); err != nil && firstErr == nil {
			firstErr = err
		}
		c.cancel()
	}
	return firstErr
}
