package natsclient

// Embedded-NATS-server test infrastructure for integration tests that
// exercise a real Client without a Docker daemon.

import (
	"context"
	"fmt"
	"os"
	"sync/atomic"
	"testing"
	"time"

	gonats "github.com/nats-io/nats.go"
	"github.com/nats-io/nats.go/jetstream"
	natsserver "github.com/nats-io/nats-server/v2/server"
)

var testPortCounter atomic.Int32

func init() {
	testPortCounter.Store(14300)
}

// TestClient wraps an in-process NATS server and a connected Client for
// integration tests, the way a deployed router would connect in production.
type TestClient struct {
	server  *natsserver.Server
	Client  *Client
	URL     string
	cleanup func()
}

// testConfig holds configuration for test client
type testConfig struct {
	jetstream    bool
	kv           bool
	kvBuckets    []string
	timeout      time.Duration
	startTimeout time.Duration
}

// TestOption for configuring test client
type TestOption func(*testConfig)

// WithJetStream enables JetStream for tests that need it
func WithJetStream() TestOption {
	return func(cfg *testConfig) {
		cfg.jetstream = true
	}
}

// WithKV enables KV store for tests that need it
func WithKV() TestOption {
	return func(cfg *testConfig) {
		cfg.jetstream = true // KV requires JetStream
		cfg.kv = true
	}
}

// WithKVBuckets pre-creates specific KV buckets
func WithKVBuckets(buckets ...string) TestOption {
	return func(cfg *testConfig) {
		cfg.jetstream = true // KV requires JetStream
		cfg.kv = true
		cfg.kvBuckets = append(cfg.kvBuckets, buckets...)
	}
}

// WithNATSVersion is accepted for call-site compatibility with the
// container-based harness this replaced; an embedded server always runs
// whatever nats-server version this module imports.
func WithNATSVersion(_ string) TestOption {
	return func(*testConfig) {}
}

// WithTestTimeout sets the connection timeout for test client
func WithTestTimeout(timeout time.Duration) TestOption {
	return func(cfg *testConfig) {
		cfg.timeout = timeout
	}
}

// WithStartTimeout sets the server startup timeout
func WithStartTimeout(timeout time.Duration) TestOption {
	return func(cfg *testConfig) {
		cfg.startTimeout = timeout
	}
}

func newEmbeddedServer(cfg *testConfig) (*natsserver.Server, string, func(), error) {
	port := int(testPortCounter.Add(1))

	opts := &natsserver.Options{
		Host:   "127.0.0.1",
		Port:   port,
		NoLog:  true,
		NoSigs: true,
	}

	var storeDir string
	if cfg.jetstream {
		dir, err := os.MkdirTemp("", "maf-natstest-*")
		if err != nil {
			return nil, "", nil, fmt.Errorf("create jetstream store dir: %w", err)
		}
		storeDir = dir
		opts.JetStream = true
		opts.StoreDir = dir
	}

	srv, err := natsserver.NewServer(opts)
	if err != nil {
		if storeDir != "" {
			_ = os.RemoveAll(storeDir)
		}
		return nil, "", nil, fmt.Errorf("create embedded NATS server: %w", err)
	}

	go srv.Start()
	if !srv.ReadyForConnections(cfg.startTimeout) {
		srv.Shutdown()
		if storeDir != "" {
			_ = os.RemoveAll(storeDir)
		}
		return nil, "", nil, fmt.Errorf("embedded NATS server did not become ready within %s", cfg.startTimeout)
	}

	cleanup := func() {
		srv.Shutdown()
		srv.WaitForShutdown()
		if storeDir != "" {
			_ = os.RemoveAll(storeDir)
		}
	}

	return srv, srv.ClientURL(), cleanup, nil
}

func defaultTestConfig() *testConfig {
	return &testConfig{
		timeout:      5 * time.Second,
		startTimeout: 10 * time.Second,
	}
}

// NewSharedTestClient starts an embedded NATS server for use in TestMain.
// Unlike NewTestClient, this doesn't require testing.T and returns errors.
func NewSharedTestClient(opts ...TestOption) (*TestClient, error) {
	cfg := defaultTestConfig()
	for _, opt := range opts {
		opt(cfg)
	}

	srv, url, serverCleanup, err := newEmbeddedServer(cfg)
	if err != nil {
		return nil, err
	}

	client, err := NewClient(url,
		WithTimeout(cfg.timeout),
		WithMaxReconnects(0),
		WithHealthInterval(0),
	)
	if err != nil {
		serverCleanup()
		return nil, fmt.Errorf("create NATS client: %w", err)
	}

	ctx := context.Background()
	connectCtx, cancel := context.WithTimeout(ctx, cfg.timeout)
	defer cancel()

	if err := client.Connect(connectCtx); err != nil {
		serverCleanup()
		return nil, fmt.Errorf("connect to embedded NATS server: %w", err)
	}
	if err := client.WaitForConnection(connectCtx); err != nil {
		_ = client.Close(ctx)
		serverCleanup()
		return nil, fmt.Errorf("NATS connection not ready: %w", err)
	}

	testClient := &TestClient{
		server: srv,
		Client: client,
		URL:    url,
		cleanup: func() {
			_ = client.Close(context.Background())
			serverCleanup()
		},
	}

	if cfg.kv && len(cfg.kvBuckets) > 0 {
		if err := testClient.setupKVBuckets(ctx, cfg.kvBuckets); err != nil {
			testClient.cleanup()
			return nil, fmt.Errorf("setup KV buckets: %w", err)
		}
	}

	return testClient, nil
}

// NewTestClient starts an embedded NATS server scoped to t's lifetime.
// Accepts testing.TB so it works with both *testing.T and *testing.B.
func NewTestClient(t testing.TB, opts ...TestOption) *TestClient {
	t.Helper()

	cfg := defaultTestConfig()
	for _, opt := range opts {
		opt(cfg)
	}

	srv, url, serverCleanup, err := newEmbeddedServer(cfg)
	if err != nil {
		t.Fatalf("failed to start embedded NATS server: %v", err)
	}

	client, err := NewClient(url,
		WithTimeout(cfg.timeout),
		WithMaxReconnects(0),
		WithHealthInterval(0),
	)
	if err != nil {
		serverCleanup()
		t.Fatalf("failed to create NATS client: %v", err)
	}

	ctx := context.Background()
	connectCtx, cancel := context.WithTimeout(ctx, cfg.timeout)
	defer cancel()

	if err := client.Connect(connectCtx); err != nil {
		serverCleanup()
		t.Fatalf("failed to connect to embedded NATS server: %v", err)
	}
	if err := client.WaitForConnection(connectCtx); err != nil {
		_ = client.Close(ctx)
		serverCleanup()
		t.Fatalf("NATS connection not ready: %v", err)
	}

	testClient := &TestClient{
		server: srv,
		Client: client,
		URL:    url,
		cleanup: func() {
			_ = client.Close(context.Background())
			serverCleanup()
		},
	}

	if cfg.kv && len(cfg.kvBuckets) > 0 {
		if err := testClient.setupKVBuckets(ctx, cfg.kvBuckets); err != nil {
			testClient.cleanup()
			t.Fatalf("failed to setup KV buckets: %v", err)
		}
	}

	t.Cleanup(testClient.cleanup)
	return testClient
}

// setupKVBuckets creates the requested KV buckets
func (tc *TestClient) setupKVBuckets(ctx context.Context, buckets []string) error {
	for _, bucketName := range buckets {
		cfg := jetstream.KeyValueConfig{Bucket: bucketName}
		if _, err := tc.Client.CreateKeyValueBucket(ctx, cfg); err != nil {
			return fmt.Errorf("create KV bucket %s: %w", bucketName, err)
		}
	}
	return nil
}

// Terminate manually shuts down the server and client (usually handled by
// t.Cleanup).
func (tc *TestClient) Terminate() error {
	if tc.cleanup != nil {
		tc.cleanup()
		tc.cleanup = nil
	}
	return nil
}

// IsReady checks if the NATS connection is ready for use
func (tc *TestClient) IsReady() bool {
	return tc.Client.IsHealthy()
}

// GetNativeConnection returns the underlying NATS connection for direct access
func (tc *TestClient) GetNativeConnection() *gonats.Conn {
	return tc.Client.GetConnection()
}

// CreateKVBucket is a helper for creating KV buckets during tests
func (tc *TestClient) CreateKVBucket(ctx context.Context, name string) (jetstream.KeyValue, error) {
	cfg := jetstream.KeyValueConfig{Bucket: name}
	return tc.Client.CreateKeyValueBucket(ctx, cfg)
}

// GetKVBucket is a helper for getting existing KV buckets during tests
func (tc *TestClient) GetKVBucket(ctx context.Context, name string) (jetstream.KeyValue, error) {
	return tc.Client.GetKeyValueBucket(ctx, name)
}
