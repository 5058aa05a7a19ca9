package cli

import (
	"context"
	"io"
	"log"
	"os"
	"sync"
	"time"

	"github.com/dmitrijs2005/evidencekeeper/internal/client/config"
	evgrpc "github.com/dmitrijs2005/evidencekeeper/internal/server/grpc"
	"google.golang.org/grpc"
	"google.golang.org/grpc/credentials/insecure"
	healthpb "google.golang.org/grpc/health/grpc_health_v1"
)

type Mode string

const (
	ModeOffline Mode = "offline"
	ModeOnline  Mode = "online"
)

// evidenceAPI is the part of the Evidence client the CLI calls.
type evidenceAPI interface {
	ListFiles(ctx context.Context, in *evgrpc.ListFilesRequest, opts ...grpc.CallOption) (*evgrpc.ListFilesResponse, error)
	ListRecent(ctx context.Context, in *evgrpc.ListRecentRequest, opts ...grpc.CallOption) (*evgrpc.ListFilesResponse, error)
	DescribeFile(ctx context.Context, in *evgrpc.DescribeFileRequest, opts ...grpc.CallOption) (*evgrpc.DescribeFileResponse, error)
	Associate(ctx context.Context, in *evgrpc.AssociateRequest, opts ...grpc.CallOption) (*evgrpc.AssociateResponse, error)
	Disassociate(ctx context.Context, in *evgrpc.DisassociateRequest, opts ...grpc.CallOption) (*evgrpc.DisassociateResponse, error)
	DownloadURL(ctx context.Context, in *evgrpc.DownloadURLRequest, opts ...grpc.CallOption) (*evgrpc.DownloadURLResponse, error)
	RegisterExecution(ctx context.Context, in *evgrpc.RegisterExecutionRequest, opts ...grpc.CallOption) (*evgrpc.RegisterExecutionResponse, error)
}

type App struct {
	config *config.Config
	api    evidenceAPI
	health healthpb.HealthClient
	conn   io.Closer
	out    io.Writer

	owner evgrpc.OwnerRef
	cwd   string

	mu   sync.Mutex
	mode Mode
}

func NewApp(c *config.Config) (*App, error) {
	cc, err := grpc.NewClient(c.ServerEndpointAddr, grpc.WithTransportCredentials(insecure.NewCredentials()))
	if err != nil {
		return nil, err
	}
	return &App{
		config: c,
		api:    evgrpc.NewClient(cc),
		health: healthpb.NewHealthClient(cc),
		conn:   cc,
		out:    os.Stdout,
		cwd:    "/",
	}, nil
}

// Run starts the health watcher and the REPL on stdin.
func (a *App) Run(ctx context.Context) error {
	ctx, cancel := context.WithCancel(ctx)
	defer cancel()

	go a.StartOnlineStatusWatcher(ctx, a.config.OnlineCheckInterval)

	log.Println("Evidence CLI (type 'help' for commands)")
	a.runREPL(ctx, os.Stdin)
	return a.conn.Close()
}

func (a *App) Mode() Mode {
	a.mu.Lock()
	defer a.mu.Unlock()
	return a.mode
}

func (a *App) setMode(mode Mode) {
	a.mu.Lock()
	defer a.mu.Unlock()
	if a.mode != mode {
		a.mode = mode
		log.Printf("Switched to %s mode\n", mode)
	}
}

// StartOnlineStatusWatcher probes the server health every interval until
// ctx is done.
func (a *App) StartOnlineStatusWatcher(ctx context.Context, interval time.Duration) {
	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	for {
		select {
		case <-ticker.C:
			a.checkOnline(ctx)
		case <-ctx.Done():
			return
		}
	}
}

func (a *App) checkOnline(ctx context.Context) {
	ctx, cancel := context.WithTimeout(ctx, 3*time.Second)
	defer cancel()

	resp, err := a.health.Check(ctx, &healthpb.HealthCheckRequest{Service: evgrpc.ServiceName})
	if err != nil || resp.GetStatus() != healthpb.HealthCheckResponse_SERVING {
		a.setMode(ModeOffline)
		return
	}
	a.setMode(ModeOnline)
}
