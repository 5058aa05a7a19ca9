// Package grpc serves the Evidence request API over gRPC with a JSON codec.
package grpc

import (
	"context"
	"net"
	"time"

	"github.com/dmitrijs2005/evidencekeeper/internal/logging"
	"github.com/dmitrijs2005/evidencekeeper/internal/server/catalog"
	"github.com/dmitrijs2005/evidencekeeper/internal/server/models"
	"google.golang.org/grpc"
	"google.golang.org/grpc/health"
	healthpb "google.golang.org/grpc/health/grpc_health_v1"
)

type catalogSvc interface {
	ListPage(ctx context.Context, owner models.Owner, path, pageToken string, limit int) (*catalog.Page, error)
	ListByCreation(ctx context.Context, owner models.Owner, pageToken string, limit int) (*catalog.Page, error)
	Describe(ctx context.Context, owner models.Owner, id string) (*models.Node, error)
	RegisterExecution(ctx context.Context, e *models.Execution) (*models.Execution, error)
}

type associationSvc interface {
	Associate(ctx context.Context, vaultID string, fileIDs, caseIDs []string) (int, error)
	Disassociate(ctx context.Context, vaultID, fileID string, caseIDs []string) (int, error)
}

type downloadSvc interface {
	DownloadURL(ctx context.Context, owner models.Owner, fileID string) (string, error)
}

type eventPublisher interface {
	PublishPartCompleted(ctx context.Context, ev models.PartCompleted) error
	PublishObjectCreated(ctx context.Context, ev models.ObjectCreated) error
}

// Services are the backends the API delegates to.
type Services struct {
	Catalog      catalogSvc
	Associations associationSvc
	Downloads    downloadSvc
	Events       eventPublisher
}

type GRPCServer struct {
	address        string
	svc            Services
	logger         logging.Logger
	requestTimeout time.Duration
}

var _ EvidenceServer = (*GRPCServer)(nil)

func NewGRPCServer(address string, l logging.Logger, svc Services, requestTimeout time.Duration) *GRPCServer {
	return &GRPCServer{
		address:        address,
		logger:         l.With("module", "grpc_server"),
		svc:            svc,
		requestTimeout: requestTimeout,
	}
}

func (s *GRPCServer) newServer() *grpc.Server {
	srv := grpc.NewServer(grpc.ChainUnaryInterceptor(
		s.loggingInterceptor,
		errorInterceptor,
		timeoutInterceptor(s.requestTimeout),
	))
	RegisterEvidenceServer(srv, s)

	hs := health.NewServer()
	hs.SetServingStatus(ServiceName, healthpb.HealthCheckResponse_SERVING)
	healthpb.RegisterHealthServer(srv, hs)
	return srv
}

// Run listens on the configured address and serves until ctx is canceled.
func (s *GRPCServer) Run(ctx context.Context) error {
	listen, err := net.Listen("tcp", s.address)
	if err != nil {
		return err
	}
	return s.Serve(ctx, listen)
}

// Serve accepts connections on lis until ctx is canceled, then stops
// gracefully.
func (s *GRPCServer) Serve(ctx context.Context, lis net.Listener) error {
	srv := s.newServer()

	go func() {
		<-ctx.Done()
		s.logger.Info(ctx, "Stopping gRPC server...")
		srv.GracefulStop()
	}()

	s.logger.Info(ctx, "Starting gRPC server", "address", lis.Addr().String())
	return srv.Serve(lis)
}
