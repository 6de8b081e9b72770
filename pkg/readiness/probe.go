package readiness

import (
	"context"
	"fmt"
	"io"
	"net"
	"net/http"
	"os/exec"

	"google.golang.org/grpc"
	"google.golang.org/grpc/credentials/insecure"
	healthpb "google.golang.org/grpc/health/grpc_health_v1"
)

// Probe performs a single readiness check. A nil error means ready.
type Probe interface {
	Check(ctx context.Context) error
}

// NewProbe builds the probe for a validated gate
func NewProbe(gate Gate) (Probe, error) {
	if err := gate.Validate(); err != nil {
		return nil, err
	}
	switch gate.Type {
	case GateTypeTCP:
		return &tcpProbe{address: gate.Address}, nil
	case GateTypeHTTP:
		return &httpProbe{url: gate.URL, client: &http.Client{}}, nil
	case GateTypeGRPC:
		return &grpcProbe{address: gate.Address, service: gate.Service}, nil
	default:
		return &execProbe{command: gate.Command}, nil
	}
}

type tcpProbe struct {
	address string
}

func (p *tcpProbe) Check(ctx context.Context) error {
	var dialer net.Dialer
	conn, err := dialer.DialContext(ctx, "tcp", p.address)
	if err != nil {
		return fmt.Errorf("tcp connection failed: %w", err)
	}
	return conn.Close()
}

type httpProbe struct {
	url    string
	client *http.Client
}

func (p *httpProbe) Check(ctx context.Context) error {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, p.url, nil)
	if err != nil {
		return fmt.Errorf("failed to create http request: %w", err)
	}

	resp, err := p.client.Do(req)
	if err != nil {
		return fmt.Errorf("http request failed: %w", err)
	}
	defer resp.Body.Close()
	_, _ = io.Copy(io.Discard, resp.Body)

	if resp.StatusCode >= 200 && resp.StatusCode < 300 {
		return nil
	}
	return fmt.Errorf("http check failed: %s", resp.Status)
}

// grpcProbe speaks the standard grpc.health.v1 protocol
type grpcProbe struct {
	address string
	service string
}

func (p *grpcProbe) Check(ctx context.Context) error {
	conn, err := grpc.DialContext(ctx, p.address, grpc.WithTransportCredentials(insecure.NewCredentials()))
	if err != nil {
		return fmt.Errorf("grpc dial failed: %w", err)
	}
	defer conn.Close()

	resp, err := healthpb.NewHealthClient(conn).Check(ctx, &healthpb.HealthCheckRequest{Service: p.service})
	if err != nil {
		return fmt.Errorf("grpc health check failed: %w", err)
	}
	if resp.GetStatus() != healthpb.HealthCheckResponse_SERVING {
		return fmt.Errorf("grpc service %q is %s", p.service, resp.GetStatus())
	}
	return nil
}

type execProbe struct {
	command []string
}

func (p *execProbe) Check(ctx context.Context) error {
	cmd := exec.CommandContext(ctx, p.command[0], p.command[1:]...)
	output, err := cmd.CombinedOutput()
	if err != nil {
		return fmt.Errorf("exec check failed: %w, output: %s", err, output)
	}
	return nil
}
