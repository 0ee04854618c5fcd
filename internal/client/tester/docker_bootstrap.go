package tester

import (
	"context"
	"fmt"
	"strings"

	"KoordeDHT/internal/domain"

	"github.com/docker/docker/api/types/container"
	"github.com/docker/docker/api/types/filters"
	"github.com/docker/docker/client"
)

// DockerBootstrap discovers nodes by container name suffix and network,
// using the Docker Engine API directly rather than shelling out to the
// docker CLI.
type DockerBootstrap struct {
	Suffix  string // e.g. "localtest-node"
	Port    int    // e.g. 4000
	Network string // e.g. "koorde-net"
}

// NewDockerBootstrap creates a Docker-based bootstrapper.
func NewDockerBootstrap(suffix string, port int, network string) *DockerBootstrap {
	return &DockerBootstrap{
		Suffix:  strings.TrimSpace(suffix),
		Port:    port,
		Network: strings.TrimSpace(network),
	}
}

// Discover returns the addresses of running containers whose name
// contains Suffix and that are attached to Network.
func (d *DockerBootstrap) Discover(ctx context.Context) ([]string, error) {
	cli, err := client.NewClientWithOpts(client.FromEnv, client.WithAPIVersionNegotiation())
	if err != nil {
		return nil, fmt.Errorf("docker client: %w", err)
	}
	defer cli.Close()

	f := filters.NewArgs()
	f.Add("name", d.Suffix)

	containers, err := cli.ContainerList(ctx, container.ListOptions{Filters: f})
	if err != nil {
		return nil, fmt.Errorf("container list failed: %w", err)
	}

	var addrs []string
	for _, c := range containers {
		if len(c.Names) == 0 {
			continue
		}
		name := strings.TrimPrefix(c.Names[0], "/")
		if !strings.Contains(name, d.Suffix) {
			continue
		}

		netInfo, ok := c.NetworkSettings.Networks[d.Network]
		if !ok || netInfo.IPAddress == "" {
			continue
		}

		// Use the container name (resolvable via Docker's embedded DNS
		// on a user-defined network) rather than the IP, matching how
		// nodes advertise themselves to each other.
		addrs = append(addrs, fmt.Sprintf("%s:%d", name, d.Port))
	}

	return addrs, nil
}

// Register and Deregister are no-ops: membership is derived by
// listing containers, there is no directory entry to maintain.
func (d *DockerBootstrap) Register(ctx context.Context, node domain.NodeRef) error   { return nil }
func (d *DockerBootstrap) Deregister(ctx context.Context, node domain.NodeRef) error { return nil }
