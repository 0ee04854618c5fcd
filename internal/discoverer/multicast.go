// Package discoverer implements bootstrap.Bootstrap over UDP multicast,
// grounded in original_source/server/chord/discoverer.py: a node sends
// an ARE_YOU announcement to a well-known multicast group and collects
// YES_IM replies from whichever node currently believes itself leader.
// Unlike the static/route53/dns bootstrap modes there is no external
// directory to query, so this package also owns the listener side
// (ListenAndRespond) that answers other nodes' announcements whenever
// self is the leader.
package discoverer

import (
	"context"
	"fmt"
	"net"
	"strings"
	"time"

	"KoordeDHT/internal/config"
	"KoordeDHT/internal/domain"
	"KoordeDHT/internal/logger"
)

const (
	separator      = "|"
	areYou         = "ARE_YOU"
	yesIm          = "YES_IM"
	maxDatagramLen = 1024
)

// Discoverer bootstraps by multicast announcement. Register and
// Deregister are no-ops: there is no directory entry to maintain, only
// the announce/respond rendezvous.
type Discoverer struct {
	lgr logger.Logger

	group          string
	port           int
	announceWindow time.Duration

	self   func() domain.NodeRef
	leader func() domain.NodeRef
}

// New builds a Discoverer that announces on cfg's multicast group/port,
// identifying self via selfFn and deciding whether to answer
// announcements via leaderFn (self answers only while it believes
// itself the ring's leader).
func New(cfg config.MulticastConfig, selfFn, leaderFn func() domain.NodeRef, lgr logger.Logger) *Discoverer {
	if lgr == nil {
		lgr = &logger.NopLogger{}
	}
	window := cfg.AnnounceInterval
	if window <= 0 {
		window = 2 * time.Second
	}
	return &Discoverer{
		lgr:            lgr,
		group:          cfg.Group,
		port:           cfg.Port,
		announceWindow: window,
		self:           selfFn,
		leader:         leaderFn,
	}
}

func (d *Discoverer) groupAddr() *net.UDPAddr {
	return &net.UDPAddr{IP: net.ParseIP(d.group), Port: d.port}
}

// Discover sends one ARE_YOU announcement and collects the distinct
// leader addresses that reply YES_IM within the announce window
// (discoverer.py's send_announcement).
func (d *Discoverer) Discover(ctx context.Context) ([]string, error) {
	groupAddr := d.groupAddr()
	conn, err := net.ListenMulticastUDP("udp4", nil, groupAddr)
	if err != nil {
		return nil, fmt.Errorf("discoverer: join multicast group: %w", err)
	}
	defer conn.Close()

	self := d.self()
	msg := areYou + separator + self.ID.ToHexString(false)
	if _, err := conn.WriteToUDP([]byte(msg), groupAddr); err != nil {
		return nil, fmt.Errorf("discoverer: send announcement: %w", err)
	}

	deadline := time.Now().Add(d.announceWindow)
	if ctxDeadline, ok := ctx.Deadline(); ok && ctxDeadline.Before(deadline) {
		deadline = ctxDeadline
	}
	if err := conn.SetReadDeadline(deadline); err != nil {
		return nil, fmt.Errorf("discoverer: set read deadline: %w", err)
	}

	seen := make(map[string]struct{})
	var leaders []string
	buf := make([]byte, maxDatagramLen)
	for {
		n, _, err := conn.ReadFromUDP(buf)
		if err != nil {
			break
		}
		parts := strings.SplitN(string(buf[:n]), separator, 2)
		if len(parts) != 2 || parts[0] != yesIm {
			continue
		}
		leaderAddr := parts[1]
		if leaderAddr == self.Addr {
			continue
		}
		if _, ok := seen[leaderAddr]; ok {
			continue
		}
		seen[leaderAddr] = struct{}{}
		leaders = append(leaders, leaderAddr)
	}
	return leaders, nil
}

// Register is a no-op: multicast bootstrap has no directory entry.
func (d *Discoverer) Register(ctx context.Context, node domain.NodeRef) error { return nil }

// Deregister is a no-op: multicast bootstrap has no directory entry.
func (d *Discoverer) Deregister(ctx context.Context, node domain.NodeRef) error { return nil }

// ListenAndRespond joins the multicast group and answers ARE_YOU
// announcements with a YES_IM naming the current leader's address,
// but only while self is that leader (discoverer.py's
// listen_for_announcements). It blocks until ctx is cancelled.
func (d *Discoverer) ListenAndRespond(ctx context.Context) error {
	groupAddr := d.groupAddr()
	conn, err := net.ListenMulticastUDP("udp4", nil, groupAddr)
	if err != nil {
		return fmt.Errorf("discoverer: join multicast group: %w", err)
	}
	defer conn.Close()

	go func() {
		<-ctx.Done()
		conn.Close()
	}()

	buf := make([]byte, maxDatagramLen)
	for {
		n, _, err := conn.ReadFromUDP(buf)
		if err != nil {
			if ctx.Err() != nil {
				return nil
			}
			d.lgr.Warn("discoverer: read failed", logger.F("err", err))
			continue
		}

		parts := strings.SplitN(string(buf[:n]), separator, 2)
		if len(parts) != 2 || parts[0] != areYou {
			continue
		}

		self := d.self()
		if parts[1] == self.ID.ToHexString(false) {
			continue
		}
		leader := d.leader()
		if !leader.ID.Equal(self.ID) {
			continue
		}

		reply := yesIm + separator + leader.Addr
		if _, err := conn.WriteToUDP([]byte(reply), groupAddr); err != nil {
			d.lgr.Warn("discoverer: reply failed", logger.F("err", err))
		}
	}
}
