package tester

import (
	"KoordeDHT/internal/bootstrap"
	"KoordeDHT/internal/client/tester/writer"
	"KoordeDHT/internal/clientrpc"
	"KoordeDHT/internal/domain"
	"KoordeDHT/internal/logger"
	"context"
	"encoding/hex"
	"errors"
	"fmt"
	"math/rand"
	"sync"
	"time"
)

type Tester struct {
	cfg     *Config
	logger  logger.Logger
	writer  writer.Writer
	boot    bootstrap.Bootstrap
	space   domain.Space
	started time.Time
}

// New create a new Tester instance
func New(cfg *Config, lgr logger.Logger, writer writer.Writer, boot bootstrap.Bootstrap, space domain.Space) *Tester {
	return &Tester{
		cfg:    cfg,
		logger: lgr,
		writer: writer,
		space:  space,
		boot:   boot,
	}
}

// Run starts the tester for the configured duration or until the context is cancelled
func (t *Tester) Run(ctx context.Context) error {
	t.logger.Info("Tester started", logger.F("duration", t.cfg.Simulation.Duration))
	t.started = time.Now()
	endTime := t.started.Add(t.cfg.Simulation.Duration)
	interval := time.Duration(float64(time.Second) / t.cfg.Query.Rate)

	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	for {
		now := time.Now()
		if now.After(endTime) {
			break
		}

		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-ticker.C:
			if err := t.runQueryWave(ctx); err != nil {
				t.logger.Error("query wave failed", logger.F("err", err))
			}
		}
	}

	t.logger.Info("Tester finished")
	return nil
}

// runQueryWave executes a wave of parallel PUT/GET/DELETE workloads
func (t *Tester) runQueryWave(ctx context.Context) error {
	nodes, err := t.boot.Discover(ctx)
	if err != nil {
		return fmt.Errorf("bootstrap discovery failed: %w", err)
	}
	if len(nodes) == 0 {
		t.logger.Warn("no nodes discovered")
		return nil
	}

	// choise a random number of parallel workers between min and max
	p := randomInt(t.cfg.Query.Parallelism.MinWorkers, t.cfg.Query.Parallelism.MaxWorkers)
	t.logger.Info("Starting query wave",
		logger.F("parallel", p),
		logger.F("nodes", len(nodes)),
	)

	var wg sync.WaitGroup
	wg.Add(p)

	for i := 0; i < p; i++ {
		go func() {
			defer wg.Done()
			select {
			case <-ctx.Done():
				return
			default:
				t.doWorkload(nodes)
			}
		}()
	}

	wg.Wait()
	return nil
}

// doWorkload puts a key on a random node, reads it back through a
// different node to exercise routing from a second entry point, then
// deletes it and confirms, through yet another entry node, that the
// key now reads as not found.
func (t *Tester) doWorkload(nodes []string) {
	key, err := t.generateRandomID()
	if err != nil {
		t.logger.Warn("failed to generate random key", logger.F("err", err))
		return
	}
	value := key // the value doubles as a self-check token

	putNode := nodes[rand.Intn(len(nodes))]
	if !t.put(putNode, key, value) {
		return
	}

	// Read through a node other than the one the write entered by; the
	// read is routed to the key's owner, so a successful read shows the
	// lookup resolves the same owner from a different starting point.
	getNode := putNode
	if len(nodes) > 1 {
		for getNode == putNode {
			getNode = nodes[rand.Intn(len(nodes))]
		}
	}
	t.get(getNode, key, value, "GET")

	delNode := nodes[rand.Intn(len(nodes))]
	if !t.delete(delNode, key) {
		return
	}

	// Re-read through a node other than the one that served the delete
	// to confirm the key now reads as not found.
	verifyNode := delNode
	if len(nodes) > 1 {
		for verifyNode == delNode {
			verifyNode = nodes[rand.Intn(len(nodes))]
		}
	}
	t.get(verifyNode, key, "", "VERIFY_DELETE")
}

func (t *Tester) put(node, key, value string) bool {
	ctx, cancel := context.WithTimeout(context.Background(), t.cfg.Query.Timeout)
	defer cancel()

	c, conn, err := clientrpc.Connect(node)
	if err != nil {
		t.logger.Warn("failed to connect to node", logger.F("node", node), logger.F("err", err))
		return false
	}
	defer conn.Close()

	delay, err := c.Put(ctx, key, value)
	t.report(node, key, "PUT", delay, err)
	return err == nil
}

func (t *Tester) get(node, key, want, label string) {
	ctx, cancel := context.WithTimeout(context.Background(), t.cfg.Query.Timeout)
	defer cancel()

	c, conn, err := clientrpc.Connect(node)
	if err != nil {
		t.logger.Warn("failed to connect to node", logger.F("node", node), logger.F("err", err))
		return
	}
	defer conn.Close()

	got, delay, err := c.Get(ctx, key)

	switch {
	case label == "VERIFY_DELETE" && errors.Is(err, clientrpc.ErrNotFound):
		t.write(node, key, label+"_SUCCESS", delay)
	case label == "VERIFY_DELETE" && err == nil:
		t.write(node, key, label+"_STALE_READ", delay)
	case err == nil && got == want:
		t.write(node, key, label+"_SUCCESS", delay)
	case err == nil:
		t.write(node, key, label+"_MISMATCH", delay)
	default:
		t.report(node, key, label, delay, err)
	}
}

func (t *Tester) delete(node, key string) bool {
	ctx, cancel := context.WithTimeout(context.Background(), t.cfg.Query.Timeout)
	defer cancel()

	c, conn, err := clientrpc.Connect(node)
	if err != nil {
		t.logger.Warn("failed to connect to node", logger.F("node", node), logger.F("err", err))
		return false
	}
	defer conn.Close()

	delay, err := c.Delete(ctx, key)
	t.report(node, key, "DELETE", delay, err)
	return err == nil
}

// report classifies a gRPC error into a result label and records it.
func (t *Tester) report(node, key, op string, delay time.Duration, err error) {
	var result string
	switch {
	case err == nil:
		result = op + "_SUCCESS"
	case errors.Is(err, clientrpc.ErrUnavailable):
		t.logger.Debug("node unavailable (skipping CSV)",
			logger.F("node", node), logger.F("key", key), logger.F("op", op), logger.F("err", err))
		return
	case errors.Is(err, clientrpc.ErrDeadlineExceeded):
		result = op + "_TIMEOUT"
	case errors.Is(err, clientrpc.ErrNotFound):
		result = op + "_NOT_FOUND"
	default:
		result = fmt.Sprintf("%s_ERROR_%v", op, err)
	}
	t.write(node, key, result, delay)
}

func (t *Tester) write(node, key, result string, delay time.Duration) {
	t.logger.Info("workload step result",
		logger.F("node", node),
		logger.F("key", key),
		logger.F("result", result),
		logger.F("delay_ms", delay.Milliseconds()),
	)
	if err := t.writer.WriteRow(node, result, delay); err != nil {
		t.logger.Warn("failed to write CSV row", logger.F("err", err))
	}
}

// randomInt returns a random integer between min and max (inclusive)
func randomInt(min, max int) int {
	if min >= max {
		return min
	}
	return rand.Intn(max-min+1) + min
}

// generateRandomID generates a random valid ID string using the domain.Space logic
func (t *Tester) generateRandomID() (string, error) {
	// create a random byte slice
	buf := make([]byte, 16)
	if _, err := rand.Read(buf); err != nil {
		return "", fmt.Errorf("failed to generate random input: %w", err)
	}
	randomStr := hex.EncodeToString(buf)

	// convert to ID using domain.Space
	id := t.space.NewIdFromString(randomStr)
	idString := id.ToHexString(true)
	return idString, nil
}
