// Copyright (c) HashiCorp, Inc
// SPDX-License-Identifier: MPL-2.0

// Command bench drives a fixed request rate of Push (or Push/PopWithAck/
// Acknowledge) calls against an in-memory Queue and reports latency
// percentiles, the load-generator replacement for the teacher's
// StoreLogs/GetLogs append-vs-bolt comparison in the old bench package.
package main

import (
	"context"
	"flag"
	"fmt"
	"log"
	"os"
	"time"

	"github.com/benmathews/bench"
	hdrhistogram_writer "github.com/benmathews/hdrhistogram-writer"
	"github.com/queuekit/pqactor/store"

	pqactor "github.com/queuekit/pqactor"
	"github.com/queuekit/pqactor/types"
)

var (
	requestRate = flag.Int("rate", 1000, "requests per second")
	duration    = flag.Duration("duration", 10*time.Second, "benchmark duration")
	conns       = flag.Int("conns", 4, "number of concurrent requesters (each its own actor id)")
	mix         = flag.String("mix", "push", "operation to drive: push, popack")
	outFile     = flag.String("out", "bench-latency.hgrm", "hdrhistogram distribution output file")
)

func main() {
	flag.Parse()

	factory := &queueRequesterFactory{op: *mix}
	b := bench.NewBenchmark(factory, uint64(*requestRate), *duration, uint64(*conns))
	summary, err := b.Run()
	if err != nil {
		log.Fatalf("benchmark run: %v", err)
	}

	f, err := os.Create(*outFile)
	if err != nil {
		log.Fatalf("create distribution file: %v", err)
	}
	defer f.Close()
	if err := hdrhistogram_writer.WriteDistributionFile(summary.Latencies(), nil, 1.0, *outFile); err != nil {
		log.Fatalf("write distribution file: %v", err)
	}
	fmt.Printf("p50=%dus p95=%dus p99=%dus max=%dus\n",
		summary.Latencies().ValueAtQuantile(50),
		summary.Latencies().ValueAtQuantile(95),
		summary.Latencies().ValueAtQuantile(99),
		summary.Latencies().Max(),
	)
}

// queueRequesterFactory hands each worker its own actor id, matching the
// one-Queue-per-actor activation model (spec.md §5); workers never share a
// Queue so there is nothing to serialize across them.
type queueRequesterFactory struct {
	op string
}

func (f *queueRequesterFactory) GetRequester(number uint64) bench.Requester {
	return &queueRequester{actorID: fmt.Sprintf("bench-actor-%d", number), op: f.op}
}

type queueRequester struct {
	actorID string
	op      string
	queue   *pqactor.Queue
	seq     int
}

func (r *queueRequester) Setup() error {
	q, err := pqactor.Open(context.Background(), r.actorID, store.NewMemory(), store.NewMemory())
	if err != nil {
		return fmt.Errorf("setup %s: %w", r.actorID, err)
	}
	r.queue = q
	return nil
}

func (r *queueRequester) Request() error {
	ctx := context.Background()
	r.seq++
	switch r.op {
	case "popack":
		if err := r.queue.Push(ctx, types.Item(fmt.Sprintf("payload-%d", r.seq)), 0); err != nil {
			return err
		}
		res, err := r.queue.PopWithAck(ctx, 30)
		if err != nil {
			return err
		}
		if res.Locked && res.LockID != "" {
			if _, err := r.queue.Acknowledge(ctx, res.LockID); err != nil {
				return err
			}
		}
		return nil
	default:
		return r.queue.Push(ctx, types.Item(fmt.Sprintf("payload-%d", r.seq)), types.Priority(r.seq%8))
	}
}

func (r *queueRequester) Teardown() error {
	return r.queue.Close()
}
