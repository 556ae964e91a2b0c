package stats_test

import (
	"context"
	"encoding/csv"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/ai4os/papi/pkg/apitypes"
	"github.com/ai4os/papi/pkg/scheduler"
	"github.com/ai4os/papi/pkg/stats"
)

func TestAggregator_Snapshot_ProjectsNodeStatusAndVOUsage(t *testing.T) {
	f := scheduler.NewFake()
	f.PutNode(scheduler.Node{ID: "n1", Eligible: true, Status: "ready", Capacity: apitypes.Resources{CPUCores: 8, MemoryMB: 16000}})
	f.PutNode(scheduler.Node{ID: "n2", Eligible: true, Status: "down"})
	f.PutNode(scheduler.Node{ID: "n3", Eligible: false, Status: "ready"})
	f.PutJob(scheduler.Job{
		ID: "j1", Namespace: "ai4eosc", Owner: "alice",
		Allocations: []scheduler.Allocation{
			{ID: "a1", Status: scheduler.AllocRunning, CreateTime: time.Unix(100, 0), Resources: apitypes.Resources{CPUCores: 2, MemoryMB: 2000}},
		},
	})

	a := stats.New(f, map[string]string{"ai4eosc.eu": "ai4eosc"})
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	snap := a.Snapshot()
	if !snap.Stale {
		t.Fatalf("expected initial snapshot to be stale before first poll")
	}

	// Drive exactly one poll synchronously via Run by cancelling right
	// after the first tick would fire; instead, call the unexported path
	// indirectly by running Run in a goroutine and waiting briefly.
	done := make(chan error, 1)
	go func() { done <- a.Run(ctx) }()
	deadline := time.After(2 * time.Second)
	for {
		snap = a.Snapshot()
		if !snap.Stale {
			break
		}
		select {
		case <-deadline:
			t.Fatalf("aggregator never produced a fresh snapshot")
		case <-time.After(10 * time.Millisecond):
		}
	}
	cancel()
	<-done

	if len(snap.Nodes) != 3 {
		t.Fatalf("got %d nodes, want 3", len(snap.Nodes))
	}

	var gotReady, gotLost, gotIneligible int
	for _, n := range snap.Nodes {
		switch n.Status {
		case apitypes.NodeReady:
			gotReady++
		case apitypes.NodeLost:
			gotLost++
		case apitypes.NodeIneligible:
			gotIneligible++
		}
	}
	if gotReady != 1 || gotLost != 1 || gotIneligible != 1 {
		t.Fatalf("got ready=%d lost=%d ineligible=%d, want 1/1/1", gotReady, gotLost, gotIneligible)
	}

	usage := snap.ByVO["ai4eosc.eu"]
	if usage.Used.CPUCores != 2 || usage.Used.MemoryMB != 2000 {
		t.Fatalf("got usage %+v, want cpu=2 ram=2000", usage.Used)
	}

	// Spec §4.9 invariant (i): only ready, eligible nodes count toward
	// capacity. n2 is down and n3 is ineligible, so only n1's 8 CPUs /
	// 16000 MB should be reflected, not the sum of all three nodes.
	if usage.Capacity.CPUCores != 8 || usage.Capacity.MemoryMB != 16000 {
		t.Fatalf("got capacity %+v, want only n1's ready capacity (cpu=8 ram=16000)", usage.Capacity)
	}
}

func TestAggregator_ReallocatedIsACumulativeCounterAcrossPolls(t *testing.T) {
	f := scheduler.NewFake()
	f.PutNode(scheduler.Node{ID: "n1", Eligible: true, Status: "ready", Capacity: apitypes.Resources{CPUCores: 8}})
	f.PutJob(scheduler.Job{
		ID: "j1", Namespace: "ai4eosc", Owner: "alice",
		Allocations: []scheduler.Allocation{
			{ID: "a1", Status: scheduler.AllocRunning, CreateTime: time.Unix(100, 0)},
		},
	})

	a := stats.New(f, map[string]string{"ai4eosc.eu": "ai4eosc"})
	ctx := context.Background()

	a.Poll(ctx)
	if got := a.Snapshot().ByVO["ai4eosc.eu"].Reallocated; got != 0 {
		t.Fatalf("first poll just seeds the baseline: got reallocated=%d, want 0", got)
	}

	// The scheduler replaces a1 with a2: same job, a new allocation ID.
	f.PutJob(scheduler.Job{
		ID: "j1", Namespace: "ai4eosc", Owner: "alice",
		Allocations: []scheduler.Allocation{
			{ID: "a2", Status: scheduler.AllocRunning, CreateTime: time.Unix(200, 0)},
		},
	})
	a.Poll(ctx)
	if got := a.Snapshot().ByVO["ai4eosc.eu"].Reallocated; got != 1 {
		t.Fatalf("got reallocated=%d after one allocation replacement, want 1", got)
	}

	// Polling again with nothing changed must not double-count.
	a.Poll(ctx)
	if got := a.Snapshot().ByVO["ai4eosc.eu"].Reallocated; got != 1 {
		t.Fatalf("got reallocated=%d on an unchanged poll, want it to stay at 1", got)
	}

	// A second replacement adds one more, for a running total of 2.
	f.PutJob(scheduler.Job{
		ID: "j1", Namespace: "ai4eosc", Owner: "alice",
		Allocations: []scheduler.Allocation{
			{ID: "a3", Status: scheduler.AllocRunning, CreateTime: time.Unix(300, 0)},
		},
	})
	a.Poll(ctx)
	if got := a.Snapshot().ByVO["ai4eosc.eu"].Reallocated; got != 2 {
		t.Fatalf("got reallocated=%d after a second replacement, want 2", got)
	}
}

func writeCSV(t *testing.T, dir, name string, rows [][]string) {
	t.Helper()
	f, err := os.Create(filepath.Join(dir, name))
	if err != nil {
		t.Fatal(err)
	}
	defer f.Close()
	w := csv.NewWriter(f)
	w.Comma = ';'
	for _, r := range rows {
		if err := w.Write(r); err != nil {
			t.Fatal(err)
		}
	}
	w.Flush()
}

func TestHistoricalStore_LoadAndUserStats(t *testing.T) {
	dir := t.TempDir()
	summaries := filepath.Join(dir, "summaries")
	if err := os.Mkdir(summaries, 0o755); err != nil {
		t.Fatal(err)
	}

	writeCSV(t, summaries, "ai4eosc-full-agg.csv", [][]string{
		{"cpu_num", "ram"},
		{"42", "8000"},
	})
	writeCSV(t, summaries, "ai4eosc-timeseries.csv", [][]string{
		{"date", "cpu_num"},
		{"2020-01-01", "1"},
		{"2020-01-02", "2"},
	})
	writeCSV(t, summaries, "ai4eosc-users-agg.csv", [][]string{
		{"owner", "cpu_num"},
		{"alice", "10"},
		{"bob", "5"},
	})

	h := stats.NewHistoricalStore(dir)

	full, err := h.Load("ai4eosc")
	if err != nil {
		t.Fatalf("Load: %v", err)
	}
	if full.FullAgg["cpu_num"] != 42 || full.FullAgg["ram"] != 8000 {
		t.Fatalf("got full-agg %v", full.FullAgg)
	}
	if len(full.UsersAgg) != 2 {
		t.Fatalf("got %d user rows, want 2", len(full.UsersAgg))
	}

	userStats, err := h.UserStats("ai4eosc", "alice")
	if err != nil {
		t.Fatalf("UserStats: %v", err)
	}
	if len(userStats.UsersAgg) != 1 || userStats.UsersAgg[0]["owner"] != "alice" {
		t.Fatalf("got %v, want single alice row", userStats.UsersAgg)
	}

	missing, err := h.UserStats("ai4eosc", "nobody")
	if err != nil {
		t.Fatalf("UserStats(nobody): %v", err)
	}
	if missing.UsersAgg != nil {
		t.Fatalf("expected nil UsersAgg for a user with no recorded stats, got %v", missing.UsersAgg)
	}
}

func TestHistoricalStore_MissingFile(t *testing.T) {
	h := stats.NewHistoricalStore(t.TempDir())
	if _, err := h.Load("ai4eosc"); err == nil {
		t.Fatalf("expected an error for missing summary files")
	}
}
