package quota_test

import (
	"context"
	"testing"

	"github.com/ai4os/papi/pkg/apitypes"
	"github.com/ai4os/papi/pkg/quota"
	"github.com/ai4os/papi/pkg/scheduler"
)

func baseCaps() map[string]apitypes.CapTable {
	return map[string]apitypes.CapTable{
		"ai4eosc.eu": {
			PerUser:    apitypes.Resources{CPUCores: 4, MemoryMB: 8000, DiskMB: 2000, GPUCount: 2},
			MaxDeploys: 3,
			GlobalGPU:  2,
		},
	}
}

func putJob(f *scheduler.Fake, ns, id, owner string, r apitypes.Resources) {
	f.PutJob(scheduler.Job{ID: id, Namespace: ns, Owner: owner, Requested: r})
}

func TestCheck_TheoryTable(t *testing.T) {
	type when struct {
		existing  []apitypes.Resources
		requested apitypes.Resources
	}
	type then struct {
		overflow apitypes.OverflowResource // "" means no overflow expected
	}

	theory := func(t *testing.T, name string, w when, th then) {
		t.Run(name, func(t *testing.T) {
			f := scheduler.NewFake()
			for i, r := range w.existing {
				putJob(f, "ai4eosc", string(rune('a'+i)), "alice", r)
			}
			l := quota.New(f, baseCaps())

			of, err := l.Check(context.Background(), "alice", "ai4eosc.eu", "ai4eosc", w.requested)
			if err != nil {
				t.Fatalf("unexpected error: %v", err)
			}
			if th.overflow == "" {
				if of != nil {
					t.Fatalf("got overflow %v, want none", of)
				}
				return
			}
			if of == nil {
				t.Fatalf("got no overflow, want %v", th.overflow)
			}
			if of.Resource != th.overflow {
				t.Fatalf("got overflow on %v, want %v", of.Resource, th.overflow)
			}
		})
	}

	theory(t, "well within caps", when{
		existing:  nil,
		requested: apitypes.Resources{CPUCores: 1, MemoryMB: 1000, DiskMB: 100},
	}, then{overflow: ""})

	theory(t, "exactly at cap passes", when{
		existing:  nil,
		requested: apitypes.Resources{CPUCores: 4, MemoryMB: 8000, DiskMB: 2000},
	}, then{overflow: ""})

	theory(t, "one over cpu cap fails", when{
		existing:  nil,
		requested: apitypes.Resources{CPUCores: 5},
	}, then{overflow: apitypes.OverflowCPU})

	theory(t, "gpu checked before cpu when both overflow", when{
		existing:  nil,
		requested: apitypes.Resources{CPUCores: 99, GPUCount: 99},
	}, then{overflow: apitypes.OverflowGPU})

	theory(t, "cpu checked before ram when both overflow", when{
		existing:  nil,
		requested: apitypes.Resources{CPUCores: 99, MemoryMB: 99999},
	}, then{overflow: apitypes.OverflowCPU})

	theory(t, "existing usage counts toward the cap", when{
		existing:  []apitypes.Resources{{CPUCores: 3}},
		requested: apitypes.Resources{CPUCores: 2},
	}, then{overflow: apitypes.OverflowCPU})

	theory(t, "deployment count cap", when{
		existing: []apitypes.Resources{
			{CPUCores: 1}, {CPUCores: 1}, {CPUCores: 1},
		},
		requested: apitypes.Resources{CPUCores: 1},
	}, then{overflow: apitypes.OverflowDeployments})
}

func TestCheck_Monotonicity(t *testing.T) {
	// spec §8 property 7: if a request passes, any componentwise-smaller
	// request must also pass.
	f := scheduler.NewFake()
	putJob(f, "ai4eosc", "a", "alice", apitypes.Resources{CPUCores: 2, MemoryMB: 2000})
	l := quota.New(f, baseCaps())

	big := apitypes.Resources{CPUCores: 2, MemoryMB: 4000, DiskMB: 1000, GPUCount: 1}
	of, err := l.Check(context.Background(), "alice", "ai4eosc.eu", "ai4eosc", big)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if of != nil {
		t.Fatalf("expected big request to pass, got overflow %v", of)
	}

	small := apitypes.Resources{CPUCores: 1, MemoryMB: 1000, DiskMB: 100, GPUCount: 0}
	if !small.LessOrEqual(big) {
		t.Fatalf("test setup bug: small is not <= big")
	}

	of, err = l.Check(context.Background(), "alice", "ai4eosc.eu", "ai4eosc", small)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if of != nil {
		t.Fatalf("monotonicity violated: smaller request overflowed on %v", of)
	}
}

func TestCheck_TutorialVOOverridesCapsDownward(t *testing.T) {
	f := scheduler.NewFake()
	caps := baseCaps()
	caps[quota.TutorialVO] = apitypes.CapTable{
		PerUser: apitypes.Resources{CPUCores: 4, MemoryMB: 8000, DiskMB: 2000, GPUCount: 2},
	}
	l := quota.New(f, caps)

	// The tutorial VO override caps GPUs at 0 regardless of configured caps.
	of, err := l.Check(context.Background(), "bob", quota.TutorialVO, "training", apitypes.Resources{GPUCount: 1})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if of == nil || of.Resource != apitypes.OverflowGPU {
		t.Fatalf("expected tutorial VO to forbid GPUs, got %v", of)
	}

	// 3 CPU cores is within the tutorial override's tightened cap of 4.
	of, err = l.Check(context.Background(), "bob", quota.TutorialVO, "training", apitypes.Resources{CPUCores: 3})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if of != nil {
		t.Fatalf("expected 3 cpu cores within tutorial cap, got overflow %v", of)
	}
}

func TestCheck_VOWideCapOverflowsEvenWhenUserIsUnderCap(t *testing.T) {
	f := scheduler.NewFake()
	putJob(f, "ai4eosc", "a", "bob", apitypes.Resources{CPUCores: 7})
	caps := baseCaps()
	c := caps["ai4eosc.eu"]
	c.PerVO = apitypes.Resources{CPUCores: 8}
	caps["ai4eosc.eu"] = c
	l := quota.New(f, caps)

	// alice herself is nowhere near her 4-core per-user cap, but bob's 7
	// cores plus alice's 2 would push the VO total to 9, over the 8-core
	// per-VO cap.
	of, err := l.Check(context.Background(), "alice", "ai4eosc.eu", "ai4eosc", apitypes.Resources{CPUCores: 2})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if of == nil || of.Resource != apitypes.OverflowCPU {
		t.Fatalf("expected VO-wide CPU overflow, got %v", of)
	}
}

func TestUsage_SumsLiveJobsOnly(t *testing.T) {
	f := scheduler.NewFake()
	putJob(f, "ai4eosc", "a", "alice", apitypes.Resources{CPUCores: 1, MemoryMB: 500})
	putJob(f, "ai4eosc", "b", "alice", apitypes.Resources{CPUCores: 2, MemoryMB: 1500})
	putJob(f, "ai4eosc", "c", "carol", apitypes.Resources{CPUCores: 8})

	l := quota.New(f, baseCaps())
	snap, err := l.Usage(context.Background(), "alice", "ai4eosc.eu", "ai4eosc")
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if snap.CPUCores != 3 || snap.MemoryMB != 2000 || snap.DeploymentCount != 2 {
		t.Fatalf("got %+v", snap)
	}
}
