package extract

import (
	"sync"
	"testing"
)

func TestRegistryRecordsRuns(t *testing.T) {
	r := NewRegistry()

	if st := r.State("mood"); len(st.RanAt) != 0 {
		t.Fatalf("fresh state RanAt = %v, want empty", st.RanAt)
	}

	r.RecordRun("mood", 1)
	r.RecordRun("mood", 3)
	r.RecordProduced("mood", 3)

	st := r.State("mood")
	if len(st.RanAt) != 2 || st.RanAt[0] != 1 || st.RanAt[1] != 3 {
		t.Errorf("RanAt = %v, want [1 3]", st.RanAt)
	}
	if len(st.ProducedAt) != 1 || st.ProducedAt[0] != 3 {
		t.Errorf("ProducedAt = %v, want [3]", st.ProducedAt)
	}

	if last, ok := st.LastRanAt(); !ok || last != 3 {
		t.Errorf("LastRanAt = %d,%v, want 3,true", last, ok)
	}
	if last, ok := st.LastProducedAt(); !ok || last != 3 {
		t.Errorf("LastProducedAt = %d,%v, want 3,true", last, ok)
	}
}

func TestRegistryStateIsACopy(t *testing.T) {
	r := NewRegistry()
	r.RecordRun("time", 1)

	st := r.State("time")
	st.RanAt[0] = 99
	st.RanAt = append(st.RanAt, 100)

	if got := r.State("time"); len(got.RanAt) != 1 || got.RanAt[0] != 1 {
		t.Errorf("registry state mutated through copy: %v", got.RanAt)
	}
}

func TestRegistryExtractorsIndependent(t *testing.T) {
	r := NewRegistry()
	r.RecordRun("time", 1)

	if st := r.State("location"); len(st.RanAt) != 0 {
		t.Errorf("location state = %v, want empty", st.RanAt)
	}
}

func TestRegistryReset(t *testing.T) {
	r := NewRegistry()
	r.RecordRun("time", 1)
	r.Reset()
	if st := r.State("time"); len(st.RanAt) != 0 {
		t.Errorf("state after Reset = %v, want empty", st.RanAt)
	}
}

func TestRegistryConcurrentRecords(t *testing.T) {
	r := NewRegistry()
	var wg sync.WaitGroup
	for i := 0; i < 20; i++ {
		wg.Add(1)
		go func(id int64) {
			defer wg.Done()
			r.RecordRun("mood", id)
			r.RecordProduced("mood", id)
			_ = r.State("mood")
		}(int64(i))
	}
	wg.Wait()

	st := r.State("mood")
	if len(st.RanAt) != 20 || len(st.ProducedAt) != 20 {
		t.Errorf("RanAt=%d ProducedAt=%d, want 20 each", len(st.RanAt), len(st.ProducedAt))
	}
}
