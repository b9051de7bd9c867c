package webhook

import "testing"

func int64Ptr(v int64) *int64 { return &v }

func TestComputeProgress(t *testing.T) {
	p := &Payload{
		PlaybackPositionTicks: int64Ptr(16_200_000_000), // 1620s
		RunTimeTicks:          int64Ptr(14_400_000_000), // 1440s
	}

	got := ComputeProgress(p)
	if got.WatchedSeconds == nil || *got.WatchedSeconds != 1620 {
		t.Fatalf("watched seconds: got %v, want 1620", got.WatchedSeconds)
	}
	if got.TotalSeconds == nil || *got.TotalSeconds != 1440 {
		t.Fatalf("total seconds: got %v, want 1440", got.TotalSeconds)
	}
	// Position past the runtime clamps to 100.
	if got.CompletionPercent == nil || *got.CompletionPercent != 100.0 {
		t.Fatalf("completion: got %v, want 100.0", got.CompletionPercent)
	}
}

func TestComputeProgressPartial(t *testing.T) {
	p := &Payload{
		PlaybackPositionTicks: int64Ptr(7_200_000_000),  // 720s
		RunTimeTicks:          int64Ptr(14_400_000_000), // 1440s
	}
	got := ComputeProgress(p)
	if got.CompletionPercent == nil || *got.CompletionPercent != 50.0 {
		t.Fatalf("completion: got %v, want 50.0", got.CompletionPercent)
	}
}

func TestComputeProgressNoRuntime(t *testing.T) {
	p := &Payload{PlaybackPositionTicks: int64Ptr(7_200_000_000)}
	got := ComputeProgress(p)
	if got.WatchedSeconds == nil || *got.WatchedSeconds != 720 {
		t.Fatalf("watched seconds: got %v", got.WatchedSeconds)
	}
	if got.CompletionPercent != nil {
		t.Fatalf("completion must be nil without runtime, got %v", *got.CompletionPercent)
	}

	// Zero runtime also yields no percentage.
	p = &Payload{
		PlaybackPositionTicks: int64Ptr(100),
		RunTimeTicks:          int64Ptr(0),
	}
	if got := ComputeProgress(p); got.CompletionPercent != nil {
		t.Fatalf("completion must be nil for zero runtime, got %v", *got.CompletionPercent)
	}
}

func TestComputeProgressEmptyPayload(t *testing.T) {
	got := ComputeProgress(&Payload{})
	if got.WatchedSeconds != nil || got.TotalSeconds != nil || got.CompletionPercent != nil {
		t.Fatalf("expected all nil for empty payload, got %+v", got)
	}
}
