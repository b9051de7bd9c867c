package webhook

// ticksPerSecond converts Jellyfin's 100-nanosecond tick counters to
// seconds.
const ticksPerSecond = 10_000_000

// Progress is the watched-duration slice computed from a payload's tick
// counters. CompletionPercent is nil when the payload carries no runtime.
type Progress struct {
	WatchedSeconds    *int
	TotalSeconds      *int
	CompletionPercent *float64
}

// ComputeProgress converts tick counters into seconds and a 0-100
// completion percentage.
func ComputeProgress(p *Payload) Progress {
	var out Progress

	if p.PlaybackPositionTicks != nil {
		w := int(*p.PlaybackPositionTicks / ticksPerSecond)
		out.WatchedSeconds = &w
	}
	if p.RunTimeTicks != nil {
		t := int(*p.RunTimeTicks / ticksPerSecond)
		out.TotalSeconds = &t
	}

	if out.WatchedSeconds != nil && out.TotalSeconds != nil && *out.TotalSeconds > 0 {
		pct := float64(*out.WatchedSeconds) / float64(*out.TotalSeconds) * 100
		if pct < 0 {
			pct = 0
		}
		if pct > 100 {
			pct = 100
		}
		out.CompletionPercent = &pct
	}
	return out
}
