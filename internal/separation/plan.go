package separation

// ChunkSpan describes one slice of the input in seconds. Interior chunks
// carry overlap on each side; HeadTrim and TailTrim record how much of that
// overlap to cut away again after separation so the stitched stems line up.
type ChunkSpan struct {
	Start    float64
	Duration float64
	HeadTrim float64
	TailTrim float64
}

// Plan splits duration into n spans of equal base length. Every span except
// the first extends overlap seconds earlier, and every span except the last
// extends overlap seconds later. Spans never reach outside [0, duration] and
// are floored at one millisecond.
func Plan(duration float64, n int, overlap float64) []ChunkSpan {
	if n < 1 {
		n = 1
	}
	base := duration / float64(n)
	plan := make([]ChunkSpan, 0, n)
	for i := 0; i < n; i++ {
		start := float64(i) * base
		end := float64(i+1) * base
		headTrim := 0.0
		tailTrim := 0.0
		if i > 0 {
			start -= overlap
			headTrim = overlap
		}
		if i < n-1 {
			end += overlap
			tailTrim = overlap
		}
		if start < 0 {
			start = 0
		}
		if end > duration {
			end = duration
		}
		length := end - start
		if length < 0.001 {
			length = 0.001
		}
		plan = append(plan, ChunkSpan{
			Start:    start,
			Duration: length,
			HeadTrim: headTrim,
			TailTrim: tailTrim,
		})
	}
	return plan
}
