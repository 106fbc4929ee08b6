package pipeline

import (
	"sync"
	"time"
)

// Timings records how long each stage of one run took. Timings are
// observability data, not part of the correctness contract.
type Timings struct {
	Recognize  time.Duration // audio in -> transcript
	Safety     time.Duration // transcript -> safety verdict
	Memory     time.Duration // prefetch of the preference summary
	Generate   time.Duration // transcript -> reply text, incl. continuation
	FirstAudio time.Duration // run start -> first chunk ready
	Total      time.Duration // run start -> ProcessUtterance return
}

// timer measures stage durations for one run.
type timer struct {
	start time.Time
}

func startTimer() *timer {
	return &timer{start: time.Now()}
}

// stage returns a done func that stores the elapsed duration.
func (t *timer) stage(dst *time.Duration) func() {
	begin := time.Now()
	return func() { *dst = time.Since(begin) }
}

func (t *timer) sinceStart() time.Duration {
	return time.Since(t.start)
}

// Collector archives per-run timings and exposes rolling averages.
// Goroutine-safe.
type Collector struct {
	mu      sync.Mutex
	history []Timings
}

const collectorHistory = 100

// NewCollector creates an empty collector.
func NewCollector() *Collector {
	return &Collector{history: make([]Timings, 0, collectorHistory)}
}

// Record archives one run's timings.
func (c *Collector) Record(t Timings) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.history = append(c.history, t)
	if len(c.history) > collectorHistory {
		c.history = c.history[1:]
	}
}

// Runs returns the number of archived runs.
func (c *Collector) Runs() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return len(c.history)
}

// Average returns mean timings over the archived runs.
func (c *Collector) Average() Timings {
	c.mu.Lock()
	defer c.mu.Unlock()

	if len(c.history) == 0 {
		return Timings{}
	}

	var avg Timings
	for _, h := range c.history {
		avg.Recognize += h.Recognize
		avg.Safety += h.Safety
		avg.Memory += h.Memory
		avg.Generate += h.Generate
		avg.FirstAudio += h.FirstAudio
		avg.Total += h.Total
	}

	n := time.Duration(len(c.history))
	avg.Recognize /= n
	avg.Safety /= n
	avg.Memory /= n
	avg.Generate /= n
	avg.FirstAudio /= n
	avg.Total /= n
	return avg
}

// FormatLatency returns a compact latency line for logs and dashboards.
func (t Timings) FormatLatency() string {
	return formatDuration(t.Recognize) + " asr | " +
		formatDuration(t.Generate) + " llm | " +
		formatDuration(t.FirstAudio) + " first-audio | " +
		formatDuration(t.Total) + " total"
}

func formatDuration(d time.Duration) string {
	if d == 0 {
		return "---"
	}
	return d.Round(time.Millisecond).String()
}
