// Package metrics records conversion statistics as Prometheus metrics.
//
// A Collector registers its metrics on a caller-supplied registry, so runs
// and tests never share state through the default registerer. After a run
// the registry can be dumped in the text exposition format for the node
// exporter textfile collector.
//
// # Basic Usage
//
//	reg := prometheus.NewRegistry()
//	c := metrics.NewCollector(reg)
//
//	timer := metrics.NewTimer("encode")
//	encodeColumns(batch)
//	c.ObserveStage("encode", timer.Stop())
//
//	c.AddRows("pql", rows)
//	_ = metrics.WriteToTextfile("/var/lib/node_exporter/pql.prom", reg)
package metrics

import (
	"os"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/shirou/gopsutil/v3/process"
)

const namespace = "pql"

// Collector holds the metrics of conversion runs. A nil *Collector
// discards everything.
type Collector struct {
	rowsConverted  *prometheus.CounterVec
	rowsRepaired   *prometheus.CounterVec
	inputBytes     prometheus.Counter
	outputBytes    *prometheus.CounterVec
	chunksEncoded  *prometheus.CounterVec
	chunkBytes     *prometheus.CounterVec
	stageDuration  *prometheus.HistogramVec
	throughput     *prometheus.GaugeVec
	residentMemory prometheus.Gauge
	runs           *prometheus.CounterVec
}

// NewCollector creates the metrics and registers them on reg.
func NewCollector(reg prometheus.Registerer) *Collector {
	f := promauto.With(reg)
	return &Collector{
		rowsConverted: f.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "rows_converted_total",
			Help:      "Rows written to output files",
		}, []string{"format"}),
		rowsRepaired: f.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "rows_repaired_total",
			Help:      "Rows padded or truncated in lenient mode",
		}, []string{"kind"}),
		inputBytes: f.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "input_bytes_total",
			Help:      "Bytes of CSV read",
		}),
		outputBytes: f.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "output_bytes_total",
			Help:      "Bytes of output written",
		}, []string{"format"}),
		chunksEncoded: f.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "chunks_encoded_total",
			Help:      "Column chunks encoded",
		}, []string{"encoding", "codec"}),
		chunkBytes: f.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "chunk_bytes_total",
			Help:      "Stored bytes of encoded column chunks",
		}, []string{"encoding", "codec"}),
		stageDuration: f.NewHistogramVec(prometheus.HistogramOpts{
			Namespace: namespace,
			Name:      "stage_duration_seconds",
			Help:      "Time spent in each conversion stage",
			Buckets: []float64{
				0.001, // 1ms
				0.01,  // 10ms
				0.1,   // 100ms
				1,
				10,
				60,
			},
		}, []string{"stage"}),
		throughput: f.NewGaugeVec(prometheus.GaugeOpts{
			Namespace: namespace,
			Name:      "throughput_rows_per_second",
			Help:      "Rows per second of the last run",
		}, []string{"format"}),
		residentMemory: f.NewGauge(prometheus.GaugeOpts{
			Namespace: namespace,
			Name:      "resident_memory_bytes",
			Help:      "Resident set size sampled at the end of a run",
		}),
		runs: f.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "runs_total",
			Help:      "Conversion runs by outcome",
		}, []string{"status"}),
	}
}

// AddRows counts rows written in format.
func (c *Collector) AddRows(format string, n int) {
	if c == nil {
		return
	}
	c.rowsConverted.WithLabelValues(format).Add(float64(n))
}

// AddRepaired counts rows repaired in lenient mode; kind is "short" or "long".
func (c *Collector) AddRepaired(kind string, n int) {
	if c == nil || n == 0 {
		return
	}
	c.rowsRepaired.WithLabelValues(kind).Add(float64(n))
}

// AddInputBytes counts CSV bytes consumed.
func (c *Collector) AddInputBytes(n int64) {
	if c == nil {
		return
	}
	c.inputBytes.Add(float64(n))
}

// AddOutputBytes counts bytes written in format.
func (c *Collector) AddOutputBytes(format string, n int64) {
	if c == nil {
		return
	}
	c.outputBytes.WithLabelValues(format).Add(float64(n))
}

// ObserveChunk records one encoded chunk.
func (c *Collector) ObserveChunk(encoding, codec string, storedBytes uint64) {
	if c == nil {
		return
	}
	c.chunksEncoded.WithLabelValues(encoding, codec).Inc()
	c.chunkBytes.WithLabelValues(encoding, codec).Add(float64(storedBytes))
}

// ObserveStage records the duration of a stage.
func (c *Collector) ObserveStage(stage string, d time.Duration) {
	if c == nil {
		return
	}
	c.stageDuration.WithLabelValues(stage).Observe(d.Seconds())
}

// SetThroughput records rows per second over d.
func (c *Collector) SetThroughput(format string, rows int, d time.Duration) float64 {
	if c == nil || d <= 0 {
		return 0
	}
	tput := float64(rows) / d.Seconds()
	c.throughput.WithLabelValues(format).Set(tput)
	return tput
}

// RunFinished counts a run as succeeded or failed.
func (c *Collector) RunFinished(err error) {
	if c == nil {
		return
	}
	status := "success"
	if err != nil {
		status = "failure"
	}
	c.runs.WithLabelValues(status).Inc()
}

// SampleMemory records the resident set size of this process.
func (c *Collector) SampleMemory() (uint64, error) {
	if c == nil {
		return 0, nil
	}
	p, err := process.NewProcess(int32(os.Getpid()))
	if err != nil {
		return 0, err
	}
	info, err := p.MemoryInfo()
	if err != nil {
		return 0, err
	}
	c.residentMemory.Set(float64(info.RSS))
	return info.RSS, nil
}

// WriteToTextfile writes everything gathered by g to path in the text
// exposition format. The file is replaced atomically.
func WriteToTextfile(path string, g prometheus.Gatherer) error {
	return prometheus.WriteToTextfile(path, g)
}

// Timer measures the duration of an operation.
type Timer struct {
	start time.Time
	name  string
}

// NewTimer starts a timer.
func NewTimer(name string) *Timer {
	return &Timer{start: time.Now(), name: name}
}

// Name returns the timer name.
func (t *Timer) Name() string { return t.name }

// Stop returns the time elapsed since the timer started. It can be called
// more than once.
func (t *Timer) Stop() time.Duration {
	return time.Since(t.start)
}
