// Package metrics exports channel statistics to Prometheus.
package metrics

import (
	"sync"

	"github.com/adalundhe/rendezvous/core/channel"
	"github.com/prometheus/client_golang/prometheus"
)

// StatsSource is anything reporting channel statistics, typically a
// *channel.Channel.
type StatsSource interface {
	Stats() channel.Stats
}

// Collector is a prometheus.Collector reporting every registered channel,
// labelled by channel name.
type Collector struct {
	mu      sync.RWMutex
	sources map[string]StatsSource

	capacity      *prometheus.Desc
	buffered      *prometheus.Desc
	pendingReads  *prometheus.Desc
	pendingWrites *prometheus.Desc
	written       *prometheus.Desc
	read          *prometheus.Desc
	settled       *prometheus.Desc
	doneWriting   *prometheus.Desc
}

// NewCollector creates an empty collector. Metric names are prefixed with
// namespace.
func NewCollector(namespace string) *Collector {
	labels := []string{"channel"}
	desc := func(name, help string) *prometheus.Desc {
		return prometheus.NewDesc(prometheus.BuildFQName(namespace, "channel", name), help, labels, nil)
	}

	return &Collector{
		sources:       make(map[string]StatsSource),
		capacity:      desc("capacity", "Configured channel capacity."),
		buffered:      desc("buffered", "Admitted values waiting for a reader."),
		pendingReads:  desc("pending_reads", "Registered readers."),
		pendingWrites: desc("pending_writes", "Buffered values plus writers waiting for a slot."),
		written:       desc("written_total", "Values admitted into the channel."),
		read:          desc("read_total", "Values handed to readers."),
		settled:       desc("settled_total", "Writes settled by a close."),
		doneWriting:   desc("done_writing", "1 once the channel is closed for writing."),
	}
}

// Register adds src under its current name, replacing any source with the
// same name.
func (c *Collector) Register(src StatsSource) {
	name := src.Stats().Name
	c.mu.Lock()
	c.sources[name] = src
	c.mu.Unlock()
}

// Unregister removes the source registered under name.
func (c *Collector) Unregister(name string) {
	c.mu.Lock()
	delete(c.sources, name)
	c.mu.Unlock()
}

// Describe implements prometheus.Collector.
func (c *Collector) Describe(ch chan<- *prometheus.Desc) {
	ch <- c.capacity
	ch <- c.buffered
	ch <- c.pendingReads
	ch <- c.pendingWrites
	ch <- c.written
	ch <- c.read
	ch <- c.settled
	ch <- c.doneWriting
}

// Collect implements prometheus.Collector.
func (c *Collector) Collect(ch chan<- prometheus.Metric) {
	c.mu.RLock()
	sources := make([]StatsSource, 0, len(c.sources))
	for _, src := range c.sources {
		sources = append(sources, src)
	}
	c.mu.RUnlock()

	for _, src := range sources {
		s := src.Stats()
		gauge := func(d *prometheus.Desc, v float64) {
			ch <- prometheus.MustNewConstMetric(d, prometheus.GaugeValue, v, s.Name)
		}
		counter := func(d *prometheus.Desc, v int64) {
			ch <- prometheus.MustNewConstMetric(d, prometheus.CounterValue, float64(v), s.Name)
		}

		gauge(c.capacity, float64(s.Capacity))
		gauge(c.buffered, float64(s.Buffered))
		gauge(c.pendingReads, float64(s.PendingReads))
		gauge(c.pendingWrites, float64(s.PendingWrites))
		counter(c.written, s.Written)
		counter(c.read, s.Read)
		counter(c.settled, s.Settled)
		if s.DoneWriting {
			gauge(c.doneWriting, 1)
		} else {
			gauge(c.doneWriting, 0)
		}
	}
}
