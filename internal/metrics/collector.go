package metrics

import (
	"github.com/prometheus/client_golang/prometheus"

	"github.com/kineintra/kineintra/internal/client"
)

// ClientCollector exposes a client's counters at scrape time.
type ClientCollector struct {
	stats func() client.Statistics

	framesSent       *prometheus.Desc
	framesReceived   *prometheus.Desc
	crcErrors        *prometheus.Desc
	bytesSent        *prometheus.Desc
	bytesReceived    *prometheus.Desc
	discardedBytes   *prometheus.Desc
	stallResets      *prometheus.Desc
	callbackErrors   *prometheus.Desc
	decodeErrors     *prometheus.Desc
	droppedEvents    *prometheus.Desc
	droppedCallbacks *prometheus.Desc
}

var _ prometheus.Collector = (*ClientCollector)(nil)

// NewClientCollector returns a collector reading stats on every scrape.
// target labels every series.
func NewClientCollector(target string, stats func() client.Statistics) *ClientCollector {
	desc := func(name, help string) *prometheus.Desc {
		return prometheus.NewDesc(
			prometheus.BuildFQName(namespace, "link", name),
			help, nil, prometheus.Labels{"target": target},
		)
	}
	return &ClientCollector{
		stats:            stats,
		framesSent:       desc("frames_sent_total", "Frames written to the device."),
		framesReceived:   desc("frames_received_total", "Frames reassembled from the device, valid or not."),
		crcErrors:        desc("crc_errors_total", "Frames that failed the CRC check."),
		bytesSent:        desc("bytes_sent_total", "Bytes written to the device."),
		bytesReceived:    desc("bytes_received_total", "Bytes read from the device."),
		discardedBytes:   desc("discarded_bytes_total", "Bytes skipped while resynchronizing."),
		stallResets:      desc("stall_resets_total", "Partial frames abandoned after a stall."),
		callbackErrors:   desc("callback_errors_total", "Recovered frame callback panics."),
		decodeErrors:     desc("decode_errors_total", "Valid frames whose payload could not be decoded."),
		droppedEvents:    desc("dropped_events_total", "Events discarded from the full poll queue."),
		droppedCallbacks: desc("dropped_callbacks_total", "Events not delivered to callbacks because the client disconnected first."),
	}
}

func (c *ClientCollector) Describe(ch chan<- *prometheus.Desc) {
	ch <- c.framesSent
	ch <- c.framesReceived
	ch <- c.crcErrors
	ch <- c.bytesSent
	ch <- c.bytesReceived
	ch <- c.discardedBytes
	ch <- c.stallResets
	ch <- c.callbackErrors
	ch <- c.decodeErrors
	ch <- c.droppedEvents
	ch <- c.droppedCallbacks
}

func (c *ClientCollector) Collect(ch chan<- prometheus.Metric) {
	s := c.stats()
	counter := func(d *prometheus.Desc, v uint64) {
		ch <- prometheus.MustNewConstMetric(d, prometheus.CounterValue, float64(v))
	}
	counter(c.framesSent, s.FramesSent)
	counter(c.framesReceived, s.FramesReceived)
	counter(c.crcErrors, s.CRCErrors)
	counter(c.bytesSent, s.BytesSent)
	counter(c.bytesReceived, s.BytesReceived)
	counter(c.discardedBytes, s.DiscardedBytes)
	counter(c.stallResets, s.StallResets)
	counter(c.callbackErrors, s.CallbackErrors)
	counter(c.decodeErrors, s.DecodeErrors)
	counter(c.droppedEvents, s.DroppedEvents)
	counter(c.droppedCallbacks, s.DroppedCallbacks)
}
