package sink

import (
	"sync/atomic"
	"time"

	"github.com/pkg/errors"
	"github.com/prometheus/client_golang/prometheus"
)

// ObservableSinkOptions 观测装饰器配置
type ObservableSinkOptions struct {
	// Name 指标名前缀
	Name string `cfg:"name" def:"pgdump_sink"`
	// Registerer 指标注册器，为空时使用 prometheus.DefaultRegisterer
	Registerer prometheus.Registerer `cfg:"-"`
}

// ObservableMetrics 输出相关的 prometheus 指标
type ObservableMetrics struct {
	bytesTotal    prometheus.Counter
	writesTotal   *prometheus.CounterVec
	writeDuration prometheus.Histogram
}

// NewObservableMetrics 创建并注册指标
func NewObservableMetrics(name string, registerer prometheus.Registerer) (*ObservableMetrics, error) {
	metrics := &ObservableMetrics{
		bytesTotal: prometheus.NewCounter(prometheus.CounterOpts{
			Name: name + "_bytes_total",
			Help: "Total number of bytes written to the sink",
		}),
		writesTotal: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: name + "_writes_total",
				Help: "Total number of sink writes",
			},
			[]string{"status"},
		),
		writeDuration: prometheus.NewHistogram(prometheus.HistogramOpts{
			Name:    name + "_write_duration_seconds",
			Help:    "Duration of sink writes in seconds",
			Buckets: []float64{0.00001, 0.0001, 0.001, 0.01, 0.1, 1.0},
		}),
	}

	if registerer == nil {
		registerer = prometheus.DefaultRegisterer
	}
	for _, c := range []prometheus.Collector{metrics.bytesTotal, metrics.writesTotal, metrics.writeDuration} {
		if err := registerer.Register(c); err != nil {
			return nil, errors.Wrap(err, "register metrics failed")
		}
	}
	return metrics, nil
}

// ObservableSink 装饰器，为任何 Sink 记录写入字节数、次数与耗时
type ObservableSink struct {
	sink    Sink
	metrics *ObservableMetrics
	written atomic.Uint64
}

// NewObservableSinkWithOptions 包装一个已创建的 Sink
func NewObservableSinkWithOptions(s Sink, options *ObservableSinkOptions) (*ObservableSink, error) {
	if s == nil {
		return nil, errors.New("sink is nil")
	}
	if options == nil {
		options = &ObservableSinkOptions{}
	}
	name := options.Name
	if name == "" {
		name = "pgdump_sink"
	}

	metrics, err := NewObservableMetrics(name, options.Registerer)
	if err != nil {
		return nil, errors.WithMessage(err, "NewObservableMetrics failed")
	}
	return &ObservableSink{sink: s, metrics: metrics}, nil
}

func (o *ObservableSink) Write(p []byte) (int, error) {
	start := time.Now()
	n, err := o.sink.Write(p)
	o.metrics.writeDuration.Observe(time.Since(start).Seconds())
	o.metrics.bytesTotal.Add(float64(n))
	o.written.Add(uint64(n))

	status := "success"
	if err != nil {
		status = "error"
	}
	o.metrics.writesTotal.WithLabelValues(status).Inc()
	return n, err
}

func (o *ObservableSink) Close() error {
	return o.sink.Close()
}

// BytesWritten 返回已写入的未压缩字节数
func (o *ObservableSink) BytesWritten() uint64 {
	return o.written.Load()
}
