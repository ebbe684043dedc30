package metrics

import "github.com/prometheus/client_golang/prometheus"

// DBPoolStatFunc returns database pool statistics without importing pgxpool.
type DBPoolStatFunc func() (total, idle, acquired int32)

// dbPoolCollector exposes pool connection counts as gauges, read on scrape.
type dbPoolCollector struct {
	statFunc DBPoolStatFunc
	descs    [3]*prometheus.Desc
}

// NewDBPoolCollector creates a collector for the pool behind statFunc.
func NewDBPoolCollector(statFunc DBPoolStatFunc) prometheus.Collector {
	desc := func(name, help string) *prometheus.Desc {
		return prometheus.NewDesc("taskforge_db_pool_"+name, help, nil, nil)
	}
	return &dbPoolCollector{
		statFunc: statFunc,
		descs: [3]*prometheus.Desc{
			desc("total_conns", "Total number of connections in the DB pool."),
			desc("idle_conns", "Number of idle connections in the DB pool."),
			desc("acquired_conns", "Number of acquired connections in the DB pool."),
		},
	}
}

func (c *dbPoolCollector) Describe(ch chan<- *prometheus.Desc) {
	for _, d := range c.descs {
		ch <- d
	}
}

func (c *dbPoolCollector) Collect(ch chan<- prometheus.Metric) {
	total, idle, acquired := c.statFunc()
	for i, v := range []int32{total, idle, acquired} {
		ch <- prometheus.MustNewConstMetric(c.descs[i], prometheus.GaugeValue, float64(v))
	}
}
