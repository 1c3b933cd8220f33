// Package metrics holds the process-wide counters of the driver.
package metrics

import (
	"fmt"
	"io"

	"github.com/VictoriaMetrics/metrics"
)

var (
	EnvironmentsCreated = metrics.NewCounter("ocisql_environments_created_total")
	ConnectionsOpened   = metrics.NewCounter("ocisql_connections_opened_total")
	ConnectionsClosed   = metrics.NewCounter("ocisql_connections_closed_total")
	AsyncConnects       = metrics.NewCounter("ocisql_async_connects_total")
	CursorsOpened       = metrics.NewCounter("ocisql_cursors_opened_total")
	CursorsClosed       = metrics.NewCounter("ocisql_cursors_closed_total")
	RowsFetched         = metrics.NewCounter("ocisql_rows_fetched_total")
	StatementsExecuted  = metrics.NewCounter("ocisql_statements_executed_total")
)

// NativeStatus counts a non-success native status by name.
func NativeStatus(name string) {
	metrics.GetOrCreateCounter(fmt.Sprintf(`ocisql_native_status_total{status=%q}`, name)).Inc()
}

// WritePrometheus writes every registered metric in Prometheus text format.
func WritePrometheus(w io.Writer) {
	metrics.WritePrometheus(w, true)
}
