package metrics

import (
	"context"
	"os"
	"time"

	influxdb2 "github.com/influxdata/influxdb-client-go/v2"
	"github.com/influxdata/influxdb-client-go/v2/api"
	"github.com/influxdata/influxdb-client-go/v2/api/write"
	"github.com/rs/zerolog"
)

// InfluxRecorder ships telemetry points to an InfluxDB bucket. Writes are
// best effort: a failed write is logged and dropped, never surfaced to the
// reconciler.
type InfluxRecorder struct {
	logger   zerolog.Logger
	client   influxdb2.Client
	writeAPI api.WriteAPIBlocking
	host     string
}

// NewInfluxRecorder connects to InfluxDB with an API token.
func NewInfluxRecorder(logger zerolog.Logger, url, token, org, bucket string) *InfluxRecorder {
	client := influxdb2.NewClient(url, token)
	host, _ := os.Hostname()
	return &InfluxRecorder{
		logger:   logger.With().Str("component", "influx-metrics").Logger(),
		client:   client,
		writeAPI: client.WriteAPIBlocking(org, bucket),
		host:     host,
	}
}

func (r *InfluxRecorder) write(point *write.Point) {
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if err := r.writeAPI.WritePoint(ctx, point); err != nil {
		r.logger.Warn().Err(err).Str("measurement", point.Name()).Msg("metric write failed")
	}
}

func (r *InfluxRecorder) RecordDeployment(app, status string, duration time.Duration) {
	r.write(influxdb2.NewPoint("deployment",
		map[string]string{"host": r.host, "app": app, "status": status},
		map[string]interface{}{"duration": duration.Seconds(), "count": 1},
		time.Now()))
}

func (r *InfluxRecorder) RecordGitOperation(operation, status string, duration time.Duration) {
	r.write(influxdb2.NewPoint("git_operation",
		map[string]string{"host": r.host, "operation": operation, "status": status},
		map[string]interface{}{"duration": duration.Seconds(), "count": 1},
		time.Now()))
}

func (r *InfluxRecorder) RecordHealthCheck(container, status string, duration time.Duration) {
	r.write(influxdb2.NewPoint("health_check",
		map[string]string{"host": r.host, "container": container, "status": status},
		map[string]interface{}{"duration": duration.Seconds(), "count": 1},
		time.Now()))
}

func (r *InfluxRecorder) SetActiveContainers(count int) {
	r.write(influxdb2.NewPoint("active_containers",
		map[string]string{"host": r.host},
		map[string]interface{}{"count": count},
		time.Now()))
}

// Close flushes and releases the underlying client.
func (r *InfluxRecorder) Close() {
	r.client.Close()
}
