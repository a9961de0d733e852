package logger

import (
	"context"
	"runtime"
	"strings"
	"sync"
	"sync/atomic"
	"time"

	"github.com/shirou/gopsutil/v3/cpu"
	"github.com/shirou/gopsutil/v3/disk"
	"github.com/shirou/gopsutil/v3/mem"
	gnet "github.com/shirou/gopsutil/v3/net"

	"github.com/aws/aws-sdk-go-v2/aws"
	cwtypes "github.com/aws/aws-sdk-go-v2/service/cloudwatch/types"
)

type channelStat struct {
	messages int64
	bytes    int64
}

var (
	errorsReader   int64
	errorsDetector int64
	warnsReader    int64
	warnsDetector  int64
	replayReads    int64
	backfillReads  int64
	resultWrites   int64
	channels       sync.Map // map[string]*channelStat
)

func recordWarn(component string) {
	if strings.Contains(component, "reader") || strings.Contains(component, "replay") {
		atomic.AddInt64(&warnsReader, 1)
	} else if strings.Contains(component, "detector") || strings.Contains(component, "scanner") {
		atomic.AddInt64(&warnsDetector, 1)
	}
}

func recordError(component string) {
	if strings.Contains(component, "reader") || strings.Contains(component, "replay") {
		atomic.AddInt64(&errorsReader, 1)
	} else if strings.Contains(component, "detector") || strings.Contains(component, "scanner") {
		atomic.AddInt64(&errorsDetector, 1)
	}
}

// IncrementReplayRead records one replayed message of the given payload size.
func IncrementReplayRead(size int) {
	atomic.AddInt64(&replayReads, 1)
	recordChannel("tardis_replay", size)
}

// IncrementBackfillRead records one message fetched via REST backfill.
func IncrementBackfillRead(size int) {
	atomic.AddInt64(&backfillReads, 1)
	recordChannel("binance_backfill", size)
}

// IncrementResultWrite records one result artifact written, e.g. a CSV or
// parquet file.
func IncrementResultWrite(size int64) {
	atomic.AddInt64(&resultWrites, 1)
	recordChannel("result_write", int(size))
}

func RecordChannelMessage(name string, size int) {
	recordChannel(name, size)
}

func recordChannel(name string, size int) {
	v, _ := channels.LoadOrStore(name, &channelStat{})
	cs := v.(*channelStat)
	atomic.AddInt64(&cs.messages, 1)
	atomic.AddInt64(&cs.bytes, int64(size))
}

func startReport(ctx context.Context, log *Log, interval time.Duration) {
	ticker := time.NewTicker(interval)
	go func() {
		for {
			select {
			case <-ctx.Done():
				ticker.Stop()
				return
			case <-ticker.C:
				logReport(ctx, log)
			}
		}
	}()
}

// StartReport begins periodic logging of system and channel statistics.
// It exposes the internal startReport function for use by other packages.
func StartReport(ctx context.Context, log *Log, interval time.Duration) {
	startReport(ctx, log, interval)
}

func logReport(ctx context.Context, log *Log) {
	cpuPercent, _ := cpu.Percent(0, false)
	memStats, _ := mem.VirtualMemory()
	diskStats, _ := disk.Usage("/")
	netStats, _ := gnet.IOCounters(false)
	channelData := map[string]map[string]int64{}
	channels.Range(func(k, v any) bool {
		name := k.(string)
		cs := v.(*channelStat)
		channelData[name] = map[string]int64{
			"messages": atomic.LoadInt64(&cs.messages),
			"bytes":    atomic.LoadInt64(&cs.bytes),
		}
		return true
	})

	cpuPct := 0.0
	if len(cpuPercent) > 0 {
		cpuPct = cpuPercent[0]
	}

	bytesSent := uint64(0)
	bytesRecv := uint64(0)
	if len(netStats) > 0 {
		bytesSent = netStats[0].BytesSent
		bytesRecv = netStats[0].BytesRecv
	}

	fields := Fields{
		"errors_reader":   atomic.LoadInt64(&errorsReader),
		"errors_detector": atomic.LoadInt64(&errorsDetector),
		"warns_reader":    atomic.LoadInt64(&warnsReader),
		"warns_detector":  atomic.LoadInt64(&warnsDetector),
		"replay_reads":    atomic.LoadInt64(&replayReads),
		"backfill_reads":  atomic.LoadInt64(&backfillReads),
		"result_writes":   atomic.LoadInt64(&resultWrites),
		"goroutines":      runtime.NumGoroutine(),
		"cpu_percent":     cpuPct,
		"memory_mb":       int64(memStats.Used) / 1024 / 1024,
		"disk_mb":         int64(diskStats.Used) / 1024 / 1024,
		"channels":        channelData,
		"net_bytes_sent":  int64(bytesSent),
		"net_bytes_recv":  int64(bytesRecv),
	}

	log.WithComponent("report").WithFields(fields).Info("runtime report")

	var data []cwtypes.MetricDatum
	data = append(data,
		cwtypes.MetricDatum{MetricName: aws.String("Arbiflow-CPUPercent"), Unit: cwtypes.StandardUnitPercent, Value: aws.Float64(cpuPct)},
		cwtypes.MetricDatum{MetricName: aws.String("Arbiflow-MemoryMB"), Unit: cwtypes.StandardUnitMegabytes, Value: aws.Float64(float64(memStats.Used) / 1024 / 1024)},
		cwtypes.MetricDatum{MetricName: aws.String("Arbiflow-DiskMB"), Unit: cwtypes.StandardUnitMegabytes, Value: aws.Float64(float64(diskStats.Used) / 1024 / 1024)},
		cwtypes.MetricDatum{MetricName: aws.String("Arbiflow-ErrorsReader"), Unit: cwtypes.StandardUnitCount, Value: aws.Float64(float64(fields["errors_reader"].(int64)))},
		cwtypes.MetricDatum{MetricName: aws.String("Arbiflow-ErrorsDetector"), Unit: cwtypes.StandardUnitCount, Value: aws.Float64(float64(fields["errors_detector"].(int64)))},
		cwtypes.MetricDatum{MetricName: aws.String("Arbiflow-WarnsReader"), Unit: cwtypes.StandardUnitCount, Value: aws.Float64(float64(fields["warns_reader"].(int64)))},
		cwtypes.MetricDatum{MetricName: aws.String("Arbiflow-WarnsDetector"), Unit: cwtypes.StandardUnitCount, Value: aws.Float64(float64(fields["warns_detector"].(int64)))},
		cwtypes.MetricDatum{MetricName: aws.String("Arbiflow-ReplayReads"), Unit: cwtypes.StandardUnitCount, Value: aws.Float64(float64(fields["replay_reads"].(int64)))},
		cwtypes.MetricDatum{MetricName: aws.String("Arbiflow-BackfillReads"), Unit: cwtypes.StandardUnitCount, Value: aws.Float64(float64(fields["backfill_reads"].(int64)))},
		cwtypes.MetricDatum{MetricName: aws.String("Arbiflow-ResultWrites"), Unit: cwtypes.StandardUnitCount, Value: aws.Float64(float64(fields["result_writes"].(int64)))},
		cwtypes.MetricDatum{MetricName: aws.String("Arbiflow-NetBytesSent"), Unit: cwtypes.StandardUnitBytes, Value: aws.Float64(float64(bytesSent))},
		cwtypes.MetricDatum{MetricName: aws.String("Arbiflow-NetBytesRecv"), Unit: cwtypes.StandardUnitBytes, Value: aws.Float64(float64(bytesRecv))},
	)

	for name, stats := range channelData {
		data = append(data,
			cwtypes.MetricDatum{
				MetricName: aws.String("Arbiflow-ChannelMessages"),
				Unit:       cwtypes.StandardUnitCount,
				Dimensions: []cwtypes.Dimension{{Name: aws.String("Channel"), Value: aws.String(name)}},
				Value:      aws.Float64(float64(stats["messages"])),
			},
			cwtypes.MetricDatum{
				MetricName: aws.String("Arbiflow-ChannelBytes"),
				Unit:       cwtypes.StandardUnitBytes,
				Dimensions: []cwtypes.Dimension{{Name: aws.String("Channel"), Value: aws.String(name)}},
				Value:      aws.Float64(float64(stats["bytes"])),
			},
		)
	}

	publishMetrics(ctx, data)
}
