//go:build integration

package storage

import (
	"context"
	"fmt"
	"math/rand"
	"testing"
	"time"

	"github.com/good-yellow-bee/noisegate/internal/models"
)

// Benchmark tests require running ClickHouse.
// Run with: go test -tags=integration -bench=. ./internal/storage/...

var benchmarkSeverities = []models.Severity{
	models.SeverityNormal,
	models.SeverityImportant,
	models.SeverityCritical,
}

var benchmarkReasons = []models.Reason{
	models.ReasonNewCritical,
	models.ReasonRecurrentThresholdMet,
	models.ReasonDuplicateSuppressed,
	models.ReasonBelowMinSeverity,
}

var benchmarkTexts = []string{
	"ERROR: payment queue is down",
	"deploy failed on worker-3",
	"disk usage at 91% on db-primary",
	"connection pool exhausted",
	"client timeout contacting upstream",
	"certificate expires in 3 days",
	"replica lag above threshold",
	"OOMKilled: ingest-7f9c",
}

func generateDecisionRecords(n int) []*models.AlertRecord {
	now := time.Now().UTC()
	records := make([]*models.AlertRecord, n)
	for i := 0; i < n; i++ {
		channel := fmt.Sprintf("C0BENCH%d", rand.Intn(10))
		observed := now.Add(-time.Duration(rand.Intn(24*7)) * time.Hour)
		records[i] = &models.AlertRecord{
			MessageKey:       fmt.Sprintf("%s:%d", channel, observed.UnixMicro()+int64(i)),
			ChannelID:        channel,
			ChannelLabel:     "bench",
			Author:           fmt.Sprintf("user-%d", rand.Intn(20)),
			RawText:          benchmarkTexts[rand.Intn(len(benchmarkTexts))],
			ContentHash:      fmt.Sprintf("hash-%08x", rand.Int63()),
			PatternSignature: channel + "|kw:error",
			Severity:         benchmarkSeverities[rand.Intn(len(benchmarkSeverities))],
			Reason:           benchmarkReasons[rand.Intn(len(benchmarkReasons))],
			ObservedAt:       observed,
			DetectedAt:       observed,
			SentToTarget:     rand.Intn(4) == 0,
		}
	}
	return records
}

func BenchmarkArchiveInsertBatch_200(b *testing.B) {
	archive, cleanup := setupArchiveTest(&testing.T{})
	defer cleanup()

	ctx := context.Background()
	records := generateDecisionRecords(200)

	b.ResetTimer()
	for i := 0; i < b.N; i++ {
		archive.InsertBatch(ctx, records)
	}
}

func BenchmarkArchiveInsertBatch_1000(b *testing.B) {
	archive, cleanup := setupArchiveTest(&testing.T{})
	defer cleanup()

	ctx := context.Background()
	records := generateDecisionRecords(1000)

	b.ResetTimer()
	for i := 0; i < b.N; i++ {
		archive.InsertBatch(ctx, records)
	}
}

func BenchmarkArchiveInsertBatch_5000(b *testing.B) {
	archive, cleanup := setupArchiveTest(&testing.T{})
	defer cleanup()

	ctx := context.Background()
	records := generateDecisionRecords(5000)

	b.ResetTimer()
	for i := 0; i < b.N; i++ {
		archive.InsertBatch(ctx, records)
	}
}
