package decay

import (
	"context"
	"errors"
	"math"
	"testing"
	"time"

	"github.com/kailas-cloud/rerank/internal/domain"
	"github.com/kailas-cloud/rerank/internal/domain/batch"
	"github.com/kailas-cloud/rerank/internal/domain/record"
)

var refTime = time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)

func fixedNow() time.Time { return refTime }

func at(t time.Time) *time.Time { return &t }

func apply(t *testing.T, s *Scorer, query record.Record, recs ...record.Record) *batch.Batch {
	t.Helper()
	b, err := batch.New(record.Records(recs...))
	if err != nil {
		t.Fatalf("batch.New: %v", err)
	}
	if err := s.Apply(context.Background(), query, b); err != nil {
		t.Fatalf("Apply: %v", err)
	}
	return b
}

func TestApply_FourHundredDays(t *testing.T) {
	s, err := New(Config{Rate: 0.5, Now: fixedNow})
	if err != nil {
		t.Fatalf("New: %v", err)
	}
	b := apply(t, s, record.Record{Text: "q"},
		record.Record{Text: "new", Timestamp: at(refTime)},
		record.Record{Text: "old", Timestamp: at(refTime.Add(-400 * 24 * time.Hour))},
	)
	col := b.Column("decay")
	if col[0].Value != 1 {
		t.Errorf("expected 1 for age zero, got %v", col[0].Value)
	}
	if want := math.Exp(-200); math.Abs(col[1].Value-want) > 1e-12 {
		t.Errorf("expected %v, got %v", want, col[1].Value)
	}
	if col[0].Value <= col[1].Value {
		t.Error("newer candidate must score strictly higher")
	}
}

func TestApply_MissingTimestamp(t *testing.T) {
	s, _ := New(Config{Rate: 1, Now: fixedNow})
	b := apply(t, s, record.Record{Text: "q"}, record.Record{Text: "undated"})
	sc := b.Column("decay")[0]
	if sc.Neutral || sc.Value != DefaultMissingScore {
		t.Errorf("expected %v, got %+v", DefaultMissingScore, sc)
	}
}

func TestApply_RequireTimestamp(t *testing.T) {
	s, _ := New(Config{Rate: 1, Now: fixedNow, RequireTimestamp: true})
	b, _ := batch.New(record.Records(
		record.Record{Text: "dated", Timestamp: at(refTime)},
		record.Record{Text: "undated"},
	))
	err := s.Apply(context.Background(), record.Record{Text: "q"}, b)
	if !errors.Is(err, domain.ErrInvalidInput) {
		t.Fatalf("expected ErrInvalidInput, got %v", err)
	}
	if _, ok := b.At(0).Score("decay"); ok {
		t.Error("no candidate should be scored on invalid input")
	}
}

func TestApply_QueryTimestampAndFuture(t *testing.T) {
	s, _ := New(Config{Rate: 1, Now: fixedNow})
	queryTime := refTime.Add(-48 * time.Hour)
	b := apply(t, s, record.Record{Text: "q", Timestamp: at(queryTime)},
		record.Record{Text: "a", Timestamp: at(queryTime.Add(-24 * time.Hour))},
		record.Record{Text: "b", Timestamp: at(refTime)}, // after the query time
	)
	col := b.Column("decay")
	if want := math.Exp(-1); math.Abs(col[0].Value-want) > 1e-12 {
		t.Errorf("expected %v relative to query time, got %v", want, col[0].Value)
	}
	if col[1].Value != 1 {
		t.Errorf("future timestamp should have age zero, got %v", col[1].Value)
	}
}

func TestApply_Gravity(t *testing.T) {
	s, err := New(Config{Rate: 1.8, Curve: Gravity, Now: fixedNow})
	if err != nil {
		t.Fatalf("New: %v", err)
	}
	b := apply(t, s, record.Record{Text: "q"},
		record.Record{Text: "a", Timestamp: at(refTime.Add(-10 * time.Hour))},
	)
	want := 1 / math.Pow(12, 1.8)
	if got := b.Column("decay")[0].Value; math.Abs(got-want) > 1e-12 {
		t.Errorf("expected %v, got %v", want, got)
	}
}

func TestNew_Validation(t *testing.T) {
	tests := []struct {
		name string
		cfg  Config
	}{
		{"missing rate", Config{}},
		{"negative rate", Config{Rate: -0.5}},
		{"nan rate", Config{Rate: math.NaN()}},
		{"negative unit", Config{Rate: 1, Unit: -time.Hour}},
		{"unknown curve", Config{Rate: 1, Curve: "linear"}},
	}
	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			if _, err := New(tc.cfg); !errors.Is(err, domain.ErrConfiguration) {
				t.Fatalf("expected ErrConfiguration, got %v", err)
			}
		})
	}
}
