package bars

import (
	"math"
	"strings"
	"testing"
	"time"

	"VolGuard/internal/domain/models"
)

const sample = `date,open,high,low,close,adj_close,volume,ticker
2024-01-03 00:00:00,10,11,9,10.5,10.4,1000,^GSPC
2024-01-02 00:00:00,9,10,8,9.5,,900,^GSPC
`

func TestParseCSV(t *testing.T) {
	bars, err := ParseCSV(strings.NewReader(sample), "")
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if len(bars) != 2 {
		t.Fatalf("expected 2 bars, got %d", len(bars))
	}
	if bars[0].Instrument != "GSPC" {
		t.Fatalf("expected sanitized ticker, got %q", bars[0].Instrument)
	}
	if !math.IsNaN(bars[1].AdjustedClose) {
		t.Fatalf("empty adj_close should be missing, got %v", bars[1].AdjustedClose)
	}
	if bars[1].Price() != 9.5 {
		t.Fatalf("price should fall back to close, got %v", bars[1].Price())
	}

	sorted, err := SortByDate(bars)
	if err != nil {
		t.Fatalf("sort: %v", err)
	}
	if !sorted[0].Date.Equal(time.Date(2024, 1, 2, 0, 0, 0, 0, time.UTC)) {
		t.Fatalf("unexpected first date %v", sorted[0].Date)
	}
}

func TestParseCSVMissingColumn(t *testing.T) {
	_, err := ParseCSV(strings.NewReader("date,open,high,low,volume\n2024-01-02,1,1,1,1\n"), "AAPL")
	if !models.IsValidation(err) {
		t.Fatalf("expected ValidationError, got %v", err)
	}
}

func TestParseCSVWithoutTicker(t *testing.T) {
	bars, err := ParseCSV(strings.NewReader("date,open,high,low,close,volume\n2024-01-02,1,2,0.5,1.5,10\n"), "aapl")
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if bars[0].Instrument != "AAPL" || !math.IsNaN(bars[0].AdjustedClose) {
		t.Fatalf("unexpected bar %+v", bars[0])
	}
}

func TestValidateSeriesDuplicate(t *testing.T) {
	d := time.Date(2024, 1, 2, 0, 0, 0, 0, time.UTC)
	err := ValidateSeries([]models.PriceBar{
		{Instrument: "A", Date: d},
		{Instrument: "A", Date: d.Add(4 * time.Hour)},
	})
	if !models.IsValidation(err) {
		t.Fatalf("expected duplicate day to be rejected, got %v", err)
	}
}

func TestInstrumentFromKey(t *testing.T) {
	cases := []struct {
		key  string
		inst string
		kind Kind
		ok   bool
	}{
		{"market-data/stocks/AAPL/AAPL_20240101_000000.csv", "AAPL", KindStock, true},
		{"market-data/benchmarks/GSPC/GSPC_20240101_000000.csv", "GSPC", KindBenchmark, true},
		{"market-data/other/AAPL/x.csv", "", "", false},
		{"uploads/AAPL.csv", "", "", false},
	}
	for _, tc := range cases {
		inst, kind, ok := InstrumentFromKey(tc.key)
		if inst != tc.inst || kind != tc.kind || ok != tc.ok {
			t.Fatalf("%s: got (%q, %q, %v)", tc.key, inst, kind, ok)
		}
	}
}

func TestFromInputsRoundTrip(t *testing.T) {
	c := 10.0
	in := []models.BarInput{
		{Instrument: "aapl", Date: "2024-01-03", Close: &c},
		{Instrument: "aapl", Date: "2024-01-02", Close: &c},
	}
	got, err := FromInputs(in)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if got[0].DayKey() != "2024-01-02" || got[0].Instrument != "AAPL" || !math.IsNaN(got[0].Volume) {
		t.Fatalf("unexpected bar %+v", got[0])
	}
	if Usable(got) != 2 {
		t.Fatalf("expected 2 usable bars")
	}
	back := ToInputs(got)
	if back[1].Date != "2024-01-03" || back[1].Volume != nil || *back[1].Close != 10 {
		t.Fatalf("unexpected input %+v", back[1])
	}
}
