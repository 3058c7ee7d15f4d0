package main

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"testing"
	"time"
)

func writeBars(t *testing.T, dir, name string, n int) string {
	t.Helper()
	var b strings.Builder
	b.WriteString("date,open,high,low,close,volume\n")
	day := time.Date(2024, 1, 1, 0, 0, 0, 0, time.UTC)
	for i := 0; i < n; i++ {
		c := 100.0
		if i%2 == 1 {
			c = 102.0
		}
		fmt.Fprintf(&b, "%s,%v,%v,%v,%v,1000\n", day.AddDate(0, 0, i).Format("2006-01-02"), c, c+1, c-1, c)
	}
	path := filepath.Join(dir, name)
	if err := os.WriteFile(path, []byte(b.String()), 0o600); err != nil {
		t.Fatalf("write: %v", err)
	}
	return path
}

func TestRunEstimateHistorical(t *testing.T) {
	path := writeBars(t, t.TempDir(), "aapl.csv", 40)

	var out bytes.Buffer
	if err := run(context.Background(), []string{"estimate", "-csv", path}, &out); err != nil {
		t.Fatalf("run: %v", err)
	}

	var rec map[string]string
	if err := json.Unmarshal(out.Bytes(), &rec); err != nil {
		t.Fatalf("decode %q: %v", out.String(), err)
	}
	if rec["instrument"] != "AAPL" {
		t.Fatalf("expected instrument from file name, got %q", rec["instrument"])
	}
	if rec["date"] != "09.02.2024" {
		t.Fatalf("unexpected date %q", rec["date"])
	}
	vol, err := strconv.ParseFloat(rec["predicted_volatility"], 64)
	if err != nil || vol <= 0 {
		t.Fatalf("unexpected volatility %q", rec["predicted_volatility"])
	}
	if rec["source_reference"] != "file://"+path {
		t.Fatalf("unexpected source %q", rec["source_reference"])
	}
}

func TestRunEstimateShortSeries(t *testing.T) {
	path := writeBars(t, t.TempDir(), "msft.csv", 10)
	if err := run(context.Background(), []string{"estimate", "-csv", path}, &bytes.Buffer{}); err == nil {
		t.Fatalf("expected insufficient data error")
	}
}

func TestRunUsage(t *testing.T) {
	cases := [][]string{
		nil,
		{"train"},
		{"estimate"},
		{"estimate", "-bogus"},
	}
	for _, args := range cases {
		if err := run(context.Background(), args, &bytes.Buffer{}); err == nil || !strings.Contains(err.Error(), "usage") {
			t.Fatalf("args %v: expected usage error, got %v", args, err)
		}
	}
}
