package types

import (
	"encoding/json"
	"testing"
	"time"
)

func TestDateJSON(t *testing.T) {
	type payload struct {
		When *Date `json:"when"`
	}

	var got payload
	if err := json.Unmarshal([]byte(`{"when":"2024-03-09"}`), &got); err != nil {
		t.Fatalf("unmarshal: %v", err)
	}
	if got.When == nil || got.When.String() != "2024-03-09" {
		t.Fatalf("unexpected date %v", got.When)
	}

	out, err := json.Marshal(got)
	if err != nil {
		t.Fatalf("marshal: %v", err)
	}
	if string(out) != `{"when":"2024-03-09"}` {
		t.Fatalf("unexpected json %s", out)
	}

	if err := json.Unmarshal([]byte(`{"when":"09/03/2024"}`), &got); err == nil {
		t.Fatal("expected invalid layout to fail")
	}
}

func TestDateScan(t *testing.T) {
	var d Date
	if err := d.Scan(time.Date(2024, 1, 31, 0, 0, 0, 0, time.UTC)); err != nil {
		t.Fatalf("scan time: %v", err)
	}
	if d.String() != "2024-01-31" {
		t.Fatalf("expected 2024-01-31, got %s", d)
	}

	if err := d.Scan([]byte("2023-12-01T00:00:00Z")); err != nil {
		t.Fatalf("scan bytes: %v", err)
	}
	if d.String() != "2023-12-01" {
		t.Fatalf("expected 2023-12-01, got %s", d)
	}

	if err := d.Scan(nil); err != nil || !d.IsZero() {
		t.Fatalf("expected nil to reset, got %v err=%v", d, err)
	}
	if err := d.Scan(42); err == nil {
		t.Fatal("expected unsupported type to fail")
	}
}

func TestNewDateDropsClock(t *testing.T) {
	a := NewDate(time.Date(2024, 5, 1, 23, 59, 0, 0, time.UTC))
	b := NewDate(time.Date(2024, 5, 1, 0, 1, 0, 0, time.UTC))
	if !a.Equal(b) {
		t.Fatalf("expected same day, got %s and %s", a, b)
	}
	if !a.Before(NewDate(time.Date(2024, 5, 2, 0, 0, 0, 0, time.UTC))) {
		t.Fatal("expected ordering by day")
	}
	v, err := a.Value()
	if err != nil || v != "2024-05-01" {
		t.Fatalf("unexpected driver value %v err=%v", v, err)
	}
}
