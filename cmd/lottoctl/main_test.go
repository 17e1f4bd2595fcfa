package main

import (
	"bytes"
	"encoding/json"
	"strings"
	"testing"

	"github.com/MJE43/lotto-desk/internal/draw"
	"github.com/MJE43/lotto-desk/internal/fair"
	"github.com/MJE43/lotto-desk/internal/matrix"
)

func run(t *testing.T, args ...string) (string, error) {
	t.Helper()
	t.Setenv("LOTTO_DATA_DIR", t.TempDir())
	t.Setenv("LOTTO_LOG_LEVEL", "error")
	cmd := newRootCmd()
	var out bytes.Buffer
	cmd.SetOut(&out)
	cmd.SetErr(&out)
	cmd.SetArgs(append([]string{"--backend", "memory"}, args...))
	err := cmd.Execute()
	return out.String(), err
}

func TestMatricesCommand(t *testing.T) {
	out, err := run(t, "matrices")
	if err != nil {
		t.Fatalf("matrices: %v", err)
	}
	for _, c := range matrix.List() {
		if !strings.Contains(out, string(c.Type)) {
			t.Errorf("output missing %s:\n%s", c.Type, out)
		}
	}
}

func TestSampleSeededIsReproducible(t *testing.T) {
	first, err := run(t, "sample", "lotto649", "--seed", "7", "-n", "3", "--json")
	if err != nil {
		t.Fatalf("sample: %v", err)
	}
	second, err := run(t, "sample", "lotto649", "--seed", "7", "-n", "3", "--json")
	if err != nil {
		t.Fatalf("sample: %v", err)
	}
	if first != second {
		t.Errorf("seeded samples differ:\n%s\n%s", first, second)
	}
	var draws []draw.Draw
	if err := json.Unmarshal([]byte(first), &draws); err != nil {
		t.Fatalf("decode: %v", err)
	}
	if len(draws) != 3 {
		t.Fatalf("got %d draws", len(draws))
	}
	for _, d := range draws {
		if err := d.Validate(matrix.MustLookup(matrix.Lotto649)); err != nil {
			t.Errorf("invalid draw %v: %v", d.Numbers, err)
		}
	}
}

func TestSampleRejectsCustom(t *testing.T) {
	if _, err := run(t, "sample", "custom"); err == nil {
		t.Fatal("expected error for custom matrix")
	}
}

func TestPredictCommand(t *testing.T) {
	out, err := run(t, "predict", "powerball", "--json", "-c", "anniversary")
	if err != nil {
		t.Fatalf("predict: %v", err)
	}
	var body struct {
		Entry struct {
			Numbers       []int  `json:"numbers"`
			SpecialNumber *int   `json:"specialNumber"`
			Type          string `json:"type"`
		} `json:"entry"`
	}
	if err := json.Unmarshal([]byte(out), &body); err != nil {
		t.Fatalf("decode: %v\n%s", err, out)
	}
	if len(body.Entry.Numbers) != 5 || body.Entry.SpecialNumber == nil || body.Entry.Type != "Powerball" {
		t.Errorf("entry = %+v", body.Entry)
	}
}

func TestFairVerifyCommand(t *testing.T) {
	out, err := run(t, "fair", "verify", "megamillions", "--server-seed", "s1", "--client-seed", "c1", "--nonce", "3", "--json")
	if err != nil {
		t.Fatalf("verify: %v", err)
	}
	var body struct {
		Draw draw.Draw `json:"draw"`
	}
	if err := json.Unmarshal([]byte(out), &body); err != nil {
		t.Fatalf("decode: %v", err)
	}
	want, err := fair.Verify("s1", "c1", 3, matrix.MustLookup(matrix.MegaMillions))
	if err != nil {
		t.Fatalf("direct verify: %v", err)
	}
	if fmtDraw(body.Draw) != fmtDraw(want) {
		t.Errorf("draw = %s, want %s", fmtDraw(body.Draw), fmtDraw(want))
	}
}

func TestFairVerifyNeedsNonce(t *testing.T) {
	if _, err := run(t, "fair", "verify", "lotto645", "--server-seed", "s", "--client-seed", "c", "--nonce", "0"); err == nil {
		t.Fatal("expected error for zero nonce")
	}
}

func fmtDraw(d draw.Draw) string {
	return formatNumbers(d.Numbers, d.Special, "")
}
