package scripting

import (
	"context"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/MJE43/lotto-desk/internal/draw"
	"github.com/MJE43/lotto-desk/internal/history"
	"github.com/MJE43/lotto-desk/internal/matrix"
	"github.com/MJE43/lotto-desk/internal/predict"
)

const pickLowest = `
function predict(input) {
  var nums = [];
  for (var i = 1; i <= matrix.mainCount; i++) nums.push(i);
  var out = { numbers: nums, analysis: "lowest " + input.context };
  if (matrix.specialRange > 0) out.specialNumber = matrix.specialRange;
  log("picked", nums.length, "for", matrix.type);
  return out;
}
`

func TestPredictorReturnsScriptResult(t *testing.T) {
	p, err := New(pickLowest, Options{Name: "lowest"})
	if err != nil {
		t.Fatalf("New: %v", err)
	}

	res, err := p.Predict(context.Background(), predict.Request{Matrix: matrix.Powerball, Context: "run"})
	if err != nil {
		t.Fatalf("Predict: %v", err)
	}
	if want := []int{1, 2, 3, 4, 5}; !equalInts(res.Numbers, want) {
		t.Errorf("Numbers = %v, want %v", res.Numbers, want)
	}
	if res.SpecialNumber == nil || *res.SpecialNumber != 26 {
		t.Errorf("SpecialNumber = %v, want 26", res.SpecialNumber)
	}
	if res.Analysis != "lowest run" {
		t.Errorf("Analysis = %q", res.Analysis)
	}
	if err := predict.Validate(matrix.MustLookup(matrix.Powerball), res); err != nil {
		t.Errorf("Validate: %v", err)
	}

	logs := p.Logs()
	if len(logs) != 1 || logs[0].Message != "picked 5 for Powerball" {
		t.Errorf("Logs = %+v", logs)
	}
}

func TestPredictorSeesHistory(t *testing.T) {
	src := `
function predict(input) {
  var seen = {};
  var nums = [];
  for (var i = 0; i < history.length; i++) {
    var h = history[i];
    if (h.type !== matrix.type) continue;
    for (var j = 0; j < h.numbers.length; j++) {
      var n = h.numbers[j];
      if (!seen[n] && nums.length < matrix.mainCount) { seen[n] = true; nums.push(n); }
    }
  }
  return { numbers: nums, analysis: "repeat of " + input.history.length };
}
`
	p, err := New(src, Options{})
	if err != nil {
		t.Fatalf("New: %v", err)
	}
	past := []history.Entry{
		{ID: "a", Numbers: []int{4, 8, 15}, MatrixType: matrix.Lotto645},
		{ID: "b", Numbers: []int{16, 23, 42}, MatrixType: matrix.Lotto645},
		{ID: "c", Numbers: []int{1, 2, 3, 4, 5}, MatrixType: matrix.Powerball},
	}
	res, err := p.Predict(context.Background(), predict.Request{Matrix: matrix.Lotto645, History: past})
	if err != nil {
		t.Fatalf("Predict: %v", err)
	}
	if want := []int{4, 8, 15, 16, 23, 42}; !equalInts(res.Numbers, want) {
		t.Errorf("Numbers = %v, want %v", res.Numbers, want)
	}
	if res.Analysis != "repeat of 3" {
		t.Errorf("Analysis = %q", res.Analysis)
	}
}

func TestPredictorRandint(t *testing.T) {
	src := `
function predict() {
  var seen = {}, nums = [];
  while (nums.length < matrix.mainCount) {
    var n = randint(1, matrix.mainRange);
    if (!seen[n]) { seen[n] = true; nums.push(n); }
  }
  return { numbers: nums };
}
`
	p, err := New(src, Options{Source: draw.NewSeededSource(9, 9)})
	if err != nil {
		t.Fatalf("New: %v", err)
	}
	for i := 0; i < 20; i++ {
		res, err := p.Predict(context.Background(), predict.Request{Matrix: matrix.Lotto649})
		if err != nil {
			t.Fatalf("Predict: %v", err)
		}
		if err := predict.Validate(matrix.MustLookup(matrix.Lotto649), res); err != nil {
			t.Fatalf("Validate: %v", err)
		}
	}
}

func TestPredictorRandintRejectsWideRange(t *testing.T) {
	tests := map[string]string{
		"overflowing": "function predict() { randint(-9e18, 9e18); return {numbers: [1,2,3,4,5,6]}; }",
		"one sided":   "function predict() { randint(-5e18, 5e18); return {numbers: [1,2,3,4,5,6]}; }",
	}
	for name, src := range tests {
		t.Run(name, func(t *testing.T) {
			p, err := New(src, Options{})
			if err != nil {
				t.Fatalf("New: %v", err)
			}
			_, err = p.Predict(context.Background(), predict.Request{Matrix: matrix.Lotto645})
			if err == nil || !strings.Contains(err.Error(), "too wide") {
				t.Fatalf("err = %v, want range error", err)
			}
		})
	}
}

func TestPredictorCatchableRandintError(t *testing.T) {
	src := `
function predict() {
  try { randint(-9e18, 9e18); } catch (e) { return {numbers: [1,2,3,4,5,6], analysis: "caught"}; }
  return {numbers: [1,2,3,4,5,7]};
}
`
	p, err := New(src, Options{})
	if err != nil {
		t.Fatalf("New: %v", err)
	}
	res, err := p.Predict(context.Background(), predict.Request{Matrix: matrix.Lotto645})
	if err != nil {
		t.Fatalf("Predict: %v", err)
	}
	if res.Analysis != "caught" {
		t.Errorf("Analysis = %q", res.Analysis)
	}
}

func TestRunWithTimeoutRecoversPanics(t *testing.T) {
	v := newVM(draw.NewFixedSource(0), &logBuffer{max: 1})
	err := v.runWithTimeout(nil, time.Second, func() error {
		panic("boom")
	})
	if err == nil || !strings.Contains(err.Error(), "boom") {
		t.Fatalf("err = %v, want recovered panic", err)
	}
}

func TestPredictorBlocksDangerousGlobals(t *testing.T) {
	for _, name := range []string{"require", "fetch", "eval", "Function"} {
		t.Run(name, func(t *testing.T) {
			src := "function predict() { " + name + "('1'); return {numbers: [1,2,3,4,5,6], analysis: 'x'}; }"
			p, err := New(src, Options{})
			if err != nil {
				t.Fatalf("New: %v", err)
			}
			if _, err := p.Predict(context.Background(), predict.Request{Matrix: matrix.Lotto645}); err == nil {
				t.Fatalf("%s() was callable", name)
			}
		})
	}
}

func TestPredictorTimeout(t *testing.T) {
	p, err := New("function predict() { for (;;) {} }", Options{Timeout: 20 * time.Millisecond})
	if err != nil {
		t.Fatalf("New: %v", err)
	}
	_, err = p.Predict(context.Background(), predict.Request{Matrix: matrix.Lotto645})
	if err == nil || !strings.Contains(err.Error(), "timed out") {
		t.Fatalf("err = %v, want timeout", err)
	}
}

func TestPredictorRejectsBadOutput(t *testing.T) {
	tests := map[string]string{
		"no predict": "var x = 1;",
		"fractional": "function predict() { return {numbers: [1.5, 2, 3, 4, 5, 6]}; }",
		"nothing":    "function predict() {}",
		"not a func": "var predict = 3;",
		"throws":     "function predict() { throw new Error('nope'); }",
	}
	for name, src := range tests {
		t.Run(name, func(t *testing.T) {
			p, err := New(src, Options{})
			if err != nil {
				t.Fatalf("New: %v", err)
			}
			if _, err := p.Predict(context.Background(), predict.Request{Matrix: matrix.Lotto645}); err == nil {
				t.Fatal("expected an error")
			}
		})
	}
}

func TestPredictorRejectsCustom(t *testing.T) {
	p, err := New(pickLowest, Options{})
	if err != nil {
		t.Fatalf("New: %v", err)
	}
	if _, err := p.Predict(context.Background(), predict.Request{Matrix: matrix.Custom}); err == nil {
		t.Fatal("Custom matrix was accepted")
	}
}

func TestNewReportsSyntaxErrors(t *testing.T) {
	if _, err := New("function predict( {", Options{}); err == nil {
		t.Fatal("syntax error was not reported")
	}
}

func TestLoad(t *testing.T) {
	path := filepath.Join(t.TempDir(), "lowest.js")
	if err := os.WriteFile(path, []byte(pickLowest), 0o600); err != nil {
		t.Fatal(err)
	}
	p, err := Load(path, Options{})
	if err != nil {
		t.Fatalf("Load: %v", err)
	}
	if _, err := p.Predict(context.Background(), predict.Request{Matrix: matrix.Lotto645}); err != nil {
		t.Fatalf("Predict: %v", err)
	}
	if _, err := Load(filepath.Join(t.TempDir(), "missing.js"), Options{}); err == nil {
		t.Fatal("Load of a missing file succeeded")
	}
}

func equalInts(a, b []int) bool {
	if len(a) != len(b) {
		return false
	}
	for i := range a {
		if a[i] != b[i] {
			return false
		}
	}
	return true
}
