package render

import (
	"errors"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"testing"
	"time"

	"github.com/leanovate/gopter"
	"github.com/leanovate/gopter/gen"
	"github.com/leanovate/gopter/prop"

	"ctxdump/internal/fields"
	"ctxdump/internal/trace"
)

func TestRender_Scalars(t *testing.T) {
	m := fields.New(
		fields.Pair{Key: "name", Value: "checkout"},
		fields.Pair{Key: "count", Value: 3},
		fields.Pair{Key: "ratio", Value: 0.5},
		fields.Pair{Key: "ok", Value: true},
		fields.Pair{Key: "missing", Value: nil},
		fields.Pair{Key: "err", Value: errors.New("boom")},
	)

	want := strings.Join([]string{
		"name: checkout",
		"count: 3",
		"ratio: 0.5",
		"ok: true",
		"missing:",
		"err: boom",
	}, "\n")
	if got := Render(m); got != want {
		t.Errorf("Render() =\n%s\nwant\n%s", got, want)
	}
}

func TestRender_MultilineScalar(t *testing.T) {
	m := fields.New(fields.Pair{Key: "Log", Value: fields.New(
		fields.Pair{Key: "content", Value: "first\nsecond\r\nthird"},
	)})

	want := strings.Join([]string{
		"Log:",
		"  content:",
		"    first",
		"    second ",
		"    third",
	}, "\n")
	if got := Render(m); got != want {
		t.Errorf("Render() =\n%s\nwant\n%s", got, want)
	}
}

func TestRender_Lists(t *testing.T) {
	m := fields.New(
		fields.Pair{Key: "to", Value: []string{"a@example.com", "b@example.com"}},
		fields.Pair{Key: "queries", Value: []any{
			fields.New(fields.Pair{Key: "sql", Value: "SELECT 1"}, fields.Pair{Key: "time_ms", Value: 1.25}),
			"line one\nline two",
			nil,
		}},
		fields.Pair{Key: "empty", Value: []any{}},
		fields.Pair{Key: "section", Value: fields.New()},
	)

	want := strings.Join([]string{
		"to:",
		"  - a@example.com",
		"  - b@example.com",
		"queries:",
		"  -",
		"    sql: SELECT 1",
		"    time_ms: 1.25",
		"  - line one",
		"    line two",
		"  -",
		"empty:",
		"section:",
	}, "\n")
	if got := Render(m); got != want {
		t.Errorf("Render() =\n%s\nwant\n%s", got, want)
	}
}

func TestRender_GoMapsUseSortedKeys(t *testing.T) {
	m := fields.New(fields.Pair{Key: "attributes", Value: map[string]any{
		"zeta":  1,
		"alpha": "x",
		"mid":   []int{1, 2},
	}})

	want := strings.Join([]string{
		"attributes:",
		"  alpha: x",
		"  mid:",
		"    - 1",
		"    - 2",
		"  zeta: 1",
	}, "\n")
	if got := Render(m); got != want {
		t.Errorf("Render() =\n%s\nwant\n%s", got, want)
	}
}

func TestRender_IntKeyedMaps(t *testing.T) {
	items := make(map[int]string)
	for i := 0; i < 12; i++ {
		items[i] = "v" + strconv.Itoa(i)
	}
	lines := []string{"items:"}
	for i := 0; i < 12; i++ {
		lines = append(lines, "  - v"+strconv.Itoa(i))
	}
	if got, want := Render(fields.New(fields.Pair{Key: "items", Value: items})), strings.Join(lines, "\n"); got != want {
		t.Errorf("Render() =\n%s\nwant\n%s", got, want)
	}

	sparse := map[uint8]string{10: "b", 1: "a", 2: "c"}
	want := "ids:\n  1: a\n  2: c\n  10: b"
	if got := Render(fields.New(fields.Pair{Key: "ids", Value: sparse})); got != want {
		t.Errorf("Render() = %q, want %q", got, want)
	}
}

func TestRender_CyclicValuesStopAtMaxDepth(t *testing.T) {
	m := map[string]any{"a": "b"}
	m["self"] = m

	got := Render(fields.New(fields.Pair{Key: "root", Value: m}))
	lines := strings.Split(got, "\n")
	if n := strings.Count(got, maxDepthMarker); n != 1 {
		t.Fatalf("depth marker appears %d times, want 1", n)
	}
	if last, want := lines[len(lines)-1], strings.Repeat(" ", 2*MaxDepth)+"self: "+maxDepthMarker; last != want {
		t.Errorf("last line = %q, want %q", last, want)
	}

	s := []any{"x", nil}
	s[1] = s
	if got := Render(fields.New(fields.Pair{Key: "list", Value: s})); !strings.Contains(got, "- "+maxDepthMarker) {
		t.Errorf("cyclic list rendered without depth marker:\n%s", got)
	}
}

func TestRender_NilPointers(t *testing.T) {
	var section *fields.Map
	var status *int
	m := fields.New(fields.Pair{Key: "a", Value: section}, fields.Pair{Key: "b", Value: status})

	if got, want := Render(m), "a:\nb:"; got != want {
		t.Errorf("Render() = %q, want %q", got, want)
	}
}

func TestSanitize_TruncationBoundary(t *testing.T) {
	exact := strings.Repeat("x", MaxValueLength)
	if got := Sanitize(exact); got != exact {
		t.Errorf("value of exactly %d characters was modified", MaxValueLength)
	}

	over := exact + "y"
	if got, want := Sanitize(over), exact+"... (truncated)"; got != want {
		t.Errorf("Sanitize(%d chars) has len %d, want %d", len(over), len(got), len(want))
	}

	multibyte := strings.Repeat("é", MaxValueLength)
	if got := Sanitize(multibyte); got != multibyte {
		t.Error("multibyte value of exactly the limit was modified")
	}
}

func TestRender_Properties(t *testing.T) {
	parameters := gopter.DefaultTestParameters()
	parameters.MinSuccessfulTests = 100
	properties := gopter.NewProperties(parameters)

	properties.Property("rendering is deterministic", prop.ForAll(
		func(keys []string, value string) bool {
			m := &fields.Map{}
			for _, k := range keys {
				m.Set(k, map[string]any{"v": value, "list": []string{value, k}})
			}
			return Render(m) == Render(m)
		},
		gen.SliceOf(gen.Identifier()),
		gen.AnyString(),
	))

	properties.Property("single-line value under the cap renders unchanged", prop.ForAll(
		func(key, value string) bool {
			m := fields.New(fields.Pair{Key: key, Value: value})
			return Render(m) == key+": "+value
		},
		gen.Identifier(),
		gen.AlphaString(),
	))

	properties.Property("multi-line value renders one line per segment", prop.ForAll(
		func(segments []string) bool {
			if len(segments) < 2 {
				return true
			}
			m := fields.New(fields.Pair{Key: "content", Value: strings.Join(segments, "\n")})
			lines := strings.Split(Render(m), "\n")
			if len(lines) != len(segments)+1 || lines[0] != "content:" {
				return false
			}
			for i, s := range segments {
				if lines[i+1] != "  "+s {
					return false
				}
			}
			return true
		},
		gen.SliceOf(gen.AlphaString()),
	))

	properties.TestingRun(t)
}

func TestRenderReport(t *testing.T) {
	at := time.Date(2026, 10, 15, 12, 0, 0, 500000000, time.UTC)
	tr := trace.New(
		trace.WithClock(func() time.Time { return at }),
		trace.WithMemoryProbe(func() uint64 { return 1024 * 1024 }),
	)
	tr.Add("Final State (Dump)", "", nil, nil)

	got := RenderReport(Report{
		Suite:  "example.com/shop",
		Name:   "TestCheckout",
		Status: StatusFailed,
		Date:   at,
		Steps:  tr.Steps(),
	})

	want := strings.Join([]string{
		"test_class: example.com/shop",
		"test_name: TestCheckout",
		"status: FAILED",
		"data_set:",
		"date: 2026-10-15 12:00:00.500000",
		"steps:",
		"  -",
		"    step: 1",
		"    action: Final State (Dump)",
		"    timestamp: 12:00:00.500000",
		"    memory: 1.00 MB",
		"    request:",
		"    status:",
	}, "\n")
	if got != want {
		t.Errorf("RenderReport() =\n%s\nwant\n%s", got, want)
	}
}

func TestPersist_AppendsRecords(t *testing.T) {
	path := filepath.Join(t.TempDir(), "nested", "dir", "report.txt")

	if err := Persist("a: 1", path); err != nil {
		t.Fatalf("first Persist: %v", err)
	}
	if err := Persist("b: 2", path); err != nil {
		t.Fatalf("second Persist: %v", err)
	}

	data, err := os.ReadFile(path)
	if err != nil {
		t.Fatal(err)
	}
	if got, want := string(data), "---\na: 1\n\n---\nb: 2\n\n"; got != want {
		t.Errorf("file = %q, want %q", got, want)
	}
}

func TestPersist_ErrorPropagates(t *testing.T) {
	dir := t.TempDir()
	blocker := filepath.Join(dir, "file")
	if err := os.WriteFile(blocker, []byte("x"), 0644); err != nil {
		t.Fatal(err)
	}

	if err := Persist("a: 1", filepath.Join(blocker, "report.txt")); err == nil {
		t.Error("expected error when parent is a regular file")
	}
}
