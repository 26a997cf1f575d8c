// Package hint tracks failed tests and prints a command that re-runs them
// with context dumps forced on. Failed subtests are re-run through their
// top-level test.
package hint

import (
	"fmt"
	"io"
	"regexp"
	"strings"
	"sync"

	"github.com/charmbracelet/lipgloss"
)

// Registry records failed test identifiers in first-seen order.
type Registry struct {
	mu     sync.Mutex
	failed []string
	seen   map[string]bool
}

// NewRegistry creates an empty Registry.
func NewRegistry() *Registry {
	return &Registry{seen: make(map[string]bool)}
}

// Record adds id. Repeats are ignored.
func (r *Registry) Record(id string) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.seen == nil {
		r.seen = make(map[string]bool)
	}
	if r.seen[id] {
		return
	}
	r.seen[id] = true
	r.failed = append(r.failed, id)
}

// Failed returns a copy of the recorded identifiers.
func (r *Registry) Failed() []string {
	r.mu.Lock()
	defer r.mu.Unlock()
	out := make([]string, len(r.failed))
	copy(out, r.failed)
	return out
}

// Filter returns a -run pattern matching exactly the failed top-level
// tests. Subtests collapse to their parent since -run matches per level.
func (r *Registry) Filter() string {
	return Filter(r.Failed())
}

// Filter builds an anchored alternation over the top-level test names in ids.
// A failed subtest widens the pattern to its whole parent test, so sibling
// subtests that passed run again as well.
func Filter(ids []string) string {
	seen := make(map[string]bool, len(ids))
	parts := make([]string, 0, len(ids))
	for _, id := range ids {
		top, _, _ := strings.Cut(id, "/")
		if top == "" || seen[top] {
			continue
		}
		seen[top] = true
		parts = append(parts, regexp.QuoteMeta(top))
	}
	if len(parts) == 0 {
		return ""
	}
	return "^(" + strings.Join(parts, "|") + ")$"
}

// Command returns the shell command re-running the failed tests in pkgs,
// or "" when nothing failed.
func (r *Registry) Command(pkgs ...string) string {
	return Command(r.Filter(), pkgs...)
}

// Command formats the re-run command for filter.
func Command(filter string, pkgs ...string) string {
	if filter == "" {
		return ""
	}
	if len(pkgs) == 0 {
		pkgs = []string{"./..."}
	}
	return fmt.Sprintf("DEBUG=1 go test -run '%s' %s", filter, strings.Join(pkgs, " "))
}

// Render writes the hint to w when any test failed. Colours are dropped when
// w is not a terminal.
func (r *Registry) Render(w io.Writer, pkgs ...string) error {
	cmd := r.Command(pkgs...)
	if cmd == "" {
		return nil
	}
	re := lipgloss.NewRenderer(w)
	warn := re.NewStyle().Foreground(lipgloss.Color("3")).Bold(true)
	run := re.NewStyle().Foreground(lipgloss.Color("2"))

	_, err := fmt.Fprintf(w, "\n\n%s\n\n%s\n\n",
		warn.Render("! [DEBUG HINT] Some tests failed. Re-run only those tests with context dumps enabled:"),
		run.Render(cmd),
	)
	return err
}
