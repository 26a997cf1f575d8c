// Package ctxdump writes a human-readable snapshot of a Go test's context
// (HTTP exchanges, logs, session, queries, mail, runtime errors) when the
// test fails, is marked, or DEBUG is set.
//
// Typical use:
//
//	var dumps *ctxdump.Coordinator
//
//	func TestMain(m *testing.M) {
//		dumps = ctxdump.MustLoad(ctxdump.WithPackages("./..."))
//		os.Exit(dumps.Main(m))
//	}
//
//	func TestCheckout(t *testing.T) {
//		c := dumps.Attach(t)
//		client, _ := c.NewClient(ctxdump.WithBaseURL(srv.URL))
//		c.LogStep("open cart")
//		...
//	}
package ctxdump

import (
	"ctxdump/internal/client"
	"ctxdump/internal/collector"
	"ctxdump/internal/errbuf"
	"ctxdump/internal/fields"
	"ctxdump/internal/lifecycle"
	"ctxdump/internal/logcapture"
	"ctxdump/internal/mailbox"
	"ctxdump/internal/querylog"
)

type (
	Coordinator       = lifecycle.Coordinator
	CoordinatorOption = lifecycle.CoordinatorOption
	Controller        = lifecycle.Controller
	Option            = lifecycle.Option
	TB                = lifecycle.TB
	Markers           = lifecycle.Markers
	MarkerSet         = lifecycle.MarkerSet

	Collector = collector.Collector
	Input     = collector.Input
	Fields    = fields.Map
	Pair      = fields.Pair
	Session   = collector.Session

	Client       = client.Client
	ClientOption = client.Option

	Severity = errbuf.Severity
)

// Coordinator options.
var (
	WithLogger      = lifecycle.WithLogger
	WithErrorBuffer = lifecycle.WithErrorBuffer
	WithMarkers     = lifecycle.WithMarkers
	WithCollectors  = lifecycle.WithCollectors
	WithProgress    = lifecycle.WithProgress
	WithReportPath  = lifecycle.WithReportPath
	WithPackages    = lifecycle.WithPackages
	WithClock       = lifecycle.WithClock
	WithMemoryProbe = lifecycle.WithMemoryProbe
)

// Per-test options.
var (
	WithMarker     = lifecycle.WithMarker
	WithClient     = lifecycle.WithClient
	WithLogCapture = lifecycle.WithLogCapture
	WithQueryLog   = lifecycle.WithQueryLog
	WithOutbox     = lifecycle.WithOutbox
	WithValue      = lifecycle.WithValue
	WithSuite      = lifecycle.WithSuite
)

// Client options.
var (
	WithBaseURL       = client.WithBaseURL
	WithHTTPClient    = client.WithHTTPClient
	WithSessionReader = client.WithSessionReader
)

// Runtime error severities.
const (
	SeverityDebug      = errbuf.SeverityDebug
	SeverityNotice     = errbuf.SeverityNotice
	SeverityWarning    = errbuf.SeverityWarning
	SeverityError      = errbuf.SeverityError
	SeverityDevPanic   = errbuf.SeverityDevPanic
	SeverityPanic      = errbuf.SeverityPanic
	SeverityFatal      = errbuf.SeverityFatal
	SeverityDeprecated = errbuf.SeverityDeprecated
)

// FinalStepLabel is the action of the step recorded when a report is written.
const FinalStepLabel = lifecycle.FinalStepLabel

// ErrNoSession is returned by session readers when a request has no session.
var ErrNoSession = collector.ErrNoSession

// Load builds a Coordinator from the environment and .ctxdump.yaml.
func Load(opts ...CoordinatorOption) (*Coordinator, error) {
	return lifecycle.Load(opts...)
}

// MustLoad is like Load but panics on error.
func MustLoad(opts ...CoordinatorOption) *Coordinator {
	c, err := Load(opts...)
	if err != nil {
		panic("ctxdump: " + err.Error())
	}
	return c
}

// NewFields builds an ordered field set for custom collectors.
func NewFields(pairs ...Pair) *Fields {
	return fields.New(pairs...)
}

// NewOutbox returns an in-memory outbox for the Mailer collector.
func NewOutbox() *mailbox.Outbox {
	return mailbox.New()
}

// NewLogCapture is logcapture.Tee: the returned logger writes to base and
// records entries for the report.
var NewLogCapture = logcapture.Tee

// RecordQueries is querylog.New: statements run through the Recorder are
// reported by the Query collector.
var RecordQueries = querylog.New
