// Package crawl defines the core types shared across the crawler subsystems:
// checkpoints, the per-unit ledger state machine, and the resume plan.
package crawl

import (
	"time"
)

// Cursor marks crawl progress: a listing page number or an alert-table row index.
type Cursor int

// CrawlKind selects which remote source shape the orchestrator walks.
type CrawlKind string

// Supported crawl kinds. Listing walks numbered pages of order documents;
// Index walks a rendered table row by row.
const (
	KindListing CrawlKind = "listing"
	KindIndex   CrawlKind = "index"
)

// Checkpoint is the persisted (cursor, last-unit) pair enabling resume.
// Exactly one live record exists per crawl kind; writes overwrite in place.
type Checkpoint struct {
	Kind        CrawlKind `bson:"kind"`
	Cursor      Cursor    `bson:"cursor"`
	LastUnitRef string    `bson:"last_unit_ref,omitempty"`
	RunID       string    `bson:"run_id,omitempty"`
	UpdatedAt   time.Time `bson:"updated_at"`
}

// UnitStatus is the ledger state of a single unit of work.
// Pending is implicit: a unit with no ledger record has never been seen.
type UnitStatus string

// Ledger states. Completed is terminal and permanent; Failed may re-enter
// Processing on a later run.
const (
	StatusProcessing UnitStatus = "processing"
	StatusCompleted  UnitStatus = "completed"
	StatusFailed     UnitStatus = "failed"
)

// UnitRecord is the durable ledger entry for one unit, keyed by its ref.
// Optional fields are pointers so an absent value is distinguishable from a
// zero value at the store boundary.
type UnitRecord struct {
	Ref         string     `bson:"_id"`
	Status      UnitStatus `bson:"status"`
	StartedAt   time.Time  `bson:"started_at"`
	CompletedAt *time.Time `bson:"completed_at,omitempty"`
	FailedAt    *time.Time `bson:"failed_at,omitempty"`
	Error       string     `bson:"error,omitempty"`
	ResultCount *int       `bson:"result_count,omitempty"`
}

// Unit is one discrete item of work discovered on a listing page or table row.
type Unit struct {
	Ref        string
	Title      string
	Date       string
	PageCursor Cursor
}

// Page is one step of the listing walk: a cursor and the units found there,
// in source order.
type Page struct {
	Cursor Cursor
	Units  []Unit
}

// Entity is a derived record produced by the extraction pipeline for one unit.
type Entity struct {
	Name       string    `bson:"entity_name"`
	Type       string    `bson:"entity_type"`
	Sentiment  string    `bson:"sentiment"`
	PAN        string    `bson:"pan,omitempty"`
	CIN        string    `bson:"cin,omitempty"`
	Address    string    `bson:"address,omitempty"`
	SourceRef  string    `bson:"source_ref"`
	SourceName string    `bson:"source_title,omitempty"`
	SourceDate string    `bson:"source_date,omitempty"`
	RunID      string    `bson:"run_id,omitempty"`
	ScrapedAt  time.Time `bson:"scraped_at"`
}

// EntitySummary aggregates derived-record statistics for reporting.
type EntitySummary struct {
	Total             int64   `json:"total"`
	WithPAN           int64   `json:"with_pan"`
	WithCIN           int64   `json:"with_cin"`
	WithAddress       int64   `json:"with_address"`
	NegativeSentiment int64   `json:"negative_sentiment"`
	PANCoverage       float64 `json:"pan_coverage_pct"`
}

// Plan is the resume decision computed at startup: where to start walking and,
// optionally, which unit to fast-forward past on the first page.
type Plan struct {
	StartCursor   Cursor
	ResumeUnitRef string
	Reset         bool
}

// BeginOutcome is the result of attempting to claim a unit in the ledger.
type BeginOutcome int

// Begin outcomes. Started and Retrying both mean the caller owns the unit and
// must drive it to a terminal state. AlreadyCompleted short-circuits the unit.
// InFlight means another (or a recent crashed) run still holds the unit and it
// is not yet stale enough to steal.
const (
	BeginStarted BeginOutcome = iota
	BeginRetrying
	BeginAlreadyCompleted
	BeginInFlight
)

// Outcome is the terminal disposition of one processed unit.
type Outcome int

// Processing outcomes reported by the unit processor.
const (
	OutcomeCompleted Outcome = iota
	OutcomeFailed
	OutcomeSkipped
)

// String returns the metric label for an outcome.
func (o Outcome) String() string {
	switch o {
	case OutcomeCompleted:
		return "completed"
	case OutcomeFailed:
		return "failed"
	case OutcomeSkipped:
		return "skipped"
	default:
		return "unknown"
	}
}

// RunStats summarizes a finished run.
type RunStats struct {
	RunID          string
	PagesWalked    int
	UnitsCompleted int
	UnitsFailed    int
	UnitsSkipped   int
	StartedAt      time.Time
	FinishedAt     time.Time
}

// UnitEvent is published after a unit reaches a terminal state.
type UnitEvent struct {
	RunID       string    `json:"run_id"`
	UnitRef     string    `json:"unit_ref"`
	Status      string    `json:"status"`
	ResultCount int       `json:"result_count"`
	BlobURI     string    `json:"blob_uri,omitempty"`
	ContentHash string    `json:"content_hash,omitempty"`
	Timestamp   time.Time `json:"timestamp"`
}
