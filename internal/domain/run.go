package domain

import "time"

type RunKind string

const (
	RunImport RunKind = "import"
	RunExport RunKind = "export"
)

// ImportStats holds the counters of one import run.
type ImportStats struct {
	Processed int
	Imported  int
	Skipped   int
	Errors    int
	Images    int
	Duration  time.Duration
}

// ExportStats holds the counters of one export run.
type ExportStats struct {
	Found              int
	Exported           int
	ExportedWithErrors int
	Skipped            int
	Errors             int
	Downloaded         int
	Reused             int
	Duration           time.Duration
}

// RunSummary is the persisted record of a finished pipeline run.
type RunSummary struct {
	ID         int64     `db:"id"`
	Kind       RunKind   `db:"kind"`
	Processed  int       `db:"processed"`
	Succeeded  int       `db:"succeeded"`
	Skipped    int       `db:"skipped"`
	Errors     int       `db:"errors"`
	StartedAt  time.Time `db:"started_at"`
	FinishedAt time.Time `db:"finished_at"`
}

func (s ImportStats) Summary(started time.Time) *RunSummary {
	return &RunSummary{
		Kind:       RunImport,
		Processed:  s.Processed,
		Succeeded:  s.Imported,
		Skipped:    s.Skipped,
		Errors:     s.Errors,
		StartedAt:  started,
		FinishedAt: started.Add(s.Duration),
	}
}

func (s ExportStats) Summary(started time.Time) *RunSummary {
	return &RunSummary{
		Kind:       RunExport,
		Processed:  s.Found,
		Succeeded:  s.Exported,
		Skipped:    s.Skipped,
		Errors:     s.Errors + s.ExportedWithErrors,
		StartedAt:  started,
		FinishedAt: started.Add(s.Duration),
	}
}
