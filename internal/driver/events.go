// Package driver orchestrates analysis runs: it loads modules, seeds and
// solves them, fans out across input files and reports progress.
package driver

// Stage identifies one phase of the per-file pipeline.
type Stage string

const (
	// StageParse is the IR loading phase.
	StageParse Stage = "parse"
	// StageSeed is the graph seeding phase.
	StageSeed Stage = "seed"
	// StageSolve is the fixed-point solving phase.
	StageSolve Stage = "solve"
	// StageReport is the result collection phase.
	StageReport Stage = "report"
)

// Status is the state of one file within a stage.
type Status string

const (
	// StatusQueued means the file is waiting for a worker.
	StatusQueued Status = "queued"
	// StatusWorking means the stage is running.
	StatusWorking Status = "working"
	// StatusDone means the file finished successfully.
	StatusDone Status = "done"
	// StatusError means the file failed.
	StatusError Status = "error"
)

// Event is one progress notification. Percent carries the module's
// recovered-coverage share and is only meaningful with StatusDone.
type Event struct {
	File    string
	Stage   Stage
	Status  Status
	Percent float64
}

// Steps lists the pipeline stages a file passes through, in order.
// Consumers can derive how far along a file is from the position of its
// current stage.
var Steps = []Stage{StageParse, StageSeed, StageSolve, StageReport}

// Sink receives progress events. Implementations must tolerate calls
// from concurrent file workers.
type Sink interface {
	OnEvent(ev Event)
}

// nopSink drops everything.
type nopSink struct{}

func (nopSink) OnEvent(Event) {}
