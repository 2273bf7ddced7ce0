package audit

import "time"

// Entry represents a single audit log record: one executed line.
type Entry struct {
	Seq       uint64    `json:"seq"`
	Time      time.Time `json:"ts"`
	Session   string    `json:"session"` // one id per shell process
	PrevHash  string    `json:"prev_hash"`
	Line      string    `json:"line"`              // raw input line
	Commands  []string  `json:"commands"`          // program name of each stage
	ExitCodes []int     `json:"exit_codes"`        // one per stage that ran
	Builtin   bool      `json:"builtin,omitempty"` // handled by the shell itself
	Error     string    `json:"error,omitempty"`   // syntax, redirect or resource error
	Duration  float64   `json:"duration_ms"`       // execution time in milliseconds
	Cwd       string    `json:"cwd"`               // working directory
	Hash      string    `json:"hash"`              // SHA-256 of this entry (with hash field empty)
}

// Record is what a caller knows about a line after running it.
type Record struct {
	Line      string
	Commands  []string
	ExitCodes []int
	Builtin   bool
	Err       error
	Duration  time.Duration
	Cwd       string
}
