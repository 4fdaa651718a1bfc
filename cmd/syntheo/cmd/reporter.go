package cmd

import (
	"fmt"

	"github.com/syntheo/semantics/internal/index"
	"github.com/syntheo/semantics/internal/output"
)

// plainReporter renders index.Reporter progress events as simple status
// lines through an output.Writer, in place of the teacher's bubbletea TUI.
type plainReporter struct {
	out        *output.Writer
	lastStage  index.Stage
	sawStage   bool
	errorCount int
	warnCount  int
}

func newPlainReporter(out *output.Writer) *plainReporter {
	return &plainReporter{out: out}
}

func (r *plainReporter) UpdateProgress(event index.ProgressEvent) {
	if !r.sawStage || event.Stage != r.lastStage {
		r.out.Statusf("▶", "%s", event.Stage)
		r.lastStage = event.Stage
		r.sawStage = true
	}
	if event.Total > 0 {
		r.out.Progress(event.Current, event.Total, event.Message)
	} else if event.Message != "" {
		r.out.Status("", event.Message)
	}
}

func (r *plainReporter) AddError(event index.ErrorEvent) {
	if event.IsWarn {
		r.warnCount++
		r.out.Warningf("%s: %v", event.File, event.Err)
		return
	}
	r.errorCount++
	r.out.Errorf("%s: %v", event.File, event.Err)
}

func (r *plainReporter) Complete(stats index.CompletionStats) {
	r.out.Newline()
	r.out.Successf("Indexed %d files / %d chunks in %s", stats.Files, stats.Chunks, stats.Duration.Round(10e6))
	if stats.Errors > 0 || stats.Warnings > 0 {
		r.out.Status("", fmt.Sprintf("%d errors, %d warnings", stats.Errors, stats.Warnings))
	}
}
