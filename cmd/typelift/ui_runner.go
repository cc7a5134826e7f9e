package main

import (
	"context"
	"os"

	tea "github.com/charmbracelet/bubbletea"

	"typelift/internal/driver"
	"typelift/internal/ui"
)

// runAnalyzeWithUI renders an analysis request through the progress
// view. The analysis runs alongside the program and injects its events
// directly with a ProgramSink; the view quits when the run finishes and
// the outcome is read back afterwards.
func runAnalyzeWithUI(ctx context.Context, req *driver.Request) ([]driver.FileResult, error) {
	program := tea.NewProgram(ui.NewModel(req.Files), tea.WithOutput(os.Stdout))

	var (
		results []driver.FileResult
		runErr  error
	)
	done := make(chan struct{})
	go func() {
		withUI := *req
		withUI.Progress = ui.ProgramSink{Program: program}
		results, runErr = driver.Analyze(ctx, &withUI)
		close(done)
		program.Send(ui.DoneMsg{})
	}()

	_, uiErr := program.Run()
	<-done
	if uiErr != nil {
		return results, uiErr
	}
	return results, runErr
}
