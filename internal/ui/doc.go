// Package ui provides terminal output for the kinectl CLI.
//
// It uses Lipgloss for styled, run-once output and Bubble Tea for the one
// interactive view:
//
//   - Header: command banner showing operation name and parameters
//   - Runner: step lines for an exchange (send, wait for ACK, wait for STATUS)
//   - Result: success and failure boxes
//   - RenderStatus / RenderStatistics: device snapshot and link counters
//   - Monitor: live Bubble Tea view fed by client.Client's poll queue
//
// Example:
//
//	runner := ui.NewRunner(ui.RunnerConfig{
//	    Title:     "Calibration",
//	    Command:   "kinectl calibrate --mode 1",
//	    Params:    map[string]string{"Target": target.String()},
//	    StepNames: []string{"Send CALIBRATE", "Wait for ACK", "Wait for STATUS"},
//	})
//	_, err := runner.Run(func(onStep ui.StepCallback) (map[string]string, error) {
//	    onStep(1, "", ui.StepRunning, "")
//	    // ...
//	    return map[string]string{"State": "CALIBRATING"}, nil
//	})
//
// Logging is silent unless KINEINTRA_LOG_LEVEL or --log-level enables it, so
// these components own the terminal.
package ui
