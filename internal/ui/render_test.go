package ui

import (
	"bytes"
	"encoding/json"
	"errors"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/kineintra/kineintra/internal/client"
	"github.com/kineintra/kineintra/internal/protocol"
)

func TestRenderSensorTable(t *testing.T) {
	st := testStatus(protocol.StateIdle)
	st.ActiveMap |= 1 << 5 // active beyond SensorCount
	st.SampleRates[5] = 50
	st.BitsPerSample[5] = 16

	table := RenderSensorTable(st)
	lines := strings.Split(table, "\n")
	require.Len(t, lines, 4, "header plus sensors 0, 1 and 5")
	assert.Contains(t, lines[0], "IDX")
	assert.Contains(t, lines[1], "100Hz")
	assert.Contains(t, lines[2], "FAULT")
	assert.Contains(t, lines[3], "50Hz")
	assert.Contains(t, lines[3], "16")
}

func TestRenderStatus(t *testing.T) {
	out := RenderStatus(testStatus(protocol.StateCalibrating))
	assert.Contains(t, out, "CALIBRATING")
	assert.Contains(t, out, "0x00000003")
	assert.Contains(t, out, "0x00000001")
}

func TestRenderStatistics(t *testing.T) {
	var s client.Statistics
	s.CRCErrors = 7
	s.DroppedEvents = 3
	out := RenderStatistics(s)
	assert.Contains(t, out, "CRC errors")
	assert.Contains(t, out, "7")
	assert.Contains(t, out, "Dropped events")
}

func TestResultRender(t *testing.T) {
	ok := NewSuccessResult("GET_STATUS acknowledged", map[string]string{"Seq": "4"}).SetWidth(80).Render()
	assert.Contains(t, ok, "SUCCESS")
	assert.Contains(t, ok, "Seq:")

	fail := NewFailureResult("Connect", errors.New("no such port"), []string{"Check the cable"}).SetWidth(80).Render()
	assert.Contains(t, fail, "FAILED")
	assert.Contains(t, fail, "no such port")
	assert.Contains(t, fail, "Check the cable")
}

func TestHeaderParamsSorted(t *testing.T) {
	out := NewHeader("Status", "kinectl status", map[string]string{"Zeta": "2", "Alpha": "1"}).SetWidth(80).Render()
	assert.Less(t, strings.Index(out, "Alpha"), strings.Index(out, "Zeta"))
	assert.Contains(t, out, "STATUS")
}

func TestRunnerSuccess(t *testing.T) {
	var buf bytes.Buffer
	r := NewRunner(RunnerConfig{
		Title:     "Start",
		Command:   "kinectl start",
		StepNames: []string{"Send START_MEASURE", "Wait for ACK"},
		Output:    &buf,
	}).SetWidth(80)

	details, err := r.Run(func(onStep StepCallback) (map[string]string, error) {
		onStep(1, "", StepRunning, "")
		onStep(1, "", StepComplete, "seq 1")
		onStep(2, "Wait for ACK (OK)", StepComplete, "")
		onStep(9, "", StepComplete, "") // ignored
		return map[string]string{"State": "MEASURING"}, nil
	})
	require.NoError(t, err)
	assert.Equal(t, "MEASURING", details["State"])
	assert.NotEmpty(t, details["Duration"])

	steps := r.Steps()
	assert.Equal(t, StepComplete, steps[0].Status)
	assert.Equal(t, "seq 1", steps[0].Message)
	assert.Equal(t, "Wait for ACK (OK)", steps[1].Name)

	out := buf.String()
	assert.Contains(t, out, "[1/2]")
	assert.Contains(t, out, "Start complete")
}

func TestRunnerFailure(t *testing.T) {
	var buf bytes.Buffer
	r := NewRunner(RunnerConfig{
		Title:           "Calibration",
		StepNames:       []string{"Send CALIBRATE"},
		Troubleshooting: []string{"Stop measuring first"},
		Output:          &buf,
	}).SetWidth(80)

	_, err := r.Run(func(onStep StepCallback) (map[string]string, error) {
		onStep(1, "", StepFailed, "BUSY")
		return nil, errors.New("device answered BUSY")
	})
	require.Error(t, err)
	assert.Equal(t, StepFailed, r.Steps()[0].Status)
	assert.Contains(t, buf.String(), "Calibration failed")
	assert.Contains(t, buf.String(), "Stop measuring first")
}

func TestPrinterJSON(t *testing.T) {
	var buf bytes.Buffer
	p := NewPrinter(&buf)
	p.JSON = true

	p.PrintHeader("Status", "kinectl status", nil)
	p.PrintStatus(testStatus(protocol.StateIdle))

	var got map[string]any
	require.NoError(t, json.Unmarshal(buf.Bytes(), &got))
	assert.Equal(t, "IDLE", got["state"])
	assert.Equal(t, float64(2), got["n_sensors"])
	sensors, ok := got["sensors"].([]any)
	require.True(t, ok)
	assert.Len(t, sensors, 2)
}
