package ui

import (
	"fmt"
	"strconv"
	"strings"

	"github.com/charmbracelet/lipgloss"

	"github.com/kineintra/kineintra/internal/client"
	"github.com/kineintra/kineintra/internal/protocol"
)

var (
	cellStyle   = lipgloss.NewStyle().Width(8)
	healthyCell = cellStyle.Foreground(SuccessColor)
	faultCell   = cellStyle.Foreground(ErrorColor)
	mutedCell   = cellStyle.Foreground(MutedColor)
)

// RenderStatus renders a STATUS snapshot: a summary followed by one row per
// configured sensor.
func RenderStatus(st protocol.StatusPayload) string {
	summary := map[string]string{
		"State":      StateStyle(st.State.String()).Render(st.State.String()),
		"Sensors":    strconv.Itoa(int(st.SensorCount)),
		"Active map": fmt.Sprintf("0x%08X", st.ActiveMap),
		"Health map": fmt.Sprintf("0x%08X", st.HealthMap),
		"ADC flags":  fmt.Sprintf("0x%04X", st.ADCFlags),
	}
	return renderDetails(summary) + "\n\n" + RenderSensorTable(st)
}

// RenderSensorTable lists sensors 0..SensorCount-1, plus any active sensor
// beyond that range.
func RenderSensorTable(st protocol.StatusPayload) string {
	head := []string{"IDX", "ACTIVE", "HEALTH", "RATE", "BITS", "ROLE"}
	var b strings.Builder
	for _, h := range head {
		b.WriteString(TableHeaderStyle.Inherit(cellStyle).Render(h))
	}
	b.WriteString("\n")

	for i := 0; i < protocol.MaxSensors; i++ {
		active := st.ActiveMap&(1<<uint(i)) != 0
		if i >= int(st.SensorCount) && !active {
			continue
		}
		row := []string{
			cellStyle.Render(strconv.Itoa(i)),
			boolCell(active, "on", "off", mutedCell),
			boolCell(st.Healthy(i), "ok", "FAULT", faultCell),
			cellStyle.Render(fmt.Sprintf("%dHz", st.SampleRates[i])),
			cellStyle.Render(strconv.Itoa(int(st.BitsPerSample[i]))),
			cellStyle.Render(st.Roles[i].String()),
		}
		b.WriteString(strings.Join(row, ""))
		b.WriteString("\n")
	}
	return strings.TrimRight(b.String(), "\n")
}

func boolCell(v bool, yes, no string, noStyle lipgloss.Style) string {
	if v {
		return healthyCell.Render(yes)
	}
	return noStyle.Render(no)
}

// RenderStatistics renders the client and link counters.
func RenderStatistics(s client.Statistics) string {
	return renderDetails(map[string]string{
		"Frames sent":       strconv.FormatUint(s.FramesSent, 10),
		"Frames received":   strconv.FormatUint(s.FramesReceived, 10),
		"CRC errors":        strconv.FormatUint(s.CRCErrors, 10),
		"Bytes sent":        strconv.FormatUint(s.BytesSent, 10),
		"Bytes received":    strconv.FormatUint(s.BytesReceived, 10),
		"Discarded bytes":   strconv.FormatUint(s.DiscardedBytes, 10),
		"Stall resets":      strconv.FormatUint(s.StallResets, 10),
		"Callback errors":   strconv.FormatUint(s.CallbackErrors, 10),
		"Decode errors":     strconv.FormatUint(s.DecodeErrors, 10),
		"Dropped events":    strconv.FormatUint(s.DroppedEvents, 10),
		"Dropped callbacks": strconv.FormatUint(s.DroppedCallbacks, 10),
	})
}
