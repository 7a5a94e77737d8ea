package ui

import (
	"encoding/json"
	"fmt"
	"io"
	"os"

	"github.com/kineintra/kineintra/internal/client"
	"github.com/kineintra/kineintra/internal/protocol"
)

// Printer writes styled kinectl output. With JSON set, the structured
// printers emit JSON instead so output can be piped.
type Printer struct {
	out   io.Writer
	width int
	JSON  bool
}

// NewPrinter creates a new Printer that writes to the given writer.
// If w is nil, os.Stdout is used.
func NewPrinter(w io.Writer) *Printer {
	if w == nil {
		w = os.Stdout
	}
	return &Printer{
		out:   w,
		width: GetTerminalWidth(),
	}
}

// Width returns the terminal width used by this printer
func (p *Printer) Width() int {
	return p.width
}

// SetWidth overrides the detected terminal width.
func (p *Printer) SetWidth(width int) *Printer {
	p.width = width
	return p
}

// Println writes content with a newline
func (p *Printer) Println(content string) {
	_, _ = fmt.Fprintln(p.out, content)
}

// Newline prints an empty line
func (p *Printer) Newline() {
	_, _ = fmt.Fprintln(p.out)
}

// PrintHeader prints a command header box
func (p *Printer) PrintHeader(title, command string, params map[string]string) {
	if p.JSON {
		return
	}
	p.Println(NewHeader(title, command, params).SetWidth(p.width).Render())
	p.Newline()
}

// PrintSuccess prints a success result box
func (p *Printer) PrintSuccess(title string, details map[string]string) {
	if p.JSON {
		p.printJSON(details)
		return
	}
	p.Println(NewSuccessResult(title, details).SetWidth(p.width).Render())
}

// PrintError prints an error result box with troubleshooting tips
func (p *Printer) PrintError(title string, err error, troubleshooting []string) {
	if p.JSON {
		p.printJSON(map[string]string{"error": err.Error()})
		return
	}
	p.Println(NewFailureResult(title, err, troubleshooting).SetWidth(p.width).Render())
}

// PrintStatus prints a STATUS snapshot
func (p *Printer) PrintStatus(st protocol.StatusPayload) {
	if p.JSON {
		p.printJSON(statusJSON(st))
		return
	}
	p.Println(BoxStyle(p.width, PrimaryColor).Render(RenderStatus(st)))
}

// PrintStatistics prints connection counters
func (p *Printer) PrintStatistics(s client.Statistics) {
	if p.JSON {
		p.printJSON(s)
		return
	}
	p.Println(BoxStyle(p.width, MutedColor).Render(RenderStatistics(s)))
}

// PrintJSON writes v as indented JSON regardless of mode.
func (p *Printer) PrintJSON(v any) {
	p.printJSON(v)
}

func (p *Printer) printJSON(v any) {
	enc := json.NewEncoder(p.out)
	enc.SetIndent("", "  ")
	_ = enc.Encode(v)
}

type sensorJSON struct {
	Index   int    `json:"index"`
	Active  bool   `json:"active"`
	Healthy bool   `json:"healthy"`
	RateHz  uint16 `json:"rate_hz"`
	Bits    uint8  `json:"bits"`
	Role    string `json:"role"`
}

func statusJSON(st protocol.StatusPayload) any {
	sensors := make([]sensorJSON, 0, st.SensorCount)
	for i := 0; i < int(st.SensorCount) && i < protocol.MaxSensors; i++ {
		sensors = append(sensors, sensorJSON{
			Index:   i,
			Active:  st.ActiveMap&(1<<uint(i)) != 0,
			Healthy: st.Healthy(i),
			RateHz:  st.SampleRates[i],
			Bits:    st.BitsPerSample[i],
			Role:    st.Roles[i].String(),
		})
	}
	return map[string]any{
		"state":      st.State.String(),
		"n_sensors":  st.SensorCount,
		"active_map": st.ActiveMap,
		"health_map": st.HealthMap,
		"adc_flags":  st.ADCFlags,
		"sensors":    sensors,
	}
}
