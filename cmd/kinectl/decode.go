package main

import (
	"encoding/hex"
	"fmt"
	"io"
	"os"
	"strings"

	"github.com/spf13/cobra"

	"github.com/kineintra/kineintra/internal/protocol"
	"github.com/kineintra/kineintra/internal/ui"
)

// Command flags
var (
	decodeRaw     bool
	decodeVerbose bool
)

func init() {
	rootCmd.AddCommand(decodeCmd)
	decodeCmd.Flags().BoolVar(&decodeRaw, "raw", false, "Input is binary instead of hex text")
	decodeCmd.Flags().BoolVarP(&decodeVerbose, "verbose", "v", false, "Print every decoded message")
}

var decodeCmd = &cobra.Command{
	Use:   "decode [file...]",
	Short: "Decode a captured byte stream",
	Long: `Run captured bytes through the frame parser and payload decoders and
report what was found: frames per kind, CRC errors, bytes skipped while
resynchronizing and payloads that failed to decode.

Files are read in order as one continuous stream, so a frame may span two
files. With no file, or "-", stdin is read. Hex input may contain
whitespace, commas, colons and 0x prefixes.

DATA frames are decoded with the layout of the most recent STATUS frame.`,
	Example: `  # Decode a hex dump
  kinectl decode capture.hex -v

  # Decode a binary capture
  kinectl decode --raw capture.bin

  # Decode from a pipe
  cat capture.hex | kinectl decode --json`,
	RunE: runDecode,
}

// decodeFailure is one frame that could not be decoded.
type decodeFailure struct {
	Source string `json:"source"`
	Frame  int    `json:"frame"`
	Kind   string `json:"kind"`
	Error  string `json:"error"`
}

// decodeReport summarises a decode run.
type decodeReport struct {
	Sources        int             `json:"sources"`
	Bytes          int             `json:"bytes"`
	Frames         uint64          `json:"frames"`
	CRCErrors      uint64          `json:"crc_errors"`
	DiscardedBytes uint64          `json:"discarded_bytes"`
	Decoded        map[string]int  `json:"decoded"`
	Failures       []decodeFailure `json:"failures"`
	Partial        bool            `json:"partial_frame"`
}

// frameDecoder decodes a stream fed in pieces, keeping the sample layout
// announced by STATUS frames.
type frameDecoder struct {
	reasm   *protocol.Reassembler
	layout  *protocol.SampleLayout
	report  decodeReport
	frameN  int
	verbose io.Writer
}

func newFrameDecoder(verbose io.Writer) *frameDecoder {
	return &frameDecoder{
		// Captures have no timing, so stall detection is off.
		reasm:   protocol.NewReassembler(protocol.WithStallTimeout(0)),
		report:  decodeReport{Decoded: make(map[string]int), Failures: []decodeFailure{}},
		verbose: verbose,
	}
}

func (d *frameDecoder) feed(source string, data []byte) {
	d.report.Sources++
	d.report.Bytes += len(data)

	for _, f := range d.reasm.Process(data) {
		d.frameN++
		if !f.CRCValid {
			d.fail(source, f, fmt.Errorf("bad CRC 0x%04x", f.CRC))
			continue
		}
		msg, err := protocol.Decode(&f, d.layout)
		if err != nil {
			d.fail(source, f, err)
			continue
		}
		if st, ok := msg.(protocol.StatusPayload); ok {
			layout := st.Layout()
			d.layout = &layout
		}
		d.report.Decoded[f.Kind.String()]++
		if d.verbose != nil {
			_, _ = fmt.Fprintf(d.verbose, "#%-5d %s\n", d.frameN, msg)
		}
	}
}

func (d *frameDecoder) fail(source string, f protocol.Frame, err error) {
	d.report.Failures = append(d.report.Failures, decodeFailure{
		Source: source,
		Frame:  d.frameN,
		Kind:   f.Kind.String(),
		Error:  err.Error(),
	})
	if d.verbose != nil {
		_, _ = fmt.Fprintf(d.verbose, "#%-5d %s: %v\n", d.frameN, f.Kind, err)
	}
}

// finish returns the report with the parser counters filled in.
func (d *frameDecoder) finish() decodeReport {
	stats := d.reasm.Stats()
	d.report.Frames = stats.Frames
	d.report.CRCErrors = stats.CRCErrors
	d.report.DiscardedBytes = stats.DiscardedBytes
	d.report.Partial = d.reasm.State() != protocol.WaitSOF1
	return d.report
}

// parseHex decodes hex text, ignoring separators and 0x prefixes.
func parseHex(text string) ([]byte, error) {
	text = strings.NewReplacer(",", " ", ":", " ").Replace(text)
	var b strings.Builder
	for _, tok := range strings.Fields(text) {
		tok = strings.TrimPrefix(strings.TrimPrefix(tok, "0x"), "0X")
		b.WriteString(tok)
	}
	data, err := hex.DecodeString(b.String())
	if err != nil {
		return nil, fmt.Errorf("invalid hex input: %w", err)
	}
	return data, nil
}

func readSource(name string, raw bool) ([]byte, error) {
	var (
		data []byte
		err  error
	)
	if name == "-" {
		data, err = io.ReadAll(os.Stdin)
	} else {
		data, err = os.ReadFile(name)
	}
	if err != nil {
		return nil, fmt.Errorf("failed to read %s: %w", name, err)
	}
	if raw {
		return data, nil
	}
	return parseHex(string(data))
}

func runDecode(cmd *cobra.Command, args []string) error {
	cmd.SilenceUsage = true
	if len(args) == 0 {
		args = []string{"-"}
	}

	p := newPrinter()
	var verbose io.Writer
	if decodeVerbose && !p.JSON {
		verbose = os.Stdout
	}

	dec := newFrameDecoder(verbose)
	for _, name := range args {
		data, err := readSource(name, decodeRaw)
		if err != nil {
			return err
		}
		dec.feed(name, data)
	}
	report := dec.finish()

	if p.JSON {
		p.PrintJSON(report)
	} else {
		printDecodeReport(p, report)
	}
	if n := len(report.Failures); n > 0 {
		return fmt.Errorf("%d of %d frames failed to decode", n, report.Frames)
	}
	return nil
}

const maxFailuresShown = 10

func printDecodeReport(p *ui.Printer, r decodeReport) {
	details := map[string]string{
		"Bytes":           fmt.Sprint(r.Bytes),
		"Frames":          fmt.Sprint(r.Frames),
		"CRC errors":      fmt.Sprint(r.CRCErrors),
		"Discarded bytes": fmt.Sprint(r.DiscardedBytes),
	}
	for kind, n := range r.Decoded {
		details[kind] = fmt.Sprint(n)
	}
	if r.Partial {
		details["Trailing"] = "incomplete frame"
	}

	if len(r.Failures) == 0 {
		p.Newline()
		p.PrintSuccess("Decoded all frames", details)
		return
	}

	var b strings.Builder
	for i, f := range r.Failures {
		if i == maxFailuresShown {
			fmt.Fprintf(&b, "... %d more\n", len(r.Failures)-maxFailuresShown)
			break
		}
		fmt.Fprintf(&b, "  %s frame #%d (%s): %s\n", f.Source, f.Frame, f.Kind, f.Error)
	}
	p.Newline()
	p.Println(strings.TrimRight(b.String(), "\n"))
	p.Newline()
	p.Println(ui.NewWarningResult(fmt.Sprintf("%d frames failed to decode", len(r.Failures)), details).SetWidth(p.Width()).Render())
}
