package main

import (
	"context"
	"fmt"
	"time"

	"github.com/spf13/cobra"

	"github.com/kineintra/kineintra/internal/config"
	"github.com/kineintra/kineintra/internal/discovery"
	"github.com/kineintra/kineintra/internal/transport"
)

// Command flags
var (
	scanTimeout time.Duration
	allPorts    bool
)

func init() {
	rootCmd.AddCommand(portsCmd)
	rootCmd.AddCommand(scanCmd)
}

var portsCmd = &cobra.Command{
	Use:   "ports",
	Short: "List serial ports",
	Long: fmt.Sprintf(`List serial ports with USB details. Ports matching the board's USB bridge
(%04X:%04X) are marked; one of them is used when no target is given.`,
		transport.DefaultVID, transport.DefaultPID),
	Args: cobra.NoArgs,
	RunE: runPorts,
}

func init() {
	portsCmd.Flags().BoolVar(&allPorts, "all", false, "Include ports without USB details")
}

type portJSON struct {
	Name    string `json:"name"`
	USB     bool   `json:"usb"`
	VID     string `json:"vid,omitempty"`
	PID     string `json:"pid,omitempty"`
	Serial  string `json:"serial,omitempty"`
	Product string `json:"product,omitempty"`
	Board   bool   `json:"board"`
}

func runPorts(cmd *cobra.Command, args []string) error {
	cmd.SilenceUsage = true

	ports, err := transport.ListPorts()
	if err != nil {
		return err
	}

	p := newPrinter()
	var listed []portJSON
	for _, port := range ports {
		if !port.IsUSB && !allPorts {
			continue
		}
		entry := portJSON{
			Name:    port.Name,
			USB:     port.IsUSB,
			Serial:  port.SerialNumber,
			Product: port.Product,
			Board:   port.Matches(transport.DefaultVID, transport.DefaultPID),
		}
		if port.IsUSB {
			entry.VID = fmt.Sprintf("%04X", port.VID)
			entry.PID = fmt.Sprintf("%04X", port.PID)
		}
		listed = append(listed, entry)

		if !p.JSON {
			marker := " "
			if entry.Board {
				marker = "*"
			}
			p.Println(fmt.Sprintf("%s %s", marker, port))
		}
	}

	if p.JSON {
		if listed == nil {
			listed = []portJSON{}
		}
		p.PrintJSON(listed)
		return nil
	}
	if len(listed) == 0 {
		p.Println("No serial ports found")
		if !allPorts {
			p.Println("Use --all to include ports without USB details")
		}
	}
	return nil
}

var scanCmd = &cobra.Command{
	Use:   "scan",
	Short: "Find simulators and bridges on the network",
	Long: fmt.Sprintf(`Browse mDNS for %s services advertised by 'kinesim serve' and serial
bridges, and print how to reach each one.`, discovery.ServiceType),
	Example: `  kinectl scan
  kinectl scan --scan-timeout 10s --json`,
	Args: cobra.NoArgs,
	RunE: runScan,
}

func init() {
	scanCmd.Flags().DurationVar(&scanTimeout, "scan-timeout", 0, "How long to browse (default from config, 3s)")
}

type endpointJSON struct {
	Instance string            `json:"instance"`
	Kind     string            `json:"kind"`
	Host     string            `json:"host"`
	TCP      string            `json:"tcp"`
	WS       string            `json:"ws,omitempty"`
	Metadata map[string]string `json:"metadata,omitempty"`
}

func runScan(cmd *cobra.Command, args []string) error {
	cmd.SilenceUsage = true

	timeout := scanTimeout
	if timeout <= 0 {
		timeout = discovery.DefaultScanTimeout
		if reg, err := config.LoadRegistry(); err == nil && reg.Preferences != nil && reg.Preferences.DiscoverTimeout > 0 {
			timeout = time.Duration(reg.Preferences.DiscoverTimeout) * time.Second
		}
	}

	p := newPrinter()
	p.PrintHeader("Network scan", "kinectl scan", map[string]string{
		"Service": discovery.ServiceType,
		"Timeout": timeout.String(),
	})

	scanner := discovery.NewScanner()
	scanner.Timeout = timeout
	endpoints, err := scanner.Scan(context.Background())
	if err != nil {
		p.PrintError("Scan failed", err, []string{"mDNS needs multicast on the local network"})
		return err
	}

	if p.JSON {
		out := make([]endpointJSON, 0, len(endpoints))
		for _, e := range endpoints {
			out = append(out, endpointJSON{
				Instance: e.Instance,
				Kind:     e.Kind(),
				Host:     e.Hostname,
				TCP:      e.TCPAddress(),
				WS:       e.WebSocketURL(),
				Metadata: e.Metadata,
			})
		}
		p.PrintJSON(out)
		return nil
	}

	if len(endpoints) == 0 {
		p.Println("No endpoints found")
		return nil
	}
	for _, e := range endpoints {
		p.Println(e.String())
		p.Println(fmt.Sprintf("    kinectl status --tcp %s", e.TCPAddress()))
		if ws := e.WebSocketURL(); ws != "" {
			p.Println(fmt.Sprintf("    kinectl status --ws %s", ws))
		}
	}
	return nil
}
