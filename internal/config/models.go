package config

import (
	"fmt"
	"sort"
	"strings"
	"time"

	"github.com/kineintra/kineintra/internal/simulator"
	"github.com/kineintra/kineintra/internal/transport"
)

// CurrentVersion is the only config file version this build reads.
const CurrentVersion = 1

// Defaults applied by NewRegistry and when a loaded file omits them.
const (
	DefaultConnectTimeout  = 3 * time.Second
	DefaultDiscoverTimeout = 3
	DefaultLogLevel        = "info"
)

// Registry represents the entire user configuration file.
// It stores named connection profiles and client preferences.
type Registry struct {
	Version     int                 `yaml:"version"`
	Profiles    map[string]*Profile `yaml:"profiles,omitempty"` // Keyed by profile name
	Preferences *Preferences        `yaml:"preferences,omitempty"`
}

// ProfileKind selects the transport a profile opens.
type ProfileKind string

const (
	KindSerial    ProfileKind = "serial"
	KindTCP       ProfileKind = "tcp"
	KindWebSocket ProfileKind = "ws"
	KindSim       ProfileKind = "sim"
)

// Profile describes how to reach one device.
type Profile struct {
	Kind ProfileKind `yaml:"kind"`

	// serial
	Port string `yaml:"port,omitempty"` // e.g. /dev/ttyUSB0, COM3
	Baud int    `yaml:"baud,omitempty"` // 115200 when zero

	// tcp
	Address string `yaml:"address,omitempty"` // host:port of a bridge or kinesim

	// ws
	URL string `yaml:"url,omitempty"` // ws://host:8889/ws

	// sim
	Source string `yaml:"source,omitempty"` // random, sine or constant

	ConnectTimeout time.Duration `yaml:"connect_timeout,omitempty"`
}

// Preferences represents application-wide client preferences.
type Preferences struct {
	DefaultProfile  string `yaml:"default_profile,omitempty"`
	QueueSize       int    `yaml:"queue_size,omitempty"`       // Poll queue capacity, 1024 when zero
	LogLevel        string `yaml:"log_level,omitempty"`        // debug, info, warn, error
	LogFile         string `yaml:"log_file,omitempty"`         // rotated with lumberjack when set
	DiscoverTimeout int    `yaml:"discover_timeout,omitempty"` // mDNS scan timeout in seconds
}

func defaultPreferences() *Preferences {
	return &Preferences{
		LogLevel:        DefaultLogLevel,
		DiscoverTimeout: DefaultDiscoverTimeout,
	}
}

// NewRegistry creates a new Registry with default values.
func NewRegistry() *Registry {
	return &Registry{
		Version:     CurrentVersion,
		Profiles:    make(map[string]*Profile),
		Preferences: defaultPreferences(),
	}
}

// GetProfile retrieves a profile by name.
// Returns nil if the profile doesn't exist in the registry.
func (r *Registry) GetProfile(name string) *Profile {
	return r.Profiles[name]
}

// SetProfile validates p and stores it under name, replacing any existing entry.
func (r *Registry) SetProfile(name string, p *Profile) error {
	if strings.TrimSpace(name) == "" {
		return fmt.Errorf("profile name must not be empty")
	}
	if err := p.Validate(); err != nil {
		return fmt.Errorf("profile %q: %w", name, err)
	}
	if r.Profiles == nil {
		r.Profiles = make(map[string]*Profile)
	}
	r.Profiles[name] = p
	return nil
}

// RemoveProfile deletes a profile and clears the default if it pointed there.
// Reports whether the profile existed.
func (r *Registry) RemoveProfile(name string) bool {
	if _, ok := r.Profiles[name]; !ok {
		return false
	}
	delete(r.Profiles, name)
	if r.Preferences != nil && r.Preferences.DefaultProfile == name {
		r.Preferences.DefaultProfile = ""
	}
	return true
}

// ProfileNames returns the profile names in sorted order.
func (r *Registry) ProfileNames() []string {
	names := make([]string, 0, len(r.Profiles))
	for name := range r.Profiles {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}

// Resolve looks up name, falling back to the default profile when name is
// empty.
func (r *Registry) Resolve(name string) (*Profile, error) {
	if name == "" && r.Preferences != nil {
		name = r.Preferences.DefaultProfile
	}
	if name == "" {
		return nil, fmt.Errorf("no profile given and no default_profile configured")
	}
	p := r.Profiles[name]
	if p == nil {
		return nil, fmt.Errorf("unknown profile %q", name)
	}
	return p, nil
}

// Validate checks that the fields required by Kind are present.
func (p *Profile) Validate() error {
	if p == nil {
		return fmt.Errorf("profile is nil")
	}
	switch p.Kind {
	case KindSerial:
		if p.Port == "" {
			return fmt.Errorf("serial profile requires port")
		}
		if p.Baud < 0 {
			return fmt.Errorf("invalid baud %d", p.Baud)
		}
	case KindTCP:
		if p.Address == "" {
			return fmt.Errorf("tcp profile requires address")
		}
	case KindWebSocket:
		if !strings.HasPrefix(p.URL, "ws://") && !strings.HasPrefix(p.URL, "wss://") {
			return fmt.Errorf("ws profile requires a ws:// or wss:// url")
		}
	case KindSim:
		if _, err := simulator.NewSource(p.Source, 0); err != nil {
			return err
		}
	default:
		return fmt.Errorf("unknown profile kind %q", p.Kind)
	}
	if p.ConnectTimeout < 0 {
		return fmt.Errorf("negative connect_timeout")
	}
	return nil
}

// Timeout returns the connect timeout, DefaultConnectTimeout when unset.
func (p *Profile) Timeout() time.Duration {
	if p.ConnectTimeout <= 0 {
		return DefaultConnectTimeout
	}
	return p.ConnectTimeout
}

// Target builds the transport target the profile describes.
func (p *Profile) Target() (transport.Target, error) {
	if err := p.Validate(); err != nil {
		return nil, err
	}
	switch p.Kind {
	case KindSerial:
		return transport.SerialTarget{Port: p.Port, BaudRate: p.Baud}, nil
	case KindTCP:
		return transport.TCPTarget{Address: p.Address}, nil
	case KindWebSocket:
		return transport.WebSocketTarget{URL: p.URL}, nil
	default:
		src, err := simulator.NewSource(p.Source, uint64(time.Now().UnixNano()))
		if err != nil {
			return nil, err
		}
		return simulator.NewVirtualTarget(simulator.Config{Source: src}), nil
	}
}

// String summarises the profile for listings.
func (p *Profile) String() string {
	switch p.Kind {
	case KindSerial:
		baud := p.Baud
		if baud == 0 {
			baud = transport.DefaultBaudRate
		}
		return fmt.Sprintf("serial %s @ %d", p.Port, baud)
	case KindTCP:
		return "tcp " + p.Address
	case KindWebSocket:
		return "ws " + p.URL
	case KindSim:
		src := p.Source
		if src == "" {
			src = "random"
		}
		return "sim (" + src + ")"
	default:
		return string(p.Kind)
	}
}
