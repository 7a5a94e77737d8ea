// Package config provides user configuration management for kineintra tools.
//
// This package manages a YAML-based configuration file holding named
// connection profiles and client preferences. kinectl resolves --profile
// against it; explicit transport flags always win over the profile.
//
// # Configuration File Location
//
// The configuration file is stored in platform-appropriate locations:
//   - Linux: $XDG_CONFIG_HOME/kineintra/config.yaml or $HOME/.config/kineintra/config.yaml
//   - macOS: $HOME/.config/kineintra/config.yaml
//   - Windows: %LOCALAPPDATA%\kineintra\config.yaml
//
// KINEINTRA_CONFIG overrides the location on every platform.
//
// # File Format
//
//	version: 1
//	profiles:
//	  rig:
//	    kind: serial          # serial, tcp, ws or sim
//	    port: /dev/ttyUSB0
//	    baud: 115200
//	    connect_timeout: 3s
//	  lab:
//	    kind: ws
//	    url: ws://10.0.0.7:8889/ws
//	preferences:
//	  default_profile: rig
//	  queue_size: 1024
//	  log_level: info
//	  log_file: ~/.cache/kineintra/kinectl.log
//	  discover_timeout: 3
//
// # Usage Example
//
//	registry, err := config.LoadRegistry()
//	if err != nil {
//	    log.Fatal(err)
//	}
//	profile, err := registry.Resolve("")   // default profile
//	if err != nil {
//	    log.Fatal(err)
//	}
//	target, err := profile.Target()
//
// # Thread Safety
//
// The global registry uses sync.Once for safe initialization across goroutines.
// File operations are protected by a mutex to ensure atomic writes.
package config
