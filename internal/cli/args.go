package cli

import (
	"fmt"

	"github.com/yiblet/qrscan/internal/capture"
	"github.com/yiblet/qrscan/internal/export"
)

// Args represents the top-level command structure
type Args struct {
	DBPath     *string `arg:"--db" help:"Database path (default: ~/.config/qrscan/scans.db)"`
	ConfigPath *string `arg:"--config" help:"Config file path (default: ~/.config/qrscan/config.yaml)"`
	LogLevel   *string `arg:"--log-level" help:"Log level: debug, info, warn or error"`

	Scan    *ScanCmd    `arg:"subcommand:scan" help:"Scan QR codes from a camera (default)"`
	List    *ListCmd    `arg:"subcommand:list" help:"List scanned codes"`
	Last    *LastCmd    `arg:"subcommand:last" help:"Print the most recent scan"`
	Export  *ExportCmd  `arg:"subcommand:export" help:"Export the scan history to a file"`
	Clear   *ClearCmd   `arg:"subcommand:clear" help:"Delete the scan history"`
	Decode  *DecodeCmd  `arg:"subcommand:decode" help:"Decode QR codes in image files"`
	Devices *DevicesCmd `arg:"subcommand:devices" help:"List cameras"`
	Render  *RenderCmd  `arg:"subcommand:render" help:"Render a value as a QR code"`
	Serve   *ServeCmd   `arg:"subcommand:serve" help:"Serve the history over HTTP"`
	Config  *ConfigCmd  `arg:"subcommand:config" help:"Manage configuration"`
}

// CameraFlags override the camera section of the configuration.
type CameraFlags struct {
	Device *string `arg:"--device" help:"Camera device ID (see 'qrscan devices')"`
	Policy *string `arg:"--policy" help:"Camera selection policy: environment or back-label"`
	FPS    *int    `arg:"--fps" help:"Frames decoded per second"`
	Box    *int    `arg:"--box" help:"Side of the centred decode box in pixels (0 = whole frame)"`
	Watch  *string `arg:"--watch" help:"Read frames from images dropped into this directory instead of a camera"`
}

// ScanCmd represents the 'qrscan scan' command
type ScanCmd struct {
	CameraFlags
	Headless bool    `arg:"--headless" help:"Print new codes to stdout instead of opening the scanner view"`
	Serve    bool    `arg:"--serve" help:"Also serve the history over HTTP"`
	Addr     *string `arg:"--addr" help:"HTTP listen address for --serve"`
	Format   *string `arg:"-f,--format" help:"Export format used by the e key and scheduled exports"`
}

// ListCmd represents the 'qrscan list' command
type ListCmd struct {
	Limit int  `arg:"-n,--limit" help:"Show only the N most recent scans"`
	JSON  bool `arg:"--json" help:"Print as JSON"`
}

// LastCmd represents the 'qrscan last' command
type LastCmd struct {
	Clipboard bool `arg:"-c,--clipboard" help:"Copy to clipboard"`
	QR        bool `arg:"--qr" help:"Also draw the code in the terminal"`
}

// ExportCmd represents the 'qrscan export' command
type ExportCmd struct {
	Format *string `arg:"-f,--format" help:"Export format: xlsx, csv, json or pdf"`
	Dir    *string `arg:"positional" help:"Output directory (default: the configured export directory)"`
	Stdout bool    `arg:"--stdout" help:"Write to stdout instead of a file"`
}

// ClearCmd represents the 'qrscan clear' command
type ClearCmd struct {
	Force bool `arg:"-f,--force" help:"Skip confirmation prompt"`
}

// DecodeCmd represents the 'qrscan decode' command
type DecodeCmd struct {
	Files []string `arg:"positional,required" help:"Image files (png, jpeg or gif)"`
	Save  bool     `arg:"--save" help:"Record decoded values in the history"`
	Box   int      `arg:"--box" help:"Decode only the centred box of this size"`
}

// DevicesCmd represents the 'qrscan devices' command
type DevicesCmd struct {
	Watch *string `arg:"--watch" help:"List the directory source instead of cameras"`
}

// RenderCmd represents the 'qrscan render' command
type RenderCmd struct {
	Value string  `arg:"positional,required" help:"Value to encode"`
	File  *string `arg:"positional" help:"PNG output file (default: draw in the terminal)"`
	Size  int     `arg:"--size" help:"Image size in pixels" default:"256"`
}

// ServeCmd represents the 'qrscan serve' command
type ServeCmd struct {
	CameraFlags
	Addr   *string `arg:"--addr" help:"HTTP listen address"`
	Camera bool    `arg:"--camera" help:"Also scan from the camera while serving"`
}

// ConfigCmd represents the 'qrscan config' command
type ConfigCmd struct {
	Get  *ConfigGetCmd  `arg:"subcommand:get" help:"Get a configuration value"`
	Set  *ConfigSetCmd  `arg:"subcommand:set" help:"Set a configuration value"`
	List *ConfigListCmd `arg:"subcommand:list" help:"List all configuration values"`
}

// ConfigGetCmd represents the 'qrscan config get' command
type ConfigGetCmd struct {
	Key string `arg:"positional,required" help:"Configuration key (e.g. camera.fps)"`
}

// ConfigSetCmd represents the 'qrscan config set' command
type ConfigSetCmd struct {
	Key   string `arg:"positional,required" help:"Configuration key"`
	Value string `arg:"positional,required" help:"Configuration value"`
}

// ConfigListCmd represents the 'qrscan config list' command
type ConfigListCmd struct{}

// Description returns the program description
func (Args) Description() string {
	return "qrscan - QR code scanner with a deduplicated, exportable scan history"
}

// Version returns the program version
func (Args) Version() string {
	return "qrscan 0.1.0"
}

// Epilogue returns additional help text
func (Args) Epilogue() string {
	return `Examples:
  qrscan                              # Open the scanner view
  qrscan scan --headless              # Print new codes as they are scanned
  qrscan scan --watch ~/Pictures/qr   # Scan images dropped into a directory
  qrscan list -n 10                   # Ten most recent scans
  qrscan last -c                      # Copy the last scan to the clipboard
  qrscan export -f csv                # Export the history as CSV
  qrscan decode photo.jpg --save      # Decode an image and record it
  qrscan render "hello" hello.png     # Write a QR code image
  qrscan serve --addr :8765           # HTTP API, exports and metrics
  qrscan config set camera.fps 15

Environment variables QRSCAN_* override the config file, e.g. QRSCAN_CAMERA_FPS=15.`
}

// Validate performs validation on the parsed arguments
func (args *Args) Validate() error {
	switch {
	case args.Scan != nil:
		return args.Scan.Validate()
	case args.Serve != nil:
		return args.Serve.CameraFlags.Validate()
	case args.Export != nil:
		return args.Export.Validate()
	case args.List != nil:
		return args.List.Validate()
	case args.Render != nil:
		return args.Render.Validate()
	case args.Decode != nil:
		if args.Decode.Box < 0 {
			return fmt.Errorf("box cannot be negative")
		}
	}
	return nil
}

// Validate validates camera flags
func (f *CameraFlags) Validate() error {
	if f.FPS != nil && (*f.FPS <= 0 || *f.FPS > 120) {
		return fmt.Errorf("fps must be between 1 and 120")
	}
	if f.Box != nil && *f.Box < 0 {
		return fmt.Errorf("box cannot be negative")
	}
	if f.Policy != nil {
		if _, err := capture.ParsePolicy(*f.Policy); err != nil {
			return err
		}
	}
	if f.Watch != nil && f.Device != nil {
		return fmt.Errorf("cannot specify both --watch and --device")
	}
	return nil
}

// Validate validates scan command arguments
func (s *ScanCmd) Validate() error {
	if err := s.CameraFlags.Validate(); err != nil {
		return err
	}
	if s.Addr != nil && !s.Serve {
		return fmt.Errorf("--addr requires --serve")
	}
	if s.Format != nil {
		if _, err := export.ForFormat(*s.Format); err != nil {
			return err
		}
	}
	return nil
}

// Validate validates export command arguments
func (e *ExportCmd) Validate() error {
	if e.Dir != nil && e.Stdout {
		return fmt.Errorf("cannot specify both an output directory and --stdout")
	}
	if e.Format != nil {
		if _, err := export.ForFormat(*e.Format); err != nil {
			return err
		}
	}
	return nil
}

// Validate validates list command arguments
func (l *ListCmd) Validate() error {
	if l.Limit < 0 {
		return fmt.Errorf("limit must be non-negative")
	}
	return nil
}

// Validate validates render command arguments
func (r *RenderCmd) Validate() error {
	if r.Value == "" {
		return fmt.Errorf("value cannot be empty")
	}
	if r.Size < 0 {
		return fmt.Errorf("size cannot be negative")
	}
	return nil
}
