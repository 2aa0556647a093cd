package cli

import (
	"bufio"
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"image"
	_ "image/gif"
	_ "image/jpeg"
	_ "image/png"
	"io"
	"log/slog"
	"os"
	"strings"
	"sync"
	"text/tabwriter"
	"time"

	tea "github.com/charmbracelet/bubbletea"

	"github.com/yiblet/qrscan/internal/appfs"
	"github.com/yiblet/qrscan/internal/capture"
	"github.com/yiblet/qrscan/internal/capture/dirwatch"
	"github.com/yiblet/qrscan/internal/capture/ffcam"
	"github.com/yiblet/qrscan/internal/clipboard"
	"github.com/yiblet/qrscan/internal/clipboard/sysboard"
	"github.com/yiblet/qrscan/internal/config"
	"github.com/yiblet/qrscan/internal/export"
	"github.com/yiblet/qrscan/internal/logging"
	"github.com/yiblet/qrscan/internal/metrics"
	"github.com/yiblet/qrscan/internal/qrcode"
	"github.com/yiblet/qrscan/internal/server"
	"github.com/yiblet/qrscan/internal/session"
	"github.com/yiblet/qrscan/internal/store"
	"github.com/yiblet/qrscan/internal/store/dbstore"
	"github.com/yiblet/qrscan/internal/tui"
)

// appendTimeout bounds a single history write made from the capture loop.
const appendTimeout = 5 * time.Second

// CLI handles the command-line interface
type CLI struct {
	fs         *appfs.AppFS
	cfgManager *config.ConfigManager
	cfg        *config.Config
	logger     *slog.Logger
	clipboard  clipboard.Clipboard

	stdin  io.Reader
	stdout io.Writer
	stderr io.Writer

	// newDriver builds the frame source for a --watch directory, or a camera
	// driver when watch is empty.
	newDriver func(watch string, logger *slog.Logger) capture.Driver

	db *dbstore.SQLiteStore
}

// New creates a new CLI instance
func New() (*CLI, error) {
	return NewWithArgs(nil)
}

// NewWithArgs creates a CLI from the global flags. Configuration is read from
// the config file, then .env, then QRSCAN_* variables, then the flags.
func NewWithArgs(args *Args) (*CLI, error) {
	if args == nil {
		args = &Args{}
	}

	fs, err := appfs.New()
	if err != nil {
		return nil, err
	}

	var cm *config.ConfigManager
	if args.ConfigPath != nil {
		cm = config.NewConfigManagerWithPath(*args.ConfigPath)
	} else {
		cm = config.NewConfigManagerWithPath(fs.ConfigPath())
	}

	cfg, err := cm.LoadEffective(".env")
	if err != nil {
		return nil, err
	}
	if args.DBPath != nil {
		cfg.DBPath = *args.DBPath
	}
	if args.LogLevel != nil {
		cfg.Log.Level = *args.LogLevel
	}

	logger, err := logging.New(os.Stderr, cfg.Logging())
	if err != nil {
		return nil, err
	}

	return &CLI{
		fs:         fs,
		cfgManager: cm,
		cfg:        cfg,
		logger:     logger,
		clipboard:  sysboard.New(),
		stdin:      os.Stdin,
		stdout:     os.Stdout,
		stderr:     os.Stderr,
		newDriver:  defaultDriver,
	}, nil
}

func defaultDriver(watch string, logger *slog.Logger) capture.Driver {
	if watch != "" {
		return dirwatch.New(watch, logger)
	}
	return ffcam.New(logger)
}

// Close releases the database, if it was opened.
func (c *CLI) Close() error {
	if c.db == nil {
		return nil
	}
	err := c.db.Close()
	c.db = nil
	return err
}

// openStore opens the history database on first use.
func (c *CLI) openStore() (*dbstore.SQLiteStore, error) {
	if c.db != nil {
		return c.db, nil
	}
	path, err := c.fs.DBPath(c.cfg.DBPath)
	if err != nil {
		return nil, err
	}
	db, err := dbstore.NewSQLiteStore(path)
	if err != nil {
		return nil, fmt.Errorf("failed to create database store: %w", err)
	}
	c.db = db
	return db, nil
}

// loadRecords reads the stored history in insertion order.
func (c *CLI) loadRecords(ctx context.Context) ([]*store.ScanRecord, error) {
	db, err := c.openStore()
	if err != nil {
		return nil, err
	}
	records, err := db.History().LoadAll(ctx)
	if err != nil {
		return nil, fmt.Errorf("failed to load history: %w", err)
	}
	return records, nil
}

// Execute runs the CLI command based on parsed arguments
func (c *CLI) Execute(ctx context.Context, args *Args) error {
	if err := args.Validate(); err != nil {
		return err
	}

	switch {
	case args.List != nil:
		return c.executeList(ctx, args.List)
	case args.Last != nil:
		return c.executeLast(ctx, args.Last)
	case args.Export != nil:
		return c.executeExport(ctx, args.Export)
	case args.Clear != nil:
		return c.executeClear(ctx, args.Clear)
	case args.Decode != nil:
		return c.executeDecode(ctx, args.Decode)
	case args.Devices != nil:
		return c.executeDevices(ctx, args.Devices)
	case args.Render != nil:
		return c.executeRender(args.Render)
	case args.Serve != nil:
		return c.executeServe(ctx, args.Serve)
	case args.Config != nil:
		return c.executeConfig(args.Config)
	case args.Scan != nil:
		return c.executeScan(ctx, args.Scan)
	default:
		return c.executeScan(ctx, &ScanCmd{})
	}
}

// captureConfig applies camera flags over the configured camera section.
func (c *CLI) captureConfig(f CameraFlags) capture.Config {
	cfg := c.cfg.Capture()
	if f.Device != nil {
		cfg.DeviceID = *f.Device
	}
	if f.Policy != nil {
		cfg.Policy = capture.Policy(*f.Policy)
	}
	if f.FPS != nil {
		cfg.FPS = *f.FPS
	}
	if f.Box != nil {
		cfg.Box = *f.Box
	}
	return cfg
}

func watchDir(f CameraFlags) string {
	if f.Watch == nil {
		return ""
	}
	return *f.Watch
}

// pipeline is a live session with its capture, metrics and exports wired up.
type pipeline struct {
	sess      *session.Session
	metrics   *metrics.Collector
	exporter  export.Exporter
	exportDir string
	scheduler *export.Scheduler
	logger    *slog.Logger
}

// newPipeline opens the store and builds a session fed by the configured
// frame source. onEvent receives every session event after metrics have seen
// it.
func (c *CLI) newPipeline(ctx context.Context, flags CameraFlags, format string, logger *slog.Logger, onEvent func(session.Event)) (*pipeline, error) {
	exporter, err := export.ForFormat(format)
	if err != nil {
		return nil, err
	}
	exportDir, err := c.fs.ExportDir(c.cfg.ExportDir)
	if err != nil {
		return nil, err
	}
	db, err := c.openStore()
	if err != nil {
		return nil, err
	}

	collector := metrics.NewCollector(nil)
	capturer := capture.New(c.newDriver(watchDir(flags), logger),
		capture.WithObserver(collector),
		capture.WithLogger(logger),
	)

	sess, err := session.New(ctx, db.History(), session.Options{
		Capturer:      capturer,
		TimeLayout:    c.cfg.TimeFormat,
		AppendTimeout: appendTimeout,
		Observer:      collector,
		Logger:        logger,
		OnEvent: func(ev session.Event) {
			collector.HandleEvent(ev)
			if onEvent != nil {
				onEvent(ev)
			}
		},
	})
	if err != nil {
		return nil, err
	}
	collector.SetHistorySize(sess.Len())

	p := &pipeline{
		sess:      sess,
		metrics:   collector,
		exporter:  exporter,
		exportDir: exportDir,
		logger:    logger,
	}

	if c.cfg.ExportSchedule != "" {
		sched, err := export.NewScheduler(c.cfg.ExportSchedule, exporter, exportDir, sess,
			export.WithSchedulerLogger(logger),
			export.WithResultHandler(func(r export.Result) {
				collector.RecordExport(exporter.Format(), r.Err, r.Duration)
				if r.Err == nil {
					c.noteExport(logger, r.Path)
				}
			}),
		)
		if err != nil {
			sess.Close()
			return nil, err
		}
		if err := sched.Start(ctx); err != nil {
			sess.Close()
			return nil, err
		}
		p.scheduler = sched
	}

	return p, nil
}

// exportFile writes the records to the export directory and records the run.
func (p *pipeline) exportFile(ctx context.Context, c *CLI, records []*store.ScanRecord) (string, error) {
	start := time.Now()
	path, err := export.ToFile(ctx, p.exporter, records, p.exportDir, start)
	if !errors.Is(err, export.ErrNoRecords) {
		p.metrics.RecordExport(p.exporter.Format(), err, time.Since(start))
	}
	if err == nil {
		c.noteExport(p.logger, path)
	}
	return path, err
}

func (p *pipeline) Close() error {
	if p.scheduler != nil {
		p.scheduler.Stop()
	}
	return p.sess.Close()
}

// noteExport remembers the last export in the meta table. Failures go to
// logger, which is the log file while the scanner view owns the terminal.
func (c *CLI) noteExport(logger *slog.Logger, path string) {
	if c.db == nil {
		return
	}
	meta := c.db.Meta()
	if err := meta.Set(store.MetaLastExport, time.Now().Format(time.RFC3339)); err != nil {
		logger.Warn("failed to record export", "error", err)
		return
	}
	if err := meta.Set(store.MetaLastExportPath, path); err != nil {
		logger.Warn("failed to record export", "error", err)
	}
}

// serveInBackground runs the HTTP surface until ctx ends. The returned
// channel yields the server's exit error.
func serveInBackground(ctx context.Context, p *pipeline, addr string) <-chan error {
	srv := server.New(p.sess, server.Options{
		Metrics: p.metrics.Handler(),
		Exports: p.metrics,
		Logger:  p.logger,
	})
	errc := make(chan error, 1)
	go func() {
		errc <- srv.ListenAndServe(ctx, addr)
	}()
	return errc
}

// executeScan handles the 'qrscan scan' command
func (c *CLI) executeScan(ctx context.Context, cmd *ScanCmd) error {
	format := c.cfg.ExportFormat
	if cmd.Format != nil {
		format = *cmd.Format
	}
	capCfg := c.captureConfig(cmd.CameraFlags)

	ctx, cancel := context.WithCancel(ctx)
	defer cancel()

	if cmd.Headless {
		return c.scanHeadless(ctx, cmd, format, capCfg)
	}

	logFile, err := c.fs.OpenLog()
	if err != nil {
		return fmt.Errorf("failed to open log file: %w", err)
	}
	defer logFile.Close()
	logger, err := logging.New(logFile, c.cfg.Logging())
	if err != nil {
		return err
	}

	bridge := tui.NewEventBridge(64)
	p, err := c.newPipeline(ctx, cmd.CameraFlags, format, logger, bridge.Send)
	if err != nil {
		return err
	}
	defer func() {
		p.Close()
		bridge.Close()
	}()

	if cmd.Serve {
		serveInBackground(ctx, p, c.serveAddr(cmd.Addr))
	}

	model := tui.NewAppModel(ctx, p.sess, tui.Config{
		Capture:   capCfg,
		AutoStart: c.cfg.Camera.AutoStart,
		Clipboard: c.clipboard,
		Events:    bridge.Events(),
		Export: func(ctx context.Context, records []*store.ScanRecord) (string, error) {
			return p.exportFile(ctx, c, records)
		},
	})
	prog := tea.NewProgram(&model, tea.WithAltScreen(), tea.WithContext(ctx))
	if _, err := prog.Run(); err != nil && !errors.Is(err, tea.ErrProgramKilled) {
		return err
	}
	return nil
}

// scanHeadless prints each new value on its own line until ctx ends or the
// camera fails.
func (c *CLI) scanHeadless(ctx context.Context, cmd *ScanCmd, format string, capCfg capture.Config) error {
	out := newLineWriter(c.stdout)
	failed := make(chan error, 1)

	p, err := c.newPipeline(ctx, cmd.CameraFlags, format, c.logger, func(ev session.Event) {
		switch ev.Kind {
		case session.RecordAdded:
			out.println(ev.Record.Value)
		case session.CaptureFailed:
			select {
			case failed <- ev.Err:
			default:
			}
		}
	})
	if err != nil {
		return err
	}
	defer p.Close()

	var serveErr <-chan error
	if cmd.Serve {
		addr := c.serveAddr(cmd.Addr)
		serveErr = serveInBackground(ctx, p, addr)
		fmt.Fprintf(c.stderr, "Serving on http://%s\n", addr)
	}

	if err := p.sess.Start(ctx, capCfg); err != nil {
		return err
	}
	if dev, ok := p.sess.Device(); ok {
		fmt.Fprintf(c.stderr, "Scanning with %s (Ctrl+C to stop)\n", dev)
	}

	select {
	case <-ctx.Done():
	case err := <-failed:
		return fmt.Errorf("capture stopped: %w", err)
	case err := <-serveErr:
		if err != nil {
			return err
		}
	}
	return p.sess.Stop()
}

func (c *CLI) serveAddr(flag *string) string {
	if flag != nil {
		return *flag
	}
	return c.cfg.ServeAddr
}

// executeServe handles the 'qrscan serve' command
func (c *CLI) executeServe(ctx context.Context, cmd *ServeCmd) error {
	ctx, cancel := context.WithCancel(ctx)
	defer cancel()

	out := newLineWriter(c.stdout)
	p, err := c.newPipeline(ctx, cmd.CameraFlags, c.cfg.ExportFormat, c.logger, func(ev session.Event) {
		if ev.Kind == session.RecordAdded {
			out.println(ev.Record.Value)
		}
	})
	if err != nil {
		return err
	}
	defer p.Close()

	if cmd.Camera {
		if err := p.sess.Start(ctx, c.captureConfig(cmd.CameraFlags)); err != nil {
			return err
		}
	}

	addr := c.serveAddr(cmd.Addr)
	fmt.Fprintf(c.stderr, "Serving %d scans on http://%s\n", p.sess.Len(), addr)
	return <-serveInBackground(ctx, p, addr)
}

// executeList handles the 'qrscan list' command
func (c *CLI) executeList(ctx context.Context, cmd *ListCmd) error {
	records, err := c.loadRecords(ctx)
	if err != nil {
		return err
	}
	if cmd.Limit > 0 && len(records) > cmd.Limit {
		records = records[len(records)-cmd.Limit:]
	}

	if cmd.JSON {
		out := make([]server.ScanJSON, 0, len(records))
		for _, r := range records {
			out = append(out, server.ToJSON(r))
		}
		enc := json.NewEncoder(c.stdout)
		enc.SetIndent("", "  ")
		return enc.Encode(out)
	}

	if len(records) == 0 {
		fmt.Fprintln(c.stdout, "No scans yet.")
		return nil
	}

	tw := tabwriter.NewWriter(c.stdout, 0, 4, 2, ' ', 0)
	fmt.Fprintln(tw, "ID\tTIME\tVALUE")
	for _, r := range records {
		fmt.Fprintf(tw, "%d\t%s\t%s\n", r.ID, r.Time, oneLine(r.Value))
	}
	return tw.Flush()
}

// executeLast handles the 'qrscan last' command
func (c *CLI) executeLast(ctx context.Context, cmd *LastCmd) error {
	records, err := c.loadRecords(ctx)
	if err != nil {
		return err
	}
	if len(records) == 0 {
		return fmt.Errorf("no scans yet")
	}
	last := records[len(records)-1]

	fmt.Fprintln(c.stdout, last.Value)

	if cmd.QR {
		art, err := qrcode.RenderText(last.Value)
		if err != nil {
			return err
		}
		fmt.Fprint(c.stdout, art)
	}

	if cmd.Clipboard {
		msg, err := clipboard.Copy(c.clipboard, last.Value)
		if err != nil {
			return err
		}
		fmt.Fprintln(c.stderr, msg)
	}
	return nil
}

// executeExport handles the 'qrscan export' command
func (c *CLI) executeExport(ctx context.Context, cmd *ExportCmd) error {
	format := c.cfg.ExportFormat
	if cmd.Format != nil {
		format = *cmd.Format
	}
	exporter, err := export.ForFormat(format)
	if err != nil {
		return err
	}

	records, err := c.loadRecords(ctx)
	if err != nil {
		return err
	}
	if len(records) == 0 {
		return export.ErrNoRecords
	}

	if cmd.Stdout {
		var buf bytes.Buffer
		if err := exporter.Export(ctx, records, &buf); err != nil {
			return err
		}
		_, err := buf.WriteTo(c.stdout)
		return err
	}

	var dir string
	if cmd.Dir != nil {
		dir = *cmd.Dir
		if err := os.MkdirAll(dir, 0755); err != nil {
			return fmt.Errorf("failed to create export directory: %w", err)
		}
	} else if dir, err = c.fs.ExportDir(c.cfg.ExportDir); err != nil {
		return err
	}

	path, err := export.ToFile(ctx, exporter, records, dir, time.Now())
	if err != nil {
		return err
	}
	c.noteExport(c.logger, path)

	fmt.Fprintf(c.stdout, "Exported %d records to %s\n", len(records), path)
	return nil
}

// executeClear handles the 'qrscan clear' command
func (c *CLI) executeClear(ctx context.Context, cmd *ClearCmd) error {
	db, err := c.openStore()
	if err != nil {
		return err
	}
	count, err := db.History().Count(ctx)
	if err != nil {
		return fmt.Errorf("failed to count history: %w", err)
	}

	if count == 0 {
		fmt.Fprintln(c.stdout, "History is already empty.")
		return nil
	}

	if !cmd.Force {
		fmt.Fprintf(c.stdout, "This will delete %d scan(s) from history. Continue? [y/N]: ", count)
		response, _ := bufio.NewReader(c.stdin).ReadString('\n')
		response = strings.ToLower(strings.TrimSpace(response))
		if response != "y" && response != "yes" {
			fmt.Fprintln(c.stdout, "Cancelled.")
			return nil
		}
	}

	if err := db.History().Clear(ctx); err != nil {
		return fmt.Errorf("failed to clear history: %w", err)
	}

	fmt.Fprintf(c.stdout, "Cleared %d scan(s) from history.\n", count)
	return nil
}

// executeDecode handles the 'qrscan decode' command
func (c *CLI) executeDecode(ctx context.Context, cmd *DecodeCmd) error {
	dec := &qrcode.Decoder{Box: cmd.Box, TryHarder: true}

	var sess *session.Session
	if cmd.Save {
		db, err := c.openStore()
		if err != nil {
			return err
		}
		sess, err = session.New(ctx, db.History(), session.Options{
			TimeLayout: c.cfg.TimeFormat,
			Logger:     c.logger,
		})
		if err != nil {
			return err
		}
		defer sess.Close()
		ctx = logging.WithSessionID(logging.WithSource(ctx, "decode"), sess.ID())
	}

	var failed int
	for _, name := range cmd.Files {
		value, err := decodeFile(dec, name)
		if err != nil {
			failed++
			fmt.Fprintf(c.stderr, "%s: %v\n", name, err)
			continue
		}

		if sess == nil {
			fmt.Fprintln(c.stdout, value)
			continue
		}

		_, added, err := sess.Handle(ctx, value)
		switch {
		case err != nil:
			return fmt.Errorf("failed to save %s: %w", name, err)
		case added:
			fmt.Fprintf(c.stdout, "%s\t(new)\n", value)
		default:
			fmt.Fprintf(c.stdout, "%s\t(duplicate)\n", value)
		}
	}

	if failed > 0 {
		return fmt.Errorf("%d of %d file(s) could not be decoded", failed, len(cmd.Files))
	}
	return nil
}

func decodeFile(dec *qrcode.Decoder, name string) (string, error) {
	f, err := os.Open(name)
	if err != nil {
		return "", err
	}
	defer f.Close()

	img, _, err := image.Decode(f)
	if err != nil {
		return "", fmt.Errorf("not a supported image: %w", err)
	}
	return dec.Decode(img)
}

// executeDevices handles the 'qrscan devices' command
func (c *CLI) executeDevices(ctx context.Context, cmd *DevicesCmd) error {
	var watch string
	if cmd.Watch != nil {
		watch = *cmd.Watch
	}
	devices, err := c.newDriver(watch, c.logger).Devices(ctx)
	if err != nil {
		return fmt.Errorf("failed to list devices: %w", err)
	}

	capCfg := c.cfg.Capture()
	picked, err := capture.SelectDevice(devices, capCfg.Policy, capCfg.DeviceID)
	if errors.Is(err, capture.ErrNoDevice) && len(devices) == 0 {
		fmt.Fprintln(c.stdout, "No cameras found.")
		return nil
	}

	tw := tabwriter.NewWriter(c.stdout, 0, 4, 2, ' ', 0)
	fmt.Fprintln(tw, "\tID\tLABEL\tFACING")
	for _, d := range devices {
		mark := ""
		if err == nil && d.ID == picked.ID {
			mark = "*"
		}
		facing := string(d.Facing)
		if facing == "" {
			facing = "-"
		}
		fmt.Fprintf(tw, "%s\t%s\t%s\t%s\n", mark, d.ID, d.Label, facing)
	}
	if flushErr := tw.Flush(); flushErr != nil {
		return flushErr
	}
	return err
}

// executeRender handles the 'qrscan render' command
func (c *CLI) executeRender(cmd *RenderCmd) error {
	if cmd.File == nil {
		art, err := qrcode.RenderText(cmd.Value)
		if err != nil {
			return err
		}
		fmt.Fprint(c.stdout, art)
		return nil
	}

	size := cmd.Size
	if size == 0 {
		size = qrcode.DefaultRenderSize
	}

	f, err := os.Create(*cmd.File)
	if err != nil {
		return fmt.Errorf("failed to create %s: %w", *cmd.File, err)
	}
	if err := qrcode.WritePNG(f, cmd.Value, size); err != nil {
		f.Close()
		os.Remove(*cmd.File)
		return err
	}
	if err := f.Close(); err != nil {
		return err
	}

	fmt.Fprintf(c.stdout, "Written to %s\n", *cmd.File)
	return nil
}

// executeConfig handles the 'qrscan config' command
func (c *CLI) executeConfig(cmd *ConfigCmd) error {
	switch {
	case cmd.Get != nil:
		return c.executeConfigGet(cmd.Get)
	case cmd.Set != nil:
		return c.executeConfigSet(cmd.Set)
	case cmd.List != nil:
		return c.executeConfigList(cmd.List)
	default:
		return fmt.Errorf("no config subcommand specified")
	}
}

// executeConfigGet handles the 'qrscan config get' command
func (c *CLI) executeConfigGet(cmd *ConfigGetCmd) error {
	value, err := c.cfgManager.Get(cmd.Key)
	if err != nil {
		return fmt.Errorf("failed to get config value: %w", err)
	}

	fmt.Fprintln(c.stdout, value)
	return nil
}

// executeConfigSet handles the 'qrscan config set' command
func (c *CLI) executeConfigSet(cmd *ConfigSetCmd) error {
	if err := c.cfgManager.Update(cmd.Key, cmd.Value); err != nil {
		return fmt.Errorf("failed to set config value: %w", err)
	}

	fmt.Fprintf(c.stdout, "Set %s = %s\n", cmd.Key, cmd.Value)
	return nil
}

// executeConfigList handles the 'qrscan config list' command
func (c *CLI) executeConfigList(cmd *ConfigListCmd) error {
	values, err := c.cfgManager.List()
	if err != nil {
		return fmt.Errorf("failed to list config values: %w", err)
	}

	fmt.Fprintf(c.stdout, "Configuration (%s):\n", c.cfgManager.GetConfigPath())
	for _, key := range config.Keys() {
		fmt.Fprintf(c.stdout, "  %s = %s\n", key, values[key])
	}
	return nil
}

func oneLine(s string) string {
	s = strings.ReplaceAll(s, "\r", " ")
	return strings.ReplaceAll(s, "\n", " ")
}

// lineWriter serializes lines written from session callbacks.
type lineWriter struct {
	mu sync.Mutex
	w  io.Writer
}

func newLineWriter(w io.Writer) *lineWriter {
	return &lineWriter{w: w}
}

func (l *lineWriter) println(s string) {
	l.mu.Lock()
	defer l.mu.Unlock()
	fmt.Fprintln(l.w, s)
}
