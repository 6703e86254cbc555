package backup

import (
	"context"
	"fmt"
	"os"
	"os/exec"
	"regexp"
	"strings"
	"sync"

	"pgbak/internal/logging"
)

// DefaultMinArtifactBytes is the sentinel below which an artifact is treated
// as "the dump produced nothing". The historical value is a heuristic with no
// stated derivation, so it stays configurable rather than authoritative.
const DefaultMinArtifactBytes = 512

// stderrCaptureBytes bounds how much of each process's diagnostic stream is
// retained for the audit detail.
const stderrCaptureBytes = 32 * 1024

// PipelineConfig controls how artifacts are produced.
type PipelineConfig struct {
	// DumpCommand is the extraction binary, "pg_dump" by default.
	DumpCommand string

	// ArchiverCommand, when non-empty, is an external compressor argv
	// reading the dump on stdin. The tokens {output} and {passphrase} are
	// substituted per run; arguments containing {passphrase} are dropped
	// entirely when the target has no passphrase.
	ArchiverCommand []string

	// Compression selects the built-in streaming compressor used when no
	// ArchiverCommand is configured.
	Compression CompressionType

	// MinArtifactBytes is the minimum plausible artifact size.
	MinArtifactBytes int64
}

func (c PipelineConfig) dumpCommand() string {
	if c.DumpCommand == "" {
		return "pg_dump"
	}
	return c.DumpCommand
}

func (c PipelineConfig) minArtifactBytes() int64 {
	if c.MinArtifactBytes <= 0 {
		return DefaultMinArtifactBytes
	}
	return c.MinArtifactBytes
}

// ArtifactExtension returns the output filename extension the pipeline will
// produce under this configuration.
func (c PipelineConfig) ArtifactExtension(encrypted bool) string {
	if len(c.ArchiverCommand) > 0 {
		return ".7z"
	}
	ext := ".sql" + c.Compression.Extension()
	if encrypted {
		ext += ".age"
	}
	return ext
}

// Default7zArchiverCommand is the external compressor invocation matching the
// historical deployment: single-threaded LZMA2 at a low compression level
// with a small dictionary, header encryption enabled, reading from stdin.
func Default7zArchiverCommand() []string {
	return []string{
		"7z", "a", "-si",
		"-p{passphrase}", "-mhe=on",
		"-md=1m", "-ms=off", "-mx=1", "-mm=LZMA2", "-mmt=1",
		"{output}",
	}
}

// PipelineRequest describes one artifact production run.
type PipelineRequest struct {
	ConnectionString string
	OutputPath       string
	Passphrase       string
	ExcludeTables    []string
}

// DumpCompressPipeline runs the extraction process with its output streamed
// directly into the compression step, so the uncompressed dump is never
// materialized on disk and both steps run concurrently.
type DumpCompressPipeline struct {
	cfg    PipelineConfig
	logger *logging.Logger
}

// NewDumpCompressPipeline creates a pipeline with the given configuration.
func NewDumpCompressPipeline(cfg PipelineConfig, logger *logging.Logger) *DumpCompressPipeline {
	if logger == nil {
		logger = logging.NewDefaultLogger()
	}
	return &DumpCompressPipeline{cfg: cfg, logger: logger}
}

// identifierPattern accepts plain and schema-qualified table names plus the
// wildcard forms pg_dump understands. Anything else, in particular whitespace
// or shell metacharacters, is rejected before any process starts.
var identifierPattern = regexp.MustCompile(`^[A-Za-z_][A-Za-z0-9_.$*]*$`)

// CleanExclusions trims, deduplicates, and validates the exclusion list.
func CleanExclusions(tables []string) ([]string, error) {
	var cleaned []string
	seen := make(map[string]bool)
	for _, raw := range tables {
		table := strings.TrimSpace(raw)
		if table == "" {
			continue
		}
		if !identifierPattern.MatchString(table) {
			return nil, NewValidationError(fmt.Sprintf("invalid table exclusion %q", raw), nil)
		}
		if seen[table] {
			continue
		}
		seen[table] = true
		cleaned = append(cleaned, table)
	}
	return cleaned, nil
}

// Run produces the artifact at req.OutputPath and returns its size in bytes.
// A non-zero exit of either process, or an artifact below the minimum
// plausible size, is a hard failure: the artifact must not be uploaded.
func (p *DumpCompressPipeline) Run(ctx context.Context, req PipelineRequest) (int64, error) {
	exclusions, err := CleanExclusions(req.ExcludeTables)
	if err != nil {
		return 0, NewPipelineError("exclusion validation failed", err)
	}

	dumpArgs := []string{"-d", req.ConnectionString, "-F", "c", "-b"}
	for _, table := range exclusions {
		dumpArgs = append(dumpArgs, "--exclude-table="+table)
	}
	if len(exclusions) > 0 {
		p.logger.WithField("tables", strings.Join(exclusions, ",")).Info("Excluding tables from backup")
	}

	dump := exec.CommandContext(ctx, p.cfg.dumpCommand(), dumpArgs...)
	dumpStderr := newTailBuffer(stderrCaptureBytes)
	dump.Stderr = dumpStderr

	if len(p.cfg.ArchiverCommand) > 0 {
		err = p.runExternal(ctx, dump, dumpStderr, req)
	} else {
		err = p.runBuiltin(dump, dumpStderr, req)
	}
	if err != nil {
		return 0, err
	}

	info, err := os.Stat(req.OutputPath)
	if err != nil {
		return 0, NewPipelineError("artifact missing after pipeline completed", err)
	}
	if info.Size() < p.cfg.minArtifactBytes() {
		return 0, NewPipelineError(fmt.Sprintf(
			"artifact is implausibly small (%d bytes, minimum %d): dump likely produced no data",
			info.Size(), p.cfg.minArtifactBytes()), nil)
	}
	return info.Size(), nil
}

// runExternal wires the dump's stdout pipe straight into the archiver's
// stdin. The archiver is waited on first; once it has exited, the parent's
// read end of the pipe is closed so a dump still writing gets EPIPE instead
// of blocking forever on a full pipe buffer.
func (p *DumpCompressPipeline) runExternal(ctx context.Context, dump *exec.Cmd, dumpStderr *tailBuffer, req PipelineRequest) error {
	argv := renderArchiverCommand(p.cfg.ArchiverCommand, req.OutputPath, req.Passphrase)
	if len(argv) == 0 {
		return NewConfigurationError("archiver command is empty after substitution", nil)
	}

	stdout, err := dump.StdoutPipe()
	if err != nil {
		return NewPipelineError("failed to create dump output pipe", err)
	}

	archiver := exec.CommandContext(ctx, argv[0], argv[1:]...)
	archiver.Stdin = stdout
	archiverStderr := newTailBuffer(stderrCaptureBytes)
	archiver.Stderr = archiverStderr

	if err := dump.Start(); err != nil {
		return NewPipelineError("failed to start database dump", err)
	}
	if err := archiver.Start(); err != nil {
		_ = dump.Process.Kill()
		_ = dump.Wait()
		return NewPipelineError("failed to start archiver", err)
	}

	archiverErr := archiver.Wait()
	// The archiver is gone; with the read end closed the dump cannot stall
	// on the pipe and will exit on its next write.
	_ = stdout.Close()
	dumpErr := dump.Wait()

	// An archiver death usually takes the dump down with it (broken pipe),
	// so the archiver's exit is the root cause when both failed.
	if archiverErr != nil {
		return NewPipelineError("error occurred during backup compression:\n"+archiverStderr.String(), archiverErr)
	}
	if dumpErr != nil {
		return NewPipelineError("error occurred during database dump:\n"+dumpStderr.String(), dumpErr)
	}
	return nil
}

// runBuiltin streams the dump's stdout through the in-process compression
// (and optional encryption) chain into the output file.
func (p *DumpCompressPipeline) runBuiltin(dump *exec.Cmd, dumpStderr *tailBuffer, req PipelineRequest) error {
	out, err := os.OpenFile(req.OutputPath, os.O_CREATE|os.O_WRONLY|os.O_TRUNC, 0600)
	if err != nil {
		return NewPipelineError("failed to create artifact file", err)
	}

	sink, err := OpenArchiveSink(out, p.cfg.Compression, req.Passphrase)
	if err != nil {
		out.Close()
		return err
	}
	dump.Stdout = sink

	dumpErr := dump.Run()

	sinkErr := sink.Close()
	closeErr := out.Close()

	if dumpErr != nil {
		return NewPipelineError("error occurred during database dump:\n"+dumpStderr.String(), dumpErr)
	}
	if sinkErr != nil {
		return NewPipelineError("error occurred during backup compression", sinkErr)
	}
	if closeErr != nil {
		return NewPipelineError("failed to finalize artifact file", closeErr)
	}
	return nil
}

// renderArchiverCommand substitutes the per-run tokens into the configured
// archiver argv. Arguments referencing {passphrase} are dropped when the run
// has no passphrase so the archiver does not receive an empty password.
func renderArchiverCommand(template []string, outputPath, passphrase string) []string {
	argv := make([]string, 0, len(template))
	for _, arg := range template {
		if strings.Contains(arg, "{passphrase}") {
			if passphrase == "" {
				continue
			}
			arg = strings.ReplaceAll(arg, "{passphrase}", passphrase)
		}
		arg = strings.ReplaceAll(arg, "{output}", outputPath)
		argv = append(argv, arg)
	}
	return argv
}

// tailBuffer retains the last max bytes written to it. Both processes'
// stderr streams are drained into tailBuffers continuously, which keeps the
// pipes from filling (and stalling either process) while preserving the most
// recent diagnostics for the audit detail.
type tailBuffer struct {
	mu        sync.Mutex
	max       int
	buf       []byte
	truncated bool
}

func newTailBuffer(max int) *tailBuffer {
	return &tailBuffer{max: max}
}

func (b *tailBuffer) Write(p []byte) (int, error) {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.buf = append(b.buf, p...)
	if len(b.buf) > b.max {
		b.buf = b.buf[len(b.buf)-b.max:]
		b.truncated = true
	}
	return len(p), nil
}

func (b *tailBuffer) String() string {
	b.mu.Lock()
	defer b.mu.Unlock()
	if b.truncated {
		return "[...truncated...]" + string(b.buf)
	}
	return string(b.buf)
}
