package provider

import (
	"bufio"
	"bytes"
	"context"
	"fmt"
	"os/exec"
	"strings"
	"time"

	"github.com/arcrelay/bridge/internal/corerr"
)

// maxScanBuffer sizes the bufio.Scanner's buffer generously: provider
// stream-json lines can carry large tool_result payloads.
const maxScanBuffer = 8 * 1024 * 1024

// stderrRingSize bounds how much stderr we retain for error context,
// grounded on cc_runner.go's stderrBuffer ring buffer.
const stderrRingSize = 16 * 1024

// SubprocessRunner implements Runner by spawning the provider binary via
// exec.CommandContext, grounded on
// 88lin-divinesense/ai/agent/cc_runner.go's Execute/executeWithSession/
// streamOutput/dispatchCallback/handleResultMessage shape.
type SubprocessRunner struct {
	Registry *Registry
}

func NewSubprocessRunner(reg *Registry) *SubprocessRunner {
	return &SubprocessRunner{Registry: reg}
}

// Execute runs req non-streaming and parses the single JSON result object.
func (r *SubprocessRunner) Execute(ctx context.Context, cli CLI, req Request) (Response, error) {
	if _, err := exec.LookPath(cli.Binary()); err != nil {
		return Response{}, corerr.Wrap(corerr.KindCLI, "provider.Execute",
			fmt.Sprintf("cli_not_found_%s", cli.Name()), err)
	}

	timeout := time.Duration(req.Timeout) * time.Second
	if timeout <= 0 {
		timeout = 10 * time.Minute
	}
	cctx, cancel := context.WithTimeout(ctx, timeout)
	defer cancel()

	cmd := exec.CommandContext(cctx, cli.Binary(), cli.BuildArgs(req, false)...)
	cmd.Dir = req.WorkDir
	setProcessGroupAttr(cmd)
	if cli.UsesStdinPrompt() {
		cmd.Stdin = strings.NewReader(req.Prompt)
	}

	var stdout, stderr bytes.Buffer
	cmd.Stdout = &stdout
	cmd.Stderr = &stderr

	r.Registry.register(req.ChatKey, string(cli.Name()), cmd)
	defer r.Registry.unregister(req.ChatKey, cmd)

	err := cmd.Run()
	if cctx.Err() == context.DeadlineExceeded {
		return Response{}, corerr.New(corerr.KindCLI, "provider.Execute", "timeout")
	}
	if err != nil {
		return Response{}, corerr.Wrap(corerr.KindCLI, "provider.Execute",
			"abnormal exit: "+truncate(stderr.String(), stderrRingSize), err)
	}

	resp, perr := cli.ParseNonStreaming(stdout.Bytes())
	if perr != nil {
		return Response{}, corerr.Wrap(corerr.KindCLI, "provider.Execute", "parse result", perr)
	}
	return resp, nil
}

// ExecuteStreaming spawns the provider CLI and dispatches each parsed
// stream event to sinks as it arrives.
func (r *SubprocessRunner) ExecuteStreaming(ctx context.Context, cli CLI, req Request, sinks Sinks) (Response, error) {
	if _, err := exec.LookPath(cli.Binary()); err != nil {
		return Response{}, corerr.Wrap(corerr.KindCLI, "provider.ExecuteStreaming",
			fmt.Sprintf("cli_not_found_%s", cli.Name()), err)
	}

	timeout := time.Duration(req.Timeout) * time.Second
	if timeout <= 0 {
		timeout = 10 * time.Minute
	}
	cctx, cancel := context.WithTimeout(ctx, timeout)
	defer cancel()

	cmd := exec.CommandContext(cctx, cli.Binary(), cli.BuildArgs(req, true)...)
	cmd.Dir = req.WorkDir
	setProcessGroupAttr(cmd)
	if cli.UsesStdinPrompt() {
		cmd.Stdin = strings.NewReader(req.Prompt)
	}

	stdout, err := cmd.StdoutPipe()
	if err != nil {
		return Response{}, corerr.Wrap(corerr.KindCLI, "provider.ExecuteStreaming", "stdout pipe", err)
	}
	stderrBuf := newRing(stderrRingSize)
	cmd.Stderr = stderrBuf

	if err := cmd.Start(); err != nil {
		return Response{}, corerr.Wrap(corerr.KindCLI, "provider.ExecuteStreaming", "spawn", err)
	}

	r.Registry.register(req.ChatKey, string(cli.Name()), cmd)
	defer r.Registry.unregister(req.ChatKey, cmd)

	var accumulated strings.Builder
	var finalResult *Response
	var streamErr error

	scanner := bufio.NewScanner(stdout)
	scanner.Buffer(make([]byte, 0, 64*1024), maxScanBuffer)

	for scanner.Scan() {
		if r.Registry.Aborted(req.ChatKey) {
			break // independent kill-all path has already signalled the child
		}
		line := scanner.Bytes()
		if len(bytes.TrimSpace(line)) == 0 {
			continue
		}
		ev, ok := cli.ParseLine(line)
		if !ok {
			continue // malformed line: skip, non-fatal
		}
		if ev.Kind == EventTextDelta {
			accumulated.WriteString(ev.TextDelta)
		}
		if ev.Kind == EventResult {
			finalResult = ev.Result
		}
		sinks.dispatch(ev)
	}
	if err := scanner.Err(); err != nil {
		streamErr = err
	}

	waitErr := cmd.Wait()

	if r.Registry.Aborted(req.ChatKey) {
		return Response{}, nil
	}

	if finalResult != nil {
		return *finalResult, nil
	}

	if accumulated.Len() > 0 && streamErr == nil {
		return Response{Text: accumulated.String(), StreamFallback: true}, nil
	}

	// Retry once non-streaming, flagging stream-fallback on the response.
	_ = waitErr
	resp, err := r.Execute(ctx, cli, req)
	if err != nil {
		return Response{}, corerr.Wrap(corerr.KindStream, "provider.ExecuteStreaming",
			"missing result event, fallback failed: "+truncate(stderrBuf.String(), stderrRingSize), err)
	}
	resp.StreamFallback = true
	return resp, nil
}

func truncate(s string, n int) string {
	if len(s) <= n {
		return s
	}
	return s[len(s)-n:]
}

// ring is a fixed-capacity byte ring buffer used to retain only the tail of
// stderr output, grounded on cc_runner.go's stderrBuffer.
type ring struct {
	buf *bytes.Buffer
	cap int
}

func newRing(capacity int) *ring { return &ring{buf: &bytes.Buffer{}, cap: capacity} }

func (r *ring) Write(p []byte) (int, error) {
	r.buf.Write(p)
	if r.buf.Len() > r.cap {
		trimmed := r.buf.Bytes()[r.buf.Len()-r.cap:]
		r.buf = bytes.NewBuffer(append([]byte(nil), trimmed...))
	}
	return len(p), nil
}

func (r *ring) String() string { return r.buf.String() }
