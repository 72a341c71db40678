package whispercpp

import (
	"context"
	"errors"
	"fmt"
	"net"
	"net/http"
	"os/exec"
	"strconv"
	"syscall"
	"time"

	"github.com/sirupsen/logrus"
)

// launchSpec describes one whisper-server process.
type launchSpec struct {
	Bin       string
	ModelPath string
	Threads   int
	BeamSize  int
	BestOf    int
	GPU       bool
	VADModel  string
}

func (s launchSpec) args(port int) []string {
	args := []string{
		"-m", s.ModelPath,
		"--host", "127.0.0.1",
		"--port", strconv.Itoa(port),
		"-bs", strconv.Itoa(s.BeamSize),
		"-bo", strconv.Itoa(s.BestOf),
		"-nf",
	}
	if s.Threads > 0 {
		args = append(args, "-t", strconv.Itoa(s.Threads))
	}
	if !s.GPU {
		args = append(args, "-ng")
	}
	if s.VADModel != "" {
		args = append(args, "--vad", "-vm", s.VADModel)
	}
	return args
}

type server interface {
	URL() string
	Alive() bool
	Stop() error
}

type launcher interface {
	Start(ctx context.Context, spec launchSpec) (server, error)
}

type execLauncher struct {
	log logrus.FieldLogger
}

type procServer struct {
	cmd  *exec.Cmd
	url  string
	done chan struct{}
	err  error
}

func (l execLauncher) Start(ctx context.Context, spec launchSpec) (server, error) {
	port, err := freePort()
	if err != nil {
		return nil, err
	}

	// Not bound to ctx: the process outlives the request that loaded it.
	cmd := exec.Command(spec.Bin, spec.args(port)...)
	cmd.SysProcAttr = &syscall.SysProcAttr{Setpgid: true}
	out := l.log.WithField("component", "whisper-server").WriterLevel(logrus.DebugLevel)
	cmd.Stdout = out
	cmd.Stderr = out

	if err := cmd.Start(); err != nil {
		out.Close()
		return nil, fmt.Errorf("start whisper-server: %w", err)
	}
	p := &procServer{
		cmd:  cmd,
		url:  "http://127.0.0.1:" + strconv.Itoa(port),
		done: make(chan struct{}),
	}
	go func() {
		p.err = cmd.Wait()
		out.Close()
		close(p.done)
	}()

	if err := p.waitReady(ctx); err != nil {
		_ = p.Stop()
		return nil, err
	}
	return p, nil
}

func (p *procServer) URL() string { return p.url }

func (p *procServer) Alive() bool {
	select {
	case <-p.done:
		return false
	default:
		return true
	}
}

// waitReady polls /health until the model is loaded.
func (p *procServer) waitReady(ctx context.Context) error {
	client := &http.Client{Timeout: 2 * time.Second}
	tick := time.NewTicker(200 * time.Millisecond)
	defer tick.Stop()
	for {
		req, err := http.NewRequestWithContext(ctx, http.MethodGet, p.url+"/health", nil)
		if err != nil {
			return err
		}
		if resp, err := client.Do(req); err == nil {
			resp.Body.Close()
			if resp.StatusCode == http.StatusOK {
				return nil
			}
		}
		select {
		case <-p.done:
			return fmt.Errorf("whisper-server exited during startup: %v", p.err)
		case <-ctx.Done():
			return fmt.Errorf("whisper-server not ready: %w", ctx.Err())
		case <-tick.C:
		}
	}
}

// Stop terminates the whole process group, escalating to SIGKILL.
func (p *procServer) Stop() error {
	if !p.Alive() {
		return nil
	}
	pid := p.cmd.Process.Pid
	_ = syscall.Kill(-pid, syscall.SIGTERM)
	select {
	case <-p.done:
		return nil
	case <-time.After(5 * time.Second):
	}
	if err := syscall.Kill(-pid, syscall.SIGKILL); err != nil && !errors.Is(err, syscall.ESRCH) {
		return fmt.Errorf("kill whisper-server: %w", err)
	}
	<-p.done
	return nil
}

func freePort() (int, error) {
	l, err := net.Listen("tcp", "127.0.0.1:0")
	if err != nil {
		return 0, fmt.Errorf("pick port: %w", err)
	}
	defer l.Close()
	return l.Addr().(*net.TCPAddr).Port, nil
}
