package devserver

import (
	"context"
	"errors"
	"fmt"
	"net"
	"os"
	"strconv"
	"strings"
	"sync"
	"syscall"
	"time"

	"github.com/go-resty/resty/v2"

	"github.com/CatOfJupit3r/dungeon-crawler-ai/internal/cmn/backoff"
	"github.com/CatOfJupit3r/dungeon-crawler-ai/internal/cmn/cmdutil"
	"github.com/CatOfJupit3r/dungeon-crawler-ai/internal/cmn/logger"
	"github.com/CatOfJupit3r/dungeon-crawler-ai/internal/cmn/logger/tag"
	"github.com/CatOfJupit3r/dungeon-crawler-ai/internal/cmn/portutil"
	"github.com/CatOfJupit3r/dungeon-crawler-ai/internal/proctree"
	"github.com/CatOfJupit3r/dungeon-crawler-ai/internal/supervisor"
)

const (
	defaultReadyTimeout = 30 * time.Second
	readyPollInterval   = 100 * time.Millisecond
	readyMaxInterval    = time.Second
	stopTimeout         = 5 * time.Second
)

var errServerExited = errors.New("auxiliary server exited before becoming ready")

// CommandOptions configures a CommandServer.
type CommandOptions struct {
	// Command is the server command line. $PORT and ${PORT} are replaced with
	// Port before parsing.
	Command string
	Host    string
	Port    int
	Dir     string
	// Env is the server environment; PORT is appended to it.
	Env          []string
	ReadyPath    string
	ReadyTimeout time.Duration
	LogOutput    bool
}

// processTree is the part of proctree.Tree the command server needs.
type processTree interface {
	Terminate(ctx context.Context, pid int, sig syscall.Signal) error
	Kill(ctx context.Context, pid int) error
}

var _ Server = (*CommandServer)(nil)

// CommandServer runs an external development server (for example a frontend
// dev server) as the auxiliary server.
type CommandServer struct {
	opts    CommandOptions
	spawner supervisor.Spawner
	tree    processTree
	client  *resty.Client

	mu     sync.Mutex
	handle supervisor.Handle
}

// NewCommandServer creates a server for opts. Nothing runs until Start.
func NewCommandServer(opts CommandOptions) *CommandServer {
	if opts.Host == "" {
		opts.Host = "localhost"
	}
	if opts.ReadyPath == "" {
		opts.ReadyPath = "/"
	}
	if opts.ReadyTimeout <= 0 {
		opts.ReadyTimeout = defaultReadyTimeout
	}
	return &CommandServer{
		opts:    opts,
		spawner: &supervisor.ExecSpawner{LogOutput: opts.LogOutput},
		tree:    proctree.New(),
		client:  resty.New().SetTimeout(2 * time.Second),
	}
}

func (s *CommandServer) URL() string {
	return "http://" + net.JoinHostPort(s.opts.Host, strconv.Itoa(s.opts.Port))
}

// Start launches the command and waits until the ready path answers.
func (s *CommandServer) Start(ctx context.Context) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.handle != nil {
		return errors.New("auxiliary server already started")
	}

	base := s.opts.Env
	if base == nil {
		base = os.Environ()
	}
	port := strconv.Itoa(s.opts.Port)
	env := append(append([]string(nil), base...), "PORT="+port)
	lookup := func(key string) string {
		return envValue(env, key)
	}

	line := portutil.TransformCommand(s.opts.Command, s.opts.Port)
	name, args, err := cmdutil.SplitCommand(line, lookup)
	if err != nil {
		return err
	}

	ctx = logger.WithValues(ctx, "component", "aux")
	h, err := s.spawner.Spawn(ctx, supervisor.LaunchSpec{Path: name, Args: args, Env: env, Dir: s.opts.Dir})
	if err != nil {
		return &supervisor.SpawnError{Path: name, Err: err}
	}
	s.handle = h

	logger.Info(ctx, "Auxiliary server started", tag.PID(h.PID()), tag.Command(line), tag.URL(s.URL()))

	if err := s.waitReady(ctx, h); err != nil {
		_ = s.stopLocked(ctx)
		return err
	}
	logger.Info(ctx, "Auxiliary server is ready", tag.URL(s.URL()))
	return nil
}

func (s *CommandServer) waitReady(ctx context.Context, h supervisor.Handle) error {
	ctx, cancel := context.WithTimeout(ctx, s.opts.ReadyTimeout)
	defer cancel()

	policy := backoff.NewExponentialBackoffPolicy(readyPollInterval)
	policy.MaxInterval = readyMaxInterval

	url := s.URL() + s.opts.ReadyPath
	err := backoff.Retry(ctx, func(ctx context.Context) error {
		select {
		case <-h.Done():
			return fmt.Errorf("%w (exit code %d)", errServerExited, h.ExitCode())
		default:
		}
		resp, err := s.client.R().SetContext(ctx).Get(url)
		if err != nil {
			return err
		}
		// Any answer below 500 means something is listening.
		if resp.StatusCode() >= 500 {
			return fmt.Errorf("ready probe returned HTTP %d", resp.StatusCode())
		}
		return nil
	}, policy, func(err error) bool {
		return !errors.Is(err, errServerExited)
	})

	if errors.Is(err, context.DeadlineExceeded) {
		return fmt.Errorf("auxiliary server not ready at %s after %s", url, s.opts.ReadyTimeout)
	}
	return err
}

// Stop terminates the server process tree.
func (s *CommandServer) Stop(ctx context.Context) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.stopLocked(ctx)
}

func (s *CommandServer) stopLocked(ctx context.Context) error {
	h := s.handle
	if h == nil {
		return nil
	}
	s.handle = nil
	ctx = context.WithoutCancel(ctx)

	select {
	case <-h.Done():
		return nil
	default:
	}

	logger.Info(ctx, "Auxiliary server is shutting down", tag.PID(h.PID()))
	var errs []error
	if err := s.tree.Terminate(ctx, h.PID(), syscall.SIGTERM); err != nil {
		errs = append(errs, err)
	}

	select {
	case <-h.Done():
		return errors.Join(errs...)
	case <-time.After(stopTimeout):
	}

	logger.Warn(ctx, "Auxiliary server did not exit in time; killing", tag.PID(h.PID()), tag.Timeout(stopTimeout))
	errs = append(errs, &supervisor.TimeoutExceededError{PID: h.PID(), Timeout: stopTimeout})
	if err := s.tree.Kill(ctx, h.PID()); err != nil {
		errs = append(errs, err)
	}
	<-h.Done()
	return errors.Join(errs...)
}

func envValue(env []string, key string) string {
	for i := len(env) - 1; i >= 0; i-- {
		if k, v, ok := strings.Cut(env[i], "="); ok && k == key {
			return v
		}
	}
	return ""
}
