package ipc

import (
	"context"
	"errors"
	"fmt"
	"net"
	"net/rpc"
	"net/rpc/jsonrpc"
	"os"
	"sync"
	"time"

	"log/slog"

	"github.com/google/uuid"

	"segue/internal/api"
	"segue/internal/daemon"
	"segue/internal/logging"
	"segue/internal/logs"
	"segue/internal/services"
)

// shutdownAckDelay gives the jsonrpc codec time to flush the Stop reply
// before the run loop tears the listener down.
const shutdownAckDelay = 100 * time.Millisecond

// Server exposes daemon control via JSON-RPC over a Unix domain socket.
type Server struct {
	path      string
	daemon    *daemon.Daemon
	logger    *slog.Logger
	listener  net.Listener
	rpcServer *rpc.Server

	ctx    context.Context
	cancel context.CancelFunc
	wg     sync.WaitGroup
}

// NewServer configures the IPC server at the given socket path.
func NewServer(ctx context.Context, path string, d *daemon.Daemon, logger *slog.Logger) (*Server, error) {
	if d == nil {
		return nil, errors.New("ipc server requires daemon")
	}
	if logger == nil {
		logger = logging.NewNop()
	}

	if err := os.RemoveAll(path); err != nil {
		return nil, fmt.Errorf("remove existing socket: %w", err)
	}

	listener, err := net.Listen("unix", path)
	if err != nil {
		return nil, fmt.Errorf("listen on socket: %w", err)
	}

	rpcServer := rpc.NewServer()
	srv := &service{daemon: d, logger: logger, ctx: ctx}
	if err := rpcServer.RegisterName("Segue", srv); err != nil {
		listener.Close()
		return nil, fmt.Errorf("register rpc service: %w", err)
	}

	serverCtx, cancel := context.WithCancel(ctx)
	return &Server{
		path:      path,
		daemon:    d,
		logger:    logger,
		listener:  listener,
		rpcServer: rpcServer,
		ctx:       serverCtx,
		cancel:    cancel,
	}, nil
}

// Serve starts accepting RPC connections until the context is canceled.
func (s *Server) Serve() {
	s.logger.Debug("IPC server listening", logging.String("socket", s.path))
	s.wg.Add(1)
	go func() {
		defer s.wg.Done()
		for {
			conn, err := s.listener.Accept()
			if err != nil {
				select {
				case <-s.ctx.Done():
					return
				default:
				}
				s.logger.Warn("accept failed",
					logging.Error(err),
					logging.String(logging.FieldEventType, "ipc_accept_failed"),
					logging.String("impact", "IPC clients may fail to connect"),
					logging.String(logging.FieldErrorHint, "Check socket permissions and restart the daemon if needed"))
				continue
			}
			s.wg.Add(1)
			go func(c net.Conn) {
				defer s.wg.Done()
				s.rpcServer.ServeCodec(jsonrpc.NewServerCodec(c))
			}(conn)
		}
	}()
}

// Close stops the server and removes the socket file.
func (s *Server) Close() {
	s.cancel()
	if s.listener != nil {
		_ = s.listener.Close()
	}
	s.wg.Wait()
	if err := os.RemoveAll(s.path); err != nil {
		s.logger.Warn("failed to remove socket",
			logging.String("socket", s.path),
			logging.Error(err),
			logging.String(logging.FieldEventType, "ipc_socket_cleanup_failed"),
			logging.String("impact", "stale IPC socket may block future starts"),
			logging.String(logging.FieldErrorHint, "Remove the socket file manually or rerun segue daemon stop"))
	}
}

type service struct {
	daemon *daemon.Daemon
	logger *slog.Logger
	ctx    context.Context
}

func (s *service) log() *slog.Logger {
	if s.logger == nil {
		return logging.NewNop()
	}
	return s.logger.With(logging.String("component", "ipc"))
}

// requestScope tags one RPC invocation with a correlation identifier so
// daemon-side records can be matched to the client call that caused them.
func (s *service) requestScope() (context.Context, *slog.Logger) {
	ctx := services.WithRequestID(s.ctx, uuid.NewString())
	return ctx, logging.WithContext(ctx, s.log())
}

func (s *service) Status(_ StatusRequest, resp *StatusResponse) error {
	resp.Status = s.daemon.StatusView(s.ctx)
	return nil
}

func (s *service) Check(req CheckRequest, resp *CheckResponse) error {
	ctx, log := s.requestScope()
	log.Debug("update check requested")
	session, err := s.daemon.Check(ctx, req.Trigger)
	if err != nil {
		return err
	}
	resp.Session = api.FromSession(&session)
	log.Info("update check started via IPC",
		logging.String(logging.FieldEventType, "check_requested"),
		logging.String(logging.FieldSessionID, session.ID))
	return nil
}

func (s *service) Proceed(_ ProceedRequest, resp *ProceedResponse) error {
	ctx, log := s.requestScope()
	log.Debug("proceed requested")
	if err := s.daemon.Proceed(ctx); err != nil {
		return err
	}
	resp.Message = "download starting"
	log.Info("update accepted via IPC",
		logging.String(logging.FieldEventType, "update_accepted"))
	return nil
}

func (s *service) Dismiss(_ DismissRequest, resp *DismissResponse) error {
	ctx, log := s.requestScope()
	log.Debug("dismiss requested")
	if err := s.daemon.Dismiss(ctx); err != nil {
		return err
	}
	resp.Message = "update dismissed"
	log.Info("update dismissed via IPC",
		logging.String(logging.FieldEventType, "update_dismissed"))
	return nil
}

func (s *service) Cancel(_ CancelRequest, resp *CancelResponse) error {
	ctx, log := s.requestScope()
	log.Debug("cancel requested")
	if err := s.daemon.Cancel(ctx); err != nil {
		return err
	}
	resp.Message = "cancellation requested"
	log.Info("session cancellation requested via IPC",
		logging.String(logging.FieldEventType, "session_cancel"))
	return nil
}

func (s *service) History(req HistoryRequest, resp *HistoryResponse) error {
	sessions, err := s.daemon.History(s.ctx, req.Limit)
	if err != nil {
		return err
	}
	resp.Sessions = api.FromSessions(sessions)
	return nil
}

func (s *service) Skip(req SkipRequest, resp *SkipResponse) error {
	ctx, log := s.requestScope()
	canonical, err := s.daemon.Skip(ctx, req.Version)
	if err != nil {
		return err
	}
	resp.Version = canonical
	log.Info("version skipped via IPC",
		logging.String(logging.FieldEventType, "version_skip"),
		logging.String("version", canonical))
	return nil
}

func (s *service) Unskip(req UnskipRequest, resp *UnskipResponse) error {
	removed, err := s.daemon.Unskip(s.ctx, req.Version)
	if err != nil {
		return err
	}
	resp.Removed = removed
	return nil
}

func (s *service) Skipped(_ SkippedRequest, resp *SkippedResponse) error {
	versions, err := s.daemon.Skipped(s.ctx)
	if err != nil {
		return err
	}
	resp.Versions = api.FromSkipped(versions)
	return nil
}

func (s *service) LogTail(req LogTailRequest, resp *LogTailResponse) error {
	logPath := s.daemon.LogPath()
	if logPath == "" {
		resp.Offset = 0
		return nil
	}
	wait := time.Duration(req.WaitMillis) * time.Millisecond
	if wait <= 0 && req.Follow {
		wait = time.Second
	}
	options := logs.TailOptions{
		Offset: req.Offset,
		Limit:  req.Limit,
		Follow: req.Follow,
		Wait:   wait,
	}
	ctx := s.ctx
	if req.Follow && wait > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(s.ctx, wait+500*time.Millisecond)
		defer cancel()
	}
	result, err := logs.Tail(ctx, logPath, options)
	if err != nil {
		if errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded) {
			resp.Offset = result.Offset
			return nil
		}
		return err
	}
	resp.Lines = result.Lines
	resp.Offset = result.Offset
	return nil
}

func (s *service) TestNotification(_ TestNotificationRequest, resp *TestNotificationResponse) error {
	sent, message, err := s.daemon.TestNotification(s.ctx)
	resp.Sent = sent
	resp.Message = message
	return err
}

// Stop acknowledges first and schedules the process shutdown a beat later
// so the reply reaches the client before the socket goes away.
func (s *service) Stop(_ StopRequest, resp *StopResponse) error {
	_, log := s.requestScope()
	log.Info("daemon stop requested via IPC",
		logging.String(logging.FieldEventType, "daemon_stop"))
	resp.Stopped = true
	resp.Message = "daemon stopping"
	time.AfterFunc(shutdownAckDelay, s.daemon.RequestShutdown)
	return nil
}
