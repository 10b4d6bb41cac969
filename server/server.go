// Package server 负责进程级的服务监督：HTTP 服务与后台 worker 都作为 suture.Service
// 挂在同一个 supervisor 下，崩溃后按退避策略重启。
package server

import (
	"context"
	"errors"
	"net"
	"net/http"
	"time"

	"github.com/rs/zerolog"
	"github.com/thejerf/suture/v4"
)

// SupervisorOptions 是 supervisor 的参数，零值使用 suture 的默认值。
type SupervisorOptions struct {
	FailureThreshold float64
	FailureDecay     float64
	FailureBackoff   time.Duration
	// ShutdownTimeout 停止时等待每个服务退出的时间，0 表示 10s
	ShutdownTimeout time.Duration
	Logger          zerolog.Logger
}

// NewSupervisor 创建根 supervisor，事件写入 zerolog。
func NewSupervisor(name string, opts SupervisorOptions) *suture.Supervisor {
	if opts.ShutdownTimeout <= 0 {
		opts.ShutdownTimeout = 10 * time.Second
	}
	return suture.New(name, suture.Spec{
		EventHook:        EventHook(opts.Logger),
		FailureThreshold: opts.FailureThreshold,
		FailureDecay:     opts.FailureDecay,
		FailureBackoff:   opts.FailureBackoff,
		Timeout:          opts.ShutdownTimeout,
	})
}

// EventHook 把 suture 事件转换为结构化日志。
func EventHook(log zerolog.Logger) suture.EventHook {
	return func(e suture.Event) {
		var ev *zerolog.Event
		switch e.Type() {
		case suture.EventTypeServicePanic, suture.EventTypeServiceTerminate:
			ev = log.Error()
		case suture.EventTypeBackoff, suture.EventTypeStopTimeout:
			ev = log.Warn()
		default:
			ev = log.Info()
		}
		ev.Fields(e.Map()).Msg(e.String())
	}
}

// HTTPService 把 *http.Server 包装成 suture.Service。
type HTTPService struct {
	srv             *http.Server
	shutdownTimeout time.Duration
	log             zerolog.Logger
	// listen 可替换，测试用
	listen func(network, addr string) (net.Listener, error)
}

// NewHTTPService 创建 HTTP 服务。shutdownTimeout <= 0 时为 15s。
func NewHTTPService(srv *http.Server, shutdownTimeout time.Duration, log zerolog.Logger) *HTTPService {
	if shutdownTimeout <= 0 {
		shutdownTimeout = 15 * time.Second
	}
	return &HTTPService{srv: srv, shutdownTimeout: shutdownTimeout, log: log, listen: net.Listen}
}

// Serve 启动监听直到 ctx 结束，然后优雅关闭。
// 监听失败（如端口被占用）返回错误交给 supervisor 重启。
func (s *HTTPService) Serve(ctx context.Context) error {
	ln, err := s.listen("tcp", s.srv.Addr)
	if err != nil {
		return err
	}
	s.log.Info().Str("addr", ln.Addr().String()).Msg("http server listening")

	errCh := make(chan error, 1)
	go func() {
		errCh <- s.srv.Serve(ln)
	}()

	select {
	case err := <-errCh:
		if errors.Is(err, http.ErrServerClosed) {
			return suture.ErrDoNotRestart
		}
		return err
	case <-ctx.Done():
	}

	sctx, cancel := context.WithTimeout(context.Background(), s.shutdownTimeout)
	defer cancel()
	if err := s.srv.Shutdown(sctx); err != nil {
		s.log.Warn().Err(err).Msg("http server shutdown")
		return err
	}
	<-errCh
	s.log.Info().Msg("http server stopped")
	return nil
}

func (s *HTTPService) String() string { return "http-server" }
