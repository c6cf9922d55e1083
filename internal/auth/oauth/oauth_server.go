package oauth

import (
	"context"
	"errors"
	"fmt"
	"net"
	"net/http"
	"sync"
	"syscall"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/router-for-me/oauth-cli-kit/internal/logging"
	log "github.com/sirupsen/logrus"
)

// OAuthServer is the loopback HTTP server that receives the provider redirect.
// It hands the first callback to Results and never validates state itself.
type OAuthServer struct {
	// addr is the host:port taken from the redirect URI
	addr string
	// path is the only route served
	path string
	// server is the underlying HTTP server instance
	server *http.Server
	// listener is bound synchronously by Start so bind errors surface immediately
	listener net.Listener
	// resultChan holds at most one callback result
	resultChan chan *OAuthResult
	// mu is a mutex for protecting server state
	mu sync.Mutex
	// running indicates whether the server is currently running
	running bool
}

// OAuthResult contains the parameters extracted from the callback request.
type OAuthResult struct {
	// Code is the authorization code received from the OAuth provider
	Code string
	// State is the state parameter echoed by the provider, if any
	State string
	// Error is the provider error code when authorization was refused
	Error string
	// ErrorDescription accompanies Error when the provider sent one
	ErrorDescription string
}

// NewOAuthServer prepares a callback server for the given redirect URI.
// The server does not bind until Start is called.
func NewOAuthServer(redirectURI string) (*OAuthServer, error) {
	addr, path, err := ProviderConfig{RedirectURI: redirectURI}.RedirectAddr()
	if err != nil {
		return nil, err
	}
	return &OAuthServer{
		addr:       addr,
		path:       path,
		resultChan: make(chan *OAuthResult, 1),
	}, nil
}

// Start binds the redirect address and begins serving in the background.
// A bind failure is returned as ErrPortInUse or ErrServerStartFailed.
func (s *OAuthServer) Start() error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.running {
		return fmt.Errorf("server is already running")
	}

	listener, err := net.Listen("tcp", s.addr)
	if err != nil {
		if errors.Is(err, syscall.EADDRINUSE) {
			return NewAuthenticationError(ErrPortInUse, err)
		}
		return NewAuthenticationError(ErrServerStartFailed, err)
	}

	engine := gin.New()
	engine.Use(logging.GinLogrusLogger(), logging.GinLogrusRecovery())
	engine.GET(s.path, s.handleCallback)
	engine.NoRoute(func(c *gin.Context) {
		c.String(http.StatusNotFound, "Not found")
	})

	s.listener = listener
	s.server = &http.Server{
		Handler:      engine,
		ReadTimeout:  10 * time.Second,
		WriteTimeout: 10 * time.Second,
	}
	s.running = true

	server := s.server
	go func() {
		if errServe := server.Serve(listener); errServe != nil && !errors.Is(errServe, http.ErrServerClosed) {
			log.Warnf("oauth callback server stopped: %v", errServe)
		}
	}()

	log.Debugf("OAuth callback server listening on %s%s", listener.Addr(), s.path)
	return nil
}

// Addr returns the bound address, or the configured one before Start.
func (s *OAuthServer) Addr() string {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.listener != nil {
		return s.listener.Addr().String()
	}
	return s.addr
}

// Results delivers the first callback received. Later callbacks are dropped.
func (s *OAuthServer) Results() <-chan *OAuthResult {
	return s.resultChan
}

// Stop shuts the server down. It is safe to call more than once and on a
// server that never started.
func (s *OAuthServer) Stop(ctx context.Context) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if !s.running || s.server == nil {
		return nil
	}

	log.Debug("Stopping OAuth callback server")

	shutdownCtx, cancel := context.WithTimeout(ctx, 5*time.Second)
	defer cancel()

	err := s.server.Shutdown(shutdownCtx)
	if err != nil {
		_ = s.server.Close()
	}
	s.running = false
	s.server = nil
	s.listener = nil

	return err
}

// IsRunning returns whether the server is currently running.
func (s *OAuthServer) IsRunning() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.running
}

func (s *OAuthServer) handleCallback(c *gin.Context) {
	query := c.Request.URL.Query()

	if errorParam := query.Get("error"); errorParam != "" {
		log.Warnf("OAuth error received on callback: %s", errorParam)
		s.sendResult(&OAuthResult{
			State:            query.Get("state"),
			Error:            errorParam,
			ErrorDescription: query.Get("error_description"),
		})
		c.Data(http.StatusBadRequest, "text/html; charset=utf-8", []byte(LoginFailedHTML))
		return
	}

	code := query.Get("code")
	if code == "" {
		c.String(http.StatusBadRequest, "No authorization code received")
		return
	}

	s.sendResult(&OAuthResult{
		Code:  code,
		State: query.Get("state"),
	})
	c.Data(http.StatusOK, "text/html; charset=utf-8", []byte(LoginSuccessHTML))
}

// sendResult never blocks the handler.
func (s *OAuthServer) sendResult(result *OAuthResult) {
	select {
	case s.resultChan <- result:
		log.Debug("OAuth result sent to channel")
	default:
		log.Warn("OAuth callback already received, result dropped")
	}
}
