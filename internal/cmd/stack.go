package cmd

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"sync"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/router-for-me/oauth-cli-kit/internal/auth/oauth"
	"github.com/router-for-me/oauth-cli-kit/internal/logging"
	"github.com/router-for-me/oauth-cli-kit/internal/metrics"
	"github.com/router-for-me/oauth-cli-kit/internal/store"
	"github.com/router-for-me/oauth-cli-kit/internal/util"
	sdkauth "github.com/router-for-me/oauth-cli-kit/sdk/auth"
	log "github.com/sirupsen/logrus"
)

// tokenStore builds the cache store for the active provider, including the
// configured mirror and importers.
func (rt *runtimeState) tokenStore(ctx context.Context) (*sdkauth.FileTokenStore, error) {
	opts := []sdkauth.StoreOption{
		sdkauth.WithDataDir(rt.cfg.DataDir),
		sdkauth.WithFileName(rt.provider.TokenFileName),
	}
	mirror, err := store.New(ctx, rt.cfg.Mirror)
	if err != nil {
		return nil, fmt.Errorf("configure mirror: %w", err)
	}
	if mirror != nil {
		opts = append(opts, sdkauth.WithMirror(mirror))
	}
	if rt.cfg.ImportCodexCLI {
		opts = append(opts, sdkauth.WithImporters(sdkauth.DefaultImporters(rt.provider)...))
	}
	return sdkauth.NewFileTokenStore(opts...)
}

func (rt *runtimeState) tokenClient() *oauth.TokenClient {
	return oauth.NewTokenClient(oauth.WithHTTPClient(util.NewHTTPClient(&rt.cfg.SDKConfig)))
}

func (rt *runtimeState) tokenOptions(ctx context.Context, minTTL time.Duration) (*sdkauth.TokenOptions, error) {
	st, err := rt.tokenStore(ctx)
	if err != nil {
		return nil, err
	}
	return &sdkauth.TokenOptions{Store: st, Client: rt.tokenClient(), MinTTL: minTTL}, nil
}

// startMetricsServer serves /metrics on addr until ctx is done. An empty addr
// disables it.
func startMetricsServer(ctx context.Context, addr string) (func(), error) {
	if addr == "" {
		return func() {}, nil
	}
	engine := gin.New()
	engine.Use(logging.GinLogrusLogger(), logging.GinLogrusRecovery())
	engine.GET("/metrics", gin.WrapH(metrics.Handler()))

	srv := &http.Server{Addr: addr, Handler: engine, ReadHeaderTimeout: 5 * time.Second}
	errCh := make(chan error, 1)
	go func() {
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			errCh <- err
		}
		close(errCh)
	}()

	select {
	case err, ok := <-errCh:
		if ok {
			return nil, fmt.Errorf("metrics server: %w", err)
		}
	case <-time.After(100 * time.Millisecond):
	}
	log.Infof("metrics available at http://%s/metrics", addr)

	var once sync.Once
	stop := func() {
		once.Do(func() {
			shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
			defer cancel()
			if err := srv.Shutdown(shutdownCtx); err != nil {
				log.Warnf("metrics server shutdown: %v", err)
			}
		})
	}
	go func() {
		<-ctx.Done()
		stop()
	}()
	return stop, nil
}
