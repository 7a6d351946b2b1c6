package main

import (
	"context"
	"errors"
	"net/http"
	"os"
	"os/signal"
	"time"

	"GpkgTiler/export"
	"GpkgTiler/gpkg"
	"GpkgTiler/notify"
	"GpkgTiler/server"

	"github.com/gin-gonic/gin"
	log "github.com/sirupsen/logrus"
	"github.com/spf13/cobra"
)

var serveCmd = &cobra.Command{
	Use:   "serve",
	Short: "Serve the grid editing session over HTTP",
	RunE: func(cmd *cobra.Command, args []string) error {
		if addr, _ := cmd.Flags().GetString("addr"); addr != "" {
			conf.Server.Addr = addr
		}
		ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt)
		defer stop()
		return serve(ctx, conf)
	},
}

func init() {
	serveCmd.Flags().String("addr", "", "override server.addr")
}

func newSession(c Config) (*server.Session, func(), error) {
	working, target, err := c.systems()
	if err != nil {
		return nil, nil, err
	}
	src, err := c.newSource()
	if err != nil {
		return nil, nil, err
	}
	resampling, err := gpkg.ParseResampling(c.Export.Resampling)
	if err != nil {
		return nil, nil, err
	}
	opts := server.Options{
		Source:            src,
		Working:           working,
		Target:            target,
		Output:            c.Output.Path,
		DefaultResolution: c.Grid.DefaultResolution,
		Overviews:         c.Export.Overviews,
		Resampling:        resampling,
		Container:         c.containerOptions(),
		EventBuffer:       c.Export.EventBuffer,
	}
	cleanup := func() {}
	if c.Redis.Addr != "" {
		pub := notify.NewPublisher(notify.NewPool(c.Redis.Addr), c.Redis.Channel)
		opts.Handlers = func(id string) []export.Handler {
			return []export.Handler{pub.Handler(id)}
		}
		cleanup = func() { _ = pub.Close() }
	}
	return server.NewSession(opts), cleanup, nil
}

func serve(ctx context.Context, c Config) error {
	session, cleanup, err := newSession(c)
	if err != nil {
		return err
	}
	defer cleanup()
	if log.GetLevel() < log.DebugLevel {
		gin.SetMode(gin.ReleaseMode)
	}
	srv := &http.Server{Addr: c.Server.Addr, Handler: session.Router()}
	go func() {
		<-ctx.Done()
		shutdown, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		if err := srv.Shutdown(shutdown); err != nil {
			log.Errorf("server shutdown error ~ %s", err)
		}
	}()
	log.Infof("session api listening on %s", c.Server.Addr)
	if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
		return err
	}
	// let a running export finish writing its file
	session.Wait()
	return nil
}
