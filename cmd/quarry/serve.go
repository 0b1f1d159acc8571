// Copyright 2026 Teradata
//
// Licensed under the Apache License, Version 2.0 (the "License");
// you may not use this file except in compliance with the License.
// You may obtain a copy of the License at
//
//	http://www.apache.org/licenses/LICENSE-2.0
//
// Unless required by applicable law or agreed to in writing, software
// distributed under the License is distributed on an "AS IS" BASIS,
// WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.
// See the License for the specific language governing permissions and
// limitations under the License.
package main

import (
	"fmt"
	"net"
	"os"
	"os/signal"
	"strconv"
	"syscall"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/spf13/cobra"
	"github.com/spf13/viper"
	"go.uber.org/zap"

	"github.com/quarrydata/quarry/pkg/learning"
	"github.com/quarrydata/quarry/pkg/server"
)

var serveCmd = &cobra.Command{
	Use:   "serve",
	Short: "Serve the HTTP API",
	Long: `Serve the agent over HTTP.

Endpoints:
  POST /v1/ask      {"question": "...", "history": [...]} -> response JSON
  POST /v1/stream   same body, answer streamed as server-sent events
  GET  /healthz     provider and uptime

Learning maintenance (retention and duplicate collapsing) runs on the
configured schedule while the server is up.`,
	RunE: runServe,
}

func init() {
	serveCmd.Flags().Int("port", 8080, "HTTP port")
	serveCmd.Flags().String("host", "127.0.0.1", "HTTP host")
	serveCmd.Flags().Bool("check-provider", true, "send a test prompt to the LLM provider before serving")
	_ = viper.BindPFlag("server.port", serveCmd.Flags().Lookup("port"))
	_ = viper.BindPFlag("server.host", serveCmd.Flags().Lookup("host"))
	_ = viper.BindPFlag("server.check_provider", serveCmd.Flags().Lookup("check-provider"))
	rootCmd.AddCommand(serveCmd)
}

func runServe(cmd *cobra.Command, args []string) error {
	ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	app, err := newApp(ctx, config)
	if err != nil {
		return err
	}
	defer func() { _ = app.Close() }()

	if config.Server.CheckProvider {
		if err := server.CheckProvider(ctx, app.Agent.Provider()); err != nil {
			return err
		}
	}

	if err := app.WatchCatalog(ctx); err != nil {
		zap.L().Warn("catalog hot reload disabled", zap.Error(err))
	}

	if config.Learning.Enabled {
		maintenance, err := learning.NewMaintenance(app.Store, learning.MaintenanceConfig{
			Schedule:      config.Learning.MaintenanceSchedule,
			RetentionDays: config.Learning.RetentionDays,
		})
		if err != nil {
			return err
		}
		if err := maintenance.Start(ctx); err != nil {
			return err
		}
		defer maintenance.Stop()
	}

	if config.Logging.Level != "debug" {
		gin.SetMode(gin.ReleaseMode)
	}
	srv := server.New(app.Agent, server.Config{
		Addr:           net.JoinHostPort(config.Server.Host, strconv.Itoa(config.Server.Port)),
		RequestTimeout: time.Duration(config.Server.RequestTimeoutSeconds) * time.Second,
		CORS: server.CORSConfig{
			Enabled:        config.Server.CORS.Enabled,
			AllowedOrigins: config.Server.CORS.AllowedOrigins,
			MaxAge:         config.Server.CORS.MaxAge,
		},
	})
	fmt.Fprintf(cmd.ErrOrStderr(), "Serving on http://%s\n", net.JoinHostPort(config.Server.Host, strconv.Itoa(config.Server.Port)))
	return srv.Start(ctx)
}
