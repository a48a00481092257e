package main

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/gin-contrib/cors"
	"github.com/gin-gonic/gin"
	"github.com/spf13/cobra"
	swaggerFiles "github.com/swaggo/files"
	ginSwagger "github.com/swaggo/gin-swagger"

	"lendledger-backend/docs"
	"lendledger-backend/internal/marketplace/disputes"
	"lendledger-backend/internal/marketplace/items"
	"lendledger-backend/internal/marketplace/lending"
	"lendledger-backend/internal/marketplace/linker"
	"lendledger-backend/internal/marketplace/profiles"
	"lendledger-backend/internal/platform/auth"
	"lendledger-backend/internal/platform/config"
	"lendledger-backend/internal/platform/db"
	"lendledger-backend/internal/platform/logging"
)

// @title        Lending mirror API
// @version      1.0
// @description  P2P item lending backed by an on-chain item registry.
// @BasePath     /api/v1
// @securityDefinitions.apikey BearerAuth
// @in           header
// @name         Authorization

var cfgPath string

func main() {
	if err := rootCmd.Execute(); err != nil {
		os.Exit(1)
	}
}

var rootCmd = &cobra.Command{
	Use:          "lendledger",
	Short:        "P2P lending mirror backend",
	SilenceUsage: true,
}

func init() {
	def := "config/config.yaml"
	if v := os.Getenv("LENDING_CONFIG"); v != "" {
		def = v
	}
	rootCmd.PersistentFlags().StringVarP(&cfgPath, "config", "c", def, "path to config file (.yaml or .toml)")

	tokenCmd.Flags().String("subject", "", "profile id to mint a token for (required)")
	tokenCmd.Flags().String("email", "", "email claim")
	tokenCmd.Flags().String("wallet", "", "wallet claim")
	tokenCmd.Flags().Duration("ttl", 24*time.Hour, "token lifetime")
	_ = tokenCmd.MarkFlagRequired("subject")

	rootCmd.AddCommand(serveCmd, migrateCmd, sweepCmd, tokenCmd)
}

var serveCmd = &cobra.Command{
	Use:   "serve",
	Short: "Run the HTTP API and the background sweeper",
	RunE: func(cmd *cobra.Command, args []string) error {
		ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
		defer stop()

		a, err := newApp(ctx, cfgPath)
		if err != nil {
			return err
		}
		defer a.Close()

		srv := &http.Server{
			Addr:              a.cfg.HTTP.Addr,
			Handler:           newRouter(a),
			ReadHeaderTimeout: 10 * time.Second,
		}

		// 掃引中のパスが DB や台帳を使い終わるまで Close しない
		if a.cfg.Sweeper.Enabled {
			wait := a.sweeper.Start(ctx)
			defer wait()
		}

		errCh := make(chan error, 1)
		go func() {
			a.log.Info("listening", "addr", srv.Addr)
			if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
				errCh <- err
			}
		}()

		select {
		case err := <-errCh:
			stop()
			return err
		case <-ctx.Done():
		}

		// Graceful shutdown
		a.log.Info("shutting down")
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer cancel()
		return srv.Shutdown(shutdownCtx)
	},
}

func newRouter(a *app) *gin.Engine {
	if a.cfg.Mode == config.ModeRelease {
		gin.SetMode(gin.ReleaseMode)
	}
	r := gin.New()
	r.Use(gin.Logger(), gin.Recovery())
	_ = r.SetTrustedProxies(nil)

	if a.cfg.Mode == config.ModeDev {
		// CORS（開発中のみ必要）
		r.Use(cors.New(cors.Config{
			AllowOrigins:     a.cfg.HTTP.CORSOrigins,
			AllowHeaders:     []string{"Origin", "Content-Type", "Authorization"},
			ExposeHeaders:    []string{"Content-Length", "Location"},
			AllowMethods:     []string{"GET", "POST", "PUT", "PATCH", "DELETE", "OPTIONS"},
			AllowCredentials: true,
		}))
		docs.SwaggerInfo.Host = ""
		r.GET("/swagger/*any", ginSwagger.WrapHandler(swaggerFiles.Handler))
	}

	// ヘルス
	r.GET("/healthz", func(c *gin.Context) {
		ctx, cancel := context.WithTimeout(c.Request.Context(), 2*time.Second)
		defer cancel()
		if err := a.conn.PingContext(ctx); err != nil {
			c.String(http.StatusServiceUnavailable, "db unavailable")
			return
		}
		c.String(http.StatusOK, "ok")
	})

	// /api/v1
	api := r.Group("/api/v1", auth.RequireAuth([]byte(a.cfg.Auth.JWTSecret)), profiles.EnsureProfile(a.profiles))
	profiles.RegisterRoutes(api, a.profiles)
	items.RegisterRoutes(api, a.items)
	linker.RegisterRoutes(api, a.linker)
	lending.RegisterRoutes(api, a.lending)
	disputes.RegisterRoutes(api, a.disputes)
	return r
}

var migrateCmd = &cobra.Command{
	Use:   "migrate",
	Short: "Apply database migrations",
	RunE: func(cmd *cobra.Command, args []string) error {
		cfg, err := config.Load(cfgPath)
		if err != nil {
			return err
		}
		conn, dialect, err := db.Open(cfg.DB)
		if err != nil {
			return err
		}
		defer conn.Close()

		if err := db.Migrate(conn, dialect); err != nil {
			return err
		}
		version, dirty, err := db.SchemaVersion(conn, dialect)
		if err != nil {
			return err
		}
		fmt.Printf("schema version %d (dirty=%v) on %s\n", version, dirty, dialect)
		return nil
	},
}

var sweepCmd = &cobra.Command{
	Use:   "sweep",
	Short: "Run one reconciliation pass and exit",
	RunE: func(cmd *cobra.Command, args []string) error {
		ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
		defer stop()

		a, err := newApp(ctx, cfgPath)
		if err != nil {
			return err
		}
		defer a.Close()

		if d := a.cfg.Sweeper.PassTimeout.Duration; d > 0 {
			var cancel context.CancelFunc
			ctx, cancel = context.WithTimeout(ctx, d)
			defer cancel()
		}
		rep, err := a.sweeper.RunOnce(ctx)
		if err != nil {
			return err
		}
		fmt.Printf("pass %s: checked=%d refreshed=%d drift_observed=%d drift_flagged=%d drift_cleared=%d metadata_mismatch=%d orphaned=%d skipped=%d failed=%d\n",
			rep.PassID, rep.Checked, rep.Refreshed, rep.DriftObserved, rep.DriftFlagged, rep.DriftCleared,
			rep.MetadataMismatch, rep.Orphaned, rep.Skipped, rep.Failed)
		return nil
	},
}

var tokenCmd = &cobra.Command{
	Use:   "token",
	Short: "Mint a development session token",
	RunE: func(cmd *cobra.Command, args []string) error {
		cfg, err := config.Load(cfgPath)
		if err != nil {
			return err
		}
		if cfg.Mode != config.ModeDev {
			return fmt.Errorf("token minting is only available in %s mode", config.ModeDev)
		}
		subject, _ := cmd.Flags().GetString("subject")
		email, _ := cmd.Flags().GetString("email")
		wallet, _ := cmd.Flags().GetString("wallet")
		ttl, _ := cmd.Flags().GetDuration("ttl")

		tok, err := auth.IssueToken([]byte(cfg.Auth.JWTSecret), auth.Session{Subject: subject, Email: email, Wallet: wallet}, ttl)
		if err != nil {
			return err
		}
		logging.New(os.Stderr, cfg.LogLevel).Info("token issued", "subject", subject, "ttl", ttl.String())
		fmt.Println(tok)
		return nil
	},
}
