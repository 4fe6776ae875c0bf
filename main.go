package main

import (
	"context"
	"errors"
	"fmt"
	"io"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"text/tabwriter"
	"time"

	"github.com/go-chi/oauth"
	"github.com/spf13/cobra"

	"github.com/mbolis/survey-kiosk/app"
	"github.com/mbolis/survey-kiosk/config"
	"github.com/mbolis/survey-kiosk/database"
	"github.com/mbolis/survey-kiosk/httpx"
	"github.com/mbolis/survey-kiosk/log"
	"github.com/mbolis/survey-kiosk/model"
	"github.com/mbolis/survey-kiosk/routes"
)

func main() {
	if err := rootCmd().Execute(); err != nil {
		log.Fatal("main:", err)
	}
}

func rootCmd() *cobra.Command {
	var (
		cfg     config.Config
		logFile io.Closer
	)

	root := &cobra.Command{
		Use:           "kiosk",
		Short:         "Offline-first survey kiosk with background sync",
		SilenceUsage:  true,
		SilenceErrors: true,
		PersistentPreRun: func(cmd *cobra.Command, args []string) {
			cfg.Resolve()
			if cfg.Debug {
				log.SetLevel(log.DebugLevel)
			}
			if cfg.LogFile != "" {
				logFile = log.ToFile(cfg.LogFile)
			}
		},
		PersistentPostRun: func(cmd *cobra.Command, args []string) {
			if logFile != nil {
				logFile.Close()
			}
		},
	}
	cfg.BindFlags(root.PersistentFlags())

	root.AddCommand(
		serveCmd(&cfg),
		syncCmd(&cfg),
		countCmd(&cfg),
		outboxCmd(&cfg),
		userCmd(&cfg),
	)
	return root
}

func serveCmd(cfg *config.Config) *cobra.Command {
	return &cobra.Command{
		Use:   "serve",
		Short: "Serve the kiosk UI and API, syncing in the background",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			if err := cfg.ValidateServer(); err != nil {
				return err
			}
			warnKeyExpiry(*cfg)

			ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
			defer stop()

			db, err := database.Open(cfg.DBUrl)
			if err != nil {
				return fmt.Errorf("open database: %w", err)
			}
			if v, _, err := database.Version(db); err == nil {
				log.Debugf("database %s at schema version %d", cfg.DBUrl, v)
			}

			svc, err := newServices(*cfg, db)
			if err != nil {
				db.Close()
				return err
			}
			defer svc.store.Close()

			svc.monitor.Subscribe(svc.kiosk.ConnectivityChanged)
			go svc.monitor.Run(ctx)
			go svc.engine.Run(ctx)

			app := app.App{
				DB:           db,
				BearerServer: oauth.NewBearerServer(cfg.TokenSecret, cfg.TokenTTL, httpx.CredentialsVerifier(db), nil),
				Config:       *cfg,
				Kiosk:        svc.kiosk,
				Options:      model.Options,
			}

			err = runServer(ctx, *cfg, routes.Wire(app))
			if !errors.Is(err, http.ErrServerClosed) {
				return err
			}
			log.Info("kiosk stopped")
			return nil
		},
	}
}

func runServer(ctx context.Context, cfg config.Config, handler http.Handler) error {
	// no read/write timeouts: /api/events connections stay open
	srv := &http.Server{
		Addr:              cfg.Addr,
		Handler:           handler,
		IdleTimeout:       time.Minute,
		ReadHeaderTimeout: 10 * time.Second,
	}

	go func() {
		<-ctx.Done()
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer cancel()
		if err := srv.Shutdown(shutdownCtx); err != nil {
			log.Error("main.server.shutdown:", err)
		}
	}()

	log.Info("Listening on " + cfg.Url())
	return srv.ListenAndServe()
}

func warnKeyExpiry(cfg config.Config) {
	exp, ok := cfg.KeyExpiry()
	if !ok {
		return
	}
	switch left := time.Until(exp); {
	case left <= 0:
		log.Warn("backend key expired on", exp.Format(time.RFC3339), "- sync will be rejected")
	case left < 7*24*time.Hour:
		log.Warnf("backend key expires in %s", left.Round(time.Hour))
	}
}

func syncCmd(cfg *config.Config) *cobra.Command {
	return &cobra.Command{
		Use:   "sync",
		Short: "Drain the outbox once and print the report",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			if err := cfg.ValidateBackend(); err != nil {
				return err
			}
			warnKeyExpiry(*cfg)

			db, err := database.Open(cfg.DBUrl)
			if err != nil {
				return fmt.Errorf("open database: %w", err)
			}
			svc, err := newServices(*cfg, db)
			if err != nil {
				db.Close()
				return err
			}
			defer svc.store.Close()

			svc.monitor.Check(cmd.Context())
			report := svc.kiosk.SyncOutbox(cmd.Context())

			out := cmd.OutOrStdout()
			fmt.Fprintln(out, report)
			if err := report.Err(); err != nil {
				fmt.Fprintln(out, err)
				return errors.New("some tasks failed to sync")
			}
			return nil
		},
	}
}

func countCmd(cfg *config.Config) *cobra.Command {
	return &cobra.Command{
		Use:   "count",
		Short: "Print today's submission count",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			db, err := database.Open(cfg.DBUrl)
			if err != nil {
				return fmt.Errorf("open database: %w", err)
			}
			svc, err := newLocalServices(*cfg, db)
			if err != nil {
				db.Close()
				return err
			}
			defer svc.store.Close()

			n, err := svc.kiosk.TodayCount(cmd.Context())
			if err != nil {
				return err
			}
			fmt.Fprintln(cmd.OutOrStdout(), n)
			return nil
		},
	}
}

func outboxCmd(cfg *config.Config) *cobra.Command {
	var pendingOnly bool

	cmd := &cobra.Command{
		Use:   "outbox",
		Short: "List outbox tasks",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			db, err := database.Open(cfg.DBUrl)
			if err != nil {
				return fmt.Errorf("open database: %w", err)
			}
			svc, err := newLocalServices(*cfg, db)
			if err != nil {
				db.Close()
				return err
			}
			defer svc.store.Close()

			tasks, err := svc.kiosk.Outbox(cmd.Context(), pendingOnly)
			if err != nil {
				return err
			}
			return printOutbox(cmd.OutOrStdout(), tasks)
		},
	}
	cmd.Flags().BoolVar(&pendingOnly, "pending", false, "only list unsynced tasks")
	return cmd
}

func printOutbox(w io.Writer, tasks []model.OutboxTask) error {
	tw := tabwriter.NewWriter(w, 0, 4, 2, ' ', 0)
	fmt.Fprintln(tw, "ID\tSUBMISSION\tSTATION\tGENDER\tAGE\tCREATED\tSYNCED\tATTEMPTS\tLAST ERROR")
	for _, t := range tasks {
		synced := "-"
		if t.SyncedAt != nil {
			synced = time.UnixMilli(*t.SyncedAt).Format(time.DateTime)
		}
		d := t.Payload.Demographics
		gender, _ := model.Options.GenderCode(d.Gender)
		age, _ := model.Options.AgeCode(d.Age)
		fmt.Fprintf(tw, "%d\t%d\t%s\t%s\t%s\t%s\t%s\t%d\t%s\n",
			t.ID,
			t.SubmissionID,
			t.Payload.StationID,
			orDash(model.Options.GenderLabel(gender)),
			orDash(model.Options.AgeLabel(age)),
			time.UnixMilli(t.CreatedAt).Format(time.DateTime),
			synced,
			t.Attempts,
			orDash(t.LastError),
		)
	}
	return tw.Flush()
}

func orDash(s string) string {
	if s == "" {
		return "-"
	}
	return s
}

func userCmd(cfg *config.Config) *cobra.Command {
	user := &cobra.Command{
		Use:   "user",
		Short: "Manage admin users",
	}

	var username, password string
	add := &cobra.Command{
		Use:   "add",
		Short: "Create or update an admin user",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			db, err := database.Open(cfg.DBUrl)
			if err != nil {
				return fmt.Errorf("open database: %w", err)
			}
			defer db.Close()

			if err := httpx.AddUser(cmd.Context(), db, username, password); err != nil {
				return err
			}
			log.Infof("user %s saved", username)
			return nil
		},
	}
	add.Flags().StringVar(&username, "username", "", "admin user name")
	add.Flags().StringVar(&password, "password", "", "admin password")
	add.MarkFlagRequired("username")
	add.MarkFlagRequired("password")

	user.AddCommand(add)
	return user
}
