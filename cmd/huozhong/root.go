package main

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"os/signal"
	"syscall"
	"text/tabwriter"
	"time"

	"github.com/spf13/cobra"

	"huozhong/cmd/internal/app"
	"huozhong/cmd/internal/verifycode"
)

func newRootCmd() *cobra.Command {
	root := &cobra.Command{
		Use:   "huozhong",
		Short: "Authentication and admission perimeter for the huozhong collaboration service",
		Long: `huozhong serves the login, registration and email-code endpoints and
rate-limits every request by client IP and endpoint prefix.

Configuration comes from HZ_* environment variables.`,
		Version:      version,
		SilenceUsage: true,
	}
	root.SetVersionTemplate(`{{printf "huozhong version %s\n" .Version}}`)

	root.AddCommand(
		newServeCmd(),
		newCodesCmd(),
		newAdminCmd(),
		newMigrateCmd(),
	)
	return root
}

func newServeCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "serve",
		Short: "Start the HTTP server",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			return app.Run()
		},
	}
}

func newCodesCmd() *cobra.Command {
	codes := &cobra.Command{
		Use:   "codes",
		Short: "Inspect stored verification codes",
	}

	var (
		file   string
		output string
	)
	list := &cobra.Command{
		Use:   "list",
		Short: "Print currently valid verification codes",
		Long: `Print every unexpired code in the code file. Reading compacts the file,
so expired and malformed lines are removed as a side effect.`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			if file == "" {
				file = app.EnvString("HZ_CODE_FILE", "data/email_codes.jsonl")
			}
			st, err := verifycode.NewFileStore(file)
			if err != nil {
				return err
			}
			recs, err := st.List()
			if err != nil {
				return err
			}
			return printCodes(cmd.OutOrStdout(), recs, output, time.Now())
		},
	}
	list.Flags().StringVar(&file, "file", "", "code file (default $HZ_CODE_FILE or data/email_codes.jsonl)")
	list.Flags().StringVarP(&output, "output", "o", "table", "output format: table or json")

	codes.AddCommand(list)
	return codes
}

type codeView struct {
	Email     string    `json:"email"`
	Code      string    `json:"code"`
	ExpireAt  time.Time `json:"expire_at"`
	ExpiresIn string    `json:"expires_in"`
}

func printCodes(w io.Writer, recs []verifycode.Record, output string, now time.Time) error {
	views := make([]codeView, 0, len(recs))
	for _, r := range recs {
		views = append(views, codeView{
			Email:     r.Email,
			Code:      r.Code,
			ExpireAt:  r.ExpireAt.UTC(),
			ExpiresIn: r.ExpireAt.Sub(now).Round(time.Second).String(),
		})
	}

	switch output {
	case "json":
		enc := json.NewEncoder(w)
		enc.SetIndent("", "  ")
		return enc.Encode(views)
	case "table", "":
		if len(views) == 0 {
			_, err := fmt.Fprintln(w, "no valid codes")
			return err
		}
		tw := tabwriter.NewWriter(w, 0, 0, 2, ' ', 0)
		_, _ = fmt.Fprintln(tw, "EMAIL\tCODE\tEXPIRES IN")
		for _, v := range views {
			_, _ = fmt.Fprintf(tw, "%s\t%s\t%s\n", v.Email, v.Code, v.ExpiresIn)
		}
		return tw.Flush()
	default:
		return fmt.Errorf("unknown output format %q", output)
	}
}

func newAdminCmd() *cobra.Command {
	admin := &cobra.Command{
		Use:   "admin",
		Short: "Administrator account tooling",
	}
	admin.AddCommand(&cobra.Command{
		Use:   "bootstrap",
		Short: "Create or promote the HZ_ADMIN_ID account in the database",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			cfg, log, err := loadCLIConfig()
			if err != nil {
				return err
			}
			ctx, cancel := signalContext()
			defer cancel()

			res, err := app.BootstrapFromConfig(ctx, cfg, log)
			if err != nil {
				return err
			}
			switch {
			case res.Created:
				fmt.Fprintf(cmd.OutOrStdout(), "created admin %s\n", cfg.AdminID)
			case res.Promoted:
				fmt.Fprintf(cmd.OutOrStdout(), "promoted %s to admin\n", cfg.AdminID)
			default:
				fmt.Fprintf(cmd.OutOrStdout(), "%s is already an admin\n", cfg.AdminID)
			}
			return nil
		},
	})
	return admin
}

func newMigrateCmd() *cobra.Command {
	migrate := &cobra.Command{
		Use:   "migrate",
		Short: "Manage the Postgres schema",
	}
	for _, action := range []string{"up", "status"} {
		action := action
		short := "Apply pending migrations"
		if action == "status" {
			short = "Show applied and pending migrations"
		}
		migrate.AddCommand(&cobra.Command{
			Use:   action,
			Short: short,
			Args:  cobra.NoArgs,
			RunE: func(cmd *cobra.Command, _ []string) error {
				cfg, log, err := loadCLIConfig()
				if err != nil {
					return err
				}
				ctx, cancel := signalContext()
				defer cancel()
				return app.Migrate(ctx, cfg, log, action)
			},
		})
	}
	return migrate
}

func loadCLIConfig() (app.Config, app.Logger, error) {
	cfg, err := app.LoadConfig()
	if err != nil {
		return app.Config{}, nil, err
	}
	return cfg, app.NewLogger(cfg.LogLevel, cfg.LogFormat), nil
}

func signalContext() (context.Context, context.CancelFunc) {
	return signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
}
