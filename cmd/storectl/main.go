// Command storectl is the operator CLI: schema migrations, account and
// catalog seeding, and session revocation against the MySQL store.
package main

import (
	"context"
	"fmt"
	"os"
	"strings"

	"github.com/spf13/cobra"

	"github.com/iliyamo/storefront/internal/app"
	"github.com/iliyamo/storefront/internal/config"
	"github.com/iliyamo/storefront/internal/database"
	"github.com/iliyamo/storefront/internal/logger"
	"github.com/iliyamo/storefront/internal/model"
	"github.com/iliyamo/storefront/internal/queue"
	"github.com/iliyamo/storefront/internal/utils"
)

func main() {
	if err := newRootCmd().Execute(); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}

func newRootCmd() *cobra.Command {
	var cfg config.Config
	root := &cobra.Command{
		Use:           "storectl",
		Short:         "Operator commands for the storefront API",
		SilenceUsage:  true,
		SilenceErrors: true,
		PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
			c, err := config.Load()
			if err != nil {
				return err
			}
			if c.StoreDriver != config.DriverMySQL {
				return fmt.Errorf("storectl needs STORE_DRIVER=mysql, got %q", c.StoreDriver)
			}
			logger.Init(logger.Config{Format: c.LogFormat, Level: c.LogLevel, Service: "storectl"})
			cfg = c
			return nil
		},
	}
	root.AddCommand(
		newMigrateCmd(&cfg),
		newUserCmd(&cfg),
		newProductCmd(&cfg),
		newSessionsCmd(&cfg),
	)
	return root
}

func newMigrateCmd(cfg *config.Config) *cobra.Command {
	cmd := &cobra.Command{Use: "migrate", Short: "Manage the database schema"}

	up := &cobra.Command{
		Use:   "up",
		Short: "Apply all pending migrations",
		RunE: func(cmd *cobra.Command, args []string) error {
			if err := database.Up(cfg.MigrateURL()); err != nil {
				return err
			}
			fmt.Fprintln(cmd.OutOrStdout(), "schema up to date")
			return nil
		},
	}

	var steps int
	down := &cobra.Command{
		Use:   "down",
		Short: "Roll back migrations",
		RunE: func(cmd *cobra.Command, args []string) error {
			if steps < 1 {
				return fmt.Errorf("--steps must be at least 1")
			}
			if err := database.Down(cfg.MigrateURL(), steps); err != nil {
				return err
			}
			fmt.Fprintf(cmd.OutOrStdout(), "rolled back %d migration(s)\n", steps)
			return nil
		},
	}
	down.Flags().IntVar(&steps, "steps", 1, "number of migrations to roll back")

	version := &cobra.Command{
		Use:   "version",
		Short: "Print the current schema version",
		RunE: func(cmd *cobra.Command, args []string) error {
			v, dirty, err := database.Version(cfg.MigrateURL())
			if err != nil {
				return err
			}
			fmt.Fprintf(cmd.OutOrStdout(), "version=%d dirty=%t\n", v, dirty)
			return nil
		},
	}

	cmd.AddCommand(up, down, version)
	return cmd
}

// withStores opens the MySQL store for the duration of fn.
func withStores(ctx context.Context, cfg *config.Config, fn func(app.Stores) error) error {
	st, err := app.OpenStores(ctx, *cfg, logger.L())
	if err != nil {
		return err
	}
	defer st.Close()
	return fn(st)
}

func newUserCmd(cfg *config.Config) *cobra.Command {
	cmd := &cobra.Command{Use: "user", Short: "Manage accounts"}

	var email, password, role string
	create := &cobra.Command{
		Use:   "create",
		Short: "Create an account, e.g. the first ADMIN",
		RunE: func(cmd *cobra.Command, args []string) error {
			role = strings.ToUpper(strings.TrimSpace(role))
			if role != model.RoleAdmin && role != model.RoleCustomer {
				return fmt.Errorf("--role must be %s or %s", model.RoleAdmin, model.RoleCustomer)
			}
			if email == "" || len(password) < 8 {
				return fmt.Errorf("--email and a --password of at least 8 characters are required")
			}
			hash, err := utils.HashPassword(password, cfg.BcryptCost)
			if err != nil {
				return err
			}
			return withStores(cmd.Context(), cfg, func(st app.Stores) error {
				u := model.User{Email: email, PasswordHash: hash, Role: role, IsActive: true}
				if err := st.Users.Create(cmd.Context(), &u); err != nil {
					return err
				}
				fmt.Fprintf(cmd.OutOrStdout(), "created user %d (%s, %s)\n", u.ID, u.Email, u.Role)
				return nil
			})
		},
	}
	create.Flags().StringVar(&email, "email", "", "account email")
	create.Flags().StringVar(&password, "password", "", "account password")
	create.Flags().StringVar(&role, "role", model.RoleCustomer, "CUSTOMER or ADMIN")

	cmd.AddCommand(create)
	return cmd
}

func newProductCmd(cfg *config.Config) *cobra.Command {
	cmd := &cobra.Command{Use: "product", Short: "Seed the catalog"}

	var p model.Product
	add := &cobra.Command{
		Use:   "add",
		Short: "Add an active product",
		RunE: func(cmd *cobra.Command, args []string) error {
			if strings.TrimSpace(p.Name) == "" || p.PriceCents < 0 || p.Stock < 0 {
				return fmt.Errorf("--name is required; --price-cents and --stock must not be negative")
			}
			p.IsActive = true
			return withStores(cmd.Context(), cfg, func(st app.Stores) error {
				if err := st.Catalog.Create(cmd.Context(), &p); err != nil {
					return err
				}
				fmt.Fprintf(cmd.OutOrStdout(), "created product %d\n", p.ID)
				return nil
			})
		},
	}
	add.Flags().StringVar(&p.Name, "name", "", "product name")
	add.Flags().StringVar(&p.Description, "description", "", "product description")
	add.Flags().Int64Var(&p.PriceCents, "price-cents", 0, "unit price in cents")
	add.Flags().IntVar(&p.Stock, "stock", 0, "units in stock")

	cmd.AddCommand(add)
	return cmd
}

func newSessionsCmd(cfg *config.Config) *cobra.Command {
	cmd := &cobra.Command{Use: "sessions", Short: "Manage refresh token families"}

	var userID uint64
	revoke := &cobra.Command{
		Use:   "revoke",
		Short: "Revoke every session of a user",
		RunE: func(cmd *cobra.Command, args []string) error {
			if userID == 0 {
				return fmt.Errorf("--user-id is required")
			}
			return withStores(cmd.Context(), cfg, func(st app.Stores) error {
				svc := app.NewServices(*cfg, st, nil, queue.Nop{}, nil)
				if err := svc.Tokens.RevokeAll(cmd.Context(), userID); err != nil {
					return err
				}
				logger.L().Info("sessions revoked by operator", logger.UserID(userID))
				fmt.Fprintf(cmd.OutOrStdout(), "revoked all sessions of user %d\n", userID)
				return nil
			})
		},
	}
	revoke.Flags().Uint64Var(&userID, "user-id", 0, "user id")

	cmd.AddCommand(revoke)
	return cmd
}
