package main

import (
	"context"
	"fmt"
	"os"
	"text/tabwriter"
	"time"

	"github.com/parkerroan/authgate"
	"github.com/parkerroan/authgate/config"
	"github.com/parkerroan/authgate/tokenstore"
	"github.com/redis/go-redis/v9"
	"github.com/spf13/cobra"
)

var (
	storeType string
	timeout   time.Duration
	Version   = "dev"
)

func main() {
	rootCmd := &cobra.Command{
		Use:   "authctl",
		Short: "authctl - inspect and revoke authgate tokens",
		Long:  "Operate on the refresh token and access token blacklist store used by authgate",
	}

	rootCmd.PersistentFlags().StringVar(&storeType, "store", "", "token store type, overrides TOKEN_STORE")
	rootCmd.PersistentFlags().DurationVar(&timeout, "timeout", 5*time.Second, "overall command timeout")

	rootCmd.AddCommand(
		revokeCmd(),
		checkCmd(),
		refreshCmd(),
		eventsCmd(),
		versionCmd(),
	)

	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(1)
	}
}

// withStore opens the configured store for the duration of fn.
func withStore(cmd *cobra.Command, fn func(ctx context.Context, s tokenstore.Store) error) error {
	cfg, err := config.Load()
	if err != nil {
		return err
	}
	storeCfg := cfg.Store()
	storeCfg.CacheBlacklist = false
	if storeType != "" {
		storeCfg.Type = storeType
	}

	ctx, cancel := context.WithTimeout(cmd.Context(), timeout)
	defer cancel()

	s, closeStore, err := tokenstore.Open(ctx, storeCfg)
	if err != nil {
		return err
	}
	defer closeStore()

	return fn(ctx, s)
}

func revokeCmd() *cobra.Command {
	var ttl time.Duration

	cmd := &cobra.Command{
		Use:   "revoke [jti]",
		Short: "Blacklist an access token id",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return withStore(cmd, func(ctx context.Context, s tokenstore.Store) error {
				if err := s.AddToBlacklist(ctx, args[0], ttl); err != nil {
					return err
				}
				fmt.Printf("revoked %s for %s\n", args[0], ttl)
				return nil
			})
		},
	}
	cmd.Flags().DurationVar(&ttl, "ttl", 15*time.Minute, "remaining lifetime of the access token")
	return cmd
}

func checkCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "check [jti]",
		Short: "Report whether an access token id is blacklisted",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return withStore(cmd, func(ctx context.Context, s tokenstore.Store) error {
				revoked, err := s.IsBlacklisted(ctx, args[0])
				if err != nil {
					return err
				}
				fmt.Printf("%s revoked: %v\n", args[0], revoked)
				return nil
			})
		},
	}
}

func refreshCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "refresh",
		Short: "Inspect or drop refresh tokens",
	}

	cmd.AddCommand(
		&cobra.Command{
			Use:   "get [jti]",
			Short: "Show the principal a refresh token was issued to",
			Args:  cobra.ExactArgs(1),
			RunE: func(cmd *cobra.Command, args []string) error {
				return withStore(cmd, func(ctx context.Context, s tokenstore.Store) error {
					payload, found, err := s.GetRefreshToken(ctx, args[0])
					if err != nil {
						return err
					}
					if !found {
						return fmt.Errorf("refresh token %s not found", args[0])
					}
					fmt.Println(payload)
					return nil
				})
			},
		},
		&cobra.Command{
			Use:     "delete [jti]",
			Aliases: []string{"rm"},
			Short:   "Delete a refresh token",
			Args:    cobra.ExactArgs(1),
			RunE: func(cmd *cobra.Command, args []string) error {
				return withStore(cmd, func(ctx context.Context, s tokenstore.Store) error {
					if err := s.DeleteRefreshToken(ctx, args[0]); err != nil {
						return err
					}
					fmt.Printf("deleted %s\n", args[0])
					return nil
				})
			},
		},
	)
	return cmd
}

func eventsCmd() *cobra.Command {
	var n int64

	cmd := &cobra.Command{
		Use:   "events",
		Short: "List recent rate limit rejections",
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := config.Load()
			if err != nil {
				return err
			}

			ctx, cancel := context.WithTimeout(cmd.Context(), timeout)
			defer cancel()

			rdb := redis.NewClient(&redis.Options{
				Addr:     cfg.RedisURL,
				Password: cfg.RedisPassword,
				DB:       cfg.RedisDB,
			})
			defer rdb.Close()

			publisher := authgate.NewRedisEventPublisher(rdb, authgate.WithStream(cfg.EventsStream))
			events, err := publisher.Recent(ctx, n)
			if err != nil {
				return err
			}

			w := tabwriter.NewWriter(os.Stdout, 0, 0, 2, ' ', 0)
			fmt.Fprintln(w, "TIME\tCLASS\tMETHOD\tPATH\tCLIENT\tRETRY AFTER")
			for _, ev := range events {
				fmt.Fprintf(w, "%s\t%s\t%s\t%s\t%s\t%ds\n",
					ev.Timestamp.Format(time.RFC3339), ev.Class, ev.Method, ev.Path, ev.ClientKey, ev.RetryAfter)
			}
			return w.Flush()
		},
	}
	cmd.Flags().Int64VarP(&n, "count", "n", 20, "number of events to show")
	return cmd
}

func versionCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "version",
		Short: "Show version information",
		Run: func(cmd *cobra.Command, args []string) {
			fmt.Printf("authctl version %s\n", Version)
		},
	}
}
