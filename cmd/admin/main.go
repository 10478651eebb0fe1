// This program provides an operator CLI for administering a node: adding
// and listing creators, inspecting chain statistics, and forcing an
// out-of-band verification pass.
package main

import (
	"context"
	"fmt"
	"os"
	"time"

	"github.com/ardanlabs/sealedger/business/core/audit"
	"github.com/ardanlabs/sealedger/business/core/audit/store/auditdb"
	"github.com/ardanlabs/sealedger/business/core/chain"
	"github.com/ardanlabs/sealedger/business/core/chain/store/chaindb"
	"github.com/ardanlabs/sealedger/business/core/creator"
	"github.com/ardanlabs/sealedger/business/core/creator/store/creatordb"
	"github.com/ardanlabs/sealedger/business/core/verifier"
	"github.com/ardanlabs/sealedger/business/sys/database"
	"github.com/ardanlabs/sealedger/foundation/logger"
	"github.com/spf13/cobra"
	"go.uber.org/zap"
)

var databaseURL string

func main() {
	root := &cobra.Command{
		Use:   "admin",
		Short: "Operate a sealedger node",
	}
	root.PersistentFlags().StringVar(&databaseURL, "database-url", os.Getenv("NODE_CHAIN_DATABASE_URL"), "postgres connection string")

	root.AddCommand(creatorCmd())
	root.AddCommand(chainCmd())

	if err := root.Execute(); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}

func creatorCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "creator",
		Short: "Manage creators",
	}

	cmd.AddCommand(&cobra.Command{
		Use:   "add <display_name> <public_key.pem>",
		Short: "Register a new creator",
		Args:  cobra.ExactArgs(2),
		RunE: func(cmd *cobra.Command, args []string) error {
			pemBytes, err := os.ReadFile(args[1])
			if err != nil {
				return fmt.Errorf("reading public key file: %w", err)
			}

			log, core, teardown, err := creatorCore(cmd.Context())
			if err != nil {
				return err
			}
			defer teardown()

			crt, err := core.Create(cmd.Context(), creator.NewCreator{
				DisplayName:  args[0],
				PublicKeyPEM: string(pemBytes),
			})
			if err != nil {
				return err
			}

			log.Infow("creator added", "creator_id", crt.ID, "display_name", crt.DisplayName)
			fmt.Println(crt.ID)

			return nil
		},
	})

	cmd.AddCommand(&cobra.Command{
		Use:   "ls",
		Short: "List active creators",
		RunE: func(cmd *cobra.Command, args []string) error {
			_, core, teardown, err := creatorCore(cmd.Context())
			if err != nil {
				return err
			}
			defer teardown()

			crts, err := core.QueryActive(cmd.Context())
			if err != nil {
				return err
			}

			for _, crt := range crts {
				fmt.Printf("%s\t%s\t%s\n", crt.ID, crt.DisplayName, crt.CreatedAt.Format(time.RFC3339))
			}

			return nil
		},
	})

	return cmd
}

func chainCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "chain",
		Short: "Inspect and operate the chain",
	}

	cmd.AddCommand(&cobra.Command{
		Use:   "stats",
		Short: "Show chain statistics",
		RunE: func(cmd *cobra.Command, args []string) error {
			_, store, teardown, err := chainStore(cmd.Context())
			if err != nil {
				return err
			}
			defer teardown()

			stats, err := store.Stats(cmd.Context())
			if err != nil {
				return err
			}

			fmt.Printf("total_blocks: %d\nverified_blocks: %d\npending_blocks: %d\navg_mining_time_ms: %.2f\n",
				stats.TotalBlocks, stats.VerifiedBlocks, stats.PendingBlocks, stats.AvgMiningTimeMs)

			return nil
		},
	})

	cmd.AddCommand(&cobra.Command{
		Use:   "verify-now",
		Short: "Force a verification tick out of band",
		RunE: func(cmd *cobra.Command, args []string) error {
			log, err := logger.New("ADMIN")
			if err != nil {
				return err
			}
			defer log.Sync()

			db, err := database.Open(cmd.Context(), database.Config{DSN: databaseURL, ConnectTimeout: 5 * time.Second})
			if err != nil {
				return fmt.Errorf("connecting to db: %w", err)
			}
			defer db.Close()

			creatorStore := creatordb.NewStore(log, db)
			creatorCore := creator.NewCore(log, creatorStore)

			chainDB := chaindb.NewStore(log, db)
			chainCache, err := chain.NewStore(cmd.Context(), log, chainDB)
			if err != nil {
				return fmt.Errorf("warming chain cache: %w", err)
			}

			auditStore := auditdb.NewStore(log, db)
			auditCore := audit.NewCore(log, auditStore)

			v := verifier.Run(verifier.Config{
				Log:           log,
				Chain:         chainCache,
				Creators:      creatorCore,
				Audit:         auditCore,
				Period:        time.Hour,
				BatchSize:     500,
				MinAgeSeconds: 0,
			})
			v.ForceTick()
			v.Shutdown()

			fmt.Println("verification tick complete")

			return nil
		},
	})

	return cmd
}

func creatorCore(ctx context.Context) (*zap.SugaredLogger, *creator.Core, func(), error) {
	log, err := logger.New("ADMIN")
	if err != nil {
		return nil, nil, nil, err
	}

	db, err := database.Open(ctx, database.Config{DSN: databaseURL, ConnectTimeout: 5 * time.Second})
	if err != nil {
		log.Sync()
		return nil, nil, nil, fmt.Errorf("connecting to db: %w", err)
	}

	store := creatordb.NewStore(log, db)
	core := creator.NewCore(log, store)

	teardown := func() {
		db.Close()
		log.Sync()
	}

	return log, core, teardown, nil
}

func chainStore(ctx context.Context) (*zap.SugaredLogger, *chain.Store, func(), error) {
	log, err := logger.New("ADMIN")
	if err != nil {
		return nil, nil, nil, err
	}

	db, err := database.Open(ctx, database.Config{DSN: databaseURL, ConnectTimeout: 5 * time.Second})
	if err != nil {
		log.Sync()
		return nil, nil, nil, fmt.Errorf("connecting to db: %w", err)
	}

	chainDB := chaindb.NewStore(log, db)
	store, err := chain.NewStore(ctx, log, chainDB)
	if err != nil {
		db.Close()
		log.Sync()
		return nil, nil, nil, fmt.Errorf("warming chain cache: %w", err)
	}

	teardown := func() {
		db.Close()
		log.Sync()
	}

	return log, store, teardown, nil
}
