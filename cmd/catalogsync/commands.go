package main

import (
	"encoding/json"
	"fmt"

	"catalogsync/internal/app"
	"catalogsync/internal/config"
	"catalogsync/internal/database"
	"catalogsync/internal/logger"
	"catalogsync/internal/models"

	"github.com/spf13/cobra"
)

// CLI holds the components opened for one command invocation.
type CLI struct {
	app *app.App
	db  *database.Database
}

func (c *CLI) open(cmd *cobra.Command) error {
	cfg, err := config.Load()
	if err != nil {
		return fmt.Errorf("failed to load configuration: %w", err)
	}
	if debug, _ := cmd.Flags().GetBool("debug"); debug {
		cfg.LogLevel = "debug"
	}
	log := logger.NewForEnv(cfg.LogLevel, cfg.Env)

	db, err := database.New(cfg.DatabaseURL, cfg.LogLevel)
	if err != nil {
		return err
	}
	if err := db.Migrate(); err != nil {
		db.Close()
		return err
	}

	a, err := app.Build(cfg, db, log)
	if err != nil {
		db.Close()
		return err
	}
	if err := a.SeedStores(cmd.Context()); err != nil {
		a.Close()
		db.Close()
		return err
	}

	c.app = a
	c.db = db
	return nil
}

func (c *CLI) close() {
	if c.app != nil {
		c.app.Close()
		c.app.Logger.Sync()
		c.app = nil
	}
	if c.db != nil {
		c.db.Close()
		c.db = nil
	}
}

// run opens the components around fn and always releases them.
func (c *CLI) run(fn func(cmd *cobra.Command, args []string) error) func(cmd *cobra.Command, args []string) error {
	return func(cmd *cobra.Command, args []string) error {
		if err := c.open(cmd); err != nil {
			return err
		}
		defer c.close()
		return fn(cmd, args)
	}
}

func printJSON(cmd *cobra.Command, v interface{}) error {
	enc := json.NewEncoder(cmd.OutOrStdout())
	enc.SetIndent("", "  ")
	return enc.Encode(v)
}

// NewRootCommand creates the root cobra command
func NewRootCommand() *cobra.Command {
	cli := &CLI{}

	rootCmd := &cobra.Command{
		Use:   "catalogsync",
		Short: "Mirror a remote commerce catalog into the local store",
		Long: `catalogsync pulls products, categories, promotions and stock from the
commerce backend and reconciles them with the local records.

Configuration is read from the environment and an optional .env file.`,
		SilenceUsage: true,
	}
	rootCmd.PersistentFlags().Bool("debug", false, "Debug logging")

	rootCmd.AddCommand(newProductsCommand(cli))
	rootCmd.AddCommand(newPromotionsCommand(cli))
	rootCmd.AddCommand(newCategoriesCommand(cli))
	rootCmd.AddCommand(newQueueCommand(cli))
	rootCmd.AddCommand(newStockCommand(cli))

	return rootCmd
}

func newProductsCommand(cli *CLI) *cobra.Command {
	var stores []string
	var full bool

	cmd := &cobra.Command{
		Use:   "products",
		Short: "Pull the product catalog of one or more stores",
		RunE: cli.run(func(cmd *cobra.Command, args []string) error {
			results, err := cli.app.Pipeline.PullProducts(cmd.Context(), stores, full)
			if err != nil {
				return err
			}
			return printJSON(cmd, results)
		}),
	}
	cmd.Flags().StringSliceVar(&stores, "store", nil, "Store id to pull (repeatable, default every configured store)")
	cmd.Flags().BoolVar(&full, "full", false, "Treat the feed as the complete catalog and delete what it omits")
	return cmd
}

func newPromotionsCommand(cli *CLI) *cobra.Command {
	var types []string
	var process bool

	cmd := &cobra.Command{
		Use:   "promotions",
		Short: "Sync promotion rules and queue their product changes",
		RunE: cli.run(func(cmd *cobra.Command, args []string) error {
			var promotionTypes []models.PromotionType
			for _, t := range types {
				pt := models.PromotionType(t)
				if !pt.Valid() {
					return fmt.Errorf("unknown promotion type %q", t)
				}
				promotionTypes = append(promotionTypes, pt)
			}

			result, err := cli.app.Pipeline.SyncPromotions(cmd.Context(), promotionTypes)
			if err != nil {
				return err
			}
			if process {
				handled, err := cli.app.Worker.ProcessAvailable(cmd.Context())
				if err != nil {
					return err
				}
				cli.app.Logger.Info("Processed %d queued batches", handled)
			}
			return printJSON(cmd, result)
		}),
	}
	cmd.Flags().StringSliceVar(&types, "type", nil, "Promotion type: cart or category (repeatable, default every configured type)")
	cmd.Flags().BoolVar(&process, "process", false, "Apply the queued batches before exiting")
	return cmd
}

func newCategoriesCommand(cli *CLI) *cobra.Command {
	return &cobra.Command{
		Use:   "categories",
		Short: "Mirror the remote category tree",
		RunE: cli.run(func(cmd *cobra.Command, args []string) error {
			result, err := cli.app.Pipeline.SyncCategoryTree(cmd.Context())
			if err != nil {
				return err
			}
			return printJSON(cmd, result)
		}),
	}
}

func newQueueCommand(cli *CLI) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "queue",
		Short: "Inspect and consume the promotion work queues",
	}

	cmd.AddCommand(&cobra.Command{
		Use:   "process",
		Short: "Apply every queued batch and exit",
		RunE: cli.run(func(cmd *cobra.Command, args []string) error {
			handled, err := cli.app.Worker.ProcessAvailable(cmd.Context())
			if err != nil {
				return err
			}
			return printJSON(cmd, map[string]int{"handled": handled})
		}),
	})

	cmd.AddCommand(&cobra.Command{
		Use:   "drain",
		Short: "Discard every queued batch",
		RunE: cli.run(func(cmd *cobra.Command, args []string) error {
			drained, err := cli.app.PromotionReconciler.DrainQueues(cmd.Context())
			if err != nil {
				return err
			}
			return printJSON(cmd, map[string]int64{"drained": drained})
		}),
	})

	return cmd
}

func newStockCommand(cli *CLI) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "stock",
		Short: "Read the stock cache",
	}

	cmd.AddCommand(&cobra.Command{
		Use:   "get <sku>",
		Short: "Show the cached quantity of a SKU",
		Args:  cobra.ExactArgs(1),
		RunE: cli.run(func(cmd *cobra.Command, args []string) error {
			qty, err := cli.app.Stock.GetStockQuantity(cmd.Context(), args[0])
			if err != nil {
				return err
			}
			inStock, err := cli.app.Stock.IsProductInStock(cmd.Context(), args[0])
			if err != nil {
				return err
			}
			return printJSON(cmd, map[string]interface{}{"sku": args[0], "quantity": qty, "in_stock": inStock})
		}),
	})

	return cmd
}
