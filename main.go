package main

import (
	"context"
	"fmt"
	"io"
	"os"
	"strconv"

	"github.com/cockroachdb/errors"
	"github.com/olekukonko/tablewriter"
	"github.com/petermattis/satopt/cat"
	"github.com/petermattis/satopt/config"
	"github.com/petermattis/satopt/observe"
	"github.com/petermattis/satopt/opt"
	"github.com/petermattis/satopt/util/logutil"
	"github.com/petermattis/satopt/xform"
	"github.com/spf13/cobra"
	"go.uber.org/zap"
)

func main() {
	if err := newRootCmd(os.Stdout).Execute(); err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(1)
	}
}

func newRootCmd(out io.Writer) *cobra.Command {
	rootCmd := &cobra.Command{
		Use:           "satopt",
		Short:         "satopt - staged equality saturation plan optimizer",
		SilenceUsage:  true,
		SilenceErrors: true,
	}
	rootCmd.SetOut(out)
	rootCmd.AddCommand(newOptimizeCmd())
	rootCmd.AddCommand(newCatalogCmd())
	return rootCmd
}

type catalogFlags struct {
	toml   string
	sqlite string
}

func (f *catalogFlags) register(cmd *cobra.Command) {
	cmd.Flags().StringVar(&f.toml, "catalog", "", "catalog in TOML format")
	cmd.Flags().StringVar(&f.sqlite, "sqlite", "", "catalog stored in a SQLite database")
	cmd.MarkFlagsMutuallyExclusive("catalog", "sqlite")
}

func (f *catalogFlags) load(ctx context.Context) (*cat.Catalog, error) {
	switch {
	case f.toml != "":
		return cat.LoadTOMLFile(f.toml)
	case f.sqlite != "":
		db, err := cat.OpenSQLite(ctx, f.sqlite)
		if err != nil {
			return nil, err
		}
		defer db.Close()
		return cat.LoadSQLite(ctx, db)
	}
	return cat.NewCatalog(), nil
}

func newOptimizeCmd() *cobra.Command {
	var (
		catalog    catalogFlags
		configPath string
		tree       bool
		costs      bool
		rounds     bool
		verbose    bool
	)

	cmd := &cobra.Command{
		Use:   "optimize <expr>",
		Short: "Optimize a plan written as an s-expression",
		Long: `Optimize a plan written as an s-expression, for example

  satopt optimize --catalog tpch.toml '(filter (scan $t1 (list $c1 $c2)) (= $c1 5))'`,
		Args: cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg := config.NewConfig()
			if configPath != "" {
				var err error
				if cfg, err = config.Load(configPath); err != nil {
					return err
				}
			}
			logger, err := logutil.NewLogger(cfg.Log.ToLogConfig())
			if err != nil {
				return err
			}
			defer func() { _ = logger.Sync() }()

			c, err := catalog.load(cmd.Context())
			if err != nil {
				return err
			}
			expr, err := opt.ParseRecExpr(args[0])
			if err != nil {
				return err
			}

			var observers []xform.Observer
			table := observe.NewTableSink(cmd.OutOrStdout())
			if rounds {
				observers = append(observers, table)
			}
			if verbose {
				observers = append(observers, observe.NewLogSink(logger))
			}
			opts := append(cfg.XformOptions(),
				xform.WithLogger(logger),
				xform.WithObserver(observe.Multi(observers...)))

			o := xform.New(c, cfg.Rules(), opts...)
			res, err := o.OptimizeWithStats(expr)
			if err != nil {
				return err
			}
			logger.Debug("optimized", zap.Stringer("plan", res.Expr), zap.Float64("cost", res.Cost))

			w := cmd.OutOrStdout()
			fmt.Fprintf(w, "%s\ncost: %.2f\n", res.Expr, res.Cost)
			if tree {
				fmt.Fprint(w, res.Expr.Tree())
			}
			if costs {
				writeCosts(w, res)
			}
			if rounds {
				table.Flush()
			}
			return nil
		},
	}
	catalog.register(cmd)
	cmd.Flags().StringVar(&configPath, "config", "", "config file")
	cmd.Flags().BoolVar(&tree, "explain", false, "print the plan as a tree")
	cmd.Flags().BoolVar(&costs, "costs", false, "print the cost and row estimate of every node")
	cmd.Flags().BoolVar(&rounds, "rounds-table", false, "print one row per optimization round")
	cmd.Flags().BoolVarP(&verbose, "verbose", "v", false, "log every round")
	return cmd
}

func writeCosts(w io.Writer, res *xform.Result) {
	table := tablewriter.NewWriter(w)
	table.SetHeader([]string{"#", "node", "cost", "rows"})
	for i, n := range res.Expr.Nodes() {
		table.Append([]string{
			strconv.Itoa(i),
			n.String(),
			strconv.FormatFloat(res.Costs[i], 'f', 2, 64),
			strconv.FormatFloat(res.Rows[i], 'f', 0, 64),
		})
	}
	table.Render()
}

func newCatalogCmd() *cobra.Command {
	catalogCmd := &cobra.Command{
		Use:   "catalog",
		Short: "Inspect and convert catalogs",
	}

	var show catalogFlags
	showCmd := &cobra.Command{
		Use:   "show",
		Short: "Print the tables of a catalog",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			c, err := show.load(cmd.Context())
			if err != nil {
				return err
			}
			for _, t := range c.Tables() {
				fmt.Fprint(cmd.OutOrStdout(), t.String())
			}
			return nil
		},
	}
	show.register(showCmd)
	catalogCmd.AddCommand(showCmd)

	catalogCmd.AddCommand(&cobra.Command{
		Use:   "import <catalog.toml> <stats.db>",
		Short: "Store a TOML catalog in a SQLite database",
		Args:  cobra.ExactArgs(2),
		RunE: func(cmd *cobra.Command, args []string) error {
			c, err := cat.LoadTOMLFile(args[0])
			if err != nil {
				return err
			}
			db, err := cat.OpenSQLite(cmd.Context(), args[1])
			if err != nil {
				return err
			}
			defer db.Close()
			if err := cat.SaveSQLite(cmd.Context(), db, c); err != nil {
				return errors.Wrapf(err, "saving catalog to %s", args[1])
			}
			fmt.Fprintf(cmd.OutOrStdout(), "imported %d tables\n", len(c.Tables()))
			return nil
		},
	})
	return catalogCmd
}
