package main

import (
	"errors"
	"fmt"
	"io/fs"
	"os"

	"github.com/spf13/cobra"

	"github.com/Posologia-Edu/pbl-virtual-sub001/internal/application/catalog"
	"github.com/Posologia-Edu/pbl-virtual-sub001/internal/application/command"
	"github.com/Posologia-Edu/pbl-virtual-sub001/internal/bootstrap"
	"github.com/Posologia-Edu/pbl-virtual-sub001/internal/domain/badge"
	"github.com/Posologia-Edu/pbl-virtual-sub001/pkg/logger"
)

// =============================================================================
// CATALOG COMMANDS
// =============================================================================

type catalogFlags struct {
	path    string
	builtin bool
}

func (f *catalogFlags) register(cmd *cobra.Command) {
	cmd.Flags().StringVar(&f.path, "catalog", "", "YAML catalog file (default BADGES_CATALOG)")
	cmd.Flags().BoolVar(&f.builtin, "builtin", false, "use the catalog compiled into the binary")
	cmd.MarkFlagsMutuallyExclusive("catalog", "builtin")
}

// load resolves the catalog. When no path was given and the configured file
// does not exist, the built-in catalog is used.
func (f *catalogFlags) load(e *env) ([]badge.Definition, string, error) {
	if f.builtin {
		defs, err := catalog.Default()
		return defs, "builtin", err
	}

	path := f.path
	if path == "" {
		path = e.cfg.Badges.CatalogPath
		if _, err := os.Stat(path); errors.Is(err, fs.ErrNotExist) {
			e.log.Info("catalog file not found, using the built-in catalog", logger.String("path", path))
			defs, err := catalog.Default()
			return defs, "builtin", err
		}
	}

	defs, err := catalog.LoadFile(path)
	return defs, path, err
}

func newSeedCmd() *cobra.Command {
	var flags catalogFlags

	cmd := &cobra.Command{
		Use:   "seed",
		Short: "Create or update badge definitions from a catalog",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			e, err := loadEnv(cmd)
			if err != nil {
				return err
			}
			defer e.log.Sync()

			defs, source, err := flags.load(e)
			if err != nil {
				return err
			}

			ctx := cmd.Context()
			store, err := bootstrap.OpenStore(ctx, e.cfg, e.log)
			if err != nil {
				return err
			}
			defer store.Close()

			upsert := command.NewUpsertDefinitionHandler(store, nil, e.log)
			out := cmd.OutOrStdout()
			var created, updated int
			for _, def := range defs {
				res, err := upsert.Handle(ctx, command.UpsertDefinitionCommand{
					Slug:        def.Slug,
					Name:        def.Name,
					Description: def.Description,
					Icon:        def.Icon,
					Category:    string(def.Category),
				})
				if err != nil {
					return fmt.Errorf("seed %s: %w", def.Slug, err)
				}
				if res.Created {
					created++
					fmt.Fprintf(out, "created %s\n", def.Slug)
				} else {
					updated++
					fmt.Fprintf(out, "updated %s\n", def.Slug)
				}
			}
			fmt.Fprintf(out, "seeded %d definitions from %s (%d created, %d updated)\n",
				len(defs), source, created, updated)

			reportCoverage(cmd, bootstrap.NewRegistry(e.cfg.Badges, e.log), defs)
			return nil
		},
	}
	flags.register(cmd)
	return cmd
}

func newCatalogCheckCmd() *cobra.Command {
	var flags catalogFlags

	cmd := &cobra.Command{
		Use:   "check",
		Short: "Validate a catalog and report rules it does not cover",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			e, err := loadEnv(cmd)
			if err != nil {
				return err
			}
			defer e.log.Sync()

			defs, source, err := flags.load(e)
			if err != nil {
				return err
			}
			fmt.Fprintf(cmd.OutOrStdout(), "%s: %d definitions ok\n", source, len(defs))
			reportCoverage(cmd, bootstrap.NewRegistry(e.cfg.Badges, e.log), defs)
			return nil
		},
	}
	flags.register(cmd)
	return cmd
}

func reportCoverage(cmd *cobra.Command, registry *badge.Registry, defs []badge.Definition) {
	for _, slug := range catalog.Coverage(registry, defs) {
		fmt.Fprintf(cmd.OutOrStdout(), "warning: rule %s has no definition and will never be awarded\n", slug)
	}
}
