package main

import (
	"context"
	"fmt"
	"os"
	"time"

	json5 "github.com/yosuke-furukawa/json5/encoding/json5"

	"github.com/spf13/cobra"

	"github.com/wingbits/crewbot/internal/admin"
	"github.com/wingbits/crewbot/internal/cache"
	"github.com/wingbits/crewbot/internal/cachesync"
	"github.com/wingbits/crewbot/internal/observability"
	"github.com/wingbits/crewbot/internal/store"
	"github.com/wingbits/crewbot/pkg/models"
)

// adminEnv bundles the collaborators the admin subcommands need. The CLI
// works against the database directly; a running bot picks up the changes at
// its next scheduled reconciliation.
type adminEnv struct {
	stores  *store.StoreSet
	service *admin.Service
}

func withAdminEnv(dbPath string, fn func(ctx context.Context, env *adminEnv) error) error {
	stores, err := store.NewSQLiteStoreSet(dbPath)
	if err != nil {
		return fmt.Errorf("opening database: %w", err)
	}
	defer stores.Close()

	logger := observability.NewLogger(observability.LogConfig{Level: "warn", Format: "text", Output: os.Stderr})
	cacheStore := cache.New(cache.Options{TTL: time.Hour})
	cacheStore.Init()
	defer cacheStore.Shutdown()
	syncer := cachesync.New(cacheStore, stores, logger)

	env := &adminEnv{
		stores:  stores,
		service: admin.New(stores, syncer, logger, nil, nil),
	}
	return fn(context.Background(), env)
}

func buildAdminCmd() *cobra.Command {
	var dbPath string
	cmd := &cobra.Command{
		Use:   "admin",
		Short: "Manage commands, versions, categories, and channel defaults",
	}
	cmd.PersistentFlags().StringVar(&dbPath, "db", "crewbot.db", "Path to the SQLite database")
	cmd.AddCommand(
		buildAdminCommandCmd(&dbPath),
		buildAdminVersionCmd(&dbPath),
		buildAdminCategoryCmd(&dbPath),
		buildAdminChannelDefaultCmd(&dbPath),
	)
	return cmd
}

func decodeEntityFile[T any](path string) (*T, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, err
	}
	var entity T
	if err := json5.Unmarshal(data, &entity); err != nil {
		return nil, fmt.Errorf("parsing %s: %w", path, err)
	}
	return &entity, nil
}

func buildAdminCommandCmd(dbPath *string) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "command",
		Short: "Manage prefix commands",
	}

	var file string
	createCmd := &cobra.Command{
		Use:   "create",
		Short: "Create a command from a JSON5 document",
		RunE: func(cmd *cobra.Command, args []string) error {
			return withAdminEnv(*dbPath, func(ctx context.Context, env *adminEnv) error {
				entity, err := decodeEntityFile[models.Command](file)
				if err != nil {
					return err
				}
				if err := env.service.CreateCommand(ctx, entity); err != nil {
					return err
				}
				fmt.Fprintf(cmd.OutOrStdout(), "created command %s (%s)\n", entity.Name, entity.ID)
				return nil
			})
		},
	}
	createCmd.Flags().StringVarP(&file, "file", "f", "", "Path to the command document")
	createCmd.MarkFlagRequired("file")

	var updateFile string
	updateCmd := &cobra.Command{
		Use:   "update",
		Short: "Update a command from a JSON5 document (matched by id)",
		RunE: func(cmd *cobra.Command, args []string) error {
			return withAdminEnv(*dbPath, func(ctx context.Context, env *adminEnv) error {
				entity, err := decodeEntityFile[models.Command](updateFile)
				if err != nil {
					return err
				}
				if err := env.service.UpdateCommand(ctx, entity); err != nil {
					return err
				}
				fmt.Fprintf(cmd.OutOrStdout(), "updated command %s (%s)\n", entity.Name, entity.ID)
				return nil
			})
		},
	}
	updateCmd.Flags().StringVarP(&updateFile, "file", "f", "", "Path to the command document")
	updateCmd.MarkFlagRequired("file")

	deleteCmd := &cobra.Command{
		Use:   "delete <id>",
		Short: "Delete a command by id",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return withAdminEnv(*dbPath, func(ctx context.Context, env *adminEnv) error {
				return env.service.DeleteCommand(ctx, args[0])
			})
		},
	}

	var search string
	listCmd := &cobra.Command{
		Use:   "list",
		Short: "List commands",
		RunE: func(cmd *cobra.Command, args []string) error {
			return withAdminEnv(*dbPath, func(ctx context.Context, env *adminEnv) error {
				var commands []*models.Command
				var err error
				if search != "" {
					commands, err = env.stores.Commands.Search(ctx, search)
				} else {
					commands, err = env.stores.Commands.List(ctx)
				}
				if err != nil {
					return err
				}
				for _, entity := range commands {
					fmt.Fprintf(cmd.OutOrStdout(), "%s\t%s\taliases=%v\tvariants=%d\n",
						entity.ID, entity.Name, entity.Aliases, len(entity.Contents))
				}
				return nil
			})
		},
	}
	listCmd.Flags().StringVar(&search, "search", "", "Filter by name substring")

	cmd.AddCommand(createCmd, updateCmd, deleteCmd, listCmd)
	return cmd
}

func buildAdminVersionCmd(dbPath *string) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "version",
		Short: "Manage command versions",
	}

	var name, alias, emoji string
	var enabled bool
	createCmd := &cobra.Command{
		Use:   "create",
		Short: "Create a version",
		RunE: func(cmd *cobra.Command, args []string) error {
			return withAdminEnv(*dbPath, func(ctx context.Context, env *adminEnv) error {
				entity := &models.Version{Name: name, Alias: alias, Emoji: emoji, Enabled: enabled}
				if err := env.service.CreateVersion(ctx, entity); err != nil {
					return err
				}
				fmt.Fprintf(cmd.OutOrStdout(), "created version %s (%s)\n", entity.Name, entity.ID)
				return nil
			})
		},
	}
	createCmd.Flags().StringVar(&name, "name", "", "Version name")
	createCmd.Flags().StringVar(&alias, "alias", "", "Invocation alias")
	createCmd.Flags().StringVar(&emoji, "emoji", "", "Picker button emoji")
	createCmd.Flags().BoolVar(&enabled, "enabled", true, "Whether the version is selectable")
	createCmd.MarkFlagRequired("name")
	createCmd.MarkFlagRequired("alias")

	var updateFile string
	updateCmd := &cobra.Command{
		Use:   "update",
		Short: "Update a version from a JSON5 document (matched by id)",
		RunE: func(cmd *cobra.Command, args []string) error {
			return withAdminEnv(*dbPath, func(ctx context.Context, env *adminEnv) error {
				entity, err := decodeEntityFile[models.Version](updateFile)
				if err != nil {
					return err
				}
				if err := env.service.UpdateVersion(ctx, entity); err != nil {
					return err
				}
				fmt.Fprintf(cmd.OutOrStdout(), "updated version %s (%s)\n", entity.Name, entity.ID)
				return nil
			})
		},
	}
	updateCmd.Flags().StringVarP(&updateFile, "file", "f", "", "Path to the version document")
	updateCmd.MarkFlagRequired("file")

	deleteCmd := &cobra.Command{
		Use:   "delete <id>",
		Short: "Delete a version by id",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return withAdminEnv(*dbPath, func(ctx context.Context, env *adminEnv) error {
				return env.service.DeleteVersion(ctx, args[0])
			})
		},
	}

	listCmd := &cobra.Command{
		Use:   "list",
		Short: "List versions",
		RunE: func(cmd *cobra.Command, args []string) error {
			return withAdminEnv(*dbPath, func(ctx context.Context, env *adminEnv) error {
				versions, err := env.stores.Versions.List(ctx)
				if err != nil {
					return err
				}
				for _, entity := range versions {
					fmt.Fprintf(cmd.OutOrStdout(), "%s\t%s\talias=%s\temoji=%s\tenabled=%v\n",
						entity.ID, entity.Name, entity.Alias, entity.Emoji, entity.Enabled)
				}
				return nil
			})
		},
	}

	cmd.AddCommand(createCmd, updateCmd, deleteCmd, listCmd)
	return cmd
}

func buildAdminCategoryCmd(dbPath *string) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "category",
		Short: "Manage command categories",
	}

	var name, emoji string
	createCmd := &cobra.Command{
		Use:   "create",
		Short: "Create a category",
		RunE: func(cmd *cobra.Command, args []string) error {
			return withAdminEnv(*dbPath, func(ctx context.Context, env *adminEnv) error {
				entity := &models.Category{Name: name, Emoji: emoji}
				if err := env.service.CreateCategory(ctx, entity); err != nil {
					return err
				}
				fmt.Fprintf(cmd.OutOrStdout(), "created category %s (%s)\n", entity.Name, entity.ID)
				return nil
			})
		},
	}
	createCmd.Flags().StringVar(&name, "name", "", "Category name")
	createCmd.Flags().StringVar(&emoji, "emoji", "", "Display emoji")
	createCmd.MarkFlagRequired("name")

	deleteCmd := &cobra.Command{
		Use:   "delete <id>",
		Short: "Delete a category by id",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return withAdminEnv(*dbPath, func(ctx context.Context, env *adminEnv) error {
				return env.service.DeleteCategory(ctx, args[0])
			})
		},
	}

	listCmd := &cobra.Command{
		Use:   "list",
		Short: "List categories",
		RunE: func(cmd *cobra.Command, args []string) error {
			return withAdminEnv(*dbPath, func(ctx context.Context, env *adminEnv) error {
				categories, err := env.stores.Categories.List(ctx)
				if err != nil {
					return err
				}
				for _, entity := range categories {
					fmt.Fprintf(cmd.OutOrStdout(), "%s\t%s\t%s\n", entity.ID, entity.Name, entity.Emoji)
				}
				return nil
			})
		},
	}

	cmd.AddCommand(createCmd, deleteCmd, listCmd)
	return cmd
}

func buildAdminChannelDefaultCmd(dbPath *string) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "channel-default",
		Short: "Manage per-channel default versions",
	}

	var channelID, versionID string
	setCmd := &cobra.Command{
		Use:   "set",
		Short: "Point a channel at a default version",
		RunE: func(cmd *cobra.Command, args []string) error {
			return withAdminEnv(*dbPath, func(ctx context.Context, env *adminEnv) error {
				return env.service.SetChannelDefault(ctx, channelID, versionID)
			})
		},
	}
	setCmd.Flags().StringVar(&channelID, "channel", "", "Channel id")
	setCmd.Flags().StringVar(&versionID, "version", "", "Version id")
	setCmd.MarkFlagRequired("channel")
	setCmd.MarkFlagRequired("version")

	var removeChannel string
	removeCmd := &cobra.Command{
		Use:   "remove",
		Short: "Remove a channel's default version",
		RunE: func(cmd *cobra.Command, args []string) error {
			return withAdminEnv(*dbPath, func(ctx context.Context, env *adminEnv) error {
				return env.service.RemoveChannelDefault(ctx, removeChannel)
			})
		},
	}
	removeCmd.Flags().StringVar(&removeChannel, "channel", "", "Channel id")
	removeCmd.MarkFlagRequired("channel")

	listCmd := &cobra.Command{
		Use:   "list",
		Short: "List channel defaults",
		RunE: func(cmd *cobra.Command, args []string) error {
			return withAdminEnv(*dbPath, func(ctx context.Context, env *adminEnv) error {
				defaults, err := env.stores.ChannelDefaults.List(ctx)
				if err != nil {
					return err
				}
				for _, entity := range defaults {
					fmt.Fprintf(cmd.OutOrStdout(), "%s\t%s\n", entity.ChannelID, entity.VersionID)
				}
				return nil
			})
		},
	}

	cmd.AddCommand(setCmd, removeCmd, listCmd)
	return cmd
}
