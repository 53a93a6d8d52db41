package main

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"
	"text/tabwriter"

	"github.com/oriys/cachebridge/internal/bridge"
	"github.com/spf13/cobra"
)

func cachesCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "caches",
		Short: "List configured caches",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := loadConfig()
			if err != nil {
				return err
			}

			w := tabwriter.NewWriter(cmd.OutOrStdout(), 0, 0, 2, ' ', 0)
			fmt.Fprintln(w, "NAME\tENGINE\tDURATION\tPREFIX\tBREAKER")
			for _, name := range cfg.CacheNames() {
				spec := cfg.Caches[name]
				s := spec.Settings(name)
				breaker := "-"
				if spec.Breaker.ErrorPct > 0 {
					breaker = fmt.Sprintf("%.0f%%", spec.Breaker.ErrorPct)
				}
				fmt.Fprintf(w, "%s\t%s\t%ds\t%s\t%s\n", name, spec.Engine, s.Duration, s.Prefix, breaker)
			}
			return w.Flush()
		},
	}
}

func getCmd() *cobra.Command {
	var def string

	cmd := &cobra.Command{
		Use:   "get <cache> <key>",
		Short: "Read a key",
		Args:  cobra.ExactArgs(2),
		RunE: func(cmd *cobra.Command, args []string) error {
			return withBridge(cmd, args[0], func(ctx context.Context, b *bridge.Bridge) error {
				v, err := b.Get(ctx, args[1], bridge.ParseValue(def))
				if err != nil {
					return err
				}
				return printJSON(cmd, v)
			})
		},
	}

	cmd.Flags().StringVar(&def, "default", "", "JSON value printed when the key is missing")
	return cmd
}

func setCmd() *cobra.Command {
	var ttl string

	cmd := &cobra.Command{
		Use:   "set <cache> <key> <json-value>",
		Short: "Store a value",
		Long:  "Store a value. The value is parsed as JSON; anything else is stored as a string.",
		Args:  cobra.ExactArgs(3),
		RunE: func(cmd *cobra.Command, args []string) error {
			t, err := bridge.ParseTTL(ttl)
			if err != nil {
				return err
			}
			return withBridge(cmd, args[0], func(ctx context.Context, b *bridge.Bridge) error {
				return printOK(cmd)(b.Set(ctx, args[1], bridge.ParseValue(args[2]), t))
			})
		},
	}

	cmd.Flags().StringVar(&ttl, "ttl", "", "Expiration as seconds or a duration (e.g. 90s); engine default when empty")
	return cmd
}

func deleteCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "delete <cache> <key>",
		Short: "Remove a key",
		Args:  cobra.ExactArgs(2),
		RunE: func(cmd *cobra.Command, args []string) error {
			return withBridge(cmd, args[0], func(ctx context.Context, b *bridge.Bridge) error {
				return printOK(cmd)(b.Delete(ctx, args[1]))
			})
		},
	}
}

func hasCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "has <cache> <key>",
		Short: "Report whether a key holds a truthy value",
		Args:  cobra.ExactArgs(2),
		RunE: func(cmd *cobra.Command, args []string) error {
			return withBridge(cmd, args[0], func(ctx context.Context, b *bridge.Bridge) error {
				found, err := b.Has(ctx, args[1])
				if err != nil {
					return err
				}
				fmt.Fprintln(cmd.OutOrStdout(), found)
				return nil
			})
		},
	}
}

func clearCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "clear <cache>",
		Short: "Remove every key of a cache configuration",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return withBridge(cmd, args[0], func(ctx context.Context, b *bridge.Bridge) error {
				return printOK(cmd)(b.Clear(ctx))
			})
		},
	}
}

func getManyCmd() *cobra.Command {
	var def string

	cmd := &cobra.Command{
		Use:   "get-many <cache> <key>...",
		Short: "Read several keys",
		Args:  cobra.MinimumNArgs(2),
		RunE: func(cmd *cobra.Command, args []string) error {
			return withBridge(cmd, args[0], func(ctx context.Context, b *bridge.Bridge) error {
				values, err := b.GetMultiple(ctx, args[1:], bridge.ParseValue(def))
				if err != nil {
					return err
				}
				return printJSON(cmd, values)
			})
		},
	}

	cmd.Flags().StringVar(&def, "default", "", "JSON value used for missing keys")
	return cmd
}

func setManyCmd() *cobra.Command {
	var ttl string

	cmd := &cobra.Command{
		Use:   "set-many <cache> <key=json-value>...",
		Short: "Store several values",
		Args:  cobra.MinimumNArgs(2),
		RunE: func(cmd *cobra.Command, args []string) error {
			t, err := bridge.ParseTTL(ttl)
			if err != nil {
				return err
			}
			values, err := parsePairs(args[1:])
			if err != nil {
				return err
			}
			return withBridge(cmd, args[0], func(ctx context.Context, b *bridge.Bridge) error {
				return printOK(cmd)(b.SetMultiple(ctx, values, t))
			})
		},
	}

	cmd.Flags().StringVar(&ttl, "ttl", "", "Expiration as seconds or a duration (e.g. 90s); engine default when empty")
	return cmd
}

func deleteManyCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "delete-many <cache> <key>...",
		Short: "Remove several keys",
		Args:  cobra.MinimumNArgs(2),
		RunE: func(cmd *cobra.Command, args []string) error {
			return withBridge(cmd, args[0], func(ctx context.Context, b *bridge.Bridge) error {
				return printOK(cmd)(b.DeleteMultiple(ctx, args[1:]))
			})
		},
	}
}

// parsePairs turns key=value arguments into a value map.
func parsePairs(pairs []string) (map[string]any, error) {
	values := make(map[string]any, len(pairs))
	for _, p := range pairs {
		k, v, ok := strings.Cut(p, "=")
		if !ok || k == "" {
			return nil, fmt.Errorf("invalid pair %q: expected key=value", p)
		}
		values[k] = bridge.ParseValue(v)
	}
	return values, nil
}

func printJSON(cmd *cobra.Command, v any) error {
	enc := json.NewEncoder(cmd.OutOrStdout())
	enc.SetIndent("", "  ")
	return enc.Encode(v)
}

func printOK(cmd *cobra.Command) func(bool, error) error {
	return func(ok bool, err error) error {
		if err != nil {
			return err
		}
		fmt.Fprintln(cmd.OutOrStdout(), ok)
		return nil
	}
}
