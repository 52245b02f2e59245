package cli

import (
	"context"
	"fmt"
	"io"
	"os"
	"path/filepath"

	"github.com/spf13/cobra"

	"github.com/mesh-intelligence/larder/pkg/larder"
	"github.com/mesh-intelligence/larder/pkg/types"
)

func (a *app) newListCmd() *cobra.Command {
	var mine bool
	cmd := &cobra.Command{
		Use:   "list <table> [key=value...]",
		Short: "List records matching a filter",
		Long: `List records from a table. Filters are key=value pairs named after the
table's filter fields and are ANDed together.

Example:
  larder list restaurants is_active=true cuisine=thai
  larder list menu_items restaurant_id=r1 min_price=5 sort_by=price
  larder list orders status=pending limit=20
  larder list restaurants --mine`,
		Args: usageArgs(cobra.MinimumNArgs(1)),
		RunE: func(cmd *cobra.Command, args []string) error {
			t, err := lookupTable(args[0])
			if err != nil {
				return err
			}
			filter, err := parseAssignments(args[1:])
			if err != nil {
				return err
			}
			if mine && args[0] != types.TableRestaurants {
				return fmt.Errorf("%w: --mine applies to restaurants only", errUsage)
			}
			return a.withLarder(cmd, func(ctx context.Context, l *larder.Larder) error {
				var recs []types.Record
				if mine {
					f, err := decodeFilter[types.RestaurantFilter](filter)
					if err != nil {
						return err
					}
					rs, err := l.MyRestaurants(ctx, f)
					if err != nil {
						return err
					}
					recs = records(rs)
				} else if recs, err = t.list(ctx, l, filter); err != nil {
					return err
				}
				return a.printRecords(a.out(cmd), t, recs)
			})
		},
	}
	cmd.Flags().BoolVar(&mine, "mine", false, "only restaurants owned by the signed-in user")
	return cmd
}

func (a *app) newGetCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "get <table> <id>",
		Short: "Show one record",
		Args:  exactArgs(2),
		RunE: func(cmd *cobra.Command, args []string) error {
			t, err := lookupTable(args[0])
			if err != nil {
				return err
			}
			return a.withLarder(cmd, func(ctx context.Context, l *larder.Larder) error {
				rec, err := t.get(ctx, l, args[1])
				if err != nil {
					return err
				}
				return a.printRecord(a.out(cmd), rec)
			})
		},
	}
}

func (a *app) newCreateCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "create <table> <json|->",
		Short: "Create a record from a JSON object",
		Long: `Create a record. The record is given as a JSON object, or read from
standard input when the argument is "-".

Example:
  larder create locations '{"name":"Old Town","city":"Belgrade"}'
  larder create menu_items - < soup.json`,
		Args: exactArgs(2),
		RunE: func(cmd *cobra.Command, args []string) error {
			t, err := lookupTable(args[0])
			if err != nil {
				return err
			}
			data := []byte(args[1])
			if args[1] == "-" {
				if data, err = io.ReadAll(cmd.InOrStdin()); err != nil {
					return fmt.Errorf("read stdin: %w", err)
				}
			}
			return a.withLarder(cmd, func(ctx context.Context, l *larder.Larder) error {
				rec, err := t.create(ctx, l, data)
				if err != nil {
					return err
				}
				return a.printRecord(a.out(cmd), rec)
			})
		},
	}
}

func (a *app) newUpdateCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "update <table> <id> key=value...",
		Short: "Change fields of a record",
		Long: `Update sets the given columns of a record and leaves the rest unchanged.
Order status changes go through "larder status" so transitions are checked.

Example:
  larder update menu_items m1 price=11.5 description="with chili"`,
		Args: usageArgs(cobra.MinimumNArgs(3)),
		RunE: func(cmd *cobra.Command, args []string) error {
			t, err := lookupTable(args[0])
			if err != nil {
				return err
			}
			patch, err := parseAssignments(args[2:])
			if err != nil {
				return err
			}
			if _, ok := patch["status"]; ok && args[0] == types.TableOrders {
				return fmt.Errorf("%w: use \"larder status\" to change an order's status", errUsage)
			}
			return a.withLarder(cmd, func(ctx context.Context, l *larder.Larder) error {
				rec, err := t.update(ctx, l, args[1], patch)
				if err != nil {
					return err
				}
				return a.printRecord(a.out(cmd), rec)
			})
		},
	}
}

func (a *app) newDeleteCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "delete <table> <id>",
		Short: "Delete a record",
		Args:  exactArgs(2),
		RunE: func(cmd *cobra.Command, args []string) error {
			t, err := lookupTable(args[0])
			if err != nil {
				return err
			}
			return a.withLarder(cmd, func(ctx context.Context, l *larder.Larder) error {
				if err := t.remove(ctx, l, args[1]); err != nil {
					return err
				}
				if a.jsonMode {
					return printJSON(a.out(cmd), map[string]string{"deleted": args[1]})
				}
				fmt.Fprintf(a.out(cmd), "deleted %s %s\n", args[0], args[1])
				return nil
			})
		},
	}
}

func (a *app) newToggleCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "toggle <table> <id> <field>",
		Short: "Flip a boolean field",
		Long: `Toggle flips a boolean column, reading its current value from the
backend.

Example:
  larder toggle menu_items m1 is_available
  larder toggle restaurants r1 is_active`,
		Args: exactArgs(3),
		RunE: func(cmd *cobra.Command, args []string) error {
			t, err := lookupTable(args[0])
			if err != nil {
				return err
			}
			return a.withLarder(cmd, func(ctx context.Context, l *larder.Larder) error {
				rec, err := t.toggle(ctx, l, args[1], args[2])
				if err != nil {
					return err
				}
				return a.printRecord(a.out(cmd), rec)
			})
		},
	}
}

func (a *app) newStatusCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "status <order-id> <status>",
		Short: "Move an order to a new status",
		Long: `Status moves an order along its lifecycle:
pending, confirmed, preparing, ready, out_for_delivery, delivered.
Any non-final order can be cancelled.`,
		Args: exactArgs(2),
		RunE: func(cmd *cobra.Command, args []string) error {
			return a.withLarder(cmd, func(ctx context.Context, l *larder.Larder) error {
				o, err := l.UpdateOrderStatus(ctx, args[0], types.OrderStatus(args[1]))
				if err != nil {
					return err
				}
				if a.jsonMode {
					return printJSON(a.out(cmd), o)
				}
				fmt.Fprintf(a.out(cmd), "order %s is %s (%d%%)\n", o.ID, o.Status, types.DeliveryProgress(o.Status))
				return nil
			})
		},
	}
}

func (a *app) newImageCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "image <table> <id> <file>",
		Short: "Upload an image for a menu item, restaurant or user",
		Args:  exactArgs(3),
		RunE: func(cmd *cobra.Command, args []string) error {
			data, err := os.ReadFile(args[2])
			if err != nil {
				return fmt.Errorf("%w: %v", errUsage, err)
			}
			name := filepath.Base(args[2])
			return a.withLarder(cmd, func(ctx context.Context, l *larder.Larder) error {
				var rec types.Record
				switch args[0] {
				case types.TableMenuItems:
					rec, err = l.SetMenuItemImage(ctx, args[1], name, data)
				case types.TableRestaurants:
					rec, err = l.SetRestaurantImage(ctx, args[1], name, data)
				case types.TableUsers:
					rec, err = l.SetUserAvatar(ctx, args[1], name, data)
				default:
					return fmt.Errorf("%w: %s has no image", types.ErrUnknownResource, args[0])
				}
				if err != nil {
					return err
				}
				return a.printRecord(a.out(cmd), rec)
			})
		},
	}
}
