package commands

import (
	"fmt"
	"net/http"
	"net/url"
	"strings"

	"github.com/spf13/cobra"

	"github.com/preorder/preorder-cli/internal/api"
	"github.com/preorder/preorder-cli/internal/completion"
	"github.com/preorder/preorder-cli/internal/models"
	"github.com/preorder/preorder-cli/internal/output"
	"github.com/preorder/preorder-cli/internal/presenter"
)

const adminItemPath = "/admin/item"

func newAdminItemsCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:     "items",
		Aliases: []string{"item"},
		Short:   "Edit the menu",
	}

	cmd.AddCommand(
		newAdminItemsListCmd(),
		newAdminItemsCreateCmd(),
		newAdminItemsUpdateCmd(),
		newAdminItemsDeleteCmd(),
	)

	return cmd
}

func newAdminItemsListCmd() *cobra.Command {
	var search string

	cmd := &cobra.Command{
		Use:   "list",
		Short: "List every item, including unavailable ones",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			app, _, err := adminApp(cmd)
			if err != nil {
				return err
			}

			items, err := getList[models.Item](cmd.Context(), app, adminItemsPath)
			if err != nil {
				return err
			}
			if search != "" {
				items = presenter.FindItems(items, search)
			}

			sections := presenter.GroupMenu(items)
			var data any = sections
			if app.HumanOutput() {
				data = presenter.MenuRows(sections, app.Money)
			}
			return app.OK(data,
				output.WithSummary(fmt.Sprintf("%s in %s", countLabel(len(items), "item"), countLabel(len(sections), "section"))),
				output.WithBreadcrumbs(output.Breadcrumb{
					Action: "create", Cmd: `preorder admin items create --name <name> --price <price> --type <type>`, Description: "Add an item",
				}),
			)
		},
	}

	cmd.Flags().StringVarP(&search, "search", "s", "", "Filter by item ID or name")

	return cmd
}

// itemFlags holds the editable item fields shared by create and update.
type itemFlags struct {
	name        string
	description string
	price       float64
	itemType    string
	imageURL    string
	available   bool
}

func (f *itemFlags) register(cmd *cobra.Command) {
	cmd.Flags().StringVar(&f.name, "name", "", "Item name")
	cmd.Flags().StringVar(&f.description, "description", "", "Short description")
	cmd.Flags().Float64Var(&f.price, "price", 0, "Price")
	cmd.Flags().StringVar(&f.itemType, "type", "", "Menu section (soup, starter, curry, rice, sides, sweet, other)")
	cmd.Flags().StringVar(&f.imageURL, "image-url", "", "Image URL")
	cmd.Flags().BoolVar(&f.available, "available", true, "Whether the item can be ordered")
	_ = cmd.RegisterFlagCompletionFunc("type", completion.ItemTypeCompletion())
}

// apply copies the flags the user set onto item.
func (f *itemFlags) apply(cmd *cobra.Command, item models.Item) (models.Item, error) {
	flags := cmd.Flags()
	if flags.Changed("name") {
		item.Name = strings.TrimSpace(f.name)
	}
	if flags.Changed("description") {
		item.Description = strings.TrimSpace(f.description)
	}
	if flags.Changed("price") {
		item.Price = f.price
	}
	if flags.Changed("type") {
		t, err := models.ParseItemType(f.itemType)
		if err != nil {
			return item, output.ErrUsage(err.Error())
		}
		item.ItemType = t
	}
	if flags.Changed("image-url") {
		item.ImageURL = strings.TrimSpace(f.imageURL)
	}
	if flags.Changed("available") {
		item.Available = f.available
	}
	return item, nil
}

func (f *itemFlags) anyChanged(cmd *cobra.Command) bool {
	for _, name := range []string{"name", "description", "price", "type", "image-url", "available"} {
		if cmd.Flags().Changed(name) {
			return true
		}
	}
	return false
}

func newAdminItemsCreateCmd() *cobra.Command {
	var f itemFlags

	cmd := &cobra.Command{
		Use:   "create",
		Short: "Add an item to the menu",
		Long: `Add an item to the menu.

Examples:
  preorder admin items create --name "Mango Lassi" --price 90 --type sweet
  preorder admin items create --name "Tomato Shorba" --price 120 --type soup --available=false`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			app, _, err := adminApp(cmd)
			if err != nil {
				return err
			}
			item, err := f.apply(cmd, models.Item{Available: true, ItemType: models.ItemOther})
			if err != nil {
				return err
			}
			if err := item.Validate(); err != nil {
				return err
			}

			resp, err := app.API.Post(cmd.Context(), adminItemPath, item)
			if err != nil {
				return err
			}
			var created models.Item
			if err := resp.UnmarshalData(&created); err != nil || created.ID == "" {
				created = item
			}
			return app.OK(created,
				output.WithSummary(fmt.Sprintf("Added %s (%s) at %s", created.Name, created.ItemType.DisplayName(), app.Money.Format(created.Price))))
		},
	}

	f.register(cmd)

	return cmd
}

func newAdminItemsUpdateCmd() *cobra.Command {
	var f itemFlags

	cmd := &cobra.Command{
		Use:   "update <item>",
		Short: "Change an item",
		Long: `Change an item by ID or name. Only the fields you pass change.

Examples:
  preorder admin items update "mango lassi" --price 100
  preorder admin items update 665f1c... --available=false`,
		Args: cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			app, _, err := adminApp(cmd)
			if err != nil {
				return err
			}
			if !f.anyChanged(cmd) {
				return output.ErrUsage("Nothing to update: pass --name, --description, --price, --type, --image-url or --available")
			}

			items, err := getList[models.Item](cmd.Context(), app, adminItemsPath)
			if err != nil {
				return err
			}
			current, err := resolveItem(items, args[0])
			if err != nil {
				return err
			}
			item, err := f.apply(cmd, current)
			if err != nil {
				return err
			}
			if err := item.Validate(); err != nil {
				return err
			}

			body := item
			body.ID = ""
			if _, err := app.API.Put(cmd.Context(), adminItemPath+"/"+url.PathEscape(current.ID.String()), body); err != nil {
				return err
			}
			return app.OK(item, output.WithSummary(fmt.Sprintf("Updated %s", item.Name)))
		},
	}

	cmd.ValidArgsFunction = completion.NewCompleter(nil).ItemCompletion(false)

	f.register(cmd)

	return cmd
}

func newAdminItemsDeleteCmd() *cobra.Command {
	var force bool

	cmd := &cobra.Command{
		Use:     "delete <item>",
		Aliases: []string{"rm"},
		Short:   "Remove an item from the menu",
		Args:    cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			app, _, err := adminApp(cmd)
			if err != nil {
				return err
			}

			items, err := getList[models.Item](cmd.Context(), app, adminItemsPath)
			if err != nil {
				return err
			}
			item, err := resolveItem(items, args[0])
			if err != nil {
				return err
			}
			if err := confirmDestructive(app, force, fmt.Sprintf("Delete %s from the menu?", item.Name)); err != nil {
				return err
			}

			msg, err := sendMessage(cmd.Context(), app, &api.Request{
				Method: http.MethodDelete,
				Path:   adminItemPath + "/" + url.PathEscape(item.ID.String()),
			}, fmt.Sprintf("Deleted %s", item.Name))
			if err != nil {
				return err
			}
			return app.OK(map[string]string{"id": item.ID.String(), "message": msg}, output.WithSummary(msg))
		},
	}

	cmd.ValidArgsFunction = completion.NewCompleter(nil).ItemCompletion(false)

	cmd.Flags().BoolVarP(&force, "force", "f", false, "Don't ask for confirmation")

	return cmd
}
