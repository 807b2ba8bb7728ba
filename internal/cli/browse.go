package cli

import (
	"encoding/json"
	"fmt"
	"io"
	"text/tabwriter"

	"github.com/ceramica/storefront/internal/catalog"
	"github.com/ceramica/storefront/internal/seed"
	"github.com/ceramica/storefront/internal/service"
	"github.com/spf13/cobra"
)

type browseOptions struct {
	file     string
	category string
	search   string
	sort     string
	minPrice int64
	maxPrice int64
	page     int
	pageSize int
	view     string
	json     bool
}

func newBrowseCommand(root *rootOptions) *cobra.Command {
	opts := &browseOptions{}
	cmd := &cobra.Command{
		Use:   "browse",
		Short: "Show one listing page of a product file",
		Example: `  catalogctl browse --file deploy/products.yaml --category Tableware --sort price-asc
  catalogctl browse --file deploy/products.yaml --search bowl --page 2 --json`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			return runBrowse(cmd, root, opts)
		},
	}
	cmd.Flags().StringVarP(&opts.file, "file", "f", "", "Product file (YAML or JSON)")
	cmd.Flags().StringVarP(&opts.category, "category", "c", catalog.AllCategories, "Category to show")
	cmd.Flags().StringVarP(&opts.search, "search", "s", "", "Case-insensitive text to find in name or description")
	cmd.Flags().StringVar(&opts.sort, "sort", string(catalog.SortFeatured), "featured, price-asc, price-desc, name-asc or name-desc")
	cmd.Flags().Int64Var(&opts.minPrice, "min", catalog.Unset, "Minimum price in the smallest currency unit, 0 for none")
	cmd.Flags().Int64Var(&opts.maxPrice, "max", catalog.Unset, "Maximum price in the smallest currency unit, 0 for none")
	cmd.Flags().IntVarP(&opts.page, "page", "p", 1, "Page to show, starting at 1")
	cmd.Flags().IntVar(&opts.pageSize, "page-size", catalog.DefaultPageSize, "Products per page")
	cmd.Flags().StringVar(&opts.view, "view", string(catalog.ViewGrid), "grid or list")
	cmd.Flags().BoolVar(&opts.json, "json", false, "Print the page as JSON")
	_ = cmd.MarkFlagRequired("file")
	return cmd
}

func runBrowse(cmd *cobra.Command, root *rootOptions, opts *browseOptions) error {
	if opts.minPrice < 0 || opts.maxPrice < 0 {
		return fmt.Errorf("prices must not be negative")
	}
	if opts.page < 1 {
		return fmt.Errorf("page must be 1 or greater")
	}
	if opts.view != string(catalog.ViewGrid) && opts.view != string(catalog.ViewList) {
		return fmt.Errorf("unknown view %q", opts.view)
	}
	items, err := seed.ReadFile(opts.file)
	if err != nil {
		return err
	}

	st := catalog.New(seed.Products(items), catalog.WithPageSize(opts.pageSize))
	st.Apply(catalog.Query{
		Category: opts.category,
		Search:   opts.search,
		Sort:     catalog.ParseSortKey(opts.sort),
		MinPrice: opts.minPrice,
		MaxPrice: opts.maxPrice,
		Page:     opts.page,
		View:     catalog.ViewMode(opts.view),
	})
	if !st.SortKey().Known() {
		root.logger(cmd).Warn("Unknown sort key, keeping featured order", "sort", opts.sort)
	}

	page := service.CatalogPage{
		Products:    st.Paginated(),
		Categories:  st.Categories(),
		TotalItems:  st.TotalItems(),
		TotalPages:  st.TotalPages(),
		CurrentPage: st.CurrentPage(),
		PageSize:    st.PageSize(),
		State:       st.State(),
	}
	if opts.json {
		enc := json.NewEncoder(cmd.OutOrStdout())
		enc.SetIndent("", "  ")
		return enc.Encode(page)
	}
	return printPage(cmd.OutOrStdout(), page)
}

func printPage(out io.Writer, page service.CatalogPage) error {
	w := tabwriter.NewWriter(out, 0, 0, 2, ' ', 0)
	if page.State.View == catalog.ViewList {
		fmt.Fprintln(w, "ID\tNAME\tCATEGORY\tPRICE\tSTOCK\tDESCRIPTION")
	} else {
		fmt.Fprintln(w, "ID\tNAME\tCATEGORY\tPRICE\tSTOCK")
	}
	for _, p := range page.Products {
		if page.State.View == catalog.ViewList {
			fmt.Fprintf(w, "%s\t%s\t%s\t%s\t%d\t%s\n", p.ID, p.Name, p.Category.Name, formatPrice(p.Price), p.Stock, p.Description)
			continue
		}
		fmt.Fprintf(w, "%s\t%s\t%s\t%s\t%d\n", p.ID, p.Name, p.Category.Name, formatPrice(p.Price), p.Stock)
	}
	if err := w.Flush(); err != nil {
		return err
	}
	_, err := fmt.Fprintf(out, "\npage %d of %d, %d matching products\n", page.CurrentPage, page.TotalPages, page.TotalItems)
	return err
}

// formatPrice renders an amount in the smallest currency unit with two decimals.
func formatPrice(amount int64) string {
	return fmt.Sprintf("%d.%02d", amount/100, amount%100)
}

func newCategoriesCommand() *cobra.Command {
	var file string
	cmd := &cobra.Command{
		Use:   "categories",
		Short: "List the categories of a product file in featured order",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			items, err := seed.ReadFile(file)
			if err != nil {
				return err
			}
			for _, c := range catalog.New(seed.Products(items)).Categories() {
				fmt.Fprintln(cmd.OutOrStdout(), c)
			}
			return nil
		},
	}
	cmd.Flags().StringVarP(&file, "file", "f", "", "Product file (YAML or JSON)")
	_ = cmd.MarkFlagRequired("file")
	return cmd
}
