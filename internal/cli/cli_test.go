package cli

import (
	"bytes"
	"context"
	"encoding/json"
	"path/filepath"
	"runtime"
	"strings"
	"testing"

	"github.com/ceramica/storefront/internal/service"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func sampleFile() string {
	_, file, _, _ := runtime.Caller(0)
	return filepath.Join(filepath.Dir(file), "..", "..", "deploy", "products.yaml")
}

func execute(t *testing.T, args ...string) (string, string, error) {
	t.Helper()
	var out, errOut bytes.Buffer
	cmd := NewRootCommand(&out, &errOut)
	cmd.SetArgs(args)
	err := cmd.ExecuteContext(context.Background())
	return out.String(), errOut.String(), err
}

func TestBrowse_Table(t *testing.T) {
	testCases := []struct {
		name            string
		args            []string
		expectedLines   []string
		unexpectedNames []string
		expectedFooter  string
	}{
		{
			name:           "first page",
			args:           []string{},
			expectedLines:  []string{"Speckled Stoneware Bowl", "Incense Holder"},
			expectedFooter: "page 1 of 2, 8 matching products",
		},
		{
			name:            "category with price sort",
			args:            []string{"--category", "Tableware", "--sort", "price-desc"},
			expectedLines:   []string{"Speckled Stoneware Bowl", "Dinner Plate", "Pasta Bowl"},
			unexpectedNames: []string{"Tall Bud Vase"},
			expectedFooter:  "page 1 of 1, 3 matching products",
		},
		{
			name:           "price range and small pages",
			args:           []string{"--min", "30000", "--max", "70000", "--page-size", "2", "--page", "2"},
			expectedLines:  []string{"Pasta Bowl"},
			expectedFooter: "page 2 of 2, 3 matching products",
		},
		{
			name:           "list view shows descriptions",
			args:           []string{"--view", "list", "--search", "planter"},
			expectedLines:  []string{"DESCRIPTION", "880.00", "Unglazed terracotta planter with saucer."},
			expectedFooter: "page 1 of 1, 1 matching products",
		},
	}

	for _, tc := range testCases {
		t.Run(tc.name, func(t *testing.T) {
			// given
			args := append([]string{"browse", "--file", sampleFile()}, tc.args...)

			// when
			out, _, err := execute(t, args...)

			// then
			require.NoError(t, err)
			last := -1
			for _, line := range tc.expectedLines {
				idx := strings.Index(out, line)
				require.GreaterOrEqual(t, idx, 0, "%q missing from output:\n%s", line, out)
				assert.Greater(t, idx, last, "%q is out of order", line)
				last = idx
			}
			for _, name := range tc.unexpectedNames {
				assert.NotContains(t, out, name)
			}
			assert.Contains(t, out, tc.expectedFooter)
		})
	}
}

func TestBrowse_JSON(t *testing.T) {
	// when
	out, _, err := execute(t, "browse", "--file", sampleFile(), "--category", "Drinkware", "--sort", "name-asc", "--json")

	// then
	require.NoError(t, err)
	var page service.CatalogPage
	require.NoError(t, json.Unmarshal([]byte(out), &page))
	require.Len(t, page.Products, 2)
	assert.Equal(t, "Espresso Cup", page.Products[0].Name)
	assert.Equal(t, "Ribbed Mug", page.Products[1].Name)
	assert.Equal(t, "Drinkware", page.State.Category)
	assert.Equal(t, []string{"all", "Tableware", "Decor", "Drinkware", "Garden"}, page.Categories)
}

func TestBrowse_UnknownSortWarns(t *testing.T) {
	// when
	out, errOut, err := execute(t, "browse", "--file", sampleFile(), "--sort", "popularity", "--page-size", "1")

	// then
	require.NoError(t, err)
	assert.Contains(t, out, "Speckled Stoneware Bowl")
	assert.Contains(t, errOut, "Unknown sort key")
}

func TestBrowse_InvalidInput(t *testing.T) {
	testCases := []struct {
		name        string
		args        []string
		errContains string
	}{
		{name: "missing file flag", args: []string{"browse"}, errContains: `required flag(s) "file" not set`},
		{name: "missing file", args: []string{"browse", "--file", "nope.yaml"}, errContains: "failed to read seed file"},
		{name: "negative price", args: []string{"browse", "--file", sampleFile(), "--min=-1"}, errContains: "must not be negative"},
		{name: "page zero", args: []string{"browse", "--file", sampleFile(), "--page", "0"}, errContains: "page must be 1 or greater"},
		{name: "unknown view", args: []string{"browse", "--file", sampleFile(), "--view", "tiles"}, errContains: `unknown view "tiles"`},
	}

	for _, tc := range testCases {
		t.Run(tc.name, func(t *testing.T) {
			// when
			_, _, err := execute(t, tc.args...)

			// then
			require.Error(t, err)
			assert.Contains(t, err.Error(), tc.errContains)
		})
	}
}

func TestCategories(t *testing.T) {
	// when
	out, _, err := execute(t, "categories", "--file", sampleFile())

	// then
	require.NoError(t, err)
	assert.Equal(t, "all\nTableware\nDecor\nDrinkware\nGarden\n", out)
}

func TestDatabaseCommands_RequireURL(t *testing.T) {
	t.Setenv(databaseURLEnv, "")
	testCases := []struct {
		name        string
		args        []string
		errContains string
	}{
		{name: "migrate without url", args: []string{"migrate", "up"}, errContains: "database URL is not configured"},
		{name: "migrate with bad url", args: []string{"migrate", "up", "--database-url", "mysql://x"}, errContains: "must start with 'postgres://'"},
		{name: "migrate unknown direction", args: []string{"migrate", "sideways"}, errContains: "invalid argument"},
		{name: "seed without url", args: []string{"seed", "--file", sampleFile()}, errContains: "database URL is not configured"},
	}

	for _, tc := range testCases {
		t.Run(tc.name, func(t *testing.T) {
			// when
			_, _, err := execute(t, tc.args...)

			// then
			require.Error(t, err)
			assert.Contains(t, err.Error(), tc.errContains)
		})
	}
}

func TestFormatPrice(t *testing.T) {
	assert.Equal(t, "1000.00", formatPrice(100000))
	assert.Equal(t, "0.05", formatPrice(5))
	assert.Equal(t, "280.50", formatPrice(28050))
}
