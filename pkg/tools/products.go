package tools

import (
	"net/http"

	"github.com/wilhg/shopmcp/pkg/contract"
)

// SearchProductsInput filters the product catalog. Every filter is optional.
type SearchProductsInput struct {
	Search    string   `json:"search,omitempty" jsonschema:"free-text query matched against product names and descriptions"`
	Category  string   `json:"category,omitempty" jsonschema:"category slug"`
	Brands    []string `json:"brands,omitempty" jsonschema:"brand names; any match qualifies"`
	MinPrice  *float64 `json:"min_price,omitempty" jsonschema:"lowest price"`
	MaxPrice  *float64 `json:"max_price,omitempty" jsonschema:"highest price"`
	SkinType  string   `json:"skin_type,omitempty" jsonschema:"skin type the product suits"`
	InStock   *bool    `json:"in_stock,omitempty" jsonschema:"only products with stock left"`
	SortBy    string   `json:"sort_by,omitempty"`
	SortOrder string   `json:"sort_order,omitempty"`
	Paging
}

// SearchNewArrivalsInput lists recently added products.
type SearchNewArrivalsInput struct {
	Category string `json:"category,omitempty" jsonschema:"category slug"`
	Days     int    `json:"days,omitempty" jsonschema:"how many days back counts as new"`
	Paging
}

// ProductPage is one page of products.
type ProductPage struct {
	Products   []map[string]any `json:"products"`
	Total      int              `json:"total"`
	Page       int              `json:"page,omitempty"`
	Limit      int              `json:"limit,omitempty"`
	TotalPages int              `json:"total_pages,omitempty"`
}

// GetProductVariantsInput names one product.
type GetProductVariantsInput struct {
	ProductID string `json:"product_id" jsonschema:"product identifier"`
}

// ProductVariants lists the purchasable variants of a product.
type ProductVariants struct {
	ProductID string           `json:"product_id"`
	Variants  []map[string]any `json:"variants"`
}

var skinTypes = []any{"oily", "dry", "combination", "sensitive", "normal"}

func productContracts() []contract.ToolContract {
	searchOpts := append([]contract.SchemaOption{
		contract.Minimum("min_price", 0),
		contract.Minimum("max_price", 0),
		contract.Enum("skin_type", skinTypes...),
		contract.Enum("sort_by", "price", "name", "created_at", "rating", "sold"),
		contract.Enum("sort_order", "asc", "desc"),
	}, pagingOptions()...)

	arrivalOpts := append([]contract.SchemaOption{
		contract.Default("days", 30),
		contract.Minimum("days", 1),
		contract.Maximum("days", 365),
	}, pagingOptions()...)

	return []contract.ToolContract{
		{
			Name:  "search_products",
			Title: "Search products",
			Description: "Search the product catalog by keyword, category, brands, price range, skin type and stock. " +
				"Returns one page of matching products with paging totals.",
			InputSchema:  contract.MustSchemaFor[SearchProductsInput](searchOpts...),
			OutputSchema: contract.MustSchemaFor[ProductPage](),
			Meta:         productMeta,
			Hints:        readHints,
			Route: contract.Route{
				Method: http.MethodGet,
				Path:   "/products/search",
				Query: []string{"search", "category", "brands", "min_price", "max_price", "skin_type",
					"in_stock", "sort_by", "sort_order", "page", "limit"},
				Timeout: contract.TimeoutSearch,
			},
		},
		{
			Name:         "search_new_arrivals",
			Title:        "New arrivals",
			Description:  "List products added within the last N days, newest first, optionally within one category.",
			InputSchema:  contract.MustSchemaFor[SearchNewArrivalsInput](arrivalOpts...),
			OutputSchema: contract.MustSchemaFor[ProductPage](),
			Meta:         productMeta,
			Hints:        readHints,
			Route: contract.Route{
				Method:  http.MethodGet,
				Path:    "/products/new-arrivals",
				Query:   []string{"category", "days", "page", "limit"},
				Timeout: contract.TimeoutSearch,
			},
		},
		{
			Name:         "get_product_variants",
			Title:        "Product variants",
			Description:  "Get the variants (size, shade, volume) of a product with their price and stock.",
			InputSchema:  contract.MustSchemaFor[GetProductVariantsInput](contract.MinLength("product_id", 1)),
			OutputSchema: contract.MustSchemaFor[ProductVariants](),
			Meta:         productMeta,
			Hints:        readHints,
			Route: contract.Route{
				Method:  http.MethodGet,
				Path:    "/products/{product_id}/variants",
				Timeout: contract.TimeoutSearch,
			},
			Output: contract.OutputMapping{Wrap: "variants", Echo: []string{"product_id"}},
		},
	}
}
