package tools

import (
	"net/http"

	"github.com/wilhg/shopmcp/pkg/contract"
)

// AddToCartInput adds a product, or one of its variants, to the cart.
type AddToCartInput struct {
	ProductID string `json:"product_id" jsonschema:"product identifier"`
	VariantID string `json:"variant_id,omitempty" jsonschema:"variant identifier when the product has variants"`
	Quantity  int    `json:"quantity,omitempty" jsonschema:"units to add"`
}

// UpdateCartItemInput sets the quantity of a cart line.
type UpdateCartItemInput struct {
	ItemID   string `json:"item_id" jsonschema:"cart item identifier"`
	Quantity int    `json:"quantity" jsonschema:"new quantity"`
}

// CartItemInput names one cart line.
type CartItemInput struct {
	ItemID string `json:"item_id" jsonschema:"cart item identifier"`
}

// CartView is the current cart.
type CartView struct {
	Cart map[string]any `json:"cart"`
}

// CartChange is the outcome of a cart write.
type CartChange struct {
	Cart      map[string]any `json:"cart,omitempty"`
	ProductID string         `json:"product_id,omitempty"`
	VariantID string         `json:"variant_id,omitempty"`
	ItemID    string         `json:"item_id,omitempty"`
	Quantity  int            `json:"quantity,omitempty"`
	Message   string         `json:"message,omitempty"`
}

func cartContracts() []contract.ToolContract {
	change := contract.MustSchemaFor[CartChange]()
	route := func(method, path string, body ...string) contract.Route {
		return contract.Route{Method: method, Path: path, Body: body, Timeout: contract.TimeoutCart}
	}
	return []contract.ToolContract{
		{
			Name:         "view_cart",
			Title:        "View cart",
			Description:  "Show the signed-in customer's cart: items, quantities, prices and totals.",
			InputSchema:  contract.MustSchemaFor[Empty](),
			OutputSchema: contract.MustSchemaFor[CartView](),
			Meta:         cartMeta,
			Hints:        readHints,
			Route:        route(http.MethodGet, "/cart"),
			Output:       contract.OutputMapping{Wrap: "cart"},
		},
		{
			Name:        "add_to_cart",
			Title:       "Add to cart",
			Description: "Add a product to the cart. Quantity defaults to 1; pass variant_id for products sold in variants.",
			InputSchema: contract.MustSchemaFor[AddToCartInput](
				contract.MinLength("product_id", 1),
				contract.Default("quantity", 1),
				contract.Minimum("quantity", 1),
			),
			OutputSchema: change,
			Meta:         cartMeta,
			Hints:        writeHints,
			Route:        route(http.MethodPost, "/cart/items", "product_id", "variant_id", "quantity"),
			Output:       contract.OutputMapping{Wrap: "cart", Echo: []string{"product_id", "variant_id", "quantity"}},
		},
		{
			Name:        "update_cart_item",
			Title:       "Update cart item",
			Description: "Change the quantity of one cart item.",
			InputSchema: contract.MustSchemaFor[UpdateCartItemInput](
				contract.MinLength("item_id", 1),
				contract.Minimum("quantity", 1),
			),
			OutputSchema: change,
			Meta:         cartMeta,
			Hints:        idempotentWrite,
			Route:        route(http.MethodPut, "/cart/items/{item_id}", "quantity"),
			Output:       contract.OutputMapping{Wrap: "cart", Echo: []string{"item_id", "quantity"}},
		},
		{
			Name:         "remove_cart_item",
			Title:        "Remove cart item",
			Description:  "Remove one item from the cart.",
			InputSchema:  contract.MustSchemaFor[CartItemInput](contract.MinLength("item_id", 1)),
			OutputSchema: change,
			Meta:         cartMeta,
			Hints:        destructiveHints,
			Route:        route(http.MethodDelete, "/cart/items/{item_id}"),
			Output:       contract.OutputMapping{Wrap: "cart", Echo: []string{"item_id"}, AllowEmptyData: true},
		},
		{
			Name:         "clear_cart",
			Title:        "Clear cart",
			Description:  "Remove every item from the cart.",
			InputSchema:  contract.MustSchemaFor[Empty](),
			OutputSchema: change,
			Meta:         cartMeta,
			Hints:        destructiveHints,
			Route:        route(http.MethodDelete, "/cart"),
			Output:       contract.OutputMapping{Wrap: "cart", AllowEmptyData: true},
		},
	}
}
