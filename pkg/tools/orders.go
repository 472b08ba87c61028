package tools

import (
	"net/http"

	"github.com/wilhg/shopmcp/pkg/contract"
)

// ShippingAddress is where an order ships.
type ShippingAddress struct {
	RecipientName string `json:"recipient_name"`
	Phone         string `json:"phone"`
	AddressLine   string `json:"address_line" jsonschema:"street and house number"`
	Ward          string `json:"ward,omitempty"`
	District      string `json:"district,omitempty"`
	City          string `json:"city"`
	PostalCode    string `json:"postal_code,omitempty"`
}

// CreateOrderInput places an order from the cart.
type CreateOrderInput struct {
	ShippingAddress ShippingAddress `json:"shipping_address"`
	PaymentMethod   string          `json:"payment_method"`
	Note            string          `json:"note,omitempty" jsonschema:"delivery note for the courier"`
	CartItemIDs     []string        `json:"cart_item_ids,omitempty" jsonschema:"order only these cart items; the whole cart when omitted"`
}

// ListOrdersInput pages through the customer's orders.
type ListOrdersInput struct {
	Status string `json:"status,omitempty" jsonschema:"only orders in this status"`
	Paging
}

// OrderInput names one order.
type OrderInput struct {
	OrderID string `json:"order_id" jsonschema:"order identifier"`
}

// CancelOrderInput cancels an order that has not shipped.
type CancelOrderInput struct {
	OrderID string `json:"order_id" jsonschema:"order identifier"`
	Reason  string `json:"reason,omitempty"`
}

// OrderView carries one order.
type OrderView struct {
	Order   map[string]any `json:"order"`
	OrderID string         `json:"order_id,omitempty"`
	Message string         `json:"message,omitempty"`
}

// OrderPage is one page of orders.
type OrderPage struct {
	Orders     []map[string]any `json:"orders"`
	Total      int              `json:"total"`
	Page       int              `json:"page,omitempty"`
	Limit      int              `json:"limit,omitempty"`
	TotalPages int              `json:"total_pages,omitempty"`
}

var orderStatuses = []any{"pending", "confirmed", "processing", "shipping", "delivered", "cancelled"}

func orderContracts() []contract.ToolContract {
	view := contract.MustSchemaFor[OrderView]()
	return []contract.ToolContract{
		{
			Name:        "create_order",
			Title:       "Create order",
			Description: "Place an order for the items in the cart, shipped to the given address and paid with the given method.",
			InputSchema: contract.MustSchemaFor[CreateOrderInput](
				contract.Enum("payment_method", "cod", "bank_transfer", "credit_card", "e_wallet"),
				contract.MinLength("shipping_address.recipient_name", 1),
				contract.MinLength("shipping_address.phone", 1),
				contract.MinLength("shipping_address.address_line", 1),
				contract.MinLength("shipping_address.city", 1),
			),
			OutputSchema: view,
			Meta:         orderMeta,
			Hints:        writeHints,
			Route: contract.Route{
				Method: http.MethodPost,
				Path:   "/orders",
				Body:   []string{"shipping_address", "payment_method", "note", "cart_item_ids"},
			},
			Output: contract.OutputMapping{Wrap: "order"},
		},
		{
			Name:         "list_orders",
			Title:        "List orders",
			Description:  "List the customer's orders, newest first, optionally filtered by status.",
			InputSchema:  contract.MustSchemaFor[ListOrdersInput](append(pagingOptions(), contract.Enum("status", orderStatuses...))...),
			OutputSchema: contract.MustSchemaFor[OrderPage](),
			Meta:         orderMeta,
			Hints:        readHints,
			Route: contract.Route{
				Method: http.MethodGet,
				Path:   "/orders",
				Query:  []string{"status", "page", "limit"},
			},
		},
		{
			Name:         "get_order_detail",
			Title:        "Order detail",
			Description:  "Get one order with its items, shipping address, payment and status history.",
			InputSchema:  contract.MustSchemaFor[OrderInput](contract.MinLength("order_id", 1)),
			OutputSchema: view,
			Meta:         orderMeta,
			Hints:        readHints,
			Route:        contract.Route{Method: http.MethodGet, Path: "/orders/{order_id}"},
			Output:       contract.OutputMapping{Wrap: "order"},
		},
		{
			Name:         "cancel_order",
			Title:        "Cancel order",
			Description:  "Cancel an order that has not shipped yet.",
			InputSchema:  contract.MustSchemaFor[CancelOrderInput](contract.MinLength("order_id", 1)),
			OutputSchema: view,
			Meta:         orderMeta,
			Hints:        destructiveHints,
			Route: contract.Route{
				Method: http.MethodPatch,
				Path:   "/orders/{order_id}/cancel",
				Body:   []string{"reason"},
			},
			Output: contract.OutputMapping{Wrap: "order", Echo: []string{"order_id"}},
		},
	}
}
