package tools

import (
	"net/http"

	"github.com/wilhg/shopmcp/pkg/contract"
)

// PriceRange bounds the prices a customer usually shops in.
type PriceRange struct {
	Min *float64 `json:"min,omitempty"`
	Max *float64 `json:"max,omitempty"`
}

// UpdatePreferencesInput changes only the fields it carries.
type UpdatePreferencesInput struct {
	SkinType           string      `json:"skin_type,omitempty"`
	SkinConcerns       []string    `json:"skin_concerns,omitempty" jsonschema:"e.g. acne, dryness, aging"`
	FavoriteCategories []string    `json:"favorite_categories,omitempty"`
	FavoriteBrands     []string    `json:"favorite_brands,omitempty"`
	PriceRange         *PriceRange `json:"price_range,omitempty"`
	Notifications      *bool       `json:"notifications,omitempty" jsonschema:"receive promotion notifications"`
}

// PreferencesView carries the stored preferences.
type PreferencesView struct {
	Preferences   map[string]any `json:"preferences"`
	UpdatedFields []string       `json:"updated_fields,omitempty"`
	Message       string         `json:"message,omitempty"`
}

func preferenceContracts() []contract.ToolContract {
	view := contract.MustSchemaFor[PreferencesView]()
	return []contract.ToolContract{
		{
			Name:         "get_preferences",
			Title:        "Get preferences",
			Description:  "Get the customer's skin profile and shopping preferences.",
			InputSchema:  contract.MustSchemaFor[Empty](),
			OutputSchema: view,
			Meta:         preferenceMeta,
			Hints:        readHints,
			Route:        contract.Route{Method: http.MethodGet, Path: "/me/preferences"},
			Output:       contract.OutputMapping{Wrap: "preferences"},
		},
		{
			Name:        "update_preferences",
			Title:       "Update preferences",
			Description: "Update the customer's skin profile and shopping preferences. Fields left out keep their stored value.",
			InputSchema: contract.MustSchemaFor[UpdatePreferencesInput](
				contract.Enum("skin_type", skinTypes...),
				contract.Minimum("price_range.min", 0),
				contract.Minimum("price_range.max", 0),
			),
			OutputSchema: view,
			Meta:         preferenceMeta,
			Hints:        idempotentWrite,
			Route: contract.Route{
				Method: http.MethodPut,
				Path:   "/me/preferences",
				Body: []string{"skin_type", "skin_concerns", "favorite_categories", "favorite_brands",
					"price_range", "notifications"},
			},
			Output: contract.OutputMapping{Wrap: "preferences", FieldsKey: "updated_fields"},
		},
	}
}
