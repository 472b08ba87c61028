// Package tools declares the fixed catalog of e-commerce tools.
//
// Each tool is a contract.ToolContract built from typed input and output
// records; the pipeline derives upstream requests from the contract's Route and
// shapes responses with its OutputMapping, so no tool needs its own handler.
package tools

import (
	"slices"

	"github.com/wilhg/shopmcp/pkg/contract"
)

var (
	productMeta    = contract.Metadata{Agent: "search_agent", Category: "product"}
	cartMeta       = contract.Metadata{Agent: "cart_agent", Category: "cart", AuthRequired: true}
	orderMeta      = contract.Metadata{Agent: "order_agent", Category: "order", AuthRequired: true}
	preferenceMeta = contract.Metadata{Agent: "preference_agent", Category: "preference", AuthRequired: true}

	readHints        = contract.Hints{ReadOnly: true, Idempotent: true}
	writeHints       = contract.Hints{}
	idempotentWrite  = contract.Hints{Idempotent: true}
	destructiveHints = contract.Hints{Destructive: true}
)

// Paging is shared by list-style inputs.
type Paging struct {
	Page  int `json:"page,omitempty" jsonschema:"page number starting at 1"`
	Limit int `json:"limit,omitempty" jsonschema:"items per page"`
}

func pagingOptions() []contract.SchemaOption {
	return []contract.SchemaOption{
		contract.Default("page", 1),
		contract.Minimum("page", 1),
		contract.Default("limit", 10),
		contract.Minimum("limit", 1),
		contract.Maximum("limit", 100),
	}
}

// Empty is the input of tools that take no arguments.
type Empty struct{}

// Contracts returns the full catalog in a stable order.
func Contracts() []contract.ToolContract {
	return slices.Concat(productContracts(), cartContracts(), orderContracts(), preferenceContracts())
}

// Register adds every catalog tool to reg.
func Register(reg *contract.Registry) error {
	for _, c := range Contracts() {
		if err := reg.Register(c); err != nil {
			return err
		}
	}
	return nil
}

// NewRegistry returns a registry holding the catalog.
func NewRegistry() (*contract.Registry, error) {
	reg := contract.NewRegistry()
	if err := Register(reg); err != nil {
		return nil, err
	}
	return reg, nil
}
