package domain

import (
	"errors"
	"fmt"
	"strconv"
	"strings"
)

var (
	ErrInvalidTenant        = errors.New("invalid_tenant")
	ErrInvalidID            = errors.New("invalid_id")
	ErrInvalidCode          = errors.New("invalid_code")
	ErrInvalidName          = errors.New("invalid_name")
	ErrInvalidProductType   = errors.New("invalid_product_type")
	ErrInvalidUOM           = errors.New("invalid_uom")
	ErrInvalidCost          = errors.New("invalid_standard_cost")
	ErrInvalidQuantity      = errors.New("invalid_quantity")
	ErrInvalidScrap         = errors.New("invalid_scrap_allowance")
	ErrInvalidComponentType = errors.New("invalid_component_type")
	ErrInvalidLineNumber    = errors.New("invalid_line_number")
	ErrProductNotFound      = errors.New("product_not_found")
	ErrProductExists        = errors.New("product_already_exists")
	ErrProductCannotHaveBOM = errors.New("product_cannot_have_bom")
	ErrBOMNotFound          = errors.New("bom_not_found")
	ErrBOMNotEditable       = errors.New("bom_not_editable")
	ErrBOMEmpty             = errors.New("bom_has_no_items")
	ErrInvalidTransition    = errors.New("invalid_bom_transition")
	ErrSelfReference        = errors.New("bom_self_reference")
	ErrLineExists           = errors.New("bom_line_already_exists")
	ErrCircularReference    = errors.New("bom_circular_reference")
	ErrMaxDepthExceeded     = errors.New("bom_max_depth_exceeded")
)

// CircularReferenceError carries the BOM ids on the recursion path, ending
// with the id that closed the cycle.
type CircularReferenceError struct {
	Path []int64
}

func (e *CircularReferenceError) Error() string {
	parts := make([]string, 0, len(e.Path))
	for _, id := range e.Path {
		parts = append(parts, strconv.FormatInt(id, 10))
	}
	return fmt.Sprintf("%v: %s", ErrCircularReference, strings.Join(parts, " -> "))
}

func (e *CircularReferenceError) Unwrap() error {
	return ErrCircularReference
}
