package domain

import (
	"errors"
	"testing"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestTotalQuantityNeededAppliesScrap(t *testing.T) {
	item := BOMItem{Quantity: decimal.NewFromInt(10), ScrapAllowancePercentage: decimal.NewFromInt(10)}
	assert.True(t, decimal.NewFromInt(11).Equal(item.TotalQuantityNeeded(decimal.NewFromInt(1))))
	assert.True(t, decimal.NewFromInt(55).Equal(item.TotalQuantityNeeded(decimal.NewFromInt(5))))

	plain := BOMItem{Quantity: decimal.RequireFromString("2.5")}
	assert.Equal(t, "7.5", plain.TotalQuantityNeeded(decimal.NewFromInt(3)).String())
}

func TestProductCapabilities(t *testing.T) {
	cases := []struct {
		typ        ProductType
		canHaveBOM bool
		buyNoBOM   bool
		buyWithBOM bool
	}{
		{ProductTypeRawMaterial, false, true, true},
		{ProductTypeComponent, false, true, false},
		{ProductTypeSubAssembly, true, false, false},
		{ProductTypeFinishedGood, true, false, false},
	}
	for _, tc := range cases {
		p := Product{Type: tc.typ}
		assert.Equal(t, tc.canHaveBOM, p.CanHaveBOM(), tc.typ)
		assert.Equal(t, tc.buyNoBOM, p.CanBePurchased(false), tc.typ)
		assert.Equal(t, tc.buyWithBOM, p.CanBePurchased(true), tc.typ)
	}
}

func TestBOMStatusTransitions(t *testing.T) {
	assert.True(t, BOMStatusDraft.CanTransitionTo(BOMStatusActive))
	assert.False(t, BOMStatusDraft.CanTransitionTo(BOMStatusObsolete))
	assert.True(t, BOMStatusActive.CanTransitionTo(BOMStatusObsolete))
	assert.False(t, BOMStatusActive.CanTransitionTo(BOMStatusActive))
	assert.False(t, BOMStatusObsolete.CanTransitionTo(BOMStatusActive))
	assert.False(t, BOMStatusObsolete.CanTransitionTo(BOMStatusDraft))

	assert.True(t, BOMStatusDraft.Editable())
	assert.False(t, BOMStatusActive.Editable())
}

func TestParseTypes(t *testing.T) {
	ct, err := ParseComponentType("")
	require.NoError(t, err)
	assert.Equal(t, ComponentRegular, ct)

	_, err = ParseComponentType("ghost")
	assert.ErrorIs(t, err, ErrInvalidComponentType)

	_, err = ParseProductType("service")
	assert.ErrorIs(t, err, ErrInvalidProductType)
}

func TestCircularReferenceError(t *testing.T) {
	var err error = &CircularReferenceError{Path: []int64{1, 2, 1}}
	assert.True(t, errors.Is(err, ErrCircularReference))
	assert.Equal(t, "bom_circular_reference: 1 -> 2 -> 1", err.Error())
}
