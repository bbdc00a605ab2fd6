package report

import (
	"bytes"
	"context"
	"fmt"
	"io"
	"time"

	"github.com/johnfercher/maroto/v2"
	"github.com/johnfercher/maroto/v2/pkg/components/col"
	"github.com/johnfercher/maroto/v2/pkg/components/line"
	"github.com/johnfercher/maroto/v2/pkg/components/text"
	"github.com/johnfercher/maroto/v2/pkg/config"
	"github.com/johnfercher/maroto/v2/pkg/consts/align"
	"github.com/johnfercher/maroto/v2/pkg/consts/fontstyle"
	"github.com/johnfercher/maroto/v2/pkg/props"
	"github.com/shopspring/decimal"
	"github.com/smallbiznis/erpcore/internal/manufacturing/domain"
)

// RequirementSheet is the input of a material requirement document.
type RequirementSheet struct {
	ProductCode  string
	ProductName  string
	BOMVersion   int
	BOMStatus    domain.BOMStatus
	Quantity     decimal.Decimal
	GeneratedAt  time.Time
	Requirements []domain.Requirement
}

type Renderer interface {
	RenderRequirementSheet(ctx context.Context, sheet RequirementSheet) (io.Reader, error)
}

type PDFRenderer struct{}

func New() Renderer {
	return &PDFRenderer{}
}

func (r *PDFRenderer) RenderRequirementSheet(_ context.Context, sheet RequirementSheet) (io.Reader, error) {
	cfg := config.NewBuilder().
		WithPageNumber(props.PageNumber{
			Pattern: "Page {current} of {total}",
			Place:   props.RightBottom,
		}).
		Build()

	m := maroto.New(cfg)

	m.AddRow(12,
		text.NewCol(12, "Material Requirements", props.Text{
			Size:  18,
			Style: fontstyle.Bold,
			Align: align.Left,
		}),
	)

	m.AddRow(22,
		col.New(6).Add(
			text.New("Product: "+sheet.ProductCode, props.Text{Top: 0}),
			text.New(sheet.ProductName, props.Text{Top: 4}),
			text.New(fmt.Sprintf("BOM version: %d (%s)", sheet.BOMVersion, sheet.BOMStatus), props.Text{Top: 8}),
		),
		col.New(6).Add(
			text.New("Quantity: "+sheet.Quantity.String(), props.Text{Top: 0, Align: align.Right}),
			text.New("Generated: "+sheet.GeneratedAt.UTC().Format(time.RFC3339), props.Text{Top: 4, Align: align.Right}),
		),
	)

	m.AddRow(10,
		text.NewCol(3, "Code", props.Text{Style: fontstyle.Bold, Size: 9}),
		text.NewCol(5, "Component", props.Text{Style: fontstyle.Bold, Size: 9}),
		text.NewCol(2, "UOM", props.Text{Style: fontstyle.Bold, Size: 9}),
		text.NewCol(2, "Required", props.Text{Style: fontstyle.Bold, Size: 9, Align: align.Right}),
	)
	m.AddRow(2, line.NewCol(12))

	for _, req := range sheet.Requirements {
		m.AddRow(8,
			text.NewCol(3, req.ProductCode, props.Text{Size: 9}),
			text.NewCol(5, req.ProductName, props.Text{Size: 9}),
			text.NewCol(2, req.UOM, props.Text{Size: 9}),
			text.NewCol(2, req.TotalQuantity.StringFixed(3), props.Text{Size: 9, Align: align.Right}),
		)
	}

	m.AddRow(10,
		col.New(8),
		text.NewCol(2, "Lines", props.Text{Size: 9, Style: fontstyle.Bold}),
		text.NewCol(2, fmt.Sprintf("%d", len(sheet.Requirements)), props.Text{Size: 9, Style: fontstyle.Bold, Align: align.Right}),
	)

	doc, err := m.Generate()
	if err != nil {
		return nil, err
	}
	return bytes.NewReader(doc.GetBytes()), nil
}
