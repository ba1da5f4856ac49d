package core

import (
	"time"

	"github.com/shopspring/decimal"
)

// Category groups products for catalog navigation.
type Category struct {
	ID   int64  `json:"id"`
	Name string `json:"name"`
}

// Product is a catalog item. Discrete products track whole containers in
// StockUnits. Volume-metered products (liquors sold by the serving) additionally
// track one open container's remaining millilitres in OpenContainerRemainder;
// StockUnits then counts unopened containers only.
//
// Invariants: StockUnits >= 0; for metered products VolumePerContainer is set
// and 0 <= OpenContainerRemainder < *VolumePerContainer.
type Product struct {
	ID                     int64           `json:"id"`
	Name                   string          `json:"name"`
	CategoryID             int64           `json:"category_id"`
	PurchasePrice          decimal.Decimal `json:"purchase_price"`
	StockUnits             int             `json:"stock_units"`
	IsVolumeMetered        bool            `json:"is_volume_metered"`
	VolumePerContainer     *int            `json:"volume_per_container,omitempty"`
	OpenContainerRemainder int             `json:"open_container_remainder"`
	CreatedAt              time.Time       `json:"created_at"`
}

// TotalVolume returns the total millilitres on hand for a metered product:
// unopened containers plus the open container's remainder.
func (p *Product) TotalVolume() int {
	if p.VolumePerContainer == nil {
		return 0
	}
	return p.StockUnits*(*p.VolumePerContainer) + p.OpenContainerRemainder
}

// Variant is a sellable presentation of a product with its own price.
// For volume-metered products ServingVolume defines the millilitres poured
// per unit of quantity; it is nil for discrete products.
type Variant struct {
	ID            int64           `json:"id"`
	ProductID     int64           `json:"product_id"`
	Name          string          `json:"name"`
	SalePrice     decimal.Decimal `json:"sale_price"`
	ServingVolume *int            `json:"serving_volume,omitempty"`
}

// StockLevel is a read view of a product's current inventory counters.
type StockLevel struct {
	ProductID          int64  `json:"product_id"`
	ProductName        string `json:"product_name"`
	StockUnits         int    `json:"stock_units"`
	IsVolumeMetered    bool   `json:"is_volume_metered"`
	VolumePerContainer *int   `json:"volume_per_container,omitempty"`
	OpenRemainder      int    `json:"open_container_remainder"`
}

// StockMovement is one audit row written per reconciliation step.
type StockMovement struct {
	ID           int64     `json:"id"`
	ProductID    int64     `json:"product_id"`
	OrderID      *int64    `json:"order_id,omitempty"`
	MovementType string    `json:"movement_type"` // CONSUME or REVERT
	UnitsDelta   int       `json:"units_delta"`
	MlDelta      int       `json:"ml_delta"`
	Notes        string    `json:"notes"`
	MovedAt      time.Time `json:"moved_at"`
}
