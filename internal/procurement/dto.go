package procurement

import "time"

type CreatePORequest struct {
	VendorID  int64           `json:"vendor_id" validate:"required,gt=0"`
	OrderDate time.Time       `json:"order_date" validate:"required"`
	Items     []CreateItemReq `json:"items" validate:"omitempty,dive"`
}

type CreateItemReq struct {
	ProductID   int64   `json:"product_id" validate:"required,gt=0"`
	Description *string `json:"description,omitempty"`
	Quantity    float64 `json:"quantity" validate:"required,gt=0"`
	UnitPrice   float64 `json:"unit_price" validate:"gte=0"`
	Discount    float64 `json:"discount" validate:"gte=0"`
	ExtraCost   float64 `json:"extra_cost" validate:"gte=0"`
	Withholding bool    `json:"withholding"`
}

type UpdateItemRequest struct {
	Description *string  `json:"description,omitempty"`
	Quantity    *float64 `json:"quantity,omitempty" validate:"omitempty,gt=0"`
	UnitPrice   *float64 `json:"unit_price,omitempty" validate:"omitempty,gte=0"`
	Discount    *float64 `json:"discount,omitempty" validate:"omitempty,gte=0"`
	ExtraCost   *float64 `json:"extra_cost,omitempty" validate:"omitempty,gte=0"`
}

type ListPOsRequest struct {
	VendorID    *int64    `json:"vendor_id,omitempty"`
	QuotationID *int64    `json:"quotation_id,omitempty"`
	Status      *POStatus `json:"status,omitempty"`
	Limit       int       `json:"limit" validate:"gte=0,lte=1000"`
	Offset      int       `json:"offset" validate:"gte=0"`
}
