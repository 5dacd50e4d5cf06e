package stock

// CheckRequest is one line of a pre-flight availability check.
type CheckRequest struct {
	ProductID int64  `json:"productId" validate:"required,gt=0"`
	Size      string `json:"size"      validate:"required"`
	Quantity  int    `json:"quantity"  validate:"required,gt=0"`
}
