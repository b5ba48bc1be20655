// Package pricing holds the marketplace's money arithmetic. Everything is
// integer math on a 10000 basis-point scale with truncating division; no
// other rounding rule exists anywhere in the system.
package pricing

const BpsScale = 10000

// DiscountedAmount is the price a buyer pays for an invoice listed at the
// given discount rate.
func DiscountedAmount(original, rateBps int64) int64 {
	return original - original*rateBps/BpsScale
}

// PlatformFee is the platform's cut of a purchase.
func PlatformFee(amount, feeRateBps int64) int64 {
	return amount * feeRateBps / BpsScale
}

// ROIBps is the buyer's return on investment, in basis points, for paying
// discounted to collect original. Zero when discounted is zero.
func ROIBps(original, discounted int64) int64 {
	if discounted == 0 {
		return 0
	}
	return (original - discounted) * BpsScale / discounted
}
