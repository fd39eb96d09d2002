package escrow

import "escrow-service/internal/model"

// NetAmount splits a gross milestone amount into the freelancer's net
// payable and the platform fee: fee = floor(gross * feeBps / 10000).
// Integer arithmetic only, so repeated calls never drift. The feeBps cap
// is enforced at configuration time, not here.
func NetAmount(gross int64, feeBps int) (net, fee int64, err error) {
	const op = "escrow.NetAmount"
	if gross < 0 {
		return 0, 0, Errf(KindInvalidArgument, op, "gross amount must not be negative, got %d", gross)
	}
	if feeBps < 0 || feeBps > model.MaxFeeBps {
		return 0, 0, Errf(KindInvalidArgument, op, "fee rate %d out of range 0..%d", feeBps, model.MaxFeeBps)
	}
	// Split so gross * feeBps cannot overflow int64 for large escrows.
	// Exact: floor(g*b/10000) == (g/10000)*b + floor((g%10000)*b/10000).
	fee = gross/10000*int64(feeBps) + gross%10000*int64(feeBps)/10000
	return gross - fee, fee, nil
}
