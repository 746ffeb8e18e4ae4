package middleware

import "context"

// ownerHolder lets outer middleware see the owner resolved further in.
type ownerHolder struct {
	ownerID string
}

const ownerHolderKey contextKey = "owner_holder"

// ensureOwnerHolder returns the holder already on ctx, or installs a new one.
func ensureOwnerHolder(ctx context.Context) (context.Context, *ownerHolder) {
	if h, ok := ctx.Value(ownerHolderKey).(*ownerHolder); ok {
		return ctx, h
	}
	h := &ownerHolder{}
	return context.WithValue(ctx, ownerHolderKey, h), h
}

func setOwner(ctx context.Context, ownerID string) {
	if h, ok := ctx.Value(ownerHolderKey).(*ownerHolder); ok {
		h.ownerID = ownerID
	}
}
