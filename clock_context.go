package replay

import "context"

// timeAndRandomSourceKey is an unexported context key type so no other
// package can collide with it (the standard context.WithValue idiom).
type timeAndRandomSourceKey struct{}

// withTimeAndRandomSource attaches src to ctx for the duration of one
// element dispatch, so an Operator can pull it out on demand (spec §4.4's
// determinants are "resolved off the main record-reading path ... pulled on
// demand, not on every record" — this package never calls Now/NextRandomInt
// itself, only makes the call available to whichever operator asks for it).
func withTimeAndRandomSource(ctx context.Context, src TimeAndRandomSource) context.Context {
	return context.WithValue(ctx, timeAndRandomSourceKey{}, src)
}

// TimeAndRandomSourceFromContext retrieves the TimeAndRandomSource a live or
// replaying task attached to ctx before calling ProcessElement. ok is false
// if no task wired one in (e.g. recorder is nil, or the element came through
// some other path), in which case an operator should fall back to its own
// clock/PRNG rather than recording nothing.
func TimeAndRandomSourceFromContext(ctx context.Context) (src TimeAndRandomSource, ok bool) {
	src, ok = ctx.Value(timeAndRandomSourceKey{}).(TimeAndRandomSource)
	return src, ok
}
