package ports

import "context"

type clientInfoKey struct{}

// ClientInfo describes the caller of a request for the audit trail.
type ClientInfo struct {
	IP        string
	UserAgent string
}

// WithClientInfo attaches info to ctx.
func WithClientInfo(ctx context.Context, info ClientInfo) context.Context {
	return context.WithValue(ctx, clientInfoKey{}, info)
}

// ClientInfoFrom returns the ClientInfo attached to ctx, if any.
func ClientInfoFrom(ctx context.Context) ClientInfo {
	info, _ := ctx.Value(clientInfoKey{}).(ClientInfo)
	return info
}
