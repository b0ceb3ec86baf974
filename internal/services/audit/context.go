package audit

import "context"

type ctxKey string

const (
	clientIPKey ctxKey = "audit_client_ip"
	triggerKey  ctxKey = "audit_trigger"
)

func WithClientIP(ctx context.Context, ip string) context.Context {
	return context.WithValue(ctx, clientIPKey, ip)
}

func ClientIPFromContext(ctx context.Context) string {
	if ctx == nil {
		return ""
	}
	v, _ := ctx.Value(clientIPKey).(string)
	return v
}

// WithTrigger marks passes started under ctx, e.g. TriggerManual for the admin endpoint.
func WithTrigger(ctx context.Context, trigger string) context.Context {
	return context.WithValue(ctx, triggerKey, trigger)
}

// TriggerFromContext defaults to TriggerSchedule.
func TriggerFromContext(ctx context.Context) string {
	if ctx == nil {
		return TriggerSchedule
	}
	if v, _ := ctx.Value(triggerKey).(string); v != "" {
		return v
	}
	return TriggerSchedule
}
