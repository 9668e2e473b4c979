package context

import "context"

type ContextKey string

var (
	RequestIDKey = ContextKey("X-Request-Id")
	MethodKey    = ContextKey("X-Method")
	RouteKey     = ContextKey("X-Route")
	RemoteIPKey  = ContextKey("X-Remote-Ip")
	OperatorKey  = ContextKey("X-Operator")
	CaseIDKey    = ContextKey("X-Case-Id")
)

// SystemOperator is recorded when a mutation runs without an authenticated caller,
// e.g. background rebuilds started from the CLI.
const SystemOperator = "system"

func SetRequestID(ctx context.Context, requestID string) context.Context {
	return context.WithValue(ctx, RequestIDKey, requestID)
}

func GetRequestID(ctx context.Context) string {
	value, ok := ctx.Value(RequestIDKey).(string)
	if !ok {
		return ""
	}
	return value
}

// SetOperator records who is performing the operation. Every audit entry carries it.
func SetOperator(ctx context.Context, operator string) context.Context {
	return context.WithValue(ctx, OperatorKey, operator)
}

// GetOperator returns the operator on ctx, or SystemOperator when none was set.
func GetOperator(ctx context.Context) string {
	value, ok := ctx.Value(OperatorKey).(string)
	if !ok || value == "" {
		return SystemOperator
	}
	return value
}

func SetCaseID(ctx context.Context, caseID string) context.Context {
	return context.WithValue(ctx, CaseIDKey, caseID)
}

func GetCaseID(ctx context.Context) string {
	value, ok := ctx.Value(CaseIDKey).(string)
	if !ok {
		return ""
	}
	return value
}

func SetMethod(ctx context.Context, method string) context.Context {
	return context.WithValue(ctx, MethodKey, method)
}

func GetMethod(ctx context.Context) string {
	value, ok := ctx.Value(MethodKey).(string)
	if !ok {
		return ""
	}
	return value
}

func SetRoute(ctx context.Context, route string) context.Context {
	return context.WithValue(ctx, RouteKey, route)
}

func GetRoute(ctx context.Context) string {
	value, ok := ctx.Value(RouteKey).(string)
	if !ok {
		return ""
	}
	return value
}

func SetRemoteIP(ctx context.Context, remoteIP string) context.Context {
	return context.WithValue(ctx, RemoteIPKey, remoteIP)
}

func GetRemoteIP(ctx context.Context) string {
	value, ok := ctx.Value(RemoteIPKey).(string)
	if !ok {
		return ""
	}
	return value
}
