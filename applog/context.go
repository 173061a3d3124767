package applog

import (
	"context"
	"fmt"
	"go.uber.org/zap"
)

// Field keys shared by every log line written on behalf of a match.
const (
	KeyMatch    = "match"
	KeyLobby    = "lobby"
	KeyOpponent = "opponent"
	KeyLeg      = "leg"
)

type contextFieldsKey struct{}

// contextFields keeps fields in insertion order with one entry per key.
type contextFields []zap.Field

func (cf contextFields) with(fields ...zap.Field) contextFields {
	out := make(contextFields, len(cf), len(cf)+len(fields))
	copy(out, cf)
next:
	for _, f := range fields {
		for i := range out {
			if out[i].Key == f.Key {
				out[i] = f
				continue next
			}
		}
		out = append(out, f)
	}
	return out
}

func fieldsOf(ctx context.Context) contextFields {
	cf, _ := ctx.Value(contextFieldsKey{}).(contextFields)
	return cf
}

// AddContextFields returns a ctx whose logger carries fields in addition to the
// ones already attached. A field replaces an earlier one with the same key.
func AddContextFields(ctx context.Context, fields ...zap.Field) context.Context {
	if len(fields) == 0 {
		return ctx
	}
	return context.WithValue(ctx, contextFieldsKey{}, fieldsOf(ctx).with(fields...))
}

// FromContext returns the current logger decorated with the fields of ctx.
func FromContext(ctx context.Context) *Logger {
	return current().With(fieldsOf(ctx)...)
}

func WithMatch(ctx context.Context, index int) context.Context {
	return AddContextFields(ctx, zap.Int(KeyMatch, index))
}

func WithLobby(ctx context.Context, lobby fmt.Stringer) context.Context {
	return AddContextFields(ctx, zap.Stringer(KeyLobby, lobby))
}

func WithOpponent(ctx context.Context, username string) context.Context {
	return AddContextFields(ctx, zap.String(KeyOpponent, username))
}

func WithLeg(ctx context.Context, leg fmt.Stringer) context.Context {
	return AddContextFields(ctx, zap.Stringer(KeyLeg, leg))
}
