package logger

import (
	"time"

	"go.uber.org/zap"
)

// HTTP fields.

func RequestID(v string) zap.Field       { return zap.String("request_id", v) }
func Method(v string) zap.Field          { return zap.String("method", v) }
func Route(v string) zap.Field           { return zap.String("route", v) }
func Status(v int) zap.Field             { return zap.Int("status", v) }
func Duration(v time.Duration) zap.Field { return zap.Duration("duration", v) }
func ClientIP(v string) zap.Field        { return zap.String("client_ip", v) }

// Domain fields.

func UserID(v uint64) zap.Field         { return zap.Uint64("user_id", v) }
func ProductID(v uint64) zap.Field      { return zap.Uint64("product_id", v) }
func OrderID(v string) zap.Field        { return zap.String("order_id", v) }
func Family(v string) zap.Field         { return zap.String("family_id", v) }
func IdempotencyKey(v string) zap.Field { return zap.String("idempotency_key", v) }
func Stage(v string) zap.Field          { return zap.String("stage", v) }

// System fields.

func Component(v string) zap.Field { return zap.String("component", v) }
func Op(v string) zap.Field        { return zap.String("op", v) }
func Err(err error) zap.Field      { return zap.Error(err) }
