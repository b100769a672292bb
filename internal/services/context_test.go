package services_test

import (
	"context"
	"testing"

	"rmqmeta/internal/services"
)

func TestContextHelpers(t *testing.T) {
	ctx := context.Background()
	ctx = services.WithMessageID(ctx, "01HX")
	ctx = services.WithRoutingKey(ctx, "pdf")
	ctx = services.WithExchange(ctx, "docs")
	ctx = services.WithStage(ctx, "extracted")
	ctx = services.WithRequestID(ctx, "req-123")

	if id, ok := services.MessageIDFromContext(ctx); !ok || id != "01HX" {
		t.Fatalf("unexpected message id: %v %v", id, ok)
	}
	if key, ok := services.RoutingKeyFromContext(ctx); !ok || key != "pdf" {
		t.Fatalf("unexpected routing key: %v %v", key, ok)
	}
	if exchange, ok := services.ExchangeFromContext(ctx); !ok || exchange != "docs" {
		t.Fatalf("unexpected exchange: %v %v", exchange, ok)
	}
	if stage, ok := services.StageFromContext(ctx); !ok || stage != "extracted" {
		t.Fatalf("unexpected stage: %v %v", stage, ok)
	}
	if rid, ok := services.RequestIDFromContext(ctx); !ok || rid != "req-123" {
		t.Fatalf("unexpected request id: %v %v", rid, ok)
	}
}

func TestBlankValuesPreserveContext(t *testing.T) {
	ctx := context.Background()
	ctx = services.WithStage(ctx, "")
	ctx = services.WithRoutingKey(ctx, "")
	if _, ok := services.StageFromContext(ctx); ok {
		t.Fatal("expected no stage value")
	}
	if _, ok := services.RoutingKeyFromContext(ctx); ok {
		t.Fatal("expected no routing key value")
	}
}
