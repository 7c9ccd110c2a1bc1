package verifycode

import (
	"context"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/redis/go-redis/v9"
)

func TestLedger_SetAndConsume(t *testing.T) {
	_, rdb := newMiniRedis(t)
	defer rdb.Close()

	ledger := NewLedger(rdb, 2*time.Minute)
	ctx := context.Background()

	if err := ledger.Set(ctx, 1, "123456"); err != nil {
		t.Fatalf("set: %v", err)
	}

	ok, err := ledger.Consume(ctx, 1, "123456")
	if err != nil {
		t.Fatalf("consume: %v", err)
	}
	if !ok {
		t.Fatal("expected matching code to be accepted")
	}

	// 已消费的码不可复用
	ok, err = ledger.Consume(ctx, 1, "123456")
	if err != nil {
		t.Fatalf("second consume: %v", err)
	}
	if ok {
		t.Fatal("expected consumed code to be rejected")
	}
}

func TestLedger_WrongCodeKeepsStored(t *testing.T) {
	_, rdb := newMiniRedis(t)
	defer rdb.Close()

	ledger := NewLedger(rdb, 2*time.Minute)
	ctx := context.Background()

	if err := ledger.Set(ctx, 7, "654321"); err != nil {
		t.Fatalf("set: %v", err)
	}

	ok, err := ledger.Consume(ctx, 7, "000000")
	if err != nil {
		t.Fatalf("consume wrong code: %v", err)
	}
	if ok {
		t.Fatal("expected wrong code to be rejected")
	}

	// 猜错不应销毁正确的码
	ok, err = ledger.Consume(ctx, 7, "654321")
	if err != nil {
		t.Fatalf("consume correct code: %v", err)
	}
	if !ok {
		t.Fatal("expected correct code to still work after a wrong attempt")
	}
}

func TestLedger_Expiry(t *testing.T) {
	srv, rdb := newMiniRedis(t)
	defer rdb.Close()

	ledger := NewLedger(rdb, 30*time.Second)
	ctx := context.Background()

	if err := ledger.Set(ctx, 3, "111111"); err != nil {
		t.Fatalf("set: %v", err)
	}

	srv.FastForward(31 * time.Second)

	ok, err := ledger.Consume(ctx, 3, "111111")
	if err != nil {
		t.Fatalf("consume expired: %v", err)
	}
	if ok {
		t.Fatal("expected expired code to be rejected")
	}
}

func TestLedger_SetOverwritesOldCode(t *testing.T) {
	_, rdb := newMiniRedis(t)
	defer rdb.Close()

	ledger := NewLedger(rdb, 2*time.Minute)
	ctx := context.Background()

	if err := ledger.Set(ctx, 5, "111111"); err != nil {
		t.Fatalf("set: %v", err)
	}
	if err := ledger.Set(ctx, 5, "222222"); err != nil {
		t.Fatalf("overwrite: %v", err)
	}

	if ok, _ := ledger.Consume(ctx, 5, "111111"); ok {
		t.Fatal("expected old code to be invalid after resend")
	}
	if ok, _ := ledger.Consume(ctx, 5, "222222"); !ok {
		t.Fatal("expected latest code to be accepted")
	}
}

func TestGenerate(t *testing.T) {
	code, err := Generate(6)
	if err != nil {
		t.Fatalf("generate: %v", err)
	}
	if len(code) != 6 {
		t.Fatalf("expected 6 digits, got %q", code)
	}
	for _, ch := range code {
		if ch < '0' || ch > '9' {
			t.Fatalf("expected digits only, got %q", code)
		}
	}

	if _, err := Generate(0); err == nil {
		t.Fatal("expected error for non-positive length")
	}
}

func newMiniRedis(t *testing.T) (*miniredis.Miniredis, *redis.Client) {
	t.Helper()
	s, err := miniredis.Run()
	if err != nil {
		t.Fatalf("start miniredis: %v", err)
	}
	t.Cleanup(s.Close)
	return s, redis.NewClient(&redis.Options{Addr: s.Addr()})
}
