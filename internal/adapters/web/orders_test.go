package web

import (
	"context"
	"fmt"
	"net/http"
	"net/http/httptest"
	"os"
	"strings"
	"testing"

	"barpos/internal/app"
	"barpos/internal/core"
	"barpos/internal/redisx"

	"github.com/joho/godotenv"
)

// quickSaleStub satisfies ApplicationService for routes the test never hits;
// only GetOrder is implemented, to record whether the handler resolved an
// in-flight idempotency claim as an order lookup.
type quickSaleStub struct {
	app.ApplicationService
	getOrderCalls int
}

func (s *quickSaleStub) GetOrder(ctx context.Context, orderID int64) (*app.OrderResult, error) {
	s.getOrderCalls++
	return nil, fmt.Errorf("%w: order %d", core.ErrNotFound, orderID)
}

func TestQuickSale_InFlightClaimReturnsConflict(t *testing.T) {
	_ = godotenv.Load("../../.env")

	addr := os.Getenv("TEST_REDIS_ADDR")
	if addr == "" {
		t.Skip("TEST_REDIS_ADDR not set — skipping integration test")
	}
	rdb := redisx.New(addr)
	defer rdb.Close()

	ctx := context.Background()
	const requestID = "retry-race"
	key := fmt.Sprintf(redisx.KeyIdemQuickSale, requestID)
	rdb.Del(ctx, key)
	defer rdb.Del(ctx, key)

	// Another request holds the claim but has not recorded its order id yet.
	if _, won, err := redisx.ClaimQuickSale(ctx, rdb, requestID); err != nil || !won {
		t.Fatalf("Failed to pre-claim request id: won=%v err=%v", won, err)
	}

	stub := &quickSaleStub{}
	handler := NewHandler(stub, rdb, "")

	body := `{"request_id":"retry-race","items":[{"product_id":1,"quantity":1}],"payment_method":"CASH","amount_paid":100}`
	req := httptest.NewRequest(http.MethodPost, "/api/quick-sale", strings.NewReader(body))
	rec := httptest.NewRecorder()
	handler.ServeHTTP(rec, req)

	if rec.Code != http.StatusConflict {
		t.Errorf("Expected 409 for an in-flight claim, got %d: %s", rec.Code, rec.Body.String())
	}
	if stub.getOrderCalls != 0 {
		t.Errorf("In-flight claim was resolved as an order lookup (%d calls)", stub.getOrderCalls)
	}
}
