package payment

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"sync"
)

var errNotFound = errors.New("transaction not found")

// MockRoundTripper allows us to mock the HTTP response
type MockRoundTripper func(req *http.Request) *http.Response

func (f MockRoundTripper) RoundTrip(req *http.Request) (*http.Response, error) {
	return f(req), nil
}

type MockRoundTripperWithError func(req *http.Request) (*http.Response, error)

func (f MockRoundTripperWithError) RoundTrip(req *http.Request) (*http.Response, error) {
	return f(req)
}

// fakeRepo is an in-memory Repository for gateway tests.
type fakeRepo struct {
	mu           sync.Mutex
	transactions map[string]*Transaction
	statusEvents map[string]bool
	webhooks     map[string]int64
	refunds      int
	attempts     int
	nextID       int64

	saveErr error
}

func newFakeRepo() *fakeRepo {
	return &fakeRepo{
		transactions: make(map[string]*Transaction),
		statusEvents: make(map[string]bool),
		webhooks:     make(map[string]int64),
		nextID:       1,
	}
}

func (f *fakeRepo) key(gateway, txID string) string { return gateway + "/" + txID }

func (f *fakeRepo) SaveTransaction(_ context.Context, t *Transaction) error {
	if f.saveErr != nil {
		return f.saveErr
	}
	f.mu.Lock()
	defer f.mu.Unlock()
	cp := *t
	f.transactions[f.key(t.Gateway, t.TransactionID)] = &cp
	return nil
}

func (f *fakeRepo) GetTransaction(_ context.Context, gateway, txID string) (*Transaction, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	t, ok := f.transactions[f.key(gateway, txID)]
	if !ok {
		return nil, errNotFound
	}
	cp := *t
	return &cp, nil
}

func (f *fakeRepo) GetTransactionsByOrder(_ context.Context, orderNumber string) ([]*Transaction, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	var out []*Transaction
	for _, t := range f.transactions {
		if t.OrderNumber == orderNumber {
			cp := *t
			out = append(out, &cp)
		}
	}
	return out, nil
}

func (f *fakeRepo) UpdateTransactionStatus(_ context.Context, gateway, txID string, status Status, rawStatus string, _ map[string]interface{}) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if t, ok := f.transactions[f.key(gateway, txID)]; ok {
		t.Status = status
		t.RawStatus = rawStatus
	}
	return nil
}

func (f *fakeRepo) AdoptVendorPayment(_ context.Context, gateway, orderNumber, paymentID string, status Status, rawStatus string, _ map[string]interface{}) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	for k, t := range f.transactions {
		if t.Gateway == gateway && t.OrderNumber == orderNumber {
			delete(f.transactions, k)
			t.TransactionID = paymentID
			t.Status = status
			t.RawStatus = rawStatus
			f.transactions[f.key(gateway, paymentID)] = t
			return nil
		}
	}
	return nil
}

func (f *fakeRepo) SaveWebhookEvent(_ context.Context, gateway, eventID, _, _ string, _ json.RawMessage) (int64, bool, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	k := gateway + "/" + eventID
	if id, ok := f.webhooks[k]; ok {
		return id, true, nil
	}
	id := f.nextID
	f.nextID++
	f.webhooks[k] = id
	return id, false, nil
}

func (f *fakeRepo) MarkWebhookProcessed(context.Context, int64) error { return nil }
func (f *fakeRepo) MarkWebhookFailed(context.Context, int64, string) error { return nil }

func (f *fakeRepo) SaveStatusEvent(_ context.Context, gateway, txID, rawStatus string) (bool, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	k := gateway + "/" + txID + "/" + rawStatus
	if f.statusEvents[k] {
		return true, nil
	}
	f.statusEvents[k] = true
	return false, nil
}

func (f *fakeRepo) SaveRefund(context.Context, string, string, string, float64, string, string, string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.refunds++
	return nil
}

func (f *fakeRepo) SaveAttempt(context.Context, string, string, string, string, bool, string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.attempts++
	return nil
}

// fakeOrders records every Apply call.
type fakeOrders struct {
	mu      sync.Mutex
	applied []appliedStatus
	err     error
}

type appliedStatus struct {
	OrderNumber string
	Status      Status
}

func (f *fakeOrders) Apply(_ context.Context, orderNumber string, status Status, _ map[string]interface{}) error {
	if f.err != nil {
		return f.err
	}
	f.mu.Lock()
	defer f.mu.Unlock()
	f.applied = append(f.applied, appliedStatus{OrderNumber: orderNumber, Status: status})
	return nil
}
