package payment_test

import (
	"bytes"
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"

	"github.com/go-chi/chi"
	. "github.com/onsi/ginkgo/v2"
	. "github.com/onsi/gomega"
	"github.com/shopspring/decimal"

	"github.com/frahmantamala/table-reservation/internal"
	"github.com/frahmantamala/table-reservation/internal/core/user"
	"github.com/frahmantamala/table-reservation/internal/payment"
	"github.com/frahmantamala/table-reservation/internal/reservation"
	"github.com/frahmantamala/table-reservation/internal/testutil"
	"github.com/frahmantamala/table-reservation/internal/transport"
)

type mockProcessor struct {
	verifyErr   error
	failErr     error
	verifyCalls []int64
	failCalls   []int64
	lastActor   *user.Principal
}

func (m *mockProcessor) VerifyPayment(_ context.Context, id int64, ref string, actor *user.Principal) (*payment.VerifyResult, error) {
	m.verifyCalls = append(m.verifyCalls, id)
	m.lastActor = actor
	if m.verifyErr != nil {
		return nil, m.verifyErr
	}
	return &payment.VerifyResult{
		Payment:     &payment.Payment{ID: id, Status: payment.StatusVerified, Amount: decimal.NewFromInt(20)},
		Reservation: &reservation.Reservation{ID: 7, Status: reservation.StatusConfirmed},
	}, nil
}

func (m *mockProcessor) FailPayment(_ context.Context, id int64, reason string) (*payment.Payment, error) {
	m.failCalls = append(m.failCalls, id)
	if m.failErr != nil {
		return nil, m.failErr
	}
	return &payment.Payment{ID: id, Status: payment.StatusFailed, FailureReason: &reason}, nil
}

func (m *mockProcessor) RetryPayment(_ context.Context, reservationID int64, _ *user.Principal) (*payment.Payment, error) {
	return &payment.Payment{ID: 99, ReservationID: reservationID, Status: payment.StatusPending}, nil
}

func (m *mockProcessor) CheckoutPayment(_ context.Context, id int64, _ *user.Principal) (*payment.Payment, error) {
	ref := "ref-1"
	return &payment.Payment{ID: id, RefID: &ref, Status: payment.StatusPending}, nil
}

type mockReader struct {
	byRef map[string]*payment.Payment
}

func (m *mockReader) History(_ context.Context, _ *user.Principal, _ payment.HistoryFilter) ([]payment.HistoryItem, int64, error) {
	return []payment.HistoryItem{{ID: 1}}, 1, nil
}

func (m *mockReader) Detail(_ context.Context, id int64, _ *user.Principal) (*payment.HistoryItem, error) {
	if id != 1 {
		return nil, internal.ErrPaymentNotFound
	}
	return &payment.HistoryItem{ID: 1}, nil
}

func (m *mockReader) GetByRef(_ context.Context, ref string) (*payment.Payment, error) {
	p, ok := m.byRef[ref]
	if !ok {
		return nil, internal.ErrPaymentNotFound
	}
	return p, nil
}

func decodeError(rec *httptest.ResponseRecorder) map[string]interface{} {
	var body struct {
		Error map[string]interface{} `json:"error"`
	}
	Expect(json.Unmarshal(rec.Body.Bytes(), &body)).To(Succeed())
	return body.Error
}

var _ = Describe("Handler", func() {
	var (
		processor *mockProcessor
		reader    *mockReader
		handler   *payment.Handler
		customer  *user.Principal
	)

	BeforeEach(func() {
		processor = &mockProcessor{}
		reader = &mockReader{byRef: map[string]*payment.Payment{"ref-1": {ID: 5, Status: payment.StatusPending}}}
		base := transport.NewBaseHandler(testutil.Logger())
		handler = payment.NewHandler(base, processor, reader, testutil.Logger())
		customer = &user.Principal{ID: 1, Role: user.RoleCustomer}
	})

	post := func(h http.HandlerFunc, body interface{}, actor *user.Principal) *httptest.ResponseRecorder {
		raw, _ := json.Marshal(body)
		req := httptest.NewRequest(http.MethodPost, "/", bytes.NewReader(raw))
		if actor != nil {
			req = req.WithContext(internal.ContextWithUser(req.Context(), actor))
		}
		rec := httptest.NewRecorder()
		h(rec, req)
		return rec
	}

	Describe("Verify", func() {
		It("requires authentication", func() {
			rec := post(handler.Verify, map[string]interface{}{"payment_id": 5}, nil)
			Expect(rec.Code).To(Equal(http.StatusUnauthorized))
		})

		It("validates the body", func() {
			rec := post(handler.Verify, map[string]interface{}{}, customer)
			Expect(rec.Code).To(Equal(http.StatusBadRequest))
			Expect(processor.verifyCalls).To(BeEmpty())
		})

		It("returns the confirmed reservation", func() {
			rec := post(handler.Verify, map[string]interface{}{"payment_id": 5}, customer)
			Expect(rec.Code).To(Equal(http.StatusOK))
			Expect(processor.lastActor).To(Equal(customer))

			var body map[string]interface{}
			Expect(json.Unmarshal(rec.Body.Bytes(), &body)).To(Succeed())
			Expect(body["detail"]).To(Equal("Payment verified."))
			Expect(body["reservation"]).To(HaveKeyWithValue("status", reservation.StatusConfirmed))
		})

		It("maps an expired deadline to 410", func() {
			processor.verifyErr = internal.ErrPaymentDeadlineExpired
			rec := post(handler.Verify, map[string]interface{}{"payment_id": 5}, customer)
			Expect(rec.Code).To(Equal(http.StatusGone))
			Expect(decodeError(rec)).To(HaveKeyWithValue("type", "DEADLINE_EXPIRED"))
		})

		It("maps a second verification to 409", func() {
			processor.verifyErr = internal.ErrInvalidPaymentState
			rec := post(handler.Verify, map[string]interface{}{"payment_id": 5}, customer)
			Expect(rec.Code).To(Equal(http.StatusConflict))
		})
	})

	Describe("Detail", func() {
		get := func(id string) *httptest.ResponseRecorder {
			router := chi.NewRouter()
			router.Get("/payment/history/{id}", handler.Detail)
			req := httptest.NewRequest(http.MethodGet, "/payment/history/"+id, nil)
			req = req.WithContext(internal.ContextWithUser(req.Context(), customer))
			rec := httptest.NewRecorder()
			router.ServeHTTP(rec, req)
			return rec
		}

		It("returns 404 for unknown payments", func() {
			Expect(get("2").Code).To(Equal(http.StatusNotFound))
			Expect(get("1").Code).To(Equal(http.StatusOK))
			Expect(get("abc").Code).To(Equal(http.StatusBadRequest))
		})
	})
})

var _ = Describe("WebhookHandler", func() {
	var (
		processor *mockProcessor
		webhook   *payment.WebhookHandler
	)

	BeforeEach(func() {
		processor = &mockProcessor{}
		reader := &mockReader{byRef: map[string]*payment.Payment{"ref-1": {ID: 5, Status: payment.StatusPending}}}
		webhook = payment.NewWebhookHandler(transport.NewBaseHandler(testutil.Logger()), processor, reader, "secret", testutil.Logger())
	})

	call := func(key string, body interface{}) *httptest.ResponseRecorder {
		raw, _ := json.Marshal(body)
		req := httptest.NewRequest(http.MethodPost, "/payment/callback", bytes.NewReader(raw))
		req.Header.Set(payment.CallbackKeyHeader, key)
		rec := httptest.NewRecorder()
		webhook.HandlePaymentCallback(rec, req)
		return rec
	}

	It("rejects a wrong callback key", func() {
		rec := call("wrong", map[string]interface{}{"ref_id": "ref-1", "status": "success"})
		Expect(rec.Code).To(Equal(http.StatusUnauthorized))
		Expect(processor.verifyCalls).To(BeEmpty())
	})

	It("verifies on success as the system", func() {
		rec := call("secret", map[string]interface{}{"ref_id": "ref-1", "status": "success"})
		Expect(rec.Code).To(Equal(http.StatusOK))
		Expect(processor.verifyCalls).To(Equal([]int64{5}))
		Expect(processor.lastActor).To(BeNil())
	})

	It("fails on a declined charge", func() {
		rec := call("secret", map[string]interface{}{"ref_id": "ref-1", "status": "failed", "failure_reason": "Insufficient funds"})
		Expect(rec.Code).To(Equal(http.StatusOK))
		Expect(processor.failCalls).To(Equal([]int64{5}))
	})

	It("acknowledges replays of settled payments", func() {
		processor.verifyErr = internal.ErrInvalidPaymentState
		rec := call("secret", map[string]interface{}{"ref_id": "ref-1", "status": "success"})
		Expect(rec.Code).To(Equal(http.StatusOK))
		Expect(rec.Body.String()).To(ContainSubstring("ignored"))
	})

	It("returns 404 for an unknown reference", func() {
		rec := call("secret", map[string]interface{}{"ref_id": "nope", "status": "success"})
		Expect(rec.Code).To(Equal(http.StatusNotFound))
	})

	It("rejects an unknown status", func() {
		rec := call("secret", map[string]interface{}{"ref_id": "ref-1", "status": "maybe"})
		Expect(rec.Code).To(Equal(http.StatusBadRequest))
	})
})
