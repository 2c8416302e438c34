package reservation_test

import (
	"bytes"
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strconv"
	"time"

	"github.com/go-chi/chi"
	. "github.com/onsi/ginkgo/v2"
	. "github.com/onsi/gomega"
	"gorm.io/gorm"

	"github.com/frahmantamala/table-reservation/internal"
	"github.com/frahmantamala/table-reservation/internal/core/datamodel/restaurant"
	"github.com/frahmantamala/table-reservation/internal/core/user"
	"github.com/frahmantamala/table-reservation/internal/reservation"
	"github.com/frahmantamala/table-reservation/internal/reservation/postgres"
	"github.com/frahmantamala/table-reservation/internal/testutil"
	"github.com/frahmantamala/table-reservation/internal/transport"
	"github.com/frahmantamala/table-reservation/pkg/db"
)

type serviceProcessor struct {
	svc *reservation.Service
}

func (p serviceProcessor) CreateReservation(ctx context.Context, cmd reservation.CreateCommand) (*reservation.Booking, error) {
	return p.svc.Create(ctx, cmd)
}

func (p serviceProcessor) CancelReservation(ctx context.Context, id int64, actor *user.Principal, reason string) (*reservation.Reservation, error) {
	return p.svc.Cancel(ctx, id, actor, reason)
}

var _ = Describe("Handler", func() {
	var (
		conn   *gorm.DB
		router *chi.Mux
		rest   *restaurant.Restaurant
		table  *restaurant.Table
		guest  *user.Principal
		other  *user.Principal
		date   string
	)

	do := func(method, path string, body interface{}, actor *user.Principal) *httptest.ResponseRecorder {
		var buf bytes.Buffer
		if body != nil {
			Expect(json.NewEncoder(&buf).Encode(body)).To(Succeed())
		}
		req := httptest.NewRequest(method, path, &buf)
		if actor != nil {
			req = req.WithContext(internal.ContextWithUser(req.Context(), actor))
		}
		rec := httptest.NewRecorder()
		router.ServeHTTP(rec, req)
		return rec
	}

	create := func(actor *user.Principal, start, end string) *httptest.ResponseRecorder {
		return do(http.MethodPost, "/reservations", map[string]interface{}{
			"table": table.ID, "date": date, "start_time": start, "end_time": end, "guest_count": 2,
		}, actor)
	}

	BeforeEach(func() {
		var err error
		conn, err = testutil.NewDB()
		Expect(err).NotTo(HaveOccurred())
		rest, err = testutil.SeedRestaurant(conn)
		Expect(err).NotTo(HaveOccurred())
		table, err = testutil.SeedTable(conn, rest.ID, 1, restaurant.TableTypeNormal, 4)
		Expect(err).NotTo(HaveOccurred())

		repo := postgres.NewReservationRepository(conn)
		svc := reservation.NewService(db.FromGorm(conn), repo, reservation.Config{PaymentGracePeriod: 15 * time.Minute}, testutil.Logger())
		search := reservation.NewAvailabilityService(repo, time.UTC, testutil.Logger())
		h := reservation.NewHandler(transport.NewBaseHandler(testutil.Logger()), serviceProcessor{svc}, svc, search, testutil.Logger())

		router = chi.NewRouter()
		router.Get("/availability", h.Search)
		router.Post("/reservations", h.Create)
		router.Get("/reservations", h.List)
		router.Get("/reservations/{id}", h.Get)
		router.Post("/reservations/{id}/cancel", h.Cancel)

		guest = &user.Principal{ID: 1, Role: user.RoleCustomer}
		other = &user.Principal{ID: 2, Role: user.RoleCustomer}
		date = testutil.Day(1).Format(reservation.DateLayout)
	})

	AfterEach(func() {
		sqlDB, _ := conn.DB()
		sqlDB.Close()
	})

	It("creates a reservation with its pending payment", func() {
		rec := create(guest, "12:00", "14:00")
		Expect(rec.Code).To(Equal(http.StatusCreated))

		var body map[string]interface{}
		Expect(json.Unmarshal(rec.Body.Bytes(), &body)).To(Succeed())
		Expect(body).To(HaveKey("detail"))
		Expect(body["reservation"]).To(HaveKeyWithValue("status", reservation.StatusPending))
		Expect(body["payment"]).To(HaveKeyWithValue("status", "pending"))
	})

	It("rejects an overlapping window with 409", func() {
		Expect(create(guest, "12:00", "14:00").Code).To(Equal(http.StatusCreated))
		Expect(create(other, "13:00", "15:00").Code).To(Equal(http.StatusConflict))
		Expect(create(other, "14:00", "15:00").Code).To(Equal(http.StatusCreated))
	})

	It("validates the request", func() {
		Expect(create(guest, "14:00", "12:00").Code).To(Equal(http.StatusBadRequest))
		Expect(do(http.MethodPost, "/reservations", map[string]interface{}{"table": table.ID}, guest).Code).To(Equal(http.StatusBadRequest))
		Expect(create(nil, "12:00", "14:00").Code).To(Equal(http.StatusUnauthorized))
	})

	It("lists only the caller's reservations", func() {
		Expect(create(guest, "12:00", "13:00").Code).To(Equal(http.StatusCreated))
		Expect(create(other, "15:00", "16:00").Code).To(Equal(http.StatusCreated))

		rec := do(http.MethodGet, "/reservations", nil, guest)
		Expect(rec.Code).To(Equal(http.StatusOK))
		var body reservation.ListResponse
		Expect(json.Unmarshal(rec.Body.Bytes(), &body)).To(Succeed())
		Expect(body.Count).To(Equal(int64(1)))
	})

	It("cancels once and reports the second attempt as 400", func() {
		rec := create(guest, "12:00", "14:00")
		var body struct {
			Reservation struct {
				ID int64 `json:"id"`
			} `json:"reservation"`
		}
		Expect(json.Unmarshal(rec.Body.Bytes(), &body)).To(Succeed())
		path := "/reservations/" + strconv.FormatInt(body.Reservation.ID, 10)

		Expect(do(http.MethodPost, path+"/cancel", map[string]string{"reason": "plans changed"}, other).Code).To(Equal(http.StatusNotFound))
		Expect(do(http.MethodGet, path, nil, other).Code).To(Equal(http.StatusNotFound))
		Expect(do(http.MethodPost, path+"/cancel", map[string]string{"reason": "plans changed"}, guest).Code).To(Equal(http.StatusOK))
		Expect(do(http.MethodPost, path+"/cancel", nil, guest).Code).To(Equal(http.StatusBadRequest))
	})

	It("searches availability without authentication", func() {
		rec := do(http.MethodGet, "/availability?restaurant="+strconv.FormatInt(rest.ID, 10)+"&date="+date+"&number_of_people=2", nil, nil)
		Expect(rec.Code).To(Equal(http.StatusOK))

		var body reservation.AvailabilityResult
		Expect(json.Unmarshal(rec.Body.Bytes(), &body)).To(Succeed())
		Expect(body.Results).To(HaveLen(1))
		Expect(do(http.MethodGet, "/availability", nil, nil).Code).To(Equal(http.StatusBadRequest))
		Expect(do(http.MethodGet, "/availability?restaurant=999", nil, nil).Code).To(Equal(http.StatusNotFound))
	})
})
