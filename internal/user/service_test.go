package user_test

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"

	. "github.com/onsi/ginkgo/v2"
	. "github.com/onsi/gomega"

	"github.com/frahmantamala/table-reservation/internal"
	coreUser "github.com/frahmantamala/table-reservation/internal/core/user"
	"github.com/frahmantamala/table-reservation/internal/testutil"
	"github.com/frahmantamala/table-reservation/internal/transport"
	"github.com/frahmantamala/table-reservation/internal/user"
	"github.com/frahmantamala/table-reservation/internal/user/postgres"
)

type plainHasher struct{}

func (plainHasher) HashPassword(p string) (string, error) { return "hashed:" + p, nil }

var _ = Describe("Service", func() {
	var (
		ctx     context.Context
		repo    *postgres.UserRepository
		service *user.Service
	)

	BeforeEach(func() {
		ctx = context.Background()
		conn, err := testutil.NewDB()
		Expect(err).NotTo(HaveOccurred())
		repo = postgres.NewUserRepository(conn)
		service = user.NewService(repo, plainHasher{}, testutil.Logger())
	})

	Describe("Register", func() {
		It("stores a hashed customer account by default", func() {
			u, err := service.Register(ctx, user.NewAccount{Email: "Ana@Example.com", Name: "Ana", Password: "longenough"})
			Expect(err).NotTo(HaveOccurred())
			Expect(u.ID).To(BeNumerically(">", 0))
			Expect(u.Email).To(Equal("ana@example.com"))
			Expect(u.PasswordHash).To(Equal("hashed:longenough"))
			Expect(u.Role).To(Equal("customer"))

			stored, err := repo.GetByEmail(ctx, "ana@example.com")
			Expect(err).NotTo(HaveOccurred())
			Expect(stored.IsActive).To(BeTrue())
		})

		It("rejects unknown roles and short passwords", func() {
			_, err := service.Register(ctx, user.NewAccount{Email: "a@example.com", Name: "A", Password: "longenough", Role: "owner"})
			Expect(internal.IsType(err, internal.ErrorTypeValidation)).To(BeTrue())

			_, err = service.Register(ctx, user.NewAccount{Email: "a@example.com", Name: "A", Password: "short"})
			Expect(internal.IsType(err, internal.ErrorTypeValidation)).To(BeTrue())
		})

		It("reports a taken email as a conflict", func() {
			_, err := service.Register(ctx, user.NewAccount{Email: "dup@example.com", Name: "A", Password: "longenough"})
			Expect(err).NotTo(HaveOccurred())
			_, err = service.Register(ctx, user.NewAccount{Email: "dup@example.com", Name: "B", Password: "longenough"})
			Expect(internal.IsType(err, internal.ErrorTypeConflict)).To(BeTrue())
		})
	})

	Describe("Profile", func() {
		It("lists the role's capabilities", func() {
			u, err := service.Register(ctx, user.NewAccount{Email: "m@example.com", Name: "M", Password: "longenough", Role: "manager"})
			Expect(err).NotTo(HaveOccurred())

			p, err := service.Profile(ctx, u.ID)
			Expect(err).NotTo(HaveOccurred())
			Expect(p.Role).To(Equal(coreUser.RoleManager))
			Expect(p.Capabilities).To(ContainElement(coreUser.CapCancelAnyBooking))
			Expect(p.Capabilities).NotTo(ContainElement(coreUser.CapRunMaintenance))
		})

		It("returns not found for a missing user", func() {
			_, err := service.Profile(ctx, 404)
			Expect(err).To(Equal(internal.ErrUserNotFound))
		})
	})

	Describe("Handler", func() {
		It("serves the caller's profile", func() {
			u, err := service.Register(ctx, user.NewAccount{Email: "c@example.com", Name: "C", Password: "longenough"})
			Expect(err).NotTo(HaveOccurred())

			handler := user.NewHandler(transport.NewBaseHandler(testutil.Logger()), service)
			req := httptest.NewRequest(http.MethodGet, "/me", nil)
			req = req.WithContext(internal.ContextWithUser(req.Context(), &coreUser.Principal{ID: u.ID, Role: coreUser.RoleCustomer}))
			rec := httptest.NewRecorder()
			handler.GetCurrentUser(rec, req)

			Expect(rec.Code).To(Equal(http.StatusOK))
			var body map[string]interface{}
			Expect(json.Unmarshal(rec.Body.Bytes(), &body)).To(Succeed())
			Expect(body).To(HaveKeyWithValue("email", "c@example.com"))
			Expect(body).NotTo(HaveKey("password_hash"))
		})

		It("requires a caller", func() {
			handler := user.NewHandler(transport.NewBaseHandler(testutil.Logger()), service)
			rec := httptest.NewRecorder()
			handler.GetCurrentUser(rec, httptest.NewRequest(http.MethodGet, "/me", nil))
			Expect(rec.Code).To(Equal(http.StatusUnauthorized))
		})
	})
})
