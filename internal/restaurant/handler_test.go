package restaurant_test

import (
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strconv"

	"github.com/go-chi/chi"
	. "github.com/onsi/ginkgo/v2"
	. "github.com/onsi/gomega"
	"gorm.io/gorm"

	"github.com/frahmantamala/table-reservation/internal/restaurant"
	restaurantPostgres "github.com/frahmantamala/table-reservation/internal/restaurant/postgres"
	"github.com/frahmantamala/table-reservation/internal/testutil"
	"github.com/frahmantamala/table-reservation/internal/transport"
)

var _ = Describe("Restaurant Handler Integration", func() {
	var (
		db      *gorm.DB
		router  *chi.Mux
		bistro  *restaurant.Restaurant
		handler *restaurant.Handler
	)

	BeforeEach(func() {
		var err error
		db, err = testutil.NewDB()
		Expect(err).NotTo(HaveOccurred())

		bistro, err = testutil.SeedRestaurant(db)
		Expect(err).NotTo(HaveOccurred())
		_, err = testutil.SeedTable(db, bistro.ID, 1, restaurant.TableTypeNormal, 2)
		Expect(err).NotTo(HaveOccurred())
		_, err = testutil.SeedTable(db, bistro.ID, 2, restaurant.TableTypeNormal, 6)
		Expect(err).NotTo(HaveOccurred())
		_, err = testutil.SeedTable(db, bistro.ID, 3, restaurant.TableTypeVIP, 8)
		Expect(err).NotTo(HaveOccurred())

		service := restaurant.NewService(restaurantPostgres.NewRestaurantRepository(db), testutil.Logger())
		handler = restaurant.NewHandler(transport.NewBaseHandler(testutil.Logger()), service)

		router = chi.NewRouter()
		router.Get("/restaurants", handler.GetRestaurants)
		router.Get("/restaurants/{id}", handler.GetRestaurant)
		router.Get("/restaurants/{id}/tables", handler.GetTables)
	})

	get := func(path string) *httptest.ResponseRecorder {
		req := httptest.NewRequest(http.MethodGet, path, nil)
		w := httptest.NewRecorder()
		router.ServeHTTP(w, req)
		return w
	}

	tablesPath := func() string {
		return "/restaurants/" + strconv.FormatInt(bistro.ID, 10) + "/tables"
	}

	It("should list restaurants with their table counts", func() {
		w := get("/restaurants")
		Expect(w.Code).To(Equal(http.StatusOK))
		Expect(w.Header().Get("Content-Type")).To(ContainSubstring("application/json"))

		var response restaurant.RestaurantsResponse
		Expect(json.NewDecoder(w.Body).Decode(&response)).To(Succeed())
		Expect(response.Restaurants).To(HaveLen(1))
		Expect(response.Restaurants[0].Name).To(Equal("Test Bistro"))
		Expect(response.Restaurants[0].TableCount).To(Equal(3))
	})

	It("should return an empty list when nothing is seeded", func() {
		Expect(db.Exec("DELETE FROM restaurant_tables").Error).To(Succeed())
		Expect(db.Exec("DELETE FROM restaurants").Error).To(Succeed())

		w := get("/restaurants")
		Expect(w.Code).To(Equal(http.StatusOK))
		Expect(w.Body.String()).To(ContainSubstring(`"restaurants":[]`))
	})

	It("should return 404 for an unknown restaurant", func() {
		w := get("/restaurants/999")
		Expect(w.Code).To(Equal(http.StatusNotFound))
		Expect(w.Body.String()).To(ContainSubstring("RESTAURANT_NOT_FOUND"))
	})

	It("should reject a malformed id", func() {
		Expect(get("/restaurants/abc").Code).To(Equal(http.StatusBadRequest))
	})

	Describe("tables", func() {
		It("should price each table by its type", func() {
			w := get(tablesPath())
			Expect(w.Code).To(Equal(http.StatusOK))

			var response restaurant.TablesResponse
			Expect(json.NewDecoder(w.Body).Decode(&response)).To(Succeed())
			Expect(response.Tables).To(HaveLen(3))
			Expect(response.Tables[0].SeatPrice.String()).To(Equal("10"))
			Expect(response.Tables[2].TableType).To(Equal(restaurant.TableTypeVIP))
			Expect(response.Tables[2].SeatPrice.String()).To(Equal("25"))
		})

		It("should filter by party size and table type", func() {
			var response restaurant.TablesResponse
			w := get(tablesPath() + "?number_of_people=4&table_type=normal")
			Expect(w.Code).To(Equal(http.StatusOK))
			Expect(json.NewDecoder(w.Body).Decode(&response)).To(Succeed())
			Expect(response.Tables).To(HaveLen(1))
			Expect(response.Tables[0].Number).To(Equal(2))
		})

		It("should reject an unknown table type", func() {
			w := get(tablesPath() + "?table_type=patio")
			Expect(w.Code).To(Equal(http.StatusBadRequest))
		})
	})
})
