package reservation

import (
	"context"
	"log/slog"
	"sort"
	"time"

	"github.com/shopspring/decimal"

	"github.com/frahmantamala/table-reservation/internal"
	"github.com/frahmantamala/table-reservation/internal/core/common/validation"
)

// AvailabilityQuery holds raw search input; empty date and clocks fall back to
// today and the restaurant's opening hours.
type AvailabilityQuery struct {
	RestaurantID   int64
	Date           string
	StartTime      string
	EndTime        string
	NumberOfPeople int
}

type TableAvailability struct {
	Table           *Table          `json:"table"`
	HasReservation  bool            `json:"has_reservation"`
	SeatPrice       decimal.Decimal `json:"seat_price"`
	Price           decimal.Decimal `json:"price"`
	DayReservations []*Reservation  `json:"day_reservations"`
}

type AvailabilityResult struct {
	RestaurantID   int64               `json:"restaurant"`
	Date           string              `json:"date"`
	StartTime      string              `json:"start_time"`
	EndTime        string              `json:"end_time"`
	NumberOfPeople int                 `json:"number_of_people"`
	SeatsNeeded    int                 `json:"seats_needed"`
	Results        []TableAvailability `json:"results"`
}

type AvailabilityService struct {
	repo   Repository
	loc    *time.Location
	now    func() time.Time
	logger *slog.Logger
}

func NewAvailabilityService(repo Repository, loc *time.Location, logger *slog.Logger) *AvailabilityService {
	if loc == nil {
		loc = time.UTC
	}
	return &AvailabilityService{
		repo:   repo,
		loc:    loc,
		now:    time.Now,
		logger: logger,
	}
}

func (s *AvailabilityService) WithClock(now func() time.Time) *AvailabilityService {
	s.now = now
	return s
}

func (s *AvailabilityService) Location() *time.Location {
	return s.loc
}

// Search ranks every table of the restaurant that seats RoundUpToEven(party):
// free tables first, then by listing price, then by capacity.
func (s *AvailabilityService) Search(ctx context.Context, q AvailabilityQuery) (*AvailabilityResult, error) {
	rest, err := s.repo.GetRestaurant(ctx, q.RestaurantID)
	if err != nil {
		return nil, err
	}

	if q.NumberOfPeople == 0 {
		q.NumberOfPeople = 1
	}
	if q.NumberOfPeople < 1 {
		return nil, internal.NewValidationFieldError("number_of_people", "number_of_people must be at least 1", internal.ErrCodeInvalidGuests)
	}

	localNow := s.now().In(s.loc)
	if q.Date == "" {
		q.Date = localNow.Format(DateLayout)
	}
	if q.StartTime == "" {
		q.StartTime = rest.OpeningTime
	}
	if q.EndTime == "" {
		q.EndTime = rest.ClosingTime
	}

	window, err := ResolveWindow(q.Date, q.StartTime, q.EndTime, s.loc)
	if err != nil {
		return nil, internal.NewValidationError(err.Error(), internal.ErrCodeInvalidDate)
	}
	if err := s.validateWindow(rest, q, window, localNow); err != nil {
		return nil, err
	}

	seats := RoundUpToEven(q.NumberOfPeople)
	tables, err := s.repo.ListTables(ctx, rest.ID, seats)
	if err != nil {
		return nil, internal.NewInternalError("failed to list tables", err)
	}

	ids := make([]int64, len(tables))
	for i, t := range tables {
		ids[i] = t.ID
	}
	dayReservations, err := s.repo.ListActiveOnDate(ctx, ids, window.Date)
	if err != nil {
		return nil, internal.NewInternalError("failed to list reservations", err)
	}
	byTable := make(map[int64][]*Reservation, len(tables))
	for _, r := range dayReservations {
		byTable[r.TableID] = append(byTable[r.TableID], r)
	}

	results := make([]TableAvailability, 0, len(tables))
	for _, t := range tables {
		day := byTable[t.ID]
		if day == nil {
			day = []*Reservation{}
		}
		taken := false
		for _, r := range day {
			if Overlaps(r.StartAt, r.EndAt, window.Start, window.End) {
				taken = true
				break
			}
		}
		results = append(results, TableAvailability{
			Table:           t,
			HasReservation:  taken,
			SeatPrice:       rest.SeatPrice(t.TableType),
			Price:           TablePrice(rest, t),
			DayReservations: day,
		})
	}

	sort.SliceStable(results, func(i, j int) bool {
		a, b := results[i], results[j]
		if a.HasReservation != b.HasReservation {
			return !a.HasReservation
		}
		if c := a.Price.Cmp(b.Price); c != 0 {
			return c < 0
		}
		return a.Table.Capacity < b.Table.Capacity
	})

	return &AvailabilityResult{
		RestaurantID:   rest.ID,
		Date:           q.Date,
		StartTime:      q.StartTime,
		EndTime:        q.EndTime,
		NumberOfPeople: q.NumberOfPeople,
		SeatsNeeded:    seats,
		Results:        results,
	}, nil
}

func (s *AvailabilityService) validateWindow(rest *Restaurant, q AvailabilityQuery, w Window, localNow time.Time) *internal.AppError {
	opening, err := ParseClock(rest.OpeningTime)
	if err != nil {
		return internal.NewInternalError("restaurant has invalid opening time", err)
	}
	closing, err := ParseClock(rest.ClosingTime)
	if err != nil {
		return internal.NewInternalError("restaurant has invalid closing time", err)
	}
	startOff, _ := ParseClock(q.StartTime)
	endOff, _ := ParseClock(q.EndTime)
	today, _ := ParseDate(localNow.Format(DateLayout), s.loc)
	day, _ := ParseDate(q.Date, s.loc)

	v := validation.NewValidator()
	v.Field("end_time", w.End).After(w.Start, "start_time", internal.ErrCodeInvalidWindow)
	v.Field("start_time", startOff).Custom(func(interface{}) *internal.AppError {
		if startOff < opening {
			return internal.NewValidationFieldError("start_time", "Restaurant opens at "+rest.OpeningTime+".", internal.ErrCodeOutsideHours)
		}
		return nil
	})
	v.Field("end_time", endOff).Custom(func(interface{}) *internal.AppError {
		if endOff > closing {
			return internal.NewValidationFieldError("end_time", "Restaurant closes at "+rest.ClosingTime+".", internal.ErrCodeOutsideHours)
		}
		return nil
	})
	v.Field("date", day).NotBefore(today, internal.ErrCodeInvalidDate)
	return v.Validate()
}
