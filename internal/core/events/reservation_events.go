package events

import (
	"time"

	"github.com/google/uuid"

	"github.com/frahmantamala/table-reservation/internal/core/datamodel/payment"
	"github.com/frahmantamala/table-reservation/internal/core/datamodel/reservation"
	"github.com/frahmantamala/table-reservation/internal/core/datamodel/waitlist"
)

const (
	EventTypeReservationCreated   = "reservation.created"
	EventTypeReservationConfirmed = "reservation.confirmed"
	EventTypeReservationCancelled = "reservation.cancelled"
	EventTypeReservationExpired   = "reservation.expired"
	EventTypeReservationCompleted = "reservation.completed"

	EventTypePaymentVerified = "payment.verified"
	EventTypePaymentFailed   = "payment.failed"

	EventTypeWaitlistNotified  = "waitlist.notified"
	EventTypeWaitlistConverted = "waitlist.converted"
	EventTypeWaitlistExpired   = "waitlist.expired"

	EventTypeSlotFreed = "slot.freed"
)

func newBase(eventType string, data map[string]interface{}) BaseEvent {
	return BaseEvent{
		ID:        uuid.New().String(),
		Type:      eventType,
		Timestamp: time.Now().UTC(),
		Data:      data,
	}
}

type ReservationEvent struct {
	BaseEvent
	ReservationID int64  `json:"reservation_id"`
	UserID        int64  `json:"user_id"`
	Status        string `json:"status"`
}

func NewReservationEvent(eventType string, r *reservation.Reservation) *ReservationEvent {
	data := map[string]interface{}{
		"reservation_id": r.ID,
		"user_id":        r.UserID,
		"table_id":       r.TableID,
		"date":           r.Date.Format(time.DateOnly),
		"start_at":       r.StartAt,
		"end_at":         r.EndAt,
		"guest_count":    r.GuestCount,
		"price":          r.Price.StringFixed(2),
		"status":         r.Status,
	}
	if r.CancellationReason != "" {
		data["reason"] = r.CancellationReason
	}
	if r.PaymentDeadline != nil {
		data["payment_deadline"] = *r.PaymentDeadline
	}
	return &ReservationEvent{
		BaseEvent:     newBase(eventType, data),
		ReservationID: r.ID,
		UserID:        r.UserID,
		Status:        r.Status,
	}
}

type PaymentEvent struct {
	BaseEvent
	PaymentID     int64 `json:"payment_id"`
	ReservationID int64 `json:"reservation_id"`
}

func NewPaymentEvent(eventType string, p *payment.Payment) *PaymentEvent {
	data := map[string]interface{}{
		"payment_id":     p.ID,
		"reservation_id": p.ReservationID,
		"amount":         p.Amount.StringFixed(2),
		"status":         p.Status,
	}
	if p.RefID != nil {
		data["ref_id"] = *p.RefID
	}
	if p.FailureReason != nil {
		data["failure_reason"] = *p.FailureReason
	}
	return &PaymentEvent{
		BaseEvent:     newBase(eventType, data),
		PaymentID:     p.ID,
		ReservationID: p.ReservationID,
	}
}

type WaitlistEvent struct {
	BaseEvent
	EntryID int64 `json:"entry_id"`
	UserID  int64 `json:"user_id"`
}

func NewWaitlistEvent(eventType string, e *waitlist.Entry) *WaitlistEvent {
	data := map[string]interface{}{
		"entry_id": e.ID,
		"user_id":  e.UserID,
		"table_id": e.TableID,
		"date":     e.Date.Format(time.DateOnly),
		"start_at": e.StartAt,
		"end_at":   e.EndAt,
		"status":   e.Status,
		"position": e.Position,
	}
	if e.PaymentDeadline != nil {
		data["claim_deadline"] = *e.PaymentDeadline
	}
	if e.ReservationID != nil {
		data["reservation_id"] = *e.ReservationID
	}
	return &WaitlistEvent{
		BaseEvent: newBase(eventType, data),
		EntryID:   e.ID,
		UserID:    e.UserID,
	}
}

type SlotFreedEvent struct {
	BaseEvent
	Slot reservation.Slot `json:"slot"`
}

func NewSlotFreedEvent(slot reservation.Slot, cause string) *SlotFreedEvent {
	return &SlotFreedEvent{
		BaseEvent: newBase(EventTypeSlotFreed, map[string]interface{}{
			"table_id": slot.TableID,
			"date":     slot.Date.Format(time.DateOnly),
			"start_at": slot.Start,
			"end_at":   slot.End,
			"cause":    cause,
		}),
		Slot: slot,
	}
}
