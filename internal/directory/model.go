package directory

import (
	"slices"
	"time"

	"github.com/hackgods/doctor-scheduling/internal/apperr"
)

type SlotStatus string

const (
	SlotOpen   SlotStatus = "open"
	SlotHeld   SlotStatus = "held"
	SlotBooked SlotStatus = "booked"
)

type ConsultationType string

const (
	ConsultInPerson ConsultationType = "in-person"
	ConsultVideo    ConsultationType = "video"
	ConsultPhone    ConsultationType = "phone"
)

func (c ConsultationType) Valid() bool {
	switch c {
	case ConsultInPerson, ConsultVideo, ConsultPhone:
		return true
	}
	return false
}

// DateLayout is the calendar date format used for availability windows.
const DateLayout = "2006-01-02"

type Location struct {
	Address string  `json:"address"`
	City    string  `json:"city"`
	State   string  `json:"state"`
	Lat     float64 `json:"lat"`
	Lng     float64 `json:"lng"`
}

type TimeSlot struct {
	ID     string     `json:"id"`
	Start  time.Time  `json:"start"`
	End    time.Time  `json:"end"`
	Status SlotStatus `json:"status"`
}

type AvailabilityWindow struct {
	Date  string     `json:"date"`
	Slots []TimeSlot `json:"slots"`
}

// DoctorProfile is the canonical doctor record. ConsultationFee is in minor
// currency units.
type DoctorProfile struct {
	ID                string               `json:"id"`
	Name              string               `json:"name"`
	Specialization    string               `json:"specialization"`
	Subspecialties    []string             `json:"subspecialties"`
	Location          Location             `json:"location"`
	Languages         []string             `json:"languages"`
	ConsultationFee   int64                `json:"consultation_fee"`
	Rating            float64              `json:"rating"`
	ReviewCount       int                  `json:"review_count"`
	YearsExperience   int                  `json:"years_experience"`
	AcceptsInsurance  bool                 `json:"accepts_insurance"`
	ConsultationTypes []ConsultationType   `json:"consultation_types"`
	Availability      []AvailabilityWindow `json:"availability"`
}

// Offers reports whether the doctor supports the consultation type.
func (p DoctorProfile) Offers(t ConsultationType) bool {
	return slices.Contains(p.ConsultationTypes, t)
}

// Clone returns a deep copy so callers never share slices with the store.
func (p DoctorProfile) Clone() DoctorProfile {
	out := p
	out.Subspecialties = slices.Clone(p.Subspecialties)
	out.Languages = slices.Clone(p.Languages)
	out.ConsultationTypes = slices.Clone(p.ConsultationTypes)
	if p.Availability != nil {
		out.Availability = make([]AvailabilityWindow, len(p.Availability))
		for i, w := range p.Availability {
			out.Availability[i] = AvailabilityWindow{Date: w.Date, Slots: slices.Clone(w.Slots)}
		}
	}
	return out
}

// SlotRef addresses one slot: slot ids are only unique within a doctor's date.
type SlotRef struct {
	DoctorID string `json:"doctor_id"`
	Date     string `json:"date"`
	SlotID   string `json:"slot_id"`
}

func (r SlotRef) String() string {
	return r.DoctorID + "/" + r.Date + "/" + r.SlotID
}

// Err converts the ref into the form carried by apperr errors.
func (r SlotRef) Err() apperr.SlotRef {
	return apperr.SlotRef{DoctorID: r.DoctorID, Date: r.Date, SlotID: r.SlotID}
}

// Validate checks that all parts are present and the date is a calendar date.
func (r SlotRef) Validate() error {
	if r.DoctorID == "" {
		return apperr.Validation("doctor_id", "is required")
	}
	if err := ValidateDate("date", r.Date); err != nil {
		return err
	}
	if r.SlotID == "" {
		return apperr.Validation("slot_id", "is required")
	}
	return nil
}

// ValidateDate checks that value is a YYYY-MM-DD date, reporting field on failure.
func ValidateDate(field, value string) error {
	if value == "" {
		return apperr.Validation(field, "is required")
	}
	if _, err := time.Parse(DateLayout, value); err != nil {
		return apperr.Validation(field, "must be a YYYY-MM-DD date")
	}
	return nil
}
