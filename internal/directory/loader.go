package directory

import (
	"encoding/json"
	"fmt"
	"io"
	"sort"
	"strings"
	"time"

	"github.com/hackgods/doctor-scheduling/internal/apperr"
)

// Source catalogs disagree on field names. The loader accepts all of the
// known spellings and produces one canonical DoctorProfile per record.
type sourceDoctor struct {
	ID                  string         `json:"id"`
	Name                string         `json:"name"`
	Specialization      string         `json:"specialization"`
	Specialty           string         `json:"specialty"`
	Subspecialties      []string       `json:"subspecialties"`
	Location            *sourceAddress `json:"location"`
	Address             string         `json:"address"`
	City                string         `json:"city"`
	State               string         `json:"state"`
	Languages           []string       `json:"languages"`
	ConsultationFee     *int64         `json:"consultationFee"`
	Fee                 *int64         `json:"fee"`
	Rating              float64        `json:"rating"`
	ReviewCount         int            `json:"reviewCount"`
	Reviews             int            `json:"reviews"`
	Experience          int            `json:"experience"`
	YearsExperience     int            `json:"yearsExperience"`
	AcceptsInsurance    *bool          `json:"acceptsInsurance"`
	AcceptsAyushman     *bool          `json:"acceptsAyushman"`
	AcceptsAyushmanCard *bool          `json:"acceptsAyushmanCard"`
	ConsultationTypes   []string       `json:"consultationTypes"`
	Availability        []sourceWindow `json:"availability"`
}

type sourceAddress struct {
	Address     string  `json:"address"`
	City        string  `json:"city"`
	State       string  `json:"state"`
	Lat         float64 `json:"lat"`
	Lng         float64 `json:"lng"`
	Coordinates *struct {
		Lat float64 `json:"lat"`
		Lng float64 `json:"lng"`
	} `json:"coordinates"`
}

type sourceWindow struct {
	Date  string       `json:"date"`
	Slots []sourceSlot `json:"slots"`
}

type sourceSlot struct {
	ID              string `json:"id"`
	Time            string `json:"time"`
	Start           string `json:"start"`
	End             string `json:"end"`
	DurationMinutes int    `json:"durationMinutes"`
}

const defaultSlotLength = 30 * time.Minute

var consultAliases = map[string]ConsultationType{
	"in-person": ConsultInPerson,
	"in_person": ConsultInPerson,
	"inperson":  ConsultInPerson,
	"in person": ConsultInPerson,
	"clinic":    ConsultInPerson,
	"video":     ConsultVideo,
	"online":    ConsultVideo,
	"phone":     ConsultPhone,
	"audio":     ConsultPhone,
}

var displayTimeLayouts = []string{"3:04 PM", "3:04PM", "03:04 PM", "15:04"}

// LoadCatalog decodes a JSON array of source doctor records. Display times
// such as "10:00 AM" are interpreted in loc on the window's date.
func LoadCatalog(r io.Reader, loc *time.Location) ([]DoctorProfile, error) {
	if loc == nil {
		loc = time.UTC
	}

	var raw []sourceDoctor
	if err := json.NewDecoder(r).Decode(&raw); err != nil {
		return nil, apperr.Validation("catalog", fmt.Sprintf("decode: %v", err))
	}

	seen := make(map[string]bool, len(raw))
	out := make([]DoctorProfile, 0, len(raw))
	for i, src := range raw {
		p, err := normalizeDoctor(src, loc, fmt.Sprintf("doctors[%d]", i))
		if err != nil {
			return nil, err
		}
		if seen[p.ID] {
			return nil, apperr.Validation(fmt.Sprintf("doctors[%d].id", i), "duplicate id "+p.ID)
		}
		seen[p.ID] = true
		out = append(out, p)
	}
	return out, nil
}

func normalizeDoctor(src sourceDoctor, loc *time.Location, path string) (DoctorProfile, error) {
	p := DoctorProfile{
		ID:              strings.TrimSpace(src.ID),
		Name:            strings.TrimSpace(src.Name),
		Specialization:  firstNonEmpty(src.Specialization, src.Specialty),
		Subspecialties:  trimAll(src.Subspecialties),
		Rating:          src.Rating,
		ReviewCount:     max(src.ReviewCount, src.Reviews),
		YearsExperience: max(src.YearsExperience, src.Experience),
	}

	if p.ID == "" {
		return p, apperr.Validation(path+".id", "is required")
	}
	if p.Name == "" {
		return p, apperr.Validation(path+".name", "is required")
	}
	if p.Specialization == "" {
		return p, apperr.Validation(path+".specialization", "is required")
	}
	if p.Rating < 0 || p.Rating > 5 {
		return p, apperr.Validation(path+".rating", "must be between 0 and 5")
	}
	if p.ReviewCount < 0 {
		return p, apperr.Validation(path+".reviewCount", "must not be negative")
	}

	p.Location = Location{Address: src.Address, City: src.City, State: src.State}
	if l := src.Location; l != nil {
		p.Location = Location{
			Address: firstNonEmpty(l.Address, src.Address),
			City:    firstNonEmpty(l.City, src.City),
			State:   firstNonEmpty(l.State, src.State),
			Lat:     l.Lat,
			Lng:     l.Lng,
		}
		if l.Coordinates != nil {
			p.Location.Lat, p.Location.Lng = l.Coordinates.Lat, l.Coordinates.Lng
		}
	}
	p.Location.City = strings.TrimSpace(p.Location.City)

	switch {
	case src.ConsultationFee != nil:
		p.ConsultationFee = *src.ConsultationFee
	case src.Fee != nil:
		p.ConsultationFee = *src.Fee
	}
	if p.ConsultationFee < 0 {
		return p, apperr.Validation(path+".consultationFee", "must not be negative")
	}

	p.AcceptsInsurance = isTrue(src.AcceptsInsurance) || isTrue(src.AcceptsAyushman) || isTrue(src.AcceptsAyushmanCard)

	langs := make(map[string]bool)
	for _, l := range src.Languages {
		l = strings.ToLower(strings.TrimSpace(l))
		if l != "" && !langs[l] {
			langs[l] = true
			p.Languages = append(p.Languages, l)
		}
	}

	for _, t := range src.ConsultationTypes {
		ct, ok := consultAliases[strings.ToLower(strings.TrimSpace(t))]
		if !ok {
			return p, apperr.Validation(path+".consultationTypes", "unknown type "+t)
		}
		if !p.Offers(ct) {
			p.ConsultationTypes = append(p.ConsultationTypes, ct)
		}
	}
	if len(p.ConsultationTypes) == 0 {
		p.ConsultationTypes = []ConsultationType{ConsultInPerson}
	}

	windows := make(map[string]*AvailabilityWindow)
	for wi, w := range src.Availability {
		wpath := fmt.Sprintf("%s.availability[%d]", path, wi)
		if err := ValidateDate(wpath+".date", w.Date); err != nil {
			return p, err
		}
		win, ok := windows[w.Date]
		if !ok {
			win = &AvailabilityWindow{Date: w.Date}
			windows[w.Date] = win
		}
		for si, s := range w.Slots {
			slot, err := normalizeSlot(s, w.Date, loc, fmt.Sprintf("%s.slots[%d]", wpath, si))
			if err != nil {
				return p, err
			}
			if containsSlot(win.Slots, slot.ID) {
				continue
			}
			win.Slots = append(win.Slots, slot)
		}
	}
	for _, w := range windows {
		sort.SliceStable(w.Slots, func(i, j int) bool { return w.Slots[i].Start.Before(w.Slots[j].Start) })
		p.Availability = append(p.Availability, *w)
	}
	sort.Slice(p.Availability, func(i, j int) bool { return p.Availability[i].Date < p.Availability[j].Date })

	return p, nil
}

func normalizeSlot(s sourceSlot, date string, loc *time.Location, path string) (TimeSlot, error) {
	var start time.Time
	var err error

	switch {
	case s.Start != "":
		start, err = time.Parse(time.RFC3339, s.Start)
		if err != nil {
			return TimeSlot{}, apperr.Validation(path+".start", "must be RFC3339")
		}
	case s.Time != "":
		start, err = parseDisplayTime(date, s.Time, loc)
		if err != nil {
			return TimeSlot{}, apperr.Validation(path+".time", "unrecognised time "+s.Time)
		}
	default:
		return TimeSlot{}, apperr.Validation(path, "start or time is required")
	}

	if start.In(loc).Format(DateLayout) != date {
		return TimeSlot{}, apperr.Validation(path+".start", "does not fall on "+date)
	}

	end := start.Add(defaultSlotLength)
	if s.DurationMinutes > 0 {
		end = start.Add(time.Duration(s.DurationMinutes) * time.Minute)
	}
	if s.End != "" {
		end, err = time.Parse(time.RFC3339, s.End)
		if err != nil {
			return TimeSlot{}, apperr.Validation(path+".end", "must be RFC3339")
		}
	}
	if !end.After(start) {
		return TimeSlot{}, apperr.Validation(path+".end", "must be after start")
	}

	id := strings.TrimSpace(s.ID)
	if id == "" {
		id = start.In(loc).Format("1504")
	}
	return TimeSlot{ID: id, Start: start, End: end, Status: SlotOpen}, nil
}

func parseDisplayTime(date, value string, loc *time.Location) (time.Time, error) {
	value = strings.ToUpper(strings.TrimSpace(value))
	var lastErr error
	for _, layout := range displayTimeLayouts {
		t, err := time.ParseInLocation(DateLayout+" "+layout, date+" "+value, loc)
		if err == nil {
			return t, nil
		}
		lastErr = err
	}
	return time.Time{}, lastErr
}

func containsSlot(slots []TimeSlot, id string) bool {
	for _, s := range slots {
		if s.ID == id {
			return true
		}
	}
	return false
}

func firstNonEmpty(values ...string) string {
	for _, v := range values {
		if v = strings.TrimSpace(v); v != "" {
			return v
		}
	}
	return ""
}

func trimAll(in []string) []string {
	var out []string
	for _, s := range in {
		if s = strings.TrimSpace(s); s != "" {
			out = append(out, s)
		}
	}
	return out
}

func isTrue(b *bool) bool {
	return b != nil && *b
}
