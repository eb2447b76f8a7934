package main

import (
	"fmt"
	"time"

	"github.com/brianvoe/gofakeit/v7"

	"github.com/hackgods/doctor-scheduling/internal/directory"
)

var specializations = []string{
	"Cardiologist",
	"Dermatologist",
	"General Physician",
	"Orthopedist",
	"Endocrinologist",
	"Neurologist",
	"Pediatrician",
	"Psychiatrist",
	"Ophthalmologist",
	"ENT Specialist",
}

var languages = []string{"english", "hindi", "marathi", "tamil", "telugu", "kannada", "bengali"}

var consultationTypes = []directory.ConsultationType{
	directory.ConsultInPerson,
	directory.ConsultVideo,
	directory.ConsultPhone,
}

const slotLength = 30 * time.Minute

type generator struct {
	faker *gofakeit.Faker
	loc   *time.Location
}

func newGenerator(faker *gofakeit.Faker, loc *time.Location) *generator {
	if loc == nil {
		loc = time.UTC
	}
	return &generator{faker: faker, loc: loc}
}

func (g *generator) doctors(count int, start time.Time, days int) []directory.DoctorProfile {
	out := make([]directory.DoctorProfile, 0, count)
	for i := 0; i < count; i++ {
		out = append(out, g.doctor(i, start, days))
	}
	return out
}

func (g *generator) doctor(i int, start time.Time, days int) directory.DoctorProfile {
	f := g.faker
	addr := f.Address()

	p := directory.DoctorProfile{
		ID:             fmt.Sprintf("doc-%04d", i+1),
		Name:           "Dr. " + f.Name(),
		Specialization: specializations[f.Number(0, len(specializations)-1)],
		Location: directory.Location{
			Address: addr.Street,
			City:    addr.City,
			State:   addr.State,
			Lat:     addr.Latitude,
			Lng:     addr.Longitude,
		},
		Languages:         g.pickLanguages(),
		ConsultationFee:   int64(f.Number(3, 30)) * 5000,
		Rating:            float64(f.Number(30, 50)) / 10,
		ReviewCount:       f.Number(0, 800),
		YearsExperience:   f.Number(1, 40),
		AcceptsInsurance:  f.Bool(),
		ConsultationTypes: g.pickTypes(),
	}

	for d := 0; d < days; d++ {
		day := start.AddDate(0, 0, d)
		if w := g.window(day); len(w.Slots) > 0 {
			p.Availability = append(p.Availability, w)
		}
	}
	return p
}

// window opens a random run of 30 minute slots between 09:00 and 18:00.
func (g *generator) window(day time.Time) directory.AvailabilityWindow {
	date := day.Format(directory.DateLayout)
	w := directory.AvailabilityWindow{Date: date}

	first := g.faker.Number(9*2, 15*2)
	n := g.faker.Number(0, 18*2-first)
	y, m, d := day.Date()
	for k := 0; k < n; k++ {
		half := first + k
		slotStart := time.Date(y, m, d, half/2, (half%2)*30, 0, 0, g.loc)
		w.Slots = append(w.Slots, directory.TimeSlot{
			ID:     slotStart.Format("1504"),
			Start:  slotStart,
			End:    slotStart.Add(slotLength),
			Status: directory.SlotOpen,
		})
	}
	return w
}

func (g *generator) pickLanguages() []string {
	out := []string{"english"}
	for _, l := range languages[1:] {
		if g.faker.Number(0, 3) == 0 {
			out = append(out, l)
		}
	}
	return out
}

func (g *generator) pickTypes() []directory.ConsultationType {
	out := []directory.ConsultationType{directory.ConsultInPerson}
	for _, t := range consultationTypes[1:] {
		if g.faker.Bool() {
			out = append(out, t)
		}
	}
	return out
}
