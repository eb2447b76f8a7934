// Package discovery selects and ranks candidate doctors. It only reads from
// the directory.
package discovery

import (
	"context"
	"fmt"
	"slices"
	"sort"
	"strings"
	"time"

	"github.com/hackgods/doctor-scheduling/internal/apperr"
	"github.com/hackgods/doctor-scheduling/internal/directory"
)

type SortKey string

const (
	SortRatingDesc     SortKey = "rating_desc"
	SortExperienceDesc SortKey = "experience_desc"
	SortFeeAsc         SortKey = "fee_asc"
)

// ParseSortKey maps a request value to a SortKey. Empty means rating.
func ParseSortKey(s string) (SortKey, error) {
	switch SortKey(strings.ToLower(strings.TrimSpace(s))) {
	case "", SortRatingDesc, "rating":
		return SortRatingDesc, nil
	case SortExperienceDesc, "experience":
		return SortExperienceDesc, nil
	case SortFeeAsc, "fee":
		return SortFeeAsc, nil
	}
	return "", apperr.Validation("sort", fmt.Sprintf("unknown sort key %q", s))
}

// Query holds the search criteria. Zero values mean "no constraint".
// VoiceText is a transcribed query used in place of FreeText when FreeText is empty.
type Query struct {
	FreeText         string
	VoiceText        string
	Specialization   string
	City             string
	MinRating        float64
	MaxFee           *int64
	RequireInsurance bool
	Languages        []string
	Limit            int
	Offset           int
}

// NormalizeText lower-cases s, trims it and collapses runs of whitespace.
func NormalizeText(s string) string {
	return strings.Join(strings.Fields(strings.ToLower(s)), " ")
}

func (q Query) text() string {
	if t := NormalizeText(q.FreeText); t != "" {
		return t
	}
	return NormalizeText(q.VoiceText)
}

func (q Query) validate() error {
	if q.MinRating < 0 || q.MinRating > 5 {
		return apperr.Validation("minRating", "must be between 0 and 5")
	}
	if q.MaxFee != nil && *q.MaxFee < 0 {
		return apperr.Validation("maxFee", "must not be negative")
	}
	if q.Limit < 0 {
		return apperr.Validation("limit", "must not be negative")
	}
	if q.Offset < 0 {
		return apperr.Validation("offset", "must not be negative")
	}
	return nil
}

// Lister is the read-only part of directory.Directory the engine needs.
type Lister interface {
	ListAll(ctx context.Context) ([]directory.DoctorProfile, error)
}

// SearchObserver receives search latency and result size.
type SearchObserver interface {
	ObserveSearch(sort string, seconds float64, results int)
}

type Engine struct {
	dir      Lister
	observer SearchObserver
}

func NewEngine(dir Lister, observer SearchObserver) *Engine {
	return &Engine{dir: dir, observer: observer}
}

// Search filters the catalog snapshot with every predicate ANDed, then sorts
// stably by key with ties broken by review count desc and id asc.
func (e *Engine) Search(ctx context.Context, q Query, key SortKey) ([]directory.DoctorProfile, error) {
	start := time.Now()

	if err := q.validate(); err != nil {
		return nil, err
	}
	less, err := comparator(key)
	if err != nil {
		return nil, err
	}

	all, err := e.dir.ListAll(ctx)
	if err != nil {
		return nil, fmt.Errorf("list doctors: %w", err)
	}

	result := Filter(all, q)
	sort.SliceStable(result, func(i, j int) bool { return less(result[i], result[j]) })
	result = paginate(result, q.Limit, q.Offset)

	if e.observer != nil {
		e.observer.ObserveSearch(string(key), time.Since(start).Seconds(), len(result))
	}
	return result, nil
}

// Filter returns the doctors matching every predicate in q, in input order.
func Filter(doctors []directory.DoctorProfile, q Query) []directory.DoctorProfile {
	preds := predicates(q)
	out := make([]directory.DoctorProfile, 0, len(doctors))
	for _, d := range doctors {
		if matchAll(d, preds) {
			out = append(out, d)
		}
	}
	return out
}

type predicate func(directory.DoctorProfile) bool

func matchAll(d directory.DoctorProfile, preds []predicate) bool {
	for _, p := range preds {
		if !p(d) {
			return false
		}
	}
	return true
}

func predicates(q Query) []predicate {
	var preds []predicate

	if text := q.text(); text != "" {
		preds = append(preds, func(d directory.DoctorProfile) bool {
			return strings.Contains(strings.ToLower(d.Name), text) ||
				strings.Contains(strings.ToLower(d.Specialization), text)
		})
	}
	if q.Specialization != "" {
		preds = append(preds, func(d directory.DoctorProfile) bool { return d.Specialization == q.Specialization })
	}
	if q.City != "" {
		preds = append(preds, func(d directory.DoctorProfile) bool { return d.Location.City == q.City })
	}
	if q.MinRating > 0 {
		preds = append(preds, func(d directory.DoctorProfile) bool { return d.Rating >= q.MinRating })
	}
	if q.MaxFee != nil {
		maxFee := *q.MaxFee
		preds = append(preds, func(d directory.DoctorProfile) bool { return d.ConsultationFee <= maxFee })
	}
	if q.RequireInsurance {
		preds = append(preds, func(d directory.DoctorProfile) bool { return d.AcceptsInsurance })
	}
	if langs := normalizeLanguages(q.Languages); len(langs) > 0 {
		preds = append(preds, func(d directory.DoctorProfile) bool {
			for _, l := range d.Languages {
				if slices.Contains(langs, strings.ToLower(l)) {
					return true
				}
			}
			return false
		})
	}
	return preds
}

func normalizeLanguages(in []string) []string {
	var out []string
	for _, l := range in {
		if l = strings.ToLower(strings.TrimSpace(l)); l != "" {
			out = append(out, l)
		}
	}
	return out
}

type lessFunc func(a, b directory.DoctorProfile) bool

func comparator(key SortKey) (lessFunc, error) {
	var primary func(a, b directory.DoctorProfile) int

	switch key {
	case SortRatingDesc, "":
		primary = func(a, b directory.DoctorProfile) int { return cmpDesc(a.Rating, b.Rating) }
	case SortExperienceDesc:
		primary = func(a, b directory.DoctorProfile) int { return cmpDesc(a.YearsExperience, b.YearsExperience) }
	case SortFeeAsc:
		primary = func(a, b directory.DoctorProfile) int { return cmpDesc(b.ConsultationFee, a.ConsultationFee) }
	default:
		return nil, apperr.Validation("sort", fmt.Sprintf("unknown sort key %q", key))
	}

	return func(a, b directory.DoctorProfile) bool {
		if c := primary(a, b); c != 0 {
			return c < 0
		}
		if a.ReviewCount != b.ReviewCount {
			return a.ReviewCount > b.ReviewCount
		}
		return a.ID < b.ID
	}, nil
}

// cmpDesc orders larger values first.
func cmpDesc[T int | int64 | float64](a, b T) int {
	switch {
	case a > b:
		return -1
	case a < b:
		return 1
	}
	return 0
}

func paginate(in []directory.DoctorProfile, limit, offset int) []directory.DoctorProfile {
	if offset >= len(in) {
		return []directory.DoctorProfile{}
	}
	in = in[offset:]
	if limit > 0 && limit < len(in) {
		in = in[:limit]
	}
	return in
}
