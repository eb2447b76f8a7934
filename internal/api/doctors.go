package api

import (
	"context"
	"net/http"
	"strconv"
	"strings"

	"github.com/go-chi/chi/v5"

	"github.com/hackgods/doctor-scheduling/internal/apperr"
	"github.com/hackgods/doctor-scheduling/internal/directory"
	"github.com/hackgods/doctor-scheduling/internal/discovery"
	"github.com/hackgods/doctor-scheduling/pkg/logging"
)

type DoctorSearcher interface {
	Search(ctx context.Context, q discovery.Query, key discovery.SortKey) ([]directory.DoctorProfile, error)
}

type DoctorReader interface {
	GetByID(ctx context.Context, id string) (directory.DoctorProfile, error)
}

func searchDoctorsHandler(search DoctorSearcher, logger *logging.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		q, key, err := parseSearchQuery(r)
		if err != nil {
			handleError(w, r, logger, err)
			return
		}

		doctors, err := search.Search(r.Context(), q, key)
		if err != nil {
			handleError(w, r, logger, err)
			return
		}
		if doctors == nil {
			doctors = []directory.DoctorProfile{}
		}

		writeJSON(w, http.StatusOK, DoctorSearchResponse{
			Doctors: doctors,
			Count:   len(doctors),
			Sort:    string(key),
		})
	}
}

func getDoctorHandler(doctors DoctorReader, logger *logging.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		p, err := doctors.GetByID(r.Context(), chi.URLParam(r, "id"))
		if err != nil {
			handleError(w, r, logger, err)
			return
		}
		writeJSON(w, http.StatusOK, p)
	}
}

func parseSearchQuery(r *http.Request) (discovery.Query, discovery.SortKey, error) {
	v := r.URL.Query()
	q := discovery.Query{
		FreeText:       v.Get("text"),
		VoiceText:      v.Get("voice"),
		Specialization: v.Get("specialization"),
		City:           v.Get("city"),
	}

	for _, raw := range v["lang"] {
		for _, l := range strings.Split(raw, ",") {
			if l = strings.TrimSpace(l); l != "" {
				q.Languages = append(q.Languages, l)
			}
		}
	}

	var err error
	if s := v.Get("minRating"); s != "" {
		if q.MinRating, err = strconv.ParseFloat(s, 64); err != nil {
			return q, "", apperr.Validation("minRating", "must be a number")
		}
	}
	if s := v.Get("maxFee"); s != "" {
		fee, err := strconv.ParseInt(s, 10, 64)
		if err != nil {
			return q, "", apperr.Validation("maxFee", "must be an integer amount in minor units")
		}
		q.MaxFee = &fee
	}
	if s := v.Get("insurance"); s != "" {
		if q.RequireInsurance, err = strconv.ParseBool(s); err != nil {
			return q, "", apperr.Validation("insurance", "must be true or false")
		}
	}
	if q.Limit, err = intParam(v.Get("limit"), "limit"); err != nil {
		return q, "", err
	}
	if q.Offset, err = intParam(v.Get("offset"), "offset"); err != nil {
		return q, "", err
	}

	key, err := discovery.ParseSortKey(v.Get("sort"))
	if err != nil {
		return q, "", err
	}
	return q, key, nil
}

func intParam(s, field string) (int, error) {
	if s == "" {
		return 0, nil
	}
	n, err := strconv.Atoi(s)
	if err != nil {
		return 0, apperr.Validation(field, "must be an integer")
	}
	return n, nil
}
