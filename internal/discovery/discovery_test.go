package discovery

import (
	"context"
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/hackgods/doctor-scheduling/internal/apperr"
	"github.com/hackgods/doctor-scheduling/internal/directory"
)

func doctor(id, name, specialization, city string, rating float64, reviews int, fee int64) directory.DoctorProfile {
	return directory.DoctorProfile{
		ID:                id,
		Name:              name,
		Specialization:    specialization,
		Location:          directory.Location{City: city},
		Languages:         []string{"english"},
		ConsultationFee:   fee,
		Rating:            rating,
		ReviewCount:       reviews,
		ConsultationTypes: []directory.ConsultationType{directory.ConsultInPerson},
	}
}

func catalog() []directory.DoctorProfile {
	a := doctor("c3", "Dr. Anil Kumar", "Cardiologist", "Delhi", 4.5, 80, 70000)
	a.YearsExperience = 20
	a.AcceptsInsurance = true
	a.Languages = []string{"english", "hindi"}

	b := doctor("c1", "Dr. Bela Sen", "Cardiologist", "Kolkata", 4.5, 80, 50000)
	b.YearsExperience = 12
	b.Languages = []string{"bengali"}

	c := doctor("c2", "Dr. Chetan Rao", "Cardiologist", "Delhi", 4.5, 120, 90000)
	c.YearsExperience = 7
	c.AcceptsInsurance = true

	d := doctor("k1", "Dr. Divya Nair", "Cardiology", "Delhi", 4.9, 300, 40000)
	d.YearsExperience = 25

	e := doctor("d1", "Dr. Esha Patel", "Dermatologist", "Mumbai", 3.9, 15, 30000)
	e.Languages = []string{"gujarati", "english"}

	return []directory.DoctorProfile{a, b, c, d, e}
}

func ids(ds []directory.DoctorProfile) []string {
	out := make([]string, len(ds))
	for i, d := range ds {
		out[i] = d.ID
	}
	return out
}

func newEngine() (*Engine, *directory.MemoryDirectory) {
	dir := directory.NewMemoryDirectory(catalog()...)
	return NewEngine(dir, nil), dir
}

func TestSearchExactSpecializationSortedByRatingThenReviewsThenID(t *testing.T) {
	engine, _ := newEngine()

	got, err := engine.Search(context.Background(), Query{Specialization: "Cardiologist"}, SortRatingDesc)
	require.NoError(t, err)

	// all three tie on rating; c2 has more reviews, c1 < c3 by id
	assert.Equal(t, []string{"c2", "c1", "c3"}, ids(got))
}

func TestSearchIsDeterministic(t *testing.T) {
	engine, _ := newEngine()
	ctx := context.Background()

	for _, key := range []SortKey{SortRatingDesc, SortExperienceDesc, SortFeeAsc} {
		first, err := engine.Search(ctx, Query{}, key)
		require.NoError(t, err)
		for i := 0; i < 20; i++ {
			again, err := engine.Search(ctx, Query{}, key)
			require.NoError(t, err)
			require.Equal(t, ids(first), ids(again), "sort %s", key)
		}
	}
}

func TestSearchSortKeys(t *testing.T) {
	engine, _ := newEngine()
	ctx := context.Background()

	tests := []struct {
		key  SortKey
		want []string
	}{
		{SortRatingDesc, []string{"k1", "c2", "c1", "c3", "d1"}},
		{SortExperienceDesc, []string{"k1", "c3", "c1", "c2", "d1"}},
		{SortFeeAsc, []string{"d1", "k1", "c1", "c3", "c2"}},
	}
	for _, tt := range tests {
		t.Run(string(tt.key), func(t *testing.T) {
			got, err := engine.Search(ctx, Query{}, tt.key)
			require.NoError(t, err)
			assert.Equal(t, tt.want, ids(got))
		})
	}
}

func TestSearchPredicates(t *testing.T) {
	engine, _ := newEngine()
	ctx := context.Background()
	fee := int64(50000)

	tests := []struct {
		name  string
		query Query
		want  []string
	}{
		{"free text on name", Query{FreeText: "  BELA  "}, []string{"c1"}},
		{"free text on specialization", Query{FreeText: "cardio"}, []string{"k1", "c2", "c1", "c3"}},
		{"free text collapses whitespace", Query{FreeText: "dr.   esha"}, []string{"d1"}},
		{"voice text used when free text empty", Query{VoiceText: "Dermatologist"}, []string{"d1"}},
		{"free text wins over voice", Query{FreeText: "bela", VoiceText: "dermatologist"}, []string{"c1"}},
		{"city exact", Query{City: "Delhi"}, []string{"k1", "c2", "c3"}},
		{"city is case sensitive", Query{City: "delhi"}, []string{}},
		{"min rating", Query{MinRating: 4.5}, []string{"k1", "c2", "c1", "c3"}},
		{"max fee inclusive", Query{MaxFee: &fee}, []string{"k1", "c1", "d1"}},
		{"insurance", Query{RequireInsurance: true}, []string{"c2", "c3"}},
		{"language intersection", Query{Languages: []string{"Hindi", "gujarati"}}, []string{"c3", "d1"}},
		{"all predicates anded", Query{City: "Delhi", RequireInsurance: true, MaxFee: ptr(int64(80000))}, []string{"c3"}},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, err := engine.Search(ctx, tt.query, SortRatingDesc)
			require.NoError(t, err)
			assert.Equal(t, tt.want, ids(got))
		})
	}
}

func TestSearchPagination(t *testing.T) {
	engine, _ := newEngine()
	ctx := context.Background()

	page, err := engine.Search(ctx, Query{Limit: 2, Offset: 1}, SortRatingDesc)
	require.NoError(t, err)
	assert.Equal(t, []string{"c2", "c1"}, ids(page))

	empty, err := engine.Search(ctx, Query{Offset: 10}, SortRatingDesc)
	require.NoError(t, err)
	assert.Empty(t, empty)
}

func TestSearchValidation(t *testing.T) {
	engine, _ := newEngine()
	ctx := context.Background()

	tests := []struct {
		name  string
		query Query
		key   SortKey
		field string
	}{
		{"rating too high", Query{MinRating: 6}, SortRatingDesc, "minRating"},
		{"negative fee", Query{MaxFee: ptr(int64(-1))}, SortRatingDesc, "maxFee"},
		{"negative limit", Query{Limit: -1}, SortRatingDesc, "limit"},
		{"unknown sort", Query{}, SortKey("popularity"), "sort"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := engine.Search(ctx, tt.query, tt.key)
			var verr *apperr.ValidationError
			require.True(t, errors.As(err, &verr))
			assert.Equal(t, tt.field, verr.Field)
		})
	}
}

func TestSearchDoesNotMutateDirectory(t *testing.T) {
	engine, dir := newEngine()
	ctx := context.Background()

	before, err := dir.ListAll(ctx)
	require.NoError(t, err)

	got, err := engine.Search(ctx, Query{}, SortFeeAsc)
	require.NoError(t, err)
	got[0].Name = "changed"

	after, err := dir.ListAll(ctx)
	require.NoError(t, err)
	assert.Equal(t, before, after)
}

func TestParseSortKey(t *testing.T) {
	tests := map[string]SortKey{
		"":                SortRatingDesc,
		"rating":          SortRatingDesc,
		"EXPERIENCE_DESC": SortExperienceDesc,
		"fee":             SortFeeAsc,
	}
	for in, want := range tests {
		got, err := ParseSortKey(in)
		require.NoError(t, err)
		assert.Equal(t, want, got)
	}

	_, err := ParseSortKey("nearest")
	assert.ErrorIs(t, err, apperr.ErrValidation)
}

type recordingObserver struct {
	sort    string
	results int
}

func (r *recordingObserver) ObserveSearch(sort string, _ float64, results int) {
	r.sort, r.results = sort, results
}

func TestSearchReportsToObserver(t *testing.T) {
	obs := &recordingObserver{}
	engine := NewEngine(directory.NewMemoryDirectory(catalog()...), obs)

	_, err := engine.Search(context.Background(), Query{City: "Delhi"}, SortFeeAsc)
	require.NoError(t, err)
	assert.Equal(t, "fee_asc", obs.sort)
	assert.Equal(t, 3, obs.results)
}

func ptr[T any](v T) *T { return &v }
