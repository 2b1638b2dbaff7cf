package service

import (
	"net/http"
	"strings"
	"testing"
	"time"

	"github.com/norbi4050/misiones-arrienda-sub010/internal/model"
	"github.com/norbi4050/misiones-arrienda-sub010/internal/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

var roommateNow = time.Date(2026, 10, 14, 12, 0, 0, 0, time.UTC)

func newRoommates(t *testing.T) (*Roommates, *model.User) {
	t.Helper()
	db := testutil.NewDB(t)
	r := NewRoommates(db)
	clock := roommateNow
	r.now = func() time.Time {
		clock = clock.Add(time.Minute)
		return clock
	}
	return r, testutil.CreateUser(t, db, model.UserTypeInquilino)
}

func roommateInput() RoommateInput {
	return RoommateInput{
		Title:         "Habitación   luminosa en Posadas",
		Description:   "Departamento compartido cerca de la costanera, con patio.",
		City:          "Posadas",
		RoomType:      model.RoomPrivate,
		MonthlyRent:   120000,
		AvailableFrom: "2026-11-01",
	}
}

func TestRoommateSlug(t *testing.T) {
	assert.Equal(t, "habitacin-luminosa-en-posadas-abcdef12", RoommateSlug("Habitación luminosa en   Posadas!", "abcdef123456"))
	assert.Equal(t, "a-b-x", RoommateSlug("a -- b", "x"))

	long := RoommateSlug(strings.Repeat("cuarto ", 20), "12345678")
	assert.Len(t, long, maxSlugBase+9)
}

func TestParseDate(t *testing.T) {
	d, err := ParseDate("2026-11-01")
	require.NoError(t, err)
	assert.Equal(t, time.Date(2026, 11, 1, 0, 0, 0, 0, time.UTC), d)

	d, err = ParseDate("2026-11-01T18:30:00-03:00")
	require.NoError(t, err)
	assert.Equal(t, time.Date(2026, 11, 1, 0, 0, 0, 0, time.UTC), d)

	_, err = ParseDate("mañana")
	requireStatus(t, err, http.StatusBadRequest)
}

func TestCreateRoommatePost(t *testing.T) {
	r, user := newRoommates(t)

	post, err := r.Create(ctx, user.ID, roommateInput())
	require.NoError(t, err)
	assert.Equal(t, "Habitación luminosa en Posadas", post.Title)
	assert.Equal(t, DefaultProvince, post.Province)
	assert.Equal(t, model.RoommateDraft, post.Status)
	assert.True(t, post.IsActive)
	assert.True(t, strings.HasPrefix(post.Slug, "habitacin-luminosa-en-posadas-"), post.Slug)
	assert.True(t, post.IsPlaceholder)
	assert.Nil(t, post.CoverURL)
	assert.Empty(t, post.Images)

	in := roommateInput()
	in.Images = []string{"https://cdn.example.com/a.jpg", "https://cdn.example.com/b.jpg"}
	second, err := r.Create(ctx, user.ID, in)
	require.NoError(t, err)
	assert.NotEqual(t, post.Slug, second.Slug)
	require.NotNil(t, second.CoverURL)
	assert.Equal(t, "https://cdn.example.com/a.jpg", *second.CoverURL)
	assert.Equal(t, 2, second.ImagesCount)

	in = roommateInput()
	in.AvailableFrom = "2026-10-14"
	_, err = r.Create(ctx, user.ID, in)
	require.NoError(t, err, "today is accepted")

	in.AvailableFrom = "2026-10-13"
	_, err = r.Create(ctx, user.ID, in)
	requireStatus(t, err, http.StatusBadRequest)

	in = roommateInput()
	in.Title = "Cuarto <b>barato</b>"
	_, err = r.Create(ctx, user.ID, in)
	requireStatus(t, err, http.StatusBadRequest)
}

func TestRoommateVisibility(t *testing.T) {
	r, owner := newRoommates(t)
	other := testutil.CreateUser(t, r.db, model.UserTypeInquilino)

	post, err := r.Create(ctx, owner.ID, roommateInput())
	require.NoError(t, err)

	_, err = r.Get(ctx, other.ID, post.Slug)
	requireStatus(t, err, http.StatusNotFound)
	mine, err := r.Get(ctx, owner.ID, post.Slug)
	require.NoError(t, err)
	assert.Equal(t, 0, mine.ViewsCount)

	_, err = r.Publish(ctx, other.ID, post.Slug)
	requireStatus(t, err, http.StatusForbidden)
	published, err := r.Publish(ctx, owner.ID, post.Slug)
	require.NoError(t, err)
	assert.Equal(t, model.RoommatePublished, published.Status)
	require.NotNil(t, published.PublishedAt)

	seen, err := r.Get(ctx, 0, post.Slug)
	require.NoError(t, err)
	assert.Equal(t, 1, seen.ViewsCount)

	require.NoError(t, r.db.Model(&model.RoommatePost{}).Where("id = ?", post.ID).Update("is_active", false).Error)
	_, err = r.Get(ctx, other.ID, post.Slug)
	requireStatus(t, err, http.StatusNotFound)

	_, err = r.Get(ctx, owner.ID, "missing-slug")
	requireStatus(t, err, http.StatusNotFound)
}

func TestRoommateFeed(t *testing.T) {
	r, owner := newRoommates(t)

	create := func(title, city string, roomType string, rent int, from string, publish bool) *RoommateView {
		t.Helper()
		in := roommateInput()
		in.Title, in.City, in.RoomType, in.MonthlyRent, in.AvailableFrom = title, city, roomType, rent, from
		post, err := r.Create(ctx, owner.ID, in)
		require.NoError(t, err)
		if publish {
			post, err = r.Publish(ctx, owner.ID, post.Slug)
			require.NoError(t, err)
		}
		return post
	}
	cheap := create("Cuarto compartido centro", "Posadas", model.RoomShared, 80000, "2026-11-01", true)
	mid := create("Habitación privada Villa Sarita", "Posadas", model.RoomPrivate, 150000, "2026-12-01", true)
	far := create("Habitación en Oberá con jardín", "Oberá", model.RoomPrivate, 100000, "2026-11-15", true)
	create("Borrador sin publicar", "Posadas", model.RoomPrivate, 90000, "2026-11-01", false)

	page := Page{Page: 1, Limit: 12}
	slugs := func(items []RoommateView) []string {
		out := make([]string, 0, len(items))
		for _, it := range items {
			out = append(out, it.Slug)
		}
		return out
	}

	items, pagination, err := r.List(ctx, RoommateFilter{}, page)
	require.NoError(t, err)
	assert.Equal(t, int64(3), pagination.Total)
	assert.Equal(t, []string{far.Slug, mid.Slug, cheap.Slug}, slugs(items), "most recently published first")

	items, _, err = r.List(ctx, RoommateFilter{City: "posa"}, page)
	require.NoError(t, err)
	assert.ElementsMatch(t, []string{mid.Slug, cheap.Slug}, slugs(items))

	items, _, err = r.List(ctx, RoommateFilter{RoomType: model.RoomPrivate, MaxRent: intPtr(120000)}, page)
	require.NoError(t, err)
	assert.Equal(t, []string{far.Slug}, slugs(items))

	from := time.Date(2026, 11, 10, 0, 0, 0, 0, time.UTC)
	items, _, err = r.List(ctx, RoommateFilter{AvailableFrom: &from}, page)
	require.NoError(t, err)
	assert.ElementsMatch(t, []string{mid.Slug, far.Slug}, slugs(items))

	items, _, err = r.List(ctx, RoommateFilter{Query: "JARDÍN"}, page)
	require.NoError(t, err)
	assert.Equal(t, []string{far.Slug}, slugs(items))

	items, _, err = r.List(ctx, RoommateFilter{Query: "x"}, page)
	require.NoError(t, err)
	assert.Len(t, items, 3, "single character queries do not filter")

	require.NoError(t, r.db.Model(&model.RoommatePost{}).Where("id = ?", cheap.ID).Update("likes_count", 5).Error)
	items, _, err = r.List(ctx, RoommateFilter{Order: OrderTrending}, Page{Page: 1, Limit: 1})
	require.NoError(t, err)
	assert.Equal(t, []string{cheap.Slug}, slugs(items))

	_, _, err = r.List(ctx, RoommateFilter{MinRent: intPtr(200000), MaxRent: intPtr(100000)}, page)
	requireStatus(t, err, http.StatusBadRequest)
	_, _, err = r.List(ctx, RoommateFilter{Order: "popular"}, page)
	requireStatus(t, err, http.StatusBadRequest)
	_, _, err = r.List(ctx, RoommateFilter{RoomType: "SUITE"}, page)
	requireStatus(t, err, http.StatusBadRequest)
}
