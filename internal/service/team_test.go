package service

import (
	"fmt"
	"net/http"
	"strings"
	"testing"

	"github.com/norbi4050/misiones-arrienda-sub010/internal/model"
	"github.com/norbi4050/misiones-arrienda-sub010/internal/testutil"
	"github.com/norbi4050/misiones-arrienda-sub010/pkg/apperr"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestTeamAddAndList(t *testing.T) {
	db := testutil.NewDB(t)
	team := NewTeam(db)
	agency := testutil.CreateUser(t, db, model.UserTypeInmobiliaria)
	owner := testutil.CreateUser(t, db, model.UserTypeDuenoDirecto)

	_, err := team.Add(ctx, owner.ID, TeamMemberInput{Name: "Ana"})
	requireStatus(t, err, http.StatusForbidden)
	_, err = team.Add(ctx, agency.ID, TeamMemberInput{Name: "   "})
	requireStatus(t, err, http.StatusBadRequest)
	_, err = team.Add(ctx, agency.ID, TeamMemberInput{Name: strings.Repeat("n", 101)})
	requireStatus(t, err, http.StatusBadRequest)

	second, err := team.Add(ctx, agency.ID, TeamMemberInput{Name: " Bruno ", DisplayOrder: 2})
	require.NoError(t, err)
	assert.Equal(t, "Bruno", second.Name)
	assert.True(t, second.IsActive)
	first, err := team.Add(ctx, agency.ID, TeamMemberInput{Name: "Ana", PhotoURL: "https://cdn.example.com/ana.jpg", DisplayOrder: 1})
	require.NoError(t, err)

	_, err = team.Add(ctx, agency.ID, TeamMemberInput{Name: "Carla"})
	requireStatus(t, err, http.StatusBadRequest)
	appErr, ok := apperr.As(err)
	require.True(t, ok)
	assert.Equal(t, TeamLimitDetails{CurrentCount: 2, MaxAllowed: model.MaxAgencyTeamMembers}, appErr.Details)

	members, err := team.List(ctx, agency.ID)
	require.NoError(t, err)
	require.Len(t, members, 2)
	assert.Equal(t, first.ID, members[0].ID)
	assert.Equal(t, second.ID, members[1].ID)

	// a removed member frees a slot and leaves the public list
	require.NoError(t, team.Remove(ctx, agency.ID, first.ID))
	members, err = team.List(ctx, agency.ID)
	require.NoError(t, err)
	require.Len(t, members, 1)
	_, err = team.Add(ctx, agency.ID, TeamMemberInput{Name: "Carla"})
	require.NoError(t, err)

	requireStatus(t, team.Remove(ctx, owner.ID, second.ID), http.StatusNotFound)
	requireStatus(t, team.Remove(ctx, agency.ID, 9999), http.StatusNotFound)

	none, err := team.List(ctx, owner.ID)
	require.NoError(t, err)
	assert.Empty(t, none)
}

func TestTeamSave(t *testing.T) {
	db := testutil.NewDB(t)
	team := NewTeam(db)
	agency := testutil.CreateUser(t, db, model.UserTypeInmobiliaria)
	rival := testutil.CreateUser(t, db, model.UserTypeInmobiliaria)

	existing, err := team.Add(ctx, agency.ID, TeamMemberInput{Name: "Ana", DisplayOrder: 1})
	require.NoError(t, err)
	foreign, err := team.Add(ctx, rival.ID, TeamMemberInput{Name: "Rival"})
	require.NoError(t, err)

	saved, err := team.Save(ctx, agency.ID, []TeamMemberUpsert{
		{ID: fmt.Sprint(existing.ID), Name: "Ana María", DisplayOrder: intPtr(2)},
		{ID: NewMemberPrefix + "1", Name: "Bruno", DisplayOrder: intPtr(1)},
		{ID: NewMemberPrefix + "2", Name: "Carla", IsActive: boolPtr(false)},
	})
	require.NoError(t, err)
	require.Len(t, saved, 3)
	assert.Equal(t, existing.ID, saved[0].ID)
	assert.Equal(t, "Ana María", saved[0].Name)
	assert.Equal(t, 2, saved[0].DisplayOrder)
	assert.False(t, saved[2].IsActive)

	members, err := team.List(ctx, agency.ID)
	require.NoError(t, err)
	require.Len(t, members, 2)
	assert.Equal(t, "Bruno", members[0].Name)

	// a third active member rolls back the whole batch
	_, err = team.Save(ctx, agency.ID, []TeamMemberUpsert{
		{ID: fmt.Sprint(saved[2].ID), Name: "Carla", IsActive: boolPtr(true)},
		{ID: NewMemberPrefix + "3", Name: "Diego"},
	})
	requireStatus(t, err, http.StatusBadRequest)
	var total int64
	require.NoError(t, db.Model(&model.AgencyTeamMember{}).Where("agency_id = ?", agency.ID).Count(&total).Error)
	assert.Equal(t, int64(3), total)

	_, err = team.Save(ctx, agency.ID, []TeamMemberUpsert{{ID: fmt.Sprint(foreign.ID), Name: "Mine now"}})
	requireStatus(t, err, http.StatusNotFound)
	_, err = team.Save(ctx, agency.ID, []TeamMemberUpsert{{ID: "abc", Name: "Bad id"}})
	requireStatus(t, err, http.StatusBadRequest)
	_, err = team.Save(ctx, agency.ID, []TeamMemberUpsert{{ID: NewMemberPrefix + "4", Name: ""}})
	requireStatus(t, err, http.StatusBadRequest)
}
