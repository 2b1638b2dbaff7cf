package service

import (
	"net/http"
	"strings"
	"testing"
	"time"

	"github.com/norbi4050/misiones-arrienda-sub010/internal/model"
	"github.com/norbi4050/misiones-arrienda-sub010/internal/testutil"
	"github.com/norbi4050/misiones-arrienda-sub010/pkg/filevalidator"
	"github.com/norbi4050/misiones-arrienda-sub010/pkg/storage"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"gorm.io/gorm"
)

func newUsers(t *testing.T) (*Users, *gorm.DB, *storage.BlobStore) {
	t.Helper()
	db := testutil.NewDB(t)
	store := newStore(t)
	return NewUsers(db, newJWT(), store, newURLs(), filevalidator.New()), db, store
}

func TestRegisterAndLogin(t *testing.T) {
	users, _, _ := newUsers(t)

	res, err := users.Register(ctx, RegisterInput{
		Name: " Ana Gómez ", Email: "Ana@Example.com ", Password: "secreto1", UserType: model.UserTypeInquilino,
	})
	require.NoError(t, err)
	assert.NotEmpty(t, res.Token)
	assert.Equal(t, "ana@example.com", res.User.Email)
	assert.Equal(t, "Ana Gómez", res.User.Name)
	assert.NotEqual(t, "secreto1", res.User.Password)

	claims, err := newJWT().ValidateToken(res.Token)
	require.NoError(t, err)
	assert.Equal(t, res.User.ID, claims.UserID)

	login, err := users.Login(ctx, LoginInput{Email: "ANA@example.com", Password: "secreto1"})
	require.NoError(t, err)
	assert.Equal(t, res.User.ID, login.User.ID)

	_, err = users.Login(ctx, LoginInput{Email: "ana@example.com", Password: "wrong"})
	requireStatus(t, err, http.StatusUnauthorized)
	_, err = users.Login(ctx, LoginInput{Email: "nobody@example.com", Password: "secreto1"})
	requireStatus(t, err, http.StatusUnauthorized)
}

func TestRegisterRules(t *testing.T) {
	users, _, _ := newUsers(t)
	in := RegisterInput{Name: "Juan", Email: "juan@example.com", Password: "secreto1", UserType: model.UserTypeDuenoDirecto}
	_, err := users.Register(ctx, in)
	require.NoError(t, err)

	dup := in
	dup.Email = "JUAN@example.com"
	_, err = users.Register(ctx, dup)
	requireStatus(t, err, http.StatusConflict)

	_, err = users.Register(ctx, RegisterInput{Name: "Inmo", Email: "inmo@example.com", Password: "secreto1", UserType: model.UserTypeInmobiliaria})
	requireStatus(t, err, http.StatusBadRequest)
	_, err = users.Register(ctx, RegisterInput{Name: "X", Email: "x@example.com", Password: "secreto1", UserType: model.UserTypeInquilino})
	requireStatus(t, err, http.StatusBadRequest)
	_, err = users.Register(ctx, RegisterInput{Name: "Zoe", Email: "z@example.com", Password: "123", UserType: model.UserTypeInquilino})
	requireStatus(t, err, http.StatusBadRequest)
	_, err = users.Register(ctx, RegisterInput{Name: "Zoe", Email: "z@example.com", Password: "secreto1", UserType: "admin"})
	requireStatus(t, err, http.StatusBadRequest)
}

func TestUpdateProfileAndPassword(t *testing.T) {
	users, db, _ := newUsers(t)
	user := testutil.CreateUser(t, db, model.UserTypeInmobiliaria)

	bio, phone := "  Alquileres en Posadas ", "3764-000000"
	updated, err := users.UpdateProfile(ctx, user.ID, ProfileInput{Bio: &bio, Phone: &phone})
	require.NoError(t, err)
	assert.Equal(t, "Alquileres en Posadas", updated.Bio)
	assert.Equal(t, phone, updated.Phone)

	empty := " "
	_, err = users.UpdateProfile(ctx, user.ID, ProfileInput{CompanyName: &empty})
	requireStatus(t, err, http.StatusBadRequest)

	err = users.ChangePassword(ctx, user.ID, ChangePasswordInput{CurrentPassword: "nope", NewPassword: "another1"})
	requireStatus(t, err, http.StatusBadRequest)
	require.NoError(t, users.ChangePassword(ctx, user.ID, ChangePasswordInput{CurrentPassword: testutil.Password, NewPassword: "another1"}))

	_, err = users.Login(ctx, LoginInput{Email: user.Email, Password: "another1"})
	require.NoError(t, err)
}

func TestAvatarLifecycle(t *testing.T) {
	users, db, store := newUsers(t)
	user := testutil.CreateUser(t, db, model.UserTypeInquilino)

	none, err := users.Avatar(ctx, user.ID)
	require.NoError(t, err)
	assert.Nil(t, none)

	first, err := users.UploadAvatar(ctx, user.ID, UploadInput{FileName: "me.png", ContentType: filevalidator.TypePNG, Data: pngBytes(t, 120, 120)})
	require.NoError(t, err)
	assert.True(t, first.CacheBusted)
	assert.Contains(t, first.OriginalURL, "/storage/v1/object/public/avatars/")
	assert.True(t, strings.HasPrefix(first.ImageURL, first.OriginalURL+"?v="))
	firstKey, ok := storage.ExtractKey(first.OriginalURL, storage.BucketAvatars)
	require.True(t, ok)

	users.now = func() time.Time { return time.Now().Add(time.Second) }
	second, err := users.UploadAvatar(ctx, user.ID, UploadInput{FileName: "me2.png", ContentType: filevalidator.TypePNG, Data: pngBytes(t, 120, 120)})
	require.NoError(t, err)
	secondKey, ok := storage.ExtractKey(second.OriginalURL, storage.BucketAvatars)
	require.True(t, ok)
	require.NotEqual(t, firstKey, secondKey)

	exists, err := store.Exists(ctx, storage.BucketAvatars, firstKey)
	require.NoError(t, err)
	assert.False(t, exists)

	current, err := users.Avatar(ctx, user.ID)
	require.NoError(t, err)
	require.NotNil(t, current)
	assert.Contains(t, *current, second.OriginalURL)

	require.NoError(t, users.DeleteAvatar(ctx, user.ID))
	exists, err = store.Exists(ctx, storage.BucketAvatars, secondKey)
	require.NoError(t, err)
	assert.False(t, exists)

	_, err = users.UploadAvatar(ctx, user.ID, UploadInput{FileName: "doc.pdf", ContentType: filevalidator.TypePDF, Data: []byte("%PDF-1.4")})
	requireStatus(t, err, http.StatusBadRequest)

	oversized := append(pngBytes(t, 120, 120), make([]byte, filevalidator.MaxAvatarSize)...)
	_, err = users.UploadAvatar(ctx, user.ID, UploadInput{FileName: "big.png", ContentType: filevalidator.TypePNG, Data: oversized})
	requireStatus(t, err, http.StatusBadRequest)
}
