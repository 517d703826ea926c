// internal/clients/clients_test.go
package clients_test

import (
	"context"
	"io"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"librarium/internal/apperr"
	"librarium/internal/clients"
)

var today = time.Date(2025, 6, 15, 18, 30, 0, 0, time.UTC)

type fakeUsers map[uuid.UUID]bool

func (f fakeUsers) UserExists(_ context.Context, id uuid.UUID) (bool, error) {
	return f[id], nil
}

func newService(users fakeUsers) clients.Service {
	return clients.NewService(clients.NewMemoryRepository(), users,
		clients.WithClock(func() time.Time { return today }),
		clients.WithLogger(slog.New(slog.NewTextHandler(io.Discard, nil))),
	)
}

func ptr[T any](v T) *T { return &v }

func newClient(userID uuid.UUID, email, name, surname string, born clients.Date) clients.NewClient {
	return clients.NewClient{UserID: userID, Email: email, Name: name, Surname: surname, Birthdate: born}
}

func TestCreateClient(t *testing.T) {
	ctx := context.Background()
	alice, bob, ghost := uuid.New(), uuid.New(), uuid.New()
	svc := newService(fakeUsers{alice: true, bob: true})

	created, err := svc.CreateClient(ctx, newClient(alice, "Alice@Example.com", "Alice", "Smith", clients.NewDate(1990, 1, 2)))
	require.NoError(t, err)
	assert.Equal(t, "alice@example.com", created.Email)
	assert.Nil(t, created.Patronymic)

	got, err := svc.GetClient(ctx, created.ID)
	require.NoError(t, err)
	assert.Equal(t, created, got)

	byUser, err := svc.GetClientByUser(ctx, alice)
	require.NoError(t, err)
	assert.Equal(t, created.ID, byUser.ID)

	testCases := []struct {
		name string
		req  clients.NewClient
		want error
		kind apperr.Kind
	}{
		{
			name: "duplicate email is checked before birthdate",
			req:  newClient(bob, "alice@example.com", "B", "B", clients.NewDate(2030, 1, 1)),
			want: clients.ErrEmailTaken,
			kind: apperr.KindConflict,
		},
		{
			name: "future birthdate is checked before the user",
			req:  newClient(ghost, "ghost@example.com", "G", "G", clients.NewDate(2025, 6, 16)),
			want: clients.ErrFutureBirthdate,
			kind: apperr.KindInvalid,
		},
		{
			name: "unknown user",
			req:  newClient(ghost, "ghost@example.com", "G", "G", clients.NewDate(2000, 1, 1)),
			want: clients.ErrUserNotFound,
			kind: apperr.KindNotFound,
		},
		{
			name: "second profile for the same user",
			req:  newClient(alice, "alice2@example.com", "A", "S", clients.NewDate(2000, 1, 1)),
			want: clients.ErrProfileExists,
			kind: apperr.KindConflict,
		},
		{
			name: "malformed email",
			req:  newClient(bob, "bob", "B", "B", clients.NewDate(2000, 1, 1)),
			want: clients.ErrInvalidEmail,
			kind: apperr.KindInvalid,
		},
		{
			name: "missing birthdate",
			req:  clients.NewClient{UserID: bob, Email: "bob@example.com", Name: "B", Surname: "B"},
			want: clients.ErrNoBirthdate,
			kind: apperr.KindInvalid,
		},
	}

	for _, tc := range testCases {
		t.Run(tc.name, func(t *testing.T) {
			_, err := svc.CreateClient(ctx, tc.req)
			assert.ErrorIs(t, err, tc.want)
			assert.Equal(t, tc.kind, apperr.KindOf(err))
		})
	}

	t.Run("born today is allowed", func(t *testing.T) {
		_, err := svc.CreateClient(ctx, newClient(bob, "bob@example.com", "Bob", "Jones", clients.NewDate(2025, 6, 15)))
		assert.NoError(t, err)
	})
}

func TestSearchClients(t *testing.T) {
	ctx := context.Background()
	u1, u2, u3 := uuid.New(), uuid.New(), uuid.New()
	svc := newService(fakeUsers{u1: true, u2: true, u3: true})

	ivan := newClient(u1, "ivan@example.com", "Ivan", "Petrov", clients.NewDate(1980, 5, 1))
	ivan.Patronymic = ptr("Sergeevich")
	for _, req := range []clients.NewClient{
		ivan,
		newClient(u2, "anna@example.com", "Anna", "Ivanova", clients.NewDate(1995, 3, 10)),
		newClient(u3, "zoe@example.com", "Zoe", "Adams", clients.NewDate(2005, 12, 31)),
	} {
		_, err := svc.CreateClient(ctx, req)
		require.NoError(t, err)
	}

	testCases := []struct {
		name     string
		criteria clients.SearchCriteria
		want     []string
	}{
		{name: "name matches name and surname", criteria: clients.SearchCriteria{Name: "ivan"}, want: []string{"Anna", "Ivan"}},
		{name: "name matches patronymic", criteria: clients.SearchCriteria{Name: "sergee"}, want: []string{"Ivan"}},
		{
			name:     "range is inclusive",
			criteria: clients.SearchCriteria{StartBirthdate: ptr(clients.NewDate(1980, 5, 1)), EndBirthdate: ptr(clients.NewDate(1995, 3, 10))},
			want:     []string{"Anna", "Ivan"},
		},
		{
			name:     "name wins over range",
			criteria: clients.SearchCriteria{Name: "zoe", StartBirthdate: ptr(clients.NewDate(1980, 1, 1)), EndBirthdate: ptr(clients.NewDate(1981, 1, 1))},
			want:     []string{"Zoe"},
		},
		{
			name:     "half a range lists everyone",
			criteria: clients.SearchCriteria{StartBirthdate: ptr(clients.NewDate(2000, 1, 1))},
			want:     []string{"Zoe", "Anna", "Ivan"},
		},
	}

	for _, tc := range testCases {
		t.Run(tc.name, func(t *testing.T) {
			found, err := svc.Search(ctx, tc.criteria)
			require.NoError(t, err)

			names := make([]string, 0, len(found))
			for _, c := range found {
				names = append(names, c.Name)
			}
			assert.Equal(t, tc.want, names)
		})
	}

	_, err := svc.Search(ctx, clients.SearchCriteria{
		StartBirthdate: ptr(clients.NewDate(2000, 1, 1)),
		EndBirthdate:   ptr(clients.NewDate(1990, 1, 1)),
	})
	assert.ErrorIs(t, err, clients.ErrInvalidRange)
}

func TestUpdateAndDeleteClient(t *testing.T) {
	ctx := context.Background()
	u1, u2 := uuid.New(), uuid.New()
	svc := newService(fakeUsers{u1: true, u2: true})

	a, err := svc.CreateClient(ctx, newClient(u1, "a@example.com", "A", "A", clients.NewDate(1990, 1, 1)))
	require.NoError(t, err)
	b, err := svc.CreateClient(ctx, newClient(u2, "b@example.com", "B", "B", clients.NewDate(1990, 1, 1)))
	require.NoError(t, err)

	updated, err := svc.UpdateClient(ctx, a.ID, clients.ClientUpdate{Patronymic: ptr("Q"), Name: ptr("Anne")})
	require.NoError(t, err)
	assert.Equal(t, "Anne", updated.Name)
	assert.Equal(t, "Q", *updated.Patronymic)
	assert.Equal(t, "a@example.com", updated.Email)

	_, err = svc.UpdateClient(ctx, a.ID, clients.ClientUpdate{Email: ptr(b.Email)})
	assert.ErrorIs(t, err, clients.ErrEmailTaken)

	_, err = svc.UpdateClient(ctx, a.ID, clients.ClientUpdate{Email: ptr("a@example.com")})
	assert.NoError(t, err)

	_, err = svc.UpdateClient(ctx, a.ID, clients.ClientUpdate{Birthdate: ptr(clients.NewDate(2026, 1, 1))})
	assert.ErrorIs(t, err, clients.ErrFutureBirthdate)

	_, err = svc.UpdateClient(ctx, uuid.New(), clients.ClientUpdate{Name: ptr("X")})
	assert.ErrorIs(t, err, clients.ErrClientNotFound)

	require.NoError(t, svc.DeleteClient(ctx, a.ID))
	exists, err := svc.ClientExists(ctx, a.ID)
	require.NoError(t, err)
	assert.False(t, exists)
	assert.ErrorIs(t, svc.DeleteClient(ctx, a.ID), clients.ErrClientNotFound)
}

func TestDateJSON(t *testing.T) {
	d, err := clients.ParseDate("1990-01-02")
	require.NoError(t, err)
	assert.Equal(t, clients.NewDate(1990, time.January, 2), d)

	raw, err := d.MarshalJSON()
	require.NoError(t, err)
	assert.Equal(t, `"1990-01-02"`, string(raw))

	var back clients.Date
	require.NoError(t, back.UnmarshalJSON(raw))
	assert.Equal(t, d, back)

	assert.Error(t, back.UnmarshalJSON([]byte(`"02/01/1990"`)))
	assert.Error(t, back.UnmarshalJSON([]byte(`19900102`)))

	var scanned clients.Date
	require.NoError(t, scanned.Scan(time.Date(1990, 1, 2, 0, 0, 0, 0, time.UTC)))
	assert.Equal(t, d, scanned)
}

func TestHandler(t *testing.T) {
	userID := uuid.New()
	h := clients.NewHandler(newService(fakeUsers{userID: true}), slog.New(slog.NewTextHandler(io.Discard, nil)))

	r := chi.NewRouter()
	r.Post("/clients", h.HandleCreate)
	r.Post("/clients/search", h.HandleSearch)
	r.Get("/clients/{id}", h.HandleGet)

	do := func(method, target, body string) *httptest.ResponseRecorder {
		rec := httptest.NewRecorder()
		r.ServeHTTP(rec, httptest.NewRequest(method, target, strings.NewReader(body)))
		return rec
	}

	rec := do(http.MethodPost, "/clients", `{"user_id":"`+userID.String()+`","email":"c@example.com","name":"C","surname":"D","birthdate":"1999-09-09"}`)
	require.Equal(t, http.StatusCreated, rec.Code)
	assert.Contains(t, rec.Body.String(), `"birthdate":"1999-09-09"`)
	assert.Contains(t, rec.Body.String(), `"patronymic":null`)

	rec = do(http.MethodPost, "/clients", `{"user_id":"`+userID.String()+`","email":"x@example.com","name":"C","surname":"D","birthdate":"2999-01-01"}`)
	assert.Equal(t, http.StatusBadRequest, rec.Code)

	rec = do(http.MethodPost, "/clients", `{"user_id":"`+userID.String()+`","birthdate":"yesterday"}`)
	assert.Equal(t, http.StatusBadRequest, rec.Code)

	rec = do(http.MethodPost, "/clients/search", `{"start_birthdate":"1999-01-01","end_birthdate":"1999-12-31"}`)
	assert.Equal(t, http.StatusOK, rec.Code)
	assert.Contains(t, rec.Body.String(), `"email":"c@example.com"`)

	rec = do(http.MethodGet, "/clients/"+uuid.NewString(), "")
	assert.Equal(t, http.StatusNotFound, rec.Code)
}
