package api

import (
	"bytes"
	"context"
	"encoding/json"
	"io"
	"net"
	"net/http"
	"net/http/httptest"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/gorilla/websocket"
	"github.com/pkg/errors"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/dorominseok/festival-pj/app/models"
	"github.com/dorominseok/festival-pj/app/proc"
	"github.com/dorominseok/festival-pj/app/review"
	"github.com/dorominseok/festival-pj/app/session"
	"github.com/dorominseok/festival-pj/app/store"
	"github.com/dorominseok/festival-pj/app/wishlist"
)

var testNow = time.Date(2024, 6, 10, 12, 0, 0, 0, time.UTC)

func ptr(v float64) *float64 { return &v }

func testFestivals() []models.Festival {
	return []models.Festival{
		{ID: 1, Title: "Jazz Night", Categories: []string{"music"}, EndDate: "2024-06-20", AverageRating: ptr(3.1),
			Lat: ptr(37.56), Lng: ptr(126.97)},
		{ID: 2, Title: "Food Market", Categories: []string{"food"}, EndDate: "2024-06-12", AverageRating: ptr(4.7),
			Lat: ptr(35.85), Lng: ptr(129.23)},
		{ID: 3, Title: "Spring Jazz", Categories: []string{"music"}, EndDate: "2024-06-05", AverageRating: ptr(4.0)},
		{ID: 4, Title: "Old Fair", EndDate: "2024-05-01"},
	}
}

type testEnv struct {
	ts      *httptest.Server
	srv     *Server
	backend *fakeBackend
	db      *store.BoltStore
}

func prep(t *testing.T) *testEnv {
	backend := newFakeBackend()
	backend.festivals = testFestivals()

	db, err := store.NewBoltStore(filepath.Join(t.TempDir(), "catalog.db"))
	require.NoError(t, err)
	moderator, err := review.NewModerator(backend, review.Opts{BadWords: proc.DefaultBadWords})
	require.NoError(t, err)

	conf := proc.Conf{}
	conf.Server.RateLimit = 1000
	conf.SetDefaults()

	sess := session.NewStore(backend)
	wl := wishlist.NewStore(backend, sess)
	srv := &Server{
		Version:   "test",
		Conf:      conf,
		Backend:   backend,
		Session:   sess,
		Wishlist:  wl,
		Snapshots: db,
		Moderator: moderator,
		Now:       func() time.Time { return testNow },
	}
	ts := httptest.NewServer(srv.routes())
	t.Cleanup(func() {
		srv.streams.closeAll()
		ts.Close()
		wl.Close()
		_ = moderator.Close()
		_ = db.Close()
	})
	return &testEnv{ts: ts, srv: srv, backend: backend, db: db}
}

func (e *testEnv) call(t *testing.T, method, path string, body interface{}) (code int, data []byte) {
	var rdr io.Reader
	if body != nil {
		b, err := json.Marshal(body)
		require.NoError(t, err)
		rdr = bytes.NewReader(b)
	}
	req, err := http.NewRequest(method, e.ts.URL+path, rdr)
	require.NoError(t, err)
	req.Header.Set("Content-Type", "application/json")
	resp, err := http.DefaultClient.Do(req)
	require.NoError(t, err)
	defer resp.Body.Close()
	data, err = io.ReadAll(resp.Body)
	require.NoError(t, err)
	return resp.StatusCode, data
}

func (e *testEnv) login(t *testing.T, email string) {
	code, body := e.call(t, "POST", "/api/v1/login", map[string]string{"email": email, "password": "secret"})
	require.Equal(t, http.StatusOK, code, string(body))
	e.srv.Wishlist.Wait()
}

func festivalIDs(t *testing.T, data []byte) []int64 {
	var list []models.Festival
	require.NoError(t, json.Unmarshal(data, &list), string(data))
	res := []int64{}
	for _, f := range list {
		res = append(res, f.ID)
	}
	return res
}

func TestServer_Ping(t *testing.T) {
	e := prep(t)
	resp, err := http.Get(e.ts.URL + "/ping")
	require.NoError(t, err)
	defer resp.Body.Close()
	body, err := io.ReadAll(resp.Body)
	require.NoError(t, err)
	assert.Equal(t, http.StatusOK, resp.StatusCode)
	assert.Equal(t, "pong", string(body))
	assert.Equal(t, "festival-pj", resp.Header.Get("App-Name"))
}

func TestServer_LoginLogout(t *testing.T) {
	e := prep(t)

	code, _ := e.call(t, "GET", "/api/v1/me", nil)
	assert.Equal(t, http.StatusUnauthorized, code)

	code, body := e.call(t, "POST", "/api/v1/login", map[string]string{"email": "user@example.com", "password": "nope"})
	assert.Equal(t, http.StatusUnauthorized, code)
	assert.Contains(t, string(body), "invalid email or password")

	code, _ = e.call(t, "POST", "/api/v1/login", map[string]string{"email": " "})
	assert.Equal(t, http.StatusBadRequest, code)

	code, body = e.call(t, "POST", "/api/v1/login", map[string]string{"email": "user@example.com", "password": "secret"})
	require.Equal(t, http.StatusOK, code)
	u := models.User{}
	require.NoError(t, json.Unmarshal(body, &u))
	assert.Equal(t, int64(1), u.ID)

	code, body = e.call(t, "GET", "/api/v1/me", nil)
	assert.Equal(t, http.StatusOK, code)
	assert.Contains(t, string(body), `"name":"dana"`)

	code, _ = e.call(t, "POST", "/api/v1/logout", nil)
	assert.Equal(t, http.StatusOK, code)
	assert.Nil(t, e.srv.Session.Current())
	code, _ = e.call(t, "GET", "/api/v1/me", nil)
	assert.Equal(t, http.StatusUnauthorized, code)
}

func TestServer_Signup(t *testing.T) {
	e := prep(t)
	code, body := e.call(t, "POST", "/api/v1/signup",
		map[string]interface{}{"name": "kim", "email": "kim@example.com", "password": "pw", "interests": []string{"food"}})
	require.Equal(t, http.StatusCreated, code, string(body))
	assert.Contains(t, string(body), `"email":"kim@example.com"`)
	assert.Nil(t, e.srv.Session.Current(), "signup doesn't log in")

	code, _ = e.call(t, "POST", "/api/v1/signup", map[string]interface{}{"name": "kim", "email": "kim@example.com", "password": "pw"})
	assert.Equal(t, http.StatusBadRequest, code, "duplicate rejected by backend")

	code, _ = e.call(t, "POST", "/api/v1/signup", map[string]interface{}{"email": "x@example.com"})
	assert.Equal(t, http.StatusBadRequest, code)
}

func TestServer_UpdateMe(t *testing.T) {
	e := prep(t)
	e.login(t, "admin@example.com")

	code, body := e.call(t, "PUT", "/api/v1/me", map[string]interface{}{"interests": "food, music,,"})
	require.Equal(t, http.StatusOK, code, string(body))
	cur := e.srv.Session.Current()
	require.NotNil(t, cur)
	assert.Equal(t, []string{"food", "music"}, cur.Interests)
	assert.True(t, cur.Admin, "role kept")

	code, _ = e.call(t, "PUT", "/api/v1/me", map[string]interface{}{"name": "boss", "interests": []string{"art"}})
	require.Equal(t, http.StatusOK, code)
	cur = e.srv.Session.Current()
	assert.Equal(t, "boss", cur.Name)
	assert.Equal(t, []string{"art"}, cur.Interests)

	code, _ = e.call(t, "PUT", "/api/v1/me", map[string]interface{}{"interests": []string{}})
	require.Equal(t, http.StatusOK, code)
	cur = e.srv.Session.Current()
	assert.Equal(t, "boss", cur.Name, "name unchanged")
	assert.Empty(t, cur.Interests, "empty list clears interests")

	code, _ = e.call(t, "PUT", "/api/v1/me", map[string]interface{}{"interests": 5})
	assert.Equal(t, http.StatusBadRequest, code)
}

func TestServer_Feed(t *testing.T) {
	e := prep(t)

	code, body := e.call(t, "GET", "/api/v1/feed", nil)
	require.Equal(t, http.StatusOK, code)
	assert.Equal(t, []int64{1, 2}, festivalIDs(t, body), "ongoing by default")

	_, body = e.call(t, "GET", "/api/v1/feed?view=ended", nil)
	assert.Equal(t, []int64{3}, festivalIDs(t, body))

	_, body = e.call(t, "GET", "/api/v1/feed?view=ended&q=JAZZ", nil)
	assert.Equal(t, []int64{3}, festivalIDs(t, body))
	_, body = e.call(t, "GET", "/api/v1/feed?q=market", nil)
	assert.Equal(t, []int64{2}, festivalIDs(t, body))

	_, body = e.call(t, "GET", "/api/v1/feed?sort=rating", nil)
	assert.Equal(t, []int64{2, 1}, festivalIDs(t, body))

	_, body = e.call(t, "GET", "/api/v1/feed?sort=nearby", nil)
	assert.Equal(t, []int64{2, 1}, festivalIDs(t, body), "default origin is next to the food market")

	_, body = e.call(t, "GET", "/api/v1/feed?sort=recommended", nil)
	assert.Equal(t, []int64{1, 2}, festivalIDs(t, body))
	assert.False(t, e.backend.called("recommended"), "no recommended fetch without session")
}

func TestServer_FeedRecommended(t *testing.T) {
	e := prep(t)
	e.backend.set(func(b *fakeBackend) {
		b.festivals = append(b.festivals, models.Festival{ID: 5, Title: "Rock", Categories: []string{"music"}, EndDate: "2024-06-30"})
		b.recommended = []models.Festival{b.festivals[1], b.festivals[4], b.festivals[2]}
	})
	e.login(t, "user@example.com") // interests: music

	_, body := e.call(t, "GET", "/api/v1/feed?sort=recommended", nil)
	assert.Equal(t, []int64{5, 2}, festivalIDs(t, body), "recommended subset, music first, ended dropped")

	e.backend.set(func(b *fakeBackend) { b.recErr = errors.New("timeout") })
	_, body = e.call(t, "GET", "/api/v1/feed?sort=recommended", nil)
	assert.Equal(t, []int64{1, 5, 2}, festivalIDs(t, body), "raw list on failure, music first")
}

func TestServer_FeedSnapshotFallback(t *testing.T) {
	e := prep(t)
	e.backend.set(func(b *fakeBackend) { b.festErr = errors.New("backend down") })
	code, _ := e.call(t, "GET", "/api/v1/feed", nil)
	assert.Equal(t, http.StatusBadGateway, code, "no snapshot yet")

	e.backend.set(func(b *fakeBackend) { b.festErr = nil })
	code, _ = e.call(t, "GET", "/api/v1/feed", nil)
	require.Equal(t, http.StatusOK, code)

	e.backend.set(func(b *fakeBackend) { b.festErr = errors.New("backend down") })
	code, body := e.call(t, "GET", "/api/v1/feed", nil)
	require.Equal(t, http.StatusOK, code)
	assert.Equal(t, []int64{1, 2}, festivalIDs(t, body))
}

func TestServer_Upcoming(t *testing.T) {
	e := prep(t)
	e.backend.set(func(b *fakeBackend) { b.upcoming = b.festivals[:1] })
	code, body := e.call(t, "GET", "/api/v1/festivals/upcoming", nil)
	require.Equal(t, http.StatusOK, code)
	assert.Equal(t, []int64{1}, festivalIDs(t, body))
}

func TestServer_FestivalDetail(t *testing.T) {
	e := prep(t)
	e.backend.set(func(b *fakeBackend) {
		b.products[1] = []models.Product{{ID: 11, FestivalID: 1, Name: "ticket", Price: 20000}}
		b.reviews = []models.Review{
			{ID: 1, FestivalID: 1, UserID: 3, Rating: 5, Content: "<b>great</b>"},
			{ID: 2, FestivalID: 1, UserID: 4, Rating: 1, Content: "존나 awful"},
			{ID: 3, FestivalID: 2, UserID: 4, Rating: 4, Content: "other festival"},
		}
		b.eligible = true
	})

	code, body := e.call(t, "GET", "/api/v1/festivals/1", nil)
	require.Equal(t, http.StatusOK, code, string(body))
	res := festivalDetail{}
	require.NoError(t, json.Unmarshal(body, &res))
	assert.Equal(t, "Jazz Night", res.Festival.Title)
	require.Len(t, res.Reviews, 2)
	assert.Equal(t, "great", res.Reviews[0].Content)
	assert.False(t, res.Reviews[0].Toxic)
	assert.True(t, res.Reviews[1].Toxic)
	require.NotNil(t, res.Reviews[1].Toxicity)
	assert.Equal(t, "insult", res.Reviews[1].Toxicity.LabelName)
	assert.Len(t, res.Products, 1)
	assert.False(t, res.CanReview, "no session, no eligibility")

	e.login(t, "user@example.com")
	_, body = e.call(t, "GET", "/api/v1/festivals/1", nil)
	require.NoError(t, json.Unmarshal(body, &res))
	assert.True(t, res.CanReview)

	code, _ = e.call(t, "GET", "/api/v1/festivals/42", nil)
	assert.Equal(t, http.StatusNotFound, code)
	code, _ = e.call(t, "GET", "/api/v1/festivals/abc", nil)
	assert.Equal(t, http.StatusBadRequest, code)
}

func TestServer_FestivalProductsFromSnapshot(t *testing.T) {
	e := prep(t)
	require.NoError(t, e.db.SaveProducts(2, []models.Product{{ID: 21, FestivalID: 2, Name: "stored"}}))
	e.backend.set(func(b *fakeBackend) { b.prodErr = errors.New("products down") })

	_, body := e.call(t, "GET", "/api/v1/festivals/2", nil)
	res := festivalDetail{}
	require.NoError(t, json.Unmarshal(body, &res))
	require.Len(t, res.Products, 1)
	assert.Equal(t, "stored", res.Products[0].Name)

	_, body = e.call(t, "GET", "/api/v1/festivals/1", nil)
	require.NoError(t, json.Unmarshal(body, &res))
	assert.NotNil(t, res.Products)
	assert.Empty(t, res.Products)
}

func TestServer_Wishlist(t *testing.T) {
	e := prep(t)
	e.backend.set(func(b *fakeBackend) { b.wishlists[1] = []int64{2} })
	e.login(t, "user@example.com")

	code, body := e.call(t, "GET", "/api/v1/wishlist", nil)
	require.Equal(t, http.StatusOK, code)
	assert.Contains(t, string(body), `"state":"ready"`)
	assert.Contains(t, string(body), `"title":"Food Market"`)

	code, body = e.call(t, "POST", "/api/v1/wishlist/1", nil)
	require.Equal(t, http.StatusOK, code, string(body))
	assert.Contains(t, string(body), `"wishlisted":true`)
	e.srv.Wishlist.Wait()
	assert.True(t, e.srv.Wishlist.IsWishlisted(1))
	e.backend.set(func(b *fakeBackend) { assert.Equal(t, []int64{2, 1}, b.wishlists[1]) })

	code, body = e.call(t, "POST", "/api/v1/wishlist/2", nil)
	require.Equal(t, http.StatusOK, code)
	assert.Contains(t, string(body), `"wishlisted":false`)
	e.srv.Wishlist.Wait()

	code, _ = e.call(t, "POST", "/api/v1/wishlist/99", nil)
	assert.Equal(t, http.StatusNotFound, code)
	code, _ = e.call(t, "POST", "/api/v1/wishlist/0", nil)
	assert.Equal(t, http.StatusBadRequest, code)
}

func TestServer_Reservations(t *testing.T) {
	e := prep(t)
	code, _ := e.call(t, "GET", "/api/v1/reservations", nil)
	assert.Equal(t, http.StatusUnauthorized, code)

	e.login(t, "user@example.com")
	code, _ = e.call(t, "POST", "/api/v1/reservations", map[string]interface{}{"festivalId": 1, "productId": 11})
	assert.Equal(t, http.StatusBadRequest, code, "head count required")

	code, body := e.call(t, "POST", "/api/v1/reservations",
		map[string]interface{}{"userId": 77, "festivalId": 1, "productId": 11, "headCount": 2, "date": "2024-06-15", "time": "18:00"})
	require.Equal(t, http.StatusCreated, code, string(body))
	res := models.Reservation{}
	require.NoError(t, json.Unmarshal(body, &res))
	assert.Equal(t, int64(1), res.UserID, "user taken from session")

	_, body = e.call(t, "GET", "/api/v1/reservations", nil)
	list := []models.Reservation{}
	require.NoError(t, json.Unmarshal(body, &list))
	require.Len(t, list, 1)

	code, body = e.call(t, "PUT", "/api/v1/reservations/"+jsonID(res.ID)+"/cancel", nil)
	require.Equal(t, http.StatusOK, code)
	assert.Contains(t, string(body), `"status":"CANCELLED"`)

	code, _ = e.call(t, "PUT", "/api/v1/reservations/9999/cancel", nil)
	assert.Equal(t, http.StatusNotFound, code)
}

func TestServer_Reviews(t *testing.T) {
	e := prep(t)
	e.login(t, "user@example.com")

	newReview := map[string]interface{}{"festivalId": 1, "rating": 5, "content": "<i>lovely</i> evening"}
	code, _ := e.call(t, "POST", "/api/v1/reviews", newReview)
	assert.Equal(t, http.StatusForbidden, code, "not eligible")

	e.backend.set(func(b *fakeBackend) { b.eligible = true })
	code, body := e.call(t, "POST", "/api/v1/reviews", newReview)
	require.Equal(t, http.StatusCreated, code, string(body))
	rv := models.Review{}
	require.NoError(t, json.Unmarshal(body, &rv))
	assert.Equal(t, "lovely evening", rv.Content, "sanitized before sending")
	require.NotNil(t, rv.Toxicity)

	code, _ = e.call(t, "POST", "/api/v1/reviews", map[string]interface{}{"festivalId": 1, "rating": 9, "content": "x"})
	assert.Equal(t, http.StatusBadRequest, code)
	code, _ = e.call(t, "POST", "/api/v1/reviews", map[string]interface{}{"festivalId": 1, "rating": 3, "content": "<b></b>"})
	assert.Equal(t, http.StatusBadRequest, code, "empty after sanitizing")

	code, body = e.call(t, "PUT", "/api/v1/reviews/"+jsonID(rv.ID), map[string]interface{}{"festivalId": 1, "rating": 2, "content": "awful queue"})
	require.Equal(t, http.StatusOK, code, string(body))
	assert.Contains(t, string(body), `"labelName":"insult"`)

	_, body = e.call(t, "GET", "/api/v1/me/reviews", nil)
	assert.Contains(t, string(body), "awful queue")

	code, _ = e.call(t, "DELETE", "/api/v1/reviews/"+jsonID(rv.ID), nil)
	assert.Equal(t, http.StatusNoContent, code)
	assert.True(t, e.backend.called("delete-review"))
	assert.False(t, e.backend.called("delete-review-admin"))
}

func TestServer_AdminDeletesAnyReview(t *testing.T) {
	e := prep(t)
	e.backend.set(func(b *fakeBackend) { b.reviews = []models.Review{{ID: 7, FestivalID: 1, UserID: 1, Content: "spam"}} })
	e.login(t, "admin@example.com")

	code, body := e.call(t, "GET", "/api/v1/admin/reviews", nil)
	require.Equal(t, http.StatusOK, code)
	assert.Contains(t, string(body), `"content":"spam"`)

	code, _ = e.call(t, "DELETE", "/api/v1/reviews/7", nil)
	assert.Equal(t, http.StatusNoContent, code)
	assert.True(t, e.backend.called("delete-review-admin"))
}

func TestServer_AdminFestivals(t *testing.T) {
	e := prep(t)
	fest := map[string]interface{}{"title": "New Fest", "categories": []string{"art", "food"}, "startDate": "2024-07-01", "endDate": "2024-07-03"}

	code, _ := e.call(t, "POST", "/api/v1/admin/festivals", fest)
	assert.Equal(t, http.StatusUnauthorized, code)

	e.login(t, "user@example.com")
	code, _ = e.call(t, "POST", "/api/v1/admin/festivals", fest)
	assert.Equal(t, http.StatusForbidden, code)

	e.login(t, "admin@example.com")
	code, body := e.call(t, "POST", "/api/v1/admin/festivals", fest)
	require.Equal(t, http.StatusCreated, code, string(body))
	created := models.Festival{}
	require.NoError(t, json.Unmarshal(body, &created))
	assert.Equal(t, []string{"art", "food"}, created.Categories)

	code, _ = e.call(t, "POST", "/api/v1/admin/festivals", map[string]interface{}{"title": "no dates"})
	assert.Equal(t, http.StatusBadRequest, code)
	code, _ = e.call(t, "POST", "/api/v1/admin/festivals",
		map[string]interface{}{"title": "half coords", "startDate": "2024-07-01", "endDate": "2024-07-02", "lat": 1.5})
	assert.Equal(t, http.StatusBadRequest, code)

	fest["title"] = "Renamed"
	code, body = e.call(t, "PUT", "/api/v1/admin/festivals/"+jsonID(created.ID), fest)
	require.Equal(t, http.StatusOK, code)
	assert.Contains(t, string(body), `"title":"Renamed"`)

	code, _ = e.call(t, "DELETE", "/api/v1/admin/festivals/"+jsonID(created.ID), nil)
	assert.Equal(t, http.StatusNoContent, code)
	code, _ = e.call(t, "DELETE", "/api/v1/admin/festivals/"+jsonID(created.ID), nil)
	assert.Equal(t, http.StatusNotFound, code)
}

func TestServer_Stream(t *testing.T) {
	e := prep(t)
	e.backend.set(func(b *fakeBackend) { b.wishlists[1] = []int64{3} })

	wsURL := "ws" + strings.TrimPrefix(e.ts.URL, "http") + "/api/v1/stream"
	conn, resp, err := websocket.DefaultDialer.Dial(wsURL, nil)
	require.NoError(t, err)
	defer resp.Body.Close()
	defer conn.Close()

	read := func() (string, json.RawMessage) {
		require.NoError(t, conn.SetReadDeadline(time.Now().Add(2*time.Second)))
		msg := struct {
			Type string          `json:"type"`
			Data json.RawMessage `json:"data"`
		}{}
		require.NoError(t, conn.ReadJSON(&msg))
		return msg.Type, msg.Data
	}

	typ, data := read()
	assert.Equal(t, "session", typ)
	assert.Equal(t, "null", string(data))
	typ, data = read()
	assert.Equal(t, "wishlist", typ)
	assert.Equal(t, "[]", string(data))

	e.login(t, "user@example.com")
	typ, data = read()
	assert.Equal(t, "session", typ)
	assert.Contains(t, string(data), `"userId":1`)
	typ, data = read()
	assert.Equal(t, "wishlist", typ)
	assert.Contains(t, string(data), `"title":"Spring Jazz"`)

	e.call(t, "POST", "/api/v1/logout", nil)
	typ, _ = read()
	assert.Equal(t, "wishlist", typ, "wishlist subscribed to the session first, cleared first")
	typ, data = read()
	assert.Equal(t, "session", typ)
	assert.Equal(t, "null", string(data))
}

func TestServer_Run(t *testing.T) {
	e := prep(t)

	l, err := net.Listen("tcp", "127.0.0.1:0")
	require.NoError(t, err)
	port := l.Addr().(*net.TCPAddr).Port
	require.NoError(t, l.Close())

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error, 1)
	go func() { done <- e.srv.Run(ctx, port) }()

	require.Eventually(t, func() bool {
		resp, err := http.Get("http://127.0.0.1:" + jsonID(int64(port)) + "/ping")
		if err != nil {
			return false
		}
		defer resp.Body.Close()
		return resp.StatusCode == http.StatusOK
	}, 2*time.Second, 10*time.Millisecond)

	cancel()
	select {
	case err := <-done:
		assert.NoError(t, err)
	case <-time.After(5 * time.Second):
		t.Fatal("server not stopped")
	}
}

func jsonID(id int64) string {
	b, _ := json.Marshal(id)
	return string(b)
}
