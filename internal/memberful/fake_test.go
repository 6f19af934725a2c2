package memberful

import (
	"encoding/json"
	"fmt"
	"net/http"
	"net/http/httptest"
	"net/url"
	"sync"
	"testing"
)

// fakeMemberful serves canned GraphQL pages keyed by cursor and a minimal
// admin with a sign in form and CSV exports.
type fakeMemberful struct {
	t      *testing.T
	server *httptest.Server

	mutex sync.Mutex

	pages         map[string]string
	graphqlCalls  int
	cursors       []string
	graphqlErrors bool

	signInHits     int
	signInForm     url.Values
	csrfToken      string
	exportHits     int
	exportTokens   []string
	downloadHits   int
	failDownloads  int
	csvBody        string
	noExportHeader bool
}

func newFakeMemberful(t *testing.T) *fakeMemberful {
	f := &fakeMemberful{
		t:         t,
		pages:     map[string]string{},
		csrfToken: "token-123",
	}

	mux := http.NewServeMux()
	mux.HandleFunc("/api/graphql/", f.graphql)
	mux.HandleFunc("/admin/auth/sign_in", f.signIn)
	mux.HandleFunc("/admin/auth/session", f.session)
	mux.HandleFunc("/admin/csv_exports", f.export)
	mux.HandleFunc("/admin/csv_exports/42/download", f.download)

	f.server = httptest.NewServer(mux)
	t.Cleanup(f.server.Close)
	return f
}

func (f *fakeMemberful) URL() string {
	return f.server.URL
}

func (f *fakeMemberful) graphql(w http.ResponseWriter, r *http.Request) {
	f.mutex.Lock()
	defer f.mutex.Unlock()

	if r.Header.Get("Authorization") != "Bearer secret" {
		w.WriteHeader(http.StatusUnauthorized)
		return
	}

	var req struct {
		Query     string         `json:"query"`
		Variables map[string]any `json:"variables"`
	}
	err := json.NewDecoder(r.Body).Decode(&req)
	if err != nil {
		f.t.Error(err)
		w.WriteHeader(http.StatusBadRequest)
		return
	}
	f.graphqlCalls++

	if f.graphqlErrors {
		fmt.Fprint(w, `{"data": null, "errors": [{"message": "Field 'nope' doesn't exist"}]}`)
		return
	}

	cursor, _ := req.Variables["cursor"].(string)
	f.cursors = append(f.cursors, cursor)
	page, ok := f.pages[cursor]
	if !ok {
		f.t.Errorf("unexpected cursor %q", cursor)
		w.WriteHeader(http.StatusBadRequest)
		return
	}
	fmt.Fprintf(w, `{"data": %s}`, page)
}

const signInPage = `<!doctype html>
<html>
<body>
<form action="/admin/auth/session" method="post">
	<input type="hidden" name="authenticity_token" value="form-token">
	<input type="email" name="email">
	<input type="password" name="password">
	<input type="checkbox" name="remember_me" value="1">
	<input type="submit" name="commit" value="Sign in">
</form>
</body>
</html>`

func (f *fakeMemberful) signIn(w http.ResponseWriter, r *http.Request) {
	f.mutex.Lock()
	defer f.mutex.Unlock()
	f.signInHits++
	http.SetCookie(w, &http.Cookie{Name: "_session", Value: "anonymous", Path: "/"})
	fmt.Fprint(w, signInPage)
}

func (f *fakeMemberful) session(w http.ResponseWriter, r *http.Request) {
	f.mutex.Lock()
	defer f.mutex.Unlock()

	err := r.ParseForm()
	if err != nil {
		w.WriteHeader(http.StatusBadRequest)
		return
	}
	f.signInForm = r.PostForm
	if r.PostForm.Get("password") != "hunter2" {
		fmt.Fprint(w, signInPage)
		return
	}
	http.SetCookie(w, &http.Cookie{Name: "_session", Value: "admin", Path: "/"})
	fmt.Fprintf(w, `<html><head><meta name="csrf-token" content="%s"></head><body>Dashboard</body></html>`, f.csrfToken)
}

func (f *fakeMemberful) loggedIn(r *http.Request) bool {
	cookie, err := r.Cookie("_session")
	return err == nil && cookie.Value == "admin"
}

func (f *fakeMemberful) export(w http.ResponseWriter, r *http.Request) {
	f.mutex.Lock()
	defer f.mutex.Unlock()

	if r.Method != http.MethodPost || !f.loggedIn(r) {
		w.WriteHeader(http.StatusForbidden)
		return
	}
	f.exportHits++
	f.exportTokens = append(f.exportTokens, r.Header.Get("X-CSRF-Token"))
	if f.noExportHeader {
		w.WriteHeader(http.StatusOK)
		return
	}
	w.Header().Set("Location", f.server.URL+"/admin/csv_exports/42")
	w.WriteHeader(http.StatusFound)
}

func (f *fakeMemberful) download(w http.ResponseWriter, r *http.Request) {
	f.mutex.Lock()
	defer f.mutex.Unlock()

	if !f.loggedIn(r) {
		w.WriteHeader(http.StatusForbidden)
		return
	}
	f.downloadHits++
	if f.downloadHits <= f.failDownloads {
		w.WriteHeader(http.StatusNotFound)
		return
	}
	w.Header().Set("Content-Type", "text/csv")
	fmt.Fprint(w, f.csvBody)
}
