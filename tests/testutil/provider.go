package testutil

import (
	"encoding/json"
	"fmt"
	"net/http"
	"net/http/httptest"
	"net/url"
	"strconv"
	"sync"
	"testing"

	"github.com/gorilla/mux"
)

// FakeMail is one message held by FakeProvider.
type FakeMail struct {
	ID          string
	From        string
	Subject     string
	Body        string
	Timestamp   int64
	ContentType string
}

// FakeProvider is an httptest server speaking the Guerrilla Mail ajax.php
// RPC. Each f selector is routed separately so tests can replace one
// operation with Override.
type FakeProvider struct {
	Server *httptest.Server

	mu        sync.Mutex
	sessions  map[string]string
	mail      map[string][]FakeMail
	requests  map[string][]url.Values
	overrides map[string]http.HandlerFunc
	nextID    int
}

// NewFakeProvider starts a fake provider that is shut down when the test
// completes.
func NewFakeProvider(t *testing.T) *FakeProvider {
	t.Helper()

	p := &FakeProvider{
		sessions:  make(map[string]string),
		mail:      make(map[string][]FakeMail),
		requests:  make(map[string][]url.Values),
		overrides: make(map[string]http.HandlerFunc),
	}

	router := mux.NewRouter()
	routes := map[string]http.HandlerFunc{
		"get_email_address": p.getEmailAddress,
		"set_email_user":    p.setEmailUser,
		"check_email":       p.checkEmail,
		"fetch_email":       p.fetchEmail,
		"forget_me":         p.forgetMe,
	}
	for op, h := range routes {
		router.HandleFunc("/ajax.php", p.dispatch(op, h)).
			Methods(http.MethodGet).
			Queries("f", op)
	}

	p.Server = httptest.NewServer(router)
	t.Cleanup(p.Server.Close)
	return p
}

// URL is the RPC endpoint to configure the gateway with.
func (p *FakeProvider) URL() string {
	return p.Server.URL + "/ajax.php"
}

// Override replaces the handler of op.
func (p *FakeProvider) Override(op string, h http.HandlerFunc) {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.overrides[op] = h
}

// Requests returns the query of every request made for op.
func (p *FakeProvider) Requests(op string) []url.Values {
	p.mu.Lock()
	defer p.mu.Unlock()
	return append([]url.Values(nil), p.requests[op]...)
}

// Deliver adds mail to the mailbox token owns, newest first.
func (p *FakeProvider) Deliver(token string, mail ...FakeMail) {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.mail[token] = append(append([]FakeMail(nil), mail...), p.mail[token]...)
}

// Address returns the address token currently owns.
func (p *FakeProvider) Address(token string) (string, bool) {
	p.mu.Lock()
	defer p.mu.Unlock()
	addr, ok := p.sessions[token]
	return addr, ok
}

func (p *FakeProvider) dispatch(op string, h http.HandlerFunc) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		p.mu.Lock()
		p.requests[op] = append(p.requests[op], r.URL.Query())
		override := p.overrides[op]
		p.mu.Unlock()

		if override != nil {
			override(w, r)
			return
		}
		h(w, r)
	}
}

func (p *FakeProvider) getEmailAddress(w http.ResponseWriter, r *http.Request) {
	q := r.URL.Query()

	p.mu.Lock()
	token := q.Get("sid_token")
	addr, ok := p.sessions[token]
	if !ok {
		p.nextID++
		token = fmt.Sprintf("tok%d", p.nextID)
		site := q.Get("site")
		if site == "" {
			site = "sharklasers.com"
		}
		addr = fmt.Sprintf("user%d@%s", p.nextID, site)
		p.sessions[token] = addr
	}
	p.mu.Unlock()

	writeJSON(w, map[string]interface{}{
		"email_addr":      addr,
		"email_timestamp": 1700000000,
		"alias":           "alias" + token,
		"sid_token":       token,
	})
}

func (p *FakeProvider) setEmailUser(w http.ResponseWriter, r *http.Request) {
	q := r.URL.Query()
	token := q.Get("sid_token")

	p.mu.Lock()
	_, ok := p.sessions[token]
	addr := q.Get("email_user") + "@" + q.Get("site")
	if ok {
		p.sessions[token] = addr
		delete(p.mail, token)
	}
	p.mu.Unlock()

	if !ok {
		writeJSON(w, map[string]interface{}{"error": "invalid sid_token"})
		return
	}
	writeJSON(w, map[string]interface{}{
		"email_addr":      addr,
		"email_timestamp": "1700000100",
		"alias":           "alias" + token,
		"sid_token":       token,
	})
}

func (p *FakeProvider) checkEmail(w http.ResponseWriter, r *http.Request) {
	token := r.URL.Query().Get("sid_token")

	p.mu.Lock()
	mails := append([]FakeMail(nil), p.mail[token]...)
	addr := p.sessions[token]
	p.mu.Unlock()

	// Ids, timestamps and counters come back as strings, like the real API.
	list := make([]map[string]interface{}, 0, len(mails))
	for _, m := range mails {
		list = append(list, map[string]interface{}{
			"mail_id":        m.ID,
			"mail_from":      m.From,
			"mail_subject":   m.Subject,
			"mail_excerpt":   excerpt(m.Body),
			"mail_timestamp": strconv.FormatInt(m.Timestamp, 10),
			"mail_read":      "0",
			"mail_date":      "12:00:00",
		})
	}
	writeJSON(w, map[string]interface{}{
		"list":      list,
		"count":     strconv.Itoa(len(list)),
		"email":     addr,
		"alias":     "alias" + token,
		"ts":        1700000000,
		"sid_token": token,
	})
}

func (p *FakeProvider) fetchEmail(w http.ResponseWriter, r *http.Request) {
	q := r.URL.Query()
	token, id := q.Get("sid_token"), q.Get("email_id")

	p.mu.Lock()
	var found *FakeMail
	for _, m := range p.mail[token] {
		if m.ID == id {
			m := m
			found = &m
			break
		}
	}
	p.mu.Unlock()

	if found == nil {
		writeJSON(w, false)
		return
	}
	contentType := found.ContentType
	if contentType == "" {
		contentType = "text/html"
	}
	writeJSON(w, map[string]interface{}{
		"mail_id":        found.ID,
		"mail_from":      found.From,
		"mail_subject":   found.Subject,
		"mail_body":      found.Body,
		"mail_timestamp": strconv.FormatInt(found.Timestamp, 10),
		"mail_date":      "12:00:00",
		"content_type":   contentType,
	})
}

func (p *FakeProvider) forgetMe(w http.ResponseWriter, r *http.Request) {
	token := r.URL.Query().Get("sid_token")

	p.mu.Lock()
	delete(p.sessions, token)
	delete(p.mail, token)
	p.mu.Unlock()

	writeJSON(w, true)
}

func excerpt(body string) string {
	if len(body) > 40 {
		return body[:40]
	}
	return body
}

// WriteJSON encodes v as the response body.
func WriteJSON(w http.ResponseWriter, v interface{}) {
	writeJSON(w, v)
}

func writeJSON(w http.ResponseWriter, v interface{}) {
	w.Header().Set("Content-Type", "application/json")
	_ = json.NewEncoder(w).Encode(v)
}
