// Package guerrilla implements provider.Gateway over the Guerrilla Mail
// ajax.php API.
package guerrilla

import (
	"context"
	"encoding/json"
	"net/http"
	"net/url"
	"strconv"
	"strings"

	simplejson "github.com/bitly/go-simplejson"

	"github.com/nhle/tempmail/internal/model"
	"github.com/nhle/tempmail/internal/provider"
)

// Gateway implements provider.Gateway for Guerrilla Mail.
type Gateway struct {
	client  *Client
	lang    string
	domains provider.Domains
}

var _ provider.Gateway = (*Gateway)(nil)

// New creates a gateway from provider settings. httpClient may be nil.
func New(cfg model.ProviderConfig, httpClient *http.Client) (*Gateway, error) {
	client, err := NewClient(cfg.BaseURL, httpClient, cfg.Timeout())
	if err != nil {
		return nil, err
	}
	lang := cfg.Lang
	if lang == "" {
		lang = "en"
	}
	return &Gateway{
		client:  client,
		lang:    lang,
		domains: provider.Domains(cfg.Domains),
	}, nil
}

// Domains returns the supported address suffixes.
func (g *Gateway) Domains() provider.Domains {
	return g.domains
}

// AllocateAddress requests a new mailbox, or the one existingToken owns.
func (g *Gateway) AllocateAddress(
	ctx context.Context,
	existingToken string,
) (*provider.Allocation, error) {
	params := url.Values{
		"lang": {g.lang},
		"site": {g.domains.Random()},
	}
	if existingToken != "" {
		params.Set("sid_token", existingToken)
	}

	var resp addressResponse
	if err := g.call(ctx, opGetEmailAddress, params, &resp); err != nil {
		return nil, err
	}
	if resp.EmailAddr == "" || resp.SidToken == "" {
		return nil, &provider.ProviderError{
			Op:      opGetEmailAddress,
			Message: "response is missing email_addr or sid_token",
		}
	}

	return &provider.Allocation{
		Address:   resp.EmailAddr,
		Token:     string(resp.SidToken),
		Alias:     resp.Alias,
		Timestamp: int64(resp.EmailTimestamp),
	}, nil
}

// RenameAddress binds localPart@domain to token. Input is validated
// before any request is made.
func (g *Gateway) RenameAddress(
	ctx context.Context,
	localPart string,
	token string,
	domain string,
) (*provider.Allocation, error) {
	if err := provider.ValidateRename(localPart, domain, g.domains); err != nil {
		return nil, err
	}
	if token == "" {
		return nil, &provider.ValidationError{Field: "token", Message: "must not be empty"}
	}

	params := url.Values{
		"email_user": {strings.TrimSpace(localPart)},
		"lang":       {g.lang},
		"site":       {domain},
		"sid_token":  {token},
	}

	var resp addressResponse
	if err := g.call(ctx, opSetEmailUser, params, &resp); err != nil {
		return nil, err
	}
	if resp.EmailAddr == "" {
		return nil, &provider.ProviderError{
			Op:      opSetEmailUser,
			Message: "response is missing email_addr",
		}
	}

	return &provider.Allocation{
		Address:   resp.EmailAddr,
		Token:     string(resp.SidToken),
		Alias:     resp.Alias,
		Timestamp: int64(resp.EmailTimestamp),
	}, nil
}

// ListNewMessages returns the provider's current view of the inbox.
func (g *Gateway) ListNewMessages(
	ctx context.Context,
	token string,
	sinceSeq int,
) (*provider.MessageList, error) {
	params := url.Values{
		"sid_token": {token},
		"seq":       {strconv.Itoa(sinceSeq)},
	}

	var resp listResponse
	if err := g.call(ctx, opCheckEmail, params, &resp); err != nil {
		return nil, err
	}

	messages := make([]model.MessageSummary, 0, len(resp.List))
	for _, e := range resp.List {
		if e.MailID == "" {
			continue
		}
		messages = append(messages, model.MessageSummary{
			ID:        string(e.MailID),
			From:      e.MailFrom,
			Subject:   e.MailSubject,
			Excerpt:   e.MailExcerpt,
			Timestamp: int64(e.MailTimestamp),
			ReadFlag:  string(e.MailRead),
			Date:      e.MailDate,
		})
	}

	return &provider.MessageList{
		Messages: messages,
		Count:    int(resp.Count),
		Address:  resp.Email,
		Token:    string(resp.SidToken),
	}, nil
}

// FetchMessage retrieves the full content of message id. The provider
// answers false for unknown ids and expired sessions.
func (g *Gateway) FetchMessage(
	ctx context.Context,
	token string,
	id string,
) (*model.MessageDetail, error) {
	if strings.TrimSpace(id) == "" {
		return nil, &provider.ValidationError{Field: "message id", Message: "must not be empty"}
	}

	params := url.Values{
		"sid_token": {token},
		"email_id":  {id},
	}

	body, err := g.client.Get(ctx, opFetchEmail, params)
	if err != nil {
		return nil, err
	}
	js, err := parsePayload(opFetchEmail, body)
	if err != nil {
		return nil, err
	}
	if isEmptyPayload(js) {
		return nil, &provider.NotFoundError{ID: id}
	}

	var resp contentResponse
	if err := json.Unmarshal(body, &resp); err != nil {
		return nil, &provider.ProviderError{Op: opFetchEmail, Message: "malformed response", Err: err}
	}
	if resp.MailID == "" {
		return nil, &provider.NotFoundError{ID: id}
	}

	return &model.MessageDetail{
		ID:          string(resp.MailID),
		From:        resp.MailFrom,
		Subject:     resp.MailSubject,
		Body:        resp.MailBody,
		Timestamp:   int64(resp.MailTimestamp),
		Date:        resp.MailDate,
		ContentType: resp.ContentType,
	}, nil
}

// InvalidateSession asks the provider to forget the mailbox and reports
// its answer.
func (g *Gateway) InvalidateSession(
	ctx context.Context,
	token string,
	address string,
) (bool, error) {
	params := url.Values{
		"sid_token":  {token},
		"email_addr": {address},
	}

	body, err := g.client.Get(ctx, opForgetMe, params)
	if err != nil {
		return false, err
	}
	js, err := parsePayload(opForgetMe, body)
	if err != nil {
		return false, err
	}
	ok, known := truthy(js)
	if !known {
		return false, &provider.ProviderError{
			Op:      opForgetMe,
			Message: "unrecognized response: " + truncate(body, 200),
		}
	}
	return ok, nil
}

// call performs op and decodes the JSON object answer into out.
func (g *Gateway) call(ctx context.Context, op string, params url.Values, out interface{}) error {
	body, err := g.client.Get(ctx, op, params)
	if err != nil {
		return err
	}
	js, err := parsePayload(op, body)
	if err != nil {
		return err
	}
	if _, err := js.Map(); err != nil {
		return &provider.ProviderError{Op: op, Message: "expected a JSON object, got " + truncate(body, 200)}
	}
	if err := json.Unmarshal(body, out); err != nil {
		return &provider.ProviderError{Op: op, Message: "malformed response", Err: err}
	}
	return nil
}

// parsePayload parses body and turns provider-reported failures into
// ProviderError.
func parsePayload(op string, body []byte) (*simplejson.Json, error) {
	js, err := simplejson.NewJson(body)
	if err != nil {
		return nil, &provider.ProviderError{Op: op, Message: "malformed response", Err: err}
	}
	if e, ok := js.CheckGet("error"); ok {
		msg, _ := e.String()
		if msg == "" {
			msg = "provider reported an error"
		}
		return nil, &provider.ProviderError{Op: op, Message: msg}
	}
	return js, nil
}

// isEmptyPayload reports whether the answer is false, null or an empty
// string.
func isEmptyPayload(js *simplejson.Json) bool {
	switch v := js.Interface().(type) {
	case nil:
		return true
	case bool:
		return !v
	case string:
		return v == ""
	}
	return false
}

// truthy interprets the provider's boolean-ish answers: true, 1, "true",
// "1", or an object with a truthy success field.
func truthy(js *simplejson.Json) (value bool, known bool) {
	switch v := js.Interface().(type) {
	case bool:
		return v, true
	case json.Number:
		n, err := v.Int64()
		return err == nil && n != 0, err == nil
	case string:
		switch strings.ToLower(strings.TrimSpace(v)) {
		case "true", "1":
			return true, true
		case "false", "0", "":
			return false, true
		}
	case map[string]interface{}:
		if s, ok := js.CheckGet("success"); ok {
			return truthy(s)
		}
	}
	return false, false
}
