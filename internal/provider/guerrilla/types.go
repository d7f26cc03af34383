package guerrilla

import (
	"bytes"
	"encoding/json"
	"strconv"
)

// Operation selectors sent as the f parameter.
const (
	opGetEmailAddress = "get_email_address"
	opSetEmailUser    = "set_email_user"
	opCheckEmail      = "check_email"
	opFetchEmail      = "fetch_email"
	opForgetMe        = "forget_me"
)

// flexString decodes a JSON string or number into a string. The provider
// is not consistent about quoting ids and counters.
type flexString string

func (s *flexString) UnmarshalJSON(data []byte) error {
	data = bytes.TrimSpace(data)
	if bytes.Equal(data, []byte("null")) {
		*s = ""
		return nil
	}
	if len(data) > 0 && data[0] == '"' {
		var v string
		if err := json.Unmarshal(data, &v); err != nil {
			return err
		}
		*s = flexString(v)
		return nil
	}
	var n json.Number
	if err := json.Unmarshal(data, &n); err != nil {
		return err
	}
	*s = flexString(n.String())
	return nil
}

// flexInt decodes a JSON number or numeric string into an int64. Empty
// strings decode to zero.
type flexInt int64

func (i *flexInt) UnmarshalJSON(data []byte) error {
	var s flexString
	if err := s.UnmarshalJSON(data); err != nil {
		return err
	}
	if s == "" {
		*i = 0
		return nil
	}
	n, err := strconv.ParseInt(string(s), 10, 64)
	if err != nil {
		f, ferr := strconv.ParseFloat(string(s), 64)
		if ferr != nil {
			return err
		}
		n = int64(f)
	}
	*i = flexInt(n)
	return nil
}

// addressResponse is the payload of get_email_address and set_email_user.
type addressResponse struct {
	EmailAddr      string     `json:"email_addr"`
	EmailTimestamp flexInt    `json:"email_timestamp"`
	Alias          string     `json:"alias"`
	SidToken       flexString `json:"sid_token"`
}

// wireEmail is one entry of the check_email list.
type wireEmail struct {
	MailID        flexString `json:"mail_id"`
	MailFrom      string     `json:"mail_from"`
	MailSubject   string     `json:"mail_subject"`
	MailExcerpt   string     `json:"mail_excerpt"`
	MailTimestamp flexInt    `json:"mail_timestamp"`
	MailRead      flexString `json:"mail_read"`
	MailDate      string     `json:"mail_date"`
}

// listResponse is the payload of check_email.
type listResponse struct {
	List     []wireEmail `json:"list"`
	Count    flexInt     `json:"count"`
	Email    string      `json:"email"`
	Alias    string      `json:"alias"`
	TS       flexInt     `json:"ts"`
	SidToken flexString  `json:"sid_token"`
}

// contentResponse is the payload of fetch_email.
type contentResponse struct {
	MailID        flexString `json:"mail_id"`
	MailFrom      string     `json:"mail_from"`
	MailSubject   string     `json:"mail_subject"`
	MailBody      string     `json:"mail_body"`
	MailTimestamp flexInt    `json:"mail_timestamp"`
	MailDate      string     `json:"mail_date"`
	ContentType   string     `json:"content_type"`
}
