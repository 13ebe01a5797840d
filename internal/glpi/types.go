package glpi

import (
	"bytes"
	"encoding/json"
	"fmt"
	"strconv"
	"strings"
)

// Ticket is the subset of a GLPI Ticket item the bot works with.
type Ticket struct {
	ID            Int    `json:"id"`
	Name          string `json:"name"`
	Content       string `json:"content"`
	Status        Int    `json:"status"`
	Urgency       Int    `json:"urgency"`
	Impact        Int    `json:"impact"`
	Priority      Int    `json:"priority"`
	Type          Int    `json:"type"`
	Date          string `json:"date"`
	TimeToResolve string `json:"time_to_resolve"`
	RecipientID   Int    `json:"users_id_recipient"`
}

// Comment is an ITILFollowup attached to a ticket.
type Comment struct {
	ID      Int    `json:"id"`
	UserID  Int    `json:"users_id"`
	Content string `json:"content"`
	Date    string `json:"date"`
}

// User is the subset of a GLPI User item used to render comment authors.
type User struct {
	ID        Int    `json:"id"`
	Name      string `json:"name"`
	Firstname string `json:"firstname"`
	Realname  string `json:"realname"`
}

// DisplayName prefers "firstname realname" and falls back to the login name.
func (u User) DisplayName() string {
	full := strings.TrimSpace(u.Firstname + " " + u.Realname)
	if full != "" {
		return full
	}
	return u.Name
}

// FullSession is what getFullSession reveals about the caller.
type FullSession struct {
	UserID  int
	Login   string
	Profile string
}

// TicketInput is the payload of POST /Ticket.
type TicketInput struct {
	Name           string `json:"name"`
	Content        string `json:"content"`
	Urgency        int    `json:"urgency"`
	Type           int    `json:"type"`
	ITILCategoryID int    `json:"itilcategories_id,omitempty"`
}

// APIError is returned for responses with an unexpected status code.
type APIError struct {
	Status int
	Body   string
}

func (e *APIError) Error() string {
	if e.Body == "" {
		return fmt.Sprintf("api error (status %d)", e.Status)
	}
	return fmt.Sprintf("api error (status %d): %s", e.Status, e.Body)
}

// Int decodes GLPI numeric fields, which arrive as numbers, numeric strings or null.
type Int int

func (i *Int) UnmarshalJSON(data []byte) error {
	data = bytes.TrimSpace(data)
	if len(data) == 0 || bytes.Equal(data, []byte("null")) {
		*i = 0
		return nil
	}
	if data[0] == '"' {
		var s string
		if err := json.Unmarshal(data, &s); err != nil {
			return err
		}
		s = strings.TrimSpace(s)
		if s == "" {
			*i = 0
			return nil
		}
		n, err := strconv.Atoi(s)
		if err != nil {
			return fmt.Errorf("glpi: invalid integer %q", s)
		}
		*i = Int(n)
		return nil
	}
	var f float64
	if err := json.Unmarshal(data, &f); err != nil {
		return err
	}
	*i = Int(f)
	return nil
}
