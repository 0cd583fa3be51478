package auth

import (
	"fmt"
	"os"
	"strings"

	"gopkg.in/yaml.v3"
)

// User is an authenticated principal. ID is the owner key of journal entries.
type User struct {
	ID    string `yaml:"id" json:"id"`
	Email string `yaml:"email" json:"email"`
	Name  string `yaml:"name,omitempty" json:"name,omitempty"`
}

// DisplayName prefers the name and falls back to the email.
func (u User) DisplayName() string {
	if u.Name != "" {
		return u.Name
	}
	return u.Email
}

type userRecord struct {
	User         `yaml:",inline"`
	PasswordHash string `yaml:"password_hash"`
}

type directoryFile struct {
	Users []userRecord `yaml:"users"`
}

// Directory is the static set of users allowed to sign in.
type Directory struct {
	byEmail map[string]userRecord
}

// LoadDirectory reads a YAML user file.
func LoadDirectory(path string) (*Directory, error) {
	raw, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read users file: %w", err)
	}
	return ParseDirectory(raw)
}

// ParseDirectory decodes the YAML document:
//
//	users:
//	  - id: alice
//	    email: alice@example.com
//	    password_hash: $2a$10$...
func ParseDirectory(raw []byte) (*Directory, error) {
	var doc directoryFile
	if err := yaml.Unmarshal(raw, &doc); err != nil {
		return nil, fmt.Errorf("parse users file: %w", err)
	}

	d := &Directory{byEmail: make(map[string]userRecord, len(doc.Users))}
	seenIDs := make(map[string]bool, len(doc.Users))
	for i, u := range doc.Users {
		email := normalizeEmail(u.Email)
		switch {
		case u.ID == "":
			return nil, fmt.Errorf("user %d: missing id", i)
		case email == "":
			return nil, fmt.Errorf("user %s: missing email", u.ID)
		case u.PasswordHash == "":
			return nil, fmt.Errorf("user %s: missing password_hash", u.ID)
		case seenIDs[u.ID]:
			return nil, fmt.Errorf("user %s: duplicate id", u.ID)
		}
		if _, dup := d.byEmail[email]; dup {
			return nil, fmt.Errorf("user %s: duplicate email %s", u.ID, email)
		}
		u.Email = email
		seenIDs[u.ID] = true
		d.byEmail[email] = u
	}
	return d, nil
}

func (d *Directory) lookup(email string) (userRecord, bool) {
	u, ok := d.byEmail[normalizeEmail(email)]
	return u, ok
}

// Len returns the number of users.
func (d *Directory) Len() int {
	return len(d.byEmail)
}

// Stanza renders a single user as a YAML list item ready to paste into the
// users file.
func Stanza(u User, passwordHash string) ([]byte, error) {
	return yaml.Marshal([]userRecord{{User: u, PasswordHash: passwordHash}})
}

func normalizeEmail(email string) string {
	return strings.ToLower(strings.TrimSpace(email))
}
