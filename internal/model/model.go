package model

import (
	"encoding/json"
	"strings"
)

type Role string

const (
	RoleStudent Role = "student"
	RoleTeacher Role = "teacher"
	RoleParent  Role = "parent"
	RoleAdmin   Role = "admin"
)

// Roles lists every known role in display order.
var Roles = []Role{RoleStudent, RoleTeacher, RoleParent, RoleAdmin}

// ParseRole trims and lowercases value. The bool reports whether the result is
// one of the known roles.
func ParseRole(value string) (Role, bool) {
	role := Role(strings.TrimSpace(strings.ToLower(value)))
	switch role {
	case RoleStudent, RoleTeacher, RoleParent, RoleAdmin:
		return role, true
	default:
		return role, false
	}
}

type LoginMethod string

const (
	LoginMethodEmail  LoginMethod = "email"
	LoginMethodGoogle LoginMethod = "google"
)

func ParseLoginMethod(value string) (LoginMethod, bool) {
	method := LoginMethod(strings.TrimSpace(strings.ToLower(value)))
	switch method {
	case LoginMethodEmail, LoginMethodGoogle:
		return method, true
	default:
		return method, false
	}
}

// User is the identity record returned by the auth backend or the OAuth
// provider. Fields the gateway does not know about are kept in Extra and
// written back unchanged.
type User struct {
	ID       string
	Name     string
	Email    string
	Role     string
	Avatar   string
	SchoolID string
	Extra    map[string]json.RawMessage
}

var userFields = []string{"id", "name", "email", "role", "avatar", "schoolId"}

func (u User) MarshalJSON() ([]byte, error) {
	out := make(map[string]interface{}, len(u.Extra)+len(userFields))
	for key, value := range u.Extra {
		out[key] = value
	}
	out["id"] = u.ID
	out["name"] = u.Name
	out["email"] = u.Email
	if u.Role != "" {
		out["role"] = u.Role
	} else {
		delete(out, "role")
	}
	if u.Avatar != "" {
		out["avatar"] = u.Avatar
	}
	if u.SchoolID != "" {
		out["schoolId"] = u.SchoolID
	}
	return json.Marshal(out)
}

func (u *User) UnmarshalJSON(data []byte) error {
	var raw map[string]json.RawMessage
	if err := json.Unmarshal(data, &raw); err != nil {
		return err
	}
	var parsed User
	for _, field := range []struct {
		key string
		dst *string
	}{
		{"id", &parsed.ID},
		{"name", &parsed.Name},
		{"email", &parsed.Email},
		{"role", &parsed.Role},
		{"avatar", &parsed.Avatar},
		{"schoolId", &parsed.SchoolID},
	} {
		value, ok := raw[field.key]
		if !ok {
			continue
		}
		delete(raw, field.key)
		if string(value) == "null" {
			continue
		}
		var s string
		if err := json.Unmarshal(value, &s); err != nil {
			// ids from some backends are numeric
			var n json.Number
			if numErr := json.Unmarshal(value, &n); numErr != nil {
				return err
			}
			s = n.String()
		}
		*field.dst = s
	}
	if len(raw) > 0 {
		parsed.Extra = raw
	}
	*u = parsed
	return nil
}

// WithRole returns a copy of u carrying role.
func (u User) WithRole(role Role) User {
	u.Role = string(role)
	if u.Extra != nil {
		extra := make(map[string]json.RawMessage, len(u.Extra))
		for key, value := range u.Extra {
			extra[key] = value
		}
		u.Extra = extra
	}
	return u
}
