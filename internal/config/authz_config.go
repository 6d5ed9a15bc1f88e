package config

import "strings"

const superAdminEmailsVar = "SUPERADMIN_EMAILS"

type Authz struct {
	v *values
}

var _ AuthzConfig = Authz{}

// GetSuperAdminEmails returns the comma separated allow-list of emails granted
// superadmin rights regardless of the backend flag. Empty by default.
func (a Authz) GetSuperAdminEmails() []string {
	var emails []string
	for _, e := range strings.Split(a.v.get(superAdminEmailsVar, ""), ",") {
		if e = strings.TrimSpace(e); e != "" {
			emails = append(emails, e)
		}
	}
	return emails
}
