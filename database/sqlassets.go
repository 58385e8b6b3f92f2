package sqlassets

import _ "embed"

//go:embed schema/provisioning/organizations.sql
var OrganizationsSQL string

//go:embed schema/provisioning/subscriptions.sql
var SubscriptionsSQL string

//go:embed schema/provisioning/users.sql
var UsersSQL string
