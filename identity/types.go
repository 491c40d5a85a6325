// Package identity is the client for the identity/organization
// backend: login, current identity, partition keys and organization
// details. It populates the session store and context; the session
// validator owns everything after that.
package identity

// Credentials are the login inputs.
type Credentials struct {
	Email    string `validate:"required,email"`
	Password string `validate:"required"`
}

// Customer is the server-confirmed identity of the logged-in user.
type Customer struct {
	ID        string `json:"id"`
	FirstName string `json:"firstName"`
	LastName  string `json:"lastName"`
	Email     string `json:"email"`
}

type customerEnvelope struct {
	Data Customer `json:"data"`
}

// OrganizationOption is one selectable organization, as returned by
// the partition-keys endpoint.
type OrganizationOption struct {
	Key          string             `json:"key"`
	Value        string             `json:"value"` // partition key
	Label        string             `json:"label"`
	Organization OrganizationBasics `json:"organization"`
}

// OrganizationBasics is the nested organization record of an option.
type OrganizationBasics struct {
	ID   string `json:"_id"`
	Name string `json:"name"`
	Type string `json:"type"`
}

// Phone is a calling code plus number pair.
type Phone struct {
	CallingCode string `json:"calling_code"`
	PhoneNumber string `json:"phone_number"`
}

// Address is a single address line.
type Address struct {
	Line string `json:"line"`
}

// ExtraValue is one value of an organization extra.
type ExtraValue struct {
	Value string `json:"value"`
}

// Extra is a keyed list of values attached to an organization.
type Extra struct {
	Key    string       `json:"key"`
	Values []ExtraValue `json:"values"`
}

// OrganizationDetails is the full organization record.
type OrganizationDetails struct {
	BusinessName string    `json:"business_name"`
	BusinessType string    `json:"business_type"`
	Phones       []Phone   `json:"phones"`
	Addresses    []Address `json:"addresses"`
	Extras       []Extra   `json:"extras"`
}

type organizationsEnvelope struct {
	Data []OrganizationDetails `json:"data"`
}

// EmailField is one email record of a person.
type EmailField struct {
	Value string `json:"value"`
}

// Person is a CRM person record; only the fields the login snapshot
// needs.
type Person struct {
	FullName  string       `json:"full_name"`
	FirstName string       `json:"first_name"`
	LastName  string       `json:"last_name"`
	Emails    []EmailField `json:"emails"`
	Phones    []Phone      `json:"phones"`
}

// organizationOwnerKey is the extras key carrying the representative
// person id.
const organizationOwnerKey = "organization_owner"
