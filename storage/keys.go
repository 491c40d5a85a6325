package storage

// Well-known keys of the session store. All values are strings;
// timestamps are epoch milliseconds in decimal.
const (
	// Bearer credentials. KeyJWT aliases the ID token for legacy
	// callers that read "jwt" directly.
	KeyAccessToken  = "access_token"
	KeyRefreshToken = "refresh_token"
	KeyIDToken      = "id_token"
	KeyJWT          = "jwt"

	// Session timestamps.
	KeyLoginTime    = "login_time"
	KeyLastActivity = "last_activity"

	// Identity snapshot.
	KeyUserID       = "user_id"
	KeyUserName     = "user_name"
	KeyUserLastname = "user_lastname"
	KeyUserEmail    = "user_email"
	KeyCustomerID   = "customer_id"

	// Organization context.
	KeyPartitionKey        = "partition_key"
	KeyCurrentOrgID        = "current_organization_id"
	KeyCurrentOrgName      = "current_organization_name"
	KeyAvailableOrgs       = "available_organizations"
	KeyOrganizationDetails = "organization_details"

	// Denormalized display fields, written at login and cleared at
	// teardown. Not owned by the session core.
	KeyRepresentativeID          = "representative_people_id"
	KeyRepresentativeFullName    = "representative_people_full_name"
	KeyRepresentativeFirstName   = "representative_people_first_name"
	KeyRepresentativeLastName    = "representative_people_last_name"
	KeyRepresentativeEmail       = "representative_people_email"
	KeyRepresentativeCallingCode = "representative_people_calling_code"
	KeyRepresentativePhoneNumber = "representative_people_phone_number"
	KeyCompanyBusinessName       = "company_business_name"
	KeyCompanyBusinessType       = "company_business_type"
	KeyCompanyCallingCode        = "company_calling_code"
	KeyCompanyPhoneNumber        = "company_phone_number"
	KeyCompanyAddressLine        = "company_address_line"

	// Transient cross-context logout signal: set to a timestamp, then
	// removed shortly after. Never part of the session record.
	KeySessionLogout = "session_logout"

	// User preference. Deliberately absent from SessionKeys so it
	// survives logout.
	KeyLanguage = "language"
)

// SessionKeys is the exhaustive list of keys removed at teardown.
// Teardown iterates this list explicitly rather than clearing the
// whole store, so unrelated persisted state (KeyLanguage) survives.
var SessionKeys = []string{
	KeyJWT,
	KeyIDToken,
	KeyRefreshToken,
	KeyAccessToken,
	KeyLoginTime,
	KeyLastActivity,
	KeyUserID,
	KeyUserName,
	KeyUserLastname,
	KeyUserEmail,
	KeyCustomerID,
	KeyPartitionKey,
	KeyCurrentOrgID,
	KeyCurrentOrgName,
	KeyAvailableOrgs,
	KeyOrganizationDetails,
	KeyRepresentativeID,
	KeyRepresentativeFullName,
	KeyRepresentativeFirstName,
	KeyRepresentativeLastName,
	KeyRepresentativeEmail,
	KeyRepresentativeCallingCode,
	KeyRepresentativePhoneNumber,
	KeyCompanyBusinessName,
	KeyCompanyBusinessType,
	KeyCompanyCallingCode,
	KeyCompanyPhoneNumber,
	KeyCompanyAddressLine,
}
