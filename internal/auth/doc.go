// Package auth provides API authentication and authorisation for the
// medication tracker.
//
// Clients authenticate with HS256-signed JWT bearer tokens issued by the
// "medtracker token" command. Tokens are validated by signature and expiry
// only; there are no user accounts or sessions to look up.
//
// Three roles map statically to permissions:
//   - viewer: read entities, history, groups and config entries
//   - operator: viewer plus service calls (take_dose, add_stock, set_value)
//   - admin: operator plus config entry and wizard management
package auth
