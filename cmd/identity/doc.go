// Package identity holds the externally owned principal record consumed by the
// security perimeter: subject id, role, credential hash and contact email.
//
// The perimeter only reads identities. Writes are limited to the admin
// bootstrap and the registration/self-service collaborators in the HTTP layer.
package identity
