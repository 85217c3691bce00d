// Package gmail is the mail provider. Messages are assembled locally as
// RFC 822 (multipart/alternative when the body is HTML) and uploaded
// base64url-encoded via users.messages.send with a bearer token obtained
// from the credential store.
package gmail
