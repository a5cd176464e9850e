// Package auth derives the agent's identity from its platform token.
//
// The platform issues each agent a JWT whose "sub" claim is the agent id. The
// bridge needs that id to recognize its own messages. When the signing secret
// is known the token is verified; otherwise the claims are read without
// verification, since the platform checks the token on every connection
// anyway. Expiry is enforced in both cases.
package auth
