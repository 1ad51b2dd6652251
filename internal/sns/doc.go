// Package sns receives Amazon SES event notifications delivered through an
// SNS HTTPS subscription.
//
// Every message is authenticated before it is acted on: the signing
// certificate must come from an SNS endpoint over https, the signature must
// verify against the canonical string for the message type, and the topic
// must be on the allow list when one is configured. Certificates are cached
// per URL.
//
// Verified SES bounces and complaints are forwarded to the sequence state
// machine; deliveries are only logged.
package sns
