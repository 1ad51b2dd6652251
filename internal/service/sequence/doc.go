// Package sequence implements the drip email state machine for leads.
//
// A lead carries at most one EmailSequence. The service moves it between
// active, paused, completed, bounced and unsubscribed in response to admin
// actions, SES feedback and the daily processor. Bounced, unsubscribed and
// complained sequences are terminal and never send again.
//
// Business refusals are reported through Result with Success=false and a
// human readable Reason. Errors are reserved for storage and transport
// failures.
package sequence
