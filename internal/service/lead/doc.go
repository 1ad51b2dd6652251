// Package lead implements lead capture and the admin CRM operations.
//
// Leads are keyed by lowercase email plus creation time. A repeat submission
// from the same address merges into the newest record instead of creating a
// new one. Capture hands follow-up work (sales notification, day-0 sequence
// email) to the background task queue so the form request returns quickly.
//
// Repository implementations live in storage/.
package lead
