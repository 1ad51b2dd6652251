// Package worker holds the background side of the engine: handlers for the
// tasks published by lead capture and the daily scheduler that drives the
// sequence processor and the traffic summary email.
package worker
