// Package storage persists leads and analytics records in DynamoDB and
// archives lead exports to S3.
//
// Lead items are keyed pk=LEAD#<email>, sk=#CREATED#<timestamp>; the newest
// item for an address wins. Analytics items are partitioned by UTC day
// (EVENT#2026-03-10, SESSION#…, CONVERSION#…) and expire through the table's
// ttl attribute.
package storage

import "errors"

// ErrInvalidCursor is returned when a list cursor cannot be decoded.
var ErrInvalidCursor = errors.New("invalid cursor")
