// ReportFilter narrows the telemetry history listing.
package dto

import "time"

type ReportFilter struct {
	SessionID string
	Since     time.Time
	Limit     int
	Offset    int
}
