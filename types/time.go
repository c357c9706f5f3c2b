package types

import "time"

// Timestamp is a point in time as carried in ops, snapshots and
// events: whole seconds since the Unix epoch plus a nanosecond offset.
type Timestamp struct {
	Seconds int64 `cramberry:"1"`
	Nanos   int32 `cramberry:"2"`
}

// TimeToTimestamp converts t.
func TimeToTimestamp(t time.Time) Timestamp {
	return Timestamp{Seconds: t.Unix(), Nanos: int32(t.Nanosecond())}
}

// ToTime returns ts in UTC.
func (ts Timestamp) ToTime() time.Time {
	return time.Unix(ts.Seconds, int64(ts.Nanos)).UTC()
}

// Reached reports whether now is at or after ts. Deadlines and voting
// windows close at their own instant.
func (ts Timestamp) Reached(now time.Time) bool {
	return !now.Before(ts.ToTime())
}

// Duration is a span of time in nanoseconds.
type Duration struct {
	Nanos int64 `cramberry:"1"`
}

// DurationFromGo converts d.
func DurationFromGo(d time.Duration) Duration {
	return Duration{Nanos: d.Nanoseconds()}
}

// ToGo returns d as a time.Duration.
func (d Duration) ToGo() time.Duration {
	return time.Duration(d.Nanos)
}
