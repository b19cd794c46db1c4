package device

import (
	"time"

	"github.com/crcx/retroforth/pkg/vm"
)

// Clock actions. 1-6 report local time, 7-12 the same fields in UTC.
const (
	ClockUnix vm.Cell = iota
	ClockDay
	ClockMonth
	ClockYear
	ClockHour
	ClockMinute
	ClockSecond
	ClockDayUTC
	ClockMonthUTC
	ClockYearUTC
	ClockHourUTC
	ClockMinuteUTC
	ClockSecondUTC
)

// Clock answers wall clock and calendar queries.
type Clock struct {
	now func() time.Time
}

// NewClock creates the clock device. A nil now uses time.Now.
func NewClock(now func() time.Time) *Clock {
	if now == nil {
		now = time.Now
	}
	return &Clock{now: now}
}

func (c *Clock) Query() (revision, kind vm.Cell) {
	return 0, KindClock
}

func (c *Clock) Invoke(m vm.Machine) error {
	a, err := action(m)
	if err != nil {
		return err
	}
	t := c.now()
	if a == ClockUnix {
		m.Data().Push(vm.Cell(t.Unix()))
		return nil
	}
	if a >= ClockDayUTC && a <= ClockSecondUTC {
		t = t.UTC()
		a -= ClockDayUTC - ClockDay
	} else {
		t = t.Local()
	}

	var v int
	switch a {
	case ClockDay:
		v = t.Day()
	case ClockMonth:
		v = int(t.Month())
	case ClockYear:
		v = t.Year()
	case ClockHour:
		v = t.Hour()
	case ClockMinute:
		v = t.Minute()
	case ClockSecond:
		v = t.Second()
	default:
		return vm.ActionError("clock", a)
	}
	m.Data().Push(vm.Cell(v))
	return nil
}
