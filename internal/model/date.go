package model

import (
	"fmt"
	"regexp"
	"strconv"
	"time"
)

const dateLayout = "2006-01-02"

// Date календарная дата без времени суток и часового пояса.
// Шаги по дням считаются через time.Date в UTC, поэтому переход
// на летнее время и границы месяцев не сдвигают результат.
type Date struct {
	Year  int
	Month time.Month
	Day   int
}

// NewDate нормализует дату (например 31 февраля превратится в 3 марта)
func NewDate(year int, month time.Month, day int) Date {
	return DateOf(time.Date(year, month, day, 0, 0, 0, 0, time.UTC))
}

// DateOf возвращает дату t в её собственном часовом поясе
func DateOf(t time.Time) Date {
	y, m, d := t.Date()
	return Date{Year: y, Month: m, Day: d}
}

// ParseDate разбирает дату в формате YYYY-MM-DD
func ParseDate(s string) (Date, error) {
	t, err := time.Parse(dateLayout, s)
	if err != nil {
		return Date{}, fmt.Errorf("parse date %q: %w", s, err)
	}
	return DateOf(t), nil
}

func (d Date) String() string {
	return fmt.Sprintf("%04d-%02d-%02d", d.Year, int(d.Month), d.Day)
}

func (d Date) IsZero() bool {
	return d.Year == 0 && d.Month == 0 && d.Day == 0
}

// UTCMidnight используется на границе с базой (колонки DATE)
func (d Date) UTCMidnight() time.Time {
	return time.Date(d.Year, d.Month, d.Day, 0, 0, 0, 0, time.UTC)
}

func (d Date) AddDays(n int) Date {
	return DateOf(time.Date(d.Year, d.Month, d.Day+n, 0, 0, 0, 0, time.UTC))
}

func (d Date) Weekday() time.Weekday {
	return d.UTCMidnight().Weekday()
}

func (d Date) Before(other Date) bool {
	return d.UTCMidnight().Before(other.UTCMidnight())
}

func (d Date) After(other Date) bool {
	return d.UTCMidnight().After(other.UTCMidnight())
}

// At собирает момент времени из даты и времени суток в указанной зоне
func (d Date) At(c Clock, loc *time.Location) time.Time {
	return time.Date(d.Year, d.Month, d.Day, c.Hour, c.Minute, 0, 0, loc)
}

func (d Date) MarshalText() ([]byte, error) {
	return []byte(d.String()), nil
}

func (d *Date) UnmarshalText(b []byte) error {
	parsed, err := ParseDate(string(b))
	if err != nil {
		return err
	}
	*d = parsed
	return nil
}

// MaxDate возвращает более позднюю из дат
func MaxDate(a, b Date) Date {
	if a.After(b) {
		return a
	}
	return b
}

var clockPattern = regexp.MustCompile(`^([01]?\d|2[0-3]):([0-5]\d)$`)

// Clock время суток с точностью до минуты
type Clock struct {
	Hour   int
	Minute int
}

// ParseClock принимает "9:05" и "09:05"
func ParseClock(s string) (Clock, error) {
	m := clockPattern.FindStringSubmatch(s)
	if m == nil {
		return Clock{}, fmt.Errorf("invalid time %q, expected HH:MM", s)
	}
	hour, _ := strconv.Atoi(m[1])
	minute, _ := strconv.Atoi(m[2])
	return Clock{Hour: hour, Minute: minute}, nil
}

// String всегда с ведущими нулями, в таком виде время хранится в базе
func (c Clock) String() string {
	return fmt.Sprintf("%02d:%02d", c.Hour, c.Minute)
}

// Minutes минуты от полуночи
func (c Clock) Minutes() int {
	return c.Hour*60 + c.Minute
}

func (c Clock) Before(other Clock) bool {
	return c.Minutes() < other.Minutes()
}
