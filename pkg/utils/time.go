package utils

import (
	"time"
)

// time.go - утилиты работы со временем
//
// Дневные счётчики (убытки, количество сделок) сбрасываются на границе
// суток UTC, чтобы поведение не зависело от часового пояса процесса.

// StartOfDayUTC возвращает начало суток UTC для заданного момента.
func StartOfDayUTC(t time.Time) time.Time {
	u := t.UTC()
	return time.Date(u.Year(), u.Month(), u.Day(), 0, 0, 0, 0, time.UTC)
}

// SameDayUTC проверяет, что оба момента относятся к одним суткам UTC.
func SameDayUTC(a, b time.Time) bool {
	return StartOfDayUTC(a).Equal(StartOfDayUTC(b))
}

// NextDayUTC возвращает начало следующих суток UTC.
func NextDayUTC(t time.Time) time.Time {
	return StartOfDayUTC(t).Add(24 * time.Hour)
}

// Elapsed возвращает время, прошедшее с заданного момента.
// Нулевой момент трактуется как "никогда" и даёт очень большую длительность.
func Elapsed(since time.Time, now time.Time) time.Duration {
	if since.IsZero() {
		return time.Duration(1<<63 - 1)
	}
	return now.Sub(since)
}

// IsStale проверяет, что момент старше maxAge относительно now.
//
// Используется для проверки свежести рыночных котировок: котировка
// ровно возраста maxAge ещё считается свежей.
func IsStale(ts time.Time, maxAge time.Duration, now time.Time) bool {
	if ts.IsZero() {
		return true
	}
	return now.Sub(ts) > maxAge
}
