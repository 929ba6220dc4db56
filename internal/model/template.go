package model

import "strings"

// Expand substitutes path tokens in a template:
//
//	{station} {STATION} {yyyy} {yy} {mm} {dd} {doy} {date} {cache}
//
// Unknown tokens are left untouched.
func Expand(template string, s Station, d Day, cache string) string {
	return strings.NewReplacer(
		"{station}", s.Lower(),
		"{STATION}", s.Upper(),
		"{yyyy}", d.t.Format("2006"),
		"{yy}", d.YY(),
		"{mm}", d.Month(),
		"{dd}", d.DayOfMonth(),
		"{doy}", d.DOY(),
		"{date}", d.ISO(),
		"{cache}", cache,
	).Replace(template)
}
