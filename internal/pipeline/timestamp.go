package pipeline

import (
	"os"
	"regexp"
	"strconv"
	"time"
)

// Camera filenames carry the capture time as yymmdd_hhmm.
var filenameTimestamp = regexp.MustCompile(`(\d{6})_(\d{4})`)

// TimestampForImage resolves the capture time of an image: the yymmdd_hhmm
// token in the filename when present, otherwise the file's modification
// time, otherwise now. All results are UTC.
func TimestampForImage(name, path string, now func() time.Time) time.Time {
	if m := filenameTimestamp.FindStringSubmatch(name); m != nil {
		if ts, ok := parseFilenameTimestamp(m[1], m[2]); ok {
			return ts
		}
	}
	if info, err := os.Stat(path); err == nil {
		return info.ModTime().UTC()
	}
	return now().UTC()
}

func parseFilenameTimestamp(date, clock string) (time.Time, bool) {
	yy, _ := strconv.Atoi(date[0:2])
	mm, _ := strconv.Atoi(date[2:4])
	dd, _ := strconv.Atoi(date[4:6])
	hh, _ := strconv.Atoi(clock[0:2])
	mi, _ := strconv.Atoi(clock[2:4])

	if mm < 1 || mm > 12 || dd < 1 || dd > 31 || hh > 23 || mi > 59 {
		return time.Time{}, false
	}
	return time.Date(2000+yy, time.Month(mm), dd, hh, mi, 0, 0, time.UTC), true
}
