package dataset

import (
	"fmt"
	"regexp"
	"strings"
	"time"
)

// LogFileExt is the extension of detector log files.
const LogFileExt = ".log"

// ownerPattern is the GitHub account charset. Accounts cannot contain
// underscores, which keeps the double underscore an unambiguous separator.
var ownerPattern = regexp.MustCompile(`^[A-Za-z0-9-]+$`)

// LogFilename names a detector log: the repository full name with '/'
// replaced by '__', an underscore, and the scan start time.
func LogFilename(repoFullName string, start time.Time) string {
	flat := strings.ReplaceAll(repoFullName, "/", "__")
	return flat + "_" + start.Format(InspectionTimeLayout) + LogFileExt
}

// ParseLogFilename splits a detector log name back into the repository full
// name and the scan start time. The timestamp carries no underscore, so the
// last underscore separates it from the repository part; the first double
// underscore separates owner from name.
func ParseLogFilename(name string) (string, time.Time, error) {
	base, ok := strings.CutSuffix(name, LogFileExt)
	if !ok {
		return "", time.Time{}, fmt.Errorf("log name %q: missing %s extension", name, LogFileExt)
	}

	sep := strings.LastIndex(base, "_")
	if sep < 0 {
		return "", time.Time{}, fmt.Errorf("log name %q: missing timestamp separator", name)
	}
	repoPart, tsPart := base[:sep], base[sep+1:]

	start, err := ParseInspectionTime(tsPart)
	if err != nil {
		return "", time.Time{}, fmt.Errorf("log name %q: invalid timestamp %q", name, tsPart)
	}

	owner, repo, found := strings.Cut(repoPart, "__")
	if !found || owner == "" || repo == "" {
		return "", time.Time{}, fmt.Errorf("log name %q: want owner__name before the timestamp", name)
	}
	if !ownerPattern.MatchString(owner) {
		return "", time.Time{}, fmt.Errorf("log name %q: invalid owner %q", name, owner)
	}

	return owner + "/" + repo, start, nil
}
